// Command bindctl runs, inspects and reports on binding scheduler sessions.
package main

import "github.com/sarchlab/bindengine/bindctl/cmd"

func main() {
	cmd.Execute()
}

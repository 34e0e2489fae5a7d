package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bindengine/simulation"
	"github.com/sarchlab/bindengine/tick"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the tick tree after the scripts ran for some frames.",
	Long: "`tree` loads the Lua scripts, steps the given number of frames " +
		"and prints the tick tree, showing where the scheduler's updaters " +
		"were spliced in.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cfg.Engine.Frames, _ = cmd.Flags().GetInt("frames")
		if cfg.Engine.Frames < 1 {
			return fmt.Errorf("--frames must be at least 1")
		}
		cfg.Engine.StartPlaying = true

		s, err := simulation.MakeBuilder().
			WithConfig(cfg).
			WithoutMonitoring().
			WithoutRecording().
			Build()
		if err != nil {
			return err
		}
		defer func() { _ = s.Terminate() }()

		if err := s.LoadScripts(); err != nil {
			return err
		}

		if err := s.Run(cmd.Context()); err != nil {
			return err
		}

		printTree(cmd.OutOrStdout(), s.Host().Root())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)

	treeCmd.Flags().Int("frames", 1, "frames to step before printing")
}

func printTree(w io.Writer, root *tick.Node) {
	var visit func(n *tick.Node, depth int)
	visit = func(n *tick.Node, depth int) {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n.Tag)

		for _, c := range n.Children() {
			visit(c, depth+1)
		}
	}

	visit(root, 0)
}

// Package cmd provides the command-line interface of bindctl.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bindengine/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bindctl",
	Short: "bindctl runs Lua-declared bindings on a simulated frame loop.",
	Long: `bindctl runs Lua-declared bindings on a simulated frame loop, ` +
		`prints where the scheduler splices its updaters into the tick tree, ` +
		`and summarises recorded sessions.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "",
		"TOML or YAML configuration file")
	rootCmd.PersistentFlags().StringSlice("env-file", []string{".env"},
		"dotenv files loaded before reading the configuration")
	rootCmd.PersistentFlags().String("scripts", "",
		"directory of Lua scripts declaring bindings")
	rootCmd.PersistentFlags().String("log-level", "",
		"log level (debug, info, warn, error)")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the env files and the configuration file, then applies
// the persistent flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("scripts") {
		cfg.Scripts.Dir, _ = cmd.Flags().GetString("scripts")
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}

	return cfg, nil
}

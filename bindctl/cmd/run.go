package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/binding"
	"github.com/sarchlab/bindengine/config"
	"github.com/sarchlab/bindengine/simulation"
	"github.com/sarchlab/bindengine/tracing"
	"github.com/sarchlab/bindengine/updater"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scripted bindings for a number of frames.",
	Long: "`run` loads the Lua scripts, steps the frame loop and prints " +
		"how often each stage ran its bindings. With --frames 0 it runs in " +
		"real time until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		applyRunFlags(cmd, cfg)

		if err := cfg.Validate(); err != nil {
			return err
		}

		s, err := simulation.MakeBuilder().WithConfig(cfg).Build()
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Terminate(); err != nil {
				s.Logger().Error("terminate", zap.Error(err))
			}
		}()

		if err := s.LoadScripts(); err != nil {
			return err
		}

		if open, _ := cmd.Flags().GetBool("open-monitor"); open &&
			s.MonitorURL() != "" {
			if err := browser.OpenURL(s.MonitorURL()); err != nil {
				s.Logger().Warn("cannot open browser", zap.Error(err))
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		printSummary(cmd.OutOrStdout(), s.Context(), s.StepCounts(),
			s.Host().FrameCount())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("frames", 0,
		"frames to step, 0 to run in real time until interrupted")
	runCmd.Flags().Bool("profiling", false, "collect per-entry telemetry")
	runCmd.Flags().Bool("monitor", false, "serve the monitoring page")
	runCmd.Flags().Int("monitor-port", 0, "port of the monitoring page")
	runCmd.Flags().Bool("open-monitor", false,
		"open the monitoring page in a browser, implies --monitor")
	runCmd.Flags().Bool("record", false,
		"record executions into an SQLite database")
	runCmd.Flags().String("output", "",
		"database name for --record, without extension")
	runCmd.Flags().Bool("edit-mode", false, "start outside play mode")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("frames") {
		cfg.Engine.Frames, _ = f.GetInt("frames")
	}

	if f.Changed("profiling") {
		cfg.Scheduler.Profiling, _ = f.GetBool("profiling")
	}

	if f.Changed("monitor") {
		cfg.Monitor.Enabled, _ = f.GetBool("monitor")
	}

	if open, _ := f.GetBool("open-monitor"); open {
		cfg.Monitor.Enabled = true
	}

	if f.Changed("monitor-port") {
		cfg.Monitor.Port, _ = f.GetInt("monitor-port")
	}

	if f.Changed("record") {
		cfg.Recording.Enabled, _ = f.GetBool("record")
	}

	if f.Changed("output") {
		cfg.Recording.Path, _ = f.GetString("output")
	}

	if edit, _ := f.GetBool("edit-mode"); edit {
		cfg.Engine.StartPlaying = false
	}
}

func printSummary(
	w io.Writer,
	ctx *binding.Context,
	steps *tracing.StepCountTracer,
	frames uint64,
) {
	fmt.Fprintf(w, "frames: %d, bindings: %d, controllers: %d\n",
		frames, ctx.Len(), ctx.Controls().Len())

	for _, u := range ctx.Updaters() {
		stats := u.Stats()
		fmt.Fprintf(w, "  %-18s entries=%-4d executions=%-8d removals=%-4d "+
			"profiled=%d\n",
			u.Name(), u.Len(), stats.Executions, stats.Removals,
			steps.StepCount(updater.HookPosEntryExecuted.Name, u.Name()))
	}
}

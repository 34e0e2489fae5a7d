// Package simulation wires a host, a binding scheduler and their tooling
// into one runnable unit.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/binding"
	"github.com/sarchlab/bindengine/config"
	"github.com/sarchlab/bindengine/datarecording"
	"github.com/sarchlab/bindengine/monitoring"
	"github.com/sarchlab/bindengine/scripting"
	"github.com/sarchlab/bindengine/tick"
	"github.com/sarchlab/bindengine/tracing"
)

// A Simulation owns everything a run needs.
type Simulation struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	host    *tick.Host
	ctx     *binding.Context
	scripts *scripting.Engine
	steps   *tracing.StepCountTracer

	monitor    *monitoring.Monitor
	monitorURL string

	dataRecorder datarecording.DataRecorder
	execRecorder *datarecording.ExecRecorder

	terminated bool
}

// ID returns the session id of the run.
func (s *Simulation) ID() string {
	return s.id
}

// Config returns the settings the simulation was built from.
func (s *Simulation) Config() *config.Config {
	return s.cfg
}

// Logger returns the root logger.
func (s *Simulation) Logger() *zap.Logger {
	return s.logger
}

// Host returns the host that steps frames.
func (s *Simulation) Host() *tick.Host {
	return s.host
}

// Context returns the binding scheduler.
func (s *Simulation) Context() *binding.Context {
	return s.ctx
}

// Scripts returns the Lua engine.
func (s *Simulation) Scripts() *scripting.Engine {
	return s.scripts
}

// StepCounts returns the tracer counting joins, runs and removals per stage.
func (s *Simulation) StepCounts() *tracing.StepCountTracer {
	return s.steps
}

// Monitor returns the monitor, or nil when monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring server, if any.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// DataRecorder returns the recorder, or nil when recording is off.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// LoadScripts runs the Lua files of the configured scripts directory.
func (s *Simulation) LoadScripts() error {
	return s.scripts.LoadDir(s.cfg.Scripts.Dir)
}

// Run steps the configured number of frames as fast as possible, or in real
// time until ctx is done when no frame count is set.
func (s *Simulation) Run(ctx context.Context) error {
	if s.execRecorder != nil {
		s.execRecorder.Start()
		s.execRecorder.Set("Frames", s.cfg.Engine.Frames)
		s.execRecorder.Set("Frame Delta", s.cfg.Engine.FrameDelta)
		s.execRecorder.Set("Profiling", s.cfg.Scheduler.Profiling)
	}

	start := time.Now()

	var err error
	if s.cfg.Engine.Frames == 0 {
		err = s.host.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	} else {
		err = s.stepFrames(ctx, s.cfg.Engine.Frames)
	}

	s.logger.Info("run finished",
		zap.String("session", s.id),
		zap.Uint64("frames", s.host.FrameCount()),
		zap.Int("bindings", s.ctx.Len()),
		zap.Duration("wall", time.Since(start)))

	return err
}

func (s *Simulation) stepFrames(ctx context.Context, frames int) error {
	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("Frames", uint64(frames))
		defer s.monitor.CompleteProgressBar(bar)
	}

	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.host.Step()

		if bar != nil {
			bar.IncrementFinished(1)
		}
	}

	return nil
}

// Terminate flushes the recorder, stops the monitor and releases the Lua VM.
// It is safe to call more than once.
func (s *Simulation) Terminate() error {
	if s.terminated {
		return nil
	}
	s.terminated = true

	var errs []error

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop monitor: %w", err))
		}
	}

	if s.execRecorder != nil {
		if err := s.execRecorder.End(); err != nil {
			errs = append(errs, fmt.Errorf("record run: %w", err))
		}
	}

	if s.dataRecorder != nil {
		if err := s.dataRecorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close recorder: %w", err))
		}
	}

	s.scripts.Close()
	_ = s.logger.Sync()

	return errors.Join(errs...)
}

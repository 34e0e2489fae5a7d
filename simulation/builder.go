package simulation

import (
	"fmt"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/binding"
	"github.com/sarchlab/bindengine/config"
	"github.com/sarchlab/bindengine/datarecording"
	"github.com/sarchlab/bindengine/logging"
	"github.com/sarchlab/bindengine/monitoring"
	"github.com/sarchlab/bindengine/scripting"
	"github.com/sarchlab/bindengine/tick"
	"github.com/sarchlab/bindengine/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg            *config.Config
	logger         *zap.Logger
	monitorOn      bool
	monitorPort    int
	recordingOn    bool
	outputFileName string
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{}.WithConfig(config.Default())
}

// WithConfig takes monitoring, recording and engine settings from cfg.
func (b Builder) WithConfig(cfg *config.Config) Builder {
	b.cfg = cfg
	b.monitorOn = cfg.Monitor.Enabled
	b.monitorPort = 0
	b.recordingOn = cfg.Recording.Enabled
	b.outputFileName = ""

	if b.monitorOn {
		b.monitorPort = cfg.Monitor.Port
	}

	if b.recordingOn {
		b.outputFileName = cfg.Recording.Path
	}

	return b
}

// WithLogger sets the logger. Without one, the logger is built from the
// logging settings.
func (b Builder) WithLogger(l *zap.Logger) Builder {
	b.logger = l
	return b
}

// WithMonitoring turns the monitoring server on.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	b.monitorPort = 0

	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithRecording turns the SQLite recorder on.
func (b Builder) WithRecording() Builder {
	b.recordingOn = true
	return b
}

// WithoutRecording turns the SQLite recorder off.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	b.outputFileName = ""

	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.cfg == nil {
		panic("config is required")
	}

	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && b.outputFileName != "" {
		panic("output file cannot be set when recording is disabled")
	}
}

// Build wires the host, the scheduler, the scripts and the optional monitor
// and recorder.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	s := &Simulation{
		id:     xid.New().String(),
		cfg:    b.cfg,
		logger: b.logger,
		steps:  tracing.NewStepCountTracer(),
	}

	if s.logger == nil {
		l, err := logging.New(b.cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		s.logger = l
	}

	s.host = tick.MakeBuilder().
		WithFrameDelta(b.cfg.Engine.FrameDelta).
		WithTimeScale(b.cfg.Engine.TimeScale).
		WithPlaying(b.cfg.Engine.StartPlaying).
		WithLogger(logging.Named(s.logger, "host")).
		Build()

	s.ctx = binding.MakeBuilder().
		WithLogger(logging.Named(s.logger, "bindings")).
		WithProfiling(b.cfg.Scheduler.Profiling).
		Build(s.host)

	for _, u := range s.ctx.Updaters() {
		u.AcceptHook(s.steps)
	}

	s.scripts = scripting.NewEngine(s.ctx, s.host,
		logging.Named(s.logger, "scripts"))

	if b.recordingOn {
		if err := b.buildRecorder(s); err != nil {
			s.scripts.Close()
			return nil, err
		}
	}

	if b.monitorOn {
		if err := b.buildMonitor(s); err != nil {
			s.Terminate()
			return nil, err
		}
	}

	return s, nil
}

func (b Builder) buildRecorder(s *Simulation) error {
	path := b.outputFileName
	if path == "" {
		path = "bindengine_" + s.id
	}

	r, err := datarecording.New(path)
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}
	s.dataRecorder = r

	s.execRecorder, err = datarecording.NewExecRecorder(r, s.id)
	if err != nil {
		return fmt.Errorf("create exec table: %w", err)
	}

	executions, err := datarecording.NewExecutionRecorder(r, s.host, s.id)
	if err != nil {
		return fmt.Errorf("create execution tables: %w", err)
	}
	executions.WithLogger(logging.Named(s.logger, "recorder"))

	for _, u := range s.ctx.Updaters() {
		u.AcceptHook(executions)
	}

	return nil
}

func (b Builder) buildMonitor(s *Simulation) error {
	s.monitor = monitoring.NewMonitor().
		WithLogger(logging.Named(s.logger, "monitor")).
		WithTimeout(b.cfg.Monitor.Timeout)

	if b.monitorPort > 0 {
		s.monitor.WithPortNumber(b.monitorPort)
	}

	s.monitor.RegisterContext(s.ctx, s.host.Dispatcher())

	url, err := s.monitor.StartServer()
	if err != nil {
		return err
	}
	s.monitorURL = url

	return nil
}

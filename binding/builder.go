package binding

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/activation"
	"github.com/sarchlab/bindengine/control"
	"github.com/sarchlab/bindengine/idgen"
	"github.com/sarchlab/bindengine/updater"
)

// Builder can build scheduler contexts.
type Builder struct {
	logger    *zap.Logger
	profiling bool
	ids       idgen.Generator
}

// MakeBuilder creates a builder with profiling off.
func MakeBuilder() Builder {
	return Builder{}
}

// WithLogger sets the logger shared by the updaters.
func (b Builder) WithLogger(l *zap.Logger) Builder {
	b.logger = l
	return b
}

// WithProfiling sets whether telemetry is collected from the start.
func (b Builder) WithProfiling(enabled bool) Builder {
	b.profiling = enabled
	return b
}

// WithIDGenerator sets the generator of binding identities.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.ids = g
	return b
}

// Build creates a context scheduling on host.
func (b Builder) Build(host Host) *Context {
	if host == nil {
		panic("host is required")
	}

	c := &Context{
		host:          host,
		logger:        b.logger,
		profiling:     new(atomic.Bool),
		ids:           b.ids,
		pending:       activation.NewPendingSet(),
		registrations: make(map[int]*registration),
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	if c.ids == nil {
		c.ids = idgen.New()
	}

	c.profiling.Store(b.profiling)
	c.controls = control.NewIndex().WithLogger(c.logger)

	for s := StageUpdateBefore; s < StageEditTime; s++ {
		spec := stageSpecs[s]
		u := updater.NewStageUpdater(spec.name, host, spec.anchor, spec.before,
			host, host)
		u.WithLogger(c.logger).WithProfiling(c.profiling)
		c.stages[s] = u
	}

	c.editTime = updater.NewEditTimeUpdater(
		stageSpecs[StageEditTime].name, host, host, host)
	c.editTime.WithLogger(c.logger).WithProfiling(c.profiling)

	host.OnPlayModeChanged(c.onPlayModeChanged)
	host.OnMainThreadReady(c.pending.OnContextCaptured)

	return c
}

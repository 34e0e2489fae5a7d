package tracing

import (
	"sync"

	"github.com/sarchlab/bindengine/hooking"
	"github.com/sarchlab/bindengine/updater"
)

// StepCountTracer counts how often each hook position fires per stage. It
// shows how many entries join, run and leave each updater.
type StepCountTracer struct {
	lock   sync.Mutex
	counts map[string]map[string]uint64
	names  []string
}

// NewStepCountTracer creates an empty tracer.
func NewStepCountTracer() *StepCountTracer {
	return &StepCountTracer{counts: make(map[string]map[string]uint64)}
}

// Func counts the hook position under the stage it came from.
func (t *StepCountTracer) Func(ctx hooking.HookCtx) {
	stage := stageOf(ctx)
	if stage == "" {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	c, ok := t.counts[ctx.Pos.Name]
	if !ok {
		c = make(map[string]uint64)
		t.counts[ctx.Pos.Name] = c
		t.names = append(t.names, ctx.Pos.Name)
	}

	c[stage]++
}

// StepNames returns the hook positions seen so far.
func (t *StepCountTracer) StepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.names...)
}

// StepCount returns how often a hook position fired for a stage.
func (t *StepCountTracer) StepCount(step, stage string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.counts[step][stage]
}

func stageOf(ctx hooking.HookCtx) string {
	switch item := ctx.Item.(type) {
	case updater.ExecutionSample:
		return item.Stage
	case *updater.StageData:
		return item.StageName
	}

	return ""
}

// Package tracing aggregates the execution telemetry that updaters publish
// through hooks.
package tracing

import (
	"sync"
	"time"

	"github.com/sarchlab/bindengine/hooking"
	"github.com/sarchlab/bindengine/updater"
)

// A SampleFilter selects the samples a tracer counts.
type SampleFilter func(s updater.ExecutionSample) bool

// StageTime is the execution time collected for one stage.
type StageTime struct {
	Stage   string        `json:"stage"`
	Count   uint64        `json:"count"`
	Average time.Duration `json:"average_ns"`
	Max     time.Duration `json:"max_ns"`
	Total   time.Duration `json:"total_ns"`
}

// AverageTimeTracer keeps the running average execution time of the entries
// of each stage. It is a hook for updaters; it can be read from any
// goroutine.
type AverageTimeTracer struct {
	filter SampleFilter

	lock   sync.Mutex
	stages map[string]*StageTime
	order  []string
}

// NewAverageTimeTracer creates a tracer. A nil filter counts every sample.
func NewAverageTimeTracer(filter SampleFilter) *AverageTimeTracer {
	return &AverageTimeTracer{
		filter: filter,
		stages: make(map[string]*StageTime),
	}
}

// Func records execution samples and ignores other hook positions.
func (t *AverageTimeTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != updater.HookPosEntryExecuted {
		return
	}

	sample, ok := ctx.Item.(updater.ExecutionSample)
	if !ok {
		return
	}

	if t.filter != nil && !t.filter(sample) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	st, found := t.stages[sample.Stage]
	if !found {
		st = &StageTime{Stage: sample.Stage}
		t.stages[sample.Stage] = st
		t.order = append(t.order, sample.Stage)
	}

	st.Average = time.Duration(
		(float64(st.Average)*float64(st.Count) +
			float64(sample.ExecutionTime)) / float64(st.Count+1))
	st.Count++
	st.Total += sample.ExecutionTime

	if sample.ExecutionTime > st.Max {
		st.Max = sample.ExecutionTime
	}
}

// StageTimes returns a copy of the collected times in the order stages were
// first seen.
func (t *AverageTimeTracer) StageTimes() []StageTime {
	t.lock.Lock()
	defer t.lock.Unlock()

	times := make([]StageTime, 0, len(t.order))
	for _, name := range t.order {
		times = append(times, *t.stages[name])
	}

	return times
}

// AverageTime returns the average execution time of a stage.
func (t *AverageTimeTracer) AverageTime(stage string) time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	if st, ok := t.stages[stage]; ok {
		return st.Average
	}

	return 0
}

// TotalCount returns the number of samples collected over all stages.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	var n uint64
	for _, st := range t.stages {
		n += st.Count
	}

	return n
}

// Reset drops everything collected so far.
func (t *AverageTimeTracer) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.stages = make(map[string]*StageTime)
	t.order = nil
}

package updater

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/hooking"
)

// Stats aggregates what happened in an updater since it was created.
type Stats struct {
	Entries    int
	Executions uint64
	Removals   uint64
	Active     bool
}

// Updater is an entry list bound to one scheduling phase.
type Updater interface {
	hooking.Hookable

	Name() string
	Register(r Registration) *StageData
	Unregister(id int)
	Find(id int) *StageData
	Entries() []*StageData
	Len() int
	IsActive() bool
	Stats() Stats
}

// A DataUpdater owns the entries of one phase and runs them. It is not safe
// for concurrent use; all calls happen on the main goroutine.
type DataUpdater struct {
	hooking.HookableBase

	name      string
	clock     TimeTeller
	profiling *atomic.Bool
	logger    *zap.Logger

	entries  []*StageData
	live     int
	sweeping bool

	executions uint64
	removals   uint64

	onDrained func()
}

// NewDataUpdater creates an updater that reads frames and time from clock.
func NewDataUpdater(name string, clock TimeTeller) *DataUpdater {
	return &DataUpdater{
		name:      name,
		clock:     clock,
		profiling: new(atomic.Bool),
		logger:    zap.NewNop(),
	}
}

// WithLogger sets the logger used to report failing entries.
func (u *DataUpdater) WithLogger(l *zap.Logger) *DataUpdater {
	u.logger = l
	return u
}

// WithProfiling shares a profiling switch with the updater.
func (u *DataUpdater) WithProfiling(flag *atomic.Bool) *DataUpdater {
	u.profiling = flag
	return u
}

// Name returns the phase name.
func (u *DataUpdater) Name() string {
	return u.name
}

// Len returns the number of live entries.
func (u *DataUpdater) Len() int {
	return u.live
}

// Stats returns the aggregated counters. Active is left to the owner.
func (u *DataUpdater) Stats() Stats {
	return Stats{
		Entries:    u.live,
		Executions: u.executions,
		Removals:   u.removals,
	}
}

// Entries returns the live entries in registration order.
func (u *DataUpdater) Entries() []*StageData {
	entries := make([]*StageData, 0, u.live)
	for _, d := range u.entries {
		if !d.removed {
			entries = append(entries, d)
		}
	}

	return entries
}

// Find returns the live entry with the id, or nil.
func (u *DataUpdater) Find(id int) *StageData {
	for _, d := range u.entries {
		if d.ID == id && !d.removed {
			return d
		}
	}

	return nil
}

// Register replaces any live entry with the same id and appends a new one.
// Entries registered during a sweep run from the next sweep on.
func (u *DataUpdater) Register(r Registration) *StageData {
	u.removeID(r.ID)

	d := newStageData(u.name, r)
	u.entries = append(u.entries, d)
	u.live++

	u.InvokeHook(hooking.HookCtx{
		Domain: u,
		Pos:    HookPosEntryAdded,
		Item:   d,
	})

	return d
}

// Unregister removes every entry with the id. Unknown ids are ignored.
func (u *DataUpdater) Unregister(id int) {
	if !u.removeID(id) {
		return
	}

	if !u.sweeping {
		u.compact()
		u.checkDrained()
	}
}

// Sweep runs every live entry that is due, in registration order. Dead
// entries are removed before their turn. A failing entry is logged and the
// sweep goes on.
func (u *DataUpdater) Sweep() {
	if u.sweeping {
		return
	}

	u.sweeping = true

	frame := u.clock.FrameCount()
	now := u.clock.Now()
	n := len(u.entries)

	for i := 0; i < n; i++ {
		d := u.entries[i]
		if d.removed {
			continue
		}

		if !d.alive() {
			u.retire(d)
			continue
		}

		if d.IsPaused || !d.isDue(frame, now) {
			continue
		}

		u.execute(d, frame)
	}

	u.sweeping = false

	u.compact()
	u.checkDrained()
}

func (u *DataUpdater) removeID(id int) bool {
	var matches []*StageData

	for _, d := range u.entries {
		if d.ID == id && !d.removed {
			matches = append(matches, d)
		}
	}

	for _, d := range matches {
		if !d.removed {
			u.retire(d)
		}
	}

	if len(matches) > 0 && !u.sweeping {
		u.compact()
	}

	return len(matches) > 0
}

func (u *DataUpdater) retire(d *StageData) {
	d.removed = true
	u.live--
	u.removals++

	ctx := hooking.HookCtx{Domain: d, Pos: HookPosEntryRemoved, Item: d}
	d.InvokeHook(ctx)

	ctx.Domain = u
	u.InvokeHook(ctx)

	if d.onRemove != nil {
		u.guard(d, "on_remove", d.onRemove)
	}
}

func (u *DataUpdater) compact() {
	kept := u.entries[:0]
	for _, d := range u.entries {
		if !d.removed {
			kept = append(kept, d)
		}
	}

	for i := len(kept); i < len(u.entries); i++ {
		u.entries[i] = nil
	}

	u.entries = kept
}

func (u *DataUpdater) checkDrained() {
	if u.live == 0 && u.onDrained != nil {
		u.onDrained()
	}
}

func (u *DataUpdater) execute(d *StageData, frame uint64) {
	u.executions++

	if !u.profiling.Load() {
		u.guard(d, "run", d.update)
		return
	}

	start := time.Now()
	u.guard(d, "run", d.update)
	elapsed := time.Since(start)

	d.CurrentExecutionTimeMs = float64(elapsed) / float64(time.Millisecond)
	d.TotalExecutionsCount++

	ctx := hooking.HookCtx{
		Domain: d,
		Pos:    HookPosEntryExecuted,
		Item: ExecutionSample{
			EntryID:       d.ID,
			Context:       d.Context,
			Stage:         u.name,
			Frame:         frame,
			ExecutionTime: elapsed,
			TotalCount:    d.TotalExecutionsCount,
		},
	}
	d.InvokeHook(ctx)

	ctx.Domain = u
	u.InvokeHook(ctx)
}

func (u *DataUpdater) guard(d *StageData, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("binding entry failed",
				zap.String("stage", u.name),
				zap.String("call", what),
				zap.Int("entry_id", d.ID),
				contextField(d.Context),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"))
		}
	}()

	fn()
}

func contextField(ctx any) zap.Field {
	if s, ok := ctx.(fmt.Stringer); ok {
		return zap.Stringer("context", s)
	}

	return zap.String("context", fmt.Sprintf("%T", ctx))
}

// Package updater implements the per-phase entry lists that run binding
// updates: registration, readiness, the sweep, and attaching to the tick tree
// or to the editor idle loop.
package updater

import (
	"time"

	"github.com/sarchlab/bindengine/hooking"
)

// Hook positions published by updaters and by individual entries.
var (
	// HookPosEntryAdded is invoked on the updater after an entry joins it.
	HookPosEntryAdded = &hooking.HookPos{Name: "EntryAdded"}

	// HookPosEntryExecuted is invoked after a profiled execution, first on
	// the entry and then on its updater. Item is an ExecutionSample.
	HookPosEntryExecuted = &hooking.HookPos{Name: "EntryExecuted"}

	// HookPosEntryRemoved is invoked on the entry and on the updater before
	// the entry's on-remove action runs. Item is the *StageData.
	HookPosEntryRemoved = &hooking.HookPos{Name: "EntryRemoved"}
)

// TimeTeller tells the current frame and time of the host.
type TimeTeller interface {
	FrameCount() uint64
	Now() time.Duration
}

// PlayState tells whether the host is simulating.
type PlayState interface {
	IsPlaying() bool
}

// Registration describes one unit of scheduled work.
type Registration struct {
	ID int

	// IsAlive returns false once the owner is gone. Nil means always alive.
	IsAlive func() bool

	Run     func()
	Context any

	// FrameInterval, when positive, runs the entry only on frames that are
	// a multiple of it.
	FrameInterval int

	// TimeInterval, when positive and FrameInterval is not, runs the entry
	// at most once per interval of host time.
	TimeInterval time.Duration

	// OnRemove runs once when the entry leaves its updater.
	OnRemove func()
}

// ExecutionSample is the telemetry published after a profiled execution.
type ExecutionSample struct {
	EntryID       int
	Context       any
	Stage         string
	Frame         uint64
	ExecutionTime time.Duration
	TotalCount    uint64
}

// StageData is a registered entry.
type StageData struct {
	hooking.HookableBase

	ID        int
	Context   any
	StageName string

	UpdateFrameInterval int
	UpdateTimeInterval  time.Duration

	// IsPaused keeps the entry registered but skips its runs.
	IsPaused bool

	CurrentExecutionTimeMs float64
	TotalExecutionsCount   uint64

	isAlive  func() bool
	update   func()
	onRemove func()
	nextDue  time.Duration
	removed  bool
}

func newStageData(stage string, r Registration) *StageData {
	return &StageData{
		ID:                  r.ID,
		Context:             r.Context,
		StageName:           stage,
		UpdateFrameInterval: r.FrameInterval,
		UpdateTimeInterval:  r.TimeInterval,
		isAlive:             r.IsAlive,
		update:              r.Run,
		onRemove:            r.OnRemove,
	}
}

// IsRemoved tells if the entry has left its updater.
func (d *StageData) IsRemoved() bool {
	return d.removed
}

func (d *StageData) alive() bool {
	return d.isAlive == nil || d.isAlive()
}

// isDue applies the readiness rule. The frame interval wins over the time
// interval. A time-interval entry schedules its next run relative to the time
// it actually fired.
func (d *StageData) isDue(frame uint64, now time.Duration) bool {
	if d.UpdateFrameInterval > 0 {
		return frame%uint64(d.UpdateFrameInterval) == 0
	}

	if d.UpdateTimeInterval > 0 {
		if now < d.nextDue {
			return false
		}

		d.nextDue = now + d.UpdateTimeInterval

		return true
	}

	return true
}

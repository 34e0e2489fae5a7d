// Package binding schedules bindings over the frame phases of a host. A
// Context owns one updater per stage, the controller index and the queue of
// disabled proxies waiting to be reactivated.
package binding

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/activation"
	"github.com/sarchlab/bindengine/control"
	"github.com/sarchlab/bindengine/idgen"
	"github.com/sarchlab/bindengine/tick"
	"github.com/sarchlab/bindengine/updater"
)

// Host is what a Context needs from the engine it runs in.
type Host interface {
	tick.Tree
	tick.IdleLoop
	updater.TimeTeller
	updater.PlayState

	OnPlayModeChanged(fn func(playing bool))
	OnMainThreadReady(fn func(d activation.Dispatcher))
}

// Updatable is a unit of work that can be scheduled.
type Updatable interface {
	ID() int
	IsAlive() bool
	Run()
}

// Schedule says where and how often an Updatable runs.
type Schedule struct {
	Flags         UpdateFlags
	Mode          Mode
	FrameInterval int
	TimeInterval  time.Duration

	// Context is reported with telemetry and failures. Defaults to the
	// Updatable.
	Context any

	// OnRemove runs once when the entry leaves the scheduler for good.
	OnRemove func()
}

type registration struct {
	item     Updatable
	schedule Schedule
	stage    Stage
	moving   bool
}

// Context is the scheduler of a host. It must be used from the host's main
// goroutine, except RegisterDisabledProxy.
type Context struct {
	host      Host
	logger    *zap.Logger
	profiling *atomic.Bool
	ids       idgen.Generator

	stages   [StageEditTime]*updater.StageUpdater
	editTime *updater.EditTimeUpdater
	controls *control.Index
	pending  *activation.PendingSet

	registrations map[int]*registration
}

// Host returns the host the context schedules on.
func (c *Context) Host() Host {
	return c.host
}

// Logger returns the logger of the context.
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// NextID returns a fresh binding identity.
func (c *Context) NextID() int {
	return c.ids.Generate()
}

// SetProfilingEnabled turns telemetry collection on or off.
func (c *Context) SetProfilingEnabled(enabled bool) {
	c.profiling.Store(enabled)
}

// IsProfilingEnabled tells if telemetry is collected.
func (c *Context) IsProfilingEnabled() bool {
	return c.profiling.Load()
}

// Updater returns the updater of a stage.
func (c *Context) Updater(s Stage) updater.Updater {
	if s == StageEditTime {
		return c.editTime
	}

	return c.stages[s]
}

// StageUpdater returns the updater of a play-mode stage, or nil for the
// edit-time stage.
func (c *Context) StageUpdater(s Stage) *updater.StageUpdater {
	if s < 0 || s >= StageEditTime {
		return nil
	}

	return c.stages[s]
}

// EditTime returns the edit-time updater.
func (c *Context) EditTime() *updater.EditTimeUpdater {
	return c.editTime
}

// Updaters returns the updaters of every stage in stage order.
func (c *Context) Updaters() []updater.Updater {
	updaters := make([]updater.Updater, 0, numStages)
	for _, s := range Stages() {
		updaters = append(updaters, c.Updater(s))
	}

	return updaters
}

// Controls returns the controller index.
func (c *Context) Controls() *control.Index {
	return c.controls
}

// Pending returns the queue of disabled proxies.
func (c *Context) Pending() *activation.PendingSet {
	return c.pending
}

// Len returns the number of registered items.
func (c *Context) Len() int {
	return len(c.registrations)
}

// Register schedules u in the stage its flags and mode select. Registering an
// id again replaces the earlier registration, in the same stage or another,
// without calling the earlier Schedule.OnRemove. It returns false and
// schedules nothing if the flags select no stage.
func (c *Context) Register(u Updatable, s Schedule) (Stage, bool) {
	stage, ok := Route(s.Flags, s.Mode, c.host.IsPlaying())
	if !ok {
		c.logger.Debug("binding selects no stage",
			zap.Int("id", u.ID()),
			zap.Stringer("flags", s.Flags))

		return 0, false
	}

	if old := c.registrations[u.ID()]; old != nil {
		old.moving = true
		if old.stage != stage {
			c.Updater(old.stage).Unregister(u.ID())
		}
	}

	if s.Context == nil {
		s.Context = u
	}

	c.add(&registration{item: u, schedule: s, stage: stage})

	return stage, true
}

func (c *Context) add(reg *registration) {
	id := reg.item.ID()

	c.Updater(reg.stage).Register(updater.Registration{
		ID:            id,
		IsAlive:       reg.item.IsAlive,
		Run:           reg.item.Run,
		Context:       reg.schedule.Context,
		FrameInterval: reg.schedule.FrameInterval,
		TimeInterval:  reg.schedule.TimeInterval,
		OnRemove:      func() { c.removed(reg) },
	})

	c.registrations[id] = reg
}

func (c *Context) removed(reg *registration) {
	if reg.moving {
		reg.moving = false
		return
	}

	id := reg.item.ID()
	if c.registrations[id] == reg {
		delete(c.registrations, id)
	}

	if reg.schedule.OnRemove != nil {
		reg.schedule.OnRemove()
	}
}

// Unregister removes an item from the scheduler. Unknown ids are ignored.
func (c *Context) Unregister(id int) {
	reg := c.registrations[id]
	if reg == nil {
		return
	}

	c.Updater(reg.stage).Unregister(id)
}

// IsRegistered tells if an item is scheduled.
func (c *Context) IsRegistered(id int) bool {
	return c.registrations[id] != nil
}

// StageOf returns the stage an item is scheduled in.
func (c *Context) StageOf(id int) (Stage, bool) {
	reg := c.registrations[id]
	if reg == nil {
		return 0, false
	}

	return reg.stage, true
}

// Entry returns the scheduler entry of an item, or nil.
func (c *Context) Entry(id int) *updater.StageData {
	reg := c.registrations[id]
	if reg == nil {
		return nil
	}

	return c.Updater(reg.stage).Find(id)
}

// RegisterDisabledProxy queues p to be reactivated on the main goroutine. It
// is safe to call from any goroutine.
func (c *Context) RegisterDisabledProxy(p activation.Reactivatable) {
	c.pending.RegisterDisabledProxy(p)
}

func (c *Context) onPlayModeChanged(playing bool) {
	if !playing {
		for _, u := range c.stages {
			u.Detach()
		}
	}

	c.reroute(playing)

	if playing {
		for _, u := range c.stages {
			u.RegisterToPlayerLoop()
		}
	}

	c.logger.Debug("play mode changed",
		zap.Bool("playing", playing),
		zap.Int("registrations", len(c.registrations)))
}

// reroute moves registrations whose stage depends on the play mode, keeping
// their relative order.
func (c *Context) reroute(playing bool) {
	for _, u := range c.Updaters() {
		for _, d := range u.Entries() {
			reg := c.registrations[d.ID]
			if reg == nil {
				continue
			}

			stage, ok := Route(reg.schedule.Flags, reg.schedule.Mode, playing)
			if !ok || stage == reg.stage {
				continue
			}

			paused := d.IsPaused

			reg.moving = true
			u.Unregister(d.ID)

			reg.stage = stage
			c.add(reg)

			if moved := c.Entry(d.ID); moved != nil {
				moved.IsPaused = paused
			}
		}
	}
}

// UpdateAllBinds refreshes every binding of a controller. The controller
// methods look controllers up by identity, so a controller must be
// comparable, usually a pointer.
func (c *Context) UpdateAllBinds(controller any) int {
	return c.controls.UpdateAllBinds(controller)
}

// UpdateBind refreshes the bindings of a controller under the paths.
func (c *Context) UpdateBind(controller any, paths ...string) int {
	return c.controls.UpdateBind(controller, paths...)
}

// ClearAllBinds forgets every binding of a controller.
func (c *Context) ClearAllBinds(controller any) int {
	return c.controls.ClearAllBinds(controller)
}

// PauseAllBinds pauses every binding of a controller.
func (c *Context) PauseAllBinds(controller any) int {
	return c.controls.PauseAllBinds(controller)
}

// ResumeAllBinds resumes every binding of a controller.
func (c *Context) ResumeAllBinds(controller any) int {
	return c.controls.ResumeAllBinds(controller)
}

// PauseBind pauses the bindings of a controller under the paths.
func (c *Context) PauseBind(controller any, paths ...string) int {
	return c.controls.PauseBind(controller, paths...)
}

// ResumeBind resumes the bindings of a controller under the paths.
func (c *Context) ResumeBind(controller any, paths ...string) int {
	return c.controls.ResumeBind(controller, paths...)
}

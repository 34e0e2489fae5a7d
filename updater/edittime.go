package updater

import "github.com/sarchlab/bindengine/tick"

// An EditTimeUpdater runs its entries from the editor idle loop while the
// host is not playing.
type EditTimeUpdater struct {
	*DataUpdater

	loop tick.IdleLoop
	play PlayState

	handle   tick.IdleHandle
	attached bool
}

// NewEditTimeUpdater creates an updater bound to an idle loop.
func NewEditTimeUpdater(
	name string,
	loop tick.IdleLoop,
	play PlayState,
	clock TimeTeller,
) *EditTimeUpdater {
	u := &EditTimeUpdater{
		DataUpdater: NewDataUpdater(name, clock),
		loop:        loop,
		play:        play,
	}

	u.DataUpdater.onDrained = u.detach

	return u
}

// IsActive tells if the updater is registered with the idle loop.
func (u *EditTimeUpdater) IsActive() bool {
	return u.attached
}

// Stats returns the aggregated counters.
func (u *EditTimeUpdater) Stats() Stats {
	s := u.DataUpdater.Stats()
	s.Active = u.attached

	return s
}

// Register adds an entry and hooks the updater into the idle loop if needed.
func (u *EditTimeUpdater) Register(r Registration) *StageData {
	d := u.DataUpdater.Register(r)
	u.attach()

	return d
}

func (u *EditTimeUpdater) attach() {
	if u.attached || u.Len() == 0 {
		return
	}

	u.handle = u.loop.AddIdle(u.idle)
	u.attached = true
}

func (u *EditTimeUpdater) detach() {
	if !u.attached {
		return
	}

	u.loop.RemoveIdle(u.handle)
	u.attached = false
}

func (u *EditTimeUpdater) idle() {
	if u.play.IsPlaying() {
		return
	}

	u.Sweep()
}

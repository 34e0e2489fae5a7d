package updater

import (
	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/tick"
)

// A StageUpdater is a DataUpdater spliced into the tick tree next to an
// anchor phase. It is in the tree only while it holds entries and the host
// is playing.
type StageUpdater struct {
	*DataUpdater

	tree   tick.Tree
	anchor tick.Tag
	before bool
	play   PlayState

	node     *tick.Node
	attached bool
}

// NewStageUpdater creates an updater that runs before or after the anchor
// phase's own children.
func NewStageUpdater(
	name string,
	tree tick.Tree,
	anchor tick.Tag,
	before bool,
	play PlayState,
	clock TimeTeller,
) *StageUpdater {
	u := &StageUpdater{
		DataUpdater: NewDataUpdater(name, clock),
		tree:        tree,
		anchor:      anchor,
		before:      before,
		play:        play,
	}

	u.node = tick.NewNode(tick.Tag("Bindings."+name), u.Sweep)
	u.DataUpdater.onDrained = func() { u.TryUnregisterFromPlayerLoop() }

	return u
}

// Anchor returns the phase the updater is spliced next to.
func (u *StageUpdater) Anchor() tick.Tag {
	return u.anchor
}

// Before tells if the updater runs ahead of the anchor's children.
func (u *StageUpdater) Before() bool {
	return u.before
}

// Node returns the leaf spliced into the tree.
func (u *StageUpdater) Node() *tick.Node {
	return u.node
}

// IsActive tells if the updater is spliced into the tree.
func (u *StageUpdater) IsActive() bool {
	return u.attached
}

// Stats returns the aggregated counters.
func (u *StageUpdater) Stats() Stats {
	s := u.DataUpdater.Stats()
	s.Active = u.attached

	return s
}

// Register adds an entry and splices the updater into the tree if needed.
func (u *StageUpdater) Register(r Registration) *StageData {
	d := u.DataUpdater.Register(r)
	u.RegisterToPlayerLoop()

	return d
}

// RegisterToPlayerLoop splices the updater into the tree. It does nothing
// when already spliced, when empty, or when the host is not playing. It
// returns whether the updater is spliced afterwards.
func (u *StageUpdater) RegisterToPlayerLoop() bool {
	if u.attached {
		return true
	}

	if u.Len() == 0 || !u.play.IsPlaying() {
		return false
	}

	if !tick.Insert(u.tree, u.anchor, u.before, u.node) {
		u.logger.Warn("cannot splice updater into tick tree",
			zap.String("stage", u.name),
			zap.String("anchor", string(u.anchor)))

		return false
	}

	u.attached = true

	return true
}

// TryUnregisterFromPlayerLoop removes the updater from the tree once it holds
// no entries. It returns whether a removal happened.
func (u *StageUpdater) TryUnregisterFromPlayerLoop() bool {
	if u.Len() > 0 {
		return false
	}

	return u.Detach()
}

// Detach removes the updater from the tree regardless of its entries.
func (u *StageUpdater) Detach() bool {
	if !u.attached {
		return false
	}

	u.attached = false

	return tick.Remove(u.tree, u.anchor, u.node)
}

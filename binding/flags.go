package binding

import (
	"strings"

	"github.com/sarchlab/bindengine/tick"
)

// UpdateFlags select the frame phases a binding wants to run in.
type UpdateFlags uint8

// The update flags. When several play-mode flags are set, the first one in
// this order wins.
const (
	InEditor UpdateFlags = 1 << iota
	OnUpdate
	OnLateUpdate
	OnFixedUpdate
	OnPrePostRender
)

var flagNames = []struct {
	flag UpdateFlags
	name string
}{
	{InEditor, "InEditor"},
	{OnUpdate, "OnUpdate"},
	{OnLateUpdate, "OnLateUpdate"},
	{OnFixedUpdate, "OnFixedUpdate"},
	{OnPrePostRender, "OnPrePostRender"},
}

// Has tells if all the bits of f2 are set.
func (f UpdateFlags) Has(f2 UpdateFlags) bool {
	return f&f2 == f2
}

func (f UpdateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for _, n := range flagNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, "|")
}

// ParseUpdateFlags reads flags written as by String.
func ParseUpdateFlags(s string) (UpdateFlags, bool) {
	var f UpdateFlags

	if s == "" || s == "None" {
		return 0, true
	}

	for _, part := range strings.Split(s, "|") {
		found := false
		for _, n := range flagNames {
			if strings.EqualFold(strings.TrimSpace(part), n.name) {
				f |= n.flag
				found = true
			}
		}

		if !found {
			return 0, false
		}
	}

	return f, true
}

// Mode is the direction values travel in.
type Mode int

// Binding modes.
const (
	Read Mode = iota
	Write
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "Read"
	case Write:
		return "Write"
	case ReadWrite:
		return "ReadWrite"
	default:
		return "Mode(?)"
	}
}

// ParseMode reads a mode written as by String.
func ParseMode(s string) (Mode, bool) {
	for _, m := range []Mode{Read, Write, ReadWrite} {
		if strings.EqualFold(s, m.String()) {
			return m, true
		}
	}

	return Read, false
}

// Stage identifies one of the updaters of a Context.
type Stage int

// The stages. Reading bindings run before the phase's scripts and writing
// bindings after them.
const (
	StageUpdateBefore Stage = iota
	StageUpdateAfter
	StageLateUpdateBefore
	StageLateUpdateAfter
	StageFixedUpdateBefore
	StageFixedUpdateAfter
	StagePrePostRender
	StageEditTime

	numStages
)

type stageSpec struct {
	name   string
	anchor tick.Tag
	before bool
}

var stageSpecs = [numStages]stageSpec{
	StageUpdateBefore:      {"UpdateBefore", tick.TagUpdate, true},
	StageUpdateAfter:       {"UpdateAfter", tick.TagUpdate, false},
	StageLateUpdateBefore:  {"LateUpdateBefore", tick.TagPreLateUpdate, true},
	StageLateUpdateAfter:   {"LateUpdateAfter", tick.TagPreLateUpdate, false},
	StageFixedUpdateBefore: {"FixedUpdateBefore", tick.TagFixedUpdate, true},
	StageFixedUpdateAfter:  {"FixedUpdateAfter", tick.TagFixedUpdate, false},
	StagePrePostRender:     {"PrePostRender", tick.TagPostLateUpdate, true},
	StageEditTime:          {"EditTime", "", false},
}

// Stages lists every stage in execution order of their phases.
func Stages() []Stage {
	stages := make([]Stage, 0, numStages)
	for s := Stage(0); s < numStages; s++ {
		stages = append(stages, s)
	}

	return stages
}

func (s Stage) String() string {
	if s < 0 || s >= numStages {
		return "Stage(?)"
	}

	return stageSpecs[s].name
}

// ParseStage finds a stage by name.
func ParseStage(name string) (Stage, bool) {
	for s := Stage(0); s < numStages; s++ {
		if strings.EqualFold(stageSpecs[s].name, name) {
			return s, true
		}
	}

	return 0, false
}

// Route picks the stage a binding runs in. Outside play mode, bindings that
// run in the editor go to the edit-time stage. Otherwise the first play-mode
// flag decides the phase and the mode decides the side: reading bindings
// run before the phase's scripts, writing ones after. It returns false if
// the flags select nothing.
func Route(flags UpdateFlags, mode Mode, playing bool) (Stage, bool) {
	if !playing && flags.Has(InEditor) {
		return StageEditTime, true
	}

	before := mode != Write

	pick := func(b, a Stage) Stage {
		if before {
			return b
		}

		return a
	}

	switch {
	case flags.Has(OnUpdate):
		return pick(StageUpdateBefore, StageUpdateAfter), true
	case flags.Has(OnLateUpdate):
		return pick(StageLateUpdateBefore, StageLateUpdateAfter), true
	case flags.Has(OnFixedUpdate):
		return pick(StageFixedUpdateBefore, StageFixedUpdateAfter), true
	case flags.Has(OnPrePostRender):
		return StagePrePostRender, true
	case flags.Has(InEditor):
		return StageEditTime, true
	}

	return 0, false
}

// Package hooking defines the observer mechanism used to publish scheduler
// telemetry without coupling the scheduler to its consumers.
package hooking

// HookPos names a point in the scheduler where hooks fire, such as an entry
// being added, executed or removed. Positions compare by pointer.
type HookPos struct {
	Name string
}

// HookCtx describes one firing. Domain is the updater or entry that fired,
// Item is the entry or execution sample involved and Detail carries extra
// data some positions attach.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   any
	Detail any
}

// Hookable is implemented by updaters and entries that publish firings.
type Hookable interface {
	// AcceptHook attaches a hook. Attaching the same hook twice panics.
	AcceptHook(hook Hook)

	// RemoveHook detaches a hook. Unknown hooks are ignored.
	RemoveHook(hook Hook)

	// NumHooks returns the number of attached hooks.
	NumHooks() int

	// Hooks returns the attached hooks in attach order.
	Hooks() []Hook
}

// Hook receives firings from a Hookable.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc lets a plain function serve as a Hook. Use it through the pointer
// NewHookFunc returns so that RemoveHook can find it again.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f *HookFunc) Func(ctx HookCtx) {
	(*f)(ctx)
}

// NewHookFunc wraps f into a removable Hook.
func NewHookFunc(f func(ctx HookCtx)) *HookFunc {
	h := HookFunc(f)
	return &h
}

// HookableBase is embedded by types that publish firings.
type HookableBase struct {
	attached []Hook
}

// NumHooks returns the number of attached hooks.
func (b *HookableBase) NumHooks() int {
	return len(b.attached)
}

// Hooks returns a copy of the attached hooks.
func (b *HookableBase) Hooks() []Hook {
	return append([]Hook(nil), b.attached...)
}

// AcceptHook attaches a hook after the ones already attached.
func (b *HookableBase) AcceptHook(hook Hook) {
	if b.indexOf(hook) >= 0 {
		panic("hook attached twice")
	}

	b.attached = append(b.attached, hook)
}

// RemoveHook detaches a hook.
func (b *HookableBase) RemoveHook(hook Hook) {
	i := b.indexOf(hook)
	if i < 0 {
		return
	}

	b.attached = append(b.attached[:i:i], b.attached[i+1:]...)
}

func (b *HookableBase) indexOf(hook Hook) int {
	for i, h := range b.attached {
		if h == hook {
			return i
		}
	}

	return -1
}

// InvokeHook fires ctx on the hooks attached when the call starts. Hooks
// attached or removed by a hook take effect from the next firing.
func (b *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range b.attached {
		hook.Func(ctx)
	}
}

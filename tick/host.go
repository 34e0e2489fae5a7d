package tick

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/activation"
)

// IdleHandle identifies a registered idle callback.
type IdleHandle uint64

// IdleLoop runs callbacks when the host is idle outside of play mode.
type IdleLoop interface {
	// AddIdle registers fn and returns a handle to remove it.
	AddIdle(fn func()) IdleHandle

	// RemoveIdle unregisters a callback and reports whether it was there.
	RemoveIdle(h IdleHandle) bool
}

type idleEntry struct {
	handle IdleHandle
	fn     func()
}

// A Host drives a tick tree frame by frame. It stands in for the engine that
// owns the tree: it keeps the frame count and the scaled clock, switches
// between play and edit mode, and pumps the main-thread dispatcher. All
// methods except Run's stop path must be called from the goroutine that steps
// the host.
type Host struct {
	*PlayerLoop

	logger     *zap.Logger
	dispatcher *activation.MainThreadDispatcher

	frameDelta time.Duration
	timeScale  float64
	frame      uint64
	now        time.Duration
	playing    bool
	started    bool

	idle       []idleEntry
	nextHandle IdleHandle

	behaviours map[Tag][]func()

	playModeListeners   []func(playing bool)
	mainThreadListeners []func(d activation.Dispatcher)
}

// FrameCount returns the number of the frame being processed. The first
// frame is 0.
func (h *Host) FrameCount() uint64 {
	return h.frame
}

// Now returns the scaled time since the host started.
func (h *Host) Now() time.Duration {
	return h.now
}

// FrameDelta returns the unscaled time between frames.
func (h *Host) FrameDelta() time.Duration {
	return h.frameDelta
}

// Dispatcher returns the dispatcher pumped by the host.
func (h *Host) Dispatcher() *activation.MainThreadDispatcher {
	return h.dispatcher
}

// IsPlaying tells if the host is simulating, which is when the tick tree
// runs.
func (h *Host) IsPlaying() bool {
	return h.playing
}

// SetPlaying switches between play and edit mode and notifies listeners on
// change.
func (h *Host) SetPlaying(playing bool) {
	if h.playing == playing {
		return
	}

	h.playing = playing
	h.logger.Info("play mode changed", zap.Bool("playing", playing))

	for _, l := range h.playModeListeners {
		l(playing)
	}
}

// OnPlayModeChanged registers a listener for play mode changes.
func (h *Host) OnPlayModeChanged(fn func(playing bool)) {
	h.playModeListeners = append(h.playModeListeners, fn)
}

// OnMainThreadReady registers a listener called once the host knows its main
// goroutine. Listeners added after that are called immediately.
func (h *Host) OnMainThreadReady(fn func(d activation.Dispatcher)) {
	if h.started {
		fn(h.dispatcher)
		return
	}

	h.mainThreadListeners = append(h.mainThreadListeners, fn)
}

// AddBehaviour attaches a script callback to a script-run leaf of the tree.
func (h *Host) AddBehaviour(leaf Tag, fn func()) {
	h.behaviours[leaf] = append(h.behaviours[leaf], fn)
}

// AddIdle registers an idle callback.
func (h *Host) AddIdle(fn func()) IdleHandle {
	h.nextHandle++
	h.idle = append(h.idle, idleEntry{handle: h.nextHandle, fn: fn})

	return h.nextHandle
}

// RemoveIdle unregisters an idle callback.
func (h *Host) RemoveIdle(handle IdleHandle) bool {
	for i, e := range h.idle {
		if e.handle == handle {
			idle := make([]idleEntry, 0, len(h.idle)-1)
			idle = append(idle, h.idle[:i]...)
			h.idle = append(idle, h.idle[i+1:]...)

			return true
		}
	}

	return false
}

// NumIdle returns the number of idle callbacks.
func (h *Host) NumIdle() int {
	return len(h.idle)
}

// Step processes one frame. The first call captures the calling goroutine
// as the main goroutine. Posted actions run first; then the tick tree runs in
// play mode, or the idle callbacks in edit mode.
func (h *Host) Step() {
	if !h.started {
		h.start()
	}

	h.dispatcher.Drain()

	if h.playing {
		Walk(h.Root(), h.visit)
	} else {
		h.runIdle()
	}

	h.frame++
	h.now += time.Duration(float64(h.frameDelta) * h.timeScale)
}

// StepN processes n frames.
func (h *Host) StepN(n int) {
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// Run steps the host once per frame delta until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.frameDelta)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Step()
		}
	}
}

func (h *Host) start() {
	h.started = true
	h.dispatcher.Capture()

	for _, l := range h.mainThreadListeners {
		l(h.dispatcher)
	}

	h.mainThreadListeners = nil
}

func (h *Host) runIdle() {
	idle := make([]idleEntry, len(h.idle))
	copy(idle, h.idle)

	for _, e := range idle {
		h.guard("idle", e.fn)
	}
}

func (h *Host) visit(n *Node) {
	if n.Update != nil {
		h.guard(string(n.Tag), n.Update)
	}
}

func (h *Host) runScripts(leaf Tag) {
	for _, fn := range h.behaviours[leaf] {
		h.guard(string(leaf), fn)
	}
}

func (h *Host) guard(site string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("tick callback failed",
				zap.String("site", site),
				zap.Uint64("frame", h.frame),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	fn()
}

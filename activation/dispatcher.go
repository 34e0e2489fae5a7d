// Package activation handles work that must run on the host's main goroutine,
// including proxies that have to rejoin scheduling once that goroutine is
// known.
package activation

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

// A Dispatcher runs actions on the goroutine that owns the scheduler.
type Dispatcher interface {
	// Post queues an action. It never runs the action on the caller's stack
	// unless the implementation is synchronous by definition.
	Post(action func())
}

// SyncDispatcher runs every posted action immediately on the calling
// goroutine. It is meant for tests and tools that drive the scheduler by hand.
type SyncDispatcher struct{}

// Post runs action.
func (SyncDispatcher) Post(action func()) {
	action()
}

// MainThreadDispatcher queues actions until the main goroutine drains them.
// Post may be called from any goroutine; Drain must only be called from the
// goroutine that called Capture.
type MainThreadDispatcher struct {
	lock   sync.Mutex
	queue  []func()
	logger *zap.Logger

	captured atomic.Bool
	gid      atomic.Int64
}

// NewMainThreadDispatcher creates a dispatcher that is not captured yet.
func NewMainThreadDispatcher() *MainThreadDispatcher {
	return &MainThreadDispatcher{logger: zap.NewNop()}
}

// WithLogger sets the logger used to report failing actions.
func (d *MainThreadDispatcher) WithLogger(l *zap.Logger) *MainThreadDispatcher {
	d.logger = l
	return d
}

// Capture binds the dispatcher to the calling goroutine. Only the first call
// has an effect; it returns true when this call performed the capture.
func (d *MainThreadDispatcher) Capture() bool {
	if !d.captured.CompareAndSwap(false, true) {
		return false
	}

	d.gid.Store(goid.Get())

	return true
}

// IsCaptured tells if the main goroutine is known.
func (d *MainThreadDispatcher) IsCaptured() bool {
	return d.captured.Load()
}

// OnMainThread tells if the caller runs on the captured goroutine.
func (d *MainThreadDispatcher) OnMainThread() bool {
	return d.captured.Load() && d.gid.Load() == goid.Get()
}

// Post queues an action for the next Drain.
func (d *MainThreadDispatcher) Post(action func()) {
	d.lock.Lock()
	d.queue = append(d.queue, action)
	d.lock.Unlock()
}

// Pending returns the number of queued actions.
func (d *MainThreadDispatcher) Pending() int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return len(d.queue)
}

// Drain runs all actions queued so far and returns how many ran. Actions
// posted while draining run on the next call.
func (d *MainThreadDispatcher) Drain() int {
	d.lock.Lock()
	actions := d.queue
	d.queue = nil
	d.lock.Unlock()

	for _, action := range actions {
		d.run(action)
	}

	return len(actions)
}

func (d *MainThreadDispatcher) run(action func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatched action failed",
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"))
		}
	}()

	action()
}

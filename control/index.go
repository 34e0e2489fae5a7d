// Package control indexes bindings by the controller object they reference so
// that gameplay code can refresh, pause or resume all of them at once.
package control

import (
	"fmt"

	"go.uber.org/zap"
)

// A Bind is a binding that can be driven by a controller.
type Bind interface {
	// ID returns the stable identity of the binding.
	ID() int

	// UpdateNow runs a full source-to-target update and reports whether a
	// value was transferred.
	UpdateNow() bool

	// SetPaused removes the binding from scheduling or brings it back.
	SetPaused(paused bool)
}

// A pendingOp is a Register or Unregister requested while a batch runs.
type pendingOp struct {
	add  bool
	path string
	bind Bind
}

type controllerEntry struct {
	paths map[string][]Bind
	order []string

	depth   int
	pending []pendingOp
}

func newControllerEntry() *controllerEntry {
	return &controllerEntry{paths: make(map[string][]Bind)}
}

func (c *controllerEntry) add(path string, b Bind) bool {
	binds, found := c.paths[path]
	if !found {
		c.order = append(c.order, path)
	}

	for _, existing := range binds {
		if existing.ID() == b.ID() {
			return false
		}
	}

	c.paths[path] = append(binds, b)

	return true
}

func (c *controllerEntry) remove(path string, b Bind) bool {
	binds, found := c.paths[path]
	if !found {
		return false
	}

	for i, existing := range binds {
		if existing.ID() != b.ID() {
			continue
		}

		kept := make([]Bind, 0, len(binds)-1)
		kept = append(kept, binds[:i]...)
		kept = append(kept, binds[i+1:]...)

		if len(kept) == 0 {
			c.dropPath(path)
		} else {
			c.paths[path] = kept
		}

		return true
	}

	return false
}

func (c *controllerEntry) dropPath(path string) {
	delete(c.paths, path)

	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

// selected returns the binds under the paths, each at most once. No paths
// selects every path.
func (c *controllerEntry) selected(paths []string) []Bind {
	if len(paths) == 0 {
		paths = c.order
	}

	seen := make(map[int]bool)
	var binds []Bind

	for _, p := range paths {
		for _, b := range c.paths[p] {
			if seen[b.ID()] {
				continue
			}

			seen[b.ID()] = true
			binds = append(binds, b)
		}
	}

	return binds
}

// Index maps controllers and paths to the binds that reference them. It is
// used from the main goroutine only.
//
// Controllers are map keys and must be comparable. Pass a pointer for
// controllers whose type holds slices, maps or funcs; such values panic on
// lookup.
type Index struct {
	controllers map[any]*controllerEntry
	logger      *zap.Logger
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		controllers: make(map[any]*controllerEntry),
		logger:      zap.NewNop(),
	}
}

// WithLogger sets the logger used to report failing binds.
func (x *Index) WithLogger(l *zap.Logger) *Index {
	x.logger = l
	return x
}

// Len returns the number of controllers that have binds.
func (x *Index) Len() int {
	return len(x.controllers)
}

// Controllers returns the controllers that have binds.
func (x *Index) Controllers() []any {
	controllers := make([]any, 0, len(x.controllers))
	for c := range x.controllers {
		controllers = append(controllers, c)
	}

	return controllers
}

// Paths returns the paths of a controller in first-registration order.
func (x *Index) Paths(controller any) []string {
	c := x.controllers[controller]
	if c == nil {
		return nil
	}

	return append([]string(nil), c.order...)
}

// Binds returns the binds under a path of a controller.
func (x *Index) Binds(controller any, path string) []Bind {
	c := x.controllers[controller]
	if c == nil {
		return nil
	}

	return append([]Bind(nil), c.paths[path]...)
}

// NumBinds returns the number of distinct binds of a controller.
func (x *Index) NumBinds(controller any) int {
	c := x.controllers[controller]
	if c == nil {
		return 0
	}

	return len(c.selected(nil))
}

// IsUpdating tells if a batch is running on the controller.
func (x *Index) IsUpdating(controller any) bool {
	c := x.controllers[controller]
	return c != nil && c.depth > 0
}

// Register adds a bind under a controller path. While a batch runs on the
// controller the change is logged and replayed, in request order, when the
// outermost batch ends.
func (x *Index) Register(controller any, path string, b Bind) {
	c := x.controllers[controller]
	if c == nil {
		c = newControllerEntry()
		x.controllers[controller] = c
	}

	if c.depth > 0 {
		c.pending = append(c.pending, pendingOp{add: true, path: path, bind: b})
		return
	}

	c.add(path, b)
}

// Unregister removes a bind from a controller path. The controller leaves the
// index once it has no paths. While a batch runs on the controller the change
// is logged and replayed, in request order, when the outermost batch ends.
func (x *Index) Unregister(controller any, path string, b Bind) {
	c := x.controllers[controller]
	if c == nil {
		return
	}

	if c.depth > 0 {
		c.pending = append(c.pending, pendingOp{path: path, bind: b})
		return
	}

	c.remove(path, b)
	x.prune(controller, c)
}

// UpdateAllBinds runs a full update on every bind of the controller and
// returns how many transferred a value.
func (x *Index) UpdateAllBinds(controller any) int {
	return x.UpdateBind(controller)
}

// UpdateBind runs a full update on the binds under the paths, each bind at
// most once, and returns how many transferred a value. No paths selects
// every bind of the controller.
func (x *Index) UpdateBind(controller any, paths ...string) int {
	updated := 0

	x.batch(controller, paths, func(b Bind) {
		if x.updateBind(controller, b) {
			updated++
		}
	})

	return updated
}

// ClearAllBinds removes the controller and all its binds. It returns the
// number of distinct binds removed; a bind under several paths counts once.
func (x *Index) ClearAllBinds(controller any) int {
	c := x.controllers[controller]
	if c == nil {
		return 0
	}

	n := len(c.selected(nil))

	for _, p := range append([]string(nil), c.order...) {
		for _, b := range append([]Bind(nil), c.paths[p]...) {
			x.Unregister(controller, p, b)
		}
	}

	return n
}

// PauseAllBinds pauses every bind of the controller.
func (x *Index) PauseAllBinds(controller any) int {
	return x.setPaused(controller, nil, true)
}

// ResumeAllBinds resumes every bind of the controller.
func (x *Index) ResumeAllBinds(controller any) int {
	return x.setPaused(controller, nil, false)
}

// PauseBind pauses the binds under the paths.
func (x *Index) PauseBind(controller any, paths ...string) int {
	if len(paths) == 0 {
		return 0
	}

	return x.setPaused(controller, paths, true)
}

// ResumeBind resumes the binds under the paths.
func (x *Index) ResumeBind(controller any, paths ...string) int {
	if len(paths) == 0 {
		return 0
	}

	return x.setPaused(controller, paths, false)
}

func (x *Index) setPaused(controller any, paths []string, paused bool) int {
	n := 0

	x.batch(controller, paths, func(b Bind) {
		b.SetPaused(paused)
		n++
	})

	return n
}

func (x *Index) batch(controller any, paths []string, fn func(b Bind)) {
	c := x.controllers[controller]
	if c == nil {
		return
	}

	c.depth++
	defer x.endBatch(controller, c)

	for _, b := range c.selected(paths) {
		fn(b)
	}
}

func (x *Index) endBatch(controller any, c *controllerEntry) {
	c.depth--
	if c.depth > 0 {
		return
	}

	ops := c.pending
	c.pending = nil

	for _, op := range ops {
		if op.add {
			c.add(op.path, op.bind)
		} else {
			c.remove(op.path, op.bind)
		}
	}

	x.prune(controller, c)
}

func (x *Index) prune(controller any, c *controllerEntry) {
	if c.depth == 0 && len(c.paths) == 0 && x.controllers[controller] == c {
		delete(x.controllers, controller)
	}
}

func (x *Index) updateBind(controller any, b Bind) (updated bool) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("controller bind update failed",
				zap.String("controller", fmt.Sprintf("%T", controller)),
				zap.Int("bind_id", b.ID()),
				zap.String("panic", fmt.Sprint(r)))

			updated = false
		}
	}()

	return b.UpdateNow()
}

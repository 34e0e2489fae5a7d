package binding

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// A Proxy moves a value between a source on another object and a local
// target, converting and modifying it in transit. It is scheduled by a
// Context and can be driven by a controller.
type Proxy struct {
	ctx  *Context
	id   int
	name string

	source    Accessor
	target    Accessor
	converter Converter
	inverse   InverseConverter
	modifiers []Modifier

	flags         UpdateFlags
	mode          Mode
	frameInterval int
	timeInterval  time.Duration
	keepAlive     bool
	owner         func() bool

	controller any
	path       string

	enabled   bool
	paused    bool
	destroyed bool

	synced    bool
	lastLocal any
}

// ID returns the identity of the proxy.
func (p *Proxy) ID() int {
	return p.id
}

// Mode returns the direction values travel in.
func (p *Proxy) Mode() Mode {
	return p.mode
}

// Flags returns the phases the proxy runs in.
func (p *Proxy) Flags() UpdateFlags {
	return p.flags
}

// Controller returns the controller and path the proxy is indexed under.
func (p *Proxy) Controller() (any, string) {
	return p.controller, p.path
}

// IsEnabled tells if the proxy was enabled and not disabled since.
func (p *Proxy) IsEnabled() bool {
	return p.enabled
}

// IsPaused tells if the proxy was paused.
func (p *Proxy) IsPaused() bool {
	return p.paused
}

// IsAlive tells if the proxy and its owner still exist.
func (p *Proxy) IsAlive() bool {
	return !p.destroyed && (p.owner == nil || p.owner())
}

func (p *Proxy) String() string {
	if p.path == "" {
		return fmt.Sprintf("%s#%d", p.name, p.id)
	}

	return fmt.Sprintf("%s#%d(%s)", p.name, p.id, p.path)
}

// Run transfers the value once. It is called by the scheduler.
func (p *Proxy) Run() {
	p.UpdateNow()
}

// UpdateNow transfers the value once and reports whether it succeeded.
// Failures are logged.
func (p *Proxy) UpdateNow() bool {
	if !p.IsAlive() {
		return false
	}

	if err := p.transfer(); err != nil {
		p.ctx.logger.Warn("binding update failed",
			zap.Int("id", p.id),
			zap.Stringer("proxy", p),
			zap.Stringer("mode", p.mode),
			zap.Error(err))

		return false
	}

	return true
}

func (p *Proxy) transfer() error {
	switch p.mode {
	case Write:
		return p.write()
	case ReadWrite:
		return p.sync()
	default:
		return p.read()
	}
}

func (p *Proxy) read() error {
	v, err := p.source.Get()
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	if p.converter != nil {
		if v, err = p.converter.Convert(v); err != nil {
			return fmt.Errorf("convert: %w", err)
		}
	}

	for i, m := range p.modifiers {
		if v, err = m.Modify(v); err != nil {
			return fmt.Errorf("modifier %d: %w", i, err)
		}
	}

	if err := p.target.Set(v); err != nil {
		return fmt.Errorf("write target: %w", err)
	}

	return nil
}

func (p *Proxy) write() error {
	v, err := p.target.Get()
	if err != nil {
		return fmt.Errorf("read target: %w", err)
	}

	if p.converter != nil {
		if p.inverse == nil {
			return ErrNoInverse
		}

		if v, err = p.inverse.ConvertBack(v); err != nil {
			return fmt.Errorf("convert back: %w", err)
		}
	}

	if err := p.source.Set(v); err != nil {
		return fmt.Errorf("write source: %w", err)
	}

	return nil
}

// sync writes the local value back when it changed since the last transfer
// and reads the source otherwise.
func (p *Proxy) sync() error {
	local, err := p.target.Get()
	if err != nil {
		return fmt.Errorf("read target: %w", err)
	}

	if p.synced && !reflect.DeepEqual(local, p.lastLocal) {
		err = p.write()
	} else {
		err = p.read()
	}

	if err != nil {
		return err
	}

	if p.lastLocal, err = p.target.Get(); err != nil {
		return fmt.Errorf("read target: %w", err)
	}

	p.synced = true

	return nil
}

// Enable schedules the proxy and indexes it under its controller.
func (p *Proxy) Enable() {
	if p.destroyed || p.enabled {
		return
	}

	p.enabled = true

	if p.controller != nil {
		p.ctx.controls.Register(p.controller, p.path, p)
	}

	if !p.paused {
		p.register()
	}
}

// Disable removes the proxy from scheduling. A proxy kept alive when
// disabled is queued to be scheduled again on the main goroutine.
func (p *Proxy) Disable() {
	if !p.enabled {
		return
	}

	p.enabled = false
	p.ctx.Unregister(p.id)

	if p.keepAlive {
		p.ctx.RegisterDisabledProxy(p)
	}
}

// SetPaused removes the proxy from scheduling or brings it back. The proxy
// stays indexed under its controller.
func (p *Proxy) SetPaused(paused bool) {
	p.paused = paused

	if paused {
		p.ctx.Unregister(p.id)
		return
	}

	if p.destroyed || (!p.enabled && !p.keepAlive) {
		return
	}

	p.register()
}

// Destroy removes the proxy from scheduling and from its controller for good.
func (p *Proxy) Destroy() {
	if p.destroyed {
		return
	}

	p.destroyed = true
	p.enabled = false
	p.ctx.Unregister(p.id)

	if p.controller != nil {
		p.ctx.controls.Unregister(p.controller, p.path, p)
	}
}

// NeedsReactivation tells if a disabled proxy still wants to be scheduled.
func (p *Proxy) NeedsReactivation() bool {
	return p.keepAlive && !p.paused && !p.enabled &&
		!p.ctx.IsRegistered(p.id)
}

// Reactivate schedules a disabled proxy again.
func (p *Proxy) Reactivate() {
	if !p.IsAlive() {
		return
	}

	p.register()
}

func (p *Proxy) register() {
	p.ctx.Register(p, Schedule{
		Flags:         p.flags,
		Mode:          p.mode,
		FrameInterval: p.frameInterval,
		TimeInterval:  p.timeInterval,
		Context:       p,
		OnRemove:      p.removed,
	})
}

func (p *Proxy) removed() {
	if p.IsAlive() || p.controller == nil {
		return
	}

	p.ctx.controls.Unregister(p.controller, p.path, p)
}

package binding

import "time"

// A ProxyBuilder can build proxies.
type ProxyBuilder struct {
	name          string
	source        Accessor
	target        Accessor
	converter     Converter
	inverse       InverseConverter
	modifiers     []Modifier
	flags         UpdateFlags
	mode          Mode
	frameInterval int
	timeInterval  time.Duration
	keepAlive     bool
	owner         func() bool
	controller    any
	path          string
}

// MakeProxyBuilder creates a builder for reading proxies that run in Update.
func MakeProxyBuilder() ProxyBuilder {
	return ProxyBuilder{
		name:  "Proxy",
		flags: OnUpdate,
		mode:  Read,
	}
}

// WithName sets the name used in logs.
func (b ProxyBuilder) WithName(name string) ProxyBuilder {
	b.name = name
	return b
}

// WithSource sets the value the proxy binds to.
func (b ProxyBuilder) WithSource(a Accessor) ProxyBuilder {
	b.source = a
	return b
}

// WithTarget sets the local value.
func (b ProxyBuilder) WithTarget(a Accessor) ProxyBuilder {
	b.target = a
	return b
}

// WithConverter sets the converter. If it also implements InverseConverter,
// it is used for writing back.
func (b ProxyBuilder) WithConverter(c Converter) ProxyBuilder {
	b.converter = c
	if inv, ok := c.(InverseConverter); ok && b.inverse == nil {
		b.inverse = inv
	}

	return b
}

// WithInverseConverter sets the converter used for writing back.
func (b ProxyBuilder) WithInverseConverter(c InverseConverter) ProxyBuilder {
	b.inverse = c
	return b
}

// WithModifiers appends modifiers applied after conversion.
func (b ProxyBuilder) WithModifiers(m ...Modifier) ProxyBuilder {
	b.modifiers = append(append([]Modifier(nil), b.modifiers...), m...)
	return b
}

// WithFlags sets the phases the proxy runs in.
func (b ProxyBuilder) WithFlags(f UpdateFlags) ProxyBuilder {
	b.flags = f
	return b
}

// WithMode sets the direction values travel in.
func (b ProxyBuilder) WithMode(m Mode) ProxyBuilder {
	b.mode = m
	return b
}

// WithFrameInterval runs the proxy every n frames.
func (b ProxyBuilder) WithFrameInterval(n int) ProxyBuilder {
	b.frameInterval = n
	return b
}

// WithTimeInterval runs the proxy at most once per interval of scaled time.
func (b ProxyBuilder) WithTimeInterval(d time.Duration) ProxyBuilder {
	b.timeInterval = d
	return b
}

// WithKeepAliveWhenDisabled keeps the proxy scheduled after it is disabled.
func (b ProxyBuilder) WithKeepAliveWhenDisabled(keep bool) ProxyBuilder {
	b.keepAlive = keep
	return b
}

// WithOwner sets a liveness check for the object owning the proxy.
func (b ProxyBuilder) WithOwner(alive func() bool) ProxyBuilder {
	b.owner = alive
	return b
}

// WithController indexes the proxy under a controller path.
func (b ProxyBuilder) WithController(controller any, path string) ProxyBuilder {
	b.controller = controller
	b.path = path

	return b
}

func (b ProxyBuilder) parametersMustBeValid() {
	if b.source == nil {
		panic("source accessor is required")
	}

	if b.target == nil {
		panic("target accessor is required")
	}

	if b.frameInterval < 0 {
		panic("frame interval cannot be negative")
	}

	if b.timeInterval < 0 {
		panic("time interval cannot be negative")
	}
}

// Build creates a disabled proxy scheduled by ctx.
func (b ProxyBuilder) Build(ctx *Context) *Proxy {
	b.parametersMustBeValid()

	return &Proxy{
		ctx:           ctx,
		id:            ctx.NextID(),
		name:          b.name,
		source:        b.source,
		target:        b.target,
		converter:     b.converter,
		inverse:       b.inverse,
		modifiers:     b.modifiers,
		flags:         b.flags,
		mode:          b.mode,
		frameInterval: b.frameInterval,
		timeInterval:  b.timeInterval,
		keepAlive:     b.keepAlive,
		owner:         b.owner,
		controller:    b.controller,
		path:          b.path,
	}
}

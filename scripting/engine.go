// Package scripting lets Lua scripts declare bindings, drive controllers and
// attach per-frame behaviours to a host.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/binding"
	"github.com/sarchlab/bindengine/tick"
)

// Host is what scripts can hook per-frame behaviours into.
type Host interface {
	AddBehaviour(leaf tick.Tag, fn func())
	FrameCount() uint64
}

// A Controller is a named object that owns bindings. Destroying it ends
// every binding it owns.
type Controller struct {
	name      string
	destroyed bool
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// IsAlive tells if the controller has not been destroyed.
func (c *Controller) IsAlive() bool {
	return !c.destroyed
}

// Engine wraps a single gopher-lua VM. Scripts and the callbacks they
// register run on the goroutine that steps the host.
type Engine struct {
	vm   *lua.LState
	log  *zap.Logger
	ctx  *binding.Context
	host Host

	vars        map[string]*binding.Variable
	controllers map[string]*Controller
	proxies     map[int]*binding.Proxy
}

// NewEngine creates a Lua engine whose bindings are scheduled by ctx.
func NewEngine(ctx *binding.Context, host Host, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		vm:          lua.NewState(),
		log:         log,
		ctx:         ctx,
		host:        host,
		vars:        make(map[string]*binding.Variable),
		controllers: make(map[string]*Controller),
		proxies:     make(map[int]*binding.Proxy),
	}

	e.vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e.register()

	return e
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// LoadDir runs every .lua file of a directory in name order. A missing
// directory is not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}

	return nil
}

// LoadString runs a chunk of Lua source.
func (e *Engine) LoadString(name, src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}

	return nil
}

// Variable returns a variable declared by scripts.
func (e *Engine) Variable(name string) (*binding.Variable, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Controller returns a controller referenced by scripts.
func (e *Engine) Controller(name string) (*Controller, bool) {
	c, ok := e.controllers[name]
	return c, ok
}

// Proxy returns a binding declared by scripts.
func (e *Engine) Proxy(id int) (*binding.Proxy, bool) {
	p, ok := e.proxies[id]
	return p, ok
}

// Proxies returns the bindings declared by scripts, by id.
func (e *Engine) Proxies() []*binding.Proxy {
	ids := make([]int, 0, len(e.proxies))
	for id := range e.proxies {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	proxies := make([]*binding.Proxy, 0, len(ids))
	for _, id := range ids {
		proxies = append(proxies, e.proxies[id])
	}

	return proxies
}

func (e *Engine) register() {
	funcs := map[string]lua.LGFunction{
		"var":             e.luaVar,
		"get":             e.luaGet,
		"set":             e.luaSet,
		"frame":           e.luaFrame,
		"bind":            e.luaBind,
		"enable":          e.proxyOp(func(p *binding.Proxy) { p.Enable() }),
		"disable":         e.proxyOp(func(p *binding.Proxy) { p.Disable() }),
		"unbind":          e.proxyOp(func(p *binding.Proxy) { p.Destroy() }),
		"destroy":         e.luaDestroy,
		"on_update":       e.behaviour(tick.TagScriptRunUpdate),
		"on_late_update":  e.behaviour(tick.TagScriptRunLateUpdate),
		"on_fixed_update": e.behaviour(tick.TagScriptRunFixedUpdate),
		"update_all":      e.controllerOp(e.ctx.UpdateAllBinds),
		"clear_all":       e.controllerOp(e.ctx.ClearAllBinds),
		"pause_all":       e.controllerOp(e.ctx.PauseAllBinds),
		"resume_all":      e.controllerOp(e.ctx.ResumeAllBinds),
		"update_bind":     e.pathsOp(e.ctx.UpdateBind),
		"pause_bind":      e.pathsOp(e.ctx.PauseBind),
		"resume_bind":     e.pathsOp(e.ctx.ResumeBind),
	}

	for name, fn := range funcs {
		e.vm.SetGlobal(name, e.vm.NewFunction(fn))
	}
}

func (e *Engine) controller(name string) *Controller {
	c, ok := e.controllers[name]
	if !ok {
		c = &Controller{name: name}
		e.controllers[name] = c
	}

	return c
}

// var(name, initial) declares a variable. Declaring it again keeps the
// current value.
func (e *Engine) luaVar(L *lua.LState) int {
	name := L.CheckString(1)

	if _, ok := e.vars[name]; !ok {
		e.vars[name] = &binding.Variable{Value: fromLua(L.Get(2))}
	}

	L.Push(lua.LString(name))

	return 1
}

func (e *Engine) mustVar(L *lua.LState, name string) *binding.Variable {
	v, ok := e.vars[name]
	if !ok {
		L.RaiseError("unknown variable %q", name)
	}

	return v
}

func (e *Engine) luaGet(L *lua.LState) int {
	v := e.mustVar(L, L.CheckString(1))
	L.Push(toLua(v.Value))

	return 1
}

func (e *Engine) luaSet(L *lua.LState) int {
	v := e.mustVar(L, L.CheckString(1))
	v.Value = fromLua(L.Get(2))

	return 0
}

func (e *Engine) luaFrame(L *lua.LState) int {
	L.Push(lua.LNumber(e.host.FrameCount()))
	return 1
}

// bind{...} declares a binding and enables it unless enabled = false. It
// returns the binding id.
func (e *Engine) luaBind(L *lua.LState) int {
	t := L.CheckTable(1)

	b := binding.MakeProxyBuilder().
		WithName(optString(t, "name", "lua")).
		WithSource(e.mustVar(L, checkField(L, t, "source"))).
		WithTarget(e.mustVar(L, checkField(L, t, "target"))).
		WithKeepAliveWhenDisabled(t.RawGetString("keep_alive") == lua.LTrue)

	flags, ok := binding.ParseUpdateFlags(optString(t, "flags", "OnUpdate"))
	if !ok {
		L.RaiseError("invalid flags %q", optString(t, "flags", ""))
	}
	b = b.WithFlags(flags)

	mode, ok := binding.ParseMode(optString(t, "mode", "Read"))
	if !ok {
		L.RaiseError("invalid mode %q", optString(t, "mode", ""))
	}
	b = b.WithMode(mode)

	if n, ok := t.RawGetString("frame_interval").(lua.LNumber); ok {
		if n < 0 {
			L.RaiseError("frame_interval cannot be negative")
		}
		b = b.WithFrameInterval(int(n))
	}

	if d := e.timeInterval(L, t.RawGetString("time_interval")); d > 0 {
		b = b.WithTimeInterval(d)
	}

	if fn, ok := t.RawGetString("convert").(*lua.LFunction); ok {
		b = b.WithConverter(binding.ConverterFunc(e.caller(fn)))
	}

	if fn, ok := t.RawGetString("convert_back").(*lua.LFunction); ok {
		b = b.WithInverseConverter(binding.InverseConverterFunc(e.caller(fn)))
	}

	if mods, ok := t.RawGetString("modifiers").(*lua.LTable); ok {
		var modifiers []binding.Modifier
		mods.ForEach(func(_, v lua.LValue) {
			if fn, ok := v.(*lua.LFunction); ok {
				modifiers = append(modifiers, binding.ModifierFunc(e.caller(fn)))
			}
		})
		b = b.WithModifiers(modifiers...)
	}

	if name := optString(t, "controller", ""); name != "" {
		c := e.controller(name)
		b = b.WithController(c, optString(t, "path", "")).WithOwner(c.IsAlive)
	}

	p := b.Build(e.ctx)
	e.proxies[p.ID()] = p

	if t.RawGetString("enabled") != lua.LFalse {
		p.Enable()
	}

	L.Push(lua.LNumber(p.ID()))

	return 1
}

// time_interval accepts a duration string such as "250ms" or seconds.
func (e *Engine) timeInterval(L *lua.LState, v lua.LValue) time.Duration {
	switch v := v.(type) {
	case lua.LString:
		d, err := time.ParseDuration(string(v))
		if err != nil || d < 0 {
			L.RaiseError("invalid time_interval %q", string(v))
		}
		return d
	case lua.LNumber:
		if v < 0 {
			L.RaiseError("time_interval cannot be negative")
		}
		return time.Duration(float64(v) * float64(time.Second))
	default:
		return 0
	}
}

// caller turns a Lua function of one value into a Go transform.
func (e *Engine) caller(fn *lua.LFunction) func(v any) (any, error) {
	return func(v any) (any, error) {
		if err := e.vm.CallByParam(lua.P{
			Fn:      fn,
			NRet:    1,
			Protect: true,
		}, toLua(v)); err != nil {
			return nil, err
		}

		ret := e.vm.Get(-1)
		e.vm.Pop(1)

		return fromLua(ret), nil
	}
}

func (e *Engine) behaviour(leaf tick.Tag) lua.LGFunction {
	return func(L *lua.LState) int {
		fn := L.CheckFunction(1)

		e.host.AddBehaviour(leaf, func() {
			if err := e.vm.CallByParam(lua.P{
				Fn:      fn,
				NRet:    0,
				Protect: true,
			}, lua.LNumber(e.host.FrameCount())); err != nil {
				e.log.Error("lua behaviour error",
					zap.String("leaf", string(leaf)),
					zap.Error(err))
			}
		})

		return 0
	}
}

func (e *Engine) proxyOp(op func(p *binding.Proxy)) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckInt(1)

		p, ok := e.proxies[id]
		if !ok {
			L.RaiseError("unknown binding %d", id)
		}

		op(p)

		return 0
	}
}

func (e *Engine) controllerOp(op func(controller any) int) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LNumber(op(e.controller(L.CheckString(1)))))
		return 1
	}
}

func (e *Engine) pathsOp(
	op func(controller any, paths ...string) int,
) lua.LGFunction {
	return func(L *lua.LState) int {
		c := e.controller(L.CheckString(1))

		var paths []string
		for i := 2; i <= L.GetTop(); i++ {
			paths = append(paths, L.CheckString(i))
		}

		L.Push(lua.LNumber(op(c, paths...)))

		return 1
	}
}

// destroy(name) destroys a controller. Its bindings die and leave the
// scheduler on their next sweep.
func (e *Engine) luaDestroy(L *lua.LState) int {
	e.controller(L.CheckString(1)).destroyed = true
	return 0
}

func checkField(L *lua.LState, t *lua.LTable, key string) string {
	s, ok := t.RawGetString(key).(lua.LString)
	if !ok {
		L.RaiseError("bind: %s is required", key)
	}

	return string(s)
}

func optString(t *lua.LTable, key, def string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}

	return def
}

func fromLua(v lua.LValue) any {
	switch v := v.(type) {
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case lua.LBool:
		return bool(v)
	case *lua.LNilType:
		return nil
	default:
		return v
	}
}

func toLua(v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case float64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

package scripting

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bindengine/binding"
	"github.com/sarchlab/bindengine/tick"
)

var _ = Describe("Engine", func() {
	var (
		host   *tick.Host
		ctx    *binding.Context
		engine *Engine
	)

	value := func(name string) any {
		v, ok := engine.Variable(name)
		Expect(ok).To(BeTrue())
		return v.Value
	}

	BeforeEach(func() {
		host = tick.MakeBuilder().WithPlaying(true).Build()
		ctx = binding.MakeBuilder().Build(host)
		engine = NewEngine(ctx, host, nil)
	})

	AfterEach(func() {
		engine.Close()
	})

	It("should declare a binding that converts on update", func() {
		err := engine.LoadString("hud", `
var("hp", 100)
var("bar", 0)
bind{
  name = "hp_bar",
  source = "hp",
  target = "bar",
  flags = "OnUpdate",
  convert = function(v) return v / 100 end,
}
`)
		Expect(err).NotTo(HaveOccurred())

		host.Step()

		Expect(value("bar")).To(Equal(1.0))
		Expect(engine.Proxies()).To(HaveLen(1))
		Expect(ctx.Len()).To(Equal(1))
	})

	It("should run behaviours after the reading bindings of a phase", func() {
		err := engine.LoadString("hud", `
var("hp", 100)
var("bar", 0)
bind{ source = "hp", target = "bar" }
on_update(function(frame) set("hp", get("hp") - 10) end)
`)
		Expect(err).NotTo(HaveOccurred())

		host.Step()
		Expect(value("bar")).To(Equal(100.0))
		Expect(value("hp")).To(Equal(90.0))

		host.Step()
		Expect(value("bar")).To(Equal(90.0))
	})

	It("should write back through convert_back", func() {
		err := engine.LoadString("slider", `
var("volume", 0)
var("slider", 5)
bind{
  source = "volume",
  target = "slider",
  mode = "Write",
  convert = function(v) return v * 10 end,
  convert_back = function(v) return v / 10 end,
}
`)
		Expect(err).NotTo(HaveOccurred())

		host.Step()

		Expect(value("volume")).To(Equal(0.5))
		stage, ok := ctx.StageOf(engine.Proxies()[0].ID())
		Expect(ok).To(BeTrue())
		Expect(stage).To(Equal(binding.StageUpdateAfter))
	})

	It("should apply modifiers in order", func() {
		err := engine.LoadString("mods", `
var("a", 1)
var("b", 0)
bind{
  source = "a",
  target = "b",
  modifiers = {
    function(v) return v + 1 end,
    function(v) return v * 3 end,
  },
}
`)
		Expect(err).NotTo(HaveOccurred())

		host.Step()

		Expect(value("b")).To(Equal(6.0))
	})

	It("should honour frame intervals", func() {
		err := engine.LoadString("interval", `
var("n", 0)
var("copy", -1)
bind{ source = "n", target = "copy", frame_interval = 2 }
on_update(function() set("n", get("n") + 1) end)
`)
		Expect(err).NotTo(HaveOccurred())

		host.Step()
		Expect(value("copy")).To(Equal(0.0))

		host.Step()
		Expect(value("copy")).To(Equal(0.0))

		host.Step()
		Expect(value("copy")).To(Equal(2.0))
	})

	It("should drive bindings through their controller", func() {
		err := engine.LoadString("ctrl", `
var("hp", 100)
var("bar", 0)
bind{ source = "hp", target = "bar", controller = "hud", path = "hp" }
`)
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.LoadString("pause", `paused = pause_all("hud")`)).
			To(Succeed())
		Expect(engine.vm.GetGlobal("paused")).To(BeEquivalentTo(1))

		host.Step()
		Expect(value("bar")).To(Equal(0.0))

		Expect(engine.LoadString("refresh", `refreshed = update_bind("hud", "hp")`)).
			To(Succeed())
		Expect(engine.vm.GetGlobal("refreshed")).To(BeEquivalentTo(1))
		Expect(value("bar")).To(Equal(100.0))

		Expect(engine.LoadString("resume", `resume_all("hud")`)).To(Succeed())
		Expect(ctx.Len()).To(Equal(1))
	})

	It("should end bindings of a destroyed controller", func() {
		err := engine.LoadString("ctrl", `
var("hp", 100)
var("bar", 0)
bind{ source = "hp", target = "bar", controller = "hud" }
destroy("hud")
`)
		Expect(err).NotTo(HaveOccurred())

		host.Step()

		Expect(ctx.Len()).To(Equal(0))
		c, ok := engine.Controller("hud")
		Expect(ok).To(BeTrue())
		Expect(c.IsAlive()).To(BeFalse())
		Expect(ctx.Controls().Len()).To(Equal(0))
	})

	It("should keep a disabled binding out of the scheduler", func() {
		err := engine.LoadString("off", `
var("a", 1)
var("b", 0)
id = bind{ source = "a", target = "b", enabled = false }
`)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.Len()).To(Equal(0))

		Expect(engine.LoadString("on", `enable(id)`)).To(Succeed())
		host.Step()
		Expect(value("b")).To(Equal(1.0))

		Expect(engine.LoadString("unbind", `unbind(id)`)).To(Succeed())
		Expect(ctx.Len()).To(Equal(0))
	})

	It("should log converter errors and keep the binding", func() {
		err := engine.LoadString("bad", `
var("a", 1)
var("b", 0)
bind{ source = "a", target = "b", convert = function(v) error("boom") end }
`)
		Expect(err).NotTo(HaveOccurred())

		host.Step()

		Expect(value("b")).To(Equal(0.0))
		Expect(ctx.Len()).To(Equal(1))
	})

	DescribeTable("should reject invalid declarations",
		func(src string) {
			Expect(engine.LoadString("bad", src)).NotTo(Succeed())
			Expect(ctx.Len()).To(Equal(0))
		},
		Entry("unknown source", `var("b", 0) bind{ source = "a", target = "b" }`),
		Entry("missing target", `var("a", 0) bind{ source = "a" }`),
		Entry("bad flags", `var("a", 0) bind{ source = "a", target = "a", flags = "Sometimes" }`),
		Entry("bad mode", `var("a", 0) bind{ source = "a", target = "a", mode = "Both" }`),
		Entry("bad interval", `var("a", 0) bind{ source = "a", target = "a", time_interval = "soon" }`),
		Entry("unknown binding", `enable(42)`),
	)

	It("should load every script of a directory", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "01_vars.lua"),
			[]byte(`var("x", 3) var("y", 0)`), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "02_binds.lua"),
			[]byte(`bind{ source = "x", target = "y", time_interval = "50ms" }`),
			0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"),
			[]byte(`not lua`), 0o600)).To(Succeed())

		Expect(engine.LoadDir(dir)).To(Succeed())
		host.Step()

		Expect(value("y")).To(Equal(3.0))
	})

	It("should ignore a missing directory", func() {
		Expect(engine.LoadDir(filepath.Join(GinkgoT().TempDir(), "none"))).
			To(Succeed())
	})
})

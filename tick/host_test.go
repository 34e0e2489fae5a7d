package tick

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bindengine/activation"
)

var _ = Describe("Host", func() {
	var host *Host

	BeforeEach(func() {
		host = MakeBuilder().
			WithFrameDelta(10 * time.Millisecond).
			WithTimeScale(2).
			Build()
	})

	It("should count frames and advance scaled time", func() {
		Expect(host.FrameCount()).To(Equal(uint64(0)))

		host.StepN(3)

		Expect(host.FrameCount()).To(Equal(uint64(3)))
		Expect(host.Now()).To(Equal(60 * time.Millisecond))
	})

	It("should run behaviours only in play mode", func() {
		ran := 0
		host.AddBehaviour(TagScriptRunUpdate, func() { ran++ })

		host.Step()
		Expect(ran).To(Equal(0))

		host.SetPlaying(true)
		host.Step()
		Expect(ran).To(Equal(1))
	})

	It("should run idle callbacks only in edit mode", func() {
		ran := 0
		handle := host.AddIdle(func() { ran++ })

		host.Step()
		host.SetPlaying(true)
		host.Step()
		Expect(ran).To(Equal(1))

		host.SetPlaying(false)
		Expect(host.RemoveIdle(handle)).To(BeTrue())
		Expect(host.RemoveIdle(handle)).To(BeFalse())
		host.Step()
		Expect(ran).To(Equal(1))
	})

	It("should notify play mode changes once per change", func() {
		var changes []bool
		host.OnPlayModeChanged(func(p bool) { changes = append(changes, p) })

		host.SetPlaying(true)
		host.SetPlaying(true)
		host.SetPlaying(false)

		Expect(changes).To(Equal([]bool{true, false}))
	})

	It("should announce the main thread on the first step", func() {
		var got activation.Dispatcher
		host.OnMainThreadReady(func(d activation.Dispatcher) { got = d })

		Expect(got).To(BeNil())
		host.Step()
		Expect(got).To(BeIdenticalTo(host.Dispatcher()))
		Expect(host.Dispatcher().OnMainThread()).To(BeTrue())

		late := false
		host.OnMainThreadReady(func(activation.Dispatcher) { late = true })
		Expect(late).To(BeTrue())
	})

	It("should drain posted actions before the tree runs", func() {
		var order []string
		host.SetPlaying(true)
		host.AddBehaviour(TagScriptRunUpdate, func() {
			order = append(order, "update")
		})
		host.Dispatcher().Post(func() { order = append(order, "posted") })

		host.Step()

		Expect(order).To(Equal([]string{"posted", "update"}))
	})

	It("should survive failing callbacks", func() {
		ran := false
		host.SetPlaying(true)
		host.AddBehaviour(TagScriptRunUpdate, func() { panic("boom") })
		host.AddBehaviour(TagScriptRunLateUpdate, func() { ran = true })

		Expect(func() { host.Step() }).NotTo(Panic())
		Expect(ran).To(BeTrue())
	})

	It("should run until the context is done", func() {
		ctx, cancel := context.WithTimeout(context.Background(),
			50*time.Millisecond)
		defer cancel()

		err := host.Run(ctx)

		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(host.FrameCount()).To(BeNumerically(">", 0))
	})

	It("should reject invalid parameters", func() {
		Expect(func() {
			MakeBuilder().WithFrameDelta(0).Build()
		}).To(Panic())
	})
})

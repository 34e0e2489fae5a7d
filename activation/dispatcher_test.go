package activation

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MainThreadDispatcher", func() {
	var d *MainThreadDispatcher

	BeforeEach(func() {
		d = NewMainThreadDispatcher()
	})

	It("should capture only once", func() {
		Expect(d.IsCaptured()).To(BeFalse())
		Expect(d.Capture()).To(BeTrue())
		Expect(d.Capture()).To(BeFalse())
		Expect(d.IsCaptured()).To(BeTrue())
	})

	It("should know the captured goroutine", func() {
		Expect(d.OnMainThread()).To(BeFalse())

		d.Capture()
		Expect(d.OnMainThread()).To(BeTrue())

		result := make(chan bool)
		go func() { result <- d.OnMainThread() }()
		Expect(<-result).To(BeFalse())
	})

	It("should run posted actions in order on drain", func() {
		var order []int
		d.Post(func() { order = append(order, 1) })
		d.Post(func() { order = append(order, 2) })

		Expect(order).To(BeEmpty())
		Expect(d.Pending()).To(Equal(2))
		Expect(d.Drain()).To(Equal(2))
		Expect(order).To(Equal([]int{1, 2}))
	})

	It("should defer actions posted while draining", func() {
		ran := 0
		d.Post(func() {
			d.Post(func() { ran++ })
		})

		Expect(d.Drain()).To(Equal(1))
		Expect(ran).To(Equal(0))
		Expect(d.Drain()).To(Equal(1))
		Expect(ran).To(Equal(1))
	})

	It("should keep draining after a failing action", func() {
		ran := false
		d.Post(func() { panic("boom") })
		d.Post(func() { ran = true })

		Expect(func() { d.Drain() }).NotTo(Panic())
		Expect(ran).To(BeTrue())
	})

	It("should run synchronously with SyncDispatcher", func() {
		ran := false
		SyncDispatcher{}.Post(func() { ran = true })
		Expect(ran).To(BeTrue())
	})
})

package activation

import (
	"sync"

	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PendingSet", func() {
	var (
		mockCtrl *gomock.Controller
		set      *PendingSet
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		set = NewPendingSet()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	newProxy := func(id int) *MockReactivatable {
		p := NewMockReactivatable(mockCtrl)
		p.EXPECT().ID().Return(id).AnyTimes()
		return p
	}

	It("should owe a flush until the dispatcher is captured", func() {
		p := newProxy(1)
		set.RegisterDisabledProxy(p)

		Expect(set.Len()).To(Equal(1))
		Expect(set.IsCaptured()).To(BeFalse())

		var posted func()
		dispatcher := NewMockDispatcher(mockCtrl)
		dispatcher.EXPECT().Post(gomock.Any()).Do(func(action func()) {
			posted = action
		})

		set.OnContextCaptured(dispatcher)
		Expect(posted).NotTo(BeNil())

		p.EXPECT().IsAlive().Return(true)
		p.EXPECT().NeedsReactivation().Return(true)
		p.EXPECT().Reactivate()

		posted()
		Expect(set.Len()).To(Equal(0))
	})

	It("should not post anything when nothing is owed", func() {
		dispatcher := NewMockDispatcher(mockCtrl)

		set.OnContextCaptured(dispatcher)

		Expect(set.IsCaptured()).To(BeTrue())
	})

	It("should keep the first captured dispatcher", func() {
		first := NewMockDispatcher(mockCtrl)
		second := NewMockDispatcher(mockCtrl)
		set.OnContextCaptured(first)
		set.OnContextCaptured(second)

		first.EXPECT().Post(gomock.Any())
		set.RegisterDisabledProxy(newProxy(1))
	})

	It("should post a flush only for the first item of an empty set", func() {
		dispatcher := NewMockDispatcher(mockCtrl)
		set.OnContextCaptured(dispatcher)

		dispatcher.EXPECT().Post(gomock.Any()).Times(1)

		set.RegisterDisabledProxy(newProxy(1))
		set.RegisterDisabledProxy(newProxy(2))

		Expect(set.Len()).To(Equal(2))
	})

	It("should dispatch immediately once captured", func() {
		set.OnContextCaptured(SyncDispatcher{})

		p := newProxy(3)
		p.EXPECT().IsAlive().Return(true)
		p.EXPECT().NeedsReactivation().Return(true)
		p.EXPECT().Reactivate()

		set.RegisterDisabledProxy(p)

		Expect(set.Len()).To(Equal(0))
	})

	It("should ignore duplicated proxies", func() {
		p := newProxy(4)

		set.RegisterDisabledProxy(p)
		set.RegisterDisabledProxy(p)

		Expect(set.Len()).To(Equal(1))
	})

	It("should skip dead proxies and proxies that no longer need it", func() {
		dead := newProxy(1)
		dead.EXPECT().IsAlive().Return(false)

		settled := newProxy(2)
		settled.EXPECT().IsAlive().Return(true)
		settled.EXPECT().NeedsReactivation().Return(false)

		live := newProxy(3)
		live.EXPECT().IsAlive().Return(true)
		live.EXPECT().NeedsReactivation().Return(true)
		live.EXPECT().Reactivate()

		set.RegisterDisabledProxy(dead)
		set.RegisterDisabledProxy(settled)
		set.RegisterDisabledProxy(live)
		set.Flush()

		Expect(set.Len()).To(Equal(0))
	})

	It("should accept registrations from many goroutines before capture", func() {
		const n = 64

		var (
			wg          sync.WaitGroup
			reactivated sync.Map
		)

		proxies := make([]*MockReactivatable, n)
		for i := range proxies {
			p := newProxy(i + 1)
			id := i + 1
			p.EXPECT().IsAlive().Return(true)
			p.EXPECT().NeedsReactivation().Return(true)
			p.EXPECT().Reactivate().Do(func() { reactivated.Store(id, true) })
			proxies[i] = p
		}

		for _, p := range proxies {
			wg.Add(1)

			go func(p Reactivatable) {
				defer wg.Done()
				set.RegisterDisabledProxy(p)
			}(p)
		}

		wg.Wait()

		dispatcher := NewMainThreadDispatcher()
		dispatcher.Capture()
		set.OnContextCaptured(dispatcher)

		Expect(dispatcher.Drain()).To(Equal(1))

		count := 0
		reactivated.Range(func(_, _ any) bool {
			count++
			return true
		})
		Expect(count).To(Equal(n))
	})
})

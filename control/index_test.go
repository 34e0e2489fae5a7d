package control

import (
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type controllerObject struct {
	name string
}

var _ = Describe("Index", func() {
	var (
		mockCtrl   *gomock.Controller
		index      *Index
		controller *controllerObject
		nextID     int
	)

	newBind := func() *MockBind {
		nextID++
		b := NewMockBind(mockCtrl)
		b.EXPECT().ID().Return(nextID).AnyTimes()

		return b
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		index = NewIndex()
		controller = &controllerObject{name: "player"}
		nextID = 0
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should index binds per controller and path", func() {
		a, b := newBind(), newBind()

		index.Register(controller, "health", a)
		index.Register(controller, "health", a)
		index.Register(controller, "stamina", b)

		Expect(index.Len()).To(Equal(1))
		Expect(index.Paths(controller)).To(Equal([]string{"health", "stamina"}))
		Expect(index.Binds(controller, "health")).To(HaveLen(1))
		Expect(index.NumBinds(controller)).To(Equal(2))
	})

	It("should drop the controller when its last path empties", func() {
		a, b := newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "stamina", b)

		index.Unregister(controller, "health", a)
		Expect(index.Len()).To(Equal(1))
		Expect(index.Paths(controller)).To(Equal([]string{"stamina"}))

		index.Unregister(controller, "stamina", b)
		Expect(index.Len()).To(Equal(0))

		Expect(func() { index.Unregister(controller, "stamina", b) }).
			NotTo(Panic())
	})

	It("should update each bind once and count transfers", func() {
		a, b, c := newBind(), newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "health", b)
		index.Register(controller, "hud", a)
		index.Register(controller, "stamina", c)

		a.EXPECT().UpdateNow().Return(true).Times(1)
		b.EXPECT().UpdateNow().Return(false).Times(1)
		c.EXPECT().UpdateNow().Return(true).Times(1)

		Expect(index.UpdateAllBinds(controller)).To(Equal(2))
	})

	It("should update the binds under the given paths", func() {
		a, b, c := newBind(), newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "hud", b)
		index.Register(controller, "stamina", c)

		a.EXPECT().UpdateNow().Return(true)
		b.EXPECT().UpdateNow().Return(true)

		Expect(index.UpdateBind(controller, "health", "hud", "missing")).
			To(Equal(2))
	})

	It("should return zero for unknown controllers", func() {
		Expect(index.UpdateAllBinds(&controllerObject{})).To(Equal(0))
		Expect(index.PauseAllBinds(&controllerObject{})).To(Equal(0))
		Expect(index.ClearAllBinds(&controllerObject{})).To(Equal(0))
	})

	It("should defer unregistration requested during a batch", func() {
		a, b := newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "stamina", b)

		a.EXPECT().UpdateNow().DoAndReturn(func() bool {
			index.Unregister(controller, "stamina", b)
			Expect(index.IsUpdating(controller)).To(BeTrue())
			Expect(index.Binds(controller, "stamina")).To(HaveLen(1))

			return true
		})
		b.EXPECT().UpdateNow().Return(true)

		Expect(index.UpdateAllBinds(controller)).To(Equal(2))
		Expect(index.IsUpdating(controller)).To(BeFalse())
		Expect(index.Binds(controller, "stamina")).To(BeEmpty())
		Expect(index.Paths(controller)).To(Equal([]string{"health"}))
	})

	It("should defer registration requested during a batch", func() {
		a, late := newBind(), newBind()
		index.Register(controller, "health", a)

		a.EXPECT().UpdateNow().DoAndReturn(func() bool {
			index.Register(controller, "health", late)
			return true
		})

		Expect(index.UpdateAllBinds(controller)).To(Equal(1))
		Expect(index.Binds(controller, "health")).To(HaveLen(2))
	})

	It("should replay buffered operations in request order", func() {
		a, late := newBind(), newBind()
		index.Register(controller, "health", a)

		a.EXPECT().UpdateNow().DoAndReturn(func() bool {
			index.Register(controller, "health", late)
			index.Unregister(controller, "health", late)
			index.Unregister(controller, "health", a)
			index.Register(controller, "health", a)

			return true
		})

		index.UpdateAllBinds(controller)

		Expect(index.Binds(controller, "health")).To(HaveLen(1))
		Expect(index.Binds(controller, "health")[0]).To(BeIdenticalTo(a))
	})

	It("should keep a bind unregistered then registered during a batch",
		func() {
			a, late := newBind(), newBind()
			index.Register(controller, "health", a)

			a.EXPECT().UpdateNow().DoAndReturn(func() bool {
				index.Unregister(controller, "health", late)
				index.Register(controller, "health", late)

				return true
			})

			index.UpdateAllBinds(controller)

			binds := index.Binds(controller, "health")
			Expect(binds).To(HaveLen(2))
			Expect(binds[1]).To(BeIdenticalTo(late))
		})

	It("should drop a bind registered again then unregistered during a batch",
		func() {
			a := newBind()
			index.Register(controller, "health", a)

			a.EXPECT().UpdateNow().DoAndReturn(func() bool {
				index.Register(controller, "health", a)
				index.Unregister(controller, "health", a)

				return true
			})

			index.UpdateAllBinds(controller)

			Expect(index.Binds(controller, "health")).To(BeEmpty())
			Expect(index.Len()).To(Equal(0))
		})

	It("should reconcile only when the outermost batch ends", func() {
		a, b := newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "stamina", b)

		a.EXPECT().UpdateNow().DoAndReturn(func() bool {
			index.UpdateBind(controller, "stamina")
			index.Unregister(controller, "health", a)
			return true
		})
		b.EXPECT().UpdateNow().DoAndReturn(func() bool {
			Expect(index.Binds(controller, "health")).To(HaveLen(1))
			return true
		}).Times(2)

		Expect(index.UpdateAllBinds(controller)).To(Equal(2))
		Expect(index.Paths(controller)).To(Equal([]string{"stamina"}))
	})

	It("should keep going when a bind fails", func() {
		a, b := newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "stamina", b)

		a.EXPECT().UpdateNow().Do(func() { panic("broken converter") })
		b.EXPECT().UpdateNow().Return(true)

		Expect(index.UpdateAllBinds(controller)).To(Equal(1))
		Expect(index.IsUpdating(controller)).To(BeFalse())
	})

	It("should clear every bind of a controller", func() {
		a, b := newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "hud", a)
		index.Register(controller, "stamina", b)

		Expect(index.ClearAllBinds(controller)).To(Equal(2))
		Expect(index.Len()).To(Equal(0))
	})

	It("should count a bind under several paths once when clearing", func() {
		a := newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "hud", a)

		Expect(index.NumBinds(controller)).To(Equal(1))
		Expect(index.ClearAllBinds(controller)).To(Equal(1))
		Expect(index.Binds(controller, "hud")).To(BeEmpty())
	})

	It("should key controllers by pointer identity", func() {
		a, b := newBind(), newBind()
		twin := &controllerObject{name: "player"}
		index.Register(controller, "health", a)
		index.Register(twin, "health", b)

		Expect(index.Len()).To(Equal(2))
		Expect(index.Binds(controller, "health")).To(ConsistOf(a))
		Expect(index.Binds(twin, "health")).To(ConsistOf(b))
	})

	It("should pause and resume every bind", func() {
		a, b := newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "stamina", b)

		a.EXPECT().SetPaused(true)
		b.EXPECT().SetPaused(true)
		Expect(index.PauseAllBinds(controller)).To(Equal(2))

		a.EXPECT().SetPaused(false)
		b.EXPECT().SetPaused(false)
		Expect(index.ResumeAllBinds(controller)).To(Equal(2))

		Expect(index.NumBinds(controller)).To(Equal(2))
	})

	It("should pause every listed path", func() {
		a, b, c := newBind(), newBind(), newBind()
		index.Register(controller, "health", a)
		index.Register(controller, "stamina", b)
		index.Register(controller, "hud", c)

		// Several paths pause, the same as a single path does.
		a.EXPECT().SetPaused(true)
		b.EXPECT().SetPaused(true)
		Expect(index.PauseBind(controller, "health", "stamina")).To(Equal(2))

		c.EXPECT().SetPaused(true)
		Expect(index.PauseBind(controller, "hud")).To(Equal(1))

		a.EXPECT().SetPaused(false)
		Expect(index.ResumeBind(controller, "health")).To(Equal(1))

		Expect(index.PauseBind(controller)).To(Equal(0))
	})
})

package hooking

import (
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var hookPosTest = &HookPos{Name: "Test"}

var _ = Describe("HookableBase", func() {
	var (
		mockCtrl *gomock.Controller
		base     *HookableBase
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		base = &HookableBase{}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke hooks in registration order", func() {
		hook1 := NewMockHook(mockCtrl)
		hook2 := NewMockHook(mockCtrl)
		ctx := HookCtx{Pos: hookPosTest, Item: 1}

		call1 := hook1.EXPECT().Func(ctx)
		hook2.EXPECT().Func(ctx).After(call1)

		base.AcceptHook(hook1)
		base.AcceptHook(hook2)
		base.InvokeHook(ctx)

		Expect(base.NumHooks()).To(Equal(2))
	})

	It("should panic on duplicated hooks", func() {
		hook := NewMockHook(mockCtrl)
		base.AcceptHook(hook)

		Expect(func() { base.AcceptHook(hook) }).To(Panic())
	})

	It("should stop invoking removed hooks", func() {
		hook1 := NewMockHook(mockCtrl)
		hook2 := NewMockHook(mockCtrl)
		base.AcceptHook(hook1)
		base.AcceptHook(hook2)

		base.RemoveHook(hook1)
		hook2.EXPECT().Func(gomock.Any())

		base.InvokeHook(HookCtx{Pos: hookPosTest})

		Expect(base.Hooks()).To(ConsistOf(hook2))
	})

	It("should apply changes made by a hook from the next firing", func() {
		late := NewMockHook(mockCtrl)
		fired := 0

		var self *HookFunc
		self = NewHookFunc(func(HookCtx) {
			fired++
			base.RemoveHook(self)
			base.AcceptHook(late)
		})
		other := NewMockHook(mockCtrl)

		base.AcceptHook(self)
		base.AcceptHook(other)

		other.EXPECT().Func(gomock.Any()).Times(2)
		base.InvokeHook(HookCtx{Pos: hookPosTest})

		late.EXPECT().Func(gomock.Any())
		base.InvokeHook(HookCtx{Pos: hookPosTest})

		Expect(fired).To(Equal(1))
		Expect(base.Hooks()).To(Equal([]Hook{other, late}))
	})

	It("should hand out a copy of the attached hooks", func() {
		hook := NewMockHook(mockCtrl)
		base.AcceptHook(hook)

		hooks := base.Hooks()
		hooks[0] = nil

		Expect(base.Hooks()).To(ConsistOf(hook))
	})

	It("should accept function hooks", func() {
		called := 0
		hook := NewHookFunc(func(ctx HookCtx) {
			called++
			Expect(ctx.Pos).To(BeIdenticalTo(hookPosTest))
		})

		base.AcceptHook(hook)
		base.InvokeHook(HookCtx{Pos: hookPosTest})
		base.RemoveHook(hook)
		base.InvokeHook(HookCtx{Pos: hookPosTest})

		Expect(called).To(Equal(1))
	})
})

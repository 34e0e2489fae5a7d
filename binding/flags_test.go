package binding

import (
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Route", func() {
	ginkgo.DescribeTable("should pick the stage",
		func(flags UpdateFlags, mode Mode, playing bool, want Stage) {
			stage, ok := Route(flags, mode, playing)

			Expect(ok).To(BeTrue())
			Expect(stage).To(Equal(want))
		},
		ginkgo.Entry("read in update", OnUpdate, Read, true, StageUpdateBefore),
		ginkgo.Entry("read-write in update", OnUpdate, ReadWrite, true,
			StageUpdateBefore),
		ginkgo.Entry("write in update", OnUpdate, Write, true, StageUpdateAfter),
		ginkgo.Entry("read in late update", OnLateUpdate, Read, true,
			StageLateUpdateBefore),
		ginkgo.Entry("write in late update", OnLateUpdate, Write, true,
			StageLateUpdateAfter),
		ginkgo.Entry("read in fixed update", OnFixedUpdate, Read, true,
			StageFixedUpdateBefore),
		ginkgo.Entry("write in fixed update", OnFixedUpdate, Write, true,
			StageFixedUpdateAfter),
		ginkgo.Entry("render ignores the mode", OnPrePostRender, Write, true,
			StagePrePostRender),
		ginkgo.Entry("update wins over late update", OnLateUpdate|OnUpdate, Read,
			true, StageUpdateBefore),
		ginkgo.Entry("editor outside play mode", InEditor|OnUpdate, Read, false,
			StageEditTime),
		ginkgo.Entry("editor flag ignored in play mode", InEditor|OnFixedUpdate,
			Write, true, StageFixedUpdateAfter),
		ginkgo.Entry("play-mode stage kept in edit mode", OnUpdate, Read, false,
			StageUpdateBefore),
		ginkgo.Entry("editor only while playing", InEditor, Read, true,
			StageEditTime),
	)

	ginkgo.It("should refuse empty flags", func() {
		_, ok := Route(0, Read, true)
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should print and parse flags", func() {
		f := InEditor | OnLateUpdate

		Expect(f.String()).To(Equal("InEditor|OnLateUpdate"))

		parsed, ok := ParseUpdateFlags("ineditor | OnLateUpdate")
		Expect(ok).To(BeTrue())
		Expect(parsed).To(Equal(f))

		_, ok = ParseUpdateFlags("OnSomething")
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should name every stage", func() {
		for _, s := range Stages() {
			parsed, ok := ParseStage(s.String())
			Expect(ok).To(BeTrue())
			Expect(parsed).To(Equal(s))
		}

		Expect(Stages()).To(HaveLen(8))
	})
})

package queues_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"vkframe/queues"
)

var _ = Describe("Find", func() {
	It("finds nothing in an empty list", func() {
		indices := queues.Find(nil)
		Expect(indices.IsComplete()).To(BeFalse())
		Expect(indices.HasShared()).To(BeFalse())
	})

	It("prefers the first family doing both", func() {
		indices := queues.Find([]queues.Family{
			{},
			{Graphics: true, Present: true},
			{Graphics: true, Present: true},
		})

		Expect(indices.IsComplete()).To(BeTrue())
		Expect(indices.HasShared()).To(BeTrue())
		Expect(indices.Shared.Get()).To(BeEquivalentTo(1))
		Expect(indices.Graphics.Get()).To(BeEquivalentTo(1))
	})

	It("records separate families without a shared one", func() {
		indices := queues.Find([]queues.Family{
			{Present: true},
			{Graphics: true},
		})

		Expect(indices.IsComplete()).To(BeTrue())
		Expect(indices.HasShared()).To(BeFalse())
		Expect(indices.Graphics.Get()).To(BeEquivalentTo(1))
		Expect(indices.Present.Get()).To(BeEquivalentTo(0))
	})

	It("keeps the first graphics family when a later one is shared", func() {
		indices := queues.Find([]queues.Family{
			{Graphics: true},
			{Graphics: true, Present: true},
		})

		Expect(indices.Graphics.Get()).To(BeEquivalentTo(0))
		Expect(indices.Present.Get()).To(BeEquivalentTo(1))
		Expect(indices.Shared.Get()).To(BeEquivalentTo(1))
	})
})

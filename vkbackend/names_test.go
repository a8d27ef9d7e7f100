package vkbackend

import (
	"unsafe"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"

	"vkframe/gfx"
)

var _ = Describe("Backend", func() {
	var backend *Backend

	BeforeEach(func() {
		backend = New()
	})

	It("starts with no live objects", func() {
		for kind, count := range backend.Live() {
			Expect(count).To(BeZero(), kind.String())
		}
	})

	It("does not name objects it does not know", func() {
		backend.SetObjectName(gfx.ObjectFence, 3, "frame 0")
		Expect(backend.objectName(3)).To(BeEmpty())
	})

	It("names samplers", func() {
		raw := vk.Sampler(unsafe.Pointer(new(int)))
		h := backend.samplers.put(raw)

		backend.SetObjectName(gfx.ObjectSampler, h, "overlay sampler")
		Expect(backend.objectName(rawPointer(unsafe.Pointer(raw)))).
			To(Equal(gfx.ObjectSampler.String() + " overlay sampler"))
		Expect(backend.Live()).To(HaveKeyWithValue(gfx.ObjectSampler, 1))
	})

	It("never names the null object", func() {
		Expect(backend.objectName(0)).To(BeEmpty())
	})

	It("forgets descriptor sets with their pool", func() {
		pool := gfx.DescriptorPool(backend.descriptorPools.put(vk.DescriptorPool(unsafe.Pointer(new(int)))))
		set := gfx.DescriptorSet(backend.descriptorSets.put(vk.DescriptorSet(unsafe.Pointer(new(int)))))
		backend.poolSets[pool] = []gfx.DescriptorSet{set}

		backend.forgetSets(pool)
		Expect(backend.descriptorSets.len()).To(BeZero())
		Expect(backend.poolSets).NotTo(HaveKey(pool))
	})
})

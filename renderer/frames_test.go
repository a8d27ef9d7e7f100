package renderer_test

import (
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"vkframe/gfx"
	"vkframe/gfx/gfxtest"
	"vkframe/renderer"
)

var _ = Describe("FramePool", func() {
	var (
		fake    *gfxtest.Backend
		ctx     *renderer.DeviceContext
		layout  gfx.DescriptorSetLayout
		cleanup func()
	)

	BeforeEach(func() {
		fake = gfxtest.New()
		ctx, cleanup = newContext(fake, gfxtest.NewWindow())

		var err error
		layout, err = fake.CreateDescriptorSetLayout(ctx.Device(), nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		fake.DestroyDescriptorSetLayout(ctx.Device(), layout)
		cleanup()
	})

	It("creates the per-slot objects with signaled fences", func() {
		pool, err := renderer.NewFramePool(ctx, 3, layout)
		Expect(err).NotTo(HaveOccurred())

		Expect(pool.Len()).To(Equal(3))
		Expect(fake.LiveOf(gfx.ObjectCommandPool)).To(Equal(3))
		Expect(fake.LiveOf(gfx.ObjectDescriptorPool)).To(Equal(3))
		Expect(fake.LiveOf(gfx.ObjectFence)).To(Equal(3))
		Expect(fake.LiveOf(gfx.ObjectSemaphore)).To(Equal(6))
		for i := 0; i < pool.Len(); i++ {
			Expect(pool.Slot(i).Index()).To(Equal(i))
			Expect(fake.FenceSignaled(pool.Slot(i).Fence())).To(BeTrue())
		}

		pool.Destroy()
		for _, kind := range []gfx.ObjectKind{
			gfx.ObjectCommandPool, gfx.ObjectDescriptorPool, gfx.ObjectFence, gfx.ObjectSemaphore,
		} {
			Expect(fake.LiveOf(kind)).To(BeZero(), "kind %s", kind)
		}
	})

	It("needs at least one slot", func() {
		_, err := renderer.NewFramePool(ctx, 0, layout)
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("destroys the slots created so far when one fails",
		func(method string, nth int) {
			fake.FailOn(method, nth)

			pool, err := renderer.NewFramePool(ctx, 3, layout)
			Expect(err).To(HaveOccurred())
			Expect(pool).To(BeNil())
			Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())

			for _, kind := range []gfx.ObjectKind{
				gfx.ObjectCommandPool, gfx.ObjectDescriptorPool, gfx.ObjectFence, gfx.ObjectSemaphore,
			} {
				Expect(fake.LiveOf(kind)).To(BeZero(), "kind %s", kind)
				Expect(fake.Destroyed(kind)).To(Equal(fake.Created(kind)), "kind %s", kind)
			}
		},
		Entry("first command pool", "CreateCommandPool", 1),
		Entry("second descriptor pool", "CreateDescriptorPool", 2),
		Entry("third fence", "CreateFence", 3),
		Entry("an image available semaphore", "CreateSemaphore", 3),
		Entry("a render finished semaphore", "CreateSemaphore", 6),
	)

	Describe("a slot", func() {
		var (
			pool *renderer.FramePool
			slot *renderer.FrameSlot
		)

		BeforeEach(func() {
			var err error
			pool, err = renderer.NewFramePool(ctx, 1, layout)
			Expect(err).NotTo(HaveOccurred())
			slot = pool.Slot(0)
		})

		AfterEach(func() {
			Expect(ctx.WaitIdle()).To(Succeed())
			pool.Destroy()
		})

		submit := func() {
			cb, err := slot.CommandBuffer()
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.BeginCommandBuffer(cb, true)).To(Succeed())
			Expect(fake.EndCommandBuffer(cb)).To(Succeed())
			Expect(slot.Submit([]gfx.CommandBuffer{cb})).To(Succeed())
		}

		It("allocates command buffers in batches", func() {
			seen := map[gfx.CommandBuffer]bool{}
			for i := 0; i < 10; i++ {
				cb, err := slot.CommandBuffer()
				Expect(err).NotTo(HaveOccurred())
				seen[cb] = true
			}
			Expect(seen).To(HaveLen(10))
			Expect(fake.Count("AllocateCommandBuffers")).To(Equal(1))

			_, err := slot.CommandBuffer()
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.Count("AllocateCommandBuffers")).To(Equal(2))
			Expect(fake.LiveOf(gfx.ObjectCommandBuffer)).To(Equal(20))
		})

		It("hands command buffers out again after a reset", func() {
			first, err := slot.CommandBuffer()
			Expect(err).NotTo(HaveOccurred())

			Expect(slot.Reset()).To(Succeed())

			seen := map[gfx.CommandBuffer]bool{}
			for i := 0; i < 10; i++ {
				cb, err := slot.CommandBuffer()
				Expect(err).NotTo(HaveOccurred())
				seen[cb] = true
			}
			Expect(seen).To(HaveKey(first))
			Expect(fake.Count("AllocateCommandBuffers")).To(Equal(1))
		})

		It("resets descriptor sets in bulk", func() {
			for i := 0; i < 5; i++ {
				_, err := slot.DescriptorSet()
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(fake.LiveOf(gfx.ObjectDescriptorSet)).To(Equal(5))

			Expect(slot.Reset()).To(Succeed())
			Expect(fake.LiveOf(gfx.ObjectDescriptorSet)).To(BeZero())
			Expect(fake.Count("ResetDescriptorPool")).To(Equal(1))
		})

		It("refuses to reset until the fence has been waited for", func() {
			Expect(slot.Wait()).To(Succeed())
			submit()

			Expect(slot.Pending()).To(BeTrue())
			Expect(fake.FenceSignaled(slot.Fence())).To(BeFalse())
			Expect(slot.Reset()).NotTo(Succeed())
			Expect(fake.Count("ResetCommandPool")).To(BeZero())

			Expect(slot.Wait()).To(Succeed())
			Expect(slot.Pending()).To(BeFalse())
			Expect(slot.Reset()).To(Succeed())
			Expect(fake.Violations()).To(BeEmpty())
		})

		It("reports a failed wait as a lost device", func() {
			fake.FailOn("WaitFence", 1)

			err := slot.Wait()
			Expect(errors.Is(err, renderer.ErrDeviceLost)).To(BeTrue())
		})

		Describe("host buffers", func() {
			It("start at the minimum size and are reused while they fit", func() {
				buf, err := slot.HostBuffer("uniforms", 100, gfx.BufferUsageUniform)
				Expect(err).NotTo(HaveOccurred())
				Expect(buf.Size()).To(BeEquivalentTo(256))
				Expect(buf.Bytes()).To(HaveLen(256))

				again, err := slot.HostBuffer("uniforms", 256, gfx.BufferUsageUniform)
				Expect(err).NotTo(HaveOccurred())
				Expect(again).To(BeIdenticalTo(buf))
			})

			It("grow to the next power of two", func() {
				small, err := slot.HostBuffer("overlay vertices", 100, gfx.BufferUsageVertex)
				Expect(err).NotTo(HaveOccurred())

				big, err := slot.HostBuffer("overlay vertices", 300, gfx.BufferUsageVertex)
				Expect(err).NotTo(HaveOccurred())
				Expect(big.Size()).To(BeEquivalentTo(512))
				Expect(small.Released()).To(BeTrue())
				Expect(fake.LiveOf(gfx.ObjectBuffer)).To(Equal(1))
			})

			It("are kept apart by key", func() {
				a, err := slot.HostBuffer("a", 16, gfx.BufferUsageVertex)
				Expect(err).NotTo(HaveOccurred())
				b, err := slot.HostBuffer("b", 16, gfx.BufferUsageIndex)
				Expect(err).NotTo(HaveOccurred())
				Expect(a.Handle()).NotTo(Equal(b.Handle()))
			})

			It("keep the old buffer when growing fails", func() {
				small, err := slot.HostBuffer("uniforms", 100, gfx.BufferUsageUniform)
				Expect(err).NotTo(HaveOccurred())

				fake.FailOn("CreateBuffer", 1)
				_, err = slot.HostBuffer("uniforms", 1000, gfx.BufferUsageUniform)
				Expect(err).To(HaveOccurred())
				Expect(small.Released()).To(BeFalse())

				again, err := slot.HostBuffer("uniforms", 100, gfx.BufferUsageUniform)
				Expect(err).NotTo(HaveOccurred())
				Expect(again).To(BeIdenticalTo(small))
			})
		})
	})
})

var _ = DescribeTable("next power of two",
	func(n, expected uint64) {
		Expect(renderer.NextPowerOfTwo(n)).To(Equal(expected))
	},
	Entry("zero", uint64(0), uint64(1)),
	Entry("one", uint64(1), uint64(1)),
	Entry("exact", uint64(256), uint64(256)),
	Entry("just above", uint64(257), uint64(512)),
	Entry("large", uint64(1<<20+1), uint64(1<<21)),
)

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

var _ = DescribeTable("memory type selection",
	func(typeBits uint32, placement renderer.Placement, expected uint32, found bool) {
		types := gfxtest.DefaultDevice("gpu").MemoryTypes

		index, ok := renderer.FindMemoryType(types, typeBits, placement)
		Expect(ok).To(Equal(found))
		if found {
			Expect(index).To(Equal(expected))
		}
	},
	Entry("gpu only", uint32(0b111), renderer.GpuOnly, uint32(gfxtest.MemoryTypeDeviceLocal), true),
	Entry("cpu to gpu", uint32(0b111), renderer.CpuToGpu, uint32(gfxtest.MemoryTypeHostVisible), true),
	Entry("cpu visible prefers device local", uint32(0b111), renderer.CpuVisible,
		uint32(gfxtest.MemoryTypeShared), true),
	Entry("cpu visible falls back to host memory", uint32(0b011), renderer.CpuVisible,
		uint32(gfxtest.MemoryTypeHostVisible), true),
	Entry("gpu only respects type bits", uint32(0b110), renderer.GpuOnly,
		uint32(gfxtest.MemoryTypeShared), true),
	Entry("nothing allowed", uint32(0b001), renderer.CpuToGpu, uint32(0), false),
)

var _ = Describe("Allocator", func() {
	var (
		fake    *gfxtest.Backend
		ctx     *renderer.DeviceContext
		alloc   *renderer.Allocator
		cleanup func()
	)

	anyType := uint32(0xffffffff)

	BeforeEach(func() {
		fake = gfxtest.New()
		ctx, cleanup = newContext(fake, gfxtest.NewWindow())
		alloc = ctx.Allocator()
	})

	AfterEach(func() {
		cleanup()
	})

	It("sub-allocates from one block at aligned offsets", func() {
		a, err := alloc.Allocate(gfx.MemoryRequirements{Size: 100, Alignment: 256, TypeBits: anyType}, renderer.GpuOnly)
		Expect(err).NotTo(HaveOccurred())
		b, err := alloc.Allocate(gfx.MemoryRequirements{Size: 100, Alignment: 256, TypeBits: anyType}, renderer.GpuOnly)
		Expect(err).NotTo(HaveOccurred())

		Expect(a.Memory()).To(Equal(b.Memory()))
		Expect(a.Offset()).To(BeEquivalentTo(0))
		Expect(b.Offset()).To(BeEquivalentTo(256))
		Expect(fake.LiveOf(gfx.ObjectMemory)).To(Equal(1))

		stats := alloc.Stats()
		Expect(stats.Blocks).To(Equal(1))
		Expect(stats.Allocations).To(Equal(2))
		Expect(stats.BytesInUse).To(BeEquivalentTo(200))
		Expect(stats.BytesReserved).To(BeEquivalentTo(1 << 20))

		alloc.Free(a)
		alloc.Free(b)
		Expect(alloc.Stats()).To(Equal(renderer.AllocatorStats{}))
		Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())
	})

	It("reuses freed ranges and merges neighbours", func() {
		req := gfx.MemoryRequirements{Size: 256, Alignment: 256, TypeBits: anyType}
		var allocs []*renderer.Allocation
		for i := 0; i < 4; i++ {
			a, err := alloc.Allocate(req, renderer.GpuOnly)
			Expect(err).NotTo(HaveOccurred())
			allocs = append(allocs, a)
		}

		alloc.Free(allocs[1])
		alloc.Free(allocs[2])

		merged, err := alloc.Allocate(gfx.MemoryRequirements{Size: 512, Alignment: 256, TypeBits: anyType},
			renderer.GpuOnly)
		Expect(err).NotTo(HaveOccurred())
		Expect(merged.Offset()).To(BeEquivalentTo(256))
		Expect(merged.Memory()).To(Equal(allocs[0].Memory()))
		Expect(alloc.Stats().Blocks).To(Equal(1))

		alloc.Free(allocs[0])
		alloc.Free(merged)
		alloc.Free(allocs[3])
		Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())
	})

	It("keeps memory types apart", func() {
		a, err := alloc.Allocate(gfx.MemoryRequirements{Size: 64, TypeBits: anyType}, renderer.GpuOnly)
		Expect(err).NotTo(HaveOccurred())
		b, err := alloc.Allocate(gfx.MemoryRequirements{Size: 64, TypeBits: anyType}, renderer.CpuToGpu)
		Expect(err).NotTo(HaveOccurred())

		Expect(a.Memory()).NotTo(Equal(b.Memory()))
		Expect(a.Mapped()).To(BeNil())
		Expect(b.Mapped()).To(HaveLen(64))
		Expect(alloc.Stats().Blocks).To(Equal(2))

		alloc.Free(a)
		alloc.Free(b)
	})

	It("gives oversized requests a block of their own", func() {
		big, err := alloc.Allocate(gfx.MemoryRequirements{Size: 4 << 20, TypeBits: anyType}, renderer.GpuOnly)
		Expect(err).NotTo(HaveOccurred())
		small, err := alloc.Allocate(gfx.MemoryRequirements{Size: 64, TypeBits: anyType}, renderer.GpuOnly)
		Expect(err).NotTo(HaveOccurred())

		Expect(small.Memory()).NotTo(Equal(big.Memory()))
		Expect(alloc.Stats().Blocks).To(Equal(2))
		Expect(alloc.Stats().BytesReserved).To(BeEquivalentTo(4<<20 + 1<<20))

		alloc.Free(big)
		Expect(alloc.Stats().Blocks).To(Equal(1))
		alloc.Free(small)
	})

	It("rejects zero sized requests", func() {
		_, err := alloc.Allocate(gfx.MemoryRequirements{TypeBits: anyType}, renderer.GpuOnly)
		Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
	})

	It("reports placements no memory type can serve", func() {
		_, err := alloc.Allocate(gfx.MemoryRequirements{Size: 64, TypeBits: 1 << 9}, renderer.GpuOnly)
		Expect(errors.Is(err, renderer.ErrUnsupported)).To(BeTrue())
	})

	It("passes device memory failures on", func() {
		fake.FailOn("AllocateMemory", 1)

		_, err := alloc.Allocate(gfx.MemoryRequirements{Size: 64, TypeBits: anyType}, renderer.GpuOnly)
		Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
		Expect(alloc.Stats()).To(Equal(renderer.AllocatorStats{}))
	})

	It("frees the memory when mapping it fails", func() {
		fake.FailOn("MapMemory", 1)

		_, err := alloc.Allocate(gfx.MemoryRequirements{Size: 64, TypeBits: anyType}, renderer.CpuToGpu)
		Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
		Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())
	})

	It("ignores frees after being destroyed", func() {
		a, err := alloc.Allocate(gfx.MemoryRequirements{Size: 64, TypeBits: anyType}, renderer.GpuOnly)
		Expect(err).NotTo(HaveOccurred())

		alloc.Destroy()
		Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())

		alloc.Free(a)
		Expect(fake.Count("FreeMemory")).To(Equal(1))
	})

	Describe("buffers", func() {
		It("pairs the buffer with its memory", func() {
			buf, err := alloc.CreateBuffer(100, gfx.BufferUsageUniform, renderer.CpuVisible, "uniforms")
			Expect(err).NotTo(HaveOccurred())

			Expect(buf.Size()).To(BeEquivalentTo(100))
			Expect(buf.Placement()).To(Equal(renderer.CpuVisible))
			Expect(buf.Bytes()).To(HaveLen(100))
			Expect(fake.IsLive(gfx.Handle(buf.Handle()))).To(BeTrue())

			copy(buf.Bytes(), []byte("hello"))
			Expect(fake.BufferContents(buf.Handle())[:5]).To(Equal([]byte("hello")))

			buf.Release()
			Expect(buf.Released()).To(BeTrue())
			Expect(fake.LiveOf(gfx.ObjectBuffer)).To(BeZero())
			Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())

			buf.Release()
			Expect(fake.Count("DestroyBuffer")).To(Equal(1))
		})

		It("does not map device only memory", func() {
			buf, err := alloc.CreateBuffer(100, gfx.BufferUsageStorage, renderer.GpuOnly, "vertices")
			Expect(err).NotTo(HaveOccurred())
			defer buf.Release()

			Expect(buf.Bytes()).To(BeNil())
		})

		It("rejects zero sizes without creating anything", func() {
			_, err := alloc.CreateBuffer(0, gfx.BufferUsageStorage, renderer.GpuOnly, "empty")
			Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
			Expect(fake.Count("CreateBuffer")).To(BeZero())
		})

		DescribeTable("leaves nothing behind when a step fails",
			func(method string) {
				fake.FailOn(method, 1)

				buf, err := alloc.CreateBuffer(100, gfx.BufferUsageStorage, renderer.GpuOnly, "vertices")
				Expect(err).To(HaveOccurred())
				Expect(buf).To(BeNil())
				Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
				Expect(fake.LiveOf(gfx.ObjectBuffer)).To(BeZero())
				Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())
			},
			Entry("buffer", "CreateBuffer"),
			Entry("memory", "AllocateMemory"),
			Entry("binding", "BindBufferMemory"),
		)
	})

	Describe("images", func() {
		info := gfx.ImageInfo{
			Extent: gfx.Extent2D{Width: 64, Height: 64},
			Format: gfx.FormatD24UnormS8Uint,
			Usage:  gfx.ImageUsageDepthStencilAttachment,
		}

		It("creates the image with memory and a view", func() {
			img, err := alloc.CreateImage(info, renderer.GpuOnly, "depth")
			Expect(err).NotTo(HaveOccurred())

			Expect(img.Extent()).To(Equal(info.Extent))
			Expect(img.Format()).To(Equal(info.Format))
			Expect(fake.IsLive(gfx.Handle(img.View()))).To(BeTrue())
			Expect(fake.LiveOf(gfx.ObjectMemory)).To(Equal(1))

			img.Release()
			img.Release()
			Expect(fake.LiveOf(gfx.ObjectImage)).To(BeZero())
			Expect(fake.LiveOf(gfx.ObjectImageView)).To(BeZero())
			Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())
		})

		It("rejects empty extents", func() {
			empty := info
			empty.Extent.Height = 0

			_, err := alloc.CreateImage(empty, renderer.GpuOnly, "depth")
			Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
			Expect(fake.Count("CreateImage")).To(BeZero())
		})

		DescribeTable("leaves nothing behind when a step fails",
			func(method string) {
				fake.FailOn(method, 1)

				_, err := alloc.CreateImage(info, renderer.GpuOnly, "depth")
				Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
				Expect(fake.LiveOf(gfx.ObjectImage)).To(BeZero())
				Expect(fake.LiveOf(gfx.ObjectImageView)).To(BeZero())
				Expect(fake.LiveOf(gfx.ObjectMemory)).To(BeZero())
			},
			Entry("image", "CreateImage"),
			Entry("memory", "AllocateMemory"),
			Entry("binding", "BindImageMemory"),
			Entry("view", "CreateImageView"),
		)
	})
})

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

var _ = Describe("Swapchain", func() {
	var (
		fake       *gfxtest.Backend
		window     *gfxtest.Window
		ctx        *renderer.DeviceContext
		renderPass gfx.RenderPass
		cleanup    func()
	)

	BeforeEach(func() {
		fake = gfxtest.New()
		window = gfxtest.NewWindow()
		ctx, cleanup = newContext(fake, window)

		var err error
		renderPass, err = fake.CreateRenderPass(ctx.Device(), gfx.RenderPassInfo{
			ColorFormat: ctx.SurfaceFormat().Format,
			DepthFormat: ctx.DepthFormat(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		fake.DestroyRenderPass(ctx.Device(), renderPass)
		cleanup()
	})

	It("builds views, a depth buffer and framebuffers for every image", func() {
		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())
		defer sc.Destroy()

		Expect(sc.Ready()).To(BeTrue())
		Expect(sc.Extent()).To(Equal(gfx.Extent2D{Width: 800, Height: 600}))
		Expect(sc.ImageCount()).To(Equal(2))
		Expect(sc.Views()).To(HaveLen(2))
		Expect(sc.Framebuffers()).To(HaveLen(2))
		Expect(sc.DepthImage().Extent()).To(Equal(sc.Extent()))
		Expect(sc.DepthImage().Format()).To(Equal(ctx.DepthFormat()))

		Expect(fake.LiveOf(gfx.ObjectSwapchain)).To(Equal(1))
		Expect(fake.LiveOf(gfx.ObjectImageView)).To(Equal(3))
		Expect(fake.LiveOf(gfx.ObjectFramebuffer)).To(Equal(2))
	})

	It("tears everything down", func() {
		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())

		sc.Destroy()
		sc.Destroy()
		Expect(sc.Ready()).To(BeFalse())
		for _, kind := range []gfx.ObjectKind{
			gfx.ObjectSwapchain, gfx.ObjectImageView, gfx.ObjectFramebuffer, gfx.ObjectImage,
		} {
			Expect(fake.LiveOf(kind)).To(BeZero(), "kind %s", kind)
		}
	})

	It("is idempotent", func() {
		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())
		defer sc.Destroy()

		before := map[gfx.ObjectKind]int{}
		for _, kind := range []gfx.ObjectKind{gfx.ObjectSwapchain, gfx.ObjectImageView, gfx.ObjectFramebuffer, gfx.ObjectImage} {
			before[kind] = fake.LiveOf(kind)
		}
		oldViews := sc.Views()
		oldHandle := sc.Handle()

		for i := 0; i < 2; i++ {
			ok, err := sc.Rebuild()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		}

		Expect(sc.Extent()).To(Equal(gfx.Extent2D{Width: 800, Height: 600}))
		Expect(sc.ImageCount()).To(Equal(2))
		for kind, n := range before {
			Expect(fake.LiveOf(kind)).To(Equal(n), "kind %s", kind)
		}
		Expect(fake.IsLive(gfx.Handle(oldHandle))).To(BeFalse())
		for _, view := range oldViews {
			Expect(fake.IsLive(gfx.Handle(view))).To(BeFalse())
		}
	})

	It("hands the old swapchain over and destroys its dependents before creating new ones", func() {
		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())
		defer sc.Destroy()

		fake.ResetCalls()
		_, err = sc.Rebuild()
		Expect(err).NotTo(HaveOccurred())

		calls := fake.Calls()
		Expect(indexOf(calls, "DeviceWaitIdle", 1)).To(BeNumerically("<", indexOf(calls, "CreateSwapchain", 1)))
		Expect(indexOf(calls, "CreateSwapchain", 1)).To(BeNumerically("<", indexOf(calls, "DestroySwapchain", 1)))
		Expect(indexOf(calls, "DestroyFramebuffer", 2)).To(BeNumerically("<", indexOf(calls, "CreateImageView", 1)))
		Expect(indexOf(calls, "DestroyImageView", 2)).To(BeNumerically("<", indexOf(calls, "CreateImageView", 1)))
		Expect(indexOf(calls, "DestroyImage", 1)).To(BeNumerically("<", indexOf(calls, "CreateImage", 1)))
		Expect(fake.Violations()).To(BeEmpty())
	})

	It("follows the surface size", func() {
		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())
		defer sc.Destroy()

		window.Width, window.Height = 1024, 768
		fake.Capabilities.CurrentExtent = gfx.Extent2D{Width: 1024, Height: 768}

		ok, err := sc.Rebuild()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(sc.Extent()).To(Equal(gfx.Extent2D{Width: 1024, Height: 768}))
		Expect(fake.SwapchainExtent(sc.Handle())).To(Equal(sc.Extent()))
		Expect(sc.DepthImage().Extent()).To(Equal(sc.Extent()))
	})

	It("clamps the window size when the surface leaves the extent open", func() {
		fake.Capabilities.CurrentExtent = gfx.UndefinedExtent
		fake.Capabilities.MinImageExtent = gfx.Extent2D{Width: 100, Height: 100}
		window.Width, window.Height = 10000, 50

		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())
		defer sc.Destroy()

		Expect(sc.Extent()).To(Equal(gfx.Extent2D{Width: 4096, Height: 100}))
	})

	Context("with nothing to draw to", func() {
		It("skips the rebuild for a minimized window", func() {
			sc, err := renderer.NewSwapchain(ctx, window, renderPass)
			Expect(err).NotTo(HaveOccurred())
			defer sc.Destroy()
			handle := sc.Handle()

			window.Width, window.Height = 0, 0
			fake.ResetCalls()

			ok, err := sc.Rebuild()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(fake.Total()).To(BeZero())
			Expect(sc.Handle()).To(Equal(handle))
			Expect(fake.IsLive(gfx.Handle(handle))).To(BeTrue())
		})

		It("skips the rebuild when the surface reports an empty extent", func() {
			sc, err := renderer.NewSwapchain(ctx, window, renderPass)
			Expect(err).NotTo(HaveOccurred())
			defer sc.Destroy()

			fake.Capabilities.CurrentExtent = gfx.Extent2D{}
			fake.ResetCalls()

			ok, err := sc.Rebuild()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(fake.Count("CreateSwapchain")).To(BeZero())
			Expect(sc.Ready()).To(BeTrue())
		})

		It("starts out empty when created minimized", func() {
			window.Width, window.Height = 0, 0

			sc, err := renderer.NewSwapchain(ctx, window, renderPass)
			Expect(err).NotTo(HaveOccurred())
			defer sc.Destroy()

			Expect(sc.Ready()).To(BeFalse())
			Expect(fake.Count("CreateSwapchain")).To(BeZero())

			window.Width, window.Height = 800, 600
			ok, err := sc.Rebuild()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(sc.Ready()).To(BeTrue())
		})
	})

	DescribeTable("tears the subsystem down when a rebuild step fails",
		func(method string, nth int) {
			sc, err := renderer.NewSwapchain(ctx, window, renderPass)
			Expect(err).NotTo(HaveOccurred())
			defer sc.Destroy()

			fake.FailOn(method, nth)

			ok, err := sc.Rebuild()
			Expect(ok).To(BeFalse())
			Expect(errors.Is(err, gfxtest.ErrInjected)).To(BeTrue())
			Expect(sc.Ready()).To(BeFalse())
			for _, kind := range []gfx.ObjectKind{
				gfx.ObjectSwapchain, gfx.ObjectImageView, gfx.ObjectFramebuffer, gfx.ObjectImage, gfx.ObjectMemory,
			} {
				Expect(fake.LiveOf(kind)).To(BeZero(), "kind %s", kind)
			}

			ok, err = sc.Rebuild()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(sc.Framebuffers()).To(HaveLen(2))
		},
		Entry("swapchain", "CreateSwapchain", 1),
		Entry("images", "SwapchainImages", 1),
		Entry("first view", "CreateImageView", 1),
		Entry("second view", "CreateImageView", 2),
		Entry("depth image", "CreateImage", 1),
		Entry("depth memory", "AllocateMemory", 1),
		Entry("depth view", "CreateImageView", 3),
		Entry("first framebuffer", "CreateFramebuffer", 1),
		Entry("second framebuffer", "CreateFramebuffer", 2),
	)

	It("marks resource failures", func() {
		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())
		defer sc.Destroy()

		fake.FailOn("CreateFramebuffer", 2)
		_, err = sc.Rebuild()
		Expect(errors.Is(err, renderer.ErrResourceCreation)).To(BeTrue())
	})

	It("reports a lost device while waiting", func() {
		sc, err := renderer.NewSwapchain(ctx, window, renderPass)
		Expect(err).NotTo(HaveOccurred())
		defer sc.Destroy()

		fake.FailOn("DeviceWaitIdle", 1)
		_, err = sc.Rebuild()
		Expect(errors.Is(err, renderer.ErrDeviceLost)).To(BeTrue())
		Expect(sc.Ready()).To(BeTrue())
	})
})

var _ = DescribeTable("image count",
	func(min, max, preferred, expected uint32) {
		caps := gfx.SurfaceCapabilities{MinImageCount: min, MaxImageCount: max}
		Expect(renderer.ChooseImageCount(caps, preferred)).To(Equal(expected))
	},
	Entry("preferred within limits", uint32(2), uint32(8), uint32(3), uint32(3)),
	Entry("no upper limit", uint32(2), uint32(0), uint32(3), uint32(3)),
	Entry("minimum above preferred", uint32(4), uint32(0), uint32(3), uint32(4)),
	Entry("maximum below preferred", uint32(2), uint32(2), uint32(3), uint32(2)),
)

var _ = DescribeTable("extent",
	func(current gfx.Extent2D, width, height int, expected gfx.Extent2D) {
		caps := gfx.SurfaceCapabilities{
			CurrentExtent:  current,
			MinImageExtent: gfx.Extent2D{Width: 16, Height: 16},
			MaxImageExtent: gfx.Extent2D{Width: 2048, Height: 2048},
		}
		Expect(renderer.ChooseExtent(caps, width, height)).To(Equal(expected))
	},
	Entry("surface decides", gfx.Extent2D{Width: 640, Height: 480}, 800, 600, gfx.Extent2D{Width: 640, Height: 480}),
	Entry("window decides", gfx.UndefinedExtent, 800, 600, gfx.Extent2D{Width: 800, Height: 600}),
	Entry("clamped up", gfx.UndefinedExtent, 1, 1, gfx.Extent2D{Width: 16, Height: 16}),
	Entry("clamped down", gfx.UndefinedExtent, 4000, 3000, gfx.Extent2D{Width: 2048, Height: 2048}),
)

package renderer_test

import (
	"testing/fstest"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"vkframe/gfx"
	"vkframe/gfx/gfxtest"
	"vkframe/renderer"
	"vkframe/shaders"
)

type overlayFunc func(extent gfx.Extent2D) renderer.OverlayFrame

func (f overlayFunc) OverlayFrame(extent gfx.Extent2D) renderer.OverlayFrame { return f(extent) }

type pushScene struct {
	size int
}

func (s pushScene) FrameData(gfx.Extent2D) renderer.FrameData {
	return renderer.FrameData{Uniforms: make([]byte, 64), PushConstants: make([]byte, s.size)}
}

var _ = Describe("Renderer", func() {
	var (
		fake   *gfxtest.Backend
		window *gfxtest.Window
		scene  *staticScene
		cfg    renderer.Config
	)

	BeforeEach(func() {
		fake = gfxtest.New()
		window = gfxtest.NewWindow()
		scene = &staticScene{}
		cfg = testConfig()
	})

	newRenderer := func() *renderer.Renderer {
		r, err := renderer.New(fake, window, testShaders(), triangle(), scene, cfg)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	shutdown := func(r *renderer.Renderer) {
		Expect(r.Shutdown()).To(Succeed())
		Expect(fake.Violations()).To(BeEmpty())
		Expect(fake.Live()).To(BeZero(), "live: %v", fake.LiveKinds())
	}

	It("renders frames and shuts down without leaks", func() {
		r := newRenderer()

		for i := 0; i < 5; i++ {
			Expect(r.RenderOneFrame()).To(Succeed())
		}
		Expect(scene.frames).To(Equal(5))
		Expect(r.Driver().Cursor()).To(Equal(1))

		shutdown(r)
		Expect(r.Shutdown()).To(Succeed())
		Expect(r.RenderOneFrame()).NotTo(Succeed())
	})

	It("uploads the geometry", func() {
		r := newRenderer()
		defer shutdown(r)

		// Vertices, indices and the identity instance, plus the overlay's
		// white texture.
		Expect(fake.LiveOf(gfx.ObjectBuffer)).To(Equal(3))
		Expect(fake.Count("QueueWaitIdle")).To(Equal(4))
	})

	It("records the mesh draw with its bindings", func() {
		r := newRenderer()
		defer shutdown(r)
		fake.ResetCalls()

		Expect(r.RenderOneFrame()).To(Succeed())

		Expect(fake.Count("Cmd:beginRenderPass")).To(Equal(1))
		Expect(fake.Count("Cmd:bindSet")).To(Equal(1))
		Expect(fake.Count("Cmd:pushConstants")).To(Equal(1))
		Expect(fake.Count("Cmd:bindIndexBuffer")).To(Equal(1))
		Expect(fake.Count("Cmd:drawIndexed")).To(Equal(1))
		Expect(fake.Count("Cmd:endRenderPass")).To(Equal(1))
		Expect(fake.Count("UpdateDescriptorSet")).To(Equal(1))
	})

	It("rebuilds before the tick after an out of date swapchain", func() {
		r := newRenderer()
		defer shutdown(r)

		fake.AcquireStatus = func(call int) gfx.Status {
			if call == 3 {
				return gfx.StatusOutOfDate
			}
			return gfx.StatusSuccess
		}
		fake.ResetCalls()

		for i := 0; i < 4; i++ {
			Expect(r.RenderOneFrame()).To(Succeed())
		}

		calls := fake.Calls()
		third := indexOf(calls, "AcquireNextImage", 3)
		fourth := indexOf(calls, "AcquireNextImage", 4)
		rebuild := indexOf(calls, "CreateSwapchain", 1)

		Expect(third).To(BeNumerically(">=", 0))
		Expect(rebuild).To(BeNumerically(">", third))
		Expect(rebuild).To(BeNumerically("<", fourth))
		Expect(fake.Count("CreateSwapchain")).To(Equal(1))
		Expect(fake.Count("QueueSubmit")).To(Equal(3))
		Expect(fake.Count("QueuePresent")).To(Equal(3))
		Expect(indexOf(calls, "QueueSubmit", 3)).To(BeNumerically(">", rebuild))
	})

	It("rebuilds after a resize", func() {
		r := newRenderer()
		defer shutdown(r)

		window.Width, window.Height = 1280, 720
		fake.Capabilities.CurrentExtent = gfx.Extent2D{Width: 1280, Height: 720}
		r.HandleResize()
		fake.ResetCalls()

		Expect(r.RenderOneFrame()).To(Succeed())
		Expect(fake.Count("CreateSwapchain")).To(Equal(1))
		Expect(r.Swapchain().Extent()).To(Equal(gfx.Extent2D{Width: 1280, Height: 720}))
		Expect(r.Driver().NeedsRebuild()).To(BeFalse())
	})

	It("draws nothing while minimized", func() {
		window.Width, window.Height = 0, 0
		r := newRenderer()
		defer shutdown(r)

		for i := 0; i < 3; i++ {
			Expect(r.RenderOneFrame()).To(Succeed())
		}
		Expect(fake.Count("AcquireNextImage")).To(BeZero())
		Expect(scene.frames).To(BeZero())

		window.Width, window.Height = 800, 600
		Expect(r.RenderOneFrame()).To(Succeed())
		Expect(fake.Count("AcquireNextImage")).To(Equal(1))
		Expect(scene.frames).To(Equal(1))
	})

	It("switches to the wireframe pipeline", func() {
		r := newRenderer()
		defer shutdown(r)

		// Solid, wireframe and overlay.
		Expect(fake.Count("CreateGraphicsPipeline")).To(Equal(3))
		Expect(fake.LiveOf(gfx.ObjectShaderModule)).To(BeZero())

		r.SetWireframe(true)
		Expect(r.RenderOneFrame()).To(Succeed())
		r.SetWireframe(false)
		Expect(r.RenderOneFrame()).To(Succeed())
	})

	It("adds the tessellation stages when asked to", func() {
		cfg.Tessellation = true
		r := newRenderer()
		defer shutdown(r)

		Expect(fake.Count("CreateShaderModule")).To(Equal(6))
		Expect(r.RenderOneFrame()).To(Succeed())
	})

	It("refuses push constants which do not fit", func() {
		r, err := renderer.New(fake, window, testShaders(), triangle(), pushScene{size: 256}, cfg)
		Expect(err).NotTo(HaveOccurred())
		defer shutdown(r)

		Expect(r.RenderOneFrame()).To(MatchError(ContainSubstring("push constants")))
		// Only the uploads were submitted.
		Expect(fake.Count("QueueSubmit")).To(Equal(4))
	})

	Describe("overlay", func() {
		vertices := make([]byte, 3*renderer.OverlayVertexSize)
		indices := []byte{0, 0, 1, 0, 2, 0}

		It("draws the visible commands clipped to the frame", func() {
			r := newRenderer()
			defer shutdown(r)

			r.SetOverlay(overlayFunc(func(extent gfx.Extent2D) renderer.OverlayFrame {
				scale, translate := renderer.PixelScale(extent)
				return renderer.OverlayFrame{
					Vertices: vertices,
					Indices:  indices,
					Draws: []renderer.OverlayDraw{
						{IndexCount: 3, Clip: gfx.Rect2D{
							Offset: gfx.Offset2D{X: -10, Y: 10},
							Extent: gfx.Extent2D{Width: 100, Height: 100},
						}},
						{IndexCount: 3, Clip: gfx.Rect2D{
							Offset: gfx.Offset2D{X: 900, Y: 10},
							Extent: gfx.Extent2D{Width: 100, Height: 100},
						}},
					},
					Scale:     scale,
					Translate: translate,
				}
			}))
			fake.ResetCalls()

			Expect(r.RenderOneFrame()).To(Succeed())

			Expect(fake.Count("Cmd:drawIndexed")).To(Equal(2))
			Expect(fake.Count("Cmd:bindVertexBuffer")).To(Equal(1))
			// The mesh set and the overlay's texture set.
			Expect(fake.Count("Cmd:bindSet")).To(Equal(2))
			Expect(fake.Count("UpdateDescriptorSet")).To(Equal(2))
			Expect(fake.Count("Cmd:scissor")).To(Equal(3))
			Expect(fake.Count("Cmd:pushConstants")).To(Equal(2))
		})

		It("samples the frame's texture and falls back to white", func() {
			r := newRenderer()
			defer shutdown(r)

			atlas, err := r.Context().CreateImageWithData(make([]byte, 8*8*4),
				gfx.Extent2D{Width: 8, Height: 8}, gfx.FormatR8G8B8A8Unorm, "font atlas")
			Expect(err).NotTo(HaveOccurred())
			defer func() {
				Expect(r.Context().WaitIdle()).To(Succeed())
				atlas.Release()
			}()

			var texture *renderer.Image
			r.SetOverlay(overlayFunc(func(gfx.Extent2D) renderer.OverlayFrame {
				return renderer.OverlayFrame{
					Vertices: vertices,
					Indices:  indices,
					Draws:    []renderer.OverlayDraw{{IndexCount: 3, Clip: gfx.Rect2D{Extent: gfx.Extent2D{Width: 8, Height: 8}}}},
					Texture:  texture,
				}
			}))

			Expect(r.RenderOneFrame()).To(Succeed())
			white := fake.ImageViewWrites()
			Expect(white).To(HaveLen(1))
			Expect(white[0]).NotTo(Equal(atlas.View()))

			texture = atlas
			Expect(r.RenderOneFrame()).To(Succeed())
			Expect(fake.ImageViewWrites()).To(Equal([]gfx.ImageView{white[0], atlas.View()}))
			Expect(fake.Violations()).To(BeEmpty())
		})

		It("grows the per-slot buffers with the geometry", func() {
			r := newRenderer()
			defer shutdown(r)

			count := 3
			r.SetOverlay(overlayFunc(func(gfx.Extent2D) renderer.OverlayFrame {
				return renderer.OverlayFrame{
					Vertices: make([]byte, count*renderer.OverlayVertexSize),
					Indices:  make([]byte, count*2),
					Draws:    []renderer.OverlayDraw{{IndexCount: uint32(count), Clip: gfx.Rect2D{Extent: gfx.Extent2D{Width: 8, Height: 8}}}},
				}
			}))

			Expect(r.RenderOneFrame()).To(Succeed())
			Expect(r.RenderOneFrame()).To(Succeed())
			created := fake.Created(gfx.ObjectBuffer)

			Expect(r.RenderOneFrame()).To(Succeed())
			Expect(fake.Created(gfx.ObjectBuffer)).To(Equal(created))

			count = 1000
			Expect(r.RenderOneFrame()).To(Succeed())
			Expect(fake.Created(gfx.ObjectBuffer)).To(Equal(created + 2))
		})

		It("rejects draws outside the index data without recording them", func() {
			r := newRenderer()
			defer shutdown(r)

			r.SetOverlay(overlayFunc(func(gfx.Extent2D) renderer.OverlayFrame {
				return renderer.OverlayFrame{
					Vertices: vertices,
					Indices:  []byte{0, 0, 1, 0, 2},
					Draws: []renderer.OverlayDraw{
						{IndexCount: 2, Clip: gfx.Rect2D{Extent: gfx.Extent2D{Width: 8, Height: 8}}},
						{IndexCount: 1000, FirstIndex: 50, Clip: gfx.Rect2D{Extent: gfx.Extent2D{Width: 8, Height: 8}}},
					},
				}
			}))
			fake.ResetCalls()

			Expect(r.RenderOneFrame()).To(MatchError(ContainSubstring("overlay")))
			// Only the mesh draw was recorded, and nothing was submitted.
			Expect(fake.Count("Cmd:drawIndexed")).To(Equal(1))
			Expect(fake.Count("QueueSubmit")).To(BeZero())

			r.SetOverlay(overlayFunc(func(gfx.Extent2D) renderer.OverlayFrame {
				return renderer.OverlayFrame{
					Vertices: vertices,
					Indices:  indices,
					Draws:    []renderer.OverlayDraw{{IndexCount: 3, FirstIndex: 1}},
				}
			}))
			Expect(r.RenderOneFrame()).To(MatchError(ContainSubstring("overlay")))

			r.SetOverlay(nil)
			Expect(r.RenderOneFrame()).To(Succeed())
			Expect(fake.Violations()).To(BeEmpty())
		})

		It("rejects vertex data of the wrong stride", func() {
			r := newRenderer()
			defer shutdown(r)

			r.SetOverlay(overlayFunc(func(gfx.Extent2D) renderer.OverlayFrame {
				return renderer.OverlayFrame{
					Vertices: make([]byte, 7),
					Indices:  indices,
					Draws:    []renderer.OverlayDraw{{IndexCount: 3}},
				}
			}))
			Expect(r.RenderOneFrame()).To(MatchError(ContainSubstring("overlay")))

			r.SetOverlay(nil)
			Expect(r.RenderOneFrame()).To(Succeed())
		})
	})

	Describe("construction", func() {
		It("rejects empty geometry before touching the device", func() {
			_, err := renderer.New(fake, window, testShaders(), renderer.Geometry{}, scene, cfg)
			Expect(errors.Is(err, renderer.ErrEmptyUpload)).To(BeTrue())
			Expect(fake.Total()).To(BeZero())
		})

		It("rejects index counts the index data cannot hold", func() {
			geometry := triangle()
			geometry.IndexCount = 4

			_, err := renderer.New(fake, window, testShaders(), geometry, scene, cfg)
			Expect(err).To(HaveOccurred())
			Expect(fake.Total()).To(BeZero())
		})

		It("cleans up when a shader is missing", func() {
			source := shaders.NewFS(fstest.MapFS{
				renderer.MeshVertexShader: &fstest.MapFile{Data: spirv},
			})

			_, err := renderer.New(fake, window, source, triangle(), scene, cfg)
			Expect(err).To(MatchError(ContainSubstring(renderer.MeshFragmentShader)))
			Expect(fake.Live()).To(BeZero(), "live: %v", fake.LiveKinds())
			Expect(fake.Violations()).To(BeEmpty())
		})

		It("leaves nothing behind whichever backend call fails", func() {
			counting := gfxtest.New()
			r, err := renderer.New(counting, gfxtest.NewWindow(), testShaders(), triangle(), &staticScene{}, cfg)
			Expect(err).NotTo(HaveOccurred())
			total := counting.Total()
			Expect(r.Shutdown()).To(Succeed())

			failed := 0
			for k := 1; k <= total; k++ {
				fake := gfxtest.New()
				fake.FailAfter(k)

				r, err := renderer.New(fake, gfxtest.NewWindow(), testShaders(), triangle(), &staticScene{}, cfg)
				if err != nil {
					failed++
					Expect(r).To(BeNil())
				} else {
					Expect(r.Shutdown()).To(Succeed())
				}

				Expect(fake.Live()).To(BeZero(), "failing call %d: live %v", k, fake.LiveKinds())
				Expect(fake.Violations()).To(BeEmpty(), "failing call %d", k)
				for kind := gfx.ObjectInstance; kind <= gfx.ObjectSampler; kind++ {
					Expect(fake.Destroyed(kind)).To(Equal(fake.Created(kind)),
						"failing call %d: %s", k, kind)
				}
			}
			Expect(failed).To(BeNumerically(">", 10))
		})
	})
})

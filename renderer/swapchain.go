package renderer

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
	"vkframe/rollback"
)

// Swapchain owns the presentable images' views, the depth buffer and one
// framebuffer per image. All of them are rebuilt together whenever the surface
// changes.
type Swapchain struct {
	ctx        *DeviceContext
	window     Window
	renderPass gfx.RenderPass

	handle gfx.Swapchain

	// caps is the surface capabilities snapshot the current swapchain was built
	// from.
	caps   gfx.SurfaceCapabilities
	extent gfx.Extent2D

	// images belong to the swapchain and are never destroyed on their own.
	images       []gfx.Image
	views        []gfx.ImageView
	depth        *Image
	framebuffers []gfx.Framebuffer
}

// NewSwapchain creates the swapchain subsystem and builds it for the current
// window size. A minimized window leaves it empty until the next Rebuild.
func NewSwapchain(ctx *DeviceContext, window Window, renderPass gfx.RenderPass) (*Swapchain, error) {
	s := &Swapchain{
		ctx:        ctx,
		window:     window,
		renderPass: renderPass,
	}

	if _, err := s.Rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rebuild replaces the swapchain and everything which depends on its size. It
// returns false without touching anything when the drawable area is empty. When
// a step fails, what the rebuild created so far is destroyed together with the
// rest of the subsystem and the error is returned.
func (s *Swapchain) Rebuild() (bool, error) {
	width, height := s.window.GetFramebufferSize()
	if width <= 0 || height <= 0 {
		Logger().Debug("swapchain: window is minimized, rebuild skipped")
		return false, nil
	}

	backend, device := s.ctx.backend, s.ctx.device

	if err := s.ctx.WaitIdle(); err != nil {
		return false, err
	}

	caps, err := backend.SurfaceCapabilities(s.ctx.physicalDevice, s.ctx.surface)
	if err != nil {
		return false, errors.Wrap(err, "surfaceCapabilities")
	}

	extent := chooseExtent(caps, width, height)
	if extent.IsZero() {
		Logger().Debug("swapchain: surface extent is empty, rebuild skipped")
		return false, nil
	}

	rb := rollback.New("swapchain rebuild", Logger())
	fail := func(err error) (bool, error) {
		unwind(rb)
		s.Destroy()
		return false, err
	}

	handle, err := backend.CreateSwapchain(device, gfx.SwapchainInfo{
		Surface:       s.ctx.surface,
		MinImageCount: chooseImageCount(caps, s.ctx.cfg.PreferredImageCount),
		Format:        s.ctx.surfaceFormat,
		Extent:        extent,
		PresentMode:   s.ctx.presentMode,
		Transform:     caps.CurrentTransform,
		OldSwapchain:  s.handle,
	})
	if err != nil {
		return fail(creationFailed(err, "createSwapchain"))
	}
	rb.Push("swapchain", func() {
		backend.DestroySwapchain(device, handle)
	})
	s.ctx.name(gfx.ObjectSwapchain, gfx.Handle(handle), "swapchain %dx%d", extent.Width, extent.Height)

	if s.handle != gfx.NullSwapchain {
		backend.DestroySwapchain(device, s.handle)
		s.handle = gfx.NullSwapchain
	}

	images, err := backend.SwapchainImages(device, handle)
	if err != nil {
		return fail(errors.Wrap(err, "swapchainImages"))
	}

	s.destroyFramebuffers()
	s.destroyViews()

	views := make([]gfx.ImageView, 0, len(images))
	for i, image := range images {
		view, err := backend.CreateImageView(device, image, s.ctx.surfaceFormat.Format, gfx.ImageAspectColor)
		if err != nil {
			return fail(creationFailed(err, "createImageViews"))
		}
		rb.Push("image view", func() {
			backend.DestroyImageView(device, view)
		})
		s.ctx.name(gfx.ObjectImageView, gfx.Handle(view), "swapchain view %d", i)
		views = append(views, view)
	}

	s.depth.Release()
	s.depth = nil

	depth, err := s.ctx.allocator.CreateImage(gfx.ImageInfo{
		Extent: extent,
		Format: s.ctx.depthFormat,
		Usage:  gfx.ImageUsageDepthStencilAttachment,
	}, GpuOnly, "depth buffer")
	if err != nil {
		return fail(errors.Wrap(err, "createDepthResources"))
	}
	rb.Push("depth buffer", depth.Release)

	framebuffers := make([]gfx.Framebuffer, 0, len(views))
	for i, view := range views {
		fb, err := backend.CreateFramebuffer(device, gfx.FramebufferInfo{
			RenderPass:  s.renderPass,
			Attachments: []gfx.ImageView{view, depth.View()},
			Extent:      extent,
		})
		if err != nil {
			return fail(creationFailed(err, "createFramebuffers"))
		}
		rb.Push("framebuffer", func() {
			backend.DestroyFramebuffer(device, fb)
		})
		s.ctx.name(gfx.ObjectFramebuffer, gfx.Handle(fb), "framebuffer %d", i)
		framebuffers = append(framebuffers, fb)
	}

	rb.Defuse()

	s.handle = handle
	s.caps = caps
	s.extent = extent
	s.images = images
	s.views = views
	s.depth = depth
	s.framebuffers = framebuffers

	Logger().Info("swapchain: rebuilt",
		slog.Int("width", int(extent.Width)),
		slog.Int("height", int(extent.Height)),
		slog.Int("images", len(images)),
	)
	return true, nil
}

// chooseExtent uses the surface's extent when it has one. Otherwise the window
// size is clamped into what the surface allows.
func chooseExtent(caps gfx.SurfaceCapabilities, width, height int) gfx.Extent2D {
	if caps.CurrentExtent != gfx.UndefinedExtent {
		return caps.CurrentExtent
	}

	return gfx.Extent2D{
		Width:  clamp(uint32(width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for preferred images but never for fewer than the
// surface needs or more than it allows. A maximum of zero means no limit.
func chooseImageCount(caps gfx.SurfaceCapabilities, preferred uint32) uint32 {
	count := max(caps.MinImageCount, preferred)
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func (s *Swapchain) destroyFramebuffers() {
	for _, fb := range s.framebuffers {
		s.ctx.backend.DestroyFramebuffer(s.ctx.device, fb)
	}
	s.framebuffers = nil
}

func (s *Swapchain) destroyViews() {
	for _, view := range s.views {
		s.ctx.backend.DestroyImageView(s.ctx.device, view)
	}
	s.views = nil
}

// Destroy releases everything the subsystem owns. Calling it twice is harmless.
func (s *Swapchain) Destroy() {
	s.destroyFramebuffers()
	s.destroyViews()

	s.depth.Release()
	s.depth = nil

	if s.handle != gfx.NullSwapchain {
		s.ctx.backend.DestroySwapchain(s.ctx.device, s.handle)
		s.handle = gfx.NullSwapchain
	}

	s.images = nil
	s.extent = gfx.Extent2D{}
}

// Ready returns true when there is a swapchain to render to.
func (s *Swapchain) Ready() bool { return s.handle != gfx.NullSwapchain }

// Handle returns the current swapchain handle.
func (s *Swapchain) Handle() gfx.Swapchain { return s.handle }

// Extent returns the size of the swapchain images.
func (s *Swapchain) Extent() gfx.Extent2D { return s.extent }

// ImageCount returns the number of swapchain images.
func (s *Swapchain) ImageCount() int { return len(s.images) }

// Framebuffer returns the framebuffer of the image at index.
func (s *Swapchain) Framebuffer(index uint32) gfx.Framebuffer { return s.framebuffers[index] }

// Framebuffers returns all framebuffers in image order.
func (s *Swapchain) Framebuffers() []gfx.Framebuffer {
	return append([]gfx.Framebuffer(nil), s.framebuffers...)
}

// Views returns the image views in image order.
func (s *Swapchain) Views() []gfx.ImageView {
	return append([]gfx.ImageView(nil), s.views...)
}

// DepthImage returns the depth buffer.
func (s *Swapchain) DepthImage() *Image { return s.depth }

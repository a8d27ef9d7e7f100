// Package renderer drives a Vulkan device through the gfx.Backend interface. It
// brings the device up and down transactionally, keeps the swapchain in step
// with the window, hands out device memory and runs the frame loop over a small
// ring of frame slots.
package renderer

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
	"vkframe/rollback"
	"vkframe/unsafer"
)

// Geometry is the mesh drawn every frame. The shaders fetch vertices and
// per-instance data from storage buffers, so their layout is up to the shaders.
type Geometry struct {
	Vertices  []byte
	Indices   []byte
	Instances []byte

	IndexType     gfx.IndexType
	IndexCount    uint32
	InstanceCount uint32
}

// identityInstance is a single identity 4x4 matrix, used when the geometry comes
// without instance data.
var identityInstance = func() []byte {
	m := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	return append([]byte(nil), unsafer.SliceToBytes(m)...)
}()

func (g *Geometry) validate() error {
	if len(g.Vertices) == 0 {
		return errors.Mark(errors.New("geometry: no vertices"), ErrEmptyUpload)
	}
	if len(g.Indices) == 0 || g.IndexCount == 0 {
		return errors.Mark(errors.New("geometry: no indices"), ErrEmptyUpload)
	}
	if uint64(g.IndexCount)*g.IndexType.Size() > uint64(len(g.Indices)) {
		return errors.Newf("geometry: %d indices do not fit in %d bytes", g.IndexCount, len(g.Indices))
	}
	return nil
}

// FrameData is what the scene supplies for one frame.
type FrameData struct {
	// Uniforms is copied into the frame's uniform buffer, binding 0.
	Uniforms []byte

	// PushConstants are pushed before the mesh draw. At most MaxPushConstants
	// bytes.
	PushConstants []byte
}

// Scene supplies the per-frame data of the mesh.
type Scene interface {
	FrameData(extent gfx.Extent2D) FrameData
}

// Renderer bundles the device context, pipelines, swapchain, static geometry and
// frame pool, and renders the mesh with an optional overlay on top.
type Renderer struct {
	ctx       *DeviceContext
	pipes     *pipelines
	swapchain *Swapchain
	pool      *FramePool
	driver    *FrameDriver

	vertices  *Buffer
	indices   *Buffer
	instances *Buffer
	geometry  Geometry

	scene     Scene
	overlay   Overlay
	wireframe bool
	closed    bool
}

// New brings up the whole renderer. On failure everything created so far is
// destroyed in reverse order.
func New(
	backend gfx.Backend,
	window Window,
	shaders ShaderSource,
	geometry Geometry,
	scene Scene,
	cfg Config,
) (*Renderer, error) {
	if err := geometry.validate(); err != nil {
		return nil, err
	}
	if len(geometry.Instances) == 0 {
		geometry.Instances = identityInstance
		geometry.InstanceCount = 1
	}
	if geometry.InstanceCount == 0 {
		geometry.InstanceCount = 1
	}

	r := &Renderer{
		geometry: geometry,
		scene:    scene,
	}

	rb := rollback.New("renderer", Logger())
	defer unwind(rb)

	ctx, err := NewDeviceContext(backend, window, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "device context")
	}
	r.ctx = ctx
	rb.Push("device context", ctx.Destroy)

	pipes, err := newPipelines(ctx, shaders)
	if err != nil {
		return nil, errors.Wrap(err, "pipelines")
	}
	r.pipes = pipes
	rb.Push("pipelines", func() {
		pipes.destroy(ctx)
	})

	swapchain, err := NewSwapchain(ctx, window, pipes.renderPass)
	if err != nil {
		return nil, errors.Wrap(err, "swapchain")
	}
	r.swapchain = swapchain
	rb.Push("swapchain", swapchain.Destroy)

	r.vertices, err = ctx.CreateBufferWithData(geometry.Vertices, gfx.BufferUsageStorage,
		gfx.AccessShaderRead, gfx.PipelineStageVertexShader, "vertices")
	if err != nil {
		return nil, errors.Wrap(err, "geometry")
	}
	rb.Push("vertex buffer", r.vertices.Release)

	r.indices, err = ctx.CreateBufferWithData(geometry.Indices, gfx.BufferUsageIndex,
		gfx.AccessIndexRead, gfx.PipelineStageVertexInput, "indices")
	if err != nil {
		return nil, errors.Wrap(err, "geometry")
	}
	rb.Push("index buffer", r.indices.Release)

	r.instances, err = ctx.CreateBufferWithData(geometry.Instances, gfx.BufferUsageStorage,
		gfx.AccessShaderRead, gfx.PipelineStageVertexShader, "instances")
	if err != nil {
		return nil, errors.Wrap(err, "geometry")
	}
	rb.Push("instance buffer", r.instances.Release)

	pool, err := NewFramePool(ctx, cfg.FramesInFlight, pipes.setLayout)
	if err != nil {
		return nil, errors.Wrap(err, "frame pool")
	}
	r.pool = pool
	rb.Push("frame pool", pool.Destroy)

	r.driver = NewFrameDriver(ctx, swapchain, pool)

	Logger().Info("renderer: created",
		slog.Int("frames in flight", pool.Len()),
		slog.Int("swapchain images", swapchain.ImageCount()),
	)

	rb.Defuse()
	return r, nil
}

// RenderOneFrame rebuilds the swapchain if it was invalidated and renders one
// frame. Nothing is rendered while the window is minimized.
func (r *Renderer) RenderOneFrame() error {
	if r.closed {
		return errors.New("render: renderer is shut down")
	}

	if r.driver.NeedsRebuild() {
		ok, err := r.driver.Rebuild()
		if err != nil {
			return errors.Wrap(err, "rebuilding swapchain")
		}
		if !ok {
			return nil
		}
	}

	_, err := r.driver.Tick(frameRecorder{r})
	return err
}

// HandleResize marks the swapchain for a rebuild before the next frame.
func (r *Renderer) HandleResize() {
	r.driver.RequestRebuild()
}

// SetWireframe selects between the solid and the wireframe pipeline.
func (r *Renderer) SetWireframe(wireframe bool) {
	r.wireframe = wireframe
}

// SetOverlay sets what is drawn on top of the mesh. Nil removes the overlay.
func (r *Renderer) SetOverlay(overlay Overlay) {
	r.overlay = overlay
}

// Context returns the device context.
func (r *Renderer) Context() *DeviceContext { return r.ctx }

// Swapchain returns the swapchain subsystem.
func (r *Renderer) Swapchain() *Swapchain { return r.swapchain }

// Driver returns the frame driver.
func (r *Renderer) Driver() *FrameDriver { return r.driver }

// Shutdown waits for the device to go idle and destroys everything in reverse
// creation order. Calling it again does nothing.
func (r *Renderer) Shutdown() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs error
	if err := r.ctx.WaitIdle(); err != nil {
		Logger().Warn("renderer: wait idle before shutdown failed", "err", err)
		errs = err
	}

	r.pool.Destroy()
	r.instances.Release()
	r.indices.Release()
	r.vertices.Release()
	r.swapchain.Destroy()
	r.pipes.destroy(r.ctx)

	stats := r.ctx.allocator.Stats()
	Logger().Debug("renderer: allocator before shutdown",
		slog.Int("blocks", stats.Blocks),
		slog.Int("allocations", stats.Allocations),
		slog.Uint64("bytes in use", stats.BytesInUse),
	)

	r.ctx.Destroy()
	return errs
}

// frameRecorder records the mesh and the overlay.
type frameRecorder struct {
	r *Renderer
}

func (f frameRecorder) Record(cb gfx.CommandBuffer, slot *FrameSlot, target FrameTarget) error {
	r := f.r
	backend, device := r.ctx.backend, r.ctx.device

	var data FrameData
	if r.scene != nil {
		data = r.scene.FrameData(target.Extent)
	}
	if len(data.PushConstants) > MaxPushConstants {
		return errors.Newf("%d bytes of push constants, at most %d fit",
			len(data.PushConstants), MaxPushConstants)
	}

	uniforms, err := slot.HostBuffer("uniforms", uint64(len(data.Uniforms)), gfx.BufferUsageUniform)
	if err != nil {
		return errors.Wrap(err, "uniform buffer")
	}
	copy(uniforms.Bytes(), data.Uniforms)

	set, err := slot.DescriptorSet()
	if err != nil {
		return err
	}
	backend.UpdateDescriptorSet(device, set, []gfx.DescriptorWrite{
		{
			Binding: BindingUniforms,
			Type:    gfx.DescriptorTypeUniformBuffer,
			Buffer:  uniforms.Handle(),
			Range:   uniforms.Size(),
		},
		{
			Binding: BindingVertices,
			Type:    gfx.DescriptorTypeStorageBuffer,
			Buffer:  r.vertices.Handle(),
			Range:   r.vertices.Size(),
		},
		{
			Binding: BindingInstances,
			Type:    gfx.DescriptorTypeStorageBuffer,
			Buffer:  r.instances.Handle(),
			Range:   r.instances.Size(),
		},
	})

	area := gfx.Rect2D{Extent: target.Extent}
	backend.CmdBeginRenderPass(cb, r.pipes.renderPass, target.Framebuffer, area, gfx.ClearValues{
		Color: r.ctx.cfg.ClearColor,
		Depth: 1,
	})

	backend.CmdSetViewport(cb, gfx.Viewport{
		Width:    float32(target.Extent.Width),
		Height:   float32(target.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	backend.CmdSetScissor(cb, area)

	backend.CmdBindPipeline(cb, r.pipes.mesh(r.wireframe))
	backend.CmdBindDescriptorSet(cb, r.pipes.meshLayout, set)
	if len(data.PushConstants) > 0 {
		stages := gfx.ShaderStageVertex | gfx.ShaderStageFragment
		if r.ctx.cfg.Tessellation {
			stages |= gfx.ShaderStageTessControl | gfx.ShaderStageTessEvaluation
		}
		backend.CmdPushConstants(cb, r.pipes.meshLayout, stages, 0, data.PushConstants)
	}
	backend.CmdBindIndexBuffer(cb, r.indices.Handle(), 0, r.geometry.IndexType)
	backend.CmdDrawIndexed(cb, r.geometry.IndexCount, r.geometry.InstanceCount, 0, 0)

	if r.overlay != nil {
		frame := r.overlay.OverlayFrame(target.Extent)
		if err := recordOverlay(r.ctx, r.pipes, cb, slot, frame, target.Extent); err != nil {
			backend.CmdEndRenderPass(cb)
			return err
		}
	}

	backend.CmdEndRenderPass(cb)
	return nil
}

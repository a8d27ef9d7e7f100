package renderer

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
	"vkframe/rollback"
)

// CreateBufferWithData creates a device local buffer holding a copy of data. The
// bytes go through a staging buffer. A barrier makes the copy visible to
// dstAccess at dstStage. The call blocks until the queue is idle, so the result
// is ready for use once it returns.
func (ctx *DeviceContext) CreateBufferWithData(
	data []byte,
	usage gfx.BufferUsage,
	dstAccess gfx.Access,
	dstStage gfx.PipelineStage,
	name string,
) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.Mark(errors.Newf("upload %q: no data", name), ErrEmptyUpload)
	}
	size := uint64(len(data))

	staging, err := ctx.allocator.CreateBuffer(size, gfx.BufferUsageTransferSrc, CpuToGpu, name+" staging")
	if err != nil {
		return nil, errors.Wrap(err, "upload: staging buffer")
	}
	defer staging.Release()

	mapped := staging.Bytes()
	if mapped == nil {
		return nil, errors.Mark(errors.Newf("upload %q: staging memory is not mapped", name), ErrResourceCreation)
	}
	copy(mapped, data)

	rb := rollback.New("upload "+name, Logger())
	defer unwind(rb)

	dst, err := ctx.allocator.CreateBuffer(size, usage|gfx.BufferUsageTransferDst, GpuOnly, name)
	if err != nil {
		return nil, errors.Wrap(err, "upload: destination buffer")
	}
	rb.Push("destination buffer", dst.Release)

	err = ctx.submitOnce(func(cb gfx.CommandBuffer) {
		ctx.backend.CmdCopyBuffer(cb, staging.Handle(), dst.Handle(), size)
		ctx.backend.CmdBufferBarrier(cb, gfx.BufferBarrier{
			Buffer:    dst.Handle(),
			Size:      size,
			SrcAccess: gfx.AccessTransferWrite,
			DstAccess: dstAccess,
			SrcStage:  gfx.PipelineStageTransfer,
			DstStage:  dstStage,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upload %q", name)
	}

	Logger().Debug("upload: done", slog.String("buffer", name), slog.Int("bytes", len(data)))

	rb.Defuse()
	return dst, nil
}

// CreateImageWithData creates a sampled image holding a copy of data, which are
// tightly packed texels of format. The image ends up in the shader read-only
// layout, visible to fragment shaders. Like CreateBufferWithData it blocks until
// the queue is idle.
func (ctx *DeviceContext) CreateImageWithData(
	data []byte,
	extent gfx.Extent2D,
	format gfx.Format,
	name string,
) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.Mark(errors.Newf("upload %q: no data", name), ErrEmptyUpload)
	}
	texel := format.PixelSize()
	if texel == 0 {
		return nil, unsupportedf("upload %q: format %d cannot be uploaded", name, format)
	}
	size := uint64(extent.Width) * uint64(extent.Height) * texel
	if extent.IsZero() || uint64(len(data)) != size {
		return nil, errors.Newf("upload %q: %d bytes do not make a %dx%d image",
			name, len(data), extent.Width, extent.Height)
	}

	staging, err := ctx.allocator.CreateBuffer(size, gfx.BufferUsageTransferSrc, CpuToGpu, name+" staging")
	if err != nil {
		return nil, errors.Wrap(err, "upload: staging buffer")
	}
	defer staging.Release()

	mapped := staging.Bytes()
	if mapped == nil {
		return nil, errors.Mark(errors.Newf("upload %q: staging memory is not mapped", name), ErrResourceCreation)
	}
	copy(mapped, data)

	rb := rollback.New("upload "+name, Logger())
	defer unwind(rb)

	dst, err := ctx.allocator.CreateImage(gfx.ImageInfo{
		Extent: extent,
		Format: format,
		Usage:  gfx.ImageUsageSampled | gfx.ImageUsageTransferDst,
	}, GpuOnly, name)
	if err != nil {
		return nil, errors.Wrap(err, "upload: destination image")
	}
	rb.Push("destination image", dst.Release)

	err = ctx.submitOnce(func(cb gfx.CommandBuffer) {
		ctx.backend.CmdImageBarrier(cb, gfx.ImageBarrier{
			Image:     dst.Handle(),
			OldLayout: gfx.ImageLayoutUndefined,
			NewLayout: gfx.ImageLayoutTransferDstOptimal,
			DstAccess: gfx.AccessTransferWrite,
			SrcStage:  gfx.PipelineStageTopOfPipe,
			DstStage:  gfx.PipelineStageTransfer,
		})
		ctx.backend.CmdCopyBufferToImage(cb, staging.Handle(), dst.Handle(), extent)
		ctx.backend.CmdImageBarrier(cb, gfx.ImageBarrier{
			Image:     dst.Handle(),
			OldLayout: gfx.ImageLayoutTransferDstOptimal,
			NewLayout: gfx.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess: gfx.AccessTransferWrite,
			DstAccess: gfx.AccessShaderRead,
			SrcStage:  gfx.PipelineStageTransfer,
			DstStage:  gfx.PipelineStageFragmentShader,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upload %q", name)
	}

	Logger().Debug("upload: done",
		slog.String("image", name),
		slog.Int("width", int(extent.Width)),
		slog.Int("height", int(extent.Height)),
	)

	rb.Defuse()
	return dst, nil
}

// submitOnce records commands into a throwaway command buffer, submits it and
// waits for the queue to drain.
func (ctx *DeviceContext) submitOnce(record func(cb gfx.CommandBuffer)) error {
	backend, device := ctx.backend, ctx.device

	pool, err := backend.CreateCommandPool(device, ctx.queueFamily, gfx.CommandPoolTransient)
	if err != nil {
		return creationFailed(err, "createCommandPool")
	}
	defer backend.DestroyCommandPool(device, pool)

	buffers, err := backend.AllocateCommandBuffers(device, pool, 1)
	if err != nil {
		return creationFailed(err, "allocateCommandBuffers")
	}
	cb := buffers[0]

	if err := backend.BeginCommandBuffer(cb, true); err != nil {
		return errors.Wrap(err, "beginCommandBuffer")
	}

	record(cb)

	if err := backend.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "endCommandBuffer")
	}

	err = backend.QueueSubmit(ctx.queue, gfx.SubmitInfo{CommandBuffers: buffers}, gfx.NullFence)
	if err != nil {
		return errors.Wrap(err, "queueSubmit")
	}

	if err := backend.QueueWaitIdle(ctx.queue); err != nil {
		return deviceLost(err, "queueWaitIdle")
	}
	return nil
}

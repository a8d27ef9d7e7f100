package renderer

import (
	"github.com/cockroachdb/errors"

	"vkframe/gfx"
	"vkframe/rollback"
)

// Buffer is a buffer together with the memory bound to it. Both go away in a
// single Release.
type Buffer struct {
	allocator  *Allocator
	handle     gfx.Buffer
	allocation *Allocation
	size       uint64
	usage      gfx.BufferUsage
	placement  Placement
}

// Handle returns the buffer handle for binding and recording. It must not be
// destroyed directly.
func (b *Buffer) Handle() gfx.Buffer { return b.handle }

// Size returns the size the buffer was created with.
func (b *Buffer) Size() uint64 { return b.size }

// Placement returns the placement the buffer was created with.
func (b *Buffer) Placement() Placement { return b.placement }

// Bytes returns the buffer's memory for buffers the CPU can see, nil otherwise.
// Writes are visible to the device without flushing.
func (b *Buffer) Bytes() []byte {
	if b.allocation == nil || b.allocation.block == nil {
		return nil
	}
	mapped := b.allocation.Mapped()
	if mapped == nil {
		return nil
	}
	return mapped[:b.size:b.size]
}

// Released returns true after Release.
func (b *Buffer) Released() bool { return b.handle == gfx.NullBuffer }

// Release destroys the buffer and frees its memory. Calling it again does
// nothing.
func (b *Buffer) Release() {
	if b == nil || b.handle == gfx.NullBuffer {
		return
	}

	b.allocator.backend.DestroyBuffer(b.allocator.device, b.handle)
	b.allocator.Free(b.allocation)
	b.handle = gfx.NullBuffer
	b.allocation = nil
}

// CreateBuffer creates a buffer of size bytes and binds memory chosen by
// placement to it.
func (a *Allocator) CreateBuffer(
	size uint64,
	usage gfx.BufferUsage,
	placement Placement,
	name string,
) (*Buffer, error) {
	if size == 0 {
		return nil, errors.Mark(errors.Newf("createBuffer %q: zero size", name), ErrResourceCreation)
	}

	rb := rollback.New("buffer "+name, Logger())
	defer unwind(rb)

	handle, err := a.backend.CreateBuffer(a.device, gfx.BufferInfo{Size: size, Usage: usage})
	if err != nil {
		return nil, creationFailed(err, "createBuffer")
	}
	rb.Push("buffer", func() {
		a.backend.DestroyBuffer(a.device, handle)
	})

	req := a.backend.BufferMemoryRequirements(a.device, handle)
	allocation, err := a.Allocate(req, placement)
	if err != nil {
		return nil, errors.Wrapf(err, "createBuffer %q", name)
	}
	rb.Push("allocation", func() {
		a.Free(allocation)
	})

	err = a.backend.BindBufferMemory(a.device, handle, allocation.Memory(), allocation.Offset())
	if err != nil {
		return nil, creationFailed(err, "bindBufferMemory")
	}

	a.namer.SetObjectName(gfx.ObjectBuffer, gfx.Handle(handle), name)

	rb.Defuse()
	return &Buffer{
		allocator:  a,
		handle:     handle,
		allocation: allocation,
		size:       size,
		usage:      usage,
		placement:  placement,
	}, nil
}

// Image is an image with its memory and a view covering all of it.
type Image struct {
	allocator  *Allocator
	handle     gfx.Image
	view       gfx.ImageView
	allocation *Allocation
	info       gfx.ImageInfo
}

// Handle returns the image handle. It must not be destroyed directly.
func (i *Image) Handle() gfx.Image { return i.handle }

// View returns the view over the whole image.
func (i *Image) View() gfx.ImageView { return i.view }

// Extent returns the size of the image.
func (i *Image) Extent() gfx.Extent2D { return i.info.Extent }

// Format returns the format of the image.
func (i *Image) Format() gfx.Format { return i.info.Format }

// Release destroys the view and the image and frees the memory. Calling it again
// does nothing.
func (i *Image) Release() {
	if i == nil || i.handle == gfx.NullImage {
		return
	}

	backend, device := i.allocator.backend, i.allocator.device
	backend.DestroyImageView(device, i.view)
	backend.DestroyImage(device, i.handle)
	i.allocator.Free(i.allocation)

	i.view = gfx.NullImageView
	i.handle = gfx.NullImage
	i.allocation = nil
}

// CreateImage creates a 2D image, binds memory to it and creates its view. Images
// used as depth/stencil attachments get a depth view, others a color view.
func (a *Allocator) CreateImage(info gfx.ImageInfo, placement Placement, name string) (*Image, error) {
	if info.Extent.IsZero() {
		return nil, errors.Mark(
			errors.Newf("createImage %q: zero extent %dx%d", name, info.Extent.Width, info.Extent.Height),
			ErrResourceCreation,
		)
	}

	rb := rollback.New("image "+name, Logger())
	defer unwind(rb)

	handle, err := a.backend.CreateImage(a.device, info)
	if err != nil {
		return nil, creationFailed(err, "createImage")
	}
	rb.Push("image", func() {
		a.backend.DestroyImage(a.device, handle)
	})

	req := a.backend.ImageMemoryRequirements(a.device, handle)
	allocation, err := a.Allocate(req, placement)
	if err != nil {
		return nil, errors.Wrapf(err, "createImage %q", name)
	}
	rb.Push("allocation", func() {
		a.Free(allocation)
	})

	err = a.backend.BindImageMemory(a.device, handle, allocation.Memory(), allocation.Offset())
	if err != nil {
		return nil, creationFailed(err, "bindImageMemory")
	}

	aspect := gfx.ImageAspectColor
	if info.Usage&gfx.ImageUsageDepthStencilAttachment != 0 {
		aspect = gfx.ImageAspectDepth
	}

	view, err := a.backend.CreateImageView(a.device, handle, info.Format, aspect)
	if err != nil {
		return nil, creationFailed(err, "createImageView")
	}

	a.namer.SetObjectName(gfx.ObjectImage, gfx.Handle(handle), name)
	a.namer.SetObjectName(gfx.ObjectImageView, gfx.Handle(view), name+" view")

	rb.Defuse()
	return &Image{
		allocator:  a,
		handle:     handle,
		view:       view,
		allocation: allocation,
		info:       info,
	}, nil
}

package renderer

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
)

// FrameResult tells what a Tick did.
type FrameResult int

// Frame results.
const (
	// FrameRendered means a frame was submitted and presented.
	FrameRendered FrameResult = iota

	// FrameSkipped means nothing was submitted because the swapchain has to be
	// rebuilt first.
	FrameSkipped
)

func (r FrameResult) String() string {
	if r == FrameSkipped {
		return "skipped"
	}
	return "rendered"
}

// FrameTarget is the swapchain image a frame renders to.
type FrameTarget struct {
	ImageIndex  uint32
	Framebuffer gfx.Framebuffer
	Extent      gfx.Extent2D
}

// Recorder records the commands of one frame into cb. The command buffer is
// already begun and is ended by the caller. Resources which live for a single
// frame come from slot.
type Recorder interface {
	Record(cb gfx.CommandBuffer, slot *FrameSlot, target FrameTarget) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(cb gfx.CommandBuffer, slot *FrameSlot, target FrameTarget) error

// Record calls f.
func (f RecorderFunc) Record(cb gfx.CommandBuffer, slot *FrameSlot, target FrameTarget) error {
	return f(cb, slot, target)
}

// FrameDriver runs the per-frame protocol over a swapchain and a frame pool.
type FrameDriver struct {
	ctx       *DeviceContext
	swapchain *Swapchain
	pool      *FramePool

	// cursor is the slot the next frame uses.
	cursor int

	needsRebuild bool

	rendered, skipped uint64
}

// NewFrameDriver returns a driver starting at slot 0.
func NewFrameDriver(ctx *DeviceContext, swapchain *Swapchain, pool *FramePool) *FrameDriver {
	return &FrameDriver{
		ctx:          ctx,
		swapchain:    swapchain,
		pool:         pool,
		needsRebuild: !swapchain.Ready(),
	}
}

// Cursor returns the index of the slot the next frame uses.
func (d *FrameDriver) Cursor() int { return d.cursor }

// NeedsRebuild returns true when the swapchain must be rebuilt before the next
// frame can be rendered.
func (d *FrameDriver) NeedsRebuild() bool { return d.needsRebuild }

// Rendered returns how many frames were presented.
func (d *FrameDriver) Rendered() uint64 { return d.rendered }

// Skipped returns how many frames were skipped.
func (d *FrameDriver) Skipped() uint64 { return d.skipped }

// RequestRebuild marks the swapchain as invalid.
func (d *FrameDriver) RequestRebuild() { d.needsRebuild = true }

// Rebuild rebuilds the swapchain when it was marked invalid. It returns false
// when there is still nothing to render to, for example while the window is
// minimized.
func (d *FrameDriver) Rebuild() (bool, error) {
	if !d.needsRebuild {
		return true, nil
	}

	ok, err := d.swapchain.Rebuild()
	if err != nil || !ok {
		return false, err
	}

	// The rebuild waited for the device, so no semaphore is in use now.
	for _, slot := range d.pool.slots {
		if err := slot.renewImageAvailable(); err != nil {
			return false, err
		}
	}

	d.needsRebuild = false
	return true, nil
}

// Tick renders one frame with the slot under the cursor:
// acquire, wait and reset the fence, reset the slot, record, submit, present
// and move the cursor. When the swapchain turns out to be out of date or
// suboptimal at acquire time the frame is skipped and the cursor stays put.
func (d *FrameDriver) Tick(rec Recorder) (FrameResult, error) {
	result, err := d.tick(rec)
	// A frame whose present failed was still submitted.
	if result == FrameRendered {
		d.rendered++
	} else {
		d.skipped++
	}
	return result, err
}

func (d *FrameDriver) tick(rec Recorder) (FrameResult, error) {
	if !d.swapchain.Ready() {
		d.needsRebuild = true
		return FrameSkipped, nil
	}

	backend, device := d.ctx.backend, d.ctx.device
	slot := d.pool.slots[d.cursor]

	imageIndex, status, err := backend.AcquireNextImage(device, d.swapchain.Handle(), slot.imageAvailable)
	if err != nil {
		return FrameSkipped, errors.Wrap(err, "acquireNextImage")
	}
	if status != gfx.StatusSuccess {
		if status == gfx.StatusSuboptimal {
			slot.staleImageAvailable = true
		}
		d.needsRebuild = true

		Logger().Debug("frame: skipped",
			slog.Int("slot", d.cursor),
			slog.String("acquire", status.String()),
		)
		return FrameSkipped, nil
	}

	if err := slot.Wait(); err != nil {
		return FrameSkipped, err
	}

	if err := d.record(slot, imageIndex, rec); err != nil {
		// The acquired image is never presented and its semaphore stays
		// signaled, so start over with a fresh swapchain.
		slot.staleImageAvailable = true
		d.needsRebuild = true
		return FrameSkipped, err
	}

	status, err = backend.QueuePresent(d.ctx.queue, d.swapchain.Handle(), imageIndex, slot.renderFinished)
	d.cursor = (d.cursor + 1) % len(d.pool.slots)
	if err != nil {
		return FrameRendered, errors.Wrap(err, "queuePresent")
	}

	if status != gfx.StatusSuccess {
		d.needsRebuild = true
		Logger().Debug("frame: swapchain needs rebuild", slog.String("present", status.String()))
	}

	return FrameRendered, nil
}

// record resets the slot, records the frame and submits it.
func (d *FrameDriver) record(slot *FrameSlot, imageIndex uint32, rec Recorder) error {
	backend := d.ctx.backend

	if err := slot.Reset(); err != nil {
		return err
	}

	cb, err := slot.CommandBuffer()
	if err != nil {
		return err
	}

	if err := backend.BeginCommandBuffer(cb, true); err != nil {
		return errors.Wrap(err, "beginCommandBuffer")
	}

	target := FrameTarget{
		ImageIndex:  imageIndex,
		Framebuffer: d.swapchain.Framebuffer(imageIndex),
		Extent:      d.swapchain.Extent(),
	}
	if err := rec.Record(cb, slot, target); err != nil {
		return errors.Wrap(err, "recording frame")
	}

	if err := backend.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "endCommandBuffer")
	}

	return slot.submit([]gfx.CommandBuffer{cb})
}

package renderer

import (
	"fmt"
	"math/bits"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
	"vkframe/rollback"
)

// minHostBuffer is the smallest size a per-slot host buffer is created with.
const minHostBuffer = 256

// FrameSlot is everything one frame in flight needs. A slot is only touched again
// after its fence said the GPU is done with it.
type FrameSlot struct {
	ctx    *DeviceContext
	index  int
	layout gfx.DescriptorSetLayout

	commandPool gfx.CommandPool

	// available command buffers are ready to record, inUse ones were handed out
	// since the last Reset.
	available []gfx.CommandBuffer
	inUse     []gfx.CommandBuffer

	descriptorPool gfx.DescriptorPool

	fence          gfx.Fence
	imageAvailable gfx.Semaphore
	renderFinished gfx.Semaphore

	// pending is true between a submission signaling fence and the wait which
	// observes the signal.
	pending bool

	// unsubmitted is true between a fence reset and the next submission. A wait
	// in that window would never return.
	unsubmitted bool

	// staleImageAvailable is set when an image was acquired with imageAvailable
	// but never rendered to, which leaves the semaphore signaled.
	staleImageAvailable bool

	hostBuffers map[string]*Buffer
}

func newFrameSlot(ctx *DeviceContext, index int, layout gfx.DescriptorSetLayout) (*FrameSlot, error) {
	backend, device := ctx.backend, ctx.device
	s := &FrameSlot{
		ctx:         ctx,
		index:       index,
		layout:      layout,
		hostBuffers: make(map[string]*Buffer),
	}

	rb := rollback.New(fmt.Sprintf("frame slot %d", index), Logger())
	defer unwind(rb)

	pool, err := backend.CreateCommandPool(device, ctx.queueFamily, gfx.CommandPoolTransient)
	if err != nil {
		return nil, creationFailed(err, "createCommandPool")
	}
	s.commandPool = pool
	rb.Push("command pool", func() {
		backend.DestroyCommandPool(device, pool)
	})
	ctx.name(gfx.ObjectCommandPool, gfx.Handle(pool), "frame %d command pool", index)

	maxSets := ctx.cfg.DescriptorPoolMaxSets
	descriptorPool, err := backend.CreateDescriptorPool(device, gfx.DescriptorPoolInfo{
		MaxSets: maxSets,
		Sizes: []gfx.DescriptorPoolSize{
			{Type: gfx.DescriptorTypeUniformBuffer, Count: maxSets},
			{Type: gfx.DescriptorTypeStorageBuffer, Count: 2 * maxSets},
			{Type: gfx.DescriptorTypeCombinedImageSampler, Count: maxSets},
		},
	})
	if err != nil {
		return nil, creationFailed(err, "createDescriptorPool")
	}
	s.descriptorPool = descriptorPool
	rb.Push("descriptor pool", func() {
		backend.DestroyDescriptorPool(device, descriptorPool)
	})
	ctx.name(gfx.ObjectDescriptorPool, gfx.Handle(descriptorPool), "frame %d descriptor pool", index)

	// Signaled so that the first wait on a fresh slot returns at once.
	fence, err := backend.CreateFence(device, true)
	if err != nil {
		return nil, creationFailed(err, "createFence")
	}
	s.fence = fence
	rb.Push("fence", func() {
		backend.DestroyFence(device, fence)
	})
	ctx.name(gfx.ObjectFence, gfx.Handle(fence), "frame %d in flight", index)

	imageAvailable, err := backend.CreateSemaphore(device)
	if err != nil {
		return nil, creationFailed(err, "createSemaphore image available")
	}
	s.imageAvailable = imageAvailable
	rb.Push("image available semaphore", func() {
		backend.DestroySemaphore(device, s.imageAvailable)
	})
	ctx.name(gfx.ObjectSemaphore, gfx.Handle(imageAvailable), "frame %d image available", index)

	renderFinished, err := backend.CreateSemaphore(device)
	if err != nil {
		return nil, creationFailed(err, "createSemaphore render finished")
	}
	s.renderFinished = renderFinished
	rb.Push("render finished semaphore", func() {
		backend.DestroySemaphore(device, renderFinished)
	})
	ctx.name(gfx.ObjectSemaphore, gfx.Handle(renderFinished), "frame %d render finished", index)

	rb.Defuse()
	return s, nil
}

// Index returns the position of the slot in its pool.
func (s *FrameSlot) Index() int { return s.index }

// Fence returns the fence signaled when the slot's last submission completes.
func (s *FrameSlot) Fence() gfx.Fence { return s.fence }

// Wait blocks until the slot's last submission has completed and resets the
// fence for the next one. When nothing was submitted since the last reset there
// is nothing to wait for.
func (s *FrameSlot) Wait() error {
	if s.unsubmitted {
		return nil
	}

	backend, device := s.ctx.backend, s.ctx.device

	if err := backend.WaitFence(device, s.fence); err != nil {
		return deviceLost(err, "waitForFences")
	}
	s.pending = false

	if err := backend.ResetFence(device, s.fence); err != nil {
		return errors.Wrap(err, "resetFences")
	}
	s.unsubmitted = true
	return nil
}

// Reset returns every command buffer and descriptor set of the slot to its pools
// in bulk. It refuses to run while the fence of the last submission has not been
// waited for.
func (s *FrameSlot) Reset() error {
	if s.pending {
		return errors.Newf("frame slot %d: reset while its submission may still run", s.index)
	}

	backend, device := s.ctx.backend, s.ctx.device

	if err := backend.ResetCommandPool(device, s.commandPool); err != nil {
		return errors.Wrap(err, "resetCommandPool")
	}
	if err := backend.ResetDescriptorPool(device, s.descriptorPool); err != nil {
		return errors.Wrap(err, "resetDescriptorPool")
	}

	s.available = append(s.available, s.inUse...)
	s.inUse = s.inUse[:0]
	return nil
}

// CommandBuffer hands out a command buffer in the initial state. Command buffers
// are allocated in batches when the slot runs out.
func (s *FrameSlot) CommandBuffer() (gfx.CommandBuffer, error) {
	if len(s.available) == 0 {
		batch, err := s.ctx.backend.AllocateCommandBuffers(
			s.ctx.device,
			s.commandPool,
			s.ctx.cfg.CommandBufferBatch,
		)
		if err != nil {
			return 0, creationFailed(err, "allocateCommandBuffers")
		}
		for _, cb := range batch {
			s.ctx.name(gfx.ObjectCommandBuffer, gfx.Handle(cb), "frame %d command buffer", s.index)
		}
		s.available = append(s.available, batch...)

		Logger().Debug("frame slot: command buffers allocated",
			slog.Int("slot", s.index),
			slog.Int("count", len(batch)),
		)
	}

	last := len(s.available) - 1
	cb := s.available[last]
	s.available = s.available[:last]
	s.inUse = append(s.inUse, cb)
	return cb, nil
}

// DescriptorSet allocates a set of the mesh layout from the slot's pool. It is
// valid until the next Reset.
func (s *FrameSlot) DescriptorSet() (gfx.DescriptorSet, error) {
	return s.DescriptorSetFor(s.layout)
}

// DescriptorSetFor is DescriptorSet for sets of another layout.
func (s *FrameSlot) DescriptorSetFor(layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	set, err := s.ctx.backend.AllocateDescriptorSet(s.ctx.device, s.descriptorPool, layout)
	if err != nil {
		return 0, creationFailed(err, "allocateDescriptorSets")
	}
	return set, nil
}

// HostBuffer returns the slot's CPU visible buffer called key, at least size
// bytes large. Buffers grow to the next power of two when too small, and their
// old contents are lost when they do.
func (s *FrameSlot) HostBuffer(key string, size uint64, usage gfx.BufferUsage) (*Buffer, error) {
	if buf, ok := s.hostBuffers[key]; ok && buf.Size() >= size {
		return buf, nil
	}

	capacity := nextPowerOfTwo(max(size, minHostBuffer))
	buf, err := s.ctx.allocator.CreateBuffer(capacity, usage, CpuVisible,
		fmt.Sprintf("frame %d %s", s.index, key))
	if err != nil {
		return nil, err
	}

	if old, ok := s.hostBuffers[key]; ok {
		old.Release()
	}
	s.hostBuffers[key] = buf

	Logger().Debug("frame slot: host buffer resized",
		slog.Int("slot", s.index),
		slog.String("buffer", key),
		slog.Uint64("size", capacity),
	)
	return buf, nil
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

// submit hands the recorded command buffers to the queue. The submission waits
// for the acquired image and signals renderFinished and the fence.
func (s *FrameSlot) submit(buffers []gfx.CommandBuffer) error {
	err := s.ctx.backend.QueueSubmit(s.ctx.queue, gfx.SubmitInfo{
		CommandBuffers:   buffers,
		WaitSemaphores:   []gfx.Semaphore{s.imageAvailable},
		WaitStages:       []gfx.PipelineStage{gfx.PipelineStageColorAttachmentOutput},
		SignalSemaphores: []gfx.Semaphore{s.renderFinished},
	}, s.fence)
	if err != nil {
		return errors.Wrap(err, "queueSubmit")
	}
	s.pending = true
	s.unsubmitted = false
	return nil
}

// renewImageAvailable replaces a semaphore left signaled by an acquire whose
// image was never rendered. The device must be idle.
func (s *FrameSlot) renewImageAvailable() error {
	if !s.staleImageAvailable {
		return nil
	}

	backend, device := s.ctx.backend, s.ctx.device
	semaphore, err := backend.CreateSemaphore(device)
	if err != nil {
		return creationFailed(err, "createSemaphore image available")
	}

	backend.DestroySemaphore(device, s.imageAvailable)
	s.imageAvailable = semaphore
	s.staleImageAvailable = false
	s.ctx.name(gfx.ObjectSemaphore, gfx.Handle(semaphore), "frame %d image available", s.index)
	return nil
}

func (s *FrameSlot) destroy() {
	backend, device := s.ctx.backend, s.ctx.device

	for _, buf := range s.hostBuffers {
		buf.Release()
	}
	s.hostBuffers = make(map[string]*Buffer)

	backend.DestroySemaphore(device, s.renderFinished)
	backend.DestroySemaphore(device, s.imageAvailable)
	backend.DestroyFence(device, s.fence)
	backend.DestroyDescriptorPool(device, s.descriptorPool)
	backend.DestroyCommandPool(device, s.commandPool)

	s.renderFinished = gfx.NullSemaphore
	s.imageAvailable = gfx.NullSemaphore
	s.fence = gfx.NullFence
	s.descriptorPool = gfx.NullDescriptorPool
	s.commandPool = gfx.NullCommandPool
	s.available, s.inUse = nil, nil
}

// FramePool is a fixed ring of frame slots.
type FramePool struct {
	slots []*FrameSlot
}

// NewFramePool creates n slots whose descriptor sets use layout. If any slot
// fails, the ones created before it are destroyed.
func NewFramePool(ctx *DeviceContext, n int, layout gfx.DescriptorSetLayout) (*FramePool, error) {
	if n < 1 {
		return nil, errors.Newf("frame pool: need at least one slot, got %d", n)
	}

	p := &FramePool{}

	rb := rollback.New("frame pool", Logger())
	defer unwind(rb)

	for i := 0; i < n; i++ {
		slot, err := newFrameSlot(ctx, i, layout)
		if err != nil {
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
		rb.Push(fmt.Sprintf("frame slot %d", i), slot.destroy)
		p.slots = append(p.slots, slot)
	}

	rb.Defuse()
	return p, nil
}

// Len returns the number of slots.
func (p *FramePool) Len() int { return len(p.slots) }

// Slot returns slot i.
func (p *FramePool) Slot(i int) *FrameSlot { return p.slots[i] }

// Destroy destroys every slot. The device must be idle.
func (p *FramePool) Destroy() {
	for _, slot := range p.slots {
		slot.destroy()
	}
	p.slots = nil
}

package renderer

import (
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
)

// Placement says who reads and writes a resource and so decides which kind of
// memory backs it.
type Placement int

// Placements.
const (
	// GpuOnly memory is device local and not visible to the CPU.
	GpuOnly Placement = iota

	// CpuToGpu memory is written by the CPU and read by the GPU once, as for
	// staging buffers.
	CpuToGpu

	// CpuVisible memory is written by the CPU every frame. Device local memory
	// is used when the CPU can also see it.
	CpuVisible
)

func (p Placement) String() string {
	switch p {
	case GpuOnly:
		return "gpu only"
	case CpuToGpu:
		return "cpu to gpu"
	case CpuVisible:
		return "cpu visible"
	}
	return "unknown placement"
}

// memoryProperties lists the acceptable property sets for a placement, most
// preferred first.
func (p Placement) memoryProperties() []gfx.MemoryProperty {
	hostVisible := gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent

	switch p {
	case CpuToGpu:
		return []gfx.MemoryProperty{hostVisible}
	case CpuVisible:
		return []gfx.MemoryProperty{hostVisible | gfx.MemoryPropertyDeviceLocal, hostVisible}
	default:
		return []gfx.MemoryProperty{gfx.MemoryPropertyDeviceLocal}
	}
}

// findMemoryType returns the index of the first memory type allowed by typeBits
// which has the properties the placement asks for.
func findMemoryType(types []gfx.MemoryType, typeBits uint32, placement Placement) (uint32, bool) {
	for _, want := range placement.memoryProperties() {
		for i, memType := range types {
			if typeBits&(1<<uint(i)) == 0 {
				continue
			}
			if memType.Properties.Has(want) {
				return uint32(i), true
			}
		}
	}
	return 0, false
}

// Allocation is a range of device memory handed out by the Allocator.
type Allocation struct {
	block  *memoryBlock
	offset uint64
	size   uint64
}

// Memory returns the device memory the allocation lives in.
func (a *Allocation) Memory() gfx.Memory { return a.block.memory }

// Offset returns where the allocation starts in Memory.
func (a *Allocation) Offset() uint64 { return a.offset }

// Size returns the size of the allocation.
func (a *Allocation) Size() uint64 { return a.size }

// Mapped returns the allocation's bytes when its memory is host visible and nil
// otherwise.
func (a *Allocation) Mapped() []byte {
	if a.block.mapped == nil {
		return nil
	}
	return a.block.mapped[a.offset : a.offset+a.size : a.offset+a.size]
}

type freeRange struct {
	offset uint64
	size   uint64
}

// memoryBlock is one device memory allocation carved up into Allocations.
type memoryBlock struct {
	memory    gfx.Memory
	typeIndex uint32
	size      uint64

	// mapped is the whole block mapped into the address space, for host
	// visible memory types.
	mapped []byte

	// free is sorted by offset and no two ranges touch.
	free []freeRange
	live int

	// dedicated blocks hold a single allocation larger than the block size.
	dedicated bool

	// released is set once the memory went back to the device.
	released bool
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	if m := v % align; m != 0 {
		return v - m + align
	}
	return v
}

// take finds the first free range which can hold size bytes at the given
// alignment and carves them out of it.
func (b *memoryBlock) take(size, align uint64) (uint64, bool) {
	for i, r := range b.free {
		start := alignUp(r.offset, align)
		end := start + size
		if end > r.offset+r.size {
			continue
		}

		var split []freeRange
		if start > r.offset {
			split = append(split, freeRange{offset: r.offset, size: start - r.offset})
		}
		if end < r.offset+r.size {
			split = append(split, freeRange{offset: end, size: r.offset + r.size - end})
		}

		rest := append(split, b.free[i+1:]...)
		b.free = append(b.free[:i], rest...)
		b.live++
		return start, true
	}
	return 0, false
}

// give returns a range to the block and merges it with its neighbours.
func (b *memoryBlock) give(offset, size uint64) {
	i := 0
	for i < len(b.free) && b.free[i].offset < offset {
		i++
	}

	b.free = append(b.free, freeRange{})
	copy(b.free[i+1:], b.free[i:])
	b.free[i] = freeRange{offset: offset, size: size}

	if i+1 < len(b.free) && b.free[i].offset+b.free[i].size == b.free[i+1].offset {
		b.free[i].size += b.free[i+1].size
		b.free = append(b.free[:i+1], b.free[i+2:]...)
	}
	if i > 0 && b.free[i-1].offset+b.free[i-1].size == b.free[i].offset {
		b.free[i-1].size += b.free[i].size
		b.free = append(b.free[:i], b.free[i+1:]...)
	}

	b.live--
}

// AllocatorStats is a snapshot of the allocator's bookkeeping.
type AllocatorStats struct {
	// Blocks is the number of device memory allocations held.
	Blocks int

	// Allocations is the number of live sub-allocations.
	Allocations int

	// BytesInUse is the sum of the sizes of the live sub-allocations.
	BytesInUse uint64

	// BytesReserved is the sum of the sizes of the blocks.
	BytesReserved uint64
}

// Allocator hands out device memory for buffers and images. It reserves large
// blocks per memory type and sub-allocates from them. Safe for concurrent use.
type Allocator struct {
	mu sync.Mutex

	backend   gfx.Backend
	device    gfx.Device
	types     []gfx.MemoryType
	blockSize uint64
	namer     DebugNamer

	blocks     map[uint32][]*memoryBlock
	bytesInUse uint64
}

func newAllocator(
	backend gfx.Backend,
	device gfx.Device,
	types []gfx.MemoryType,
	blockSize uint64,
	namer DebugNamer,
) *Allocator {
	return &Allocator{
		backend:   backend,
		device:    device,
		types:     types,
		blockSize: blockSize,
		namer:     namerOrNop(namer),
		blocks:    make(map[uint32][]*memoryBlock),
	}
}

// Allocate reserves memory which satisfies req for the given placement.
func (a *Allocator) Allocate(req gfx.MemoryRequirements, placement Placement) (*Allocation, error) {
	if req.Size == 0 {
		return nil, errors.Mark(errors.New("allocate: zero size"), ErrResourceCreation)
	}

	typeIndex, ok := findMemoryType(a.types, req.TypeBits, placement)
	if !ok {
		return nil, unsupportedf("allocate: no memory type for %s with type bits %#x",
			placement, req.TypeBits)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if req.Size > a.blockSize {
		block, err := a.newBlock(typeIndex, req.Size, true)
		if err != nil {
			return nil, err
		}
		offset, _ := block.take(req.Size, req.Alignment)
		return a.track(block, offset, req.Size), nil
	}

	for _, block := range a.blocks[typeIndex] {
		if block.dedicated {
			continue
		}
		if offset, ok := block.take(req.Size, req.Alignment); ok {
			return a.track(block, offset, req.Size), nil
		}
	}

	block, err := a.newBlock(typeIndex, a.blockSize, false)
	if err != nil {
		return nil, err
	}
	offset, _ := block.take(req.Size, req.Alignment)
	return a.track(block, offset, req.Size), nil
}

func (a *Allocator) track(block *memoryBlock, offset, size uint64) *Allocation {
	a.bytesInUse += size
	return &Allocation{block: block, offset: offset, size: size}
}

func (a *Allocator) newBlock(typeIndex uint32, size uint64, dedicated bool) (*memoryBlock, error) {
	memory, err := a.backend.AllocateMemory(a.device, size, typeIndex)
	if err != nil {
		return nil, creationFailed(err, "allocateMemory")
	}

	block := &memoryBlock{
		memory:    memory,
		typeIndex: typeIndex,
		size:      size,
		free:      []freeRange{{offset: 0, size: size}},
		dedicated: dedicated,
	}

	if a.types[typeIndex].Properties.Has(gfx.MemoryPropertyHostVisible) {
		mapped, err := a.backend.MapMemory(a.device, memory, size)
		if err != nil {
			a.backend.FreeMemory(a.device, memory)
			return nil, creationFailed(err, "mapMemory")
		}
		block.mapped = mapped
	}

	a.blocks[typeIndex] = append(a.blocks[typeIndex], block)
	a.namer.SetObjectName(gfx.ObjectMemory, gfx.Handle(memory), "allocator block")

	Logger().Debug("allocator: block created",
		slog.Int("memory type", int(typeIndex)),
		slog.Uint64("size", size),
		slog.Bool("dedicated", dedicated),
	)
	return block, nil
}

// Free returns an allocation. Blocks left without allocations are given back
// to the device.
func (a *Allocator) Free(alloc *Allocation) {
	if alloc == nil || alloc.block == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	block := alloc.block
	alloc.block = nil
	if block.released {
		return
	}

	block.give(alloc.offset, alloc.size)
	a.bytesInUse -= alloc.size

	if block.live == 0 {
		a.releaseBlock(block)
	}
}

func (a *Allocator) releaseBlock(block *memoryBlock) {
	list := a.blocks[block.typeIndex]
	for i, b := range list {
		if b == block {
			a.blocks[block.typeIndex] = append(list[:i], list[i+1:]...)
			break
		}
	}

	if block.mapped != nil {
		a.backend.UnmapMemory(a.device, block.memory)
		block.mapped = nil
	}
	a.backend.FreeMemory(a.device, block.memory)
	block.released = true

	Logger().Debug("allocator: block released",
		slog.Int("memory type", int(block.typeIndex)),
		slog.Uint64("size", block.size),
	)
}

// Stats returns the current bookkeeping numbers.
func (a *Allocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AllocatorStats{BytesInUse: a.bytesInUse}
	for _, list := range a.blocks {
		for _, block := range list {
			stats.Blocks++
			stats.Allocations += block.live
			stats.BytesReserved += block.size
		}
	}
	return stats
}

// Destroy gives every block back to the device, including blocks which still
// have live allocations.
func (a *Allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for typeIndex, list := range a.blocks {
		for _, block := range list {
			if block.live > 0 {
				Logger().Warn("allocator: block destroyed with live allocations",
					slog.Int("memory type", int(typeIndex)),
					slog.Int("allocations", block.live),
				)
			}
			if block.mapped != nil {
				a.backend.UnmapMemory(a.device, block.memory)
				block.mapped = nil
			}
			a.backend.FreeMemory(a.device, block.memory)
			block.released = true
		}
	}

	a.blocks = make(map[uint32][]*memoryBlock)
	a.bytesInUse = 0
}

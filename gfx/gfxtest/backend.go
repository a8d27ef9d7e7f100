// Package gfxtest provides an in-memory gfx.Backend for tests. It keeps track of
// every live object, emulates device memory, buffer copies and image uploads
// including layout transitions, models fences as
// signaled or pending, and can fail any call on demand.
package gfxtest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"vkframe/gfx"
	"vkframe/queues"
)

// ErrInjected is returned by calls which were told to fail.
var ErrInjected = errors.New("injected failure")

// Backend is the fake. Exported fields configure it and may be changed between
// calls. The zero value is not ready, use New.
type Backend struct {
	mu sync.Mutex

	// Version is reported by InstanceVersion.
	Version gfx.Version

	// Extensions and Layers are reported as available on the instance.
	Extensions []string
	Layers     []string

	// Devices are the physical devices in enumeration order.
	Devices []gfx.DeviceInfo

	// Capabilities is reported by SurfaceCapabilities.
	Capabilities gfx.SurfaceCapabilities

	// ImageCount is how many images each swapchain has. Zero means the requested
	// minimum image count.
	ImageCount uint32

	// AcquireStatus and PresentStatus, when set, decide the status of the n-th
	// call (1-based) of AcquireNextImage and QueuePresent.
	AcquireStatus func(call int) gfx.Status
	PresentStatus func(call int) gfx.Status

	next    gfx.Handle
	live    map[gfx.Handle]gfx.ObjectKind
	created map[gfx.ObjectKind]int
	freed   map[gfx.ObjectKind]int

	calls  []string
	counts map[string]int
	fail   map[string]int

	// failAt is the value of total at which the next call fails, zero for
	// never.
	total  int
	failAt int

	memory      map[gfx.Memory][]byte
	mapped      map[gfx.Memory]bool
	buffers     map[gfx.Buffer]*bufferState
	images      map[gfx.Image]*imageState
	cbPool      map[gfx.CommandBuffer]gfx.CommandPool
	cbCommands  map[gfx.CommandBuffer][]command
	cbRecording map[gfx.CommandBuffer]bool
	setPool     map[gfx.DescriptorSet]gfx.DescriptorPool
	fences      map[gfx.Fence]bool
	submitted   map[gfx.Fence]bool
	inFlight    map[gfx.Handle]gfx.Fence
	swapchains  map[gfx.Swapchain]*swapchainState
	objectNames map[gfx.Handle]string

	// imageWrites are the image views of combined image sampler writes, in
	// order.
	imageWrites []gfx.ImageView

	violations []string
}

type bufferState struct {
	size   uint64
	memory gfx.Memory
	offset uint64
	bound  bool
}

// imageState tracks images created through CreateImage. Swapchain images have
// none.
type imageState struct {
	size   uint64
	memory gfx.Memory
	offset uint64
	bound  bool
	layout gfx.ImageLayout
}

type swapchainState struct {
	images []gfx.Image
	extent gfx.Extent2D
	next   uint32
}

type command struct {
	name string
	src  gfx.Buffer
	dst  gfx.Buffer
	size uint64
	set  gfx.DescriptorSet

	image    gfx.Image
	from, to gfx.ImageLayout
}

// Memory type layout reported for the default device.
const (
	MemoryTypeDeviceLocal = iota
	MemoryTypeHostVisible
	MemoryTypeShared
)

// DefaultDevice returns a device description which satisfies the renderer's
// default requirements.
func DefaultDevice(name string) gfx.DeviceInfo {
	return gfx.DeviceInfo{
		Name:       name,
		APIVersion: gfx.MakeVersion(1, 3, 0),
		Features: gfx.Features{
			TessellationShader: true,
			FillModeNonSolid:   true,
			SamplerAnisotropy:  true,
		},
		Extensions: []string{"VK_KHR_swapchain"},
		QueueFamilies: []queues.Family{
			{Graphics: true, Present: true},
		},
		DepthFormats: []gfx.Format{gfx.FormatD24UnormS8Uint, gfx.FormatD32Sfloat},
		SurfaceFormats: []gfx.SurfaceFormat{
			{Format: gfx.FormatB8G8R8A8Unorm, ColorSpace: gfx.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []gfx.PresentMode{gfx.PresentModeFifo, gfx.PresentModeMailbox},
		MemoryTypes: []gfx.MemoryType{
			MemoryTypeDeviceLocal: {Properties: gfx.MemoryPropertyDeviceLocal},
			MemoryTypeHostVisible: {
				Properties: gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent,
				HeapIndex:  1,
			},
			MemoryTypeShared: {
				Properties: gfx.MemoryPropertyDeviceLocal |
					gfx.MemoryPropertyHostVisible |
					gfx.MemoryPropertyHostCoherent,
			},
		},
	}
}

// New returns a fake with one suitable device, a 1.3 instance, the surface and
// debug report extensions, the validation layer and a 2-image swapchain of
// 800x600.
func New() *Backend {
	return &Backend{
		Version: gfx.MakeVersion(1, 3, 0),
		Extensions: []string{
			"VK_KHR_surface",
			"VK_KHR_xcb_surface",
			"VK_EXT_debug_report",
		},
		Layers:  []string{"VK_LAYER_KHRONOS_validation"},
		Devices: []gfx.DeviceInfo{DefaultDevice("fake gpu")},
		Capabilities: gfx.SurfaceCapabilities{
			MinImageCount:    2,
			MaxImageCount:    2,
			CurrentExtent:    gfx.Extent2D{Width: 800, Height: 600},
			MinImageExtent:   gfx.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:   gfx.Extent2D{Width: 4096, Height: 4096},
			CurrentTransform: 1,
		},

		live:        make(map[gfx.Handle]gfx.ObjectKind),
		created:     make(map[gfx.ObjectKind]int),
		freed:       make(map[gfx.ObjectKind]int),
		counts:      make(map[string]int),
		fail:        make(map[string]int),
		memory:      make(map[gfx.Memory][]byte),
		mapped:      make(map[gfx.Memory]bool),
		buffers:     make(map[gfx.Buffer]*bufferState),
		images:      make(map[gfx.Image]*imageState),
		cbPool:      make(map[gfx.CommandBuffer]gfx.CommandPool),
		cbCommands:  make(map[gfx.CommandBuffer][]command),
		cbRecording: make(map[gfx.CommandBuffer]bool),
		setPool:     make(map[gfx.DescriptorSet]gfx.DescriptorPool),
		fences:      make(map[gfx.Fence]bool),
		submitted:   make(map[gfx.Fence]bool),
		inFlight:    make(map[gfx.Handle]gfx.Fence),
		swapchains:  make(map[gfx.Swapchain]*swapchainState),
		objectNames: make(map[gfx.Handle]string),
	}
}

// FailOn makes the nth call (1-based, counted from now on) of method fail with
// ErrInjected.
func (b *Backend) FailOn(method string, nth int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fail[method] = b.counts[method] + nth
}

// FailAfter makes the nth call (1-based, counted from now on) fail with
// ErrInjected, whichever method it is. Calls which cannot report an error
// swallow the failure.
func (b *Backend) FailAfter(nth int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failAt = b.total + nth
}

// ClearFailures removes every pending FailOn and FailAfter.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fail = make(map[string]int)
	b.failAt = 0
}

// Calls returns the names of all calls made so far, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.calls...)
}

// Count returns how many times method was called.
func (b *Backend) Count(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts[method]
}

// Total returns the number of calls made so far, across all methods.
func (b *Backend) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.total
}

// ResetCalls forgets the call log and the call counts.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = nil
	b.counts = make(map[string]int)
	b.fail = make(map[string]int)
	b.total = 0
	b.failAt = 0
}

// Live returns the number of objects created and not yet destroyed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.live)
}

// LiveOf returns the number of live objects of the given kind.
func (b *Backend) LiveOf(kind gfx.ObjectKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, k := range b.live {
		if k == kind {
			n++
		}
	}
	return n
}

// LiveKinds describes the live objects, for failure messages.
func (b *Backend) LiveKinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for h, k := range b.live {
		out = append(out, fmt.Sprintf("%s#%d", k, h))
	}
	sort.Strings(out)
	return out
}

// Created and Destroyed return the per-kind totals since New.
func (b *Backend) Created(kind gfx.ObjectKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.created[kind]
}

// Destroyed is the counterpart of Created.
func (b *Backend) Destroyed(kind gfx.ObjectKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.freed[kind]
}

// IsLive returns true when h has been created and not destroyed.
func (b *Backend) IsLive(h gfx.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.live[h]
	return ok
}

// Violations lists every pool reset which happened while work using the pool was
// still pending on a fence nobody waited for.
func (b *Backend) Violations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.violations...)
}

// BufferContents returns a copy of the memory bound to buffer.
func (b *Backend) BufferContents(buffer gfx.Buffer) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.buffers[buffer]
	if !ok || !st.bound {
		return nil
	}
	mem := b.memory[st.memory]
	return append([]byte(nil), mem[st.offset:st.offset+st.size]...)
}

// ImageContents returns a copy of the texels uploaded to image.
func (b *Backend) ImageContents(image gfx.Image) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.images[image]
	if !ok || !st.bound {
		return nil
	}
	mem := b.memory[st.memory]
	return append([]byte(nil), mem[st.offset:st.offset+st.size]...)
}

// ImageLayout returns the layout submitted barriers left image in.
func (b *Backend) ImageLayout(image gfx.Image) gfx.ImageLayout {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.images[image]; ok {
		return st.layout
	}
	return gfx.ImageLayoutUndefined
}

// ImageViewWrites lists the image views descriptor sets were pointed at, in
// order.
func (b *Backend) ImageViewWrites() []gfx.ImageView {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]gfx.ImageView(nil), b.imageWrites...)
}

// FenceSignaled reports the state of a fence.
func (b *Backend) FenceSignaled(fence gfx.Fence) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.fences[fence]
}

// SwapchainExtent returns the extent a swapchain was created with.
func (b *Backend) SwapchainExtent(sc gfx.Swapchain) gfx.Extent2D {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.swapchains[sc]; ok {
		return st.extent
	}
	return gfx.Extent2D{}
}

// SetObjectName records a debug name. It makes the fake usable as a debug
// naming sink.
func (b *Backend) SetObjectName(kind gfx.ObjectKind, h gfx.Handle, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objectNames[h] = name
}

// ObjectName returns the debug name recorded for h.
func (b *Backend) ObjectName(h gfx.Handle) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.objectNames[h]
}

// call records a call and reports whether it should fail. The lock must be held.
func (b *Backend) call(method string) error {
	b.calls = append(b.calls, method)
	b.counts[method]++
	b.total++

	if n, ok := b.fail[method]; ok && n == b.counts[method] {
		delete(b.fail, method)
		return errors.Wrapf(ErrInjected, "%s", method)
	}
	if b.failAt > 0 && b.failAt == b.total {
		b.failAt = 0
		return errors.Wrapf(ErrInjected, "%s", method)
	}
	return nil
}

func (b *Backend) create(kind gfx.ObjectKind) gfx.Handle {
	b.next++
	b.live[b.next] = kind
	b.created[kind]++
	return b.next
}

func (b *Backend) destroy(h gfx.Handle, kind gfx.ObjectKind) {
	if h.IsNull() {
		return
	}

	got, ok := b.live[h]
	if !ok {
		b.violations = append(b.violations, fmt.Sprintf("destroy of unknown %s #%d", kind, h))
		return
	}
	if got != kind {
		b.violations = append(b.violations,
			fmt.Sprintf("destroy of %s #%d as %s", got, h, kind))
	}
	delete(b.live, h)
	b.freed[kind]++
	delete(b.objectNames, h)
}

package gfxtest

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"vkframe/gfx"
)

var _ gfx.Backend = (*Backend)(nil)

// InstanceVersion implements gfx.InstanceAPI.
func (b *Backend) InstanceVersion() (gfx.Version, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("InstanceVersion"); err != nil {
		return 0, err
	}
	return b.Version, nil
}

// InstanceExtensions implements gfx.InstanceAPI.
func (b *Backend) InstanceExtensions() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("InstanceExtensions"); err != nil {
		return nil, err
	}
	return append([]string(nil), b.Extensions...), nil
}

// InstanceLayers implements gfx.InstanceAPI.
func (b *Backend) InstanceLayers() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("InstanceLayers"); err != nil {
		return nil, err
	}
	return append([]string(nil), b.Layers...), nil
}

// CreateInstance implements gfx.InstanceAPI.
func (b *Backend) CreateInstance(info gfx.InstanceInfo) (gfx.Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateInstance"); err != nil {
		return gfx.NullInstance, err
	}
	return gfx.Instance(b.create(gfx.ObjectInstance)), nil
}

// DestroyInstance implements gfx.InstanceAPI.
func (b *Backend) DestroyInstance(instance gfx.Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyInstance")
	b.destroy(gfx.Handle(instance), gfx.ObjectInstance)
}

// CreateDebugMessenger implements gfx.InstanceAPI.
func (b *Backend) CreateDebugMessenger(instance gfx.Instance) (gfx.DebugMessenger, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateDebugMessenger"); err != nil {
		return gfx.NullDebugMessenger, err
	}
	return gfx.DebugMessenger(b.create(gfx.ObjectUnknown)), nil
}

// DestroyDebugMessenger implements gfx.InstanceAPI.
func (b *Backend) DestroyDebugMessenger(instance gfx.Instance, messenger gfx.DebugMessenger) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyDebugMessenger")
	b.destroy(gfx.Handle(messenger), gfx.ObjectUnknown)
}

// CreateSurface implements gfx.InstanceAPI.
func (b *Backend) CreateSurface(instance gfx.Instance, window gfx.SurfaceSource) (gfx.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateSurface"); err != nil {
		return gfx.NullSurface, err
	}
	if _, err := window.CreateWindowSurface(uintptr(instance), nil); err != nil {
		return gfx.NullSurface, err
	}
	return gfx.Surface(b.create(gfx.ObjectSurface)), nil
}

// DestroySurface implements gfx.InstanceAPI.
func (b *Backend) DestroySurface(instance gfx.Instance, surface gfx.Surface) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroySurface")
	b.destroy(gfx.Handle(surface), gfx.ObjectSurface)
}

// PhysicalDevices implements gfx.InstanceAPI. Physical devices are not owned so
// they are not counted as live objects. Device i gets handle 1<<32 + i.
func (b *Backend) PhysicalDevices(instance gfx.Instance) ([]gfx.PhysicalDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("PhysicalDevices"); err != nil {
		return nil, err
	}

	out := make([]gfx.PhysicalDevice, len(b.Devices))
	for i := range b.Devices {
		out[i] = gfx.PhysicalDevice(1<<32 + uint64(i))
	}
	return out, nil
}

// DescribePhysicalDevice implements gfx.InstanceAPI.
func (b *Backend) DescribePhysicalDevice(pd gfx.PhysicalDevice, surface gfx.Surface) (gfx.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("DescribePhysicalDevice"); err != nil {
		return gfx.DeviceInfo{}, err
	}

	i := int(uint64(pd) - 1<<32)
	if i < 0 || i >= len(b.Devices) {
		return gfx.DeviceInfo{}, errors.Newf("unknown physical device %d", pd)
	}
	return b.Devices[i], nil
}

// CreateDevice implements gfx.DeviceAPI.
func (b *Backend) CreateDevice(pd gfx.PhysicalDevice, info gfx.DeviceCreateInfo) (gfx.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateDevice"); err != nil {
		return gfx.NullDevice, err
	}
	return gfx.Device(b.create(gfx.ObjectDevice)), nil
}

// DestroyDevice implements gfx.DeviceAPI. Destroying a device with live children
// is recorded as a violation.
func (b *Backend) DestroyDevice(device gfx.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyDevice")
	for h, k := range b.live {
		switch k {
		case gfx.ObjectInstance, gfx.ObjectSurface, gfx.ObjectDevice, gfx.ObjectUnknown:
			continue
		}
		b.violations = append(b.violations,
			fmt.Sprintf("device destroyed with live %s #%d", k, h))
	}
	b.destroy(gfx.Handle(device), gfx.ObjectDevice)
}

// GetQueue implements gfx.DeviceAPI.
func (b *Backend) GetQueue(device gfx.Device, family uint32) gfx.Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("GetQueue")
	return gfx.Queue(1<<40 + uint64(family))
}

// DeviceWaitIdle implements gfx.DeviceAPI. All pending work completes.
func (b *Backend) DeviceWaitIdle(device gfx.Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("DeviceWaitIdle"); err != nil {
		return err
	}
	b.completeAll()
	return nil
}

// QueueWaitIdle implements gfx.DeviceAPI.
func (b *Backend) QueueWaitIdle(queue gfx.Queue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("QueueWaitIdle"); err != nil {
		return err
	}
	b.completeAll()
	return nil
}

func (b *Backend) completeAll() {
	for f := range b.submitted {
		b.fences[f] = true
	}
	b.submitted = make(map[gfx.Fence]bool)
	b.inFlight = make(map[gfx.Handle]gfx.Fence)
}

// QueueSubmit implements gfx.DeviceAPI. Copies recorded in the command buffers
// are executed right away. The fence stays unsignaled until somebody waits on it,
// and the pools the command buffers came from count as in use until then.
func (b *Backend) QueueSubmit(queue gfx.Queue, submit gfx.SubmitInfo, fence gfx.Fence) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("QueueSubmit"); err != nil {
		return err
	}

	for _, cb := range submit.CommandBuffers {
		if b.cbRecording[cb] {
			b.violations = append(b.violations,
				fmt.Sprintf("submit of command buffer #%d still recording", cb))
		}

		for _, cmd := range b.cbCommands[cb] {
			switch cmd.name {
			case "copy":
				b.copyBuffer(cmd.src, cmd.dst, cmd.size)
			case "imageBarrier":
				b.transition(cmd.image, cmd.from, cmd.to)
			case "copyToImage":
				b.copyToImage(cmd.src, cmd.image)
			case "bindSet":
				if fence != gfx.NullFence {
					b.inFlight[gfx.Handle(b.setPool[cmd.set])] = fence
				}
			}
		}

		if fence != gfx.NullFence {
			b.inFlight[gfx.Handle(b.cbPool[cb])] = fence
		}
	}

	if fence != gfx.NullFence {
		if b.fences[fence] {
			b.violations = append(b.violations,
				fmt.Sprintf("submit with signaled fence #%d", fence))
		}
		b.fences[fence] = false
		b.submitted[fence] = true
	}

	return nil
}

func (b *Backend) copyBuffer(src, dst gfx.Buffer, size uint64) {
	s, d := b.buffers[src], b.buffers[dst]
	if s == nil || d == nil || !s.bound || !d.bound {
		b.violations = append(b.violations, "copy between unbound buffers")
		return
	}
	from := b.memory[s.memory][s.offset : s.offset+size]
	to := b.memory[d.memory][d.offset : d.offset+size]
	copy(to, from)
}

// transition moves a tracked image to a new layout. The old layout has to match
// unless it is undefined, which discards the contents.
func (b *Backend) transition(image gfx.Image, from, to gfx.ImageLayout) {
	st, ok := b.images[image]
	if !ok {
		return
	}
	if from != gfx.ImageLayoutUndefined && from != st.layout {
		b.violations = append(b.violations,
			fmt.Sprintf("image #%d transitioned from %s but is in %s", image, from, st.layout))
	}
	st.layout = to
}

func (b *Backend) copyToImage(src gfx.Buffer, image gfx.Image) {
	s, d := b.buffers[src], b.images[image]
	if s == nil || d == nil || !s.bound || !d.bound {
		b.violations = append(b.violations, "copy between unbound buffer and image")
		return
	}
	if d.layout != gfx.ImageLayoutTransferDstOptimal {
		b.violations = append(b.violations,
			fmt.Sprintf("copy to image #%d in %s", image, d.layout))
	}
	size := d.size
	if s.size < size {
		b.violations = append(b.violations,
			fmt.Sprintf("buffer #%d too small for image #%d", src, image))
		size = s.size
	}
	copy(b.memory[d.memory][d.offset:d.offset+size], b.memory[s.memory][s.offset:s.offset+size])
}

// AllocateMemory implements gfx.MemoryAPI.
func (b *Backend) AllocateMemory(device gfx.Device, size uint64, typeIndex uint32) (gfx.Memory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("AllocateMemory"); err != nil {
		return gfx.NullMemory, err
	}
	mem := gfx.Memory(b.create(gfx.ObjectMemory))
	b.memory[mem] = make([]byte, size)
	return mem, nil
}

// FreeMemory implements gfx.MemoryAPI.
func (b *Backend) FreeMemory(device gfx.Device, memory gfx.Memory) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("FreeMemory")
	for buf, st := range b.buffers {
		if st.bound && st.memory == memory {
			b.violations = append(b.violations,
				fmt.Sprintf("memory #%d freed while buffer #%d is bound to it", memory, buf))
		}
	}
	for img, st := range b.images {
		if st.bound && st.memory == memory {
			b.violations = append(b.violations,
				fmt.Sprintf("memory #%d freed while image #%d is bound to it", memory, img))
		}
	}
	delete(b.memory, memory)
	delete(b.mapped, memory)
	b.destroy(gfx.Handle(memory), gfx.ObjectMemory)
}

// MapMemory implements gfx.MemoryAPI.
func (b *Backend) MapMemory(device gfx.Device, memory gfx.Memory, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("MapMemory"); err != nil {
		return nil, err
	}
	mem, ok := b.memory[memory]
	if !ok {
		return nil, errors.Newf("map of unknown memory %d", memory)
	}
	b.mapped[memory] = true
	return mem[:size:size], nil
}

// UnmapMemory implements gfx.MemoryAPI.
func (b *Backend) UnmapMemory(device gfx.Device, memory gfx.Memory) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("UnmapMemory")
	delete(b.mapped, memory)
}

// CreateBuffer implements gfx.ResourceAPI.
func (b *Backend) CreateBuffer(device gfx.Device, info gfx.BufferInfo) (gfx.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateBuffer"); err != nil {
		return gfx.NullBuffer, err
	}
	if info.Size == 0 {
		return gfx.NullBuffer, errors.New("zero sized buffer")
	}
	buf := gfx.Buffer(b.create(gfx.ObjectBuffer))
	b.buffers[buf] = &bufferState{size: info.Size}
	return buf, nil
}

// DestroyBuffer implements gfx.ResourceAPI.
func (b *Backend) DestroyBuffer(device gfx.Device, buffer gfx.Buffer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyBuffer")
	delete(b.buffers, buffer)
	b.destroy(gfx.Handle(buffer), gfx.ObjectBuffer)
}

// BufferMemoryRequirements implements gfx.ResourceAPI. Sizes are rounded up to
// 256 bytes, every memory type is allowed.
func (b *Backend) BufferMemoryRequirements(device gfx.Device, buffer gfx.Buffer) gfx.MemoryRequirements {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("BufferMemoryRequirements")
	size := uint64(0)
	if st, ok := b.buffers[buffer]; ok {
		size = st.size
	}
	return gfx.MemoryRequirements{
		Size:      (size + 255) &^ 255,
		Alignment: 256,
		TypeBits:  0xffffffff,
	}
}

// BindBufferMemory implements gfx.ResourceAPI.
func (b *Backend) BindBufferMemory(device gfx.Device, buffer gfx.Buffer, memory gfx.Memory, offset uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("BindBufferMemory"); err != nil {
		return err
	}
	st, ok := b.buffers[buffer]
	if !ok {
		return errors.Newf("bind of unknown buffer %d", buffer)
	}
	mem, ok := b.memory[memory]
	if !ok {
		return errors.Newf("bind to unknown memory %d", memory)
	}
	if offset+st.size > uint64(len(mem)) {
		return errors.Newf("buffer %d does not fit in memory at offset %d", buffer, offset)
	}
	st.memory, st.offset, st.bound = memory, offset, true
	return nil
}

// CreateImage implements gfx.ResourceAPI.
func (b *Backend) CreateImage(device gfx.Device, info gfx.ImageInfo) (gfx.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateImage"); err != nil {
		return gfx.NullImage, err
	}
	if info.Extent.IsZero() {
		return gfx.NullImage, errors.New("zero sized image")
	}
	image := gfx.Image(b.create(gfx.ObjectImage))
	b.images[image] = &imageState{
		size: uint64(info.Extent.Width) * uint64(info.Extent.Height) * info.Format.PixelSize(),
	}
	return image, nil
}

// DestroyImage implements gfx.ResourceAPI.
func (b *Backend) DestroyImage(device gfx.Device, image gfx.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyImage")
	delete(b.images, image)
	b.destroy(gfx.Handle(image), gfx.ObjectImage)
}

// ImageMemoryRequirements implements gfx.ResourceAPI. Sizes are rounded up to
// 4096 bytes.
func (b *Backend) ImageMemoryRequirements(device gfx.Device, image gfx.Image) gfx.MemoryRequirements {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("ImageMemoryRequirements")
	size := uint64(0)
	if st, ok := b.images[image]; ok {
		size = st.size
	}
	size = (size + 4095) &^ 4095
	if size == 0 {
		size = 4096
	}
	return gfx.MemoryRequirements{Size: size, Alignment: 4096, TypeBits: 0xffffffff}
}

// BindImageMemory implements gfx.ResourceAPI.
func (b *Backend) BindImageMemory(device gfx.Device, image gfx.Image, memory gfx.Memory, offset uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("BindImageMemory"); err != nil {
		return err
	}
	st, ok := b.images[image]
	if !ok {
		return errors.Newf("bind of unknown image %d", image)
	}
	mem, ok := b.memory[memory]
	if !ok {
		return errors.Newf("bind to unknown memory %d", memory)
	}
	if offset+st.size > uint64(len(mem)) {
		return errors.Newf("image %d does not fit in memory at offset %d", image, offset)
	}
	st.memory, st.offset, st.bound = memory, offset, true
	return nil
}

// CreateImageView implements gfx.ResourceAPI.
func (b *Backend) CreateImageView(
	device gfx.Device,
	image gfx.Image,
	format gfx.Format,
	aspect gfx.ImageAspect,
) (gfx.ImageView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateImageView"); err != nil {
		return gfx.NullImageView, err
	}
	return gfx.ImageView(b.create(gfx.ObjectImageView)), nil
}

// DestroyImageView implements gfx.ResourceAPI.
func (b *Backend) DestroyImageView(device gfx.Device, view gfx.ImageView) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyImageView")
	b.destroy(gfx.Handle(view), gfx.ObjectImageView)
}

// CreateSampler implements gfx.ResourceAPI.
func (b *Backend) CreateSampler(device gfx.Device, info gfx.SamplerInfo) (gfx.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateSampler"); err != nil {
		return gfx.NullSampler, err
	}
	return gfx.Sampler(b.create(gfx.ObjectSampler)), nil
}

// DestroySampler implements gfx.ResourceAPI.
func (b *Backend) DestroySampler(device gfx.Device, sampler gfx.Sampler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroySampler")
	b.destroy(gfx.Handle(sampler), gfx.ObjectSampler)
}

// SurfaceCapabilities implements gfx.PresentAPI.
func (b *Backend) SurfaceCapabilities(pd gfx.PhysicalDevice, surface gfx.Surface) (gfx.SurfaceCapabilities, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("SurfaceCapabilities"); err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	return b.Capabilities, nil
}

// CreateSwapchain implements gfx.PresentAPI. The old swapchain must still be live.
func (b *Backend) CreateSwapchain(device gfx.Device, info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateSwapchain"); err != nil {
		return gfx.NullSwapchain, err
	}
	if info.Extent.IsZero() {
		b.violations = append(b.violations, "swapchain created with a zero extent")
		return gfx.NullSwapchain, errors.New("zero sized swapchain")
	}
	if info.OldSwapchain != gfx.NullSwapchain {
		if _, ok := b.live[gfx.Handle(info.OldSwapchain)]; !ok {
			b.violations = append(b.violations, "old swapchain hint is not live")
		}
	}

	count := b.ImageCount
	if count == 0 {
		count = info.MinImageCount
	}

	sc := gfx.Swapchain(b.create(gfx.ObjectSwapchain))
	st := &swapchainState{extent: info.Extent}
	for i := uint32(0); i < count; i++ {
		// Swapchain images belong to the swapchain and are never destroyed on
		// their own, so they are not live objects.
		b.next++
		st.images = append(st.images, gfx.Image(b.next))
	}
	b.swapchains[sc] = st
	return sc, nil
}

// DestroySwapchain implements gfx.PresentAPI.
func (b *Backend) DestroySwapchain(device gfx.Device, swapchain gfx.Swapchain) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroySwapchain")
	delete(b.swapchains, swapchain)
	b.destroy(gfx.Handle(swapchain), gfx.ObjectSwapchain)
}

// SwapchainImages implements gfx.PresentAPI.
func (b *Backend) SwapchainImages(device gfx.Device, swapchain gfx.Swapchain) ([]gfx.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("SwapchainImages"); err != nil {
		return nil, err
	}
	st, ok := b.swapchains[swapchain]
	if !ok {
		return nil, errors.Newf("unknown swapchain %d", swapchain)
	}
	return append([]gfx.Image(nil), st.images...), nil
}

// AcquireNextImage implements gfx.PresentAPI. Images are handed out round-robin.
func (b *Backend) AcquireNextImage(
	device gfx.Device,
	swapchain gfx.Swapchain,
	signal gfx.Semaphore,
) (uint32, gfx.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("AcquireNextImage"); err != nil {
		return 0, gfx.StatusSuccess, err
	}
	st, ok := b.swapchains[swapchain]
	if !ok {
		return 0, gfx.StatusSuccess, errors.Newf("unknown swapchain %d", swapchain)
	}

	status := gfx.StatusSuccess
	if b.AcquireStatus != nil {
		status = b.AcquireStatus(b.counts["AcquireNextImage"])
	}
	if status == gfx.StatusOutOfDate {
		return 0, status, nil
	}

	index := st.next
	st.next = (st.next + 1) % uint32(len(st.images))
	return index, status, nil
}

// QueuePresent implements gfx.PresentAPI.
func (b *Backend) QueuePresent(
	queue gfx.Queue,
	swapchain gfx.Swapchain,
	imageIndex uint32,
	wait gfx.Semaphore,
) (gfx.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("QueuePresent"); err != nil {
		return gfx.StatusSuccess, err
	}
	if b.PresentStatus != nil {
		return b.PresentStatus(b.counts["QueuePresent"]), nil
	}
	return gfx.StatusSuccess, nil
}

// CreateRenderPass implements gfx.PipelineAPI.
func (b *Backend) CreateRenderPass(device gfx.Device, info gfx.RenderPassInfo) (gfx.RenderPass, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateRenderPass"); err != nil {
		return gfx.NullRenderPass, err
	}
	return gfx.RenderPass(b.create(gfx.ObjectRenderPass)), nil
}

// DestroyRenderPass implements gfx.PipelineAPI.
func (b *Backend) DestroyRenderPass(device gfx.Device, renderPass gfx.RenderPass) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyRenderPass")
	b.destroy(gfx.Handle(renderPass), gfx.ObjectRenderPass)
}

// CreateFramebuffer implements gfx.PipelineAPI. All attachments must be live
// views.
func (b *Backend) CreateFramebuffer(device gfx.Device, info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateFramebuffer"); err != nil {
		return 0, err
	}
	for _, view := range info.Attachments {
		if b.live[gfx.Handle(view)] != gfx.ObjectImageView {
			b.violations = append(b.violations,
				fmt.Sprintf("framebuffer attachment #%d is not a live image view", view))
		}
	}
	return gfx.Framebuffer(b.create(gfx.ObjectFramebuffer)), nil
}

// DestroyFramebuffer implements gfx.PipelineAPI.
func (b *Backend) DestroyFramebuffer(device gfx.Device, framebuffer gfx.Framebuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyFramebuffer")
	b.destroy(gfx.Handle(framebuffer), gfx.ObjectFramebuffer)
}

// CreateShaderModule implements gfx.PipelineAPI.
func (b *Backend) CreateShaderModule(device gfx.Device, code []byte) (gfx.ShaderModule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateShaderModule"); err != nil {
		return 0, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Newf("invalid shader code of %d bytes", len(code))
	}
	return gfx.ShaderModule(b.create(gfx.ObjectShaderModule)), nil
}

// DestroyShaderModule implements gfx.PipelineAPI.
func (b *Backend) DestroyShaderModule(device gfx.Device, module gfx.ShaderModule) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyShaderModule")
	b.destroy(gfx.Handle(module), gfx.ObjectShaderModule)
}

// CreateDescriptorSetLayout implements gfx.PipelineAPI.
func (b *Backend) CreateDescriptorSetLayout(
	device gfx.Device,
	bindings []gfx.DescriptorBinding,
) (gfx.DescriptorSetLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return gfx.DescriptorSetLayout(b.create(gfx.ObjectDescriptorSetLayout)), nil
}

// DestroyDescriptorSetLayout implements gfx.PipelineAPI.
func (b *Backend) DestroyDescriptorSetLayout(device gfx.Device, layout gfx.DescriptorSetLayout) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyDescriptorSetLayout")
	b.destroy(gfx.Handle(layout), gfx.ObjectDescriptorSetLayout)
}

// CreatePipelineLayout implements gfx.PipelineAPI.
func (b *Backend) CreatePipelineLayout(device gfx.Device, info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreatePipelineLayout"); err != nil {
		return 0, err
	}
	return gfx.PipelineLayout(b.create(gfx.ObjectPipelineLayout)), nil
}

// DestroyPipelineLayout implements gfx.PipelineAPI.
func (b *Backend) DestroyPipelineLayout(device gfx.Device, layout gfx.PipelineLayout) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyPipelineLayout")
	b.destroy(gfx.Handle(layout), gfx.ObjectPipelineLayout)
}

// CreateGraphicsPipeline implements gfx.PipelineAPI.
func (b *Backend) CreateGraphicsPipeline(device gfx.Device, info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateGraphicsPipeline"); err != nil {
		return gfx.NullPipeline, err
	}
	for _, stage := range info.Stages {
		if b.live[gfx.Handle(stage.Module)] != gfx.ObjectShaderModule {
			b.violations = append(b.violations, "pipeline stage module is not live")
		}
	}
	return gfx.Pipeline(b.create(gfx.ObjectPipeline)), nil
}

// DestroyPipeline implements gfx.PipelineAPI.
func (b *Backend) DestroyPipeline(device gfx.Device, pipeline gfx.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyPipeline")
	b.destroy(gfx.Handle(pipeline), gfx.ObjectPipeline)
}

// CreateDescriptorPool implements gfx.PipelineAPI.
func (b *Backend) CreateDescriptorPool(device gfx.Device, info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateDescriptorPool"); err != nil {
		return gfx.NullDescriptorPool, err
	}
	return gfx.DescriptorPool(b.create(gfx.ObjectDescriptorPool)), nil
}

// DestroyDescriptorPool implements gfx.PipelineAPI. Sets allocated from the pool
// go away with it.
func (b *Backend) DestroyDescriptorPool(device gfx.Device, pool gfx.DescriptorPool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyDescriptorPool")
	b.dropSets(pool)
	b.destroy(gfx.Handle(pool), gfx.ObjectDescriptorPool)
}

// ResetDescriptorPool implements gfx.PipelineAPI.
func (b *Backend) ResetDescriptorPool(device gfx.Device, pool gfx.DescriptorPool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("ResetDescriptorPool"); err != nil {
		return err
	}
	b.checkIdle(gfx.Handle(pool), "descriptor pool")
	b.dropSets(pool)
	return nil
}

func (b *Backend) dropSets(pool gfx.DescriptorPool) {
	for set, p := range b.setPool {
		if p == pool {
			delete(b.setPool, set)
			delete(b.live, gfx.Handle(set))
			b.freed[gfx.ObjectDescriptorSet]++
		}
	}
}

// checkIdle records a violation if the pool is still used by work whose fence
// nobody has waited for.
func (b *Backend) checkIdle(pool gfx.Handle, what string) {
	fence, ok := b.inFlight[pool]
	if !ok {
		return
	}
	if !b.fences[fence] {
		b.violations = append(b.violations,
			fmt.Sprintf("%s #%d reset while fence #%d is unsignaled", what, pool, fence))
	}
	delete(b.inFlight, pool)
}

// AllocateDescriptorSet implements gfx.PipelineAPI.
func (b *Backend) AllocateDescriptorSet(
	device gfx.Device,
	pool gfx.DescriptorPool,
	layout gfx.DescriptorSetLayout,
) (gfx.DescriptorSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("AllocateDescriptorSet"); err != nil {
		return 0, err
	}
	set := gfx.DescriptorSet(b.create(gfx.ObjectDescriptorSet))
	b.setPool[set] = pool
	return set, nil
}

// UpdateDescriptorSet implements gfx.PipelineAPI.
func (b *Backend) UpdateDescriptorSet(device gfx.Device, set gfx.DescriptorSet, writes []gfx.DescriptorWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("UpdateDescriptorSet")
	for _, w := range writes {
		if w.Type == gfx.DescriptorTypeCombinedImageSampler {
			if b.live[gfx.Handle(w.ImageView)] != gfx.ObjectImageView ||
				b.live[gfx.Handle(w.Sampler)] != gfx.ObjectSampler {
				b.violations = append(b.violations,
					fmt.Sprintf("descriptor write of binding %d to a dead image view or sampler", w.Binding))
			}
			b.imageWrites = append(b.imageWrites, w.ImageView)
			continue
		}
		if _, ok := b.buffers[w.Buffer]; !ok {
			b.violations = append(b.violations,
				fmt.Sprintf("descriptor write of binding %d to unknown buffer", w.Binding))
		}
	}
}

// CreateCommandPool implements gfx.CommandAPI.
func (b *Backend) CreateCommandPool(
	device gfx.Device,
	family uint32,
	flags gfx.CommandPoolFlags,
) (gfx.CommandPool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateCommandPool"); err != nil {
		return gfx.NullCommandPool, err
	}
	return gfx.CommandPool(b.create(gfx.ObjectCommandPool)), nil
}

// DestroyCommandPool implements gfx.CommandAPI. Its command buffers go with it.
func (b *Backend) DestroyCommandPool(device gfx.Device, pool gfx.CommandPool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyCommandPool")
	for cb, p := range b.cbPool {
		if p == pool {
			delete(b.cbPool, cb)
			delete(b.cbCommands, cb)
			delete(b.cbRecording, cb)
			delete(b.live, gfx.Handle(cb))
			b.freed[gfx.ObjectCommandBuffer]++
		}
	}
	b.destroy(gfx.Handle(pool), gfx.ObjectCommandPool)
}

// ResetCommandPool implements gfx.CommandAPI.
func (b *Backend) ResetCommandPool(device gfx.Device, pool gfx.CommandPool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("ResetCommandPool"); err != nil {
		return err
	}
	b.checkIdle(gfx.Handle(pool), "command pool")
	for cb, p := range b.cbPool {
		if p == pool {
			b.cbCommands[cb] = nil
			b.cbRecording[cb] = false
		}
	}
	return nil
}

// AllocateCommandBuffers implements gfx.CommandAPI.
func (b *Backend) AllocateCommandBuffers(
	device gfx.Device,
	pool gfx.CommandPool,
	count uint32,
) ([]gfx.CommandBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]gfx.CommandBuffer, count)
	for i := range out {
		cb := gfx.CommandBuffer(b.create(gfx.ObjectCommandBuffer))
		b.cbPool[cb] = pool
		out[i] = cb
	}
	return out, nil
}

// BeginCommandBuffer implements gfx.CommandAPI.
func (b *Backend) BeginCommandBuffer(cb gfx.CommandBuffer, oneTimeSubmit bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("BeginCommandBuffer"); err != nil {
		return err
	}
	if len(b.cbCommands[cb]) > 0 {
		b.violations = append(b.violations,
			fmt.Sprintf("command buffer #%d begun without a reset", cb))
	}
	b.cbCommands[cb] = nil
	b.cbRecording[cb] = true
	return nil
}

// EndCommandBuffer implements gfx.CommandAPI.
func (b *Backend) EndCommandBuffer(cb gfx.CommandBuffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("EndCommandBuffer"); err != nil {
		return err
	}
	b.cbRecording[cb] = false
	return nil
}

func (b *Backend) record(cb gfx.CommandBuffer, cmd command) {
	b.calls = append(b.calls, "Cmd:"+cmd.name)
	b.counts["Cmd:"+cmd.name]++
	b.cbCommands[cb] = append(b.cbCommands[cb], cmd)
}

// CmdCopyBuffer implements gfx.CommandAPI.
func (b *Backend) CmdCopyBuffer(cb gfx.CommandBuffer, src, dst gfx.Buffer, size uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "copy", src: src, dst: dst, size: size})
}

// CmdBufferBarrier implements gfx.CommandAPI.
func (b *Backend) CmdBufferBarrier(cb gfx.CommandBuffer, barrier gfx.BufferBarrier) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "barrier", dst: barrier.Buffer})
}

// CmdImageBarrier implements gfx.CommandAPI. The layout changes when the
// command buffer is submitted.
func (b *Backend) CmdImageBarrier(cb gfx.CommandBuffer, barrier gfx.ImageBarrier) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{
		name:  "imageBarrier",
		image: barrier.Image,
		from:  barrier.OldLayout,
		to:    barrier.NewLayout,
	})
}

// CmdCopyBufferToImage implements gfx.CommandAPI.
func (b *Backend) CmdCopyBufferToImage(cb gfx.CommandBuffer, src gfx.Buffer, dst gfx.Image, extent gfx.Extent2D) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "copyToImage", src: src, image: dst})
}

// CmdBeginRenderPass implements gfx.CommandAPI.
func (b *Backend) CmdBeginRenderPass(
	cb gfx.CommandBuffer,
	renderPass gfx.RenderPass,
	framebuffer gfx.Framebuffer,
	area gfx.Rect2D,
	clear gfx.ClearValues,
) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.live[gfx.Handle(framebuffer)] != gfx.ObjectFramebuffer {
		b.violations = append(b.violations,
			fmt.Sprintf("render pass begun on dead framebuffer #%d", framebuffer))
	}
	b.record(cb, command{name: "beginRenderPass"})
}

// CmdEndRenderPass implements gfx.CommandAPI.
func (b *Backend) CmdEndRenderPass(cb gfx.CommandBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "endRenderPass"})
}

// CmdSetViewport implements gfx.CommandAPI.
func (b *Backend) CmdSetViewport(cb gfx.CommandBuffer, viewport gfx.Viewport) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "viewport"})
}

// CmdSetScissor implements gfx.CommandAPI.
func (b *Backend) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect2D) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "scissor"})
}

// CmdBindPipeline implements gfx.CommandAPI.
func (b *Backend) CmdBindPipeline(cb gfx.CommandBuffer, pipeline gfx.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "bindPipeline"})
}

// CmdBindDescriptorSet implements gfx.CommandAPI.
func (b *Backend) CmdBindDescriptorSet(cb gfx.CommandBuffer, layout gfx.PipelineLayout, set gfx.DescriptorSet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "bindSet", set: set})
}

// CmdPushConstants implements gfx.CommandAPI.
func (b *Backend) CmdPushConstants(
	cb gfx.CommandBuffer,
	layout gfx.PipelineLayout,
	stages gfx.ShaderStage,
	offset uint32,
	data []byte,
) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "pushConstants", size: uint64(len(data))})
}

// CmdBindVertexBuffer implements gfx.CommandAPI.
func (b *Backend) CmdBindVertexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "bindVertexBuffer", dst: buffer})
}

// CmdBindIndexBuffer implements gfx.CommandAPI.
func (b *Backend) CmdBindIndexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64, indexType gfx.IndexType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "bindIndexBuffer", dst: buffer})
}

// CmdDrawIndexed implements gfx.CommandAPI.
func (b *Backend) CmdDrawIndexed(
	cb gfx.CommandBuffer,
	indexCount, instanceCount, firstIndex uint32,
	vertexOffset int32,
) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(cb, command{name: "drawIndexed", size: uint64(indexCount)})
}

// CreateFence implements gfx.SyncAPI.
func (b *Backend) CreateFence(device gfx.Device, signaled bool) (gfx.Fence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateFence"); err != nil {
		return gfx.NullFence, err
	}
	fence := gfx.Fence(b.create(gfx.ObjectFence))
	b.fences[fence] = signaled
	return fence, nil
}

// DestroyFence implements gfx.SyncAPI.
func (b *Backend) DestroyFence(device gfx.Device, fence gfx.Fence) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroyFence")
	delete(b.fences, fence)
	delete(b.submitted, fence)
	b.destroy(gfx.Handle(fence), gfx.ObjectFence)
}

// WaitFence implements gfx.SyncAPI. The work guarded by the fence completes.
// Waiting on an unsignaled fence no submission will signal is a violation, a
// real device would block forever.
func (b *Backend) WaitFence(device gfx.Device, fence gfx.Fence) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("WaitFence"); err != nil {
		return err
	}
	signaled, ok := b.fences[fence]
	if !ok {
		return errors.Newf("wait on unknown fence %d", fence)
	}
	if !signaled && !b.submitted[fence] {
		b.violations = append(b.violations,
			fmt.Sprintf("wait on fence #%d which nothing will signal", fence))
	}
	b.fences[fence] = true
	delete(b.submitted, fence)
	for pool, f := range b.inFlight {
		if f == fence {
			delete(b.inFlight, pool)
		}
	}
	return nil
}

// ResetFence implements gfx.SyncAPI.
func (b *Backend) ResetFence(device gfx.Device, fence gfx.Fence) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("ResetFence"); err != nil {
		return err
	}
	if !b.fences[fence] {
		b.violations = append(b.violations, fmt.Sprintf("reset of unsignaled fence #%d", fence))
	}
	b.fences[fence] = false
	return nil
}

// CreateSemaphore implements gfx.SyncAPI.
func (b *Backend) CreateSemaphore(device gfx.Device) (gfx.Semaphore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.call("CreateSemaphore"); err != nil {
		return gfx.NullSemaphore, err
	}
	return gfx.Semaphore(b.create(gfx.ObjectSemaphore)), nil
}

// DestroySemaphore implements gfx.SyncAPI.
func (b *Backend) DestroySemaphore(device gfx.Device, semaphore gfx.Semaphore) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.call("DestroySemaphore")
	b.destroy(gfx.Handle(semaphore), gfx.ObjectSemaphore)
}

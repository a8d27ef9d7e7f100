package vkbackend

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"vkframe/gfx"
)

// CreateDevice implements gfx.DeviceAPI.
func (b *Backend) CreateDevice(physicalDevice gfx.PhysicalDevice, info gfx.DeviceCreateInfo) (gfx.Device, error) {
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: info.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensions := cStrings(info.Extensions)
	layers := cStrings(info.Layers)

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{featuresToVk(info.Features)},

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var device vk.Device
	res := vk.CreateDevice(b.physicalDevices.get(gfx.Handle(physicalDevice)), &createInfo, nil, &device)
	if err := check(res, "vkCreateDevice"); err != nil {
		return gfx.NullDevice, err
	}
	return gfx.Device(b.devices.put(device)), nil
}

// DestroyDevice implements gfx.DeviceAPI.
func (b *Backend) DestroyDevice(device gfx.Device) {
	if obj, ok := b.devices.remove(gfx.Handle(device)); ok {
		vk.DestroyDevice(obj, nil)
	}
}

// GetQueue implements gfx.DeviceAPI.
func (b *Backend) GetQueue(device gfx.Device, family uint32) gfx.Queue {
	var queue vk.Queue
	vk.GetDeviceQueue(b.devices.get(gfx.Handle(device)), family, 0, &queue)
	return gfx.Queue(b.queues.put(queue))
}

// DeviceWaitIdle implements gfx.DeviceAPI.
func (b *Backend) DeviceWaitIdle(device gfx.Device) error {
	return check(vk.DeviceWaitIdle(b.devices.get(gfx.Handle(device))), "vkDeviceWaitIdle")
}

// QueueWaitIdle implements gfx.DeviceAPI.
func (b *Backend) QueueWaitIdle(queue gfx.Queue) error {
	return check(vk.QueueWaitIdle(b.queues.get(gfx.Handle(queue))), "vkQueueWaitIdle")
}

// QueueSubmit implements gfx.DeviceAPI.
func (b *Backend) QueueSubmit(queue gfx.Queue, submit gfx.SubmitInfo, fence gfx.Fence) error {
	if len(submit.WaitSemaphores) != len(submit.WaitStages) {
		return errors.Newf("queue submit: %d wait semaphores but %d wait stages",
			len(submit.WaitSemaphores), len(submit.WaitStages))
	}

	commandBuffers := make([]vk.CommandBuffer, 0, len(submit.CommandBuffers))
	for _, cb := range submit.CommandBuffers {
		commandBuffers = append(commandBuffers, b.commandBuffers.get(gfx.Handle(cb)))
	}

	waitSemaphores := make([]vk.Semaphore, 0, len(submit.WaitSemaphores))
	waitStages := make([]vk.PipelineStageFlags, 0, len(submit.WaitStages))
	for i, sem := range submit.WaitSemaphores {
		waitSemaphores = append(waitSemaphores, b.semaphores.get(gfx.Handle(sem)))
		waitStages = append(waitStages, vk.PipelineStageFlags(submit.WaitStages[i]))
	}

	signalSemaphores := make([]vk.Semaphore, 0, len(submit.SignalSemaphores))
	for _, sem := range submit.SignalSemaphores {
		signalSemaphores = append(signalSemaphores, b.semaphores.get(gfx.Handle(sem)))
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	res := vk.QueueSubmit(
		b.queues.get(gfx.Handle(queue)),
		1,
		[]vk.SubmitInfo{submitInfo},
		b.fences.get(gfx.Handle(fence)),
	)
	return check(res, "vkQueueSubmit")
}

// AllocateMemory implements gfx.MemoryAPI.
func (b *Backend) AllocateMemory(device gfx.Device, size uint64, typeIndex uint32) (gfx.Memory, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}

	var memory vk.DeviceMemory
	res := vk.AllocateMemory(b.devices.get(gfx.Handle(device)), &allocInfo, nil, &memory)
	if err := check(res, "vkAllocateMemory"); err != nil {
		return gfx.NullMemory, err
	}
	return gfx.Memory(b.memory.put(memory)), nil
}

// FreeMemory implements gfx.MemoryAPI.
func (b *Backend) FreeMemory(device gfx.Device, memory gfx.Memory) {
	if obj, ok := b.memory.remove(gfx.Handle(memory)); ok {
		vk.FreeMemory(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// MapMemory implements gfx.MemoryAPI.
func (b *Backend) MapMemory(device gfx.Device, memory gfx.Memory, size uint64) ([]byte, error) {
	var pData unsafe.Pointer
	res := vk.MapMemory(
		b.devices.get(gfx.Handle(device)),
		b.memory.get(gfx.Handle(memory)),
		0,
		vk.DeviceSize(size),
		0,
		&pData,
	)
	if err := check(res, "vkMapMemory"); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(pData), size), nil
}

// UnmapMemory implements gfx.MemoryAPI.
func (b *Backend) UnmapMemory(device gfx.Device, memory gfx.Memory) {
	vk.UnmapMemory(b.devices.get(gfx.Handle(device)), b.memory.get(gfx.Handle(memory)))
}

// CreateBuffer implements gfx.ResourceAPI.
func (b *Backend) CreateBuffer(device gfx.Device, info gfx.BufferInfo) (gfx.Buffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	res := vk.CreateBuffer(b.devices.get(gfx.Handle(device)), &bufferInfo, nil, &buffer)
	if err := check(res, "vkCreateBuffer"); err != nil {
		return gfx.NullBuffer, err
	}
	return gfx.Buffer(b.buffers.put(buffer)), nil
}

// DestroyBuffer implements gfx.ResourceAPI.
func (b *Backend) DestroyBuffer(device gfx.Device, buffer gfx.Buffer) {
	if obj, ok := b.buffers.remove(gfx.Handle(buffer)); ok {
		vk.DestroyBuffer(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// BufferMemoryRequirements implements gfx.ResourceAPI.
func (b *Backend) BufferMemoryRequirements(device gfx.Device, buffer gfx.Buffer) gfx.MemoryRequirements {
	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(
		b.devices.get(gfx.Handle(device)),
		b.buffers.get(gfx.Handle(buffer)),
		&memRequirements,
	)
	memRequirements.Deref()

	return gfx.MemoryRequirements{
		Size:      uint64(memRequirements.Size),
		Alignment: uint64(memRequirements.Alignment),
		TypeBits:  memRequirements.MemoryTypeBits,
	}
}

// BindBufferMemory implements gfx.ResourceAPI.
func (b *Backend) BindBufferMemory(device gfx.Device, buffer gfx.Buffer, memory gfx.Memory, offset uint64) error {
	res := vk.BindBufferMemory(
		b.devices.get(gfx.Handle(device)),
		b.buffers.get(gfx.Handle(buffer)),
		b.memory.get(gfx.Handle(memory)),
		vk.DeviceSize(offset),
	)
	return check(res, "vkBindBufferMemory")
}

// CreateImage implements gfx.ResourceAPI.
func (b *Backend) CreateImage(device gfx.Device, info gfx.ImageInfo) (gfx.Image, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vk.Format(info.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	var image vk.Image
	res := vk.CreateImage(b.devices.get(gfx.Handle(device)), &imageInfo, nil, &image)
	if err := check(res, "vkCreateImage"); err != nil {
		return gfx.NullImage, err
	}
	return gfx.Image(b.images.put(image)), nil
}

// DestroyImage implements gfx.ResourceAPI.
func (b *Backend) DestroyImage(device gfx.Device, image gfx.Image) {
	if obj, ok := b.images.remove(gfx.Handle(image)); ok {
		vk.DestroyImage(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// ImageMemoryRequirements implements gfx.ResourceAPI.
func (b *Backend) ImageMemoryRequirements(device gfx.Device, image gfx.Image) gfx.MemoryRequirements {
	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(
		b.devices.get(gfx.Handle(device)),
		b.images.get(gfx.Handle(image)),
		&memRequirements,
	)
	memRequirements.Deref()

	return gfx.MemoryRequirements{
		Size:      uint64(memRequirements.Size),
		Alignment: uint64(memRequirements.Alignment),
		TypeBits:  memRequirements.MemoryTypeBits,
	}
}

// BindImageMemory implements gfx.ResourceAPI.
func (b *Backend) BindImageMemory(device gfx.Device, image gfx.Image, memory gfx.Memory, offset uint64) error {
	res := vk.BindImageMemory(
		b.devices.get(gfx.Handle(device)),
		b.images.get(gfx.Handle(image)),
		b.memory.get(gfx.Handle(memory)),
		vk.DeviceSize(offset),
	)
	return check(res, "vkBindImageMemory")
}

// CreateImageView implements gfx.ResourceAPI.
func (b *Backend) CreateImageView(
	device gfx.Device,
	image gfx.Image,
	format gfx.Format,
	aspect gfx.ImageAspect,
) (gfx.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    b.images.get(gfx.Handle(image)),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var imageView vk.ImageView
	res := vk.CreateImageView(b.devices.get(gfx.Handle(device)), &createInfo, nil, &imageView)
	if err := check(res, "vkCreateImageView"); err != nil {
		return gfx.NullImageView, err
	}
	return gfx.ImageView(b.imageViews.put(imageView)), nil
}

// DestroyImageView implements gfx.ResourceAPI.
func (b *Backend) DestroyImageView(device gfx.Device, view gfx.ImageView) {
	if obj, ok := b.imageViews.remove(gfx.Handle(view)); ok {
		vk.DestroyImageView(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// CreateSampler implements gfx.ResourceAPI.
func (b *Backend) CreateSampler(device gfx.Device, info gfx.SamplerInfo) (gfx.Sampler, error) {
	mipmapMode := vk.SamplerMipmapModeNearest
	if info.Filter == gfx.FilterLinear {
		mipmapMode = vk.SamplerMipmapModeLinear
	}
	address := vk.SamplerAddressMode(info.AddressMode)

	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(info.Filter),
		MinFilter:               vk.Filter(info.Filter),
		MipmapMode:              mipmapMode,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		MaxAnisotropy:           1,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
	}

	var sampler vk.Sampler
	res := vk.CreateSampler(b.devices.get(gfx.Handle(device)), &createInfo, nil, &sampler)
	if err := check(res, "vkCreateSampler"); err != nil {
		return gfx.NullSampler, err
	}
	return gfx.Sampler(b.samplers.put(sampler)), nil
}

// DestroySampler implements gfx.ResourceAPI.
func (b *Backend) DestroySampler(device gfx.Device, sampler gfx.Sampler) {
	if obj, ok := b.samplers.remove(gfx.Handle(sampler)); ok {
		vk.DestroySampler(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

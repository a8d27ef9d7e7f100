package vkbackend

import (
	vk "github.com/vulkan-go/vulkan"

	"vkframe/gfx"
)

// SurfaceCapabilities implements gfx.PresentAPI.
func (b *Backend) SurfaceCapabilities(physicalDevice gfx.PhysicalDevice, surface gfx.Surface) (gfx.SurfaceCapabilities, error) {
	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(
		b.physicalDevices.get(gfx.Handle(physicalDevice)),
		b.surfaces.get(gfx.Handle(surface)),
		&capabilities,
	)
	if err := check(res, "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	return gfx.SurfaceCapabilities{
		MinImageCount:    capabilities.MinImageCount,
		MaxImageCount:    capabilities.MaxImageCount,
		CurrentExtent:    extentFromVk(capabilities.CurrentExtent),
		MinImageExtent:   extentFromVk(capabilities.MinImageExtent),
		MaxImageExtent:   extentFromVk(capabilities.MaxImageExtent),
		CurrentTransform: uint32(capabilities.CurrentTransform),
	}, nil
}

// CreateSwapchain implements gfx.PresentAPI. The images are only used by the
// single queue the device was created with.
func (b *Backend) CreateSwapchain(device gfx.Device, info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          b.surfaces.get(gfx.Handle(info.Surface)),
		MinImageCount:    info.MinImageCount,
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageFormat:      vk.Format(info.Format.Format),
		ImageExtent:      extentToVk(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     transformBit(info.Transform),
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     b.swapchains.get(gfx.Handle(info.OldSwapchain)),
	}

	var swapchain vk.Swapchain
	res := vk.CreateSwapchain(b.devices.get(gfx.Handle(device)), &createInfo, nil, &swapchain)
	if err := check(res, "vkCreateSwapchain"); err != nil {
		return gfx.NullSwapchain, err
	}
	return gfx.Swapchain(b.swapchains.put(swapchain)), nil
}

// DestroySwapchain implements gfx.PresentAPI. The images of the swapchain go
// with it.
func (b *Backend) DestroySwapchain(device gfx.Device, swapchain gfx.Swapchain) {
	obj, ok := b.swapchains.remove(gfx.Handle(swapchain))
	if !ok {
		return
	}

	b.mu.Lock()
	images := b.swapchainImages[swapchain]
	delete(b.swapchainImages, swapchain)
	b.mu.Unlock()

	for _, image := range images {
		b.images.remove(gfx.Handle(image))
	}

	vk.DestroySwapchain(b.devices.get(gfx.Handle(device)), obj, nil)
}

// SwapchainImages implements gfx.PresentAPI. The images belong to the swapchain
// and must not be destroyed.
func (b *Backend) SwapchainImages(device gfx.Device, swapchain gfx.Swapchain) ([]gfx.Image, error) {
	dev := b.devices.get(gfx.Handle(device))
	sc := b.swapchains.get(gfx.Handle(swapchain))

	var count uint32
	if err := check(vk.GetSwapchainImages(dev, sc, &count, nil), "vkGetSwapchainImages"); err != nil {
		return nil, err
	}

	images := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(dev, sc, &count, images), "vkGetSwapchainImages"); err != nil {
		return nil, err
	}

	handles := make([]gfx.Image, 0, count)
	for _, image := range images[:count] {
		handles = append(handles, gfx.Image(b.images.put(image)))
	}

	b.mu.Lock()
	b.swapchainImages[swapchain] = handles
	b.mu.Unlock()

	return handles, nil
}

// AcquireNextImage implements gfx.PresentAPI. It waits for an image without a
// timeout.
func (b *Backend) AcquireNextImage(device gfx.Device, swapchain gfx.Swapchain, signal gfx.Semaphore) (uint32, gfx.Status, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(
		b.devices.get(gfx.Handle(device)),
		b.swapchains.get(gfx.Handle(swapchain)),
		vk.MaxUint64,
		b.semaphores.get(gfx.Handle(signal)),
		vk.NullFence,
		&imageIndex,
	)

	status, err := presentStatus(res, "vkAcquireNextImageKHR")
	return imageIndex, status, err
}

// QueuePresent implements gfx.PresentAPI.
func (b *Backend) QueuePresent(queue gfx.Queue, swapchain gfx.Swapchain, imageIndex uint32, wait gfx.Semaphore) (gfx.Status, error) {
	waitSemaphores := []vk.Semaphore{b.semaphores.get(gfx.Handle(wait))}
	swapchains := []vk.Swapchain{b.swapchains.get(gfx.Handle(swapchain))}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		SwapchainCount:     uint32(len(swapchains)),
		PSwapchains:        swapchains,
		PImageIndices:      []uint32{imageIndex},
	}

	res := vk.QueuePresent(b.queues.get(gfx.Handle(queue)), &presentInfo)
	return presentStatus(res, "vkQueuePresentKHR")
}

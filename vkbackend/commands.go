package vkbackend

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"vkframe/gfx"
)

// CreateCommandPool implements gfx.CommandAPI.
func (b *Backend) CreateCommandPool(device gfx.Device, family uint32, flags gfx.CommandPoolFlags) (gfx.CommandPool, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: family,
	}

	var commandPool vk.CommandPool
	res := vk.CreateCommandPool(b.devices.get(gfx.Handle(device)), &poolInfo, nil, &commandPool)
	if err := check(res, "vkCreateCommandPool"); err != nil {
		return gfx.NullCommandPool, err
	}
	return gfx.CommandPool(b.commandPools.put(commandPool)), nil
}

// DestroyCommandPool implements gfx.CommandAPI. Command buffers allocated from
// the pool are freed with it.
func (b *Backend) DestroyCommandPool(device gfx.Device, pool gfx.CommandPool) {
	obj, ok := b.commandPools.remove(gfx.Handle(pool))
	if !ok {
		return
	}

	b.mu.Lock()
	buffers := b.poolBuffers[pool]
	delete(b.poolBuffers, pool)
	b.mu.Unlock()

	for _, cb := range buffers {
		b.commandBuffers.remove(gfx.Handle(cb))
	}

	vk.DestroyCommandPool(b.devices.get(gfx.Handle(device)), obj, nil)
}

// ResetCommandPool implements gfx.CommandAPI.
func (b *Backend) ResetCommandPool(device gfx.Device, pool gfx.CommandPool) error {
	res := vk.ResetCommandPool(
		b.devices.get(gfx.Handle(device)),
		b.commandPools.get(gfx.Handle(pool)),
		vk.CommandPoolResetFlags(vk.CommandPoolResetReleaseResourcesBit),
	)
	return check(res, "vkResetCommandPool")
}

// AllocateCommandBuffers implements gfx.CommandAPI. The buffers are primary.
func (b *Backend) AllocateCommandBuffers(device gfx.Device, pool gfx.CommandPool, count uint32) ([]gfx.CommandBuffer, error) {
	if count == 0 {
		return nil, nil
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPools.get(gfx.Handle(pool)),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}

	commandBuffers := make([]vk.CommandBuffer, count)
	res := vk.AllocateCommandBuffers(b.devices.get(gfx.Handle(device)), &allocInfo, commandBuffers)
	if err := check(res, "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}

	handles := make([]gfx.CommandBuffer, 0, count)
	for _, cb := range commandBuffers {
		handles = append(handles, gfx.CommandBuffer(b.commandBuffers.put(cb)))
	}

	b.mu.Lock()
	b.poolBuffers[pool] = append(b.poolBuffers[pool], handles...)
	b.mu.Unlock()

	return handles, nil
}

// BeginCommandBuffer implements gfx.CommandAPI.
func (b *Backend) BeginCommandBuffer(cb gfx.CommandBuffer, oneTimeSubmit bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}

	res := vk.BeginCommandBuffer(b.commandBuffers.get(gfx.Handle(cb)), &beginInfo)
	return check(res, "vkBeginCommandBuffer")
}

// EndCommandBuffer implements gfx.CommandAPI.
func (b *Backend) EndCommandBuffer(cb gfx.CommandBuffer) error {
	return check(vk.EndCommandBuffer(b.commandBuffers.get(gfx.Handle(cb))), "vkEndCommandBuffer")
}

// CmdCopyBuffer implements gfx.CommandAPI.
func (b *Backend) CmdCopyBuffer(cb gfx.CommandBuffer, src, dst gfx.Buffer, size uint64) {
	copyRegion := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}

	vk.CmdCopyBuffer(
		b.commandBuffers.get(gfx.Handle(cb)),
		b.buffers.get(gfx.Handle(src)),
		b.buffers.get(gfx.Handle(dst)),
		1,
		[]vk.BufferCopy{copyRegion},
	)
}

// CmdBufferBarrier implements gfx.CommandAPI. A zero Size covers the buffer
// from Offset to its end.
func (b *Backend) CmdBufferBarrier(cb gfx.CommandBuffer, barrier gfx.BufferBarrier) {
	size := vk.DeviceSize(barrier.Size)
	if barrier.Size == 0 {
		size = vk.DeviceSize(vk.WholeSize)
	}

	bufferBarrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(barrier.SrcAccess),
		DstAccessMask:       vk.AccessFlags(barrier.DstAccess),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.buffers.get(gfx.Handle(barrier.Buffer)),
		Offset:              vk.DeviceSize(barrier.Offset),
		Size:                size,
	}

	vk.CmdPipelineBarrier(
		b.commandBuffers.get(gfx.Handle(cb)),
		vk.PipelineStageFlags(barrier.SrcStage),
		vk.PipelineStageFlags(barrier.DstStage),
		0,
		0, nil,
		1, []vk.BufferMemoryBarrier{bufferBarrier},
		0, nil,
	)
}

// CmdImageBarrier implements gfx.CommandAPI.
func (b *Backend) CmdImageBarrier(cb gfx.CommandBuffer, barrier gfx.ImageBarrier) {
	imageBarrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(barrier.SrcAccess),
		DstAccessMask:       vk.AccessFlags(barrier.DstAccess),
		OldLayout:           vk.ImageLayout(barrier.OldLayout),
		NewLayout:           vk.ImageLayout(barrier.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               b.images.get(gfx.Handle(barrier.Image)),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	vk.CmdPipelineBarrier(
		b.commandBuffers.get(gfx.Handle(cb)),
		vk.PipelineStageFlags(barrier.SrcStage),
		vk.PipelineStageFlags(barrier.DstStage),
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{imageBarrier},
	)
}

// CmdCopyBufferToImage implements gfx.CommandAPI.
func (b *Backend) CmdCopyBufferToImage(cb gfx.CommandBuffer, src gfx.Buffer, dst gfx.Image, extent gfx.Extent2D) {
	region := vk.BufferImageCopy{
		BufferOffset: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}

	vk.CmdCopyBufferToImage(
		b.commandBuffers.get(gfx.Handle(cb)),
		b.buffers.get(gfx.Handle(src)),
		b.images.get(gfx.Handle(dst)),
		vk.ImageLayoutTransferDstOptimal,
		1,
		[]vk.BufferImageCopy{region},
	)
}

// CmdBeginRenderPass implements gfx.CommandAPI.
func (b *Backend) CmdBeginRenderPass(
	cb gfx.CommandBuffer,
	renderPass gfx.RenderPass,
	framebuffer gfx.Framebuffer,
	area gfx.Rect2D,
	clear gfx.ClearValues,
) {
	values := clearValues(clear)
	renderPassInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      b.renderPasses.get(gfx.Handle(renderPass)),
		Framebuffer:     b.framebuffers.get(gfx.Handle(framebuffer)),
		RenderArea:      rectToVk(area),
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}

	vk.CmdBeginRenderPass(b.commandBuffers.get(gfx.Handle(cb)), &renderPassInfo, vk.SubpassContentsInline)
}

// CmdEndRenderPass implements gfx.CommandAPI.
func (b *Backend) CmdEndRenderPass(cb gfx.CommandBuffer) {
	vk.CmdEndRenderPass(b.commandBuffers.get(gfx.Handle(cb)))
}

// CmdSetViewport implements gfx.CommandAPI.
func (b *Backend) CmdSetViewport(cb gfx.CommandBuffer, viewport gfx.Viewport) {
	vk.CmdSetViewport(b.commandBuffers.get(gfx.Handle(cb)), 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

// CmdSetScissor implements gfx.CommandAPI.
func (b *Backend) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect2D) {
	vk.CmdSetScissor(b.commandBuffers.get(gfx.Handle(cb)), 0, 1, []vk.Rect2D{rectToVk(scissor)})
}

// CmdBindPipeline implements gfx.CommandAPI. Only graphics pipelines are bound.
func (b *Backend) CmdBindPipeline(cb gfx.CommandBuffer, pipeline gfx.Pipeline) {
	vk.CmdBindPipeline(
		b.commandBuffers.get(gfx.Handle(cb)),
		vk.PipelineBindPointGraphics,
		b.pipelines.get(gfx.Handle(pipeline)),
	)
}

// CmdBindDescriptorSet implements gfx.CommandAPI. The set is bound as set 0.
func (b *Backend) CmdBindDescriptorSet(cb gfx.CommandBuffer, layout gfx.PipelineLayout, set gfx.DescriptorSet) {
	vk.CmdBindDescriptorSets(
		b.commandBuffers.get(gfx.Handle(cb)),
		vk.PipelineBindPointGraphics,
		b.pipelineLayouts.get(gfx.Handle(layout)),
		0,
		1,
		[]vk.DescriptorSet{b.descriptorSets.get(gfx.Handle(set))},
		0,
		nil,
	)
}

// CmdPushConstants implements gfx.CommandAPI.
func (b *Backend) CmdPushConstants(
	cb gfx.CommandBuffer,
	layout gfx.PipelineLayout,
	stages gfx.ShaderStage,
	offset uint32,
	data []byte,
) {
	if len(data) == 0 {
		return
	}

	vk.CmdPushConstants(
		b.commandBuffers.get(gfx.Handle(cb)),
		b.pipelineLayouts.get(gfx.Handle(layout)),
		vk.ShaderStageFlags(stages),
		offset,
		uint32(len(data)),
		unsafe.Pointer(&data[0]),
	)
}

// CmdBindVertexBuffer implements gfx.CommandAPI. The buffer is bound to binding
// 0.
func (b *Backend) CmdBindVertexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(
		b.commandBuffers.get(gfx.Handle(cb)),
		0,
		1,
		[]vk.Buffer{b.buffers.get(gfx.Handle(buffer))},
		[]vk.DeviceSize{vk.DeviceSize(offset)},
	)
}

// CmdBindIndexBuffer implements gfx.CommandAPI.
func (b *Backend) CmdBindIndexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64, indexType gfx.IndexType) {
	vk.CmdBindIndexBuffer(
		b.commandBuffers.get(gfx.Handle(cb)),
		b.buffers.get(gfx.Handle(buffer)),
		vk.DeviceSize(offset),
		vk.IndexType(indexType),
	)
}

// CmdDrawIndexed implements gfx.CommandAPI.
func (b *Backend) CmdDrawIndexed(cb gfx.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32) {
	vk.CmdDrawIndexed(
		b.commandBuffers.get(gfx.Handle(cb)),
		indexCount,
		instanceCount,
		firstIndex,
		vertexOffset,
		0,
	)
}

// CreateFence implements gfx.SyncAPI.
func (b *Backend) CreateFence(device gfx.Device, signaled bool) (gfx.Fence, error) {
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	res := vk.CreateFence(b.devices.get(gfx.Handle(device)), &fenceInfo, nil, &fence)
	if err := check(res, "vkCreateFence"); err != nil {
		return gfx.NullFence, err
	}
	return gfx.Fence(b.fences.put(fence)), nil
}

// DestroyFence implements gfx.SyncAPI.
func (b *Backend) DestroyFence(device gfx.Device, fence gfx.Fence) {
	if obj, ok := b.fences.remove(gfx.Handle(fence)); ok {
		vk.DestroyFence(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// WaitFence implements gfx.SyncAPI.
func (b *Backend) WaitFence(device gfx.Device, fence gfx.Fence) error {
	if fence == gfx.NullFence {
		return errors.New("vulkan: waiting on a null fence")
	}

	res := vk.WaitForFences(
		b.devices.get(gfx.Handle(device)),
		1,
		[]vk.Fence{b.fences.get(gfx.Handle(fence))},
		vk.True,
		vk.MaxUint64,
	)
	return check(res, "vkWaitForFences")
}

// ResetFence implements gfx.SyncAPI.
func (b *Backend) ResetFence(device gfx.Device, fence gfx.Fence) error {
	res := vk.ResetFences(
		b.devices.get(gfx.Handle(device)),
		1,
		[]vk.Fence{b.fences.get(gfx.Handle(fence))},
	)
	return check(res, "vkResetFences")
}

// CreateSemaphore implements gfx.SyncAPI.
func (b *Backend) CreateSemaphore(device gfx.Device) (gfx.Semaphore, error) {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	res := vk.CreateSemaphore(b.devices.get(gfx.Handle(device)), &semaphoreInfo, nil, &semaphore)
	if err := check(res, "vkCreateSemaphore"); err != nil {
		return gfx.NullSemaphore, err
	}
	return gfx.Semaphore(b.semaphores.put(semaphore)), nil
}

// DestroySemaphore implements gfx.SyncAPI.
func (b *Backend) DestroySemaphore(device gfx.Device, semaphore gfx.Semaphore) {
	if obj, ok := b.semaphores.remove(gfx.Handle(semaphore)); ok {
		vk.DestroySemaphore(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

package gfx

import "unsafe"

// SurfaceSource is a window which can create a presentation surface for an
// instance. *glfw.Window implements it.
type SurfaceSource interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// InstanceInfo describes the instance to create.
type InstanceInfo struct {
	AppName    string
	APIVersion Version
	Extensions []string
	Layers     []string
}

// DeviceCreateInfo describes the logical device to create. A single queue is
// created from QueueFamily.
type DeviceCreateInfo struct {
	QueueFamily uint32
	Extensions  []string
	Layers      []string
	Features    Features
}

// BufferInfo describes a buffer to create.
type BufferInfo struct {
	Size  uint64
	Usage BufferUsage
}

// ImageInfo describes a single-mip, single-layer 2D image to create.
type ImageInfo struct {
	Extent Extent2D
	Format Format
	Usage  ImageUsage
}

// SamplerInfo describes a sampler without mipmapping or anisotropy.
type SamplerInfo struct {
	Filter      Filter
	AddressMode AddressMode
}

// SwapchainInfo describes a swapchain to create. OldSwapchain may be null.
type SwapchainInfo struct {
	Surface       Surface
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	Transform     uint32
	OldSwapchain  Swapchain
}

// RenderPassInfo describes a single-subpass render pass with one color and one
// depth attachment. The color attachment ends up ready for presentation.
type RenderPassInfo struct {
	ColorFormat Format
	DepthFormat Format
}

// FramebufferInfo describes a framebuffer.
type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

// DescriptorBinding is one binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// PushConstantRange is a push constant range of a pipeline layout.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// PipelineLayoutInfo describes a pipeline layout.
type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

// ShaderStageInfo is a shader module used for one pipeline stage.
type ShaderStageInfo struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

// VertexAttribute is one attribute of the single interleaved vertex binding.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// GraphicsPipelineInfo describes a graphics pipeline. Viewport and scissor are
// always dynamic.
type GraphicsPipelineInfo struct {
	Stages     []ShaderStageInfo
	Layout     PipelineLayout
	RenderPass RenderPass

	// VertexStride of zero means there is no vertex input; the shaders fetch
	// their data from storage buffers.
	VertexStride     uint32
	VertexAttributes []VertexAttribute

	// PatchControlPoints above zero selects patch list topology.
	PatchControlPoints uint32

	Wireframe bool
	CullBack  bool
	DepthTest bool
	Blend     bool

	// AllowDerivatives marks the pipeline as a possible base for others and Base
	// makes this one a derivative of an existing pipeline.
	AllowDerivatives bool
	Base             Pipeline
}

// DescriptorPoolSize is how many descriptors of one type a pool holds.
type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorPoolInfo describes a descriptor pool.
type DescriptorPoolInfo struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

// DescriptorWrite points a buffer binding of a descriptor set to a buffer range,
// or a combined image sampler binding to an image view and a sampler.
type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorType
	Buffer  Buffer
	Offset  uint64
	Range   uint64

	ImageView   ImageView
	Sampler     Sampler
	ImageLayout ImageLayout
}

// SubmitInfo is a single queue submission.
type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	SignalSemaphores []Semaphore
}

// BufferBarrier is a buffer memory barrier together with the stages it sits
// between.
type BufferBarrier struct {
	Buffer    Buffer
	Offset    uint64
	Size      uint64
	SrcAccess Access
	DstAccess Access
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

// ImageBarrier is a layout transition of the color aspect of a whole image
// together with the stages it sits between.
type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

// ClearValues are the clear values for the color and depth attachments.
type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// Viewport is a viewport transform.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Backend is the graphics API as seen by the renderer. Create functions return
// a handle the caller owns until it passes it to the matching destroy function.
type Backend interface {
	InstanceAPI
	DeviceAPI
	MemoryAPI
	ResourceAPI
	PresentAPI
	PipelineAPI
	CommandAPI
	SyncAPI
}

// InstanceAPI covers everything which happens before there is a logical device.
type InstanceAPI interface {
	InstanceVersion() (Version, error)
	InstanceExtensions() ([]string, error)
	InstanceLayers() ([]string, error)
	CreateInstance(info InstanceInfo) (Instance, error)
	DestroyInstance(instance Instance)
	CreateDebugMessenger(instance Instance) (DebugMessenger, error)
	DestroyDebugMessenger(instance Instance, messenger DebugMessenger)
	CreateSurface(instance Instance, window SurfaceSource) (Surface, error)
	DestroySurface(instance Instance, surface Surface)
	PhysicalDevices(instance Instance) ([]PhysicalDevice, error)
	DescribePhysicalDevice(pd PhysicalDevice, surface Surface) (DeviceInfo, error)
}

// DeviceAPI covers the logical device and its queue.
type DeviceAPI interface {
	CreateDevice(pd PhysicalDevice, info DeviceCreateInfo) (Device, error)
	DestroyDevice(device Device)
	GetQueue(device Device, family uint32) Queue
	DeviceWaitIdle(device Device) error
	QueueWaitIdle(queue Queue) error
	QueueSubmit(queue Queue, submit SubmitInfo, fence Fence) error
}

// MemoryAPI covers raw device memory.
type MemoryAPI interface {
	AllocateMemory(device Device, size uint64, typeIndex uint32) (Memory, error)
	FreeMemory(device Device, memory Memory)

	// MapMemory maps the first size bytes of memory. The slice stays valid until
	// UnmapMemory or FreeMemory.
	MapMemory(device Device, memory Memory, size uint64) ([]byte, error)
	UnmapMemory(device Device, memory Memory)
}

// ResourceAPI covers buffers, images, image views and samplers.
type ResourceAPI interface {
	CreateBuffer(device Device, info BufferInfo) (Buffer, error)
	DestroyBuffer(device Device, buffer Buffer)
	BufferMemoryRequirements(device Device, buffer Buffer) MemoryRequirements
	BindBufferMemory(device Device, buffer Buffer, memory Memory, offset uint64) error

	CreateImage(device Device, info ImageInfo) (Image, error)
	DestroyImage(device Device, image Image)
	ImageMemoryRequirements(device Device, image Image) MemoryRequirements
	BindImageMemory(device Device, image Image, memory Memory, offset uint64) error

	CreateImageView(device Device, image Image, format Format, aspect ImageAspect) (ImageView, error)
	DestroyImageView(device Device, view ImageView)

	CreateSampler(device Device, info SamplerInfo) (Sampler, error)
	DestroySampler(device Device, sampler Sampler)
}

// PresentAPI covers surfaces and swapchains. Acquire and present report
// out-of-date and suboptimal swapchains through Status, never through error.
type PresentAPI interface {
	SurfaceCapabilities(pd PhysicalDevice, surface Surface) (SurfaceCapabilities, error)
	CreateSwapchain(device Device, info SwapchainInfo) (Swapchain, error)
	DestroySwapchain(device Device, swapchain Swapchain)
	SwapchainImages(device Device, swapchain Swapchain) ([]Image, error)
	AcquireNextImage(device Device, swapchain Swapchain, signal Semaphore) (uint32, Status, error)
	QueuePresent(queue Queue, swapchain Swapchain, imageIndex uint32, wait Semaphore) (Status, error)
}

// PipelineAPI covers render passes, framebuffers, pipelines and descriptors.
type PipelineAPI interface {
	CreateRenderPass(device Device, info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(device Device, renderPass RenderPass)
	CreateFramebuffer(device Device, info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(device Device, framebuffer Framebuffer)

	CreateShaderModule(device Device, code []byte) (ShaderModule, error)
	DestroyShaderModule(device Device, module ShaderModule)

	CreateDescriptorSetLayout(device Device, bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(device Device, layout DescriptorSetLayout)
	CreatePipelineLayout(device Device, info PipelineLayoutInfo) (PipelineLayout, error)
	DestroyPipelineLayout(device Device, layout PipelineLayout)
	CreateGraphicsPipeline(device Device, info GraphicsPipelineInfo) (Pipeline, error)
	DestroyPipeline(device Device, pipeline Pipeline)

	CreateDescriptorPool(device Device, info DescriptorPoolInfo) (DescriptorPool, error)
	DestroyDescriptorPool(device Device, pool DescriptorPool)
	ResetDescriptorPool(device Device, pool DescriptorPool) error
	AllocateDescriptorSet(device Device, pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSet(device Device, set DescriptorSet, writes []DescriptorWrite)
}

// CommandAPI covers command pools and recording.
type CommandAPI interface {
	CreateCommandPool(device Device, family uint32, flags CommandPoolFlags) (CommandPool, error)
	DestroyCommandPool(device Device, pool CommandPool)

	// ResetCommandPool returns every command buffer of the pool to the initial
	// state and releases their resources back to the pool.
	ResetCommandPool(device Device, pool CommandPool) error
	AllocateCommandBuffers(device Device, pool CommandPool, count uint32) ([]CommandBuffer, error)

	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size uint64)
	CmdBufferBarrier(cb CommandBuffer, barrier BufferBarrier)
	CmdImageBarrier(cb CommandBuffer, barrier ImageBarrier)

	// CmdCopyBufferToImage copies tightly packed texels from the start of src
	// into dst, which must be in ImageLayoutTransferDstOptimal.
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, extent Extent2D)
	CmdBeginRenderPass(cb CommandBuffer, renderPass RenderPass, framebuffer Framebuffer, area Rect2D, clear ClearValues)
	CmdEndRenderPass(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect2D)
	CmdBindPipeline(cb CommandBuffer, pipeline Pipeline)
	CmdBindDescriptorSet(cb CommandBuffer, layout PipelineLayout, set DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdBindVertexBuffer(cb CommandBuffer, buffer Buffer, offset uint64)
	CmdBindIndexBuffer(cb CommandBuffer, buffer Buffer, offset uint64, indexType IndexType)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32)
}

// SyncAPI covers fences and semaphores. WaitFence waits without a timeout.
type SyncAPI interface {
	CreateFence(device Device, signaled bool) (Fence, error)
	DestroyFence(device Device, fence Fence)
	WaitFence(device Device, fence Fence) error
	ResetFence(device Device, fence Fence) error

	CreateSemaphore(device Device) (Semaphore, error)
	DestroySemaphore(device Device, semaphore Semaphore)
}

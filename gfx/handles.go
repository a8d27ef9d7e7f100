// Package gfx describes the slice of the Vulkan API the renderer drives. Handles
// are opaque integers and enum values carry their Vulkan numbering, so a backend
// can convert them with plain type conversions. Nothing in this package needs
// cgo, which lets the renderer run against an in-memory backend in tests.
package gfx

import "fmt"

// Handle is an opaque reference to an object owned by a Backend. Zero is the
// null handle for every kind.
type Handle uint64

// IsNull returns true for the null handle.
func (h Handle) IsNull() bool {
	return h == 0
}

// Typed handles. They are distinct types so that passing a buffer where an image
// is expected does not compile.
type (
	Instance            Handle
	DebugMessenger      Handle
	Surface             Handle
	PhysicalDevice      Handle
	Device              Handle
	Queue               Handle
	Memory              Handle
	Buffer              Handle
	Image               Handle
	ImageView           Handle
	Sampler             Handle
	Swapchain           Handle
	RenderPass          Handle
	Framebuffer         Handle
	ShaderModule        Handle
	DescriptorSetLayout Handle
	PipelineLayout      Handle
	Pipeline            Handle
	CommandPool         Handle
	CommandBuffer       Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	Fence               Handle
	Semaphore           Handle
)

// Null handles.
const (
	NullInstance       Instance       = 0
	NullDebugMessenger DebugMessenger = 0
	NullSurface        Surface        = 0
	NullDevice         Device         = 0
	NullMemory         Memory         = 0
	NullBuffer         Buffer         = 0
	NullImage          Image          = 0
	NullImageView      ImageView      = 0
	NullSampler        Sampler        = 0
	NullSwapchain      Swapchain      = 0
	NullRenderPass     RenderPass     = 0
	NullPipeline       Pipeline       = 0
	NullCommandPool    CommandPool    = 0
	NullDescriptorPool DescriptorPool = 0
	NullFence          Fence          = 0
	NullSemaphore      Semaphore      = 0
)

// ObjectKind names the kind of object a Handle refers to. It is used when tagging
// objects with debug names.
type ObjectKind int

// Object kinds.
const (
	ObjectUnknown ObjectKind = iota
	ObjectInstance
	ObjectSurface
	ObjectPhysicalDevice
	ObjectDevice
	ObjectQueue
	ObjectMemory
	ObjectBuffer
	ObjectImage
	ObjectImageView
	ObjectSwapchain
	ObjectRenderPass
	ObjectFramebuffer
	ObjectShaderModule
	ObjectDescriptorSetLayout
	ObjectPipelineLayout
	ObjectPipeline
	ObjectCommandPool
	ObjectCommandBuffer
	ObjectDescriptorPool
	ObjectDescriptorSet
	ObjectFence
	ObjectSemaphore
	ObjectSampler
)

var objectKindNames = [...]string{
	ObjectUnknown:             "unknown",
	ObjectInstance:            "instance",
	ObjectSurface:             "surface",
	ObjectPhysicalDevice:      "physical device",
	ObjectDevice:              "device",
	ObjectQueue:               "queue",
	ObjectMemory:              "memory",
	ObjectBuffer:              "buffer",
	ObjectImage:               "image",
	ObjectImageView:           "image view",
	ObjectSwapchain:           "swapchain",
	ObjectRenderPass:          "render pass",
	ObjectFramebuffer:         "framebuffer",
	ObjectShaderModule:        "shader module",
	ObjectDescriptorSetLayout: "descriptor set layout",
	ObjectPipelineLayout:      "pipeline layout",
	ObjectPipeline:            "pipeline",
	ObjectCommandPool:         "command pool",
	ObjectCommandBuffer:       "command buffer",
	ObjectDescriptorPool:      "descriptor pool",
	ObjectDescriptorSet:       "descriptor set",
	ObjectFence:               "fence",
	ObjectSemaphore:           "semaphore",
	ObjectSampler:             "sampler",
}

func (k ObjectKind) String() string {
	if k < 0 || int(k) >= len(objectKindNames) {
		return fmt.Sprintf("ObjectKind(%d)", int(k))
	}
	return objectKindNames[k]
}

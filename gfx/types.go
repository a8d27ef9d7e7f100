package gfx

import (
	"fmt"
	"math"

	"vkframe/queues"
)

// Version is an API version packed the way Vulkan packs it.
type Version uint32

// MakeVersion packs major, minor and patch into a Version.
func MakeVersion(major, minor, patch uint32) Version {
	return Version(major<<22 | minor<<12 | patch)
}

// Major returns the major component.
func (v Version) Major() uint32 { return uint32(v) >> 22 }

// Minor returns the minor component.
func (v Version) Minor() uint32 { return (uint32(v) >> 12) & 0x3ff }

// Patch returns the patch component.
func (v Version) Patch() uint32 { return uint32(v) & 0xfff }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero returns true when either dimension is zero. Such an extent cannot back a
// swapchain.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// UndefinedExtent is reported as the current extent by surfaces whose size is
// decided by the swapchain.
var UndefinedExtent = Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}

// Offset2D is a position in pixels.
type Offset2D struct {
	X int32
	Y int32
}

// Rect2D is a rectangle in pixels.
type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

// Format is an image format with Vulkan numbering.
type Format uint32

// Formats used by the renderer.
const (
	FormatUndefined       Format = 0
	FormatR8G8B8A8Unorm   Format = 37
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatR32G32Sfloat    Format = 103
	FormatD16Unorm        Format = 124
	FormatD32Sfloat       Format = 126
	FormatD16UnormS8Uint  Format = 128
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

// DepthFormats lists every depth format a backend is asked about when it
// describes a physical device.
var DepthFormats = []Format{
	FormatD16Unorm,
	FormatD32Sfloat,
	FormatD16UnormS8Uint,
	FormatD24UnormS8Uint,
	FormatD32SfloatS8Uint,
}

// HasStencil returns true for combined depth/stencil formats.
func (f Format) HasStencil() bool {
	switch f {
	case FormatD16UnormS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// PixelSize returns the size of one texel of a color format in bytes, or zero
// for formats the renderer never uploads.
func (f Format) PixelSize() uint64 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb:
		return 4
	case FormatR32G32Sfloat:
		return 8
	}
	return 0
}

// ImageLayout is an image layout with Vulkan numbering.
type ImageLayout uint32

// Image layouts used by the renderer.
const (
	ImageLayoutUndefined             ImageLayout = 0
	ImageLayoutShaderReadOnlyOptimal ImageLayout = 5
	ImageLayoutTransferDstOptimal    ImageLayout = 7
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "undefined"
	case ImageLayoutShaderReadOnlyOptimal:
		return "shader read only"
	case ImageLayoutTransferDstOptimal:
		return "transfer dst"
	}
	return fmt.Sprintf("ImageLayout(%d)", uint32(l))
}

// Filter is a sampler filter with Vulkan numbering.
type Filter uint32

// Filters.
const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

// AddressMode is a sampler address mode with Vulkan numbering.
type AddressMode uint32

// Address modes.
const (
	AddressModeRepeat      AddressMode = 0
	AddressModeClampToEdge AddressMode = 2
)

// ColorSpace is a presentation color space with Vulkan numbering.
type ColorSpace uint32

// ColorSpaceSrgbNonlinear is the only color space every surface supports.
const ColorSpaceSrgbNonlinear ColorSpace = 0

// SurfaceFormat is a format and color space pair supported by a surface.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode is a swapchain presentation mode with Vulkan numbering.
type PresentMode uint32

// Present modes.
const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", uint32(m))
}

// BufferUsage is a set of buffer usage bits.
type BufferUsage uint32

// Buffer usage bits.
const (
	BufferUsageTransferSrc BufferUsage = 0x1
	BufferUsageTransferDst BufferUsage = 0x2
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
	BufferUsageIndex       BufferUsage = 0x40
	BufferUsageVertex      BufferUsage = 0x80
)

// ImageUsage is a set of image usage bits.
type ImageUsage uint32

// Image usage bits.
const (
	ImageUsageTransferSrc            ImageUsage = 0x1
	ImageUsageTransferDst            ImageUsage = 0x2
	ImageUsageSampled                ImageUsage = 0x4
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

// ImageAspect is a set of image aspect bits.
type ImageAspect uint32

// Image aspects.
const (
	ImageAspectColor   ImageAspect = 0x1
	ImageAspectDepth   ImageAspect = 0x2
	ImageAspectStencil ImageAspect = 0x4
)

// MemoryProperty is a set of memory property bits.
type MemoryProperty uint32

// Memory property bits.
const (
	MemoryPropertyDeviceLocal  MemoryProperty = 0x1
	MemoryPropertyHostVisible  MemoryProperty = 0x2
	MemoryPropertyHostCoherent MemoryProperty = 0x4
	MemoryPropertyHostCached   MemoryProperty = 0x8
)

// Has returns true when all bits of other are set in p.
func (p MemoryProperty) Has(other MemoryProperty) bool {
	return p&other == other
}

// MemoryType is one entry of a physical device's memory type table.
type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

// MemoryRequirements is what an unbound buffer or image needs from memory.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64

	// TypeBits has bit i set when memory type i may back the resource.
	TypeBits uint32
}

// Access is a set of memory access bits.
type Access uint32

// Access bits.
const (
	AccessIndexRead            Access = 0x2
	AccessVertexAttributeRead  Access = 0x4
	AccessUniformRead          Access = 0x8
	AccessShaderRead           Access = 0x20
	AccessShaderWrite          Access = 0x40
	AccessColorAttachmentRead  Access = 0x80
	AccessColorAttachmentWrite Access = 0x100
	AccessDepthStencilWrite    Access = 0x400
	AccessTransferRead         Access = 0x800
	AccessTransferWrite        Access = 0x1000
	AccessHostWrite            Access = 0x4000
)

// PipelineStage is a set of pipeline stage bits.
type PipelineStage uint32

// Pipeline stage bits.
const (
	PipelineStageTopOfPipe             PipelineStage = 0x1
	PipelineStageVertexInput           PipelineStage = 0x4
	PipelineStageVertexShader          PipelineStage = 0x8
	PipelineStageTessellationControl   PipelineStage = 0x10
	PipelineStageTessellationEval      PipelineStage = 0x20
	PipelineStageFragmentShader        PipelineStage = 0x80
	PipelineStageEarlyFragmentTests    PipelineStage = 0x100
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
	PipelineStageTransfer              PipelineStage = 0x1000
	PipelineStageBottomOfPipe          PipelineStage = 0x2000
)

// ShaderStage is a set of shader stage bits.
type ShaderStage uint32

// Shader stage bits.
const (
	ShaderStageVertex         ShaderStage = 0x1
	ShaderStageTessControl    ShaderStage = 0x2
	ShaderStageTessEvaluation ShaderStage = 0x4
	ShaderStageFragment       ShaderStage = 0x10
)

// DescriptorType is a descriptor type with Vulkan numbering.
type DescriptorType uint32

// Descriptor types used by the renderer.
const (
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
)

// IndexType is the width of the indices in an index buffer.
type IndexType uint32

// Index types.
const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

// Size returns the width of one index in bytes.
func (t IndexType) Size() uint64 {
	if t == IndexTypeUint32 {
		return 4
	}
	return 2
}

// CommandPoolFlags is a set of command pool creation bits.
type CommandPoolFlags uint32

// Command pool creation bits.
const (
	CommandPoolTransient          CommandPoolFlags = 0x1
	CommandPoolResetCommandBuffer CommandPoolFlags = 0x2
)

// Status is the non-error outcome of acquiring or presenting a swapchain image.
// Anything other than StatusSuccess means the swapchain should be rebuilt.
type Status int

// Presentation statuses.
const (
	StatusSuccess Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Features is the subset of physical device features the renderer may require.
type Features struct {
	TessellationShader bool
	FillModeNonSolid   bool
	SamplerAnisotropy  bool
}

// Covers returns true when every feature set in required is also set in f.
func (f Features) Covers(required Features) bool {
	if required.TessellationShader && !f.TessellationShader {
		return false
	}
	if required.FillModeNonSolid && !f.FillModeNonSolid {
		return false
	}
	if required.SamplerAnisotropy && !f.SamplerAnisotropy {
		return false
	}
	return true
}

// DeviceInfo is everything the renderer wants to know about a physical device
// before it commits to using it.
type DeviceInfo struct {
	Name       string
	APIVersion Version
	Discrete   bool
	Features   Features
	Extensions []string

	// QueueFamilies is indexed by queue family index. Present support is against
	// the surface passed to DescribePhysicalDevice.
	QueueFamilies []queues.Family

	// DepthFormats lists the entries of gfx.DepthFormats usable as optimal tiling
	// depth/stencil attachments.
	DepthFormats []Format

	SurfaceFormats []SurfaceFormat
	PresentModes   []PresentMode
	MemoryTypes    []MemoryType
}

// SurfaceCapabilities is a snapshot of what a surface allows right now.
type SurfaceCapabilities struct {
	MinImageCount uint32

	// MaxImageCount is zero when there is no upper limit.
	MaxImageCount uint32

	// CurrentExtent is UndefinedExtent when the swapchain decides the size.
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D

	// CurrentTransform is passed through to swapchain creation unchanged.
	CurrentTransform uint32
}

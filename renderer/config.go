package renderer

import (
	"github.com/cockroachdb/errors"

	"vkframe/gfx"
)

// Config holds everything the renderer can be told from the outside. Start from
// DefaultConfig and change what is needed.
type Config struct {
	// AppName is reported to the driver when creating the instance.
	AppName string

	// Validation enables the validation layers and the debug messenger.
	Validation bool

	// ValidationLayers are the layers enabled when Validation is set.
	ValidationLayers []string

	// MinAPIVersion is the lowest instance and device API version accepted.
	MinAPIVersion gfx.Version

	// RequiredFeatures must all be supported by the physical device.
	RequiredFeatures gfx.Features

	// Tessellation adds the tessellation stages to the mesh pipelines and makes
	// the tessellation shader feature required.
	Tessellation bool

	// DeviceExtensions must all be supported by the physical device.
	DeviceExtensions []string

	// DepthCandidates are tried in order and the first one the device supports
	// becomes the depth buffer format.
	DepthCandidates []gfx.Format

	// FramesInFlight is the number of frame slots.
	FramesInFlight int

	// PreferredImageCount is the number of swapchain images asked for. The
	// surface limits still apply.
	PreferredImageCount uint32

	// BlockSize is the size of the device memory blocks the allocator
	// sub-allocates from.
	BlockSize uint64

	// DescriptorPoolMaxSets is the number of sets each frame slot can allocate
	// between two resets.
	DescriptorPoolMaxSets uint32

	// CommandBufferBatch is how many command buffers a frame slot allocates at
	// once when it runs out.
	CommandBufferBatch uint32

	// ClearColor is the color the frame is cleared to.
	ClearColor [4]float32

	// Namer receives a name for every object the renderer creates. It may be nil.
	Namer DebugNamer
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		AppName:          "vkframe",
		ValidationLayers: []string{"VK_LAYER_KHRONOS_validation"},
		MinAPIVersion:    gfx.MakeVersion(1, 1, 0),
		RequiredFeatures: gfx.Features{
			FillModeNonSolid: true,
		},
		DeviceExtensions: []string{"VK_KHR_swapchain"},
		DepthCandidates: []gfx.Format{
			gfx.FormatD24UnormS8Uint,
			gfx.FormatD32SfloatS8Uint,
			gfx.FormatD16UnormS8Uint,
		},
		FramesInFlight:        2,
		PreferredImageCount:   3,
		BlockSize:             64 << 20,
		DescriptorPoolMaxSets: 100,
		CommandBufferBatch:    10,
		ClearColor:            [4]float32{0, 0, 0, 1},
	}
}

func (c *Config) validate() error {
	if c.FramesInFlight < 1 {
		return errors.Newf("config: frames in flight must be at least 1, got %d", c.FramesInFlight)
	}
	if len(c.DepthCandidates) == 0 {
		return errors.New("config: no depth format candidates")
	}
	if c.BlockSize == 0 {
		return errors.New("config: zero allocator block size")
	}
	if c.DescriptorPoolMaxSets == 0 || c.CommandBufferBatch == 0 {
		return errors.New("config: descriptor pool and command buffer batch sizes must be positive")
	}
	return nil
}

// requiredFeatures returns RequiredFeatures together with what the other
// settings imply.
func (c *Config) requiredFeatures() gfx.Features {
	f := c.RequiredFeatures
	if c.Tessellation {
		f.TessellationShader = true
	}
	return f
}

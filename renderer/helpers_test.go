package renderer_test

import (
	"testing/fstest"

	. "github.com/onsi/gomega"

	"vkframe/gfx"
	"vkframe/gfx/gfxtest"
	"vkframe/renderer"
	"vkframe/shaders"
	"vkframe/unsafer"
)

// spirv is a minimal byte sequence which passes shaders.Validate.
var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func testShaders() renderer.ShaderSource {
	files := fstest.MapFS{}
	for _, name := range []string{
		renderer.MeshVertexShader,
		renderer.MeshTessControlShader,
		renderer.MeshTessEvalShader,
		renderer.MeshFragmentShader,
		renderer.OverlayVertexShader,
		renderer.OverlayFragmentShader,
	} {
		files[name] = &fstest.MapFile{Data: spirv}
	}
	return shaders.NewFS(files)
}

func testConfig() renderer.Config {
	cfg := renderer.DefaultConfig()
	cfg.BlockSize = 1 << 20
	return cfg
}

func triangle() renderer.Geometry {
	vertices := []float32{
		0, -0.5, 0, 0, 0,
		0.5, 0.5, 0, 1, 0,
		-0.5, 0.5, 0, 0, 1,
	}
	indices := []uint16{0, 1, 2}

	return renderer.Geometry{
		Vertices:   unsafer.SliceToBytes(vertices),
		Indices:    unsafer.SliceToBytes(indices),
		IndexType:  gfx.IndexTypeUint16,
		IndexCount: 3,
	}
}

type staticScene struct {
	frames int
}

func (s *staticScene) FrameData(extent gfx.Extent2D) renderer.FrameData {
	s.frames++
	return renderer.FrameData{
		Uniforms:      make([]byte, 192),
		PushConstants: unsafer.SliceToBytes([]float32{4}),
	}
}

// newContext brings up a device context on the fake and makes sure it is
// torn down cleanly by the returned function.
func newContext(fake *gfxtest.Backend, window *gfxtest.Window) (*renderer.DeviceContext, func()) {
	ctx, err := renderer.NewDeviceContext(fake, window, testConfig())
	Expect(err).NotTo(HaveOccurred())

	return ctx, func() {
		ctx.Destroy()
		Expect(fake.Violations()).To(BeEmpty())
		Expect(fake.Live()).To(BeZero(), "live: %v", fake.LiveKinds())
	}
}

// indexOf returns the position of the nth (1-based) occurrence of call in calls,
// or -1.
func indexOf(calls []string, call string, nth int) int {
	for i, c := range calls {
		if c != call {
			continue
		}
		nth--
		if nth == 0 {
			return i
		}
	}
	return -1
}

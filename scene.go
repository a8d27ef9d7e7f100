package main

import (
	"time"

	"github.com/loov/hrtime"
	"github.com/xlab/linmath"

	"vkframe/gfx"
	"vkframe/renderer"
	"vkframe/unsafer"
)

// tessellationLevel is the inner and outer tessellation level pushed to the
// tessellation control shader.
const tessellationLevel float32 = 3

// spinningScene turns the model around the Y axis at a quarter turn per
// second.
type spinningScene struct {
	start        time.Duration
	tessellation bool

	view linmath.Mat4x4
}

func newSpinningScene(tessellation bool) *spinningScene {
	s := &spinningScene{
		start:        hrtime.Now(),
		tessellation: tessellation,
	}
	s.view.LookAt(
		&linmath.Vec3{0, 1.5, 2.5},
		&linmath.Vec3{0, 0, 0},
		&linmath.Vec3{0, 1, 0},
	)
	return s
}

// FrameData implements renderer.Scene.
func (s *spinningScene) FrameData(extent gfx.Extent2D) renderer.FrameData {
	elapsed := (hrtime.Now() - s.start).Seconds()
	return s.frameData(extent, float32(elapsed))
}

func (s *spinningScene) frameData(extent gfx.Extent2D, seconds float32) renderer.FrameData {
	var identity, model, proj linmath.Mat4x4
	identity.Identity()
	model.Rotate(&identity, 0, 1, 0, linmath.DegreesToRadians(90*seconds))

	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	proj.Perspective(linmath.DegreesToRadians(45), aspect, 0.1, 100)
	// Vulkan clip space has Y pointing down.
	proj[1][1] *= -1

	camera := []linmath.Mat4x4{model, s.view, proj}
	data := renderer.FrameData{
		Uniforms: append([]byte(nil), unsafer.SliceToBytes(camera)...),
	}
	if s.tessellation {
		level := []float32{tessellationLevel}
		data.PushConstants = append([]byte(nil), unsafer.SliceToBytes(level)...)
	}
	return data
}

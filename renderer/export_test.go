package renderer

import (
	"vkframe/gfx"
)

var (
	ChooseSurfaceFormat = chooseSurfaceFormat
	ChoosePresentMode   = choosePresentMode
	ChooseExtent        = chooseExtent
	ChooseImageCount    = chooseImageCount
	ClampScissor        = clampScissor
	ValidateOverlay     = OverlayFrame.validate
	NextPowerOfTwo      = nextPowerOfTwo
	FindMemoryType      = findMemoryType
)

func CheckDevice(cfg Config, info gfx.DeviceInfo) (uint32, gfx.Format, error) {
	choice, err := cfg.checkDevice(info)
	return choice.queueFamily, choice.depthFormat, err
}

func (s *FrameSlot) Pending() bool { return s.pending }

func (s *FrameSlot) Submit(buffers []gfx.CommandBuffer) error { return s.submit(buffers) }

func (s *FrameSlot) ImageAvailable() gfx.Semaphore { return s.imageAvailable }

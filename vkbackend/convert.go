package vkbackend

import (
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
	"vkframe/unsafer"
)

// check turns a failed Vulkan result into an error naming the call.
func check(res vk.Result, call string) error {
	if err := vk.Error(res); err != nil {
		return errors.Wrapf(err, "%s", call)
	}
	return nil
}

// presentStatus splits the results of acquiring and presenting an image into
// the ones which only ask for a new swapchain and real errors.
func presentStatus(res vk.Result, call string) (gfx.Status, error) {
	switch res {
	case vk.Success:
		return gfx.StatusSuccess, nil
	case vk.Suboptimal:
		return gfx.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return gfx.StatusOutOfDate, nil
	}
	return gfx.StatusSuccess, check(res, call)
}

// cString returns s with the terminating zero byte Vulkan expects.
func cString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

func cStrings(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, cString(s))
	}
	return out
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func featuresFromVk(f vk.PhysicalDeviceFeatures) gfx.Features {
	return gfx.Features{
		TessellationShader: f.TessellationShader.B(),
		FillModeNonSolid:   f.FillModeNonSolid.B(),
		SamplerAnisotropy:  f.SamplerAnisotropy.B(),
	}
}

func featuresToVk(f gfx.Features) vk.PhysicalDeviceFeatures {
	return vk.PhysicalDeviceFeatures{
		TessellationShader: vkBool(f.TessellationShader),
		FillModeNonSolid:   vkBool(f.FillModeNonSolid),
		SamplerAnisotropy:  vkBool(f.SamplerAnisotropy),
	}
}

func extentFromVk(e vk.Extent2D) gfx.Extent2D {
	return gfx.Extent2D{Width: e.Width, Height: e.Height}
}

func extentToVk(e gfx.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func rectToVk(r gfx.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: extentToVk(r.Extent),
	}
}

// spirvWords copies SPIR-V byte code into 32 bit words. The copy also takes care
// of byte slices which are not aligned for uint32 access.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("shader byte code of %d bytes is not a whole number of words", len(code))
	}

	words := make([]uint32, len(code)/4)
	copy(unsafer.SliceToBytes(words), code)
	return words, nil
}

// rawPointer is the value of a Vulkan handle as the validation layers print it.
func rawPointer(p unsafe.Pointer) uint64 {
	return uint64(uintptr(p))
}

func clearValues(c gfx.ClearValues) []vk.ClearValue {
	return []vk.ClearValue{
		vk.NewClearValue(c.Color[:]),
		vk.NewClearDepthStencil(c.Depth, c.Stencil),
	}
}

// debugLevel maps debug report flags to a log level.
func debugLevel(flags vk.DebugReportFlags) slog.Level {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		return slog.LevelError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0,
		flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// transformBit returns the single lowest bit of a surface transform mask, which
// is what swapchain creation accepts.
func transformBit(transform uint32) vk.SurfaceTransformFlagBits {
	if transform == 0 {
		return vk.SurfaceTransformIdentityBit
	}
	return vk.SurfaceTransformFlagBits(transform & -transform)
}

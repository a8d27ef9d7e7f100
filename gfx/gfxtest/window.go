package gfxtest

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Window is a fake window. Width and Height are reported as the framebuffer
// size and may be changed at any time to simulate resizing or minimizing.
type Window struct {
	Width  int
	Height int

	// Extensions are reported as the required instance extensions.
	Extensions []string

	// SurfaceErr, when set, makes surface creation fail.
	SurfaceErr error
}

// NewWindow returns an 800x600 window which needs the surface extensions New
// reports.
func NewWindow() *Window {
	return &Window{
		Width:      800,
		Height:     600,
		Extensions: []string{"VK_KHR_surface", "VK_KHR_xcb_surface"},
	}
}

// GetFramebufferSize returns Width and Height.
func (w *Window) GetFramebufferSize() (int, int) {
	return w.Width, w.Height
}

// GetRequiredInstanceExtensions returns Extensions.
func (w *Window) GetRequiredInstanceExtensions() []string {
	return w.Extensions
}

// CreateWindowSurface returns a dummy surface pointer, or SurfaceErr.
func (w *Window) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	if w.SurfaceErr != nil {
		return 0, errors.Wrap(w.SurfaceErr, "create window surface")
	}
	return 1, nil
}

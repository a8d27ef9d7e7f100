package vkbackend

import (
	"context"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
)

type namedTable interface {
	setName(h gfx.Handle, name string) bool
	nameOf(raw uint64) (string, bool)
	len() int
}

// SetObjectName remembers a name for an object. Validation messages about the
// object are logged with the name attached.
func (b *Backend) SetObjectName(kind gfx.ObjectKind, handle gfx.Handle, name string) {
	t, ok := b.named[kind]
	if !ok || !t.setName(handle, name) {
		Logger().Debug("vulkan: cannot name object",
			slog.String("kind", kind.String()),
			slog.Uint64("handle", uint64(handle)),
			slog.String("name", name),
		)
	}
}

// objectName finds the name given to the object Vulkan knows as raw.
func (b *Backend) objectName(raw uint64) string {
	if raw == 0 {
		return ""
	}
	for _, t := range b.named {
		if name, ok := t.nameOf(raw); ok {
			return name
		}
	}
	return ""
}

func (b *Backend) debugReport(
	flags vk.DebugReportFlags,
	objectType vk.DebugReportObjectType,
	object uint64,
	location uint,
	messageCode int32,
	pLayerPrefix string,
	pMessage string,
	pUserData unsafe.Pointer,
) vk.Bool32 {
	attrs := []slog.Attr{
		slog.String("layer", pLayerPrefix),
		slog.Int("code", int(messageCode)),
	}
	if name := b.objectName(object); name != "" {
		attrs = append(attrs, slog.String("object", name))
	}

	Logger().LogAttrs(context.Background(), debugLevel(flags), pMessage, attrs...)
	return vk.False
}

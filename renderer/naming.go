package renderer

import (
	"vkframe/gfx"
)

// DebugNamer attaches human readable names to objects so that validation
// messages can refer to them.
type DebugNamer interface {
	SetObjectName(kind gfx.ObjectKind, handle gfx.Handle, name string)
}

type nopNamer struct{}

func (nopNamer) SetObjectName(gfx.ObjectKind, gfx.Handle, string) {}

func namerOrNop(n DebugNamer) DebugNamer {
	if n == nil {
		return nopNamer{}
	}
	return n
}

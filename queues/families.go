package queues

import (
	"vkframe/optional"
)

// Family describes the capabilities of a single queue family as reported by a
// physical device.
type Family struct {
	// Graphics is true when the family supports graphics operations.
	Graphics bool

	// Present is true when the family can present to the drawing surface.
	Present bool
}

// FamilyIndices holds the indexes of Vulkan queue families needed by the program.
type FamilyIndices struct {

	// Graphics is the index of the graphics queue family.
	Graphics optional.Optional[uint32]

	// Present is the index of the queue family used for presenting to the drawing
	// surface.
	Present optional.Optional[uint32]

	// Shared is the index of a family which supports both graphics and present.
	// The renderer works with a single queue so this is the one it needs.
	Shared optional.Optional[uint32]
}

// IsComplete returns true if all families have been set.
func (f *FamilyIndices) IsComplete() bool {
	return f.Graphics.HasValue() && f.Present.HasValue()
}

// HasShared returns true when one family covers both graphics and present.
func (f *FamilyIndices) HasShared() bool {
	return f.Shared.HasValue()
}

// Find walks the families in order and records the first family of each kind.
// The first family which does both graphics and present becomes Shared.
func Find(families []Family) FamilyIndices {
	indices := FamilyIndices{}

	for i, family := range families {
		if family.Graphics && !indices.Graphics.HasValue() {
			indices.Graphics.Set(uint32(i))
		}

		if family.Present && !indices.Present.HasValue() {
			indices.Present.Set(uint32(i))
		}

		if family.Graphics && family.Present {
			indices.Shared.Set(uint32(i))
			break
		}
	}

	return indices
}

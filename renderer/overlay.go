package renderer

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"vkframe/gfx"
	"vkframe/unsafer"
)

// OverlayVertexSize is the size of one overlay vertex: position and texture
// coordinates as two float32 pairs followed by an RGBA8 color.
const OverlayVertexSize = 20

// OverlayDraw is one indexed draw of overlay geometry, clipped to Clip.
type OverlayDraw struct {
	IndexCount   uint32
	FirstIndex   uint32
	VertexOffset int32

	// Clip is in framebuffer pixels. It is clamped to the frame.
	Clip gfx.Rect2D
}

// OverlayFrame is the overlay geometry of one frame. Indices are uint16.
type OverlayFrame struct {
	Vertices []byte
	Indices  []byte
	Draws    []OverlayDraw

	// Texture is multiplied with the vertex colors, typically a font atlas
	// made with CreateImageWithData. Nil means plain white.
	Texture *Image

	// Scale and Translate map overlay coordinates to clip space.
	Scale     [2]float32
	Translate [2]float32
}

// Overlay produces 2D geometry drawn on top of the scene, such as a UI.
type Overlay interface {
	OverlayFrame(extent gfx.Extent2D) OverlayFrame
}

// PixelScale returns the scale and translation mapping pixel coordinates with
// the origin in the top left corner to clip space.
func PixelScale(extent gfx.Extent2D) (scale, translate [2]float32) {
	scale = [2]float32{2 / float32(extent.Width), 2 / float32(extent.Height)}
	translate = [2]float32{-1, -1}
	return scale, translate
}

// recordOverlay copies the frame's overlay geometry into the slot's buffers and
// records one draw per command. Must be called inside the render pass.
func recordOverlay(
	ctx *DeviceContext,
	p *pipelines,
	cb gfx.CommandBuffer,
	slot *FrameSlot,
	frame OverlayFrame,
	extent gfx.Extent2D,
) error {
	if len(frame.Draws) == 0 {
		return nil
	}
	if err := frame.validate(); err != nil {
		return err
	}
	if len(frame.Vertices) == 0 || len(frame.Indices) == 0 {
		return nil
	}

	vertices, err := slot.HostBuffer("overlay vertices", uint64(len(frame.Vertices)), gfx.BufferUsageVertex)
	if err != nil {
		return errors.Wrap(err, "overlay vertices")
	}
	copy(vertices.Bytes(), frame.Vertices)

	indices, err := slot.HostBuffer("overlay indices", uint64(len(frame.Indices)), gfx.BufferUsageIndex)
	if err != nil {
		return errors.Wrap(err, "overlay indices")
	}
	copy(indices.Bytes(), frame.Indices)

	texture := frame.Texture
	if texture == nil {
		texture = p.whiteTexture
	}
	set, err := slot.DescriptorSetFor(p.overlaySetLayout)
	if err != nil {
		return errors.Wrap(err, "overlay descriptor set")
	}

	backend := ctx.backend
	backend.UpdateDescriptorSet(ctx.device, set, []gfx.DescriptorWrite{{
		Binding:     BindingOverlayTexture,
		Type:        gfx.DescriptorTypeCombinedImageSampler,
		ImageView:   texture.View(),
		Sampler:     p.sampler,
		ImageLayout: gfx.ImageLayoutShaderReadOnlyOptimal,
	}})
	backend.CmdBindPipeline(cb, p.overlay)
	backend.CmdBindDescriptorSet(cb, p.overlayLayout, set)
	backend.CmdBindVertexBuffer(cb, vertices.Handle(), 0)
	backend.CmdBindIndexBuffer(cb, indices.Handle(), 0, gfx.IndexTypeUint16)
	backend.CmdPushConstants(cb, p.overlayLayout, gfx.ShaderStageVertex, 0,
		overlayConstants(frame.Scale, frame.Translate))

	for _, draw := range frame.Draws {
		scissor, ok := clampScissor(draw.Clip, extent)
		if !ok {
			continue
		}
		backend.CmdSetScissor(cb, scissor)
		backend.CmdDrawIndexed(cb, draw.IndexCount, 1, draw.FirstIndex, draw.VertexOffset)
	}

	// Put the full frame scissor back for whatever is recorded next.
	backend.CmdSetScissor(cb, gfx.Rect2D{Extent: extent})
	return nil
}

// validate checks that every draw stays inside the index data and that every
// index it reads, shifted by the vertex offset, names an existing vertex.
func (f OverlayFrame) validate() error {
	if len(f.Vertices)%OverlayVertexSize != 0 {
		return errors.Newf("overlay: vertex data of %d bytes is not a multiple of %d",
			len(f.Vertices), OverlayVertexSize)
	}
	if len(f.Indices)%2 != 0 {
		return errors.Newf("overlay: index data of %d bytes is not a multiple of 2", len(f.Indices))
	}

	indexCount := uint64(len(f.Indices) / 2)
	vertexCount := int64(len(f.Vertices) / OverlayVertexSize)

	for i, draw := range f.Draws {
		end := uint64(draw.FirstIndex) + uint64(draw.IndexCount)
		if end > indexCount {
			return errors.Newf("overlay: draw %d reads indices [%d, %d) of %d",
				i, draw.FirstIndex, end, indexCount)
		}
		for n := uint64(draw.FirstIndex); n < end; n++ {
			vertex := int64(draw.VertexOffset) + int64(binary.LittleEndian.Uint16(f.Indices[2*n:]))
			if vertex < 0 || vertex >= vertexCount {
				return errors.Newf("overlay: draw %d references vertex %d of %d", i, vertex, vertexCount)
			}
		}
	}
	return nil
}

func overlayConstants(scale, translate [2]float32) []byte {
	return unsafer.SliceToBytes([]float32{scale[0], scale[1], translate[0], translate[1]})
}

// clampScissor intersects clip with the frame. It returns false when nothing is
// left.
func clampScissor(clip gfx.Rect2D, extent gfx.Extent2D) (gfx.Rect2D, bool) {
	x0 := clamp(int64(clip.Offset.X), 0, int64(extent.Width))
	y0 := clamp(int64(clip.Offset.Y), 0, int64(extent.Height))
	x1 := clamp(int64(clip.Offset.X)+int64(clip.Extent.Width), 0, int64(extent.Width))
	y1 := clamp(int64(clip.Offset.Y)+int64(clip.Extent.Height), 0, int64(extent.Height))

	if x1 <= x0 || y1 <= y0 {
		return gfx.Rect2D{}, false
	}

	return gfx.Rect2D{
		Offset: gfx.Offset2D{X: int32(x0), Y: int32(y0)},
		Extent: gfx.Extent2D{Width: uint32(x1 - x0), Height: uint32(y1 - y0)},
	}, true
}

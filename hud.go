package main

import (
	"time"

	"github.com/loov/hrtime"

	"vkframe/gfx"
	"vkframe/renderer"
	"vkframe/unsafer"
)

const (
	barMargin   = 8
	barWidth    = 200
	barHeight   = 6
	barFullTime = 2 * time.Second / 60
)

// overlayVertex matches the layout of renderer.OverlayVertexSize.
type overlayVertex struct {
	Pos   [2]float32
	UV    [2]float32
	Color [4]uint8
}

// frameTimeBar draws a bar in the top left corner whose length follows the
// smoothed frame time. A full bar is two frames at 60 Hz.
type frameTimeBar struct {
	last     time.Duration
	smoothed time.Duration
}

func newFrameTimeBar() *frameTimeBar {
	return &frameTimeBar{last: hrtime.Now()}
}

// tick records the end of a frame.
func (b *frameTimeBar) tick() {
	now := hrtime.Now()
	b.add(now - b.last)
	b.last = now
}

func (b *frameTimeBar) add(frame time.Duration) {
	if b.smoothed == 0 {
		b.smoothed = frame
		return
	}
	b.smoothed += (frame - b.smoothed) / 8
}

func (b *frameTimeBar) color() [4]uint8 {
	switch {
	case b.smoothed <= barFullTime/2:
		return [4]uint8{0x40, 0xd0, 0x40, 0xc0}
	case b.smoothed <= barFullTime:
		return [4]uint8{0xe0, 0xc0, 0x30, 0xc0}
	}
	return [4]uint8{0xe0, 0x40, 0x30, 0xc0}
}

// OverlayFrame implements renderer.Overlay.
func (b *frameTimeBar) OverlayFrame(extent gfx.Extent2D) renderer.OverlayFrame {
	fill := float32(b.smoothed) / float32(barFullTime)
	if fill > 1 {
		fill = 1
	}
	if fill <= 0 {
		return renderer.OverlayFrame{}
	}

	x0, y0 := float32(barMargin), float32(barMargin)
	x1, y1 := x0+fill*barWidth, y0+barHeight
	color := b.color()

	vertices := []overlayVertex{
		{Pos: [2]float32{x0, y0}, UV: [2]float32{0, 0}, Color: color},
		{Pos: [2]float32{x1, y0}, UV: [2]float32{1, 0}, Color: color},
		{Pos: [2]float32{x1, y1}, UV: [2]float32{1, 1}, Color: color},
		{Pos: [2]float32{x0, y1}, UV: [2]float32{0, 1}, Color: color},
	}
	indices := []uint16{0, 1, 2, 2, 3, 0}

	scale, translate := renderer.PixelScale(extent)
	return renderer.OverlayFrame{
		Vertices: append([]byte(nil), unsafer.SliceToBytes(vertices)...),
		Indices:  append([]byte(nil), unsafer.SliceToBytes(indices)...),
		Draws: []renderer.OverlayDraw{{
			IndexCount: uint32(len(indices)),
			Clip:       gfx.Rect2D{Extent: extent},
		}},
		Scale:     scale,
		Translate: translate,
	}
}

package main

import (
	"math"
	"time"
	"unsafe"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"vkframe/gfx"
	"vkframe/renderer"
)

var _ = Describe("spinningScene", func() {
	extent := gfx.Extent2D{Width: 800, Height: 600}

	floats := func(b []byte) []float32 {
		return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
	}

	It("uploads model, view and projection", func() {
		data := newSpinningScene(false).frameData(extent, 0)

		Expect(data.Uniforms).To(HaveLen(3 * 64))
		Expect(data.PushConstants).To(BeEmpty())

		m := floats(data.Uniforms)
		Expect(m[0]).To(BeNumerically("~", 1, 1e-6))
		Expect(m[5]).To(BeNumerically("~", 1, 1e-6))
	})

	It("flips the projection for Vulkan clip space", func() {
		proj := floats(newSpinningScene(false).frameData(extent, 0).Uniforms)[32:]
		Expect(proj[5]).To(BeNumerically("<", 0))
	})

	It("turns a quarter turn per second", func() {
		model := floats(newSpinningScene(false).frameData(extent, 1).Uniforms)
		Expect(math.Abs(float64(model[0]))).To(BeNumerically("<", 1e-5))
	})

	It("pushes the tessellation level", func() {
		data := newSpinningScene(true).frameData(extent, 0)
		Expect(data.PushConstants).To(HaveLen(4))
		Expect(floats(data.PushConstants)[0]).To(Equal(tessellationLevel))
	})

	It("survives a zero height", func() {
		data := newSpinningScene(false).frameData(gfx.Extent2D{Width: 10}, 0)
		Expect(data.Uniforms).To(HaveLen(3 * 64))
	})
})

var _ = Describe("frameTimeBar", func() {
	extent := gfx.Extent2D{Width: 640, Height: 480}

	It("matches the overlay vertex layout", func() {
		Expect(unsafe.Sizeof(overlayVertex{})).To(BeEquivalentTo(renderer.OverlayVertexSize))
	})

	It("draws nothing before the first frame", func() {
		Expect((&frameTimeBar{}).OverlayFrame(extent).Draws).To(BeEmpty())
	})

	It("draws one quad", func() {
		bar := &frameTimeBar{}
		bar.add(barFullTime / 4)

		frame := bar.OverlayFrame(extent)
		Expect(frame.Vertices).To(HaveLen(4 * renderer.OverlayVertexSize))
		Expect(frame.Indices).To(HaveLen(6 * 2))
		Expect(frame.Draws).To(HaveLen(1))
		Expect(frame.Draws[0].IndexCount).To(BeEquivalentTo(6))
		Expect(bar.color()[1]).To(BeEquivalentTo(0xd0))
	})

	It("clamps the bar to its full length", func() {
		bar := &frameTimeBar{}
		bar.add(time.Second)

		v := (*[4]overlayVertex)(unsafe.Pointer(&bar.OverlayFrame(extent).Vertices[0]))
		Expect(v[1].Pos[0]).To(BeNumerically("~", barMargin+barWidth, 1e-3))
		Expect(bar.color()[0]).To(BeEquivalentTo(0xe0))
		Expect(bar.color()[1]).To(BeEquivalentTo(0x40))
	})

	It("smooths frame times", func() {
		bar := &frameTimeBar{}
		bar.add(8 * time.Millisecond)
		bar.add(16 * time.Millisecond)

		Expect(bar.smoothed).To(Equal(9 * time.Millisecond))
	})
})

package vkbackend

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
)

var _ = Describe("conversions", func() {
	DescribeTable("presentStatus",
		func(res vk.Result, status gfx.Status, fails bool) {
			got, err := presentStatus(res, "vkQueuePresentKHR")
			if fails {
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("vkQueuePresentKHR"))
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(status))
		},
		Entry("success", vk.Success, gfx.StatusSuccess, false),
		Entry("suboptimal", vk.Suboptimal, gfx.StatusSuboptimal, false),
		Entry("out of date", vk.ErrorOutOfDate, gfx.StatusOutOfDate, false),
		Entry("device lost", vk.ErrorDeviceLost, gfx.StatusSuccess, true),
		Entry("surface lost", vk.ErrorSurfaceLost, gfx.StatusSuccess, true),
	)

	It("only reports failed results from check", func() {
		Expect(check(vk.Success, "vkCreateFence")).To(Succeed())

		err := check(vk.ErrorOutOfHostMemory, "vkCreateFence")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("vkCreateFence"))
	})

	It("terminates strings once", func() {
		Expect(cString("main")).To(Equal("main\x00"))
		Expect(cString("main\x00")).To(Equal("main\x00"))
		Expect(cStrings(nil)).To(BeNil())
		Expect(cStrings([]string{"VK_KHR_swapchain", "VK_EXT_debug_report\x00"})).To(Equal([]string{
			"VK_KHR_swapchain\x00",
			"VK_EXT_debug_report\x00",
		}))
	})

	It("round-trips device features", func() {
		features := gfx.Features{TessellationShader: true, FillModeNonSolid: true}
		Expect(featuresFromVk(featuresToVk(features))).To(Equal(features))
		Expect(vkBool(true)).To(Equal(vk.Bool32(vk.True)))
		Expect(vkBool(false)).To(Equal(vk.Bool32(vk.False)))
	})

	Describe("spirvWords", func() {
		It("packs the byte code into words", func() {
			code := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

			words, err := spirvWords(code)
			Expect(err).NotTo(HaveOccurred())
			Expect(words).To(HaveLen(2))
			Expect(words[0]).To(Equal(uint32(0x07230203)))
		})

		It("rejects empty code", func() {
			_, err := spirvWords(nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects code which is not a whole number of words", func() {
			_, err := spirvWords([]byte{1, 2, 3, 4, 5})
			Expect(err).To(HaveOccurred())
		})
	})

	DescribeTable("transformBit",
		func(mask uint32, want vk.SurfaceTransformFlagBits) {
			Expect(transformBit(mask)).To(Equal(want))
		},
		Entry("no transform", uint32(0), vk.SurfaceTransformIdentityBit),
		Entry("identity", uint32(vk.SurfaceTransformIdentityBit), vk.SurfaceTransformIdentityBit),
		Entry("several bits", uint32(vk.SurfaceTransformRotate90Bit|vk.SurfaceTransformRotate180Bit),
			vk.SurfaceTransformRotate90Bit),
	)

	DescribeTable("debugLevel",
		func(bits vk.DebugReportFlagBits, want slog.Level) {
			Expect(debugLevel(vk.DebugReportFlags(bits))).To(Equal(want))
		},
		Entry("error", vk.DebugReportErrorBit, slog.LevelError),
		Entry("warning", vk.DebugReportWarningBit, slog.LevelWarn),
		Entry("performance", vk.DebugReportPerformanceWarningBit, slog.LevelWarn),
		Entry("information", vk.DebugReportInformationBit, slog.LevelDebug),
	)

	It("clears color and depth", func() {
		values := clearValues(gfx.ClearValues{Color: [4]float32{0, 0, 0, 1}, Depth: 1})
		Expect(values).To(HaveLen(2))
	})
})

package unsafer_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"vkframe/unsafer"
)

var _ = Describe("SliceToBytes", func() {
	It("covers every element", func() {
		Expect(unsafer.SliceToBytes([]uint32{1, 2, 3})).To(HaveLen(12))
		Expect(unsafer.SliceToBytes([]uint16{7})).To(HaveLen(2))
	})

	It("shares memory with the input", func() {
		words := []uint32{0}
		unsafer.SliceToBytes(words)[0] = 0xff
		Expect(words[0]).To(BeEquivalentTo(0xff))
	})

	It("returns nil for empty input", func() {
		Expect(unsafer.SliceToBytes([]float32{})).To(BeNil())
	})
})

var _ = Describe("SliceBytesToUint32", func() {
	It("drops trailing bytes", func() {
		Expect(unsafer.SliceBytesToUint32(make([]byte, 9))).To(HaveLen(2))
	})

	It("returns nil for less than a word", func() {
		Expect(unsafer.SliceBytesToUint32([]byte{1, 2, 3})).To(BeNil())
	})
})

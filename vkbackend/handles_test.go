package vkbackend

import (
	"unsafe"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"vkframe/gfx"
)

type object struct{ id int }

var _ = Describe("table", func() {
	var (
		objects *table[*object]
		a, b    *object
	)

	BeforeEach(func() {
		objects = newTable[*object](gfx.ObjectBuffer, rawOf[*object])
		a = &object{id: 1}
		b = &object{id: 2}
	})

	It("hands out distinct non-null handles", func() {
		ha := objects.put(a)
		hb := objects.put(b)

		Expect(ha.IsNull()).To(BeFalse())
		Expect(hb.IsNull()).To(BeFalse())
		Expect(ha).NotTo(Equal(hb))
		Expect(objects.get(ha)).To(BeIdenticalTo(a))
		Expect(objects.get(hb)).To(BeIdenticalTo(b))
		Expect(objects.len()).To(Equal(2))
	})

	It("returns the same handle for an object registered twice", func() {
		Expect(objects.put(a)).To(Equal(objects.put(a)))
		Expect(objects.len()).To(Equal(1))
	})

	It("resolves null and unknown handles to nil", func() {
		Expect(objects.get(0)).To(BeNil())
		Expect(objects.get(42)).To(BeNil())
	})

	It("forgets removed objects", func() {
		h := objects.put(a)

		obj, ok := objects.remove(h)
		Expect(ok).To(BeTrue())
		Expect(obj).To(BeIdenticalTo(a))
		Expect(objects.get(h)).To(BeNil())
		Expect(objects.len()).To(BeZero())

		_, ok = objects.remove(h)
		Expect(ok).To(BeFalse())
	})

	It("does not reuse handles after a removal", func() {
		h := objects.put(a)
		objects.remove(h)

		Expect(objects.put(a)).NotTo(Equal(h))
	})

	Describe("names", func() {
		It("finds a named object by its raw value", func() {
			h := objects.put(a)
			Expect(objects.setName(h, "vertices")).To(BeTrue())

			name, ok := objects.nameOf(rawPointer(unsafe.Pointer(a)))
			Expect(ok).To(BeTrue())
			Expect(name).To(Equal(gfx.ObjectBuffer.String() + " vertices"))
		})

		It("refuses to name unknown handles", func() {
			Expect(objects.setName(7, "ghost")).To(BeFalse())
		})

		It("does not report unnamed objects", func() {
			objects.put(a)

			_, ok := objects.nameOf(rawPointer(unsafe.Pointer(a)))
			Expect(ok).To(BeFalse())
		})

		It("drops the name with the object", func() {
			h := objects.put(a)
			objects.setName(h, "vertices")
			objects.remove(h)

			_, ok := objects.nameOf(rawPointer(unsafe.Pointer(a)))
			Expect(ok).To(BeFalse())
		})
	})
})

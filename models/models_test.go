package models_test

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"vkframe/gfx"
	"vkframe/models"
	"vkframe/renderer"
)

const triangle = `
o triangle
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
f 1/1 2/2 3/3
`

var _ = Describe("Decode", func() {
	It("reads a triangle", func() {
		mesh, err := models.Decode(strings.NewReader(triangle))
		Expect(err).NotTo(HaveOccurred())

		Expect(mesh.Indices).To(Equal([]uint32{0, 1, 2}))
		Expect(mesh.Vertices).To(HaveLen(3))
		Expect(mesh.Vertices[1].Pos).To(Equal([3]float32{1, 0, 0}))
	})

	It("flips the texture coordinates vertically", func() {
		mesh, err := models.Decode(strings.NewReader(triangle))
		Expect(err).NotTo(HaveOccurred())

		Expect(mesh.Vertices[0].UV).To(Equal([2]float32{0, 1}))
		Expect(mesh.Vertices[2].UV).To(Equal([2]float32{0, 0}))
	})

	It("splits quads into two triangles sharing vertices", func() {
		quad := `
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
`
		mesh, err := models.Decode(strings.NewReader(quad))
		Expect(err).NotTo(HaveOccurred())

		Expect(mesh.Vertices).To(HaveLen(4))
		Expect(mesh.Indices).To(Equal([]uint32{0, 1, 2, 0, 2, 3}))
	})

	It("rejects models without faces", func() {
		_, err := models.Decode(strings.NewReader("v 0 0 0\n"))
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, renderer.ErrEmptyUpload)).To(BeTrue())
	})
})

var _ = Describe("Cube", func() {
	It("keeps the corners of each face apart", func() {
		mesh, err := models.Cube()
		Expect(err).NotTo(HaveOccurred())

		Expect(mesh.Indices).To(HaveLen(36))
		Expect(len(mesh.Vertices)).To(BeNumerically("<=", 24))
		for _, index := range mesh.Indices {
			Expect(index).To(BeNumerically("<", len(mesh.Vertices)))
		}
	})

	It("converts into renderer geometry", func() {
		mesh, err := models.Cube()
		Expect(err).NotTo(HaveOccurred())

		geometry := mesh.Geometry()
		Expect(geometry.IndexType).To(Equal(gfx.IndexTypeUint32))
		Expect(geometry.IndexCount).To(BeEquivalentTo(36))
		Expect(geometry.Indices).To(HaveLen(36 * 4))
		Expect(geometry.Vertices).To(HaveLen(len(mesh.Vertices) * models.VertexSize))
	})
})

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "models")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("reads a model from disk", func() {
		path := filepath.Join(dir, "triangle.obj")
		Expect(os.WriteFile(path, []byte(triangle), 0o644)).To(Succeed())

		mesh, err := models.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(mesh.Indices).To(HaveLen(3))
	})

	It("names the file it could not read", func() {
		_, err := models.Load("does-not-exist.obj")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("does-not-exist.obj"))
	})
})

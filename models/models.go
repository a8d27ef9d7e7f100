// Package models loads Wavefront OBJ meshes into the vertex layout the mesh
// shaders read: three float32 position components followed by two float32
// texture coordinates, indexed with uint32 indices.
package models

import (
	"embed"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/mokiat/go-data-front/decoder/obj"

	"vkframe/gfx"
	"vkframe/renderer"
	"vkframe/unsafer"
)

// FS holds the built-in models, so a binary can be copied to another machine
// without its assets.
//
//go:embed cube.obj
var FS embed.FS

// Vertex is one mesh vertex.
type Vertex struct {
	Pos [3]float32
	UV  [2]float32
}

// VertexSize is the size of a Vertex in bytes.
const VertexSize = 20

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Geometry returns the mesh in the form the renderer uploads.
func (m *Mesh) Geometry() renderer.Geometry {
	return renderer.Geometry{
		Vertices:   append([]byte(nil), unsafer.SliceToBytes(m.Vertices)...),
		Indices:    append([]byte(nil), unsafer.SliceToBytes(m.Indices)...),
		IndexType:  gfx.IndexTypeUint32,
		IndexCount: uint32(len(m.Indices)),
	}
}

// Decode reads an OBJ model. Polygons are split into triangle fans and
// vertices which share position and texture coordinate are merged.
func Decode(r io.Reader) (*Mesh, error) {
	decoder := obj.NewDecoder(obj.DefaultLimits())
	model, err := decoder.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding OBJ model")
	}

	mesh := &Mesh{}
	unique := make(map[Vertex]uint32)

	indexOf := func(ref obj.Reference) uint32 {
		position := model.GetVertexFromReference(ref)
		vertex := Vertex{
			Pos: [3]float32{float32(position.X), float32(position.Y), float32(position.Z)},
		}
		if ref.HasTexCoord() {
			texCoord := model.GetTexCoordFromReference(ref)
			vertex.UV = [2]float32{float32(texCoord.U), 1 - float32(texCoord.V)}
		}

		if index, ok := unique[vertex]; ok {
			return index
		}
		index := uint32(len(mesh.Vertices))
		unique[vertex] = index
		mesh.Vertices = append(mesh.Vertices, vertex)
		return index
	}

	for _, object := range model.Objects {
		for _, objMesh := range object.Meshes {
			for _, face := range objMesh.Faces {
				if len(face.References) < 3 {
					continue
				}
				first := indexOf(face.References[0])
				prev := indexOf(face.References[1])
				for _, ref := range face.References[2:] {
					next := indexOf(ref)
					mesh.Indices = append(mesh.Indices, first, prev, next)
					prev = next
				}
			}
		}
	}

	if len(mesh.Indices) == 0 {
		return nil, errors.Mark(errors.New("OBJ model has no faces"), renderer.ErrEmptyUpload)
	}
	return mesh, nil
}

// Load reads the OBJ model at path.
func Load(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening model")
	}
	defer f.Close()

	mesh, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", path)
	}
	return mesh, nil
}

// Cube returns the built-in unit cube.
func Cube() (*Mesh, error) {
	f, err := FS.Open("cube.obj")
	if err != nil {
		return nil, errors.Wrap(err, "opening built-in cube")
	}
	defer f.Close()

	return Decode(f)
}

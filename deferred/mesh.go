package deferred

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/framegraph"
)

// Mesh is indexed geometry split into primitives. Primitive indices are
// relative to the primitive's VertexOffset.
type Mesh struct {
	Vertices   []framegraph.Vertex
	Indices    []uint32
	Primitives []framegraph.Primitive
}

// Append adds o's geometry as new primitives after m's.
func (m *Mesh) Append(o Mesh) {
	firstIndex := uint32(len(m.Indices))
	vertexOffset := int32(len(m.Vertices))
	for _, p := range o.Primitives {
		p.FirstIndex += firstIndex
		p.VertexOffset += vertexOffset
		m.Primitives = append(m.Primitives, p)
	}
	m.Vertices = append(m.Vertices, o.Vertices...)
	m.Indices = append(m.Indices, o.Indices...)
}

// IndexCount returns the number of indices drawn across all primitives.
func (m *Mesh) IndexCount() int {
	n := 0
	for _, p := range m.Primitives {
		n += int(p.IndexCount)
	}
	return n
}

// quad appends a square face centred at center, spanning half along u and
// v. Its normal is u x v and it winds counter-clockwise around it.
func (m *Mesh) quad(center, u, v mgl32.Vec3, half float32) {
	n := u.Cross(v).Normalize()
	base := uint32(len(m.Vertices))
	corners := [4]struct{ su, sv, tu, tv float32 }{
		{-1, -1, 0, 1},
		{1, -1, 1, 1},
		{1, 1, 1, 0},
		{-1, 1, 0, 0},
	}
	for _, c := range corners {
		p := center.Add(u.Mul(c.su * half)).Add(v.Mul(c.sv * half))
		m.Vertices = append(m.Vertices, framegraph.Vertex{Position: p, Normal: n, UV: mgl32.Vec2{c.tu, c.tv}})
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
}

func single(build func(*Mesh), material int) Mesh {
	var m Mesh
	build(&m)
	m.Primitives = []framegraph.Primitive{{
		IndexCount:    uint32(len(m.Indices)),
		VertexCount:   uint32(len(m.Vertices)),
		MaterialIndex: material,
	}}
	return m
}

// Cube returns an axis-aligned cube of edge size centred on the origin.
func Cube(size float32) Mesh {
	h := size / 2
	faces := [6][2]mgl32.Vec3{
		{{1, 0, 0}, {0, 1, 0}},  // +Z
		{{-1, 0, 0}, {0, 1, 0}}, // -Z
		{{0, 0, -1}, {0, 1, 0}}, // +X
		{{0, 0, 1}, {0, 1, 0}},  // -X
		{{1, 0, 0}, {0, 0, -1}}, // +Y
		{{1, 0, 0}, {0, 0, 1}},  // -Y
	}
	return single(func(m *Mesh) {
		for _, f := range faces {
			n := f[0].Cross(f[1])
			m.quad(n.Mul(h), f[0], f[1], h)
		}
	}, 0)
}

// Plane returns a square of edge size in the XZ plane at height y, facing +Y.
func Plane(size, y float32) Mesh {
	return single(func(m *Mesh) {
		m.quad(mgl32.Vec3{0, y, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, size/2)
	}, 1)
}

// DefaultMesh is a unit cube resting on a 10x10 ground plane.
func DefaultMesh() Mesh {
	var m Mesh
	m.Append(Cube(1))
	m.Append(Plane(10, -0.5))
	return m
}

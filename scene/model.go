package scene

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Sphere is an analytic sphere intersected by the procedural shaders.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// BoundingBox returns the minimum and maximum corners of the sphere's box.
func (s Sphere) BoundingBox() (lo, hi mgl32.Vec3) {
	r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	return s.Center.Sub(r), s.Center.Add(r)
}

// Model is an indexed mesh with its materials. Vertex material indices refer
// to Materials. A model with a Procedural sphere is traced through its bounding
// box; its mesh is kept for the rasterized path only.
type Model struct {
	Vertices   []Vertex
	Indices    []uint32
	Materials  []Material
	Procedural *Sphere
}

// SetMaterial replaces the only material of a single-material model.
func (m *Model) SetMaterial(material Material) error {
	if len(m.Materials) != 1 {
		return errors.New("scene: cannot change the material of a multi-material model")
	}
	m.Materials[0] = material
	return nil
}

// Transform applies t to every vertex. Normals are transformed by the inverse
// transpose of t.
func (m *Model) Transform(t mgl32.Mat4) {
	normalMatrix := t.Inv().Transpose()
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Position = t.Mul4x1(v.Position.Vec4(1)).Vec3()
		v.Normal = normalMatrix.Mul4x1(v.Normal.Vec4(0)).Vec3()
	}
	if m.Procedural != nil {
		m.Procedural.Center = t.Mul4x1(m.Procedural.Center.Vec4(1)).Vec3()
	}
}

// Clone returns a deep copy of m.
func (m Model) Clone() Model {
	c := Model{
		Vertices:  append([]Vertex(nil), m.Vertices...),
		Indices:   append([]uint32(nil), m.Indices...),
		Materials: append([]Material(nil), m.Materials...),
	}
	if m.Procedural != nil {
		s := *m.Procedural
		c.Procedural = &s
	}
	return c
}

// CreateBox returns an axis-aligned box spanning p0 to p1 with one material.
func CreateBox(p0, p1 mgl32.Vec3, material Material) Model {
	type face struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
	}
	faces := []face{
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{p0[0], p0[1], p0[2]}, {p0[0], p0[1], p1[2]}, {p0[0], p1[1], p1[2]}, {p0[0], p1[1], p0[2]}}},
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{p1[0], p0[1], p1[2]}, {p1[0], p0[1], p0[2]}, {p1[0], p1[1], p0[2]}, {p1[0], p1[1], p1[2]}}},
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{p1[0], p0[1], p0[2]}, {p0[0], p0[1], p0[2]}, {p0[0], p1[1], p0[2]}, {p1[0], p1[1], p0[2]}}},
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{p0[0], p0[1], p1[2]}, {p1[0], p0[1], p1[2]}, {p1[0], p1[1], p1[2]}, {p0[0], p1[1], p1[2]}}},
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{p0[0], p0[1], p0[2]}, {p1[0], p0[1], p0[2]}, {p1[0], p0[1], p1[2]}, {p0[0], p0[1], p1[2]}}},
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{p1[0], p1[1], p0[2]}, {p0[0], p1[1], p0[2]}, {p0[0], p1[1], p1[2]}, {p1[0], p1[1], p1[2]}}},
	}

	m := Model{
		Vertices:  make([]Vertex, 0, 24),
		Indices:   make([]uint32, 0, 36),
		Materials: []Material{material},
	}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		for _, c := range f.corners {
			m.Vertices = append(m.Vertices, Vertex{Position: c, Normal: f.normal})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Sphere tessellation.
const (
	sphereSlices = 32
	sphereStacks = 16
)

// CreateSphere returns a tessellated sphere. A procedural sphere also carries
// its analytic description and is traced through an intersection shader.
func CreateSphere(center mgl32.Vec3, radius float32, material Material, procedural bool) Model {
	m := Model{
		Vertices:  make([]Vertex, 0, (sphereStacks+1)*(sphereSlices+1)),
		Indices:   make([]uint32, 0, sphereStacks*sphereSlices*6),
		Materials: []Material{material},
	}

	for j := 0; j <= sphereStacks; j++ {
		theta := math.Pi * float64(j) / sphereStacks
		ring := -math.Sin(theta)
		height := math.Cos(theta)
		for i := 0; i <= sphereSlices; i++ {
			phi := 2 * math.Pi * float64(i) / sphereSlices
			normal := mgl32.Vec3{
				float32(ring * math.Sin(phi)),
				float32(height),
				float32(ring * math.Cos(phi)),
			}
			m.Vertices = append(m.Vertices, Vertex{
				Position: center.Add(normal.Mul(radius)),
				Normal:   normal,
				TexCoord: mgl32.Vec2{float32(i) / sphereSlices, float32(j) / sphereStacks},
			})
		}
	}

	for j := uint32(0); j < sphereStacks; j++ {
		for i := uint32(0); i < sphereSlices; i++ {
			j0 := j * (sphereSlices + 1)
			j1 := (j + 1) * (sphereSlices + 1)
			m.Indices = append(m.Indices,
				j0+i, j1+i, j1+i+1,
				j0+i, j1+i+1, j0+i+1)
		}
	}

	if procedural {
		m.Procedural = &Sphere{Center: center, Radius: radius}
	}
	return m
}

// CreatePlane returns a horizontal square of half size extent centered at
// center, facing +Y.
func CreatePlane(center mgl32.Vec3, extent float32, material Material) Model {
	x0, x1 := center[0]-extent, center[0]+extent
	z0, z1 := center[2]-extent, center[2]+extent
	y := center[1]
	up := mgl32.Vec3{0, 1, 0}
	return Model{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{x0, y, z1}, Normal: up, TexCoord: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{x1, y, z1}, Normal: up, TexCoord: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{x1, y, z0}, Normal: up, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{x0, y, z0}, Normal: up, TexCoord: mgl32.Vec2{0, 0}},
		},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
		Materials: []Material{material},
	}
}

// Cornell box material indices.
const (
	cornellRed = iota
	cornellGreen
	cornellWhite
	cornellLight
)

// CreateCornellBox returns the open Cornell box of side scale with its ceiling
// light. The box spans [0, scale] on X and Y and [-scale, 0] on Z.
func CreateCornellBox(scale float32) Model {
	m := Model{
		Materials: []Material{
			cornellRed:   NewLambertian(mgl32.Vec3{0.65, 0.05, 0.05}, NoTexture),
			cornellGreen: NewLambertian(mgl32.Vec3{0.12, 0.45, 0.15}, NoTexture),
			cornellWhite: NewLambertian(mgl32.Vec3{0.73, 0.73, 0.73}, NoTexture),
			cornellLight: NewDiffuseLight(mgl32.Vec3{15, 15, 15}),
		},
	}

	s := scale
	l0, l1, l2, l3 := mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -s}, mgl32.Vec3{0, s, -s}, mgl32.Vec3{0, s, 0}
	r0, r1, r2, r3 := mgl32.Vec3{s, 0, 0}, mgl32.Vec3{s, 0, -s}, mgl32.Vec3{s, s, -s}, mgl32.Vec3{s, s, 0}

	quad := func(corners [4]mgl32.Vec3, normal mgl32.Vec3, material int32, flip bool) {
		base := uint32(len(m.Vertices))
		uv := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
		for k, c := range corners {
			m.Vertices = append(m.Vertices, Vertex{Position: c, Normal: normal, TexCoord: uv[k], MaterialIndex: material})
		}
		if flip {
			m.Indices = append(m.Indices, base+2, base+1, base, base+3, base+2, base)
			return
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}

	quad([4]mgl32.Vec3{l0, l1, l2, l3}, mgl32.Vec3{1, 0, 0}, cornellGreen, false)
	quad([4]mgl32.Vec3{r0, r1, r2, r3}, mgl32.Vec3{-1, 0, 0}, cornellRed, true)
	quad([4]mgl32.Vec3{l1, r1, r2, l2}, mgl32.Vec3{0, 0, 1}, cornellWhite, false)
	quad([4]mgl32.Vec3{l0, r0, r1, l1}, mgl32.Vec3{0, 1, 0}, cornellWhite, false)
	quad([4]mgl32.Vec3{l2, r2, r3, l3}, mgl32.Vec3{0, -1, 0}, cornellWhite, false)

	x0 := s * (213.0 / 555.0)
	x1 := s * (343.0 / 555.0)
	z0 := s * (-555.0 + 332.0) / 555.0
	z1 := s * (-555.0 + 227.0) / 555.0
	y1 := s * 0.998
	quad([4]mgl32.Vec3{{x0, y1, z1}, {x1, y1, z1}, {x1, y1, z0}, {x0, y1, z0}}, mgl32.Vec3{0, -1, 0}, cornellLight, false)

	return m
}

package scene

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexSize is the packed size of a Vertex.
const VertexSize = 36

// Vertex is one mesh vertex. Position must stay the first member; the
// acceleration structure build reads it directly from the vertex buffer.
type Vertex struct {
	Position      mgl32.Vec3
	Normal        mgl32.Vec3
	TexCoord      mgl32.Vec2
	MaterialIndex int32
}

// AppendVertex appends the packed vertex to b.
func AppendVertex(b []byte, v Vertex) []byte {
	b = appendFloats(b, v.Position[:]...)
	b = appendFloats(b, v.Normal[:]...)
	b = appendFloats(b, v.TexCoord[:]...)
	return binary.LittleEndian.AppendUint32(b, uint32(v.MaterialIndex))
}

// EncodeVertices packs vertices contiguously.
func EncodeVertices(vertices []Vertex) []byte {
	b := make([]byte, 0, len(vertices)*VertexSize)
	for _, v := range vertices {
		b = AppendVertex(b, v)
	}
	return b
}

// DecodeVertex reads a vertex written by AppendVertex.
func DecodeVertex(b []byte) Vertex {
	_ = b[VertexSize-1]
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	return Vertex{
		Position:      mgl32.Vec3{f(0), f(1), f(2)},
		Normal:        mgl32.Vec3{f(3), f(4), f(5)},
		TexCoord:      mgl32.Vec2{f(6), f(7)},
		MaterialIndex: int32(binary.LittleEndian.Uint32(b[32:])),
	}
}

// EncodeIndices packs indices as little-endian uint32.
func EncodeIndices(indices []uint32) []byte {
	b := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		b = binary.LittleEndian.AppendUint32(b, i)
	}
	return b
}

func appendFloats(b []byte, fs ...float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

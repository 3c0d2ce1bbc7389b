package accel

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
)

// AABBStride is the size of one packed box: min xyz, max xyz as float32.
const AABBStride = 24

// SceneBuffers are the concatenated geometry buffers of a scene.
type SceneBuffers interface {
	VertexBuffer() hal.Buffer
	IndexBuffer() hal.Buffer
	AABBBuffer() hal.Buffer

	// VertexStride is the byte size of one vertex. The position is its first member.
	VertexStride() uint64
}

// GeometryDescriptor is the ordered geometry list of one bottom-level
// structure together with the matching build ranges.
type GeometryDescriptor struct {
	geometries []hal.Geometry
	ranges     []hal.BuildRange
}

// AddTriangles appends an indexed triangle mesh. Offsets are byte offsets into
// the shared scene buffers.
func (g *GeometryDescriptor) AddTriangles(buffers SceneBuffers, vertexOffset, vertexCount, indexOffset, indexCount uint32, opaque bool) {
	stride := buffers.VertexStride()
	g.geometries = append(g.geometries, hal.Geometry{
		Kind:  hal.GeometryTriangles,
		Flags: opacity(opaque),
		Triangles: hal.TrianglesData{
			VertexFormat: gputypes.VertexFormatFloat32x3,
			VertexData:   buffers.VertexBuffer().DeviceAddress(),
			VertexStride: stride,
			MaxVertex:    vertexCount,
			IndexType:    gputypes.IndexFormatUint32,
			IndexData:    buffers.IndexBuffer().DeviceAddress(),
		},
	})
	g.ranges = append(g.ranges, hal.BuildRange{
		PrimitiveCount:  indexCount / 3,
		PrimitiveOffset: indexOffset,
		FirstVertex:     uint32(uint64(vertexOffset) / stride),
	})
}

// AddAABB appends aabbCount procedural boxes starting at byte aabbOffset of the
// scene AABB buffer.
func (g *GeometryDescriptor) AddAABB(buffers SceneBuffers, aabbOffset, aabbCount uint32, opaque bool) {
	g.geometries = append(g.geometries, hal.Geometry{
		Kind:  hal.GeometryAABBs,
		Flags: opacity(opaque),
		AABBs: hal.AABBsData{
			Data:   buffers.AABBBuffer().DeviceAddress(),
			Stride: AABBStride,
		},
	})
	g.ranges = append(g.ranges, hal.BuildRange{
		PrimitiveCount:  aabbCount,
		PrimitiveOffset: aabbOffset,
	})
}

// Len returns the number of geometry entries.
func (g *GeometryDescriptor) Len() int { return len(g.geometries) }

// Geometries returns the geometry entries in insertion order.
func (g *GeometryDescriptor) Geometries() []hal.Geometry { return g.geometries }

// Ranges returns the build ranges, parallel to Geometries.
func (g *GeometryDescriptor) Ranges() []hal.BuildRange { return g.ranges }

func opacity(opaque bool) hal.GeometryFlags {
	if opaque {
		return hal.GeometryOpaque
	}
	return 0
}

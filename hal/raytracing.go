package hal

import "github.com/gogpu/gputypes"

// AccelerationStructure is a GPU-resident BVH bound into a buffer range.
type AccelerationStructure interface {
	NativeHandle
}

// AccelerationStructureType is the level of a structure.
type AccelerationStructureType uint8

// Structure levels.
const (
	TopLevel AccelerationStructureType = iota
	BottomLevel
)

// String returns the level name.
func (t AccelerationStructureType) String() string {
	if t == TopLevel {
		return "TopLevel"
	}
	return "BottomLevel"
}

// GeometryKind selects the active member of [Geometry].
type GeometryKind uint8

// Geometry kinds.
const (
	GeometryTriangles GeometryKind = iota
	GeometryAABBs
	GeometryInstances
)

// GeometryFlags modify how a geometry is traversed.
type GeometryFlags uint32

// GeometryOpaque disables any-hit invocation for the geometry.
const GeometryOpaque GeometryFlags = 1 << 0

// BuildFlags tune a structure build.
type BuildFlags uint32

// Build flags.
const (
	BuildAllowUpdate BuildFlags = 1 << iota
	BuildAllowCompaction
	BuildPreferFastTrace
	BuildPreferFastBuild
)

// BuildMode selects between a full build and a refit.
type BuildMode uint8

// Build modes. Only BuildModeBuild is used by this module.
const (
	BuildModeBuild BuildMode = iota
	BuildModeUpdate
)

// TrianglesData describes an indexed triangle mesh by device address.
type TrianglesData struct {
	VertexFormat  gputypes.VertexFormat
	VertexData    uint64
	VertexStride  uint64
	MaxVertex     uint32
	IndexType     gputypes.IndexFormat
	IndexData     uint64
	TransformData uint64
}

// AABBsData describes packed axis-aligned boxes of six float32 each.
type AABBsData struct {
	Data   uint64
	Stride uint64
}

// InstancesData describes a packed array of 64-byte instance records.
type InstancesData struct {
	Data            uint64
	ArrayOfPointers bool
}

// Geometry is one entry of a structure build. Kind selects which member is read.
type Geometry struct {
	Kind      GeometryKind
	Flags     GeometryFlags
	Triangles TrianglesData
	AABBs     AABBsData
	Instances InstancesData
}

// BuildRange locates the primitives of one geometry entry.
type BuildRange struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

// BuildGeometryInfo describes a structure build.
type BuildGeometryInfo struct {
	Type           AccelerationStructureType
	Flags          BuildFlags
	Mode           BuildMode
	Source         AccelerationStructure
	Destination    AccelerationStructure
	Geometries     []Geometry
	ScratchAddress uint64
}

// BuildSizes are the memory requirements of a structure build.
type BuildSizes struct {
	AccelerationStructureSize uint64
	BuildScratchSize          uint64
	UpdateScratchSize         uint64
}

// AccelerationStructureDescriptor describes where a structure is bound.
type AccelerationStructureDescriptor struct {
	Label  string
	Type   AccelerationStructureType
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// RayTracingProperties are the device limits relevant to ray tracing.
type RayTracingProperties struct {
	ShaderGroupHandleSize      uint32
	ShaderGroupBaseAlignment   uint32
	ShaderGroupHandleAlignment uint32
	MaxShaderGroupStride       uint32
	MaxRayRecursionDepth       uint32
	MinScratchOffsetAlignment  uint32
	MaxGeometryCount           uint64
	MaxInstanceCount           uint64
	MaxPrimitiveCount          uint64
}

// ShaderGroupKind is the type of a ray-tracing shader group.
type ShaderGroupKind uint8

// Shader group kinds.
const (
	ShaderGroupGeneral ShaderGroupKind = iota
	ShaderGroupTrianglesHit
	ShaderGroupProceduralHit
)

// ShaderUnused marks an unused stage index in a [ShaderGroup].
const ShaderUnused = ^uint32(0)

// ShaderGroup references pipeline stages by index.
type ShaderGroup struct {
	Kind         ShaderGroupKind
	General      uint32
	ClosestHit   uint32
	AnyHit       uint32
	Intersection uint32
}

// PipelineStage is one shader stage of a pipeline.
type PipelineStage struct {
	Stage      ShaderStage
	Module     ShaderModule
	EntryPoint string
}

// RayTracingPipelineDescriptor describes a ray-tracing pipeline.
type RayTracingPipelineDescriptor struct {
	Label             string
	Layout            PipelineLayout
	Stages            []PipelineStage
	Groups            []ShaderGroup
	MaxRecursionDepth uint32
}

// StridedRegion is a shader-binding-table region passed to a trace call.
type StridedRegion struct {
	DeviceAddress uint64
	Stride        uint64
	Size          uint64
}

// RayTracing is the ray-tracing capability of a device, resolved once when the
// device is created.
type RayTracing interface {
	// Properties returns the device ray-tracing limits.
	Properties() RayTracingProperties

	// BuildSizes queries the unaligned memory requirements of a build.
	// maxPrimitiveCounts has one entry per geometry. A failed query wraps
	// ErrHardwareCall.
	BuildSizes(info *BuildGeometryInfo, maxPrimitiveCounts []uint32) (BuildSizes, error)

	// CreateAccelerationStructure creates a structure bound at desc.Offset in desc.Buffer.
	CreateAccelerationStructure(desc *AccelerationStructureDescriptor) (AccelerationStructure, error)

	// DestroyAccelerationStructure destroys a structure. The backing buffer is untouched.
	DestroyAccelerationStructure(as AccelerationStructure)

	// AccelerationStructureAddress returns the device address of a structure.
	AccelerationStructureAddress(as AccelerationStructure) uint64

	// CreateRayTracingPipeline compiles a ray-tracing pipeline.
	CreateRayTracingPipeline(desc *RayTracingPipelineDescriptor) (Pipeline, error)

	// ShaderGroupHandles returns groupCount opaque handles of ShaderGroupHandleSize
	// bytes each, starting at firstGroup.
	ShaderGroupHandles(p Pipeline, firstGroup, groupCount uint32) ([]byte, error)
}

//go:build !(js && wasm)

package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// RayTracing implements hal.RayTracing through the KHR acceleration structure
// and ray tracing pipeline extensions.
type RayTracing struct {
	device *Device
	props  hal.RayTracingProperties
}

var _ hal.RayTracing = (*RayTracing)(nil)

// AccelerationStructure is a VkAccelerationStructureKHR.
type AccelerationStructure struct {
	handle  vk.AccelerationStructureKHR
	address uint64
}

// NativeHandle returns the VkAccelerationStructureKHR.
func (a *AccelerationStructure) NativeHandle() uint64 { return uint64(a.handle) }

// Properties returns the limits queried at device creation.
func (r *RayTracing) Properties() hal.RayTracingProperties { return r.props }

// accelerationStructureGeometry is VkAccelerationStructureGeometryKHR with
// the C layout. The generated binding declares the union as a byte array, which
// packs it at offset 20 instead of 24 and makes the struct 88 bytes long.
type accelerationStructureGeometry struct {
	SType        vk.StructureType
	PNext        *uintptr
	GeometryType vk.GeometryTypeKHR
	_            [4]byte
	Geometry     vk.AccelerationStructureGeometryDataKHR
	Flags        vk.GeometryFlagsKHR
	_            [4]byte
}

var geometryLayout accelerationStructureGeometry

// Compile-time layout checks against the C struct.
var (
	_ [96]byte = [unsafe.Sizeof(geometryLayout)]byte{}
	_ [24]byte = [unsafe.Offsetof(geometryLayout.Geometry)]byte{}
	_ [88]byte = [unsafe.Offsetof(geometryLayout.Flags)]byte{}
)

// buildInfo is a converted hal.BuildGeometryInfo. The geometry array must stay
// reachable until the call using info returns.
type buildInfo struct {
	info       vk.AccelerationStructureBuildGeometryInfoKHR
	geometries []accelerationStructureGeometry
}

func convertBuildInfo(src *hal.BuildGeometryInfo) *buildInfo {
	b := &buildInfo{geometries: make([]accelerationStructureGeometry, len(src.Geometries))}
	for i := range src.Geometries {
		b.geometries[i] = convertGeometry(&src.Geometries[i])
	}
	b.info = vk.AccelerationStructureBuildGeometryInfoKHR{
		SType:         vk.StructureTypeAccelerationStructureBuildGeometryInfoKhr,
		Type:          accelerationStructureTypeToVk(src.Type),
		Flags:         buildFlagsToVk(src.Flags),
		Mode:          buildModeToVk(src.Mode),
		GeometryCount: uint32(len(b.geometries)),
		ScratchData:   vk.DeviceOrHostAddressKHR(src.ScratchAddress),
	}
	if len(b.geometries) > 0 {
		b.info.PGeometries = (*vk.AccelerationStructureGeometryKHR)(unsafe.Pointer(&b.geometries[0]))
	}
	if as, ok := src.Source.(*AccelerationStructure); ok {
		b.info.SrcAccelerationStructure = as.handle
	}
	if as, ok := src.Destination.(*AccelerationStructure); ok {
		b.info.DstAccelerationStructure = as.handle
	}
	return b
}

func convertGeometry(g *hal.Geometry) accelerationStructureGeometry {
	out := accelerationStructureGeometry{
		SType:        vk.StructureTypeAccelerationStructureGeometryKhr,
		GeometryType: geometryTypeToVk(g.Kind),
		Flags:        geometryFlagsToVk(g.Flags),
	}
	union := unsafe.Pointer(&out.Geometry)
	switch g.Kind {
	case hal.GeometryTriangles:
		*(*vk.AccelerationStructureGeometryTrianglesDataKHR)(union) = vk.AccelerationStructureGeometryTrianglesDataKHR{
			SType:         vk.StructureTypeAccelerationStructureGeometryTrianglesDataKhr,
			VertexFormat:  vertexFormatToVk(g.Triangles.VertexFormat),
			VertexData:    vk.DeviceOrHostAddressConstKHR(g.Triangles.VertexData),
			VertexStride:  vk.DeviceSize(g.Triangles.VertexStride),
			MaxVertex:     g.Triangles.MaxVertex,
			IndexType:     indexFormatToVk(g.Triangles.IndexType),
			IndexData:     vk.DeviceOrHostAddressConstKHR(g.Triangles.IndexData),
			TransformData: vk.DeviceOrHostAddressConstKHR(g.Triangles.TransformData),
		}
	case hal.GeometryAABBs:
		*(*vk.AccelerationStructureGeometryAabbsDataKHR)(union) = vk.AccelerationStructureGeometryAabbsDataKHR{
			SType:  vk.StructureTypeAccelerationStructureGeometryAabbsDataKhr,
			Data:   vk.DeviceOrHostAddressConstKHR(g.AABBs.Data),
			Stride: vk.DeviceSize(g.AABBs.Stride),
		}
	case hal.GeometryInstances:
		instances := vk.AccelerationStructureGeometryInstancesDataKHR{
			SType: vk.StructureTypeAccelerationStructureGeometryInstancesDataKhr,
			Data:  vk.DeviceOrHostAddressConstKHR(g.Instances.Data),
		}
		if g.Instances.ArrayOfPointers {
			instances.ArrayOfPointers = vk.Bool32(vk.True)
		}
		*(*vk.AccelerationStructureGeometryInstancesDataKHR)(union) = instances
	}
	return out
}

// BuildSizes queries the memory a build needs.
func (r *RayTracing) BuildSizes(info *hal.BuildGeometryInfo, maxPrimitiveCounts []uint32) (hal.BuildSizes, error) {
	b := convertBuildInfo(info)
	sizes, err := r.device.procs.accelerationStructureBuildSizes(r.device.handle, &b.info, maxPrimitiveCounts)
	runtime.KeepAlive(b)
	if err != nil {
		return hal.BuildSizes{}, fmt.Errorf("vulkan: %s build sizes: %w", info.Type, err)
	}
	return hal.BuildSizes{
		AccelerationStructureSize: uint64(sizes.AccelerationStructureSize),
		BuildScratchSize:          uint64(sizes.BuildScratchSize),
		UpdateScratchSize:         uint64(sizes.UpdateScratchSize),
	}, nil
}

// CreateAccelerationStructure creates a structure inside a buffer range.
func (r *RayTracing) CreateAccelerationStructure(desc *hal.AccelerationStructureDescriptor) (hal.AccelerationStructure, error) {
	info := vk.AccelerationStructureCreateInfoKHR{
		SType:  vk.StructureTypeAccelerationStructureCreateInfoKhr,
		Buffer: desc.Buffer.(*Buffer).handle,
		Offset: vk.DeviceSize(desc.Offset),
		Size:   vk.DeviceSize(desc.Size),
		Type:   accelerationStructureTypeToVk(desc.Type),
	}
	handle, err := r.device.procs.createAccelerationStructureKHR(r.device.handle, &info)
	if err != nil {
		return nil, fmt.Errorf("vulkan: %s structure %q: %w", desc.Type, desc.Label, err)
	}
	address, err := r.device.procs.accelerationStructureDeviceAddress(r.device.handle, handle)
	if err != nil {
		r.destroy(handle)
		return nil, fmt.Errorf("vulkan: %s structure %q: %w", desc.Type, desc.Label, err)
	}
	as := &AccelerationStructure{handle: handle, address: address}
	r.device.setObjectName(vk.ObjectTypeAccelerationStructureKhr, uint64(handle), desc.Label)
	hal.Logger().Debug("vulkan: acceleration structure created",
		"label", desc.Label,
		"type", desc.Type,
		"size", desc.Size,
	)
	return as, nil
}

func (r *RayTracing) destroy(handle vk.AccelerationStructureKHR) {
	if err := r.device.procs.destroyAccelerationStructureKHR(r.device.handle, handle); err != nil {
		hal.Logger().Warn("vulkan: acceleration structure leaked", "err", err)
	}
}

// DestroyAccelerationStructure destroys a structure.
func (r *RayTracing) DestroyAccelerationStructure(as hal.AccelerationStructure) {
	va, ok := as.(*AccelerationStructure)
	if !ok || va.handle == 0 {
		return
	}
	r.destroy(va.handle)
	va.handle = 0
	va.address = 0
}

// AccelerationStructureAddress returns the address used in instance records.
func (r *RayTracing) AccelerationStructureAddress(as hal.AccelerationStructure) uint64 {
	return as.(*AccelerationStructure).address
}

// CreateRayTracingPipeline compiles a ray-tracing pipeline.
func (r *RayTracing) CreateRayTracingPipeline(desc *hal.RayTracingPipelineDescriptor) (hal.Pipeline, error) {
	if desc.MaxRecursionDepth > r.props.MaxRayRecursionDepth {
		return nil, fmt.Errorf("%w: pipeline %q: recursion depth %d exceeds device limit %d",
			hal.ErrHardwareCall, desc.Label, desc.MaxRecursionDepth, r.props.MaxRayRecursionDepth)
	}

	names := make([][]byte, len(desc.Stages))
	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		names[i] = append([]byte(s.EntryPoint), 0)
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  shaderStageToVk(s.Stage),
			Module: s.Module.(*ShaderModule).handle,
			PName:  uintptr(unsafe.Pointer(&names[i][0])),
		}
	}
	groups := make([]vk.RayTracingShaderGroupCreateInfoKHR, len(desc.Groups))
	for i, g := range desc.Groups {
		groups[i] = vk.RayTracingShaderGroupCreateInfoKHR{
			SType:              vk.StructureTypeRayTracingShaderGroupCreateInfoKhr,
			Type:               shaderGroupTypeToVk(g.Kind),
			GeneralShader:      g.General,
			ClosestHitShader:   g.ClosestHit,
			AnyHitShader:       g.AnyHit,
			IntersectionShader: g.Intersection,
		}
	}

	info := vk.RayTracingPipelineCreateInfoKHR{
		SType:                        vk.StructureTypeRayTracingPipelineCreateInfoKhr,
		StageCount:                   uint32(len(stages)),
		GroupCount:                   uint32(len(groups)),
		MaxPipelineRayRecursionDepth: desc.MaxRecursionDepth,
		Layout:                       desc.Layout.(*PipelineLayout).handle,
		BasePipelineIndex:            -1,
	}
	if len(stages) > 0 {
		info.PStages = &stages[0]
	}
	if len(groups) > 0 {
		info.PGroups = &groups[0]
	}

	handle, err := r.device.procs.createRayTracingPipeline(r.device.handle, &info)
	runtime.KeepAlive(names)
	runtime.KeepAlive(stages)
	runtime.KeepAlive(groups)
	if err != nil {
		return nil, fmt.Errorf("vulkan: pipeline %q: %w", desc.Label, err)
	}
	p := &Pipeline{handle: handle, groups: uint32(len(groups))}
	r.device.setObjectName(vk.ObjectTypePipeline, uint64(handle), desc.Label)
	hal.Logger().Debug("vulkan: ray tracing pipeline created",
		"label", desc.Label,
		"stages", len(stages),
		"groups", len(groups),
	)
	return p, nil
}

// ShaderGroupHandles fetches the opaque group handles of a pipeline.
func (r *RayTracing) ShaderGroupHandles(p hal.Pipeline, firstGroup, groupCount uint32) ([]byte, error) {
	vp := p.(*Pipeline)
	if firstGroup+groupCount > vp.groups {
		return nil, fmt.Errorf("%w: shader groups %d..%d out of range (%d groups)",
			hal.ErrHardwareCall, firstGroup, firstGroup+groupCount, vp.groups)
	}
	data := make([]byte, int(groupCount)*int(r.props.ShaderGroupHandleSize))
	if err := r.device.procs.shaderGroupHandles(r.device.handle, vp.handle, firstGroup, groupCount, data); err != nil {
		return nil, err
	}
	return data, nil
}

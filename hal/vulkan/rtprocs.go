//go:build !(js && wasm)

package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/go-webgpu/goffi/types"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Call interfaces for the entry points the generated bindings cannot call.
var (
	sigU64HandlePtr            types.CallInterface // u64(handle, ptr)
	sigVoidHandleU32PtrPtrPtr  types.CallInterface // void(handle, u32, ptr, ptr, ptr)
	sigVoidHandleU32PtrPtr     types.CallInterface // void(handle, u32, ptr, ptr)
	sigResultCreateRTPipelines types.CallInterface // VkResult(handle, handle, handle, u32, ptr, ptr, ptr)
	sigResultGroupHandles      types.CallInterface // VkResult(handle, handle, u32, u32, u64, ptr)
	sigVoidTraceRays           types.CallInterface // void(handle, ptr, ptr, ptr, ptr, u32, u32, u32)

	signaturesOnce sync.Once
	signaturesErr  error
)

func prepareSignatures() error {
	signaturesOnce.Do(func() {
		ptr := types.PointerTypeDescriptor
		u32 := types.UInt32TypeDescriptor
		u64 := types.UInt64TypeDescriptor
		voidRet := types.VoidTypeDescriptor
		resultRet := types.SInt32TypeDescriptor

		sigs := []struct {
			cif  *types.CallInterface
			ret  *types.TypeDescriptor
			args []*types.TypeDescriptor
		}{
			{&sigU64HandlePtr, u64, []*types.TypeDescriptor{u64, ptr}},
			{&sigVoidHandleU32PtrPtrPtr, voidRet, []*types.TypeDescriptor{u64, u32, ptr, ptr, ptr}},
			{&sigVoidHandleU32PtrPtr, voidRet, []*types.TypeDescriptor{u64, u32, ptr, ptr}},
			{&sigResultCreateRTPipelines, resultRet, []*types.TypeDescriptor{u64, u64, u64, u32, ptr, ptr, ptr}},
			{&sigResultGroupHandles, resultRet, []*types.TypeDescriptor{u64, u64, u32, u32, u64, ptr}},
			{&sigVoidTraceRays, voidRet, []*types.TypeDescriptor{u64, ptr, ptr, ptr, ptr, u32, u32, u32}},
		}
		for _, s := range sigs {
			if err := ffi.PrepareCallInterface(s.cif, types.DefaultCall, s.ret, s.args); err != nil {
				signaturesErr = fmt.Errorf("vulkan: prepare call interface: %w", err)
				return
			}
		}
	})
	return signaturesErr
}

// rtProcs holds the ray-tracing and buffer-address entry points of a device.
type rtProcs struct {
	getBufferDeviceAddress                unsafe.Pointer
	createAccelerationStructure           unsafe.Pointer
	destroyAccelerationStructure          unsafe.Pointer
	getAccelerationStructureBuildSizes    unsafe.Pointer
	getAccelerationStructureDeviceAddress unsafe.Pointer
	cmdBuildAccelerationStructures        unsafe.Pointer
	createRayTracingPipelines             unsafe.Pointer
	getRayTracingShaderGroupHandles       unsafe.Pointer
	cmdTraceRays                          unsafe.Pointer
}

// loadBufferAddressProc resolves vkGetBufferDeviceAddress, which every device
// opened with buffer device addresses needs.
func (p *rtProcs) loadBufferAddressProc(device vk.Device) error {
	p.getBufferDeviceAddress = vk.GetDeviceProcAddr(device, "vkGetBufferDeviceAddress")
	if p.getBufferDeviceAddress == nil {
		p.getBufferDeviceAddress = vk.GetDeviceProcAddr(device, "vkGetBufferDeviceAddressKHR")
	}
	if p.getBufferDeviceAddress == nil {
		return fmt.Errorf("%w: vkGetBufferDeviceAddress", hal.ErrMissingEntryPoint)
	}
	return nil
}

// loadRayTracingProcs resolves every KHR ray-tracing entry point. A single
// unresolved name fails the whole capability.
func (p *rtProcs) loadRayTracingProcs(device vk.Device) error {
	procs := []struct {
		name string
		dst  *unsafe.Pointer
	}{
		{"vkCreateAccelerationStructureKHR", &p.createAccelerationStructure},
		{"vkDestroyAccelerationStructureKHR", &p.destroyAccelerationStructure},
		{"vkGetAccelerationStructureBuildSizesKHR", &p.getAccelerationStructureBuildSizes},
		{"vkGetAccelerationStructureDeviceAddressKHR", &p.getAccelerationStructureDeviceAddress},
		{"vkCmdBuildAccelerationStructuresKHR", &p.cmdBuildAccelerationStructures},
		{"vkCreateRayTracingPipelinesKHR", &p.createRayTracingPipelines},
		{"vkGetRayTracingShaderGroupHandlesKHR", &p.getRayTracingShaderGroupHandles},
		{"vkCmdTraceRaysKHR", &p.cmdTraceRays},
	}
	for _, proc := range procs {
		*proc.dst = vk.GetDeviceProcAddr(device, proc.name)
		if *proc.dst == nil {
			return fmt.Errorf("%w: %s", hal.ErrMissingEntryPoint, proc.name)
		}
	}
	return nil
}

// callError wraps a failed foreign call. The driver was never reached, so
// there is no VkResult to report.
func callError(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", hal.ErrHardwareCall, name, err)
}

func (p *rtProcs) bufferDeviceAddress(device vk.Device, buffer vk.Buffer) (uint64, error) {
	info := vk.BufferDeviceAddressInfo{
		SType:  structureTypeBufferDeviceAddressInfo,
		Buffer: buffer,
	}
	pInfo := &info
	var address uint64
	args := [2]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&pInfo),
	}
	if err := ffi.CallFunction(&sigU64HandlePtr, p.getBufferDeviceAddress, unsafe.Pointer(&address), args[:]); err != nil {
		return 0, callError("vkGetBufferDeviceAddress", err)
	}
	if address == 0 {
		return 0, fmt.Errorf("%w: vkGetBufferDeviceAddress returned 0", hal.ErrHardwareCall)
	}
	return address, nil
}

func (p *rtProcs) createAccelerationStructureKHR(device vk.Device, info *vk.AccelerationStructureCreateInfoKHR) (vk.AccelerationStructureKHR, error) {
	var handle vk.AccelerationStructureKHR
	var allocator *vk.AllocationCallbacks
	pHandle := &handle
	var result int32
	args := [4]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&info),
		unsafe.Pointer(&allocator),
		unsafe.Pointer(&pHandle),
	}
	if err := ffi.CallFunction(&vk.SigResultHandlePtrPtrPtr, p.createAccelerationStructure, unsafe.Pointer(&result), args[:]); err != nil {
		return 0, callError("vkCreateAccelerationStructureKHR", err)
	}
	if err := check("vkCreateAccelerationStructureKHR", vk.Result(result)); err != nil {
		return 0, err
	}
	return handle, nil
}

func (p *rtProcs) destroyAccelerationStructureKHR(device vk.Device, handle vk.AccelerationStructureKHR) error {
	var allocator *vk.AllocationCallbacks
	args := [3]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&handle),
		unsafe.Pointer(&allocator),
	}
	if err := ffi.CallFunction(&vk.SigVoidHandleHandlePtr, p.destroyAccelerationStructure, nil, args[:]); err != nil {
		return callError("vkDestroyAccelerationStructureKHR", err)
	}
	return nil
}

func (p *rtProcs) accelerationStructureBuildSizes(device vk.Device, info *vk.AccelerationStructureBuildGeometryInfoKHR, maxPrimitiveCounts []uint32) (vk.AccelerationStructureBuildSizesInfoKHR, error) {
	sizes := vk.AccelerationStructureBuildSizesInfoKHR{
		SType: vk.StructureTypeAccelerationStructureBuildSizesInfoKhr,
	}
	buildType := uint32(vk.AccelerationStructureBuildTypeDeviceKhr)
	var pCounts *uint32
	if len(maxPrimitiveCounts) > 0 {
		pCounts = &maxPrimitiveCounts[0]
	}
	pSizes := &sizes
	args := [5]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&buildType),
		unsafe.Pointer(&info),
		unsafe.Pointer(&pCounts),
		unsafe.Pointer(&pSizes),
	}
	if err := ffi.CallFunction(&sigVoidHandleU32PtrPtrPtr, p.getAccelerationStructureBuildSizes, nil, args[:]); err != nil {
		return sizes, callError("vkGetAccelerationStructureBuildSizesKHR", err)
	}
	if sizes.AccelerationStructureSize == 0 {
		return sizes, fmt.Errorf("%w: vkGetAccelerationStructureBuildSizesKHR reported a zero structure size", hal.ErrHardwareCall)
	}
	return sizes, nil
}

func (p *rtProcs) accelerationStructureDeviceAddress(device vk.Device, handle vk.AccelerationStructureKHR) (uint64, error) {
	info := vk.AccelerationStructureDeviceAddressInfoKHR{
		SType:                 vk.StructureTypeAccelerationStructureDeviceAddressInfoKhr,
		AccelerationStructure: handle,
	}
	pInfo := &info
	var address uint64
	args := [2]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&pInfo),
	}
	if err := ffi.CallFunction(&sigU64HandlePtr, p.getAccelerationStructureDeviceAddress, unsafe.Pointer(&address), args[:]); err != nil {
		return 0, callError("vkGetAccelerationStructureDeviceAddressKHR", err)
	}
	if address == 0 {
		return 0, fmt.Errorf("%w: vkGetAccelerationStructureDeviceAddressKHR returned 0", hal.ErrHardwareCall)
	}
	return address, nil
}

// cmdBuildAccelerationStructure records a single build. ranges has one entry per geometry.
func (p *rtProcs) cmdBuildAccelerationStructure(cmd vk.CommandBuffer, info *vk.AccelerationStructureBuildGeometryInfoKHR, ranges []vk.AccelerationStructureBuildRangeInfoKHR) error {
	infoCount := uint32(1)
	var pRanges *vk.AccelerationStructureBuildRangeInfoKHR
	if len(ranges) > 0 {
		pRanges = &ranges[0]
	}
	ppRanges := &pRanges
	args := [4]unsafe.Pointer{
		unsafe.Pointer(&cmd),
		unsafe.Pointer(&infoCount),
		unsafe.Pointer(&info),
		unsafe.Pointer(&ppRanges),
	}
	if err := ffi.CallFunction(&sigVoidHandleU32PtrPtr, p.cmdBuildAccelerationStructures, nil, args[:]); err != nil {
		return callError("vkCmdBuildAccelerationStructuresKHR", err)
	}
	return nil
}

func (p *rtProcs) createRayTracingPipeline(device vk.Device, info *vk.RayTracingPipelineCreateInfoKHR) (vk.Pipeline, error) {
	var deferred, cache uintptr
	count := uint32(1)
	var allocator *vk.AllocationCallbacks
	var pipeline vk.Pipeline
	pPipeline := &pipeline
	var result int32
	args := [7]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&deferred),
		unsafe.Pointer(&cache),
		unsafe.Pointer(&count),
		unsafe.Pointer(&info),
		unsafe.Pointer(&allocator),
		unsafe.Pointer(&pPipeline),
	}
	if err := ffi.CallFunction(&sigResultCreateRTPipelines, p.createRayTracingPipelines, unsafe.Pointer(&result), args[:]); err != nil {
		return 0, callError("vkCreateRayTracingPipelinesKHR", err)
	}
	if err := check("vkCreateRayTracingPipelinesKHR", vk.Result(result)); err != nil {
		return 0, err
	}
	return pipeline, nil
}

func (p *rtProcs) shaderGroupHandles(device vk.Device, pipeline vk.Pipeline, firstGroup, groupCount uint32, data []byte) error {
	size := uint64(len(data))
	var pData *byte
	if len(data) > 0 {
		pData = &data[0]
	}
	var result int32
	args := [6]unsafe.Pointer{
		unsafe.Pointer(&device),
		unsafe.Pointer(&pipeline),
		unsafe.Pointer(&firstGroup),
		unsafe.Pointer(&groupCount),
		unsafe.Pointer(&size),
		unsafe.Pointer(&pData),
	}
	if err := ffi.CallFunction(&sigResultGroupHandles, p.getRayTracingShaderGroupHandles, unsafe.Pointer(&result), args[:]); err != nil {
		return callError("vkGetRayTracingShaderGroupHandlesKHR", err)
	}
	return check("vkGetRayTracingShaderGroupHandlesKHR", vk.Result(result))
}

func (p *rtProcs) cmdTraceRaysKHR(cmd vk.CommandBuffer, raygen, miss, hit, callable *vk.StridedDeviceAddressRegionKHR, width, height, depth uint32) error {
	args := [8]unsafe.Pointer{
		unsafe.Pointer(&cmd),
		unsafe.Pointer(&raygen),
		unsafe.Pointer(&miss),
		unsafe.Pointer(&hit),
		unsafe.Pointer(&callable),
		unsafe.Pointer(&width),
		unsafe.Pointer(&height),
		unsafe.Pointer(&depth),
	}
	if err := ffi.CallFunction(&sigVoidTraceRays, p.cmdTraceRays, nil, args[:]); err != nil {
		return callError("vkCmdTraceRaysKHR", err)
	}
	return nil
}

//go:build !(js && wasm)

package vulkan

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Values introduced by Vulkan 1.2 that the generated bindings do not name.
const (
	bufferUsageShaderDeviceAddressBit vk.BufferUsageFlags    = 0x00020000
	memoryAllocateDeviceAddressBit    vk.MemoryAllocateFlags = 0x00000002

	structureTypeMemoryAllocateFlagsInfo vk.StructureType = 1000060000
	structureTypeBufferDeviceAddressInfo vk.StructureType = 1000244001
)

func bufferUsageToVk(usage hal.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlags

	if usage.Contains(hal.BufferUsageTransferSrc) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if usage.Contains(hal.BufferUsageTransferDst) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if usage.Contains(hal.BufferUsageUniform) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage.Contains(hal.BufferUsageStorage) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if usage.Contains(hal.BufferUsageVertex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if usage.Contains(hal.BufferUsageIndex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if usage.Contains(hal.BufferUsageShaderDeviceAddress) {
		flags |= bufferUsageShaderDeviceAddressBit
	}
	if usage.Contains(hal.BufferUsageAccelerationStructureStorage) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureStorageBitKhr)
	}
	if usage.Contains(hal.BufferUsageAccelerationStructureBuildInput) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureBuildInputReadOnlyBitKhr)
	}
	if usage.Contains(hal.BufferUsageShaderBindingTable) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageShaderBindingTableBitKhr)
	}

	return flags
}

func imageUsageToVk(usage hal.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlags

	if usage&hal.ImageUsageTransferSrc != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if usage&hal.ImageUsageTransferDst != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	if usage&hal.ImageUsageSampled != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if usage&hal.ImageUsageStorage != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}

	return flags
}

// textureFormatMap lists the formats the renderer creates images in.
var textureFormatMap = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb: vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb: vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
}

func textureFormatToVk(format gputypes.TextureFormat) vk.Format {
	if f, ok := textureFormatMap[format]; ok {
		return f
	}
	return vk.FormatUndefined
}

func vertexFormatToVk(format gputypes.VertexFormat) vk.Format {
	if format == gputypes.VertexFormatFloat32x3 {
		return vk.FormatR32g32b32Sfloat
	}
	return vk.FormatUndefined
}

func indexFormatToVk(format gputypes.IndexFormat) vk.IndexType {
	switch format {
	case gputypes.IndexFormatUint16:
		return vk.IndexTypeUint16
	case gputypes.IndexFormatUint32:
		return vk.IndexTypeUint32
	default:
		return vk.IndexTypeNoneKhr
	}
}

var imageLayoutMap = [...]vk.ImageLayout{
	hal.ImageLayoutUndefined:      vk.ImageLayoutUndefined,
	hal.ImageLayoutGeneral:        vk.ImageLayoutGeneral,
	hal.ImageLayoutTransferSrc:    vk.ImageLayoutTransferSrcOptimal,
	hal.ImageLayoutTransferDst:    vk.ImageLayoutTransferDstOptimal,
	hal.ImageLayoutShaderReadOnly: vk.ImageLayoutShaderReadOnlyOptimal,
	hal.ImageLayoutPresentSrc:     vk.ImageLayoutPresentSrcKhr,
}

func imageLayoutToVk(layout hal.ImageLayout) vk.ImageLayout {
	if int(layout) < len(imageLayoutMap) {
		return imageLayoutMap[layout]
	}
	return vk.ImageLayoutUndefined
}

type accessBit struct {
	hal hal.AccessFlags
	vk  vk.AccessFlagBits
}

var accessBits = []accessBit{
	{hal.AccessShaderRead, vk.AccessShaderReadBit},
	{hal.AccessShaderWrite, vk.AccessShaderWriteBit},
	{hal.AccessTransferRead, vk.AccessTransferReadBit},
	{hal.AccessTransferWrite, vk.AccessTransferWriteBit},
	{hal.AccessHostRead, vk.AccessHostReadBit},
	{hal.AccessAccelerationStructureRead, vk.AccessAccelerationStructureReadBitKhr},
	{hal.AccessAccelerationStructureWrite, vk.AccessAccelerationStructureWriteBitKhr},
}

func accessToVk(access hal.AccessFlags) vk.AccessFlags {
	var flags vk.AccessFlags
	for _, b := range accessBits {
		if access&b.hal != 0 {
			flags |= vk.AccessFlags(b.vk)
		}
	}
	return flags
}

type stageBit struct {
	hal hal.PipelineStages
	vk  vk.PipelineStageFlagBits
}

var stageBits = []stageBit{
	{hal.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{hal.StageTransfer, vk.PipelineStageTransferBit},
	{hal.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{hal.StageRayTracingShader, vk.PipelineStageRayTracingShaderBitKhr},
	{hal.StageAccelerationStructureBuild, vk.PipelineStageAccelerationStructureBuildBitKhr},
	{hal.StageHost, vk.PipelineStageHostBit},
	{hal.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	{hal.StageAllCommands, vk.PipelineStageAllCommandsBit},
}

// stagesToVk converts a stage mask. An empty mask maps to top-of-pipe,
// which Vulkan requires to be non-zero.
func stagesToVk(stages hal.PipelineStages) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlags
	for _, b := range stageBits {
		if stages&b.hal != 0 {
			flags |= vk.PipelineStageFlags(b.vk)
		}
	}
	if flags == 0 {
		flags = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return flags
}

type shaderStageBit struct {
	hal hal.ShaderStage
	vk  vk.ShaderStageFlagBits
}

var shaderStageBits = []shaderStageBit{
	{hal.ShaderStageCompute, vk.ShaderStageComputeBit},
	{hal.ShaderStageRaygen, vk.ShaderStageRaygenBitKhr},
	{hal.ShaderStageMiss, vk.ShaderStageMissBitKhr},
	{hal.ShaderStageClosestHit, vk.ShaderStageClosestHitBitKhr},
	{hal.ShaderStageAnyHit, vk.ShaderStageAnyHitBitKhr},
	{hal.ShaderStageIntersection, vk.ShaderStageIntersectionBitKhr},
}

func shaderStagesToVk(stages hal.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for _, b := range shaderStageBits {
		if stages&b.hal != 0 {
			flags |= vk.ShaderStageFlags(b.vk)
		}
	}
	return flags
}

// shaderStageToVk converts a single stage.
func shaderStageToVk(stage hal.ShaderStage) vk.ShaderStageFlagBits {
	for _, b := range shaderStageBits {
		if stage == b.hal {
			return b.vk
		}
	}
	return 0
}

func descriptorTypeToVk(t hal.DescriptorType) vk.DescriptorType {
	switch t {
	case hal.DescriptorTypeAccelerationStructure:
		return vk.DescriptorTypeAccelerationStructureKhr
	case hal.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case hal.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case hal.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	default:
		return vk.DescriptorTypeCombinedImageSampler
	}
}

func bindPointToVk(p hal.PipelineBindPoint) vk.PipelineBindPoint {
	if p == hal.BindPointRayTracing {
		return vk.PipelineBindPointRayTracingKhr
	}
	return vk.PipelineBindPointCompute
}

func accelerationStructureTypeToVk(t hal.AccelerationStructureType) vk.AccelerationStructureTypeKHR {
	if t == hal.TopLevel {
		return vk.AccelerationStructureTypeTopLevelKhr
	}
	return vk.AccelerationStructureTypeBottomLevelKhr
}

func buildFlagsToVk(f hal.BuildFlags) vk.BuildAccelerationStructureFlagsKHR {
	var flags vk.BuildAccelerationStructureFlagsKHR
	if f&hal.BuildAllowUpdate != 0 {
		flags |= vk.BuildAccelerationStructureFlagsKHR(vk.BuildAccelerationStructureAllowUpdateBitKhr)
	}
	if f&hal.BuildAllowCompaction != 0 {
		flags |= vk.BuildAccelerationStructureFlagsKHR(vk.BuildAccelerationStructureAllowCompactionBitKhr)
	}
	if f&hal.BuildPreferFastTrace != 0 {
		flags |= vk.BuildAccelerationStructureFlagsKHR(vk.BuildAccelerationStructurePreferFastTraceBitKhr)
	}
	if f&hal.BuildPreferFastBuild != 0 {
		flags |= vk.BuildAccelerationStructureFlagsKHR(vk.BuildAccelerationStructurePreferFastBuildBitKhr)
	}
	return flags
}

func buildModeToVk(m hal.BuildMode) vk.BuildAccelerationStructureModeKHR {
	if m == hal.BuildModeUpdate {
		return vk.BuildAccelerationStructureModeUpdateKhr
	}
	return vk.BuildAccelerationStructureModeBuildKhr
}

func geometryTypeToVk(k hal.GeometryKind) vk.GeometryTypeKHR {
	switch k {
	case hal.GeometryAABBs:
		return vk.GeometryTypeAabbsKhr
	case hal.GeometryInstances:
		return vk.GeometryTypeInstancesKhr
	default:
		return vk.GeometryTypeTrianglesKhr
	}
}

func geometryFlagsToVk(f hal.GeometryFlags) vk.GeometryFlagsKHR {
	if f&hal.GeometryOpaque != 0 {
		return vk.GeometryFlagsKHR(vk.GeometryOpaqueBitKhr)
	}
	return 0
}

func shaderGroupTypeToVk(k hal.ShaderGroupKind) vk.RayTracingShaderGroupTypeKHR {
	switch k {
	case hal.ShaderGroupTrianglesHit:
		return vk.RayTracingShaderGroupTypeTrianglesHitGroupKhr
	case hal.ShaderGroupProceduralHit:
		return vk.RayTracingShaderGroupTypeProceduralHitGroupKhr
	default:
		return vk.RayTracingShaderGroupTypeGeneralKhr
	}
}

func adapterTypeFromVk(t vk.PhysicalDeviceType) gpucontext.AdapterType {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return gpucontext.AdapterTypeDiscrete
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return gpucontext.AdapterTypeIntegrated
	case vk.PhysicalDeviceTypeCpu:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func vkMakeVersion(major, minor, patch uint32) uint32 {
	return (major << 22) | (minor << 12) | patch
}

func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3FF, v&0xFFF)
}

func cStringToGo(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

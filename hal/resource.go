package hal

import "github.com/gogpu/gputypes"

// NativeHandle provides access to the underlying API handle.
type NativeHandle interface {
	// NativeHandle returns the raw API handle.
	// For Vulkan: VkBuffer, VkImage, VkAccelerationStructureKHR, etc.
	NativeHandle() uint64
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	NativeHandle

	// Size returns the requested size in bytes.
	Size() uint64

	// DeviceAddress returns the GPU virtual address of the first byte, or 0
	// when the buffer was created without BufferUsageShaderDeviceAddress.
	DeviceAddress() uint64
}

// Image is a 2D GPU image together with its default view.
type Image interface {
	NativeHandle

	// Extent returns the image size.
	Extent() gputypes.Extent3D

	// Format returns the texel format.
	Format() gputypes.TextureFormat
}

// Sampler is a texture sampler.
type Sampler interface {
	NativeHandle
}

// ShaderModule is compiled SPIR-V.
type ShaderModule interface {
	NativeHandle
}

// DescriptorSetLayout describes the bindings of a descriptor set.
type DescriptorSetLayout interface {
	NativeHandle

	// Bindings returns the declared bindings in declaration order.
	Bindings() []DescriptorBinding
}

// DescriptorPool owns the descriptor sets allocated from it.
type DescriptorPool interface {
	NativeHandle
}

// DescriptorSet is a set of resource bindings.
type DescriptorSet interface {
	NativeHandle
}

// PipelineLayout describes the descriptor set layouts a pipeline uses.
type PipelineLayout interface {
	NativeHandle
}

// Pipeline is a compiled compute or ray-tracing pipeline.
type Pipeline interface {
	NativeHandle
}

// CommandBuffer is a finished command recording ready for submission.
type CommandBuffer interface {
	NativeHandle
}

// Fence is a host-waitable synchronization primitive.
type Fence interface {
	NativeHandle
}

// Semaphore is a GPU-GPU synchronization primitive.
type Semaphore interface {
	NativeHandle
}

// BufferUsage describes how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageShaderDeviceAddress
	BufferUsageAccelerationStructureStorage
	BufferUsageAccelerationStructureBuildInput
	BufferUsageShaderBindingTable
)

// Contains reports whether all bits of flag are set.
func (u BufferUsage) Contains(flag BufferUsage) bool { return u&flag == flag }

// MemoryLocation selects the heap a resource is allocated from.
type MemoryLocation uint8

const (
	// MemoryDeviceLocal is GPU-only memory. Contents are written through copies.
	MemoryDeviceLocal MemoryLocation = iota
	// MemoryHostVisible is host-visible, host-coherent memory that can be mapped.
	MemoryHostVisible
)

// String returns the location name.
func (m MemoryLocation) String() string {
	switch m {
	case MemoryDeviceLocal:
		return "DeviceLocal"
	case MemoryHostVisible:
		return "HostVisible"
	default:
		return "Unknown"
	}
}

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryLocation
}

// ImageUsage describes how an image will be used.
type ImageUsage uint32

// Image usage flags.
const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
)

// ImageDescriptor describes a 2D image. A default full view is created with it.
type ImageDescriptor struct {
	Label  string
	Extent gputypes.Extent3D
	Format gputypes.TextureFormat
	Usage  ImageUsage
}

// SamplerDescriptor describes a sampler. Filtering is linear with repeat addressing
// unless ClampToEdge is set.
type SamplerDescriptor struct {
	Label       string
	ClampToEdge bool
	Anisotropy  float32
}

// ImageLayout is the memory layout an image is in.
type ImageLayout uint8

// Image layouts.
const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutShaderReadOnly
	ImageLayoutPresentSrc
)

// String returns the layout name.
func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "Undefined"
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutTransferSrc:
		return "TransferSrc"
	case ImageLayoutTransferDst:
		return "TransferDst"
	case ImageLayoutShaderReadOnly:
		return "ShaderReadOnly"
	case ImageLayoutPresentSrc:
		return "PresentSrc"
	default:
		return "Unknown"
	}
}

// ShaderStage is a bit set of shader stages.
type ShaderStage uint32

// Shader stages.
const (
	ShaderStageCompute ShaderStage = 1 << iota
	ShaderStageRaygen
	ShaderStageMiss
	ShaderStageClosestHit
	ShaderStageAnyHit
	ShaderStageIntersection
)

// DescriptorType is the kind of resource bound at a descriptor binding.
type DescriptorType uint8

// Descriptor types.
const (
	DescriptorTypeAccelerationStructure DescriptorType = iota
	DescriptorTypeStorageImage
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeCombinedImageSampler
)

// String returns the descriptor type name.
func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeAccelerationStructure:
		return "AccelerationStructure"
	case DescriptorTypeStorageImage:
		return "StorageImage"
	case DescriptorTypeUniformBuffer:
		return "UniformBuffer"
	case DescriptorTypeStorageBuffer:
		return "StorageBuffer"
	case DescriptorTypeCombinedImageSampler:
		return "CombinedImageSampler"
	default:
		return "Unknown"
	}
}

// DescriptorBinding declares one binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorSetLayoutDescriptor describes a descriptor set layout.
type DescriptorSetLayoutDescriptor struct {
	Label    string
	Bindings []DescriptorBinding
}

// BufferBinding is a buffer range bound to a descriptor.
// A zero Size binds the whole buffer.
type BufferBinding struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// TextureBinding is an image with the sampler used to read it.
type TextureBinding struct {
	Image   Image
	Sampler Sampler
}

// DescriptorWrite updates one binding of a descriptor set.
// Exactly one of the resource slices is used, selected by Type.
type DescriptorWrite struct {
	Binding                uint32
	Type                   DescriptorType
	AccelerationStructures []AccelerationStructure
	Images                 []Image
	Buffers                []BufferBinding
	Textures               []TextureBinding
}

// Count returns the number of descriptors the write updates.
func (w *DescriptorWrite) Count() int {
	switch w.Type {
	case DescriptorTypeAccelerationStructure:
		return len(w.AccelerationStructures)
	case DescriptorTypeStorageImage:
		return len(w.Images)
	case DescriptorTypeUniformBuffer, DescriptorTypeStorageBuffer:
		return len(w.Buffers)
	case DescriptorTypeCombinedImageSampler:
		return len(w.Textures)
	default:
		return 0
	}
}

// PipelineLayoutDescriptor describes a pipeline layout.
type PipelineLayoutDescriptor struct {
	Label      string
	SetLayouts []DescriptorSetLayout
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label      string
	Layout     PipelineLayout
	Module     ShaderModule
	EntryPoint string
}

// PipelineBindPoint selects the pipeline type a bind targets.
type PipelineBindPoint uint8

// Pipeline bind points.
const (
	BindPointCompute PipelineBindPoint = iota
	BindPointRayTracing
)

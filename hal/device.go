package hal

import (
	"time"

	"github.com/gogpu/gpucontext"
)

// AdapterInfo describes a physical device.
type AdapterInfo struct {
	gpucontext.AdapterInfo

	// Driver is the driver version string.
	Driver string

	// APIVersion is the supported API version, e.g. "1.3.280".
	APIVersion string

	// RayTracing reports whether every extension the ray-tracing core needs is present.
	RayTracing bool
}

// DeviceOptions configure device creation.
type DeviceOptions struct {
	// AdapterIndex selects a physical device from Backend.Adapters. Negative
	// selects the first adapter that supports ray tracing, or the first adapter.
	AdapterIndex int

	// RequireRayTracing makes device creation fail with ErrMissingEntryPoint
	// when the ray-tracing capability cannot be resolved.
	RequireRayTracing bool

	// Validation enables API validation layers when installed.
	Validation bool
}

// Backend creates devices.
type Backend interface {
	// Name returns the backend name used in the registry.
	Name() string

	// Adapters lists the physical devices the backend can open.
	Adapters() ([]AdapterInfo, error)

	// OpenDevice creates a logical device.
	OpenDevice(opts DeviceOptions) (Device, error)
}

// Device is a logical GPU device.
type Device interface {
	// Info describes the physical device the device was created on.
	Info() AdapterInfo

	// Queue returns the single queue used for builds and dispatch.
	Queue() Queue

	// RayTracing returns the ray-tracing capability, or nil if the device was
	// opened without it.
	RayTracing() RayTracing

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	DestroyBuffer(b Buffer)

	// MapBuffer returns the host view of a host-visible buffer.
	// It fails with ErrNotHostVisible for device-local buffers.
	MapBuffer(b Buffer) ([]byte, error)
	UnmapBuffer(b Buffer)

	CreateImage(desc *ImageDescriptor) (Image, error)
	DestroyImage(img Image)

	CreateSampler(desc *SamplerDescriptor) (Sampler, error)
	DestroySampler(s Sampler)

	CreateShaderModule(label string, spirv []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)

	CreateDescriptorSetLayout(desc *DescriptorSetLayoutDescriptor) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)

	// CreateDescriptorSets allocates count sets of the given layout from a new pool.
	CreateDescriptorSets(layout DescriptorSetLayout, count int) (DescriptorPool, []DescriptorSet, error)
	DestroyDescriptorPool(p DescriptorPool)

	// UpdateDescriptorSet writes descriptors. A write to a binding the layout
	// does not declare fails with ErrMissingDescriptorBinding.
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite) error

	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)

	CreateComputePipeline(desc *ComputePipelineDescriptor) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	// CreateCommandEncoder begins a primary command recording.
	CreateCommandEncoder(label string) (CommandEncoder, error)
	FreeCommandBuffer(cb CommandBuffer)

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	WaitFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	// SetObjectName attaches a debug name to a native object. Backends without
	// debug support ignore it.
	SetObjectName(obj NativeHandle, name string)

	// WaitIdle blocks until the device has finished all work.
	WaitIdle() error

	// Destroy releases the device. Every resource must already be destroyed.
	Destroy()
}

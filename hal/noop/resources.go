// Package noop provides a GPU-less hal backend for tests.
//
// Every resource is host memory. Submitted command buffers are executed on the
// CPU as far as that is meaningful (copies, fences, semaphores) and kept in
// submission order so tests can inspect the recorded commands.
package noop

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
)

// Buffer implements hal.Buffer.
type Buffer struct {
	id     uint64
	desc   hal.BufferDescriptor
	base   uint64
	data   []byte
	mapped bool
}

// NativeHandle returns the buffer id.
func (b *Buffer) NativeHandle() uint64 { return b.id }

// Size returns the requested size.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// DeviceAddress returns the fake device address, or 0 without device address usage.
func (b *Buffer) DeviceAddress() uint64 {
	if !b.desc.Usage.Contains(hal.BufferUsageShaderDeviceAddress) {
		return 0
	}
	return b.base
}

// Label returns the debug label the buffer was created with.
func (b *Buffer) Label() string { return b.desc.Label }

// Usage returns the usage flags.
func (b *Buffer) Usage() hal.BufferUsage { return b.desc.Usage }

// Memory returns the memory location.
func (b *Buffer) Memory() hal.MemoryLocation { return b.desc.Memory }

// Bytes returns the buffer contents regardless of memory location.
func (b *Buffer) Bytes() []byte { return b.data }

// Mapped reports whether the buffer is currently mapped.
func (b *Buffer) Mapped() bool { return b.mapped }

// Image implements hal.Image.
type Image struct {
	id   uint64
	desc hal.ImageDescriptor
	data []byte
}

// NativeHandle returns the image id.
func (i *Image) NativeHandle() uint64 { return i.id }

// Extent returns the image size.
func (i *Image) Extent() gputypes.Extent3D { return i.desc.Extent }

// Format returns the texel format.
func (i *Image) Format() gputypes.TextureFormat { return i.desc.Format }

// Label returns the debug label.
func (i *Image) Label() string { return i.desc.Label }

// Usage returns the usage flags.
func (i *Image) Usage() hal.ImageUsage { return i.desc.Usage }

// Bytes returns the texel storage.
func (i *Image) Bytes() []byte { return i.data }

type handle struct{ id uint64 }

func (h *handle) NativeHandle() uint64 { return h.id }

// Sampler implements hal.Sampler.
type Sampler struct{ handle }

// ShaderModule implements hal.ShaderModule.
type ShaderModule struct {
	handle
	Label string
	Code  []uint32
}

// DescriptorSetLayout implements hal.DescriptorSetLayout.
type DescriptorSetLayout struct {
	handle
	Label    string
	bindings []hal.DescriptorBinding
}

// Bindings returns the declared bindings.
func (l *DescriptorSetLayout) Bindings() []hal.DescriptorBinding { return l.bindings }

func (l *DescriptorSetLayout) binding(n uint32) (hal.DescriptorBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return hal.DescriptorBinding{}, false
}

// DescriptorPool implements hal.DescriptorPool.
type DescriptorPool struct {
	handle
	Sets []*DescriptorSet
}

// DescriptorSet implements hal.DescriptorSet and remembers every write.
type DescriptorSet struct {
	handle
	Layout *DescriptorSetLayout

	// Writes holds the latest write per binding.
	Writes map[uint32]hal.DescriptorWrite
	// WriteCounts counts writes per binding.
	WriteCounts map[uint32]int
}

// PipelineLayout implements hal.PipelineLayout.
type PipelineLayout struct {
	handle
	SetLayouts []hal.DescriptorSetLayout
}

// Pipeline implements hal.Pipeline.
type Pipeline struct {
	handle
	Label      string
	RayTracing *hal.RayTracingPipelineDescriptor
	Compute    *hal.ComputePipelineDescriptor
}

// CommandBuffer implements hal.CommandBuffer.
type CommandBuffer struct {
	handle
	Label    string
	Commands []Command
}

// Fence implements hal.Fence.
type Fence struct {
	handle
	signaled bool
}

// Signaled reports the fence state.
func (f *Fence) Signaled() bool { return f.signaled }

// Semaphore implements hal.Semaphore.
type Semaphore struct {
	handle
	signaled bool
}

// AccelerationStructure implements hal.AccelerationStructure.
type AccelerationStructure struct {
	handle
	Desc    hal.AccelerationStructureDescriptor
	address uint64
}

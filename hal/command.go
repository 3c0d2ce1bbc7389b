package hal

import "github.com/gogpu/gputypes"

// AccessFlags describe memory access types for barriers.
type AccessFlags uint32

// AccessNone is an empty access mask.
const AccessNone AccessFlags = 0

// Access flags.
const (
	AccessShaderRead AccessFlags = 1 << iota
	AccessShaderWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
)

// PipelineStages describe execution stages for barriers.
type PipelineStages uint32

// Pipeline stages.
const (
	StageTopOfPipe PipelineStages = 1 << iota
	StageTransfer
	StageComputeShader
	StageRayTracingShader
	StageAccelerationStructureBuild
	StageHost
	StageBottomOfPipe
	StageAllCommands
)

// MemoryBarrier is a global memory dependency.
type MemoryBarrier struct {
	SrcStages PipelineStages
	DstStages PipelineStages
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

// ImageBarrier transitions an image between layouts.
type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcStages PipelineStages
	DstStages PipelineStages
}

// BufferCopy is one region of a buffer to buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// CommandEncoder records commands into a command buffer.
// An encoder is used from one goroutine at a time.
type CommandEncoder interface {
	// PipelineBarrier records a global memory barrier.
	PipelineBarrier(b MemoryBarrier)

	// ImageBarrier records an image layout transition.
	ImageBarrier(b ImageBarrier)

	// CopyBuffer copies regions between buffers.
	CopyBuffer(src, dst Buffer, regions ...BufferCopy)

	// CopyBufferToImage copies tightly packed texels into an image in TransferDst layout.
	CopyBufferToImage(src Buffer, dst Image, extent gputypes.Extent3D)

	// CopyImage copies extent texels between two images.
	CopyImage(src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, extent gputypes.Extent3D)

	// CopyImageToBuffer copies an image into tightly packed buffer texels.
	CopyImageToBuffer(src Image, srcLayout ImageLayout, dst Buffer, extent gputypes.Extent3D)

	// BuildAccelerationStructure records one build covering every geometry of info.
	// ranges has one entry per geometry.
	BuildAccelerationStructure(info *BuildGeometryInfo, ranges []BuildRange)

	// BindPipeline binds a pipeline.
	BindPipeline(bindPoint PipelineBindPoint, p Pipeline)

	// BindDescriptorSet binds set 0.
	BindDescriptorSet(bindPoint PipelineBindPoint, layout PipelineLayout, set DescriptorSet)

	// TraceRays dispatches width x height x depth rays.
	TraceRays(raygen, miss, hit, callable StridedRegion, width, height, depth uint32)

	// Dispatch dispatches compute workgroups.
	Dispatch(x, y, z uint32)

	// Finish ends recording. If a command failed to record, Finish returns
	// that error and the command buffer is already released.
	Finish() (CommandBuffer, error)
}

// SubmitInfo describes a queue submission.
// CommandBuffer may be nil to only wait on and signal semaphores.
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          []Semaphore
	WaitStages    PipelineStages
	Signal        []Semaphore
	Fence         Fence
}

// Queue submits recorded command buffers.
type Queue interface {
	// Submit submits work to the queue.
	Submit(info *SubmitInfo) error

	// WaitIdle blocks until the queue has finished all submitted work.
	WaitIdle() error
}

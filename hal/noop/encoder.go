package noop

import (
	"errors"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
)

// Op identifies a recorded command.
type Op uint8

// Recorded operations.
const (
	OpPipelineBarrier Op = iota
	OpImageBarrier
	OpCopyBuffer
	OpCopyBufferToImage
	OpCopyImage
	OpCopyImageToBuffer
	OpBuildAccelerationStructure
	OpBindPipeline
	OpBindDescriptorSet
	OpTraceRays
	OpDispatch
)

var opNames = [...]string{
	OpPipelineBarrier:            "PipelineBarrier",
	OpImageBarrier:               "ImageBarrier",
	OpCopyBuffer:                 "CopyBuffer",
	OpCopyBufferToImage:          "CopyBufferToImage",
	OpCopyImage:                  "CopyImage",
	OpCopyImageToBuffer:          "CopyImageToBuffer",
	OpBuildAccelerationStructure: "BuildAccelerationStructure",
	OpBindPipeline:               "BindPipeline",
	OpBindDescriptorSet:          "BindDescriptorSet",
	OpTraceRays:                  "TraceRays",
	OpDispatch:                   "Dispatch",
}

// String returns the operation name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "Unknown"
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	MemoryBarrier hal.MemoryBarrier
	ImageBarrier  hal.ImageBarrier

	SrcBuffer *Buffer
	DstBuffer *Buffer
	Regions   []hal.BufferCopy

	SrcImage  *Image
	DstImage  *Image
	SrcLayout hal.ImageLayout
	DstLayout hal.ImageLayout
	Extent    gputypes.Extent3D

	Build  hal.BuildGeometryInfo
	Ranges []hal.BuildRange

	BindPoint hal.PipelineBindPoint
	Pipeline  *Pipeline
	Layout    hal.PipelineLayout
	Set       *DescriptorSet

	Raygen, Miss, Hit, Callable hal.StridedRegion
	Width, Height, Depth        uint32
}

var errEncoderFinished = errors.New("noop: encoder already finished")

// Encoder implements hal.CommandEncoder.
type Encoder struct {
	device   *Device
	cb       *CommandBuffer
	finished bool
}

func (e *Encoder) record(c Command) {
	e.cb.Commands = append(e.cb.Commands, c)
}

// PipelineBarrier records a global memory barrier.
func (e *Encoder) PipelineBarrier(b hal.MemoryBarrier) {
	e.record(Command{Op: OpPipelineBarrier, MemoryBarrier: b})
}

// ImageBarrier records an image layout transition.
func (e *Encoder) ImageBarrier(b hal.ImageBarrier) {
	e.record(Command{Op: OpImageBarrier, ImageBarrier: b})
}

// CopyBuffer records a buffer copy.
func (e *Encoder) CopyBuffer(src, dst hal.Buffer, regions ...hal.BufferCopy) {
	e.record(Command{
		Op:        OpCopyBuffer,
		SrcBuffer: src.(*Buffer),
		DstBuffer: dst.(*Buffer),
		Regions:   append([]hal.BufferCopy(nil), regions...),
	})
}

// CopyBufferToImage records a texel upload.
func (e *Encoder) CopyBufferToImage(src hal.Buffer, dst hal.Image, extent gputypes.Extent3D) {
	e.record(Command{Op: OpCopyBufferToImage, SrcBuffer: src.(*Buffer), DstImage: dst.(*Image), Extent: extent})
}

// CopyImage records an image copy.
func (e *Encoder) CopyImage(src hal.Image, srcLayout hal.ImageLayout, dst hal.Image, dstLayout hal.ImageLayout, extent gputypes.Extent3D) {
	e.record(Command{
		Op:        OpCopyImage,
		SrcImage:  src.(*Image),
		SrcLayout: srcLayout,
		DstImage:  dst.(*Image),
		DstLayout: dstLayout,
		Extent:    extent,
	})
}

// CopyImageToBuffer records an image read back.
func (e *Encoder) CopyImageToBuffer(src hal.Image, srcLayout hal.ImageLayout, dst hal.Buffer, extent gputypes.Extent3D) {
	e.record(Command{
		Op:        OpCopyImageToBuffer,
		SrcImage:  src.(*Image),
		SrcLayout: srcLayout,
		DstBuffer: dst.(*Buffer),
		Extent:    extent,
	})
}

// BuildAccelerationStructure records a structure build.
func (e *Encoder) BuildAccelerationStructure(info *hal.BuildGeometryInfo, ranges []hal.BuildRange) {
	build := *info
	build.Geometries = append([]hal.Geometry(nil), info.Geometries...)
	e.record(Command{
		Op:     OpBuildAccelerationStructure,
		Build:  build,
		Ranges: append([]hal.BuildRange(nil), ranges...),
	})
}

// BindPipeline records a pipeline bind.
func (e *Encoder) BindPipeline(bindPoint hal.PipelineBindPoint, p hal.Pipeline) {
	e.record(Command{Op: OpBindPipeline, BindPoint: bindPoint, Pipeline: p.(*Pipeline)})
}

// BindDescriptorSet records a descriptor set bind.
func (e *Encoder) BindDescriptorSet(bindPoint hal.PipelineBindPoint, layout hal.PipelineLayout, set hal.DescriptorSet) {
	e.record(Command{Op: OpBindDescriptorSet, BindPoint: bindPoint, Layout: layout, Set: set.(*DescriptorSet)})
}

// TraceRays records a ray dispatch.
func (e *Encoder) TraceRays(raygen, miss, hit, callable hal.StridedRegion, width, height, depth uint32) {
	e.record(Command{
		Op:       OpTraceRays,
		Raygen:   raygen,
		Miss:     miss,
		Hit:      hit,
		Callable: callable,
		Width:    width,
		Height:   height,
		Depth:    depth,
	})
}

// Dispatch records a compute dispatch.
func (e *Encoder) Dispatch(x, y, z uint32) {
	e.record(Command{Op: OpDispatch, Width: x, Height: y, Depth: z})
}

// Finish ends recording. An injected "Finish" fault frees the command buffer.
func (e *Encoder) Finish() (hal.CommandBuffer, error) {
	if e.finished {
		return nil, errEncoderFinished
	}
	e.finished = true
	d := e.device
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault("Finish"); err != nil {
		d.release(e.cb.NativeHandle())
		return nil, err
	}
	return e.cb, nil
}

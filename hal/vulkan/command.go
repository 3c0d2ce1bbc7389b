//go:build !(js && wasm)

package vulkan

import (
	"fmt"
	"runtime"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// CommandBuffer is a recorded primary VkCommandBuffer.
type CommandBuffer struct {
	handle vk.CommandBuffer
}

// NativeHandle returns the VkCommandBuffer.
func (c *CommandBuffer) NativeHandle() uint64 { return uint64(c.handle) }

// CommandEncoder records into a command buffer allocated from the device pool.
type CommandEncoder struct {
	device *Device
	cmd    vk.CommandBuffer
	label  string

	// err is the first failed recording call. Finish returns it.
	err error
}

// fail keeps the first recording error.
func (e *CommandEncoder) fail(err error) {
	if err == nil {
		return
	}
	hal.Logger().Error("vulkan: recording failed", "encoder", e.label, "err", err)
	if e.err == nil {
		e.err = err
	}
}

var _ hal.CommandEncoder = (*CommandEncoder)(nil)

// CreateCommandEncoder allocates a primary command buffer and begins a
// one-time-submit recording.
func (d *Device) CreateCommandEncoder(label string) (hal.CommandEncoder, error) {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()

	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	var cmd vk.CommandBuffer
	if err := check("vkAllocateCommandBuffers", d.cmds.AllocateCommandBuffers(d.handle, &info, &cmd)); err != nil {
		return nil, err
	}
	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", d.cmds.BeginCommandBuffer(cmd, &begin)); err != nil {
		d.cmds.FreeCommandBuffers(d.handle, d.commandPool, 1, &cmd)
		return nil, err
	}
	d.setObjectName(vk.ObjectTypeCommandBuffer, uint64(cmd), label)
	return &CommandEncoder{device: d, cmd: cmd, label: label}, nil
}

// FreeCommandBuffer returns a command buffer to the pool. The caller makes
// sure the GPU has finished with it.
func (d *Device) FreeCommandBuffer(cb hal.CommandBuffer) {
	vc, ok := cb.(*CommandBuffer)
	if !ok || vc.handle == 0 {
		return
	}
	d.poolMu.Lock()
	d.cmds.FreeCommandBuffers(d.handle, d.commandPool, 1, &vc.handle)
	d.poolMu.Unlock()
	vc.handle = 0
}

// PipelineBarrier records a global memory barrier.
func (e *CommandEncoder) PipelineBarrier(b hal.MemoryBarrier) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: accessToVk(b.SrcAccess),
		DstAccessMask: accessToVk(b.DstAccess),
	}
	e.device.cmds.CmdPipelineBarrier(e.cmd,
		stagesToVk(b.SrcStages), stagesToVk(b.DstStages), 0,
		1, &barrier, 0, nil, 0, nil)
}

// ImageBarrier records an image layout transition.
func (e *CommandEncoder) ImageBarrier(b hal.ImageBarrier) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       accessToVk(b.SrcAccess),
		DstAccessMask:       accessToVk(b.DstAccess),
		OldLayout:           imageLayoutToVk(b.OldLayout),
		NewLayout:           imageLayoutToVk(b.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               b.Image.(*Image).handle,
		SubresourceRange:    colorRange,
	}
	e.device.cmds.CmdPipelineBarrier(e.cmd,
		stagesToVk(b.SrcStages), stagesToVk(b.DstStages), 0,
		0, nil, 0, nil, 1, &barrier)
}

// CopyBuffer copies regions between buffers.
func (e *CommandEncoder) CopyBuffer(src, dst hal.Buffer, regions ...hal.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	vkRegions := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		vkRegions[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	e.device.cmds.CmdCopyBuffer(e.cmd, src.(*Buffer).handle, dst.(*Buffer).handle,
		uint32(len(vkRegions)), &vkRegions[0])
}

func imageExtent(extent gputypes.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1}
}

// CopyBufferToImage uploads tightly packed texels into an image in TransferDst layout.
func (e *CommandEncoder) CopyBufferToImage(src hal.Buffer, dst hal.Image, extent gputypes.Extent3D) {
	region := vk.BufferImageCopy{
		ImageSubresource: colorLayers,
		ImageExtent:      imageExtent(extent),
	}
	e.device.cmds.CmdCopyBufferToImage(e.cmd, src.(*Buffer).handle, dst.(*Image).handle,
		vk.ImageLayoutTransferDstOptimal, 1, &region)
}

// CopyImage copies texels between two images.
func (e *CommandEncoder) CopyImage(src hal.Image, srcLayout hal.ImageLayout, dst hal.Image, dstLayout hal.ImageLayout, extent gputypes.Extent3D) {
	region := vk.ImageCopy{
		SrcSubresource: colorLayers,
		DstSubresource: colorLayers,
		Extent:         imageExtent(extent),
	}
	e.device.cmds.CmdCopyImage(e.cmd,
		src.(*Image).handle, imageLayoutToVk(srcLayout),
		dst.(*Image).handle, imageLayoutToVk(dstLayout),
		1, &region)
}

// CopyImageToBuffer reads an image back into tightly packed buffer texels.
func (e *CommandEncoder) CopyImageToBuffer(src hal.Image, srcLayout hal.ImageLayout, dst hal.Buffer, extent gputypes.Extent3D) {
	region := vk.BufferImageCopy{
		ImageSubresource: colorLayers,
		ImageExtent:      imageExtent(extent),
	}
	e.device.cmds.CmdCopyImageToBuffer(e.cmd, src.(*Image).handle, imageLayoutToVk(srcLayout),
		dst.(*Buffer).handle, 1, &region)
}

// BuildAccelerationStructure records one structure build.
func (e *CommandEncoder) BuildAccelerationStructure(info *hal.BuildGeometryInfo, ranges []hal.BuildRange) {
	b := convertBuildInfo(info)
	vkRanges := make([]vk.AccelerationStructureBuildRangeInfoKHR, len(ranges))
	for i, r := range ranges {
		vkRanges[i] = vk.AccelerationStructureBuildRangeInfoKHR{
			PrimitiveCount:  r.PrimitiveCount,
			PrimitiveOffset: r.PrimitiveOffset,
			FirstVertex:     r.FirstVertex,
			TransformOffset: r.TransformOffset,
		}
	}
	e.fail(e.device.procs.cmdBuildAccelerationStructure(e.cmd, &b.info, vkRanges))
	runtime.KeepAlive(b)
	runtime.KeepAlive(vkRanges)
}

// BindPipeline binds a pipeline.
func (e *CommandEncoder) BindPipeline(bindPoint hal.PipelineBindPoint, p hal.Pipeline) {
	e.device.cmds.CmdBindPipeline(e.cmd, bindPointToVk(bindPoint), p.(*Pipeline).handle)
}

// BindDescriptorSet binds set 0.
func (e *CommandEncoder) BindDescriptorSet(bindPoint hal.PipelineBindPoint, layout hal.PipelineLayout, set hal.DescriptorSet) {
	handle := set.(*DescriptorSet).handle
	e.device.cmds.CmdBindDescriptorSets(e.cmd, bindPointToVk(bindPoint),
		layout.(*PipelineLayout).handle, 0, 1, &handle, 0, nil)
}

func stridedRegion(r hal.StridedRegion) vk.StridedDeviceAddressRegionKHR {
	return vk.StridedDeviceAddressRegionKHR{
		DeviceAddress: vk.DeviceAddress(r.DeviceAddress),
		Stride:        vk.DeviceSize(r.Stride),
		Size:          vk.DeviceSize(r.Size),
	}
}

// TraceRays dispatches rays through the bound ray-tracing pipeline.
func (e *CommandEncoder) TraceRays(raygen, miss, hit, callable hal.StridedRegion, width, height, depth uint32) {
	rg, ms, ht, cl := stridedRegion(raygen), stridedRegion(miss), stridedRegion(hit), stridedRegion(callable)
	e.fail(e.device.procs.cmdTraceRaysKHR(e.cmd, &rg, &ms, &ht, &cl, width, height, depth))
	runtime.KeepAlive(&rg)
	runtime.KeepAlive(&ms)
	runtime.KeepAlive(&ht)
	runtime.KeepAlive(&cl)
}

// Dispatch dispatches compute workgroups.
func (e *CommandEncoder) Dispatch(x, y, z uint32) {
	e.device.cmds.CmdDispatch(e.cmd, x, y, z)
}

// Finish ends the recording. A command that failed to record fails Finish and
// the command buffer is freed.
func (e *CommandEncoder) Finish() (hal.CommandBuffer, error) {
	err := check("vkEndCommandBuffer", e.device.cmds.EndCommandBuffer(e.cmd))
	if e.err != nil {
		err = e.err
	}
	if err != nil {
		e.device.FreeCommandBuffer(&CommandBuffer{handle: e.cmd})
		e.cmd = 0
		return nil, fmt.Errorf("vulkan: command buffer %q: %w", e.label, err)
	}
	cb := &CommandBuffer{handle: e.cmd}
	e.cmd = 0
	return cb, nil
}

// Queue is the single graphics and compute VkQueue of a device.
type Queue struct {
	device *Device
	handle vk.Queue
}

var _ hal.Queue = (*Queue)(nil)

// Submit submits one command buffer with optional semaphores and fence.
func (q *Queue) Submit(info *hal.SubmitInfo) error {
	submit := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}

	var cmd vk.CommandBuffer
	if vc, ok := info.CommandBuffer.(*CommandBuffer); ok && vc != nil {
		cmd = vc.handle
		submit.CommandBufferCount = 1
		submit.PCommandBuffers = &cmd
	}

	wait := make([]vk.Semaphore, len(info.Wait))
	waitStages := make([]vk.PipelineStageFlags, len(info.Wait))
	for i, s := range info.Wait {
		wait[i] = s.(*Semaphore).handle
		waitStages[i] = stagesToVk(info.WaitStages)
	}
	if len(wait) > 0 {
		submit.WaitSemaphoreCount = uint32(len(wait))
		submit.PWaitSemaphores = &wait[0]
		submit.PWaitDstStageMask = &waitStages[0]
	}

	signal := make([]vk.Semaphore, len(info.Signal))
	for i, s := range info.Signal {
		signal[i] = s.(*Semaphore).handle
	}
	if len(signal) > 0 {
		submit.SignalSemaphoreCount = uint32(len(signal))
		submit.PSignalSemaphores = &signal[0]
	}

	var fence vk.Fence
	if vf, ok := info.Fence.(*Fence); ok && vf != nil {
		fence = vf.handle
	}
	result := q.device.cmds.QueueSubmit(q.handle, 1, &submit, fence)
	runtime.KeepAlive(wait)
	runtime.KeepAlive(waitStages)
	runtime.KeepAlive(signal)
	return check("vkQueueSubmit", result)
}

// WaitIdle blocks until the queue is idle.
func (q *Queue) WaitIdle() error {
	return check("vkQueueWaitIdle", q.device.cmds.QueueWaitIdle(q.handle))
}

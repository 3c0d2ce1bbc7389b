package noop

import (
	"fmt"

	"github.com/gogpu/raytrace/hal"
)

// TracedByte is written to every storage image bound when rays are traced or
// a compute dispatch runs.
const TracedByte = 0x7F

// Queue implements hal.Queue. Submissions execute synchronously.
type Queue struct {
	device *Device
}

// Submit executes a command buffer on the host, then signals semaphores and the fence.
func (q *Queue) Submit(info *hal.SubmitInfo) error {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range info.Wait {
		sem := s.(*Semaphore)
		if !sem.signaled {
			return fmt.Errorf("%w: QueueSubmit: wait semaphore %d never signaled", hal.ErrHardwareCall, sem.id)
		}
	}
	var fence *Fence
	if info.Fence != nil {
		fence = info.Fence.(*Fence)
		if fence.signaled {
			return fmt.Errorf("%w: QueueSubmit: fence %d already signaled", hal.ErrHardwareCall, fence.id)
		}
	}
	for _, s := range info.Wait {
		s.(*Semaphore).signaled = false
	}

	if info.CommandBuffer != nil {
		cb := info.CommandBuffer.(*CommandBuffer)
		execute(cb)
		d.Submitted = append(d.Submitted, cb)
	}

	for _, s := range info.Signal {
		s.(*Semaphore).signaled = true
	}
	if fence != nil {
		fence.signaled = true
	}
	return nil
}

// WaitIdle returns immediately.
func (q *Queue) WaitIdle() error { return nil }

func execute(cb *CommandBuffer) {
	var bound *DescriptorSet
	for i := range cb.Commands {
		c := &cb.Commands[i]
		switch c.Op {
		case OpCopyBuffer:
			for _, r := range c.Regions {
				src := clamp(c.SrcBuffer.data, r.SrcOffset, r.Size)
				dst := clamp(c.DstBuffer.data, r.DstOffset, r.Size)
				copy(dst, src)
			}
		case OpCopyBufferToImage:
			copy(c.DstImage.data, c.SrcBuffer.data)
		case OpCopyImage:
			copy(c.DstImage.data, c.SrcImage.data)
		case OpCopyImageToBuffer:
			copy(c.DstBuffer.data, c.SrcImage.data)
		case OpBindDescriptorSet:
			bound = c.Set
		case OpTraceRays, OpDispatch:
			fillStorageImages(bound)
		}
	}
}

func fillStorageImages(set *DescriptorSet) {
	if set == nil {
		return
	}
	for _, w := range set.Writes {
		if w.Type != hal.DescriptorTypeStorageImage {
			continue
		}
		for _, img := range w.Images {
			data := img.(*Image).data
			for i := range data {
				data[i] = TracedByte
			}
		}
	}
}

func clamp(data []byte, offset, size uint64) []byte {
	n := uint64(len(data))
	if offset >= n {
		return nil
	}
	end := offset + size
	if end > n {
		end = n
	}
	return data[offset:end]
}

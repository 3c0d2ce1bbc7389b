package frame

import (
	"fmt"

	"github.com/gogpu/raytrace/hal"
)

// inFlight holds the synchronization objects of one frame in flight and the
// command buffer it last submitted.
type inFlight struct {
	fence          hal.Fence
	imageAvailable hal.Semaphore
	renderFinished hal.Semaphore

	commands hal.CommandBuffer
}

// newInFlight creates count frames in flight. Fences start signaled so the
// first wait on each returns at once.
func newInFlight(device hal.Device, count int) ([]inFlight, error) {
	frames := make([]inFlight, 0, count)
	for i := 0; i < count; i++ {
		var f inFlight
		var err error
		if f.fence, err = device.CreateFence(true); err != nil {
			destroyInFlight(device, frames)
			return nil, fmt.Errorf("frame: fence %d: %w", i, err)
		}
		frames = append(frames, f)
		last := &frames[len(frames)-1]
		if last.imageAvailable, err = device.CreateSemaphore(); err != nil {
			destroyInFlight(device, frames)
			return nil, fmt.Errorf("frame: image semaphore %d: %w", i, err)
		}
		if last.renderFinished, err = device.CreateSemaphore(); err != nil {
			destroyInFlight(device, frames)
			return nil, fmt.Errorf("frame: render semaphore %d: %w", i, err)
		}
	}
	return frames, nil
}

// destroyInFlight releases every object of frames. The device must be idle.
func destroyInFlight(device hal.Device, frames []inFlight) {
	for i := range frames {
		f := &frames[i]
		if f.commands != nil {
			device.FreeCommandBuffer(f.commands)
			f.commands = nil
		}
		if f.renderFinished != nil {
			device.DestroySemaphore(f.renderFinished)
		}
		if f.imageAvailable != nil {
			device.DestroySemaphore(f.imageAvailable)
		}
		if f.fence != nil {
			device.DestroyFence(f.fence)
		}
	}
}

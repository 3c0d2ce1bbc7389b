package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
)

// fenceTimeout bounds the host wait for a frame in flight.
const fenceTimeout = 10 * time.Second

// Info describes the frame being recorded.
type Info struct {
	ImageIndex   uint32
	Extent       gputypes.Extent3D
	Frame        uint64
	TotalSamples uint32
	Samples      uint32
}

// Renderer records frames into a Resources arena. Loop calls
// CreateSwapChainResources after every arena rebuild and
// DeleteSwapChainResources before the arena is destroyed.
type Renderer interface {
	CreateSwapChainResources(res *Resources) error
	DeleteSwapChainResources()

	// UniformData returns the uniform buffer contents for the frame.
	UniformData(info Info) []byte

	RecordFrame(enc hal.CommandEncoder, res *Resources, imageIndex uint32) error
}

// Config configures a Loop.
type Config struct {
	UniformSize  uint64
	Accumulation Accumulation
}

// Loop drives frames in flight over a swap chain. It is not safe for
// concurrent use.
type Loop struct {
	device    hal.Device
	swapChain hal.SwapChain
	renderer  Renderer

	uniformSize uint64
	acc         Accumulation

	res     *Resources
	frames  []inFlight
	current int

	// imagesInFlight holds, per presentable image, the fence of the frame
	// that last rendered into it.
	imagesInFlight []hal.Fence

	frameCount uint64
	rebuilds   int
}

// NewLoop creates the swap-chain-dependent arena, the renderer's resources
// and one frame in flight per presentable image.
func NewLoop(device hal.Device, swapChain hal.SwapChain, renderer Renderer, cfg Config) (*Loop, error) {
	l := &Loop{
		device:      device,
		swapChain:   swapChain,
		renderer:    renderer,
		uniformSize: cfg.UniformSize,
		acc:         cfg.Accumulation,
	}
	if err := l.createSwapChainResources(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loop) createSwapChainResources() error {
	res, err := NewResources(l.device, l.swapChain, l.uniformSize)
	if err != nil {
		return err
	}
	if err := l.renderer.CreateSwapChainResources(res); err != nil {
		res.Destroy()
		return err
	}
	frames, err := newInFlight(l.device, len(l.swapChain.Images()))
	if err != nil {
		l.renderer.DeleteSwapChainResources()
		res.Destroy()
		return err
	}
	l.res = res
	l.frames = frames
	l.imagesInFlight = make([]hal.Fence, len(l.swapChain.Images()))
	l.current = 0
	return nil
}

func (l *Loop) deleteSwapChainResources() {
	destroyInFlight(l.device, l.frames)
	l.frames = nil
	l.imagesInFlight = nil
	if l.res != nil {
		l.renderer.DeleteSwapChainResources()
		l.res.Destroy()
		l.res = nil
	}
}

// DrawFrame renders and presents one frame. A swap chain that needs a
// rebuild is not an error: the arena is rebuilt and the frame skipped.
// Once the sample budget is reached DrawFrame returns without rendering.
func (l *Loop) DrawFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.res == nil {
		return errors.New("frame: loop destroyed")
	}
	if l.acc.Converged() {
		return nil
	}

	f := &l.frames[l.current]
	if err := l.device.WaitFence(f.fence, fenceTimeout); err != nil {
		return fmt.Errorf("frame: wait for frame %d: %w", l.current, err)
	}
	if f.commands != nil {
		l.device.FreeCommandBuffer(f.commands)
		f.commands = nil
	}

	imageIndex, status, err := l.swapChain.AcquireNextImage(f.imageAvailable)
	if errors.Is(err, hal.ErrSwapChainOutOfDate) {
		status, err = hal.StatusOutOfDate, nil
	}
	if err != nil {
		return fmt.Errorf("frame: acquire: %w", err)
	}
	// A suboptimal image is still rendered; the present below reports it again.
	if status == hal.StatusOutOfDate {
		return l.Rebuild()
	}

	if int(imageIndex) >= len(l.imagesInFlight) {
		return fmt.Errorf("frame: acquired image %d of %d", imageIndex, len(l.imagesInFlight))
	}
	// Images may come back out of order. The uniform buffer and descriptor
	// set of the image belong to whichever frame rendered it last.
	if owner := l.imagesInFlight[imageIndex]; owner != nil && owner != f.fence {
		if err := l.device.WaitFence(owner, fenceTimeout); err != nil {
			return fmt.Errorf("frame: wait for image %d: %w", imageIndex, err)
		}
	}

	l.acc.advance()
	info := Info{
		ImageIndex:   imageIndex,
		Extent:       l.res.extent,
		Frame:        l.frameCount,
		TotalSamples: l.acc.TotalSamples,
		Samples:      l.acc.SamplesPerPixel,
	}
	if err := l.res.WriteUniform(imageIndex, l.renderer.UniformData(info)); err != nil {
		return err
	}

	enc, err := l.device.CreateCommandEncoder(fmt.Sprintf("Frame #%d", l.current))
	if err != nil {
		return err
	}
	if err := l.renderer.RecordFrame(enc, l.res, imageIndex); err != nil {
		if cb, ferr := enc.Finish(); ferr == nil {
			l.device.FreeCommandBuffer(cb)
		}
		return err
	}
	cb, err := enc.Finish()
	if err != nil {
		return err
	}
	f.commands = cb

	// The fence is reset only once there is a submission to signal it.
	if err := l.device.ResetFence(f.fence); err != nil {
		return err
	}
	l.imagesInFlight[imageIndex] = f.fence
	err = l.device.Queue().Submit(&hal.SubmitInfo{
		CommandBuffer: cb,
		Wait:          []hal.Semaphore{f.imageAvailable},
		WaitStages:    hal.StageRayTracingShader | hal.StageComputeShader | hal.StageTransfer,
		Signal:        []hal.Semaphore{f.renderFinished},
		Fence:         f.fence,
	})
	if err != nil {
		l.imagesInFlight[imageIndex] = nil
		l.resignal(f)
		return fmt.Errorf("frame: submit: %w", err)
	}

	status, err = l.swapChain.Present(imageIndex, f.renderFinished)
	if errors.Is(err, hal.ErrSwapChainOutOfDate) {
		status, err = hal.StatusOutOfDate, nil
	}
	if err != nil {
		return fmt.Errorf("frame: present: %w", err)
	}

	l.frameCount++
	l.current = (l.current + 1) % len(l.frames)

	if status.NeedsRebuild() {
		return l.Rebuild()
	}
	return nil
}

// resignal swaps the fence of a frame whose submission failed for a signaled
// one, so the next wait on the frame does not block.
func (l *Loop) resignal(f *inFlight) {
	fence, err := l.device.CreateFence(true)
	if err != nil {
		hal.Logger().Error("frame: replace fence", "err", err)
		return
	}
	l.device.DestroyFence(f.fence)
	f.fence = fence
}

// Rebuild waits for the device, recreates the swap chain and rebuilds every
// swap-chain-dependent resource. Accumulated samples are discarded.
func (l *Loop) Rebuild() error {
	if err := l.device.WaitIdle(); err != nil {
		return err
	}
	l.deleteSwapChainResources()
	if err := l.swapChain.Recreate(); err != nil {
		return fmt.Errorf("frame: recreate swap chain: %w", err)
	}
	if err := l.createSwapChainResources(); err != nil {
		return err
	}
	l.acc.Reset()
	l.rebuilds++

	extent := l.swapChain.Extent()
	hal.Logger().Warn("frame: swap chain rebuilt",
		"width", extent.Width,
		"height", extent.Height,
		"rebuilds", l.rebuilds)
	return nil
}

// ResetAccumulation discards the accumulated samples before the next frame.
func (l *Loop) ResetAccumulation() { l.acc.Reset() }

// SetAccumulation replaces the sampling parameters. The accumulated samples
// are kept unless a reset is requested separately.
func (l *Loop) SetAccumulation(enabled bool, samplesPerPixel, maxSamples uint32) {
	l.acc.Enabled = enabled
	l.acc.SamplesPerPixel = samplesPerPixel
	l.acc.MaxSamples = maxSamples
}

// Accumulation returns the current accumulation state.
func (l *Loop) Accumulation() Accumulation { return l.acc }

// Converged reports whether the sample budget has been reached.
func (l *Loop) Converged() bool { return l.acc.Converged() }

// Resources returns the current swap-chain-dependent arena.
func (l *Loop) Resources() *Resources { return l.res }

// Frames returns the number of frames presented.
func (l *Loop) Frames() uint64 { return l.frameCount }

// Rebuilds returns the number of swap chain rebuilds.
func (l *Loop) Rebuilds() int { return l.rebuilds }

// Destroy waits for the device and releases the arena, the renderer's
// swap-chain resources and the frames in flight. The swap chain itself is
// left to its owner.
func (l *Loop) Destroy() {
	if l.res == nil {
		return
	}
	if err := l.device.WaitIdle(); err != nil {
		hal.Logger().Warn("frame: wait idle before destroy", "err", err)
	}
	l.deleteSwapChainResources()
}

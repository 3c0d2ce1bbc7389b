package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
)

// AccumulationFormat is the format of the accumulation image.
const AccumulationFormat = gputypes.TextureFormatRGBA32Float

// Resources is the arena of swap-chain-dependent resources. It is rebuilt as
// a unit whenever the swap chain is.
type Resources struct {
	device    hal.Device
	swapChain hal.SwapChain

	extent gputypes.Extent3D
	format gputypes.TextureFormat

	accumulation hal.Image
	output       hal.Image
	uniforms     []hal.Buffer
}

// NewResources creates the accumulation and output images at the swap chain
// extent and one host-visible uniform buffer of uniformSize bytes per
// presentable image.
func NewResources(device hal.Device, swapChain hal.SwapChain, uniformSize uint64) (*Resources, error) {
	if uniformSize == 0 {
		return nil, errors.New("frame: uniform buffer size is zero")
	}
	r := &Resources{
		device:    device,
		swapChain: swapChain,
		extent:    swapChain.Extent(),
		format:    swapChain.Format(),
	}
	if err := r.create(uniformSize); err != nil {
		r.Destroy()
		return nil, err
	}
	hal.Logger().Debug("frame: resources created",
		"width", r.extent.Width,
		"height", r.extent.Height,
		"format", r.format,
		"uniforms", len(r.uniforms))
	return r, nil
}

func (r *Resources) create(uniformSize uint64) error {
	var err error
	r.accumulation, err = r.device.CreateImage(&hal.ImageDescriptor{
		Label:  "Accumulation Image",
		Extent: r.extent,
		Format: AccumulationFormat,
		Usage:  hal.ImageUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("frame: accumulation image: %w", err)
	}

	r.output, err = r.device.CreateImage(&hal.ImageDescriptor{
		Label:  "Output Image",
		Extent: r.extent,
		Format: r.format,
		Usage:  hal.ImageUsageStorage | hal.ImageUsageTransferSrc,
	})
	if err != nil {
		return fmt.Errorf("frame: output image: %w", err)
	}

	for i := range r.swapChain.Images() {
		buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
			Label:  fmt.Sprintf("Uniform Buffer #%d", i),
			Size:   uniformSize,
			Usage:  hal.BufferUsageUniform,
			Memory: hal.MemoryHostVisible,
		})
		if err != nil {
			return fmt.Errorf("frame: uniform buffer %d: %w", i, err)
		}
		r.uniforms = append(r.uniforms, buf)
	}
	return nil
}

// Extent returns the size shared by the output images and the swap chain.
func (r *Resources) Extent() gputypes.Extent3D { return r.extent }

// Format returns the output image format.
func (r *Resources) Format() gputypes.TextureFormat { return r.format }

// AccumulationImage returns the RGBA32 float accumulation image.
func (r *Resources) AccumulationImage() hal.Image { return r.accumulation }

// OutputImage returns the image copied to the swap chain every frame.
func (r *Resources) OutputImage() hal.Image { return r.output }

// UniformBuffers returns one uniform buffer per presentable image.
func (r *Resources) UniformBuffers() []hal.Buffer { return r.uniforms }

// SwapChainImage returns presentable image i.
func (r *Resources) SwapChainImage(i uint32) hal.Image { return r.swapChain.Images()[i] }

// WriteUniform copies data into uniform buffer i.
func (r *Resources) WriteUniform(i uint32, data []byte) error {
	if int(i) >= len(r.uniforms) {
		return fmt.Errorf("frame: uniform buffer %d out of range", i)
	}
	buf := r.uniforms[i]
	if uint64(len(data)) > buf.Size() {
		return fmt.Errorf("frame: uniform data is %d bytes, buffer holds %d", len(data), buf.Size())
	}
	mapped, err := r.device.MapBuffer(buf)
	if err != nil {
		return err
	}
	copy(mapped, data)
	r.device.UnmapBuffer(buf)
	return nil
}

// Destroy releases the uniform buffers and both images. It is safe to call
// on a partially created arena.
func (r *Resources) Destroy() {
	for i := len(r.uniforms) - 1; i >= 0; i-- {
		r.device.DestroyBuffer(r.uniforms[i])
	}
	r.uniforms = nil
	if r.output != nil {
		r.device.DestroyImage(r.output)
		r.output = nil
	}
	if r.accumulation != nil {
		r.device.DestroyImage(r.accumulation)
		r.accumulation = nil
	}
}

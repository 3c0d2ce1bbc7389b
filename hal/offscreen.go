package hal

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
)

// presentTimeout bounds the wait for an offscreen read back.
const presentTimeout = 10 * time.Second

// OffscreenDescriptor describes an offscreen swap chain.
type OffscreenDescriptor struct {
	Width      uint32
	Height     uint32
	Format     gputypes.TextureFormat
	ImageCount int
}

// OffscreenSwapChain is a headless SwapChain. Presenting an image reads it back
// into host memory, where LastFrame exposes it.
//
// OffscreenSwapChain is safe for concurrent use.
type OffscreenSwapChain struct {
	mu sync.Mutex

	device   Device
	desc     OffscreenDescriptor
	images   []Image
	readback Buffer
	next     uint32

	// pending holds a size requested by Resize that the images do not have yet.
	pending *gputypes.Extent3D

	frame *image.RGBA
}

// NewOffscreenSwapChain creates the presentable images and the read back buffer.
func NewOffscreenSwapChain(device Device, desc OffscreenDescriptor) (*OffscreenSwapChain, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, errors.New("hal: offscreen swap chain needs a non-zero extent")
	}
	if desc.ImageCount <= 0 {
		desc.ImageCount = 2
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if desc.Format != gputypes.TextureFormatRGBA8Unorm && desc.Format != gputypes.TextureFormatBGRA8Unorm {
		return nil, fmt.Errorf("hal: offscreen swap chain format %s not supported", desc.Format)
	}

	s := &OffscreenSwapChain{device: device, desc: desc}
	if err := s.createImages(); err != nil {
		s.destroyImages()
		return nil, err
	}
	return s, nil
}

func (s *OffscreenSwapChain) createImages() error {
	extent := gputypes.NewExtent2D(s.desc.Width, s.desc.Height)
	for i := 0; i < s.desc.ImageCount; i++ {
		img, err := s.device.CreateImage(&ImageDescriptor{
			Label:  fmt.Sprintf("Offscreen Image #%d", i),
			Extent: extent,
			Format: s.desc.Format,
			Usage:  ImageUsageTransferDst | ImageUsageTransferSrc,
		})
		if err != nil {
			return err
		}
		s.images = append(s.images, img)
	}

	rb, err := s.device.CreateBuffer(&BufferDescriptor{
		Label:  "Offscreen Readback",
		Size:   uint64(s.desc.Width) * uint64(s.desc.Height) * 4,
		Usage:  BufferUsageTransferDst,
		Memory: MemoryHostVisible,
	})
	if err != nil {
		return err
	}
	s.readback = rb

	return SubmitSingleTime(s.device, "Offscreen Init", func(enc CommandEncoder) error {
		for _, img := range s.images {
			if err := RecordTransition(enc, img, ImageLayoutUndefined, ImageLayoutPresentSrc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *OffscreenSwapChain) destroyImages() {
	for _, img := range s.images {
		s.device.DestroyImage(img)
	}
	s.images = nil
	if s.readback != nil {
		s.device.DestroyBuffer(s.readback)
		s.readback = nil
	}
	s.next = 0
}

// Extent returns the size of the presentable images.
func (s *OffscreenSwapChain) Extent() gputypes.Extent3D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gputypes.NewExtent2D(s.desc.Width, s.desc.Height)
}

// Format returns the format of the presentable images.
func (s *OffscreenSwapChain) Format() gputypes.TextureFormat { return s.desc.Format }

// Images returns the presentable images.
func (s *OffscreenSwapChain) Images() []Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images
}

// Resize requests a new extent. The next acquire reports StatusOutOfDate.
func (s *OffscreenSwapChain) Resize(width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.desc.Width && height == s.desc.Height {
		s.pending = nil
		return
	}
	e := gputypes.NewExtent2D(width, height)
	s.pending = &e
}

// AcquireNextImage returns images in round-robin order.
func (s *OffscreenSwapChain) AcquireNextImage(signal Semaphore) (uint32, SurfaceStatus, error) {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return 0, StatusOutOfDate, nil
	}
	index := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	s.mu.Unlock()

	var sig []Semaphore
	if signal != nil {
		sig = []Semaphore{signal}
	}
	if err := s.device.Queue().Submit(&SubmitInfo{Signal: sig}); err != nil {
		return 0, StatusOptimal, fmt.Errorf("offscreen acquire: %w", err)
	}
	return index, StatusOptimal, nil
}

// Present reads image index back into host memory once wait is signaled.
func (s *OffscreenSwapChain) Present(index uint32, wait Semaphore) (SurfaceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(index) >= len(s.images) {
		return StatusOptimal, fmt.Errorf("hal: present index %d out of range", index)
	}
	img := s.images[index]
	extent := gputypes.NewExtent2D(s.desc.Width, s.desc.Height)

	enc, err := s.device.CreateCommandEncoder("Offscreen Present")
	if err != nil {
		return StatusOptimal, err
	}
	if err := RecordTransition(enc, img, ImageLayoutPresentSrc, ImageLayoutTransferSrc); err != nil {
		return StatusOptimal, err
	}
	enc.CopyImageToBuffer(img, ImageLayoutTransferSrc, s.readback, extent)
	if err := RecordTransition(enc, img, ImageLayoutTransferSrc, ImageLayoutPresentSrc); err != nil {
		return StatusOptimal, err
	}
	cb, err := enc.Finish()
	if err != nil {
		return StatusOptimal, err
	}
	defer s.device.FreeCommandBuffer(cb)

	fence, err := s.device.CreateFence(false)
	if err != nil {
		return StatusOptimal, err
	}
	defer s.device.DestroyFence(fence)

	var waits []Semaphore
	if wait != nil {
		waits = []Semaphore{wait}
	}
	err = s.device.Queue().Submit(&SubmitInfo{
		CommandBuffer: cb,
		Wait:          waits,
		WaitStages:    StageTransfer,
		Fence:         fence,
	})
	if err != nil {
		return StatusOptimal, fmt.Errorf("offscreen present: %w", err)
	}
	if err := s.device.WaitFence(fence, presentTimeout); err != nil {
		return StatusOptimal, fmt.Errorf("offscreen present: %w", err)
	}

	pixels, err := s.device.MapBuffer(s.readback)
	if err != nil {
		return StatusOptimal, err
	}
	frame := image.NewRGBA(image.Rect(0, 0, int(s.desc.Width), int(s.desc.Height)))
	copy(frame.Pix, pixels)
	s.device.UnmapBuffer(s.readback)

	if s.desc.Format == gputypes.TextureFormatBGRA8Unorm {
		for i := 0; i+3 < len(frame.Pix); i += 4 {
			frame.Pix[i], frame.Pix[i+2] = frame.Pix[i+2], frame.Pix[i]
		}
	}
	s.frame = frame

	if s.pending != nil {
		return StatusSuboptimal, nil
	}
	return StatusOptimal, nil
}

// LastFrame returns the most recently presented image, or nil before the first present.
func (s *OffscreenSwapChain) LastFrame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Recreate applies a pending Resize.
func (s *OffscreenSwapChain) Recreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.destroyImages()
	if s.pending != nil {
		s.desc.Width = s.pending.Width
		s.desc.Height = s.pending.Height
		s.pending = nil
	}
	Logger().Info("hal: offscreen swap chain recreated", "width", s.desc.Width, "height", s.desc.Height)
	return s.createImages()
}

// Destroy releases the images and the read back buffer.
func (s *OffscreenSwapChain) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyImages()
}

package hal

import "github.com/gogpu/gputypes"

// SurfaceStatus reports how well the swap chain still matches its surface.
type SurfaceStatus uint8

// Surface statuses.
const (
	StatusOptimal SurfaceStatus = iota
	// StatusSuboptimal means the image can still be used but the chain should be rebuilt.
	StatusSuboptimal
	// StatusOutOfDate means the chain must be rebuilt before it can be used again.
	StatusOutOfDate
)

// String returns the status name.
func (s SurfaceStatus) String() string {
	switch s {
	case StatusOptimal:
		return "Optimal"
	case StatusSuboptimal:
		return "Suboptimal"
	case StatusOutOfDate:
		return "OutOfDate"
	default:
		return "Unknown"
	}
}

// NeedsRebuild reports whether the status requests swap chain recreation.
func (s SurfaceStatus) NeedsRebuild() bool { return s != StatusOptimal }

// SwapChain is the set of presentable images.
type SwapChain interface {
	// Extent returns the size of the presentable images.
	Extent() gputypes.Extent3D

	// Format returns the format of the presentable images.
	Format() gputypes.TextureFormat

	// Images returns the presentable images, indexed by acquire index.
	Images() []Image

	// AcquireNextImage returns the index of the next image and signals signal
	// once it is ready to be written.
	AcquireNextImage(signal Semaphore) (uint32, SurfaceStatus, error)

	// Present presents image index after wait is signaled.
	Present(index uint32, wait Semaphore) (SurfaceStatus, error)

	// Recreate rebuilds the images at the current surface size.
	// The device must be idle.
	Recreate() error

	// Destroy releases the swap chain images.
	Destroy()
}

package hal

import "errors"

// Errors shared by every backend. All of them are unrecoverable at the point
// they occur: the current build or frame setup is aborted.
var (
	// ErrHardwareCall is returned when a device call reports a non-success status.
	// Backends wrap it with the call name and the native result code.
	ErrHardwareCall = errors.New("hal: hardware call failed")

	// ErrUnsupportedLayoutTransition is returned for an image barrier between
	// two layouts that have no known access mask pairing.
	ErrUnsupportedLayoutTransition = errors.New("hal: unsupported image layout transition")

	// ErrMissingDescriptorBinding is returned when a descriptor write targets a
	// binding the set layout never declared.
	ErrMissingDescriptorBinding = errors.New("hal: descriptor binding not declared in layout")

	// ErrMissingEntryPoint is returned at device creation when a required
	// ray-tracing entry point cannot be resolved.
	ErrMissingEntryPoint = errors.New("hal: required entry point not available")

	// ErrBackendNotFound indicates the requested backend is not registered.
	ErrBackendNotFound = errors.New("hal: backend not found")

	// ErrNotHostVisible is returned when mapping a buffer allocated in device-local memory.
	ErrNotHostVisible = errors.New("hal: buffer is not host visible")

	// ErrSwapChainOutOfDate signals that the presentable surface no longer matches
	// the swap chain. It is a rebuild request, not a failure.
	ErrSwapChainOutOfDate = errors.New("hal: swap chain out of date")

	// ErrTimeout indicates a fence wait timed out.
	ErrTimeout = errors.New("hal: timeout")
)

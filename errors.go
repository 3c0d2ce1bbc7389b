package raytrace

import (
	"errors"

	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/hal"
)

// Errors reported by the renderer. Each is matched with errors.Is; the
// sub-package errors are the same values.
var (
	// ErrHardwareCall is returned when a device call reports a non-success status.
	ErrHardwareCall = hal.ErrHardwareCall

	// ErrUnsupportedLayoutTransition is returned for an image layout change
	// the renderer has no barrier for.
	ErrUnsupportedLayoutTransition = hal.ErrUnsupportedLayoutTransition

	// ErrMissingDescriptorBinding is returned when a descriptor write targets
	// a binding the layout never declared.
	ErrMissingDescriptorBinding = hal.ErrMissingDescriptorBinding

	// ErrMissingEntryPoint is returned when the device lacks ray tracing.
	ErrMissingEntryPoint = hal.ErrMissingEntryPoint

	// ErrResultOffsetAlignment is returned for a structure placed at an
	// offset that is not a multiple of 256 bytes.
	ErrResultOffsetAlignment = accel.ErrResultOffsetAlignment

	// ErrSwapChainOutOfDate requests a swap chain rebuild.
	ErrSwapChainOutOfDate = hal.ErrSwapChainOutOfDate
)

var (
	// ErrInvalidSettings is returned by Settings.Validate.
	ErrInvalidSettings = errors.New("raytrace: invalid settings")

	// ErrUnknownRenderMode is returned when parsing an unknown render mode.
	ErrUnknownRenderMode = errors.New("raytrace: unknown render mode")

	// ErrUnknownScene is returned when a scene name or index is not registered.
	ErrUnknownScene = errors.New("raytrace: unknown scene")
)

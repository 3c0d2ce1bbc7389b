package accel

import "errors"

var (
	// ErrResultOffsetAlignment is returned by Generate when the result offset
	// is not a multiple of ResultAlignment.
	ErrResultOffsetAlignment = errors.New("accel: result offset must be a multiple of 256 bytes")

	// ErrNotGenerated is returned when the address of a structure is requested
	// before Generate created it.
	ErrNotGenerated = errors.New("accel: structure not generated")

	// ErrNoRayTracing is returned when the device was opened without the
	// ray-tracing capability.
	ErrNoRayTracing = errors.New("accel: device has no ray-tracing capability")
)

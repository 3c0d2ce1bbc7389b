package accel

import (
	"fmt"

	"github.com/gogpu/raytrace/hal"
)

// ResultAlignment is the required alignment of a structure inside its result buffer.
const ResultAlignment = 256

// RoundUp rounds size up to a multiple of granularity.
func RoundUp(size, granularity uint64) uint64 {
	if granularity == 0 {
		return size
	}
	return (size + granularity - 1) / granularity * granularity
}

// structure is the state shared by bottom- and top-level structures.
type structure struct {
	label  string
	rt     hal.RayTracing
	info   hal.BuildGeometryInfo
	ranges []hal.BuildRange
	sizes  hal.BuildSizes

	handle hal.AccelerationStructure
}

func newStructure(rt hal.RayTracing, label string, typ hal.AccelerationStructureType, geometries []hal.Geometry, ranges []hal.BuildRange) (structure, error) {
	s := structure{
		label: label,
		rt:    rt,
		info: hal.BuildGeometryInfo{
			Type:       typ,
			Flags:      hal.BuildPreferFastTrace,
			Mode:       hal.BuildModeBuild,
			Geometries: geometries,
		},
		ranges: ranges,
	}

	counts := make([]uint32, len(ranges))
	for i, r := range ranges {
		counts[i] = r.PrimitiveCount
	}
	raw, err := rt.BuildSizes(&s.info, counts)
	if err != nil {
		return s, fmt.Errorf("accel: %s build sizes: %w", label, err)
	}
	scratchAlign := uint64(rt.Properties().MinScratchOffsetAlignment)
	s.sizes = hal.BuildSizes{
		AccelerationStructureSize: RoundUp(raw.AccelerationStructureSize, ResultAlignment),
		BuildScratchSize:          RoundUp(raw.BuildScratchSize, scratchAlign),
		UpdateScratchSize:         RoundUp(raw.UpdateScratchSize, scratchAlign),
	}
	return s, nil
}

// BuildSizes returns the aligned memory requirements.
func (s *structure) BuildSizes() hal.BuildSizes { return s.sizes }

// Label returns the debug label the structure is created with.
func (s *structure) Label() string { return s.label }

// SetLabel changes the debug label. It has no effect after Generate.
func (s *structure) SetLabel(label string) { s.label = label }

// Handle returns the structure, or nil before Generate.
func (s *structure) Handle() hal.AccelerationStructure { return s.handle }

// Address returns the device address of the generated structure.
func (s *structure) Address() (uint64, error) {
	if s.handle == nil {
		return 0, ErrNotGenerated
	}
	return s.rt.AccelerationStructureAddress(s.handle), nil
}

// generate creates the structure at resultOffset and records its build.
func (s *structure) generate(enc hal.CommandEncoder, scratch hal.Buffer, scratchOffset uint64, result hal.Buffer, resultOffset uint64) error {
	label := s.label
	if resultOffset%ResultAlignment != 0 {
		return fmt.Errorf("%w: %s at offset %d", ErrResultOffsetAlignment, label, resultOffset)
	}
	if s.handle != nil {
		return fmt.Errorf("accel: %s already generated", label)
	}

	as, err := s.rt.CreateAccelerationStructure(&hal.AccelerationStructureDescriptor{
		Label:  label,
		Type:   s.info.Type,
		Buffer: result,
		Offset: resultOffset,
		Size:   s.sizes.AccelerationStructureSize,
	})
	if err != nil {
		return fmt.Errorf("accel: create %s: %w", label, err)
	}
	s.handle = as

	s.info.Destination = as
	s.info.ScratchAddress = scratch.DeviceAddress() + scratchOffset
	enc.BuildAccelerationStructure(&s.info, s.ranges)
	return nil
}

// Release destroys the structure. The result buffer is untouched and must be
// destroyed afterwards by its owner.
func (s *structure) Release() {
	if s.handle == nil {
		return
	}
	s.rt.DestroyAccelerationStructure(s.handle)
	s.handle = nil
	s.info.Destination = nil
}

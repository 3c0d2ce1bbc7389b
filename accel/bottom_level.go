package accel

import "github.com/gogpu/raytrace/hal"

// BottomLevel is the acceleration structure of one model.
type BottomLevel struct {
	structure
	geometry *GeometryDescriptor
}

// NewBottomLevel describes a bottom-level structure over every entry of geometry
// and queries its build sizes. No GPU object is created yet.
func NewBottomLevel(rt hal.RayTracing, geometry *GeometryDescriptor) (*BottomLevel, error) {
	s, err := newStructure(rt, "BLAS", hal.BottomLevel, geometry.Geometries(), geometry.Ranges())
	if err != nil {
		return nil, err
	}
	return &BottomLevel{structure: s, geometry: geometry}, nil
}

// Geometry returns the geometry the structure was described with.
func (b *BottomLevel) Geometry() *GeometryDescriptor { return b.geometry }

// Generate creates the structure in result at resultOffset and records one build
// command covering every geometry entry, using scratch memory at scratchOffset.
// resultOffset must be a multiple of ResultAlignment.
func (b *BottomLevel) Generate(enc hal.CommandEncoder, scratch hal.Buffer, scratchOffset uint64, result hal.Buffer, resultOffset uint64) error {
	return b.generate(enc, scratch, scratchOffset, result, resultOffset)
}

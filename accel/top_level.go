package accel

import "github.com/gogpu/raytrace/hal"

// TopLevel is the scene-wide structure over the instance array.
type TopLevel struct {
	structure
	instanceCount uint32
}

// NewTopLevel describes a top-level structure over instanceCount records
// uploaded at instanceAddress and queries its build sizes.
func NewTopLevel(rt hal.RayTracing, instanceAddress uint64, instanceCount uint32) (*TopLevel, error) {
	geometries := []hal.Geometry{{
		Kind:      hal.GeometryInstances,
		Instances: hal.InstancesData{Data: instanceAddress},
	}}
	ranges := []hal.BuildRange{{PrimitiveCount: instanceCount}}
	s, err := newStructure(rt, "TLAS", hal.TopLevel, geometries, ranges)
	if err != nil {
		return nil, err
	}
	return &TopLevel{structure: s, instanceCount: instanceCount}, nil
}

// InstanceCount returns the number of instances.
func (t *TopLevel) InstanceCount() uint32 { return t.instanceCount }

// Generate creates the structure in result at resultOffset and records its build.
func (t *TopLevel) Generate(enc hal.CommandEncoder, scratch hal.Buffer, scratchOffset uint64, result hal.Buffer, resultOffset uint64) error {
	return t.generate(enc, scratch, scratchOffset, result, resultOffset)
}

package noop

import (
	"fmt"

	"github.com/gogpu/raytrace/hal"
)

// Fake build sizes are deliberately not multiples of any alignment so callers
// are forced to round them.
const (
	structureBase   = 1000
	structurePerPrm = 64
	scratchBase     = 333
	scratchPerPrm   = 40
	updateBase      = 111
	updatePerPrm    = 20
)

// RayTracing implements hal.RayTracing.
type RayTracing struct {
	device *Device
	props  hal.RayTracingProperties
}

// Properties returns the configured limits.
func (r *RayTracing) Properties() hal.RayTracingProperties { return r.props }

// BuildSizes returns sizes that grow linearly with the total primitive count.
func (r *RayTracing) BuildSizes(info *hal.BuildGeometryInfo, maxPrimitiveCounts []uint32) (hal.BuildSizes, error) {
	r.device.mu.Lock()
	err := r.device.fault("BuildSizes")
	r.device.mu.Unlock()
	if err != nil {
		return hal.BuildSizes{}, err
	}

	var p uint64
	for _, n := range maxPrimitiveCounts {
		p += uint64(n)
	}
	return hal.BuildSizes{
		AccelerationStructureSize: structureBase + structurePerPrm*p,
		BuildScratchSize:          scratchBase + scratchPerPrm*p,
		UpdateScratchSize:         updateBase + updatePerPrm*p,
	}, nil
}

// CreateAccelerationStructure validates the placement of the structure.
func (r *RayTracing) CreateAccelerationStructure(desc *hal.AccelerationStructureDescriptor) (hal.AccelerationStructure, error) {
	d := r.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault("CreateAccelerationStructure"); err != nil {
		return nil, err
	}
	buf, ok := desc.Buffer.(*Buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("%w: CreateAccelerationStructure %q: no buffer", hal.ErrHardwareCall, desc.Label)
	}
	if !buf.desc.Usage.Contains(hal.BufferUsageAccelerationStructureStorage) {
		return nil, fmt.Errorf("%w: CreateAccelerationStructure %q: buffer %q lacks storage usage",
			hal.ErrHardwareCall, desc.Label, buf.desc.Label)
	}
	if desc.Offset%256 != 0 {
		return nil, fmt.Errorf("%w: CreateAccelerationStructure %q: offset %d not 256-byte aligned",
			hal.ErrHardwareCall, desc.Label, desc.Offset)
	}
	if desc.Offset+desc.Size > buf.desc.Size {
		return nil, fmt.Errorf("%w: CreateAccelerationStructure %q: range [%d, %d) exceeds buffer size %d",
			hal.ErrHardwareCall, desc.Label, desc.Offset, desc.Offset+desc.Size, buf.desc.Size)
	}

	return &AccelerationStructure{
		handle:  handle{d.track("AccelerationStructure", desc.Label)},
		Desc:    *desc,
		address: buf.base + desc.Offset,
	}, nil
}

// DestroyAccelerationStructure releases a structure.
func (r *RayTracing) DestroyAccelerationStructure(as hal.AccelerationStructure) {
	d := r.device
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(as.NativeHandle())
}

// AccelerationStructureAddress returns the buffer address plus the offset.
func (r *RayTracing) AccelerationStructureAddress(as hal.AccelerationStructure) uint64 {
	return as.(*AccelerationStructure).address
}

// CreateRayTracingPipeline checks that every group references valid stages.
func (r *RayTracing) CreateRayTracingPipeline(desc *hal.RayTracingPipelineDescriptor) (hal.Pipeline, error) {
	d := r.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault("CreateRayTracingPipeline"); err != nil {
		return nil, err
	}
	if desc.MaxRecursionDepth > r.props.MaxRayRecursionDepth {
		return nil, fmt.Errorf("%w: CreateRayTracingPipeline %q: recursion depth %d exceeds %d",
			hal.ErrHardwareCall, desc.Label, desc.MaxRecursionDepth, r.props.MaxRayRecursionDepth)
	}
	n := uint32(len(desc.Stages))
	valid := func(i uint32) bool { return i == hal.ShaderUnused || i < n }
	for gi, g := range desc.Groups {
		if !valid(g.General) || !valid(g.ClosestHit) || !valid(g.AnyHit) || !valid(g.Intersection) {
			return nil, fmt.Errorf("%w: CreateRayTracingPipeline %q: group %d references a missing stage",
				hal.ErrHardwareCall, desc.Label, gi)
		}
		if g.Kind == hal.ShaderGroupProceduralHit && g.Intersection == hal.ShaderUnused {
			return nil, fmt.Errorf("%w: CreateRayTracingPipeline %q: procedural group %d has no intersection shader",
				hal.ErrHardwareCall, desc.Label, gi)
		}
	}

	c := *desc
	c.Stages = append([]hal.PipelineStage(nil), desc.Stages...)
	c.Groups = append([]hal.ShaderGroup(nil), desc.Groups...)
	return &Pipeline{
		handle:     handle{d.track("Pipeline", desc.Label)},
		Label:      desc.Label,
		RayTracing: &c,
	}, nil
}

// ShaderGroupHandles returns handles filled with 0xA0 plus the group index.
func (r *RayTracing) ShaderGroupHandles(p hal.Pipeline, firstGroup, groupCount uint32) ([]byte, error) {
	pl := p.(*Pipeline)
	if pl.RayTracing == nil {
		return nil, fmt.Errorf("%w: GetRayTracingShaderGroupHandles: not a ray-tracing pipeline", hal.ErrHardwareCall)
	}
	if uint64(firstGroup)+uint64(groupCount) > uint64(len(pl.RayTracing.Groups)) {
		return nil, fmt.Errorf("%w: GetRayTracingShaderGroupHandles: groups [%d, %d) out of range",
			hal.ErrHardwareCall, firstGroup, firstGroup+groupCount)
	}
	size := r.props.ShaderGroupHandleSize
	out := make([]byte, groupCount*size)
	for g := uint32(0); g < groupCount; g++ {
		for i := uint32(0); i < size; i++ {
			out[g*size+i] = HandleByte(firstGroup + g)
		}
	}
	return out, nil
}

// HandleByte is the byte every handle of group fills with.
func HandleByte(group uint32) byte { return byte(0xA0 + group) }

package rtpipeline

import (
	"fmt"

	"github.com/gogpu/raytrace/hal"
)

// Entry is one shader binding table record.
type Entry struct {
	GroupIndex uint32

	// InlineData is copied after the group handle and read by the shader as
	// its shader record.
	InlineData []byte
}

// region is the placement of one table region.
type region struct {
	offset uint64
	stride uint64
	count  uint64
}

func (r region) size() uint64 { return r.count * r.stride }

// ShaderBindingTable maps shader groups to records in a host-visible buffer.
type ShaderBindingTable struct {
	device hal.Device
	buffer hal.Buffer

	raygen, miss, hit region
}

// DefaultEntries returns the raygen, miss and hit group records of the pipeline.
func DefaultEntries() (raygen, miss, hit []Entry) {
	return []Entry{{GroupIndex: RaygenGroup}},
		[]Entry{{GroupIndex: MissGroup}},
		[]Entry{{GroupIndex: TriangleHitGroup}, {GroupIndex: ProceduralHitGroup}}
}

// entryStride returns RoundUp(handleSize + largest inline data, baseAlignment).
func entryStride(props hal.RayTracingProperties, entries []Entry) uint64 {
	var maxInline int
	for _, e := range entries {
		maxInline = max(maxInline, len(e.InlineData))
	}
	size := uint64(props.ShaderGroupHandleSize) + uint64(maxInline)
	align := uint64(props.ShaderGroupBaseAlignment)
	return (size + align - 1) / align * align
}

// NewShaderBindingTable lays out the three regions, queries every group handle
// of p once and writes all records in one pass.
func NewShaderBindingTable(device hal.Device, p *Pipeline, raygen, miss, hit []Entry) (*ShaderBindingTable, error) {
	rt := device.RayTracing()
	if rt == nil {
		return nil, fmt.Errorf("%w: ray tracing", hal.ErrMissingEntryPoint)
	}
	props := rt.Properties()

	t := &ShaderBindingTable{device: device}
	t.raygen = region{offset: 0, stride: entryStride(props, raygen), count: uint64(len(raygen))}
	t.miss = region{offset: t.raygen.size(), stride: entryStride(props, miss), count: uint64(len(miss))}
	t.hit = region{offset: t.miss.offset + t.miss.size(), stride: entryStride(props, hit), count: uint64(len(hit))}

	for _, r := range []region{t.raygen, t.miss, t.hit} {
		if r.stride > uint64(props.MaxShaderGroupStride) {
			return nil, fmt.Errorf("%w: shader binding table stride %d exceeds device maximum %d",
				hal.ErrHardwareCall, r.stride, props.MaxShaderGroupStride)
		}
	}

	groups := p.GroupCount()
	handleSize := uint64(props.ShaderGroupHandleSize)
	handles, err := rt.ShaderGroupHandles(p.Handle(), 0, groups)
	if err != nil {
		return nil, fmt.Errorf("rtpipeline: shader group handles: %w", err)
	}

	size := t.hit.offset + t.hit.size()
	t.buffer, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label:  "Shader Binding Table",
		Size:   size,
		Usage:  hal.BufferUsageShaderDeviceAddress | hal.BufferUsageTransferSrc | hal.BufferUsageShaderBindingTable,
		Memory: hal.MemoryHostVisible,
	})
	if err != nil {
		return nil, fmt.Errorf("rtpipeline: shader binding table buffer: %w", err)
	}

	mapped, err := device.MapBuffer(t.buffer)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	for _, part := range []struct {
		r       region
		entries []Entry
	}{{t.raygen, raygen}, {t.miss, miss}, {t.hit, hit}} {
		for i, e := range part.entries {
			if e.GroupIndex >= groups {
				device.UnmapBuffer(t.buffer)
				t.Destroy()
				return nil, fmt.Errorf("rtpipeline: shader binding table entry references group %d of %d", e.GroupIndex, groups)
			}
			dst := mapped[part.r.offset+uint64(i)*part.r.stride : part.r.offset+uint64(i+1)*part.r.stride]
			n := copy(dst, handles[uint64(e.GroupIndex)*handleSize:uint64(e.GroupIndex+1)*handleSize])
			n += copy(dst[n:], e.InlineData)
			clear(dst[n:])
		}
	}
	device.UnmapBuffer(t.buffer)

	hal.Logger().Debug("rtpipeline: shader binding table written",
		"bytes", size,
		"raygenStride", t.raygen.stride,
		"missStride", t.miss.stride,
		"hitStride", t.hit.stride)
	return t, nil
}

// Buffer returns the table buffer.
func (t *ShaderBindingTable) Buffer() hal.Buffer { return t.buffer }

// RaygenOffset returns the byte offset of the raygen region.
func (t *ShaderBindingTable) RaygenOffset() uint64 { return t.raygen.offset }

// RaygenStride returns the raygen record stride.
func (t *ShaderBindingTable) RaygenStride() uint64 { return t.raygen.stride }

// RaygenSize returns the byte size of the raygen region.
func (t *ShaderBindingTable) RaygenSize() uint64 { return t.raygen.size() }

// MissOffset returns the byte offset of the miss region.
func (t *ShaderBindingTable) MissOffset() uint64 { return t.miss.offset }

// MissStride returns the miss record stride.
func (t *ShaderBindingTable) MissStride() uint64 { return t.miss.stride }

// MissSize returns the byte size of the miss region.
func (t *ShaderBindingTable) MissSize() uint64 { return t.miss.size() }

// HitGroupOffset returns the byte offset of the hit group region.
func (t *ShaderBindingTable) HitGroupOffset() uint64 { return t.hit.offset }

// HitGroupStride returns the hit group record stride.
func (t *ShaderBindingTable) HitGroupStride() uint64 { return t.hit.stride }

// HitGroupSize returns the byte size of the hit group region.
func (t *ShaderBindingTable) HitGroupSize() uint64 { return t.hit.size() }

// Regions returns the strided regions passed to a trace call. The callable
// region is always empty.
func (t *ShaderBindingTable) Regions() (raygen, miss, hit, callable hal.StridedRegion) {
	base := t.buffer.DeviceAddress()
	strided := func(r region) hal.StridedRegion {
		return hal.StridedRegion{DeviceAddress: base + r.offset, Stride: r.stride, Size: r.size()}
	}
	return strided(t.raygen), strided(t.miss), strided(t.hit), hal.StridedRegion{}
}

// Destroy releases the table buffer.
func (t *ShaderBindingTable) Destroy() {
	if t.buffer != nil {
		t.device.DestroyBuffer(t.buffer)
		t.buffer = nil
	}
}

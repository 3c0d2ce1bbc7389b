//go:build !(js && wasm)

package vulkan

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

func TestSelectAdapter(t *testing.T) {
	plain := &adapter{name: "plain"}
	rt := &adapter{name: "rt", rayTracing: true}

	tests := []struct {
		name     string
		adapters []*adapter
		index    int
		want     string
		wantErr  bool
	}{
		{"none", nil, -1, "", true},
		{"auto prefers ray tracing", []*adapter{plain, rt}, -1, "rt", false},
		{"auto falls back", []*adapter{plain}, -1, "plain", false},
		{"explicit", []*adapter{plain, rt}, 0, "plain", false},
		{"out of range", []*adapter{plain}, 3, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectAdapter(tt.adapters, tt.index)
			if tt.wantErr {
				if !errors.Is(err, ErrNoAdapter) {
					t.Fatalf("err = %v, want ErrNoAdapter", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.name != tt.want {
				t.Errorf("selected %q, want %q", got.name, tt.want)
			}
		})
	}
}

func TestBackendRegistered(t *testing.T) {
	b, err := hal.Get(hal.BackendVulkan)
	if err != nil {
		t.Fatalf("hal.Get: %v", err)
	}
	if b.Name() != hal.BackendVulkan {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestVendorName(t *testing.T) {
	if got := vendorName(0x10DE); got != "NVIDIA" {
		t.Errorf("vendorName(0x10DE) = %q", got)
	}
	if got := vendorName(0x1234); got != "0x1234" {
		t.Errorf("vendorName(0x1234) = %q", got)
	}
}

func TestPoolSizes(t *testing.T) {
	bindings := []hal.DescriptorBinding{
		{Binding: 0, Type: hal.DescriptorTypeAccelerationStructure, Count: 1},
		{Binding: 1, Type: hal.DescriptorTypeStorageImage, Count: 1},
		{Binding: 2, Type: hal.DescriptorTypeStorageImage, Count: 1},
		{Binding: 3, Type: hal.DescriptorTypeUniformBuffer, Count: 1},
		{Binding: 8, Type: hal.DescriptorTypeCombinedImageSampler, Count: 0},
	}
	sizes := poolSizes(bindings, 2)
	if len(sizes) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(sizes), sizes)
	}
	want := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeAccelerationStructureKhr, DescriptorCount: 2},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 4},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 2},
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("sizes[%d] = %+v, want %+v", i, sizes[i], want[i])
		}
	}
}

func TestConvertBuildInfo(t *testing.T) {
	info := &hal.BuildGeometryInfo{
		Type:  hal.BottomLevel,
		Flags: hal.BuildPreferFastTrace,
		Geometries: []hal.Geometry{{
			Kind:  hal.GeometryTriangles,
			Flags: hal.GeometryOpaque,
			Triangles: hal.TrianglesData{
				VertexData:   0x1000,
				VertexStride: 12,
				MaxVertex:    2,
				IndexData:    0x2000,
			},
		}},
		ScratchAddress: 0x3000,
	}
	b := convertBuildInfo(info)
	if b.info.GeometryCount != 1 || unsafe.Pointer(b.info.PGeometries) != unsafe.Pointer(&b.geometries[0]) {
		t.Fatalf("geometry array not linked")
	}
	if b.info.ScratchData != 0x3000 {
		t.Errorf("scratch = 0x%x", b.info.ScratchData)
	}
	g := b.geometries[0]
	if g.GeometryType != vk.GeometryTypeTrianglesKhr || g.Flags != vk.GeometryFlagsKHR(vk.GeometryOpaqueBitKhr) {
		t.Errorf("geometry header = %+v", g)
	}
	tri := *(*vk.AccelerationStructureGeometryTrianglesDataKHR)(unsafe.Pointer(&g.Geometry))
	if tri.VertexData != 0x1000 || tri.IndexData != 0x2000 || tri.VertexStride != 12 || tri.MaxVertex != 2 {
		t.Errorf("triangles = %+v", tri)
	}
}

// geometryBytes returns the 96 bytes the driver reads for one geometry.
func geometryBytes(g *accelerationStructureGeometry) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(g)), unsafe.Sizeof(*g))
}

func TestGeometryLayout(t *testing.T) {
	var g accelerationStructureGeometry
	if got := unsafe.Sizeof(g); got != 96 {
		t.Errorf("Sizeof = %d, want 96", got)
	}
	if got := unsafe.Offsetof(g.Geometry); got != 24 {
		t.Errorf("Offsetof(Geometry) = %d, want 24", got)
	}
	if got := unsafe.Offsetof(g.Flags); got != 88 {
		t.Errorf("Offsetof(Flags) = %d, want 88", got)
	}

	info := &hal.BuildGeometryInfo{
		Type: hal.BottomLevel,
		Geometries: []hal.Geometry{
			{Kind: hal.GeometryAABBs, AABBs: hal.AABBsData{Data: 0x1122334455667788, Stride: 24}},
			{Kind: hal.GeometryAABBs, AABBs: hal.AABBsData{Data: 0x99, Stride: 24}},
		},
	}
	b := convertBuildInfo(info)
	stride := uintptr(unsafe.Pointer(&b.geometries[1])) - uintptr(unsafe.Pointer(&b.geometries[0]))
	if stride != 96 {
		t.Errorf("array stride = %d, want 96", stride)
	}
}

func TestConvertGeometryByteOffsets(t *testing.T) {
	tests := []struct {
		name  string
		geom  hal.Geometry
		sType vk.StructureType
		words map[int]uint64 // byte offset -> 8-byte value
	}{
		{
			name:  "aabbs",
			geom:  hal.Geometry{Kind: hal.GeometryAABBs, AABBs: hal.AABBsData{Data: 0x1122334455667788, Stride: 24}},
			sType: vk.StructureTypeAccelerationStructureGeometryAabbsDataKhr,
			words: map[int]uint64{40: 0x1122334455667788, 48: 24},
		},
		{
			name: "triangles",
			geom: hal.Geometry{Kind: hal.GeometryTriangles, Triangles: hal.TrianglesData{
				VertexData:   0xAAAA0000,
				VertexStride: 12,
				IndexData:    0xBBBB0000,
			}},
			sType: vk.StructureTypeAccelerationStructureGeometryTrianglesDataKhr,
			words: map[int]uint64{48: 0xAAAA0000, 56: 12, 72: 0xBBBB0000},
		},
		{
			name:  "instances",
			geom:  hal.Geometry{Kind: hal.GeometryInstances, Instances: hal.InstancesData{Data: 0xCCCC0000}},
			sType: vk.StructureTypeAccelerationStructureGeometryInstancesDataKhr,
			words: map[int]uint64{48: 0xCCCC0000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := convertGeometry(&tt.geom)
			raw := geometryBytes(&g)
			if got := binary.LittleEndian.Uint32(raw[0:]); got != uint32(vk.StructureTypeAccelerationStructureGeometryKhr) {
				t.Errorf("outer sType = %d", got)
			}
			if got := binary.LittleEndian.Uint32(raw[24:]); got != uint32(tt.sType) {
				t.Errorf("union sType at 24 = %d, want %d", got, tt.sType)
			}
			for off, want := range tt.words {
				if got := binary.LittleEndian.Uint64(raw[off:]); got != want {
					t.Errorf("bytes %d..%d = 0x%x, want 0x%x", off, off+7, got, want)
				}
			}
		})
	}
}

func TestUnresolvedProcsReportHardwareCall(t *testing.T) {
	var p rtProcs
	tests := []struct {
		name string
		call func() error
	}{
		{"buffer address", func() error {
			_, err := p.bufferDeviceAddress(0, 0)
			return err
		}},
		{"build sizes", func() error {
			var info vk.AccelerationStructureBuildGeometryInfoKHR
			_, err := p.accelerationStructureBuildSizes(0, &info, []uint32{1})
			return err
		}},
		{"structure address", func() error {
			_, err := p.accelerationStructureDeviceAddress(0, 0)
			return err
		}},
		{"destroy", func() error {
			return p.destroyAccelerationStructureKHR(0, 0)
		}},
		{"group handles", func() error {
			return p.shaderGroupHandles(0, 0, 0, 1, make([]byte, 32))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, hal.ErrHardwareCall) {
				t.Errorf("err = %v, want ErrHardwareCall", err)
			}
		})
	}
}

func TestEncoderKeepsFirstRecordingError(t *testing.T) {
	e := &CommandEncoder{device: &Device{}, label: "frame"}
	e.TraceRays(hal.StridedRegion{}, hal.StridedRegion{}, hal.StridedRegion{}, hal.StridedRegion{}, 4, 4, 1)
	if !errors.Is(e.err, hal.ErrHardwareCall) {
		t.Fatalf("err after TraceRays = %v, want ErrHardwareCall", e.err)
	}
	first := e.err
	e.BuildAccelerationStructure(&hal.BuildGeometryInfo{
		Type:       hal.TopLevel,
		Geometries: []hal.Geometry{{Kind: hal.GeometryInstances}},
	}, []hal.BuildRange{{PrimitiveCount: 1}})
	if e.err != first {
		t.Errorf("err replaced by %v", e.err)
	}
}

func TestRecursionDepthAboveLimit(t *testing.T) {
	r := &RayTracing{props: hal.RayTracingProperties{MaxRayRecursionDepth: 1}}
	_, err := r.CreateRayTracingPipeline(&hal.RayTracingPipelineDescriptor{
		Label:             "deep",
		MaxRecursionDepth: 2,
	})
	if !errors.Is(err, hal.ErrHardwareCall) {
		t.Fatalf("err = %v, want ErrHardwareCall", err)
	}
}

package rtpipeline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/hal/noop"
)

func newTestPipeline(t *testing.T, d *noop.Device) *Pipeline {
	t.Helper()
	p, err := New(d, newTestDescriptor(t, d, 1, 0, true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)
	return p
}

func TestShaderBindingTableLayout(t *testing.T) {
	// Handle size 32, base alignment 64.
	inline40 := bytes.Repeat([]byte{0x5C}, 40)
	tests := []struct {
		name string
		hit  []Entry

		wantHitStride uint64
		wantHitSize   uint64
		wantTotal     uint64
	}{
		{
			name:          "default",
			hit:           []Entry{{GroupIndex: TriangleHitGroup}, {GroupIndex: ProceduralHitGroup}},
			wantHitStride: 64,
			wantHitSize:   128,
			wantTotal:     256,
		},
		{
			name:          "inline data",
			hit:           []Entry{{GroupIndex: TriangleHitGroup}, {GroupIndex: ProceduralHitGroup, InlineData: inline40}},
			wantHitStride: 128,
			wantHitSize:   256,
			wantTotal:     384,
		},
		{
			name:          "single hit group",
			hit:           []Entry{{GroupIndex: TriangleHitGroup}},
			wantHitStride: 64,
			wantHitSize:   64,
			wantTotal:     192,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := noop.NewDevice()
			p := newTestPipeline(t, d)
			raygen, miss, _ := DefaultEntries()

			sbt, err := NewShaderBindingTable(d, p, raygen, miss, tt.hit)
			if err != nil {
				t.Fatalf("NewShaderBindingTable() error = %v", err)
			}
			defer sbt.Destroy()

			checks := []struct {
				name      string
				got, want uint64
			}{
				{"RaygenOffset", sbt.RaygenOffset(), 0},
				{"RaygenStride", sbt.RaygenStride(), 64},
				{"RaygenSize", sbt.RaygenSize(), 64},
				{"MissOffset", sbt.MissOffset(), 64},
				{"MissStride", sbt.MissStride(), 64},
				{"MissSize", sbt.MissSize(), 64},
				{"HitGroupOffset", sbt.HitGroupOffset(), 128},
				{"HitGroupStride", sbt.HitGroupStride(), tt.wantHitStride},
				{"HitGroupSize", sbt.HitGroupSize(), tt.wantHitSize},
				{"buffer size", sbt.Buffer().Size(), tt.wantTotal},
			}
			for _, c := range checks {
				if c.got != c.want {
					t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
				}
			}
		})
	}
}

func TestShaderBindingTableRecords(t *testing.T) {
	d := noop.NewDevice()
	p := newTestPipeline(t, d)
	inline := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	raygen, miss, _ := DefaultEntries()
	hit := []Entry{{GroupIndex: TriangleHitGroup}, {GroupIndex: ProceduralHitGroup, InlineData: inline}}

	sbt, err := NewShaderBindingTable(d, p, raygen, miss, hit)
	if err != nil {
		t.Fatalf("NewShaderBindingTable() error = %v", err)
	}
	defer sbt.Destroy()

	buf := sbt.Buffer().(*noop.Buffer)
	if buf.Memory() != hal.MemoryHostVisible {
		t.Errorf("Memory() = %v, want HostVisible", buf.Memory())
	}
	wantUsage := hal.BufferUsageShaderDeviceAddress | hal.BufferUsageTransferSrc | hal.BufferUsageShaderBindingTable
	if !buf.Usage().Contains(wantUsage) {
		t.Errorf("Usage() = %b, want %b", buf.Usage(), wantUsage)
	}
	if buf.Mapped() {
		t.Error("buffer still mapped after creation")
	}

	const handleSize = 32
	data := buf.Bytes()
	records := []struct {
		name   string
		offset uint64
		group  uint32
		inline []byte
		stride uint64
	}{
		{"raygen", sbt.RaygenOffset(), RaygenGroup, nil, sbt.RaygenStride()},
		{"miss", sbt.MissOffset(), MissGroup, nil, sbt.MissStride()},
		{"triangle hit", sbt.HitGroupOffset(), TriangleHitGroup, nil, sbt.HitGroupStride()},
		{"procedural hit", sbt.HitGroupOffset() + sbt.HitGroupStride(), ProceduralHitGroup, inline, sbt.HitGroupStride()},
	}
	for _, r := range records {
		t.Run(r.name, func(t *testing.T) {
			rec := data[r.offset : r.offset+r.stride]
			want := bytes.Repeat([]byte{noop.HandleByte(r.group)}, handleSize)
			if !bytes.Equal(rec[:handleSize], want) {
				t.Errorf("handle = % x, want % x", rec[:handleSize], want)
			}
			if got := rec[handleSize : handleSize+len(r.inline)]; !bytes.Equal(got, r.inline) {
				t.Errorf("inline data = % x, want % x", got, r.inline)
			}
			for i, b := range rec[handleSize+len(r.inline):] {
				if b != 0 {
					t.Fatalf("padding byte %d = %#x, want 0", i, b)
				}
			}
		})
	}
}

func TestShaderBindingTableRegions(t *testing.T) {
	d := noop.NewDevice()
	p := newTestPipeline(t, d)
	raygen, miss, hit := DefaultEntries()
	sbt, err := NewShaderBindingTable(d, p, raygen, miss, hit)
	if err != nil {
		t.Fatalf("NewShaderBindingTable() error = %v", err)
	}
	defer sbt.Destroy()

	base := sbt.Buffer().DeviceAddress()
	if base == 0 {
		t.Fatal("table buffer has no device address")
	}
	rg, ms, ht, callable := sbt.Regions()
	tests := []struct {
		name string
		got  hal.StridedRegion
		want hal.StridedRegion
	}{
		{"raygen", rg, hal.StridedRegion{DeviceAddress: base, Stride: 64, Size: 64}},
		{"miss", ms, hal.StridedRegion{DeviceAddress: base + 64, Stride: 64, Size: 64}},
		{"hit", ht, hal.StridedRegion{DeviceAddress: base + 128, Stride: 64, Size: 128}},
		{"callable", callable, hal.StridedRegion{}},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s region = %+v, want %+v", tt.name, tt.got, tt.want)
		}
	}
}

func TestShaderBindingTableStrideLimit(t *testing.T) {
	props := noop.DefaultProperties
	props.MaxShaderGroupStride = 64
	d := noop.NewDevice(noop.WithProperties(props))
	p := newTestPipeline(t, d)
	raygen, miss, _ := DefaultEntries()
	hit := []Entry{{GroupIndex: TriangleHitGroup, InlineData: make([]byte, 33)}}

	baseline := d.LiveCount()
	_, err := NewShaderBindingTable(d, p, raygen, miss, hit)
	if !errors.Is(err, hal.ErrHardwareCall) {
		t.Fatalf("NewShaderBindingTable() error = %v, want ErrHardwareCall", err)
	}
	if d.LiveCount() != baseline {
		t.Errorf("LiveCount() = %d, want %d", d.LiveCount(), baseline)
	}
}

func TestShaderBindingTableRejectsUnknownGroup(t *testing.T) {
	d := noop.NewDevice()
	p := newTestPipeline(t, d)
	raygen, miss, _ := DefaultEntries()
	hit := []Entry{{GroupIndex: 7}}

	baseline := d.LiveCount()
	if _, err := NewShaderBindingTable(d, p, raygen, miss, hit); err == nil {
		t.Fatal("NewShaderBindingTable() succeeded with an unknown group")
	}
	if d.LiveCount() != baseline {
		t.Errorf("LiveCount() = %d, want %d", d.LiveCount(), baseline)
	}
}

func TestEntryStride(t *testing.T) {
	props := hal.RayTracingProperties{ShaderGroupHandleSize: 32, ShaderGroupBaseAlignment: 64}
	tests := []struct {
		name    string
		entries []Entry
		want    uint64
	}{
		{"empty", nil, 64},
		{"handle only", []Entry{{}}, 64},
		{"fits", []Entry{{InlineData: make([]byte, 32)}}, 64},
		{"spills", []Entry{{InlineData: make([]byte, 33)}}, 128},
		{"largest wins", []Entry{{InlineData: make([]byte, 8)}, {InlineData: make([]byte, 100)}}, 192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entryStride(props, tt.entries); got != tt.want {
				t.Errorf("entryStride() = %d, want %d", got, tt.want)
			}
		})
	}
}

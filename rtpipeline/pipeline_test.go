package rtpipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/hal/noop"
	"github.com/gogpu/raytrace/shader"
)

type testScene struct {
	vertices    hal.Buffer
	indices     hal.Buffer
	materials   hal.Buffer
	offsets     hal.Buffer
	procedurals hal.Buffer
	textures    []hal.TextureBinding
}

func (s *testScene) VertexBuffer() hal.Buffer       { return s.vertices }
func (s *testScene) IndexBuffer() hal.Buffer        { return s.indices }
func (s *testScene) MaterialBuffer() hal.Buffer     { return s.materials }
func (s *testScene) OffsetBuffer() hal.Buffer       { return s.offsets }
func (s *testScene) ProceduralBuffer() hal.Buffer   { return s.procedurals }
func (s *testScene) HasProcedurals() bool           { return s.procedurals != nil }
func (s *testScene) Textures() []hal.TextureBinding { return s.textures }

func mustBuffer(t *testing.T, d *noop.Device, label string) hal.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(&hal.BufferDescriptor{
		Label:  label,
		Size:   256,
		Usage:  hal.BufferUsageStorage | hal.BufferUsageUniform | hal.BufferUsageAccelerationStructureStorage,
		Memory: hal.MemoryHostVisible,
	})
	if err != nil {
		t.Fatalf("CreateBuffer(%s) error = %v", label, err)
	}
	return b
}

func mustImage(t *testing.T, d *noop.Device, label string) hal.Image {
	t.Helper()
	img, err := d.CreateImage(&hal.ImageDescriptor{
		Label:  label,
		Extent: gputypes.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  hal.ImageUsageStorage | hal.ImageUsageSampled,
	})
	if err != nil {
		t.Fatalf("CreateImage(%s) error = %v", label, err)
	}
	return img
}

func testShaders() *shader.RayTracingSet {
	code := func(w uint32) []uint32 { return []uint32{shader.Magic, 0x00010500, 0, 1, w} }
	return &shader.RayTracingSet{
		Raygen:                 code(1),
		Miss:                   code(2),
		ClosestHit:             code(3),
		ProceduralClosestHit:   code(4),
		ProceduralIntersection: code(5),
	}
}

// newTestDescriptor creates every resource the pipeline binds.
func newTestDescriptor(t *testing.T, d *noop.Device, frames, textures int, procedurals bool) *Descriptor {
	t.Helper()
	scene := &testScene{
		vertices:  mustBuffer(t, d, "Vertices"),
		indices:   mustBuffer(t, d, "Indices"),
		materials: mustBuffer(t, d, "Materials"),
		offsets:   mustBuffer(t, d, "Offsets"),
	}
	if procedurals {
		scene.procedurals = mustBuffer(t, d, "Procedurals")
	}
	if textures > 0 {
		sampler, err := d.CreateSampler(&hal.SamplerDescriptor{Label: "Texture Sampler"})
		if err != nil {
			t.Fatalf("CreateSampler() error = %v", err)
		}
		for i := 0; i < textures; i++ {
			scene.textures = append(scene.textures, hal.TextureBinding{Image: mustImage(t, d, "Texture"), Sampler: sampler})
		}
	}

	tlas, err := d.RayTracing().CreateAccelerationStructure(&hal.AccelerationStructureDescriptor{
		Label:  "TLAS",
		Type:   hal.TopLevel,
		Buffer: mustBuffer(t, d, "TLAS Buffer"),
		Size:   256,
	})
	if err != nil {
		t.Fatalf("CreateAccelerationStructure() error = %v", err)
	}

	desc := &Descriptor{
		Shaders:           testShaders(),
		TopLevel:          tlas,
		AccumulationImage: mustImage(t, d, "Accumulation"),
		OutputImage:       mustImage(t, d, "Output"),
		Scene:             scene,
	}
	for i := 0; i < frames; i++ {
		desc.UniformBuffers = append(desc.UniformBuffers, mustBuffer(t, d, "Uniform"))
	}
	return desc
}

func TestNewPipelineGroups(t *testing.T) {
	d := noop.NewDevice()
	p, err := New(d, newTestDescriptor(t, d, 2, 0, true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Destroy()

	rt := p.Handle().(*noop.Pipeline).RayTracing
	if rt == nil {
		t.Fatal("pipeline is not a ray-tracing pipeline")
	}
	if rt.MaxRecursionDepth != 1 {
		t.Errorf("MaxRecursionDepth = %d, want 1", rt.MaxRecursionDepth)
	}
	if len(rt.Stages) != 5 {
		t.Fatalf("len(Stages) = %d, want 5", len(rt.Stages))
	}
	wantStages := []hal.ShaderStage{
		hal.ShaderStageRaygen,
		hal.ShaderStageMiss,
		hal.ShaderStageClosestHit,
		hal.ShaderStageClosestHit,
		hal.ShaderStageIntersection,
	}
	for i, s := range rt.Stages {
		if s.Stage != wantStages[i] || s.EntryPoint != "main" {
			t.Errorf("Stages[%d] = %v %q, want %v \"main\"", i, s.Stage, s.EntryPoint, wantStages[i])
		}
	}

	u := hal.ShaderUnused
	wantGroups := []hal.ShaderGroup{
		{Kind: hal.ShaderGroupGeneral, General: 0, ClosestHit: u, AnyHit: u, Intersection: u},
		{Kind: hal.ShaderGroupGeneral, General: 1, ClosestHit: u, AnyHit: u, Intersection: u},
		{Kind: hal.ShaderGroupTrianglesHit, General: u, ClosestHit: 2, AnyHit: u, Intersection: u},
		{Kind: hal.ShaderGroupProceduralHit, General: u, ClosestHit: 3, AnyHit: u, Intersection: 4},
	}
	if len(rt.Groups) != len(wantGroups) {
		t.Fatalf("len(Groups) = %d, want %d", len(rt.Groups), len(wantGroups))
	}
	for i, g := range rt.Groups {
		if g != wantGroups[i] {
			t.Errorf("Groups[%d] = %+v, want %+v", i, g, wantGroups[i])
		}
	}
	if p.GroupCount() != uint32(len(wantGroups)) {
		t.Errorf("GroupCount() = %d, want %d", p.GroupCount(), len(wantGroups))
	}

	for _, obj := range d.Live() {
		if strings.HasPrefix(obj, "ShaderModule") {
			t.Errorf("shader module still live after pipeline creation: %s", obj)
		}
	}
	if got := d.ObjectName(p.Handle()); got != "Ray Tracing Pipeline" {
		t.Errorf("ObjectName(pipeline) = %q", got)
	}
}

func TestDescriptorSetWrites(t *testing.T) {
	tests := []struct {
		name        string
		frames      int
		textures    int
		procedurals bool
	}{
		{"triangles only", 2, 0, false},
		{"procedurals", 2, 0, true},
		{"textures and procedurals", 3, 2, true},
		{"single frame", 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := noop.NewDevice()
			desc := newTestDescriptor(t, d, tt.frames, tt.textures, tt.procedurals)
			p, err := New(d, desc)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer p.Destroy()

			if p.DescriptorSetCount() != tt.frames {
				t.Fatalf("DescriptorSetCount() = %d, want %d", p.DescriptorSetCount(), tt.frames)
			}
			for i := 0; i < tt.frames; i++ {
				set := p.DescriptorSet(i).(*noop.DescriptorSet)
				for b := uint32(BindingTopLevel); b <= BindingOffsets; b++ {
					if set.WriteCounts[b] != 1 {
						t.Errorf("set %d: binding %d written %d times, want 1", i, b, set.WriteCounts[b])
					}
				}

				wantTextures := 0
				if tt.textures > 0 {
					wantTextures = 1
				}
				if set.WriteCounts[BindingTextures] != wantTextures {
					t.Errorf("set %d: texture binding written %d times, want %d",
						i, set.WriteCounts[BindingTextures], wantTextures)
				}

				wantProcedural := 0
				if tt.procedurals {
					wantProcedural = 1
				}
				if set.WriteCounts[BindingProceduralData] != wantProcedural {
					t.Errorf("set %d: procedural binding written %d times, want %d",
						i, set.WriteCounts[BindingProceduralData], wantProcedural)
				}

				uniform := set.Writes[BindingUniform].Buffers[0].Buffer
				if uniform != desc.UniformBuffers[i] {
					t.Errorf("set %d binds uniform buffer %d, want buffer of frame %d",
						i, uniform.NativeHandle(), i)
				}
			}
		})
	}
}

func TestNewRejectsProceduralsWithoutBuffer(t *testing.T) {
	d := noop.NewDevice()
	desc := newTestDescriptor(t, d, 1, 0, false)
	scene := desc.Scene.(*testScene)
	desc.Scene = &proceduralWithoutBuffer{scene}

	baseline := d.LiveCount()
	if _, err := New(d, desc); !errors.Is(err, hal.ErrMissingDescriptorBinding) {
		t.Fatalf("New() error = %v, want ErrMissingDescriptorBinding", err)
	}
	if d.LiveCount() != baseline {
		t.Errorf("LiveCount() = %d, want %d", d.LiveCount(), baseline)
	}
}

type proceduralWithoutBuffer struct{ *testScene }

func (proceduralWithoutBuffer) HasProcedurals() bool { return true }

func TestCheckWrites(t *testing.T) {
	bindings := LayoutBindings(0, false)
	ok := []hal.DescriptorWrite{{Binding: BindingTopLevel}, {Binding: BindingOffsets}}
	if err := checkWrites(bindings, ok); err != nil {
		t.Errorf("checkWrites(declared) error = %v", err)
	}
	missing := []hal.DescriptorWrite{{Binding: BindingProceduralData}}
	if err := checkWrites(bindings, missing); !errors.Is(err, hal.ErrMissingDescriptorBinding) {
		t.Errorf("checkWrites(undeclared) error = %v, want ErrMissingDescriptorBinding", err)
	}
}

func TestLayoutBindings(t *testing.T) {
	tests := []struct {
		name        string
		textures    int
		procedurals bool
		wantLen     int
	}{
		{"minimal", 0, false, 9},
		{"procedurals", 0, true, 10},
		{"textures", 3, false, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LayoutBindings(tt.textures, tt.procedurals)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			for i, b := range got {
				if b.Binding != uint32(i) {
					t.Errorf("bindings[%d].Binding = %d", i, b.Binding)
				}
			}
			if got[BindingTextures].Count != uint32(tt.textures) {
				t.Errorf("texture count = %d, want %d", got[BindingTextures].Count, tt.textures)
			}
			if got[BindingTopLevel].Type != hal.DescriptorTypeAccelerationStructure {
				t.Errorf("binding 0 type = %v", got[BindingTopLevel].Type)
			}
		})
	}
}

func TestNewReleasesOnFault(t *testing.T) {
	tests := []struct {
		name string
		op   string
	}{
		{"pipeline", "CreateRayTracingPipeline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := noop.NewDevice()
			desc := newTestDescriptor(t, d, 2, 1, true)
			baseline := d.LiveCount()

			d.InjectFault(tt.op)
			if _, err := New(d, desc); !errors.Is(err, hal.ErrHardwareCall) {
				t.Fatalf("New() error = %v, want ErrHardwareCall", err)
			}
			if d.LiveCount() != baseline {
				t.Errorf("LiveCount() = %d, want %d; live: %v", d.LiveCount(), baseline, d.Live())
			}
		})
	}
}

func TestNewWithoutRayTracing(t *testing.T) {
	d := noop.NewDevice(noop.WithoutRayTracing())
	_, err := New(d, &Descriptor{})
	if !errors.Is(err, hal.ErrMissingEntryPoint) {
		t.Errorf("New() error = %v, want ErrMissingEntryPoint", err)
	}
}

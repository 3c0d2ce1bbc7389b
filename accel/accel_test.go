package accel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/hal/noop"
)

const testVertexStride = 48

type testScene struct {
	vertices, indices, aabbs hal.Buffer
	models                   []ModelGeometry
}

func (s *testScene) VertexBuffer() hal.Buffer { return s.vertices }
func (s *testScene) IndexBuffer() hal.Buffer  { return s.indices }
func (s *testScene) AABBBuffer() hal.Buffer   { return s.aabbs }
func (s *testScene) VertexStride() uint64     { return testVertexStride }
func (s *testScene) Models() []ModelGeometry  { return s.models }

func newTestScene(t *testing.T, dev *noop.Device, models []ModelGeometry) *testScene {
	t.Helper()
	var vertices, indices uint64
	for _, m := range models {
		vertices += uint64(m.VertexCount)
		indices += uint64(m.IndexCount)
	}
	usage := hal.BufferUsageStorage | hal.BufferUsageShaderDeviceAddress | hal.BufferUsageAccelerationStructureBuildInput
	mk := func(label string, size uint64) hal.Buffer {
		if size == 0 {
			size = 4
		}
		b, err := dev.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
		if err != nil {
			t.Fatalf("CreateBuffer(%s) error = %v", label, err)
		}
		return b
	}
	s := &testScene{
		vertices: mk("Vertices", vertices*testVertexStride),
		indices:  mk("Indices", indices*4),
		aabbs:    mk("AABBs", uint64(len(models))*AABBStride),
		models:   models,
	}
	t.Cleanup(func() {
		dev.DestroyBuffer(s.vertices)
		dev.DestroyBuffer(s.indices)
		dev.DestroyBuffer(s.aabbs)
	})
	return s
}

func newBottomLevel(t *testing.T, rt hal.RayTracing, g *GeometryDescriptor) *BottomLevel {
	t.Helper()
	blas, err := NewBottomLevel(rt, g)
	if err != nil {
		t.Fatalf("NewBottomLevel() error = %v", err)
	}
	return blas
}

// sphereAndBox is a procedural sphere followed by a 12-triangle box.
var sphereAndBox = []ModelGeometry{
	{Procedural: true},
	{VertexCount: 24, IndexCount: 36},
}

func TestRoundUp(t *testing.T) {
	tests := []struct {
		size, granularity, want uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{1064, 256, 1280},
		{373, 128, 384},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := RoundUp(tt.size, tt.granularity); got != tt.want {
			t.Errorf("RoundUp(%d, %d) = %d, want %d", tt.size, tt.granularity, got, tt.want)
		}
	}
}

func TestGeometryDescriptorRanges(t *testing.T) {
	dev := noop.NewDevice()
	scene := newTestScene(t, dev, []ModelGeometry{{VertexCount: 8, IndexCount: 12}})

	var g GeometryDescriptor
	g.AddTriangles(scene, 2*testVertexStride, 3, 12, 6, true)
	g.AddAABB(scene, 48, 2, false)

	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}

	tri := g.Geometries()[0]
	if tri.Kind != hal.GeometryTriangles || tri.Flags != hal.GeometryOpaque {
		t.Errorf("triangles geometry = kind %d flags %d, want opaque triangles", tri.Kind, tri.Flags)
	}
	if tri.Triangles.VertexData != scene.vertices.DeviceAddress() || tri.Triangles.IndexData != scene.indices.DeviceAddress() {
		t.Error("triangles geometry does not reference the scene buffers")
	}
	if tri.Triangles.VertexStride != testVertexStride || tri.Triangles.MaxVertex != 3 {
		t.Errorf("stride/maxVertex = %d/%d, want %d/3", tri.Triangles.VertexStride, tri.Triangles.MaxVertex, testVertexStride)
	}
	if got, want := g.Ranges()[0], (hal.BuildRange{PrimitiveCount: 2, PrimitiveOffset: 12, FirstVertex: 2}); got != want {
		t.Errorf("triangle range = %+v, want %+v", got, want)
	}

	box := g.Geometries()[1]
	if box.Kind != hal.GeometryAABBs || box.Flags != 0 || box.AABBs.Stride != AABBStride {
		t.Errorf("aabb geometry = %+v", box)
	}
	if got, want := g.Ranges()[1], (hal.BuildRange{PrimitiveCount: 2, PrimitiveOffset: 48}); got != want {
		t.Errorf("aabb range = %+v, want %+v", got, want)
	}
}

func TestBuildSizesAligned(t *testing.T) {
	for _, scratchAlign := range []uint32{128, 256} {
		props := noop.DefaultProperties
		props.MinScratchOffsetAlignment = scratchAlign
		dev := noop.NewDevice(noop.WithProperties(props))
		rt := dev.RayTracing()
		scene := newTestScene(t, dev, []ModelGeometry{{VertexCount: 300, IndexCount: 900}})

		for _, prims := range []uint32{1, 2, 7, 100, 300} {
			var g GeometryDescriptor
			g.AddTriangles(scene, 0, 300, 0, prims*3, true)
			blas := newBottomLevel(t, rt, &g)
			tlas, err := NewTopLevel(rt, 0x1000, prims)
			if err != nil {
				t.Fatalf("NewTopLevel() error = %v", err)
			}

			for name, sizes := range map[string]hal.BuildSizes{"blas": blas.BuildSizes(), "tlas": tlas.BuildSizes()} {
				if sizes.AccelerationStructureSize%ResultAlignment != 0 {
					t.Errorf("%s prims=%d: structure size %d not a multiple of 256", name, prims, sizes.AccelerationStructureSize)
				}
				if sizes.BuildScratchSize%uint64(scratchAlign) != 0 {
					t.Errorf("%s prims=%d: scratch size %d not a multiple of %d", name, prims, sizes.BuildScratchSize, scratchAlign)
				}
				if sizes.AccelerationStructureSize == 0 || sizes.BuildScratchSize == 0 {
					t.Errorf("%s prims=%d: zero sizes %+v", name, prims, sizes)
				}
			}
		}
	}
}

func TestGenerateRejectsMisalignedOffset(t *testing.T) {
	dev := noop.NewDevice()
	rt := dev.RayTracing()
	scene := newTestScene(t, dev, sphereAndBox)

	var g GeometryDescriptor
	g.AddAABB(scene, 0, 1, true)
	blas := newBottomLevel(t, rt, &g)

	result, _ := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "Result",
		Size:  4096,
		Usage: hal.BufferUsageAccelerationStructureStorage | hal.BufferUsageShaderDeviceAddress,
	})
	scratch, _ := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "Scratch",
		Size:  4096,
		Usage: hal.BufferUsageAccelerationStructureStorage | hal.BufferUsageShaderDeviceAddress,
	})
	defer dev.DestroyBuffer(result)
	defer dev.DestroyBuffer(scratch)

	enc, _ := dev.CreateCommandEncoder("test")
	for _, offset := range []uint64{1, 128, 300} {
		err := blas.Generate(enc, scratch, 0, result, offset)
		if !errors.Is(err, ErrResultOffsetAlignment) {
			t.Errorf("Generate(resultOffset=%d) error = %v, want ErrResultOffsetAlignment", offset, err)
		}
	}
	if blas.Handle() != nil {
		t.Error("rejected Generate must not create a structure")
	}
	if _, err := blas.Address(); !errors.Is(err, ErrNotGenerated) {
		t.Errorf("Address() error = %v, want ErrNotGenerated", err)
	}

	if err := blas.Generate(enc, scratch, 0, result, 512); err != nil {
		t.Fatalf("Generate(resultOffset=512) error = %v", err)
	}
	addr, _ := blas.Address()
	if addr != result.DeviceAddress()+512 {
		t.Errorf("Address() = %#x, want result base + 512", addr)
	}
	cb, _ := enc.Finish()
	cmds := cb.(*noop.CommandBuffer).Commands
	if len(cmds) != 1 || cmds[0].Op != noop.OpBuildAccelerationStructure {
		t.Fatalf("recorded %d commands, want one build", len(cmds))
	}
	blas.Release()
	dev.FreeCommandBuffer(cb)
}

func TestCreateInstance(t *testing.T) {
	dev := noop.NewDevice()
	rt := dev.RayTracing()
	scene := newTestScene(t, dev, sphereAndBox)

	var g GeometryDescriptor
	g.AddAABB(scene, 0, 1, true)
	blas := newBottomLevel(t, rt, &g)

	if _, err := CreateInstance(blas, mgl32.Ident4(), 0, 0); !errors.Is(err, ErrNotGenerated) {
		t.Fatalf("CreateInstance before Generate error = %v, want ErrNotGenerated", err)
	}

	result, _ := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "Result",
		Size:  4096,
		Usage: hal.BufferUsageAccelerationStructureStorage | hal.BufferUsageShaderDeviceAddress,
	})
	defer dev.DestroyBuffer(result)
	enc, _ := dev.CreateCommandEncoder("test")
	if err := blas.Generate(enc, result, 0, result, 0); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	defer blas.Release()

	m := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.Scale3D(4, 5, 6))
	inst, err := CreateInstance(blas, m, 7, HitGroupProcedural)
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	want := [12]float32{4, 0, 0, 1, 0, 5, 0, 2, 0, 0, 6, 3}
	if inst.Transform != want {
		t.Errorf("Transform = %v, want %v", inst.Transform, want)
	}
	if inst.CustomIndex != 7 || inst.SBTOffset != HitGroupProcedural {
		t.Errorf("custom index/sbt offset = %d/%d, want 7/1", inst.CustomIndex, inst.SBTOffset)
	}
	if inst.Mask != InstanceMaskAll || inst.Flags != InstanceCullDisable {
		t.Errorf("mask/flags = %#x/%#x", inst.Mask, inst.Flags)
	}
	addr, _ := blas.Address()
	if inst.Reference != addr {
		t.Errorf("Reference = %#x, want %#x", inst.Reference, addr)
	}

	buf := EncodeInstances([]Instance{inst, inst})
	if len(buf) != 2*InstanceSize {
		t.Fatalf("EncodeInstances() length = %d, want %d", len(buf), 2*InstanceSize)
	}
	if got := DecodeInstance(buf[InstanceSize:]); got != inst {
		t.Errorf("DecodeInstance() = %+v, want %+v", got, inst)
	}
	if buf[51] != 0xFF || buf[55] != InstanceCullDisable {
		t.Errorf("packed mask/flags bytes = %#x/%#x", buf[51], buf[55])
	}
}

func findCommandBuffer(t *testing.T, dev *noop.Device, label string) *noop.CommandBuffer {
	t.Helper()
	for _, cb := range dev.Submitted {
		if cb.Label == label {
			return cb
		}
	}
	t.Fatalf("no submitted command buffer %q", label)
	return nil
}

func TestBuilderSphereAndBox(t *testing.T) {
	dev := noop.NewDevice()
	scene := newTestScene(t, dev, sphereAndBox)

	b, err := NewBuilder(dev)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	if err := b.Create(context.Background(), scene); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer b.Delete()

	blas := b.BottomLevels()
	if len(blas) != 2 {
		t.Fatalf("BLAS count = %d, want 2", len(blas))
	}
	if b.TopLevel() == nil || b.TopLevel().InstanceCount() != 2 {
		t.Fatal("want one TLAS with 2 instances")
	}
	if kind := blas[0].Geometry().Geometries()[0].Kind; kind != hal.GeometryAABBs {
		t.Errorf("sphere BLAS geometry kind = %d, want AABBs", kind)
	}
	if kind := blas[1].Geometry().Geometries()[0].Kind; kind != hal.GeometryTriangles {
		t.Errorf("box BLAS geometry kind = %d, want triangles", kind)
	}
	if got := blas[1].Geometry().Ranges()[0].PrimitiveCount; got != 12 {
		t.Errorf("box primitive count = %d, want 12", got)
	}

	insts := b.Instances()
	wantHitGroups := []uint32{HitGroupProcedural, HitGroupTriangles}
	for i, inst := range insts {
		addr, _ := blas[i].Address()
		if inst.Reference != addr {
			t.Errorf("instance %d reference = %#x, want BLAS %d address %#x", i, inst.Reference, i, addr)
		}
		if inst.CustomIndex != uint32(i) {
			t.Errorf("instance %d custom index = %d", i, inst.CustomIndex)
		}
		if inst.SBTOffset != wantHitGroups[i] {
			t.Errorf("instance %d hit group = %d, want %d", i, inst.SBTOffset, wantHitGroups[i])
		}
	}

	uploaded := b.InstanceBuffer().(*noop.Buffer).Bytes()
	for i := range insts {
		if got := DecodeInstance(uploaded[i*InstanceSize:]); got != insts[i] {
			t.Errorf("uploaded instance %d = %+v, want %+v", i, got, insts[i])
		}
	}

	cb := findCommandBuffer(t, dev, "Build Acceleration Structures")
	var ops []string
	var builds []noop.Command
	for _, c := range cb.Commands {
		ops = append(ops, c.Op.String())
		if c.Op == noop.OpBuildAccelerationStructure {
			builds = append(builds, c)
		}
		if c.Op == noop.OpPipelineBarrier && c.MemoryBarrier != hal.AccelerationStructureBuildBarrier() {
			t.Errorf("barrier = %+v, want the acceleration structure build barrier", c.MemoryBarrier)
		}
	}
	wantOps := "BuildAccelerationStructure,BuildAccelerationStructure,PipelineBarrier,BuildAccelerationStructure"
	if got := strings.Join(ops, ","); got != wantOps {
		t.Fatalf("commands = %s, want %s", got, wantOps)
	}
	if builds[0].Build.Type != hal.BottomLevel || builds[2].Build.Type != hal.TopLevel {
		t.Error("builds must be BLAS, BLAS, TLAS")
	}
	if step := builds[1].Build.ScratchAddress - builds[0].Build.ScratchAddress; step != blas[0].BuildSizes().BuildScratchSize {
		t.Errorf("scratch offset step = %d, want %d", step, blas[0].BuildSizes().BuildScratchSize)
	}
	if got := builds[2].Build.Geometries[0].Instances.Data; got != b.InstanceBuffer().DeviceAddress() {
		t.Errorf("TLAS instance data = %#x, want instance buffer address", got)
	}
	for _, bld := range builds {
		if bld.Build.Flags != hal.BuildPreferFastTrace || bld.Build.Mode != hal.BuildModeBuild {
			t.Errorf("build flags/mode = %d/%d", bld.Build.Flags, bld.Build.Mode)
		}
	}

	if got := dev.ObjectName(blas[1].Handle()); got != "BLAS #1" {
		t.Errorf("BLAS #1 name = %q", got)
	}
	if got := dev.ObjectName(b.TopLevel().Handle()); got != "TLAS" {
		t.Errorf("TLAS name = %q", got)
	}
	for _, obj := range dev.Live() {
		if strings.Contains(obj, "Scratch") {
			t.Errorf("scratch buffer still alive after build: %s", obj)
		}
	}

	stats := b.Stats()
	if stats.BottomLevelCount != 2 || stats.InstanceCount != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
	if want := blas[0].BuildSizes().AccelerationStructureSize + blas[1].BuildSizes().AccelerationStructureSize; stats.BottomLevelBytes != want {
		t.Errorf("BottomLevelBytes = %d, want %d", stats.BottomLevelBytes, want)
	}
}

func TestBuilderDeleteCreateIdempotent(t *testing.T) {
	dev := noop.NewDevice()
	scene := newTestScene(t, dev, sphereAndBox)
	baseline := dev.LiveCount()

	b, _ := NewBuilder(dev)
	sizes := func() []hal.BuildSizes {
		var out []hal.BuildSizes
		for _, blas := range b.BottomLevels() {
			out = append(out, blas.BuildSizes())
		}
		return append(out, b.TopLevel().BuildSizes())
	}

	if err := b.Create(context.Background(), scene); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	first := sizes()

	logStart := len(dev.DestroyLog)
	b.Delete()
	wantOrder := []string{
		"AccelerationStructure TLAS",
		"AccelerationStructure BLAS #0",
		"AccelerationStructure BLAS #1",
		"Buffer TLAS Instances",
		"Buffer TLAS Buffer",
		"Buffer BLAS Buffer",
	}
	gotOrder := dev.DestroyLog[logStart:]
	if strings.Join(gotOrder, "|") != strings.Join(wantOrder, "|") {
		t.Errorf("teardown order = %v, want %v", gotOrder, wantOrder)
	}
	if got := dev.LiveCount(); got != baseline {
		t.Errorf("LiveCount() after Delete = %d, want %d: %v", got, baseline, dev.Live())
	}

	b.Delete() // no-op on an empty builder

	if err := b.Create(context.Background(), scene); err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	defer b.Delete()
	second := sizes()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("structure %d sizes = %+v, want %+v", i, second[i], first[i])
		}
	}
}

func TestBuilderCreateFailureReleasesEverything(t *testing.T) {
	for _, op := range []string{"BuildSizes", "CreateAccelerationStructure"} {
		t.Run(op, func(t *testing.T) {
			dev := noop.NewDevice()
			scene := newTestScene(t, dev, sphereAndBox)
			baseline := dev.LiveCount()

			b, _ := NewBuilder(dev)
			dev.InjectFault(op)
			err := b.Create(context.Background(), scene)
			if !errors.Is(err, hal.ErrHardwareCall) {
				t.Fatalf("Create() error = %v, want ErrHardwareCall", err)
			}
			if b.TopLevel() != nil || len(b.BottomLevels()) != 0 {
				t.Error("failed Create must not leave structures behind")
			}
			if got := dev.LiveCount(); got != baseline {
				t.Errorf("LiveCount() = %d, want %d: %v", got, baseline, dev.Live())
			}
		})
	}
}

func TestNewBottomLevelSizeQueryFailure(t *testing.T) {
	dev := noop.NewDevice()
	scene := newTestScene(t, dev, sphereAndBox)

	var g GeometryDescriptor
	g.AddAABB(scene, 0, 1, true)
	dev.InjectFault("BuildSizes")
	if _, err := NewBottomLevel(dev.RayTracing(), &g); !errors.Is(err, hal.ErrHardwareCall) {
		t.Errorf("NewBottomLevel() error = %v, want ErrHardwareCall", err)
	}
	if _, err := NewTopLevel(dev.RayTracing(), 0x1000, 1); err != nil {
		t.Errorf("NewTopLevel() after the fault was consumed error = %v", err)
	}
}

func TestBuilderCreateTwice(t *testing.T) {
	dev := noop.NewDevice()
	scene := newTestScene(t, dev, sphereAndBox)
	b, _ := NewBuilder(dev)
	if err := b.Create(context.Background(), scene); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer b.Delete()
	if err := b.Create(context.Background(), scene); err == nil {
		t.Error("second Create() without Delete should fail")
	}
	if b.TopLevel() == nil {
		t.Error("failed second Create must keep the first build")
	}
}

func TestBuilderCanceledContext(t *testing.T) {
	dev := noop.NewDevice()
	scene := newTestScene(t, dev, sphereAndBox)
	b, _ := NewBuilder(dev)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Create(ctx, scene); !errors.Is(err, context.Canceled) {
		t.Errorf("Create(canceled) error = %v, want context.Canceled", err)
	}
}

func TestNewBuilderWithoutRayTracing(t *testing.T) {
	dev := noop.NewDevice(noop.WithoutRayTracing())
	if _, err := NewBuilder(dev); !errors.Is(err, ErrNoRayTracing) {
		t.Errorf("NewBuilder() error = %v, want ErrNoRayTracing", err)
	}
}

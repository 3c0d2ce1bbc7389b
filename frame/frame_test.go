package frame

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/hal/noop"
	"github.com/gogpu/raytrace/rtpipeline"
	"github.com/gogpu/raytrace/scene"
	"github.com/gogpu/raytrace/shader"
)

const testUniformSize = 304

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

// testRenderer records ray-traced frames over a sphere and a box.
type testRenderer struct {
	device  hal.Device
	scene   *scene.Scene
	builder *accel.Builder

	pipeline *rtpipeline.Pipeline
	sbt      *rtpipeline.ShaderBindingTable

	created int
	deleted int
	infos   []Info

	// failRecord, when set, fails the next RecordFrame.
	failRecord error
}

func newTestRenderer(t *testing.T, d *noop.Device) *testRenderer {
	t.Helper()
	white := scene.NewLambertian(mgl32.Vec3{1, 1, 1}, scene.NoTexture)
	models := []scene.Model{
		scene.CreateSphere(mgl32.Vec3{1, 0, 0}, 0.5, white, true),
		scene.CreateBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{0, 0, 0}, white),
	}
	sc, err := scene.Load(d, models, nil)
	if err != nil {
		t.Fatalf("scene.Load() error = %v", err)
	}
	b, err := accel.NewBuilder(d)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	if err := b.Create(context.Background(), sc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return &testRenderer{device: d, scene: sc, builder: b}
}

func (r *testRenderer) CreateSwapChainResources(res *Resources) error {
	p, err := rtpipeline.New(r.device, &rtpipeline.Descriptor{
		Shaders:           testShaders(),
		TopLevel:          r.builder.TopLevel().Handle(),
		AccumulationImage: res.AccumulationImage(),
		OutputImage:       res.OutputImage(),
		UniformBuffers:    res.UniformBuffers(),
		Scene:             r.scene,
	})
	if err != nil {
		return err
	}
	raygen, miss, hit := rtpipeline.DefaultEntries()
	sbt, err := rtpipeline.NewShaderBindingTable(r.device, p, raygen, miss, hit)
	if err != nil {
		p.Destroy()
		return err
	}
	r.pipeline, r.sbt = p, sbt
	r.created++
	return nil
}

func (r *testRenderer) DeleteSwapChainResources() {
	r.sbt.Destroy()
	r.pipeline.Destroy()
	r.sbt, r.pipeline = nil, nil
	r.deleted++
}

func (r *testRenderer) UniformData(info Info) []byte {
	r.infos = append(r.infos, info)
	data := make([]byte, testUniformSize)
	data[0] = byte(info.TotalSamples)
	return data
}

func (r *testRenderer) RecordFrame(enc hal.CommandEncoder, res *Resources, imageIndex uint32) error {
	if err := r.failRecord; err != nil {
		r.failRecord = nil
		return err
	}
	return RecordRayTracedFrame(enc, r.pipeline, r.sbt, res, imageIndex)
}

func (r *testRenderer) destroy() {
	r.builder.Delete()
	r.scene.Destroy()
}

type fixture struct {
	device    *noop.Device
	swapChain *hal.OffscreenSwapChain
	renderer  *testRenderer
	loop      *Loop
}

func newFixture(t *testing.T, width, height uint32, acc Accumulation) *fixture {
	t.Helper()
	d := noop.NewDevice()
	sc, err := hal.NewOffscreenSwapChain(d, hal.OffscreenDescriptor{Width: width, Height: height, ImageCount: 2})
	if err != nil {
		t.Fatalf("NewOffscreenSwapChain() error = %v", err)
	}
	r := newTestRenderer(t, d)
	l, err := NewLoop(d, sc, r, Config{UniformSize: testUniformSize, Accumulation: acc})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	return &fixture{device: d, swapChain: sc, renderer: r, loop: l}
}

func (f *fixture) close() {
	f.loop.Destroy()
	f.renderer.destroy()
	f.swapChain.Destroy()
}

// frameCommands returns the command buffers recorded by the loop.
func (f *fixture) frameCommands() []*noop.CommandBuffer {
	var out []*noop.CommandBuffer
	for _, cb := range f.device.Submitted {
		if strings.HasPrefix(cb.Label, "Frame #") {
			out = append(out, cb)
		}
	}
	return out
}

func TestRecordRayTracedFrameOrder(t *testing.T) {
	f := newFixture(t, 8, 4, Accumulation{Enabled: true, SamplesPerPixel: 8})
	defer f.close()

	if err := f.loop.DrawFrame(context.Background()); err != nil {
		t.Fatalf("DrawFrame() error = %v", err)
	}
	frames := f.frameCommands()
	if len(frames) != 1 {
		t.Fatalf("recorded %d frames, want 1", len(frames))
	}

	res := f.loop.Resources()
	target := res.SwapChainImage(0)
	type step struct {
		op       noop.Op
		image    hal.Image
		old, new hal.ImageLayout
	}
	want := []step{
		{noop.OpImageBarrier, res.AccumulationImage(), hal.ImageLayoutUndefined, hal.ImageLayoutGeneral},
		{noop.OpImageBarrier, res.OutputImage(), hal.ImageLayoutUndefined, hal.ImageLayoutGeneral},
		{op: noop.OpBindPipeline},
		{op: noop.OpBindDescriptorSet},
		{op: noop.OpTraceRays},
		{noop.OpImageBarrier, res.OutputImage(), hal.ImageLayoutGeneral, hal.ImageLayoutTransferSrc},
		{noop.OpImageBarrier, target, hal.ImageLayoutUndefined, hal.ImageLayoutTransferDst},
		{op: noop.OpCopyImage},
		{noop.OpImageBarrier, target, hal.ImageLayoutTransferDst, hal.ImageLayoutPresentSrc},
	}

	cmds := frames[0].Commands
	if len(cmds) != len(want) {
		t.Fatalf("recorded %d commands, want %d", len(cmds), len(want))
	}
	for i, w := range want {
		c := cmds[i]
		if c.Op != w.op {
			t.Fatalf("command %d = %s, want %s", i, c.Op, w.op)
		}
		if w.op != noop.OpImageBarrier {
			continue
		}
		b := c.ImageBarrier
		if b.Image != w.image || b.OldLayout != w.old || b.NewLayout != w.new {
			t.Errorf("command %d: barrier %s -> %s, want %s -> %s",
				i, b.OldLayout, b.NewLayout, w.old, w.new)
		}
	}

	trace := cmds[4]
	if trace.Width != 8 || trace.Height != 4 || trace.Depth != 1 {
		t.Errorf("TraceRays(%d, %d, %d), want (8, 4, 1)", trace.Width, trace.Height, trace.Depth)
	}
	if trace.Callable.Size != 0 {
		t.Errorf("callable region size = %d, want 0", trace.Callable.Size)
	}
	if cmds[3].Set != f.renderer.pipeline.DescriptorSet(0) {
		t.Error("descriptor set 0 not bound for image 0")
	}
	copyCmd := cmds[7]
	if copyCmd.SrcImage != res.OutputImage() || copyCmd.DstImage != target {
		t.Error("copy does not go from the output image to the presentable image")
	}
}

func TestDrawFramePresentsTracedImage(t *testing.T) {
	f := newFixture(t, 4, 4, Accumulation{Enabled: true, SamplesPerPixel: 1})
	defer f.close()

	for i := 0; i < 3; i++ {
		if err := f.loop.DrawFrame(context.Background()); err != nil {
			t.Fatalf("DrawFrame() #%d error = %v", i, err)
		}
	}
	img := f.swapChain.LastFrame()
	if img == nil {
		t.Fatal("nothing presented")
	}
	if img.Pix[0] != noop.TracedByte {
		t.Errorf("presented pixel byte = %#x, want %#x", img.Pix[0], noop.TracedByte)
	}
	if f.loop.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", f.loop.Frames())
	}

	// Frames in flight alternate, and so do presentable images and their sets.
	frames := f.frameCommands()
	for i, cb := range frames {
		set := cb.Commands[3].Set
		want := f.renderer.pipeline.DescriptorSet(i % 2)
		if set != want {
			t.Errorf("frame %d bound the wrong descriptor set", i)
		}
	}
}

func TestDrawFrameUniformBuffer(t *testing.T) {
	f := newFixture(t, 4, 4, Accumulation{Enabled: true, SamplesPerPixel: 3})
	defer f.close()

	for i := 0; i < 2; i++ {
		if err := f.loop.DrawFrame(context.Background()); err != nil {
			t.Fatalf("DrawFrame() error = %v", err)
		}
	}
	for i, buf := range f.loop.Resources().UniformBuffers() {
		got := buf.(*noop.Buffer).Bytes()[0]
		if want := byte(3 * (i + 1)); got != want {
			t.Errorf("uniform buffer %d total samples = %d, want %d", i, got, want)
		}
	}
}

func TestAccumulation(t *testing.T) {
	tests := []struct {
		name   string
		acc    Accumulation
		frames int
		reset  int // frame before which Reset is called, -1 for none
		want   []uint32
	}{
		{
			name:   "accumulates",
			acc:    Accumulation{Enabled: true, SamplesPerPixel: 8},
			frames: 3,
			reset:  -1,
			want:   []uint32{8, 16, 24},
		},
		{
			name:   "reset",
			acc:    Accumulation{Enabled: true, SamplesPerPixel: 8},
			frames: 4,
			reset:  2,
			want:   []uint32{8, 16, 8, 16},
		},
		{
			name:   "disabled",
			acc:    Accumulation{SamplesPerPixel: 4},
			frames: 3,
			reset:  -1,
			want:   []uint32{4, 4, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := tt.acc
			var got []uint32
			for i := 0; i < tt.frames; i++ {
				if i == tt.reset {
					acc.Reset()
				}
				acc.advance()
				got = append(got, acc.TotalSamples)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("TotalSamples = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSampleBudget(t *testing.T) {
	f := newFixture(t, 4, 4, Accumulation{Enabled: true, SamplesPerPixel: 8, MaxSamples: 16})
	defer f.close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := f.loop.DrawFrame(ctx); err != nil {
			t.Fatalf("DrawFrame() error = %v", err)
		}
	}
	if n := len(f.frameCommands()); n != 2 {
		t.Errorf("rendered %d frames, want 2", n)
	}
	if !f.loop.Converged() {
		t.Error("Converged() = false after reaching the budget")
	}

	f.loop.ResetAccumulation()
	if f.loop.Converged() {
		t.Error("Converged() = true after ResetAccumulation")
	}
	if err := f.loop.DrawFrame(ctx); err != nil {
		t.Fatalf("DrawFrame() error = %v", err)
	}
	if got := f.loop.Accumulation().TotalSamples; got != 8 {
		t.Errorf("TotalSamples after reset = %d, want 8", got)
	}
}

func TestResizeRebuild(t *testing.T) {
	f := newFixture(t, 8, 8, Accumulation{Enabled: true, SamplesPerPixel: 1})
	defer f.close()
	ctx := context.Background()

	if err := f.loop.DrawFrame(ctx); err != nil {
		t.Fatalf("DrawFrame() error = %v", err)
	}
	oldOutput := f.loop.Resources().OutputImage()

	f.swapChain.Resize(16, 4)
	if err := f.loop.DrawFrame(ctx); err != nil {
		t.Fatalf("DrawFrame() after resize error = %v", err)
	}
	if n := len(f.frameCommands()); n != 1 {
		t.Errorf("frame rendered during the rebuild: %d frames, want 1", n)
	}
	if f.device.WaitIdleCalls() != 1 {
		t.Errorf("WaitIdleCalls() = %d, want 1", f.device.WaitIdleCalls())
	}
	if f.loop.Rebuilds() != 1 {
		t.Errorf("Rebuilds() = %d, want 1", f.loop.Rebuilds())
	}
	if f.renderer.created != 2 || f.renderer.deleted != 1 {
		t.Errorf("renderer created %d, deleted %d, want 2 and 1", f.renderer.created, f.renderer.deleted)
	}

	res := f.loop.Resources()
	want := gputypes.NewExtent2D(16, 4)
	for name, got := range map[string]gputypes.Extent3D{
		"resources":    res.Extent(),
		"accumulation": res.AccumulationImage().Extent(),
		"output":       res.OutputImage().Extent(),
		"swap chain":   f.swapChain.Extent(),
	} {
		if got != want {
			t.Errorf("%s extent = %+v, want %+v", name, got, want)
		}
	}
	if res.OutputImage() == oldOutput {
		t.Error("output image was not recreated")
	}

	if err := f.loop.DrawFrame(ctx); err != nil {
		t.Fatalf("DrawFrame() after rebuild error = %v", err)
	}
	frames := f.frameCommands()
	trace := frames[len(frames)-1].Commands[4]
	if trace.Width != 16 || trace.Height != 4 {
		t.Errorf("TraceRays after resize = %dx%d, want 16x4", trace.Width, trace.Height)
	}
	if got := f.loop.Accumulation().TotalSamples; got != 1 {
		t.Errorf("TotalSamples after rebuild = %d, want 1", got)
	}
	if img := f.swapChain.LastFrame(); img.Bounds().Dx() != 16 || img.Bounds().Dy() != 4 {
		t.Errorf("presented frame = %v, want 16x4", img.Bounds())
	}
}

func TestDrawFrameCanceled(t *testing.T) {
	f := newFixture(t, 4, 4, Accumulation{Enabled: true, SamplesPerPixel: 1})
	defer f.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.loop.DrawFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("DrawFrame() error = %v, want context.Canceled", err)
	}
	if len(f.frameCommands()) != 0 {
		t.Error("a canceled DrawFrame recorded a frame")
	}
}

func TestLoopDestroyReleasesEverything(t *testing.T) {
	d := noop.NewDevice()
	sc, err := hal.NewOffscreenSwapChain(d, hal.OffscreenDescriptor{Width: 4, Height: 4, ImageCount: 3})
	if err != nil {
		t.Fatalf("NewOffscreenSwapChain() error = %v", err)
	}
	r := newTestRenderer(t, d)
	l, err := NewLoop(d, sc, r, Config{UniformSize: testUniformSize, Accumulation: Accumulation{SamplesPerPixel: 1}})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	if got := len(l.Resources().UniformBuffers()); got != 3 {
		t.Errorf("uniform buffers = %d, want 3", got)
	}
	for i := 0; i < 4; i++ {
		if err := l.DrawFrame(context.Background()); err != nil {
			t.Fatalf("DrawFrame() error = %v", err)
		}
	}

	l.Destroy()
	r.destroy()
	sc.Destroy()
	if live := d.Live(); len(live) != 0 {
		t.Errorf("live objects after destroy: %v", live)
	}
	if err := l.DrawFrame(context.Background()); err == nil {
		t.Error("DrawFrame() on a destroyed loop succeeded")
	}
}

func TestNewResourcesRejectsZeroUniform(t *testing.T) {
	d := noop.NewDevice()
	sc, err := hal.NewOffscreenSwapChain(d, hal.OffscreenDescriptor{Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("NewOffscreenSwapChain() error = %v", err)
	}
	defer sc.Destroy()
	if _, err := NewResources(d, sc, 0); err == nil {
		t.Error("NewResources() with a zero uniform size succeeded")
	}
}

func TestNewResourcesReleasesOnFault(t *testing.T) {
	d := noop.NewDevice()
	sc, err := hal.NewOffscreenSwapChain(d, hal.OffscreenDescriptor{Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("NewOffscreenSwapChain() error = %v", err)
	}
	defer sc.Destroy()
	base := d.LiveCount()

	d.InjectFault("CreateBuffer")
	if _, err := NewResources(d, sc, testUniformSize); !errors.Is(err, hal.ErrHardwareCall) {
		t.Fatalf("NewResources() error = %v, want ErrHardwareCall", err)
	}
	if d.LiveCount() != base {
		t.Errorf("LiveCount() = %d, want %d", d.LiveCount(), base)
	}
}

// watchedDevice records fence waits and can refuse the next frame submission.
// Work submitted by the swap chain goes to the underlying device directly.
type watchedDevice struct {
	*noop.Device
	waited     []hal.Fence
	failSubmit bool
}

func (d *watchedDevice) WaitFence(f hal.Fence, timeout time.Duration) error {
	d.waited = append(d.waited, f)
	return d.Device.WaitFence(f, timeout)
}

func (d *watchedDevice) Queue() hal.Queue {
	return &watchedQueue{Queue: d.Device.Queue(), device: d}
}

type watchedQueue struct {
	hal.Queue
	device *watchedDevice
}

func (q *watchedQueue) Submit(info *hal.SubmitInfo) error {
	if q.device.failSubmit {
		q.device.failSubmit = false
		return fmt.Errorf("%w: submission refused", hal.ErrHardwareCall)
	}
	return q.Queue.Submit(info)
}

// scriptedSwapChain hands out presentable images in a fixed order.
type scriptedSwapChain struct {
	*hal.OffscreenSwapChain
	order []uint32
}

func (s *scriptedSwapChain) AcquireNextImage(signal hal.Semaphore) (uint32, hal.SurfaceStatus, error) {
	index, status, err := s.OffscreenSwapChain.AcquireNextImage(signal)
	if err != nil || status == hal.StatusOutOfDate || len(s.order) == 0 {
		return index, status, err
	}
	index, s.order = s.order[0], s.order[1:]
	return index, status, nil
}

func newWatchedFixture(t *testing.T, order []uint32) (*fixture, *watchedDevice) {
	t.Helper()
	d := noop.NewDevice()
	sc, err := hal.NewOffscreenSwapChain(d, hal.OffscreenDescriptor{Width: 4, Height: 4, ImageCount: 2})
	if err != nil {
		t.Fatalf("NewOffscreenSwapChain() error = %v", err)
	}
	wd := &watchedDevice{Device: d}
	r := newTestRenderer(t, d)
	l, err := NewLoop(wd, &scriptedSwapChain{OffscreenSwapChain: sc, order: order}, r,
		Config{UniformSize: testUniformSize, Accumulation: Accumulation{Enabled: true, SamplesPerPixel: 1}})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	return &fixture{device: d, swapChain: sc, renderer: r, loop: l}, wd
}

func TestDrawFrameRecoversAfterFailure(t *testing.T) {
	tests := []struct {
		name   string
		inject func(f *fixture, wd *watchedDevice)
	}{
		{"record", func(f *fixture, _ *watchedDevice) { f.renderer.failRecord = errors.New("record refused") }},
		{"finish", func(f *fixture, _ *watchedDevice) { f.device.InjectFault("Finish") }},
		{"submit", func(_ *fixture, wd *watchedDevice) { wd.failSubmit = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, wd := newWatchedFixture(t, nil)
			defer f.close()

			tt.inject(f, wd)
			if err := f.loop.DrawFrame(context.Background()); err == nil {
				t.Fatal("DrawFrame() succeeded despite the failure")
			}
			for i := 0; i < 3; i++ {
				if err := f.loop.DrawFrame(context.Background()); err != nil {
					t.Fatalf("DrawFrame() #%d after the failure: %v", i, err)
				}
			}
			if f.loop.Frames() != 3 {
				t.Errorf("Frames() = %d, want 3", f.loop.Frames())
			}
		})
	}
}

func TestDrawFrameWaitsForImageOwner(t *testing.T) {
	f, wd := newWatchedFixture(t, []uint32{0, 1, 1, 0})
	defer f.close()

	fence0, fence1 := f.loop.frames[0].fence, f.loop.frames[1].fence
	tests := []struct {
		name  string
		waits []hal.Fence
		image int
	}{
		{"frame 0 on image 0", []hal.Fence{fence0}, 0},
		{"frame 1 on image 1", []hal.Fence{fence1}, 1},
		{"frame 0 on image 1", []hal.Fence{fence0, fence1}, 1},
		{"frame 1 on image 0", []hal.Fence{fence1, fence0}, 0},
	}
	for i, tt := range tests {
		wd.waited = nil
		if err := f.loop.DrawFrame(context.Background()); err != nil {
			t.Fatalf("%s: DrawFrame() error = %v", tt.name, err)
		}
		if len(wd.waited) != len(tt.waits) {
			t.Fatalf("%s: waited on %d fences, want %d", tt.name, len(wd.waited), len(tt.waits))
		}
		for j := range tt.waits {
			if wd.waited[j] != tt.waits[j] {
				t.Errorf("%s: wait %d on the wrong fence", tt.name, j)
			}
		}
		cb := f.frameCommands()[i]
		if cb.Commands[3].Set != f.renderer.pipeline.DescriptorSet(tt.image) {
			t.Errorf("%s: bound the descriptor set of another image", tt.name)
		}
	}
}

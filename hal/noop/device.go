package noop

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
)

func init() {
	hal.Register(hal.BackendNoop, func() hal.Backend { return Backend{} })
}

// addressBase is the first fake device address handed out.
const addressBase = 0x1000_0000

// DefaultProperties are the ray-tracing limits reported unless overridden.
var DefaultProperties = hal.RayTracingProperties{
	ShaderGroupHandleSize:      32,
	ShaderGroupBaseAlignment:   64,
	ShaderGroupHandleAlignment: 32,
	MaxShaderGroupStride:       4096,
	MaxRayRecursionDepth:       31,
	MinScratchOffsetAlignment:  128,
	MaxGeometryCount:           1 << 24,
	MaxInstanceCount:           1 << 24,
	MaxPrimitiveCount:          1 << 29,
}

// Backend implements hal.Backend with a single software adapter.
type Backend struct{}

// Name returns "noop".
func (Backend) Name() string { return hal.BackendNoop }

// Adapters returns the software adapter.
func (Backend) Adapters() ([]hal.AdapterInfo, error) {
	return []hal.AdapterInfo{adapterInfo(true)}, nil
}

// OpenDevice creates a device. Validation and the adapter index are ignored.
func (Backend) OpenDevice(opts hal.DeviceOptions) (hal.Device, error) {
	return NewDevice(), nil
}

func adapterInfo(rayTracing bool) hal.AdapterInfo {
	return hal.AdapterInfo{
		AdapterInfo: gpucontext.AdapterInfo{
			Name: "Noop Device",
			Type: gpucontext.AdapterTypeSoftware,
		},
		Driver:     "noop",
		APIVersion: "1.3.0",
		RayTracing: rayTracing,
	}
}

// Option configures a Device.
type Option func(*Device)

// WithoutRayTracing opens the device without the ray-tracing capability.
func WithoutRayTracing() Option {
	return func(d *Device) { d.rt = nil }
}

// WithProperties overrides the reported ray-tracing limits.
func WithProperties(p hal.RayTracingProperties) Option {
	return func(d *Device) {
		if d.rt != nil {
			d.rt.props = p
		}
	}
}

// Device implements hal.Device in host memory.
type Device struct {
	mu sync.Mutex

	rt    *RayTracing
	queue *Queue

	nextID      uint64
	nextAddress uint64

	live   map[uint64]string
	names  map[uint64]string
	faults map[string]error

	// Submitted holds every submitted command buffer in order.
	Submitted []*CommandBuffer

	// DestroyLog records "<Kind> <label>" for every destroyed resource, in order.
	DestroyLog []string

	waitIdleCalls int
}

// NewDevice creates a device with ray tracing enabled.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		nextAddress: addressBase,
		live:        make(map[uint64]string),
		names:       make(map[uint64]string),
		faults:      make(map[string]error),
	}
	d.rt = &RayTracing{device: d, props: DefaultProperties}
	d.queue = &Queue{device: d}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InjectFault makes the next call of op fail with a wrapped hal.ErrHardwareCall.
// op is the method name, e.g. "CreateBuffer" or "CreateAccelerationStructure".
func (d *Device) InjectFault(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = fmt.Errorf("%w: %s: injected fault", hal.ErrHardwareCall, op)
}

// fault consumes an injected fault. d.mu must be held.
func (d *Device) fault(op string) error {
	err, ok := d.faults[op]
	if !ok {
		return nil
	}
	delete(d.faults, op)
	return err
}

// track registers a live object and returns its id. d.mu must be held.
func (d *Device) track(kind, label string) uint64 {
	d.nextID++
	d.live[d.nextID] = kind + " " + label
	return d.nextID
}

// release removes a live object. d.mu must be held.
func (d *Device) release(id uint64) {
	desc, ok := d.live[id]
	if !ok {
		return
	}
	delete(d.live, id)
	d.DestroyLog = append(d.DestroyLog, desc)
}

// Live returns "<Kind> <label>" for every object not yet destroyed, sorted.
func (d *Device) Live() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.live))
	for _, desc := range d.live {
		out = append(out, desc)
	}
	sort.Strings(out)
	return out
}

// LiveCount returns the number of objects not yet destroyed.
func (d *Device) LiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// ObjectName returns the debug name set on a handle.
func (d *Device) ObjectName(obj hal.NativeHandle) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.names[obj.NativeHandle()]
}

// WaitIdleCalls returns how often WaitIdle was called.
func (d *Device) WaitIdleCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitIdleCalls
}

// Info describes the software adapter.
func (d *Device) Info() hal.AdapterInfo { return adapterInfo(d.rt != nil) }

// Queue returns the device queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// RayTracing returns the ray-tracing capability or nil.
func (d *Device) RayTracing() hal.RayTracing {
	if d.rt == nil {
		return nil
	}
	return d.rt
}

// CreateBuffer allocates host memory for a buffer.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault("CreateBuffer"); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: CreateBuffer %q: zero size", hal.ErrHardwareCall, desc.Label)
	}
	b := &Buffer{
		id:   d.track("Buffer", desc.Label),
		desc: *desc,
		base: d.nextAddress,
		data: make([]byte, desc.Size),
	}
	d.nextAddress += roundUp(desc.Size, 256)
	return b, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(b.NativeHandle())
}

// MapBuffer returns the host view of a host-visible buffer.
func (d *Device) MapBuffer(b hal.Buffer) ([]byte, error) {
	buf := b.(*Buffer)
	if buf.desc.Memory != hal.MemoryHostVisible {
		return nil, fmt.Errorf("%w: %q", hal.ErrNotHostVisible, buf.desc.Label)
	}
	buf.mapped = true
	return buf.data, nil
}

// UnmapBuffer ends a mapping.
func (d *Device) UnmapBuffer(b hal.Buffer) { b.(*Buffer).mapped = false }

// CreateImage allocates host memory for an image.
func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault("CreateImage"); err != nil {
		return nil, err
	}
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return nil, fmt.Errorf("%w: CreateImage %q: zero extent", hal.ErrHardwareCall, desc.Label)
	}
	size := uint64(desc.Extent.Width) * uint64(desc.Extent.Height) * texelSize(desc.Format)
	return &Image{
		id:   d.track("Image", desc.Label),
		desc: *desc,
		data: make([]byte, size),
	}, nil
}

func texelSize(f gputypes.TextureFormat) uint64 {
	if f == gputypes.TextureFormatRGBA32Float {
		return 16
	}
	return 4
}

// DestroyImage releases an image.
func (d *Device) DestroyImage(img hal.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(img.NativeHandle())
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Sampler{handle{d.track("Sampler", desc.Label)}}, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(s hal.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(s.NativeHandle())
}

// CreateShaderModule keeps a copy of the code.
func (d *Device) CreateShaderModule(label string, spirv []uint32) (hal.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(spirv) == 0 {
		return nil, fmt.Errorf("%w: CreateShaderModule %q: empty code", hal.ErrHardwareCall, label)
	}
	return &ShaderModule{
		handle: handle{d.track("ShaderModule", label)},
		Label:  label,
		Code:   append([]uint32(nil), spirv...),
	}, nil
}

// DestroyShaderModule releases a module.
func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(m.NativeHandle())
}

// CreateDescriptorSetLayout creates a layout. Duplicate binding numbers are rejected.
func (d *Device) CreateDescriptorSetLayout(desc *hal.DescriptorSetLayoutDescriptor) (hal.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[uint32]bool, len(desc.Bindings))
	for _, b := range desc.Bindings {
		if seen[b.Binding] {
			return nil, fmt.Errorf("%w: CreateDescriptorSetLayout %q: duplicate binding %d",
				hal.ErrHardwareCall, desc.Label, b.Binding)
		}
		seen[b.Binding] = true
	}
	return &DescriptorSetLayout{
		handle:   handle{d.track("DescriptorSetLayout", desc.Label)},
		Label:    desc.Label,
		bindings: append([]hal.DescriptorBinding(nil), desc.Bindings...),
	}, nil
}

// DestroyDescriptorSetLayout releases a layout.
func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(l.NativeHandle())
}

// CreateDescriptorSets allocates count sets from a new pool.
func (d *Device) CreateDescriptorSets(layout hal.DescriptorSetLayout, count int) (hal.DescriptorPool, []hal.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := layout.(*DescriptorSetLayout)
	pool := &DescriptorPool{handle: handle{d.track("DescriptorPool", l.Label)}}
	sets := make([]hal.DescriptorSet, count)
	for i := range sets {
		d.nextID++
		s := &DescriptorSet{
			handle:      handle{d.nextID},
			Layout:      l,
			Writes:      make(map[uint32]hal.DescriptorWrite),
			WriteCounts: make(map[uint32]int),
		}
		pool.Sets = append(pool.Sets, s)
		sets[i] = s
	}
	return pool, sets, nil
}

// DestroyDescriptorPool releases a pool and its sets.
func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(p.NativeHandle())
}

// UpdateDescriptorSet validates writes against the layout and records them.
func (d *Device) UpdateDescriptorSet(set hal.DescriptorSet, writes []hal.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := set.(*DescriptorSet)
	for i := range writes {
		w := writes[i]
		b, ok := s.Layout.binding(w.Binding)
		if !ok {
			return fmt.Errorf("%w: binding %d", hal.ErrMissingDescriptorBinding, w.Binding)
		}
		if b.Type != w.Type {
			return fmt.Errorf("%w: UpdateDescriptorSet: binding %d is %s, write is %s",
				hal.ErrHardwareCall, w.Binding, b.Type, w.Type)
		}
		if n := w.Count(); n == 0 || uint32(n) > b.Count {
			return fmt.Errorf("%w: UpdateDescriptorSet: binding %d takes %d descriptors, got %d",
				hal.ErrHardwareCall, w.Binding, b.Count, n)
		}
		s.Writes[w.Binding] = w
		s.WriteCounts[w.Binding]++
	}
	return nil
}

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &PipelineLayout{
		handle:     handle{d.track("PipelineLayout", desc.Label)},
		SetLayouts: append([]hal.DescriptorSetLayout(nil), desc.SetLayouts...),
	}, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(l.NativeHandle())
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Module == nil || desc.EntryPoint == "" {
		return nil, fmt.Errorf("%w: CreateComputePipeline %q: missing shader", hal.ErrHardwareCall, desc.Label)
	}
	c := *desc
	return &Pipeline{
		handle:  handle{d.track("Pipeline", desc.Label)},
		Label:   desc.Label,
		Compute: &c,
	}, nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(p hal.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(p.NativeHandle())
}

// CreateCommandEncoder begins a recording.
func (d *Device) CreateCommandEncoder(label string) (hal.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := &CommandBuffer{handle: handle{d.track("CommandBuffer", label)}, Label: label}
	return &Encoder{device: d, cb: cb}, nil
}

// FreeCommandBuffer releases a command buffer.
func (d *Device) FreeCommandBuffer(cb hal.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(cb.NativeHandle())
}

// CreateFence creates a fence.
func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Fence{handle: handle{d.track("Fence", "")}, signaled: signaled}, nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(f hal.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(f.NativeHandle())
}

// WaitFence returns immediately. Submissions complete synchronously, so an
// unsignaled fence can never become signaled and the wait times out.
func (d *Device) WaitFence(f hal.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !f.(*Fence).signaled {
		return fmt.Errorf("%w: fence not signaled after %s", hal.ErrTimeout, timeout)
	}
	return nil
}

// ResetFence unsignals a fence.
func (d *Device) ResetFence(f hal.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f.(*Fence).signaled = false
	return nil
}

// CreateSemaphore creates a semaphore.
func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Semaphore{handle: handle{d.track("Semaphore", "")}}, nil
}

// DestroySemaphore releases a semaphore.
func (d *Device) DestroySemaphore(s hal.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(s.NativeHandle())
}

// SetObjectName records a debug name.
func (d *Device) SetObjectName(obj hal.NativeHandle, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[obj.NativeHandle()] = name
}

// WaitIdle counts the call and returns.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitIdleCalls++
	return nil
}

// Destroy logs objects that were never destroyed.
func (d *Device) Destroy() {
	if live := d.Live(); len(live) > 0 {
		hal.Logger().Warn("noop: device destroyed with live objects", "count", len(live), "objects", live)
	}
}

func roundUp(v, granularity uint64) uint64 {
	return (v + granularity - 1) / granularity * granularity
}

//go:build !(js && wasm)

package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/memory"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Device implements hal.Device.
type Device struct {
	instance *instance
	adapter  *adapter
	handle   vk.Device
	cmds     *vk.Commands
	queue    *Queue
	rt       *RayTracing

	selector      *memory.MemoryTypeSelector
	procs         rtProcs
	bufferAddress bool

	poolMu      sync.Mutex
	commandPool vk.CommandPool
}

var _ hal.Device = (*Device)(nil)

// deviceFeatures is the feature chain queried from and passed to the driver.
type deviceFeatures struct {
	core            vk.PhysicalDeviceFeatures
	vulkan12        vk.PhysicalDeviceVulkan12Features
	accelStructure  vk.PhysicalDeviceAccelerationStructureFeaturesKHR
	rayTracingPipes vk.PhysicalDeviceRayTracingPipelineFeaturesKHR
}

// chain links the structures. The returned pointer heads the pNext chain.
func (f *deviceFeatures) chain(rayTracing bool) *uintptr {
	f.vulkan12.SType = vk.StructureTypePhysicalDeviceVulkan12Features
	f.accelStructure.SType = vk.StructureTypePhysicalDeviceAccelerationStructureFeaturesKhr
	f.rayTracingPipes.SType = vk.StructureTypePhysicalDeviceRayTracingPipelineFeaturesKhr
	f.vulkan12.PNext = nil
	if rayTracing {
		f.vulkan12.PNext = (*uintptr)(unsafe.Pointer(&f.accelStructure))
		f.accelStructure.PNext = (*uintptr)(unsafe.Pointer(&f.rayTracingPipes))
	}
	return (*uintptr)(unsafe.Pointer(&f.vulkan12))
}

func (a *adapter) supportedFeatures() deviceFeatures {
	var f deviceFeatures
	if !a.instance.cmds.HasPhysicalDeviceFeatures2() {
		a.instance.cmds.GetPhysicalDeviceFeatures(a.physicalDevice, &f.core)
		return f
	}
	features2 := vk.PhysicalDeviceFeatures2{
		SType: vk.StructureTypePhysicalDeviceFeatures2,
		PNext: f.chain(a.rayTracing),
	}
	a.instance.cmds.GetPhysicalDeviceFeatures2(a.physicalDevice, &features2)
	f.core = features2.Features
	return f
}

func (a *adapter) open(opts hal.DeviceOptions) (*Device, error) {
	if a.queueFamily < 0 {
		return nil, fmt.Errorf("%w: %s has no graphics and compute queue", ErrNoAdapter, a.name)
	}
	supported := a.supportedFeatures()
	rayTracing := a.rayTracing &&
		supported.vulkan12.BufferDeviceAddress != 0 &&
		supported.accelStructure.AccelerationStructure != 0 &&
		supported.rayTracingPipes.RayTracingPipeline != 0
	if opts.RequireRayTracing && !rayTracing {
		return nil, fmt.Errorf("%w: %s does not enable ray tracing features", hal.ErrMissingEntryPoint, a.name)
	}

	var enabled deviceFeatures
	enabled.core.SamplerAnisotropy = supported.core.SamplerAnisotropy
	enabled.core.ShaderInt64 = supported.core.ShaderInt64
	enabled.vulkan12.BufferDeviceAddress = supported.vulkan12.BufferDeviceAddress
	enabled.vulkan12.DescriptorIndexing = supported.vulkan12.DescriptorIndexing
	enabled.vulkan12.RuntimeDescriptorArray = supported.vulkan12.RuntimeDescriptorArray
	enabled.vulkan12.ShaderSampledImageArrayNonUniformIndexing = supported.vulkan12.ShaderSampledImageArrayNonUniformIndexing
	enabled.vulkan12.ScalarBlockLayout = supported.vulkan12.ScalarBlockLayout
	if rayTracing {
		enabled.accelStructure.AccelerationStructure = vk.Bool32(vk.True)
		enabled.rayTracingPipes.RayTracingPipeline = vk.Bool32(vk.True)
	}

	var extensions []string
	if rayTracing {
		for _, ext := range rayTracingExtensions {
			extensions = append(extensions, ext+"\x00")
		}
		for _, ext := range []string{"VK_KHR_spirv_1_4", "VK_KHR_shader_float_controls"} {
			if a.extensions[ext] {
				extensions = append(extensions, ext+"\x00")
			}
		}
	}
	extensionPtrs := cStringArray(extensions)

	priority := float32(1)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(a.queueFamily),
		QueueCount:       1,
		PQueuePriorities: &priority,
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                 vk.StructureTypeDeviceCreateInfo,
		PNext:                 enabled.chain(rayTracing),
		QueueCreateInfoCount:  1,
		PQueueCreateInfos:     &queueInfo,
		EnabledExtensionCount: uint32(len(extensions)),
		PEnabledFeatures:      &enabled.core,
	}
	if len(extensionPtrs) > 0 {
		createInfo.PpEnabledExtensionNames = uintptr(unsafe.Pointer(&extensionPtrs[0]))
	}

	var handle vk.Device
	result := a.instance.cmds.CreateDevice(a.physicalDevice, &createInfo, nil, &handle)
	runtime.KeepAlive(extensions)
	runtime.KeepAlive(extensionPtrs)
	runtime.KeepAlive(&enabled)
	if err := check("vkCreateDevice", result); err != nil {
		return nil, err
	}

	d := &Device{
		instance:      a.instance,
		adapter:       a,
		handle:        handle,
		cmds:          vk.NewCommands(),
		bufferAddress: enabled.vulkan12.BufferDeviceAddress != 0,
	}
	if err := d.cmds.LoadDevice(handle); err != nil {
		a.instance.cmds.DestroyDevice(handle, nil)
		return nil, fmt.Errorf("vulkan: failed to load device commands: %w", err)
	}
	if err := d.init(rayTracing, opts.RequireRayTracing); err != nil {
		d.Destroy()
		return nil, err
	}

	hal.Logger().Info("vulkan: device created",
		"adapter", a.name,
		"apiVersion", versionString(a.properties.ApiVersion),
		"rayTracing", d.rt != nil,
		"validation", a.instance.debug,
	)
	return d, nil
}

func (d *Device) init(rayTracing, required bool) error {
	var q vk.Queue
	d.cmds.GetDeviceQueue(d.handle, uint32(d.adapter.queueFamily), 0, &q)
	d.queue = &Queue{device: d, handle: q}

	d.selector = memory.NewMemoryTypeSelector(d.memoryProperties())

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(d.adapter.queueFamily),
	}
	if err := check("vkCreateCommandPool", d.cmds.CreateCommandPool(d.handle, &poolInfo, nil, &d.commandPool)); err != nil {
		return err
	}

	if d.bufferAddress {
		if err := d.procs.loadBufferAddressProc(d.handle); err != nil {
			return err
		}
	}
	if !rayTracing {
		return nil
	}
	if err := d.procs.loadRayTracingProcs(d.handle); err != nil {
		if required {
			return err
		}
		hal.Logger().Warn("vulkan: ray tracing disabled", "error", err)
		return nil
	}
	d.rt = &RayTracing{device: d, props: d.rayTracingProperties()}
	return nil
}

func (d *Device) memoryProperties() memory.DeviceMemoryProperties {
	var vkProps vk.PhysicalDeviceMemoryProperties
	d.instance.cmds.GetPhysicalDeviceMemoryProperties(d.adapter.physicalDevice, &vkProps)

	props := memory.DeviceMemoryProperties{
		MemoryTypes: make([]memory.MemoryType, vkProps.MemoryTypeCount),
		MemoryHeaps: make([]memory.MemoryHeap, vkProps.MemoryHeapCount),
	}
	for i := uint32(0); i < vkProps.MemoryTypeCount; i++ {
		props.MemoryTypes[i] = memory.MemoryType{
			PropertyFlags: vkProps.MemoryTypes[i].PropertyFlags,
			HeapIndex:     vkProps.MemoryTypes[i].HeapIndex,
		}
	}
	for i := uint32(0); i < vkProps.MemoryHeapCount; i++ {
		props.MemoryHeaps[i] = memory.MemoryHeap{
			Size:  uint64(vkProps.MemoryHeaps[i].Size),
			Flags: vkProps.MemoryHeaps[i].Flags,
		}
	}
	return props
}

func (d *Device) rayTracingProperties() hal.RayTracingProperties {
	asProps := vk.PhysicalDeviceAccelerationStructurePropertiesKHR{
		SType: vk.StructureTypePhysicalDeviceAccelerationStructurePropertiesKhr,
	}
	rtProps := vk.PhysicalDeviceRayTracingPipelinePropertiesKHR{
		SType: vk.StructureTypePhysicalDeviceRayTracingPipelinePropertiesKhr,
		PNext: (*uintptr)(unsafe.Pointer(&asProps)),
	}
	props2 := vk.PhysicalDeviceProperties2{
		SType: vk.StructureTypePhysicalDeviceProperties2,
		PNext: (*uintptr)(unsafe.Pointer(&rtProps)),
	}
	d.instance.cmds.GetPhysicalDeviceProperties2(d.adapter.physicalDevice, &props2)
	return hal.RayTracingProperties{
		ShaderGroupHandleSize:      rtProps.ShaderGroupHandleSize,
		ShaderGroupBaseAlignment:   rtProps.ShaderGroupBaseAlignment,
		ShaderGroupHandleAlignment: rtProps.ShaderGroupHandleAlignment,
		MaxShaderGroupStride:       rtProps.MaxShaderGroupStride,
		MaxRayRecursionDepth:       rtProps.MaxRayRecursionDepth,
		MinScratchOffsetAlignment:  asProps.MinAccelerationStructureScratchOffsetAlignment,
		MaxGeometryCount:           asProps.MaxGeometryCount,
		MaxInstanceCount:           asProps.MaxInstanceCount,
		MaxPrimitiveCount:          asProps.MaxPrimitiveCount,
	}
}

// Info describes the physical device.
func (d *Device) Info() hal.AdapterInfo {
	info := d.adapter.info()
	info.RayTracing = d.rt != nil
	return info
}

// Queue returns the device queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// RayTracing returns the ray-tracing capability, or nil.
func (d *Device) RayTracing() hal.RayTracing {
	if d.rt == nil {
		return nil
	}
	return d.rt
}

// SetObjectName labels an object for validation messages and capture tools.
func (d *Device) SetObjectName(obj hal.NativeHandle, name string) {
	var objectType vk.ObjectType
	switch obj.(type) {
	case *Buffer:
		objectType = vk.ObjectTypeBuffer
	case *Image:
		objectType = vk.ObjectTypeImage
	case *Pipeline:
		objectType = vk.ObjectTypePipeline
	case *PipelineLayout:
		objectType = vk.ObjectTypePipelineLayout
	case *DescriptorSetLayout:
		objectType = vk.ObjectTypeDescriptorSetLayout
	case *DescriptorSet:
		objectType = vk.ObjectTypeDescriptorSet
	case *ShaderModule:
		objectType = vk.ObjectTypeShaderModule
	case *Sampler:
		objectType = vk.ObjectTypeSampler
	case *CommandBuffer:
		objectType = vk.ObjectTypeCommandBuffer
	case *AccelerationStructure:
		objectType = vk.ObjectTypeAccelerationStructureKhr
	default:
		return
	}
	d.setObjectName(objectType, obj.NativeHandle(), name)
}

func (d *Device) setObjectName(objectType vk.ObjectType, handle uint64, name string) {
	if !d.instance.debug || !d.instance.cmds.HasDebugUtils() || handle == 0 || name == "" {
		return
	}
	buf := append([]byte(name), 0)
	info := vk.DebugUtilsObjectNameInfoEXT{
		SType:        vk.StructureTypeDebugUtilsObjectNameInfoExt,
		ObjectType:   objectType,
		ObjectHandle: handle,
		PObjectName:  uintptr(unsafe.Pointer(&buf[0])),
	}
	_ = d.instance.cmds.SetDebugUtilsObjectNameEXT(d.handle, &info)
	runtime.KeepAlive(buf)
}

// Fence is a VkFence.
type Fence struct {
	handle vk.Fence
}

// NativeHandle returns the VkFence.
func (f *Fence) NativeHandle() uint64 { return uint64(f.handle) }

// CreateFence creates a fence, optionally already signaled.
func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &Fence{}
	if err := check("vkCreateFence", d.cmds.CreateFence(d.handle, &info, nil, &f.handle)); err != nil {
		return nil, err
	}
	return f, nil
}

// DestroyFence destroys a fence.
func (d *Device) DestroyFence(f hal.Fence) {
	if vf, ok := f.(*Fence); ok && vf.handle != 0 {
		d.cmds.DestroyFence(d.handle, vf.handle, nil)
		vf.handle = 0
	}
}

// WaitFence blocks until f is signaled or timeout elapses.
func (d *Device) WaitFence(f hal.Fence, timeout time.Duration) error {
	vf := f.(*Fence)
	result := d.cmds.WaitForFences(d.handle, 1, &vf.handle, vk.Bool32(vk.True), uint64(timeout.Nanoseconds()))
	if result == vk.Timeout {
		return fmt.Errorf("%w: fence after %s", hal.ErrTimeout, timeout)
	}
	return check("vkWaitForFences", result)
}

// ResetFence returns f to the unsignaled state.
func (d *Device) ResetFence(f hal.Fence) error {
	vf := f.(*Fence)
	return check("vkResetFences", d.cmds.ResetFences(d.handle, 1, &vf.handle))
}

// Semaphore is a binary VkSemaphore.
type Semaphore struct {
	handle vk.Semaphore
}

// NativeHandle returns the VkSemaphore.
func (s *Semaphore) NativeHandle() uint64 { return uint64(s.handle) }

// CreateSemaphore creates a binary semaphore.
func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	s := &Semaphore{}
	if err := check("vkCreateSemaphore", d.cmds.CreateSemaphore(d.handle, &info, nil, &s.handle)); err != nil {
		return nil, err
	}
	return s, nil
}

// DestroySemaphore destroys a semaphore.
func (d *Device) DestroySemaphore(s hal.Semaphore) {
	if vs, ok := s.(*Semaphore); ok && vs.handle != 0 {
		d.cmds.DestroySemaphore(d.handle, vs.handle, nil)
		vs.handle = 0
	}
}

// WaitIdle blocks until the device has finished all work.
func (d *Device) WaitIdle() error {
	return check("vkDeviceWaitIdle", d.cmds.DeviceWaitIdle(d.handle))
}

// Destroy releases the command pool, the device and the instance it owns.
func (d *Device) Destroy() {
	if d.handle == 0 {
		return
	}
	_ = d.cmds.DeviceWaitIdle(d.handle)
	if d.commandPool != 0 {
		d.cmds.DestroyCommandPool(d.handle, d.commandPool, nil)
		d.commandPool = 0
	}
	d.cmds.DestroyDevice(d.handle, nil)
	d.handle = 0
	d.instance.destroy()
	hal.Logger().Debug("vulkan: device destroyed", "adapter", d.adapter.name)
}

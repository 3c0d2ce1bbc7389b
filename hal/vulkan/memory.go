//go:build !(js && wasm)

package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/memory"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// allocation is a dedicated VkDeviceMemory block owned by one resource.
type allocation struct {
	memory vk.DeviceMemory
	size   uint64
	mapped []byte
}

func (d *Device) allocate(req vk.MemoryRequirements, location hal.MemoryLocation, deviceAddress bool) (*allocation, error) {
	usage := memory.UsageFastDeviceAccess
	if location == hal.MemoryHostVisible {
		usage = memory.UsageHostAccess | memory.UsageUpload
	}
	typeIndex, ok := d.selector.SelectMemoryType(memory.AllocationRequest{
		Size:           uint64(req.Size),
		Alignment:      uint64(req.Alignment),
		Usage:          usage,
		MemoryTypeBits: req.MemoryTypeBits,
	})
	if !ok {
		return nil, fmt.Errorf("%w: no %s memory type in mask 0x%x", hal.ErrHardwareCall, location, req.MemoryTypeBits)
	}

	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}
	flagsInfo := vk.MemoryAllocateFlagsInfo{
		SType: structureTypeMemoryAllocateFlagsInfo,
		Flags: memoryAllocateDeviceAddressBit,
	}
	if deviceAddress {
		info.PNext = (*uintptr)(unsafe.Pointer(&flagsInfo))
	}

	a := &allocation{size: uint64(req.Size)}
	if err := check("vkAllocateMemory", d.cmds.AllocateMemory(d.handle, &info, nil, &a.memory)); err != nil {
		return nil, err
	}

	if location == hal.MemoryHostVisible {
		if !d.selector.IsHostVisible(typeIndex) {
			d.cmds.FreeMemory(d.handle, a.memory, nil)
			return nil, fmt.Errorf("%w: memory type %d", hal.ErrNotHostVisible, typeIndex)
		}
		var ptr uintptr
		if err := check("vkMapMemory", d.cmds.MapMemory(d.handle, a.memory, 0, vk.DeviceSize(vk.WholeSize), 0, uintptr(unsafe.Pointer(&ptr)))); err != nil {
			d.cmds.FreeMemory(d.handle, a.memory, nil)
			return nil, err
		}
		a.mapped = unsafe.Slice(ptrFromUintptr(ptr), a.size)
	}
	return a, nil
}

func (d *Device) free(a *allocation) {
	if a == nil || a.memory == 0 {
		return
	}
	if a.mapped != nil {
		d.cmds.UnmapMemory(d.handle, a.memory)
		a.mapped = nil
	}
	d.cmds.FreeMemory(d.handle, a.memory, nil)
	a.memory = 0
}

// ptrFromUintptr converts a pointer returned by the driver into a Go pointer.
func ptrFromUintptr(p uintptr) *byte {
	return *(**byte)(unsafe.Pointer(&p))
}

// Buffer is a VkBuffer with its dedicated memory.
type Buffer struct {
	handle  vk.Buffer
	size    uint64
	address uint64
	memory  *allocation
}

// NativeHandle returns the VkBuffer.
func (b *Buffer) NativeHandle() uint64 { return uint64(b.handle) }

// Size returns the requested size.
func (b *Buffer) Size() uint64 { return b.size }

// DeviceAddress returns the buffer device address, or 0.
func (b *Buffer) DeviceAddress() uint64 { return b.address }

// CreateBuffer creates a buffer with dedicated memory. Host-visible buffers
// stay persistently mapped.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("vulkan: buffer %q has zero size", desc.Label)
	}
	deviceAddress := desc.Usage.Contains(hal.BufferUsageShaderDeviceAddress)
	if deviceAddress && !d.bufferAddress {
		return nil, fmt.Errorf("%w: buffer device address not enabled", hal.ErrMissingEntryPoint)
	}

	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsageToVk(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	b := &Buffer{size: desc.Size}
	if err := check("vkCreateBuffer", d.cmds.CreateBuffer(d.handle, &info, nil, &b.handle)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	d.cmds.GetBufferMemoryRequirements(d.handle, b.handle, &req)
	mem, err := d.allocate(req, desc.Memory, deviceAddress)
	if err != nil {
		d.cmds.DestroyBuffer(d.handle, b.handle, nil)
		return nil, fmt.Errorf("vulkan: buffer %q: %w", desc.Label, err)
	}
	b.memory = mem
	if err := check("vkBindBufferMemory", d.cmds.BindBufferMemory(d.handle, b.handle, mem.memory, 0)); err != nil {
		d.free(mem)
		d.cmds.DestroyBuffer(d.handle, b.handle, nil)
		return nil, err
	}
	if deviceAddress {
		if b.address, err = d.procs.bufferDeviceAddress(d.handle, b.handle); err != nil {
			d.cmds.DestroyBuffer(d.handle, b.handle, nil)
			d.free(mem)
			return nil, fmt.Errorf("vulkan: buffer %q: %w", desc.Label, err)
		}
	}

	d.setObjectName(vk.ObjectTypeBuffer, uint64(b.handle), desc.Label)
	hal.Logger().Debug("vulkan: buffer created",
		"label", desc.Label,
		"size", desc.Size,
		"memory", desc.Memory,
		"allocated", mem.size,
	)
	return b, nil
}

// DestroyBuffer destroys a buffer and frees its memory.
func (d *Device) DestroyBuffer(b hal.Buffer) {
	vb, ok := b.(*Buffer)
	if !ok || vb.handle == 0 {
		return
	}
	d.cmds.DestroyBuffer(d.handle, vb.handle, nil)
	d.free(vb.memory)
	vb.handle = 0
	vb.address = 0
}

// MapBuffer returns the persistent host mapping of a host-visible buffer.
func (d *Device) MapBuffer(b hal.Buffer) ([]byte, error) {
	vb := b.(*Buffer)
	if vb.memory == nil || vb.memory.mapped == nil {
		return nil, hal.ErrNotHostVisible
	}
	return vb.memory.mapped[:vb.size:vb.size], nil
}

// UnmapBuffer is a no-op: host-visible memory stays mapped until destroyed.
func (d *Device) UnmapBuffer(hal.Buffer) {}

//go:build !(js && wasm)

package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Image is a 2D VkImage with its default view.
type Image struct {
	handle vk.Image
	view   vk.ImageView
	extent gputypes.Extent3D
	format gputypes.TextureFormat
	memory *allocation
}

// NativeHandle returns the VkImage.
func (i *Image) NativeHandle() uint64 { return uint64(i.handle) }

// Extent returns the image size.
func (i *Image) Extent() gputypes.Extent3D { return i.extent }

// Format returns the texel format.
func (i *Image) Format() gputypes.TextureFormat { return i.format }

var colorRange = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

var colorLayers = vk.ImageSubresourceLayers{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LayerCount: 1,
}

// CreateImage creates a device-local optimal-tiling image and its view.
func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	format := textureFormatToVk(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("vulkan: image %q: unsupported format %v", desc.Label, desc.Format)
	}
	depth := desc.Extent.DepthOrArrayLayers
	if depth == 0 {
		depth = 1
	}
	info := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   depth,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsageToVk(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	img := &Image{extent: desc.Extent, format: desc.Format}
	if err := check("vkCreateImage", d.cmds.CreateImage(d.handle, &info, nil, &img.handle)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	d.cmds.GetImageMemoryRequirements(d.handle, img.handle, &req)
	mem, err := d.allocate(req, hal.MemoryDeviceLocal, false)
	if err != nil {
		d.cmds.DestroyImage(d.handle, img.handle, nil)
		return nil, fmt.Errorf("vulkan: image %q: %w", desc.Label, err)
	}
	img.memory = mem
	if err := check("vkBindImageMemory", d.cmds.BindImageMemory(d.handle, img.handle, mem.memory, 0)); err != nil {
		d.destroyImage(img)
		return nil, err
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: colorRange,
	}
	if err := check("vkCreateImageView", d.cmds.CreateImageView(d.handle, &viewInfo, nil, &img.view)); err != nil {
		d.destroyImage(img)
		return nil, err
	}

	d.setObjectName(vk.ObjectTypeImage, uint64(img.handle), desc.Label)
	return img, nil
}

// DestroyImage destroys an image, its view and its memory.
func (d *Device) DestroyImage(img hal.Image) {
	if vi, ok := img.(*Image); ok {
		d.destroyImage(vi)
	}
}

func (d *Device) destroyImage(img *Image) {
	if img.view != 0 {
		d.cmds.DestroyImageView(d.handle, img.view, nil)
		img.view = 0
	}
	if img.handle != 0 {
		d.cmds.DestroyImage(d.handle, img.handle, nil)
		img.handle = 0
	}
	d.free(img.memory)
}

// Sampler is a VkSampler.
type Sampler struct {
	handle vk.Sampler
}

// NativeHandle returns the VkSampler.
func (s *Sampler) NativeHandle() uint64 { return uint64(s.handle) }

// CreateSampler creates a linear sampler.
func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	address := vk.SamplerAddressModeRepeat
	if desc.ClampToEdge {
		address = vk.SamplerAddressModeClampToEdge
	}
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,
		CompareOp:    vk.CompareOpNever,
		MaxLod:       vk.LodClampNone,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
	}
	if desc.Anisotropy > 1 {
		info.AnisotropyEnable = vk.Bool32(vk.True)
		info.MaxAnisotropy = desc.Anisotropy
	}
	s := &Sampler{}
	if err := check("vkCreateSampler", d.cmds.CreateSampler(d.handle, &info, nil, &s.handle)); err != nil {
		return nil, err
	}
	d.setObjectName(vk.ObjectTypeSampler, uint64(s.handle), desc.Label)
	return s, nil
}

// DestroySampler destroys a sampler.
func (d *Device) DestroySampler(s hal.Sampler) {
	if vs, ok := s.(*Sampler); ok && vs.handle != 0 {
		d.cmds.DestroySampler(d.handle, vs.handle, nil)
		vs.handle = 0
	}
}

// ShaderModule is a VkShaderModule.
type ShaderModule struct {
	handle vk.ShaderModule
}

// NativeHandle returns the VkShaderModule.
func (m *ShaderModule) NativeHandle() uint64 { return uint64(m.handle) }

// CreateShaderModule creates a module from SPIR-V words.
func (d *Device) CreateShaderModule(label string, spirv []uint32) (hal.ShaderModule, error) {
	if len(spirv) == 0 {
		return nil, fmt.Errorf("vulkan: shader module %q is empty", label)
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uintptr(len(spirv) * 4),
		PCode:    &spirv[0],
	}
	m := &ShaderModule{}
	if err := check("vkCreateShaderModule", d.cmds.CreateShaderModule(d.handle, &info, nil, &m.handle)); err != nil {
		return nil, fmt.Errorf("vulkan: shader module %q: %w", label, err)
	}
	d.setObjectName(vk.ObjectTypeShaderModule, uint64(m.handle), label)
	return m, nil
}

// DestroyShaderModule destroys a shader module.
func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	if vm, ok := m.(*ShaderModule); ok && vm.handle != 0 {
		d.cmds.DestroyShaderModule(d.handle, vm.handle, nil)
		vm.handle = 0
	}
}

// DescriptorSetLayout is a VkDescriptorSetLayout that remembers its bindings.
type DescriptorSetLayout struct {
	handle   vk.DescriptorSetLayout
	bindings []hal.DescriptorBinding
}

// NativeHandle returns the VkDescriptorSetLayout.
func (l *DescriptorSetLayout) NativeHandle() uint64 { return uint64(l.handle) }

// Bindings returns the declared bindings.
func (l *DescriptorSetLayout) Bindings() []hal.DescriptorBinding { return l.bindings }

func (l *DescriptorSetLayout) binding(n uint32) (hal.DescriptorBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return hal.DescriptorBinding{}, false
}

// CreateDescriptorSetLayout creates a layout. Bindings with a zero count are
// declared but occupy no descriptors.
func (d *Device) CreateDescriptorSetLayout(desc *hal.DescriptorSetLayoutDescriptor) (hal.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	for i, b := range desc.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorTypeToVk(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      shaderStagesToVk(b.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
	}
	if len(bindings) > 0 {
		info.PBindings = &bindings[0]
	}
	l := &DescriptorSetLayout{bindings: append([]hal.DescriptorBinding(nil), desc.Bindings...)}
	if err := check("vkCreateDescriptorSetLayout", d.cmds.CreateDescriptorSetLayout(d.handle, &info, nil, &l.handle)); err != nil {
		return nil, err
	}
	d.setObjectName(vk.ObjectTypeDescriptorSetLayout, uint64(l.handle), desc.Label)
	return l, nil
}

// DestroyDescriptorSetLayout destroys a layout.
func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	if vl, ok := l.(*DescriptorSetLayout); ok && vl.handle != 0 {
		d.cmds.DestroyDescriptorSetLayout(d.handle, vl.handle, nil)
		vl.handle = 0
	}
}

// DescriptorPool is a VkDescriptorPool.
type DescriptorPool struct {
	handle vk.DescriptorPool
}

// NativeHandle returns the VkDescriptorPool.
func (p *DescriptorPool) NativeHandle() uint64 { return uint64(p.handle) }

// DescriptorSet is a VkDescriptorSet together with its layout.
type DescriptorSet struct {
	handle vk.DescriptorSet
	layout *DescriptorSetLayout
}

// NativeHandle returns the VkDescriptorSet.
func (s *DescriptorSet) NativeHandle() uint64 { return uint64(s.handle) }

// poolSizes sums the descriptor counts of a layout per type, count sets times.
func poolSizes(bindings []hal.DescriptorBinding, count int) []vk.DescriptorPoolSize {
	totals := make(map[hal.DescriptorType]uint32)
	var order []hal.DescriptorType
	for _, b := range bindings {
		if b.Count == 0 {
			continue
		}
		if _, seen := totals[b.Type]; !seen {
			order = append(order, b.Type)
		}
		totals[b.Type] += b.Count * uint32(count)
	}
	sizes := make([]vk.DescriptorPoolSize, len(order))
	for i, t := range order {
		sizes[i] = vk.DescriptorPoolSize{Type: descriptorTypeToVk(t), DescriptorCount: totals[t]}
	}
	return sizes
}

// CreateDescriptorSets allocates count sets from a pool sized for them.
func (d *Device) CreateDescriptorSets(layout hal.DescriptorSetLayout, count int) (hal.DescriptorPool, []hal.DescriptorSet, error) {
	vl := layout.(*DescriptorSetLayout)
	if count <= 0 {
		return nil, nil, fmt.Errorf("vulkan: descriptor set count %d", count)
	}
	sizes := poolSizes(vl.bindings, count)
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(count),
		PoolSizeCount: uint32(len(sizes)),
	}
	if len(sizes) > 0 {
		poolInfo.PPoolSizes = &sizes[0]
	}
	pool := &DescriptorPool{}
	if err := check("vkCreateDescriptorPool", d.cmds.CreateDescriptorPool(d.handle, &poolInfo, nil, &pool.handle)); err != nil {
		return nil, nil, err
	}

	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = vl.handle
	}
	handles := make([]vk.DescriptorSet, count)
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool.handle,
		DescriptorSetCount: uint32(count),
		PSetLayouts:        &layouts[0],
	}
	if err := check("vkAllocateDescriptorSets", d.cmds.AllocateDescriptorSets(d.handle, &allocInfo, &handles[0])); err != nil {
		d.cmds.DestroyDescriptorPool(d.handle, pool.handle, nil)
		return nil, nil, err
	}

	sets := make([]hal.DescriptorSet, count)
	for i, h := range handles {
		sets[i] = &DescriptorSet{handle: h, layout: vl}
	}
	return pool, sets, nil
}

// DestroyDescriptorPool destroys a pool and every set allocated from it.
func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	if vp, ok := p.(*DescriptorPool); ok && vp.handle != 0 {
		d.cmds.DestroyDescriptorPool(d.handle, vp.handle, nil)
		vp.handle = 0
	}
}

// descriptorPayload keeps the per-write arrays alive until the update call.
type descriptorPayload struct {
	images  []vk.DescriptorImageInfo
	buffers []vk.DescriptorBufferInfo
	structs []vk.AccelerationStructureKHR
	asWrite vk.WriteDescriptorSetAccelerationStructureKHR
}

// UpdateDescriptorSet writes descriptors into a set.
func (d *Device) UpdateDescriptorSet(set hal.DescriptorSet, writes []hal.DescriptorWrite) error {
	vs := set.(*DescriptorSet)
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	payloads := make([]descriptorPayload, len(writes))

	for i := range writes {
		w := &writes[i]
		b, ok := vs.layout.binding(w.Binding)
		if !ok {
			return fmt.Errorf("%w: binding %d", hal.ErrMissingDescriptorBinding, w.Binding)
		}
		if b.Type != w.Type {
			return fmt.Errorf("%w: vkUpdateDescriptorSets: binding %d is %s, write is %s",
				hal.ErrHardwareCall, w.Binding, b.Type, w.Type)
		}
		n := w.Count()
		if n == 0 || uint32(n) > b.Count {
			return fmt.Errorf("%w: vkUpdateDescriptorSets: binding %d takes %d descriptors, got %d",
				hal.ErrHardwareCall, w.Binding, b.Count, n)
		}

		vw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          vs.handle,
			DstBinding:      w.Binding,
			DescriptorCount: uint32(n),
			DescriptorType:  descriptorTypeToVk(w.Type),
		}
		p := &payloads[i]
		switch w.Type {
		case hal.DescriptorTypeAccelerationStructure:
			p.structs = make([]vk.AccelerationStructureKHR, n)
			for j, as := range w.AccelerationStructures {
				p.structs[j] = as.(*AccelerationStructure).handle
			}
			p.asWrite = vk.WriteDescriptorSetAccelerationStructureKHR{
				SType:                      vk.StructureTypeWriteDescriptorSetAccelerationStructureKhr,
				AccelerationStructureCount: uint32(n),
				PAccelerationStructures:    &p.structs[0],
			}
			vw.PNext = (*uintptr)(unsafe.Pointer(&p.asWrite))
		case hal.DescriptorTypeStorageImage:
			p.images = make([]vk.DescriptorImageInfo, n)
			for j, img := range w.Images {
				p.images[j] = vk.DescriptorImageInfo{
					ImageView:   img.(*Image).view,
					ImageLayout: vk.ImageLayoutGeneral,
				}
			}
			vw.PImageInfo = &p.images[0]
		case hal.DescriptorTypeCombinedImageSampler:
			p.images = make([]vk.DescriptorImageInfo, n)
			for j, t := range w.Textures {
				p.images[j] = vk.DescriptorImageInfo{
					Sampler:     t.Sampler.(*Sampler).handle,
					ImageView:   t.Image.(*Image).view,
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}
			}
			vw.PImageInfo = &p.images[0]
		case hal.DescriptorTypeUniformBuffer, hal.DescriptorTypeStorageBuffer:
			p.buffers = make([]vk.DescriptorBufferInfo, n)
			for j, bb := range w.Buffers {
				size := vk.DeviceSize(bb.Size)
				if bb.Size == 0 {
					size = vk.DeviceSize(vk.WholeSize)
				}
				p.buffers[j] = vk.DescriptorBufferInfo{
					Buffer: bb.Buffer.(*Buffer).handle,
					Offset: vk.DeviceSize(bb.Offset),
					Range:  size,
				}
			}
			vw.PBufferInfo = &p.buffers[0]
		}
		vkWrites[i] = vw
	}

	if len(vkWrites) > 0 {
		d.cmds.UpdateDescriptorSets(d.handle, uint32(len(vkWrites)), &vkWrites[0], 0, nil)
	}
	runtime.KeepAlive(payloads)
	return nil
}

// PipelineLayout is a VkPipelineLayout.
type PipelineLayout struct {
	handle vk.PipelineLayout
}

// NativeHandle returns the VkPipelineLayout.
func (l *PipelineLayout) NativeHandle() uint64 { return uint64(l.handle) }

// CreatePipelineLayout creates a pipeline layout without push constants.
func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, l := range desc.SetLayouts {
		layouts[i] = l.(*DescriptorSetLayout).handle
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
	}
	if len(layouts) > 0 {
		info.PSetLayouts = &layouts[0]
	}
	l := &PipelineLayout{}
	if err := check("vkCreatePipelineLayout", d.cmds.CreatePipelineLayout(d.handle, &info, nil, &l.handle)); err != nil {
		return nil, err
	}
	d.setObjectName(vk.ObjectTypePipelineLayout, uint64(l.handle), desc.Label)
	return l, nil
}

// DestroyPipelineLayout destroys a pipeline layout.
func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	if vl, ok := l.(*PipelineLayout); ok && vl.handle != 0 {
		d.cmds.DestroyPipelineLayout(d.handle, vl.handle, nil)
		vl.handle = 0
	}
}

// Pipeline is a compute or ray-tracing VkPipeline.
type Pipeline struct {
	handle vk.Pipeline
	groups uint32
}

// NativeHandle returns the VkPipeline.
func (p *Pipeline) NativeHandle() uint64 { return uint64(p.handle) }

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.Pipeline, error) {
	entry := append([]byte(desc.EntryPoint), 0)
	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: desc.Module.(*ShaderModule).handle,
			PName:  uintptr(unsafe.Pointer(&entry[0])),
		},
		Layout:            desc.Layout.(*PipelineLayout).handle,
		BasePipelineIndex: -1,
	}
	p := &Pipeline{}
	result := d.cmds.CreateComputePipelines(d.handle, 0, 1, &info, nil, &p.handle)
	runtime.KeepAlive(entry)
	if err := check("vkCreateComputePipelines", result); err != nil {
		return nil, fmt.Errorf("vulkan: compute pipeline %q: %w", desc.Label, err)
	}
	d.setObjectName(vk.ObjectTypePipeline, uint64(p.handle), desc.Label)
	return p, nil
}

// DestroyPipeline destroys a pipeline.
func (d *Device) DestroyPipeline(p hal.Pipeline) {
	if vp, ok := p.(*Pipeline); ok && vp.handle != 0 {
		d.cmds.DestroyPipeline(d.handle, vp.handle, nil)
		vp.handle = 0
	}
}

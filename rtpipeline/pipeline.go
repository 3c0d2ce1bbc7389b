package rtpipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/shader"
)

// Shader group indices.
const (
	RaygenGroup        = 0
	MissGroup          = 1
	TriangleHitGroup   = 2
	ProceduralHitGroup = 3
)

const (
	groupCount = 4

	// Hit and miss shaders never trace rays themselves.
	maxRecursionDepth = 1

	shaderEntryPointMain = "main"
)

// SceneResources are the read-only scene buffers bound into every descriptor set.
type SceneResources interface {
	VertexBuffer() hal.Buffer
	IndexBuffer() hal.Buffer
	MaterialBuffer() hal.Buffer
	OffsetBuffer() hal.Buffer

	// ProceduralBuffer holds one sphere per model. It is nil when the scene
	// has no procedural model.
	ProceduralBuffer() hal.Buffer
	HasProcedurals() bool

	Textures() []hal.TextureBinding
}

// Descriptor describes a ray-tracing pipeline and the resources it binds.
type Descriptor struct {
	Shaders           *shader.RayTracingSet
	TopLevel          hal.AccelerationStructure
	AccumulationImage hal.Image
	OutputImage       hal.Image

	// UniformBuffers has one buffer per frame in flight; a descriptor set is
	// created for each.
	UniformBuffers []hal.Buffer

	Scene SceneResources
}

// Pipeline is the ray-tracing pipeline with its layout and descriptor sets.
type Pipeline struct {
	device hal.Device

	setLayout      hal.DescriptorSetLayout
	pipelineLayout hal.PipelineLayout
	pool           hal.DescriptorPool
	sets           []hal.DescriptorSet
	pipeline       hal.Pipeline

	bindings []hal.DescriptorBinding
}

// New creates the pipeline and writes one descriptor set per uniform buffer.
// Any failure releases what was created.
func New(device hal.Device, desc *Descriptor) (*Pipeline, error) {
	rt := device.RayTracing()
	if rt == nil {
		return nil, fmt.Errorf("%w: ray tracing", hal.ErrMissingEntryPoint)
	}
	if desc.Shaders == nil || desc.Scene == nil {
		return nil, errors.New("rtpipeline: descriptor needs shaders and a scene")
	}
	if len(desc.UniformBuffers) == 0 {
		return nil, errors.New("rtpipeline: at least one uniform buffer is required")
	}
	if desc.Scene.HasProcedurals() && desc.Scene.ProceduralBuffer() == nil {
		return nil, fmt.Errorf("%w: binding %d: scene has procedurals but no procedural buffer",
			hal.ErrMissingDescriptorBinding, BindingProceduralData)
	}

	p := &Pipeline{
		device:   device,
		bindings: LayoutBindings(len(desc.Scene.Textures()), desc.Scene.HasProcedurals()),
	}
	if err := p.create(rt, desc); err != nil {
		p.Destroy()
		return nil, err
	}
	hal.Logger().Info("rtpipeline: pipeline created",
		"frames", len(p.sets),
		"textures", len(desc.Scene.Textures()),
		"procedurals", desc.Scene.HasProcedurals())
	return p, nil
}

func (p *Pipeline) create(rt hal.RayTracing, desc *Descriptor) error {
	var err error
	p.setLayout, err = p.device.CreateDescriptorSetLayout(&hal.DescriptorSetLayoutDescriptor{
		Label:    "Ray Tracing Set Layout",
		Bindings: p.bindings,
	})
	if err != nil {
		return fmt.Errorf("rtpipeline: set layout: %w", err)
	}

	p.pool, p.sets, err = p.device.CreateDescriptorSets(p.setLayout, len(desc.UniformBuffers))
	if err != nil {
		return fmt.Errorf("rtpipeline: descriptor sets: %w", err)
	}
	for i, set := range p.sets {
		writes := frameWrites(desc, desc.UniformBuffers[i])
		if err := checkWrites(p.bindings, writes); err != nil {
			return err
		}
		if err := p.device.UpdateDescriptorSet(set, writes); err != nil {
			return fmt.Errorf("rtpipeline: descriptor set %d: %w", i, err)
		}
	}

	p.pipelineLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:      "Ray Tracing Pipeline Layout",
		SetLayouts: []hal.DescriptorSetLayout{p.setLayout},
	})
	if err != nil {
		return fmt.Errorf("rtpipeline: pipeline layout: %w", err)
	}

	return p.createPipeline(rt, desc.Shaders)
}

// frameWrites returns the writes of one frame's descriptor set.
func frameWrites(desc *Descriptor, uniform hal.Buffer) []hal.DescriptorWrite {
	storage := func(binding uint32, b hal.Buffer) hal.DescriptorWrite {
		return hal.DescriptorWrite{
			Binding: binding,
			Type:    hal.DescriptorTypeStorageBuffer,
			Buffers: []hal.BufferBinding{{Buffer: b}},
		}
	}
	scene := desc.Scene
	writes := []hal.DescriptorWrite{
		{
			Binding:                BindingTopLevel,
			Type:                   hal.DescriptorTypeAccelerationStructure,
			AccelerationStructures: []hal.AccelerationStructure{desc.TopLevel},
		},
		{Binding: BindingAccumulation, Type: hal.DescriptorTypeStorageImage, Images: []hal.Image{desc.AccumulationImage}},
		{Binding: BindingOutput, Type: hal.DescriptorTypeStorageImage, Images: []hal.Image{desc.OutputImage}},
		{Binding: BindingUniform, Type: hal.DescriptorTypeUniformBuffer, Buffers: []hal.BufferBinding{{Buffer: uniform}}},
		storage(BindingVertices, scene.VertexBuffer()),
		storage(BindingIndices, scene.IndexBuffer()),
		storage(BindingMaterials, scene.MaterialBuffer()),
		storage(BindingOffsets, scene.OffsetBuffer()),
	}
	if textures := scene.Textures(); len(textures) > 0 {
		writes = append(writes, hal.DescriptorWrite{
			Binding:  BindingTextures,
			Type:     hal.DescriptorTypeCombinedImageSampler,
			Textures: textures,
		})
	}
	if scene.HasProcedurals() {
		writes = append(writes, storage(BindingProceduralData, scene.ProceduralBuffer()))
	}
	return writes
}

func (p *Pipeline) createPipeline(rt hal.RayTracing, set *shader.RayTracingSet) error {
	sources := []struct {
		label string
		stage hal.ShaderStage
		code  []uint32
	}{
		{"Raygen", hal.ShaderStageRaygen, set.Raygen},
		{"Miss", hal.ShaderStageMiss, set.Miss},
		{"Closest Hit", hal.ShaderStageClosestHit, set.ClosestHit},
		{"Procedural Closest Hit", hal.ShaderStageClosestHit, set.ProceduralClosestHit},
		{"Procedural Intersection", hal.ShaderStageIntersection, set.ProceduralIntersection},
	}

	// Modules are only needed while the pipeline is compiled.
	stages := make([]hal.PipelineStage, 0, len(sources))
	defer func() {
		for _, s := range stages {
			p.device.DestroyShaderModule(s.Module)
		}
	}()
	for _, src := range sources {
		m, err := p.device.CreateShaderModule(src.label, src.code)
		if err != nil {
			return fmt.Errorf("rtpipeline: %s shader: %w", src.label, err)
		}
		stages = append(stages, hal.PipelineStage{Stage: src.stage, Module: m, EntryPoint: shaderEntryPointMain})
	}

	groups := []hal.ShaderGroup{
		RaygenGroup: {Kind: hal.ShaderGroupGeneral, General: 0,
			ClosestHit: hal.ShaderUnused, AnyHit: hal.ShaderUnused, Intersection: hal.ShaderUnused},
		MissGroup: {Kind: hal.ShaderGroupGeneral, General: 1,
			ClosestHit: hal.ShaderUnused, AnyHit: hal.ShaderUnused, Intersection: hal.ShaderUnused},
		TriangleHitGroup: {Kind: hal.ShaderGroupTrianglesHit, General: hal.ShaderUnused,
			ClosestHit: 2, AnyHit: hal.ShaderUnused, Intersection: hal.ShaderUnused},
		ProceduralHitGroup: {Kind: hal.ShaderGroupProceduralHit, General: hal.ShaderUnused,
			ClosestHit: 3, AnyHit: hal.ShaderUnused, Intersection: 4},
	}

	pipeline, err := rt.CreateRayTracingPipeline(&hal.RayTracingPipelineDescriptor{
		Label:             "Ray Tracing Pipeline",
		Layout:            p.pipelineLayout,
		Stages:            stages,
		Groups:            groups,
		MaxRecursionDepth: maxRecursionDepth,
	})
	if err != nil {
		return fmt.Errorf("rtpipeline: create pipeline: %w", err)
	}
	p.pipeline = pipeline
	p.device.SetObjectName(pipeline, "Ray Tracing Pipeline")
	return nil
}

// Handle returns the compiled pipeline.
func (p *Pipeline) Handle() hal.Pipeline { return p.pipeline }

// Layout returns the pipeline layout.
func (p *Pipeline) Layout() hal.PipelineLayout { return p.pipelineLayout }

// Bindings returns the declared descriptor bindings.
func (p *Pipeline) Bindings() []hal.DescriptorBinding { return p.bindings }

// DescriptorSet returns the descriptor set of frame index i.
func (p *Pipeline) DescriptorSet(i int) hal.DescriptorSet { return p.sets[i] }

// DescriptorSetCount returns the number of per-frame descriptor sets.
func (p *Pipeline) DescriptorSetCount() int { return len(p.sets) }

// GroupCount returns the number of shader groups.
func (p *Pipeline) GroupCount() uint32 { return groupCount }

// Destroy releases the pipeline, the descriptor sets and the layouts.
func (p *Pipeline) Destroy() {
	if p.pipeline != nil {
		p.device.DestroyPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipelineLayout != nil {
		p.device.DestroyPipelineLayout(p.pipelineLayout)
		p.pipelineLayout = nil
	}
	if p.pool != nil {
		p.device.DestroyDescriptorPool(p.pool)
		p.pool = nil
		p.sets = nil
	}
	if p.setLayout != nil {
		p.device.DestroyDescriptorSetLayout(p.setLayout)
		p.setLayout = nil
	}
}

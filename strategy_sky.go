package raytrace

import (
	"context"
	"fmt"

	"github.com/gogpu/raytrace/frame"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/shader"
)

// Bindings of the sky shader.
const (
	skyBindingOutput  = 0
	skyBindingUniform = 1
)

// skyStrategy paints the sky background with a compute shader. It is the
// whole render when ray tracing is not used.
type skyStrategy struct {
	app *Application

	module         hal.ShaderModule
	setLayout      hal.DescriptorSetLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.Pipeline

	pool hal.DescriptorPool
	sets []hal.DescriptorSet
}

func newSkyStrategy(a *Application) (*skyStrategy, error) {
	code := a.opts.skyShader
	if code == nil {
		var err error
		if code, err = shader.CompileWGSL(shader.SkyWGSL); err != nil {
			return nil, err
		}
	}
	s := &skyStrategy{app: a}
	if err := s.create(code); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *skyStrategy) create(code []uint32) error {
	device := s.app.device
	var err error
	if s.module, err = device.CreateShaderModule("Sky", code); err != nil {
		return fmt.Errorf("raytrace: sky shader: %w", err)
	}
	s.setLayout, err = device.CreateDescriptorSetLayout(&hal.DescriptorSetLayoutDescriptor{
		Label: "Sky Set Layout",
		Bindings: []hal.DescriptorBinding{
			{Binding: skyBindingOutput, Type: hal.DescriptorTypeStorageImage, Count: 1, Stages: hal.ShaderStageCompute},
			{Binding: skyBindingUniform, Type: hal.DescriptorTypeUniformBuffer, Count: 1, Stages: hal.ShaderStageCompute},
		},
	})
	if err != nil {
		return fmt.Errorf("raytrace: sky set layout: %w", err)
	}
	s.pipelineLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:      "Sky Pipeline Layout",
		SetLayouts: []hal.DescriptorSetLayout{s.setLayout},
	})
	if err != nil {
		return fmt.Errorf("raytrace: sky pipeline layout: %w", err)
	}
	s.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:      "Sky Pipeline",
		Layout:     s.pipelineLayout,
		Module:     s.module,
		EntryPoint: shader.SkyEntryPoint,
	})
	if err != nil {
		return fmt.Errorf("raytrace: sky pipeline: %w", err)
	}
	device.DestroyShaderModule(s.module)
	s.module = nil
	return nil
}

func (s *skyStrategy) Mode() RenderMode { return RenderModeRasterized }

// LoadScene has nothing to prepare: the sky only reads the camera.
func (s *skyStrategy) LoadScene(context.Context, *loadedScene) error { return nil }

func (s *skyStrategy) UnloadScene() {}

func (s *skyStrategy) CreateSwapChainResources(res *frame.Resources) error {
	device := s.app.device
	uniforms := res.UniformBuffers()
	pool, sets, err := device.CreateDescriptorSets(s.setLayout, len(uniforms))
	if err != nil {
		return fmt.Errorf("raytrace: sky descriptor sets: %w", err)
	}
	for i, set := range sets {
		err := device.UpdateDescriptorSet(set, []hal.DescriptorWrite{
			{Binding: skyBindingOutput, Type: hal.DescriptorTypeStorageImage, Images: []hal.Image{res.OutputImage()}},
			{Binding: skyBindingUniform, Type: hal.DescriptorTypeUniformBuffer, Buffers: []hal.BufferBinding{{Buffer: uniforms[i]}}},
		})
		if err != nil {
			device.DestroyDescriptorPool(pool)
			return fmt.Errorf("raytrace: sky descriptor set %d: %w", i, err)
		}
	}
	s.pool, s.sets = pool, sets
	return nil
}

func (s *skyStrategy) DeleteSwapChainResources() {
	if s.pool != nil {
		s.app.device.DestroyDescriptorPool(s.pool)
		s.pool, s.sets = nil, nil
	}
}

func (s *skyStrategy) UniformData(info frame.Info) []byte {
	return s.app.uniformData(info)
}

func (s *skyStrategy) RecordFrame(enc hal.CommandEncoder, res *frame.Resources, imageIndex uint32) error {
	if err := hal.RecordTransition(enc, res.OutputImage(), hal.ImageLayoutUndefined, hal.ImageLayoutGeneral); err != nil {
		return err
	}
	enc.BindPipeline(hal.BindPointCompute, s.pipeline)
	enc.BindDescriptorSet(hal.BindPointCompute, s.pipelineLayout, s.sets[imageIndex])

	extent := res.Extent()
	enc.Dispatch(workgroups(extent.Width), workgroups(extent.Height), 1)

	return frame.RecordPresentCopy(enc, res, imageIndex)
}

func workgroups(n uint32) uint32 {
	return (n + shader.SkyWorkgroupSize - 1) / shader.SkyWorkgroupSize
}

func (s *skyStrategy) Destroy() {
	device := s.app.device
	if s.pipeline != nil {
		device.DestroyPipeline(s.pipeline)
		s.pipeline = nil
	}
	if s.pipelineLayout != nil {
		device.DestroyPipelineLayout(s.pipelineLayout)
		s.pipelineLayout = nil
	}
	if s.setLayout != nil {
		device.DestroyDescriptorSetLayout(s.setLayout)
		s.setLayout = nil
	}
	if s.module != nil {
		device.DestroyShaderModule(s.module)
		s.module = nil
	}
}

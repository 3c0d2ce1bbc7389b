package raytrace

import (
	"context"
	"fmt"

	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/frame"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/rtpipeline"
	"github.com/gogpu/raytrace/shader"
)

// rayTracedStrategy renders through the acceleration structures of the
// scene and the ray-tracing pipeline.
type rayTracedStrategy struct {
	app     *Application
	shaders *shader.RayTracingSet

	scene   *loadedScene
	builder *accel.Builder

	pipeline *rtpipeline.Pipeline
	sbt      *rtpipeline.ShaderBindingTable
}

func newRayTracedStrategy(a *Application) (*rayTracedStrategy, error) {
	if a.device.RayTracing() == nil {
		return nil, fmt.Errorf("%w: device %q has no ray tracing", hal.ErrMissingEntryPoint, a.device.Info().Name)
	}
	shaders := a.opts.rayTracingShaders
	if shaders == nil {
		var err error
		if shaders, err = shader.LoadRayTracingSet(a.settings.ShaderDir); err != nil {
			return nil, err
		}
	}
	return &rayTracedStrategy{app: a, shaders: shaders}, nil
}

func (s *rayTracedStrategy) Mode() RenderMode { return RenderModeRayTraced }

func (s *rayTracedStrategy) LoadScene(ctx context.Context, loaded *loadedScene) error {
	b, err := accel.NewBuilder(s.app.device)
	if err != nil {
		return err
	}
	if err := b.Create(ctx, loaded.scene); err != nil {
		return err
	}
	s.builder = b
	s.scene = loaded
	return nil
}

func (s *rayTracedStrategy) UnloadScene() {
	if s.builder != nil {
		s.builder.Delete()
		s.builder = nil
	}
	s.scene = nil
}

func (s *rayTracedStrategy) CreateSwapChainResources(res *frame.Resources) error {
	p, err := rtpipeline.New(s.app.device, &rtpipeline.Descriptor{
		Shaders:           s.shaders,
		TopLevel:          s.builder.TopLevel().Handle(),
		AccumulationImage: res.AccumulationImage(),
		OutputImage:       res.OutputImage(),
		UniformBuffers:    res.UniformBuffers(),
		Scene:             s.scene.scene,
	})
	if err != nil {
		return err
	}
	raygen, miss, hit := rtpipeline.DefaultEntries()
	sbt, err := rtpipeline.NewShaderBindingTable(s.app.device, p, raygen, miss, hit)
	if err != nil {
		p.Destroy()
		return err
	}
	s.pipeline = p
	s.sbt = sbt
	return nil
}

func (s *rayTracedStrategy) DeleteSwapChainResources() {
	if s.sbt != nil {
		s.sbt.Destroy()
		s.sbt = nil
	}
	if s.pipeline != nil {
		s.pipeline.Destroy()
		s.pipeline = nil
	}
}

func (s *rayTracedStrategy) UniformData(info frame.Info) []byte {
	return s.app.uniformData(info)
}

func (s *rayTracedStrategy) RecordFrame(enc hal.CommandEncoder, res *frame.Resources, imageIndex uint32) error {
	return frame.RecordRayTracedFrame(enc, s.pipeline, s.sbt, res, imageIndex)
}

func (s *rayTracedStrategy) Destroy() {}

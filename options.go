package raytrace

import "github.com/gogpu/raytrace/shader"

// Option configures an Application during creation.
//
// Example:
//
//	// Shaders loaded from Settings.ShaderDir
//	app, err := raytrace.NewApplication(device, swapChain, scene.DefaultRegistry(), settings)
//
//	// Shaders compiled elsewhere
//	app, err := raytrace.NewApplication(device, swapChain, registry, settings,
//	    raytrace.WithRayTracingShaders(set))
type Option func(*options)

// options holds optional configuration for Application creation.
type options struct {
	rayTracingShaders *shader.RayTracingSet
	skyShader         []uint32
}

// WithRayTracingShaders supplies the ray-tracing stages instead of loading
// them from Settings.ShaderDir.
func WithRayTracingShaders(set *shader.RayTracingSet) Option {
	return func(o *options) {
		o.rayTracingShaders = set
	}
}

// WithSkyShader supplies the SPIR-V of the rasterized fallback instead of
// compiling shader.SkyWGSL at startup.
func WithSkyShader(code []uint32) Option {
	return func(o *options) {
		o.skyShader = code
	}
}

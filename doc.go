// Package raytrace is a hardware ray-tracing renderer on Vulkan KHR ray
// tracing, written in pure Go.
//
// # Overview
//
// A scene is a list of models (triangle meshes or procedural spheres) with
// materials and textures. It is uploaded into concatenated GPU buffers,
// a bottom-level acceleration structure is built per model and one
// top-level structure instances them all. Every frame traces rays through
// the structures into an accumulation image and copies the result to the
// swap chain.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/raytrace"
//	    "github.com/gogpu/raytrace/hal"
//	    "github.com/gogpu/raytrace/scene"
//	    _ "github.com/gogpu/raytrace/hal/vulkan"
//	)
//
//	backend, _ := hal.Default()
//	device, _ := backend.OpenDevice(hal.DeviceOptions{AdapterIndex: -1, RequireRayTracing: true})
//	swapChain, _ := hal.NewOffscreenSwapChain(device, hal.OffscreenDescriptor{Width: 1280, Height: 720})
//
//	app, _ := raytrace.NewApplication(ctx, device, swapChain, scene.DefaultRegistry(), raytrace.DefaultSettings())
//	defer app.Destroy()
//	_ = app.Run(ctx, 64)
//	img := swapChain.LastFrame()
//
// # Packages
//
//   - hal: device, command and swap chain interfaces with the Vulkan and noop backends
//   - accel: geometry descriptors, bottom- and top-level acceleration structures
//   - rtpipeline: descriptor layout, ray-tracing pipeline and shader binding table
//   - frame: swap-chain-dependent resources and the per-frame dispatch loop
//   - scene: models, materials, textures, the scene GPU arena and generators
//   - shader: SPIR-V loading and WGSL compilation
//
// # Render Modes
//
// [RenderModeRayTraced] is the ray tracer. [RenderModeRasterized] needs no
// ray-tracing support and only paints the sky background of the scene.
// The mode is chosen once, when the [Application] is created.
//
// # Logging
//
// raytrace is silent by default. Call [SetLogger] to receive structured
// log/slog records from every sub-package.
package raytrace

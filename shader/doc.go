// Package shader loads the shaders of the renderer.
//
// The ray-tracing stages are written in GLSL under glsl/ and compiled offline
// to SPIR-V with glslangValidator (run go generate in this directory). They
// are loaded at runtime with [LoadRayTracingSet].
//
// The compute fallback used when ray tracing is disabled is written in WGSL,
// embedded into the binary and compiled with naga at startup.
package shader

//go:generate glslangValidator --target-env vulkan1.2 -o RayTracing.rgen.spv glsl/RayTracing.rgen
//go:generate glslangValidator --target-env vulkan1.2 -o RayTracing.rmiss.spv glsl/RayTracing.rmiss
//go:generate glslangValidator --target-env vulkan1.2 -o RayTracing.rchit.spv glsl/RayTracing.rchit
//go:generate glslangValidator --target-env vulkan1.2 -o RayTracing.Procedural.rchit.spv glsl/RayTracing.Procedural.rchit
//go:generate glslangValidator --target-env vulkan1.2 -o RayTracing.Procedural.rint.spv glsl/RayTracing.Procedural.rint

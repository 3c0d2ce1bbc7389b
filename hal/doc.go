// Package hal defines the hardware abstraction the ray-tracing core renders through.
//
// The interfaces follow the shape of Vulkan's KHR ray-tracing extensions closely
// enough that the [vulkan] backend is a thin translation layer, while the [noop]
// backend records every call so that tests can assert on build order, barriers
// and shader-binding-table bytes without a GPU.
//
// # Architecture
//
//	               +-------------------------+
//	               | accel / rtpipeline /    |
//	               | frame / scene           |
//	               +------------+------------+
//	                            |
//	               +------------v------------+
//	               |  hal.Device + RayTracing |
//	               +------------+------------+
//	                            |
//	         +------------------+------------------+
//	         |                                     |
//	+--------v--------+                   +--------v--------+
//	|   hal/vulkan    |                   |    hal/noop     |
//	| (wgpu vk+goffi) |                   |   (recording)   |
//	+-----------------+                   +-----------------+
//
// # Capabilities
//
// Ray tracing is a capability resolved once when a device is opened. A device
// opened with [DeviceOptions.RequireRayTracing] either exposes a non-nil
// [RayTracing] from [Device.RayTracing] or fails to open with
// [ErrMissingEntryPoint]. There is no per-call capability check.
//
// # Resource lifetime
//
// Every resource is destroyed through the [Device] that created it. Structures
// bound into a buffer must be destroyed before that buffer; higher level packages
// own resources in arenas that encode this order.
//
// [vulkan]: github.com/gogpu/raytrace/hal/vulkan
// [noop]: github.com/gogpu/raytrace/hal/noop
package hal

// Package vulkan is the Vulkan backend of the hal interfaces.
//
// Core entry points come from the wgpu vk bindings. The ray-tracing
// extension commands are resolved per device with vkGetDeviceProcAddr and
// called through goffi call interfaces prepared once per process. Devices
// are headless; frames are presented through hal.OffscreenSwapChain.
//
// Importing the package registers the backend under hal.BackendVulkan:
//
//	import _ "github.com/gogpu/raytrace/hal/vulkan"
package vulkan

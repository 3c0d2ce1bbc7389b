//go:build !(js && wasm)

package vulkan

import (
	"fmt"

	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// ResultError is a non-success VkResult returned by a named call.
// It matches hal.ErrHardwareCall with errors.Is.
type ResultError struct {
	Call   string
	Result vk.Result
}

// Error implements error.
func (e *ResultError) Error() string {
	return fmt.Sprintf("vulkan: %s failed: %s (%d)", e.Call, resultName(e.Result), int32(e.Result))
}

// Unwrap returns hal.ErrHardwareCall.
func (e *ResultError) Unwrap() error { return hal.ErrHardwareCall }

// check converts a VkResult into an error. Positive status codes other than
// the ones a caller handles explicitly are treated as success.
func check(call string, r vk.Result) error {
	if r >= vk.Success {
		return nil
	}
	return &ResultError{Call: call, Result: r}
}

var resultNames = map[vk.Result]string{
	vk.Success:                   "VK_SUCCESS",
	vk.NotReady:                  "VK_NOT_READY",
	vk.Timeout:                   "VK_TIMEOUT",
	vk.SuboptimalKhr:             "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorOutOfDateKhr:         "VK_ERROR_OUT_OF_DATE_KHR",
}

func resultName(r vk.Result) string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "VK_RESULT_UNKNOWN"
}

//go:build !(js && wasm)

package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

func init() {
	hal.Register(hal.BackendVulkan, func() hal.Backend { return Backend{} })
}

const validationLayer = "VK_LAYER_KHRONOS_validation"

// rayTracingExtensions are the device extensions the ray-tracing capability needs.
var rayTracingExtensions = []string{
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
	"VK_KHR_deferred_host_operations",
}

// Backend implements hal.Backend on top of the system Vulkan loader.
// Devices are headless: presentation goes through hal.OffscreenSwapChain.
type Backend struct{}

// Name returns "vulkan".
func (Backend) Name() string { return hal.BackendVulkan }

// Adapters lists every physical device.
func (Backend) Adapters() ([]hal.AdapterInfo, error) {
	inst, err := createInstance(false)
	if err != nil {
		return nil, err
	}
	defer inst.destroy()

	adapters := inst.adapters()
	infos := make([]hal.AdapterInfo, len(adapters))
	for i, a := range adapters {
		infos[i] = a.info()
	}
	return infos, nil
}

// OpenDevice creates a device on the selected adapter. The device owns the
// instance it was created from.
func (Backend) OpenDevice(opts hal.DeviceOptions) (hal.Device, error) {
	inst, err := createInstance(opts.Validation)
	if err != nil {
		return nil, err
	}
	adapters := inst.adapters()
	a, err := selectAdapter(adapters, opts.AdapterIndex)
	if err != nil {
		inst.destroy()
		return nil, err
	}
	if opts.RequireRayTracing && !a.rayTracing {
		inst.destroy()
		return nil, fmt.Errorf("%w: %s lacks %v", hal.ErrMissingEntryPoint, a.name, rayTracingExtensions)
	}
	dev, err := a.open(opts)
	if err != nil {
		inst.destroy()
		return nil, err
	}
	return dev, nil
}

// ErrNoAdapter is returned when no physical device matches DeviceOptions.AdapterIndex.
var ErrNoAdapter = errors.New("vulkan: no matching adapter")

func selectAdapter(adapters []*adapter, index int) (*adapter, error) {
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	if index >= 0 {
		if index >= len(adapters) {
			return nil, fmt.Errorf("%w: index %d of %d", ErrNoAdapter, index, len(adapters))
		}
		return adapters[index], nil
	}
	for _, a := range adapters {
		if a.rayTracing {
			return a, nil
		}
	}
	return adapters[0], nil
}

type instance struct {
	handle vk.Instance
	cmds   vk.Commands
	debug  bool
}

func createInstance(validation bool) (*instance, error) {
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan: failed to initialize: %w", err)
	}
	if err := prepareSignatures(); err != nil {
		return nil, err
	}

	cmds := vk.NewCommands()
	if err := cmds.LoadGlobal(); err != nil {
		return nil, fmt.Errorf("vulkan: failed to load global commands: %w", err)
	}

	appName := []byte("raytrace\x00")
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   uintptr(unsafe.Pointer(&appName[0])),
		ApplicationVersion: vkMakeVersion(1, 0, 0),
		PEngineName:        uintptr(unsafe.Pointer(&appName[0])),
		EngineVersion:      vkMakeVersion(1, 0, 0),
		ApiVersion:         vkMakeVersion(1, 2, 0),
	}

	var extensions, layers []string
	debug := false
	if validation {
		if layerAvailable(cmds, validationLayer) {
			layers = append(layers, validationLayer+"\x00")
			extensions = append(extensions, "VK_EXT_debug_utils\x00")
			debug = true
		} else {
			hal.Logger().Warn("vulkan: validation requested but layer not installed", "layer", validationLayer)
		}
	}
	extensionPtrs := cStringArray(extensions)
	layerPtrs := cStringArray(layers)

	createInfo := vk.InstanceCreateInfo{
		SType:                 vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:      &appInfo,
		EnabledExtensionCount: uint32(len(extensions)),
		EnabledLayerCount:     uint32(len(layers)),
	}
	if len(extensionPtrs) > 0 {
		createInfo.PpEnabledExtensionNames = uintptr(unsafe.Pointer(&extensionPtrs[0]))
	}
	if len(layerPtrs) > 0 {
		createInfo.PpEnabledLayerNames = uintptr(unsafe.Pointer(&layerPtrs[0]))
	}

	var handle vk.Instance
	result := cmds.CreateInstance(&createInfo, nil, &handle)
	runtime.KeepAlive(appName)
	runtime.KeepAlive(extensions)
	runtime.KeepAlive(layers)
	runtime.KeepAlive(extensionPtrs)
	runtime.KeepAlive(layerPtrs)
	if err := check("vkCreateInstance", result); err != nil {
		return nil, err
	}

	if err := cmds.LoadInstance(handle); err != nil {
		cmds.DestroyInstance(handle, nil)
		return nil, fmt.Errorf("vulkan: failed to load instance commands: %w", err)
	}
	vk.SetDeviceProcAddr(handle)

	hal.Logger().Debug("vulkan: instance created", "validation", debug)
	return &instance{handle: handle, cmds: *cmds, debug: debug}, nil
}

func (i *instance) destroy() {
	if i.handle != 0 {
		i.cmds.DestroyInstance(i.handle, nil)
		i.handle = 0
	}
}

func (i *instance) adapters() []*adapter {
	var count uint32
	i.cmds.EnumeratePhysicalDevices(i.handle, &count, nil)
	if count == 0 {
		return nil
	}
	devices := make([]vk.PhysicalDevice, count)
	i.cmds.EnumeratePhysicalDevices(i.handle, &count, &devices[0])

	adapters := make([]*adapter, 0, count)
	for _, pd := range devices {
		a := probeAdapter(i, pd)
		hal.Logger().Debug("vulkan: adapter found",
			"name", a.name,
			"type", adapterTypeFromVk(a.properties.DeviceType),
			"apiVersion", versionString(a.properties.ApiVersion),
			"rayTracing", a.rayTracing,
		)
		adapters = append(adapters, a)
	}
	return adapters
}

// adapter is a probed physical device.
type adapter struct {
	instance       *instance
	physicalDevice vk.PhysicalDevice
	properties     vk.PhysicalDeviceProperties
	extensions     map[string]bool
	name           string
	queueFamily    int32
	rayTracing     bool
}

func probeAdapter(i *instance, pd vk.PhysicalDevice) *adapter {
	a := &adapter{instance: i, physicalDevice: pd, queueFamily: -1}
	i.cmds.GetPhysicalDeviceProperties(pd, &a.properties)
	a.name = cStringToGo(a.properties.DeviceName[:])
	a.extensions = deviceExtensions(i, pd)

	var familyCount uint32
	i.cmds.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	if familyCount > 0 {
		families := make([]vk.QueueFamilyProperties, familyCount)
		i.cmds.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, &families[0])
		want := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
		for idx, f := range families {
			if f.QueueFlags&want == want {
				a.queueFamily = int32(idx)
				break
			}
		}
	}

	a.rayTracing = a.queueFamily >= 0 && a.properties.ApiVersion >= vkMakeVersion(1, 2, 0)
	for _, ext := range rayTracingExtensions {
		if !a.extensions[ext] {
			a.rayTracing = false
		}
	}
	return a
}

func deviceExtensions(i *instance, pd vk.PhysicalDevice) map[string]bool {
	var count uint32
	i.cmds.EnumerateDeviceExtensionProperties(pd, 0, &count, nil)
	names := make(map[string]bool, count)
	if count == 0 {
		return names
	}
	props := make([]vk.ExtensionProperties, count)
	i.cmds.EnumerateDeviceExtensionProperties(pd, 0, &count, &props[0])
	for idx := range props {
		names[cStringToGo(props[idx].ExtensionName[:])] = true
	}
	return names
}

func (a *adapter) info() hal.AdapterInfo {
	return hal.AdapterInfo{
		AdapterInfo: gpucontext.AdapterInfo{
			Name: a.name,
			Type: adapterTypeFromVk(a.properties.DeviceType),
		},
		Driver:     fmt.Sprintf("%s %d", vendorName(a.properties.VendorID), a.properties.DriverVersion),
		APIVersion: versionString(a.properties.ApiVersion),
		RayTracing: a.rayTracing,
	}
}

func vendorName(id uint32) string {
	switch id {
	case 0x1002:
		return "AMD"
	case 0x10DE:
		return "NVIDIA"
	case 0x8086:
		return "Intel"
	case 0x13B5:
		return "ARM"
	case 0x5143:
		return "Qualcomm"
	default:
		return fmt.Sprintf("0x%04X", id)
	}
}

func layerAvailable(cmds *vk.Commands, name string) bool {
	var count uint32
	cmds.EnumerateInstanceLayerProperties(&count, nil)
	if count == 0 {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	cmds.EnumerateInstanceLayerProperties(&count, &layers[0])
	for i := range layers {
		if cStringToGo(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

// cStringArray returns pointers to the NUL-terminated names. The caller keeps
// names alive until the pointers are no longer used.
func cStringArray(names []string) []uintptr {
	ptrs := make([]uintptr, len(names))
	for i, n := range names {
		ptrs[i] = uintptr(unsafe.Pointer(unsafe.StringData(n)))
	}
	return ptrs
}

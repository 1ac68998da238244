// Package vulkan implements hal.Instance and hal.Device over the
// github.com/vulkan-go/vulkan binding.
package vulkan

import (
	"fmt"
	"slices"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

// KhronosValidation is the layer enabled by Options.Validation when no
// layers are named.
const KhronosValidation = "VK_LAYER_KHRONOS_validation"

const debugReportExtension = "VK_EXT_debug_report"

// Options configure instance creation. The zero value is usable.
type Options struct {
	AppName string
	// APIVersion is the requested Vulkan version. Defaults to 1.1.
	APIVersion uint32
	// Loader defaults to LoaderDefault.
	Loader Loader
	// Validation enables the validation layers and routes their reports to
	// the package logger.
	Validation bool
	// Layers replaces the default validation layer list.
	Layers []string
	// Extra instance and device extensions. Missing ones are skipped with a
	// warning.
	InstanceExtensions []string
	DeviceExtensions   []string
}

// Instance owns a VkInstance and the physical devices enumerated from it.
type Instance struct {
	opts          Options
	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	layers        []string
	gpus          []vk.PhysicalDevice
}

var _ hal.Instance = (*Instance)(nil)

// NewInstance loads Vulkan and creates an instance.
func NewInstance(opts Options) (_ *Instance, err error) {
	if err := initLoader(opts.Loader); err != nil {
		return nil, err
	}
	if opts.AppName == "" {
		opts.AppName = "dieselvk"
	}
	if opts.APIVersion == 0 {
		opts.APIVersion = vk.MakeVersion(1, 1, 0)
	}
	i := &Instance{opts: opts}
	defer func() {
		if err != nil {
			i.Destroy()
		}
	}()

	wantedExtensions := append([]string(nil), opts.InstanceExtensions...)
	if opts.Validation {
		wantedExtensions = append(wantedExtensions, debugReportExtension)
	}
	available, err := InstanceExtensions()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate instance extensions: %w", hal.ErrInitializationFailed, err)
	}
	extensions, missing := checkExisting(available, wantedExtensions)
	if missing > 0 {
		slogger().Warn("vulkan: missing instance extensions", "missing", missing, "wanted", len(wantedExtensions))
	}

	if opts.Validation {
		wantedLayers := opts.Layers
		if len(wantedLayers) == 0 {
			wantedLayers = []string{KhronosValidation}
		}
		availableLayers, err := ValidationLayers()
		if err != nil {
			return nil, fmt.Errorf("%w: enumerate layers: %w", hal.ErrInitializationFailed, err)
		}
		i.layers, missing = checkExisting(availableLayers, wantedLayers)
		if missing > 0 {
			slogger().Warn("vulkan: missing validation layers", "missing", missing, "wanted", wantedLayers)
		}
	}

	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         opts.APIVersion,
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PApplicationName:   safeString(opts.AppName),
			PEngineName:        safeString("dieselvk"),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(i.layers)),
		PpEnabledLayerNames:     i.layers,
	}, nil, &i.instance)
	if isError(ret) {
		return nil, newError(ret)
	}
	if err := vk.InitInstance(i.instance); err != nil {
		return nil, fmt.Errorf("%w: %w", hal.ErrInitializationFailed, err)
	}
	slogger().Info("vulkan: instance created",
		"extensions", len(extensions), "layers", len(i.layers), "api", hal.APIVersionString(opts.APIVersion))

	if slices.Contains(extensions, safeString(debugReportExtension)) {
		ret := vk.CreateDebugReportCallback(i.instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}, nil, &i.debugCallback)
		if isError(ret) {
			slogger().Warn("vulkan: debug report callback unavailable", "err", newError(ret))
		}
	}

	var gpuCount uint32
	if ret := vk.EnumeratePhysicalDevices(i.instance, &gpuCount, nil); isError(ret) {
		return nil, newError(ret)
	}
	if gpuCount == 0 {
		return nil, fmt.Errorf("%w: no physical devices", hal.ErrInitializationFailed)
	}
	i.gpus = make([]vk.PhysicalDevice, gpuCount)
	if ret := vk.EnumeratePhysicalDevices(i.instance, &gpuCount, i.gpus); isError(ret) {
		return nil, newError(ret)
	}
	i.gpus = i.gpus[:gpuCount]
	return i, nil
}

// Adapters describes every physical device in enumeration order.
func (i *Instance) Adapters() ([]hal.Adapter, error) {
	adapters := make([]hal.Adapter, len(i.gpus))
	for n, gpu := range i.gpus {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		props.Limits.Deref()

		var memProps vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(gpu, &memProps)
		memProps.Deref()

		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &familyCount, families)

		adapters[n] = hal.Adapter{
			Index:         n,
			Info:          adapterInfo(&props),
			QueueFamilies: queueFamilies(families[:familyCount]),
			MemoryTypes:   memoryTypes(&memProps),
			Limits:        limits(&props.Limits),
		}
	}
	return adapters, nil
}

// Open creates a logical device with one queue from family.
func (i *Instance) Open(adapter hal.Adapter, family hal.QueueFamily) (hal.Device, error) {
	if adapter.Index < 0 || adapter.Index >= len(i.gpus) {
		return nil, fmt.Errorf("%w: adapter %d of %d", hal.ErrInitializationFailed, adapter.Index, len(i.gpus))
	}
	if int(family.Index) >= len(adapter.QueueFamilies) || family.Count == 0 {
		return nil, fmt.Errorf("%w: queue family %d of %s", hal.ErrInitializationFailed, family.Index, adapter.Info.Name)
	}
	gpu := i.gpus[adapter.Index]

	var deviceExtensions []string
	if len(i.opts.DeviceExtensions) > 0 {
		available, err := DeviceExtensions(gpu)
		if err != nil {
			return nil, fmt.Errorf("%w: enumerate device extensions: %w", hal.ErrInitializationFailed, err)
		}
		var missing int
		deviceExtensions, missing = checkExisting(available, i.opts.DeviceExtensions)
		if missing > 0 {
			slogger().Warn("vulkan: missing device extensions", "missing", missing, "wanted", i.opts.DeviceExtensions)
		}
	}

	var device vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family.Index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
		EnabledLayerCount:       uint32(len(i.layers)),
		PpEnabledLayerNames:     i.layers,
	}, nil, &device)
	if isError(ret) {
		return nil, newError(ret)
	}

	d, err := newDevice(device, adapter, family)
	if err != nil {
		vk.DestroyDevice(device, nil)
		return nil, err
	}
	slogger().Info("vulkan: device opened",
		"name", adapter.Info.Name, "queue_family", family.Index, "flags", family.Flags)
	return d, nil
}

// Destroy releases the debug callback and the instance. Devices opened from
// the instance must be destroyed first.
func (i *Instance) Destroy() {
	if i.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.instance, i.debugCallback, nil)
		i.debugCallback = vk.NullDebugReportCallback
	}
	if i.instance != nil {
		vk.DestroyInstance(i.instance, nil)
		i.instance = nil
	}
	i.gpus = nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := slogger()
	attrs := []any{"layer", pLayerPrefix, "code", messageCode, "object_type", objectType}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error("vulkan: "+pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		log.Warn("vulkan: "+pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn("vulkan: performance: "+pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		log.Debug("vulkan: "+pMessage, attrs...)
	default:
		log.Info("vulkan: "+pMessage, attrs...)
	}
	return vk.Bool32(vk.False)
}

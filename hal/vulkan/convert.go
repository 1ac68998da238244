package vulkan

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

// The hal flag and enum values are the Vulkan values, so conversions are
// plain casts. Structs need Deref before their fields are read.

func adapterInfo(props *vk.PhysicalDeviceProperties) hal.AdapterInfo {
	return hal.AdapterInfo{
		Name:       vk.ToString(props.DeviceName[:]),
		VendorID:   props.VendorID,
		DeviceID:   props.DeviceID,
		Type:       adapterType(props.DeviceType),
		APIVersion: props.ApiVersion,
	}
}

func adapterType(t vk.PhysicalDeviceType) hal.AdapterType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return hal.AdapterTypeIntegratedGPU
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return hal.AdapterTypeDiscreteGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return hal.AdapterTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return hal.AdapterTypeCPU
	}
	return hal.AdapterTypeOther
}

func limits(l *vk.PhysicalDeviceLimits) hal.Limits {
	return hal.Limits{
		NonCoherentAtomSize:      uint64(l.NonCoherentAtomSize),
		MaxComputeWorkGroupCount: l.MaxComputeWorkGroupCount,
		MaxPushConstantsSize:     l.MaxPushConstantsSize,
		MaxStorageBufferRange:    l.MaxStorageBufferRange,
	}
}

func memoryTypes(props *vk.PhysicalDeviceMemoryProperties) []hal.MemoryType {
	n := props.MemoryTypeCount
	if n > vk.MaxMemoryTypes {
		n = vk.MaxMemoryTypes
	}
	types := make([]hal.MemoryType, n)
	for i := uint32(0); i < n; i++ {
		props.MemoryTypes[i].Deref()
		types[i] = hal.MemoryType{
			Index:      i,
			Properties: hal.MemoryPropertyFlags(props.MemoryTypes[i].PropertyFlags),
			HeapIndex:  props.MemoryTypes[i].HeapIndex,
		}
	}
	return types
}

func queueFamilies(props []vk.QueueFamilyProperties) []hal.QueueFamily {
	families := make([]hal.QueueFamily, len(props))
	for i := range props {
		props[i].Deref()
		families[i] = hal.QueueFamily{
			Index: uint32(i),
			Flags: hal.QueueFlags(props[i].QueueFlags),
			Count: props[i].QueueCount,
		}
	}
	return families
}

func requirements(req *vk.MemoryRequirements) hal.MemoryRequirements {
	return hal.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

func deviceSize(size uint64) vk.DeviceSize {
	if size == hal.WholeSize {
		return vk.DeviceSize(vk.WholeSize)
	}
	return vk.DeviceSize(size)
}

// fenceTimeout converts a wait duration to the nanoseconds vkWaitForFences
// expects. Negative durations poll.
func fenceTimeout(d time.Duration) uint64 {
	switch {
	case d == hal.InfiniteTimeout:
		return vk.MaxUint64
	case d <= 0:
		return 0
	}
	return uint64(d.Nanoseconds())
}

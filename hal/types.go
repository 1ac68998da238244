package hal

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// WholeSize selects the remainder of a memory object or buffer starting at
// the given offset.
const WholeSize = ^uint64(0)

// InfiniteTimeout makes a fence wait block until the fence is signaled.
const InfiniteTimeout = time.Duration(math.MaxInt64)

// MemoryPropertyFlags describe a memory type. Values match VkMemoryPropertyFlagBits.
type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal     MemoryPropertyFlags = 0x01
	MemoryPropertyHostVisible     MemoryPropertyFlags = 0x02
	MemoryPropertyHostCoherent    MemoryPropertyFlags = 0x04
	MemoryPropertyHostCached      MemoryPropertyFlags = 0x08
	MemoryPropertyLazilyAllocated MemoryPropertyFlags = 0x10
)

// Has reports whether all bits of want are set in f.
func (f MemoryPropertyFlags) Has(want MemoryPropertyFlags) bool {
	return f&want == want
}

func (f MemoryPropertyFlags) String() string {
	return flagString(uint32(f), []flagName{
		{uint32(MemoryPropertyDeviceLocal), "DEVICE_LOCAL"},
		{uint32(MemoryPropertyHostVisible), "HOST_VISIBLE"},
		{uint32(MemoryPropertyHostCoherent), "HOST_COHERENT"},
		{uint32(MemoryPropertyHostCached), "HOST_CACHED"},
		{uint32(MemoryPropertyLazilyAllocated), "LAZILY_ALLOCATED"},
	})
}

// BufferUsageFlags values match VkBufferUsageFlagBits.
type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc BufferUsageFlags = 0x01
	BufferUsageTransferDst BufferUsageFlags = 0x02
	BufferUsageUniform     BufferUsageFlags = 0x10
	BufferUsageStorage     BufferUsageFlags = 0x20
)

func (f BufferUsageFlags) Has(want BufferUsageFlags) bool {
	return f&want == want
}

func (f BufferUsageFlags) String() string {
	return flagString(uint32(f), []flagName{
		{uint32(BufferUsageTransferSrc), "TRANSFER_SRC"},
		{uint32(BufferUsageTransferDst), "TRANSFER_DST"},
		{uint32(BufferUsageUniform), "UNIFORM"},
		{uint32(BufferUsageStorage), "STORAGE"},
	})
}

// ImageUsageFlags values match VkImageUsageFlagBits.
type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc     ImageUsageFlags = 0x01
	ImageUsageTransferDst     ImageUsageFlags = 0x02
	ImageUsageSampled         ImageUsageFlags = 0x04
	ImageUsageStorage         ImageUsageFlags = 0x08
	ImageUsageColorAttachment ImageUsageFlags = 0x10
)

// ImageAspectFlags values match VkImageAspectFlagBits.
type ImageAspectFlags uint32

const (
	ImageAspectColor   ImageAspectFlags = 0x01
	ImageAspectDepth   ImageAspectFlags = 0x02
	ImageAspectStencil ImageAspectFlags = 0x04
)

// ImageTiling values match VkImageTiling.
type ImageTiling uint32

const (
	ImageTilingOptimal ImageTiling = 0
	ImageTilingLinear  ImageTiling = 1
)

// Format is a texel format. Values match VkFormat.
type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR32Uint            Format = 98
	FormatR32Sfloat          Format = 100
	FormatR32G32B32A32Sfloat Format = 109
)

// TexelSize returns the size in bytes of one texel, or 0 for unknown formats.
func (f Format) TexelSize() uint64 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR32Uint, FormatR32Sfloat:
		return 4
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "UNDEFINED"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR32Uint:
		return "R32_UINT"
	case FormatR32Sfloat:
		return "R32_SFLOAT"
	case FormatR32G32B32A32Sfloat:
		return "R32G32B32A32_SFLOAT"
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// AccessFlags values match VkAccessFlagBits.
type AccessFlags uint32

const (
	AccessShaderRead    AccessFlags = 0x0020
	AccessShaderWrite   AccessFlags = 0x0040
	AccessTransferRead  AccessFlags = 0x0800
	AccessTransferWrite AccessFlags = 0x1000
	AccessHostRead      AccessFlags = 0x2000
	AccessHostWrite     AccessFlags = 0x4000
)

func (f AccessFlags) String() string {
	return flagString(uint32(f), []flagName{
		{uint32(AccessShaderRead), "SHADER_READ"},
		{uint32(AccessShaderWrite), "SHADER_WRITE"},
		{uint32(AccessTransferRead), "TRANSFER_READ"},
		{uint32(AccessTransferWrite), "TRANSFER_WRITE"},
		{uint32(AccessHostRead), "HOST_READ"},
		{uint32(AccessHostWrite), "HOST_WRITE"},
	})
}

// PipelineStageFlags values match VkPipelineStageFlagBits.
type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe     PipelineStageFlags = 0x0001
	PipelineStageComputeShader PipelineStageFlags = 0x0800
	PipelineStageTransfer      PipelineStageFlags = 0x1000
	PipelineStageBottomOfPipe  PipelineStageFlags = 0x2000
	PipelineStageHost          PipelineStageFlags = 0x4000
)

func (f PipelineStageFlags) String() string {
	return flagString(uint32(f), []flagName{
		{uint32(PipelineStageTopOfPipe), "TOP_OF_PIPE"},
		{uint32(PipelineStageComputeShader), "COMPUTE_SHADER"},
		{uint32(PipelineStageTransfer), "TRANSFER"},
		{uint32(PipelineStageBottomOfPipe), "BOTTOM_OF_PIPE"},
		{uint32(PipelineStageHost), "HOST"},
	})
}

// QueueFlags values match VkQueueFlagBits.
type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 0x01
	QueueCompute  QueueFlags = 0x02
	QueueTransfer QueueFlags = 0x04
)

func (f QueueFlags) String() string {
	return flagString(uint32(f), []flagName{
		{uint32(QueueGraphics), "GRAPHICS"},
		{uint32(QueueCompute), "COMPUTE"},
		{uint32(QueueTransfer), "TRANSFER"},
	})
}

// DescriptorType values match VkDescriptorType.
type DescriptorType uint32

const (
	DescriptorTypeUniformBuffer DescriptorType = 6
	DescriptorTypeStorageBuffer DescriptorType = 7
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeUniformBuffer:
		return "UNIFORM_BUFFER"
	case DescriptorTypeStorageBuffer:
		return "STORAGE_BUFFER"
	}
	return fmt.Sprintf("DescriptorType(%d)", uint32(t))
}

// AdapterType values match VkPhysicalDeviceType.
type AdapterType uint32

const (
	AdapterTypeOther AdapterType = iota
	AdapterTypeIntegratedGPU
	AdapterTypeDiscreteGPU
	AdapterTypeVirtualGPU
	AdapterTypeCPU
)

func (t AdapterType) String() string {
	switch t {
	case AdapterTypeIntegratedGPU:
		return "integrated"
	case AdapterTypeDiscreteGPU:
		return "discrete"
	case AdapterTypeVirtualGPU:
		return "virtual"
	case AdapterTypeCPU:
		return "cpu"
	}
	return "other"
}

// MemoryType is one entry of the memory types a device reports.
// Index is the position in the device's list and the bit position in
// MemoryRequirements.TypeBits.
type MemoryType struct {
	Index      uint32
	Properties MemoryPropertyFlags
	HeapIndex  uint32
}

// MemoryRequirements is what a device reports for an unbound buffer or image.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

// Limits holds the device limits the core cares about.
type Limits struct {
	NonCoherentAtomSize      uint64
	MaxComputeWorkGroupCount [3]uint32
	MaxPushConstantsSize     uint32
	MaxStorageBufferRange    uint32
}

// QueueFamily describes one queue family of an adapter.
type QueueFamily struct {
	Index uint32
	Flags QueueFlags
	Count uint32
}

// SupportsCompute reports whether the family accepts dispatch commands.
func (q QueueFamily) SupportsCompute() bool {
	return q.Flags&QueueCompute != 0
}

// AdapterInfo identifies a physical device.
type AdapterInfo struct {
	Name       string
	VendorID   uint32
	DeviceID   uint32
	Type       AdapterType
	APIVersion uint32
}

// Adapter is an enumerated physical device.
type Adapter struct {
	Index         int
	Info          AdapterInfo
	QueueFamilies []QueueFamily
	MemoryTypes   []MemoryType
	Limits        Limits
}

// APIVersionString formats a packed Vulkan API version.
func APIVersionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}

type flagName struct {
	bit  uint32
	name string
}

func flagString(v uint32, names []flagName) string {
	if v == 0 {
		return "NONE"
	}
	var parts []string
	for _, n := range names {
		if v&n.bit != 0 {
			parts = append(parts, n.name)
			v &^= n.bit
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", v))
	}
	return strings.Join(parts, "|")
}

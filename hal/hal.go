// Package hal is the device abstraction the compute core is written against.
//
// A backend (hal/vulkan for real hardware, hal/soft for a host-side
// reference device) implements Instance, Device and CommandBuffer. Handles
// are opaque: the core never inspects them beyond passing them back to the
// device that created them.
//
// Devices are not safe for concurrent use. Callers serialize access to a
// Device the same way they would for a VkDevice.
package hal

import (
	"fmt"
	"time"
)

// Resource is implemented by every device handle.
type Resource interface {
	fmt.Stringer
}

type (
	Buffer              interface{ Resource }
	Memory              interface{ Resource }
	Image               interface{ Resource }
	ImageView           interface{ Resource }
	ShaderModule        interface{ Resource }
	DescriptorSetLayout interface{ Resource }
	PipelineLayout      interface{ Resource }
	Pipeline            interface{ Resource }
	DescriptorPool      interface{ Resource }
	DescriptorSet       interface{ Resource }
	CommandPool         interface{ Resource }
	Fence               interface{ Resource }
)

// BufferDescriptor describes an unbound buffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsageFlags
}

// ImageDescriptor describes an unbound 2-D image with one mip level and one layer.
type ImageDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format Format
	Tiling ImageTiling
	Usage  ImageUsageFlags
}

// ImageViewDescriptor describes a view over a subresource range of an image.
type ImageViewDescriptor struct {
	Image          Image
	Format         Format
	Aspect         ImageAspectFlags
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// DescriptorSetLayoutBinding declares one binding visible to the compute stage.
type DescriptorSetLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
}

// PushConstantRange is a byte range of push-constant memory visible to the compute stage.
type PushConstantRange struct {
	Offset uint32
	Size   uint32
}

type PipelineLayoutDescriptor struct {
	SetLayouts         []DescriptorSetLayout
	PushConstantRanges []PushConstantRange
}

type ComputePipelineDescriptor struct {
	Label      string
	Layout     PipelineLayout
	Module     ShaderModule
	EntryPoint string
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolDescriptor struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

// DescriptorWrite points one binding of a set at a buffer range.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Buffer  Buffer
	Offset  uint64
	Size    uint64
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferBarrier makes writes of SrcAccess available and visible to DstAccess
// on a range of a buffer.
type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess AccessFlags
	DstAccess AccessFlags
	Offset    uint64
	Size      uint64
}

// Instance enumerates adapters and opens logical devices on them.
type Instance interface {
	Adapters() ([]Adapter, error)
	// Open creates a logical device with one queue from the given family.
	Open(adapter Adapter, family QueueFamily) (Device, error)
	Destroy()
}

// Device is a logical device with a single queue.
type Device interface {
	Adapter() Adapter
	MemoryTypes() []MemoryType
	Limits() Limits

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	BufferMemoryRequirements(buf Buffer) MemoryRequirements
	BindBufferMemory(buf Buffer, mem Memory, offset uint64) error
	DestroyBuffer(buf Buffer)

	AllocateMemory(typeIndex uint32, size uint64) (Memory, error)
	FreeMemory(mem Memory)
	// MapMemory returns a host view of [offset, offset+size). A size of
	// WholeSize maps to the end of the allocation.
	MapMemory(mem Memory, offset, size uint64) ([]byte, error)
	UnmapMemory(mem Memory)
	FlushMappedRange(mem Memory, offset, size uint64) error
	InvalidateMappedRange(mem Memory, offset, size uint64) error

	CreateImage(desc *ImageDescriptor) (Image, error)
	ImageMemoryRequirements(img Image) MemoryRequirements
	BindImageMemory(img Image, mem Memory, offset uint64) error
	DestroyImage(img Image)
	CreateImageView(desc *ImageViewDescriptor) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(mod ShaderModule)

	CreateDescriptorSetLayout(bindings []DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateComputePipeline(desc *ComputePipelineDescriptor) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateDescriptorPool(desc *DescriptorPoolDescriptor) (DescriptorPool, error)
	// DestroyDescriptorPool also frees every set allocated from the pool.
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite) error

	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(pool CommandPool, cb CommandBuffer)

	CreateFence() (Fence, error)
	DestroyFence(f Fence)
	// Submit queues a recorded command buffer. The fence is signaled when
	// the work completes.
	Submit(cb CommandBuffer, fence Fence) error
	// WaitForFence blocks until the fence is signaled or the timeout
	// elapses. It returns ErrTimeout or ErrDeviceLost on failure.
	WaitForFence(f Fence, timeout time.Duration) error

	WaitIdle() error
	Destroy()
}

// CommandBuffer records compute and transfer commands. Recording commands
// do not fail individually; errors surface from End or at execution.
type CommandBuffer interface {
	Resource
	Begin(oneTime bool) error
	CopyBuffer(src, dst Buffer, regions ...BufferCopy)
	PipelineBarrier(src, dst PipelineStageFlags, barriers ...BufferBarrier)
	BindComputePipeline(p Pipeline)
	BindDescriptorSets(layout PipelineLayout, first uint32, sets ...DescriptorSet)
	PushConstants(layout PipelineLayout, offset uint32, values []uint32)
	Dispatch(x, y, z uint32)
	End() error
}

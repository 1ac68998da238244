package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

type commandPool struct {
	object
	vk vk.CommandPool
}

// CreateCommandPool creates a pool on the device's queue family whose
// buffers can be reset individually.
func (d *Device) CreateCommandPool() (hal.CommandPool, error) {
	p := &commandPool{object: d.newObject("command_pool", "")}
	ret := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family.Index,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &p.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return p, nil
}

func (d *Device) DestroyCommandPool(pool hal.CommandPool) {
	vk.DestroyCommandPool(d.device, as[*commandPool](pool).vk, nil)
}

func (d *Device) AllocateCommandBuffer(pool hal.CommandPool) (hal.CommandBuffer, error) {
	p := as[*commandPool](pool)
	buffers := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.vk,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &commandBuffer{
		object: d.newObject("command_buffer", ""),
		dev:    d,
		pool:   p,
		vk:     buffers[0],
	}, nil
}

func (d *Device) FreeCommandBuffer(pool hal.CommandPool, cb hal.CommandBuffer) {
	p := as[*commandPool](pool)
	c := as[*commandBuffer](cb)
	if c.pool != p {
		panic(fmt.Sprintf("vulkan: %s was not allocated from %s", c, p))
	}
	vk.FreeCommandBuffers(d.device, p.vk, 1, []vk.CommandBuffer{c.vk})
}

// commandBuffer records straight into the Vulkan command buffer. Misuse that
// the driver would not report is collected and returned from End.
type commandBuffer struct {
	object
	dev  *Device
	pool *commandPool
	vk   vk.CommandBuffer

	recording bool
	errs      []error
}

var _ hal.CommandBuffer = (*commandBuffer)(nil)

func (c *commandBuffer) fail(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf("%w: %s: "+format, append([]any{hal.ErrInvalidUsage, c}, args...)...))
}

func (c *commandBuffer) Begin(oneTime bool) error {
	var flags vk.CommandBufferUsageFlags
	if oneTime {
		flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	ret := vk.BeginCommandBuffer(c.vk, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	})
	if isError(ret) {
		return newError(ret)
	}
	c.recording = true
	c.errs = nil
	return nil
}

func (c *commandBuffer) CopyBuffer(src, dst hal.Buffer, regions ...hal.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	s, t := as[*buffer](src), as[*buffer](dst)
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		if r.SrcOffset+r.Size > s.size || r.DstOffset+r.Size > t.size {
			c.fail("copy of %d bytes from %s+%d to %s+%d is out of range", r.Size, s, r.SrcOffset, t, r.DstOffset)
			return
		}
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.vk, s.vk, t.vk, uint32(len(copies)), copies)
}

func (c *commandBuffer) PipelineBarrier(src, dst hal.PipelineStageFlags, barriers ...hal.BufferBarrier) {
	vkBarriers := make([]vk.BufferMemoryBarrier, len(barriers))
	for i, b := range barriers {
		vkBarriers[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              as[*buffer](b.Buffer).vk,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                deviceSize(b.Size),
		}
	}
	vk.CmdPipelineBarrier(c.vk, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, uint32(len(vkBarriers)), vkBarriers, 0, nil)
}

func (c *commandBuffer) BindComputePipeline(p hal.Pipeline) {
	vk.CmdBindPipeline(c.vk, vk.PipelineBindPointCompute, as[*pipeline](p).vk)
}

func (c *commandBuffer) BindDescriptorSets(layout hal.PipelineLayout, first uint32, sets ...hal.DescriptorSet) {
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		vkSets[i] = as[*descriptorSet](s).vk
	}
	vk.CmdBindDescriptorSets(c.vk, vk.PipelineBindPointCompute, as[*pipelineLayout](layout).vk,
		first, uint32(len(vkSets)), vkSets, 0, nil)
}

func (c *commandBuffer) PushConstants(layout hal.PipelineLayout, offset uint32, values []uint32) {
	if len(values) == 0 {
		return
	}
	size := uint32(len(values) * 4)
	if offset%4 != 0 || offset+size > c.dev.adapter.Limits.MaxPushConstantsSize {
		c.fail("push constants [%d, %d) exceed %d bytes", offset, offset+size, c.dev.adapter.Limits.MaxPushConstantsSize)
		return
	}
	vk.CmdPushConstants(c.vk, as[*pipelineLayout](layout).vk, vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		offset, size, unsafe.Pointer(&values[0]))
}

func (c *commandBuffer) Dispatch(x, y, z uint32) {
	limit := c.dev.adapter.Limits.MaxComputeWorkGroupCount
	if x > limit[0] || y > limit[1] || z > limit[2] {
		c.fail("dispatch %dx%dx%d exceeds %v", x, y, z, limit)
		return
	}
	vk.CmdDispatch(c.vk, x, y, z)
}

func (c *commandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("%w: %s is not recording", hal.ErrInvalidUsage, c)
	}
	c.recording = false
	ret := vk.EndCommandBuffer(c.vk)
	return errors.Join(append(c.errs, newError(ret))...)
}

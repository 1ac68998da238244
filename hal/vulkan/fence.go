package vulkan

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

// Fences are created unsignaled and used for a single submission, so they
// are never reset.

func (d *Device) CreateFence() (hal.Fence, error) {
	f := &fence{object: d.newObject("fence", "")}
	ret := vk.CreateFence(d.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &f.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return f, nil
}

func (d *Device) DestroyFence(f hal.Fence) {
	vk.DestroyFence(d.device, as[*fence](f).vk, nil)
}

func (d *Device) Submit(cb hal.CommandBuffer, f hal.Fence) error {
	c := as[*commandBuffer](cb)
	var vkFence vk.Fence
	if f != nil {
		vkFence = as[*fence](f).vk
	}
	d.queueMu.Lock()
	ret := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{c.vk},
	}}, vkFence)
	d.queueMu.Unlock()
	if isError(ret) {
		return newError(ret)
	}
	slogger().Debug("vulkan: submit", "command_buffer", c, "fence", f)
	return nil
}

func (d *Device) WaitForFence(f hal.Fence, timeout time.Duration) error {
	ret := vk.WaitForFences(d.device, 1, []vk.Fence{as[*fence](f).vk}, vk.True, fenceTimeout(timeout))
	return newError(ret)
}

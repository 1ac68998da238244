package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

type object struct {
	kind  string
	id    uint64
	label string
}

func (o *object) String() string {
	if o.label != "" {
		return fmt.Sprintf("vulkan.%s#%d(%s)", o.kind, o.id, o.label)
	}
	return fmt.Sprintf("vulkan.%s#%d", o.kind, o.id)
}

func (d *Device) newObject(kind, label string) object {
	return object{kind: kind, id: d.nextID.Add(1), label: label}
}

type buffer struct {
	object
	vk   vk.Buffer
	size uint64
}

type memory struct {
	object
	vk     vk.DeviceMemory
	size   uint64
	typ    hal.MemoryType
	mapped unsafe.Pointer
}

type image struct {
	object
	vk vk.Image
}

type imageView struct {
	object
	vk vk.ImageView
}

type shaderModule struct {
	object
	vk vk.ShaderModule
}

type setLayout struct {
	object
	vk vk.DescriptorSetLayout
}

type pipelineLayout struct {
	object
	vk vk.PipelineLayout
}

type pipeline struct {
	object
	vk vk.Pipeline
}

type descriptorPool struct {
	object
	vk vk.DescriptorPool
}

type descriptorSet struct {
	object
	vk vk.DescriptorSet
}

type fence struct {
	object
	vk vk.Fence
}

// as converts a hal handle back to this backend's type. Handles from another
// backend are a programming error.
func as[T hal.Resource](r hal.Resource) T {
	v, ok := r.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("vulkan: %v is not a %T", r, zero))
	}
	return v
}

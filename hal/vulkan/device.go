package vulkan

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

// Device is a logical device with a single queue. Handles it returns are
// not safe for concurrent use; queue submission is serialized internally.
type Device struct {
	adapter hal.Adapter
	family  hal.QueueFamily

	device vk.Device
	queue  vk.Queue
	cache  vk.PipelineCache

	queueMu sync.Mutex
	nextID  atomic.Uint64
}

var _ hal.Device = (*Device)(nil)

func newDevice(device vk.Device, adapter hal.Adapter, family hal.QueueFamily) (*Device, error) {
	d := &Device{adapter: adapter, family: family, device: device}
	vk.GetDeviceQueue(device, family.Index, 0, &d.queue)
	ret := vk.CreatePipelineCache(device, &vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}, nil, &d.cache)
	if isError(ret) {
		return nil, newError(ret)
	}
	return d, nil
}

func (d *Device) Adapter() hal.Adapter { return d.adapter }

func (d *Device) MemoryTypes() []hal.MemoryType {
	return append([]hal.MemoryType(nil), d.adapter.MemoryTypes...)
}

func (d *Device) Limits() hal.Limits { return d.adapter.Limits }

// Buffers

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer", hal.ErrInvalidUsage)
	}
	b := &buffer{object: d.newObject("buffer", desc.Label), size: desc.Size}
	ret := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return b, nil
}

func (d *Device) BufferMemoryRequirements(buf hal.Buffer) hal.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, as[*buffer](buf).vk, &req)
	req.Deref()
	return requirements(&req)
}

func (d *Device) BindBufferMemory(buf hal.Buffer, mem hal.Memory, offset uint64) error {
	return newError(vk.BindBufferMemory(d.device, as[*buffer](buf).vk, as[*memory](mem).vk, vk.DeviceSize(offset)))
}

func (d *Device) DestroyBuffer(buf hal.Buffer) {
	vk.DestroyBuffer(d.device, as[*buffer](buf).vk, nil)
}

// Memory

func (d *Device) AllocateMemory(typeIndex uint32, size uint64) (hal.Memory, error) {
	if int(typeIndex) >= len(d.adapter.MemoryTypes) {
		return nil, fmt.Errorf("%w: memory type %d of %d", hal.ErrInvalidUsage, typeIndex, len(d.adapter.MemoryTypes))
	}
	m := &memory{
		object: d.newObject("memory", ""),
		size:   size,
		typ:    d.adapter.MemoryTypes[typeIndex],
	}
	ret := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}, nil, &m.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return m, nil
}

func (d *Device) FreeMemory(mem hal.Memory) {
	vk.FreeMemory(d.device, as[*memory](mem).vk, nil)
}

func (d *Device) MapMemory(mem hal.Memory, offset, size uint64) ([]byte, error) {
	m := as[*memory](mem)
	if !m.typ.Properties.Has(hal.MemoryPropertyHostVisible) {
		return nil, fmt.Errorf("%w: memory type %d is %s", hal.ErrMemoryMapFailed, m.typ.Index, m.typ.Properties)
	}
	if offset > m.size {
		return nil, fmt.Errorf("%w: offset %d beyond %d bytes", hal.ErrInvalidUsage, offset, m.size)
	}
	if size == hal.WholeSize {
		size = m.size - offset
	}
	var data unsafe.Pointer
	ret := vk.MapMemory(d.device, m.vk, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data)
	if isError(ret) {
		return nil, newError(ret)
	}
	m.mapped = data
	return unsafe.Slice((*byte)(data), size), nil
}

func (d *Device) UnmapMemory(mem hal.Memory) {
	m := as[*memory](mem)
	vk.UnmapMemory(d.device, m.vk)
	m.mapped = nil
}

func mappedRange(m *memory, offset, size uint64) []vk.MappedMemoryRange {
	return []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: m.vk,
		Offset: vk.DeviceSize(offset),
		Size:   deviceSize(size),
	}}
}

func (d *Device) FlushMappedRange(mem hal.Memory, offset, size uint64) error {
	return newError(vk.FlushMappedMemoryRanges(d.device, 1, mappedRange(as[*memory](mem), offset, size)))
}

func (d *Device) InvalidateMappedRange(mem hal.Memory, offset, size uint64) error {
	return newError(vk.InvalidateMappedMemoryRanges(d.device, 1, mappedRange(as[*memory](mem), offset, size)))
}

// Images

func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	img := &image{object: d.newObject("image", desc.Label)}
	ret := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTiling(desc.Tiling),
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return img, nil
}

func (d *Device) ImageMemoryRequirements(img hal.Image) hal.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, as[*image](img).vk, &req)
	req.Deref()
	return requirements(&req)
}

func (d *Device) BindImageMemory(img hal.Image, mem hal.Memory, offset uint64) error {
	return newError(vk.BindImageMemory(d.device, as[*image](img).vk, as[*memory](mem).vk, vk.DeviceSize(offset)))
}

func (d *Device) DestroyImage(img hal.Image) {
	vk.DestroyImage(d.device, as[*image](img).vk, nil)
}

func (d *Device) CreateImageView(desc *hal.ImageViewDescriptor) (hal.ImageView, error) {
	img := as[*image](desc.Image)
	v := &imageView{object: d.newObject("image_view", img.label)}
	ret := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.vk,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(desc.Aspect),
			BaseMipLevel:   desc.BaseMipLevel,
			LevelCount:     desc.LevelCount,
			BaseArrayLayer: desc.BaseArrayLayer,
			LayerCount:     desc.LayerCount,
		},
	}, nil, &v.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return v, nil
}

func (d *Device) DestroyImageView(view hal.ImageView) {
	vk.DestroyImageView(d.device, as[*imageView](view).vk, nil)
}

// Pipelines

func (d *Device) CreateShaderModule(code []byte) (hal.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: code size %d is not a positive multiple of 4", hal.ErrInvalidShader, len(code))
	}
	m := &shaderModule{object: d.newObject("shader_module", "")}
	ret := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &m.vk)
	if isError(ret) {
		return nil, fmt.Errorf("%w: %w", hal.ErrInvalidShader, newError(ret))
	}
	return m, nil
}

func (d *Device) DestroyShaderModule(mod hal.ShaderModule) {
	vk.DestroyShaderModule(d.device, as[*shaderModule](mod).vk, nil)
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorSetLayoutBinding) (hal.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}
	}
	l := &setLayout{object: d.newObject("descriptor_set_layout", "")}
	ret := vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}, nil, &l.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout hal.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.device, as[*setLayout](layout).vk, nil)
}

func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	sets := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, s := range desc.SetLayouts {
		sets[i] = as[*setLayout](s).vk
	}
	ranges := make([]vk.PushConstantRange, len(desc.PushConstantRanges))
	for i, r := range desc.PushConstantRanges {
		if r.Offset%4 != 0 || r.Size%4 != 0 || r.Offset+r.Size > d.adapter.Limits.MaxPushConstantsSize {
			return nil, fmt.Errorf("%w: push constant range [%d, %d) with limit %d",
				hal.ErrInvalidUsage, r.Offset, r.Offset+r.Size, d.adapter.Limits.MaxPushConstantsSize)
		}
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	l := &pipelineLayout{object: d.newObject("pipeline_layout", "")}
	ret := vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(sets)),
		PSetLayouts:            sets,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &l.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return l, nil
}

func (d *Device) DestroyPipelineLayout(layout hal.PipelineLayout) {
	vk.DestroyPipelineLayout(d.device, as[*pipelineLayout](layout).vk, nil)
}

func (d *Device) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.Pipeline, error) {
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	infos := []vk.ComputePipelineCreateInfo{{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: as[*shaderModule](desc.Module).vk,
			PName:  safeString(entry),
		},
		Layout: as[*pipelineLayout](desc.Layout).vk,
	}}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(d.device, d.cache, 1, infos, nil, pipelines)
	if isError(ret) {
		return nil, fmt.Errorf("%w: entry point %q: %w", hal.ErrInvalidShader, entry, newError(ret))
	}
	return &pipeline{object: d.newObject("pipeline", desc.Label), vk: pipelines[0]}, nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	vk.DestroyPipeline(d.device, as[*pipeline](p).vk, nil)
}

// Descriptors

func (d *Device) CreateDescriptorPool(desc *hal.DescriptorPoolDescriptor) (hal.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(desc.Sizes))
	for i, s := range desc.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	p := &descriptorPool{object: d.newObject("descriptor_pool", "")}
	ret := vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &p.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return p, nil
}

func (d *Device) DestroyDescriptorPool(pool hal.DescriptorPool) {
	vk.DestroyDescriptorPool(d.device, as[*descriptorPool](pool).vk, nil)
}

func (d *Device) AllocateDescriptorSet(pool hal.DescriptorPool, layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	s := &descriptorSet{object: d.newObject("descriptor_set", "")}
	ret := vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     as[*descriptorPool](pool).vk,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{as[*setLayout](layout).vk},
	}, &s.vk)
	if isError(ret) {
		return nil, newError(ret)
	}
	return s, nil
}

func (d *Device) UpdateDescriptorSets(writes []hal.DescriptorWrite) error {
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		if w.Type != hal.DescriptorTypeStorageBuffer && w.Type != hal.DescriptorTypeUniformBuffer {
			return fmt.Errorf("%w: descriptor type %s", hal.ErrInvalidUsage, w.Type)
		}
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          as[*descriptorSet](w.Set).vk,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: as[*buffer](w.Buffer).vk,
				Offset: vk.DeviceSize(w.Offset),
				Range:  deviceSize(w.Size),
			}},
		}
	}
	vk.UpdateDescriptorSets(d.device, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}

// WaitIdle blocks until the queue has drained.
func (d *Device) WaitIdle() error {
	return newError(vk.DeviceWaitIdle(d.device))
}

// Destroy waits for idle and destroys the pipeline cache and the device.
func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)
	if d.cache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(d.device, d.cache, nil)
		d.cache = vk.NullPipelineCache
	}
	vk.DestroyDevice(d.device, nil)
	d.device = nil
}

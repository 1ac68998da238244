package soft

import (
	"crypto/sha256"
	"fmt"

	"github.com/andewx/dieselvk/hal"
)

type shaderModule struct {
	handle
	key kernelKey
}

func (d *Device) CreateShaderModule(code []byte) (hal.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: code size %d is not a positive multiple of 4", hal.ErrInvalidShader, len(code))
	}
	return &shaderModule{
		handle: d.newHandle("shader_module", ""),
		key:    sha256.Sum256(code),
	}, nil
}

func (d *Device) DestroyShaderModule(mod hal.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	retire(cast[*shaderModule](mod))
}

type setLayout struct {
	handle
	bindings map[uint32]hal.DescriptorSetLayoutBinding
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorSetLayoutBinding) (hal.DescriptorSetLayout, error) {
	l := &setLayout{
		handle:   d.newHandle("descriptor_set_layout", ""),
		bindings: make(map[uint32]hal.DescriptorSetLayoutBinding, len(bindings)),
	}
	for _, b := range bindings {
		if _, dup := l.bindings[b.Binding]; dup {
			return nil, fmt.Errorf("%w: binding %d declared twice", hal.ErrInvalidUsage, b.Binding)
		}
		if b.Count != 1 {
			return nil, fmt.Errorf("%w: binding %d has descriptor count %d, only 1 is supported",
				hal.ErrInvalidUsage, b.Binding, b.Count)
		}
		l.bindings[b.Binding] = b
	}
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout hal.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	retire(cast[*setLayout](layout))
}

type pipelineLayout struct {
	handle
	sets []*setLayout
	push []hal.PushConstantRange
}

func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pl := &pipelineLayout{handle: d.newHandle("pipeline_layout", "")}
	for _, s := range desc.SetLayouts {
		pl.sets = append(pl.sets, cast[*setLayout](s))
	}
	limit := d.adapter.Limits.MaxPushConstantsSize
	for _, r := range desc.PushConstantRanges {
		if r.Size == 0 || r.Offset%4 != 0 || r.Size%4 != 0 {
			return nil, fmt.Errorf("%w: push constant range [%d, %d) is not word aligned",
				hal.ErrInvalidUsage, r.Offset, r.Offset+r.Size)
		}
		if r.Offset+r.Size > limit {
			return nil, fmt.Errorf("%w: push constant range [%d, %d) exceeds the %d byte limit",
				hal.ErrInvalidUsage, r.Offset, r.Offset+r.Size, limit)
		}
	}
	pl.push = append(pl.push, desc.PushConstantRanges...)
	return pl, nil
}

func (d *Device) DestroyPipelineLayout(layout hal.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	retire(cast[*pipelineLayout](layout))
}

// pushed reports whether [offset, offset+size) is covered by a declared range.
func (pl *pipelineLayout) pushed(offset, size uint32) bool {
	for _, r := range pl.push {
		if offset >= r.Offset && offset+size <= r.Offset+r.Size {
			return true
		}
	}
	return false
}

type pipeline struct {
	handle
	layout *pipelineLayout
	kernel KernelFunc
}

func (d *Device) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layout := cast[*pipelineLayout](desc.Layout)
	mod := cast[*shaderModule](desc.Module)
	fn, err := d.kernels.lookup(mod.key, desc.EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", hal.ErrInvalidShader, err)
	}
	p := &pipeline{
		handle: d.newHandle("pipeline", desc.Label),
		layout: layout,
		kernel: fn,
	}
	slogger().Debug("soft: compute pipeline created", "pipeline", p, "entry_point", desc.EntryPoint)
	return p, nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	retire(cast[*pipeline](p))
}

type descriptorPool struct {
	handle
	maxSets uint32
	free    map[hal.DescriptorType]uint32
	sets    []*descriptorSet
}

type boundBuffer struct {
	buf    *buffer
	offset uint64
	size   uint64
}

type descriptorSet struct {
	handle
	pool   *descriptorPool
	layout *setLayout
	bound  map[uint32]boundBuffer
}

func (d *Device) CreateDescriptorPool(desc *hal.DescriptorPoolDescriptor) (hal.DescriptorPool, error) {
	if desc.MaxSets == 0 {
		return nil, fmt.Errorf("%w: descriptor pool with zero sets", hal.ErrInvalidUsage)
	}
	p := &descriptorPool{
		handle:  d.newHandle("descriptor_pool", ""),
		maxSets: desc.MaxSets,
		free:    make(map[hal.DescriptorType]uint32),
	}
	for _, s := range desc.Sizes {
		p.free[s.Type] += s.Count
	}
	return p, nil
}

// DestroyDescriptorPool frees the pool and its sets. It panics when any of
// the sets is referenced by a pending submission.
func (d *Device) DestroyDescriptorPool(pool hal.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := cast[*descriptorPool](pool)
	for _, s := range p.sets {
		if s.refs > 0 {
			panic(fmt.Sprintf("soft: %s destroyed while its %s is referenced by a pending submission", p, s))
		}
	}
	retire(p)
	for _, s := range p.sets {
		s.destroyed = true
	}
	p.sets = nil
}

func (d *Device) AllocateDescriptorSet(pool hal.DescriptorPool, layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := cast[*descriptorPool](pool)
	l := cast[*setLayout](layout)
	if uint32(len(p.sets)) >= p.maxSets {
		return nil, fmt.Errorf("%w: %s holds at most %d sets", hal.ErrOutOfPoolMemory, p, p.maxSets)
	}
	need := make(map[hal.DescriptorType]uint32)
	for _, b := range l.bindings {
		need[b.Type] += b.Count
	}
	for t, n := range need {
		if p.free[t] < n {
			return nil, fmt.Errorf("%w: %s has %d %s descriptors left, layout needs %d",
				hal.ErrOutOfPoolMemory, p, p.free[t], t, n)
		}
	}
	for t, n := range need {
		p.free[t] -= n
	}
	s := &descriptorSet{
		handle: d.newHandle("descriptor_set", ""),
		pool:   p,
		layout: l,
		bound:  make(map[uint32]boundBuffer),
	}
	p.sets = append(p.sets, s)
	return s, nil
}

func (d *Device) UpdateDescriptorSets(writes []hal.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		s := cast[*descriptorSet](w.Set)
		if s.refs > 0 {
			return fmt.Errorf("%w: %s updated while referenced by a pending submission", hal.ErrInvalidUsage, s)
		}
		decl, ok := s.layout.bindings[w.Binding]
		if !ok {
			return fmt.Errorf("%w: %s has no binding %d", hal.ErrInvalidUsage, s, w.Binding)
		}
		if decl.Type != w.Type {
			return fmt.Errorf("%w: binding %d is %s, write is %s", hal.ErrInvalidUsage, w.Binding, decl.Type, w.Type)
		}
		b := cast[*buffer](w.Buffer)
		if w.Type == hal.DescriptorTypeStorageBuffer && !b.usage.Has(hal.BufferUsageStorage) {
			return fmt.Errorf("%w: %s lacks STORAGE usage", hal.ErrInvalidUsage, b)
		}
		size := w.Size
		if size == hal.WholeSize {
			if w.Offset > b.size {
				return fmt.Errorf("%w: offset %d beyond %s", hal.ErrInvalidUsage, w.Offset, b)
			}
			size = b.size - w.Offset
		}
		if w.Offset%4 != 0 || w.Offset+size > b.size {
			return fmt.Errorf("%w: range [%d, %d) invalid for %s of size %d",
				hal.ErrInvalidUsage, w.Offset, w.Offset+size, b, b.size)
		}
		s.bound[w.Binding] = boundBuffer{buf: b, offset: w.Offset, size: size}
	}
	return nil
}

package dieselvk

import (
	"fmt"
	"unsafe"

	"github.com/andewx/dieselvk/hal"
)

// DefaultEntryPoint is the kernel entry point used when none is configured.
const DefaultEntryPoint = "main"

// PipelineConfig describes a compute pipeline with one descriptor set of
// storage-buffer bindings.
type PipelineConfig struct {
	// Kernel is the compiled kernel binary. It is passed to the device unparsed.
	Kernel []byte
	// EntryPoint defaults to "main".
	EntryPoint string
	// Bindings is the number of storage-buffer bindings, 0..Bindings-1.
	// Defaults to 1.
	Bindings int
	// PushConstantWords is the size of the optional push-constant range in
	// 32-bit words. Zero declares no range.
	PushConstantWords uint32
	Label             string
}

// PushConstantSize returns the number of 32-bit words a push-constant
// block of type T occupies. It fails with ErrUnalignedPushConstantType
// when the size of T is not a multiple of 4.
func PushConstantSize[T any]() (uint32, error) {
	size := sizeOf[T]()
	if size%4 != 0 {
		var zero T
		return 0, fmt.Errorf("%w: %T is %d bytes", ErrUnalignedPushConstantType, zero, size)
	}
	return uint32(size / 4), nil
}

// PushConstantWords reinterprets v as the words recorded by a dispatch.
func PushConstantWords[T any](v *T) ([]uint32, error) {
	n, err := PushConstantSize[T]()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(v)), n)
	return append([]uint32(nil), words...), nil
}

// ComputePipeline owns the set layout, pipeline layout, pipeline, descriptor
// pool and the one descriptor set allocated from it.
type ComputePipeline struct {
	dev hal.Device

	SetLayout hal.DescriptorSetLayout
	Layout    hal.PipelineLayout
	Pipeline  hal.Pipeline
	Pool      hal.DescriptorPool
	Set       hal.DescriptorSet

	pushWords uint32
	bound     []*BufferResource
	inFlight  int
	destroyed bool
}

// NewComputePipeline builds the pipeline objects for cfg and binds buffers
// to bindings 0..len(buffers)-1. Remaining bindings are bound with Bind.
func NewComputePipeline(dev hal.Device, cfg PipelineConfig, buffers ...*BufferResource) (_ *ComputePipeline, err error) {
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = DefaultEntryPoint
	}
	if cfg.Bindings == 0 {
		cfg.Bindings = 1
	}
	if cfg.Bindings < 0 {
		return nil, fmt.Errorf("%w: %d bindings", ErrPipelineCreationFailed, cfg.Bindings)
	}
	if len(buffers) > cfg.Bindings {
		return nil, fmt.Errorf("%w: %d buffers for %d bindings", ErrPipelineCreationFailed, len(buffers), cfg.Bindings)
	}

	p := &ComputePipeline{
		dev:       dev,
		pushWords: cfg.PushConstantWords,
		bound:     make([]*BufferResource, cfg.Bindings),
	}
	defer func() {
		if err != nil {
			p.teardown()
		}
	}()

	bindings := make([]hal.DescriptorSetLayoutBinding, cfg.Bindings)
	for i := range bindings {
		bindings[i] = hal.DescriptorSetLayoutBinding{
			Binding: uint32(i),
			Type:    hal.DescriptorTypeStorageBuffer,
			Count:   1,
		}
	}
	if p.SetLayout, err = dev.CreateDescriptorSetLayout(bindings); err != nil {
		return nil, fmt.Errorf("%w: descriptor set layout: %w", ErrPipelineCreationFailed, err)
	}

	layoutDesc := &hal.PipelineLayoutDescriptor{SetLayouts: []hal.DescriptorSetLayout{p.SetLayout}}
	if cfg.PushConstantWords > 0 {
		layoutDesc.PushConstantRanges = []hal.PushConstantRange{{Offset: 0, Size: cfg.PushConstantWords * 4}}
	}
	if p.Layout, err = dev.CreatePipelineLayout(layoutDesc); err != nil {
		return nil, fmt.Errorf("%w: pipeline layout: %w", ErrPipelineCreationFailed, err)
	}

	module, err := dev.CreateShaderModule(cfg.Kernel)
	if err != nil {
		return nil, fmt.Errorf("%w: shader module: %w", ErrPipelineCreationFailed, err)
	}
	p.Pipeline, err = dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:      cfg.Label,
		Layout:     p.Layout,
		Module:     module,
		EntryPoint: cfg.EntryPoint,
	})
	dev.DestroyShaderModule(module)
	if err != nil {
		return nil, fmt.Errorf("%w: compute pipeline: %w", ErrPipelineCreationFailed, err)
	}

	p.Pool, err = dev.CreateDescriptorPool(&hal.DescriptorPoolDescriptor{
		MaxSets: 1,
		Sizes:   []hal.DescriptorPoolSize{{Type: hal.DescriptorTypeStorageBuffer, Count: uint32(cfg.Bindings)}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: descriptor pool: %w", ErrPipelineCreationFailed, err)
	}
	if p.Set, err = dev.AllocateDescriptorSet(p.Pool, p.SetLayout); err != nil {
		return nil, fmt.Errorf("%w: descriptor set: %w", ErrPipelineCreationFailed, err)
	}

	for i, b := range buffers {
		if err := p.Bind(i, b); err != nil {
			return nil, err
		}
	}

	Logger().Debug("dieselvk: compute pipeline created",
		"pipeline", p.Pipeline, "entry_point", cfg.EntryPoint,
		"bindings", cfg.Bindings, "push_constant_words", cfg.PushConstantWords)
	return p, nil
}

// Bind points storage-buffer binding at res.
func (p *ComputePipeline) Bind(binding int, res *BufferResource) error {
	if p.destroyed {
		return fmt.Errorf("%w: pipeline", ErrResourceDestroyed)
	}
	if p.inFlight > 0 {
		return fmt.Errorf("%w: %s", ErrResourceInUse, p.Set)
	}
	if binding < 0 || binding >= len(p.bound) {
		return fmt.Errorf("%w: binding %d outside 0..%d", ErrInvalidState, binding, len(p.bound)-1)
	}
	if err := res.usable(); err != nil {
		return err
	}
	err := p.dev.UpdateDescriptorSets([]hal.DescriptorWrite{{
		Set:     p.Set,
		Binding: uint32(binding),
		Type:    hal.DescriptorTypeStorageBuffer,
		Buffer:  res.Buffer,
		Offset:  0,
		Size:    hal.WholeSize,
	}})
	if err != nil {
		return fmt.Errorf("%w: bind %s at %d: %w", ErrPipelineCreationFailed, res.Buffer, binding, err)
	}
	p.bound[binding] = res
	return nil
}

// PushConstantWords is the declared push-constant range in words.
func (p *ComputePipeline) PushConstantWords() uint32 { return p.pushWords }

// Busy reports whether a submitted dispatch still references the pipeline.
func (p *ComputePipeline) Busy() bool { return p.inFlight > 0 }

func (p *ComputePipeline) binds(res *BufferResource) bool {
	for _, b := range p.bound {
		if b == res {
			return true
		}
	}
	return false
}

func (p *ComputePipeline) ready() error {
	if p == nil {
		return fmt.Errorf("%w: nil pipeline", ErrInvalidState)
	}
	if p.destroyed {
		return fmt.Errorf("%w: pipeline", ErrResourceDestroyed)
	}
	for i, b := range p.bound {
		if b == nil {
			return fmt.Errorf("%w: binding %d not bound", ErrInvalidState, i)
		}
		if err := b.usable(); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
	}
	return nil
}

// Destroy releases the descriptor pool with its set, the pipeline, the
// pipeline layout and the set layout, in that order. It fails with
// ErrResourceInUse while a submitted dispatch references the pipeline.
func (p *ComputePipeline) Destroy() error {
	if p.destroyed {
		return fmt.Errorf("%w: pipeline", ErrResourceDestroyed)
	}
	if p.inFlight > 0 {
		return fmt.Errorf("%w: %s", ErrResourceInUse, p.Pipeline)
	}
	p.teardown()
	return nil
}

func (p *ComputePipeline) teardown() {
	if p.Pool != nil {
		p.dev.DestroyDescriptorPool(p.Pool)
		p.Pool, p.Set = nil, nil
	}
	if p.Pipeline != nil {
		p.dev.DestroyPipeline(p.Pipeline)
		p.Pipeline = nil
	}
	if p.Layout != nil {
		p.dev.DestroyPipelineLayout(p.Layout)
		p.Layout = nil
	}
	if p.SetLayout != nil {
		p.dev.DestroyDescriptorSetLayout(p.SetLayout)
		p.SetLayout = nil
	}
	p.bound = nil
	p.destroyed = true
}

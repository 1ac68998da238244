// Package soft is a host-side reference implementation of hal.Device.
//
// It behaves like a strict driver: submissions execute asynchronously on a
// queue goroutine, buffer accesses across the transfer and compute domains
// fault unless a pipeline barrier orders them, host-visible memory that is
// not coherent is only synchronized by explicit flush and invalidate calls,
// and destroying a resource referenced by a pending submission panics.
// Kernels are Go functions registered against a kernel binary.
package soft

import (
	"fmt"

	"github.com/andewx/dieselvk/hal"
)

// AdapterName is the name reported by the single soft adapter.
const AdapterName = "dieselvk soft device"

// Options configure the soft device. The zero value is usable.
type Options struct {
	// MemoryTypes overrides the reported memory types. Index fields are
	// reassigned to the slice position.
	MemoryTypes []hal.MemoryType
	// TypeBits limits the memory types allowed for buffers and images.
	// Zero allows every reported type.
	TypeBits uint32
	// BufferAlignment is the reported buffer alignment. Defaults to 64.
	BufferAlignment uint64
	// NonCoherentAtomSize is the flush/invalidate granularity. Defaults to 256.
	NonCoherentAtomSize uint64
	// MaxAllocationSize makes larger allocations fail with out of memory.
	// Defaults to 256 MiB.
	MaxAllocationSize uint64
	// QueueDepth is the number of submissions that may be queued before
	// Submit blocks. Defaults to 16.
	QueueDepth int
}

// DefaultMemoryTypes mirrors a typical discrete GPU: device local first,
// then coherent host memory, then cached non-coherent host memory, then
// the small host-visible device-local window.
func DefaultMemoryTypes() []hal.MemoryType {
	return []hal.MemoryType{
		{Index: 0, Properties: hal.MemoryPropertyDeviceLocal, HeapIndex: 0},
		{Index: 1, Properties: hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent, HeapIndex: 1},
		{Index: 2, Properties: hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCached, HeapIndex: 1},
		{Index: 3, Properties: hal.MemoryPropertyDeviceLocal | hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent, HeapIndex: 0},
	}
}

func (o Options) withDefaults() Options {
	if len(o.MemoryTypes) == 0 {
		o.MemoryTypes = DefaultMemoryTypes()
	} else {
		types := make([]hal.MemoryType, len(o.MemoryTypes))
		copy(types, o.MemoryTypes)
		for i := range types {
			types[i].Index = uint32(i)
		}
		o.MemoryTypes = types
	}
	if o.TypeBits == 0 {
		o.TypeBits = uint32(1)<<uint(len(o.MemoryTypes)) - 1
	}
	if o.BufferAlignment == 0 {
		o.BufferAlignment = 64
	}
	if o.NonCoherentAtomSize == 0 {
		o.NonCoherentAtomSize = 256
	}
	if o.MaxAllocationSize == 0 {
		o.MaxAllocationSize = 256 << 20
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 16
	}
	return o
}

// Instance exposes one adapter with one compute and transfer queue family.
type Instance struct {
	opts    Options
	kernels *registry
}

var _ hal.Instance = (*Instance)(nil)

func NewInstance(opts Options) *Instance {
	return &Instance{
		opts:    opts.withDefaults(),
		kernels: newRegistry(),
	}
}

// RegisterKernel makes fn the implementation of every shader module
// created from code on devices opened by this instance.
func (i *Instance) RegisterKernel(code []byte, entryPoint string, fn KernelFunc) {
	i.kernels.register(code, entryPoint, fn)
}

func (i *Instance) adapter() hal.Adapter {
	return hal.Adapter{
		Index: 0,
		Info: hal.AdapterInfo{
			Name:       AdapterName,
			Type:       hal.AdapterTypeCPU,
			APIVersion: 1<<22 | 2<<12,
		},
		QueueFamilies: []hal.QueueFamily{
			{Index: 0, Flags: hal.QueueCompute | hal.QueueTransfer, Count: 1},
		},
		MemoryTypes: append([]hal.MemoryType(nil), i.opts.MemoryTypes...),
		Limits: hal.Limits{
			NonCoherentAtomSize:      i.opts.NonCoherentAtomSize,
			MaxComputeWorkGroupCount: [3]uint32{65535, 65535, 65535},
			MaxPushConstantsSize:     128,
			MaxStorageBufferRange:    1 << 27,
		},
	}
}

func (i *Instance) Adapters() ([]hal.Adapter, error) {
	return []hal.Adapter{i.adapter()}, nil
}

func (i *Instance) Open(adapter hal.Adapter, family hal.QueueFamily) (hal.Device, error) {
	if adapter.Index != 0 || family.Index != 0 {
		return nil, fmt.Errorf("%w: soft adapter %d has no queue family %d",
			hal.ErrInitializationFailed, adapter.Index, family.Index)
	}
	return newDevice(i.adapter(), i.opts, i.kernels), nil
}

func (i *Instance) Destroy() {}

// NewDevice opens the soft adapter of a fresh instance.
func NewDevice(opts Options) *Device {
	inst := NewInstance(opts)
	return newDevice(inst.adapter(), inst.opts, inst.kernels)
}

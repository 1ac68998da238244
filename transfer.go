package dieselvk

import (
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/andewx/dieselvk/hal"
)

// MapMode selects the visibility operation a mapping performs.
type MapMode int

const (
	// MapRead invalidates non-coherent memory when the mapping is acquired.
	MapRead MapMode = 1 << iota
	// MapWrite flushes non-coherent memory when the mapping is released.
	MapWrite
)

// Mapping is a host view of the whole bound range of a buffer's memory.
// Release must be called on every path; it is safe to call more than once.
type Mapping struct {
	dev      hal.Device
	res      *BufferResource
	mode     MapMode
	data     []byte
	released bool
}

// Map acquires a mapping of [0, res.Size).
func Map(dev hal.Device, res *BufferResource, mode MapMode) (*Mapping, error) {
	if err := res.usable(); err != nil {
		return nil, err
	}
	data, err := dev.MapMemory(res.Memory, 0, hal.WholeSize)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", res.Buffer, err)
	}
	m := &Mapping{dev: dev, res: res, mode: mode, data: data}
	if mode&MapRead != 0 && !m.coherent() {
		if err := dev.InvalidateMappedRange(res.Memory, 0, hal.WholeSize); err != nil {
			dev.UnmapMemory(res.Memory)
			return nil, fmt.Errorf("invalidate %s: %w", res.Buffer, err)
		}
	}
	return m, nil
}

func (m *Mapping) coherent() bool {
	return m.res.MemoryType.Properties.Has(hal.MemoryPropertyHostCoherent)
}

// Bytes returns the mapped bytes. The slice is invalid after Release.
func (m *Mapping) Bytes() []byte { return m.data }

// Release flushes a write mapping of non-coherent memory and unmaps it.
func (m *Mapping) Release() error {
	if m.released {
		return nil
	}
	m.released = true
	var err error
	if m.mode&MapWrite != 0 && !m.coherent() {
		if ferr := m.dev.FlushMappedRange(m.res.Memory, 0, hal.WholeSize); ferr != nil {
			err = fmt.Errorf("flush %s: %w", m.res.Buffer, ferr)
		}
	}
	m.dev.UnmapMemory(m.res.Memory)
	m.data = nil
	return err
}

// Write copies items into the start of res. It fails with ErrBufferTooSmall
// when the items need more than res.Size bytes.
func Write[T any](dev hal.Device, res *BufferResource, items []T) (err error) {
	if err := res.usable(); err != nil {
		return err
	}
	need, err := extent[T](uint64(len(items)), res)
	if err != nil {
		return err
	}
	m, err := Map(dev, res, MapWrite)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, m.Release()) }()
	copy(m.Bytes(), asBytes(items)[:need])
	return nil
}

// Read copies count items out of the start of res. The caller must have
// waited for any device write to res to complete.
func Read[T any](dev hal.Device, res *BufferResource, count uint64) (items []T, err error) {
	if err := res.usable(); err != nil {
		return nil, err
	}
	need, err := extent[T](count, res)
	if err != nil {
		return nil, err
	}
	m, err := Map(dev, res, MapRead)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, m.Release()) }()
	out := make([]T, count)
	copy(asBytes(out), m.Bytes()[:need])
	return out, nil
}

func extent[T any](count uint64, res *BufferResource) (uint64, error) {
	stride := sizeOf[T]()
	hi, need := bits.Mul64(count, stride)
	if hi != 0 || need > res.Size {
		return 0, fmt.Errorf("%w: %d items of %d bytes, %s holds %d bytes",
			ErrBufferTooSmall, count, stride, res.Buffer, res.Size)
	}
	return need, nil
}

func asBytes[T any](items []T) []byte {
	if len(items) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(items))), uintptr(len(items))*unsafe.Sizeof(items[0]))
}

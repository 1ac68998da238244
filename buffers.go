package dieselvk

import (
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/andewx/dieselvk/hal"
)

// BufferResource is a device buffer bound at offset 0 to its own memory
// allocation. Size is the size of that allocation, which may exceed the
// logical size requested because of alignment.
type BufferResource struct {
	Buffer     hal.Buffer
	Memory     hal.Memory
	Size       uint64
	MemoryType hal.MemoryType
	Usage      hal.BufferUsageFlags

	inFlight  int
	destroyed bool
}

func (b *BufferResource) String() string {
	return fmt.Sprintf("buffer %s (%d bytes, memory type %d %s)", b.Buffer, b.Size, b.MemoryType.Index, b.MemoryType.Properties)
}

// Busy reports whether a submitted dispatch still references the buffer.
func (b *BufferResource) Busy() bool { return b.inFlight > 0 }

// AllocateBuffer creates a buffer for itemCount items of itemStride bytes,
// backed by memory of the first type satisfying props.
func AllocateBuffer(dev hal.Device, types []hal.MemoryType, props hal.MemoryPropertyFlags,
	usage hal.BufferUsageFlags, itemCount, itemStride uint64) (*BufferResource, error) {

	hi, size := bits.Mul64(itemCount, itemStride)
	if hi != 0 {
		return nil, fmt.Errorf("%w: %d items of %d bytes overflow", ErrAllocationFailed, itemCount, itemStride)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer (%d items of %d bytes)", ErrAllocationFailed, itemCount, itemStride)
	}

	buf, err := dev.CreateBuffer(&hal.BufferDescriptor{Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("%w: create buffer of %d bytes: %w", ErrAllocationFailed, size, err)
	}

	req := dev.BufferMemoryRequirements(buf)
	memType, err := SelectMemoryType(types, req.TypeBits, props)
	if err != nil {
		dev.DestroyBuffer(buf)
		return nil, err
	}

	mem, err := dev.AllocateMemory(memType.Index, req.Size)
	if err != nil {
		dev.DestroyBuffer(buf)
		return nil, fmt.Errorf("%w: %d bytes of memory type %d: %w", ErrAllocationFailed, req.Size, memType.Index, err)
	}
	if err := dev.BindBufferMemory(buf, mem, 0); err != nil {
		dev.DestroyBuffer(buf)
		dev.FreeMemory(mem)
		return nil, fmt.Errorf("%w: %w", ErrBindFailed, err)
	}

	b := &BufferResource{
		Buffer:     buf,
		Memory:     mem,
		Size:       req.Size,
		MemoryType: memType,
		Usage:      usage,
	}
	Logger().Debug("dieselvk: buffer allocated",
		"buffer", buf, "requested", size, "allocated", req.Size,
		"memory_type", memType.Index, "properties", memType.Properties)
	return b, nil
}

// AllocateBufferFor allocates a buffer for count items of type T.
func AllocateBufferFor[T any](dev hal.Device, types []hal.MemoryType, props hal.MemoryPropertyFlags,
	usage hal.BufferUsageFlags, count uint64) (*BufferResource, error) {
	return AllocateBuffer(dev, types, props, usage, count, sizeOf[T]())
}

// CreateBuffer allocates a host-visible buffer sized for items and writes them into it.
func CreateBuffer[T any](dev hal.Device, types []hal.MemoryType, props hal.MemoryPropertyFlags,
	usage hal.BufferUsageFlags, items []T) (*BufferResource, error) {

	b, err := AllocateBufferFor[T](dev, types, props, usage, uint64(len(items)))
	if err != nil {
		return nil, err
	}
	if err := Write(dev, b, items); err != nil {
		return nil, errors.Join(err, b.Destroy(dev))
	}
	return b, nil
}

// Destroy releases the buffer and then its memory. It fails with
// ErrResourceInUse while a submitted dispatch references the buffer.
func (b *BufferResource) Destroy(dev hal.Device) error {
	if b.destroyed {
		return fmt.Errorf("%w: %s", ErrResourceDestroyed, b.Buffer)
	}
	if b.inFlight > 0 {
		return fmt.Errorf("%w: %s", ErrResourceInUse, b.Buffer)
	}
	dev.DestroyBuffer(b.Buffer)
	dev.FreeMemory(b.Memory)
	b.destroyed = true
	return nil
}

func (b *BufferResource) usable() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidState)
	}
	if b.destroyed {
		return fmt.Errorf("%w: %s", ErrResourceDestroyed, b.Buffer)
	}
	return nil
}

func sizeOf[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

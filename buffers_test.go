package dieselvk

import (
	"errors"
	"testing"

	"github.com/andewx/dieselvk/hal"
	"github.com/andewx/dieselvk/hal/soft"
)

func TestAllocateBufferSize(t *testing.T) {
	tests := []struct {
		name          string
		opts          soft.Options
		count, stride uint64
		want          uint64
	}{
		{"rounded to atom", soft.Options{}, 11, 4, 256},
		{"exact atom", soft.Options{}, 64, 4, 256},
		{"two atoms", soft.Options{}, 65, 4, 512},
		{"fine alignment", soft.Options{BufferAlignment: 4, NonCoherentAtomSize: 4}, 11, 4, 44},
		{"odd stride", soft.Options{BufferAlignment: 4, NonCoherentAtomSize: 4}, 3, 12, 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newTestDevice(t, tt.opts)
			b, err := AllocateBuffer(dev, dev.MemoryTypes(), hal.MemoryPropertyDeviceLocal, storageUsage, tt.count, tt.stride)
			if err != nil {
				t.Fatal(err)
			}
			defer b.Destroy(dev)
			if b.Size != tt.want {
				t.Errorf("Size = %d, want %d", b.Size, tt.want)
			}
			if b.Size < tt.count*tt.stride {
				t.Errorf("Size %d is smaller than the %d bytes requested", b.Size, tt.count*tt.stride)
			}
			if b.MemoryType.Index != 0 {
				t.Errorf("memory type = %d, want 0", b.MemoryType.Index)
			}
		})
	}
}

func TestAllocateBufferZeroSize(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	for _, c := range [][2]uint64{{0, 4}, {4, 0}, {0, 0}} {
		_, err := AllocateBuffer(dev, dev.MemoryTypes(), hal.MemoryPropertyDeviceLocal, storageUsage, c[0], c[1])
		if !errors.Is(err, ErrAllocationFailed) {
			t.Errorf("%d x %d: err = %v, want ErrAllocationFailed", c[0], c[1], err)
		}
	}
}

func TestAllocateBufferOverflow(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	_, err := AllocateBuffer(dev, dev.MemoryTypes(), hal.MemoryPropertyDeviceLocal, storageUsage, 1<<40, 1<<40)
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("err = %v, want ErrAllocationFailed", err)
	}
}

func TestAllocateBufferNoSuitableMemoryType(t *testing.T) {
	// Buffers may only live in type 0, which is not host visible.
	dev := newTestDevice(t, soft.Options{TypeBits: 0x1})
	_, err := AllocateBuffer(dev, dev.MemoryTypes(), stagingProps, stagingUsage, 16, 4)
	if !errors.Is(err, ErrNoSuitableMemoryType) {
		t.Fatalf("err = %v, want ErrNoSuitableMemoryType", err)
	}
}

func TestAllocateBufferOutOfMemory(t *testing.T) {
	dev := newTestDevice(t, soft.Options{MaxAllocationSize: 1024})
	_, err := AllocateBuffer(dev, dev.MemoryTypes(), hal.MemoryPropertyDeviceLocal, storageUsage, 1024, 4)
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("err = %v, want ErrAllocationFailed", err)
	}
	if !errors.Is(err, hal.ErrOutOfMemory) {
		t.Errorf("err = %v, want it to wrap hal.ErrOutOfMemory", err)
	}
}

func TestBufferDestroyTwice(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	b, err := AllocateBufferFor[float32](dev, dev.MemoryTypes(), stagingProps, stagingUsage, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Destroy(dev); err != nil {
		t.Fatal(err)
	}
	if err := b.Destroy(dev); !errors.Is(err, ErrResourceDestroyed) {
		t.Fatalf("second Destroy: err = %v, want ErrResourceDestroyed", err)
	}
	if err := Write(dev, b, []float32{1}); !errors.Is(err, ErrResourceDestroyed) {
		t.Fatalf("Write after Destroy: err = %v, want ErrResourceDestroyed", err)
	}
}

func TestCreateBufferInDeviceLocalMemoryFails(t *testing.T) {
	dev := newTestDevice(t, soft.Options{TypeBits: 0x1})
	_, err := CreateBuffer(dev, dev.MemoryTypes(), hal.MemoryPropertyDeviceLocal, stagingUsage, []uint32{1, 2, 3})
	if !errors.Is(err, hal.ErrMemoryMapFailed) {
		t.Fatalf("err = %v, want hal.ErrMemoryMapFailed", err)
	}
}

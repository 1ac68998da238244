package dieselvk

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/andewx/dieselvk/hal"
	"github.com/andewx/dieselvk/hal/soft"
)

func TestWriteBufferTooSmall(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	// 11 words round up to one 256 byte atom, so 64 words fit.
	b, err := AllocateBufferFor[uint32](dev, dev.MemoryTypes(), stagingProps, stagingUsage, 11)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy(dev)

	for _, n := range []int{0, 1, 11, 63, 64, 65, 200} {
		err := Write(dev, b, make([]uint32, n))
		tooSmall := uint64(n)*4 > b.Size
		if got := errors.Is(err, ErrBufferTooSmall); got != tooSmall {
			t.Errorf("Write(%d words) into %d bytes: err = %v, want too small = %v", n, b.Size, err, tooSmall)
		}
		_, err = Read[uint32](dev, b, uint64(n))
		if got := errors.Is(err, ErrBufferTooSmall); got != tooSmall {
			t.Errorf("Read(%d words) from %d bytes: err = %v, want too small = %v", n, b.Size, err, tooSmall)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		props hal.MemoryPropertyFlags
	}{
		{"coherent", stagingProps},
		{"non-coherent", hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newTestDevice(t, soft.Options{})
			want := []float32{0.5, -1, 3.25, 1e9, 0}
			b, err := CreateBuffer(dev, dev.MemoryTypes(), tt.props, stagingUsage, want)
			if err != nil {
				t.Fatal(err)
			}
			defer b.Destroy(dev)
			if !b.MemoryType.Properties.Has(tt.props) {
				t.Fatalf("memory type %s lacks %s", b.MemoryType.Properties, tt.props)
			}
			got, err := Read[float32](dev, b, uint64(len(want)))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMappingRelease(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	b, err := AllocateBufferFor[uint32](dev, dev.MemoryTypes(), hal.MemoryPropertyHostVisible|hal.MemoryPropertyHostCached, stagingUsage, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy(dev)

	m, err := Map(dev, b, MapWrite)
	if err != nil {
		t.Fatal(err)
	}
	if got := uint64(len(m.Bytes())); got != b.Size {
		t.Errorf("mapped %d bytes, want %d", got, b.Size)
	}
	m.Bytes()[0] = 0x2a
	for i := 0; i < 2; i++ {
		if err := m.Release(); err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
	}
	if m.Bytes() != nil {
		t.Error("Bytes should be nil after Release")
	}

	got, err := Read[uint32](dev, b, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0x2a {
		t.Errorf("flushed word = %#x, want 0x2a", got[0])
	}
}

func TestMapDeviceLocalBufferFails(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	b, err := AllocateBufferFor[uint32](dev, dev.MemoryTypes(), hal.MemoryPropertyDeviceLocal, storageUsage, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy(dev)
	if b.MemoryType.Properties.Has(hal.MemoryPropertyHostVisible) {
		t.Fatalf("memory type %d is host visible", b.MemoryType.Index)
	}
	if _, err := Read[uint32](dev, b, 4); !errors.Is(err, hal.ErrMemoryMapFailed) {
		t.Fatalf("err = %v, want hal.ErrMemoryMapFailed", err)
	}
}

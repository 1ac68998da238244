package dieselvk

import (
	"errors"
	"testing"

	"github.com/andewx/dieselvk/hal"
	"github.com/andewx/dieselvk/hal/soft"
)

func TestCreateImage(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	img, err := CreateImage(dev, dev.MemoryTypes(), 64, 32, hal.FormatR8G8B8A8Unorm,
		hal.ImageUsageStorage|hal.ImageUsageTransferDst, hal.ImageAspectColor)
	if err != nil {
		t.Fatal(err)
	}
	if img.Size < 64*32*4 {
		t.Errorf("Size = %d, want at least %d", img.Size, 64*32*4)
	}
	if !img.MemoryType.Properties.Has(hal.MemoryPropertyDeviceLocal) {
		t.Errorf("memory type %s is not device local", img.MemoryType.Properties)
	}
	if img.View == nil {
		t.Fatal("no view created")
	}
	if err := img.Destroy(dev); err != nil {
		t.Fatal(err)
	}
	if err := img.Destroy(dev); !errors.Is(err, ErrResourceDestroyed) {
		t.Errorf("second Destroy: err = %v, want ErrResourceDestroyed", err)
	}
}

func TestCreateImageWithoutAspect(t *testing.T) {
	dev := newTestDevice(t, soft.Options{})
	_, err := CreateImage(dev, dev.MemoryTypes(), 4, 4, hal.FormatR32Sfloat, hal.ImageUsageStorage, 0)
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("err = %v, want ErrAllocationFailed", err)
	}
}

package dieselvk

import (
	"fmt"

	"github.com/andewx/dieselvk/hal"
)

// ImageResource is a 2-D device-local image with its own memory and a
// view over its single mip level and layer.
type ImageResource struct {
	Image      hal.Image
	Memory     hal.Memory
	View       hal.ImageView
	Width      uint32
	Height     uint32
	Format     hal.Format
	Usage      hal.ImageUsageFlags
	Aspect     hal.ImageAspectFlags
	Size       uint64
	MemoryType hal.MemoryType

	destroyed bool
}

// CreateImage creates an optimally tiled image, binds it to device-local
// memory and creates a view for aspect.
func CreateImage(dev hal.Device, types []hal.MemoryType, width, height uint32, format hal.Format,
	usage hal.ImageUsageFlags, aspect hal.ImageAspectFlags) (*ImageResource, error) {

	img, err := dev.CreateImage(&hal.ImageDescriptor{
		Width:  width,
		Height: height,
		Format: format,
		Tiling: hal.ImageTilingOptimal,
		Usage:  usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create %dx%d %s image: %w", ErrAllocationFailed, width, height, format, err)
	}

	req := dev.ImageMemoryRequirements(img)
	memType, err := SelectMemoryType(types, req.TypeBits, hal.MemoryPropertyDeviceLocal)
	if err != nil {
		dev.DestroyImage(img)
		return nil, err
	}
	mem, err := dev.AllocateMemory(memType.Index, req.Size)
	if err != nil {
		dev.DestroyImage(img)
		return nil, fmt.Errorf("%w: %d bytes of memory type %d: %w", ErrAllocationFailed, req.Size, memType.Index, err)
	}
	if err := dev.BindImageMemory(img, mem, 0); err != nil {
		dev.DestroyImage(img)
		dev.FreeMemory(mem)
		return nil, fmt.Errorf("%w: %w", ErrBindFailed, err)
	}

	view, err := dev.CreateImageView(&hal.ImageViewDescriptor{
		Image:      img,
		Format:     format,
		Aspect:     aspect,
		LevelCount: 1,
		LayerCount: 1,
	})
	if err != nil {
		dev.DestroyImage(img)
		dev.FreeMemory(mem)
		return nil, fmt.Errorf("%w: create view: %w", ErrAllocationFailed, err)
	}

	Logger().Debug("dieselvk: image allocated",
		"image", img, "width", width, "height", height, "format", format,
		"allocated", req.Size, "memory_type", memType.Index)
	return &ImageResource{
		Image:      img,
		Memory:     mem,
		View:       view,
		Width:      width,
		Height:     height,
		Format:     format,
		Usage:      usage,
		Aspect:     aspect,
		Size:       req.Size,
		MemoryType: memType,
	}, nil
}

// Destroy releases the view, the image and then its memory.
func (r *ImageResource) Destroy(dev hal.Device) error {
	if r.destroyed {
		return fmt.Errorf("%w: %s", ErrResourceDestroyed, r.Image)
	}
	dev.DestroyImageView(r.View)
	dev.DestroyImage(r.Image)
	dev.FreeMemory(r.Memory)
	r.destroyed = true
	return nil
}

// Package dieselvk runs compute kernels over buffers of plain values. It
// picks memory types, allocates and binds buffers, moves data through
// host-visible staging memory, builds single-set compute pipelines, and
// records, submits and waits on dispatches. Everything goes through a
// hal.Device, so the same code drives hal/vulkan and the hal/soft reference
// device.
package dieselvk

import (
	"errors"
	"time"

	"github.com/andewx/dieselvk/hal"
)

// RunOptions configure Run. The zero value is usable.
type RunOptions struct {
	// Timeout bounds the fence wait. Defaults to hal.InfiniteTimeout.
	Timeout time.Duration
	// StagingProperties select the staging buffer memory. Defaults to
	// HOST_VISIBLE|HOST_COHERENT.
	StagingProperties hal.MemoryPropertyFlags
	// EntryPoint defaults to "main".
	EntryPoint string
	// Groups overrides the [len(input), 1, 1] work-group count.
	Groups [3]uint32
	// PushConstants are recorded before the dispatch and declare a
	// range of the same length.
	PushConstants []uint32
}

// Run uploads input through a host-visible staging buffer into a
// device-local storage buffer, dispatches kernel over it, and reads the
// result back. Every resource is destroyed before Run returns, in reverse
// order of creation. Empty input returns an empty result without touching
// the device.
func Run[T any](dev hal.Device, kernel []byte, input []T, opts *RunOptions) (out []T, err error) {
	if len(input) == 0 {
		return []T{}, nil
	}
	if opts == nil {
		opts = &RunOptions{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = hal.InfiniteTimeout
	}
	stagingProps := opts.StagingProperties
	if stagingProps == 0 {
		stagingProps = hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent
	}

	var teardown []func() error
	defer func() {
		for i := len(teardown) - 1; i >= 0; i-- {
			if terr := teardown[i](); terr != nil {
				Logger().Warn("dieselvk: teardown failed", "err", terr)
				err = errors.Join(err, terr)
			}
		}
	}()

	types := dev.MemoryTypes()
	count := uint64(len(input))
	stride := sizeOf[T]()

	staging, err := CreateBuffer(dev, types, stagingProps,
		hal.BufferUsageTransferSrc|hal.BufferUsageTransferDst, input)
	if err != nil {
		return nil, err
	}
	teardown = append(teardown, func() error { return staging.Destroy(dev) })

	target, err := AllocateBuffer(dev, types, hal.MemoryPropertyDeviceLocal,
		hal.BufferUsageTransferSrc|hal.BufferUsageTransferDst|hal.BufferUsageStorage, count, stride)
	if err != nil {
		return nil, err
	}
	teardown = append(teardown, func() error { return target.Destroy(dev) })

	pipeline, err := NewComputePipeline(dev, PipelineConfig{
		Kernel:            kernel,
		EntryPoint:        opts.EntryPoint,
		PushConstantWords: uint32(len(opts.PushConstants)),
	}, target)
	if err != nil {
		return nil, err
	}
	teardown = append(teardown, pipeline.Destroy)

	pool, err := dev.CreateCommandPool()
	if err != nil {
		return nil, errors.Join(ErrAllocationFailed, err)
	}
	teardown = append(teardown, func() error { dev.DestroyCommandPool(pool); return nil })

	d := NewDispatch(dev, pool)
	dispatchOpts := &DispatchOptions{Groups: opts.Groups, PushConstants: opts.PushConstants}
	if err := d.Execute(pipeline, staging, target, count, stride, timeout, dispatchOpts); err != nil {
		if d.State() == DispatchSubmitted {
			// The submission cannot be abandoned; retire it before teardown.
			if werr := d.Wait(hal.InfiniteTimeout); werr != nil {
				err = errors.Join(err, werr)
			}
			err = errors.Join(err, d.Release())
		}
		return nil, err
	}

	return Read[T](dev, staging, count)
}

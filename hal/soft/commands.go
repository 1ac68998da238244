package soft

import (
	"errors"
	"fmt"

	"github.com/andewx/dieselvk/hal"
)

type commandPool struct {
	handle
	buffers map[*commandBuffer]struct{}
}

func (d *Device) CreateCommandPool() (hal.CommandPool, error) {
	return &commandPool{
		handle:  d.newHandle("command_pool", ""),
		buffers: make(map[*commandBuffer]struct{}),
	}, nil
}

// DestroyCommandPool frees the pool and every command buffer allocated from it.
func (d *Device) DestroyCommandPool(pool hal.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := cast[*commandPool](pool)
	for cb := range p.buffers {
		if cb.refs > 0 {
			panic(fmt.Sprintf("soft: %s destroyed while its %s is pending", p, cb))
		}
	}
	retire(p)
	for cb := range p.buffers {
		cb.destroyed = true
	}
	p.buffers = nil
}

func (d *Device) AllocateCommandBuffer(pool hal.CommandPool) (hal.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := cast[*commandPool](pool)
	cb := &commandBuffer{
		handle: d.newHandle("command_buffer", ""),
		dev:    d,
		pool:   p,
	}
	p.buffers[cb] = struct{}{}
	return cb, nil
}

func (d *Device) FreeCommandBuffer(pool hal.CommandPool, cb hal.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := cast[*commandPool](pool)
	c := cast[*commandBuffer](cb)
	if c.pool != p {
		panic(fmt.Sprintf("soft: %s was not allocated from %s", c, p))
	}
	retire(c)
	delete(p.buffers, c)
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
	cbInvalid
)

// command runs one recorded command on the queue goroutine. A returned
// error is a device fault.
type command func(x *execution) error

type commandBuffer struct {
	handle
	dev     *Device
	pool    *commandPool
	state   cbState
	oneTime bool
	cmds    []command
	uses    []resource
	err     error
}

var _ hal.CommandBuffer = (*commandBuffer)(nil)

func (c *commandBuffer) Begin(oneTime bool) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.state == cbPending {
		return fmt.Errorf("%w: %s begun while pending", hal.ErrInvalidUsage, c)
	}
	c.state = cbRecording
	c.oneTime = oneTime
	c.cmds, c.uses, c.err = nil, nil, nil
	return nil
}

// record appends cmd while holding the device lock. Recording outside
// Begin/End is remembered and reported by End.
func (c *commandBuffer) record(fn func() (command, error)) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.state != cbRecording {
		c.err = errors.Join(c.err, fmt.Errorf("%w: %s is not recording", hal.ErrInvalidUsage, c))
		return
	}
	cmd, err := fn()
	if err != nil {
		c.err = errors.Join(c.err, err)
		return
	}
	c.cmds = append(c.cmds, cmd)
}

func (c *commandBuffer) use(rs ...resource) {
	for _, r := range rs {
		c.uses = append(c.uses, r)
		if b, ok := r.(*buffer); ok && b.mem != nil {
			c.uses = append(c.uses, b.mem)
		}
	}
}

func (c *commandBuffer) CopyBuffer(src, dst hal.Buffer, regions ...hal.BufferCopy) {
	c.record(func() (command, error) {
		s, t := cast[*buffer](src), cast[*buffer](dst)
		c.use(s, t)
		regions := append([]hal.BufferCopy(nil), regions...)
		return func(x *execution) error { return x.copyBuffer(s, t, regions) }, nil
	})
}

func (c *commandBuffer) PipelineBarrier(src, dst hal.PipelineStageFlags, barriers ...hal.BufferBarrier) {
	c.record(func() (command, error) {
		bufs := make([]*buffer, len(barriers))
		for i, b := range barriers {
			bufs[i] = cast[*buffer](b.Buffer)
			c.use(bufs[i])
		}
		barriers := append([]hal.BufferBarrier(nil), barriers...)
		return func(x *execution) error {
			for i, b := range barriers {
				bufs[i].hz.barrier(src, dst, b.SrcAccess, b.DstAccess)
				x.touch(bufs[i])
			}
			return nil
		}, nil
	})
}

func (c *commandBuffer) BindComputePipeline(p hal.Pipeline) {
	c.record(func() (command, error) {
		pl := cast[*pipeline](p)
		c.use(pl, pl.layout)
		return func(x *execution) error {
			x.pipeline = pl
			return nil
		}, nil
	})
}

func (c *commandBuffer) BindDescriptorSets(layout hal.PipelineLayout, first uint32, sets ...hal.DescriptorSet) {
	c.record(func() (command, error) {
		pl := cast[*pipelineLayout](layout)
		bound := make([]*descriptorSet, len(sets))
		for i, s := range sets {
			ds := cast[*descriptorSet](s)
			if int(first)+i >= len(pl.sets) || pl.sets[int(first)+i] != ds.layout {
				return nil, fmt.Errorf("%w: %s is incompatible with set %d of %s",
					hal.ErrInvalidUsage, ds, int(first)+i, pl)
			}
			bound[i] = ds
			c.use(ds)
			for _, bb := range ds.bound {
				c.use(bb.buf)
			}
		}
		c.use(pl)
		return func(x *execution) error {
			for i, ds := range bound {
				x.sets[first+uint32(i)] = ds
			}
			return nil
		}, nil
	})
}

func (c *commandBuffer) PushConstants(layout hal.PipelineLayout, offset uint32, values []uint32) {
	c.record(func() (command, error) {
		pl := cast[*pipelineLayout](layout)
		size := uint32(len(values) * 4)
		if !pl.pushed(offset, size) {
			return nil, fmt.Errorf("%w: push constants [%d, %d) outside the ranges of %s",
				hal.ErrInvalidUsage, offset, offset+size, pl)
		}
		c.use(pl)
		values := append([]uint32(nil), values...)
		return func(x *execution) error {
			copy(Words(x.push[offset:offset+size]), values)
			if end := offset + size; end > x.pushEnd {
				x.pushEnd = end
			}
			return nil
		}, nil
	})
}

func (c *commandBuffer) Dispatch(gx, gy, gz uint32) {
	c.record(func() (command, error) {
		return func(x *execution) error { return x.dispatch([3]uint32{gx, gy, gz}) }, nil
	})
}

func (c *commandBuffer) End() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.state != cbRecording {
		return fmt.Errorf("%w: %s ended while not recording", hal.ErrInvalidUsage, c)
	}
	if c.err != nil {
		c.state = cbInvalid
		return c.err
	}
	c.state = cbExecutable
	return nil
}

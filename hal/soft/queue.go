package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/andewx/dieselvk/hal"
)

type fence struct {
	handle
	done      chan struct{}
	submitted bool
	fault     error
}

func (d *Device) CreateFence() (hal.Fence, error) {
	return &fence{
		handle: d.newHandle("fence", ""),
		done:   make(chan struct{}),
	}, nil
}

func (d *Device) DestroyFence(f hal.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	retire(cast[*fence](f))
}

func (d *Device) WaitForFence(f hal.Fence, timeout time.Duration) error {
	d.mu.Lock()
	fc := cast[*fence](f)
	submitted, done := fc.submitted, fc.done
	d.mu.Unlock()
	if !submitted {
		return fmt.Errorf("%w: wait on %s which was never submitted", hal.ErrInvalidUsage, fc)
	}

	switch {
	case timeout == hal.InfiniteTimeout:
		<-done
	case timeout <= 0:
		select {
		case <-done:
		default:
			return fmt.Errorf("%w: %s not signaled", hal.ErrTimeout, fc)
		}
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			return fmt.Errorf("%w: %s not signaled after %s", hal.ErrTimeout, fc, timeout)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if fc.fault != nil {
		return fmt.Errorf("%w: %v", hal.ErrDeviceLost, fc.fault)
	}
	return nil
}

type submission struct {
	cb    *commandBuffer
	fence *fence
	uses  []*handle
}

func (d *Device) Submit(cb hal.CommandBuffer, f hal.Fence) error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return fmt.Errorf("%w: submit to destroyed device", hal.ErrInvalidUsage)
	}
	if d.lost != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %v", hal.ErrDeviceLost, d.lost)
	}
	sub, err := d.prepare(cast[*commandBuffer](cb), f)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	slogger().Debug("soft: submit", "command_buffer", sub.cb, "commands", len(sub.cb.cmds))
	d.queue <- sub
	return nil
}

// prepare validates a submission and takes a reference on every resource it uses.
func (d *Device) prepare(c *commandBuffer, f hal.Fence) (*submission, error) {
	if c.state != cbExecutable {
		return nil, fmt.Errorf("%w: %s is not executable", hal.ErrInvalidUsage, c)
	}
	sub := &submission{cb: c}
	uses := append([]resource{c, c.pool}, c.uses...)
	if f != nil {
		sub.fence = cast[*fence](f)
		if sub.fence.submitted {
			return nil, fmt.Errorf("%w: %s already submitted", hal.ErrInvalidUsage, sub.fence)
		}
		uses = append(uses, sub.fence)
	}
	seen := make(map[*handle]bool, len(uses))
	for _, r := range uses {
		h := r.base()
		if seen[h] {
			continue
		}
		if h.destroyed {
			return nil, fmt.Errorf("%w: %s references destroyed %s", hal.ErrInvalidUsage, c, h)
		}
		seen[h] = true
		sub.uses = append(sub.uses, h)
	}
	for _, h := range sub.uses {
		h.refs++
	}
	c.state = cbPending
	if sub.fence != nil {
		sub.fence.submitted = true
	}
	return sub, nil
}

func (d *Device) run() {
	defer close(d.stopped)
	for sub := range d.queue {
		d.gate.wait()
		d.execute(sub)
	}
}

func (d *Device) execute(sub *submission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.inflight.Done()

	fault := d.lost
	if fault == nil {
		x := newExecution(d)
		for i, cmd := range sub.cb.cmds {
			if err := x.run(cmd); err != nil {
				fault = fmt.Errorf("%s command %d: %w", sub.cb, i, err)
				break
			}
		}
		for b := range x.touched {
			b.hz = hazard{}
		}
		if fault != nil {
			d.lost = fault
			slogger().Error("soft: device lost", "err", fault)
		}
	}

	for _, h := range sub.uses {
		h.refs--
	}
	if sub.cb.oneTime {
		sub.cb.state = cbInvalid
	} else {
		sub.cb.state = cbExecutable
	}
	if sub.fence != nil {
		sub.fence.fault = fault
		close(sub.fence.done)
	}
}

// gate holds the queue goroutine before it starts the next submission.
type gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func (g *gate) wait() {
	g.mu.Lock()
	for g.paused {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Pause stops the queue from starting further submissions until Resume.
// Submissions already executing run to completion.
func (d *Device) Pause() {
	d.gate.mu.Lock()
	d.gate.paused = true
	d.gate.mu.Unlock()
}

func (d *Device) Resume() {
	d.gate.mu.Lock()
	d.gate.paused = false
	d.gate.cond.Broadcast()
	d.gate.mu.Unlock()
}

// hazard tracks the last unordered write to a buffer within one submission.
type hazard struct {
	writeStage  hal.PipelineStageFlags
	writeAccess hal.AccessFlags
	visStage    hal.PipelineStageFlags
	visAccess   hal.AccessFlags
}

func (h *hazard) read(stage hal.PipelineStageFlags, access hal.AccessFlags) error {
	if h.writeStage == 0 || h.writeStage == stage {
		return nil
	}
	if h.visStage&stage != 0 && h.visAccess&access == access {
		return nil
	}
	return fmt.Errorf("read-after-write hazard: %s/%s reads data written by %s/%s without a barrier",
		stage, access, h.writeStage, h.writeAccess)
}

func (h *hazard) write(stage hal.PipelineStageFlags, access hal.AccessFlags) error {
	if h.writeStage != 0 && h.writeStage != stage && h.visStage&stage == 0 {
		return fmt.Errorf("write-after-write hazard: %s/%s overwrites data written by %s/%s without a barrier",
			stage, access, h.writeStage, h.writeAccess)
	}
	*h = hazard{writeStage: stage, writeAccess: access}
	return nil
}

func (h *hazard) barrier(src, dst hal.PipelineStageFlags, srcAccess, dstAccess hal.AccessFlags) {
	if h.writeStage == 0 {
		return
	}
	if src&h.writeStage != 0 && srcAccess&h.writeAccess != 0 {
		h.visStage |= dst
		h.visAccess |= dstAccess
	}
}

type execution struct {
	dev      *Device
	pipeline *pipeline
	sets     map[uint32]*descriptorSet
	push     []byte
	pushEnd  uint32
	touched  map[*buffer]struct{}
}

func newExecution(d *Device) *execution {
	return &execution{
		dev:     d,
		sets:    make(map[uint32]*descriptorSet),
		push:    alignedBytes(uint64(d.adapter.Limits.MaxPushConstantsSize)),
		touched: make(map[*buffer]struct{}),
	}
}

func (x *execution) run(cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cmd(x)
}

func (x *execution) touch(b *buffer) {
	x.touched[b] = struct{}{}
}

func checkBound(b *buffer) error {
	if b.destroyed {
		return fmt.Errorf("%s destroyed", b)
	}
	if b.mem == nil {
		return fmt.Errorf("%s has no bound memory", b)
	}
	if b.mem.destroyed {
		return fmt.Errorf("memory of %s freed", b)
	}
	return nil
}

func (x *execution) copyBuffer(src, dst *buffer, regions []hal.BufferCopy) error {
	if err := checkBound(src); err != nil {
		return err
	}
	if err := checkBound(dst); err != nil {
		return err
	}
	if !src.usage.Has(hal.BufferUsageTransferSrc) {
		return fmt.Errorf("copy source %s lacks TRANSFER_SRC usage", src)
	}
	if !dst.usage.Has(hal.BufferUsageTransferDst) {
		return fmt.Errorf("copy destination %s lacks TRANSFER_DST usage", dst)
	}
	for _, r := range regions {
		if r.Size == 0 {
			return fmt.Errorf("zero sized copy from %s to %s", src, dst)
		}
		if r.SrcOffset+r.Size > src.size || r.DstOffset+r.Size > dst.size {
			return fmt.Errorf("copy of %d bytes out of bounds (%s size %d, %s size %d)",
				r.Size, src, src.size, dst, dst.size)
		}
		x.touch(src)
		x.touch(dst)
		if err := src.hz.read(hal.PipelineStageTransfer, hal.AccessTransferRead); err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}
		if err := dst.hz.write(hal.PipelineStageTransfer, hal.AccessTransferWrite); err != nil {
			return fmt.Errorf("%s: %w", dst, err)
		}
		copy(dst.bytes(r.DstOffset, r.Size), src.bytes(r.SrcOffset, r.Size))
	}
	return nil
}

func (x *execution) dispatch(groups [3]uint32) error {
	p := x.pipeline
	if p == nil {
		return fmt.Errorf("dispatch without a bound compute pipeline")
	}
	limits := x.dev.adapter.Limits
	for i, g := range groups {
		if g == 0 {
			return fmt.Errorf("zero sized dispatch %v", groups)
		}
		if g > limits.MaxComputeWorkGroupCount[i] {
			return fmt.Errorf("dispatch %v exceeds the work group count limit %v",
				groups, limits.MaxComputeWorkGroupCount)
		}
	}
	inv := &Invocation{
		Groups:        groups,
		PushConstants: append([]byte(nil), x.push[:x.pushEnd]...),
		bindings:      make(map[[2]uint32][]byte),
	}
	for i, sl := range p.layout.sets {
		ds := x.sets[uint32(i)]
		if ds == nil || ds.destroyed {
			return fmt.Errorf("dispatch with no descriptor set bound at %d", i)
		}
		if ds.layout != sl {
			return fmt.Errorf("%s bound at %d is incompatible with %s", ds, i, p)
		}
		for binding := range sl.bindings {
			bb, ok := ds.bound[binding]
			if !ok {
				return fmt.Errorf("binding %d of %s was never written", binding, ds)
			}
			if err := checkBound(bb.buf); err != nil {
				return err
			}
			x.touch(bb.buf)
			if err := bb.buf.hz.read(hal.PipelineStageComputeShader, hal.AccessShaderRead); err != nil {
				return fmt.Errorf("%s: %w", bb.buf, err)
			}
			if err := bb.buf.hz.write(hal.PipelineStageComputeShader, hal.AccessShaderWrite); err != nil {
				return fmt.Errorf("%s: %w", bb.buf, err)
			}
			inv.bindings[[2]uint32{uint32(i), binding}] = bb.buf.bytes(bb.offset, bb.size)
		}
	}
	if err := p.kernel(inv); err != nil {
		return fmt.Errorf("kernel of %s: %w", p, err)
	}
	return nil
}

package dieselvk

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/andewx/dieselvk/hal"
)

// DispatchState is the position of a Dispatch in its round trip.
type DispatchState int

const (
	DispatchIdle DispatchState = iota
	DispatchRecording
	DispatchSubmitted
	DispatchComplete
)

func (s DispatchState) String() string {
	switch s {
	case DispatchIdle:
		return "idle"
	case DispatchRecording:
		return "recording"
	case DispatchSubmitted:
		return "submitted"
	case DispatchComplete:
		return "complete"
	}
	return fmt.Sprintf("DispatchState(%d)", int(s))
}

// DispatchOptions override the defaults of a recorded dispatch.
type DispatchOptions struct {
	// Groups is the work-group count. The zero value dispatches
	// [itemCount, 1, 1].
	Groups [3]uint32
	// PushConstants are recorded before the dispatch. The length must match
	// the pipeline's declared range.
	PushConstants []uint32
}

// Dispatch records and submits one upload, compute, download round trip:
//
//	copy staging -> device
//	barrier TRANSFER/TRANSFER_WRITE -> COMPUTE_SHADER/SHADER_READ|SHADER_WRITE
//	bind pipeline, bind set, dispatch
//	barrier COMPUTE_SHADER/SHADER_READ|SHADER_WRITE -> TRANSFER/TRANSFER_READ
//	copy device -> staging
//
// and waits for it on a fence. A Dispatch is single-owner and serves one
// submission at a time; Release returns it to Idle for reuse.
type Dispatch struct {
	dev  hal.Device
	pool hal.CommandPool

	state DispatchState
	cmd   hal.CommandBuffer
	fence hal.Fence

	pipeline *ComputePipeline
	held     []*BufferResource
	retained bool
	err      error
}

// NewDispatch returns an idle dispatch allocating its command buffer from pool.
func NewDispatch(dev hal.Device, pool hal.CommandPool) *Dispatch {
	return &Dispatch{dev: dev, pool: pool}
}

func (d *Dispatch) State() DispatchState { return d.state }

// Err returns the failure that completed the dispatch, if any.
func (d *Dispatch) Err() error { return d.err }

// Record moves Idle -> Recording. It records the round trip for itemCount
// items of stride bytes through target, which must be bound to the pipeline.
// With itemCount zero the command buffer is recorded empty.
func (d *Dispatch) Record(p *ComputePipeline, staging, target *BufferResource, itemCount, stride uint64, opts *DispatchOptions) (err error) {
	if d.state != DispatchIdle {
		return fmt.Errorf("%w: record in state %s", ErrInvalidState, d.state)
	}
	if opts == nil {
		opts = &DispatchOptions{}
	}
	if err := p.ready(); err != nil {
		return err
	}
	if err := staging.usable(); err != nil {
		return err
	}
	if err := target.usable(); err != nil {
		return err
	}
	if !p.binds(target) {
		return fmt.Errorf("%w: %s is not bound to the pipeline", ErrInvalidState, target.Buffer)
	}
	hi, extent := bits.Mul64(itemCount, stride)
	if hi != 0 || extent > staging.Size || extent > target.Size {
		return fmt.Errorf("%w: %d items of %d bytes, staging holds %d, device buffer %d",
			ErrBufferTooSmall, itemCount, stride, staging.Size, target.Size)
	}
	if uint32(len(opts.PushConstants)) != p.pushWords && (itemCount > 0 || len(opts.PushConstants) > 0) {
		return fmt.Errorf("%w: %d push constant words for a range of %d",
			ErrInvalidState, len(opts.PushConstants), p.pushWords)
	}
	groups := opts.Groups
	if groups == [3]uint32{} {
		if itemCount > uint64(^uint32(0)) {
			return fmt.Errorf("%w: %d items exceed one dispatch", ErrInvalidState, itemCount)
		}
		groups = [3]uint32{uint32(itemCount), 1, 1}
	}

	cmd, err := d.dev.AllocateCommandBuffer(d.pool)
	if err != nil {
		return fmt.Errorf("%w: command buffer: %w", ErrAllocationFailed, err)
	}
	d.cmd = cmd
	d.state = DispatchRecording
	defer func() {
		if err != nil {
			d.dev.FreeCommandBuffer(d.pool, d.cmd)
			d.cmd = nil
			d.state = DispatchIdle
		}
	}()

	if err := cmd.Begin(true); err != nil {
		return fmt.Errorf("begin %s: %w", cmd, err)
	}
	if itemCount > 0 {
		cmd.CopyBuffer(staging.Buffer, target.Buffer, hal.BufferCopy{Size: extent})
		cmd.PipelineBarrier(hal.PipelineStageTransfer, hal.PipelineStageComputeShader, hal.BufferBarrier{
			Buffer:    target.Buffer,
			SrcAccess: hal.AccessTransferWrite,
			DstAccess: hal.AccessShaderRead | hal.AccessShaderWrite,
			Size:      hal.WholeSize,
		})
		cmd.BindComputePipeline(p.Pipeline)
		cmd.BindDescriptorSets(p.Layout, 0, p.Set)
		if len(opts.PushConstants) > 0 {
			cmd.PushConstants(p.Layout, 0, opts.PushConstants)
		}
		cmd.Dispatch(groups[0], groups[1], groups[2])
		cmd.PipelineBarrier(hal.PipelineStageComputeShader, hal.PipelineStageTransfer, hal.BufferBarrier{
			Buffer:    target.Buffer,
			SrcAccess: hal.AccessShaderRead | hal.AccessShaderWrite,
			DstAccess: hal.AccessTransferRead,
			Size:      hal.WholeSize,
		})
		cmd.CopyBuffer(target.Buffer, staging.Buffer, hal.BufferCopy{Size: extent})
	}
	if err := cmd.End(); err != nil {
		return fmt.Errorf("end %s: %w", cmd, err)
	}

	d.pipeline = p
	d.held = appendUnique([]*BufferResource{staging, target}, p.bound...)
	Logger().Debug("dieselvk: dispatch recorded",
		"command_buffer", cmd, "items", itemCount, "stride", stride, "groups", groups)
	return nil
}

// Submit moves Recording -> Submitted. The pipeline and every buffer the
// recording references are in use until the dispatch completes.
func (d *Dispatch) Submit() error {
	if d.state != DispatchRecording {
		return fmt.Errorf("%w: submit in state %s", ErrInvalidState, d.state)
	}
	fence, err := d.dev.CreateFence()
	if err != nil {
		return fmt.Errorf("%w: fence: %w", ErrAllocationFailed, err)
	}
	if err := d.dev.Submit(d.cmd, fence); err != nil {
		d.dev.DestroyFence(fence)
		if errors.Is(err, hal.ErrDeviceLost) {
			return fmt.Errorf("%w: %w", ErrDeviceLost, err)
		}
		return fmt.Errorf("submit %s: %w", d.cmd, err)
	}
	d.fence = fence
	d.retain()
	d.state = DispatchSubmitted
	return nil
}

// Wait moves Submitted -> Complete once the fence signals. On timeout it
// returns ErrFenceTimeout and the dispatch stays Submitted, so Wait may be
// called again. A lost device completes the dispatch with ErrDeviceLost.
func (d *Dispatch) Wait(timeout time.Duration) error {
	if d.state != DispatchSubmitted {
		return fmt.Errorf("%w: wait in state %s", ErrInvalidState, d.state)
	}
	err := d.dev.WaitForFence(d.fence, timeout)
	switch {
	case errors.Is(err, hal.ErrTimeout):
		return fmt.Errorf("%w: after %s: %w", ErrFenceTimeout, timeout, err)
	case errors.Is(err, hal.ErrDeviceLost):
		d.err = fmt.Errorf("%w: %w", ErrDeviceLost, err)
	case err != nil:
		d.err = fmt.Errorf("wait %s: %w", d.fence, err)
	}
	d.dev.DestroyFence(d.fence)
	d.fence = nil
	d.release()
	d.state = DispatchComplete
	return d.err
}

// Release frees the command buffer and returns the dispatch to Idle. It
// fails with ErrResourceInUse while the dispatch is Submitted.
func (d *Dispatch) Release() error {
	if d.state == DispatchSubmitted {
		return fmt.Errorf("%w: dispatch still submitted", ErrResourceInUse)
	}
	if d.cmd != nil {
		d.dev.FreeCommandBuffer(d.pool, d.cmd)
		d.cmd = nil
	}
	d.pipeline, d.held = nil, nil
	d.err = nil
	d.state = DispatchIdle
	return nil
}

// Execute records, submits and waits for one round trip, then releases the
// command buffer. If the wait times out the dispatch is left Submitted.
func (d *Dispatch) Execute(p *ComputePipeline, staging, target *BufferResource, itemCount, stride uint64,
	timeout time.Duration, opts *DispatchOptions) error {

	if err := d.Record(p, staging, target, itemCount, stride, opts); err != nil {
		return err
	}
	if err := d.Submit(); err != nil {
		return errors.Join(err, d.Release())
	}
	if err := d.Wait(timeout); err != nil {
		if d.state == DispatchSubmitted {
			return err
		}
		return errors.Join(err, d.Release())
	}
	return d.Release()
}

func (d *Dispatch) retain() {
	d.pipeline.inFlight++
	for _, b := range d.held {
		b.inFlight++
	}
	d.retained = true
}

func (d *Dispatch) release() {
	if !d.retained {
		return
	}
	d.pipeline.inFlight--
	for _, b := range d.held {
		b.inFlight--
	}
	d.retained = false
}

func appendUnique(dst []*BufferResource, src ...*BufferResource) []*BufferResource {
	if dst[0] == dst[1] {
		dst = dst[:1]
	}
next:
	for _, b := range src {
		for _, have := range dst {
			if have == b {
				continue next
			}
		}
		dst = append(dst, b)
	}
	return dst
}

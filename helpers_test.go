package dieselvk

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/andewx/dieselvk/hal"
	"github.com/andewx/dieselvk/hal/soft"
)

// Test kernels are SPIR-V headed blobs whose behavior is supplied by the
// soft device.
var (
	doubleKernel = testKernel("double")
	copyKernel   = testKernel("copy")
	addPushKer   = testKernel("addpush")
	sumKernel    = testKernel("sum")
	faultKernel  = testKernel("fault")
)

func testKernel(name string) []byte {
	code := make([]byte, 16)
	binary.LittleEndian.PutUint32(code, SPIRVMagic)
	copy(code[4:], name)
	return code
}

func invocations(inv *soft.Invocation, words []uint32) []uint32 {
	n := int(inv.Groups[0]) * int(inv.Groups[1]) * int(inv.Groups[2])
	if n > len(words) {
		n = len(words)
	}
	return words[:n]
}

func registerTestKernels(d *soft.Device) {
	d.RegisterKernel(doubleKernel, "main", func(inv *soft.Invocation) error {
		for i, w := range invocations(inv, inv.Words(0, 0)) {
			inv.Words(0, 0)[i] = w * 2
		}
		return nil
	})
	d.RegisterKernel(copyKernel, "main", func(*soft.Invocation) error { return nil })
	d.RegisterKernel(addPushKer, "main", func(inv *soft.Invocation) error {
		add := inv.PushWords()[0]
		words := invocations(inv, inv.Words(0, 0))
		for i := range words {
			words[i] += add
		}
		return nil
	})
	d.RegisterKernel(sumKernel, "main", func(inv *soft.Invocation) error {
		dst := invocations(inv, inv.Words(0, 0))
		src := inv.Words(0, 1)
		for i := range dst {
			dst[i] += src[i]
		}
		return nil
	})
	d.RegisterKernel(faultKernel, "main", func(*soft.Invocation) error {
		return errors.New("illegal instruction")
	})
}

func newTestDevice(t *testing.T, opts soft.Options) *soft.Device {
	t.Helper()
	d := soft.NewDevice(opts)
	registerTestKernels(d)
	t.Cleanup(d.Destroy)
	return d
}

const (
	stagingProps = hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent
	stagingUsage = hal.BufferUsageTransferSrc | hal.BufferUsageTransferDst
	storageUsage = hal.BufferUsageTransferSrc | hal.BufferUsageTransferDst | hal.BufferUsageStorage
)

// roundTrip holds the resources of one staged dispatch.
type roundTrip struct {
	dev      *soft.Device
	staging  *BufferResource
	target   *BufferResource
	pipeline *ComputePipeline
	pool     hal.CommandPool
}

func newRoundTrip(t *testing.T, dev *soft.Device, kernel []byte, input []uint32, cfg PipelineConfig) *roundTrip {
	t.Helper()
	types := dev.MemoryTypes()
	staging, err := CreateBuffer(dev, types, stagingProps, stagingUsage, input)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	target, err := AllocateBufferFor[uint32](dev, types, hal.MemoryPropertyDeviceLocal, storageUsage, uint64(len(input)))
	if err != nil {
		t.Fatalf("AllocateBuffer: %v", err)
	}
	cfg.Kernel = kernel
	pipeline, err := NewComputePipeline(dev, cfg, target)
	if err != nil {
		t.Fatalf("NewComputePipeline: %v", err)
	}
	pool, err := dev.CreateCommandPool()
	if err != nil {
		t.Fatal(err)
	}
	return &roundTrip{dev: dev, staging: staging, target: target, pipeline: pipeline, pool: pool}
}

func (r *roundTrip) destroy(t *testing.T) {
	t.Helper()
	r.dev.DestroyCommandPool(r.pool)
	if err := r.pipeline.Destroy(); err != nil {
		t.Errorf("pipeline.Destroy: %v", err)
	}
	if err := r.target.Destroy(r.dev); err != nil {
		t.Errorf("target.Destroy: %v", err)
	}
	if err := r.staging.Destroy(r.dev); err != nil {
		t.Errorf("staging.Destroy: %v", err)
	}
}

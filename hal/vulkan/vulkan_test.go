package vulkan

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

func TestFenceTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want uint64
	}{
		{hal.InfiniteTimeout, math.MaxUint64},
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1_000_000},
		{2 * time.Second, 2_000_000_000},
	}
	for _, tt := range tests {
		if got := fenceTimeout(tt.in); got != tt.want {
			t.Errorf("fenceTimeout(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDeviceSize(t *testing.T) {
	if got := deviceSize(hal.WholeSize); got != vk.DeviceSize(vk.WholeSize) {
		t.Errorf("deviceSize(WholeSize) = %d", got)
	}
	if got := deviceSize(256); got != 256 {
		t.Errorf("deviceSize(256) = %d", got)
	}
}

func TestAdapterType(t *testing.T) {
	want := map[vk.PhysicalDeviceType]hal.AdapterType{
		vk.PhysicalDeviceTypeOther:         hal.AdapterTypeOther,
		vk.PhysicalDeviceTypeIntegratedGpu: hal.AdapterTypeIntegratedGPU,
		vk.PhysicalDeviceTypeDiscreteGpu:   hal.AdapterTypeDiscreteGPU,
		vk.PhysicalDeviceTypeVirtualGpu:    hal.AdapterTypeVirtualGPU,
		vk.PhysicalDeviceTypeCpu:           hal.AdapterTypeCPU,
	}
	for in, w := range want {
		if got := adapterType(in); got != w {
			t.Errorf("adapterType(%d) = %s, want %s", in, got, w)
		}
	}
}

func TestQueueFamilies(t *testing.T) {
	props := []vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit), QueueCount: 16},
		{QueueFlags: vk.QueueFlags(vk.QueueTransferBit), QueueCount: 2},
	}
	want := []hal.QueueFamily{
		{Index: 0, Flags: hal.QueueGraphics | hal.QueueCompute, Count: 16},
		{Index: 1, Flags: hal.QueueTransfer, Count: 2},
	}
	if diff := cmp.Diff(want, queueFamilies(props)); diff != "" {
		t.Errorf("queueFamilies mismatch (-want +got):\n%s", diff)
	}
}

func TestHalError(t *testing.T) {
	tests := []struct {
		ret  vk.Result
		want error
	}{
		{vk.ErrorOutOfDeviceMemory, hal.ErrOutOfMemory},
		{vk.ErrorOutOfHostMemory, hal.ErrOutOfMemory},
		{errorOutOfPoolMemory, hal.ErrOutOfPoolMemory},
		{vk.ErrorDeviceLost, hal.ErrDeviceLost},
		{vk.Timeout, hal.ErrTimeout},
		{vk.ErrorIncompatibleDriver, hal.ErrInitializationFailed},
		{vk.ErrorMemoryMapFailed, hal.ErrMemoryMapFailed},
	}
	for _, tt := range tests {
		err := newError(tt.ret)
		if !errors.Is(err, tt.want) {
			t.Errorf("newError(%d) = %v, want %v", tt.ret, err, tt.want)
		}
	}
	if err := newError(vk.Success); err != nil {
		t.Errorf("newError(Success) = %v", err)
	}
	if err := newError(vk.ErrorFeatureNotPresent); err == nil {
		t.Error("newError(ErrorFeatureNotPresent) = nil")
	}
}

func TestCheckExisting(t *testing.T) {
	actual := []string{"VK_KHR_surface\x00", "VK_EXT_debug_report"}
	existing, missing := checkExisting(actual, []string{"VK_EXT_debug_report", "VK_KHR_surface", "VK_KHR_nope"})
	if diff := cmp.Diff([]string{"VK_EXT_debug_report\x00", "VK_KHR_surface\x00"}, existing); diff != "" {
		t.Errorf("existing mismatch (-want +got):\n%s", diff)
	}
	if missing != 1 {
		t.Errorf("missing = %d, want 1", missing)
	}
}

func TestStrings(t *testing.T) {
	if got := safeString("main"); got != "main\x00" {
		t.Errorf("safeString = %q", got)
	}
	if got := safeString("main\x00"); got != "main\x00" {
		t.Errorf("safeString on terminated string = %q", got)
	}
	if got := trimNUL("main\x00"); got != "main" {
		t.Errorf("trimNUL = %q", got)
	}
}

func TestSliceUint32(t *testing.T) {
	data := make([]byte, 12)
	data[0], data[4], data[8] = 1, 2, 3
	words := sliceUint32(data)
	if len(words) != 3 {
		t.Fatalf("len = %d, want 3", len(words))
	}
	if sliceUint32(data[:2]) != nil {
		t.Error("short input should give nil")
	}
}

func TestObjectString(t *testing.T) {
	o := object{kind: "buffer", id: 3, label: "staging"}
	if got := o.String(); got != "vulkan.buffer#3(staging)" {
		t.Errorf("String = %q", got)
	}
	o.label = ""
	if got := o.String(); got != "vulkan.buffer#3" {
		t.Errorf("String = %q", got)
	}
}

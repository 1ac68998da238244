package hal

import "testing"

func TestMemoryPropertyFlagsString(t *testing.T) {
	tests := []struct {
		flags MemoryPropertyFlags
		want  string
	}{
		{0, "NONE"},
		{MemoryPropertyDeviceLocal, "DEVICE_LOCAL"},
		{MemoryPropertyHostVisible | MemoryPropertyHostCoherent, "HOST_VISIBLE|HOST_COHERENT"},
		{MemoryPropertyHostCached | 0x100, "HOST_CACHED|0x100"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("MemoryPropertyFlags(%d).String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
	}
}

func TestMemoryPropertyFlagsHas(t *testing.T) {
	f := MemoryPropertyHostVisible | MemoryPropertyHostCoherent
	if !f.Has(MemoryPropertyHostVisible) {
		t.Error("expected HOST_VISIBLE to be set")
	}
	if !f.Has(0) {
		t.Error("empty set must always be contained")
	}
	if f.Has(MemoryPropertyHostVisible | MemoryPropertyDeviceLocal) {
		t.Error("HOST_VISIBLE|DEVICE_LOCAL must not be contained")
	}
}

func TestQueueFamilySupportsCompute(t *testing.T) {
	if (QueueFamily{Flags: QueueGraphics | QueueTransfer}).SupportsCompute() {
		t.Error("graphics|transfer family reported compute support")
	}
	if !(QueueFamily{Flags: QueueCompute}).SupportsCompute() {
		t.Error("compute family did not report compute support")
	}
}

func TestFormatTexelSize(t *testing.T) {
	tests := map[Format]uint64{
		FormatUndefined:          0,
		FormatR8G8B8A8Unorm:      4,
		FormatR32Uint:            4,
		FormatR32G32B32A32Sfloat: 16,
	}
	for f, want := range tests {
		if got := f.TexelSize(); got != want {
			t.Errorf("%s.TexelSize() = %d, want %d", f, got, want)
		}
	}
}

func TestAPIVersionString(t *testing.T) {
	v := uint32(1)<<22 | uint32(3)<<12 | 204
	if got := APIVersionString(v); got != "1.3.204" {
		t.Errorf("APIVersionString = %q, want 1.3.204", got)
	}
}

package vulkan_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/andewx/dieselvk"
	"github.com/andewx/dieselvk/hal/vulkan"
	"github.com/andewx/dieselvk/kernels"
)

func openInstance(t *testing.T) *vulkan.Instance {
	t.Helper()
	inst, err := vulkan.NewInstance(vulkan.Options{AppName: "dieselvk-test"})
	if err != nil {
		t.Skipf("no Vulkan loader: %v", err)
	}
	t.Cleanup(inst.Destroy)
	return inst
}

func TestAdapters(t *testing.T) {
	inst := openInstance(t)
	adapters, err := inst.Adapters()
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range adapters {
		if len(a.MemoryTypes) == 0 {
			t.Errorf("%s reports no memory types", a.Info.Name)
		}
		if len(a.QueueFamilies) == 0 {
			t.Errorf("%s reports no queue families", a.Info.Name)
		}
	}
}

func TestRunDouble(t *testing.T) {
	inst := openInstance(t)
	dev, err := dieselvk.OpenComputeDevice(inst)
	if err != nil {
		t.Skipf("no compute adapter: %v", err)
	}
	defer dev.Destroy()

	code, err := kernels.Builtin("double")
	if err != nil {
		t.Skipf("double kernel unavailable: %v", err)
	}
	got, err := dieselvk.Run(dev, code, []uint32{1, 2, 3, 4, 5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{2, 4, 6, 8, 10}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

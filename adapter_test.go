package dieselvk

import (
	"errors"
	"testing"

	"github.com/andewx/dieselvk/hal"
	"github.com/andewx/dieselvk/hal/soft"
)

func TestSelectComputeAdapter(t *testing.T) {
	graphics := hal.Adapter{Index: 0, Info: hal.AdapterInfo{Name: "graphics only"}, QueueFamilies: []hal.QueueFamily{
		{Index: 0, Flags: hal.QueueGraphics, Count: 1},
	}}
	empty := hal.Adapter{Index: 1, Info: hal.AdapterInfo{Name: "no queues"}, QueueFamilies: []hal.QueueFamily{
		{Index: 0, Flags: hal.QueueCompute, Count: 0},
	}}
	compute := hal.Adapter{Index: 2, Info: hal.AdapterInfo{Name: "compute"}, QueueFamilies: []hal.QueueFamily{
		{Index: 0, Flags: hal.QueueGraphics, Count: 1},
		{Index: 1, Flags: hal.QueueCompute | hal.QueueTransfer, Count: 2},
	}}

	a, q, err := SelectComputeAdapter([]hal.Adapter{graphics, empty, compute})
	if err != nil {
		t.Fatal(err)
	}
	if a.Index != 2 || q.Index != 1 {
		t.Errorf("selected adapter %d family %d, want adapter 2 family 1", a.Index, q.Index)
	}

	if _, _, err := SelectComputeAdapter([]hal.Adapter{graphics, empty}); !errors.Is(err, ErrNoComputeAdapter) {
		t.Errorf("err = %v, want ErrNoComputeAdapter", err)
	}
	if _, _, err := SelectComputeAdapter(nil); !errors.Is(err, ErrNoComputeAdapter) {
		t.Errorf("no adapters: err = %v, want ErrNoComputeAdapter", err)
	}
}

func TestOpenComputeDevice(t *testing.T) {
	inst := soft.NewInstance(soft.Options{})
	defer inst.Destroy()
	dev, err := OpenComputeDevice(inst)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Destroy()
	if got := dev.Adapter().Info.Name; got != soft.AdapterName {
		t.Errorf("adapter = %q, want %q", got, soft.AdapterName)
	}
}

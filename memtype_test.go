package dieselvk

import (
	"errors"
	"testing"

	"github.com/andewx/dieselvk/hal"
)

var discreteTypes = []hal.MemoryType{
	{Index: 0, Properties: hal.MemoryPropertyDeviceLocal},
	{Index: 1, Properties: hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent},
	{Index: 2, Properties: hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCached},
	{Index: 3, Properties: hal.MemoryPropertyDeviceLocal | hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent},
}

func TestSelectMemoryType(t *testing.T) {
	tests := []struct {
		name     string
		typeBits uint32
		props    hal.MemoryPropertyFlags
		want     uint32
		wantErr  bool
	}{
		{"device local first", 0xf, hal.MemoryPropertyDeviceLocal, 0, false},
		{"coherent host", 0xf, hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent, 1, false},
		{"host visible lowest", 0xf, hal.MemoryPropertyHostVisible, 1, false},
		{"mask skips type 1", 0xd, hal.MemoryPropertyHostVisible, 2, false},
		{"superset required", 0xf, hal.MemoryPropertyDeviceLocal | hal.MemoryPropertyHostVisible, 3, false},
		{"no flags wanted", 0x4, 0, 2, false},
		{"masked out", 0x1, hal.MemoryPropertyHostVisible, 0, true},
		{"no such flags", 0xf, hal.MemoryPropertyLazilyAllocated, 0, true},
		{"empty mask", 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectMemoryType(discreteTypes, tt.typeBits, tt.props)
			if tt.wantErr {
				if !errors.Is(err, ErrNoSuitableMemoryType) {
					t.Fatalf("err = %v, want ErrNoSuitableMemoryType", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Index != tt.want {
				t.Errorf("index = %d, want %d", got.Index, tt.want)
			}
			if !got.Properties.Has(tt.props) {
				t.Errorf("type %d (%s) lacks %s", got.Index, got.Properties, tt.props)
			}
		})
	}
}

func TestSelectMemoryTypeDeterministic(t *testing.T) {
	props := hal.MemoryPropertyHostVisible
	first, err := SelectMemoryType(discreteTypes, 0xe, props)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		got, err := SelectMemoryType(discreteTypes, 0xe, props)
		if err != nil || got != first {
			t.Fatalf("call %d returned %+v, %v; first call returned %+v", i, got, err, first)
		}
	}
}

func TestSelectMemoryTypeUsesReportedIndex(t *testing.T) {
	types := []hal.MemoryType{
		{Index: 5, Properties: hal.MemoryPropertyHostVisible},
		{Index: 2, Properties: hal.MemoryPropertyHostVisible},
	}
	got, err := SelectMemoryType(types, 1<<2, hal.MemoryPropertyHostVisible)
	if err != nil {
		t.Fatal(err)
	}
	if got.Index != 2 {
		t.Errorf("index = %d, want 2", got.Index)
	}
}

package kernels

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/andewx/dieselvk"
	"github.com/andewx/dieselvk/hal/soft"
)

func TestNamesAndLookup(t *testing.T) {
	if diff := cmp.Diff([]string{"double", "copy", "add"}, Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	k, err := Lookup("add")
	if err != nil {
		t.Fatal(err)
	}
	if k.PushConstantWords != 1 || k.EntryPoint != "main" {
		t.Errorf("add = %+v", k)
	}
	if _, err := Lookup("triple"); !errors.Is(err, ErrUnknownKernel) {
		t.Errorf("err = %v, want ErrUnknownKernel", err)
	}
	if _, err := Builtin("triple"); !errors.Is(err, ErrUnknownKernel) {
		t.Errorf("Builtin: err = %v, want ErrUnknownKernel", err)
	}
}

// skipOnNagaLimitation skips when naga rejects a construct it does not
// implement yet.
func skipOnNagaLimitation(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	for _, s := range []string{"not yet implemented", "not supported", "runtime-sized arrays", "push_constant", "lowering error"} {
		if strings.Contains(msg, s) {
			t.Skipf("naga limitation: %v", err)
		}
	}
}

func TestBuiltinCompiles(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			code, err := Builtin(name)
			if err != nil {
				skipOnNagaLimitation(t, err)
				t.Fatal(err)
			}
			if err := dieselvk.CheckKernel(code); err != nil {
				t.Fatal(err)
			}
			again, err := Builtin(name)
			if err != nil {
				t.Fatal(err)
			}
			if &again[0] != &code[0] {
				t.Error("second Builtin call did not return the cached binary")
			}
		})
	}
}

func TestCompileRejectsBadSource(t *testing.T) {
	if _, err := Compile("fn main( {"); !errors.Is(err, ErrCompile) {
		t.Errorf("err = %v, want ErrCompile", err)
	}
}

func fakeBinary(name string) []byte {
	code := make([]byte, 16)
	binary.LittleEndian.PutUint32(code, dieselvk.SPIRVMagic)
	copy(code[4:], name)
	return code
}

func TestReferenceKernels(t *testing.T) {
	input := []uint32{0, 1, 2, 3, 40, 50}
	tests := []struct {
		kernel string
		push   []uint32
		want   []uint32
	}{
		{"double", nil, []uint32{0, 2, 4, 6, 80, 100}},
		{"copy", nil, input},
		{"add", []uint32{7}, []uint32{7, 8, 9, 10, 47, 57}},
	}
	for _, tt := range tests {
		t.Run(tt.kernel, func(t *testing.T) {
			k, err := Lookup(tt.kernel)
			if err != nil {
				t.Fatal(err)
			}
			dev := soft.NewDevice(soft.Options{})
			defer dev.Destroy()
			code := fakeBinary(k.Name)
			dev.RegisterKernel(code, k.EntryPoint, k.Reference)

			got, err := dieselvk.Run(dev, code, input, &dieselvk.RunOptions{PushConstants: tt.push})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReferenceKernelHonoursGroups(t *testing.T) {
	k, _ := Lookup("double")
	dev := soft.NewDevice(soft.Options{})
	defer dev.Destroy()
	code := fakeBinary(k.Name)
	dev.RegisterKernel(code, k.EntryPoint, k.Reference)

	got, err := dieselvk.Run(dev, code, []uint32{1, 2, 3, 4}, &dieselvk.RunOptions{Groups: [3]uint32{2, 1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{2, 4, 3, 4}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterOnSoftDevice(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Destroy()
	if err := Register(dev); err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatal(err)
	}
	code, err := Builtin("double")
	if err != nil {
		t.Fatal(err)
	}
	got, err := dieselvk.Run(dev, code, []uint32{3, 5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{6, 10}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

package dieselvk

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadKernel(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	good := write("double.spv", doubleKernel)
	code, err := LoadKernel(good)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(doubleKernel, code); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}

	for name, data := range map[string][]byte{
		"empty.spv":     {},
		"truncated.spv": doubleKernel[:7],
		"text.spv":      []byte("not a kernel"),
	} {
		if _, err := LoadKernel(write(name, data)); !errors.Is(err, ErrInvalidKernel) {
			t.Errorf("%s: err = %v, want ErrInvalidKernel", name, err)
		}
	}

	if _, err := LoadKernel(filepath.Join(dir, "missing.spv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want os.ErrNotExist", err)
	}
}

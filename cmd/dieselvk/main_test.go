package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/andewx/dieselvk/hal/soft"
	"github.com/andewx/dieselvk/internal/config"
	"github.com/andewx/dieselvk/kernels"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Flag variables are package level; reset the ones a previous run set.
	configFile, logLevel, backend, loader, validation = "", "info", config.BackendVulkan, "default", false
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireKernel(t *testing.T, name string) {
	t.Helper()
	if _, err := kernels.Builtin(name); err != nil {
		t.Skipf("kernel %s unavailable: %v", name, err)
	}
}

func TestRunSoft(t *testing.T) {
	requireKernel(t, "double")
	out, err := execute(t, "run", "--backend", "soft", "--kernel", "double", "--input", "1,2,3", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out); got != "[2 4 6]" {
		t.Errorf("output = %q, want [2 4 6]", got)
	}
}

func TestRunSoftNonCoherentFromConfig(t *testing.T) {
	requireKernel(t, "copy")
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := []byte("backend: soft\nkernel: copy\ninput: [4, 5, 6]\nlog_level: error\nsoft:\n  non_coherent_atom_size: 64\n  coherent_staging: false\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "run", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out); got != "[4 5 6]" {
		t.Errorf("output = %q, want [4 5 6]", got)
	}
}

func TestRunRejectsUnknownKernel(t *testing.T) {
	if _, err := execute(t, "run", "--backend", "soft", "--kernel", "triple"); err == nil {
		t.Error("unknown kernel succeeded")
	}
}

func TestMemmapSoft(t *testing.T) {
	out, err := execute(t, "memmap", "--backend", "soft", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "round trip ok") {
		t.Errorf("output = %q", out)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	dev := soft.NewDevice(soft.Options{NonCoherentAtomSize: 64})
	defer dev.Destroy()
	if err := memoryRoundTrip(dev, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}); err != nil {
		t.Fatal(err)
	}
}

func TestDevicesSoft(t *testing.T) {
	out, err := execute(t, "devices", "--backend", "soft")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{soft.AdapterName, "non-coherent atom size", "memory type 0", "queue family 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestCompile(t *testing.T) {
	requireKernel(t, "double")
	path := filepath.Join(t.TempDir(), "double.spv")
	if _, err := execute(t, "compile", "double", "-o", path); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := kernels.Builtin("double")
	if !bytes.Equal(got, want) {
		t.Error("written binary differs from the built-in kernel")
	}
}

func TestResolveKernelPushConstants(t *testing.T) {
	requireKernel(t, "add")
	cfg := config.Default()
	cfg.Kernel = "add"
	_, push, err := resolveKernel(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0}, push); diff != "" {
		t.Errorf("push mismatch (-want +got):\n%s", diff)
	}
	cfg.Push = []uint32{1, 2}
	if _, _, err := resolveKernel(cfg); err == nil {
		t.Error("two push words for add succeeded")
	}
}

func TestFormatWords(t *testing.T) {
	if got := formatWords(toUint32([]uint{7, 0, 42})); got != "[7 0 42]" {
		t.Errorf("formatWords = %q", got)
	}
	if got := formatWords(nil); got != "[]" {
		t.Errorf("formatWords(nil) = %q", got)
	}
}

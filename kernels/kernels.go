// Package kernels holds the built-in compute kernels. Each kernel is WGSL
// source compiled to SPIR-V with naga on first use, paired with a Go
// reference implementation that the soft device runs in its place.
package kernels

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/naga"

	"github.com/andewx/dieselvk/hal/soft"
)

var (
	//go:embed shaders/double.wgsl
	doubleSource string
	//go:embed shaders/copy.wgsl
	copySource string
	//go:embed shaders/add.wgsl
	addSource string
)

var (
	ErrUnknownKernel = errors.New("kernels: unknown kernel")
	ErrCompile       = errors.New("kernels: compilation failed")
)

// Kernel is a built-in compute kernel. Every kernel binds one storage
// buffer of u32 at set 0, binding 0 and runs one invocation per element.
type Kernel struct {
	Name       string
	Source     string
	EntryPoint string
	// PushConstantWords is the size of the push-constant block the kernel
	// reads, in 32-bit words.
	PushConstantWords uint32
	Reference         soft.KernelFunc
}

var builtins = []Kernel{
	{Name: "double", Source: doubleSource, EntryPoint: "main", Reference: double},
	{Name: "copy", Source: copySource, EntryPoint: "main", Reference: copyThrough},
	{Name: "add", Source: addSource, EntryPoint: "main", PushConstantWords: 1, Reference: add},
}

// Names lists the built-in kernels in a stable order.
func Names() []string {
	names := make([]string, len(builtins))
	for i, k := range builtins {
		names[i] = k.Name
	}
	return names
}

// Lookup returns the built-in kernel called name.
func Lookup(name string) (Kernel, error) {
	i := slices.IndexFunc(builtins, func(k Kernel) bool { return k.Name == name })
	if i < 0 {
		return Kernel{}, fmt.Errorf("%w: %q (have %v)", ErrUnknownKernel, name, Names())
	}
	return builtins[i], nil
}

var (
	cacheMu sync.Mutex
	cache   = map[string][]byte{}
)

// Builtin returns the SPIR-V for the built-in kernel called name. The
// result is cached and must not be modified.
func Builtin(name string) ([]byte, error) {
	k, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if code, ok := cache[name]; ok {
		return code, nil
	}
	code, err := Compile(k.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	cache[name] = code
	slogger().Debug("kernels: compiled", "kernel", name, "bytes", len(code))
	return code, nil
}

// Compile translates WGSL source to a SPIR-V binary.
func Compile(source string) ([]byte, error) {
	code, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: output of %d bytes is not whole words", ErrCompile, len(code))
	}
	return code, nil
}

// Registrar is implemented by soft.Instance and soft.Device.
type Registrar interface {
	RegisterKernel(code []byte, entryPoint string, fn soft.KernelFunc)
}

// Register compiles every built-in kernel and registers its reference
// implementation on r.
func Register(r Registrar) error {
	var errs []error
	for _, k := range builtins {
		code, err := Builtin(k.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.RegisterKernel(code, k.EntryPoint, k.Reference)
	}
	return errors.Join(errs...)
}

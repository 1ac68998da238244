package soft

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"unsafe"
)

// KernelFunc executes one dispatch. It sees every work group at once and
// must touch only the bound buffer ranges.
type KernelFunc func(inv *Invocation) error

// Invocation is the state visible to a kernel during a dispatch.
type Invocation struct {
	Groups        [3]uint32
	PushConstants []byte
	bindings      map[[2]uint32][]byte
}

// Buffer returns the bytes bound at (set, binding), or nil when nothing is bound.
func (inv *Invocation) Buffer(set, binding uint32) []byte {
	return inv.bindings[[2]uint32{set, binding}]
}

// Words returns the buffer bound at (set, binding) as 32-bit words.
func (inv *Invocation) Words(set, binding uint32) []uint32 {
	return Words(inv.Buffer(set, binding))
}

// PushWords returns the push-constant block as 32-bit words.
func (inv *Invocation) PushWords() []uint32 {
	return Words(inv.PushConstants)
}

// Words reinterprets b as native-endian 32-bit words. Trailing bytes that
// do not form a whole word are dropped. b must be 4-byte aligned, which
// holds for every binding the soft device hands to a kernel.
func Words(b []byte) []uint32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4)
}

type kernelKey [sha256.Size]byte

type kernelEntry struct {
	entryPoint string
	fn         KernelFunc
}

type registry struct {
	mu      sync.RWMutex
	kernels map[kernelKey]kernelEntry
}

func newRegistry() *registry {
	return &registry{kernels: make(map[kernelKey]kernelEntry)}
}

func (r *registry) register(code []byte, entryPoint string, fn KernelFunc) {
	if entryPoint == "" {
		entryPoint = "main"
	}
	r.mu.Lock()
	r.kernels[sha256.Sum256(code)] = kernelEntry{entryPoint: entryPoint, fn: fn}
	r.mu.Unlock()
}

func (r *registry) lookup(key kernelKey, entryPoint string) (KernelFunc, error) {
	r.mu.RLock()
	e, ok := r.kernels[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no kernel registered for module %x", key[:6])
	}
	if e.entryPoint != entryPoint {
		return nil, fmt.Errorf("module %x has no entry point %q", key[:6], entryPoint)
	}
	return e.fn, nil
}

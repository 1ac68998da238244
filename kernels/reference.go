package kernels

import "github.com/andewx/dieselvk/hal/soft"

// elements returns the words of binding 0 covered by the dispatch. An
// invocation past the end of the buffer does nothing, as in the WGSL.
func elements(inv *soft.Invocation) []uint32 {
	words := inv.Words(0, 0)
	n := uint64(inv.Groups[0]) * uint64(inv.Groups[1]) * uint64(inv.Groups[2])
	if n < uint64(len(words)) {
		return words[:n]
	}
	return words
}

func double(inv *soft.Invocation) error {
	data := elements(inv)
	for i := range data {
		data[i] *= 2
	}
	return nil
}

func copyThrough(*soft.Invocation) error { return nil }

func add(inv *soft.Invocation) error {
	var addend uint32
	if push := inv.PushWords(); len(push) > 0 {
		addend = push[0]
	}
	data := elements(inv)
	for i := range data {
		data[i] += addend
	}
	return nil
}

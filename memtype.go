package dieselvk

import (
	"fmt"

	"github.com/andewx/dieselvk/hal"
)

// SelectMemoryType returns the first memory type whose bit is set in
// typeBits and whose properties include every flag in props. Types are
// considered in the order the device reports them.
func SelectMemoryType(types []hal.MemoryType, typeBits uint32, props hal.MemoryPropertyFlags) (hal.MemoryType, error) {
	for _, t := range types {
		if t.Index >= 32 {
			continue
		}
		if typeBits&(1<<t.Index) != 0 && t.Properties.Has(props) {
			return t, nil
		}
	}
	return hal.MemoryType{}, fmt.Errorf("%w: type bits %#x, properties %s",
		ErrNoSuitableMemoryType, typeBits, props)
}

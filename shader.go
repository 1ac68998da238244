package dieselvk

import (
	"encoding/binary"
	"fmt"
	"os"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// LoadKernel reads a compiled SPIR-V kernel. The contents are otherwise
// passed to the device unparsed.
func LoadKernel(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := CheckKernel(code); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}

// CheckKernel verifies that code is a whole number of little-endian words
// starting with the SPIR-V magic number.
func CheckKernel(code []byte) error {
	if len(code) == 0 || len(code)%4 != 0 {
		return fmt.Errorf("%w: size %d is not a positive multiple of 4", ErrInvalidKernel, len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != SPIRVMagic {
		return fmt.Errorf("%w: magic %#08x, want %#08x", ErrInvalidKernel, magic, SPIRVMagic)
	}
	return nil
}

package hal

import "errors"

// Backend errors. Backends wrap these so callers can match with errors.Is.
var (
	ErrOutOfMemory          = errors.New("hal: out of memory")
	ErrOutOfPoolMemory      = errors.New("hal: out of pool memory")
	ErrDeviceLost           = errors.New("hal: device lost")
	ErrTimeout              = errors.New("hal: timeout")
	ErrInitializationFailed = errors.New("hal: initialization failed")
	ErrInvalidShader        = errors.New("hal: invalid shader")
	ErrMemoryMapFailed      = errors.New("hal: memory map failed")
	ErrInvalidUsage         = errors.New("hal: invalid usage")
)

package dieselvk

import "errors"

// Resource and dispatch failures. Backend errors from package hal are
// wrapped under these, so both match with errors.Is.
var (
	ErrNoSuitableMemoryType      = errors.New("dieselvk: no suitable memory type")
	ErrAllocationFailed          = errors.New("dieselvk: allocation failed")
	ErrBindFailed                = errors.New("dieselvk: bind failed")
	ErrBufferTooSmall            = errors.New("dieselvk: buffer too small")
	ErrUnalignedPushConstantType = errors.New("dieselvk: push constant type size is not a multiple of 4")
	ErrPipelineCreationFailed    = errors.New("dieselvk: pipeline creation failed")
	ErrDeviceLost                = errors.New("dieselvk: device lost")
	ErrFenceTimeout              = errors.New("dieselvk: fence timeout")

	ErrInvalidState      = errors.New("dieselvk: invalid dispatch state")
	ErrResourceInUse     = errors.New("dieselvk: resource in use by a pending dispatch")
	ErrResourceDestroyed = errors.New("dieselvk: resource destroyed")
	ErrNoComputeAdapter  = errors.New("dieselvk: no adapter with a compute queue")
	ErrInvalidKernel     = errors.New("dieselvk: invalid kernel binary")
)

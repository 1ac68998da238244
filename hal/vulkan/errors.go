package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// newError converts a failed vk.Result into an error carrying the calling
// function and the matching hal sentinel error, if there is one.
func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	where := "unknown caller"
	if pc, _, line, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			where = fmt.Sprintf("%s:%d", fn.Name(), line)
		}
	}
	if sentinel := halError(ret); sentinel != nil {
		return fmt.Errorf("%w: vulkan: %s (%d) on %s", sentinel, resultString(ret), ret, where)
	}
	return fmt.Errorf("vulkan: %s (%d) on %s", resultString(ret), ret, where)
}

// VK_ERROR_OUT_OF_POOL_MEMORY, promoted to core in Vulkan 1.1.
const errorOutOfPoolMemory vk.Result = -1000069000

func halError(ret vk.Result) error {
	switch ret {
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfHostMemory:
		return hal.ErrOutOfMemory
	case errorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return hal.ErrOutOfPoolMemory
	case vk.ErrorDeviceLost:
		return hal.ErrDeviceLost
	case vk.Timeout:
		return hal.ErrTimeout
	case vk.ErrorInitializationFailed, vk.ErrorIncompatibleDriver, vk.ErrorLayerNotPresent, vk.ErrorExtensionNotPresent:
		return hal.ErrInitializationFailed
	case vk.ErrorMemoryMapFailed:
		return hal.ErrMemoryMapFailed
	}
	return nil
}

func resultString(ret vk.Result) string {
	if ret == vk.Timeout {
		return "timeout"
	}
	if err := vk.Error(ret); err != nil {
		return err.Error()
	}
	return "success"
}

// orPanic and checkErr let the enumeration helpers bail out of a chain of
// two-call queries; checkErr turns the panic back into the named error.
func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%+v", v)
	}
}

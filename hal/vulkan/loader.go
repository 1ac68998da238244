package vulkan

import (
	"fmt"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselvk/hal"
)

// Loader selects where vkGetInstanceProcAddr comes from.
type Loader string

const (
	// LoaderDefault opens the system Vulkan loader library.
	LoaderDefault Loader = "default"
	// LoaderGLFW takes the loader entry point from GLFW, which also finds
	// MoltenVK on macOS.
	LoaderGLFW Loader = "glfw"
)

var (
	loaderOnce sync.Once
	loaderUsed Loader
	loaderErr  error
)

// initLoader resolves the Vulkan entry points once per process. Asking for
// a different loader afterwards is an error.
func initLoader(l Loader) error {
	if l == "" {
		l = LoaderDefault
	}
	loaderOnce.Do(func() {
		loaderUsed = l
		loaderErr = loadVulkan(l)
	})
	if loaderErr != nil {
		return loaderErr
	}
	if l != loaderUsed {
		return fmt.Errorf("%w: vulkan already loaded with the %s loader", hal.ErrInitializationFailed, loaderUsed)
	}
	return nil
}

func loadVulkan(l Loader) error {
	switch l {
	case LoaderDefault:
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return fmt.Errorf("%w: %w", hal.ErrInitializationFailed, err)
		}
	case LoaderGLFW:
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("%w: glfw: %w", hal.ErrInitializationFailed, err)
		}
		if !glfw.VulkanSupported() {
			return fmt.Errorf("%w: glfw found no vulkan loader", hal.ErrInitializationFailed)
		}
		vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	default:
		return fmt.Errorf("%w: unknown loader %q", hal.ErrInitializationFailed, l)
	}
	if err := vk.Init(); err != nil {
		return fmt.Errorf("%w: %w", hal.ErrInitializationFailed, err)
	}
	slogger().Debug("vulkan: loader initialized", "loader", l)
	return nil
}

package main

import (
	"fmt"

	"github.com/andewx/dieselvk"
	"github.com/andewx/dieselvk/hal"
	"github.com/andewx/dieselvk/hal/soft"
	"github.com/andewx/dieselvk/hal/vulkan"
	"github.com/andewx/dieselvk/internal/config"
	"github.com/andewx/dieselvk/kernels"
)

func openInstance(cfg *config.Config) (hal.Instance, error) {
	switch cfg.Backend {
	case config.BackendSoft:
		inst := soft.NewInstance(soft.Options{
			NonCoherentAtomSize: cfg.Soft.NonCoherentAtomSize,
			BufferAlignment:     cfg.Soft.BufferAlignment,
		})
		if err := kernels.Register(inst); err != nil {
			dieselvk.Logger().Warn("dieselvk: some built-in kernels are unavailable on the soft device", "err", err)
		}
		return inst, nil
	case config.BackendVulkan:
		inst, err := vulkan.NewInstance(vulkan.Options{
			AppName:    "dieselvk",
			Loader:     vulkan.Loader(cfg.Loader),
			Validation: cfg.Validation,
			Layers:     cfg.Layers,
		})
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openDevice opens the first compute-capable device of the configured
// backend. The returned func releases the device and the instance.
func openDevice(cfg *config.Config) (hal.Device, func(), error) {
	inst, err := openInstance(cfg)
	if err != nil {
		return nil, nil, err
	}
	dev, err := dieselvk.OpenComputeDevice(inst)
	if err != nil {
		inst.Destroy()
		return nil, nil, err
	}
	return dev, func() {
		dev.Destroy()
		inst.Destroy()
	}, nil
}

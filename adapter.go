package dieselvk

import (
	"fmt"

	"github.com/andewx/dieselvk/hal"
)

// SelectComputeAdapter returns the first adapter with a queue family that
// accepts compute work, together with that family.
func SelectComputeAdapter(adapters []hal.Adapter) (hal.Adapter, hal.QueueFamily, error) {
	for _, a := range adapters {
		for _, q := range a.QueueFamilies {
			if q.SupportsCompute() && q.Count > 0 {
				return a, q, nil
			}
		}
	}
	return hal.Adapter{}, hal.QueueFamily{}, fmt.Errorf("%w: %d adapters enumerated", ErrNoComputeAdapter, len(adapters))
}

// OpenComputeDevice opens a device on the first compute-capable adapter of inst.
func OpenComputeDevice(inst hal.Instance) (hal.Device, error) {
	adapters, err := inst.Adapters()
	if err != nil {
		return nil, fmt.Errorf("enumerate adapters: %w", err)
	}
	adapter, family, err := SelectComputeAdapter(adapters)
	if err != nil {
		return nil, err
	}
	dev, err := inst.Open(adapter, family)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", adapter.Info.Name, err)
	}
	Logger().Info("dieselvk: compute adapter selected",
		"name", adapter.Info.Name,
		"type", adapter.Info.Type,
		"api", hal.APIVersionString(adapter.Info.APIVersion),
		"queue_family", family.Index,
		"non_coherent_atom_size", adapter.Limits.NonCoherentAtomSize)
	return dev, nil
}

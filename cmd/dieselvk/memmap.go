package main

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/andewx/dieselvk"
	"github.com/andewx/dieselvk/hal"
)

func newMemmapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "memmap",
		Short: "round trip data through a host-visible buffer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dev, release, err := openDevice(cfg)
			if err != nil {
				return err
			}
			defer release()
			if err := memoryRoundTrip(dev, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "memory map round trip ok")
			return nil
		},
	}
}

// memoryRoundTrip creates a coherent host-visible buffer holding numbers,
// fills it a second time, and reads it back.
func memoryRoundTrip(dev hal.Device, numbers []uint32) (err error) {
	buf, err := dieselvk.CreateBuffer(dev, dev.MemoryTypes(),
		hal.MemoryPropertyHostVisible|hal.MemoryPropertyHostCoherent,
		hal.BufferUsageTransferSrc|hal.BufferUsageTransferDst, numbers)
	if err != nil {
		return err
	}
	defer func() {
		if derr := buf.Destroy(dev); derr != nil && err == nil {
			err = derr
		}
	}()
	dieselvk.Logger().Info("dieselvk: staging buffer created", "buffer", buf, "size", buf.Size)

	if err := dieselvk.Write(dev, buf, numbers); err != nil {
		return err
	}
	out, err := dieselvk.Read[uint32](dev, buf, uint64(len(numbers)))
	if err != nil {
		return err
	}
	if diff := cmp.Diff(numbers, out); diff != "" {
		return fmt.Errorf("read back mismatch (-want +got):\n%s", diff)
	}
	return nil
}

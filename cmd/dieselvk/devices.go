package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andewx/dieselvk/hal"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "list adapters, queue families and memory types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			inst, err := openInstance(cfg)
			if err != nil {
				return err
			}
			defer inst.Destroy()
			adapters, err := inst.Adapters()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, a := range adapters {
				printAdapter(w, a)
			}
			return w.Flush()
		},
	}
}

func printAdapter(w *tabwriter.Writer, a hal.Adapter) {
	fmt.Fprintf(w, "adapter %d\t%s\t%s\tvulkan %s\n", a.Index, a.Info.Name, a.Info.Type, hal.APIVersionString(a.Info.APIVersion))
	fmt.Fprintf(w, "  non-coherent atom size\t%d\n", a.Limits.NonCoherentAtomSize)
	fmt.Fprintf(w, "  max push constants\t%d\n", a.Limits.MaxPushConstantsSize)
	for _, q := range a.QueueFamilies {
		fmt.Fprintf(w, "  queue family %d\t%s\tx%d\n", q.Index, q.Flags, q.Count)
	}
	for _, m := range a.MemoryTypes {
		fmt.Fprintf(w, "  memory type %d\theap %d\t%s\n", m.Index, m.HeapIndex, m.Properties)
	}
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andewx/dieselvk"
	"github.com/andewx/dieselvk/hal"
	"github.com/andewx/dieselvk/internal/config"
	"github.com/andewx/dieselvk/kernels"
)

func newRunCmd() *cobra.Command {
	var (
		kernel   string
		input    []uint
		push     []uint
		timeout  time.Duration
		coherent bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "dispatch a kernel over a list of u32 values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("kernel") {
				cfg.Kernel = kernel
			}
			if flags.Changed("input") {
				cfg.Input = toUint32(input)
			}
			if flags.Changed("push") {
				cfg.Push = toUint32(push)
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}
			if flags.Changed("coherent") {
				cfg.Soft.CoherentStaging = coherent
			}
			return runKernel(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&kernel, "kernel", config.DefaultKernel, "built-in kernel ("+strings.Join(kernels.Names(), ", ")+") or .spv path")
	cmd.Flags().UintSliceVar(&input, "input", nil, "input values")
	cmd.Flags().UintSliceVar(&push, "push", nil, "push constant words")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultTimeout, "fence wait timeout")
	cmd.Flags().BoolVar(&coherent, "coherent", true, "use host-coherent staging memory")
	return cmd
}

func runKernel(cmd *cobra.Command, cfg *config.Config) error {
	code, push, err := resolveKernel(cfg)
	if err != nil {
		return err
	}
	dev, release, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer release()

	opts := &dieselvk.RunOptions{
		Timeout:       cfg.Timeout,
		PushConstants: push,
	}
	if !cfg.Soft.CoherentStaging {
		opts.StagingProperties = hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCached
	}
	out, err := dieselvk.Run(dev, code, cfg.Input, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatWords(out))
	return nil
}

// resolveKernel loads the configured kernel and the push constants it
// needs. A built-in kernel that reads push constants gets zeros when none
// are configured.
func resolveKernel(cfg *config.Config) ([]byte, []uint32, error) {
	if strings.HasSuffix(cfg.Kernel, ".spv") {
		code, err := dieselvk.LoadKernel(cfg.Kernel)
		return code, cfg.Push, err
	}
	k, err := kernels.Lookup(cfg.Kernel)
	if err != nil {
		return nil, nil, err
	}
	code, err := kernels.Builtin(k.Name)
	if err != nil {
		return nil, nil, err
	}
	push := cfg.Push
	if uint32(len(push)) != k.PushConstantWords {
		if len(push) != 0 {
			return nil, nil, fmt.Errorf("kernel %s takes %d push constant words, got %d", k.Name, k.PushConstantWords, len(push))
		}
		push = make([]uint32, k.PushConstantWords)
	}
	return code, push, nil
}

func toUint32(v []uint) []uint32 {
	out := make([]uint32, len(v))
	for i, x := range v {
		out[i] = uint32(x)
	}
	return out
}

func formatWords(words []uint32) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprint(w)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

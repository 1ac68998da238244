package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andewx/dieselvk/kernels"
)

func newCompileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile [kernel|file.wgsl]",
		Short: "compile a built-in kernel or WGSL file to SPIR-V",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := compileKernel(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(filepath.Base(args[0]), ".wgsl") + ".spv"
			}
			if err := os.WriteFile(output, code, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(code))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path")
	return cmd
}

func compileKernel(arg string) ([]byte, error) {
	if !strings.HasSuffix(arg, ".wgsl") {
		return kernels.Builtin(arg)
	}
	src, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	return kernels.Compile(string(src))
}

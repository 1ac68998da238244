// Command dieselvk runs the built-in compute kernels, round trips data
// through mapped memory, lists devices, and compiles WGSL kernels.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/andewx/dieselvk"
	"github.com/andewx/dieselvk/hal/soft"
	"github.com/andewx/dieselvk/hal/vulkan"
	"github.com/andewx/dieselvk/internal/config"
	"github.com/andewx/dieselvk/kernels"
)

var (
	configFile string
	logLevel   string
	backend    string
	loader     string
	validation bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dieselvk:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dieselvk",
		Short:         "run compute kernels on a Vulkan or soft device",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", config.BackendVulkan, "device backend (vulkan, soft)")
	rootCmd.PersistentFlags().StringVar(&loader, "loader", "default", "vulkan loader (default, glfw)")
	rootCmd.PersistentFlags().BoolVar(&validation, "validation", false, "enable the Khronos validation layer")

	rootCmd.AddCommand(newRunCmd(), newMemmapCmd(), newDevicesCmd(), newCompileCmd())
	return rootCmd
}

func setupLogging(level string) error {
	l, err := config.ParseLevel(level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	dieselvk.SetLogger(logger)
	soft.SetLogger(logger)
	vulkan.SetLogger(logger)
	kernels.SetLogger(logger)
	return nil
}

// loadConfig reads --config when given and applies the persistent flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("backend") || configFile == "" {
		cfg.Backend = backend
	}
	if flags.Changed("loader") || configFile == "" {
		cfg.Loader = loader
	}
	if flags.Changed("validation") {
		cfg.Validation = validation
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	} else if configFile != "" {
		if err := setupLogging(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendVulkan = "vulkan"
	BackendSoft   = "soft"

	DefaultKernel  = "double"
	DefaultTimeout = 5 * time.Second
)

var ErrInvalid = errors.New("config: invalid")

// Config is a run configuration. Command-line flags override the values
// loaded from a file.
type Config struct {
	Backend string `yaml:"backend"`
	// Kernel is a built-in kernel name or a path to a .spv file.
	Kernel     string        `yaml:"kernel"`
	Input      []uint32      `yaml:"input"`
	Push       []uint32      `yaml:"push_constants,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
	Loader     string        `yaml:"loader"`
	Validation bool          `yaml:"validation"`
	Layers     []string      `yaml:"layers,omitempty"`
	LogLevel   string        `yaml:"log_level"`
	Soft       SoftConfig    `yaml:"soft"`
}

// SoftConfig parameterizes the soft device backend.
type SoftConfig struct {
	NonCoherentAtomSize uint64 `yaml:"non_coherent_atom_size"`
	BufferAlignment     uint64 `yaml:"buffer_alignment"`
	// CoherentStaging selects HOST_COHERENT staging memory. When false the
	// staging buffer uses cached memory and goes through flush/invalidate.
	CoherentStaging bool `yaml:"coherent_staging"`
}

func Default() *Config {
	return &Config{
		Backend:  BackendVulkan,
		Kernel:   DefaultKernel,
		Input:    []uint32{1, 2, 3, 4, 5, 6, 7},
		Timeout:  DefaultTimeout,
		Loader:   "default",
		LogLevel: "info",
		Soft: SoftConfig{
			NonCoherentAtomSize: 256,
			BufferAlignment:     64,
			CoherentStaging:     true,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendVulkan, BackendSoft:
	default:
		errs = append(errs, fmt.Errorf("%w: backend %q, want %s or %s", ErrInvalid, c.Backend, BackendVulkan, BackendSoft))
	}
	switch c.Loader {
	case "default", "glfw":
	default:
		errs = append(errs, fmt.Errorf("%w: loader %q, want default or glfw", ErrInvalid, c.Loader))
	}
	if c.Kernel == "" {
		errs = append(errs, fmt.Errorf("%w: no kernel", ErrInvalid))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: negative timeout %s", ErrInvalid, c.Timeout))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if a := c.Soft.NonCoherentAtomSize; a != 0 && a&(a-1) != 0 {
		errs = append(errs, fmt.Errorf("%w: non_coherent_atom_size %d is not a power of two", ErrInvalid, a))
	}
	if a := c.Soft.BufferAlignment; a != 0 && a&(a-1) != 0 {
		errs = append(errs, fmt.Errorf("%w: buffer_alignment %d is not a power of two", ErrInvalid, a))
	}
	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
	return l, nil
}

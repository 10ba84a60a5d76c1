// Package config provides configuration loading and management for volquilt.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"volquilt/pkg/quilt"
	"volquilt/pkg/tilefunc"
)

// Stitch strategies.
const (
	StitchSequential  = "sequential"
	StitchPartitioned = "partitioned"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tiling geometry
	Quilt struct {
		// Window, Step and Border hold one value per spatial axis, or a single
		// value used for every axis.
		Window []int `yaml:"window,flow"`
		Step   []int `yaml:"step,flow"`
		Border []int `yaml:"border,flow"`

		// BorderWeight is the weight of the outermost border sample, in [0, 1]
		BorderWeight float64 `yaml:"borderWeight"`

		// AllowTruncation lets a window larger than its axis shrink to the axis length
		AllowTruncation bool `yaml:"allowTruncation"`
	} `yaml:"quilt"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many goroutines extract, transform and stitch tiles
		NumWorkers int `yaml:"numWorkers"`

		// StitchStrategy is "sequential" or "partitioned"
		StitchStrategy string `yaml:"stitchStrategy"`

		// Transform names the per-tile function applied between unstitch and stitch
		Transform string `yaml:"transform"`

		// Scale is the factor used by the "scale" transform
		Scale float64 `yaml:"scale"`

		// LowPassCutoff is the fraction of the Nyquist frequency kept by "lowpass"
		LowPassCutoff float64 `yaml:"lowPassCutoff"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SaveCoverage writes the stitched weight totals as images
		SaveCoverage bool `yaml:"saveCoverage"`

		// CoverageDir is where coverage images are written
		CoverageDir string `yaml:"coverageDir"`

		// Verbose shows progress while tiles are processed
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Quilt.Window = []int{64}
	cfg.Quilt.Step = []int{48}
	cfg.Quilt.Border = []int{8}
	cfg.Quilt.BorderWeight = 0.1
	cfg.Quilt.AllowTruncation = true

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.StitchStrategy = StitchSequential
	cfg.Processing.Transform = "identity"
	cfg.Processing.Scale = 1.0
	cfg.Processing.LowPassCutoff = 0.25

	cfg.Output.SaveCoverage = false
	cfg.Output.CoverageDir = "coverage"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %q", configPath)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %q", configPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "config file %q", configPath)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating config directory %q", dir)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrapf(err, "writing config file %q", configPath)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks the settings that do not depend on the input shape. Tiling
// geometry is checked per axis once the shape is known, by quilt.NewSpec.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name   string
		values []int
	}{
		{"window", c.Quilt.Window},
		{"step", c.Quilt.Step},
		{"border", c.Quilt.Border},
	} {
		if len(f.values) == 0 {
			return errors.Errorf("quilt.%s must have at least one value", f.name)
		}
	}
	if c.Processing.NumWorkers < 1 {
		return errors.Errorf("processing.numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	switch c.Processing.StitchStrategy {
	case StitchSequential, StitchPartitioned:
	default:
		return errors.Errorf("processing.stitchStrategy %q is not %q or %q",
			c.Processing.StitchStrategy, StitchSequential, StitchPartitioned)
	}
	if _, err := c.TransformFunc(); err != nil {
		return errors.WithMessage(err, "processing.transform")
	}
	return nil
}

// TransformFunc resolves the configured per-tile transform.
func (c *Config) TransformFunc() (tilefunc.Func, error) {
	return tilefunc.ByName(c.Processing.Transform, c.Processing.Scale, c.Processing.LowPassCutoff)
}

// QuiltParams expands the tiling settings to one value per spatial axis.
func (c *Config) QuiltParams(spatialShape []int) (quilt.Params, error) {
	n := len(spatialShape)
	window, err := expand("window", c.Quilt.Window, n)
	if err != nil {
		return quilt.Params{}, err
	}
	step, err := expand("step", c.Quilt.Step, n)
	if err != nil {
		return quilt.Params{}, err
	}
	border, err := expand("border", c.Quilt.Border, n)
	if err != nil {
		return quilt.Params{}, err
	}
	return quilt.Params{
		SpatialShape:    slices.Clone(spatialShape),
		Window:          window,
		Step:            step,
		Border:          border,
		BorderWeight:    c.Quilt.BorderWeight,
		AllowTruncation: c.Quilt.AllowTruncation,
	}, nil
}

func expand(name string, values []int, n int) ([]int, error) {
	switch len(values) {
	case 1:
		return quilt.Uniform(values[0], n), nil
	case n:
		return slices.Clone(values), nil
	}
	return nil, errors.Errorf("quilt.%s has %d values, want 1 or %d", name, len(values), n)
}

// Package config handles vrmpack configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	ErrInvalidThreshold = errors.New("simplify threshold must be in (0, 1]")
	ErrInvalidError     = errors.New("target error must not be negative")
	ErrInvalidWorkers   = errors.New("worker count must not be negative")
)

// Config holds all vrmpack settings.
type Config struct {
	Simplify SimplifyConfig `yaml:"simplify"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SimplifyConfig holds mesh reduction settings.
type SimplifyConfig struct {
	Threshold             float64 `yaml:"threshold"`               // Target fraction of the original triangle count
	Aggressive            bool    `yaml:"aggressive"`              // Fall back to the sloppy pass when the target is missed
	TargetError           float64 `yaml:"target_error"`            // Relative error allowed in the quality pass
	TargetErrorAggressive float64 `yaml:"target_error_aggressive"` // Relative error used by the sloppy pass
	Workers               int     `yaml:"workers"`                 // Parallel reductions (0 = one per CPU)
}

// OutputConfig holds output settings.
type OutputConfig struct {
	DumpJSON bool `yaml:"dump_json"` // Write pre/post scene JSON next to the output
	Validate bool `yaml:"validate"`  // Report validator warnings for the input
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Verbose int    `yaml:"verbose"` // 1 = scene statistics, 2 = per-mesh detail
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Simplify: SimplifyConfig{
			Threshold:             1.0,
			Aggressive:            false,
			TargetError:           1e-2,
			TargetErrorAggressive: 1e-1,
			Workers:               0,
		},
		Output: OutputConfig{
			DumpJSON: false,
			Validate: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
			Verbose: 0,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !(c.Simplify.Threshold > 0 && c.Simplify.Threshold <= 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidThreshold, c.Simplify.Threshold)
	}
	if c.Simplify.TargetError < 0 || c.Simplify.TargetErrorAggressive < 0 {
		return ErrInvalidError
	}
	if c.Simplify.Workers < 0 {
		return ErrInvalidWorkers
	}
	return nil
}

// Settings is the immutable snapshot of configuration the pipeline reads.
type Settings struct {
	SimplifyThreshold     float64
	SimplifyAggressive    bool
	TargetError           float32
	TargetErrorAggressive float32
	Verbose               int
	Workers               int
	DumpJSON              bool
	Validate              bool
}

// Settings returns the pipeline settings derived from the config.
func (c *Config) Settings() Settings {
	return Settings{
		SimplifyThreshold:     c.Simplify.Threshold,
		SimplifyAggressive:    c.Simplify.Aggressive,
		TargetError:           float32(c.Simplify.TargetError),
		TargetErrorAggressive: float32(c.Simplify.TargetErrorAggressive),
		Verbose:               c.Logging.Verbose,
		Workers:               c.Simplify.Workers,
		DumpJSON:              c.Output.DumpJSON,
		Validate:              c.Output.Validate,
	}
}

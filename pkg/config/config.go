// Package config loads the tool configuration: YAML file, defaults, and the
// validation pass that runs before a broadcast starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/luxops/luxfleet/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds everything one fleet invocation needs. Flags override file
// values which override these defaults.
type Config struct {
	// Command
	Cmd    string
	Params []string

	// Selection
	Ranges []string
	IPFile string
	Port   int

	// Fleet runner
	Batch      int
	BatchDelay time.Duration
	Rate       float64
	StopIf     string
	MinSamples int64

	// Remote execution
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Port:       4028,
		Timeout:    3 * time.Second,
		Retries:    0,
		RetryDelay: 1 * time.Second,
	}
}

// YAMLConfig represents the structure of the YAML configuration file.
type YAMLConfig struct {
	Command struct {
		Cmd    string   `yaml:"cmd,omitempty"`
		Params []string `yaml:"params,omitempty"`
	} `yaml:"command,omitempty"`

	Miners struct {
		Ranges []string `yaml:"ranges,omitempty"`
		IPFile string   `yaml:"ipfile,omitempty"`
	} `yaml:"miners,omitempty"`

	Fleet struct {
		Port       int     `yaml:"port,omitempty"`
		Batch      int     `yaml:"batch,omitempty"`
		BatchDelay string  `yaml:"batch_delay,omitempty"`
		Rate       float64 `yaml:"rate,omitempty"`
		StopIf     string  `yaml:"stop_if,omitempty"`
		MinSamples int64   `yaml:"min_samples,omitempty"`
	} `yaml:"fleet,omitempty"`

	Rexec struct {
		Timeout    string `yaml:"timeout,omitempty"`
		Retries    *int   `yaml:"retries,omitempty"`
		RetryDelay string `yaml:"retries_delay,omitempty"`
	} `yaml:"rexec,omitempty"`
}

// LoadConfig reads a YAML file and merges it over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := Defaults()
	cfg.Cmd = yamlCfg.Command.Cmd
	cfg.Params = yamlCfg.Command.Params
	cfg.Ranges = yamlCfg.Miners.Ranges
	cfg.IPFile = yamlCfg.Miners.IPFile

	if yamlCfg.Fleet.Port > 0 {
		cfg.Port = yamlCfg.Fleet.Port
	}
	cfg.Batch = yamlCfg.Fleet.Batch
	cfg.Rate = yamlCfg.Fleet.Rate
	cfg.StopIf = yamlCfg.Fleet.StopIf
	cfg.MinSamples = yamlCfg.Fleet.MinSamples

	if yamlCfg.Fleet.BatchDelay != "" {
		d, err := time.ParseDuration(yamlCfg.Fleet.BatchDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid batch_delay format: %w", err)
		}
		cfg.BatchDelay = d
	}
	if yamlCfg.Rexec.Timeout != "" {
		d, err := time.ParseDuration(yamlCfg.Rexec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format: %w", err)
		}
		cfg.Timeout = d
	}
	if yamlCfg.Rexec.Retries != nil {
		cfg.Retries = *yamlCfg.Rexec.Retries
	}
	if yamlCfg.Rexec.RetryDelay != "" {
		d, err := time.ParseDuration(yamlCfg.Rexec.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid retries_delay format: %w", err)
		}
		cfg.RetryDelay = d
	}

	return cfg, nil
}

// AbortRule builds the runner abort rule from the stop_if expression, or
// nil when none is configured.
func (c *Config) AbortRule() *models.AbortRule {
	if c.StopIf == "" {
		return nil
	}
	return &models.AbortRule{StopIf: c.StopIf, MinSamples: c.MinSamples}
}

// Validate checks whether the configuration can start a broadcast.
// Returns detailed errors with suggestions for fixing issues.
func Validate(cfg *Config) error {
	result := &ValidationResult{}

	if cfg.Cmd == "" {
		result.Add(ValidationError{
			Field:   "command.cmd",
			Message: "missing required field",
			Hint:    GetHint("command.cmd"),
		})
	} else if known, suggestion := ValidateCommand(cfg.Cmd); !known && suggestion != "" {
		result.Add(ValidationError{
			Field:      "command.cmd",
			Value:      cfg.Cmd,
			Message:    "command not in the catalog",
			DidYouMean: suggestion,
			Hint:       "Unknown commands are sent as-is; the device will reject them",
		})
	}

	if err := ValidateParamsShape(cfg.Params); err != nil {
		result.Add(ValidationError{
			Field:    "command.params",
			Message:  err.Error(),
			Expected: "all positional values, or all k=v pairs",
			Hint:     GetHint("command.params"),
		})
	}

	if len(cfg.Ranges) == 0 && cfg.IPFile == "" {
		result.Add(ValidationError{
			Field:   "miners",
			Message: "no devices selected",
			Hint:    "Provide miners.ranges, miners.ipfile, or the --range/--ipfile flags",
		})
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		result.Add(ValidationError{
			Field:    "fleet.port",
			Value:    fmt.Sprintf("%d", cfg.Port),
			Message:  "port out of range",
			Expected: "1..65535 (default 4028)",
			Hint:     GetHint("fleet.port"),
		})
	}

	if cfg.Batch < 0 {
		result.Add(ValidationError{
			Field:    "fleet.batch",
			Value:    fmt.Sprintf("%d", cfg.Batch),
			Message:  "batch cannot be negative",
			Expected: "positive integer, or 0 for one all-at-once batch",
			Hint:     GetHint("fleet.batch"),
		})
	}

	if cfg.Timeout <= 0 {
		result.Add(ValidationError{
			Field:    "rexec.timeout",
			Message:  "timeout must be greater than 0",
			Expected: "duration string with unit (e.g., '3s')",
			Hint:     GetHint("rexec.timeout"),
		})
	}

	if cfg.Retries < 0 {
		result.Add(ValidationError{
			Field:    "rexec.retries",
			Value:    fmt.Sprintf("%d", cfg.Retries),
			Message:  "retries cannot be negative",
			Expected: "0 or a positive integer",
			Hint:     GetHint("rexec.retries"),
		})
	}

	if result.HasErrors() {
		return fmt.Errorf("%s", result.FormatErrors())
	}
	return nil
}

// SaveConfig saves the current configuration to a YAML file, so an
// interactive setup can be replayed later.
func SaveConfig(path string, cfg *Config) error {
	var yamlCfg YAMLConfig
	yamlCfg.Command.Cmd = cfg.Cmd
	yamlCfg.Command.Params = cfg.Params
	yamlCfg.Miners.Ranges = cfg.Ranges
	yamlCfg.Miners.IPFile = cfg.IPFile
	yamlCfg.Fleet.Port = cfg.Port
	yamlCfg.Fleet.Batch = cfg.Batch
	if cfg.BatchDelay > 0 {
		yamlCfg.Fleet.BatchDelay = cfg.BatchDelay.String()
	}
	yamlCfg.Fleet.Rate = cfg.Rate
	yamlCfg.Fleet.StopIf = cfg.StopIf
	yamlCfg.Fleet.MinSamples = cfg.MinSamples
	yamlCfg.Rexec.Timeout = cfg.Timeout.String()
	retries := cfg.Retries
	yamlCfg.Rexec.Retries = &retries
	yamlCfg.Rexec.RetryDelay = cfg.RetryDelay.String()

	data, err := yaml.Marshal(yamlCfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Append usage instructions
	comment := fmt.Sprintf("\n# Run this configuration:\n# luxfleet -c %s\n", filepath.Base(path))
	data = append(data, []byte(comment)...)

	return os.WriteFile(path, data, 0644)
}

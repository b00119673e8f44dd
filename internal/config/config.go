package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Bench     BenchConfig     `toml:"bench"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Resolvers []string        `toml:"resolvers"`
	Domains   []string        `toml:"domains"`
}

type LoggingConfig struct {
	Dir      string `toml:"dir"`
	MaxMB    int    `toml:"max_mb"`
	MaxFiles int    `toml:"max_files"`
}

// BenchConfig holds the per-run knobs. Out-of-range values are clamped
// by the coordinator rather than rejected here.
type BenchConfig struct {
	TimeoutMS         int  `toml:"timeout_ms"`
	MaxRetries        int  `toml:"max_retries"`
	MaxConcurrency    int  `toml:"max_concurrency"`
	InterBatchDelayMS int  `toml:"inter_batch_delay_ms"`
	PreflightPing     bool `toml:"preflight_ping"`
}

type AnalysisConfig struct {
	ValidationResolvers []string `toml:"validation_resolvers"`
	ValidationTimeoutMS int      `toml:"validation_timeout_ms"`
}

type BroadcastConfig struct {
	SampleIntervalMS int `toml:"sample_interval_ms"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Bench: BenchConfig{
			TimeoutMS:      3000,
			MaxRetries:     1,
			MaxConcurrency: 5,
		},
		Analysis: AnalysisConfig{
			ValidationTimeoutMS: 5000,
		},
		Broadcast: BroadcastConfig{
			SampleIntervalMS: 1000,
		},
	}

	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []string

	if strings.TrimSpace(c.Logging.Dir) == "" {
		errs = append(errs, "logging.dir is required")
	}
	if c.Logging.MaxMB <= 0 {
		errs = append(errs, "logging.max_mb must be > 0")
	}
	if c.Logging.MaxFiles <= 0 {
		errs = append(errs, "logging.max_files must be > 0")
	}
	if len(c.Resolvers) == 0 {
		errs = append(errs, "resolvers must not be empty")
	}
	for i, r := range c.Resolvers {
		if net.ParseIP(r) == nil {
			errs = append(errs, fmt.Sprintf("resolvers[%d] %q is not an IP literal", i, r))
		}
	}
	if len(c.Domains) == 0 {
		errs = append(errs, "domains must not be empty")
	}
	for i, d := range c.Domains {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, fmt.Sprintf("domains[%d] is empty", i))
		}
	}
	for i, r := range c.Analysis.ValidationResolvers {
		if net.ParseIP(r) == nil {
			errs = append(errs, fmt.Sprintf("analysis.validation_resolvers[%d] %q is not an IP literal", i, r))
		}
	}
	if c.Analysis.ValidationTimeoutMS <= 0 {
		errs = append(errs, "analysis.validation_timeout_ms must be > 0")
	}
	if c.Broadcast.SampleIntervalMS <= 0 {
		errs = append(errs, "broadcast.sample_interval_ms must be > 0")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

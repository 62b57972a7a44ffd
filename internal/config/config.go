// Package config loads pipeline configuration and the duplicate-resolution
// override table from YAML files, with environment variable overrides for
// deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all pipeline configuration.
type Config struct {
	Inputs struct {
		AccountingCSV string `yaml:"accounting_csv"`
		ShocksXLSX    string `yaml:"shocks_xlsx"`
		PatentsCSV    string `yaml:"patents_csv"`
		OverridesYAML string `yaml:"overrides_yaml"`
	} `yaml:"inputs"`
	Database struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"database"`
	Sample struct {
		WinsorLow  float64 `yaml:"winsor_low"`
		WinsorHigh float64 `yaml:"winsor_high"`
	} `yaml:"sample"`
	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error; overrides and
// defaults alone can fully configure a run.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Database.ClickHouseDSN = v
	}
	if v := os.Getenv("ACCOUNTING_CSV"); v != "" {
		cfg.Inputs.AccountingCSV = v
	}
	if v := os.Getenv("SHOCKS_XLSX"); v != "" {
		cfg.Inputs.ShocksXLSX = v
	}
	if v := os.Getenv("PATENTS_CSV"); v != "" {
		cfg.Inputs.PatentsCSV = v
	}
	if v := os.Getenv("OVERRIDES_YAML"); v != "" {
		cfg.Inputs.OverridesYAML = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("WINSOR_LOW"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sample.WinsorLow = f
		}
	}
	if v := os.Getenv("WINSOR_HIGH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sample.WinsorHigh = f
		}
	}

	// Defaults
	if cfg.Sample.WinsorLow == 0 && cfg.Sample.WinsorHigh == 0 {
		cfg.Sample.WinsorLow = 0.01
		cfg.Sample.WinsorHigh = 0.99
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sample.WinsorLow < 0 || c.Sample.WinsorHigh > 1 ||
		c.Sample.WinsorLow >= c.Sample.WinsorHigh {
		return fmt.Errorf("invalid winsor percentiles: low=%v high=%v",
			c.Sample.WinsorLow, c.Sample.WinsorHigh)
	}
	return nil
}

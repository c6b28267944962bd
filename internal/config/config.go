package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds vulnwatch runtime configuration.
type Config struct {
	OutputDir     string        `yaml:"outputDir"`     // default "./vulnwatch-out"
	RuntimeBudget time.Duration `yaml:"runtimeBudget"` // default 30m
	Concurrency   int           `yaml:"concurrency"`   // default 4
	Wordlist      string        `yaml:"wordlist"`      // default dirb common.txt
	Scheme        string        `yaml:"scheme"`        // default "https"
	MetricsAddr   string        `yaml:"metricsAddr"`   // empty = metrics disabled
	OTELEndpoint  string        `yaml:"otelEndpoint"`  // empty = tracing disabled

	// ToolPaths overrides the binary invoked per tool (e.g. a full path
	// or a wrapper script).
	ToolPaths map[string]string `yaml:"toolPaths"`
	// Timeouts overrides the worst-case timeout per tool.
	Timeouts map[string]time.Duration `yaml:"timeouts"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		OutputDir:     "./vulnwatch-out",
		RuntimeBudget: 30 * time.Minute,
		Concurrency:   4,
		Wordlist:      "/usr/share/wordlists/dirb/common.txt",
		Scheme:        "https",
	}
}

// Load reads a YAML config file and merges with defaults.
func Load(path string) (*Config, error) {
	c := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return c, nil
}

// Validate checks that the config values are sane.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("outputDir must not be empty")
	}
	if c.RuntimeBudget < time.Minute {
		return fmt.Errorf("runtimeBudget must be at least 1m, got %s", c.RuntimeBudget)
	}
	if c.Concurrency < 1 || c.Concurrency > 32 {
		return fmt.Errorf("concurrency must be 1..32, got %d", c.Concurrency)
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", c.Scheme)
	}
	for tool, d := range c.Timeouts {
		if d <= 0 {
			return fmt.Errorf("timeout override for %s must be positive, got %s", tool, d)
		}
	}
	return nil
}

// Package config loads the devtoolbox server configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration for the devtoolbox server
type Config struct {
	// Addr is the listen address for the gateway
	Addr string `yaml:"addr"`

	// Transport selects the wire transport ("sse" or "stream-http")
	Transport string `yaml:"transport"`

	Analysis AnalysisConfig `yaml:"analysis"`
	Docker   DockerConfig   `yaml:"docker"`
}

// AnalysisConfig configures the code analysis toolset
type AnalysisConfig struct {
	// Linter is the lint command line; the project path is appended
	Linter []string `yaml:"linter"`

	// TypeChecker is the type-check command line; the project path is appended
	TypeChecker []string `yaml:"type_checker"`

	// Timeout bounds a single command invocation
	Timeout Duration `yaml:"timeout"`
}

// DockerConfig configures the container control toolset
type DockerConfig struct {
	// Host overrides the Docker daemon address; empty means environment defaults
	Host string `yaml:"host"`

	// Timeout bounds a single Docker API call
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration so values like "30s" parse from YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DefaultConfig returns the configuration used when no file is provided
func DefaultConfig() *Config {
	return &Config{
		Addr:      "0.0.0.0:9654",
		Transport: "sse",
		Analysis: AnalysisConfig{
			Linter:      []string{"ruff", "check"},
			TypeChecker: []string{"mypy"},
			Timeout:     Duration(2 * time.Minute),
		},
		Docker: DockerConfig{
			Timeout: Duration(30 * time.Second),
		},
	}
}

// LoadFile loads configuration from a file, falling back to defaults
// when the file does not exist
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load loads configuration from an io.Reader on top of the defaults
func Load(r io.Reader) (*Config, error) {
	config := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading config data: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config YAML: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for values that cannot work at runtime
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	switch c.Transport {
	case "sse", "stream-http":
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", "sse", "stream-http", c.Transport)
	}
	if len(c.Analysis.Linter) == 0 {
		return fmt.Errorf("analysis.linter command must not be empty")
	}
	if len(c.Analysis.TypeChecker) == 0 {
		return fmt.Errorf("analysis.type_checker command must not be empty")
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis.timeout must be positive")
	}
	if c.Docker.Timeout <= 0 {
		return fmt.Errorf("docker.timeout must be positive")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile loads configuration from a YAML file on top of the defaults
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations.
// Returns empty string if not found (non-fatal)
func FindConfigFile() string {
	locations := []string{
		"./vslice.yaml",
		"./vslice.yml",
		filepath.Join(os.Getenv("HOME"), ".vslice", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".vslice", "config.yml"),
		"/etc/vslice/config.yaml",
		"/etc/vslice/config.yml",
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

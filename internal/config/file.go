package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML profile. Environment variables win over it.
type fileConfig struct {
	Keywords      []string                   `yaml:"keywords"`
	PromptMarkers []string                   `yaml:"prompt_markers"`
	Platforms     map[string]PlatformProfile `yaml:"platforms"`
}

func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

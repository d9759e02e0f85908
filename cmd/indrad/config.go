package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/QualiaResearchInstitute/indra/kernelspec"
	"github.com/QualiaResearchInstitute/indra/kuramoto"
)

// Config carries the daemon settings. Params and Spec reuse the engine
// types directly; their yaml tags mirror the wire format, so a config
// file and a POST /spec body use the same field names.
type Config struct {
	Listen  string           `yaml:"listen"`
	Width   int              `yaml:"width"`
	Height  int              `yaml:"height"`
	Workers int              `yaml:"workers"`
	Watch   string           `yaml:"watch"`
	Params  kuramoto.Params  `yaml:"params"`
	Spec    kernelspec.Patch `yaml:"spec"`
}

func defaultConfig() Config {
	return Config{
		Listen: "127.0.0.1:8787",
		Width:  256,
		Height: 256,
		Params: kuramoto.DefaultParams(),
	}
}

// loadConfig reads a YAML config file, or returns defaults when path
// is empty.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Listen == "" {
		cfg.Listen = defaultConfig().Listen
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultConfig().Width
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultConfig().Height
	}
	return cfg, nil
}

// initialSpec resolves the config's spec patch against the default
// kernel spec.
func (c Config) initialSpec() kernelspec.Spec {
	return kernelspec.Default().With(c.Spec)
}

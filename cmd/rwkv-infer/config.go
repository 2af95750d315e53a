package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cahya-wirawan/web-rwkv/model"
)

// modelConfig is the YAML shape `run`/`init-config` read and write: a model's
// topology, since this CLI has no real checkpoint-file parser and
// instead exercises the runtime against a deterministically synthesized
// model built to this shape (see internal/synth).
type modelConfig struct {
	Version   string `yaml:"version"`
	NumLayer  int    `yaml:"num_layer"`
	NumEmb    int    `yaml:"num_emb"`
	NumHidden int    `yaml:"num_hidden"`
	NumVocab  int    `yaml:"num_vocab"`
	HeadSize  int    `yaml:"head_size,omitempty"`
}

func defaultModelConfig() modelConfig {
	return modelConfig{
		Version:   "v4",
		NumLayer:  6,
		NumEmb:    64,
		NumHidden: 256,
		NumVocab:  256,
	}
}

func loadModelConfig(path string) (modelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return modelConfig{}, fmt.Errorf("reading config: %w", err)
	}
	cfg := defaultModelConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return modelConfig{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c modelConfig) toInfo() (model.Info, error) {
	info := model.Info{
		NumLayer:  c.NumLayer,
		NumEmb:    c.NumEmb,
		NumHidden: c.NumHidden,
		NumVocab:  c.NumVocab,
		HeadSize:  c.HeadSize,
	}
	switch c.Version {
	case "v4", "":
		info.Version = model.V4
	case "v5":
		info.Version = model.V5
		if info.HeadSize == 0 {
			return model.Info{}, fmt.Errorf("config: head_size is required for v5")
		}
	default:
		return model.Info{}, fmt.Errorf("config: unknown version %q (want v4 or v5)", c.Version)
	}
	return info, nil
}

func writeDefaultConfig(path string) error {
	data, err := yaml.Marshal(defaultModelConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

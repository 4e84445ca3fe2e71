package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validLLMNames lists the supported response generators.
var validLLMNames = []string{"openai", "anthropic"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Providers.LLM.Name != "" && !slices.Contains(validLLMNames, cfg.Providers.LLM.Name) {
		errs = append(errs, fmt.Errorf("providers.llm.name %q is invalid; valid values: %v", cfg.Providers.LLM.Name, validLLMNames))
	}
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.APIKey == "" {
		slog.Warn("providers.llm.api_key is empty; set it in the config or the environment")
	}

	for _, ep := range []struct {
		name   string
		scheme string
	}{
		{"providers.stt", cfg.Providers.STT.Scheme},
		{"providers.tts", cfg.Providers.TTS.Scheme},
	} {
		if ep.scheme != "" && ep.scheme != "ws" && ep.scheme != "wss" {
			errs = append(errs, fmt.Errorf("%s.scheme %q is invalid; valid values: ws, wss", ep.name, ep.scheme))
		}
	}

	if cfg.Session.VADThreshold < 0 || cfg.Session.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.vad_threshold %v is out of range [0, 1]", cfg.Session.VADThreshold))
	}
	if cfg.Session.NoiseFloorFactor < 0 {
		errs = append(errs, fmt.Errorf("session.noise_floor_factor %v must be positive", cfg.Session.NoiseFloorFactor))
	}
	if cfg.Session.BargeInThreshold < 0 {
		errs = append(errs, fmt.Errorf("session.barge_in_threshold must be positive"))
	}

	return errors.Join(errs...)
}

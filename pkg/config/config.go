// Package config defines the YAML configuration for the voxwire session
// agent and maps it onto the engine's runtime settings.
package config

import (
	"fmt"
	"time"

	"github.com/voxwire-ai/voxwire-session/pkg/session"
)

// LogLevel controls log verbosity for the agent.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values can be written as "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root of the agent configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// MetricsAddr is the listen address for the /metrics endpoint.
	// Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// EndpointConfig points a streaming provider at its backend.
type EndpointConfig struct {
	APIKey string `yaml:"api_key"`
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
}

// LLMConfig selects and configures the response generator.
type LLMConfig struct {
	// Name selects the provider: openai or anthropic.
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ProvidersConfig wires the three backends of a cascaded voice pipeline.
type ProvidersConfig struct {
	STT EndpointConfig `yaml:"stt"`
	TTS EndpointConfig `yaml:"tts"`
	LLM LLMConfig      `yaml:"llm"`
}

// SessionConfig overrides engine defaults. Zero values keep the default.
type SessionConfig struct {
	SpeechTimeout       Duration `yaml:"speech_timeout"`
	SilenceTimeout      Duration `yaml:"silence_timeout"`
	StalePartialTimeout Duration `yaml:"stale_partial_timeout"`
	BargeInThreshold    Duration `yaml:"barge_in_threshold"`

	VADThreshold     float64 `yaml:"vad_threshold"`
	NoiseFloorFactor float64 `yaml:"noise_floor_factor"`

	SynthesisRate int    `yaml:"synthesis_rate"`
	Voice         string `yaml:"voice"`

	SystemPrompt     string `yaml:"system_prompt"`
	FallbackResponse string `yaml:"fallback_response"`
}

// Engine returns the session configuration: defaults with the file's
// overrides applied.
func (c *Config) Engine() session.Config {
	cfg := session.DefaultConfig()
	s := c.Session

	if s.SpeechTimeout != 0 {
		cfg.SpeechTimeout = time.Duration(s.SpeechTimeout)
	}
	if s.SilenceTimeout != 0 {
		cfg.SilenceTimeout = time.Duration(s.SilenceTimeout)
	}
	if s.StalePartialTimeout != 0 {
		cfg.StalePartialTimeout = time.Duration(s.StalePartialTimeout)
	}
	if s.BargeInThreshold != 0 {
		cfg.BargeInThreshold = time.Duration(s.BargeInThreshold)
	}
	if s.VADThreshold != 0 {
		cfg.VADThreshold = s.VADThreshold
	}
	if s.NoiseFloorFactor != 0 {
		cfg.NoiseFloorFactor = s.NoiseFloorFactor
	}
	if s.SynthesisRate != 0 {
		cfg.SynthesisRate = s.SynthesisRate
	}
	if s.Voice != "" {
		cfg.Voice = s.Voice
	}
	if s.FallbackResponse != "" {
		cfg.FallbackResponse = s.FallbackResponse
	}
	return cfg
}

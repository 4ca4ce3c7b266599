// Package config loads and validates the Chronos configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Chronos configuration
type Config struct {
	Voice   VoiceConfig   `yaml:"voice"`
	Audio   AudioConfig   `yaml:"audio"`
	AI      AIConfig      `yaml:"ai"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// VoiceConfig contains realtime voice session configuration
type VoiceConfig struct {
	Endpoint           string `yaml:"endpoint"`
	APIKey             string `yaml:"api_key"`
	Model              string `yaml:"model"`
	VoiceName          string `yaml:"voice_name"`
	ActivityDebounceMs int    `yaml:"activity_debounce_ms"` // speaking-indicator hold after last chunk
}

// AudioConfig contains audio pipeline parameters
type AudioConfig struct {
	PlaybackSampleRate int    `yaml:"playback_sample_rate"` // model output, fixed 24000
	CaptureSampleRate  int    `yaml:"capture_sample_rate"`  // microphone, fixed 16000
	RestartGraceMs     int    `yaml:"restart_grace_ms"`     // post-stop chunk drop window
	CaptureFrameSize   int    `yaml:"capture_frame_size"`   // samples per transmitted frame
	ClipDir            string `yaml:"clip_dir"`             // voice memo WAV directory
}

// AIConfig contains the enrichment provider configuration
type AIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	ImageModel      string `yaml:"image_model"`
	MaxPromptTokens int    `yaml:"max_prompt_tokens"`
	IllustrationDir string `yaml:"illustration_dir"` // generated illustration PNG directory
}

// StoreConfig contains the note store configuration
type StoreConfig struct {
	Path string `yaml:"path"` // sqlite database path
}

// MetricsConfig contains the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig returns a configuration with sensible defaults. The
// sample rates are fixed by the remote model contract and should not
// normally be changed.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Voice: VoiceConfig{
			Endpoint:           "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent",
			Model:              "models/gemini-2.0-flash-exp",
			VoiceName:          "Aoede",
			ActivityDebounceMs: 1000,
		},
		Audio: AudioConfig{
			PlaybackSampleRate: 24000,
			CaptureSampleRate:  16000,
			RestartGraceMs:     200,
			CaptureFrameSize:   1024,
			ClipDir:            filepath.Join(home, ".chronos", "clips"),
		},
		AI: AIConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			ImageModel:      "dall-e-3",
			MaxPromptTokens: 8000,
			IllustrationDir: filepath.Join(home, ".chronos", "illustrations"),
		},
		Store: StoreConfig{
			Path: filepath.Join(home, ".chronos", "chronos.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9091",
		},
	}
}

// Load reads the configuration file, fills unset fields from defaults,
// applies environment overrides for secrets, and validates the result.
// An empty path returns the defaults with environment overrides only.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Secrets prefer the environment over the file
	if key := os.Getenv("CHRONOS_VOICE_API_KEY"); key != "" {
		config.Voice.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.AI.APIKey == "" {
		config.AI.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Voice.Validate(); err != nil {
		return fmt.Errorf("voice config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store config: path cannot be empty")
	}
	return nil
}

// Validate checks voice session parameters
func (v *VoiceConfig) Validate() error {
	if v.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if v.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if v.ActivityDebounceMs <= 0 {
		return fmt.Errorf("activity_debounce_ms must be positive, got %d", v.ActivityDebounceMs)
	}
	return nil
}

// Validate checks audio pipeline parameters
func (a *AudioConfig) Validate() error {
	if a.PlaybackSampleRate <= 0 {
		return fmt.Errorf("playback_sample_rate must be positive, got %d", a.PlaybackSampleRate)
	}
	if a.CaptureSampleRate <= 0 {
		return fmt.Errorf("capture_sample_rate must be positive, got %d", a.CaptureSampleRate)
	}
	if a.RestartGraceMs < 0 {
		return fmt.Errorf("restart_grace_ms cannot be negative, got %d", a.RestartGraceMs)
	}
	if a.CaptureFrameSize <= 0 {
		return fmt.Errorf("capture_frame_size must be positive, got %d", a.CaptureFrameSize)
	}
	return nil
}

// Validate checks metrics endpoint parameters
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}
	return nil
}

// GetActivityDebounce returns the speaking-indicator debounce window
func (v *VoiceConfig) GetActivityDebounce() time.Duration {
	return time.Duration(v.ActivityDebounceMs) * time.Millisecond
}

// GetRestartGrace returns the post-stop grace period
func (a *AudioConfig) GetRestartGrace() time.Duration {
	return time.Duration(a.RestartGraceMs) * time.Millisecond
}

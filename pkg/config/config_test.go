package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}

	if cfg.Audio.PlaybackSampleRate != 24000 {
		t.Errorf("Expected playback rate 24000, got %d", cfg.Audio.PlaybackSampleRate)
	}
	if cfg.Audio.CaptureSampleRate != 16000 {
		t.Errorf("Expected capture rate 16000, got %d", cfg.Audio.CaptureSampleRate)
	}
	if cfg.AI.IllustrationDir == "" {
		t.Error("Expected a default illustration directory")
	}
	if cfg.AI.IllustrationDir == cfg.Audio.ClipDir {
		t.Error("Illustrations must not share the voice memo clip directory")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
voice:
  endpoint: wss://example.test/stream
  model: models/test-model
  voice_name: Test
  activity_debounce_ms: 500
audio:
  playback_sample_rate: 24000
  capture_sample_rate: 16000
  restart_grace_ms: 150
  capture_frame_size: 512
  clip_dir: /tmp/clips
ai:
  illustration_dir: /tmp/illustrations
store:
  path: /tmp/chronos.db
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Voice.Endpoint != "wss://example.test/stream" {
		t.Errorf("Endpoint not applied: %q", cfg.Voice.Endpoint)
	}
	if got := cfg.Audio.GetRestartGrace(); got != 150*time.Millisecond {
		t.Errorf("Expected restart grace 150ms, got %v", got)
	}
	if got := cfg.Voice.GetActivityDebounce(); got != 500*time.Millisecond {
		t.Errorf("Expected debounce 500ms, got %v", got)
	}
	if cfg.AI.IllustrationDir != "/tmp/illustrations" {
		t.Errorf("Illustration dir not applied: %q", cfg.AI.IllustrationDir)
	}

	// Fields absent from the file keep their defaults
	if cfg.AI.Model == "" {
		t.Error("AI model default was lost during merge")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/chronos.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadEnvOverridesSecret(t *testing.T) {
	t.Setenv("CHRONOS_VOICE_API_KEY", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Voice.APIKey != "env-secret" {
		t.Errorf("Expected env override for voice API key, got %q", cfg.Voice.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty endpoint", mutate: func(c *Config) { c.Voice.Endpoint = "" }},
		{name: "empty model", mutate: func(c *Config) { c.Voice.Model = "" }},
		{name: "zero debounce", mutate: func(c *Config) { c.Voice.ActivityDebounceMs = 0 }},
		{name: "zero playback rate", mutate: func(c *Config) { c.Audio.PlaybackSampleRate = 0 }},
		{name: "negative grace", mutate: func(c *Config) { c.Audio.RestartGraceMs = -1 }},
		{name: "zero frame size", mutate: func(c *Config) { c.Audio.CaptureFrameSize = 0 }},
		{name: "empty store path", mutate: func(c *Config) { c.Store.Path = "" }},
		{name: "metrics enabled without address", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

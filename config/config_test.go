package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrsingh-rishi/voice-capture/stt"
)

func validConfig() *Config {
	c := Default()
	c.ASR.APIKey = "api"
	c.ASR.SecretKey = "secret"
	return c
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid configuration", func(*Config) {}, ""},
		{"missing secret", func(c *Config) { c.ASR.SecretKey = "" }, "secret_key is required"},
		{"missing api key", func(c *Config) { c.ASR.APIKey = "" }, "api_key is required"},
		{"bad ttl", func(c *Config) { c.ASR.TokenTTL = "soon" }, "invalid token_ttl"},
		{"zero ttl", func(c *Config) { c.ASR.TokenTTL = "0s" }, "token_ttl must be positive"},
		{"bad grace", func(c *Config) { c.Voice.FinishGrace = "half" }, "invalid finish_grace"},
		{"unknown backend", func(c *Config) { c.Audio.Backend = "alsa" }, "backend must be"},
		{"tiny frames", func(c *Config) { c.Audio.FrameSize = 10 }, "frame_size must be"},
		{"no address", func(c *Config) { c.HTTP.Address = "" }, "address cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	c := validConfig()
	if c.ASR.GetTokenTTL() != 29*24*time.Hour {
		t.Errorf("Expected 29 day token TTL, got %s", c.ASR.GetTokenTTL())
	}
	if c.Voice.GetMaxDuration() != 300*time.Second {
		t.Errorf("Expected 300s max duration, got %s", c.Voice.GetMaxDuration())
	}
	if c.Voice.GetFinishGrace() != 500*time.Millisecond {
		t.Errorf("Expected 500ms grace, got %s", c.Voice.GetFinishGrace())
	}
	if c.Voice.GetMinFallback() != 500*time.Millisecond {
		t.Errorf("Expected 500ms minimum, got %s", c.Voice.GetMinFallback())
	}
	if c.ASR.GetDevPID() != stt.DevPIDMandarin {
		t.Errorf("Expected Mandarin dev_pid, got %d", c.ASR.GetDevPID())
	}
	if c.HTTP.Address != ":3000" {
		t.Errorf("Expected :3000, got %s", c.HTTP.Address)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BAIDU_APP_ID":       "118",
		"BAIDU_API_KEY":      "env-api",
		"BAIDU_SECRET_KEY":   "env-secret",
		"ASR_LANGUAGE":       "en",
		"VOICE_MAX_DURATION": "60s",
		"AUDIO_BACKEND":      "miniaudio",
		"AUDIO_FRAME_SIZE":   "2048",
	}
	c := Default()
	err := c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c.ASR.AppID != 118 || c.ASR.APIKey != "env-api" || c.ASR.SecretKey != "env-secret" {
		t.Errorf("credentials not applied: %+v", c.ASR)
	}
	if c.ASR.GetDevPID() != stt.DevPIDEnglish {
		t.Errorf("Expected English dev_pid, got %d", c.ASR.GetDevPID())
	}
	if c.Voice.GetMaxDuration() != time.Minute {
		t.Errorf("Expected 60s, got %s", c.Voice.GetMaxDuration())
	}
	if c.Audio.Backend != "miniaudio" || c.Audio.FrameSize != 2048 {
		t.Errorf("audio not applied: %+v", c.Audio)
	}

	bad := Default()
	err = bad.ApplyEnv(func(k string) (string, bool) {
		if k == "AUDIO_FRAME_SIZE" {
			return "big", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "AUDIO_FRAME_SIZE") {
		t.Errorf("Expected integer parse error, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
asr:
  api_key: file-api
  secret_key: file-secret
  language: yue
  token_ttl: 24h
voice:
  finish_grace: 250ms
http:
  address: ":8080"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("BAIDU_API_KEY", "")
	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.ASR.APIKey != "file-api" {
		t.Errorf("Expected api key from file, got %q", config.ASR.APIKey)
	}
	if config.ASR.GetTokenTTL() != 24*time.Hour {
		t.Errorf("Expected 24h TTL, got %s", config.ASR.GetTokenTTL())
	}
	if config.Voice.GetFinishGrace() != 250*time.Millisecond {
		t.Errorf("Expected 250ms grace, got %s", config.Voice.GetFinishGrace())
	}
	if config.Voice.GetMaxDuration() != 300*time.Second {
		t.Errorf("Expected default max duration to survive, got %s", config.Voice.GetMaxDuration())
	}
	if config.HTTP.Address != ":9090" {
		t.Errorf("Expected environment to override file, got %s", config.HTTP.Address)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

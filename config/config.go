// Package config loads the voice capture configuration from an optional YAML
// file, a .env file and the process environment, in increasing precedence.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mrsingh-rishi/voice-capture/auth"
	"github.com/mrsingh-rishi/voice-capture/stt"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	ASR     ASRConfig     `yaml:"asr"`
	Voice   VoiceConfig   `yaml:"voice"`
	Audio   AudioConfig   `yaml:"audio"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// ASRConfig contains recognition service credentials and endpoints
type ASRConfig struct {
	AppID      int    `yaml:"app_id"`
	APIKey     string `yaml:"api_key"`
	SecretKey  string `yaml:"secret_key"`
	CUID       string `yaml:"cuid"`
	TokenURL   string `yaml:"token_url"`
	OneShotURL string `yaml:"oneshot_url"`
	StreamURL  string `yaml:"stream_url"`
	TokenTTL   string `yaml:"token_ttl"`
	Language   string `yaml:"language"`
	// DevPID overrides the language mapping when non-zero.
	DevPID int `yaml:"dev_pid"`
}

// VoiceConfig contains capture session limits
type VoiceConfig struct {
	MaxDuration string `yaml:"max_duration"`
	FinishGrace string `yaml:"finish_grace"`
	MinFallback string `yaml:"min_fallback"`
	DebugWAVDir string `yaml:"debug_wav_dir"`
}

// AudioConfig selects the microphone backend
type AudioConfig struct {
	Backend   string `yaml:"backend"`
	Device    string `yaml:"device"`
	FrameSize int    `yaml:"frame_size"`
}

// HTTPConfig contains the control API listener
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig configures the standard logger
type LoggingConfig struct {
	Prefix string `yaml:"prefix"`
	Flags  int    `yaml:"flags"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ASR: ASRConfig{
			TokenURL:   auth.DefaultTokenURL,
			OneShotURL: stt.DefaultOneShotURL,
			StreamURL:  stt.DefaultStreamURL,
			TokenTTL:   auth.DefaultTTL.String(),
			Language:   "zh",
		},
		Voice: VoiceConfig{
			MaxDuration: "300s",
			FinishGrace: "500ms",
			MinFallback: "500ms",
		},
		Audio: AudioConfig{
			Backend:   "portaudio",
			FrameSize: 4096,
		},
		HTTP: HTTPConfig{
			Address: ":3000",
		},
		Logging: LoggingConfig{
			Flags: log.LstdFlags,
		},
	}
}

// Load reads .env, the optional YAML file at path and the environment, then validates.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return config, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"BAIDU_API_KEY":       &c.ASR.APIKey,
		"BAIDU_SECRET_KEY":    &c.ASR.SecretKey,
		"BAIDU_CUID":          &c.ASR.CUID,
		"ASR_TOKEN_URL":       &c.ASR.TokenURL,
		"ASR_ONESHOT_URL":     &c.ASR.OneShotURL,
		"ASR_STREAM_URL":      &c.ASR.StreamURL,
		"ASR_TOKEN_TTL":       &c.ASR.TokenTTL,
		"ASR_LANGUAGE":        &c.ASR.Language,
		"VOICE_MAX_DURATION":  &c.Voice.MaxDuration,
		"VOICE_FINISH_GRACE":  &c.Voice.FinishGrace,
		"VOICE_MIN_FALLBACK":  &c.Voice.MinFallback,
		"VOICE_DEBUG_WAV_DIR": &c.Voice.DebugWAVDir,
		"AUDIO_BACKEND":       &c.Audio.Backend,
		"AUDIO_DEVICE":        &c.Audio.Device,
		"HTTP_ADDR":           &c.HTTP.Address,
		"LOG_PREFIX":          &c.Logging.Prefix,
	}
	for key, field := range str {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"BAIDU_APP_ID":     &c.ASR.AppID,
		"ASR_DEV_PID":      &c.ASR.DevPID,
		"AUDIO_FRAME_SIZE": &c.Audio.FrameSize,
		"LOG_FLAGS":        &c.Logging.Flags,
	}
	for key, field := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s must be an integer", key)
		}
		*field = n
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.ASR.Validate(); err != nil {
		return errors.Wrap(err, "asr config")
	}
	if err := c.Voice.Validate(); err != nil {
		return errors.Wrap(err, "voice config")
	}
	if err := c.Audio.Validate(); err != nil {
		return errors.Wrap(err, "audio config")
	}
	if c.HTTP.Address == "" {
		return errors.New("http config: address cannot be empty")
	}
	return nil
}

// Validate validates recognition service configuration
func (a *ASRConfig) Validate() error {
	if a.APIKey == "" {
		return errors.New("api_key is required (BAIDU_API_KEY)")
	}
	if a.SecretKey == "" {
		return errors.New("secret_key is required (BAIDU_SECRET_KEY)")
	}
	if a.AppID < 0 {
		return errors.Errorf("app_id must not be negative, got %d", a.AppID)
	}
	if a.TokenURL == "" || a.OneShotURL == "" || a.StreamURL == "" {
		return errors.New("token_url, oneshot_url and stream_url cannot be empty")
	}
	ttl, err := time.ParseDuration(a.TokenTTL)
	if err != nil {
		return errors.Wrap(err, "invalid token_ttl")
	}
	if ttl <= 0 {
		return errors.Errorf("token_ttl must be positive, got %s", ttl)
	}
	return nil
}

// Validate validates capture session limits
func (v *VoiceConfig) Validate() error {
	for name, value := range map[string]string{
		"max_duration": v.MaxDuration,
		"finish_grace": v.FinishGrace,
		"min_fallback": v.MinFallback,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", name)
		}
		if d < 0 {
			return errors.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	return nil
}

// Validate validates the microphone backend selection
func (a *AudioConfig) Validate() error {
	switch a.Backend {
	case "portaudio", "miniaudio":
	default:
		return errors.Errorf("backend must be portaudio or miniaudio, got %q", a.Backend)
	}
	if a.FrameSize < 256 || a.FrameSize > 16384 {
		return errors.Errorf("frame_size must be between 256 and 16384 samples, got %d", a.FrameSize)
	}
	return nil
}

// GetTokenTTL returns the token validity window.
func (a *ASRConfig) GetTokenTTL() time.Duration {
	return mustDuration(a.TokenTTL)
}

// GetDevPID returns the explicit dev_pid or the one mapped from Language.
func (a *ASRConfig) GetDevPID() int {
	if a.DevPID != 0 {
		return a.DevPID
	}
	return stt.DevPID(a.Language)
}

// GetMaxDuration returns the session timeout.
func (v *VoiceConfig) GetMaxDuration() time.Duration {
	return mustDuration(v.MaxDuration)
}

// GetFinishGrace returns how long stop waits for late streaming results.
func (v *VoiceConfig) GetFinishGrace() time.Duration {
	return mustDuration(v.FinishGrace)
}

// GetMinFallback returns the shortest buffer worth submitting.
func (v *VoiceConfig) GetMinFallback() time.Duration {
	return mustDuration(v.MinFallback)
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

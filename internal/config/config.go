package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the relay service.
type Config struct {
	BindAddr         string
	PublicURL        string
	ShutdownTimeout  time.Duration
	HTTPTimeout      time.Duration
	MetricsNamespace string

	// SessionIdleTimeout bounds how long per-chat turn tracking outlives the last turn.
	SessionIdleTimeout time.Duration

	TelegramToken   string
	TelegramBaseURL string

	// EchoTranscription prefixes voice-turn replies with the recognized text.
	EchoTranscription bool

	WorkersAIAccountID string
	WorkersAIToken     string
	WorkersAIBaseURL   string
	ChatModel          string
	WhisperModel       string
	ImageModel         string

	TTS TTSConfig

	RedisURL    string
	DatabaseURL string
}

// TTSConfig holds the raw provider options. Values are validated by the
// voice package; anything it does not recognize falls back to provider defaults.
type TTSConfig struct {
	Provider         string
	Lang             string
	Speaker          string
	Encoding         string
	Container        string
	SampleRate       string
	BitRate          string
	SiliconFlowToken string
}

var (
	ErrMissingTelegramToken = errors.New("TG_TOKEN is required")
	ErrMissingAIBinding     = errors.New("CF_ACCOUNT_ID and CF_API_TOKEN are required")
	ErrMissingSiliconFlow   = errors.New("SILICONFLOW_TOKEN is required when the siliconflow tts provider is selected")
)

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		PublicURL:          strings.TrimRight(trimmedEnv("APP_PUBLIC_URL"), "/"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "tgvoicechat"),
		TelegramToken:      envFirst("TG_TOKEN", "tg_token"),
		TelegramBaseURL:    envOrDefault("TG_API_BASE_URL", "https://api.telegram.org"),
		WorkersAIAccountID: envFirst("CF_ACCOUNT_ID"),
		WorkersAIToken:     envFirst("CF_API_TOKEN"),
		WorkersAIBaseURL:   envOrDefault("CF_API_BASE_URL", "https://api.cloudflare.com/client/v4"),
		ChatModel:          envOrDefault("AI_CHAT_MODEL", "@cf/meta/llama-4-scout-17b-16e-instruct"),
		WhisperModel:       envOrDefault("AI_WHISPER_MODEL", "@cf/openai/whisper-large-v3-turbo"),
		ImageModel:         envOrDefault("AI_IMAGE_MODEL", "@cf/leonardo/lucid-origin"),
		TTS: TTSConfig{
			Provider:         envFirst("TTS_PROVIDER", "tts_provider"),
			Lang:             envFirst("TTS_LANG", "tts_lang"),
			Speaker:          envFirst("TTS_SPEAKER", "tts_speaker"),
			Encoding:         envFirst("TTS_ENCODING", "tts_encoding"),
			Container:        envFirst("TTS_CONTAINER", "tts_container"),
			SampleRate:       envFirst("TTS_SAMPLE_RATE", "tts_sample_rate"),
			BitRate:          envFirst("TTS_BIT_RATE", "tts_bit_rate"),
			SiliconFlowToken: envFirst("SILICONFLOW_TOKEN", "siliconflow_token"),
		},
		RedisURL:           trimmedEnv("REDIS_URL"),
		DatabaseURL:        trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:    15 * time.Second,
		SessionIdleTimeout: 30 * time.Minute,
		EchoTranscription:  true,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTPTimeout, err = durationFromEnv("APP_HTTP_TIMEOUT", cfg.HTTPTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EchoTranscription, err = boolFromEnv("TG_ECHO_TRANSCRIPTION", cfg.EchoTranscription)
	if err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout < 0 {
		return Config{}, fmt.Errorf("APP_HTTP_TIMEOUT must be >= 0")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing required settings. The siliconflow credential is
// only required when the resolved tts provider needs it.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return ErrMissingTelegramToken
	}
	if c.WorkersAIAccountID == "" || c.WorkersAIToken == "" {
		return ErrMissingAIBinding
	}
	if c.TTS.RequiresSiliconFlow() && c.TTS.SiliconFlowToken == "" {
		return ErrMissingSiliconFlow
	}
	return nil
}

// RequiresSiliconFlow reports whether the credential is mandatory. Without an
// explicit choice the provider only resolves to siliconflow when the
// credential is already present.
func (t TTSConfig) RequiresSiliconFlow() bool {
	return strings.EqualFold(strings.TrimSpace(t.Provider), "siliconflow")
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// envFirst returns the first non-empty trimmed value among keys.
func envFirst(keys ...string) string {
	for _, key := range keys {
		if v := trimmedEnv(key); v != "" {
			return v
		}
	}
	return ""
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

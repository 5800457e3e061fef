// Package config handles audio service configuration
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Inference collaborators
	InferenceAddr    string        `yaml:"inference_addr"`
	Transcriber      string        `yaml:"transcriber"` // "grpc" or "openai"
	WhisperModel     string        `yaml:"whisper_model"`
	ComputeDevice    string        `yaml:"compute_device"`
	OpenAIAPIKey     string        `yaml:"openai_api_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	InferenceTimeout time.Duration `yaml:"inference_timeout"` // 0 disables
	ExclusiveModel   bool          `yaml:"exclusive_model"`

	// Conversion
	FFmpegPath               string        `yaml:"ffmpeg_path"`
	ConversionTimeout        time.Duration `yaml:"conversion_timeout"`
	MaxConcurrentConversions int64         `yaml:"max_concurrent_conversions"` // 0 = unbounded
	MinAudioBytes            int           `yaml:"min_audio_bytes"`
	MaxUploadBytes           int64         `yaml:"max_upload_bytes"`
	TempDir                  string        `yaml:"temp_dir"`
	DefaultNumSpeakers       int           `yaml:"default_num_speakers"`

	// Realtime sessions
	TriggerSeconds  float64 `yaml:"trigger_seconds"`
	MaxBufferBytes  int     `yaml:"max_buffer_bytes"` // 0 disables the guard
	WSInboxSize     int     `yaml:"ws_inbox_size"`
	WSMaxFrameBytes int64   `yaml:"ws_max_frame_bytes"`
	WSRateLimit     int     `yaml:"ws_rate_limit"` // messages per second, 0 disables

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" or "json"
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		HTTPAddr:                 ":8002",
		AllowedOrigins:           []string{"*"},
		InferenceAddr:            "localhost:50051",
		Transcriber:              TranscriberGRPC,
		WhisperModel:             "small",
		ComputeDevice:            "auto",
		FFmpegPath:               "ffmpeg",
		ConversionTimeout:        20 * time.Second,
		MinAudioBytes:            1024,
		MaxUploadBytes:           32 << 20,
		DefaultNumSpeakers:       2,
		TriggerSeconds:           3,
		MaxBufferBytes:           960000,
		WSInboxSize:              32,
		WSMaxFrameBytes:          4 << 20,
		WSRateLimit:              50,
		LogLevel:                 "info",
		LogFormat:                "text",
		MaxConcurrentConversions: 0,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variables. A .env file in the working directory is
// loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.InferenceAddr = getEnv("INFERENCE_ADDR", c.InferenceAddr)
	c.Transcriber = getEnv("TRANSCRIBER", c.Transcriber)
	c.WhisperModel = getEnv("WHISPER_MODEL", c.WhisperModel)
	c.ComputeDevice = getEnv("COMPUTE_DEVICE", c.ComputeDevice)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.InferenceTimeout = getEnvDuration("INFERENCE_TIMEOUT", c.InferenceTimeout)
	c.ExclusiveModel = getEnvBool("EXCLUSIVE_MODEL", c.ExclusiveModel)
	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.ConversionTimeout = getEnvDuration("CONVERSION_TIMEOUT", c.ConversionTimeout)
	c.MaxConcurrentConversions = int64(getEnvInt("MAX_CONCURRENT_CONVERSIONS", int(c.MaxConcurrentConversions)))
	c.MinAudioBytes = getEnvInt("MIN_AUDIO_BYTES", c.MinAudioBytes)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.TempDir = getEnv("TEMP_DIR", c.TempDir)
	c.DefaultNumSpeakers = getEnvInt("DEFAULT_NUM_SPEAKERS", c.DefaultNumSpeakers)
	c.TriggerSeconds = getEnvFloat("TRIGGER_SECONDS", c.TriggerSeconds)
	c.MaxBufferBytes = getEnvInt("MAX_BUFFER_BYTES", c.MaxBufferBytes)
	c.WSInboxSize = getEnvInt("WS_INBOX_SIZE", c.WSInboxSize)
	c.WSMaxFrameBytes = int64(getEnvInt("WS_MAX_FRAME_BYTES", int(c.WSMaxFrameBytes)))
	c.WSRateLimit = getEnvInt("WS_RATE_LIMIT", c.WSRateLimit)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// TriggerBytes is the realtime buffer size that triggers a transcription
// pass: trigger duration x sample rate x bytes per sample.
func (c *Config) TriggerBytes() int {
	return int(c.TriggerSeconds * SampleRate * BytesPerSample)
}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	switch c.Transcriber {
	case TranscriberGRPC:
		if c.InferenceAddr == "" {
			return fmt.Errorf("transcriber %q requires INFERENCE_ADDR", c.Transcriber)
		}
	case TranscriberOpenAI:
	default:
		return fmt.Errorf("unknown transcriber %q", c.Transcriber)
	}
	if c.ConversionTimeout <= 0 {
		return fmt.Errorf("conversion timeout must be positive, got %v", c.ConversionTimeout)
	}
	if c.TriggerSeconds <= 0 {
		return fmt.Errorf("trigger seconds must be positive, got %v", c.TriggerSeconds)
	}
	if c.MaxBufferBytes < 0 {
		return fmt.Errorf("max buffer bytes must not be negative, got %d", c.MaxBufferBytes)
	}
	// Zero leaves the realtime buffer unbounded.
	if c.MaxBufferBytes != 0 && c.MaxBufferBytes < c.TriggerBytes() {
		return fmt.Errorf("max buffer bytes %d is below the trigger threshold %d", c.MaxBufferBytes, c.TriggerBytes())
	}
	if c.MinAudioBytes < 0 {
		return fmt.Errorf("min audio bytes must not be negative, got %d", c.MinAudioBytes)
	}
	if c.WSInboxSize <= 0 {
		return fmt.Errorf("websocket inbox size must be positive, got %d", c.WSInboxSize)
	}
	if c.DefaultNumSpeakers <= 0 {
		return fmt.Errorf("default speaker count must be positive, got %d", c.DefaultNumSpeakers)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvDuration accepts Go durations ("20s") or plain seconds ("20").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}

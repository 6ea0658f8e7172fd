package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultThreshold           = 5
	DefaultSilence             = 2 * time.Second
	DefaultExpectSpeechTimeout = 30 * time.Second
	DefaultSampleRate          = 16000
	DefaultChannels            = 1
	DefaultChunkSize           = 3200
	DefaultHTTPAddr            = "127.0.0.1:8765"
	DefaultLogLevel            = "info"

	minChunkSize = 256
)

// Config stores runtime configuration for the listening daemon.
type Config struct {
	Endpoint   EndpointConfig
	Audio      AudioConfig
	Directives DirectivesConfig
	HTTP       HTTPConfig
	LogLevel   string

	// Path is the YAML file the configuration was read from, if any.
	Path string
}

type EndpointConfig struct {
	Threshold           int
	Silence             time.Duration
	ExpectSpeechTimeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type DirectivesConfig struct {
	URL   string
	Token string
}

type HTTPConfig struct {
	Addr string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint: EndpointConfig{
			Threshold:           DefaultThreshold,
			Silence:             DefaultSilence,
			ExpectSpeechTimeout: DefaultExpectSpeechTimeout,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      DefaultSampleRate,
			Channels:        DefaultChannels,
			ChunkSize:       DefaultChunkSize,
		},
		HTTP:     HTTPConfig{Addr: DefaultHTTPAddr},
		LogLevel: DefaultLogLevel,
	}
}

// Load resolves configuration from defaults, an optional YAML file and the
// environment, in that order. An empty path falls back to HOTMIC_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()

	path = firstNonEmpty(path, os.Getenv("HOTMIC_CONFIG"))
	if path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := file.Validate(); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		file.apply(&cfg)
		cfg.Path = path
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Endpoint.Threshold = envOrDefaultInt("HOTMIC_ENDPOINT_THRESHOLD", cfg.Endpoint.Threshold)
	cfg.Endpoint.Silence = envOrDefaultMillis("HOTMIC_ENDPOINT_SILENCE_MS", cfg.Endpoint.Silence)
	cfg.Endpoint.ExpectSpeechTimeout = envOrDefaultMillis("HOTMIC_EXPECT_SPEECH_TIMEOUT_MS", cfg.Endpoint.ExpectSpeechTimeout)

	cfg.Audio.RecorderCommand = envOrDefault("HOTMIC_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("HOTMIC_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("HOTMIC_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("HOTMIC_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("HOTMIC_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkSize = envOrDefaultInt("HOTMIC_AUDIO_CHUNK_SIZE", cfg.Audio.ChunkSize)

	cfg.Directives.URL = envOrDefault("HOTMIC_DIRECTIVES_URL", cfg.Directives.URL)
	cfg.Directives.Token = envOrDefault("HOTMIC_DIRECTIVES_TOKEN", cfg.Directives.Token)
	cfg.HTTP.Addr = envOrDefault("HOTMIC_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
}

// normalize replaces out-of-range values with defaults.
func normalize(cfg *Config) {
	if cfg.Endpoint.Threshold < 0 {
		cfg.Endpoint.Threshold = DefaultThreshold
	}
	if cfg.Endpoint.Silence <= 0 {
		cfg.Endpoint.Silence = DefaultSilence
	}
	if cfg.Endpoint.ExpectSpeechTimeout <= 0 {
		cfg.Endpoint.ExpectSpeechTimeout = DefaultExpectSpeechTimeout
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = DefaultChannels
	}
	if cfg.Audio.ChunkSize < minChunkSize {
		cfg.Audio.ChunkSize = DefaultChunkSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

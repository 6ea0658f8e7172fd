package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML layout. Unset fields keep the value from the
// previous layer.
type FileConfig struct {
	Endpoint struct {
		Threshold             *int `yaml:"threshold"`
		SilenceMs             *int `yaml:"silenceMs"`
		ExpectSpeechTimeoutMs *int `yaml:"expectSpeechTimeoutMs"`
	} `yaml:"endpoint"`
	Audio struct {
		FFmpegCommand string `yaml:"ffmpegCommand"`
		InputFormat   string `yaml:"inputFormat"`
		InputDevice   string `yaml:"inputDevice"`
		SampleRate    *int   `yaml:"sampleRate"`
		Channels      *int   `yaml:"channels"`
		ChunkSize     *int   `yaml:"chunkSize"`
	} `yaml:"audio"`
	Directives struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"directives"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	LogLevel string `yaml:"logLevel"`
}

// LoadFile decodes path strictly; unknown keys are errors.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return &fc, nil
}

// Validate rejects values a file must never carry.
func (fc *FileConfig) Validate() error {
	var errs []error
	if v := fc.Endpoint.Threshold; v != nil && *v < 0 {
		errs = append(errs, fmt.Errorf("endpoint.threshold must be >= 0, got %d", *v))
	}
	if v := fc.Endpoint.SilenceMs; v != nil && *v <= 0 {
		errs = append(errs, fmt.Errorf("endpoint.silenceMs must be > 0, got %d", *v))
	}
	if v := fc.Endpoint.ExpectSpeechTimeoutMs; v != nil && *v <= 0 {
		errs = append(errs, fmt.Errorf("endpoint.expectSpeechTimeoutMs must be > 0, got %d", *v))
	}
	if v := fc.Audio.SampleRate; v != nil && *v <= 0 {
		errs = append(errs, fmt.Errorf("audio.sampleRate must be > 0, got %d", *v))
	}
	if v := fc.Audio.Channels; v != nil && *v <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be > 0, got %d", *v))
	}
	if v := fc.Audio.ChunkSize; v != nil && *v < minChunkSize {
		errs = append(errs, fmt.Errorf("audio.chunkSize must be >= %d, got %d", minChunkSize, *v))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (fc *FileConfig) apply(cfg *Config) {
	if v := fc.Endpoint.Threshold; v != nil {
		cfg.Endpoint.Threshold = *v
	}
	if v := fc.Endpoint.SilenceMs; v != nil {
		cfg.Endpoint.Silence = time.Duration(*v) * time.Millisecond
	}
	if v := fc.Endpoint.ExpectSpeechTimeoutMs; v != nil {
		cfg.Endpoint.ExpectSpeechTimeout = time.Duration(*v) * time.Millisecond
	}

	cfg.Audio.RecorderCommand = firstNonEmpty(fc.Audio.FFmpegCommand, cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = firstNonEmpty(fc.Audio.InputFormat, cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(fc.Audio.InputDevice, cfg.Audio.InputDevice)
	if v := fc.Audio.SampleRate; v != nil {
		cfg.Audio.SampleRate = *v
	}
	if v := fc.Audio.Channels; v != nil {
		cfg.Audio.Channels = *v
	}
	if v := fc.Audio.ChunkSize; v != nil {
		cfg.Audio.ChunkSize = *v
	}

	cfg.Directives.URL = firstNonEmpty(fc.Directives.URL, cfg.Directives.URL)
	cfg.Directives.Token = firstNonEmpty(fc.Directives.Token, cfg.Directives.Token)
	cfg.HTTP.Addr = firstNonEmpty(fc.HTTP.Addr, cfg.HTTP.Addr)
	cfg.LogLevel = firstNonEmpty(fc.LogLevel, cfg.LogLevel)
}

// Render encodes cfg in the file layout, for the config command.
func Render(cfg Config) ([]byte, error) {
	var fc FileConfig
	threshold := cfg.Endpoint.Threshold
	silence := int(cfg.Endpoint.Silence / time.Millisecond)
	expect := int(cfg.Endpoint.ExpectSpeechTimeout / time.Millisecond)
	sampleRate, channels, chunk := cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.ChunkSize

	fc.Endpoint.Threshold = &threshold
	fc.Endpoint.SilenceMs = &silence
	fc.Endpoint.ExpectSpeechTimeoutMs = &expect
	fc.Audio.FFmpegCommand = cfg.Audio.RecorderCommand
	fc.Audio.InputFormat = cfg.Audio.InputFormat
	fc.Audio.InputDevice = cfg.Audio.InputDevice
	fc.Audio.SampleRate = &sampleRate
	fc.Audio.Channels = &channels
	fc.Audio.ChunkSize = &chunk
	fc.Directives.URL = cfg.Directives.URL
	if cfg.Directives.Token != "" {
		fc.Directives.Token = "***"
	}
	fc.HTTP.Addr = cfg.HTTP.Addr
	fc.LogLevel = cfg.LogLevel

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&fc); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

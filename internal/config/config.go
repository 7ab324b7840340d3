package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Assembler     AssemblerConfig     `yaml:"assembler"`
	Session       SessionConfig       `yaml:"session"`
	Lookup        LookupConfig        `yaml:"lookup"`
	Dictionary    DictionaryConfig    `yaml:"dictionary"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig contains microphone capture parameters
type CaptureConfig struct {
	SampleRate   int `yaml:"sample_rate"`   // Hz
	FrameSize    int `yaml:"frame_size"`    // samples per frame
	MeterWindow  int `yaml:"meter_window"`  // samples per amplitude analysis window
	PollInterval int `yaml:"poll_interval"` // milliseconds between boundary evaluations
}

// VADConfig contains voice activity detection parameters
type VADConfig struct {
	Threshold       float64 `yaml:"threshold"`         // speech threshold on the 0-255 RMS scale
	SilenceMs       int     `yaml:"silence_ms"`        // silence needed to close a speech chunk
	MaxChunkMs      int     `yaml:"max_chunk_ms"`      // hard cap on chunk duration
	MinChunkSamples int     `yaml:"min_chunk_samples"` // chunks shorter than this are dropped
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"` // source language hint, or "auto"
	Timeout  int    `yaml:"timeout"`  // seconds
}

// AssemblerConfig contains utterance assembly and auto-submit parameters
type AssemblerConfig struct {
	WordLimit    int `yaml:"word_limit"`    // submit immediately above this word count
	InactivityMs int `yaml:"inactivity_ms"` // submit after this long without new fragments
}

// SessionConfig contains idle shutdown parameters
type SessionConfig struct {
	IdleShutdownSec int `yaml:"idle_shutdown_sec"` // seconds of inactivity before forced stop
}

// LookupConfig contains semantic lookup API configuration
type LookupConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"` // empty uses the provider default
	Model      string `yaml:"model"`
	SourceLang string `yaml:"source_lang"`
	TargetLang string `yaml:"target_lang"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// DictionaryConfig contains word store configuration
type DictionaryConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig contains control/status API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. Values of the form ${NAME}
// are expanded from the environment so API keys can stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.FrameSize == 0 {
		c.Capture.FrameSize = 4096
	}
	if c.Capture.MeterWindow == 0 {
		c.Capture.MeterWindow = 2048
	}
	if c.Capture.PollInterval == 0 {
		c.Capture.PollInterval = 50
	}
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = 35
	}
	if c.VAD.SilenceMs == 0 {
		c.VAD.SilenceMs = 1000
	}
	if c.VAD.MaxChunkMs == 0 {
		c.VAD.MaxChunkMs = 6000
	}
	if c.VAD.MinChunkSamples == 0 {
		c.VAD.MinChunkSamples = 4000
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "whisper-1"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "auto"
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 30
	}
	if c.Assembler.WordLimit == 0 {
		c.Assembler.WordLimit = 5
	}
	if c.Assembler.InactivityMs == 0 {
		c.Assembler.InactivityMs = 3000
	}
	if c.Session.IdleShutdownSec == 0 {
		c.Session.IdleShutdownSec = 60
	}
	if c.Lookup.Model == "" {
		c.Lookup.Model = "gpt-4o-mini"
	}
	if c.Lookup.SourceLang == "" {
		c.Lookup.SourceLang = "no"
	}
	if c.Lookup.TargetLang == "" {
		c.Lookup.TargetLang = "uk"
	}
	if c.Lookup.Timeout == 0 {
		c.Lookup.Timeout = 30
	}
	if c.Dictionary.Path == "" {
		c.Dictionary.Path = "dictionary.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Assembler.Validate(); err != nil {
		return fmt.Errorf("assembler config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Lookup.Validate(); err != nil {
		return fmt.Errorf("lookup config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", c.SampleRate)
	}

	if c.FrameSize < 256 || c.FrameSize > 16384 {
		return fmt.Errorf("frame_size must be between 256 and 16384 samples, got %d", c.FrameSize)
	}

	if c.MeterWindow < 256 || c.MeterWindow > c.FrameSize {
		return fmt.Errorf("meter_window must be between 256 and frame_size (%d), got %d", c.FrameSize, c.MeterWindow)
	}

	if c.PollInterval < 10 || c.PollInterval > 1000 {
		return fmt.Errorf("poll_interval must be between 10 and 1000 ms, got %d", c.PollInterval)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold <= 0 || v.Threshold > 255 {
		return fmt.Errorf("threshold must be between 0 and 255, got %f", v.Threshold)
	}

	if v.SilenceMs < 100 {
		return fmt.Errorf("silence_ms must be at least 100, got %d", v.SilenceMs)
	}

	if v.MaxChunkMs <= v.SilenceMs {
		return fmt.Errorf("max_chunk_ms (%d) must be greater than silence_ms (%d)", v.MaxChunkMs, v.SilenceMs)
	}

	if v.MinChunkSamples < 0 {
		return fmt.Errorf("min_chunk_samples cannot be negative, got %d", v.MinChunkSamples)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates assembler configuration
func (a *AssemblerConfig) Validate() error {
	if a.WordLimit < 1 {
		return fmt.Errorf("word_limit must be at least 1, got %d", a.WordLimit)
	}

	if a.InactivityMs < 100 {
		return fmt.Errorf("inactivity_ms must be at least 100, got %d", a.InactivityMs)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.IdleShutdownSec < 5 {
		return fmt.Errorf("idle_shutdown_sec must be at least 5, got %d", s.IdleShutdownSec)
	}

	return nil
}

// Validate validates lookup configuration
func (l *LookupConfig) Validate() error {
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if l.SourceLang == "" || l.TargetLang == "" {
		return fmt.Errorf("source_lang and target_lang cannot be empty")
	}

	if l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetPollInterval returns the boundary polling cadence as a time.Duration
func (c *CaptureConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// GetSilenceWindow returns the chunk-closing silence window as a time.Duration
func (v *VADConfig) GetSilenceWindow() time.Duration {
	return time.Duration(v.SilenceMs) * time.Millisecond
}

// GetMaxChunkDuration returns the maximum chunk duration as a time.Duration
func (v *VADConfig) GetMaxChunkDuration() time.Duration {
	return time.Duration(v.MaxChunkMs) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetInactivityWindow returns the auto-submit inactivity window as a time.Duration
func (a *AssemblerConfig) GetInactivityWindow() time.Duration {
	return time.Duration(a.InactivityMs) * time.Millisecond
}

// GetIdleShutdown returns the idle shutdown countdown as a time.Duration
func (s *SessionConfig) GetIdleShutdown() time.Duration {
	return time.Duration(s.IdleShutdownSec) * time.Second
}

// GetTimeoutDuration returns the lookup timeout as a time.Duration
func (l *LookupConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

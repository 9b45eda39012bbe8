package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig stores HTTP listener specific configurations.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// OpenAIConfig stores OpenAI specific configurations.
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	RealtimeModel   string `yaml:"realtime_model"`
	ReasoningModel  string `yaml:"reasoning_model"`
	TranscribeModel string `yaml:"transcribe_model"`
	PricesPath      string `yaml:"prices_path"`
}

// GatewayConfig tunes the realtime intake sessions.
type GatewayConfig struct {
	Voice                 string  `yaml:"voice"`
	Temperature           float32 `yaml:"temperature"`
	VADThreshold          float32 `yaml:"vad_threshold"`
	VADPrefixPaddingMs    int     `yaml:"vad_prefix_padding_ms"`
	VADSilenceDurationMs  int     `yaml:"vad_silence_duration_ms"`
	MaxConcurrentSessions int     `yaml:"max_concurrent_sessions"`
	InactivityTimeout     int     `yaml:"inactivity_timeout"`   // seconds
	MaxSessionLength      int     `yaml:"max_session_length"`   // minutes
	MaxCostPerSession     float64 `yaml:"max_cost_per_session"` // USD, 0 disables the cap
	TrackSessionCosts     bool    `yaml:"track_session_costs"`
	DebugAudioDir         string  `yaml:"debug_audio_dir"`
}

// IntakeConfig stores prompt and notes specific configurations.
type IntakeConfig struct {
	PromptPath         string `yaml:"prompt_path"`
	MaxNotesLen        int    `yaml:"max_notes_len"`
	NotesDebounceMs    int    `yaml:"notes_debounce_ms"`
	MaxTrackedSessions int    `yaml:"max_tracked_sessions"`
}

// VisitConfig stores the EHR feedback writer configurations.
type VisitConfig struct {
	BaseURL        string `yaml:"base_url"`
	Table          string `yaml:"table"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Config stores the application configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	OpenAI   OpenAIConfig  `yaml:"openai"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Intake   IntakeConfig  `yaml:"intake"`
	Visit    VisitConfig   `yaml:"visit"`
	LogLevel string        `yaml:"log_level"`
}

// LoadConfig loads the configuration from the given file path.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.OpenAI.RealtimeModel == "" {
		c.OpenAI.RealtimeModel = "gpt-4o-realtime-preview-2024-12-17"
	}
	if c.OpenAI.ReasoningModel == "" {
		c.OpenAI.ReasoningModel = "gpt-4o-mini"
	}
	if c.OpenAI.TranscribeModel == "" {
		c.OpenAI.TranscribeModel = "gpt-4o-mini-transcribe"
	}
	if c.Gateway.Voice == "" {
		c.Gateway.Voice = "verse"
	}
	if c.Gateway.Temperature == 0 {
		c.Gateway.Temperature = 0.6
	}
	if c.Gateway.VADThreshold == 0 {
		c.Gateway.VADThreshold = 0.9
	}
	if c.Gateway.VADPrefixPaddingMs == 0 {
		c.Gateway.VADPrefixPaddingMs = 170
	}
	if c.Gateway.VADSilenceDurationMs == 0 {
		c.Gateway.VADSilenceDurationMs = 1500
	}
	if c.Gateway.MaxConcurrentSessions == 0 {
		c.Gateway.MaxConcurrentSessions = 10
	}
	if c.Gateway.InactivityTimeout == 0 {
		c.Gateway.InactivityTimeout = 120
	}
	if c.Gateway.MaxSessionLength == 0 {
		c.Gateway.MaxSessionLength = 30
	}
	if c.Intake.MaxNotesLen == 0 {
		c.Intake.MaxNotesLen = 12000
	}
	if c.Intake.NotesDebounceMs == 0 {
		c.Intake.NotesDebounceMs = 400
	}
	if c.Intake.MaxTrackedSessions == 0 {
		c.Intake.MaxTrackedSessions = 256
	}
	if c.Visit.Table == "" {
		c.Visit.Table = "patient_feedback"
	}
	if c.Visit.TimeoutSeconds == 0 {
		c.Visit.TimeoutSeconds = 15
	}
}

// InactivityTimeoutDuration returns the session inactivity limit as a time.Duration.
func (g GatewayConfig) InactivityTimeoutDuration() time.Duration {
	return time.Duration(g.InactivityTimeout) * time.Second
}

// MaxSessionDuration returns the maximum session length as a time.Duration.
func (g GatewayConfig) MaxSessionDuration() time.Duration {
	return time.Duration(g.MaxSessionLength) * time.Minute
}

// NotesDebounce returns the live-notes push debounce as a time.Duration.
func (i IntakeConfig) NotesDebounce() time.Duration {
	return time.Duration(i.NotesDebounceMs) * time.Millisecond
}

// Timeout returns the visit writer request timeout as a time.Duration.
func (v VisitConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSeconds) * time.Second
}

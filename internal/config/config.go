// Package config resolves runtime configuration from environment variables
// with sensible defaults.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the pipeline.
type Config struct {
	Speech  SpeechConfig
	Assist  AssistConfig
	Search  SearchConfig
	Audio   AudioConfig
	Store   StoreConfig
	Session SessionConfig
	Workers WorkersConfig
}

type SpeechConfig struct {
	APIKey            string
	APIBaseURL        string
	Model             string
	LanguageIn        string
	LanguageOut       string
	InterimResults    bool
	Diarize           bool
	PhraseHints       []string
	KeepAliveInterval time.Duration
}

type AssistConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	TokenTTL time.Duration
}

type SearchConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string

	InputFormat  string
	MicDevice    string
	SystemDevice string
	SampleRate   int
	Channels     int
	MicFilters   string
}

type StoreConfig struct {
	Path string
}

type SessionConfig struct {
	Mode           string
	OwnerID        string
	AnswerMode     string
	ChunkSize      int
	StreamingGrace time.Duration
}

// WorkerPolicy mirrors the per-use-case enrichment constants: batch size,
// debounce delay, session call cap and context window.
type WorkerPolicy struct {
	BatchSize     int
	Debounce      time.Duration
	SessionCap    int
	ContextWindow int
}

type WorkersConfig struct {
	Correction WorkerPolicy
	Cues       WorkerPolicy
	DeepAnswer WorkerPolicy
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	storePath := strings.TrimSpace(os.Getenv("LIVESCRIBE_DB_PATH"))
	if storePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, errors.New("could not determine home directory")
		}
		storePath = filepath.Join(home, ".local", "share", "livescribe", "recordings.db")
	}

	cfg := Config{
		Speech: SpeechConfig{
			APIKey:            strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:        envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:             envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			LanguageIn:        envOrDefault("LIVESCRIBE_LANGUAGE", "en-US"),
			LanguageOut:       strings.TrimSpace(os.Getenv("LIVESCRIBE_TRANSLATE_TO")),
			InterimResults:    envOrDefaultBool("LIVESCRIBE_INTERIM_RESULTS", true),
			Diarize:           envOrDefaultBool("LIVESCRIBE_DIARIZE", false),
			PhraseHints:       splitList(os.Getenv("LIVESCRIBE_PHRASE_HINTS")),
			KeepAliveInterval: time.Duration(envOrDefaultInt("LIVESCRIBE_KEEPALIVE_MS", 5000)) * time.Millisecond,
		},
		Assist: AssistConfig{
			BaseURL:  strings.TrimSpace(os.Getenv("LIVESCRIBE_ASSIST_BASE")),
			APIKey:   strings.TrimSpace(os.Getenv("LIVESCRIBE_ASSIST_API_KEY")),
			Timeout:  time.Duration(envOrDefaultInt("LIVESCRIBE_ASSIST_TIMEOUT_MS", 30000)) * time.Millisecond,
			TokenTTL: time.Duration(envOrDefaultInt("LIVESCRIBE_ASSIST_TOKEN_TTL_MS", 600000)) * time.Millisecond,
		},
		Search: SearchConfig{
			BaseURL: strings.TrimSpace(os.Getenv("LIVESCRIBE_SEARCH_BASE")),
			APIKey:  strings.TrimSpace(os.Getenv("LIVESCRIBE_SEARCH_API_KEY")),
			Timeout: time.Duration(envOrDefaultInt("LIVESCRIBE_SEARCH_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("LIVESCRIBE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("LIVESCRIBE_AUDIO_INPUT_FORMAT", "pulse"),
			MicDevice: firstNonEmpty(
				os.Getenv("LIVESCRIBE_MIC_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
				"default",
			),
			SystemDevice: strings.TrimSpace(os.Getenv("LIVESCRIBE_SYSTEM_DEVICE")),
			SampleRate:   envOrDefaultInt("LIVESCRIBE_SAMPLE_RATE", 16000),
			Channels:     envOrDefaultInt("LIVESCRIBE_CHANNELS", 1),
			MicFilters:   strings.TrimSpace(os.Getenv("LIVESCRIBE_MIC_FILTERS")),
		},
		Store: StoreConfig{
			Path: storePath,
		},
		Session: SessionConfig{
			Mode:           envOrDefault("LIVESCRIBE_AUDIO_MODE", "mic"),
			OwnerID:        envOrDefault("LIVESCRIBE_OWNER_ID", "local"),
			AnswerMode:     envOrDefault("LIVESCRIBE_ANSWER_MODE", "balanced"),
			ChunkSize:      envOrDefaultInt("LIVESCRIBE_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace: time.Duration(envOrDefaultInt("LIVESCRIBE_STREAMING_GRACE_MS", 1000)) * time.Millisecond,
		},
		Workers: WorkersConfig{
			Correction: WorkerPolicy{
				BatchSize:     envOrDefaultInt("LIVESCRIBE_CORRECTION_BATCH", 5),
				Debounce:      time.Duration(envOrDefaultInt("LIVESCRIBE_CORRECTION_DEBOUNCE_MS", 2000)) * time.Millisecond,
				SessionCap:    envOrDefaultInt("LIVESCRIBE_CORRECTION_CAP", 10),
				ContextWindow: envOrDefaultInt("LIVESCRIBE_CORRECTION_WINDOW", 8),
			},
			Cues: WorkerPolicy{
				BatchSize:     envOrDefaultInt("LIVESCRIBE_CUES_BATCH", 3),
				Debounce:      time.Duration(envOrDefaultInt("LIVESCRIBE_CUES_DEBOUNCE_MS", 3000)) * time.Millisecond,
				SessionCap:    envOrDefaultInt("LIVESCRIBE_CUES_CAP", 6),
				ContextWindow: envOrDefaultInt("LIVESCRIBE_CUES_WINDOW", 6),
			},
			DeepAnswer: WorkerPolicy{
				Debounce:      time.Duration(envOrDefaultInt("LIVESCRIBE_ANSWER_DEBOUNCE_MS", 0)) * time.Millisecond,
				SessionCap:    envOrDefaultInt("LIVESCRIBE_ANSWER_CAP", 5),
				ContextWindow: envOrDefaultInt("LIVESCRIBE_ANSWER_WINDOW", 8),
			},
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}

	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

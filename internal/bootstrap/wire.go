// Package bootstrap assembles the runtime dependency graph.
package bootstrap

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"livescribe/internal/audio"
	"livescribe/internal/config"
	"livescribe/internal/domain"
	"livescribe/internal/enrich"
	"livescribe/internal/ports"
	"livescribe/internal/postsession"
	"livescribe/internal/providers/assist"
	"livescribe/internal/providers/speech"
	"livescribe/internal/store"
	"livescribe/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller  *usecase.SessionController
	Corrections *postsession.Pipeline
	Store       *store.Store
	Config      config.Config
	Logger      *zap.Logger
}

// Close releases everything Build opened.
func (s Services) Close() error {
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, logger *zap.Logger) (Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return Services{}, err
	}
	recordingStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		return Services{}, err
	}

	searchClient := assist.NewSearchClient(assist.SearchConfig{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Timeout: cfg.Search.Timeout,
	}, logger)
	assistClient := assist.NewClient(assist.Config{
		BaseURL:  cfg.Assist.BaseURL,
		APIKey:   cfg.Assist.APIKey,
		Timeout:  cfg.Assist.Timeout,
		TokenTTL: cfg.Assist.TokenTTL,
	}, searchClient, logger)

	corrections := postsession.NewPipeline(recordingStore, assistClient, logger)

	manager := audio.NewManager(
		audio.NewFFmpegStarter(cfg.Audio.RecorderCommand),
		audio.Config{
			InputFormat:  cfg.Audio.InputFormat,
			MicDevice:    cfg.Audio.MicDevice,
			SystemDevice: cfg.Audio.SystemDevice,
			SampleRate:   cfg.Audio.SampleRate,
			Channels:     cfg.Audio.Channels,
			MicFilters:   cfg.Audio.MicFilters,
		},
		logger,
	)

	provider := speech.NewProvider(speech.Config{
		APIKey:            cfg.Speech.APIKey,
		APIBaseURL:        cfg.Speech.APIBaseURL,
		Model:             cfg.Speech.Model,
		KeepAliveInterval: cfg.Speech.KeepAliveInterval,
	}, logger)

	controller := usecase.NewSessionController(
		manager,
		provider,
		assistClient,
		assistClient,
		assistClient,
		recordingStore,
		corrections,
		eventSink,
		usecase.Config{
			Mode: domain.AudioMode(cfg.Session.Mode),
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				LanguageIn:     cfg.Speech.LanguageIn,
				LanguageOut:    cfg.Speech.LanguageOut,
				InterimResults: cfg.Speech.InterimResults,
				Diarize:        cfg.Speech.Diarize,
				PhraseHints:    cfg.Speech.PhraseHints,
			},
			OwnerID:        cfg.Session.OwnerID,
			AnswerMode:     cfg.Session.AnswerMode,
			ChunkSize:      cfg.Session.ChunkSize,
			StreamingGrace: cfg.Session.StreamingGrace,
			Correction:     workerPolicy(cfg.Workers.Correction),
			Cues:           workerPolicy(cfg.Workers.Cues),
			DeepAnswer:     workerPolicy(cfg.Workers.DeepAnswer),
		},
		logger,
	)

	return Services{
		Controller:  controller,
		Corrections: corrections,
		Store:       recordingStore,
		Config:      cfg,
		Logger:      logger,
	}, nil
}

func workerPolicy(p config.WorkerPolicy) enrich.Policy {
	return enrich.Policy{
		BatchSize:     p.BatchSize,
		Debounce:      p.Debounce,
		SessionCap:    p.SessionCap,
		ContextWindow: p.ContextWindow,
	}
}

// Package audio acquires and mixes capture hardware for recording sessions.
// The Manager is the sole owner of every track it starts and of the mixing
// node joining them.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

// ErrNoSystemAudio is returned when system capture was granted without an
// audio track to share.
var ErrNoSystemAudio = errors.New("system audio was not shared")

// Config describes the capture devices available to the manager.
type Config struct {
	InputFormat  string
	MicDevice    string
	SystemDevice string
	SampleRate   int
	Channels     int

	// MicFilters is the echo-cancellation/noise-suppression chain applied
	// to microphone capture only.
	MicFilters string
}

// Manager implements ports.AudioSource over subprocess capture tracks.
type Manager struct {
	starter TrackStarter
	cfg     Config
	logger  *zap.Logger

	mu     sync.Mutex
	gen    int
	tracks []Track
	ended  chan error
}

func NewManager(starter TrackStarter, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MicFilters == "" {
		cfg.MicFilters = "highpass=f=80,afftdn,aecho=0.8:0.9:40:0.25"
	}
	return &Manager{starter: starter, cfg: cfg, logger: logger}
}

// Acquire starts capture for the requested mode and returns the single
// mixed stream. A previous acquisition, if any, is released first.
func (m *Manager) Acquire(ctx context.Context, mode domain.AudioMode) (ports.AudioStream, error) {
	m.Release()

	var reader io.Reader
	var tracks []Track
	var err error

	switch mode {
	case domain.AudioModeMic:
		var mic Track
		mic, err = m.startMic(ctx)
		if err == nil {
			reader = mic
			tracks = []Track{mic}
		}
	case domain.AudioModeSystem:
		var sys Track
		sys, err = m.startSystem(ctx)
		if err == nil {
			reader = sys
			tracks = []Track{sys}
		}
	case domain.AudioModeBoth:
		reader, tracks, err = m.startBoth(ctx)
	default:
		return nil, fmt.Errorf("unknown audio mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.tracks = tracks
	m.ended = make(chan error, 1)
	ended := m.ended
	m.mu.Unlock()

	for _, track := range tracks {
		go m.watchTrack(track, gen, ended)
	}

	m.logger.Info("audio acquired",
		zap.String("mode", string(mode)),
		zap.Int("tracks", len(tracks)),
	)
	return &managedStream{reader: reader, ended: ended}, nil
}

// Release stops every track the manager knows about and closes the mixing
// node. It is idempotent and swallows secondary errors during teardown.
func (m *Manager) Release() {
	m.mu.Lock()
	m.gen++
	tracks := m.tracks
	m.tracks = nil
	m.ended = nil
	m.mu.Unlock()

	for _, track := range tracks {
		if err := track.Stop(); err != nil {
			m.logger.Debug("track stop during release", zap.Error(err))
		}
	}
}

func (m *Manager) startMic(ctx context.Context) (Track, error) {
	track, err := m.starter.Start(ctx, TrackConfig{
		InputFormat: m.cfg.InputFormat,
		Device:      m.cfg.MicDevice,
		SampleRate:  m.cfg.SampleRate,
		Channels:    m.cfg.Channels,
		Filters:     m.cfg.MicFilters,
	})
	if err != nil {
		return nil, fmt.Errorf("microphone capture failed: %w", err)
	}
	return track, nil
}

func (m *Manager) startSystem(ctx context.Context) (Track, error) {
	if m.cfg.SystemDevice == "" {
		return nil, ErrNoSystemAudio
	}
	track, err := m.starter.Start(ctx, TrackConfig{
		InputFormat: m.cfg.InputFormat,
		Device:      m.cfg.SystemDevice,
		SampleRate:  m.cfg.SampleRate,
		Channels:    m.cfg.Channels,
	})
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrNoSystemAudio, err)
		}
		return nil, fmt.Errorf("system audio capture failed: %w", err)
	}
	return track, nil
}

func (m *Manager) startBoth(ctx context.Context) (io.Reader, []Track, error) {
	type result struct {
		track Track
		err   error
	}

	micCh := make(chan result, 1)
	sysCh := make(chan result, 1)
	go func() {
		track, err := m.startMic(ctx)
		micCh <- result{track, err}
	}()
	go func() {
		track, err := m.startSystem(ctx)
		sysCh <- result{track, err}
	}()

	mic := <-micCh
	sys := <-sysCh

	if mic.err != nil || sys.err != nil {
		// partial acquisition: stop whichever side succeeded
		if mic.track != nil {
			_ = mic.track.Stop()
		}
		if sys.track != nil {
			_ = sys.track.Stop()
		}
		if mic.err != nil {
			return nil, nil, mic.err
		}
		return nil, nil, sys.err
	}

	return newMixedStream(mic.track, sys.track), []Track{mic.track, sys.track}, nil
}

// watchTrack is the ended-observer: if a track's process exits while the
// acquisition is still current, the manager reports the error and
// force-releases everything it owns.
func (m *Manager) watchTrack(track Track, gen int, ended chan error) {
	<-track.Done()

	m.mu.Lock()
	stale := m.gen != gen
	m.mu.Unlock()
	if stale {
		return
	}

	err := track.Err()
	if err == nil {
		err = errors.New("audio capture ended unexpectedly")
	}
	m.logger.Warn("audio track ended", zap.Error(err))

	select {
	case ended <- err:
	default:
	}
	m.Release()
}

type managedStream struct {
	reader io.Reader
	ended  chan error
}

func (s *managedStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *managedStream) Ended() <-chan error {
	return s.ended
}

// Package speech wraps the streaming recognition/translation service behind
// ports.SpeechProvider.
package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

// ErrNotResumable is returned when the backend session ended while paused
// and cannot continue.
var ErrNotResumable = errors.New("recognition session can no longer be resumed")

// Config controls the recognition websocket.
type Config struct {
	APIKey            string
	APIBaseURL        string
	Model             string
	KeepAliveInterval time.Duration
}

// Provider implements ports.SpeechProvider.
type Provider struct {
	cfg    Config
	logger *zap.Logger
}

func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{cfg: cfg, logger: logger}
}

func (p *Provider) StartSession(ctx context.Context, cfg ports.StreamingConfig) (ports.SpeechSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("speech API key is not configured")
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to recognition websocket: %w", err)
	}

	session := &streamingSession{
		conn:      conn,
		logger:    p.logger,
		keepAlive: p.cfg.KeepAliveInterval,
		events:    make(chan domain.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		done:      make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return session, nil
}

type streamingSession struct {
	conn      *websocket.Conn
	logger    *zap.Logger
	keepAlive time.Duration

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	paused atomic.Bool

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// Pause stops forwarding audio while keeping the websocket alive.
func (s *streamingSession) Pause() error {
	s.paused.Store(true)
	return nil
}

// Resume reuses the existing session when the backend kept it open. If the
// session ended while paused the failure is explicit, never silent.
func (s *streamingSession) Resume() error {
	select {
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return fmt.Errorf("%w: %v", ErrNotResumable, err)
		}
		return ErrNotResumable
	default:
	}
	s.paused.Store(false)
	return nil
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	// a dropped backend during a pausing transition is expected; resume
	// reports the inability to continue instead
	if s.paused.Load() {
		s.logger.Debug("recognition session ended while paused", zap.Error(err))
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
					s.setErr(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if s.paused.Load() {
				continue
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("failed to send audio: %w", err))
				return
			}
		case <-ticker.C:
			if !s.paused.Load() {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				s.setErr(fmt.Errorf("failed to keep session alive: %w", err))
				return
			}
		}
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read recognition event: %w", err))
			return
		}

		var response recognitionResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "recognition service returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		event, ok := extractEvent(response)
		if !ok {
			continue
		}
		s.emit(event)
	}
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

type recognitionResponse struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`

	Channel struct {
		Alternatives []struct {
			Transcript  string `json:"transcript"`
			Translation string `json:"translation"`
			Words       []struct {
				Speaker *int `json:"speaker"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractEvent(response recognitionResponse) (domain.TranscriptEvent, bool) {
	if len(response.Channel.Alternatives) == 0 {
		return domain.TranscriptEvent{}, false
	}
	alt := response.Channel.Alternatives[0]

	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return domain.TranscriptEvent{}, false
	}

	event := domain.TranscriptEvent{
		Text:        text,
		Translation: strings.TrimSpace(alt.Translation),
		OffsetMs:    int64(response.Start * 1000),
	}
	if response.IsFinal || response.SpeechFinal {
		event.Kind = domain.TranscriptKindFinal
	} else {
		event.Kind = domain.TranscriptKindPartial
	}
	if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		event.SpeakerTag = fmt.Sprintf("speaker_%d", *alt.Words[0].Speaker)
	}
	return event, true
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid speech API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", streamCfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", streamCfg.Channels))
	query.Set("interim_results", fmt.Sprintf("%t", streamCfg.InterimResults))
	if streamCfg.LanguageIn != "" {
		query.Set("language", streamCfg.LanguageIn)
	}
	if streamCfg.LanguageOut != "" {
		query.Set("translate", streamCfg.LanguageOut)
	}
	if streamCfg.Diarize {
		query.Set("diarize", "true")
	}
	for _, hint := range streamCfg.PhraseHints {
		hint = strings.TrimSpace(hint)
		if hint != "" {
			query.Add("keywords", hint)
		}
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

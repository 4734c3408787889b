package speech

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{}, nil)
	if p.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", p.cfg.APIBaseURL)
	}
	if p.cfg.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", p.cfg.Model)
	}
	if p.cfg.KeepAliveInterval <= 0 {
		t.Fatalf("expected keepalive default")
	}
}

func TestProviderStartSessionRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{APIKey: ""}, nil)
	_, err := p.StartSession(context.Background(), ports.StreamingConfig{})
	if err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2"}, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(url, "wss://api.deepgram.com/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	if !strings.Contains(url, "encoding=linear16") {
		t.Fatalf("expected default encoding in url: %s", url)
	}
	if !strings.Contains(url, "sample_rate=16000") {
		t.Fatalf("expected default sample_rate in url: %s", url)
	}
}

func TestBuildListenURLWithTranslationAndHints(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(
		Config{APIBaseURL: "http://localhost:8080/v1", Model: "m"},
		ports.StreamingConfig{
			LanguageIn:     "en-US",
			LanguageOut:    "ja",
			Diarize:        true,
			InterimResults: true,
			PhraseHints:    []string{"kubernetes", " ", "grpc"},
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(url, "ws://localhost:8080/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	for _, fragment := range []string{"language=en-US", "translate=ja", "diarize=true", "keywords=kubernetes", "keywords=grpc"} {
		if !strings.Contains(url, fragment) {
			t.Fatalf("expected %q in url: %s", fragment, url)
		}
	}
	if strings.Count(url, "keywords=") != 2 {
		t.Fatalf("blank hints should be dropped: %s", url)
	}
}

func TestExtractEventPartialAndFinal(t *testing.T) {
	t.Parallel()

	var partial recognitionResponse
	partial.Start = 1.5
	partial.Channel.Alternatives = append(partial.Channel.Alternatives, alternative("hello", "こんにちは", nil))

	event, ok := extractEvent(partial)
	if !ok {
		t.Fatalf("expected event")
	}
	if event.Kind != domain.TranscriptKindPartial || event.Text != "hello" {
		t.Fatalf("unexpected partial event: %+v", event)
	}
	if event.Translation != "こんにちは" {
		t.Fatalf("expected translation carried: %+v", event)
	}
	if event.OffsetMs != 1500 {
		t.Fatalf("expected offset 1500ms, got %d", event.OffsetMs)
	}

	speaker := 1
	var final recognitionResponse
	final.IsFinal = true
	final.Channel.Alternatives = append(final.Channel.Alternatives, alternative("world", "", &speaker))

	event, ok = extractEvent(final)
	if !ok || event.Kind != domain.TranscriptKindFinal {
		t.Fatalf("unexpected final event: %+v ok=%v", event, ok)
	}
	if event.SpeakerTag != "speaker_1" {
		t.Fatalf("expected speaker tag, got %q", event.SpeakerTag)
	}
}

func TestExtractEventSkipsEmptyTranscript(t *testing.T) {
	t.Parallel()

	var response recognitionResponse
	response.Channel.Alternatives = append(response.Channel.Alternatives, alternative("  ", "", nil))
	if _, ok := extractEvent(response); ok {
		t.Fatalf("expected empty transcript to be skipped")
	}
	if _, ok := extractEvent(recognitionResponse{}); ok {
		t.Fatalf("expected missing alternatives to be skipped")
	}
}

func TestStreamingSessionSendAudioClosed(t *testing.T) {
	t.Parallel()

	s := &streamingSession{sendClosed: true}
	if err := s.SendAudio([]byte("x")); err == nil {
		t.Fatalf("expected closed error")
	}
}

func TestStreamingSessionCloseSendIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &streamingSession{audio: make(chan []byte, 1)}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
}

func TestStreamingSessionSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := newBareSession()
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(errors.New("boom"))
	if s.waitErr() == nil || s.waitErr().Error() != "boom" {
		t.Fatalf("expected non-close error to be captured")
	}
}

func TestStreamingSessionSetErrSwallowedWhilePaused(t *testing.T) {
	t.Parallel()

	s := newBareSession()
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	s.setErr(errors.New("backend hung up"))
	if s.waitErr() != nil {
		t.Fatalf("expected error swallowed during pause")
	}
}

func TestStreamingSessionResumeAfterEndFailsExplicitly(t *testing.T) {
	t.Parallel()

	s := newBareSession()
	_ = s.Pause()
	close(s.done)

	err := s.Resume()
	if !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected ErrNotResumable, got %v", err)
	}
}

func TestStreamingSessionResumeClearsPause(t *testing.T) {
	t.Parallel()

	s := newBareSession()
	_ = s.Pause()
	if !s.paused.Load() {
		t.Fatalf("expected paused")
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if s.paused.Load() {
		t.Fatalf("expected pause cleared")
	}
}

func newBareSession() *streamingSession {
	return &streamingSession{
		logger: zap.NewNop(),
		events: make(chan domain.TranscriptEvent, 1),
		audio:  make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

func alternative(text, translation string, speaker *int) struct {
	Transcript  string `json:"transcript"`
	Translation string `json:"translation"`
	Words       []struct {
		Speaker *int `json:"speaker"`
	} `json:"words"`
} {
	alt := struct {
		Transcript  string `json:"transcript"`
		Translation string `json:"translation"`
		Words       []struct {
			Speaker *int `json:"speaker"`
		} `json:"words"`
	}{Transcript: text, Translation: translation}
	if speaker != nil {
		alt.Words = append(alt.Words, struct {
			Speaker *int `json:"speaker"`
		}{Speaker: speaker})
	}
	return alt
}

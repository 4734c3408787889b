// Package ports declares the interfaces between the live pipeline and its
// collaborators. Implementations live under internal/audio, internal/providers
// and internal/store; tests substitute fakes.
package ports

import (
	"context"
	"errors"
	"io"

	"livescribe/internal/domain"
	"livescribe/internal/lifecycle"
)

// ErrEmptyResult marks a well-formed backend response with no usable
// content. Callers treat it as "nothing produced", not as a session error.
var ErrEmptyResult = errors.New("backend returned no usable content")

// AudioStream is a single mixed PCM stream produced by the source manager.
// Ended yields at most one error when the underlying hardware goes away
// outside an explicit release.
type AudioStream interface {
	io.Reader
	Ended() <-chan error
}

// AudioSource acquires and releases capture hardware. Release is idempotent
// and safe on partially-acquired state.
type AudioSource interface {
	Acquire(ctx context.Context, mode domain.AudioMode) (AudioStream, error)
	Release()
}

// StreamingConfig describes a recognition/translation session.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	LanguageIn     string
	LanguageOut    string
	InterimResults bool
	Diarize        bool
	PhraseHints    []string
}

// SpeechSession is an active recognition session. Pause keeps the session
// alive without consuming audio; Resume reuses it when the backend still
// allows continuation and fails explicitly otherwise.
type SpeechSession interface {
	SendAudio(chunk []byte) error
	Pause() error
	Resume() error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// SpeechProvider starts streaming recognition sessions.
type SpeechProvider interface {
	StartSession(ctx context.Context, cfg StreamingConfig) (SpeechSession, error)
}

// CorrectionItem is one segment handed to the live correction service.
type CorrectionItem struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// CorrectionService rewrites a batch of segment texts.
type CorrectionService interface {
	Correct(ctx context.Context, batch []CorrectionItem, languageHint string, phraseHints []string) ([]domain.Correction, error)
}

// CuesService detects glossary/bio/question callouts over recent speech.
type CuesService interface {
	Detect(ctx context.Context, recentTexts []string, languageHint string) ([]domain.Cue, error)
}

// DeepAnswerService answers a question using recent speech as context,
// optionally backed by web search.
type DeepAnswerService interface {
	Answer(ctx context.Context, question string, recentTexts []string, languageHint string, mode string) (domain.DeepAnswer, error)
}

// WebSearch finds citations for a query.
type WebSearch interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Citation, error)
}

// DocumentCorrector corrects a full transcript after the session ends.
type DocumentCorrector interface {
	CorrectDocument(ctx context.Context, fullText string, languageHint string) (string, error)
}

// RecordingStore persists recordings and correction job records.
type RecordingStore interface {
	SaveRecording(ctx context.Context, rec domain.Recording) error
	GetRecording(ctx context.Context, id string) (domain.Recording, error)

	CreateJob(ctx context.Context, recordingID string, kind string) error
	BeginProcessing(ctx context.Context, recordingID string, kind string) (bool, error)
	CompleteJob(ctx context.Context, recordingID string, kind string, correctedText string) error
	FailJob(ctx context.Context, recordingID string, kind string, message string) error
	RetryJob(ctx context.Context, recordingID string, kind string) (bool, error)
	GetJob(ctx context.Context, recordingID string, kind string) (domain.CorrectionJob, error)
}

// EventSink emits live pipeline events to the host surface.
type EventSink interface {
	StateChanged(state lifecycle.State, reason domain.StateReason)
	InterimUpdated(preview domain.InterimPreview)
	SegmentFinalized(segment domain.Segment)
	AnnotationAdded(annotation domain.Annotation)
	SessionError(code domain.ErrorCode, detail string)
}

package domain

import "time"

// AudioMode selects which sources feed a recording session.
type AudioMode string

const (
	AudioModeMic    AudioMode = "mic"
	AudioModeSystem AudioMode = "system"
	AudioModeBoth   AudioMode = "both"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonIdle               StateReason = "idle"
	ReasonRecordingStarted   StateReason = "recording_started"
	ReasonRecordingRestarted StateReason = "recording_restarted"
	ReasonPaused             StateReason = "paused"
	ReasonResumed            StateReason = "resumed"
	ReasonResumeFailed       StateReason = "resume_failed"
	ReasonStopping           StateReason = "stopping"
	ReasonRecordingSaved     StateReason = "recording_saved"
	ReasonNoTranscript       StateReason = "no_transcript"
	ReasonSessionFailed      StateReason = "session_failed"
)

// ErrorCode identifies which subsystem produced a session error.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioAcquire  ErrorCode = "audio_acquire"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeCorrection    ErrorCode = "correction"
	ErrorCodeCues          ErrorCode = "cues"
	ErrorCodeDeepAnswer    ErrorCode = "deep_answer"
	ErrorCodePersistence   ErrorCode = "persistence"
)

// SessionError is one entry in a session's error collection. Independent
// subsystem failures accumulate; they never overwrite each other.
type SessionError struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental recognition output from a provider.
type TranscriptEvent struct {
	Kind        TranscriptKind `json:"kind"`
	Text        string         `json:"text"`
	Translation string         `json:"translation,omitempty"`
	SpeakerTag  string         `json:"speakerTag,omitempty"`
	OffsetMs    int64          `json:"offsetMs"`
}

// Segment is an immutable finalized unit of recognition output. Text,
// StartOffsetMs and SpeakerID never change after creation; only the
// corrected-display overlay may be set later, by at most one pass.
type Segment struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	StartOffsetMs int64  `json:"startOffsetMs"`
	SpeakerID     string `json:"speakerId,omitempty"`
	IsCorrected   bool   `json:"isCorrected"`
	CorrectedText string `json:"correctedText,omitempty"`
}

// DisplayText returns the corrected overlay when present, otherwise the
// authoritative text.
func (s Segment) DisplayText() string {
	if s.IsCorrected && s.CorrectedText != "" {
		return s.CorrectedText
	}
	return s.Text
}

// TranslatedSegment is the parallel translated record for a Segment.
type TranslatedSegment struct {
	SegmentID int64  `json:"segmentId"`
	Language  string `json:"language"`
	Text      string `json:"text"`
}

// InterimPreview is the single mutable in-progress recognition string. It is
// replaced wholesale on every partial event and cleared on finalization.
type InterimPreview struct {
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

// Status summarizes the current runtime status for the host surface.
type Status struct {
	State        string `json:"state"`
	Active       bool   `json:"active"`
	SegmentCount int    `json:"segmentCount"`
	Message      string `json:"message,omitempty"`
}

// StopResult is returned once a recording is stopped and persisted.
type StopResult struct {
	RecordingID  string `json:"recordingId"`
	Transcript   string `json:"transcript"`
	SegmentCount int    `json:"segmentCount"`
	Saved        bool   `json:"saved"`
}

// Recording is the persisted outcome of a session.
type Recording struct {
	ID           string
	OwnerID      string
	Language     string
	StartedAt    time.Time
	StoppedAt    time.Time
	Segments     []Segment
	Translations []Translation
}

// Translation is one language's full translated transcript.
type Translation struct {
	Language string
	Text     string
}

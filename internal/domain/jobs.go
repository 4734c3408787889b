package domain

import "time"

// JobStatus is the persisted lifecycle of a post-session correction job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobKindTranscript corrects the primary-language transcript. Translation
// jobs use TranslationJobKind(language).
const JobKindTranscript = "transcript"

// TranslationJobKind returns the job kind for one translation language.
func TranslationJobKind(language string) string {
	return "translation:" + language
}

// CorrectionJob is one persisted correction record per recording per kind.
// It is mutated only through the post-session pipeline's own transitions.
type CorrectionJob struct {
	RecordingID   string
	Kind          string
	Status        JobStatus
	Error         string
	CorrectedText string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

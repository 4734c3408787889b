package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"livescribe/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "livescribe.sqlite"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreSaveAndGetRecording(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	rec := domain.Recording{
		ID:        "rec-1",
		OwnerID:   "owner-1",
		Language:  "en",
		StartedAt: time.Unix(1000, 0),
		StoppedAt: time.Unix(1060, 0),
		Segments: []domain.Segment{
			{ID: 1, Text: "Hello", StartOffsetMs: 0, SpeakerID: "speaker_0"},
			{ID: 2, Text: "world", StartOffsetMs: 800, IsCorrected: true, CorrectedText: "world."},
		},
		Translations: []domain.Translation{{Language: "ja", Text: "こんにちは 世界"}},
	}

	if err := s.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.GetRecording(ctx, "rec-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.OwnerID != "owner-1" || got.Language != "en" {
		t.Fatalf("unexpected recording: %+v", got)
	}
	if len(got.Segments) != 2 || got.Segments[0].Text != "Hello" || got.Segments[1].ID != 2 {
		t.Fatalf("unexpected segments: %+v", got.Segments)
	}
	if !got.Segments[1].IsCorrected || got.Segments[1].CorrectedText != "world." {
		t.Fatalf("corrected overlay not persisted: %+v", got.Segments[1])
	}
	if len(got.Translations) != 1 || got.Translations[0].Language != "ja" {
		t.Fatalf("unexpected translations: %+v", got.Translations)
	}
}

func TestStoreGetRecordingNotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.GetRecording(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreJobLifecycle(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, "rec-1", domain.JobKindTranscript); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	job, err := s.GetJob(ctx, "rec-1", domain.JobKindTranscript)
	if err != nil || job.Status != domain.JobStatusPending {
		t.Fatalf("expected pending job, got %+v err=%v", job, err)
	}

	claimed, err := s.BeginProcessing(ctx, "rec-1", domain.JobKindTranscript)
	if err != nil || !claimed {
		t.Fatalf("expected claim to succeed, got %v err=%v", claimed, err)
	}

	// the processing row is the lock: a second claim must fail
	claimed, err = s.BeginProcessing(ctx, "rec-1", domain.JobKindTranscript)
	if err != nil || claimed {
		t.Fatalf("expected duplicate claim to fail")
	}

	if err := s.CompleteJob(ctx, "rec-1", domain.JobKindTranscript, "Corrected text."); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	job, _ = s.GetJob(ctx, "rec-1", domain.JobKindTranscript)
	if job.Status != domain.JobStatusCompleted || job.CorrectedText != "Corrected text." {
		t.Fatalf("unexpected completed job: %+v", job)
	}
}

func TestStoreCreateJobDoesNotClobberExisting(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_ = s.CreateJob(ctx, "rec-1", domain.JobKindTranscript)
	if _, err := s.BeginProcessing(ctx, "rec-1", domain.JobKindTranscript); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := s.CreateJob(ctx, "rec-1", domain.JobKindTranscript); err != nil {
		t.Fatalf("re-create failed: %v", err)
	}
	job, _ := s.GetJob(ctx, "rec-1", domain.JobKindTranscript)
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("create must not reset a processing job, got %s", job.Status)
	}
}

func TestStoreRetryGating(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_ = s.CreateJob(ctx, "rec-1", domain.JobKindTranscript)
	_, _ = s.BeginProcessing(ctx, "rec-1", domain.JobKindTranscript)

	// retry while processing is refused with no state change
	retried, err := s.RetryJob(ctx, "rec-1", domain.JobKindTranscript)
	if err != nil || retried {
		t.Fatalf("expected retry refusal while processing")
	}
	job, _ := s.GetJob(ctx, "rec-1", domain.JobKindTranscript)
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("refused retry must not change state, got %s", job.Status)
	}

	if err := s.FailJob(ctx, "rec-1", domain.JobKindTranscript, "backend down"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	job, _ = s.GetJob(ctx, "rec-1", domain.JobKindTranscript)
	if job.Status != domain.JobStatusFailed || job.Error != "backend down" {
		t.Fatalf("unexpected failed job: %+v", job)
	}

	retried, err = s.RetryJob(ctx, "rec-1", domain.JobKindTranscript)
	if err != nil || !retried {
		t.Fatalf("expected retry from failed to succeed")
	}
	job, _ = s.GetJob(ctx, "rec-1", domain.JobKindTranscript)
	if job.Status != domain.JobStatusPending || job.Error != "" {
		t.Fatalf("expected pending job with cleared error, got %+v", job)
	}
}

func TestStoreTranslationJobKinds(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, kind := range []string{domain.JobKindTranscript, domain.TranslationJobKind("ja"), domain.TranslationJobKind("fr")} {
		if err := s.CreateJob(ctx, "rec-1", kind); err != nil {
			t.Fatalf("create %s failed: %v", kind, err)
		}
	}

	job, err := s.GetJob(ctx, "rec-1", domain.TranslationJobKind("ja"))
	if err != nil || job.Kind != "translation:ja" {
		t.Fatalf("unexpected translation job: %+v err=%v", job, err)
	}
}

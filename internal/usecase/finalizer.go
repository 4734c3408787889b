package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

// correctionEnqueuer is the post-session pipeline entry point. Enqueue is
// fire-and-forget; nothing it does can fail the save path.
type correctionEnqueuer interface {
	Enqueue(rec domain.Recording)
}

// recordingFinalizer persists a finished session and hands the recording to
// the post-session correction pipeline.
type recordingFinalizer struct {
	store       ports.RecordingStore
	corrections correctionEnqueuer
	report      func(code domain.ErrorCode, detail string)
	newID       func() string
	now         func() time.Time
}

func newRecordingFinalizer(store ports.RecordingStore, corrections correctionEnqueuer, report func(code domain.ErrorCode, detail string)) recordingFinalizer {
	return recordingFinalizer{
		store:       store,
		corrections: corrections,
		report:      report,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Finalize saves the recording. A persistence failure is reported on the
// session error surface but still yields the transcript to the caller; the
// in-memory result stays authoritative.
func (f recordingFinalizer) Finalize(
	ctx context.Context,
	ownerID string,
	language string,
	startedAt time.Time,
	transcript *transcriptState,
) (domain.StopResult, domain.StateReason) {
	rec := domain.Recording{
		ID:           f.newID(),
		OwnerID:      ownerID,
		Language:     language,
		StartedAt:    startedAt,
		StoppedAt:    f.now(),
		Segments:     transcript.Segments(),
		Translations: transcript.Translations(),
	}

	result := domain.StopResult{
		RecordingID:  rec.ID,
		Transcript:   transcript.FullText(),
		SegmentCount: len(rec.Segments),
	}

	if f.store == nil {
		return result, domain.ReasonRecordingSaved
	}

	if err := f.store.SaveRecording(ctx, rec); err != nil {
		f.report(domain.ErrorCodePersistence, err.Error())
		return result, domain.ReasonSessionFailed
	}

	result.Saved = true
	if f.corrections != nil {
		f.corrections.Enqueue(rec)
	}
	return result, domain.ReasonRecordingSaved
}

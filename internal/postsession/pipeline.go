// Package postsession runs the asynchronous full-document correction that
// follows a persisted recording. It is fire-and-forget relative to the save
// path that triggers it: failures land on the job record, never on the
// caller, and the uncorrected transcript stays authoritative throughout.
package postsession

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

// ErrRetryUnavailable is returned when a retry request is refused, either
// because the job is currently processing or because it has not failed.
var ErrRetryUnavailable = errors.New("correction job is not in a retryable state")

// Pipeline corrects the transcript and each translation of a recording.
type Pipeline struct {
	store     ports.RecordingStore
	corrector ports.DocumentCorrector
	logger    *zap.Logger
}

func NewPipeline(store ports.RecordingStore, corrector ports.DocumentCorrector, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, corrector: corrector, logger: logger}
}

// Enqueue creates pending jobs for a saved recording and starts the run in
// the background. Errors creating jobs are logged, never returned: the save
// that triggered us has already succeeded.
func (p *Pipeline) Enqueue(rec domain.Recording) {
	ctx := context.Background()

	if err := p.store.CreateJob(ctx, rec.ID, domain.JobKindTranscript); err != nil {
		p.logger.Error("failed to enqueue transcript correction", zap.String("recording", rec.ID), zap.Error(err))
		return
	}
	for _, translation := range rec.Translations {
		if err := p.store.CreateJob(ctx, rec.ID, domain.TranslationJobKind(translation.Language)); err != nil {
			p.logger.Error("failed to enqueue translation correction",
				zap.String("recording", rec.ID), zap.String("language", translation.Language), zap.Error(err))
		}
	}

	go p.Run(ctx, rec.ID)
}

// Run executes every claimable job for the recording: the transcript first,
// then each translation sequentially to respect backend rate limits. One
// language's failure never aborts the others.
func (p *Pipeline) Run(ctx context.Context, recordingID string) {
	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		p.logger.Error("correction run could not load recording", zap.String("recording", recordingID), zap.Error(err))
		return
	}

	p.runJob(ctx, recordingID, domain.JobKindTranscript, transcriptText(rec), rec.Language)

	for _, translation := range rec.Translations {
		p.runJob(ctx, recordingID, domain.TranslationJobKind(translation.Language), translation.Text, translation.Language)
	}
}

// Retry moves a failed job back to pending and runs it again. A job that is
// processing (or otherwise not failed) is refused without state change.
func (p *Pipeline) Retry(ctx context.Context, recordingID string, kind string) error {
	retried, err := p.store.RetryJob(ctx, recordingID, kind)
	if err != nil {
		return err
	}
	if !retried {
		return ErrRetryUnavailable
	}

	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}

	text, language := textForKind(rec, kind)
	go p.runJob(context.Background(), recordingID, kind, text, language)
	return nil
}

// runJob claims one job, calls the corrector and records the outcome. The
// claim is written before the backend call so the processing status works as
// a lock against concurrent runs.
func (p *Pipeline) runJob(ctx context.Context, recordingID string, kind string, text string, language string) {
	claimed, err := p.store.BeginProcessing(ctx, recordingID, kind)
	if err != nil {
		p.logger.Error("failed to claim correction job",
			zap.String("recording", recordingID), zap.String("kind", kind), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	if strings.TrimSpace(text) == "" {
		p.finish(ctx, recordingID, kind, text)
		return
	}

	corrected, err := p.corrector.CorrectDocument(ctx, text, language)
	switch {
	case errors.Is(err, ports.ErrEmptyResult):
		// empty model output is "nothing to correct": keep the original
		p.finish(ctx, recordingID, kind, text)
	case err != nil:
		p.logger.Warn("document correction failed",
			zap.String("recording", recordingID), zap.String("kind", kind), zap.Error(err))
		if failErr := p.store.FailJob(ctx, recordingID, kind, err.Error()); failErr != nil {
			p.logger.Error("failed to record job failure", zap.String("recording", recordingID), zap.Error(failErr))
		}
	default:
		p.finish(ctx, recordingID, kind, corrected)
	}
}

func (p *Pipeline) finish(ctx context.Context, recordingID string, kind string, corrected string) {
	if err := p.store.CompleteJob(ctx, recordingID, kind, corrected); err != nil {
		p.logger.Error("failed to record job completion",
			zap.String("recording", recordingID), zap.String("kind", kind), zap.Error(err))
	}
}

func transcriptText(rec domain.Recording) string {
	parts := make([]string, 0, len(rec.Segments))
	for _, segment := range rec.Segments {
		parts = append(parts, segment.Text)
	}
	return strings.Join(parts, " ")
}

func textForKind(rec domain.Recording, kind string) (string, string) {
	if kind == domain.JobKindTranscript {
		return transcriptText(rec), rec.Language
	}
	language := strings.TrimPrefix(kind, "translation:")
	for _, translation := range rec.Translations {
		if translation.Language == language {
			return translation.Text, language
		}
	}
	return "", language
}

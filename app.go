package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"livescribe/internal/bootstrap"
	"livescribe/internal/config"
	"livescribe/internal/domain"
	"livescribe/internal/lifecycle"
	"livescribe/internal/postsession"
	"livescribe/internal/usecase"
)

// App is the headless application root. Its exported methods are the surface
// a product shell binds to; the event sink methods stream pipeline updates
// through the structured log.
type App struct {
	ctx context.Context

	controller  *usecase.SessionController
	corrections *postsession.Pipeline
	cfg         config.Config
	logger      *zap.Logger
	bootErr     error
	close       func() error
}

func NewApp(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger}
}

// Startup wires the dependency graph. A boot failure is remembered and
// surfaced by every subsequent call rather than crashing the host.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.logger)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.corrections = services.Corrections
	a.close = services.Close
}

// Shutdown releases everything Startup opened.
func (a *App) Shutdown() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// StartRecording begins a new capture session.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// PauseRecording suspends recognition without ending the session.
func (a *App) PauseRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Pause(); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// ResumeRecording continues a paused session.
func (a *App) ResumeRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Resume(); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// StopRecording ends the session and returns the persisted transcript.
func (a *App) StopRecording() (domain.StopResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.StopResult{}, err
	}
	return a.controller.Stop(a.ctx)
}

// Ask submits an explicit question to the deep-answer worker.
func (a *App) Ask(question string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Ask(question)
}

// RetryCorrection re-runs a failed post-session correction job.
func (a *App) RetryCorrection(recordingID string, kind string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.corrections.Retry(a.ctx, recordingID, kind)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: string(lifecycle.StateError), Message: a.bootErr.Error()}
		}
		return domain.Status{State: string(lifecycle.StateIdle)}
	}
	return a.controller.Status()
}

// GetErrors returns the session error collection.
func (a *App) GetErrors() []domain.SessionError {
	if a.controller == nil {
		return nil
	}
	return a.controller.Errors()
}

// GetRuntimeInfo returns non-sensitive config for a host surface.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":    "Deepgram",
		"model":       a.cfg.Speech.Model,
		"language":    a.cfg.Speech.LanguageIn,
		"translateTo": a.cfg.Speech.LanguageOut,
		"audioMode":   a.cfg.Session.Mode,
		"micDevice":   a.cfg.Audio.MicDevice,
		"dbPath":      a.cfg.Store.Path,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged logs session lifecycle updates.
func (a *App) StateChanged(state lifecycle.State, reason domain.StateReason) {
	a.logger.Info("session state",
		zap.String("state", string(state)),
		zap.String("reason", string(reason)),
		zap.String("message", stateReasonMessage(reason)),
	)
}

// InterimUpdated logs the live preview, replaced wholesale on every partial.
func (a *App) InterimUpdated(preview domain.InterimPreview) {
	a.logger.Debug("interim", zap.String("text", preview.Text), zap.String("translation", preview.Translation))
}

// SegmentFinalized logs each immutable transcript segment.
func (a *App) SegmentFinalized(segment domain.Segment) {
	a.logger.Info("segment",
		zap.Int64("id", segment.ID),
		zap.String("text", segment.DisplayText()),
		zap.String("speaker", segment.SpeakerID),
		zap.Bool("corrected", segment.IsCorrected),
	)
}

// AnnotationAdded logs enrichment output in arrival order.
func (a *App) AnnotationAdded(annotation domain.Annotation) {
	a.logger.Info("annotation",
		zap.String("id", annotation.ID),
		zap.String("kind", string(annotation.Kind)),
		zap.Int("sourceSegmentIndex", annotation.SourceSegmentIndex),
	)
}

// SessionError logs pipeline errors.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.logger.Warn("session error",
		zap.String("code", string(code)),
		zap.String("message", errorMessage(code, detail)),
		zap.String("detail", detail),
	)
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonIdle:
		return "Ready"
	case domain.ReasonRecordingStarted:
		return "Recording started"
	case domain.ReasonRecordingRestarted:
		return "Recording restarted; previous session discarded"
	case domain.ReasonPaused:
		return "Recording paused"
	case domain.ReasonResumed:
		return "Recording resumed"
	case domain.ReasonResumeFailed:
		return "Could not resume; session ended"
	case domain.ReasonStopping:
		return "Stopping and finalizing transcript..."
	case domain.ReasonRecordingSaved:
		return "Recording saved"
	case domain.ReasonNoTranscript:
		return "No transcript captured"
	case domain.ReasonSessionFailed:
		return "Session failed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioAcquire:
		return "Could not acquire audio source"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeCorrection:
		return "Live correction unavailable"
	case domain.ErrorCodeCues:
		return "Cues unavailable"
	case domain.ErrorCodeDeepAnswer:
		return "Deep answer unavailable"
	case domain.ErrorCodePersistence:
		return "Could not save recording"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

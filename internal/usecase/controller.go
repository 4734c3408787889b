// Package usecase orchestrates a recording session: lifecycle state, audio
// acquisition, the streaming recognition session, transcript state, the three
// enrichment workers and the handoff to persistence and the post-session
// correction pipeline.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"livescribe/internal/domain"
	"livescribe/internal/enrich"
	"livescribe/internal/lifecycle"
	"livescribe/internal/ports"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")

	// ErrAnswerBudgetExhausted is returned by Ask once the deep-answer
	// worker's session cap is spent.
	ErrAnswerBudgetExhausted = errors.New("deep answer call budget exhausted for this session")
)

// Config controls session behavior.
type Config struct {
	Mode      domain.AudioMode
	Streaming ports.StreamingConfig
	OwnerID   string

	// AnswerMode is forwarded verbatim to the deep-answer backend.
	AnswerMode string

	ChunkSize      int
	StreamingGrace time.Duration
	StreamWait     time.Duration

	Correction enrich.Policy
	Cues       enrich.Policy
	DeepAnswer enrich.Policy
}

// SessionController runs one recording session at a time.
type SessionController struct {
	machine  *lifecycle.Machine
	audio    ports.AudioSource
	provider ports.SpeechProvider
	events   ports.EventSink
	logger   *zap.Logger
	cfg      Config

	correction *enrich.Worker
	cues       *enrich.Worker
	deep       *enrich.Worker
	questions  *enrich.QuestionDetector
	finalizer  recordingFinalizer

	now func() time.Time

	mu        sync.Mutex
	current   *activeSession
	startedAt time.Time
	restarted bool

	errMu sync.Mutex
	errs  []domain.SessionError
}

func NewSessionController(
	audio ports.AudioSource,
	provider ports.SpeechProvider,
	correction ports.CorrectionService,
	cues ports.CuesService,
	answers ports.DeepAnswerService,
	store ports.RecordingStore,
	corrections correctionEnqueuer,
	events ports.EventSink,
	cfg Config,
	logger *zap.Logger,
	workerOpts ...enrich.Option,
) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.StreamWait <= 0 {
		cfg.StreamWait = 4 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &SessionController{
		machine:   lifecycle.NewMachine(),
		audio:     audio,
		provider:  provider,
		events:    events,
		logger:    logger,
		cfg:       cfg,
		questions: enrich.NewQuestionDetector(cfg.Streaming.LanguageIn),
		now:       time.Now,
	}
	c.finalizer = newRecordingFinalizer(store, corrections, c.report)

	c.correction = enrich.NewWorker("correction", cfg.Correction,
		c.correctionDispatch(correction), domain.ErrorCodeCorrection,
		c.publishAnnotations, c.report, logger, workerOpts...)
	c.cues = enrich.NewWorker("cues", cfg.Cues,
		c.cuesDispatch(cues), domain.ErrorCodeCues,
		c.publishAnnotations, c.report, logger, workerOpts...)
	c.deep = enrich.NewWorker("deep_answer", cfg.DeepAnswer,
		c.deepAnswerDispatch(answers), domain.ErrorCodeDeepAnswer,
		c.publishAnnotations, c.report, logger, workerOpts...)
	return c
}

// Start begins a new capture/recognition session. Per-session state (workers,
// question dedupe, error list) resets atomically before any resource is
// acquired.
func (c *SessionController) Start(ctx context.Context) error {
	if _, ok := c.machine.Apply(lifecycle.EventStart); !ok {
		return fmt.Errorf("cannot start while %s", c.machine.State())
	}

	c.resetSessionState()
	c.events.StateChanged(lifecycle.StateStarting, domain.ReasonRecordingStarted)

	sessionCtx, cancel := context.WithCancel(ctx)

	stream, err := c.audio.Acquire(sessionCtx, c.cfg.Mode)
	if err != nil {
		cancel()
		c.report(domain.ErrorCodeAudioAcquire, err.Error())
		c.machine.ApplyFailure(lifecycle.EventStartFailure, err)
		c.events.StateChanged(lifecycle.StateIdle, domain.ReasonSessionFailed)
		return err
	}

	speech, err := c.provider.StartSession(sessionCtx, c.cfg.Streaming)
	if err != nil {
		c.audio.Release()
		cancel()
		c.report(domain.ErrorCodeStartup, err.Error())
		c.machine.ApplyFailure(lifecycle.EventStartFailure, err)
		c.events.StateChanged(lifecycle.StateIdle, domain.ReasonSessionFailed)
		return err
	}

	active := &activeSession{
		cancel:     cancel,
		stream:     stream,
		speech:     speech,
		transcript: newTranscriptState(),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}

	c.mu.Lock()
	c.current = active
	c.startedAt = c.now()
	restarted := c.restarted
	c.restarted = true
	c.mu.Unlock()

	go c.consumeSpeechEvents(active)
	go pumpAudioChunks(active.stream, active.speech, c.cfg.ChunkSize, c.report, active.audioDone)
	go c.watchAudioEnded(sessionCtx, active)

	c.machine.Apply(lifecycle.EventStartSuccess)
	reason := domain.ReasonRecordingStarted
	if restarted {
		reason = domain.ReasonRecordingRestarted
	}
	c.events.StateChanged(lifecycle.StateRecording, reason)
	return nil
}

// Pause suspends recognition without ending the session. The interim preview
// is cleared; the streaming session stays alive on keepalives.
func (c *SessionController) Pause() error {
	if _, ok := c.machine.Apply(lifecycle.EventPause); !ok {
		return fmt.Errorf("cannot pause while %s", c.machine.State())
	}
	active, err := c.getCurrent()
	if err != nil {
		c.machine.ApplyFailure(lifecycle.EventPause, err)
		return err
	}

	c.events.StateChanged(lifecycle.StatePausing, domain.ReasonPaused)
	if err := active.speech.Pause(); err != nil {
		c.report(domain.ErrorCodeTranscription, err.Error())
		c.machine.ApplyFailure(lifecycle.EventPause, err)
		c.events.StateChanged(lifecycle.StateError, domain.ReasonSessionFailed)
		return err
	}

	c.events.InterimUpdated(active.transcript.ClearInterim())
	c.machine.Apply(lifecycle.EventPauseSuccess)
	c.events.StateChanged(lifecycle.StatePaused, domain.ReasonPaused)
	return nil
}

// Resume reuses the paused streaming session. When the backend no longer
// allows continuation the session is torn down with an explicit error rather
// than silently losing audio.
func (c *SessionController) Resume() error {
	if _, ok := c.machine.Apply(lifecycle.EventResume); !ok {
		return fmt.Errorf("cannot resume while %s", c.machine.State())
	}
	active, err := c.getCurrent()
	if err != nil {
		c.machine.ApplyFailure(lifecycle.EventResume, err)
		return err
	}

	c.events.StateChanged(lifecycle.StateResuming, domain.ReasonResumed)
	if err := active.speech.Resume(); err != nil {
		c.report(domain.ErrorCodeTranscription, err.Error())
		c.machine.ApplyFailure(lifecycle.EventResume, err)
		c.events.StateChanged(lifecycle.StateError, domain.ReasonResumeFailed)
		c.clearCurrent(active)
		c.teardown(active)
		return err
	}

	c.machine.Apply(lifecycle.EventResumeSuccess)
	c.events.StateChanged(lifecycle.StateRecording, domain.ReasonResumed)
	return nil
}

// Stop ends the session, persists the transcript and returns the result. The
// lifecycle machine returns to idle afterwards so a new session can start.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	if _, ok := c.machine.Apply(lifecycle.EventStop); !ok {
		return domain.StopResult{}, fmt.Errorf("cannot stop while %s", c.machine.State())
	}
	active, err := c.getCurrent()
	if err != nil {
		c.machine.ApplyFailure(lifecycle.EventStop, err)
		return domain.StopResult{}, err
	}

	c.events.StateChanged(lifecycle.StateStopping, domain.ReasonStopping)

	// live enrichment ends here: in-flight calls cancel, partial batches drop
	c.correction.Stop()
	c.cues.Stop()
	c.deep.Stop()

	c.audio.Release()

	if c.cfg.StreamingGrace > 0 {
		timer := time.NewTimer(c.cfg.StreamingGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	_ = active.speech.CloseSend()
	streamErr := waitForSpeech(active.speech, c.cfg.StreamWait)
	<-active.eventsDone
	<-active.audioDone

	if streamErr != nil {
		c.report(domain.ErrorCodeTranscription, streamErr.Error())
	}

	if active.transcript.SegmentCount() == 0 {
		c.finishSession(active, domain.ReasonNoTranscript)
		if streamErr != nil {
			return domain.StopResult{}, streamErr
		}
		return domain.StopResult{}, errors.New("no transcript captured")
	}

	c.mu.Lock()
	startedAt := c.startedAt
	c.mu.Unlock()

	result, reason := c.finalizer.Finalize(ctx, c.cfg.OwnerID, c.cfg.Streaming.LanguageIn, startedAt, active.transcript)
	c.finishSession(active, reason)
	return result, nil
}

// Ask submits an explicit question to the deep-answer worker, bypassing
// batching and debounce. The session cap and supersession rules still apply.
func (c *SessionController) Ask(question string) error {
	if _, err := c.getCurrent(); err != nil {
		return err
	}
	if !c.deep.Trigger(question) {
		return ErrAnswerBudgetExhausted
	}
	return nil
}

// Status reports the current lifecycle state and transcript size.
func (c *SessionController) Status() domain.Status {
	state := c.machine.State()
	status := domain.Status{
		State: string(state),
		Active: state != lifecycle.StateIdle &&
			state != lifecycle.StateStopped &&
			state != lifecycle.StateError,
	}
	if err := c.machine.Err(); err != nil {
		status.Message = err.Error()
	}

	c.mu.Lock()
	if c.current != nil {
		status.SegmentCount = c.current.transcript.SegmentCount()
	}
	c.mu.Unlock()
	return status
}

// Errors returns the session error collection. Independent subsystem failures
// accumulate; no entry overwrites another.
func (c *SessionController) Errors() []domain.SessionError {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return append([]domain.SessionError(nil), c.errs...)
}

// Annotations returns the current session's annotation log in arrival order.
func (c *SessionController) Annotations() []domain.Annotation {
	transcript := c.currentTranscript()
	if transcript == nil {
		return nil
	}
	return transcript.Annotations()
}

// Segments returns the current session's finalized segments.
func (c *SessionController) Segments() []domain.Segment {
	transcript := c.currentTranscript()
	if transcript == nil {
		return nil
	}
	return transcript.Segments()
}

func (c *SessionController) consumeSpeechEvents(active *activeSession) {
	defer close(active.eventsDone)

	for event := range active.speech.Events() {
		switch event.Kind {
		case domain.TranscriptKindPartial:
			c.events.InterimUpdated(active.transcript.SetInterim(event.Text, event.Translation))
		case domain.TranscriptKindFinal:
			segment, ok := active.transcript.AppendFinal(event, c.cfg.Streaming.LanguageOut)
			if !ok {
				continue
			}
			c.events.InterimUpdated(active.transcript.Interim())
			c.events.SegmentFinalized(segment)

			segments := active.transcript.Segments()
			c.correction.Observe(segments)
			c.cues.Observe(segments)
			c.deep.Track(segments)
			if question, ok := c.questions.Detect(segment.Text); ok {
				c.deep.Trigger(question)
			}
		}
	}
}

// watchAudioEnded surfaces out-of-band hardware loss. An explicit release
// closes the ended channel without an error and stays silent here.
func (c *SessionController) watchAudioEnded(ctx context.Context, active *activeSession) {
	select {
	case err, ok := <-active.stream.Ended():
		if ok && err != nil && ctx.Err() == nil {
			c.report(domain.ErrorCodeAudioStream, err.Error())
		}
	case <-ctx.Done():
	}
}

func (c *SessionController) report(code domain.ErrorCode, detail string) {
	c.errMu.Lock()
	c.errs = append(c.errs, domain.SessionError{Code: code, Detail: detail, At: c.now()})
	c.errMu.Unlock()

	c.logger.Warn("session error", zap.String("code", string(code)), zap.String("detail", detail))
	c.events.SessionError(code, detail)
}

// publishAnnotations merges worker output: corrections overlay segment
// display text, everything lands on the annotation log in arrival order.
func (c *SessionController) publishAnnotations(annotations []domain.Annotation) {
	transcript := c.currentTranscript()
	if transcript == nil {
		return
	}

	for _, annotation := range annotations {
		if annotation.Kind == domain.AnnotationKindCorrection && annotation.Correction != nil {
			if segment, applied := transcript.ApplyCorrection(*annotation.Correction); applied {
				c.events.SegmentFinalized(segment)
			}
		}
		transcript.AddAnnotation(annotation)
		c.events.AnnotationAdded(annotation)
	}
}

func (c *SessionController) correctionDispatch(svc ports.CorrectionService) enrich.Dispatch {
	return func(ctx context.Context, req enrich.Request) ([]domain.Annotation, error) {
		items := make([]ports.CorrectionItem, 0, len(req.Window))
		for _, segment := range req.Window {
			items = append(items, ports.CorrectionItem{ID: segment.ID, Text: segment.Text})
		}
		corrections, err := svc.Correct(ctx, items, c.cfg.Streaming.LanguageIn, c.cfg.Streaming.PhraseHints)
		if err != nil {
			return nil, err
		}
		annotations := make([]domain.Annotation, 0, len(corrections))
		for _, correction := range corrections {
			correction := correction
			annotations = append(annotations, domain.Annotation{
				Kind:       domain.AnnotationKindCorrection,
				Correction: &correction,
			})
		}
		return annotations, nil
	}
}

func (c *SessionController) cuesDispatch(svc ports.CuesService) enrich.Dispatch {
	return func(ctx context.Context, req enrich.Request) ([]domain.Annotation, error) {
		cards, err := svc.Detect(ctx, windowTexts(req.Window), c.cfg.Streaming.LanguageIn)
		if err != nil {
			return nil, err
		}
		annotations := make([]domain.Annotation, 0, len(cards))
		for _, card := range cards {
			card := card
			annotations = append(annotations, domain.Annotation{
				Kind: domain.AnnotationKindCue,
				Cue:  &card,
			})
		}
		return annotations, nil
	}
}

func (c *SessionController) deepAnswerDispatch(svc ports.DeepAnswerService) enrich.Dispatch {
	return func(ctx context.Context, req enrich.Request) ([]domain.Annotation, error) {
		if req.Question == "" {
			return nil, nil
		}
		answer, err := svc.Answer(ctx, req.Question, windowTexts(req.Window), c.cfg.Streaming.LanguageIn, c.cfg.AnswerMode)
		if errors.Is(err, ports.ErrEmptyResult) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []domain.Annotation{{
			Kind:       domain.AnnotationKindDeepAnswer,
			DeepAnswer: &answer,
		}}, nil
	}
}

func windowTexts(window []domain.Segment) []string {
	texts := make([]string, 0, len(window))
	for _, segment := range window {
		texts = append(texts, segment.Text)
	}
	return texts
}

func (c *SessionController) resetSessionState() {
	c.correction.Reset()
	c.cues.Reset()
	c.deep.Reset()
	c.questions.Reset()

	c.errMu.Lock()
	c.errs = nil
	c.errMu.Unlock()
}

func (c *SessionController) getCurrent() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveSession
	}
	return c.current, nil
}

func (c *SessionController) currentTranscript() *transcriptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.transcript
}

// teardown forcibly ends a session's resources without lifecycle bookkeeping;
// used when a session is replaced or aborted mid-flight.
func (c *SessionController) teardown(active *activeSession) {
	active.cancel()
	c.audio.Release()
	_ = active.speech.Close()
	<-active.eventsDone
	<-active.audioDone
}

func (c *SessionController) clearCurrent(active *activeSession) {
	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()
}

// finishSession completes the lifecycle after a stop: the machine reaches
// stopped, the state is announced, and the machine resets to idle so the
// guard predicates allow the next start.
func (c *SessionController) finishSession(active *activeSession, reason domain.StateReason) {
	active.cancel()
	_ = active.speech.Close()
	c.clearCurrent(active)

	c.machine.Apply(lifecycle.EventStopSuccess)
	c.events.StateChanged(lifecycle.StateStopped, reason)
	c.machine.Reset()
}

// Package enrich implements the batched, debounced, rate-capped, cancelable
// enrichment engine. One Worker instance serves one use case (live
// correction, contextual cues, deep answers); all three share this
// algorithm, parameterized by Policy and a dispatch function.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"livescribe/internal/domain"
)

// Policy holds the per-use-case constants.
type Policy struct {
	// BatchSize is the number of unsent segments that arms the debounce.
	BatchSize int
	// Debounce is how long segment arrival must settle before dispatch.
	Debounce time.Duration
	// SessionCap is the maximum number of backend calls per session.
	SessionCap int
	// ContextWindow is how many of the most recent segments each call sees.
	ContextWindow int
}

// Request is one unit of work handed to a dispatch function. Question is set
// only on the deep-answer trigger paths.
type Request struct {
	Window   []domain.Segment
	Question string
}

// Dispatch calls the enrichment backend. Implementations must honor ctx.
type Dispatch func(ctx context.Context, req Request) ([]domain.Annotation, error)

// Worker runs the enrichment algorithm for one use case.
type Worker struct {
	name     string
	policy   Policy
	dispatch Dispatch
	publish  func(annotations []domain.Annotation)
	reportfn func(code domain.ErrorCode, detail string)
	errCode  domain.ErrorCode
	now      func() time.Time
	logger   *zap.Logger

	// debouncer collapses bursts of Observe calls into one fire
	debouncer func(func())

	mu            sync.Mutex
	segments      []domain.Segment
	lastProcessed int
	callCount     int
	inflight      context.CancelFunc
	generation    uint64
	stopped       bool
}

// Option tweaks worker construction; used by tests to control timing.
type Option func(*Worker)

// WithDebouncer replaces the debounce mechanism.
func WithDebouncer(d func(func())) Option {
	return func(w *Worker) { w.debouncer = d }
}

// WithClock replaces the completion-timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func NewWorker(
	name string,
	policy Policy,
	dispatch Dispatch,
	errCode domain.ErrorCode,
	publish func(annotations []domain.Annotation),
	report func(code domain.ErrorCode, detail string),
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if policy.BatchSize <= 0 {
		policy.BatchSize = 1
	}
	if policy.ContextWindow <= 0 {
		policy.ContextWindow = policy.BatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		name:     name,
		policy:   policy,
		dispatch: dispatch,
		publish:  publish,
		reportfn: report,
		errCode:  errCode,
		now:      time.Now,
		logger:   logger.With(zap.String("worker", name)),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debouncer == nil {
		w.debouncer = debounce.New(policy.Debounce)
	}
	return w
}

// Observe feeds the current ordered segment list. When enough unprocessed
// segments accumulate and the session cap is not exhausted, the debounce
// timer is (re)armed.
func (w *Worker) Observe(segments []domain.Segment) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.segments = segments
	pending := len(segments) - w.lastProcessed
	armed := pending >= w.policy.BatchSize && w.callCount < w.policy.SessionCap
	w.mu.Unlock()

	if armed {
		w.debouncer(w.fire)
	}
}

// Track records the current segment list for context windows without ever
// arming a batch dispatch. Question-driven workers use it so Trigger sees
// recent speech while batching stays off.
func (w *Worker) Track(segments []domain.Segment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.segments = segments
}

// fire takes the context window, advances the processed mark, and issues the
// backend call, superseding any still-in-flight call.
func (w *Worker) fire() {
	w.mu.Lock()
	if w.stopped || w.callCount >= w.policy.SessionCap {
		w.mu.Unlock()
		return
	}
	window := w.windowLocked()
	if len(window) == 0 {
		w.mu.Unlock()
		return
	}
	sourceIndex := len(w.segments)
	w.lastProcessed = sourceIndex
	ctx, gen := w.beginCallLocked()
	w.mu.Unlock()

	go w.run(ctx, gen, Request{Window: window}, sourceIndex)
}

// Trigger issues an immediate question-driven call, bypassing batching and
// debounce. The session cap and supersession rules still apply. It reports
// whether a call was issued.
func (w *Worker) Trigger(question string) bool {
	w.mu.Lock()
	if w.stopped || w.callCount >= w.policy.SessionCap {
		w.mu.Unlock()
		return false
	}
	window := w.windowLocked()
	sourceIndex := len(w.segments)
	ctx, gen := w.beginCallLocked()
	w.mu.Unlock()

	go w.run(ctx, gen, Request{Window: window, Question: question}, sourceIndex)
	return true
}

// beginCallLocked cancels the previous in-flight call and registers a new
// one. Callers must hold w.mu.
func (w *Worker) beginCallLocked() (context.Context, uint64) {
	if w.inflight != nil {
		w.inflight()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.inflight = cancel
	w.generation++
	w.callCount++
	return ctx, w.generation
}

func (w *Worker) windowLocked() []domain.Segment {
	window := w.segments
	if len(window) > w.policy.ContextWindow {
		window = window[len(window)-w.policy.ContextWindow:]
	}
	return append([]domain.Segment(nil), window...)
}

func (w *Worker) run(ctx context.Context, gen uint64, req Request, sourceIndex int) {
	annotations, err := w.dispatch(ctx, req)

	// a superseded or canceled call discards its resolution silently
	if ctx.Err() != nil || !w.isCurrent(gen) {
		return
	}

	if err != nil {
		w.logger.Warn("enrichment call failed", zap.Error(err))
		if w.reportfn != nil {
			w.reportfn(w.errCode, err.Error())
		}
		return
	}
	if len(annotations) == 0 {
		return
	}

	completedAt := w.now()
	for i := range annotations {
		if annotations[i].ID == "" {
			annotations[i].ID = uuid.NewString()
		}
		annotations[i].CreatedAt = completedAt
		annotations[i].SourceSegmentIndex = sourceIndex
	}
	if w.publish != nil {
		w.publish(annotations)
	}
}

func (w *Worker) isCurrent(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gen == w.generation && !w.stopped
}

// CallCount returns the number of dispatch attempts this session.
func (w *Worker) CallCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.callCount
}

// Reset clears all per-session state for a fresh recording.
func (w *Worker) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight != nil {
		w.inflight()
		w.inflight = nil
	}
	w.generation++
	w.segments = nil
	w.lastProcessed = 0
	w.callCount = 0
	w.stopped = false
}

// Stop cancels any in-flight call and drops whatever partial batch remains.
// In-flight calls resolve silently; nothing below the batch threshold is
// flushed.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight != nil {
		w.inflight()
		w.inflight = nil
	}
	w.generation++
	w.stopped = true
}

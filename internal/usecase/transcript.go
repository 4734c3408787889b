package usecase

import (
	"strings"
	"sync"

	"livescribe/internal/domain"
)

// transcriptState holds one session's transcript: the append-only finalized
// segment list, the single mutable interim preview, parallel translated
// segments, and the append-only annotation log. Segment ids are assigned here,
// monotonically, on finalization.
type transcriptState struct {
	mu          sync.Mutex
	nextID      int64
	segments    []domain.Segment
	translated  []domain.TranslatedSegment
	interim     domain.InterimPreview
	annotations []domain.Annotation
}

func newTranscriptState() *transcriptState {
	return &transcriptState{nextID: 1}
}

// SetInterim replaces the preview wholesale.
func (t *transcriptState) SetInterim(text, translation string) domain.InterimPreview {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interim = domain.InterimPreview{Text: text, Translation: translation}
	return t.interim
}

// ClearInterim empties the preview, on finalization and on pause.
func (t *transcriptState) ClearInterim() domain.InterimPreview {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interim = domain.InterimPreview{}
	return t.interim
}

// AppendFinal creates the immutable segment for a final recognition event and
// clears the interim preview. Empty text is skipped.
func (t *transcriptState) AppendFinal(event domain.TranscriptEvent, translationLanguage string) (domain.Segment, bool) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return domain.Segment{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	segment := domain.Segment{
		ID:            t.nextID,
		Text:          text,
		StartOffsetMs: event.OffsetMs,
		SpeakerID:     event.SpeakerTag,
	}
	t.nextID++
	t.segments = append(t.segments, segment)

	if translation := strings.TrimSpace(event.Translation); translation != "" && translationLanguage != "" {
		t.translated = append(t.translated, domain.TranslatedSegment{
			SegmentID: segment.ID,
			Language:  translationLanguage,
			Text:      translation,
		})
	}

	t.interim = domain.InterimPreview{}
	return segment, true
}

// ApplyCorrection sets a segment's display overlay. The authoritative text
// never changes, and a segment already corrected keeps its first overlay.
// It returns the updated segment when the overlay was applied.
func (t *transcriptState) ApplyCorrection(correction domain.Correction) (domain.Segment, bool) {
	corrected := strings.TrimSpace(correction.CorrectedText)
	if corrected == "" {
		return domain.Segment{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.segments {
		if t.segments[i].ID != correction.SegmentID {
			continue
		}
		if t.segments[i].IsCorrected {
			return domain.Segment{}, false
		}
		t.segments[i].IsCorrected = true
		t.segments[i].CorrectedText = corrected
		return t.segments[i], true
	}
	return domain.Segment{}, false
}

// AddAnnotation appends to the session annotation log.
func (t *transcriptState) AddAnnotation(annotation domain.Annotation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.annotations = append(t.annotations, annotation)
}

// Segments returns a copy of the ordered finalized segments.
func (t *transcriptState) Segments() []domain.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Segment(nil), t.segments...)
}

// Annotations returns a copy of the annotation log in arrival order.
func (t *transcriptState) Annotations() []domain.Annotation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Annotation(nil), t.annotations...)
}

func (t *transcriptState) SegmentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments)
}

func (t *transcriptState) Interim() domain.InterimPreview {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interim
}

// FullText joins the authoritative segment texts.
func (t *transcriptState) FullText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(t.segments))
	for _, segment := range t.segments {
		parts = append(parts, segment.Text)
	}
	return strings.Join(parts, " ")
}

// Translations joins translated segments per language, in segment order.
func (t *transcriptState) Translations() []domain.Translation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var order []string
	byLanguage := make(map[string][]string)
	for _, ts := range t.translated {
		if _, ok := byLanguage[ts.Language]; !ok {
			order = append(order, ts.Language)
		}
		byLanguage[ts.Language] = append(byLanguage[ts.Language], ts.Text)
	}

	out := make([]domain.Translation, 0, len(order))
	for _, language := range order {
		out = append(out, domain.Translation{
			Language: language,
			Text:     strings.Join(byLanguage[language], " "),
		})
	}
	return out
}

package domain

import "time"

// AnnotationKind distinguishes enrichment outputs.
type AnnotationKind string

const (
	AnnotationKindCorrection AnnotationKind = "correction"
	AnnotationKindCue        AnnotationKind = "cue"
	AnnotationKindDeepAnswer AnnotationKind = "deep_answer"
)

// CueType is the card type produced by the cues service.
type CueType string

const (
	CueTypeDefinition CueType = "definition"
	CueTypeBio        CueType = "bio"
	CueTypeQuestion   CueType = "question"
)

// Correction remaps one segment's displayed text. It never touches the
// authoritative segment text.
type Correction struct {
	SegmentID     int64  `json:"segmentId"`
	CorrectedText string `json:"correctedText"`
}

// Cue is a free-standing contextual card.
type Cue struct {
	Type  CueType `json:"type"`
	Title string  `json:"title"`
	Body  string  `json:"body"`
}

// Citation is one web source backing a deep answer.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// DeepAnswer is a web-search-backed answer to a detected or submitted
// question.
type DeepAnswer struct {
	Question   string     `json:"question"`
	AnswerText string     `json:"answerText"`
	Citations  []Citation `json:"citations,omitempty"`
}

// Annotation is the append-only output of an enrichment worker. CreatedAt is
// assigned at call completion, so annotation order reflects arrival order.
type Annotation struct {
	ID                 string         `json:"id"`
	Kind               AnnotationKind `json:"kind"`
	CreatedAt          time.Time      `json:"createdAt"`
	SourceSegmentIndex int            `json:"sourceSegmentIndex"`

	Correction *Correction `json:"correction,omitempty"`
	Cue        *Cue        `json:"cue,omitempty"`
	DeepAnswer *DeepAnswer `json:"deepAnswer,omitempty"`
}

package usecase

import (
	"livescribe/internal/ports"
)

// activeSession bundles the live resources of one recording attempt. The
// controller owns exactly one at a time; everything here is torn down together
// when the session ends.
type activeSession struct {
	cancel func()
	stream ports.AudioStream
	speech ports.SpeechSession

	transcript *transcriptState

	eventsDone chan struct{}
	audioDone  chan struct{}
}

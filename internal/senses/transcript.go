package senses

import (
	"context"
	"time"
)

// Transcript is one recognizer event. Only Final transcripts are classified;
// partials may be shown but never acted on. Err reports a recognizer failure
// without ending the stream.
type Transcript struct {
	Text   string
	Final  bool
	At     time.Time
	Source string
	Err    error
}

// Recognizer is the speech-to-text collaborator. Listen streams transcripts
// until ctx is cancelled or the input ends, then closes the channel.
type Recognizer interface {
	Listen(ctx context.Context) (<-chan Transcript, error)
}

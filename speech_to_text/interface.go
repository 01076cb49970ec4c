package speech_to_text

import (
	"context"
	"time"
)

// Interface transcribes 16 kHz mono float samples.
type Interface interface {
	Transcribe(ctx context.Context, samples []float32) ([]Segment, error)
}

type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

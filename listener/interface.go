package listener

import (
	"context"

	"fltr/history"
	"fltr/pipeline"
)

type Interface interface {
	ListenLoop(ctx context.Context) error
	HaltListening()
	ResumeListening()
}

type ControlInterface interface {
	HaltListening()
	ResumeListening()
}

// Runner produces a report for one utterance.
type Runner interface {
	Run(ctx context.Context, samples []int16, sampleRate int) (*pipeline.Report, error)
}

// ResultStore persists predictions.
type ResultStore interface {
	Speaker(ctx context.Context, id string) (history.Speaker, error)
	Record(ctx context.Context, r history.Result) (history.Result, error)
}

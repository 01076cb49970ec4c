package server

import (
	"context"

	"fltr/history"
	"fltr/mfcc"
	"fltr/pipeline"
)

// Analyzer runs the recognition pipeline.
type Analyzer interface {
	Run(ctx context.Context, samples []int16, sampleRate int) (*pipeline.Report, error)
	Features(samples []int16, sampleRate int) (mfcc.Result, error)
	SilenceMarkers(m [][]float32) []bool
}

// Store holds speakers and prediction history.
type Store interface {
	Register(ctx context.Context, name, gender string) (history.Speaker, error)
	Speaker(ctx context.Context, id string) (history.Speaker, error)
	Record(ctx context.Context, r history.Result) (history.Result, error)
	Recent(ctx context.Context, limit int) ([]history.Result, error)
}

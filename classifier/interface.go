// Package classifier maps an utterance to one of a fixed set of word labels.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoLabels is returned for an empty label set.
	ErrNoLabels = errors.New("classifier: no labels")
	// ErrShapeMismatch is returned when a model's output does not line up with its labels.
	ErrShapeMismatch = errors.New("classifier: model shape mismatch")
)

// Input carries both representations of an utterance; backends use whichever they need.
type Input struct {
	// Features is a [frames][coefficients] MFCC matrix.
	Features   [][]float32
	Samples    []int16
	SampleRate int
}

type Prediction struct {
	Label          string
	Index          int
	Confidence     float32
	Scores         []float32
	ProcessingTime time.Duration
}

func (p Prediction) String() string {
	return fmt.Sprintf("%s (%.2f)", p.Label, p.Confidence)
}

type Interface interface {
	Classify(ctx context.Context, in Input) (Prediction, error)
	Labels() []string
	Close() error
}

// Argmax returns the index and value of the largest score. Ties go to the
// lowest index; an empty slice yields -1.
func Argmax(scores []float32) (int, float32) {
	if len(scores) == 0 {
		return -1, 0
	}

	best, bestScore := 0, scores[0]
	for i := 1; i < len(scores); i++ {
		if scores[i] > bestScore {
			best, bestScore = i, scores[i]
		}
	}

	return best, bestScore
}

// predict picks the best label for scores. Scores must line up one to one
// with labels.
func predict(labels []string, scores []float32, elapsed time.Duration) (Prediction, error) {
	if len(scores) != len(labels) {
		return Prediction{}, fmt.Errorf("%w: %d scores for %d labels", ErrShapeMismatch, len(scores), len(labels))
	}

	best, score := Argmax(scores)
	if best < 0 {
		return Prediction{}, ErrNoLabels
	}

	return Prediction{
		Label:          labels[best],
		Index:          best,
		Confidence:     score,
		Scores:         scores,
		ProcessingTime: elapsed,
	}, nil
}

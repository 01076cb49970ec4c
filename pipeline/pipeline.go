// Package pipeline turns a captured utterance into a prediction report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fltr/baybayin"
	"fltr/classifier"
	"fltr/logger"
	"fltr/metrics"
	"fltr/mfcc"
	"fltr/pcm"

	"github.com/rs/zerolog"
)

// UnknownLabel is reported when classification fails.
const UnknownLabel = "unknown"

// ErrNoClassifier is returned by Run on a features-only pipeline.
var ErrNoClassifier = errors.New("pipeline: no classifier configured")

type Report struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Baybayin   string  `json:"baybayin"`
	Syllables  string  `json:"syllables"`

	// AudioDuration and ProcessingTime are in seconds; RTF is their ratio.
	AudioDuration  float64 `json:"audio_duration_sec"`
	ProcessingTime float64 `json:"processing_time_sec"`
	RTF            float64 `json:"rtf"`

	FrameCount     int         `json:"frame_count"`
	MFCC           [][]float32 `json:"mfcc,omitempty"`
	SilenceMarkers []bool      `json:"silence_markers,omitempty"`
	Scores         []float32   `json:"scores,omitempty"`
}

type Config struct {
	Extractor *mfcc.Extractor
	// Classifier may be nil for a pipeline that only extracts features.
	Classifier classifier.Interface
	// Standardize applies a global z-score to the MFCC matrix before inference.
	Standardize        bool
	SilenceThresholdDB float64
}

type Pipeline struct {
	extractor          *mfcc.Extractor
	classifier         classifier.Interface
	standardize        bool
	silenceThresholdDB float64
	log                zerolog.Logger
}

func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is nil")
	}

	threshold := cfg.SilenceThresholdDB
	if threshold == 0 {
		threshold = mfcc.DefaultSilenceThresholdDB
	}

	return &Pipeline{
		extractor:          cfg.Extractor,
		classifier:         cfg.Classifier,
		standardize:        cfg.Standardize,
		silenceThresholdDB: threshold,
		log:                logger.WithComponent("pipeline"),
	}, nil
}

// Features extracts the model input for samples without classifying them.
// Audio at another rate is resampled to the extractor's rate first.
func (p *Pipeline) Features(samples []int16, sampleRate int) (mfcc.Result, error) {
	if sampleRate <= 0 {
		return mfcc.Result{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	if rate := p.extractor.Config().SampleRate; sampleRate != rate {
		samples = pcm.FromFloat32(pcm.Resample(pcm.ToFloat32(samples), sampleRate, rate))
	}

	res, err := p.extractor.Extract(samples)
	if err != nil {
		return mfcc.Result{}, err
	}

	if p.standardize {
		res.Padded = mfcc.Standardize(res.Padded)
	}

	return res, nil
}

// SilenceMarkers flags the frames of m whose energy falls below the
// configured threshold.
func (p *Pipeline) SilenceMarkers(m [][]float32) []bool {
	return mfcc.SilenceMarkers(m, p.silenceThresholdDB)
}

// Run extracts features, classifies and annotates one utterance. A failed
// classification still returns a report labelled UnknownLabel together with
// the error, so callers can show the diagnostics.
func (p *Pipeline) Run(ctx context.Context, samples []int16, sampleRate int) (*Report, error) {
	if p.classifier == nil {
		return nil, ErrNoClassifier
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	features, err := p.Features(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	report := &Report{
		Label:          UnknownLabel,
		AudioDuration:  pcm.Duration(len(samples), sampleRate),
		FrameCount:     features.FrameCount,
		MFCC:           features.Padded,
		SilenceMarkers: p.SilenceMarkers(features.Padded),
	}

	prediction, classifyErr := p.classifier.Classify(ctx, classifier.Input{
		Features:   features.Padded,
		Samples:    samples,
		SampleRate: sampleRate,
	})
	if classifyErr == nil {
		report.Label = prediction.Label
		report.Confidence = prediction.Confidence
		report.Scores = prediction.Scores
		report.ProcessingTime = prediction.ProcessingTime.Seconds()
	} else {
		p.log.Error().Err(classifyErr).Msg("classification failed")
		metrics.RecordInferenceError()
	}

	report.Baybayin = baybayin.Translate(report.Label)
	report.Syllables = baybayin.Syllables(report.Label)

	if report.AudioDuration > 0 {
		report.RTF = report.ProcessingTime / report.AudioDuration
	}

	if classifyErr != nil {
		return report, fmt.Errorf("classify: %w", classifyErr)
	}

	metrics.RecordPrediction(report.Label, time.Duration(report.ProcessingTime*float64(time.Second)), report.RTF)

	p.log.Info().
		Str("label", report.Label).
		Float32("confidence", report.Confidence).
		Str("baybayin", report.Baybayin).
		Float64("audio_sec", report.AudioDuration).
		Float64("rtf", report.RTF).
		Msg("prediction")

	return report, nil
}

func (p *Pipeline) Labels() []string {
	if p.classifier == nil {
		return nil
	}

	return p.classifier.Labels()
}

// Package metrics provides Prometheus collectors for the recognition pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PredictionsTotal counts successful predictions by label.
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fltr_predictions_total",
		Help: "Total number of successful predictions, by label.",
	}, []string{"label"})

	// InferenceErrorsTotal counts failed classifications.
	InferenceErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fltr_inference_errors_total",
		Help: "Total number of failed classifications.",
	})

	// InferenceSeconds observes model latency.
	InferenceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fltr_inference_seconds",
		Help:    "Model inference latency in seconds.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// RealTimeFactor observes processing time divided by audio duration.
	RealTimeFactor = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fltr_real_time_factor",
		Help:    "Inference time divided by audio duration.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
	})

	// RecordingsTotal counts captured utterances by outcome (ok, empty, error).
	RecordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fltr_recordings_total",
		Help: "Total number of recording attempts, by outcome.",
	}, []string{"outcome"})

	// SilenceThreshold tracks the current amplitude threshold.
	SilenceThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fltr_silence_threshold",
		Help: "Current chunk peak amplitude below which audio counts as silence.",
	})
)

// RecordPrediction updates the per-prediction collectors.
func RecordPrediction(label string, elapsed time.Duration, rtf float64) {
	PredictionsTotal.WithLabelValues(label).Inc()
	InferenceSeconds.Observe(elapsed.Seconds())
	RealTimeFactor.Observe(rtf)
}

func RecordInferenceError() {
	InferenceErrorsTotal.Inc()
}

func RecordRecording(outcome string) {
	RecordingsTotal.WithLabelValues(outcome).Inc()
}

func SetSilenceThreshold(threshold int) {
	SilenceThreshold.Set(float64(threshold))
}

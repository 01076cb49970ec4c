// Package vad decides whether chunks of microphone audio contain voice.
package vad

import (
	"math"
	"math/cmplx"
	"sync/atomic"

	"fltr/pcm"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	// DefaultSilenceThreshold is the chunk peak below which a chunk is silent.
	DefaultSilenceThreshold = 5000

	// MinCalibratedThreshold keeps calibration in a quiet room from producing a hair trigger.
	MinCalibratedThreshold = 1000

	// CalibrationHeadroom multiplies the ambient peak when calibrating.
	CalibrationHeadroom = 2.5

	// FluxRatio is the relative spectral flux change treated as an onset or a drop-off.
	FluxRatio = 1.75
)

// Detector classifies a chunk as silent or not.
type Detector interface {
	Silent(chunk []int16) bool
}

// Resetter is implemented by detectors that carry state between chunks.
type Resetter interface {
	Reset()
}

// Amplitude treats chunks whose peak is below the threshold as silent. The
// threshold may be changed while another goroutine is detecting.
type Amplitude struct {
	threshold atomic.Int32
}

// NewAmplitude returns an amplitude detector; a non-positive threshold means
// DefaultSilenceThreshold.
func NewAmplitude(threshold int) *Amplitude {
	a := &Amplitude{}
	a.SetThreshold(threshold)

	return a
}

func (a *Amplitude) Threshold() int {
	return int(a.threshold.Load())
}

func (a *Amplitude) SetThreshold(threshold int) {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	a.threshold.Store(int32(threshold))
}

func (a *Amplitude) Silent(chunk []int16) bool {
	return pcm.MaxAbs(chunk) < a.Threshold()
}

// Calibrate derives an amplitude threshold from chunks of ambient noise.
func Calibrate(ambient [][]int16) int {
	if len(ambient) == 0 {
		return DefaultSilenceThreshold
	}

	var total float64
	for _, chunk := range ambient {
		total += float64(pcm.MaxAbs(chunk))
	}

	threshold := int(math.Ceil(total / float64(len(ambient)) * CalibrationHeadroom))
	if threshold < MinCalibratedThreshold {
		threshold = MinCalibratedThreshold
	}
	if threshold > math.MaxInt16 {
		threshold = math.MaxInt16
	}

	return threshold
}

// Flux measures spectral flux between successive chunks of a fixed size.
type Flux struct {
	size     int
	window   []float64
	previous []float64
}

func NewFlux(size int) *Flux {
	return &Flux{
		size:   size,
		window: window.Hann(size),
	}
}

// Flux returns the summed positive change of the magnitude spectrum since the
// previous call. The first call compares against silence.
func (f *Flux) Flux(chunk []int16) float64 {
	frame := make([]float64, f.size)
	for i := 0; i < f.size && i < len(chunk); i++ {
		frame[i] = float64(chunk[i]) / 32768 * f.window[i]
	}

	spectrum := fft.FFTReal(frame)
	mags := make([]float64, f.size/2+1)
	for k := range mags {
		mags[k] = cmplx.Abs(spectrum[k])
	}

	var flux float64
	for k, m := range mags {
		prev := 0.0
		if f.previous != nil {
			prev = f.previous[k]
		}
		if d := m - prev; d > 0 {
			flux += d
		}
	}
	f.previous = mags

	return flux
}

// Reset forgets the previous spectrum.
func (f *Flux) Reset() {
	f.previous = nil
}

// FluxOnset is a Detector that treats a chunk as voiced once spectral flux
// jumps by FluxRatio over the running baseline, and silent again once it
// drops back by the same ratio.
type FluxOnset struct {
	flux    *Flux
	last    float64
	voicing bool
}

func NewFluxOnset(size int) *FluxOnset {
	return &FluxOnset{flux: NewFlux(size)}
}

func (d *FluxOnset) Silent(chunk []int16) bool {
	flux := d.flux.Flux(chunk)
	if d.last == 0 {
		d.last = flux
		return true
	}

	if d.voicing {
		if flux*FluxRatio <= d.last {
			d.voicing = false
		} else {
			d.last = flux
		}
	} else {
		if flux >= d.last*FluxRatio {
			d.voicing = true
		}
		d.last = flux
	}

	return !d.voicing
}

// Reset clears the baseline so the next chunk starts a new measurement.
func (d *FluxOnset) Reset() {
	d.flux.Reset()
	d.last = 0
	d.voicing = false
}

// Package mfcc extracts fixed-shape Mel-frequency cepstral coefficient
// matrices from 16-bit mono PCM.
//
// The pipeline is pre-emphasis, Hamming-windowed framing, power spectrum,
// triangular mel filterbank, natural log and an unnormalized DCT-II. Output
// is padded or truncated to Config.TargetFrames rows so it can be fed to a
// model with a fixed input shape.
package mfcc

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"fltr/pcm"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// ErrTooShort is returned when the input does not fill a single FFT window.
var ErrTooShort = errors.New("mfcc: audio shorter than one analysis window")

const melFloor = 1e-10

// Config holds the feature extraction parameters.
type Config struct {
	SampleRate      int
	FFTSize         int
	HopSize         int
	NumCoefficients int
	NumMelBands     int
	TargetFrames    int
	PreEmphasis     float64
	MinFreq         float64
	MaxFreq         float64 // 0 means SampleRate/2
}

// DefaultConfig matches the shape the bundled models were trained on: [177][13].
func DefaultConfig() Config {
	return Config{
		SampleRate:      44100,
		FFTSize:         2048,
		HopSize:         512,
		NumCoefficients: 13,
		NumMelBands:     40,
		TargetFrames:    177,
		PreEmphasis:     pcm.PreEmphasisCoef,
		MinFreq:         0,
	}
}

// Result is the output of a single extraction.
type Result struct {
	// Padded is exactly TargetFrames x NumCoefficients.
	Padded [][]float32
	// Original holds one row per analysed frame.
	Original [][]float32
	// FrameCount is len(Original).
	FrameCount int
}

// Extractor computes MFCCs. It is safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	filters [][]float64
	dct     [][]float64
}

func New(cfg Config) (*Extractor, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("mfcc: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FFTSize <= 0 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("mfcc: fft size must be a power of two, got %d", cfg.FFTSize)
	}
	if cfg.HopSize <= 0 {
		return nil, fmt.Errorf("mfcc: hop size must be positive, got %d", cfg.HopSize)
	}
	if cfg.NumMelBands <= 0 || cfg.NumCoefficients <= 0 || cfg.NumCoefficients > cfg.NumMelBands {
		return nil, fmt.Errorf("mfcc: need 0 < coefficients (%d) <= mel bands (%d)", cfg.NumCoefficients, cfg.NumMelBands)
	}
	if cfg.TargetFrames <= 0 {
		return nil, fmt.Errorf("mfcc: target frames must be positive, got %d", cfg.TargetFrames)
	}
	if cfg.MaxFreq == 0 {
		cfg.MaxFreq = float64(cfg.SampleRate) / 2
	}
	if cfg.MinFreq < 0 || cfg.MinFreq >= cfg.MaxFreq {
		return nil, fmt.Errorf("mfcc: invalid frequency range [%g, %g]", cfg.MinFreq, cfg.MaxFreq)
	}

	return &Extractor{
		cfg:     cfg,
		window:  window.Hamming(cfg.FFTSize),
		filters: melFilterbank(cfg),
		dct:     dctMatrix(cfg.NumCoefficients, cfg.NumMelBands),
	}, nil
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract computes MFCCs from int16 PCM.
func (e *Extractor) Extract(samples []int16) (Result, error) {
	return e.extract(pcm.ToFloat32(samples))
}

func (e *Extractor) extract(samples []float32) (Result, error) {
	if len(samples) < e.cfg.FFTSize {
		return Result{}, ErrTooShort
	}

	signal := pcm.PreEmphasis(samples, e.cfg.PreEmphasis)
	numFrames := 1 + (len(signal)-e.cfg.FFTSize)/e.cfg.HopSize

	original := make([][]float32, numFrames)
	frame := make([]float64, e.cfg.FFTSize)
	for i := 0; i < numFrames; i++ {
		start := i * e.cfg.HopSize
		for j := range frame {
			frame[j] = float64(signal[start+j]) * e.window[j]
		}
		original[i] = e.cepstrum(e.powerSpectrum(frame))
	}

	return Result{
		Padded:     PadFrames(original, e.cfg.TargetFrames, e.cfg.NumCoefficients),
		Original:   original,
		FrameCount: numFrames,
	}, nil
}

func (e *Extractor) powerSpectrum(frame []float64) []float64 {
	spectrum := fft.FFTReal(frame)
	bins := e.cfg.FFTSize/2 + 1
	power := make([]float64, bins)
	n := float64(e.cfg.FFTSize)
	for k := 0; k < bins; k++ {
		m := cmplx.Abs(spectrum[k])
		power[k] = m * m / n
	}

	return power
}

func (e *Extractor) cepstrum(power []float64) []float32 {
	logMel := make([]float64, len(e.filters))
	for m, weights := range e.filters {
		var sum float64
		for k, w := range weights {
			if w != 0 {
				sum += w * power[k]
			}
		}
		logMel[m] = math.Log(math.Max(sum, melFloor))
	}

	out := make([]float32, len(e.dct))
	for k, basis := range e.dct {
		var sum float64
		for n, c := range basis {
			sum += logMel[n] * c
		}
		out[k] = float32(sum)
	}

	return out
}

// PadFrames copies m into a frames x coeffs matrix, zero-padding or truncating.
func PadFrames(m [][]float32, frames, coeffs int) [][]float32 {
	out := make([][]float32, frames)
	for i := range out {
		out[i] = make([]float32, coeffs)
		if i < len(m) {
			copy(out[i], m[i])
		}
	}

	return out
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

func melFilterbank(cfg Config) [][]float64 {
	bands := cfg.NumMelBands
	numBins := cfg.FFTSize/2 + 1

	melMin, melMax := hzToMel(cfg.MinFreq), hzToMel(cfg.MaxFreq)
	bin := make([]int, bands+2)
	for i := range bin {
		hz := melToHz(melMin + (melMax-melMin)*float64(i)/float64(bands+1))
		bin[i] = int(math.Floor(float64(cfg.FFTSize+1) * hz / float64(cfg.SampleRate)))
	}

	filters := make([][]float64, bands)
	for m := 1; m <= bands; m++ {
		w := make([]float64, numBins)
		for k := bin[m-1]; k < bin[m] && k < numBins; k++ {
			w[k] = float64(k-bin[m-1]) / float64(bin[m]-bin[m-1])
		}
		for k := bin[m]; k < bin[m+1] && k < numBins; k++ {
			w[k] = 1 - float64(k-bin[m])/float64(bin[m+1]-bin[m])
		}
		filters[m-1] = w
	}

	return filters
}

func dctMatrix(coeffs, bands int) [][]float64 {
	out := make([][]float64, coeffs)
	for k := range out {
		row := make([]float64, bands)
		for n := range row {
			row[n] = math.Cos(math.Pi * float64(k) * float64(2*n+1) / float64(2*bands))
		}
		out[k] = row
	}

	return out
}

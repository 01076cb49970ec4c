// Package pcm converts and conditions 16-bit mono PCM audio.
package pcm

import (
	"encoding/binary"
	"math"
)

const (
	// MaxAmplitude is the peak value Normalize scales recordings to.
	MaxAmplitude = 16384

	// DefaultTrimThreshold is the int16 level below which leading samples are
	// dropped before feature extraction.
	DefaultTrimThreshold = 3000

	// PreEmphasisCoef is the first-order high-pass coefficient used by the feature pipeline.
	PreEmphasisCoef = 0.97

	int16Scale = 32768.0
)

// MaxAbs returns the peak absolute amplitude of samples.
func MaxAbs(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}

	return peak
}

// Normalize scales samples so the peak equals MaxAmplitude. Silence is returned as-is.
func Normalize(samples []int16) []int16 {
	peak := MaxAbs(samples)
	if peak == 0 {
		return samples
	}

	factor := float32(MaxAmplitude) / float32(peak)
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(float32(s) * factor)
	}

	return out
}

// TrimLeading drops samples from the front while their magnitude is below threshold.
func TrimLeading(samples []int16, threshold int) []int16 {
	start := 0
	for start < len(samples) && abs16(samples[start]) < threshold {
		start++
	}

	out := make([]int16, len(samples)-start)
	copy(out, samples[start:])

	return out
}

// Condition prepares an utterance for feature extraction: the peak is
// normalized to MaxAmplitude, then the quiet lead-in below trimThreshold is
// dropped. Captured and decoded recordings both go through it.
func Condition(samples []int16, trimThreshold int) []int16 {
	if trimThreshold <= 0 {
		trimThreshold = DefaultTrimThreshold
	}

	return TrimLeading(Normalize(samples), trimThreshold)
}

// PreEmphasis applies y[i] = x[i] - coef*x[i-1].
func PreEmphasis(samples []float32, coef float64) []float32 {
	out := make([]float32, len(samples))
	if len(samples) == 0 {
		return out
	}

	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = float32(float64(samples[i]) - coef*float64(samples[i-1]))
	}

	return out
}

// ToFloat32 maps int16 samples into [-1, 1).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / int16Scale
	}

	return out
}

// FromFloat32 maps float samples back to int16, clamping out-of-range values.
func FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := int(s * 32767)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}

	return out
}

// ToBytes encodes samples as little-endian 16-bit PCM.
func ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}

	return out
}

// FromBytes decodes little-endian 16-bit PCM. A trailing odd byte is ignored.
func FromBytes(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}

	return out
}

// Resample converts samples between rates using linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}

	return out
}

// Duration returns the length of n samples at sampleRate, in seconds.
func Duration(n, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}

	return float64(n) / float64(sampleRate)
}

func abs16(s int16) int {
	v := int(s)
	if v < 0 {
		return -v
	}

	return v
}

package mfcc

import (
	"bufio"
	"io"
	"math"
	"strconv"
)

// DefaultSilenceThresholdDB marks frames whose cepstral energy is below -40 dB.
const DefaultSilenceThresholdDB = -40.0

// Standardize applies a global z-score over every value of m. A constant
// matrix is centred but not scaled.
func Standardize(m [][]float32) [][]float32 {
	var sum float64
	count := 0
	for _, row := range m {
		for _, v := range row {
			sum += float64(v)
			count++
		}
	}
	if count == 0 {
		return m
	}

	mean := sum / float64(count)
	var variance float64
	for _, row := range m {
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
	}
	std := math.Sqrt(variance / float64(count))
	if std == 0 {
		std = 1
	}

	out := make([][]float32, len(m))
	for i, row := range m {
		out[i] = make([]float32, len(row))
		for j, v := range row {
			out[i][j] = float32((float64(v) - mean) / std)
		}
	}

	return out
}

// SilenceMarkers flags each frame whose energy 10*log10(sum c^2) falls below thresholdDB.
func SilenceMarkers(m [][]float32, thresholdDB float64) []bool {
	out := make([]bool, len(m))
	for i, row := range m {
		var sum float64
		for _, c := range row {
			sum += float64(c) * float64(c)
		}
		out[i] = 10*math.Log10(sum+1e-8) < thresholdDB
	}

	return out
}

// Flatten lays m out row-major into frames*coeffs values, zero-padding
// missing frames and coefficients.
func Flatten(m [][]float32, frames, coeffs int) []float32 {
	out := make([]float32, frames*coeffs)
	for i := 0; i < frames && i < len(m); i++ {
		for j := 0; j < coeffs && j < len(m[i]); j++ {
			out[i*coeffs+j] = m[i][j]
		}
	}

	return out
}

// WriteText writes one frame per line with space separated coefficients.
func WriteText(w io.Writer, m [][]float32) error {
	bw := bufio.NewWriter(w)
	for _, row := range m {
		for j, v := range row {
			if j > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return bw.Flush()
}

package mfcc

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(freq float64, n, sampleRate int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	t.Run("rejects a non power of two fft size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.FFTSize = 1000
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("rejects more coefficients than mel bands", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NumCoefficients = 41
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("fills in the nyquist frequency", func(t *testing.T) {
		e := newExtractor(t)
		assert.Equal(t, 22050.0, e.Config().MaxFreq)
	})
}

func TestExtract(t *testing.T) {
	e := newExtractor(t)

	t.Run("input shorter than one window is rejected", func(t *testing.T) {
		_, err := e.Extract(make([]int16, 2047))
		assert.ErrorIs(t, err, ErrTooShort)
	})

	t.Run("silence collapses to the log floor in c0", func(t *testing.T) {
		res, err := e.Extract(make([]int16, 2048))
		require.NoError(t, err)
		require.Equal(t, 1, res.FrameCount)

		want := 40 * math.Log(melFloor)
		assert.InDelta(t, want, res.Original[0][0], 1e-2)
		for k := 1; k < 13; k++ {
			assert.InDelta(t, 0, res.Original[0][k], 1e-3, "coefficient %d", k)
		}
	})

	t.Run("one second of audio yields 83 frames padded to 177", func(t *testing.T) {
		res, err := e.Extract(tone(1000, 44100, 44100, 0.5))
		require.NoError(t, err)

		assert.Equal(t, 83, res.FrameCount)
		assert.Len(t, res.Original, 83)
		require.Len(t, res.Padded, 177)
		for _, row := range res.Padded {
			assert.Len(t, row, 13)
		}
		assert.Equal(t, res.Original[82], res.Padded[82])
		assert.Equal(t, make([]float32, 13), res.Padded[83])
	})

	t.Run("a tone carries more energy than silence", func(t *testing.T) {
		quiet, err := e.Extract(make([]int16, 4096))
		require.NoError(t, err)
		loud, err := e.Extract(tone(440, 4096, 44100, 0.8))
		require.NoError(t, err)

		assert.Greater(t, loud.Original[0][0], quiet.Original[0][0])
	})

	t.Run("long input is truncated to the target frames", func(t *testing.T) {
		res, err := e.Extract(tone(300, 44100*3, 44100, 0.3))
		require.NoError(t, err)

		assert.Greater(t, res.FrameCount, 177)
		assert.Len(t, res.Padded, 177)
		assert.Equal(t, res.Original[176], res.Padded[176])
	})
}

// Two integer sawtooth waves; values computed independently with a plain
// DFT implementation of the same pipeline.
func TestExtractKnownValues(t *testing.T) {
	e, err := New(Config{
		SampleRate:      8000,
		FFTSize:         256,
		HopSize:         128,
		NumCoefficients: 13,
		NumMelBands:     20,
		TargetFrames:    8,
		PreEmphasis:     0.97,
	})
	require.NoError(t, err)

	samples := make([]int16, 768)
	for n := range samples {
		samples[n] = int16(((n*7)%64-32)*300 + ((n*3)%50-25)*200)
	}

	want := [][]float32{
		{-90.77365, -35.16673, -14.26426, -11.11093, -4.62438, -0.56794, 0.68798, -4.37574, -1.08231, 8.97609, 3.12277, -11.67139, -6.15107},
		{-89.99640, -35.63309, -13.41150, -9.65380, -4.01172, -1.35493, -0.01150, -4.07570, -0.77209, 9.84437, 2.82511, -11.67050, -7.42316},
		{-90.74106, -36.28316, -13.41971, -11.63414, -6.02445, -0.76224, 2.62305, -3.61312, -1.78864, 9.85061, 3.34620, -12.17053, -6.83128},
		{-89.25661, -34.33887, -13.90062, -11.34977, -2.68397, -0.82309, 2.18918, -2.31708, -2.67457, 9.82365, 0.88337, -11.83585, -5.28169},
		{-90.40015, -35.97187, -13.06675, -11.30918, -5.84489, -0.53136, 3.12337, -3.26441, -1.55929, 10.17355, 3.69707, -11.48264, -6.30396},
	}

	res, err := e.Extract(samples)
	require.NoError(t, err)
	require.Equal(t, len(want), res.FrameCount)
	require.Len(t, res.Padded, 8)

	for i, row := range want {
		for k, v := range row {
			assert.InDelta(t, v, res.Original[i][k], 1e-3, "frame %d coefficient %d", i, k)
			assert.Equal(t, res.Original[i][k], res.Padded[i][k])
		}
	}
	for i := len(want); i < 8; i++ {
		assert.Equal(t, make([]float32, 13), res.Padded[i])
	}
}

func TestMelFilterbank(t *testing.T) {
	filters := melFilterbank(newExtractor(t).Config())
	require.Len(t, filters, 40)

	for m, w := range filters {
		var peak float64
		for _, v := range w {
			assert.GreaterOrEqual(t, v, 0.0)
			peak = math.Max(peak, v)
		}
		assert.LessOrEqual(t, peak, 1.0, "filter %d", m)
		assert.Greater(t, peak, 0.0, "filter %d is empty", m)
	}
}

func TestMelScale(t *testing.T) {
	assert.InDelta(t, 1000, melToHz(hzToMel(1000)), 1e-9)
	assert.InDelta(t, 0, hzToMel(0), 1e-12)
}

func TestStandardize(t *testing.T) {
	t.Run("produces zero mean and unit variance", func(t *testing.T) {
		out := Standardize([][]float32{{1, 2}, {3, 4}})

		var sum, sq float64
		for _, row := range out {
			for _, v := range row {
				sum += float64(v)
				sq += float64(v) * float64(v)
			}
		}
		assert.InDelta(t, 0, sum/4, 1e-6)
		assert.InDelta(t, 1, sq/4, 1e-6)
	})

	t.Run("constant input is centred without dividing by zero", func(t *testing.T) {
		out := Standardize([][]float32{{5, 5}, {5, 5}})
		assert.Equal(t, [][]float32{{0, 0}, {0, 0}}, out)
	})
}

func TestSilenceMarkers(t *testing.T) {
	markers := SilenceMarkers([][]float32{{0, 0}, {1, 0}, {0.001, 0.001}}, DefaultSilenceThresholdDB)

	assert.Equal(t, []bool{true, false, true}, markers)
}

func TestFlatten(t *testing.T) {
	out := Flatten([][]float32{{1, 2, 3}, {4, 5, 6}}, 3, 2)

	assert.Equal(t, []float32{1, 2, 4, 5, 0, 0}, out)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, [][]float32{{1, -0.5}, {2.25, 0}}))

	assert.Equal(t, "1 -0.5\n2.25 0\n", buf.String())
}

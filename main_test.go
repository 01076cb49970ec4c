package main

import (
	"context"
	"io"
	"math"
	"path/filepath"
	"testing"

	"fltr/config"
	"fltr/history"
	"fltr/pcm"
	"fltr/recordings"
	"fltr/speech_extraction"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsApply(t *testing.T) {
	t.Run("flags override loaded settings", func(t *testing.T) {
		cfg := config.Default()

		options{
			logLevel:  "debug",
			model:     "ggml-small.bin",
			backend:   config.BackendWhisper,
			addr:      ":9090",
			calibrate: true,
			save:      true,
		}.apply(&cfg)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "ggml-small.bin", cfg.Model.Path)
		assert.Equal(t, config.BackendWhisper, cfg.Model.Backend)
		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.True(t, cfg.Audio.Calibrate)
		assert.True(t, cfg.Storage.SaveRecordings)
		assert.True(t, cfg.Storage.SaveMFCC)
	})

	t.Run("unset flags keep loaded settings", func(t *testing.T) {
		cfg := config.Default()
		cfg.Model.LabelsPath = "words.txt"

		options{}.apply(&cfg)

		assert.Equal(t, config.Default().Model.Path, cfg.Model.Path)
		assert.Equal(t, "words.txt", cfg.Model.LabelsPath)
		assert.False(t, cfg.Storage.SaveRecordings)
	})
}

type chunkSource struct {
	chunks [][]int16
	rate   int
}

func (s *chunkSource) Start() error    { return nil }
func (s *chunkSource) Stop() error     { return nil }
func (s *chunkSource) Close() error    { return nil }
func (s *chunkSource) SampleRate() int { return s.rate }

func (s *chunkSource) Read() ([]int16, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}

	c := s.chunks[0]
	s.chunks = s.chunks[1:]

	return c, nil
}

func utteranceChunks(rate, size int) [][]int16 {
	var chunks [][]int16
	chunks = append(chunks, make([]int16, size))

	for i := 0; i < 12; i++ {
		c := make([]int16, size)
		for j := range c {
			n := i*size + j
			// rises through the trim threshold over the first chunk
			amp := math.Min(1, float64(n)/float64(size)) * 12000
			c[j] = int16(amp * math.Sin(2*math.Pi*330*float64(n)/float64(rate)))
		}
		chunks = append(chunks, c)
	}

	for i := 0; i < 3; i++ {
		chunks = append(chunks, make([]int16, size))
	}

	return chunks
}

func testApp(t *testing.T) *app {
	t.Helper()

	return &app{cfg: config.Default(), fs: afero.NewMemMapFs(), log: zerolog.Nop()}
}

func TestCaptureAndFileProduceSameFeatures(t *testing.T) {
	a := testApp(t)
	rate := a.cfg.Audio.SampleRate

	recorder, err := speech_extraction.New(&speech_extraction.Config{
		Source:           &chunkSource{chunks: utteranceChunks(rate, a.cfg.Audio.ChunkSize), rate: rate},
		SilenceThreshold: a.cfg.Audio.SilenceThreshold,
		SilenceChunks:    2,
		TrimThreshold:    a.cfg.Audio.TrimThreshold,
		PreRollSamples:   a.cfg.Audio.PreRollSamples,
	})
	require.NoError(t, err)

	utterance, err := recorder.Record(context.Background())
	require.NoError(t, err)
	require.Less(t, len(utterance.Trimmed), len(utterance.Raw))

	require.NoError(t, a.fs.MkdirAll("rec", 0o755))
	f, err := a.fs.Create("rec/word.wav")
	require.NoError(t, err)
	require.NoError(t, recordings.WriteWAV(f, utterance.Raw, rate))

	samples, sampleRate, err := a.loadUtterance("rec/word.wav")
	require.NoError(t, err)
	assert.Equal(t, rate, sampleRate)
	assert.Equal(t, utterance.Trimmed, samples)

	p, err := a.newFeaturePipeline(nil)
	require.NoError(t, err)

	fromCapture, err := p.Features(utterance.Trimmed, utterance.SampleRate)
	require.NoError(t, err)

	fromFile, err := p.Features(samples, sampleRate)
	require.NoError(t, err)

	assert.Equal(t, fromCapture.Padded, fromFile.Padded)
	assert.Equal(t, fromCapture.FrameCount, fromFile.FrameCount)
}

func TestLoadUtterance(t *testing.T) {
	t.Run("raw pcm uses the capture rate", func(t *testing.T) {
		a := testApp(t)
		require.NoError(t, afero.WriteFile(a.fs, "word.pcm", pcm.ToBytes([]int16{100, -200, 4096, 1024, -8192}), 0o644))

		samples, sampleRate, err := a.loadUtterance("word.pcm")
		require.NoError(t, err)
		assert.Equal(t, a.cfg.Audio.SampleRate, sampleRate)
		assert.Equal(t, []int16{8192, 2048, -16384}, samples)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := testApp(t).loadUtterance("nope.wav")
		assert.Error(t, err)
	})
}

func TestClassifyRejectsUnknownSpeaker(t *testing.T) {
	a := testApp(t)
	a.cfg.Storage.HistoryPath = filepath.Join(t.TempDir(), "history.db")
	a.opts.speaker = "nobody"

	err := a.classify(context.Background(), []string{"word.wav"})
	assert.ErrorIs(t, err, history.ErrUnknownSpeaker)
}

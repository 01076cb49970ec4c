package recordings

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := New(&Config{FileSys: fs, Dir: "/data/recordings"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return s, fs
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestWAVRoundTrip(t *testing.T) {
	s, fs := newStore(t)
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}

	path, err := s.SaveWAV(samples, 44100)
	require.NoError(t, err)
	assert.Equal(t, "/data/recordings/recording_1700000000123.wav", path)

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "WAVE", string(raw[8:12]))

	got, rate, err := s.LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, rate)
	assert.Equal(t, samples, got)
}

func TestSavePCM(t *testing.T) {
	s, fs := newStore(t)

	path, err := s.SavePCM([]int16{1, -1})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pcm"))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff}, raw)
}

func TestLoad(t *testing.T) {
	s, _ := newStore(t)
	samples := []int16{5, -5, 12000}

	wavPath, err := s.SaveWAV(samples, 22050)
	require.NoError(t, err)
	pcmPath, err := s.SavePCM(samples)
	require.NoError(t, err)

	t.Run("wav carries its own rate", func(t *testing.T) {
		got, rate, err := s.Load(wavPath, 44100)
		require.NoError(t, err)
		assert.Equal(t, samples, got)
		assert.Equal(t, 22050, rate)
	})

	t.Run("raw pcm uses the given rate", func(t *testing.T) {
		got, rate, err := s.Load(pcmPath, 44100)
		require.NoError(t, err)
		assert.Equal(t, samples, got)
		assert.Equal(t, 44100, rate)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := s.Load("/nope.pcm", 44100)
		assert.Error(t, err)
	})
}

func TestSaveMFCC(t *testing.T) {
	s, fs := newStore(t)

	path, err := s.SaveMFCC([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, "/data/recordings/mfcc_1700000000123.txt", path)

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "1 2\n3 4\n", string(raw))
}

func TestDecodeWAV(t *testing.T) {
	t.Run("garbage is rejected", func(t *testing.T) {
		_, _, err := DecodeWAV(bytes.NewReader([]byte("definitely not a wav file")))
		assert.ErrorIs(t, err, ErrInvalidWAV)
	})

	t.Run("missing file", func(t *testing.T) {
		s, _ := newStore(t)
		_, _, err := s.LoadWAV("/nope.wav")
		assert.Error(t, err)
	})
}

func TestFirstChannel(t *testing.T) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:   []int{1, 100, 2, 200, 3, 300},
	}

	assert.Equal(t, []int16{1, 2, 3}, firstChannel(buf))
}

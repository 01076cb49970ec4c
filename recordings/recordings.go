// Package recordings persists captured audio and feature dumps.
package recordings

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fltr/mfcc"
	"fltr/pcm"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

// ErrInvalidWAV is returned for files that are not PCM WAV.
var ErrInvalidWAV = errors.New("recordings: not a valid PCM wav file")

type Store struct {
	fileSys afero.Fs
	dir     string
	now     func() time.Time
}

type Config struct {
	FileSys afero.Fs
	Dir     string
}

func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}

	if err := cfg.FileSys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	return &Store{
		fileSys: cfg.FileSys,
		dir:     dir,
		now:     time.Now,
	}, nil
}

func (s *Store) path(prefix, ext string) string {
	return filepath.Join(s.dir, prefix+"_"+strconv.FormatInt(s.now().UnixMilli(), 10)+ext)
}

// SaveWAV writes mono 16-bit samples as recording_<unixms>.wav and returns the path.
func (s *Store) SaveWAV(samples []int16, sampleRate int) (string, error) {
	name := s.path("recording", ".wav")

	f, err := s.fileSys.Create(name)
	if err != nil {
		return "", err
	}

	if err := WriteWAV(f, samples, sampleRate); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	return name, nil
}

// WriteWAV encodes samples to out and closes it.
func WriteWAV(out io.WriteCloser, samples []int16, sampleRate int) error {
	param := wave.WriterParam{
		Out:           out,
		Channel:       1,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		_ = out.Close()
		return err
	}

	if _, err := waveWriter.WriteSample16(samples); err != nil {
		_ = waveWriter.Close()
		return err
	}

	return waveWriter.Close()
}

// SavePCM writes raw little-endian 16-bit samples as recording_<unixms>.pcm.
func (s *Store) SavePCM(samples []int16) (string, error) {
	name := s.path("recording", ".pcm")

	if err := afero.WriteFile(s.fileSys, name, pcm.ToBytes(samples), 0o644); err != nil {
		return "", err
	}

	return name, nil
}

// SaveMFCC writes the matrix as text, one frame per line.
func (s *Store) SaveMFCC(m [][]float32) (string, error) {
	name := s.path("mfcc", ".txt")

	f, err := s.fileSys.Create(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := mfcc.WriteText(f, m); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	return name, nil
}

// LoadPCM reads a raw little-endian 16-bit file as written by SavePCM.
func (s *Store) LoadPCM(path string) ([]int16, error) {
	data, err := afero.ReadFile(s.fileSys, path)
	if err != nil {
		return nil, err
	}

	return pcm.FromBytes(data), nil
}

// Load reads a recording by extension: .pcm files are raw samples at
// pcmSampleRate, anything else is decoded as wav.
func (s *Store) Load(path string, pcmSampleRate int) ([]int16, int, error) {
	if strings.EqualFold(filepath.Ext(path), ".pcm") {
		samples, err := s.LoadPCM(path)
		if err != nil {
			return nil, 0, err
		}

		return samples, pcmSampleRate, nil
	}

	return s.LoadWAV(path)
}

// LoadWAV reads a 16-bit PCM wav file. Multi-channel audio keeps channel 0.
func (s *Store) LoadWAV(path string) ([]int16, int, error) {
	f, err := s.fileSys.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	return DecodeWAV(f)
}

// DecodeWAV reads a 16-bit PCM wav stream.
func DecodeWAV(r io.ReadSeeker) ([]int16, int, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}

	if d.BitDepth != 16 {
		return nil, 0, fmt.Errorf("%w: bit depth %d, want 16", ErrInvalidWAV, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	return firstChannel(buf), int(d.SampleRate), nil
}

func firstChannel(buf *audio.IntBuffer) []int16 {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		channels = buf.Format.NumChannels
	}

	out := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		out = append(out, int16(buf.Data[i]))
	}

	return out
}

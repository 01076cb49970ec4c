package speech_extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"fltr/logger"
	"fltr/pcm"
	"fltr/ring_buffer"
	"fltr/speech_extraction/vad"

	"github.com/rs/zerolog"
)

const (
	DefaultSampleRate     = 44100
	DefaultChunkSize      = 1024
	DefaultSilenceChunks  = 20
	DefaultTrimThreshold  = pcm.DefaultTrimThreshold
	DefaultPreRollSamples = DefaultChunkSize
)

// ErrNoAudio is returned when nothing above the silence threshold was captured.
var ErrNoAudio = errors.New("no audio recorded")

// Utterance is one captured stretch of speech.
type Utterance struct {
	// Raw is everything captured from the trigger to the end of speech,
	// including pre-roll.
	Raw []int16
	// Trimmed is Raw normalized to pcm.MaxAmplitude with the quiet lead-in removed.
	Trimmed    []int16
	SampleRate int
	StartedAt  time.Time
	Duration   time.Duration
}

type Config struct {
	Source Source
	// Detector overrides the amplitude detector built from SilenceThreshold.
	// Calibration only affects the amplitude detector.
	Detector         vad.Detector
	SilenceThreshold int
	SilenceChunks    int
	TrimThreshold    int
	PreRollSamples   int
	MaxDuration      time.Duration
}

type recorderImpl struct {
	source         Source
	detector       vad.Detector
	amplitude      *vad.Amplitude
	silenceChunks  int
	trimThreshold  int
	preRollSamples int
	maxDuration    time.Duration
	halted         atomic.Bool
	log            zerolog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("source is nil")
	}

	r := &recorderImpl{
		source:         cfg.Source,
		detector:       cfg.Detector,
		silenceChunks:  cfg.SilenceChunks,
		trimThreshold:  cfg.TrimThreshold,
		preRollSamples: cfg.PreRollSamples,
		maxDuration:    cfg.MaxDuration,
		log:            logger.WithComponent("speech_extraction"),
	}

	if r.detector == nil {
		r.amplitude = vad.NewAmplitude(cfg.SilenceThreshold)
		r.detector = r.amplitude
	}

	if r.silenceChunks <= 0 {
		r.silenceChunks = DefaultSilenceChunks
	}
	if r.trimThreshold <= 0 {
		r.trimThreshold = DefaultTrimThreshold
	}
	if r.preRollSamples < 0 {
		r.preRollSamples = 0
	}

	return r, nil
}

// Record waits for voice, captures until SilenceChunks consecutive silent
// chunks follow, and returns the normalized, trimmed utterance.
func (r *recorderImpl) Record(ctx context.Context) (*Utterance, error) {
	if resetter, ok := r.detector.(vad.Resetter); ok {
		resetter.Reset()
	}

	if err := r.source.Start(); err != nil {
		return nil, fmt.Errorf("start source: %w", err)
	}

	defer func() {
		if err := r.source.Stop(); err != nil {
			r.log.Warn().Err(err).Msg("error stopping source")
		}
	}()

	sampleRate := r.source.SampleRate()
	maxSamples := 0
	if r.maxDuration > 0 {
		maxSamples = int(r.maxDuration.Seconds() * float64(sampleRate))
	}

	var (
		recorded     []int16
		triggered    bool
		silenceCount int
		startedAt    time.Time
	)

	ringBuffer := ring_buffer.New(r.preRollSamples)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if r.halted.CompareAndSwap(true, false) {
			r.log.Debug().Msg("recording halted")
			break
		}

		chunk, err := r.source.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}

		if len(chunk) == 0 {
			continue
		}

		silent := r.detector.Silent(chunk)

		if !triggered {
			if silent {
				// keep a buffer of the first bit of audio before detection
				ringBuffer.Add(chunk)
				continue
			}

			triggered = true
			startedAt = time.Now()
			recorded = append(recorded, ringBuffer.Read()...)

			r.log.Debug().Msg("voice detected, recording started")
		}

		recorded = append(recorded, chunk...)

		if silent {
			silenceCount++
		} else {
			silenceCount = 0
		}

		if silenceCount > r.silenceChunks {
			r.log.Debug().Int("samples", len(recorded)).Msg("silence detected, recording stopped")
			break
		}

		if maxSamples > 0 && len(recorded) >= maxSamples {
			r.log.Debug().Dur("max", r.maxDuration).Msg("maximum duration reached")
			break
		}
	}

	if len(recorded) == 0 {
		return nil, ErrNoAudio
	}

	trimmed := pcm.Condition(recorded, r.trimThreshold)
	if len(trimmed) == 0 {
		return nil, ErrNoAudio
	}

	return &Utterance{
		Raw:        recorded,
		Trimmed:    trimmed,
		SampleRate: sampleRate,
		StartedAt:  startedAt,
		Duration:   time.Duration(pcm.Duration(len(recorded), sampleRate) * float64(time.Second)),
	}, nil
}

// Calibrate listens to chunks of ambient noise and adopts a matching silence threshold.
func (r *recorderImpl) Calibrate(ctx context.Context, chunks int) (int, error) {
	if chunks <= 0 {
		return 0, fmt.Errorf("calibration needs at least one chunk, got %d", chunks)
	}

	if err := r.source.Start(); err != nil {
		return 0, fmt.Errorf("start source: %w", err)
	}

	defer func() {
		if err := r.source.Stop(); err != nil {
			r.log.Warn().Err(err).Msg("error stopping source")
		}
	}()

	ambient := make([][]int16, 0, chunks)
	for len(ambient) < chunks {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		chunk, err := r.source.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read source: %w", err)
		}

		ambient = append(ambient, append([]int16(nil), chunk...))
	}

	if len(ambient) == 0 {
		return 0, ErrNoAudio
	}

	threshold := vad.Calibrate(ambient)
	if r.amplitude != nil {
		r.amplitude.SetThreshold(threshold)
	} else {
		r.log.Warn().Msg("custom voice detector ignores the calibrated threshold")
	}

	r.log.Info().Int("threshold", threshold).Int("chunks", len(ambient)).Msg("calibration complete")

	return threshold, nil
}

// Halt ends the current recording after its next chunk. A halt issued while
// no recording runs ends the next one immediately.
func (r *recorderImpl) Halt() {
	r.halted.Store(true)
}

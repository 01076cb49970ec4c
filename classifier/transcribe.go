package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fltr/logger"
	"fltr/pcm"
	"fltr/speech_to_text"

	"github.com/rs/zerolog"
)

type TranscribeConfig struct {
	STTEngine speech_to_text.Interface
	Labels    []string
}

// transcribeImpl runs speech-to-text and snaps the transcript to the closest
// label by edit distance.
type transcribeImpl struct {
	sttEngine speech_to_text.Interface
	labels    []string
	keys      []string
	log       zerolog.Logger
}

func NewTranscribe(cfg *TranscribeConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.STTEngine == nil {
		return nil, fmt.Errorf("sttEngine is nil")
	}

	if len(cfg.Labels) == 0 {
		return nil, ErrNoLabels
	}

	keys := make([]string, len(cfg.Labels))
	for i, l := range cfg.Labels {
		keys[i] = normalizeText(l)
	}

	return &transcribeImpl{
		sttEngine: cfg.STTEngine,
		labels:    cfg.Labels,
		keys:      keys,
		log:       logger.WithComponent("classifier").With().Str("backend", "transcribe").Logger(),
	}, nil
}

func (c *transcribeImpl) Classify(ctx context.Context, in Input) (Prediction, error) {
	if len(in.Samples) == 0 {
		return Prediction{}, fmt.Errorf("transcription needs raw samples")
	}

	samples := pcm.Resample(pcm.ToFloat32(in.Samples), in.SampleRate, speech_to_text.SampleRate)

	start := time.Now()
	segments, err := c.sttEngine.Transcribe(ctx, samples)
	if err != nil {
		return Prediction{}, fmt.Errorf("transcribe: %w", err)
	}
	elapsed := time.Since(start)

	text := speech_to_text.Join(segments)

	prediction, err := predict(c.labels, c.score(normalizeText(text)), elapsed)
	if err != nil {
		return Prediction{}, err
	}

	c.log.Debug().Str("transcript", text).Str("label", prediction.Label).Msg("transcript matched")

	return prediction, nil
}

// score returns 1 - distance/longest for every label, in [0, 1].
func (c *transcribeImpl) score(text string) []float32 {
	scores := make([]float32, len(c.keys))
	for i, key := range c.keys {
		longest := max(len(text), len(key))
		if longest == 0 {
			scores[i] = 1
			continue
		}
		scores[i] = 1 - float32(levenshtein(text, key))/float32(longest)
	}

	return scores
}

func (c *transcribeImpl) Labels() []string {
	return c.labels
}

func (c *transcribeImpl) Close() error {
	return nil
}

func normalizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(s))
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

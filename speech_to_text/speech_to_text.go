package speech_to_text

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// SampleRate is the rate whisper models expect.
const SampleRate = whisper.SampleRate

type sttImpl struct {
	mu       sync.Mutex
	model    whisper.Model
	language string
}

type Config struct {
	Model    whisper.Model
	Language string // e.g. "tl"; empty keeps the model default
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	return &sttImpl{
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

func (stt *sttImpl) Transcribe(ctx context.Context, samples []float32) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// whisper contexts are not safe to run concurrently against one model
	stt.mu.Lock()
	defer stt.mu.Unlock()

	wctx, err := stt.model.NewContext()
	if err != nil {
		return nil, err
	}

	if stt.language != "" {
		if err := wctx.SetLanguage(stt.language); err != nil {
			return nil, fmt.Errorf("set language %q: %w", stt.language, err)
		}
	}

	var cb whisper.SegmentCallback

	if err := wctx.Process(samples, cb); err != nil {
		return nil, err
	}

	return collectSegments(func() (Segment, error) {
		s, err := wctx.NextSegment()
		if err != nil {
			return Segment{}, err
		}
		return Segment{Start: s.Start, End: s.End, Text: s.Text}, nil
	})
}

// collectSegments drains next until io.EOF, dropping annotations such as
// "[BLANK_AUDIO]" or "(music)" and repeated text.
func collectSegments(next func() (Segment, error)) ([]Segment, error) {
	seenText := make(map[string]bool)

	segments := make([]Segment, 0)

	for {
		segment, err := next()
		if err == io.EOF {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}

		// if segment text starts or ends with a parenthesis or a bracket, then ignore it
		if text[0] == '(' || text[0] == '[' ||
			text[len(text)-1] == ')' || text[len(text)-1] == ']' {
			continue
		}

		// if we've already seen this text, then ignore it
		if seenText[text] {
			continue
		}
		seenText[text] = true

		segment.Text = text
		segments = append(segments, segment)
	}
}

// Join concatenates segment texts with single spaces.
func Join(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}

	return strings.Join(parts, " ")
}

package speech_extraction

import "context"

// Interface records single utterances from an audio source.
type Interface interface {
	Record(ctx context.Context) (*Utterance, error)
	Calibrate(ctx context.Context, chunks int) (int, error)
	Halt()
}

// Source is a running stream of 16-bit mono chunks.
type Source interface {
	Start() error
	// Read blocks until the next chunk is available. The returned slice is
	// only valid until the next call.
	Read() ([]int16, error)
	Stop() error
	Close() error
	SampleRate() int
}

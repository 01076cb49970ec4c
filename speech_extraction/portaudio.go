package speech_extraction

import (
	"sync"

	"fltr/logger"

	"github.com/gordonklaus/portaudio"
)

var (
	audioMu      sync.Mutex
	audioRunning int
)

// PortAudioSource reads the default input device through portaudio.
type PortAudioSource struct {
	sampleRate int
	in         []int16
	stream     *portaudio.Stream
}

// NewPortAudioSource initializes portaudio and opens the default input stream.
func NewPortAudioSource(sampleRate, chunkSize int) (*PortAudioSource, error) {
	if err := initAudio(); err != nil {
		return nil, err
	}

	in := make([]int16, chunkSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	if err != nil {
		freeAudio()
		return nil, err
	}

	return &PortAudioSource{
		sampleRate: sampleRate,
		in:         in,
		stream:     stream,
	}, nil
}

func (p *PortAudioSource) Start() error {
	return p.stream.Start()
}

func (p *PortAudioSource) Read() ([]int16, error) {
	if err := p.stream.Read(); err != nil {
		return nil, err
	}

	return p.in, nil
}

func (p *PortAudioSource) Stop() error {
	return p.stream.Stop()
}

func (p *PortAudioSource) Close() error {
	err := p.stream.Close()
	freeAudio()

	return err
}

func (p *PortAudioSource) SampleRate() int {
	return p.sampleRate
}

func initAudio() error {
	audioMu.Lock()
	defer audioMu.Unlock()

	if audioRunning == 0 {
		if err := portaudio.Initialize(); err != nil {
			return err
		}
	}
	audioRunning++

	return nil
}

func freeAudio() {
	audioMu.Lock()
	defer audioMu.Unlock()

	if audioRunning == 0 {
		return
	}

	audioRunning--
	if audioRunning == 0 {
		if err := portaudio.Terminate(); err != nil {
			log := logger.WithComponent("speech_extraction")
			log.Warn().Err(err).Msg("error while freeing audio")
		}
	}
}

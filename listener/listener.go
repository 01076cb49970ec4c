package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fltr/clients/webhook"
	"fltr/history"
	"fltr/logger"
	"fltr/metrics"
	"fltr/pipeline"
	"fltr/recordings"
	"fltr/speech_extraction"

	"github.com/rs/zerolog"
)

const (
	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

type Config struct {
	Recorder speech_extraction.Interface
	Pipeline Runner

	// Optional collaborators; nil disables the step.
	Recordings *recordings.Store
	History    ResultStore
	Publisher  webhook.Publisher

	SaveRecordings bool
	// SavePCM keeps the untrimmed capture as raw samples.
	SavePCM  bool
	SaveMFCC bool
	// CalibrationChunks > 0 measures ambient noise before the first recording.
	CalibrationChunks int
	SpeakerID         string
	// OnReport is called after every utterance, including failed classifications.
	OnReport func(*pipeline.Report)
}

type listenerImpl struct {
	cfg Config

	mu     sync.Mutex
	halted bool
	resume chan struct{}

	log zerolog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Recorder == nil {
		return nil, fmt.Errorf("recorder is nil")
	}

	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is nil")
	}

	if (cfg.SaveRecordings || cfg.SavePCM || cfg.SaveMFCC) && cfg.Recordings == nil {
		return nil, fmt.Errorf("recordings store is nil")
	}

	return &listenerImpl{
		cfg:    *cfg,
		resume: make(chan struct{}),
		log:    logger.WithComponent("listener"),
	}, nil
}

// ListenLoop records and classifies utterances until ctx is cancelled.
// A SpeakerID unknown to the history store is rejected before listening.
func (l *listenerImpl) ListenLoop(ctx context.Context) error {
	if l.cfg.History != nil && l.cfg.SpeakerID != "" {
		if _, err := l.cfg.History.Speaker(ctx, l.cfg.SpeakerID); err != nil {
			return fmt.Errorf("speaker: %w", err)
		}
	}

	if l.cfg.CalibrationChunks > 0 {
		threshold, err := l.cfg.Recorder.Calibrate(ctx, l.cfg.CalibrationChunks)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("calibrate: %w", err)
		}

		metrics.SetSilenceThreshold(threshold)
	}

	l.log.Info().Msg("starting to listen")

	for {
		if err := l.waitWhileHalted(ctx); err != nil {
			l.log.Info().Msg("exiting gracefully")

			return nil
		}

		utterance, err := l.cfg.Recorder.Record(ctx)
		switch {
		case ctx.Err() != nil:
			l.log.Info().Msg("exiting gracefully")

			return nil
		case errors.Is(err, speech_extraction.ErrNoAudio):
			metrics.RecordRecording(outcomeEmpty)

			continue
		case err != nil:
			metrics.RecordRecording(outcomeError)

			return fmt.Errorf("record: %w", err)
		}

		metrics.RecordRecording(outcomeOK)

		l.handle(ctx, utterance)
	}
}

func (l *listenerImpl) handle(ctx context.Context, utterance *speech_extraction.Utterance) {
	report, err := l.cfg.Pipeline.Run(ctx, utterance.Trimmed, utterance.SampleRate)
	if report == nil {
		l.log.Error().Err(err).Msg("error processing utterance")

		return
	}

	if err != nil {
		l.log.Warn().Err(err).Msg("classification failed, reporting unknown")
	}

	var wavPath string

	if l.cfg.SaveRecordings {
		wavPath, err = l.cfg.Recordings.SaveWAV(utterance.Trimmed, utterance.SampleRate)
		if err != nil {
			l.log.Error().Err(err).Msg("error saving recording")
		}
	}

	if l.cfg.SavePCM {
		if _, err := l.cfg.Recordings.SavePCM(utterance.Raw); err != nil {
			l.log.Error().Err(err).Msg("error saving raw capture")
		}
	}

	if l.cfg.SaveMFCC {
		if _, err := l.cfg.Recordings.SaveMFCC(report.MFCC); err != nil {
			l.log.Error().Err(err).Msg("error saving mfcc")
		}
	}

	if l.cfg.History != nil {
		_, err := l.cfg.History.Record(ctx, history.Result{
			SpeakerID:      l.cfg.SpeakerID,
			Label:          report.Label,
			Confidence:     report.Confidence,
			Baybayin:       report.Baybayin,
			AudioDuration:  report.AudioDuration,
			ProcessingTime: report.ProcessingTime,
			RTF:            report.RTF,
			RecordingPath:  wavPath,
		})
		if err != nil {
			l.log.Error().Err(err).Msg("error storing result")
		}
	}

	if l.cfg.Publisher != nil {
		if err := l.cfg.Publisher.Publish(ctx, report); err != nil {
			l.log.Error().Err(err).Msg("error publishing result")
		}
	}

	if l.cfg.OnReport != nil {
		l.cfg.OnReport(report)
	}
}

func (l *listenerImpl) waitWhileHalted(ctx context.Context) error {
	for {
		l.mu.Lock()
		halted, resume := l.halted, l.resume
		l.mu.Unlock()

		if !halted {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

// HaltListening ends any recording in progress and pauses the loop.
func (l *listenerImpl) HaltListening() {
	l.mu.Lock()
	l.halted = true
	l.mu.Unlock()

	l.cfg.Recorder.Halt()

	l.log.Info().Msg("waiting due to interrupt")
}

func (l *listenerImpl) ResumeListening() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.halted {
		return
	}

	l.halted = false
	close(l.resume)
	l.resume = make(chan struct{})

	l.log.Info().Msg("resuming listening")
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fltr/baybayin"
	"fltr/classifier"
	"fltr/clients/webhook"
	"fltr/config"
	"fltr/history"
	"fltr/listener"
	"fltr/metrics"
	"fltr/mfcc"
	"fltr/pcm"
	"fltr/pipeline"
	"fltr/recordings"
	"fltr/server"
	"fltr/speech_extraction"
	"fltr/speech_extraction/vad"
	"fltr/speech_to_text"
	"fltr/visualize"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

type app struct {
	cfg  config.Config
	opts options
	fs   afero.Fs
	log  zerolog.Logger
}

func (a *app) newClassifier() (classifier.Interface, func(), error) {
	labels, err := classifier.LoadLabels(a.fs, a.cfg.Model.LabelsPath)
	if err != nil {
		return nil, nil, err
	}

	if a.cfg.Model.Backend == config.BackendWhisper {
		model, err := whisper.New(a.cfg.Model.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading model: %w", err)
		}

		sttEngine, err := speech_to_text.New(&speech_to_text.Config{
			Model:    model,
			Language: a.cfg.Model.Language,
		})
		if err != nil {
			model.Close()
			return nil, nil, err
		}

		c, err := classifier.NewTranscribe(&classifier.TranscribeConfig{
			STTEngine: sttEngine,
			Labels:    labels,
		})
		if err != nil {
			model.Close()
			return nil, nil, err
		}

		return c, func() {
			_ = c.Close()
			model.Close()
		}, nil
	}

	c, err := classifier.NewTFLite(&classifier.TFLiteConfig{
		ModelPath:  a.cfg.Model.Path,
		Labels:     labels,
		Threads:    a.cfg.Model.Threads,
		Accelerate: a.cfg.Model.Accelerate,
	})
	if err != nil {
		return nil, nil, err
	}

	return c, func() { _ = c.Close() }, nil
}

func (a *app) newPipeline() (*pipeline.Pipeline, func(), error) {
	c, closeClassifier, err := a.newClassifier()
	if err != nil {
		return nil, nil, err
	}

	p, err := a.newFeaturePipeline(c)
	if err != nil {
		closeClassifier()
		return nil, nil, err
	}

	return p, closeClassifier, nil
}

// newFeaturePipeline builds the extraction side of the pipeline. A nil
// classifier gives a pipeline that can only compute features.
func (a *app) newFeaturePipeline(c classifier.Interface) (*pipeline.Pipeline, error) {
	extractor, err := mfcc.New(a.cfg.MFCC())
	if err != nil {
		return nil, err
	}

	return pipeline.New(&pipeline.Config{
		Extractor:          extractor,
		Classifier:         c,
		Standardize:        a.cfg.Features.Standardize,
		SilenceThresholdDB: a.cfg.Features.SilenceThresholdDB,
	})
}

func (a *app) newRecorder() (speech_extraction.Interface, func(), error) {
	source, err := speech_extraction.NewPortAudioSource(a.cfg.Audio.SampleRate, a.cfg.Audio.ChunkSize)
	if err != nil {
		return nil, nil, fmt.Errorf("open microphone: %w", err)
	}

	var detector vad.Detector
	if a.cfg.Audio.Detector == config.DetectorFlux {
		detector = vad.NewFluxOnset(a.cfg.Audio.ChunkSize)
	}

	recorder, err := speech_extraction.New(&speech_extraction.Config{
		Source:           source,
		Detector:         detector,
		SilenceThreshold: a.cfg.Audio.SilenceThreshold,
		SilenceChunks:    a.cfg.Audio.SilenceChunks,
		TrimThreshold:    a.cfg.Audio.TrimThreshold,
		PreRollSamples:   a.cfg.Audio.PreRollSamples,
		MaxDuration:      a.cfg.Audio.MaxDuration,
	})
	if err != nil {
		_ = source.Close()
		return nil, nil, err
	}

	metrics.SetSilenceThreshold(a.cfg.Audio.SilenceThreshold)

	return recorder, func() {
		if err := source.Close(); err != nil {
			a.log.Warn().Err(err).Msg("error closing microphone")
		}
	}, nil
}

// openHistory returns nil when no history path is configured.
func (a *app) openHistory() (*history.Store, error) {
	if a.cfg.Storage.HistoryPath == "" {
		return nil, nil
	}

	return history.Open(a.cfg.Storage.HistoryPath)
}

// checkSpeaker fails when a speaker id is given that the history store does
// not know.
func (a *app) checkSpeaker(ctx context.Context, store *history.Store) error {
	if a.opts.speaker == "" || store == nil {
		return nil
	}

	_, err := store.Speaker(ctx, a.opts.speaker)

	return err
}

// loadUtterance reads a wav or raw pcm recording and conditions it the way
// the recorder conditions microphone captures.
func (a *app) loadUtterance(path string) ([]int16, int, error) {
	store, err := recordings.New(&recordings.Config{FileSys: a.fs, Dir: filepath.Dir(path)})
	if err != nil {
		return nil, 0, err
	}

	samples, sampleRate, err := store.Load(path, a.cfg.Audio.SampleRate)
	if err != nil {
		return nil, 0, err
	}

	return pcm.Condition(samples, a.cfg.Audio.TrimThreshold), sampleRate, nil
}

func (a *app) newServer(p *pipeline.Pipeline, store *history.Store, control listener.ControlInterface) (*server.Server, error) {
	cfg := &server.Config{
		Addr:          a.cfg.Server.Addr,
		Analyzer:      p,
		Control:       control,
		TrimThreshold: a.cfg.Audio.TrimThreshold,
		MaxBodyBytes:  a.cfg.Server.MaxBodyBytes,
		RateLimit:     a.cfg.Server.RateLimit,
		RateWindow:    a.cfg.Server.RateWindow,
	}

	// a nil *history.Store must not become a non-nil interface
	if store != nil {
		cfg.Store = store
	}

	return server.New(cfg)
}

func (a *app) listen(ctx context.Context) error {
	p, closePipeline, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer closePipeline()

	recorder, closeRecorder, err := a.newRecorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	lcfg := &listener.Config{
		Recorder:       recorder,
		Pipeline:       p,
		SaveRecordings: a.cfg.Storage.SaveRecordings,
		SavePCM:        a.cfg.Storage.SavePCM,
		SaveMFCC:       a.cfg.Storage.SaveMFCC,
		SpeakerID:      a.opts.speaker,
		OnReport: func(r *pipeline.Report) {
			fmt.Printf("%s (%.2f)  %s  %s  rtf=%.3f\n", r.Label, r.Confidence, r.Baybayin, r.Syllables, r.RTF)
		},
	}

	if a.cfg.Audio.Calibrate {
		lcfg.CalibrationChunks = a.cfg.Audio.CalibrationChunks
	}

	if store != nil {
		lcfg.History = store
	}

	if a.cfg.Storage.SaveRecordings || a.cfg.Storage.SavePCM || a.cfg.Storage.SaveMFCC {
		lcfg.Recordings, err = recordings.New(&recordings.Config{FileSys: a.fs, Dir: a.cfg.Storage.DataDir})
		if err != nil {
			return err
		}
	}

	if a.cfg.Webhook.URL != "" {
		lcfg.Publisher, err = webhook.NewClient(&webhook.Config{URL: a.cfg.Webhook.URL, Timeout: a.cfg.Webhook.Timeout})
		if err != nil {
			return err
		}
	}

	l, err := listener.New(lcfg)
	if err != nil {
		return err
	}

	var srv *server.Server
	if a.opts.serve {
		srv, err = a.newServer(p, store, l)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return l.ListenLoop(gctx)
	})

	if srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	return g.Wait()
}

func (a *app) classify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("classify needs exactly one recording")
	}

	if err := a.withHistory(func(store *history.Store) error {
		return a.checkSpeaker(ctx, store)
	}); err != nil {
		return err
	}

	samples, sampleRate, err := a.loadUtterance(args[0])
	if err != nil {
		return err
	}

	p, closePipeline, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer closePipeline()

	report, runErr := p.Run(ctx, samples, sampleRate)
	if report == nil {
		return runErr
	}

	if a.cfg.Storage.SaveMFCC {
		store, err := recordings.New(&recordings.Config{FileSys: a.fs, Dir: a.cfg.Storage.DataDir})
		if err != nil {
			return err
		}

		path, err := store.SaveMFCC(report.MFCC)
		if err != nil {
			return err
		}

		a.log.Info().Str("path", path).Msg("mfcc saved")
	}

	if runErr == nil {
		if err := a.recordResult(ctx, report, args[0]); err != nil {
			a.log.Error().Err(err).Msg("error storing result")
		}
	}

	out := *report
	out.MFCC = nil

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	return runErr
}

// withHistory runs fn against the history store, if one is configured.
func (a *app) withHistory(fn func(*history.Store) error) error {
	store, err := a.openHistory()
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

func (a *app) recordResult(ctx context.Context, report *pipeline.Report, path string) error {
	return a.withHistory(func(store *history.Store) error {
		_, err := store.Record(ctx, history.Result{
			SpeakerID:      a.opts.speaker,
			Label:          report.Label,
			Confidence:     report.Confidence,
			Baybayin:       report.Baybayin,
			AudioDuration:  report.AudioDuration,
			ProcessingTime: report.ProcessingTime,
			RTF:            report.RTF,
			RecordingPath:  path,
		})

		return err
	})
}

func (a *app) calibrateThreshold(ctx context.Context) error {
	recorder, closeRecorder, err := a.newRecorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	fmt.Println("stay quiet while ambient noise is measured...")

	threshold, err := recorder.Calibrate(ctx, a.cfg.Audio.CalibrationChunks)
	if err != nil {
		return err
	}

	metrics.SetSilenceThreshold(threshold)

	fmt.Printf("silence threshold: %d\n", threshold)

	return nil
}

func (a *app) serve(ctx context.Context) error {
	p, closePipeline, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer closePipeline()

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	srv, err := a.newServer(p, store, nil)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("register needs a name and a gender (one of %v)", history.GenderOptions)
	}

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("history path is not configured")
	}
	defer store.Close()

	speaker, err := store.Register(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("registered %s (%s): %s\n", speaker.Name, speaker.Gender, speaker.ID)

	return nil
}

func (a *app) translate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("translate needs at least one word")
	}

	for _, word := range args {
		fmt.Printf("%s\t%s\t%s\n", word, baybayin.Translate(word), baybayin.Syllables(word))
	}

	return nil
}

func (a *app) heatmap(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("heatmap needs an input recording and an output png")
	}

	samples, sampleRate, err := a.loadUtterance(args[0])
	if err != nil {
		return err
	}

	p, err := a.newFeaturePipeline(nil)
	if err != nil {
		return err
	}

	features, err := p.Features(samples, sampleRate)
	if err != nil {
		return err
	}

	out, err := a.fs.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()

	err = visualize.WritePNG(out, features.Padded, visualize.Options{
		SilenceMarkers: p.SilenceMarkers(features.Padded),
		SkipSilent:     a.opts.skipSilent,
	})
	if err != nil {
		return err
	}

	a.log.Info().Str("path", args[1]).Int("frames", features.FrameCount).Msg("heatmap written")

	return nil
}

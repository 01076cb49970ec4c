// Package config loads settings with precedence flags > environment > file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"fltr/mfcc"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	BackendTFLite  = "tflite"
	BackendWhisper = "whisper"

	DetectorAmplitude = "amplitude"
	DetectorFlux      = "flux"
)

type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	Audio    AudioConfig   `yaml:"audio"`
	Features FeatureConfig `yaml:"features"`
	Model    ModelConfig   `yaml:"model"`
	Storage  StorageConfig `yaml:"storage"`
	Server   ServerConfig  `yaml:"server"`
	Webhook  WebhookConfig `yaml:"webhook"`
}

type AudioConfig struct {
	SampleRate        int           `yaml:"sample_rate"`
	ChunkSize         int           `yaml:"chunk_size"`
	SilenceThreshold  int           `yaml:"silence_threshold"`
	SilenceChunks     int           `yaml:"silence_chunks"`
	TrimThreshold     int           `yaml:"trim_threshold"`
	PreRollSamples    int           `yaml:"pre_roll_samples"`
	MaxDuration       time.Duration `yaml:"max_duration"`
	CalibrationChunks int           `yaml:"calibration_chunks"`
	Detector          string        `yaml:"detector"`
	// Calibrate measures ambient noise before listening.
	Calibrate bool `yaml:"calibrate"`
}

type FeatureConfig struct {
	FFTSize            int     `yaml:"fft_size"`
	HopSize            int     `yaml:"hop_size"`
	NumCoefficients    int     `yaml:"num_coefficients"`
	NumMelBands        int     `yaml:"num_mel_bands"`
	TargetFrames       int     `yaml:"target_frames"`
	PreEmphasis        float64 `yaml:"pre_emphasis"`
	MinFreq            float64 `yaml:"min_freq"`
	MaxFreq            float64 `yaml:"max_freq"`
	Standardize        bool    `yaml:"standardize"`
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`
}

type ModelConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	LabelsPath string `yaml:"labels_path"`
	Threads    int    `yaml:"threads"`
	Accelerate bool   `yaml:"accelerate"`
	Language   string `yaml:"language"`
}

type StorageConfig struct {
	DataDir        string `yaml:"data_dir"`
	SaveRecordings bool   `yaml:"save_recordings"`
	SavePCM        bool   `yaml:"save_pcm"`
	SaveMFCC       bool   `yaml:"save_mfcc"`
	HistoryPath    string `yaml:"history_path"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	RateLimit    int           `yaml:"rate_limit"`
	RateWindow   time.Duration `yaml:"rate_window"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() Config {
	f := mfcc.DefaultConfig()

	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:        f.SampleRate,
			ChunkSize:         1024,
			SilenceThreshold:  5000,
			SilenceChunks:     20,
			TrimThreshold:     3000,
			PreRollSamples:    1024,
			MaxDuration:       10 * time.Second,
			CalibrationChunks: 40,
			Detector:          DetectorAmplitude,
		},
		Features: FeatureConfig{
			FFTSize:            f.FFTSize,
			HopSize:            f.HopSize,
			NumCoefficients:    f.NumCoefficients,
			NumMelBands:        f.NumMelBands,
			TargetFrames:       f.TargetFrames,
			PreEmphasis:        f.PreEmphasis,
			MinFreq:            f.MinFreq,
			SilenceThresholdDB: mfcc.DefaultSilenceThresholdDB,
		},
		Model: ModelConfig{
			Backend:    BackendTFLite,
			Path:       "model_gan.tflite",
			LabelsPath: "labels.txt",
			Threads:    2,
		},
		Storage: StorageConfig{
			DataDir:     "recordings",
			HistoryPath: "fltr.db",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			RateLimit:    60,
			RateWindow:   time.Minute,
			MaxBodyBytes: 10 << 20,
		},
		Webhook: WebhookConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load applies defaults, then the YAML file at path (if any), then FLTR_*
// environment variables, and validates the result.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"FLTR_LOG_LEVEL":     &cfg.LogLevel,
		"FLTR_MODEL_BACKEND": &cfg.Model.Backend,
		"FLTR_MODEL_PATH":    &cfg.Model.Path,
		"FLTR_LABELS_PATH":   &cfg.Model.LabelsPath,
		"FLTR_LANGUAGE":      &cfg.Model.Language,
		"FLTR_DATA_DIR":      &cfg.Storage.DataDir,
		"FLTR_HISTORY_PATH":  &cfg.Storage.HistoryPath,
		"FLTR_SERVER_ADDR":   &cfg.Server.Addr,
		"FLTR_WEBHOOK_URL":   &cfg.Webhook.URL,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"FLTR_SILENCE_THRESHOLD": &cfg.Audio.SilenceThreshold,
		"FLTR_MODEL_THREADS":     &cfg.Model.Threads,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"FLTR_ACCELERATE":      &cfg.Model.Accelerate,
		"FLTR_SAVE_RECORDINGS": &cfg.Storage.SaveRecordings,
		"FLTR_SAVE_PCM":        &cfg.Storage.SavePCM,
		"FLTR_SAVE_MFCC":       &cfg.Storage.SaveMFCC,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	return nil
}

func (c Config) Validate() error {
	switch c.Model.Backend {
	case BackendTFLite, BackendWhisper:
	default:
		return fmt.Errorf("unknown model backend: %q", c.Model.Backend)
	}

	switch c.Audio.Detector {
	case DetectorAmplitude, DetectorFlux:
	default:
		return fmt.Errorf("unknown voice detector: %q", c.Audio.Detector)
	}

	if c.Model.Path == "" {
		return fmt.Errorf("model path is required")
	}

	if c.Model.LabelsPath == "" {
		return fmt.Errorf("labels path is required")
	}

	if c.Audio.SampleRate <= 0 || c.Audio.ChunkSize <= 0 {
		return fmt.Errorf("audio sample rate and chunk size must be positive")
	}

	if c.Audio.SilenceThreshold < 0 || c.Audio.SilenceThreshold > 32767 {
		return fmt.Errorf("silence threshold %d out of range", c.Audio.SilenceThreshold)
	}

	if _, err := mfcc.New(c.MFCC()); err != nil {
		return err
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max body bytes must be positive")
	}

	return nil
}

// MFCC returns the feature extractor configuration.
func (c Config) MFCC() mfcc.Config {
	return mfcc.Config{
		SampleRate:      c.Audio.SampleRate,
		FFTSize:         c.Features.FFTSize,
		HopSize:         c.Features.HopSize,
		NumCoefficients: c.Features.NumCoefficients,
		NumMelBands:     c.Features.NumMelBands,
		TargetFrames:    c.Features.TargetFrames,
		PreEmphasis:     c.Features.PreEmphasis,
		MinFreq:         c.Features.MinFreq,
		MaxFreq:         c.Features.MaxFreq,
	}
}

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"fltr/pipeline"
)

type clientImpl struct {
	url        string
	httpClient *http.Client
}

type Config struct {
	URL     string
	Timeout time.Duration
}

type payload struct {
	Label          string  `json:"label"`
	Confidence     float32 `json:"confidence"`
	Baybayin       string  `json:"baybayin"`
	Syllables      string  `json:"syllables"`
	AudioDuration  float64 `json:"audio_duration_sec"`
	ProcessingTime float64 `json:"processing_time_sec"`
	RTF            float64 `json:"rtf"`
}

func NewClient(cfg *Config) (Publisher, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.URL == "" {
		return nil, errors.New("missing parameter: cfg.URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &clientImpl{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (client *clientImpl) Publish(ctx context.Context, report *pipeline.Report) error {
	body, err := json.Marshal(payload{
		Label:          report.Label,
		Confidence:     report.Confidence,
		Baybayin:       report.Baybayin,
		Syllables:      report.Syllables,
		AudioDuration:  report.AudioDuration,
		ProcessingTime: report.ProcessingTime,
		RTF:            report.RTF,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

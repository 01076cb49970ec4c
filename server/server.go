// Package server exposes the recognition pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"fltr/baybayin"
	"fltr/history"
	"fltr/listener"
	"fltr/logger"
	"fltr/pcm"
	"fltr/pipeline"
	"fltr/recordings"
	"fltr/visualize"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxBodyBytes = 10 << 20
	DefaultRateLimit    = 60
	DefaultRateWindow   = time.Minute
	DefaultResultsLimit = 20

	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Addr     string
	Analyzer Analyzer
	// Store is optional; without it the speaker and results endpoints return 503.
	Store Store
	// Control is optional; without it the listener endpoints return 503.
	Control listener.ControlInterface
	// TrimThreshold is the leading-silence level uploads are trimmed at,
	// the same conditioning the microphone path applies.
	TrimThreshold int
	MaxBodyBytes  int64
	RateLimit     int
	RateWindow    time.Duration
}

type Server struct {
	addr          string
	analyzer      Analyzer
	store         Store
	control       listener.ControlInterface
	trimThreshold int
	maxBodyBytes  int64
	router        chi.Router
	log           zerolog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type classifyResponse struct {
	*pipeline.Report
	Error string `json:"error,omitempty"`
}

type registerRequest struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

type translateResponse struct {
	Word      string `json:"word"`
	Baybayin  string `json:"baybayin"`
	Syllables string `json:"syllables"`
}

func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is nil")
	}

	s := &Server{
		addr:          cfg.Addr,
		analyzer:      cfg.Analyzer,
		store:         cfg.Store,
		control:       cfg.Control,
		trimThreshold: cfg.TrimThreshold,
		maxBodyBytes:  cfg.MaxBodyBytes,
		log:           logger.WithComponent("server"),
	}

	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}

	limit, window := cfg.RateLimit, cfg.RateWindow
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(limit, window))

		r.Post("/classify", s.handleClassify)
		r.Post("/heatmap", s.handleHeatmap)
		r.Post("/speakers", s.handleRegister)
		r.Get("/results", s.handleResults)
		r.Get("/translate", s.handleTranslate)
		r.Post("/listener/halt", s.handleHalt)
		r.Post("/listener/resume", s.handleResume)
	})

	s.router = r

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := <-errC; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	speakerID := r.URL.Query().Get("speaker_id")
	if speakerID != "" && !s.checkSpeaker(w, r, speakerID) {
		return
	}

	samples, sampleRate, ok := s.readWAV(w, r)
	if !ok {
		return
	}

	report, err := s.analyzer.Run(r.Context(), samples, sampleRate)
	if report == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	resp := classifyResponse{Report: report}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}

	if s.store != nil && err == nil {
		_, storeErr := s.store.Record(r.Context(), history.Result{
			SpeakerID:      speakerID,
			Label:          report.Label,
			Confidence:     report.Confidence,
			Baybayin:       report.Baybayin,
			AudioDuration:  report.AudioDuration,
			ProcessingTime: report.ProcessingTime,
			RTF:            report.RTF,
		})
		if storeErr != nil {
			s.log.Error().Err(storeErr).Msg("error storing result")
		}
	}

	if !queryBool(r, "include_mfcc") {
		trimmed := *report
		trimmed.MFCC = nil
		resp.Report = &trimmed
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	samples, sampleRate, ok := s.readWAV(w, r)
	if !ok {
		return
	}

	features, err := s.analyzer.Features(samples, sampleRate)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	var buf bytes.Buffer
	err = visualize.WritePNG(&buf, features.Padded, visualize.Options{
		SilenceMarkers: s.analyzer.SilenceMarkers(features.Padded),
		SkipSilent:     queryBool(r, "skip_silent"),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// checkSpeaker writes an error response and returns false unless id is a
// registered speaker.
func (s *Server) checkSpeaker(w http.ResponseWriter, r *http.Request, id string) bool {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history store disabled"})
		return false
	}

	_, err := s.store.Speaker(r.Context(), id)
	switch {
	case errors.Is(err, history.ErrUnknownSpeaker):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return false
	case err != nil:
		s.log.Error().Err(err).Msg("error looking up speaker")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "speaker lookup failed"})
		return false
	}

	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history store disabled"})
		return
	}

	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	speaker, err := s.store.Register(r.Context(), req.Name, req.Gender)
	switch {
	case errors.Is(err, history.ErrNameRequired), errors.Is(err, history.ErrInvalidGender):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.log.Error().Err(err).Msg("error registering speaker")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "registration failed"})
		return
	}

	writeJSON(w, http.StatusCreated, speaker)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history store disabled"})
		return
	}

	limit := DefaultResultsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	results, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("error listing results")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "listing results failed"})
		return
	}

	if results == nil {
		results = []history.Result{}
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	word := r.URL.Query().Get("word")
	if word == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "word is required"})
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{
		Word:      word,
		Baybayin:  baybayin.Translate(word),
		Syllables: baybayin.Syllables(word),
	})
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "listener not running"})
		return
	}

	s.control.HaltListening()
	writeJSON(w, http.StatusOK, map[string]string{"status": "halted"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "listener not running"})
		return
	}

	s.control.ResumeListening()
	writeJSON(w, http.StatusOK, map[string]string{"status": "listening"})
}

// readWAV decodes the request body and conditions it like a microphone
// capture: peak normalized with the quiet lead-in trimmed.
func (s *Server) readWAV(w http.ResponseWriter, r *http.Request) ([]int16, int, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return nil, 0, false
		}

		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "error reading body"})
		return nil, 0, false
	}

	samples, sampleRate, err := recordings.DecodeWAV(bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, 0, false
	}

	return pcm.Condition(samples, s.trimThreshold), sampleRate, true
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))

	return err == nil && v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Package api exposes the transcription service over HTTP.
//
// Endpoints:
//
//   - POST /api/transcribe        — upload an audio file, returns a job ID
//   - GET  /api/jobs              — list recent jobs
//   - GET  /api/jobs/{id}         — poll job status
//   - GET  /api/jobs/{id}/result  — merged transcript, decisions, clinical
//     data, and timeline for a completed job
//   - GET  /api/jobs/{id}/audio   — stored upload for playback
//   - GET  /metrics               — Prometheus scrape endpoint
//   - GET  /healthz, /readyz      — liveness and readiness probes
//
// Uploads are processed asynchronously: the handler stores the file, creates
// a pending job, and hands it to a background goroutine running the
// orchestration pipeline.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novahealth/nova/internal/clinical"
	"github.com/novahealth/nova/internal/config"
	"github.com/novahealth/nova/internal/health"
	"github.com/novahealth/nova/internal/jobstore"
	"github.com/novahealth/nova/internal/observe"
	"github.com/novahealth/nova/internal/timeline"
	"github.com/novahealth/nova/pkg/transcript"
)

// shutdownTimeout bounds the graceful HTTP drain on shutdown.
const shutdownTimeout = 15 * time.Second

// Processor runs the multi-model transcription pipeline for one audio file.
// *orchestrator.Orchestrator satisfies this interface.
type Processor interface {
	ProcessAudio(ctx context.Context, audioPath string, vocabulary []string) (*transcript.Result, []*transcript.Decision, error)
}

// Server is the HTTP front end. Construct with New, then call Run.
type Server struct {
	cfg  config.ServerConfig
	orch config.OrchestratorConfig

	store jobstore.Store
	proc  Processor

	extractor *clinical.Extractor
	timeline  *timeline.Generator
	health    *health.Handler

	log     *slog.Logger
	metrics *observe.Metrics

	// jobCtx is the lifetime context for background processing, set by Run.
	jobCtx context.Context
	wg     sync.WaitGroup
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health handler, carrying readiness checkers for the
// server's dependencies. Defaults to a handler with no checkers.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// New creates a Server. The orchestrator config supplies the vocabulary
// passed to every job and the confidence threshold used for timeline word
// flagging.
func New(cfg config.ServerConfig, orch config.OrchestratorConfig, store jobstore.Store, proc Processor, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		orch:      orch,
		store:     store,
		proc:      proc,
		extractor: clinical.NewExtractor(),
		timeline:  timeline.NewGenerator(orch.ConfidenceThreshold),
		jobCtx:    context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Handler builds the route table wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /api/jobs/{id}/result", s.handleJobResult)
	mux.HandleFunc("GET /api/jobs/{id}/audio", s.handleJobAudio)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and
// waits for background jobs to finish.
func (s *Server) Run(ctx context.Context) error {
	s.jobCtx = ctx

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS != nil {
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.log.Info("http server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLS != nil)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.wg.Wait()
	return nil
}

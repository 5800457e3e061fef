package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/good-listener/backend/audio/internal/batch"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/config"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/inference"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/metrics"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/session"
	"github.com/GriffinCanCode/good-listener/backend/audio/internal/trace"
)

// Deps are the pipeline components the handlers drive.
type Deps struct {
	Batch       *batch.Service
	Converter   session.Converter
	Transcriber inference.Transcriber
	Checker     inference.Checker // optional, used by /healthz
	Metrics     *metrics.Metrics
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	cfg      *config.Config
	deps     Deps
	sessions atomic.Int64
}

// New creates a new server.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// ActiveSessions returns the number of open realtime connections.
func (s *Server) ActiveSessions() int64 { return s.sessions.Load() }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /transcribe", s.instrument("/transcribe", s.handleTranscribe))
	mux.Handle("POST /diarize", s.instrument("/diarize", s.handleDiarize))
	mux.HandleFunc("GET /ws/audio", s.handleRealtime)
	mux.Handle("GET /healthz", s.instrument("/healthz", s.handleHealth))
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	// Apply middleware: trace -> CORS
	return s.corsMiddleware(trace.Middleware(mux))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.deps.Metrics.ObserveHTTP(route, rec.status, time.Since(start))
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Sessions  int64  `json:"sessions"`
	Inference string `json:"inference"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.sessions.Load(), Inference: "ok"}
	status := http.StatusOK
	if s.deps.Checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Checker.Ready(ctx); err != nil {
			resp.Status = "degraded"
			resp.Inference = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// Package api exposes the propagation service over HTTP. The propagate
// endpoint routes each request through the execution router: small
// requests answer synchronously with the computed field, large ones
// return a job handle for later pickup.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oceanus/oceanray/internal/auth"
	"github.com/oceanus/oceanray/internal/engine"
	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/field"
	"github.com/oceanus/oceanray/internal/health"
	"github.com/oceanus/oceanray/internal/job"
	"github.com/oceanus/oceanray/internal/metrics"
	"github.com/oceanus/oceanray/internal/router"
	"github.com/oceanus/oceanray/internal/stream"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer   *http.Server
	router       *router.Router
	orchestrator *job.Orchestrator
	presets      []env.Preset
	logger       *slog.Logger
}

// NewServer creates a configured HTTP server over the router,
// orchestrator and progress stream handler.
func NewServer(addr string, rt *router.Router, orch *job.Orchestrator, streamHandler *stream.Handler, presets []env.Preset, logger *slog.Logger, authCfg auth.Config) *Server {
	s := &Server{
		router:       rt,
		orchestrator: orch,
		presets:      presets,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /api/v1/propagate", s.handlePropagate)
	mux.HandleFunc("GET /api/v1/presets", s.handlePresets)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("DELETE /api/v1/jobs/{id}", s.handleJobCancel)
	mux.HandleFunc("GET /api/v1/jobs/{id}/result", s.handleJobResult)
	mux.HandleFunc("GET /api/v1/jobs/{id}/events", streamHandler.HandleJobEvents)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// propagateRequest is the POST /api/v1/propagate body. Exactly one of
// Environment or Preset selects the medium.
type propagateRequest struct {
	Environment *env.Environment `json:"environment,omitempty"`
	Preset      string           `json:"preset,omitempty"`
	Request     engine.Request   `json:"request"`
	Priority    int              `json:"priority,omitempty"`
}

func (s *Server) handlePropagate(w http.ResponseWriter, r *http.Request) {
	var body propagateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	var m env.Environment
	switch {
	case body.Environment != nil && body.Preset != "":
		writeError(w, http.StatusBadRequest, "specify either environment or preset, not both")
		return
	case body.Environment != nil:
		m = *body.Environment
	case body.Preset != "":
		p, err := env.FindPreset(s.presets, body.Preset)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		m = p.Environment
	default:
		writeError(w, http.StatusBadRequest, "missing environment or preset")
		return
	}

	outcome, err := s.router.Route(r.Context(), m, body.Request, body.Priority)
	if err != nil {
		s.writeRouteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if outcome.Decision == router.DecisionQueued {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"job_id":   outcome.JobID,
			"workload": outcome.Workload,
		})
		return
	}
	json.NewEncoder(w).Encode(outcome.Result)
}

func (s *Server) writeRouteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, router.ErrWorkloadTooLarge),
		errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, env.ErrInvalidEnvironment):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, field.ErrNoValidRays):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("propagation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	type presetSummary struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	out := make([]presetSummary, len(s.presets))
	for i, p := range s.presets {
		out[i] = presetSummary{Name: p.Name, Description: p.Description}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"presets": out})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.orchestrator.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orchestrator.Cancel(id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap, _ := s.orchestrator.Get(id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.Result(r.PathValue("id"))
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	case errors.Is(err, job.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, job.ErrNotFinished):
		writeError(w, http.StatusConflict, "job not finished")
	case errors.Is(err, job.ErrCancelled), errors.Is(err, job.ErrTimedOut):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach Flush and deadline support through the middleware chain.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}

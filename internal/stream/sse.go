// Package stream implements Server-Sent Events (SSE) streaming of job
// progress. Clients connect via GET /api/v1/jobs/{id}/events and receive
// the job's state transitions and ray-count progress as they happen.
//
// SSE message format:
//
//	data: {"job_id":"a1b2c3d4e5f6","state":"running","completed":120,"total":721}\n\n
//
// The first message on every connection is the job's current state, so a
// reconnecting client never misses where the job stands. The stream ends
// after the terminal event (done, failed, cancelled or timed_out); a
// client that reconnects to a finished job gets the terminal event again
// and an immediate close. Keep-alive comments (:\n\n) are sent every
// KeepaliveInterval to prevent proxy timeouts.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/oceanus/oceanray/internal/httputil"
	"github.com/oceanus/oceanray/internal/job"
	"github.com/oceanus/oceanray/internal/metrics"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams service-wide (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Honor X-Forwarded-For when resolving client IPs.
}

// Handler manages SSE progress connections.
type Handler struct {
	orchestrator *job.Orchestrator
	config       Config
	limiter      *streamLimiter
	logger       *slog.Logger
}

// NewHandler creates a progress streaming handler.
func NewHandler(orch *job.Orchestrator, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orch,
		config:       config,
		limiter:      newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:       logger,
	}
}

// HandleJobEvents serves the SSE progress stream for one job.
// GET /api/v1/jobs/{id}/events
func (h *Handler) HandleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	events, unsubscribe, ok := h.orchestrator.Subscribe(id)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
		return
	}
	defer unsubscribe()

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"job_id", id,
		"user_agent", r.Header.Get("User-Agent"),
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"job_id", id,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// ResponseController reaches flush and deadline support through
	// middleware wrappers that expose Unwrap.
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		metrics.IncStreamErrors("flush")
		h.logger.Error("connection does not support streaming", "remote_ip", ip, "error", err)
		return
	}

	// Clear the server's default WriteTimeout for this long-lived
	// connection; per-write deadlines are set before each send.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:      w,
		rc:     rc,
		ip:     ip,
		logger: h.logger,
	}

	// Jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	rc.Flush()

	// First message: the job's current state, so reconnecting clients
	// see where the job stands before live events arrive.
	if progress, state, ok := h.orchestrator.Progress(id); ok && !state.Terminal() {
		snapshot := job.Event{
			JobID:     id,
			State:     state,
			Completed: progress.Completed,
			Total:     progress.Total,
		}
		if err := c.sendJSON(snapshot); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (snapshot)", "remote_ip", ip, "job_id", id, "error", err)
			return
		}
	}

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, open := <-events:
			if !open {
				// Terminal event already delivered; stream is complete.
				return
			}
			if err := c.sendJSON(ev); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "job_id", id, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "job_id", id, "error", err)
				return
			}
		}
	}
}

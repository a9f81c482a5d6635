// Package router places each propagation request on an execution path.
// Small requests run synchronously in the calling goroutine; large ones
// go through the job orchestrator; absurd ones are rejected outright.
// The placement decision is a pure function of the request, so the same
// request always lands on the same path.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oceanus/oceanray/internal/engine"
	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/job"
	"github.com/oceanus/oceanray/internal/metrics"
)

// ErrWorkloadTooLarge marks a request whose estimated workload exceeds
// the hard ceiling.
var ErrWorkloadTooLarge = errors.New("workload too large")

// Config holds the router thresholds, both in ray-step units.
type Config struct {
	// SyncThreshold is the workload below which requests run inline.
	SyncThreshold uint64
	// MaxWorkload is the hard ceiling; requests at or above it are
	// rejected. Zero disables the ceiling.
	MaxWorkload uint64
}

// Decision records where a request was placed.
type Decision string

const (
	DecisionSync   Decision = "sync"
	DecisionQueued Decision = "queued"
)

// Outcome is the result of routing one request: either an immediate
// result (sync path) or a job ID (queued path).
type Outcome struct {
	Decision Decision
	Workload uint64
	Result   *engine.Result // set on the sync path
	JobID    string         // set on the queued path
}

// Router sits between the API layer and the two execution paths.
type Router struct {
	config       Config
	engine       *engine.Engine
	orchestrator *job.Orchestrator
	logger       *slog.Logger
}

// New creates a router over the given engine and orchestrator.
func New(config Config, eng *engine.Engine, orch *job.Orchestrator, logger *slog.Logger) *Router {
	return &Router{
		config:       config,
		engine:       eng,
		orchestrator: orch,
		logger:       logger,
	}
}

// Route estimates the request workload and executes it on the matching
// path. priority only applies when the request is queued.
func (rt *Router) Route(ctx context.Context, m env.Environment, req engine.Request, priority int) (Outcome, error) {
	workload := engine.EstimateWorkload(req)

	if rt.config.MaxWorkload > 0 && workload >= rt.config.MaxWorkload {
		metrics.IncRouted(string(DecisionQueued), "rejected")
		return Outcome{}, fmt.Errorf("%w: estimated %d ray-steps, ceiling %d",
			ErrWorkloadTooLarge, workload, rt.config.MaxWorkload)
	}

	if workload < rt.config.SyncThreshold {
		rt.logger.Debug("routing sync", "workload", workload, "threshold", rt.config.SyncThreshold)
		result, err := rt.engine.Run(ctx, m, req, nil)
		if err != nil {
			metrics.IncRouted(string(DecisionSync), "error")
			return Outcome{}, err
		}
		metrics.IncRouted(string(DecisionSync), "ok")
		return Outcome{Decision: DecisionSync, Workload: workload, Result: result}, nil
	}

	id, err := rt.orchestrator.Submit(m, req, priority)
	if err != nil {
		metrics.IncRouted(string(DecisionQueued), "error")
		return Outcome{}, err
	}
	metrics.IncRouted(string(DecisionQueued), "ok")
	rt.logger.Info("routing queued", "job_id", id, "workload", workload, "priority", priority)
	return Outcome{Decision: DecisionQueued, Workload: workload, JobID: id}, nil
}

// Package engine wires the environment model, ray tracer, eigenray
// search and field assembler into the operations the rest of the system
// consumes. The engine is platform-neutral: no I/O, no timers, no
// global state, so the identical pipeline runs on the synchronous path
// and inside the job orchestrator.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oceanus/oceanray/internal/eigenray"
	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/field"
	"github.com/oceanus/oceanray/internal/metrics"
	"github.com/oceanus/oceanray/internal/ray"
)

// Config holds engine tuning. Workers bounds the fan worker pool; 1
// forces sequential tracing on the constrained path.
type Config struct {
	Workers int
}

// Engine executes propagation requests. Safe for concurrent use; every
// invocation owns all of its derived state.
type Engine struct {
	config Config
	logger *slog.Logger
}

// New creates an engine.
func New(config Config, logger *slog.Logger) *Engine {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Engine{config: config, logger: logger}
}

// Result carries whichever output the request asked for.
type Result struct {
	Rays      []ray.Ray           `json:"rays,omitempty"`
	Eigenrays []eigenray.Eigenray `json:"eigenrays,omitempty"`
	Grid      *field.Grid         `json:"grid,omitempty"`
}

// TraceRays validates inputs and traces the full launch-angle fan.
// Synchronous; used directly by the constrained path.
func (e *Engine) TraceRays(ctx context.Context, m env.Environment, req Request) ([]ray.Ray, error) {
	if err := validateAll(m, req); err != nil {
		return nil, err
	}
	return e.traceFan(ctx, m, req, nil)
}

// FindEigenrays runs the bisection search against the request receiver.
func (e *Engine) FindEigenrays(ctx context.Context, m env.Environment, req Request) ([]eigenray.Eigenray, error) {
	if err := validateAll(m, req); err != nil {
		return nil, err
	}
	if req.Receiver == nil {
		return nil, fmt.Errorf("%w: eigenray output requires a receiver", ErrInvalidRequest)
	}
	return eigenray.Search(ctx, m, req.rayParams(), req.eigenrayConfig(), e.logger)
}

// AssembleTransmissionLoss bins already-traced rays onto the grid.
func (e *Engine) AssembleTransmissionLoss(rays []ray.Ray, freqHz float64, spec field.GridSpec) (*field.Grid, error) {
	start := time.Now()
	grid, err := field.Assemble(rays, freqHz, spec)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAssembly(time.Since(start))
	return grid, nil
}

// Run executes the full pipeline for the requested output kind.
// onProgress, when non-nil, receives (completed, total) ray counts.
func (e *Engine) Run(ctx context.Context, m env.Environment, req Request, onProgress func(completed, total int)) (*Result, error) {
	if err := validateAll(m, req); err != nil {
		return nil, err
	}

	switch req.Output {
	case OutputRayPaths:
		rays, err := e.traceFan(ctx, m, req, onProgress)
		if err != nil {
			return nil, err
		}
		return &Result{Rays: rays}, nil

	case OutputEigenrays:
		found, err := eigenray.Search(ctx, m, req.rayParams(), req.eigenrayConfig(), e.logger)
		if err != nil {
			return nil, err
		}
		return &Result{Eigenrays: found}, nil

	case OutputTransmissionLoss:
		rays, err := e.traceFan(ctx, m, req, onProgress)
		if err != nil {
			return nil, err
		}
		grid, err := e.AssembleTransmissionLoss(rays, req.Frequency, req.gridSpec(m))
		if err != nil {
			return nil, err
		}
		return &Result{Grid: grid}, nil

	default:
		return nil, fmt.Errorf("%w: unknown output kind %q", ErrInvalidRequest, req.Output)
	}
}

func (e *Engine) traceFan(ctx context.Context, m env.Environment, req Request, onProgress func(completed, total int)) ([]ray.Ray, error) {
	angles := ray.Angles(req.RayCount, ray.Degrees(req.MaxAngleDeg))

	e.logger.Debug("tracing fan",
		"rays", len(angles),
		"max_range", req.MaxRange,
		"step", req.RangeStep,
		"workers", e.config.Workers,
	)

	start := time.Now()
	rays, err := ray.NewFan(e.config.Workers, e.logger).Trace(ctx, m, req.rayParams(), angles, onProgress)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	truncated := 0
	for _, r := range rays {
		if r.Truncated {
			truncated++
		}
	}
	metrics.ObserveTrace(duration, len(rays), truncated)

	e.logger.Debug("fan complete",
		"rays", len(rays),
		"truncated", truncated,
		"duration_ms", duration.Milliseconds(),
	)
	return rays, nil
}

func validateAll(m env.Environment, req Request) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := m.ValidateSource(req.SourceDepth); err != nil {
		return err
	}
	return req.Validate()
}

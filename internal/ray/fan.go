package ray

import (
	"context"
	"log/slog"
	"sync"
)

// traceJob is a unit of work for the fan worker pool: one launch angle,
// identified by its fan index.
type traceJob struct {
	index int
	angle float64
}

// traceResult carries a finished ray back with its fan index so results
// can be reassembled in launch order.
type traceResult struct {
	index int
	ray   Ray
}

// Fan traces a set of launch angles with a fixed number of goroutines.
// Rays are fully independent: no shared mutable state, each worker owns
// the ray it is integrating. Output order matches the angle order
// regardless of worker count, which keeps the whole pipeline
// reproducible on any machine.
type Fan struct {
	workers int
	logger  *slog.Logger
}

// NewFan creates a fan tracer with the given worker count. A count of 1
// degenerates to sequential tracing, used on the constrained path.
func NewFan(workers int, logger *slog.Logger) *Fan {
	if workers < 1 {
		workers = 1
	}
	return &Fan{workers: workers, logger: logger}
}

// Trace integrates one ray per angle. onProgress, when non-nil, is
// invoked from the collector as (completed, total) after each finished
// ray. Cancellation is honored between rays, never mid-ray; a cancelled
// fan returns ctx.Err() and no rays, so partial fans are never handed
// downstream as if complete.
func (f *Fan) Trace(ctx context.Context, m Medium, params Params, angles []float64, onProgress func(completed, total int)) ([]Ray, error) {
	if len(angles) == 0 {
		return nil, nil
	}

	tracer := NewTracer(m, params)

	jobs := make(chan traceJob, f.workers*2)
	results := make(chan traceResult, f.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				// Check before, not during, each ray.
				select {
				case <-ctx.Done():
					return
				default:
				}
				result := traceResult{index: job.index, ray: tracer.Trace(job.angle)}
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, angle := range angles {
			select {
			case jobs <- traceJob{index: i, angle: angle}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	rays := make([]Ray, len(angles))
	completed := 0
	truncated := 0
	for result := range results {
		rays[result.index] = result.ray
		completed++
		if result.ray.Truncated {
			truncated++
		}
		if onProgress != nil {
			onProgress(completed, len(angles))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if truncated > 0 {
		f.logger.Warn("fan completed with truncated rays",
			"truncated", truncated,
			"total", len(angles),
		)
	}
	return rays, nil
}

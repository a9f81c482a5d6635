// Package eigenray finds the discrete ray paths connecting a source to a
// fixed receiver. The search brackets sign changes of the depth error
// across adjacent fan angles and bisects each bracket in launch angle.
// Rays whose depth error shares a sign across a whole bracket are
// invisible to this scan: a pair of eigenrays tangent between two fan
// angles is missed. Raising the scan fan count tightens the net; the
// limitation is inherent to bracketing and is accepted here.
package eigenray

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/oceanus/oceanray/internal/ray"
)

// ErrNotConverged marks a bracket whose bisection hit the iteration cap.
// The cap is mandatory: brackets near caustics can be ill-conditioned
// and would otherwise loop indefinitely.
var ErrNotConverged = errors.New("eigenray search did not converge")

// Config controls one eigenray search.
type Config struct {
	ReceiverRange  float64 // meters
	ReceiverDepth  float64 // meters
	ScanCount      int     // fan angles scanned for brackets
	MaxAngle       float64 // radians, scan spans [-MaxAngle, MaxAngle]
	DepthTolerance float64 // meters, convergence criterion
	MaxIterations  int     // bisection cap per bracket
}

// Eigenray is a ray that terminates at the receiver, with the target it
// was bisected to hit and convergence diagnostics.
type Eigenray struct {
	ray.Ray
	TargetRange float64 `json:"target_range"`
	TargetDepth float64 `json:"target_depth"`

	// TravelTime and Amplitude are interpolated at the exact receiver
	// range from the bracketing trajectory samples.
	TravelTime float64 `json:"travel_time"`
	Amplitude  float64 `json:"amplitude"`

	DepthError float64 `json:"depth_error"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

// Search scans a launch-angle fan for brackets and bisects each one.
// Every bracket yields one entry: converged eigenrays and NotConverged
// diagnostics alike are returned, never silently discarded. Rays that
// fail to reach the receiver range contribute no bracket.
func Search(ctx context.Context, m ray.Medium, params ray.Params, cfg Config, logger *slog.Logger) ([]Eigenray, error) {
	// Tracing past the receiver would fold bounces beyond the target
	// into the bounce counts, so the trace stops at the receiver range.
	params.MaxRange = cfg.ReceiverRange

	tracer := ray.NewTracer(m, params)

	type scanPoint struct {
		angle float64
		err   float64
		ok    bool
	}

	scan := make([]scanPoint, 0, cfg.ScanCount)
	for _, angle := range ray.Angles(cfg.ScanCount, cfg.MaxAngle) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, derr, ok := depthError(tracer, angle, cfg)
		scan = append(scan, scanPoint{angle: angle, err: derr, ok: ok})
	}

	var found []Eigenray
	for i := 1; i < len(scan); i++ {
		lo, hi := scan[i-1], scan[i]
		if !lo.ok || !hi.ok || sameSign(lo.err, hi.err) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found = append(found, bisect(tracer, lo.angle, lo.err, hi.angle, cfg))
	}

	converged := 0
	for _, e := range found {
		if e.Converged {
			converged++
		}
	}
	logger.Debug("eigenray search complete",
		"brackets", len(found),
		"converged", converged,
		"receiver_range", cfg.ReceiverRange,
		"receiver_depth", cfg.ReceiverDepth,
	)
	return found, nil
}

// Converged filters a search result down to the converged eigenrays.
func Converged(found []Eigenray) []Eigenray {
	out := make([]Eigenray, 0, len(found))
	for _, e := range found {
		if e.Converged {
			out = append(out, e)
		}
	}
	return out
}

// depthError traces one ray and returns its signed depth error at the
// receiver range. ok is false when the trajectory never reaches it.
func depthError(tracer *ray.Tracer, angle float64, cfg Config) (ray.Ray, float64, bool) {
	ry := tracer.Trace(angle)
	depth, _, _, ok := ry.DepthAt(cfg.ReceiverRange)
	if !ok {
		return ry, math.NaN(), false
	}
	return ry, depth - cfg.ReceiverDepth, true
}

// bisect narrows a sign-changing bracket until the depth error is within
// tolerance or the iteration cap is hit.
func bisect(tracer *ray.Tracer, loAngle, loErr, hiAngle float64, cfg Config) Eigenray {
	var (
		best     ray.Ray
		bestErr  = math.Inf(1)
		iterUsed int
	)

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		mid := 0.5 * (loAngle + hiAngle)
		ry, derr, ok := depthError(tracer, mid, cfg)
		iterUsed = iter
		if !ok {
			// The midpoint ray died before the receiver; the bracket
			// is degenerate. Report what we have.
			break
		}

		if math.Abs(derr) < math.Abs(bestErr) {
			best, bestErr = ry, derr
		}
		if math.Abs(derr) < cfg.DepthTolerance {
			return finalize(ry, derr, iterUsed, true, cfg)
		}

		if sameSign(derr, loErr) {
			loAngle, loErr = mid, derr
		} else {
			hiAngle = mid
		}
	}

	return finalize(best, bestErr, iterUsed, false, cfg)
}

func finalize(ry ray.Ray, derr float64, iterations int, converged bool, cfg Config) Eigenray {
	travelTime, amplitude := 0.0, 0.0
	if _, tt, amp, ok := ry.DepthAt(cfg.ReceiverRange); ok {
		travelTime, amplitude = tt, amp
	}
	return Eigenray{
		Ray:         ry,
		TargetRange: cfg.ReceiverRange,
		TargetDepth: cfg.ReceiverDepth,
		TravelTime:  travelTime,
		Amplitude:   amplitude,
		DepthError:  derr,
		Iterations:  iterations,
		Converged:   converged,
	}
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}

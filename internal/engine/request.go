package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/eigenray"
	"github.com/oceanus/oceanray/internal/field"
	"github.com/oceanus/oceanray/internal/ray"
)

// ErrInvalidRequest marks a request rejected before any tracing.
var ErrInvalidRequest = errors.New("invalid propagation request")

// OutputKind selects what a propagation request produces.
type OutputKind string

const (
	OutputTransmissionLoss OutputKind = "transmission_loss"
	OutputRayPaths         OutputKind = "ray_paths"
	OutputEigenrays        OutputKind = "eigenrays"
)

// Receiver is the target point for an eigenray search.
type Receiver struct {
	Range float64 `json:"range"`
	Depth float64 `json:"depth"`
}

// Request parameterizes one propagation run. Never mutated by the
// pipeline; the router passes it through both execution paths unchanged
// so results never depend on where they were computed.
type Request struct {
	SourceDepth float64    `json:"source_depth"`
	Frequency   float64    `json:"frequency"`
	RayCount    int        `json:"ray_count"`
	MaxAngleDeg float64    `json:"max_angle_deg"`
	MaxRange    float64    `json:"max_range"`
	RangeStep   float64    `json:"range_step"`
	Output      OutputKind `json:"output"`

	// Receiver is required for eigenray output.
	Receiver *Receiver `json:"receiver,omitempty"`

	// Grid overrides the default output grid for transmission loss.
	Grid *field.GridSpec `json:"grid,omitempty"`
}

// step cap multiplier: boundary bounces lengthen the arc beyond the
// straight-line estimate, but not by more than this in any sane duct.
const stepCapFactor = 4

// Validate rejects malformed requests before execution.
func (r Request) Validate() error {
	if r.SourceDepth < 0 {
		return fmt.Errorf("%w: source depth %g is negative", ErrInvalidRequest, r.SourceDepth)
	}
	if r.Frequency <= 0 {
		return fmt.Errorf("%w: frequency %g must be positive", ErrInvalidRequest, r.Frequency)
	}
	if r.RayCount < 1 {
		return fmt.Errorf("%w: ray count %d must be at least 1", ErrInvalidRequest, r.RayCount)
	}
	if r.MaxAngleDeg <= 0 || r.MaxAngleDeg >= 90 {
		return fmt.Errorf("%w: max angle %g must lie in (0, 90) degrees", ErrInvalidRequest, r.MaxAngleDeg)
	}
	if r.MaxRange <= 0 {
		return fmt.Errorf("%w: max range %g must be positive", ErrInvalidRequest, r.MaxRange)
	}
	if r.RangeStep <= 0 || r.RangeStep > r.MaxRange {
		return fmt.Errorf("%w: range step %g must lie in (0, max range]", ErrInvalidRequest, r.RangeStep)
	}
	switch r.Output {
	case OutputTransmissionLoss, OutputRayPaths:
	case OutputEigenrays:
		if r.Receiver == nil {
			return fmt.Errorf("%w: eigenray output requires a receiver", ErrInvalidRequest)
		}
		if r.Receiver.Range <= 0 || r.Receiver.Range > r.MaxRange {
			return fmt.Errorf("%w: receiver range %g must lie in (0, max range]", ErrInvalidRequest, r.Receiver.Range)
		}
		if r.Receiver.Depth < 0 {
			return fmt.Errorf("%w: receiver depth %g is negative", ErrInvalidRequest, r.Receiver.Depth)
		}
	default:
		return fmt.Errorf("%w: unknown output kind %q", ErrInvalidRequest, r.Output)
	}
	if r.Grid != nil {
		if err := r.Grid.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	return nil
}

// EstimateWorkload returns the ray-step product the router bases its
// placement decision on. Pure function of the request.
func EstimateWorkload(r Request) uint64 {
	if r.RayCount < 1 || r.RangeStep <= 0 || r.MaxRange <= 0 {
		return 0
	}
	steps := uint64(math.Ceil(r.MaxRange / r.RangeStep))
	return uint64(r.RayCount) * steps
}

// rayParams converts the request into integrator parameters. The step
// cap scales with the straight-line step count so trapped rays terminate.
func (r Request) rayParams() ray.Params {
	steps := int(math.Ceil(r.MaxRange / r.RangeStep))
	return ray.Params{
		SourceDepth: r.SourceDepth,
		Frequency:   r.Frequency,
		StepSize:    r.RangeStep,
		MaxRange:    r.MaxRange,
		MaxSteps:    steps*stepCapFactor + 100,
	}
}

// eigenrayConfig derives the search configuration: the scan reuses the
// request fan, the tolerance is a tenth of the range step capped at a
// meter.
func (r Request) eigenrayConfig() eigenray.Config {
	tol := r.RangeStep / 10
	if tol > 1 {
		tol = 1
	}
	return eigenray.Config{
		ReceiverRange:  r.Receiver.Range,
		ReceiverDepth:  r.Receiver.Depth,
		ScanCount:      r.RayCount,
		MaxAngle:       ray.Degrees(r.MaxAngleDeg),
		DepthTolerance: tol,
		MaxIterations:  60,
	}
}

// gridSpec returns the requested grid, or a default spanning the water
// column at roughly 200×100 cells.
func (r Request) gridSpec(m env.Environment) field.GridSpec {
	if r.Grid != nil {
		return *r.Grid
	}
	maxDepth := m.Bathymetry.MaxDepth()
	return field.GridSpec{
		RangeMin:  0,
		RangeMax:  r.MaxRange,
		RangeStep: r.MaxRange / 200,
		DepthMin:  0,
		DepthMax:  maxDepth,
		DepthStep: maxDepth / 100,
	}
}

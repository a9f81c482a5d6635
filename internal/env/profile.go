package env

import (
	"fmt"
	"math"
	"sort"
)

// ProfileKind identifies one of the supported sound-speed profile shapes.
// The set is closed: profile evaluation sits on the hottest path of the
// tracer, so each kind gets a direct branch rather than an interface call.
type ProfileKind string

const (
	ProfileIsovelocity ProfileKind = "isovelocity"
	ProfileLinear      ProfileKind = "linear"
	ProfileMunk        ProfileKind = "munk"
	ProfileTabulated   ProfileKind = "tabulated"
)

// Profile describes sound speed as a function of depth. Which fields are
// meaningful depends on Kind; Validate enforces the per-kind requirements.
type Profile struct {
	Kind ProfileKind `json:"kind" yaml:"kind"`

	// SurfaceSpeed is c(0) in m/s for the isovelocity and linear kinds.
	SurfaceSpeed float64 `json:"surface_speed,omitempty" yaml:"surface_speed,omitempty"`

	// Gradient is dc/dz in 1/s for the linear kind.
	Gradient float64 `json:"gradient,omitempty" yaml:"gradient,omitempty"`

	// AxisDepth and AxisSpeed parameterize the Munk canonical profile
	// (sound-channel axis). Epsilon defaults to 0.00737 when zero.
	AxisDepth float64 `json:"axis_depth,omitempty" yaml:"axis_depth,omitempty"`
	AxisSpeed float64 `json:"axis_speed,omitempty" yaml:"axis_speed,omitempty"`
	Epsilon   float64 `json:"epsilon,omitempty" yaml:"epsilon,omitempty"`

	// Depths and Speeds are the sample points for the tabulated kind.
	// Depths must be strictly increasing and start at or above 0.
	Depths []float64 `json:"depths,omitempty" yaml:"depths,omitempty"`
	Speeds []float64 `json:"speeds,omitempty" yaml:"speeds,omitempty"`
}

// canonical Munk perturbation scale.
const defaultMunkEpsilon = 0.00737

func (p Profile) epsilon() float64 {
	if p.Epsilon != 0 {
		return p.Epsilon
	}
	return defaultMunkEpsilon
}

// SoundSpeed evaluates c(z) in m/s. The depth argument must lie within
// [0, maxDepth]; callers clamp post-reflection coordinates before querying.
func (p Profile) SoundSpeed(depth float64) float64 {
	switch p.Kind {
	case ProfileIsovelocity:
		return p.SurfaceSpeed
	case ProfileLinear:
		return p.SurfaceSpeed + p.Gradient*depth
	case ProfileMunk:
		zt := 2 * (depth - p.AxisDepth) / p.AxisDepth
		return p.AxisSpeed * (1 + p.epsilon()*(zt-1+math.Exp(-zt)))
	case ProfileTabulated:
		return p.interpolate(depth)
	default:
		return math.NaN()
	}
}

// SoundSpeedGradient evaluates dc/dz in 1/s. Analytic for every kind:
// the tabulated profile is piecewise linear, so its gradient is the
// segment slope.
func (p Profile) SoundSpeedGradient(depth float64) float64 {
	switch p.Kind {
	case ProfileIsovelocity:
		return 0
	case ProfileLinear:
		return p.Gradient
	case ProfileMunk:
		zt := 2 * (depth - p.AxisDepth) / p.AxisDepth
		return p.AxisSpeed * p.epsilon() * (1 - math.Exp(-zt)) * 2 / p.AxisDepth
	case ProfileTabulated:
		return p.segmentSlope(depth)
	default:
		return math.NaN()
	}
}

// interpolate evaluates the tabulated profile with linear interpolation,
// clamping outside the table instead of extrapolating.
func (p Profile) interpolate(depth float64) float64 {
	n := len(p.Depths)
	if depth <= p.Depths[0] {
		return p.Speeds[0]
	}
	if depth >= p.Depths[n-1] {
		return p.Speeds[n-1]
	}
	i := sort.SearchFloat64s(p.Depths, depth)
	z0, z1 := p.Depths[i-1], p.Depths[i]
	c0, c1 := p.Speeds[i-1], p.Speeds[i]
	return c0 + (c1-c0)*(depth-z0)/(z1-z0)
}

func (p Profile) segmentSlope(depth float64) float64 {
	n := len(p.Depths)
	if depth <= p.Depths[0] || depth >= p.Depths[n-1] {
		return 0
	}
	i := sort.SearchFloat64s(p.Depths, depth)
	return (p.Speeds[i] - p.Speeds[i-1]) / (p.Depths[i] - p.Depths[i-1])
}

// validate checks the per-kind field requirements.
func (p Profile) validate() error {
	switch p.Kind {
	case ProfileIsovelocity:
		if p.SurfaceSpeed <= 0 {
			return fmt.Errorf("isovelocity profile requires positive surface_speed, got %g", p.SurfaceSpeed)
		}
	case ProfileLinear:
		if p.SurfaceSpeed <= 0 {
			return fmt.Errorf("linear profile requires positive surface_speed, got %g", p.SurfaceSpeed)
		}
	case ProfileMunk:
		if p.AxisDepth <= 0 || p.AxisSpeed <= 0 {
			return fmt.Errorf("munk profile requires positive axis_depth and axis_speed, got %g and %g", p.AxisDepth, p.AxisSpeed)
		}
	case ProfileTabulated:
		if len(p.Depths) < 2 || len(p.Depths) != len(p.Speeds) {
			return fmt.Errorf("tabulated profile requires matching depth/speed tables with at least 2 points, got %d/%d", len(p.Depths), len(p.Speeds))
		}
		for i := 1; i < len(p.Depths); i++ {
			if p.Depths[i] <= p.Depths[i-1] {
				return fmt.Errorf("tabulated profile depths must be strictly increasing at index %d", i)
			}
		}
		for i, c := range p.Speeds {
			if c <= 0 {
				return fmt.Errorf("tabulated profile speed at index %d must be positive, got %g", i, c)
			}
		}
	default:
		return fmt.Errorf("unknown profile kind %q", p.Kind)
	}
	return nil
}

package env

import (
	"fmt"
	"math"
	"sort"
)

// BathymetryKind identifies the bottom shape.
type BathymetryKind string

const (
	BathymetryFlat   BathymetryKind = "flat"
	BathymetrySloped BathymetryKind = "sloped"
)

// Bathymetry maps range to bottom depth. Flat bottoms use Depth; sloped
// bottoms interpolate linearly over (Ranges, Depths) control points.
type Bathymetry struct {
	Kind  BathymetryKind `json:"kind" yaml:"kind"`
	Depth float64        `json:"depth,omitempty" yaml:"depth,omitempty"`

	Ranges []float64 `json:"ranges,omitempty" yaml:"ranges,omitempty"`
	Depths []float64 `json:"depths,omitempty" yaml:"depths,omitempty"`
}

// BottomDepth returns the bottom depth in meters at the given range.
// Outside the control-point span the nearest endpoint depth applies.
func (b Bathymetry) BottomDepth(r float64) float64 {
	switch b.Kind {
	case BathymetryFlat:
		return b.Depth
	case BathymetrySloped:
		n := len(b.Ranges)
		if r <= b.Ranges[0] {
			return b.Depths[0]
		}
		if r >= b.Ranges[n-1] {
			return b.Depths[n-1]
		}
		i := sort.SearchFloat64s(b.Ranges, r)
		r0, r1 := b.Ranges[i-1], b.Ranges[i]
		d0, d1 := b.Depths[i-1], b.Depths[i]
		return d0 + (d1-d0)*(r-r0)/(r1-r0)
	default:
		return math.NaN()
	}
}

// Slope returns the bottom slope dD/dr at the given range. Zero for flat
// bottoms and outside the control-point span.
func (b Bathymetry) Slope(r float64) float64 {
	if b.Kind != BathymetrySloped {
		return 0
	}
	n := len(b.Ranges)
	if r <= b.Ranges[0] || r >= b.Ranges[n-1] {
		return 0
	}
	i := sort.SearchFloat64s(b.Ranges, r)
	return (b.Depths[i] - b.Depths[i-1]) / (b.Ranges[i] - b.Ranges[i-1])
}

// MaxDepth returns the deepest bottom depth anywhere in range.
func (b Bathymetry) MaxDepth() float64 {
	switch b.Kind {
	case BathymetryFlat:
		return b.Depth
	case BathymetrySloped:
		maxDepth := 0.0
		for _, d := range b.Depths {
			if d > maxDepth {
				maxDepth = d
			}
		}
		return maxDepth
	default:
		return math.NaN()
	}
}

func (b Bathymetry) validate() error {
	switch b.Kind {
	case BathymetryFlat:
		if b.Depth <= 0 {
			return fmt.Errorf("flat bathymetry requires positive depth, got %g", b.Depth)
		}
	case BathymetrySloped:
		if len(b.Ranges) < 2 || len(b.Ranges) != len(b.Depths) {
			return fmt.Errorf("sloped bathymetry requires matching range/depth tables with at least 2 points, got %d/%d", len(b.Ranges), len(b.Depths))
		}
		for i := 1; i < len(b.Ranges); i++ {
			if b.Ranges[i] <= b.Ranges[i-1] {
				return fmt.Errorf("sloped bathymetry ranges must be strictly increasing at index %d", i)
			}
		}
		for i, d := range b.Depths {
			if d <= 0 {
				return fmt.Errorf("sloped bathymetry depth at index %d must be positive, got %g", i, d)
			}
		}
	default:
		return fmt.Errorf("unknown bathymetry kind %q", b.Kind)
	}
	return nil
}

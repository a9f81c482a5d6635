// Package field bins traced rays onto a range-depth grid and coherently
// sums their complex pressure contributions into a transmission-loss
// field. Deposition walks rays in launch order in a single goroutine:
// the reduce order is fixed, so the resulting grid is bit-identical for
// identical inputs no matter how the rays were traced.
package field

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/oceanus/oceanray/internal/eigenray"
	"github.com/oceanus/oceanray/internal/ray"
)

// ErrNoValidRays means no ray deposited a single sample inside the grid;
// the request as a whole has no answer.
var ErrNoValidRays = errors.New("no valid rays contributed to the field")

// TLFloor is the transmission loss assigned to cells with negligible
// energy, in dB. It also caps the computed loss so log(0) never leaks.
const TLFloor = 200.0

// pressure magnitude corresponding to the floor.
var floorPressure = math.Pow(10, -TLFloor/20)

// GridSpec defines the output grid extents and spacing, in meters.
type GridSpec struct {
	RangeMin  float64 `json:"range_min"`
	RangeMax  float64 `json:"range_max"`
	RangeStep float64 `json:"range_step"`
	DepthMin  float64 `json:"depth_min"`
	DepthMax  float64 `json:"depth_max"`
	DepthStep float64 `json:"depth_step"`
}

// Validate rejects degenerate grids before any work happens.
func (g GridSpec) Validate() error {
	if g.RangeStep <= 0 || g.DepthStep <= 0 {
		return fmt.Errorf("grid steps must be positive, got %g and %g", g.RangeStep, g.DepthStep)
	}
	if g.RangeMax <= g.RangeMin {
		return fmt.Errorf("grid range extent [%g, %g] is empty", g.RangeMin, g.RangeMax)
	}
	if g.DepthMax <= g.DepthMin {
		return fmt.Errorf("grid depth extent [%g, %g] is empty", g.DepthMin, g.DepthMax)
	}
	return nil
}

// Grid is the immutable transmission-loss result: TL[i][j] is the loss
// in dB at Depths[i], Ranges[j].
type Grid struct {
	Ranges []float64   `json:"ranges"`
	Depths []float64   `json:"depths"`
	TL     [][]float64 `json:"tl"`
}

// Assemble deposits every ray sample into its nearest grid cell as a
// complex pressure contribution amp·e^(iωτ) and converts the summed
// magnitudes to transmission loss.
func Assemble(rays []ray.Ray, freqHz float64, spec GridSpec) (*Grid, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	numRanges := int((spec.RangeMax-spec.RangeMin)/spec.RangeStep) + 1
	numDepths := int((spec.DepthMax-spec.DepthMin)/spec.DepthStep) + 1

	pressure := make([][]complex128, numDepths)
	for i := range pressure {
		pressure[i] = make([]complex128, numRanges)
	}

	omega := 2 * math.Pi * freqHz
	deposited := 0

	for _, ry := range rays {
		for _, s := range ry.Samples {
			j := int(math.Round((s.Range - spec.RangeMin) / spec.RangeStep))
			i := int(math.Round((s.Depth - spec.DepthMin) / spec.DepthStep))
			if i < 0 || i >= numDepths || j < 0 || j >= numRanges {
				continue
			}
			pressure[i][j] += cmplx.Rect(s.Amplitude, omega*s.Time)
			deposited++
		}
	}

	if deposited == 0 {
		return nil, ErrNoValidRays
	}

	grid := &Grid{
		Ranges: make([]float64, numRanges),
		Depths: make([]float64, numDepths),
		TL:     make([][]float64, numDepths),
	}
	for j := range grid.Ranges {
		grid.Ranges[j] = spec.RangeMin + float64(j)*spec.RangeStep
	}
	for i := range grid.Depths {
		grid.Depths[i] = spec.DepthMin + float64(i)*spec.DepthStep
	}
	for i := range grid.TL {
		row := make([]float64, numRanges)
		for j := range row {
			row[j] = toTL(cmplx.Abs(pressure[i][j]))
		}
		grid.TL[i] = row
	}
	return grid, nil
}

// CoherentTL sums eigenray arrivals at their common receiver into a
// single coherent transmission loss in dB.
func CoherentTL(arrivals []eigenray.Eigenray, freqHz float64) float64 {
	omega := 2 * math.Pi * freqHz
	var p complex128
	for _, e := range arrivals {
		p += cmplx.Rect(e.Amplitude, omega*e.TravelTime)
	}
	return toTL(cmplx.Abs(p))
}

// toTL converts a pressure magnitude to transmission loss with the floor
// applied.
func toTL(mag float64) float64 {
	if mag <= floorPressure {
		return TLFloor
	}
	return -20 * math.Log10(mag)
}

package env

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Surface describes the sea-surface boundary. Loss is the reflection
// coefficient magnitude in [0, 1]; the pressure-release phase flip is
// applied by the integrator, not encoded here.
type Surface struct {
	Loss float64 `json:"loss" yaml:"loss"`
}

// Bottom describes the seafloor as a fluid half-space. Speed is the
// compressional sound speed in m/s, Density the ratio of sediment to
// water density (dimensionless).
type Bottom struct {
	Speed   float64 `json:"speed" yaml:"speed"`
	Density float64 `json:"density" yaml:"density"`
}

// ReflectionCoefficient returns the Rayleigh reflection-coefficient
// magnitude for a fluid half-space at the given grazing angle (radians,
// measured from the boundary plane). waterSpeed is c just above the
// bottom. Below the critical angle the magnitude is 1 (total internal
// reflection); above it energy transmits into the sediment and the
// magnitude drops below 1.
func (b Bottom) ReflectionCoefficient(grazing, waterSpeed float64) float64 {
	if grazing < 0 {
		grazing = -grazing
	}
	if grazing > math.Pi/2 {
		grazing = math.Pi / 2
	}

	m := b.Density
	n := waterSpeed / b.Speed

	sinT := math.Sin(grazing)
	cosT := math.Cos(grazing)

	// sqrt goes imaginary below the critical angle; the complex form
	// handles both regimes.
	root := cmplx.Sqrt(complex(n*n-cosT*cosT, 0))
	num := complex(m*sinT, 0) - root
	den := complex(m*sinT, 0) + root
	return cmplx.Abs(num / den)
}

func (s Surface) validate() error {
	if s.Loss < 0 || s.Loss > 1 {
		return fmt.Errorf("surface loss must lie in [0, 1], got %g", s.Loss)
	}
	return nil
}

func (b Bottom) validate() error {
	if b.Speed <= 0 {
		return fmt.Errorf("bottom speed must be positive, got %g", b.Speed)
	}
	if b.Density <= 0 {
		return fmt.Errorf("bottom density ratio must be positive, got %g", b.Density)
	}
	return nil
}

// Package env models the layered ocean environment the ray tracer
// propagates through: a sound-speed profile over depth, bathymetry over
// range, and the two reflecting boundaries. Environments are value types,
// immutable after construction and safe to share across concurrent ray
// traces. Evaluation is fully deterministic: the same Environment produces
// bit-identical answers wherever it runs, which the reproducibility
// guarantee of the whole pipeline rests on.
package env

import (
	"errors"
	"fmt"
)

// ErrInvalidEnvironment is wrapped by every validation failure so callers
// can classify rejection before tracing begins.
var ErrInvalidEnvironment = errors.New("invalid environment")

// Environment is the complete medium description consumed by the tracer.
type Environment struct {
	Profile    Profile    `json:"profile" yaml:"profile"`
	Bathymetry Bathymetry `json:"bathymetry" yaml:"bathymetry"`
	Surface    Surface    `json:"surface" yaml:"surface"`
	Bottom     Bottom     `json:"bottom" yaml:"bottom"`
}

// SoundSpeed returns c(z) in m/s.
func (e Environment) SoundSpeed(depth float64) float64 {
	return e.Profile.SoundSpeed(depth)
}

// SoundSpeedGradient returns dc/dz in 1/s.
func (e Environment) SoundSpeedGradient(depth float64) float64 {
	return e.Profile.SoundSpeedGradient(depth)
}

// BottomDepth returns the bottom depth in meters at the given range.
func (e Environment) BottomDepth(r float64) float64 {
	return e.Bathymetry.BottomDepth(r)
}

// BottomSlope returns the bottom slope dD/dr at the given range.
func (e Environment) BottomSlope(r float64) float64 {
	return e.Bathymetry.Slope(r)
}

// SurfaceLoss returns the surface reflection-coefficient magnitude.
func (e Environment) SurfaceLoss() float64 {
	return e.Surface.Loss
}

// BottomReflectionCoefficient returns the reflection-coefficient
// magnitude at the given grazing angle (radians) and range, using the
// local water sound speed just above the bottom.
func (e Environment) BottomReflectionCoefficient(grazing, r float64) float64 {
	c := e.SoundSpeed(e.BottomDepth(r))
	return e.Bottom.ReflectionCoefficient(grazing, c)
}

// Validate checks the environment before any tracing. Invalid
// environments are rejected whole; nothing is partially processed.
func (e Environment) Validate() error {
	if err := e.Profile.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvironment, err)
	}
	if err := e.Bathymetry.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvironment, err)
	}
	if err := e.Surface.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvironment, err)
	}
	if err := e.Bottom.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvironment, err)
	}

	// Sound speed must be defined over the whole water column.
	maxDepth := e.Bathymetry.MaxDepth()
	for _, z := range []float64{0, maxDepth / 2, maxDepth} {
		c := e.SoundSpeed(z)
		if c <= 0 {
			return fmt.Errorf("%w: sound speed %g at depth %g is not positive", ErrInvalidEnvironment, c, z)
		}
	}
	return nil
}

// ValidateSource checks that a source depth lies inside the water column
// at range zero.
func (e Environment) ValidateSource(sourceDepth float64) error {
	if sourceDepth < 0 {
		return fmt.Errorf("%w: source depth %g above the surface", ErrInvalidEnvironment, sourceDepth)
	}
	if bd := e.BottomDepth(0); sourceDepth > bd {
		return fmt.Errorf("%w: source depth %g below the bottom (%g)", ErrInvalidEnvironment, sourceDepth, bd)
	}
	return nil
}

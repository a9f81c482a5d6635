// Package ray implements the acoustic ray integrator and the fan tracer.
// A ray is advanced in arc length through the water column with a
// 4th-order Runge-Kutta step over the ray equations
//
//	dr/ds = c·ξ    dz/ds = c·ζ    dζ/ds = -(∂c/∂z)/c²    dτ/ds = 1/c
//
// where (ξ, ζ) are the horizontal and vertical slowness components. In a
// range-independent medium ξ is an exact invariant (Snell's law), which
// the integrator exploits by never stepping it.
package ray

import "math"

// Params controls one trace invocation. The same values must be used on
// the constrained and queued execution paths; the router passes them
// through untouched.
type Params struct {
	SourceDepth float64 // meters
	Frequency   float64 // Hz
	StepSize    float64 // arc-length step ds, meters
	MaxRange    float64 // meters
	MaxSteps    int     // hard cap against trapped rays
}

// boundary crossing location tolerance, meters.
const crossingTol = 1e-6

// amplitude reference distance: unit amplitude at 1 m from the source.
const refDistance = 1.0

// Tracer integrates single rays through a fixed environment. Safe for
// concurrent use: tracing allocates all mutable state per call.
type Tracer struct {
	env    Medium
	params Params
	alpha  float64 // volume attenuation, Np/m, fixed per frequency
}

// Medium is the environment evaluation surface the integrator needs.
// Implementations must be deterministic and safe for concurrent reads.
type Medium interface {
	SoundSpeed(depth float64) float64
	SoundSpeedGradient(depth float64) float64
	BottomDepth(r float64) float64
	BottomSlope(r float64) float64
	SurfaceLoss() float64
	BottomReflectionCoefficient(grazing, r float64) float64
	VolumeAttenuation(freqHz, depth float64) float64
}

// NewTracer builds a tracer for one environment and parameter set.
func NewTracer(m Medium, p Params) *Tracer {
	return &Tracer{
		env:    m,
		params: p,
		alpha:  m.VolumeAttenuation(p.Frequency, p.SourceDepth),
	}
}

// state is the mutable integration state, owned by exactly one in-flight
// trace.
type state struct {
	r, z    float64
	xi      float64 // horizontal slowness, invariant
	zeta    float64 // vertical slowness
	arc     float64
	time    float64
	amp     float64
	surface int
	bottom  int
}

// Trace integrates one ray from the source at the given launch angle
// (radians, positive down) until it passes max range or hits the step cap.
func (t *Tracer) Trace(angle float64) Ray {
	c0 := t.env.SoundSpeed(t.params.SourceDepth)
	st := state{
		z:    t.params.SourceDepth,
		xi:   math.Cos(angle) / c0,
		zeta: math.Sin(angle) / c0,
		amp:  1,
	}

	estSteps := int(t.params.MaxRange/t.params.StepSize) + 2
	samples := make([]Sample, 0, min(estSteps, t.params.MaxSteps)+1)
	samples = append(samples, t.sample(st))

	truncated := true
	for steps := 0; steps < t.params.MaxSteps; steps++ {
		st = t.step(st)
		samples = append(samples, t.sample(st))
		if st.r >= t.params.MaxRange {
			truncated = false
			break
		}
	}

	return Ray{
		Angle:          angle,
		Samples:        samples,
		SurfaceBounces: st.surface,
		BottomBounces:  st.bottom,
		Truncated:      truncated,
	}
}

func (t *Tracer) sample(st state) Sample {
	return Sample{Range: st.r, Depth: st.z, Amplitude: st.amp, Arc: st.arc, Time: st.time}
}

// step advances one full arc-length step, resolving at most one boundary
// crossing by bisecting the step to the crossing point. The step size
// contract is that a single step never spans two crossings.
func (t *Tracer) step(st state) state {
	h := t.params.StepSize
	next := t.advance(st, h)

	switch {
	case next.z < 0:
		hit := t.bisectCrossing(st, h, func(s state) bool { return s.z < 0 })
		return t.reflectSurface(hit)
	case next.z > t.env.BottomDepth(next.r):
		hit := t.bisectCrossing(st, h, func(s state) bool { return s.z > t.env.BottomDepth(s.r) })
		return t.reflectBottom(hit)
	default:
		return next
	}
}

// advance performs a classical RK4 step of length h over (r, z, ζ, τ)
// and applies the multiplicative amplitude update (geometric spreading
// and volume attenuation over h). ξ never steps: it is the Snell
// invariant in a range-independent medium.
func (t *Tracer) advance(st state, h float64) state {
	dr1, dz1, dzeta1, dtau1 := t.derive(st.xi, st.z, st.zeta)
	dr2, dz2, dzeta2, dtau2 := t.derive(st.xi, st.z+0.5*h*dz1, st.zeta+0.5*h*dzeta1)
	dr3, dz3, dzeta3, dtau3 := t.derive(st.xi, st.z+0.5*h*dz2, st.zeta+0.5*h*dzeta2)
	dr4, dz4, dzeta4, dtau4 := t.derive(st.xi, st.z+h*dz3, st.zeta+h*dzeta3)

	h6 := h / 6
	out := st
	out.r = st.r + h6*(dr1+2*dr2+2*dr3+dr4)
	out.z = st.z + h6*(dz1+2*dz2+2*dz3+dz4)
	out.zeta = st.zeta + h6*(dzeta1+2*dzeta2+2*dzeta3+dzeta4)
	out.time = st.time + h6*(dtau1+2*dtau2+2*dtau3+dtau4)
	out.arc = st.arc + h

	out.amp = st.amp * spreading(st.arc, out.arc) * math.Exp(-t.alpha*h)
	return out
}

// derive evaluates the ray equation right-hand side. Depth is clamped to
// the water column for profile queries so RK4 midpoints slightly past a
// boundary stay well defined.
func (t *Tracer) derive(xi, z, zeta float64) (dr, dz, dzeta, dtau float64) {
	if z < 0 {
		z = 0
	}
	c := t.env.SoundSpeed(z)
	g := t.env.SoundSpeedGradient(z)
	dr = c * xi
	dz = c * zeta
	dzeta = -g / (c * c)
	dtau = 1 / c
	return dr, dz, dzeta, dtau
}

// spreading is the per-step geometric spreading factor: spherical decay
// referenced to unit amplitude at 1 m.
func spreading(arcOld, arcNew float64) float64 {
	return math.Max(arcOld, refDistance) / math.Max(arcNew, refDistance)
}

// bisectCrossing shrinks the step until it lands on the boundary within
// crossingTol, returning the state at the crossing point.
func (t *Tracer) bisectCrossing(st state, h float64, crossed func(state) bool) state {
	lo, hi := 0.0, h
	for hi-lo > crossingTol {
		mid := 0.5 * (lo + hi)
		if crossed(t.advance(st, mid)) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return t.advance(st, lo)
}

// reflectSurface mirrors the ray off the pressure-release sea surface:
// depth reflects about zero, vertical slowness flips, and the amplitude
// picks up the surface loss with a sign flip for the π phase shift.
func (t *Tracer) reflectSurface(st state) state {
	st.z = -st.z
	if st.z < 0 {
		st.z = 0
	}
	st.zeta = -st.zeta
	st.amp *= -t.env.SurfaceLoss()
	st.surface++
	return st
}

// reflectBottom mirrors the ray off the bottom and applies the
// grazing-angle-dependent reflection loss.
func (t *Tracer) reflectBottom(st state) state {
	bd := t.env.BottomDepth(st.r)
	st.z = 2*bd - st.z
	if st.z > bd {
		st.z = bd
	}

	grazing := math.Abs(math.Atan2(st.zeta, st.xi) - math.Atan(t.env.BottomSlope(st.r)))
	st.zeta = -st.zeta
	st.amp *= t.env.BottomReflectionCoefficient(grazing, st.r)
	st.bottom++
	return st
}

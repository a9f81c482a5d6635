package ray

import "math"

// Sample is one recorded point along a traced ray.
type Sample struct {
	Range     float64 `json:"r"`
	Depth     float64 `json:"z"`
	Amplitude float64 `json:"a"`
	Arc       float64 `json:"s"`
	Time      float64 `json:"t"`
}

// Ray is the immutable record of one completed trace. Produced by the
// integrator, consumed by the field assembler and the eigenray search;
// never mutated after creation.
type Ray struct {
	Angle          float64  `json:"angle"` // launch angle, radians, positive down
	Samples        []Sample `json:"samples"`
	SurfaceBounces int      `json:"surface_bounces"`
	BottomBounces  int      `json:"bottom_bounces"`

	// Truncated marks a ray that hit the integration step cap before
	// reaching max range. The partial trajectory is kept; the failure
	// never aborts the rest of the fan.
	Truncated bool `json:"truncated,omitempty"`
}

// DepthAt returns the ray depth at the given range, linearly interpolated
// between the bracketing samples, and the accumulated travel time and
// amplitude at the same point. ok is false when the ray never reaches r.
func (ry Ray) DepthAt(r float64) (depth, travelTime, amplitude float64, ok bool) {
	n := len(ry.Samples)
	if n == 0 || ry.Samples[n-1].Range < r {
		return 0, 0, 0, false
	}
	if r <= ry.Samples[0].Range {
		s := ry.Samples[0]
		return s.Depth, s.Time, s.Amplitude, true
	}

	// Samples are ordered by range for forward-launched rays; binary
	// search for the bracketing pair.
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if ry.Samples[mid].Range < r {
			lo = mid
		} else {
			hi = mid
		}
	}

	a, b := ry.Samples[lo], ry.Samples[hi]
	if b.Range == a.Range {
		return b.Depth, b.Time, b.Amplitude, true
	}
	f := (r - a.Range) / (b.Range - a.Range)
	return a.Depth + f*(b.Depth-a.Depth),
		a.Time + f*(b.Time-a.Time),
		a.Amplitude + f*(b.Amplitude-a.Amplitude),
		true
}

// Angles returns count launch angles evenly spaced over [-maxAngle,
// maxAngle] radians. A single-ray fan launches horizontally.
func Angles(count int, maxAngle float64) []float64 {
	if count <= 1 {
		return []float64{0}
	}
	angles := make([]float64, count)
	step := 2 * maxAngle / float64(count-1)
	for i := range angles {
		angles[i] = -maxAngle + float64(i)*step
	}
	return angles
}

// Degrees converts to radians. Launch angles arrive from the API in
// degrees; everything internal is radians.
func Degrees(deg float64) float64 {
	return deg * math.Pi / 180
}

package ray

import (
	"math"
	"testing"

	"github.com/oceanus/oceanray/internal/env"
)

func isoMedium(depth float64) env.Environment {
	return env.Environment{
		Profile:    env.Profile{Kind: env.ProfileIsovelocity, SurfaceSpeed: 1500},
		Bathymetry: env.Bathymetry{Kind: env.BathymetryFlat, Depth: depth},
		Surface:    env.Surface{Loss: 1.0},
		Bottom:     env.Bottom{Speed: 1700, Density: 1.8},
	}
}

// TestHorizontalRayStraightness verifies that in an isovelocity medium a
// horizontal ray stays at constant depth out to 50 km.
func TestHorizontalRayStraightness(t *testing.T) {
	m := isoMedium(5000)
	tracer := NewTracer(m, Params{
		SourceDepth: 1000,
		Frequency:   100,
		StepSize:    10,
		MaxRange:    50000,
		MaxSteps:    10000,
	})

	ry := tracer.Trace(0)
	if ry.Truncated {
		t.Fatal("horizontal ray should reach max range without truncation")
	}

	maxDrift := 0.0
	for _, s := range ry.Samples {
		if d := math.Abs(s.Depth - 1000); d > maxDrift {
			maxDrift = d
		}
	}
	if maxDrift > 1e-3*1000 {
		t.Errorf("depth drift %.6g m exceeds 1e-3 of source depth", maxDrift)
	}

	// Travel time for a straight ray is range over sound speed.
	last := ry.Samples[len(ry.Samples)-1]
	want := last.Range / 1500
	if math.Abs(last.Time-want) > 1e-9*want {
		t.Errorf("travel time %.12g s, want %.12g s", last.Time, want)
	}
}

// TestSnellInvariant verifies that the horizontal slowness cos θ / c(z)
// reconstructed from the trajectory is constant along a refracting ray.
func TestSnellInvariant(t *testing.T) {
	m := env.Environment{
		Profile:    env.Profile{Kind: env.ProfileLinear, SurfaceSpeed: 1480, Gradient: 0.016},
		Bathymetry: env.Bathymetry{Kind: env.BathymetryFlat, Depth: 5000},
		Surface:    env.Surface{Loss: 1.0},
		Bottom:     env.Bottom{Speed: 1700, Density: 1.8},
	}
	tracer := NewTracer(m, Params{
		SourceDepth: 200,
		Frequency:   100,
		StepSize:    5,
		MaxRange:    10000,
		MaxSteps:    10000,
	})

	ry := tracer.Trace(Degrees(5))

	launch := math.Cos(Degrees(5)) / m.SoundSpeed(200)
	for i := 1; i < len(ry.Samples); i++ {
		a, b := ry.Samples[i-1], ry.Samples[i]
		dr := b.Range - a.Range
		dz := b.Depth - a.Depth
		chord := math.Hypot(dr, dz)
		if chord == 0 {
			continue
		}
		cMid := m.SoundSpeed(0.5 * (a.Depth + b.Depth))
		xi := (dr / chord) / cMid
		if math.Abs(xi-launch)/launch > 1e-5 {
			t.Fatalf("sample %d: horizontal slowness %.12g drifted from launch value %.12g", i, xi, launch)
		}
	}
}

// TestDuctBounceCounting launches a steep ray in a 100 m channel and
// checks the bounce totals match the zig-zag geometry.
func TestDuctBounceCounting(t *testing.T) {
	m := isoMedium(100)
	tracer := NewTracer(m, Params{
		SourceDepth: 50,
		Frequency:   1000,
		StepSize:    1,
		MaxRange:    5000,
		MaxSteps:    100000,
	})

	ry := tracer.Trace(Degrees(10))
	if ry.Truncated {
		t.Fatal("duct ray should reach max range")
	}

	// A straight-line zig-zag crosses a boundary every 100/tan(10°) m of
	// range, about 567 m, so roughly 8-9 bounces over 5 km.
	total := ry.SurfaceBounces + ry.BottomBounces
	if total < 7 || total > 10 {
		t.Errorf("total bounces = %d, expected 7-10 for the duct geometry", total)
	}
	if d := ry.SurfaceBounces - ry.BottomBounces; d < -1 || d > 1 {
		t.Errorf("surface (%d) and bottom (%d) bounces should alternate", ry.SurfaceBounces, ry.BottomBounces)
	}

	// Sub-stepping keeps every sample inside the water column.
	for i, s := range ry.Samples {
		if s.Depth < -crossingTol || s.Depth > 100+crossingTol {
			t.Fatalf("sample %d at depth %.9g escaped the water column", i, s.Depth)
		}
	}
}

// TestSurfaceReflectionFlipsSign verifies the pressure-release phase flip.
func TestSurfaceReflectionFlipsSign(t *testing.T) {
	m := isoMedium(5000)
	tracer := NewTracer(m, Params{
		SourceDepth: 50,
		Frequency:   1000,
		StepSize:    1,
		MaxRange:    2000,
		MaxSteps:    100000,
	})

	ry := tracer.Trace(Degrees(-10)) // upward, hits the surface once
	if ry.SurfaceBounces != 1 {
		t.Fatalf("expected exactly one surface bounce, got %d", ry.SurfaceBounces)
	}

	flipped := false
	for _, s := range ry.Samples {
		if s.Amplitude < 0 {
			flipped = true
			break
		}
	}
	if !flipped {
		t.Error("amplitude sign never flipped after surface reflection")
	}
}

// TestBottomBounceLosesEnergy verifies amplitude magnitude drops across a
// bottom reflection.
func TestBottomBounceLosesEnergy(t *testing.T) {
	m := isoMedium(100)
	tracer := NewTracer(m, Params{
		SourceDepth: 50,
		Frequency:   1000,
		StepSize:    1,
		MaxRange:    1000,
		MaxSteps:    100000,
	})

	// 30° is well above the 28° critical angle for a 1700 m/s bottom.
	ry := tracer.Trace(Degrees(30))
	if ry.BottomBounces == 0 {
		t.Fatal("expected at least one bottom bounce")
	}

	// Locate the first bottom hit: the sample at the bottom boundary.
	for i := 1; i < len(ry.Samples); i++ {
		if math.Abs(ry.Samples[i].Depth-100) < 1e-3 {
			before := math.Abs(ry.Samples[i-1].Amplitude)
			after := math.Abs(ry.Samples[i].Amplitude)
			// Spreading alone over one 1 m step cannot explain more
			// than a fraction of a percent; the reflection must.
			if after/before > 0.99 {
				t.Errorf("amplitude ratio %.4g across bottom bounce, expected visible reflection loss", after/before)
			}
			return
		}
	}
	t.Fatal("no sample found at the bottom boundary")
}

// TestStepCapTruncation verifies the hard safety bound marks the ray
// rather than looping.
func TestStepCapTruncation(t *testing.T) {
	m := isoMedium(5000)
	tracer := NewTracer(m, Params{
		SourceDepth: 1000,
		Frequency:   100,
		StepSize:    10,
		MaxRange:    1e9, // unreachable
		MaxSteps:    100,
	})

	ry := tracer.Trace(0)
	if !ry.Truncated {
		t.Error("expected truncated ray when the step cap is exhausted")
	}
	if len(ry.Samples) != 101 {
		t.Errorf("got %d samples, want exactly cap+1", len(ry.Samples))
	}
}

// TestAmplitudeDecay checks spherical spreading plus Thorp decay along a
// straight ray.
func TestAmplitudeDecay(t *testing.T) {
	m := isoMedium(5000)
	freq := 1000.0
	tracer := NewTracer(m, Params{
		SourceDepth: 1000,
		Frequency:   freq,
		StepSize:    10,
		MaxRange:    10000,
		MaxSteps:    10000,
	})

	ry := tracer.Trace(0)
	last := ry.Samples[len(ry.Samples)-1]

	alpha := m.VolumeAttenuation(freq, 1000)
	want := (1 / last.Arc) * math.Exp(-alpha*last.Arc)
	if math.Abs(last.Amplitude-want)/want > 1e-9 {
		t.Errorf("amplitude %.12g, want %.12g", last.Amplitude, want)
	}
}

func TestAngles(t *testing.T) {
	angles := Angles(5, Degrees(20))
	if len(angles) != 5 {
		t.Fatalf("got %d angles, want 5", len(angles))
	}
	if angles[0] != -Degrees(20) || angles[4] != Degrees(20) {
		t.Errorf("fan endpoints %g, %g do not span ±20°", angles[0], angles[4])
	}
	if angles[2] != 0 {
		t.Errorf("odd fan should include the horizontal ray, center = %g", angles[2])
	}

	single := Angles(1, Degrees(20))
	if len(single) != 1 || single[0] != 0 {
		t.Errorf("single-ray fan should be horizontal, got %v", single)
	}
}

// BenchmarkTrace measures the hot loop: one 10 km ray at 1 m steps.
func BenchmarkTrace(b *testing.B) {
	m := env.Environment{
		Profile:    env.Profile{Kind: env.ProfileMunk, AxisDepth: 1300, AxisSpeed: 1500},
		Bathymetry: env.Bathymetry{Kind: env.BathymetryFlat, Depth: 5000},
		Surface:    env.Surface{Loss: 1.0},
		Bottom:     env.Bottom{Speed: 1700, Density: 1.8},
	}
	tracer := NewTracer(m, Params{
		SourceDepth: 1000,
		Frequency:   1000,
		StepSize:    1,
		MaxRange:    10000,
		MaxSteps:    100000,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracer.Trace(Degrees(8))
	}
}

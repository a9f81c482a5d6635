package eigenray

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sort"
	"testing"

	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/ray"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func ductEnv(depth float64) env.Environment {
	return env.Environment{
		Profile:    env.Profile{Kind: env.ProfileIsovelocity, SurfaceSpeed: 1500},
		Bathymetry: env.Bathymetry{Kind: env.BathymetryFlat, Depth: depth},
		Surface:    env.Surface{Loss: 1.0},
		Bottom:     env.Bottom{Speed: 1700, Density: 1.8},
	}
}

func searchParams(sourceDepth float64) ray.Params {
	return ray.Params{
		SourceDepth: sourceDepth,
		Frequency:   1000,
		StepSize:    2,
		MaxRange:    0, // overwritten by the search
		MaxSteps:    200000,
	}
}

// TestDirectPathConvergence verifies the bisection lands a straight-line
// eigenray on a known geometry and reports the exact travel time.
func TestDirectPathConvergence(t *testing.T) {
	m := ductEnv(1000)
	cfg := Config{
		ReceiverRange:  3000,
		ReceiverDepth:  80,
		ScanCount:      41,
		MaxAngle:       ray.Degrees(20),
		DepthTolerance: 0.1,
		MaxIterations:  50,
	}

	found, err := Search(context.Background(), m, searchParams(50), cfg, testLogger())
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	conv := Converged(found)
	if len(conv) == 0 {
		t.Fatal("expected at least one converged eigenray")
	}

	var direct *Eigenray
	for i := range conv {
		if conv[i].SurfaceBounces == 0 && conv[i].BottomBounces == 0 {
			direct = &conv[i]
			break
		}
	}
	if direct == nil {
		t.Fatal("no direct (bounce-free) eigenray found")
	}

	if math.Abs(direct.DepthError) > cfg.DepthTolerance {
		t.Errorf("depth error %.4g exceeds tolerance", direct.DepthError)
	}

	wantAngle := math.Atan2(80-50, 3000)
	if math.Abs(direct.Angle-wantAngle) > 1e-3 {
		t.Errorf("launch angle %.6g rad, want %.6g rad", direct.Angle, wantAngle)
	}

	slant := math.Hypot(3000, 30)
	wantTime := slant / 1500
	if math.Abs(direct.TravelTime-wantTime) > 1e-5 {
		t.Errorf("travel time %.9g s, want %.9g s", direct.TravelTime, wantTime)
	}

	if direct.Iterations <= 0 || direct.Iterations > cfg.MaxIterations {
		t.Errorf("iteration count %d outside (0, %d]", direct.Iterations, cfg.MaxIterations)
	}
}

// TestShallowDuctMultipath verifies the search finds the direct path and
// the single-bounce paths in a 100 m channel at 10 km, with the bounce
// counts the geometry implies.
func TestShallowDuctMultipath(t *testing.T) {
	m := ductEnv(100)
	cfg := Config{
		ReceiverRange:  10000,
		ReceiverDepth:  50,
		ScanCount:      81,
		MaxAngle:       ray.Degrees(10),
		DepthTolerance: 0.1,
		MaxIterations:  60,
	}

	found, err := Search(context.Background(), m, searchParams(50), cfg, testLogger())
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	conv := Converged(found)

	var direct, surface, bottom bool
	for _, e := range conv {
		switch {
		case e.SurfaceBounces == 0 && e.BottomBounces == 0:
			direct = true
		case e.SurfaceBounces == 1 && e.BottomBounces == 0:
			surface = true
		case e.SurfaceBounces == 0 && e.BottomBounces == 1:
			bottom = true
		}
	}

	if !direct {
		t.Error("missing direct eigenray")
	}
	if !surface {
		t.Error("missing single surface-bounce eigenray")
	}
	if !bottom {
		t.Error("missing single bottom-bounce eigenray")
	}

	// Single-bounce paths are longer than the direct path.
	var directTime float64
	for _, e := range conv {
		if e.SurfaceBounces == 0 && e.BottomBounces == 0 {
			directTime = e.TravelTime
		}
	}
	for _, e := range conv {
		if e.SurfaceBounces+e.BottomBounces > 0 && e.TravelTime <= directTime {
			t.Errorf("bounced eigenray travel time %.9g not longer than direct %.9g", e.TravelTime, directTime)
		}
	}
}

// TestReciprocity swaps source and receiver depths in a symmetric
// environment and compares travel times and bounce counts pairwise.
func TestReciprocity(t *testing.T) {
	m := ductEnv(100)
	cfg := Config{
		ReceiverRange:  5000,
		ReceiverDepth:  70,
		ScanCount:      81,
		MaxAngle:       ray.Degrees(12),
		DepthTolerance: 0.05,
		MaxIterations:  60,
	}

	forward, err := Search(context.Background(), m, searchParams(40), cfg, testLogger())
	if err != nil {
		t.Fatalf("forward search failed: %v", err)
	}

	swapped := cfg
	swapped.ReceiverDepth = 40
	reverse, err := Search(context.Background(), m, searchParams(70), swapped, testLogger())
	if err != nil {
		t.Fatalf("reverse search failed: %v", err)
	}

	type signature struct {
		surface, bottom int
	}
	collect := func(found []Eigenray) (times []float64, sigs map[signature]int) {
		sigs = make(map[signature]int)
		for _, e := range Converged(found) {
			times = append(times, e.TravelTime)
			sigs[signature{e.SurfaceBounces, e.BottomBounces}]++
		}
		sort.Float64s(times)
		return times, sigs
	}

	fwdTimes, fwdSigs := collect(forward)
	revTimes, revSigs := collect(reverse)

	if len(fwdTimes) == 0 {
		t.Fatal("forward search found no converged eigenrays")
	}
	if len(fwdTimes) != len(revTimes) {
		t.Fatalf("eigenray count differs: %d forward, %d reverse", len(fwdTimes), len(revTimes))
	}

	for i := range fwdTimes {
		if math.Abs(fwdTimes[i]-revTimes[i]) > 1e-5 {
			t.Errorf("travel time %d: %.9g forward vs %.9g reverse", i, fwdTimes[i], revTimes[i])
		}
	}

	// Bounce signatures must match as multisets, with surface and bottom
	// roles preserved (the geometry mirrors in depth but the boundaries
	// do not move).
	if len(fwdSigs) != len(revSigs) {
		t.Fatalf("bounce signature sets differ: %v vs %v", fwdSigs, revSigs)
	}
	for sig, n := range fwdSigs {
		if revSigs[sig] != n {
			t.Errorf("signature %+v: %d forward vs %d reverse", sig, n, revSigs[sig])
		}
	}
}

// TestNotConvergedDiagnostic verifies the iteration cap reports instead
// of looping, and that uncapped brackets still converge.
func TestNotConvergedDiagnostic(t *testing.T) {
	m := ductEnv(1000)
	cfg := Config{
		ReceiverRange:  3000,
		ReceiverDepth:  80,
		ScanCount:      21,
		MaxAngle:       ray.Degrees(20),
		DepthTolerance: 1e-12, // unreachable
		MaxIterations:  3,
	}

	found, err := Search(context.Background(), m, searchParams(50), cfg, testLogger())
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) == 0 {
		t.Fatal("expected bracket diagnostics even without convergence")
	}
	for _, e := range found {
		if e.Converged {
			t.Errorf("eigenray claims convergence at impossible tolerance, error %.4g", e.DepthError)
		}
		if e.Iterations != cfg.MaxIterations {
			t.Errorf("iterations = %d, want cap %d", e.Iterations, cfg.MaxIterations)
		}
	}
	if len(Converged(found)) != 0 {
		t.Error("Converged filter should drop every capped bracket")
	}
}

// TestSearchCancellation verifies cooperative cancellation between rays.
func TestSearchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, ductEnv(100), searchParams(50), Config{
		ReceiverRange:  10000,
		ReceiverDepth:  50,
		ScanCount:      41,
		MaxAngle:       ray.Degrees(10),
		DepthTolerance: 0.1,
		MaxIterations:  50,
	}, testLogger())
	if err == nil {
		t.Fatal("expected error from cancelled search")
	}
}

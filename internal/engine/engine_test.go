package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/field"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testEnvironment() env.Environment {
	return env.Environment{
		Profile:    env.Profile{Kind: env.ProfileIsovelocity, SurfaceSpeed: 1500},
		Bathymetry: env.Bathymetry{Kind: env.BathymetryFlat, Depth: 200},
		Surface:    env.Surface{Loss: 1.0},
		Bottom:     env.Bottom{Speed: 1700, Density: 1.8},
	}
}

func testRayRequest() Request {
	return Request{
		SourceDepth: 50,
		Frequency:   1000,
		RayCount:    5,
		MaxAngleDeg: 10,
		MaxRange:    2000,
		RangeStep:   20,
		Output:      OutputRayPaths,
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"negative source depth", func(r *Request) { r.SourceDepth = -1 }},
		{"zero frequency", func(r *Request) { r.Frequency = 0 }},
		{"zero ray count", func(r *Request) { r.RayCount = 0 }},
		{"zero max angle", func(r *Request) { r.MaxAngleDeg = 0 }},
		{"max angle at 90", func(r *Request) { r.MaxAngleDeg = 90 }},
		{"zero max range", func(r *Request) { r.MaxRange = 0 }},
		{"step beyond max range", func(r *Request) { r.RangeStep = r.MaxRange * 2 }},
		{"unknown output", func(r *Request) { r.Output = "hologram" }},
		{"eigenrays without receiver", func(r *Request) { r.Output = OutputEigenrays }},
		{"receiver beyond max range", func(r *Request) {
			r.Output = OutputEigenrays
			r.Receiver = &Receiver{Range: r.MaxRange * 2, Depth: 50}
		}},
		{"negative receiver depth", func(r *Request) {
			r.Output = OutputEigenrays
			r.Receiver = &Receiver{Range: 1000, Depth: -5}
		}},
		{"invalid grid", func(r *Request) {
			r.Grid = &field.GridSpec{RangeMin: 100, RangeMax: 0, RangeStep: 10, DepthMax: 100, DepthStep: 10}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRayRequest()
			tt.mutate(&req)
			if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() = %v, want ErrInvalidRequest", err)
			}
		})
	}

	if err := testRayRequest().Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestEstimateWorkload(t *testing.T) {
	req := Request{RayCount: 100, MaxRange: 10000, RangeStep: 10}
	if got := EstimateWorkload(req); got != 100*1000 {
		t.Errorf("EstimateWorkload = %d, want %d", got, 100*1000)
	}

	// Fractional step count rounds up.
	req = Request{RayCount: 1, MaxRange: 105, RangeStep: 10}
	if got := EstimateWorkload(req); got != 11 {
		t.Errorf("EstimateWorkload with fractional steps = %d, want 11", got)
	}

	// Degenerate requests estimate to zero instead of dividing by zero.
	if got := EstimateWorkload(Request{}); got != 0 {
		t.Errorf("EstimateWorkload of zero request = %d, want 0", got)
	}
}

func TestRunOutputKinds(t *testing.T) {
	eng := New(Config{Workers: 2}, testLogger())
	m := testEnvironment()
	ctx := context.Background()

	rayReq := testRayRequest()
	result, err := eng.Run(ctx, m, rayReq, nil)
	if err != nil {
		t.Fatalf("ray paths run failed: %v", err)
	}
	if len(result.Rays) != rayReq.RayCount || result.Grid != nil || result.Eigenrays != nil {
		t.Errorf("ray paths result carries wrong outputs: %+v", result)
	}

	eigReq := testRayRequest()
	eigReq.Output = OutputEigenrays
	eigReq.Receiver = &Receiver{Range: 1000, Depth: 50}
	result, err = eng.Run(ctx, m, eigReq, nil)
	if err != nil {
		t.Fatalf("eigenray run failed: %v", err)
	}
	if result.Eigenrays == nil || result.Rays != nil || result.Grid != nil {
		t.Error("eigenray result carries wrong outputs")
	}

	tlReq := testRayRequest()
	tlReq.Output = OutputTransmissionLoss
	result, err = eng.Run(ctx, m, tlReq, nil)
	if err != nil {
		t.Fatalf("transmission loss run failed: %v", err)
	}
	if result.Grid == nil {
		t.Fatal("transmission loss result has no grid")
	}
	if len(result.Grid.TL) == 0 || len(result.Grid.TL[0]) == 0 {
		t.Error("transmission loss grid is empty")
	}
}

func TestRunRejectsInvalidEnvironment(t *testing.T) {
	eng := New(Config{Workers: 1}, testLogger())

	bad := testEnvironment()
	bad.Profile.SurfaceSpeed = -100
	if _, err := eng.Run(context.Background(), bad, testRayRequest(), nil); !errors.Is(err, env.ErrInvalidEnvironment) {
		t.Errorf("Run with bad environment = %v, want ErrInvalidEnvironment", err)
	}

	deep := testRayRequest()
	deep.SourceDepth = 5000
	if _, err := eng.Run(context.Background(), testEnvironment(), deep, nil); !errors.Is(err, env.ErrInvalidEnvironment) {
		t.Errorf("Run with source below bottom = %v, want ErrInvalidEnvironment", err)
	}
}

func TestRunProgressCallback(t *testing.T) {
	eng := New(Config{Workers: 2}, testLogger())

	var calls []int
	_, err := eng.Run(context.Background(), testEnvironment(), testRayRequest(), func(completed, total int) {
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
		calls = append(calls, completed)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 5 {
		t.Fatalf("progress called %d times, want 5", len(calls))
	}
	for i, c := range calls {
		if c != i+1 {
			t.Errorf("call %d reported %d completed, want %d", i, c, i+1)
		}
	}
}

func TestRayParamsStepCap(t *testing.T) {
	req := testRayRequest()
	p := req.rayParams()
	steps := int(req.MaxRange / req.RangeStep)
	if p.MaxSteps != steps*stepCapFactor+100 {
		t.Errorf("MaxSteps = %d, want %d", p.MaxSteps, steps*stepCapFactor+100)
	}
	if p.StepSize != req.RangeStep || p.MaxRange != req.MaxRange {
		t.Error("rayParams does not carry request geometry through unchanged")
	}
}

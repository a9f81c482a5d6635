// Command diag runs the propagation engine offline against a YAML
// preset environment and prints summaries to stdout. Useful for
// sanity-checking an environment file before deploying it, and for
// eyeballing ray fans and TL curves without a running server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/oceanus/oceanray/internal/engine"
	"github.com/oceanus/oceanray/internal/env"
)

var (
	presetsFile   string
	presetName    string
	sourceDepth   float64
	frequency     float64
	rayCount      int
	maxAngle      float64
	maxRange      float64
	rangeStep     float64
	receiverRange float64
	receiverDepth float64
	workers       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "diag",
		Short: "offline acoustic propagation diagnostics",
	}

	rootCmd.PersistentFlags().StringVar(&presetsFile, "presets", "presets.yaml", "YAML presets file")
	rootCmd.PersistentFlags().StringVar(&presetName, "preset", "", "preset name (required)")
	rootCmd.PersistentFlags().Float64Var(&sourceDepth, "source-depth", 50, "source depth in meters")
	rootCmd.PersistentFlags().Float64Var(&frequency, "freq", 1000, "frequency in Hz")
	rootCmd.PersistentFlags().IntVar(&rayCount, "rays", 41, "number of rays in the fan")
	rootCmd.PersistentFlags().Float64Var(&maxAngle, "max-angle", 15, "fan half-angle in degrees")
	rootCmd.PersistentFlags().Float64Var(&maxRange, "max-range", 10000, "maximum range in meters")
	rootCmd.PersistentFlags().Float64Var(&rangeStep, "step", 10, "integration step in meters")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 4, "trace worker count")

	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "trace the ray fan and summarize each ray",
		RunE:  runTrace,
	}

	eigenraysCmd := &cobra.Command{
		Use:   "eigenrays",
		Short: "find eigenrays to a receiver",
		RunE:  runEigenrays,
	}
	eigenraysCmd.Flags().Float64Var(&receiverRange, "receiver-range", 5000, "receiver range in meters")
	eigenraysCmd.Flags().Float64Var(&receiverDepth, "receiver-depth", 50, "receiver depth in meters")

	tlCmd := &cobra.Command{
		Use:   "tl",
		Short: "compute a transmission loss field and plot a depth slice",
		RunE:  runTL,
	}
	tlCmd.Flags().Float64Var(&receiverDepth, "receiver-depth", 50, "depth of the plotted TL slice in meters")

	rootCmd.AddCommand(traceCmd, eigenraysCmd, tlCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadEnvironment() (env.Environment, error) {
	if presetName == "" {
		return env.Environment{}, fmt.Errorf("--preset is required")
	}
	presets, err := env.LoadPresets(presetsFile)
	if err != nil {
		return env.Environment{}, err
	}
	p, err := env.FindPreset(presets, presetName)
	if err != nil {
		return env.Environment{}, err
	}
	return p.Environment, nil
}

func baseRequest(output engine.OutputKind) engine.Request {
	return engine.Request{
		SourceDepth: sourceDepth,
		Frequency:   frequency,
		RayCount:    rayCount,
		MaxAngleDeg: maxAngle,
		MaxRange:    maxRange,
		RangeStep:   rangeStep,
		Output:      output,
	}
}

func runTrace(cmd *cobra.Command, args []string) error {
	m, err := loadEnvironment()
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{Workers: workers}, quietLogger())
	req := baseRequest(engine.OutputRayPaths)

	start := time.Now()
	rays, err := eng.TraceRays(context.Background(), m, req)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("traced %d rays in %v (workload %d ray-steps)\n\n",
		len(rays), elapsed, engine.EstimateWorkload(req))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ANGLE_DEG\tSAMPLES\tFINAL_RANGE_M\tSURF\tBOT\tTRUNC")
	truncated := 0
	for _, ray := range rays {
		finalRange := 0.0
		if n := len(ray.Samples); n > 0 {
			finalRange = ray.Samples[n-1].Range
		}
		if ray.Truncated {
			truncated++
		}
		fmt.Fprintf(w, "%.3f\t%d\t%.1f\t%d\t%d\t%v\n",
			ray.Angle*180/math.Pi,
			len(ray.Samples),
			finalRange,
			ray.SurfaceBounces,
			ray.BottomBounces,
			ray.Truncated,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\ntruncated: %d/%d\n", truncated, len(rays))
	return nil
}

func runEigenrays(cmd *cobra.Command, args []string) error {
	m, err := loadEnvironment()
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{Workers: workers}, quietLogger())
	req := baseRequest(engine.OutputEigenrays)
	req.Receiver = &engine.Receiver{Range: receiverRange, Depth: receiverDepth}

	start := time.Now()
	found, err := eng.FindEigenrays(context.Background(), m, req)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("found %d eigenrays to (%.0f m, %.0f m) in %v\n\n",
		len(found), receiverRange, receiverDepth, elapsed)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ANGLE_DEG\tTRAVEL_S\tAMPLITUDE\tSURF\tBOT\tDEPTH_ERR_M\tITER\tCONVERGED")
	for _, e := range found {
		fmt.Fprintf(w, "%.4f\t%.6f\t%.3e\t%d\t%d\t%.3f\t%d\t%v\n",
			e.Angle*180/math.Pi,
			e.TravelTime,
			e.Amplitude,
			e.SurfaceBounces,
			e.BottomBounces,
			e.DepthError,
			e.Iterations,
			e.Converged,
		)
	}
	return w.Flush()
}

func runTL(cmd *cobra.Command, args []string) error {
	m, err := loadEnvironment()
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{Workers: workers}, quietLogger())
	req := baseRequest(engine.OutputTransmissionLoss)

	start := time.Now()
	result, err := eng.Run(context.Background(), m, req, nil)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	grid := result.Grid
	fmt.Printf("assembled %dx%d TL grid in %v\n\n",
		len(grid.Depths), len(grid.Ranges), elapsed)

	// Pick the grid row closest to the requested slice depth.
	row := 0
	best := math.Inf(1)
	for i, d := range grid.Depths {
		if diff := math.Abs(d - receiverDepth); diff < best {
			best = diff
			row = i
		}
	}

	// Ascii plot flips TL so louder is up.
	curve := make([]float64, len(grid.Ranges))
	for j := range grid.Ranges {
		curve[j] = -grid.TL[row][j]
	}

	width := len(curve)
	if width > 100 {
		width = 100
	}
	graph := asciigraph.Plot(curve,
		asciigraph.Height(15),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("-TL (dB) at depth %.0f m, range 0-%.0f m", grid.Depths[row], maxRange)),
	)
	fmt.Println(graph)

	minTL, maxTL := math.Inf(1), math.Inf(-1)
	for _, v := range grid.TL[row] {
		minTL = math.Min(minTL, v)
		maxTL = math.Max(maxTL, v)
	}
	fmt.Printf("\nTL range on slice: %.1f to %.1f dB\n", minTL, maxTL)
	return nil
}

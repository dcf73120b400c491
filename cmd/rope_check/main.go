// rope_check prints reference rotary embedding values for one position so
// they can be diffed against an engine's kernel output, then round-trips a
// test vector through the rotation as a self-check.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/clocksmith/doppler/internal/config"
	"github.com/clocksmith/doppler/internal/metrics"
	"github.com/clocksmith/doppler/internal/rope"
)

var (
	specPath   = flag.String("spec", "", "Probe spec file (JSON or YAML)")
	pos        = flag.Int("pos", 0, "Rotation position")
	dim        = flag.Int("dim", 256, "Head dimension")
	theta      = flag.Float64("theta", 10000.0, "Rotation base")
	convention = flag.String("convention", "pair", "Element pairing: pair or half-split")
)

const roundTripTol = 1e-5

func main() {
	flag.Parse()

	// Precedence: defaults, then the -spec file, then flags set explicitly
	// on the command line.
	position := *pos
	shape := config.DefaultShape()
	set := explicitFlags()

	if *specPath != "" {
		spec, err := config.LoadProbeSpec(*specPath)
		if err != nil {
			log.Fatalf("Failed to load probe spec: %v", err)
		}
		spec.ApplyShape(&shape)
		if !set["pos"] {
			position = spec.RopePosition()
		}
	}
	if set["dim"] {
		shape.HeadDim = *dim
	}
	if set["theta"] {
		shape.RopeTheta = *theta
	}

	if err := shape.Validate(); err != nil {
		log.Fatalf("Invalid model shape: %v", err)
	}
	headDim := shape.HeadDim
	base := shape.RopeTheta

	conv, err := rope.ParseConvention(*convention)
	if err != nil {
		log.Fatalf("Invalid convention: %v", err)
	}

	freqs, err := rope.Frequencies(headDim, base)
	if err != nil {
		log.Fatalf("Invalid RoPE parameters: %v", err)
	}

	fmt.Printf("RoPE Check for position %d, head_dim=%d, theta=%g\n", position, headDim, base)
	fmt.Printf("Convention: %s\n", conv)

	p := float64(position)
	fmt.Printf("\nFrequencies (first 8): %s\n", headFloats(freqs))
	fmt.Printf("Angles at pos %d (first 8): %s\n", position, headFloats(rope.AnglesAt(p, freqs)))
	cos, sin := rope.CosSinAt(p, freqs)
	fmt.Printf("Cos at pos %d (first 8): %s\n", position, headFloats(cos))
	fmt.Printf("Sin at pos %d (first 8): %s\n", position, headFloats(sin))

	vec := testVector(headDim)
	fmt.Printf("\nTest vector (first 8): %s\n", headFloats32(vec))

	rotated, err := rope.Apply(vec, p, freqs, conv)
	if err != nil {
		log.Fatalf("RoPE application failed: %v", err)
	}
	fmt.Printf("After RoPE (first 8): %s\n", headFloats32(rotated))

	// Rotations compose additively, so applying -pos must restore the input.
	restored, err := rope.Apply(rotated, -p, freqs, conv)
	if err != nil {
		log.Fatalf("RoPE application failed: %v", err)
	}

	var maxDiff, sumDiff float64
	for i := range vec {
		diff := math.Abs(float64(restored[i] - vec[i]))
		if diff > maxDiff {
			maxDiff = diff
		}
		sumDiff += diff
	}
	avgDiff := sumDiff / float64(len(vec))

	fmt.Printf("\nRound trip MaxDiff: %.6f, AvgDiff: %.6f\n", maxDiff, avgDiff)

	passed := maxDiff <= roundTripTol
	metrics.RecordRoPECheck(maxDiff, passed)
	if !passed {
		fmt.Printf("FAIL: RoPE round trip mismatch at Pos=%d\n", position)
		os.Exit(1)
	}
	fmt.Printf("PASS: RoPE round trip at Pos=%d\n", position)
}

// testVector is the deterministic input used for the rotation dump: a
// smooth low-magnitude waveform with the first pair pinned to (1, 0) so the
// rotated values read directly as (cos, sin) of the first angle.
func testVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(i)*0.1)) * 0.1
	}
	vec[0] = 1.0
	vec[1] = 0.0
	return vec
}

func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func headFloats(vals []float64) string {
	if len(vals) > 8 {
		vals = vals[:8]
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func headFloats32(vals []float32) string {
	if len(vals) > 8 {
		vals = vals[:8]
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// acts_diff compares per-layer hidden states between two activation
// snapshots — typically one engine under test and one reference run over
// the same prompt — and exits non-zero when any layer diverges past the
// tolerance, so CI can gate on numeric drift directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/clocksmith/doppler/internal/config"
	"github.com/clocksmith/doppler/internal/flightsource"
	"github.com/clocksmith/doppler/internal/logger"
	"github.com/clocksmith/doppler/internal/probe"
)

var (
	refA       = flag.String("a", "", "First snapshot: file path or flight://host:port")
	refB       = flag.String("b", "", "Second snapshot: file path or flight://host:port")
	layersFlag = flag.String("layers", "", "Comma-separated layer indices (default: every layer of -a)")
	tokenFlag  = flag.Int("token", -1, "Token position (negative counts from the end)")
	tolFlag    = flag.Float64("tol", 1e-2, "Max absolute divergence allowed per layer")
	asJSON     = flag.Bool("json", false, "Emit the report as JSON instead of text")
)

func main() {
	flag.Parse()

	if *refA == "" || *refB == "" {
		fmt.Println("Error: -a and -b flags are required")
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	snapA, err := flightsource.Open(ctx, *refA)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *refA, err)
	}
	snapB, err := flightsource.Open(ctx, *refB)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *refB, err)
	}

	if !slices.Equal(snapA.Tokens, snapB.Tokens) {
		logger.Log.Warn("token sequences differ between snapshots",
			"a", len(snapA.Tokens), "b", len(snapB.Tokens))
	}

	var layers []int
	if *layersFlag != "" {
		layers, err = config.ParseLayers(*layersFlag)
		if err != nil {
			log.Fatalf("Invalid -layers: %v", err)
		}
	} else {
		layers = make([]int, snapA.NumLayers())
		for i := range layers {
			layers[i] = i
		}
	}

	req, err := probe.NewRequest(snapA.Tokens, layers, *tokenFlag)
	if err != nil {
		log.Fatalf("Invalid probe request: %v", err)
	}

	report := probe.Compare(snapA, snapB, req)

	if *asJSON {
		if err := report.WriteJSON(os.Stdout); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
	} else {
		fmt.Printf("Model: %s vs %s\n", snapA.Model, snapB.Model)
		if err := report.WriteText(os.Stdout); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
	}

	if !report.Pass(*tolFlag) {
		fmt.Printf("FAIL: max divergence %.6g at layer %d (tolerance %.6g)\n",
			report.MaxAbsDiff, report.WorstLayer, *tolFlag)
		os.Exit(1)
	}
	fmt.Printf("PASS: %d layers within tolerance %.6g\n", report.Compared, *tolFlag)
}

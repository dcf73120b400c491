// layer_out reports per-layer hidden state statistics at one token position
// from a captured activation snapshot, with a position-0 baseline per layer.
// Two engines run over the same prompt produce directly diffable output.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/clocksmith/doppler/internal/config"
	"github.com/clocksmith/doppler/internal/flightsource"
	"github.com/clocksmith/doppler/internal/probe"
)

var (
	actsRef    = flag.String("acts", "", "Activation snapshot: file path or flight://host:port")
	specPath   = flag.String("spec", "", "Probe spec file (JSON or YAML)")
	layersFlag = flag.String("layers", "", "Comma-separated layer indices")
	tokenFlag  = flag.Int("token", -1, "Token position (negative counts from the end)")
	asJSON     = flag.Bool("json", false, "Emit the report as JSON instead of text")
)

func main() {
	flag.Parse()

	if *actsRef == "" {
		fmt.Println("Error: -acts flag is required")
		flag.Usage()
		os.Exit(1)
	}

	var spec *config.ProbeSpec
	if *specPath != "" {
		loaded, err := config.LoadProbeSpec(*specPath)
		if err != nil {
			log.Fatalf("Failed to load probe spec: %v", err)
		}
		spec = loaded
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	token := *tokenFlag
	if !set["token"] && spec != nil {
		token = spec.TokenIndex()
	}

	var layers []int
	switch {
	case set["layers"] || spec == nil:
		parsed, err := config.ParseLayers(*layersFlag)
		if err != nil {
			log.Fatalf("Invalid -layers: %v", err)
		}
		layers = parsed
	default:
		required, err := spec.RequireLayers()
		if err != nil {
			log.Fatalf("Invalid probe spec: %v", err)
		}
		layers = required
	}

	fmt.Printf("Loading activations: %s\n", *actsRef)
	snap, err := flightsource.Open(context.Background(), *actsRef)
	if err != nil {
		log.Fatalf("Failed to load activations: %v", err)
	}

	// The -spec file's token list, when present, is the request of record;
	// the report re-resolves positions against what the snapshot actually
	// holds and marks anything out of range.
	tokens := snap.Tokens
	if spec != nil && len(spec.Tokens) > 0 {
		tokens = spec.Tokens
	}

	req, err := probe.NewRequest(tokens, layers, token)
	if err != nil {
		log.Fatalf("Invalid probe request: %v", err)
	}

	report := probe.Inspect(snap, req)

	if *asJSON {
		if err := report.WriteJSON(os.Stdout); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		return
	}

	fmt.Printf("Model: %s\n", snap.Model)
	fmt.Printf("Prompt: %s\n\n", snap.Prompt)
	if err := report.WriteText(os.Stdout); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}

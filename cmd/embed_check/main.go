// embed_check verifies the embedding path: raw embedding rows, the
// sqrt(hiddenSize) scaling Gemma-family models apply, and the layer-0
// output they feed. A scaled embedding that matches another engine while
// layer 0 diverges pins the first bug to the layer, not the table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/clocksmith/doppler/internal/actstore"
	"github.com/clocksmith/doppler/internal/config"
	"github.com/clocksmith/doppler/internal/flightsource"
	"github.com/clocksmith/doppler/internal/logger"
	"github.com/clocksmith/doppler/internal/probe"
)

var (
	actsRef   = flag.String("acts", "", "Activation snapshot: file path or flight://host:port")
	specPath  = flag.String("spec", "", "Probe spec file to cross-check the capture against")
	tokenFlag = flag.Int("token", -1, "Token position (negative counts from the end)")
)

func main() {
	flag.Parse()

	if *actsRef == "" {
		fmt.Println("Error: -acts flag is required")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("Loading activations: %s\n", *actsRef)
	snap, err := flightsource.Open(context.Background(), *actsRef)
	if err != nil {
		log.Fatalf("Failed to load activations: %v", err)
	}

	// A spec document pins what the capture should look like. The model id
	// mismatch is only a warning; a geometry mismatch makes every number
	// below meaningless, so it stops the run.
	if *specPath != "" {
		spec, err := config.LoadProbeSpec(*specPath)
		if err != nil {
			log.Fatalf("Failed to load probe spec: %v", err)
		}
		model, err := spec.RequireModel()
		if err != nil {
			log.Fatalf("Invalid probe spec: %v", err)
		}
		if model != snap.Model {
			logger.Log.Warn("snapshot model differs from spec", "snapshot", snap.Model, "spec", model)
		}
		if spec.HiddenSize != nil && *spec.HiddenSize != snap.HiddenSize {
			log.Fatalf("Hidden size mismatch: snapshot has %d, spec expects %d", snap.HiddenSize, *spec.HiddenSize)
		}
	}

	seqLen := snap.SequenceLength()
	resolved, ok := probe.ResolvePosition(*tokenFlag, seqLen)
	if !ok {
		log.Fatalf("Token position %d out of range for %d tokens", *tokenFlag, seqLen)
	}

	fmt.Printf("\nModel: %s\n", snap.Model)
	fmt.Printf("Prompt: %s\n", snap.Prompt)
	fmt.Printf("Token IDs: %s\n", intsStr(snap.Tokens))

	raw, err := snap.Embedding(resolved)
	if err != nil {
		log.Fatalf("Failed to read embedding at position %d: %v", resolved, err)
	}

	fmt.Printf("\nRaw embeddings shape: [%d, %d]\n", seqLen, len(raw))
	fmt.Printf("Raw embeddings (token %d first 5): %s\n", resolved, floatsStr(raw, 5))

	scaled, err := probe.ScaleEmbedding(raw, snap.HiddenSize)
	if err != nil {
		log.Fatalf("Failed to scale embedding: %v", err)
	}
	fmt.Printf("Scaled embeddings (token %d first 5): %s\n", resolved, floatsStr(scaled, 5))

	if l0, err := snap.HiddenState(0, resolved); err == nil {
		fmt.Printf("\nLayer 0 output (token %d first 5): %s\n", resolved, floatsStr(l0, 5))
	} else {
		fmt.Printf("\nLayer 0 output (token %d first 5): NOT CAPTURED\n", resolved)
		logger.Log.Warn("layer 0 hidden state unavailable", "position", resolved, "error", err)
	}

	fmt.Printf("\nPer-token maxAbs comparison:\n")
	for t := 0; t < seqLen; t++ {
		raw, err := snap.Embedding(t)
		if err != nil {
			if !errors.Is(err, actstore.ErrNotCaptured) {
				logger.Log.Warn("embedding unavailable", "position", t, "error", err)
			}
			continue
		}
		scaled, err := probe.ScaleEmbedding(raw, snap.HiddenSize)
		if err != nil {
			log.Fatalf("Failed to scale embedding: %v", err)
		}
		embMax := probe.Stats(scaled, 0).MaxAbs

		l0Max := "n/a"
		if l0, err := snap.HiddenState(0, t); err == nil {
			l0Max = fmt.Sprintf("%.2f", probe.Stats(l0, 0).MaxAbs)
		}
		fmt.Printf("  Token %d: emb_maxAbs=%.2f, L0_maxAbs=%s\n", t, embMax, l0Max)
	}
}

func intsStr(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func floatsStr(vals []float32, n int) string {
	if len(vals) > n {
		vals = vals[:n]
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// attn_debug traces attention inputs through one layer: the layer's input
// hidden state and its Q/K/V projections at the inspected token plus token
// 0. Captured projection activations are preferred; when only the weight
// matrices were captured, projections are recomputed from the layer input.
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
	"github.com/clocksmith/doppler/internal/flightsource"
	"github.com/clocksmith/doppler/internal/logger"
	"github.com/clocksmith/doppler/internal/probe"
)

var (
	actsRef   = flag.String("acts", "", "Activation snapshot: file path or flight://host:port")
	layerFlag = flag.Int("layer", 0, "Layer to trace")
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

	layer := *layerFlag
	if layer < 0 || layer >= snap.NumLayers() {
		log.Fatalf("Layer %d out of range [0, %d)", layer, snap.NumLayers())
	}

	seqLen := snap.SequenceLength()
	resolved, ok := probe.ResolvePosition(*tokenFlag, seqLen)
	if !ok {
		log.Fatalf("Token position %d out of range for %d tokens", *tokenFlag, seqLen)
	}

	fmt.Printf("\nModel: %s\n", snap.Model)
	fmt.Printf("Prompt: %s\n", snap.Prompt)
	fmt.Printf("Token IDs: %s\n", intsStr(snap.Tokens))
	fmt.Printf("Num tokens: %d\n", seqLen)

	fmt.Printf("\nModel config:\n")
	fmt.Printf("  hidden_size: %d\n", snap.HiddenSize)
	fmt.Printf("  num_layers: %d\n", snap.NumLayers())
	fmt.Printf("  layer: %d\n", layer)

	if in, err := layerInput(snap, layer, resolved); err == nil {
		fmt.Printf("\nInput hidden states (token %d first 8): %s\n", resolved, floatsStr(in, 8))
	} else {
		fmt.Printf("\nInput hidden states (token %d first 8): NOT CAPTURED\n", resolved)
		logger.Log.Warn("layer input unavailable", "layer", layer, "position", resolved, "error", err)
	}

	fmt.Println()
	for _, name := range []string{"q", "k", "v"} {
		printProjection(snap, layer, name, resolved)
	}
	fmt.Println()
	for _, name := range []string{"q", "k", "v"} {
		printProjection(snap, layer, name, 0)
	}

	fmt.Printf("\nPer-token maxAbs:\n")
	for t := 0; t < seqLen; t++ {
		fmt.Printf("  Token %d: Q_maxAbs=%s, K_maxAbs=%s, V_maxAbs=%s\n",
			t,
			projMaxAbs(snap, layer, "q", t),
			projMaxAbs(snap, layer, "k", t),
			projMaxAbs(snap, layer, "v", t))
	}
}

// layerInput is the hidden state feeding the layer: the scaled embedding
// for layer 0, the previous layer's output otherwise.
func layerInput(snap *actstore.Snapshot, layer, position int) ([]float32, error) {
	if layer == 0 {
		raw, err := snap.Embedding(position)
		if err != nil {
			return nil, err
		}
		return probe.ScaleEmbedding(raw, snap.HiddenSize)
	}
	return snap.HiddenState(layer-1, position)
}

func projection(snap *actstore.Snapshot, layer int, name string, position int) ([]float32, error) {
	vec, err := snap.ProjectionState(layer, name, position)
	if err == nil {
		return vec, nil
	}
	if !errors.Is(err, actstore.ErrNotCaptured) {
		return nil, err
	}

	w, err := snap.ProjectionWeight(layer, name)
	if err != nil {
		return nil, err
	}
	in, err := layerInput(snap, layer, position)
	if err != nil {
		return nil, err
	}
	return w.MatVec(in)
}

func printProjection(snap *actstore.Snapshot, layer int, name string, position int) {
	label := strings.ToUpper(name)
	vec, err := projection(snap, layer, name, position)
	if err != nil {
		fmt.Printf("%s projection (token %d first 8): NOT CAPTURED\n", label, position)
		return
	}
	fmt.Printf("%s projection (token %d first 8): %s\n", label, position, floatsStr(vec, 8))
}

func projMaxAbs(snap *actstore.Snapshot, layer int, name string, position int) string {
	vec, err := projection(snap, layer, name, position)
	if err != nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", probe.Stats(vec, 0).MaxAbs)
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

// Generates a pair of small deterministic activation snapshots so the
// inspection tools can be exercised without a running engine. The second
// snapshot carries a +5e-3 shift on layer 1, large enough to fail a strict
// tolerance and small enough to pass the default one.
package main

import (
	"fmt"
	"log"
	"math"

	"github.com/clocksmith/doppler/internal/actstore"
	"github.com/clocksmith/doppler/internal/probe"
)

const (
	hiddenSize = 16
	numLayers  = 2
	baseName   = "synthetic.json"
	deltaName  = "synthetic_delta.json"
)

func fill(seed, n int) []float32 {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(math.Sin(0.1*float64(seed+i)) * 0.1)
	}
	return vals
}

func build(shift float32) *actstore.Snapshot {
	tokens := []int{651, 2881, 576, 573, 8203}
	snap, err := actstore.New("doppler-synthetic", "The color of the sky is", tokens, hiddenSize, numLayers)
	if err != nil {
		log.Fatalf("Failed to create snapshot: %v", err)
	}

	for pos := range tokens {
		if err := snap.AddEmbedding(pos, fill(pos, hiddenSize)); err != nil {
			log.Fatalf("Failed to add embedding: %v", err)
		}
		for layer := 0; layer < numLayers; layer++ {
			vals := fill(100*layer+pos, hiddenSize)
			if layer == 1 {
				for i := range vals {
					vals[i] += shift
				}
			}
			if err := snap.AddHidden(layer, pos, vals); err != nil {
				log.Fatalf("Failed to add hidden state: %v", err)
			}
		}
		for _, name := range []string{"q", "k", "v", "o"} {
			if err := snap.AddProjection(0, name, pos, fill(1000+pos, hiddenSize)); err != nil {
				log.Fatalf("Failed to add projection: %v", err)
			}
		}
	}

	for _, name := range []string{"q", "k", "v", "o"} {
		m, err := probe.NewMatrix(hiddenSize, hiddenSize, fill(2000, hiddenSize*hiddenSize))
		if err != nil {
			log.Fatalf("Failed to build weight matrix: %v", err)
		}
		if err := snap.AddWeight(0, name, m); err != nil {
			log.Fatalf("Failed to add weight: %v", err)
		}
	}

	return snap
}

func main() {
	for _, out := range []struct {
		path  string
		shift float32
	}{
		{baseName, 0},
		{deltaName, 5e-3},
	} {
		snap := build(out.shift)
		if err := snap.Save(out.path); err != nil {
			log.Fatalf("Failed to save %s: %v", out.path, err)
		}
		fmt.Printf("Wrote %s (fingerprint %016x, %d tensors)\n", out.path, snap.Fingerprint(), snap.TensorCount())
	}

	fmt.Println()
	fmt.Println("Try:")
	fmt.Printf("  go run ./cmd/layer_out -acts %s -layers 0,1\n", baseName)
	fmt.Printf("  go run ./cmd/acts_diff -a %s -b %s -tol 1e-2\n", baseName, deltaName)
	fmt.Printf("  go run ./cmd/acts_diff -a %s -b %s -tol 1e-3\n", baseName, deltaName)
}

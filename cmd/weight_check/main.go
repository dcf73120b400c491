// weight_check dumps fixed slices of the attention projection weights so
// two engines' loaded tensors can be spot-compared: first row, first
// column, and one deep element that catches stride and transpose bugs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/clocksmith/doppler/internal/flightsource"
)

var (
	actsRef   = flag.String("acts", "", "Activation snapshot: file path or flight://host:port")
	layerFlag = flag.Int("layer", 0, "Layer to inspect")
	projFlag  = flag.String("proj", "all", "Projection to dump: q, k, v, o, or all")
)

func main() {
	flag.Parse()

	if *actsRef == "" {
		fmt.Println("Error: -acts flag is required")
		flag.Usage()
		os.Exit(1)
	}

	var names []string
	switch *projFlag {
	case "q", "k", "v", "o":
		names = []string{*projFlag}
	case "all":
		names = []string{"q", "k", "v", "o"}
	default:
		log.Fatalf("Invalid proj %q (must be one of: q, k, v, o, all)", *projFlag)
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

	fmt.Printf("Model: %s, layer %d\n", snap.Model, layer)

	for _, name := range names {
		label := strings.ToUpper(name)

		m, err := snap.ProjectionWeight(layer, name)
		if err != nil {
			fmt.Printf("\n%s_proj weight: NOT CAPTURED\n", label)
			continue
		}

		fmt.Printf("\n%s_proj weight shape: [%d, %d]\n", label, m.Rows, m.Cols)
		fmt.Printf("%s_proj weight[0, :8] (first row, first 8 cols):\n", label)
		fmt.Printf("  %s\n", floatsStr(m.Row(0), 8))
		fmt.Printf("%s_proj weight[:8, 0] (first 8 rows, first col):\n", label)
		fmt.Printf("  %s\n", floatsStr(m.Col(0), 8))

		if m.Cols > 100 {
			fmt.Printf("%s_proj weight[0, 100]: %.6f\n", label, m.At(0, 100))
		}
	}
}

func floatsStr(vals []float32, n int) string {
	if len(vals) > n {
		vals = vals[:n]
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

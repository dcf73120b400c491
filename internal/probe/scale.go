package probe

import (
	"fmt"
	"math"
)

// ScaleEmbedding multiplies every element by sqrt(hiddenSize), the scaling
// Gemma-family models apply between the embedding table and layer 0. A raw
// embedding that matches but a layer-0 input that does not usually means
// one engine skipped this step.
func ScaleEmbedding(vec []float32, hiddenSize int) ([]float32, error) {
	if hiddenSize <= 0 {
		return nil, fmt.Errorf("invalid hidden size: %d (must be positive)", hiddenSize)
	}

	scale := float32(math.Sqrt(float64(hiddenSize)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v * scale
	}
	return out, nil
}

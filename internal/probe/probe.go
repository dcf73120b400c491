// Package probe computes deterministic reference quantities from captured
// transformer activations: per-(layer, position) magnitude statistics,
// scaled embeddings, and projection slices, reported in a stable form that
// can be diffed between two engines running the same model.
//
// The probe never aborts on a bad index. A divergent engine is exactly the
// case worth inspecting, so out-of-range layers and positions become marker
// entries and iteration continues.
package probe

import (
	"errors"
	"fmt"

	"github.com/clocksmith/doppler/internal/metrics"
)

// FirstN is the number of leading elements reported verbatim per vector.
const FirstN = 8

// BaselinePosition is the fixed reference position reported alongside every
// requested position.
const BaselinePosition = 0

// Source provides index-addressable activations from one engine run.
// Implementations must return vectors that the caller may retain.
type Source interface {
	SequenceLength() int
	NumLayers() int
	// HiddenState returns the post-layer hidden state for a resolved
	// position. Both indices are already bounds-checked by the probe.
	HiddenState(layer, position int) ([]float32, error)
}

// EmbeddingSource is implemented by sources that captured the raw
// (pre-scaling) embedding rows.
type EmbeddingSource interface {
	Embedding(position int) ([]float32, error)
}

// ProjectionSource is implemented by sources that captured attention
// projection activations directly. Name is one of "q", "k", "v", "o".
type ProjectionSource interface {
	ProjectionState(layer int, name string, position int) ([]float32, error)
}

// WeightSource is implemented by sources that carry projection weight
// matrices, letting the probe compute projections it did not capture.
type WeightSource interface {
	ProjectionWeight(layer int, name string) (*Matrix, error)
}

// Request names what to inspect: the token sequence the run used, the
// layers to report, and one token position (negative counts from the end).
type Request struct {
	TokenIDs []int
	Layers   []int
	Position int
}

// NewRequest validates and normalizes a probe request. Token ids must be
// non-empty and non-negative, and the position must resolve within the
// token sequence. Duplicate layers collapse to their first occurrence;
// layer bounds are checked later against each source, not here.
func NewRequest(tokenIDs []int, layers []int, position int) (*Request, error) {
	if len(tokenIDs) == 0 {
		metrics.RecordValidationError("request", "empty_tokens")
		return nil, errors.New("token ids must not be empty")
	}
	for i, id := range tokenIDs {
		if id < 0 {
			metrics.RecordValidationError("request", "negative_token")
			return nil, fmt.Errorf("token id %d at index %d: must be non-negative", id, i)
		}
	}
	if _, ok := ResolvePosition(position, len(tokenIDs)); !ok {
		metrics.RecordValidationError("request", "position_out_of_range")
		return nil, fmt.Errorf("token position %d out of range for %d tokens", position, len(tokenIDs))
	}

	seen := make(map[int]struct{}, len(layers))
	kept := make([]int, 0, len(layers))
	for _, l := range layers {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		kept = append(kept, l)
	}

	return &Request{
		TokenIDs: append([]int(nil), tokenIDs...),
		Layers:   kept,
		Position: position,
	}, nil
}

// ResolvePosition maps a possibly-negative position index onto [0, seqLen).
// The second return is false when the index stays out of range.
func ResolvePosition(pos, seqLen int) (int, bool) {
	if pos < 0 {
		pos += seqLen
	}
	if pos < 0 || pos >= seqLen {
		return -1, false
	}
	return pos, true
}

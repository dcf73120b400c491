package probe

import "math"

// VectorStats aggregates one activation vector. NaN and Inf elements are
// counted but excluded from the numeric aggregates so a partially-poisoned
// vector still yields comparable magnitudes.
type VectorStats struct {
	MaxAbs  float64
	MeanAbs float64
	Min     float32
	Max     float32
	RMS     float64
	Zeros   int
	NaNs    int
	Infs    int
	First   []float32
}

// Stats computes VectorStats over data, keeping the first firstN elements
// verbatim (clamped to the vector length).
func Stats(data []float32, firstN int) VectorStats {
	var (
		maxVal float32
		minVal float32
		sumAbs float64
		sumSq  float64
		maxAbs float64
		zeros  int
		nans   int
		infs   int
	)

	started := false
	for _, v := range data {
		if math.IsNaN(float64(v)) {
			nans++
			continue
		}
		if math.IsInf(float64(v), 0) {
			infs++
			continue
		}
		if v == 0 {
			zeros++
		}
		if !started {
			maxVal = v
			minVal = v
			started = true
		} else {
			if v > maxVal {
				maxVal = v
			}
			if v < minVal {
				minVal = v
			}
		}
		abs := math.Abs(float64(v))
		if abs > maxAbs {
			maxAbs = abs
		}
		sumAbs += abs
		sumSq += float64(v) * float64(v)
	}

	n := len(data) - nans - infs
	var meanAbs, rms float64
	if n > 0 {
		meanAbs = sumAbs / float64(n)
		rms = math.Sqrt(sumSq / float64(n))
	}

	if firstN < 0 {
		firstN = 0
	}
	if firstN > len(data) {
		firstN = len(data)
	}
	first := make([]float32, firstN)
	copy(first, data[:firstN])

	return VectorStats{
		MaxAbs:  maxAbs,
		MeanAbs: meanAbs,
		Min:     minVal,
		Max:     maxVal,
		RMS:     rms,
		Zeros:   zeros,
		NaNs:    nans,
		Infs:    infs,
		First:   first,
	}
}

// PositionStats is one report entry: the statistics of a single
// (layer, position) hidden state, or an out-of-range marker.
type PositionStats struct {
	Layer    int `json:"layer"`
	Position int `json:"position"`
	// Resolved is the index actually inspected after negative-index
	// normalization, or -1 for a marker entry.
	Resolved int `json:"resolved"`
	// Baseline marks the fixed position-0 reference entry emitted after
	// each requested position.
	Baseline bool `json:"baseline,omitempty"`
	// OutOfRange marks a position that stayed outside [0, seqLen).
	OutOfRange bool `json:"out_of_range,omitempty"`
	// LayerOutOfRange marks a layer outside [0, numLayers); no baseline
	// entry follows such a marker.
	LayerOutOfRange bool `json:"layer_out_of_range,omitempty"`

	MaxAbs  float64   `json:"max_abs"`
	MeanAbs float64   `json:"mean_abs"`
	Min     float32   `json:"min"`
	Max     float32   `json:"max"`
	RMS     float64   `json:"rms"`
	Zeros   int       `json:"zeros"`
	NaNs    int       `json:"nans"`
	Infs    int       `json:"infs"`
	First   []float32 `json:"first,omitempty"`
}

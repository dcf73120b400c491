package probe

import (
	"math"

	"github.com/clocksmith/doppler/internal/metrics"
)

// DiffStats measures the divergence between two activation vectors.
// Comparison runs over the shorter length when the vectors disagree on
// size; LengthMismatch records that the tails were ignored.
type DiffStats struct {
	MaxAbsDiff     float64 `json:"max_abs_diff"`
	MeanAbsDiff    float64 `json:"mean_abs_diff"`
	RMSE           float64 `json:"rmse"`
	Cosine         float64 `json:"cosine"`
	Compared       int     `json:"compared"`
	LengthMismatch bool    `json:"length_mismatch,omitempty"`
}

// Diff computes element-wise divergence statistics between a and b.
func Diff(a, b []float32) DiffStats {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return DiffStats{LengthMismatch: len(a) != len(b)}
	}

	var (
		sumAbs float64
		sumSq  float64
		dot    float64
		normA  float64
		normB  float64
		maxAbs float64
	)
	for i := 0; i < n; i++ {
		da := float64(a[i])
		db := float64(b[i])
		diff := da - db
		if diff < 0 {
			diff = -diff
		}
		sumAbs += diff
		sumSq += diff * diff
		if diff > maxAbs {
			maxAbs = diff
		}
		dot += da * db
		normA += da * da
		normB += db * db
	}

	cos := 0.0
	if normA > 0 && normB > 0 {
		cos = dot / (math.Sqrt(normA) * math.Sqrt(normB))
	}

	return DiffStats{
		MaxAbsDiff:     maxAbs,
		MeanAbsDiff:    sumAbs / float64(n),
		RMSE:           math.Sqrt(sumSq / float64(n)),
		Cosine:         cos,
		Compared:       n,
		LengthMismatch: len(a) != len(b),
	}
}

// DiffEntry is the divergence of one layer at the requested position, or a
// marker when the index was unavailable in either source.
type DiffEntry struct {
	Layer      int  `json:"layer"`
	Position   int  `json:"position"`
	Resolved   int  `json:"resolved"`
	OutOfRange bool `json:"out_of_range,omitempty"`
	DiffStats
}

// DiffReport compares two engines' hidden states layer by layer.
type DiffReport struct {
	SeqLenA  int         `json:"seq_len_a"`
	SeqLenB  int         `json:"seq_len_b"`
	Position int         `json:"position"`
	Entries  []DiffEntry `json:"entries"`

	// Summary over all compared entries.
	MaxAbsDiff  float64 `json:"max_abs_diff"`
	MeanAbsDiff float64 `json:"mean_abs_diff"`
	WorstLayer  int     `json:"worst_layer"`
	Compared    int     `json:"compared"`
}

// Compare inspects the requested layers in both sources and reports
// per-layer divergence at the requested position. Indices unavailable in
// either source become markers, same as Inspect.
func Compare(a, b Source, req *Request) *DiffReport {
	report := &DiffReport{
		SeqLenA:    a.SequenceLength(),
		SeqLenB:    b.SequenceLength(),
		Position:   req.Position,
		WorstLayer: -1,
	}

	var sumMean float64
	for _, layer := range req.Layers {
		entry := compareLayer(a, b, layer, req.Position)
		report.Entries = append(report.Entries, entry)
		if entry.OutOfRange {
			metrics.RecordInspection("diff", 0, true)
			continue
		}
		metrics.RecordInspection("diff", entry.MaxAbsDiff, false)
		report.Compared++
		sumMean += entry.MeanAbsDiff
		if entry.MaxAbsDiff >= report.MaxAbsDiff {
			if entry.MaxAbsDiff > report.MaxAbsDiff || report.WorstLayer < 0 {
				report.WorstLayer = entry.Layer
			}
			report.MaxAbsDiff = entry.MaxAbsDiff
		}
	}
	if report.Compared > 0 {
		report.MeanAbsDiff = sumMean / float64(report.Compared)
	}
	return report
}

func compareLayer(a, b Source, layer, position int) DiffEntry {
	posA, okA := ResolvePosition(position, a.SequenceLength())
	posB, okB := ResolvePosition(position, b.SequenceLength())

	layerOK := layer >= 0 && layer < a.NumLayers() && layer < b.NumLayers()
	if !layerOK || !okA || !okB {
		return DiffEntry{Layer: layer, Position: position, Resolved: -1, OutOfRange: true}
	}

	vecA, errA := a.HiddenState(layer, posA)
	vecB, errB := b.HiddenState(layer, posB)
	if errA != nil || errB != nil {
		return DiffEntry{Layer: layer, Position: position, Resolved: -1, OutOfRange: true}
	}

	return DiffEntry{
		Layer:     layer,
		Position:  position,
		Resolved:  posA,
		DiffStats: Diff(vecA, vecB),
	}
}

// Pass reports whether every compared layer stayed within tol and nothing
// was skipped as out of range.
func (r *DiffReport) Pass(tol float64) bool {
	if r.Compared == 0 {
		return false
	}
	for _, e := range r.Entries {
		if e.OutOfRange {
			return false
		}
		if e.LengthMismatch {
			return false
		}
	}
	return r.MaxAbsDiff <= tol
}

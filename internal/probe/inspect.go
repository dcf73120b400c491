package probe

import (
	"fmt"

	"github.com/clocksmith/doppler/internal/logger"
	"github.com/clocksmith/doppler/internal/metrics"
)

// Report is the result of one inspection: for every requested layer, the
// statistics at the requested position followed by the position-0 baseline.
// Layers appear in request order. Markers take the place of entries whose
// indices fell outside the source.
type Report struct {
	TokenIDs  []int           `json:"tokens"`
	Position  int             `json:"position"`
	Resolved  int             `json:"resolved"`
	SeqLen    int             `json:"seq_len"`
	NumLayers int             `json:"num_layers"`
	Entries   []PositionStats `json:"entries"`
}

// Inspect reports hidden-state statistics for every layer in the request.
// Range failures become marker entries; Inspect itself never fails.
func Inspect(src Source, req *Request) *Report {
	seqLen := src.SequenceLength()
	numLayers := src.NumLayers()

	resolved, ok := ResolvePosition(req.Position, seqLen)
	report := &Report{
		TokenIDs:  req.TokenIDs,
		Position:  req.Position,
		Resolved:  resolved,
		SeqLen:    seqLen,
		NumLayers: numLayers,
	}

	for _, layer := range req.Layers {
		if layer < 0 || layer >= numLayers {
			report.Entries = append(report.Entries, PositionStats{
				Layer:           layer,
				Position:        req.Position,
				Resolved:        -1,
				OutOfRange:      true,
				LayerOutOfRange: true,
			})
			metrics.RecordInspection("inspect", 0, true)
			continue
		}

		report.Entries = append(report.Entries, entryAt(src, layer, req.Position, resolved, ok, false))

		baseResolved, baseOK := ResolvePosition(BaselinePosition, seqLen)
		report.Entries = append(report.Entries, entryAt(src, layer, BaselinePosition, baseResolved, baseOK, true))
	}

	return report
}

func entryAt(src Source, layer, requested, resolved int, ok, baseline bool) PositionStats {
	if !ok {
		metrics.RecordInspection("inspect", 0, true)
		return PositionStats{
			Layer:      layer,
			Position:   requested,
			Resolved:   -1,
			Baseline:   baseline,
			OutOfRange: true,
		}
	}

	vec, err := src.HiddenState(layer, resolved)
	if err != nil {
		logger.Log.Warn("hidden state unavailable", "layer", layer, "position", resolved, "error", err)
		metrics.RecordInspection("inspect", 0, true)
		return PositionStats{
			Layer:      layer,
			Position:   requested,
			Resolved:   -1,
			Baseline:   baseline,
			OutOfRange: true,
		}
	}

	s := Stats(vec, FirstN)
	metrics.RecordInspection("inspect", s.MaxAbs, false)
	if s.NaNs > 0 || s.Infs > 0 {
		metrics.RecordNumericalInstability(fmt.Sprintf("hidden_l%d_p%d", layer, resolved), s.NaNs, s.Infs)
	}

	return PositionStats{
		Layer:    layer,
		Position: requested,
		Resolved: resolved,
		Baseline: baseline,
		MaxAbs:   s.MaxAbs,
		MeanAbs:  s.MeanAbs,
		Min:      s.Min,
		Max:      s.Max,
		RMS:      s.RMS,
		Zeros:    s.Zeros,
		NaNs:     s.NaNs,
		Infs:     s.Infs,
		First:    s.First,
	}
}

package probe

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// errWriter keeps the first write error and swallows the rest so report
// rendering reads as straight-line prints.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return len(p), nil
	}
	_, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
	}
	return len(p), nil
}

func formatFloats(vals []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%.4f", v)
	}
	b.WriteByte(']')
	return b.String()
}

func formatInts(vals []int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", v)
	}
	b.WriteByte(']')
	return b.String()
}

// WriteText renders the report in the fixed layout downstream diff tooling
// expects. Formatting changes here break recorded baselines.
func (r *Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}

	fmt.Fprintf(ew, "Token IDs: %s\n", formatInts(r.TokenIDs))
	fmt.Fprintf(ew, "Token position: %d -> %d (seq len %d)\n", r.Position, r.Resolved, r.SeqLen)
	fmt.Fprintf(ew, "Model layers: %d\n", r.NumLayers)

	for _, e := range r.Entries {
		if e.LayerOutOfRange {
			fmt.Fprintf(ew, "\nLayer %d: OUT OF RANGE\n", e.Layer)
			continue
		}

		label := "token"
		if e.Baseline {
			label = "baseline"
		}
		if e.OutOfRange {
			fmt.Fprintf(ew, "\nLayer %d (%s %d): OUT OF RANGE\n", e.Layer, label, e.Position)
			continue
		}

		fmt.Fprintf(ew, "\nLayer %d (%s %d):\n", e.Layer, label, e.Resolved)
		fmt.Fprintf(ew, "  First %d: %s\n", len(e.First), formatFloats(e.First))
		fmt.Fprintf(ew, "  maxAbs: %.4f, meanAbs: %.4f\n", e.MaxAbs, e.MeanAbs)
		fmt.Fprintf(ew, "  min: %.4f, max: %.4f, rms: %.4f\n", e.Min, e.Max, e.RMS)
		if e.NaNs > 0 || e.Infs > 0 {
			fmt.Fprintf(ew, "  NaN: %d, Inf: %d\n", e.NaNs, e.Infs)
		}
	}

	return ew.err
}

// WriteJSON renders the report as indented JSON with a trailing newline.
func (r *Report) WriteJSON(w io.Writer) error {
	return writeJSON(w, r)
}

// WriteText renders per-layer divergence lines and a summary.
func (r *DiffReport) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}

	fmt.Fprintf(ew, "Comparing seq len %d vs %d at position %d\n", r.SeqLenA, r.SeqLenB, r.Position)
	for _, e := range r.Entries {
		if e.OutOfRange {
			fmt.Fprintf(ew, "layer[%d] OUT OF RANGE\n", e.Layer)
			continue
		}
		fmt.Fprintf(ew, "layer[%d] max_abs=%.6g mean_abs=%.6g rmse=%.6g cos=%.6f n=%d",
			e.Layer, e.MaxAbsDiff, e.MeanAbsDiff, e.RMSE, e.Cosine, e.Compared)
		if e.LengthMismatch {
			fmt.Fprintf(ew, " LENGTH MISMATCH")
		}
		fmt.Fprintln(ew)
	}

	fmt.Fprintf(ew, "\nSummary layers=%d max_abs=%.6g mean_abs=%.6g worst_layer=%d\n",
		r.Compared, r.MaxAbsDiff, r.MeanAbsDiff, r.WorstLayer)

	return ew.err
}

// WriteJSON renders the diff report as indented JSON with a trailing newline.
func (r *DiffReport) WriteJSON(w io.Writer) error {
	return writeJSON(w, r)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

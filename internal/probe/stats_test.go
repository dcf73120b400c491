package probe

import (
	"math"
	"testing"
)

func TestStatsBasic(t *testing.T) {
	data := []float32{1.0, -3.0, 0.0, 2.0}
	s := Stats(data, 8)

	if s.MaxAbs != 3.0 {
		t.Errorf("MaxAbs = %v, want 3.0", s.MaxAbs)
	}
	if want := (1.0 + 3.0 + 0.0 + 2.0) / 4.0; math.Abs(s.MeanAbs-want) > 1e-12 {
		t.Errorf("MeanAbs = %v, want %v", s.MeanAbs, want)
	}
	if s.Min != -3.0 || s.Max != 2.0 {
		t.Errorf("Min/Max = %v/%v, want -3/2", s.Min, s.Max)
	}
	if want := math.Sqrt((1 + 9 + 0 + 4) / 4.0); math.Abs(s.RMS-want) > 1e-12 {
		t.Errorf("RMS = %v, want %v", s.RMS, want)
	}
	if s.Zeros != 1 {
		t.Errorf("Zeros = %d, want 1", s.Zeros)
	}
	if len(s.First) != 4 {
		t.Errorf("First length = %d, want 4 (clamped)", len(s.First))
	}
}

func TestStatsFirstNClamp(t *testing.T) {
	data := make([]float32, 20)
	for i := range data {
		data[i] = float32(i)
	}

	s := Stats(data, 8)
	if len(s.First) != 8 {
		t.Fatalf("First length = %d, want 8", len(s.First))
	}
	for i, v := range s.First {
		if v != float32(i) {
			t.Errorf("First[%d] = %v, want %v", i, v, float32(i))
		}
	}

	if got := Stats(data, -1); len(got.First) != 0 {
		t.Errorf("negative firstN: First length = %d, want 0", len(got.First))
	}
}

func TestStatsNaNInf(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	data := []float32{1.0, nan, -2.0, inf, nan}

	s := Stats(data, 8)
	if s.NaNs != 2 {
		t.Errorf("NaNs = %d, want 2", s.NaNs)
	}
	if s.Infs != 1 {
		t.Errorf("Infs = %d, want 1", s.Infs)
	}
	// Aggregates skip non-finite values so they stay comparable.
	if s.MaxAbs != 2.0 {
		t.Errorf("MaxAbs = %v, want 2.0", s.MaxAbs)
	}
	if want := (1.0 + 2.0) / 2.0; math.Abs(s.MeanAbs-want) > 1e-12 {
		t.Errorf("MeanAbs = %v, want %v", s.MeanAbs, want)
	}
	// First slice is verbatim, NaN and all.
	if !math.IsNaN(float64(s.First[1])) {
		t.Errorf("First[1] = %v, want NaN preserved", s.First[1])
	}
}

func TestStatsEmpty(t *testing.T) {
	s := Stats(nil, 8)
	if s.MaxAbs != 0 || s.MeanAbs != 0 || s.RMS != 0 {
		t.Errorf("empty stats = %+v, want zeros", s)
	}
	if len(s.First) != 0 {
		t.Errorf("First length = %d, want 0", len(s.First))
	}
}

func TestStatsAllNegative(t *testing.T) {
	s := Stats([]float32{-5, -1, -3}, 8)
	if s.MaxAbs != 5 {
		t.Errorf("MaxAbs = %v, want 5", s.MaxAbs)
	}
	if s.Max != -1 || s.Min != -5 {
		t.Errorf("Min/Max = %v/%v, want -5/-1", s.Min, s.Max)
	}
}

func TestScaleEmbedding(t *testing.T) {
	vec := []float32{1.0, -0.5, 0.25}
	out, err := ScaleEmbedding(vec, 2304)
	if err != nil {
		t.Fatal(err)
	}

	scale := float32(math.Sqrt(2304))
	for i := range vec {
		if want := vec[i] * scale; out[i] != want {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want)
		}
	}
	// Input untouched.
	if vec[0] != 1.0 {
		t.Errorf("input mutated: %v", vec)
	}
}

func TestScaleEmbeddingZeroVector(t *testing.T) {
	for _, h := range []int{1, 64, 2304, 8192} {
		out, err := ScaleEmbedding(make([]float32, 16), h)
		if err != nil {
			t.Fatalf("hiddenSize %d: %v", h, err)
		}
		for i, v := range out {
			if v != 0 {
				t.Errorf("hiddenSize %d: out[%d] = %v, want 0", h, i, v)
			}
		}
	}
}

func TestScaleEmbeddingInvalidHiddenSize(t *testing.T) {
	for _, h := range []int{0, -1, -2304} {
		if _, err := ScaleEmbedding([]float32{1}, h); err == nil {
			t.Errorf("hiddenSize %d: expected error", h)
		}
	}
}

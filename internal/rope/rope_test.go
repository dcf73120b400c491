package rope

import (
	"errors"
	"math"
	"testing"
)

func testVector(n int) []float32 {
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(i)*0.1) * 0.1)
	}
	if n >= 2 {
		vec[0] = 1.0
		vec[1] = 0.0
	}
	return vec
}

func TestFrequencies(t *testing.T) {
	tests := []struct {
		name    string
		headDim int
		theta   float64
	}{
		{"llama 128/10k", 128, 10000.0},
		{"gemma 256/10k", 256, 10000.0},
		{"long context 128/500k", 128, 500000.0},
		{"tiny 4/10", 4, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freqs, err := Frequencies(tt.headDim, tt.theta)
			if err != nil {
				t.Fatalf("Frequencies(%d, %g) error: %v", tt.headDim, tt.theta, err)
			}
			if len(freqs) != tt.headDim/2 {
				t.Fatalf("got %d frequencies, want %d", len(freqs), tt.headDim/2)
			}
			for i, f := range freqs {
				want := math.Pow(tt.theta, -2.0*float64(i)/float64(tt.headDim))
				if math.Abs(f-want) > 1e-12 {
					t.Errorf("freq[%d] = %v, want %v", i, f, want)
				}
			}
			if freqs[0] != 1.0 {
				t.Errorf("freq[0] = %v, want 1.0", freqs[0])
			}
		})
	}
}

func TestFrequenciesInvalid(t *testing.T) {
	tests := []struct {
		name    string
		headDim int
		theta   float64
		wantErr error
	}{
		{"odd dim", 7, 10000.0, ErrInvalidDimension},
		{"zero dim", 0, 10000.0, ErrInvalidDimension},
		{"negative dim", -4, 10000.0, ErrInvalidDimension},
		{"zero theta", 128, 0, ErrInvalidBase},
		{"negative theta", 128, -10000.0, ErrInvalidBase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Frequencies(tt.headDim, tt.theta)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Frequencies(%d, %g) error = %v, want %v", tt.headDim, tt.theta, err, tt.wantErr)
			}
		})
	}
}

func TestApplyPositionZeroIsIdentity(t *testing.T) {
	freqs, err := Frequencies(64, 10000.0)
	if err != nil {
		t.Fatal(err)
	}
	vec := testVector(64)

	for _, conv := range []Convention{ConventionPair, ConventionHalfSplit} {
		out, err := Apply(vec, 0, freqs, conv)
		if err != nil {
			t.Fatalf("%v: %v", conv, err)
		}
		for i := range vec {
			if out[i] != vec[i] {
				t.Errorf("%v: out[%d] = %v, want %v", conv, i, out[i], vec[i])
			}
		}
	}
}

func TestApplyRoundTrip(t *testing.T) {
	freqs, err := Frequencies(128, 10000.0)
	if err != nil {
		t.Fatal(err)
	}
	vec := testVector(128)

	for _, conv := range []Convention{ConventionPair, ConventionHalfSplit} {
		for _, pos := range []float64{1, 7, 100, 4095} {
			fwd, err := Apply(vec, pos, freqs, conv)
			if err != nil {
				t.Fatal(err)
			}
			back, err := Apply(fwd, -pos, freqs, conv)
			if err != nil {
				t.Fatal(err)
			}
			for i := range vec {
				diff := math.Abs(float64(back[i] - vec[i]))
				if diff > 1e-5 {
					t.Errorf("%v pos %v: back[%d] = %v, want %v (diff %v)", conv, pos, i, back[i], vec[i], diff)
				}
			}
		}
	}
}

func TestApplyPreservesNorm(t *testing.T) {
	freqs, err := Frequencies(64, 10000.0)
	if err != nil {
		t.Fatal(err)
	}
	vec := testVector(64)

	norm := func(v []float32) float64 {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		return math.Sqrt(sum)
	}

	want := norm(vec)
	for _, pos := range []float64{1, 42, 2048} {
		out, err := Apply(vec, pos, freqs, ConventionPair)
		if err != nil {
			t.Fatal(err)
		}
		if got := norm(out); math.Abs(got-want) > 1e-4 {
			t.Errorf("pos %v: norm %v, want %v", pos, got, want)
		}
	}
}

func TestApplyFirstPair(t *testing.T) {
	// freq[0] is always 1, so the first pair rotates by exactly pos radians.
	// With vec[0]=1, vec[1]=0 the output must be (cos pos, sin pos).
	freqs, err := Frequencies(8, 10000.0)
	if err != nil {
		t.Fatal(err)
	}
	vec := []float32{1, 0, 0, 0, 0, 0, 0, 0}

	pos := 3.0
	out, err := Apply(vec, pos, freqs, ConventionPair)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(out[0])-math.Cos(pos)) > 1e-6 {
		t.Errorf("out[0] = %v, want cos(%v) = %v", out[0], pos, math.Cos(pos))
	}
	if math.Abs(float64(out[1])-math.Sin(pos)) > 1e-6 {
		t.Errorf("out[1] = %v, want sin(%v) = %v", out[1], pos, math.Sin(pos))
	}
}

func TestConventionsDiffer(t *testing.T) {
	// A vector with energy outside the first pair must rotate differently
	// under the two conventions. This difference is what the probe exists
	// to surface.
	freqs, err := Frequencies(8, 100.0)
	if err != nil {
		t.Fatal(err)
	}
	vec := []float32{1, 2, 3, 4, 5, 6, 7, 8}

	pair, err := Apply(vec, 5, freqs, ConventionPair)
	if err != nil {
		t.Fatal(err)
	}
	half, err := Apply(vec, 5, freqs, ConventionHalfSplit)
	if err != nil {
		t.Fatal(err)
	}

	var maxDiff float64
	for i := range pair {
		if d := math.Abs(float64(pair[i] - half[i])); d > maxDiff {
			maxDiff = d
		}
	}
	if maxDiff < 1e-3 {
		t.Errorf("conventions agree (max diff %v); expected a visible divergence", maxDiff)
	}
}

func TestApplyDimensionMismatch(t *testing.T) {
	freqs, err := Frequencies(8, 10000.0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		vec  []float32
	}{
		{"short", make([]float32, 6)},
		{"long", make([]float32, 10)},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Apply(tt.vec, 1, freqs, ConventionPair); !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("Apply error = %v, want %v", err, ErrDimensionMismatch)
			}
		})
	}
}

func TestApplyHeads(t *testing.T) {
	const headDim = 8
	const heads = 4
	freqs, err := Frequencies(headDim, 10000.0)
	if err != nil {
		t.Fatal(err)
	}

	vec := testVector(heads * headDim)
	out, err := ApplyHeads(vec, 12, headDim, freqs, ConventionPair)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(vec) {
		t.Fatalf("got length %d, want %d", len(out), len(vec))
	}

	// Each head must match a standalone Apply on its slice.
	for h := 0; h < heads; h++ {
		want, err := Apply(vec[h*headDim:(h+1)*headDim], 12, freqs, ConventionPair)
		if err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if out[h*headDim+i] != want[i] {
				t.Errorf("head %d elem %d: got %v, want %v", h, i, out[h*headDim+i], want[i])
			}
		}
	}

	if _, err := ApplyHeads(vec[:heads*headDim-1], 12, headDim, freqs, ConventionPair); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected %v for ragged vector, got %v", ErrDimensionMismatch, err)
	}
}

func TestAnglesAndCosSin(t *testing.T) {
	freqs, err := Frequencies(8, 10000.0)
	if err != nil {
		t.Fatal(err)
	}

	pos := 7.0
	angles := AnglesAt(pos, freqs)
	cos, sin := CosSinAt(pos, freqs)

	if len(angles) != len(freqs) || len(cos) != len(freqs) || len(sin) != len(freqs) {
		t.Fatalf("length mismatch: angles=%d cos=%d sin=%d freqs=%d", len(angles), len(cos), len(sin), len(freqs))
	}
	for i := range freqs {
		if want := pos * freqs[i]; angles[i] != want {
			t.Errorf("angles[%d] = %v, want %v", i, angles[i], want)
		}
		if want := math.Cos(angles[i]); cos[i] != want {
			t.Errorf("cos[%d] = %v, want %v", i, cos[i], want)
		}
		if want := math.Sin(angles[i]); sin[i] != want {
			t.Errorf("sin[%d] = %v, want %v", i, sin[i], want)
		}
	}
}

func TestParseConvention(t *testing.T) {
	tests := []struct {
		in      string
		want    Convention
		wantErr bool
	}{
		{"pair", ConventionPair, false},
		{"", ConventionPair, false},
		{"half-split", ConventionHalfSplit, false},
		{"halfsplit", ConventionHalfSplit, false},
		{"HALF", ConventionHalfSplit, false},
		{"neox", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConvention(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConvention(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseConvention(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

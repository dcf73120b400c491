// Package rope computes reference rotary position embedding values.
//
// Two engines that disagree on hidden states usually disagree here first:
// either the frequency base differs or the element pairing does. Both
// pairings seen in the wild are implemented so a probe can check an engine
// against each and name the one it matches.
package rope

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidDimension  = errors.New("invalid head dimension")
	ErrInvalidBase       = errors.New("invalid rope base")
	ErrDimensionMismatch = errors.New("rope dimension mismatch")
)

// Convention selects how vector elements pair up for rotation.
type Convention int

const (
	// ConventionPair rotates adjacent elements (2i, 2i+1). This is the
	// layout HF-style reference checkpoints use and the default everywhere
	// in this repo.
	ConventionPair Convention = iota
	// ConventionHalfSplit rotates elements (i, i+headDim/2), the layout
	// used by llama.cpp-family kernels.
	ConventionHalfSplit
)

func (c Convention) String() string {
	switch c {
	case ConventionPair:
		return "pair"
	case ConventionHalfSplit:
		return "half-split"
	default:
		return fmt.Sprintf("convention(%d)", int(c))
	}
}

// ParseConvention maps a flag value to a Convention.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pair":
		return ConventionPair, nil
	case "half-split", "halfsplit", "half":
		return ConventionHalfSplit, nil
	default:
		return 0, fmt.Errorf("unknown rope convention %q (want pair or half-split)", s)
	}
}

// Frequencies returns the headDim/2 rotary frequencies for a rotation base.
// The i-th frequency is theta^(-2i/headDim).
func Frequencies(headDim int, theta float64) ([]float64, error) {
	if headDim <= 0 || headDim%2 != 0 {
		return nil, fmt.Errorf("%w: headDim=%d (must be positive and even)", ErrInvalidDimension, headDim)
	}
	if theta <= 0 {
		return nil, fmt.Errorf("%w: theta=%g (must be positive)", ErrInvalidBase, theta)
	}

	freqs := make([]float64, headDim/2)
	for i := range freqs {
		freqs[i] = math.Pow(theta, -2.0*float64(i)/float64(headDim))
	}
	return freqs, nil
}

// AnglesAt returns pos*freq[i] for each frequency.
func AnglesAt(pos float64, freqs []float64) []float64 {
	angles := make([]float64, len(freqs))
	for i, f := range freqs {
		angles[i] = pos * f
	}
	return angles
}

// CosSinAt returns the cosine and sine of each rotation angle at pos.
func CosSinAt(pos float64, freqs []float64) (cos, sin []float64) {
	cos = make([]float64, len(freqs))
	sin = make([]float64, len(freqs))
	for i, f := range freqs {
		angle := pos * f
		cos[i] = math.Cos(angle)
		sin[i] = math.Sin(angle)
	}
	return cos, sin
}

// Apply rotates vec at position pos using the given frequencies and pairing
// convention. The input is not modified. Vector length must be exactly twice
// the frequency count.
func Apply(vec []float32, pos float64, freqs []float64, conv Convention) ([]float32, error) {
	if len(vec) != 2*len(freqs) {
		return nil, fmt.Errorf("%w: vector length %d with %d frequencies (want length %d)",
			ErrDimensionMismatch, len(vec), len(freqs), 2*len(freqs))
	}

	out := make([]float32, len(vec))
	half := len(freqs)

	switch conv {
	case ConventionHalfSplit:
		for i, f := range freqs {
			angle := pos * f
			cosVal := float32(math.Cos(angle))
			sinVal := float32(math.Sin(angle))

			x := vec[i]
			y := vec[i+half]
			out[i] = x*cosVal - y*sinVal
			out[i+half] = x*sinVal + y*cosVal
		}
	default:
		for i, f := range freqs {
			angle := pos * f
			cosVal := float32(math.Cos(angle))
			sinVal := float32(math.Sin(angle))

			x := vec[2*i]
			y := vec[2*i+1]
			out[2*i] = x*cosVal - y*sinVal
			out[2*i+1] = x*sinVal + y*cosVal
		}
	}
	return out, nil
}

// ApplyHeads rotates each headDim-sized slice of a multi-head vector in
// place-order, returning a new vector. Row layout is [heads * headDim].
func ApplyHeads(vec []float32, pos float64, headDim int, freqs []float64, conv Convention) ([]float32, error) {
	if headDim <= 0 || len(vec)%headDim != 0 {
		return nil, fmt.Errorf("%w: vector length %d is not a multiple of headDim %d",
			ErrDimensionMismatch, len(vec), headDim)
	}

	out := make([]float32, len(vec))
	for off := 0; off < len(vec); off += headDim {
		rotated, err := Apply(vec[off:off+headDim], pos, freqs, conv)
		if err != nil {
			return nil, err
		}
		copy(out[off:], rotated)
	}
	return out, nil
}

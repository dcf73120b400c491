// Package config holds the model geometry the probe verifies against and
// the probe spec documents the tools read. Geometry is supplied by the
// caller from the model's published configuration, never inferred.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/clocksmith/doppler/internal/metrics"
)

// Shape is the model geometry every probe computation keys off.
// Immutable once constructed; validate before use.
type Shape struct {
	HiddenSize int
	HeadDim    int
	NumLayers  int
	RopeTheta  float64
}

func (s *Shape) Validate() error {
	if s.HiddenSize <= 0 {
		metrics.RecordValidationError("shape", "hidden_size")
		return fmt.Errorf("invalid hidden_size: %d (must be positive)", s.HiddenSize)
	}
	if s.HeadDim <= 0 {
		metrics.RecordValidationError("shape", "head_dim")
		return fmt.Errorf("invalid head_dim: %d (must be positive)", s.HeadDim)
	}
	if s.HeadDim%2 != 0 {
		metrics.RecordValidationError("shape", "head_dim")
		return fmt.Errorf("invalid head_dim: %d (must be even)", s.HeadDim)
	}
	if s.NumLayers <= 0 {
		metrics.RecordValidationError("shape", "num_layers")
		return fmt.Errorf("invalid num_layers: %d (must be positive)", s.NumLayers)
	}
	if s.RopeTheta <= 0 {
		metrics.RecordValidationError("shape", "rope_theta")
		return fmt.Errorf("invalid rope_theta: %f (must be positive)", s.RopeTheta)
	}
	return nil
}

// DefaultShape is the gemma-2-2b-it geometry, the model the shipped probe
// configs target.
func DefaultShape() Shape {
	return Shape{
		HiddenSize: 2304,
		HeadDim:    256,
		NumLayers:  26,
		RopeTheta:  10000.0,
	}
}

// ProbeSpec is one probe configuration document. JSON and YAML are both
// accepted with the same field names. Scalar fields are pointers so a
// document that omits a field can be told apart from one that sets it to
// zero; flags set explicitly on the command line win over file values.
type ProbeSpec struct {
	Model  string `json:"model" yaml:"model"`
	Prompt string `json:"prompt" yaml:"prompt"`
	Tokens []int  `json:"tokens" yaml:"tokens"`
	Layers []int  `json:"layers" yaml:"layers"`

	// Token is the inspected token index; negative counts from the end.
	Token *int `json:"token" yaml:"token"`
	// Pos is the rotary position for rope checks.
	Pos *int `json:"pos" yaml:"pos"`

	Dim        *int     `json:"dim" yaml:"dim"`
	Theta      *float64 `json:"theta" yaml:"theta"`
	HiddenSize *int     `json:"hidden_size" yaml:"hidden_size"`
	NumLayers  *int     `json:"num_layers" yaml:"num_layers"`
}

// LoadProbeSpec reads a probe spec document. The extension picks the
// parser: .yaml/.yml use YAML, anything else is treated as JSON.
func LoadProbeSpec(path string) (*ProbeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read probe spec: %w", err)
	}

	spec := &ProbeSpec{}
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, spec); err != nil {
			return nil, fmt.Errorf("failed to parse probe spec %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, spec); err != nil {
			return nil, fmt.Errorf("failed to parse probe spec %s: %w", path, err)
		}
	}
	return spec, nil
}

// ApplyShape overlays the document's geometry fields onto sh, leaving
// fields the document does not set untouched.
func (s *ProbeSpec) ApplyShape(sh *Shape) {
	if s.HiddenSize != nil {
		sh.HiddenSize = *s.HiddenSize
	}
	if s.Dim != nil {
		sh.HeadDim = *s.Dim
	}
	if s.NumLayers != nil {
		sh.NumLayers = *s.NumLayers
	}
	if s.Theta != nil {
		sh.RopeTheta = *s.Theta
	}
}

// TokenIndex returns the requested token position, defaulting to the last
// token when the document does not set one.
func (s *ProbeSpec) TokenIndex() int {
	if s.Token == nil {
		return -1
	}
	return *s.Token
}

// RopePosition returns the rotary position for rope checks, defaulting
// to 0 when the document does not set one.
func (s *ProbeSpec) RopePosition() int {
	if s.Pos == nil {
		return 0
	}
	return *s.Pos
}

// RequireModel fails fast when the document has no usable model id.
func (s *ProbeSpec) RequireModel() (string, error) {
	if strings.TrimSpace(s.Model) == "" {
		return "", fmt.Errorf("invalid model: must be a non-empty string")
	}
	return s.Model, nil
}

// RequireLayers fails fast when the document has no layer list.
func (s *ProbeSpec) RequireLayers() ([]int, error) {
	if len(s.Layers) == 0 {
		return nil, fmt.Errorf("invalid layers: must be a non-empty array")
	}
	return s.Layers, nil
}

// ParseLayers parses a comma-separated layer list from a flag value.
func ParseLayers(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("invalid layers: must be non-empty")
	}
	parts := strings.Split(raw, ",")
	layers := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid layers: %q is not an integer", strings.TrimSpace(part))
		}
		layers = append(layers, v)
	}
	return layers, nil
}

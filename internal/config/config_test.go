package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultShape(t *testing.T) {
	sh := DefaultShape()

	if sh.HiddenSize != 2304 {
		t.Errorf("expected HiddenSize 2304, got %d", sh.HiddenSize)
	}
	if sh.HeadDim != 256 {
		t.Errorf("expected HeadDim 256, got %d", sh.HeadDim)
	}
	if sh.NumLayers != 26 {
		t.Errorf("expected NumLayers 26, got %d", sh.NumLayers)
	}
	if sh.RopeTheta != 10000.0 {
		t.Errorf("expected RopeTheta 10000.0, got %v", sh.RopeTheta)
	}
	if err := sh.Validate(); err != nil {
		t.Errorf("default shape should validate: %v", err)
	}
}

func TestShapeValidate(t *testing.T) {
	tests := []struct {
		name    string
		shape   Shape
		wantErr string
	}{
		{
			name:  "valid shape",
			shape: Shape{HiddenSize: 2304, HeadDim: 256, NumLayers: 26, RopeTheta: 10000},
		},
		{
			name:    "zero hidden size",
			shape:   Shape{HiddenSize: 0, HeadDim: 256, NumLayers: 26, RopeTheta: 10000},
			wantErr: "hidden_size",
		},
		{
			name:    "negative hidden size",
			shape:   Shape{HiddenSize: -1, HeadDim: 256, NumLayers: 26, RopeTheta: 10000},
			wantErr: "hidden_size",
		},
		{
			name:    "odd head dim",
			shape:   Shape{HiddenSize: 2304, HeadDim: 7, NumLayers: 26, RopeTheta: 10000},
			wantErr: "head_dim",
		},
		{
			name:    "zero head dim",
			shape:   Shape{HiddenSize: 2304, HeadDim: 0, NumLayers: 26, RopeTheta: 10000},
			wantErr: "head_dim",
		},
		{
			name:    "zero layers",
			shape:   Shape{HiddenSize: 2304, HeadDim: 256, NumLayers: 0, RopeTheta: 10000},
			wantErr: "num_layers",
		},
		{
			name:    "zero theta",
			shape:   Shape{HiddenSize: 2304, HeadDim: 256, NumLayers: 26, RopeTheta: 0},
			wantErr: "rope_theta",
		},
		{
			name:    "negative theta",
			shape:   Shape{HiddenSize: 2304, HeadDim: 256, NumLayers: 26, RopeTheta: -10000},
			wantErr: "rope_theta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.shape.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error naming %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q does not name field %s", err, tt.wantErr)
			}
		})
	}
}

func writeSpecFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadProbeSpecJSON(t *testing.T) {
	path := writeSpecFile(t, "probe.json", `{
  "model": "google/gemma-2-2b-it",
  "prompt": "The color of the sky is",
  "layers": [0, 12, 25],
  "token": -1,
  "dim": 256,
  "theta": 10000.0
}`)

	spec, err := LoadProbeSpec(path)
	if err != nil {
		t.Fatalf("LoadProbeSpec: %v", err)
	}

	if spec.Model != "google/gemma-2-2b-it" {
		t.Errorf("model = %q", spec.Model)
	}
	if spec.Prompt != "The color of the sky is" {
		t.Errorf("prompt = %q", spec.Prompt)
	}
	if len(spec.Layers) != 3 || spec.Layers[0] != 0 || spec.Layers[1] != 12 || spec.Layers[2] != 25 {
		t.Errorf("layers = %v", spec.Layers)
	}
	if spec.Token == nil || *spec.Token != -1 {
		t.Errorf("token = %v", spec.Token)
	}
	if spec.TokenIndex() != -1 {
		t.Errorf("TokenIndex() = %d, want -1", spec.TokenIndex())
	}
	if spec.Dim == nil || *spec.Dim != 256 {
		t.Errorf("dim = %v", spec.Dim)
	}
	if spec.Theta == nil || *spec.Theta != 10000.0 {
		t.Errorf("theta = %v", spec.Theta)
	}
	if spec.HiddenSize != nil {
		t.Errorf("hidden_size should be unset, got %v", *spec.HiddenSize)
	}
}

func TestLoadProbeSpecYAML(t *testing.T) {
	path := writeSpecFile(t, "probe.yaml", `model: google/gemma-2-2b-it
prompt: The color of the sky is
tokens: [2, 651, 2881, 576, 573, 8203, 603]
layers: [0, 25]
pos: 6
hidden_size: 2304
num_layers: 26
`)

	spec, err := LoadProbeSpec(path)
	if err != nil {
		t.Fatalf("LoadProbeSpec: %v", err)
	}

	if spec.Model != "google/gemma-2-2b-it" {
		t.Errorf("model = %q", spec.Model)
	}
	if len(spec.Tokens) != 7 || spec.Tokens[0] != 2 || spec.Tokens[6] != 603 {
		t.Errorf("tokens = %v", spec.Tokens)
	}
	if spec.RopePosition() != 6 {
		t.Errorf("RopePosition() = %d, want 6", spec.RopePosition())
	}
	if spec.Token != nil {
		t.Errorf("token should be unset, got %v", *spec.Token)
	}
	if spec.TokenIndex() != -1 {
		t.Errorf("TokenIndex() default = %d, want -1", spec.TokenIndex())
	}
	if spec.HiddenSize == nil || *spec.HiddenSize != 2304 {
		t.Errorf("hidden_size = %v", spec.HiddenSize)
	}
	if spec.NumLayers == nil || *spec.NumLayers != 26 {
		t.Errorf("num_layers = %v", spec.NumLayers)
	}
}

func TestLoadProbeSpecErrors(t *testing.T) {
	if _, err := LoadProbeSpec(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := writeSpecFile(t, "bad.json", `{"model": `)
	if _, err := LoadProbeSpec(bad); err == nil {
		t.Error("expected error for malformed JSON")
	}

	badYAML := writeSpecFile(t, "bad.yaml", "model: [unclosed")
	if _, err := LoadProbeSpec(badYAML); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestApplyShape(t *testing.T) {
	dim := 128
	theta := 1000000.0
	spec := &ProbeSpec{Dim: &dim, Theta: &theta}

	sh := DefaultShape()
	spec.ApplyShape(&sh)

	if sh.HeadDim != 128 {
		t.Errorf("HeadDim = %d, want 128", sh.HeadDim)
	}
	if sh.RopeTheta != 1000000.0 {
		t.Errorf("RopeTheta = %v, want 1000000.0", sh.RopeTheta)
	}
	// Fields the document does not set keep their previous values.
	if sh.HiddenSize != 2304 {
		t.Errorf("HiddenSize = %d, want 2304", sh.HiddenSize)
	}
	if sh.NumLayers != 26 {
		t.Errorf("NumLayers = %d, want 26", sh.NumLayers)
	}
}

func TestRequireModel(t *testing.T) {
	spec := &ProbeSpec{Model: "  "}
	if _, err := spec.RequireModel(); err == nil {
		t.Error("expected error for blank model")
	}

	spec.Model = "google/gemma-2-2b-it"
	model, err := spec.RequireModel()
	if err != nil {
		t.Fatalf("RequireModel: %v", err)
	}
	if model != "google/gemma-2-2b-it" {
		t.Errorf("model = %q", model)
	}
}

func TestRequireLayers(t *testing.T) {
	spec := &ProbeSpec{}
	if _, err := spec.RequireLayers(); err == nil {
		t.Error("expected error for missing layers")
	}

	spec.Layers = []int{0, 12, 25}
	layers, err := spec.RequireLayers()
	if err != nil {
		t.Fatalf("RequireLayers: %v", err)
	}
	if len(layers) != 3 {
		t.Errorf("layers = %v", layers)
	}
}

func TestParseLayers(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []int
		wantErr bool
	}{
		{name: "simple", raw: "0,12,25", want: []int{0, 12, 25}},
		{name: "spaces", raw: " 0 , 12 , 25 ", want: []int{0, 12, 25}},
		{name: "single", raw: "7", want: []int{7}},
		{name: "negative allowed", raw: "-1,3", want: []int{-1, 3}},
		{name: "empty", raw: "", wantErr: true},
		{name: "blank", raw: "   ", wantErr: true},
		{name: "junk", raw: "0,twelve", wantErr: true},
		{name: "trailing comma", raw: "0,12,", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLayers(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLayers(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseLayers(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseLayers(%q)[%d] = %d, want %d", tt.raw, i, got[i], tt.want[i])
				}
			}
		})
	}
}

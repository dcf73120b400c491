package actstore

import (
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/clocksmith/doppler/internal/metrics"
	"github.com/clocksmith/doppler/internal/probe"
)

type vectorJSON struct {
	Position int       `json:"position"`
	Values   []float32 `json:"values"`
}

type hiddenJSON struct {
	Layer    int       `json:"layer"`
	Position int       `json:"position"`
	Values   []float32 `json:"values"`
}

type projJSON struct {
	Layer    int       `json:"layer"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
	Values   []float32 `json:"values"`
}

type weightJSON struct {
	Layer  int       `json:"layer"`
	Name   string    `json:"name"`
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Values []float32 `json:"values"`
}

type snapshotJSON struct {
	Model       string       `json:"model"`
	Prompt      string       `json:"prompt"`
	Tokens      []int        `json:"tokens"`
	HiddenSize  int          `json:"hidden_size"`
	NumLayers   int          `json:"num_layers"`
	Embeddings  []vectorJSON `json:"embeddings,omitempty"`
	Hidden      []hiddenJSON `json:"hidden,omitempty"`
	Projections []projJSON   `json:"projections,omitempty"`
	Weights     []weightJSON `json:"weights,omitempty"`
}

func (s *Snapshot) toJSON() *snapshotJSON {
	doc := &snapshotJSON{
		Model:      s.Model,
		Prompt:     s.Prompt,
		Tokens:     s.Tokens,
		HiddenSize: s.HiddenSize,
		NumLayers:  s.Layers,
	}
	for _, pos := range s.embedKeys() {
		doc.Embeddings = append(doc.Embeddings, vectorJSON{Position: pos, Values: s.embeds[pos]})
	}
	for _, k := range s.hiddenKeys() {
		doc.Hidden = append(doc.Hidden, hiddenJSON{Layer: k.layer, Position: k.position, Values: s.hidden[k]})
	}
	for _, k := range s.projKeys() {
		doc.Projections = append(doc.Projections, projJSON{Layer: k.layer, Name: k.name, Position: k.position, Values: s.projs[k]})
	}
	for _, k := range s.weightKeys() {
		m := s.weights[k]
		doc.Weights = append(doc.Weights, weightJSON{Layer: k.layer, Name: k.name, Rows: m.Rows, Cols: m.Cols, Values: m.Data})
	}
	return doc
}

func fromJSON(doc *snapshotJSON) (*Snapshot, error) {
	snap, err := New(doc.Model, doc.Prompt, doc.Tokens, doc.HiddenSize, doc.NumLayers)
	if err != nil {
		return nil, err
	}
	for i, e := range doc.Embeddings {
		if err := snap.AddEmbedding(e.Position, e.Values); err != nil {
			return nil, fmt.Errorf("embeddings[%d]: %w", i, err)
		}
	}
	for i, h := range doc.Hidden {
		if err := snap.AddHidden(h.Layer, h.Position, h.Values); err != nil {
			return nil, fmt.Errorf("hidden[%d]: %w", i, err)
		}
	}
	for i, p := range doc.Projections {
		if err := snap.AddProjection(p.Layer, p.Name, p.Position, p.Values); err != nil {
			return nil, fmt.Errorf("projections[%d]: %w", i, err)
		}
	}
	for i, w := range doc.Weights {
		m, err := probe.NewMatrix(w.Rows, w.Cols, w.Values)
		if err != nil {
			return nil, fmt.Errorf("weights[%d]: %w", i, err)
		}
		if err := snap.AddWeight(w.Layer, w.Name, m); err != nil {
			return nil, fmt.Errorf("weights[%d]: %w", i, err)
		}
	}
	return snap, nil
}

// SaveJSON writes the snapshot as indented JSON.
func (s *Snapshot) SaveJSON(path string) error {
	data, err := json.MarshalIndent(s.toJSON(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadJSON reads a JSON snapshot and validates every section.
func LoadJSON(path string) (*Snapshot, error) {
	start := time.Now()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var doc snapshotJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}

	snap, err := fromJSON(&doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}

	metrics.RecordSnapshotLoad("json", snap.TensorCount(), time.Since(start))
	return snap, nil
}

// Package actstore stores activation snapshots: everything one engine run
// captured (token ids, raw embeddings, per-layer hidden states, attention
// projections, projection weights), addressable the way the probe reads it.
//
// Snapshots travel as JSON (hand-inspectable) or Arrow IPC (compact, and
// the same schema the Flight fetch path streams).
package actstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/clocksmith/doppler/internal/probe"
)

// ErrNotCaptured marks a lookup for data the snapshot never recorded, as
// opposed to an index that is structurally out of range.
var ErrNotCaptured = errors.New("not captured")

var projectionNames = []string{"q", "k", "v", "o"}

func validProjection(name string) bool {
	for _, p := range projectionNames {
		if name == p {
			return true
		}
	}
	return false
}

type hiddenKey struct {
	layer    int
	position int
}

type projKey struct {
	layer    int
	name     string
	position int
}

type weightKey struct {
	layer int
	name  string
}

// Snapshot is one engine run's captured numeric state. It implements
// probe.Source and the optional capability interfaces for whatever
// sections were captured.
type Snapshot struct {
	Model      string
	Prompt     string
	Tokens     []int
	HiddenSize int
	Layers     int

	hidden  map[hiddenKey][]float32
	embeds  map[int][]float32
	projs   map[projKey][]float32
	weights map[weightKey]*probe.Matrix
}

// New creates an empty snapshot. Layer and size declarations come from the
// model's published configuration, not from what happens to be captured.
func New(model, prompt string, tokens []int, hiddenSize, layers int) (*Snapshot, error) {
	if hiddenSize <= 0 {
		return nil, fmt.Errorf("invalid hidden size: %d (must be positive)", hiddenSize)
	}
	if layers <= 0 {
		return nil, fmt.Errorf("invalid layer count: %d (must be positive)", layers)
	}
	return &Snapshot{
		Model:      model,
		Prompt:     prompt,
		Tokens:     append([]int(nil), tokens...),
		HiddenSize: hiddenSize,
		Layers:     layers,
		hidden:     make(map[hiddenKey][]float32),
		embeds:     make(map[int][]float32),
		projs:      make(map[projKey][]float32),
		weights:    make(map[weightKey]*probe.Matrix),
	}, nil
}

func (s *Snapshot) checkLayer(layer int) error {
	if layer < 0 || layer >= s.Layers {
		return fmt.Errorf("layer %d out of range [0, %d)", layer, s.Layers)
	}
	return nil
}

func (s *Snapshot) checkPosition(position int) error {
	if position < 0 || position >= len(s.Tokens) {
		return fmt.Errorf("position %d out of range [0, %d)", position, len(s.Tokens))
	}
	return nil
}

// AddHidden records the post-layer hidden state at one position.
func (s *Snapshot) AddHidden(layer, position int, values []float32) error {
	if err := s.checkLayer(layer); err != nil {
		return err
	}
	if err := s.checkPosition(position); err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.New("hidden state values must not be empty")
	}
	s.hidden[hiddenKey{layer, position}] = append([]float32(nil), values...)
	return nil
}

// AddEmbedding records the raw (pre-scaling) embedding row at one position.
func (s *Snapshot) AddEmbedding(position int, values []float32) error {
	if err := s.checkPosition(position); err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.New("embedding values must not be empty")
	}
	s.embeds[position] = append([]float32(nil), values...)
	return nil
}

// AddProjection records a q/k/v/o projection activation.
func (s *Snapshot) AddProjection(layer int, name string, position int, values []float32) error {
	if !validProjection(name) {
		return fmt.Errorf("invalid projection name %q (want q, k, v, or o)", name)
	}
	if err := s.checkLayer(layer); err != nil {
		return err
	}
	if err := s.checkPosition(position); err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.New("projection values must not be empty")
	}
	s.projs[projKey{layer, name, position}] = append([]float32(nil), values...)
	return nil
}

// AddWeight records a projection weight matrix.
func (s *Snapshot) AddWeight(layer int, name string, m *probe.Matrix) error {
	if !validProjection(name) {
		return fmt.Errorf("invalid projection name %q (want q, k, v, or o)", name)
	}
	if err := s.checkLayer(layer); err != nil {
		return err
	}
	if m == nil || len(m.Data) == 0 {
		return errors.New("weight matrix must not be empty")
	}
	s.weights[weightKey{layer, name}] = m
	return nil
}

// SequenceLength implements probe.Source.
func (s *Snapshot) SequenceLength() int { return len(s.Tokens) }

// NumLayers implements probe.Source.
func (s *Snapshot) NumLayers() int { return s.Layers }

// HiddenState implements probe.Source.
func (s *Snapshot) HiddenState(layer, position int) ([]float32, error) {
	vec, ok := s.hidden[hiddenKey{layer, position}]
	if !ok {
		return nil, fmt.Errorf("hidden state layer %d position %d: %w", layer, position, ErrNotCaptured)
	}
	return vec, nil
}

// Embedding implements probe.EmbeddingSource.
func (s *Snapshot) Embedding(position int) ([]float32, error) {
	vec, ok := s.embeds[position]
	if !ok {
		return nil, fmt.Errorf("embedding position %d: %w", position, ErrNotCaptured)
	}
	return vec, nil
}

// ProjectionState implements probe.ProjectionSource.
func (s *Snapshot) ProjectionState(layer int, name string, position int) ([]float32, error) {
	vec, ok := s.projs[projKey{layer, name, position}]
	if !ok {
		return nil, fmt.Errorf("projection %s layer %d position %d: %w", name, layer, position, ErrNotCaptured)
	}
	return vec, nil
}

// ProjectionWeight implements probe.WeightSource.
func (s *Snapshot) ProjectionWeight(layer int, name string) (*probe.Matrix, error) {
	m, ok := s.weights[weightKey{layer, name}]
	if !ok {
		return nil, fmt.Errorf("weight %s layer %d: %w", name, layer, ErrNotCaptured)
	}
	return m, nil
}

// TensorCount reports how many captured sections the snapshot holds.
func (s *Snapshot) TensorCount() int {
	return len(s.hidden) + len(s.embeds) + len(s.projs) + len(s.weights)
}

// sorted key views, used by the codecs and the fingerprint so output order
// never depends on map iteration.

func (s *Snapshot) hiddenKeys() []hiddenKey {
	keys := make([]hiddenKey, 0, len(s.hidden))
	for k := range s.hidden {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].layer != keys[j].layer {
			return keys[i].layer < keys[j].layer
		}
		return keys[i].position < keys[j].position
	})
	return keys
}

func (s *Snapshot) embedKeys() []int {
	keys := make([]int, 0, len(s.embeds))
	for k := range s.embeds {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (s *Snapshot) projKeys() []projKey {
	keys := make([]projKey, 0, len(s.projs))
	for k := range s.projs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].layer != keys[j].layer {
			return keys[i].layer < keys[j].layer
		}
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].position < keys[j].position
	})
	return keys
}

func (s *Snapshot) weightKeys() []weightKey {
	keys := make([]weightKey, 0, len(s.weights))
	for k := range s.weights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].layer != keys[j].layer {
			return keys[i].layer < keys[j].layer
		}
		return keys[i].name < keys[j].name
	})
	return keys
}

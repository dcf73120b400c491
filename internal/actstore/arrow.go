package actstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"

	"github.com/clocksmith/doppler/internal/metrics"
	"github.com/clocksmith/doppler/internal/probe"
)

// Arrow row kinds. Weight matrices travel as one row per matrix row, with
// the position column carrying the row index.
const (
	kindHidden       = "hidden"
	kindEmbedding    = "embedding"
	kindProjPrefix   = "proj:"
	kindWeightPrefix = "weight:"
)

// Schema metadata keys for the snapshot header.
const (
	metaModel      = "doppler:model"
	metaPrompt     = "doppler:prompt"
	metaTokens     = "doppler:tokens"
	metaHiddenSize = "doppler:hidden_size"
	metaNumLayers  = "doppler:num_layers"
)

func schemaFields() []arrow.Field {
	return []arrow.Field{
		{Name: "layer", Type: arrow.PrimitiveTypes.Int32},
		{Name: "kind", Type: arrow.BinaryTypes.String},
		{Name: "position", Type: arrow.PrimitiveTypes.Int32},
		{Name: "vector", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
	}
}

// ArrowSchema is the wire schema for one snapshot, with the snapshot
// header carried as schema metadata. The Flight stream and the IPC file
// codec share it.
func (s *Snapshot) ArrowSchema() (*arrow.Schema, error) {
	tokens, err := json.Marshal(s.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tokens: %w", err)
	}
	md := arrow.NewMetadata(
		[]string{metaModel, metaPrompt, metaTokens, metaHiddenSize, metaNumLayers},
		[]string{s.Model, s.Prompt, string(tokens), strconv.Itoa(s.HiddenSize), strconv.Itoa(s.Layers)},
	)
	return arrow.NewSchema(schemaFields(), &md), nil
}

func metadataValue(md arrow.Metadata, key string) (string, bool) {
	idx := md.FindKey(key)
	if idx < 0 {
		return "", false
	}
	return md.Values()[idx], true
}

// snapshotFromSchema builds an empty snapshot from a wire schema's header
// metadata, validating the column layout.
func snapshotFromSchema(schema *arrow.Schema) (*Snapshot, error) {
	want := schemaFields()
	if len(schema.Fields()) != len(want) {
		return nil, fmt.Errorf("unexpected schema: %d fields (want %d)", len(schema.Fields()), len(want))
	}
	for i, f := range want {
		got := schema.Field(i)
		if got.Name != f.Name || !arrow.TypeEqual(got.Type, f.Type) {
			return nil, fmt.Errorf("unexpected schema field %d: %s %s (want %s %s)",
				i, got.Name, got.Type, f.Name, f.Type)
		}
	}

	md := schema.Metadata()
	model, _ := metadataValue(md, metaModel)
	prompt, _ := metadataValue(md, metaPrompt)

	tokensRaw, ok := metadataValue(md, metaTokens)
	if !ok {
		return nil, fmt.Errorf("schema metadata missing %s", metaTokens)
	}
	var tokens []int
	if err := json.Unmarshal([]byte(tokensRaw), &tokens); err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", metaTokens, err)
	}

	hiddenRaw, ok := metadataValue(md, metaHiddenSize)
	if !ok {
		return nil, fmt.Errorf("schema metadata missing %s", metaHiddenSize)
	}
	hiddenSize, err := strconv.Atoi(hiddenRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata %q: %w", metaHiddenSize, hiddenRaw, err)
	}

	layersRaw, ok := metadataValue(md, metaNumLayers)
	if !ok {
		return nil, fmt.Errorf("schema metadata missing %s", metaNumLayers)
	}
	layers, err := strconv.Atoi(layersRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata %q: %w", metaNumLayers, layersRaw, err)
	}

	return New(model, prompt, tokens, hiddenSize, layers)
}

// BuildRecord assembles every captured section into a single Arrow record
// in the snapshot's deterministic order. The caller releases the record.
func (s *Snapshot) BuildRecord(mem memory.Allocator) (arrow.Record, error) {
	schema, err := s.ArrowSchema()
	if err != nil {
		return nil, err
	}

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	layerB := b.Field(0).(*array.Int32Builder)
	kindB := b.Field(1).(*array.StringBuilder)
	posB := b.Field(2).(*array.Int32Builder)
	listB := b.Field(3).(*array.ListBuilder)
	valB := listB.ValueBuilder().(*array.Float32Builder)

	appendRow := func(layer int, kind string, pos int, vals []float32) {
		layerB.Append(int32(layer))
		kindB.Append(kind)
		posB.Append(int32(pos))
		listB.Append(true)
		valB.AppendValues(vals, nil)
	}

	for _, pos := range s.embedKeys() {
		appendRow(-1, kindEmbedding, pos, s.embeds[pos])
	}
	for _, k := range s.hiddenKeys() {
		appendRow(k.layer, kindHidden, k.position, s.hidden[k])
	}
	for _, k := range s.projKeys() {
		appendRow(k.layer, kindProjPrefix+k.name, k.position, s.projs[k])
	}
	for _, k := range s.weightKeys() {
		m := s.weights[k]
		for r := 0; r < m.Rows; r++ {
			appendRow(k.layer, kindWeightPrefix+k.name, r, m.Row(r))
		}
	}

	return b.NewRecord(), nil
}

// RecordDecoder rebuilds a snapshot from a stream of Arrow records. Weight
// rows may span records, so matrices assemble in Finish.
type RecordDecoder struct {
	snap       *Snapshot
	weightRows map[weightKey]map[int][]float32
}

// NewRecordDecoder validates the wire schema and prepares an empty
// snapshot from its metadata.
func NewRecordDecoder(schema *arrow.Schema) (*RecordDecoder, error) {
	snap, err := snapshotFromSchema(schema)
	if err != nil {
		return nil, err
	}
	return &RecordDecoder{
		snap:       snap,
		weightRows: make(map[weightKey]map[int][]float32),
	}, nil
}

// Append decodes one record's rows into the snapshot.
func (d *RecordDecoder) Append(rec arrow.Record) error {
	layers, ok := rec.Column(0).(*array.Int32)
	if !ok {
		return fmt.Errorf("layer column has type %s (want int32)", rec.Column(0).DataType())
	}
	kinds, ok := rec.Column(1).(*array.String)
	if !ok {
		return fmt.Errorf("kind column has type %s (want utf8)", rec.Column(1).DataType())
	}
	positions, ok := rec.Column(2).(*array.Int32)
	if !ok {
		return fmt.Errorf("position column has type %s (want int32)", rec.Column(2).DataType())
	}
	vectors, ok := rec.Column(3).(*array.List)
	if !ok {
		return fmt.Errorf("vector column has type %s (want list<float32>)", rec.Column(3).DataType())
	}
	values, ok := vectors.ListValues().(*array.Float32)
	if !ok {
		return fmt.Errorf("vector column child has type %s (want float32)", vectors.ListValues().DataType())
	}

	for i := 0; i < int(rec.NumRows()); i++ {
		start, end := vectors.ValueOffsets(i)
		vec := make([]float32, 0, end-start)
		for j := start; j < end; j++ {
			vec = append(vec, values.Value(int(j)))
		}

		layer := int(layers.Value(i))
		pos := int(positions.Value(i))
		kind := kinds.Value(i)

		switch {
		case kind == kindHidden:
			if err := d.snap.AddHidden(layer, pos, vec); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		case kind == kindEmbedding:
			if err := d.snap.AddEmbedding(pos, vec); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		case strings.HasPrefix(kind, kindProjPrefix):
			name := strings.TrimPrefix(kind, kindProjPrefix)
			if err := d.snap.AddProjection(layer, name, pos, vec); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		case strings.HasPrefix(kind, kindWeightPrefix):
			name := strings.TrimPrefix(kind, kindWeightPrefix)
			if !validProjection(name) {
				return fmt.Errorf("row %d: invalid weight name %q", i, name)
			}
			key := weightKey{layer, name}
			if d.weightRows[key] == nil {
				d.weightRows[key] = make(map[int][]float32)
			}
			if _, dup := d.weightRows[key][pos]; dup {
				return fmt.Errorf("row %d: duplicate weight row %d for %s layer %d", i, pos, name, layer)
			}
			d.weightRows[key][pos] = vec
		default:
			return fmt.Errorf("row %d: unknown kind %q", i, kind)
		}
	}
	return nil
}

// Finish assembles staged weight rows into matrices and returns the
// completed snapshot. Weight rows must form a dense [0, rows) range with a
// consistent width.
func (d *RecordDecoder) Finish() (*Snapshot, error) {
	for key, rows := range d.weightRows {
		cols := -1
		flat := make([]float32, 0)
		for r := 0; r < len(rows); r++ {
			vec, ok := rows[r]
			if !ok {
				return nil, fmt.Errorf("weight %s layer %d: missing row %d of %d", key.name, key.layer, r, len(rows))
			}
			if cols < 0 {
				cols = len(vec)
			} else if len(vec) != cols {
				return nil, fmt.Errorf("weight %s layer %d: row %d has %d cols (want %d)", key.name, key.layer, r, len(vec), cols)
			}
			flat = append(flat, vec...)
		}
		m, err := probe.NewMatrix(len(rows), cols, flat)
		if err != nil {
			return nil, fmt.Errorf("weight %s layer %d: %w", key.name, key.layer, err)
		}
		if err := d.snap.AddWeight(key.layer, key.name, m); err != nil {
			return nil, fmt.Errorf("weight %s layer %d: %w", key.name, key.layer, err)
		}
	}
	return d.snap, nil
}

// SaveArrow writes the snapshot as a single-record Arrow IPC file.
func (s *Snapshot) SaveArrow(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create arrow snapshot: %w", err)
	}
	defer f.Close()

	mem := memory.NewGoAllocator()
	rec, err := s.BuildRecord(mem)
	if err != nil {
		return err
	}
	defer rec.Release()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to open arrow writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	return w.Close()
}

// LoadArrow reads an Arrow IPC snapshot file.
func LoadArrow(path string) (*Snapshot, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow snapshot: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to read arrow snapshot %s: %w", path, err)
	}
	defer r.Close()

	dec, err := NewRecordDecoder(r.Schema())
	if err != nil {
		return nil, fmt.Errorf("arrow snapshot %s: %w", path, err)
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read arrow record: %w", err)
		}
		if err := dec.Append(rec); err != nil {
			return nil, fmt.Errorf("arrow snapshot %s: %w", path, err)
		}
	}

	snap, err := dec.Finish()
	if err != nil {
		return nil, fmt.Errorf("arrow snapshot %s: %w", path, err)
	}

	metrics.RecordSnapshotLoad("arrow", snap.TensorCount(), time.Since(start))
	return snap, nil
}

// Load picks the codec from the file extension: .arrow/.ipc use the Arrow
// reader, anything else is treated as JSON.
func Load(path string) (*Snapshot, error) {
	switch {
	case strings.HasSuffix(path, ".arrow"), strings.HasSuffix(path, ".ipc"):
		return LoadArrow(path)
	default:
		return LoadJSON(path)
	}
}

// Save writes the snapshot with the codec Load would pick for the path.
func (s *Snapshot) Save(path string) error {
	switch {
	case strings.HasSuffix(path, ".arrow"), strings.HasSuffix(path, ".ipc"):
		return s.SaveArrow(path)
	default:
		return s.SaveJSON(path)
	}
}

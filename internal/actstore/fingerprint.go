package actstore

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes every captured value in a fixed order. Two snapshots
// with identical contents always produce the same digest, so a changed
// fingerprint between runs means the engine's numerics moved.
func (s *Snapshot) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte

	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		d.Write(buf[:])
	}
	writeFloats := func(vals []float32) {
		for _, v := range vals {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			d.Write(buf[:4])
		}
	}

	d.WriteString(s.Model)
	d.WriteString(s.Prompt)
	writeInt(s.HiddenSize)
	writeInt(s.Layers)
	writeInt(len(s.Tokens))
	for _, t := range s.Tokens {
		writeInt(t)
	}

	d.WriteString("embeddings")
	for _, pos := range s.embedKeys() {
		writeInt(pos)
		writeFloats(s.embeds[pos])
	}

	d.WriteString("hidden")
	for _, k := range s.hiddenKeys() {
		writeInt(k.layer)
		writeInt(k.position)
		writeFloats(s.hidden[k])
	}

	d.WriteString("projections")
	for _, k := range s.projKeys() {
		writeInt(k.layer)
		d.WriteString(k.name)
		writeInt(k.position)
		writeFloats(s.projs[k])
	}

	d.WriteString("weights")
	for _, k := range s.weightKeys() {
		writeInt(k.layer)
		d.WriteString(k.name)
		m := s.weights[k]
		writeInt(m.Rows)
		writeInt(m.Cols)
		writeFloats(m.Data)
	}

	return d.Sum64()
}

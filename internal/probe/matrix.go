package probe

import "fmt"

// Matrix is a row-major projection weight. Rows is the output dimension,
// Cols the input dimension, matching the [out, in] layout checkpoint
// exporters use for linear weights.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

func NewMatrix(rows, cols int, data []float32) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid matrix shape [%d, %d]: must be positive", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("matrix data length %d does not match shape [%d, %d] (want %d)",
			len(data), rows, cols, rows*cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

func (m *Matrix) At(r, c int) float32 {
	return m.Data[r*m.Cols+c]
}

// Row returns row r without copying.
func (m *Matrix) Row(r int) []float32 {
	return m.Data[r*m.Cols : (r+1)*m.Cols]
}

// Col copies column c out of the row-major data.
func (m *Matrix) Col(c int) []float32 {
	col := make([]float32, m.Rows)
	for r := 0; r < m.Rows; r++ {
		col[r] = m.Data[r*m.Cols+c]
	}
	return col
}

// MatVec computes m @ vec, producing a vector of length Rows. Used to
// derive projection activations when a source captured weights but not the
// projected states.
func (m *Matrix) MatVec(vec []float32) ([]float32, error) {
	if len(vec) != m.Cols {
		return nil, fmt.Errorf("matvec dimension mismatch: matrix [%d, %d] with vector length %d",
			m.Rows, m.Cols, len(vec))
	}

	out := make([]float32, m.Rows)
	for r := 0; r < m.Rows; r++ {
		row := m.Data[r*m.Cols : (r+1)*m.Cols]
		var sum float32
		for c, w := range row {
			sum += w * vec[c]
		}
		out[r] = sum
	}
	return out, nil
}

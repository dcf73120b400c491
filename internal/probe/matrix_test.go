package probe

import (
	"math"
	"testing"
)

func TestNewMatrix(t *testing.T) {
	tests := []struct {
		name    string
		rows    int
		cols    int
		dataLen int
		wantErr bool
	}{
		{"valid", 2, 3, 6, false},
		{"short data", 2, 3, 5, true},
		{"long data", 2, 3, 7, true},
		{"zero rows", 0, 3, 0, true},
		{"negative cols", 2, -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatrix(tt.rows, tt.cols, make([]float32, tt.dataLen))
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMatrix(%d, %d, len %d) error = %v, wantErr %v",
					tt.rows, tt.cols, tt.dataLen, err, tt.wantErr)
			}
		})
	}
}

func TestMatrixAccessors(t *testing.T) {
	// 2x3: [1 2 3; 4 5 6]
	m, err := NewMatrix(2, 3, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}

	if got := m.At(1, 2); got != 6 {
		t.Errorf("At(1,2) = %v, want 6", got)
	}

	row := m.Row(1)
	if len(row) != 3 || row[0] != 4 || row[2] != 6 {
		t.Errorf("Row(1) = %v, want [4 5 6]", row)
	}

	col := m.Col(1)
	if len(col) != 2 || col[0] != 2 || col[1] != 5 {
		t.Errorf("Col(1) = %v, want [2 5]", col)
	}
}

func TestMatVec(t *testing.T) {
	// [1 2; 3 4] @ [1, 1] = [3, 7]
	m, err := NewMatrix(2, 2, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}

	out, err := m.MatVec([]float32{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 3 || out[1] != 7 {
		t.Errorf("MatVec = %v, want [3 7]", out)
	}

	if _, err := m.MatVec([]float32{1, 2, 3}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMatVecAgainstManualSum(t *testing.T) {
	const rows, cols = 7, 13
	data := make([]float32, rows*cols)
	vec := make([]float32, cols)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) * 0.3))
	}
	for i := range vec {
		vec[i] = float32(math.Cos(float64(i) * 0.7))
	}

	m, err := NewMatrix(rows, cols, data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.MatVec(vec)
	if err != nil {
		t.Fatal(err)
	}

	for r := 0; r < rows; r++ {
		var want float32
		for c := 0; c < cols; c++ {
			want += m.At(r, c) * vec[c]
		}
		if math.Abs(float64(out[r]-want)) > 1e-5 {
			t.Errorf("out[%d] = %v, want %v", r, out[r], want)
		}
	}
}

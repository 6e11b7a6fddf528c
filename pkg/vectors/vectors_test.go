package vectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCentroid(t *testing.T) {
	got := Centroid([][]float32{{1, 3}, {3, 5}})
	assert.InDeltaSlice(t, []float64{2, 4}, got, 1e-9)

	assert.Nil(t, Centroid(nil))
	assert.Nil(t, Centroid([][]float32{{}}))

	// rows with a different dimension are ignored
	got = Centroid([][]float32{{2, 2}, {1, 2, 3}})
	assert.InDeltaSlice(t, []float64{2, 2}, got, 1e-9)
}

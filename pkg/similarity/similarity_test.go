package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: -1.0,
		},
		{
			name:     "known partial similarity",
			a:        []float32{1, 0},
			b:        []float32{0.6, 0.8},
			expected: 0.6,
		},
		{
			name:     "magnitude independent",
			a:        []float32{1, 1},
			b:        []float32{10, 10},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-6)
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
	}{
		{name: "unequal lengths", a: []float32{1, 2}, b: []float32{1, 2, 3}},
		{name: "empty first", a: nil, b: []float32{1}},
		{name: "empty second", a: []float32{1}, b: nil},
		{name: "both empty", a: nil, b: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cosine(tt.a, tt.b)
			require.Error(t, err)
			var mismatch *DimensionMismatchError
			assert.ErrorAs(t, err, &mismatch)
		})
	}
}

func TestCosineZeroVector(t *testing.T) {
	got, err := Cosine([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 1.0, Clamp01(1.0000001))
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 0.5, Clamp01(0.5))
	assert.Equal(t, 1.0, Clamp01(math.Nextafter(1, 2)))
}

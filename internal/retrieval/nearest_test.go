package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indices(ms []Match) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.Index
	}

	return out
}

func TestNearestEuclidean(t *testing.T) {
	target := []float64{50, 50, 50, 50, 50, 50}
	candidates := [][]float64{
		{0, 0, 0, 0, 0, 0},
		{50, 50, 50, 50, 50, 51},
		{50, 50, 50, 50, 50, 49},
		{60, 50, 50, 50, 50, 50},
		{50, 50, 50, 50, 50, 50},
	}

	got := NearestEuclidean(target, candidates, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []int{4, 1, 2}, indices(got), "ties keep input order")
	assert.InDelta(t, 0, got[0].Distance, 1e-12)
	assert.InDelta(t, 1, got[1].Distance, 1e-12)

	all := NearestEuclidean(target, candidates, 100)
	assert.Equal(t, []int{4, 1, 2, 3, 0}, indices(all))

	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Distance, all[i].Distance)
	}
}

func TestNearestEuclidean_DimensionMismatchRanksLast(t *testing.T) {
	got := NearestEuclidean([]float64{1, 1}, [][]float64{{1}, {100, 100}}, 2)

	assert.Equal(t, []int{1, 0}, indices(got))
	assert.True(t, math.IsInf(got[1].Distance, 1))
}

func TestNearestCosine(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{-1, 0},
		{0, 1},
		{2, 0},
		{0, 0},
		{1, 1},
	}

	got := NearestCosine(query, candidates, 10)
	assert.Equal(t, []int{2, 4, 1, 3, 0}, indices(got), "zero vector ties with orthogonal and keeps order")
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
	assert.InDelta(t, 2, got[4].Distance, 1e-6)
}

func TestNearest_EmptyAndZeroK(t *testing.T) {
	got := NearestCosine([]float32{1}, nil, 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, NearestEuclidean([]float64{1}, [][]float64{{1}}, 0))
}

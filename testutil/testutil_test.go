package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/model"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	for _, vec := range rng.UnitVectors(8, 32) {
		assert.InDelta(t, 1.0, distance.Norm(vec), 1e-5)
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)
	w1 := rng.Words([]string{"a", "b", "c"}, 5)

	rng.Reset()
	v2 := rng.UniformVectors(1, 10)
	w2 := rng.Words([]string{"a", "b", "c"}, 5)

	assert.Equal(t, v1, v2)
	assert.Equal(t, w1, w2)
}

func TestBruteForceSearchTieBreak(t *testing.T) {
	data := [][]float32{{1, 0}, {0, 1}, {1, 0}}
	hits := BruteForceSearch(data, []float32{1, 0}, 2, distance.SquaredL2)
	assert.Equal(t, []model.Hit{{Ordinal: 0}, {Ordinal: 2}}, hits)
}

func TestComputeRecall(t *testing.T) {
	truth := []model.Hit{{Ordinal: 1}, {Ordinal: 2}}
	assert.Equal(t, 0.5, ComputeRecall(truth, []model.Hit{{Ordinal: 1}, {Ordinal: 3}}))
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))
}

func TestScriptedEncoder(t *testing.T) {
	ctx := context.Background()
	enc := NewScriptedEncoder(3).Set("hello", []float32{1, 2, 3}).Fail("boom", nil)

	v, err := enc.Encode(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)

	_, err = enc.Encode(ctx, "boom")
	require.ErrorIs(t, err, ErrScripted)

	v, err = enc.Encode(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Equal(t, int64(3), enc.Calls())
}

func TestReviewIsValid(t *testing.T) {
	for i := range 10 {
		require.NoError(t, Review(i).Validate())
	}
}

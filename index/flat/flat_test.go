package flat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/index"
	"github.com/hupe1980/reviewdb/model"
	"github.com/hupe1980/reviewdb/testutil"
)

func TestSearch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		metric distance.Metric
		query  []float32
		want   []model.Ordinal
	}{
		{"L2", distance.MetricL2, []float32{1, 0.1}, []model.Ordinal{1, 2, 0}},
		{"Cosine", distance.MetricCosine, []float32{0, 5}, []model.Ordinal{2, 0, 1}},
		{"Dot", distance.MetricDot, []float32{1, 1}, []model.Ordinal{0, 1, 2}},
	}

	vecs := [][]float32{{2, 2}, {1, 0}, {0, 1}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := New(2, tt.metric)
			require.NoError(t, err)
			for i, v := range vecs {
				require.NoError(t, idx.Add(model.Ordinal(i), v))
			}

			hits, err := idx.Search(ctx, tt.query, 3, 3)
			require.NoError(t, err)
			got := make([]model.Ordinal, len(hits))
			for i, h := range hits {
				got[i] = h.Ordinal
			}
			assert.Equal(t, tt.want, got)
			for i := 1; i < len(hits); i++ {
				assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
			}
		})
	}
}

func TestBoundaries(t *testing.T) {
	ctx := context.Background()
	idx, err := New(3, distance.MetricCosine)
	require.NoError(t, err)

	t.Run("Empty", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0, 0}, 5, 100)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	rng := testutil.NewRNG(1)
	for i, v := range rng.UniformVectors(4, 3) {
		require.NoError(t, idx.Add(model.Ordinal(i), v))
	}

	t.Run("KLargerThanCount", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, 4)
		require.NoError(t, err)
		assert.Len(t, hits, 4)
	})

	t.Run("LimitHidesLaterOrdinals", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Less(t, uint64(h.Ordinal), uint64(2))
		}
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := idx.Search(ctx, []float32{1, 0, 0}, 0, 4)
		require.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := idx.Search(ctx, []float32{1, 0}, 1, 4)
		var dm *model.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
	})

	t.Run("OutOfOrderAdd", func(t *testing.T) {
		require.ErrorIs(t, idx.Add(9, []float32{1, 1, 1}), index.ErrOutOfOrder)
	})

	t.Run("Canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := idx.Search(cctx, []float32{1, 0, 0}, 1, 4)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestTiesPreferLowerOrdinal(t *testing.T) {
	idx, err := New(2, distance.MetricCosine)
	require.NoError(t, err)
	for i := range 6 {
		require.NoError(t, idx.Add(model.Ordinal(i), []float32{1, 1}))
	}

	hits, err := idx.Search(context.Background(), []float32{1, 1}, 3, 6)
	require.NoError(t, err)
	assert.Equal(t, []model.Ordinal{0, 1, 2}, []model.Ordinal{hits[0].Ordinal, hits[1].Ordinal, hits[2].Ordinal})
}

func TestZeroVectorCosine(t *testing.T) {
	idx, err := New(2, distance.MetricCosine)
	require.NoError(t, err)
	require.NoError(t, idx.Add(0, []float32{0, 0}))
	require.NoError(t, idx.Add(1, []float32{1, 0}))

	hits, err := idx.Search(context.Background(), []float32{0, 0}, 2, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, float32(1), hits[0].Distance)
	assert.Equal(t, model.Ordinal(0), hits[0].Ordinal)
}

func TestViewIsStable(t *testing.T) {
	idx, err := New(2, distance.MetricL2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(0, []float32{1, 2}))

	v := idx.View()
	require.NoError(t, idx.Add(1, []float32{3, 4}))

	assert.Equal(t, 1, v.Len())
	assert.Equal(t, []float32{1, 2}, v.Vector(0))
	assert.Equal(t, 2, idx.Len())
}

func TestUnknownMetric(t *testing.T) {
	_, err := New(2, distance.Metric(42))
	require.Error(t, err)
}

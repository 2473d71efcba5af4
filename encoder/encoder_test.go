package encoder

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewdb/distance"
)

func TestHashing(t *testing.T) {
	ctx := context.Background()
	enc := NewHashing(256)

	t.Run("Deterministic", func(t *testing.T) {
		a, err := enc.Encode(ctx, "Great phone, long battery")
		require.NoError(t, err)
		b, err := enc.Encode(ctx, "Great phone, long battery")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 256)
	})

	t.Run("EmptyIsZero", func(t *testing.T) {
		for _, text := range []string{"", "  ", "!!!"} {
			v, err := enc.Encode(ctx, text)
			require.NoError(t, err)
			require.Len(t, v, 256)
			assert.Zero(t, distance.Norm(v))
		}
	})

	t.Run("Normalized", func(t *testing.T) {
		v, err := enc.Encode(ctx, "battery life")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, distance.Norm(v), 1e-5)
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		a, _ := enc.Encode(ctx, "Battery LIFE")
		b, _ := enc.Encode(ctx, "battery life")
		assert.Equal(t, a, b)
	})

	t.Run("SharedWordsAreCloser", func(t *testing.T) {
		big := NewHashing(1024)
		q, _ := big.Encode(ctx, "battery life")
		near, _ := big.Encode(ctx, "Great battery life overall")
		far, _ := big.Encode(ctx, "Terrible screen resolution")
		assert.Less(t, distance.CosineDistance(q, near), distance.CosineDistance(q, far))
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"café", "5g", "ok"}, Tokenize("Café, 5G... OK"))
	assert.Empty(t, Tokenize(" - "))
}

func TestChecked(t *testing.T) {
	ctx := context.Background()

	t.Run("WrongLength", func(t *testing.T) {
		enc := NewChecked(FromFunc(3, func(context.Context, string) ([]float32, error) {
			return []float32{1, 2}, nil
		}))
		_, err := enc.Encode(ctx, "x")
		require.ErrorIs(t, err, ErrEncodingFailed)
	})

	t.Run("NotFinite", func(t *testing.T) {
		for _, bad := range []float32{float32(math.NaN()), float32(math.Inf(1))} {
			enc := NewChecked(FromFunc(2, func(context.Context, string) ([]float32, error) {
				return []float32{0, bad}, nil
			}))
			_, err := enc.Encode(ctx, "x")
			require.ErrorIs(t, err, ErrEncodingFailed)
		}
	})

	t.Run("WrapsInnerError", func(t *testing.T) {
		boom := errors.New("model offline")
		enc := NewChecked(FromFunc(2, func(context.Context, string) ([]float32, error) {
			return nil, boom
		}))
		_, err := enc.Encode(ctx, "x")
		require.ErrorIs(t, err, ErrEncodingFailed)
		require.ErrorIs(t, err, boom)
	})

	t.Run("Idempotent", func(t *testing.T) {
		c := NewChecked(NewHashing(8))
		assert.Same(t, c, NewChecked(c))
		assert.Equal(t, 8, c.Dimension())
	})

	t.Run("BatchValidatesEachVector", func(t *testing.T) {
		enc := NewChecked(FromFunc(2, func(_ context.Context, text string) ([]float32, error) {
			if text == "bad" {
				return []float32{1}, nil
			}
			return []float32{1, 0}, nil
		}))
		_, err := enc.EncodeBatch(ctx, []string{"a", "bad", "c"})
		require.ErrorIs(t, err, ErrEncodingFailed)

		var te *TextError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 1, te.Index)
	})
}

func TestEncodeAll(t *testing.T) {
	ctx := context.Background()

	t.Run("PreservesOrder", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		enc := FromFunc(1, func(_ context.Context, text string) ([]float32, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			f, err := strconv.Atoi(text)
			return []float32{float32(f)}, err
		})

		texts := make([]string, 50)
		for i := range texts {
			texts[i] = strconv.Itoa(i)
		}
		vecs, err := EncodeAll(ctx, enc, texts, 3)
		require.NoError(t, err)
		for i, v := range vecs {
			assert.Equal(t, float32(i), v[0])
		}
		assert.LessOrEqual(t, peak.Load(), int32(3))
	})

	t.Run("ReportsFailingIndex", func(t *testing.T) {
		enc := FromFunc(1, func(_ context.Context, text string) ([]float32, error) {
			if text == "x" {
				return nil, errors.New("nope")
			}
			return []float32{0}, nil
		})
		_, err := EncodeAll(ctx, enc, []string{"a", "b", "x"}, 1)
		var te *TextError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 2, te.Index)
	})

	t.Run("UsesBatchEncoder", func(t *testing.T) {
		vecs, err := EncodeAll(ctx, NewHashing(4), []string{"a", "b"}, 1)
		require.NoError(t, err)
		assert.Len(t, vecs, 2)
	})

	t.Run("Empty", func(t *testing.T) {
		vecs, err := EncodeAll(ctx, NewHashing(4), nil, 1)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})
}

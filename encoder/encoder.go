package encoder

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrEncodingFailed is returned when text cannot be turned into a vector of
// the configured dimension.
var ErrEncodingFailed = errors.New("encoding failed")

// Encoder converts text into a fixed-dimension float32 vector.
type Encoder interface {
	// Encode returns the embedding of text. len(result) == Dimension().
	Encode(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed output length.
	Dimension() int
}

// BatchEncoder is implemented by encoders that can encode many texts in one
// call, typically one remote request.
type BatchEncoder interface {
	Encoder

	// EncodeBatch returns one vector per text, in input order.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// TextError reports which text of a batch failed to encode.
type TextError struct {
	Index int
	Err   error
}

func (e *TextError) Error() string {
	return fmt.Sprintf("text %d: %v", e.Index, e.Err)
}

func (e *TextError) Unwrap() error {
	return e.Err
}

// EncodeAll encodes texts in input order.
//
// A BatchEncoder receives a single EncodeBatch call. Any other encoder is
// called concurrently with at most parallelism calls in flight; the first
// failure cancels the rest and is returned as a *TextError.
func EncodeAll(ctx context.Context, enc Encoder, texts []string, parallelism int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if be, ok := enc.(BatchEncoder); ok {
		vecs, err := be.EncodeBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEncodingFailed, len(vecs), len(texts))
		}
		return vecs, nil
	}

	if parallelism <= 0 {
		parallelism = 1
	}

	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, text := range texts {
		g.Go(func() error {
			v, err := enc.Encode(gctx, text)
			if err != nil {
				return &TextError{Index: i, Err: err}
			}
			vecs[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

// FuncEncoder adapts a plain function to the Encoder interface.
type FuncEncoder struct {
	fn  func(ctx context.Context, text string) ([]float32, error)
	dim int
}

// FromFunc returns an Encoder of dimension dim backed by fn.
// fn must be deterministic.
func FromFunc(dim int, fn func(ctx context.Context, text string) ([]float32, error)) *FuncEncoder {
	return &FuncEncoder{fn: fn, dim: dim}
}

// Encode calls the wrapped function.
func (f *FuncEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	return f.fn(ctx, text)
}

// Dimension returns the configured dimension.
func (f *FuncEncoder) Dimension() int { return f.dim }

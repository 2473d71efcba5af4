package encoder

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// CheckedOptions configures a Checked encoder.
type CheckedOptions struct {
	// Parallelism bounds concurrent Encode calls in EncodeBatch when the
	// wrapped encoder has no batch support.
	Parallelism int
}

// DefaultCheckedOptions contains the default options.
var DefaultCheckedOptions = CheckedOptions{
	Parallelism: 4,
}

// Checked wraps an Encoder and enforces its contract: every vector has
// exactly Dimension() finite components and every failure is reported as
// ErrEncodingFailed.
type Checked struct {
	inner Encoder
	dim   int
	opts  CheckedOptions
}

// NewChecked wraps enc. Wrapping a *Checked again returns it unchanged.
func NewChecked(enc Encoder, optFns ...func(o *CheckedOptions)) *Checked {
	if c, ok := enc.(*Checked); ok && len(optFns) == 0 {
		return c
	}

	opts := DefaultCheckedOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Checked{inner: enc, dim: enc.Dimension(), opts: opts}
}

// Unwrap returns the wrapped encoder.
func (c *Checked) Unwrap() Encoder { return c.inner }

// Dimension returns the dimension of the wrapped encoder.
func (c *Checked) Dimension() int { return c.dim }

// Encode encodes text and validates the result.
func (c *Checked) Encode(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.inner.Encode(ctx, text)
	if err != nil {
		return nil, asEncodingFailed(err)
	}
	if err := c.validate(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EncodeBatch encodes texts in input order and validates every result.
func (c *Checked) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := EncodeAll(ctx, c.inner, texts, c.opts.Parallelism)
	if err != nil {
		return nil, asEncodingFailed(err)
	}
	for i, v := range vecs {
		if err := c.validate(v); err != nil {
			return nil, &TextError{Index: i, Err: err}
		}
	}
	return vecs, nil
}

func (c *Checked) validate(vec []float32) error {
	if len(vec) != c.dim {
		return fmt.Errorf("%w: expected %d components, got %d", ErrEncodingFailed, c.dim, len(vec))
	}
	for i, x := range vec {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrEncodingFailed, i)
		}
	}
	return nil
}

func asEncodingFailed(err error) error {
	if errors.Is(err, ErrEncodingFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEncodingFailed, err)
}

package encoder

import (
	"context"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/reviewdb/distance"
)

// Hashing is a deterministic feature-hashing encoder.
//
// Text is split into lower-cased runs of letters and digits. Each token is
// hashed with xxhash into one of Dimension() buckets with a sign taken from
// the hash, and the resulting vector is L2-normalized. Texts without tokens
// encode to the zero vector. Texts that share words end up close under
// cosine distance.
type Hashing struct {
	dim int
}

// NewHashing returns a Hashing encoder with the given dimension.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		panic("encoder: hashing dimension must be positive")
	}
	return &Hashing{dim: dim}
}

// Dimension returns the output dimension.
func (h *Hashing) Dimension() int { return h.dim }

// Encode hashes the tokens of text into a normalized vector.
func (h *Hashing) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dim)
	for _, tok := range Tokenize(text) {
		sum := xxhash.Sum64String(tok)
		bucket := sum % uint64(h.dim)
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	distance.NormalizeL2InPlace(vec)
	return vec, nil
}

// EncodeBatch encodes every text sequentially.
func (h *Hashing) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Tokenize splits text into lower-cased runs of letters and digits.
func Tokenize(text string) []string {
	var (
		tokens []string
		cur    []rune
	)
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur = append(cur, unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return tokens
}

package testutil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/reviewdb/model"
)

// ErrScripted is returned by ScriptedEncoder for texts registered with Fail.
var ErrScripted = errors.New("scripted encoder failure")

// ScriptedEncoder returns preset vectors for chosen texts and a fallback for
// everything else. It is deterministic and safe for concurrent use.
type ScriptedEncoder struct {
	dim   int
	mu    sync.RWMutex
	vecs  map[string][]float32
	fails map[string]error
	calls atomic.Int64
}

// NewScriptedEncoder creates an encoder of dimension dim.
func NewScriptedEncoder(dim int) *ScriptedEncoder {
	return &ScriptedEncoder{
		dim:   dim,
		vecs:  make(map[string][]float32),
		fails: make(map[string]error),
	}
}

// Set makes text encode to vec.
func (s *ScriptedEncoder) Set(text string, vec []float32) *ScriptedEncoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vecs[text] = slices.Clone(vec)
	return s
}

// SetRecord makes rec.Text() encode to vec.
func (s *ScriptedEncoder) SetRecord(rec model.Record, vec []float32) *ScriptedEncoder {
	return s.Set(rec.Text(), vec)
}

// Fail makes text fail to encode with err, or ErrScripted when err is nil.
func (s *ScriptedEncoder) Fail(text string, err error) *ScriptedEncoder {
	if err == nil {
		err = ErrScripted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[text] = err
	return s
}

// Calls returns the number of Encode calls so far.
func (s *ScriptedEncoder) Calls() int64 {
	return s.calls.Load()
}

// Dimension returns the configured dimension.
func (s *ScriptedEncoder) Dimension() int { return s.dim }

// Encode returns the scripted vector for text. Unknown texts encode to a
// vector derived from their length so results stay deterministic.
func (s *ScriptedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.fails[text]; ok {
		return nil, fmt.Errorf("%q: %w", text, err)
	}
	if v, ok := s.vecs[text]; ok {
		return slices.Clone(v), nil
	}

	v := make([]float32, s.dim)
	v[len(text)%s.dim] = 1
	return v, nil
}

// Review returns a deterministic valid record for tests.
func Review(i int) model.Record {
	return model.Record{
		Title:     fmt.Sprintf("Review %d", i),
		Body:      fmt.Sprintf("Body of review number %d", i),
		ProductID: fmt.Sprintf("P-%04d", i),
		Rating:    uint8(i%model.MaxRating + 1),
	}
}

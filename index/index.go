package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/model"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrOutOfOrder is returned by Add when ordinals are not dense and
	// ascending.
	ErrOutOfOrder = errors.New("ordinal out of order")
)

// SimilarityIndex ranks stored vectors by distance to a query.
type SimilarityIndex interface {
	// Add stores vec under ord. Ordinals must be added as 0, 1, 2, ...
	Add(ord model.Ordinal, vec []float32) error

	// Search returns at most k hits, closest first, among ordinals < limit.
	Search(ctx context.Context, query []float32, k int, limit uint64) ([]model.Hit, error)

	// Len returns the number of stored vectors.
	Len() int

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Metric returns the distance metric.
	Metric() distance.Metric
}

// Factory creates an empty index.
type Factory func(dim int, metric distance.Metric) (SimilarityIndex, error)

// ValidateSearch checks the arguments shared by all Search implementations.
func ValidateSearch(query []float32, k, dim int) error {
	if k <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	return model.CheckDimension(query, dim)
}

// ValidateAdd checks the arguments shared by all Add implementations.
func ValidateAdd(ord model.Ordinal, vec []float32, dim, size int) error {
	if err := model.CheckDimension(vec, dim); err != nil {
		return err
	}
	if uint64(ord) != uint64(size) {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, ord, size)
	}
	return nil
}

package model

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidRecord is returned when a record fails validation.
var ErrInvalidRecord = errors.New("invalid record")

// MinRating and MaxRating bound Record.Rating.
const (
	MinRating = 1
	MaxRating = 5
)

// Ordinal is the zero-based append position of a record in both logs.
type Ordinal uint64

// String returns the decimal representation of the ordinal.
func (o Ordinal) String() string {
	return strconv.FormatUint(uint64(o), 10)
}

// Record is a single product review.
//
// The JSON field names are the on-disk line format of the metadata log.
type Record struct {
	Title     string `json:"review_title"`
	Body      string `json:"review_body"`
	ProductID string `json:"product_id"`
	Rating    uint8  `json:"review_rating"`
}

// Text returns the canonical encoder input for the record.
func (r Record) Text() string {
	return r.Title + " " + r.Body
}

// Validate checks the record before it is written.
func (r Record) Validate() error {
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("%w: rating %d out of range [%d, %d]", ErrInvalidRecord, r.Rating, MinRating, MaxRating)
	}
	return nil
}

// Hit is a ranked match returned by a similarity index.
// Lower Distance is closer.
type Hit struct {
	Ordinal  Ordinal
	Distance float32
}

// ErrDimensionMismatch indicates a vector whose length differs from the
// dimension fixed for a store.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// CheckDimension returns an *ErrDimensionMismatch if len(vec) != dim.
func CheckDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(vec)}
	}
	return nil
}

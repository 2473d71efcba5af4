package reviewdb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/reviewdb/encoder"
	"github.com/hupe1980/reviewdb/index"
	"github.com/hupe1980/reviewdb/metalog"
	"github.com/hupe1980/reviewdb/model"
	"github.com/hupe1980/reviewdb/vectorlog"
)

var (
	// ErrStorageUnavailable is returned by Open when a log cannot be opened
	// or created.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrWriteFailed is returned when an append could not complete. The
	// store is left consistent: neither half of the record is visible.
	ErrWriteFailed = errors.New("write failed")

	// ErrEncodingFailed is returned when the encoder fails. Nothing was
	// written.
	ErrEncodingFailed = encoder.ErrEncodingFailed

	// ErrMalformedRecord marks a stored metadata line that cannot be decoded.
	ErrMalformedRecord = metalog.ErrMalformedRecord

	// ErrInvalidK is returned by indexes for k <= 0. DB.Search maps such k
	// to the configured default instead.
	ErrInvalidK = index.ErrInvalidK

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = model.ErrInvalidRecord

	// ErrClosed is returned when the DB is used after Close.
	ErrClosed = errors.New("db closed")

	// ErrPoisoned is wrapped into ErrWriteFailed once a rollback failed.
	// The DB refuses further writes until it is reopened.
	ErrPoisoned = errors.New("logs out of step after failed rollback, reopen to recover")
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// store's dimension.
type ErrDimensionMismatch = model.ErrDimensionMismatch

// BatchError reports the record at which InsertMany stopped.
type BatchError struct {
	// Index is the position in the input slice of the failing record.
	Index int
	// Succeeded is the number of records written before it.
	Succeeded int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch stopped at record %d after %d written: %v", e.Index, e.Succeeded, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// translateError normalises errors from the sub-packages to the root
// sentinels, keeping the original in the chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrWriteFailed),
		errors.Is(err, ErrEncodingFailed),
		errors.Is(err, ErrClosed):
		return err
	case errors.Is(err, vectorlog.ErrClosed), errors.Is(err, metalog.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, vectorlog.ErrBroken), errors.Is(err, metalog.ErrBroken):
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return err
}

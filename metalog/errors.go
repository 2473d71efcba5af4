package metalog

import (
	"errors"
	"fmt"

	"github.com/hupe1980/reviewdb/model"
)

var (
	// ErrMalformedRecord is wrapped by every ParseError.
	ErrMalformedRecord = errors.New("metalog: malformed record")
	// ErrClosed is returned when the log is used after Close.
	ErrClosed = errors.New("metalog: closed")
	// ErrOutOfRange is returned for ordinals at or beyond Count.
	ErrOutOfRange = errors.New("metalog: ordinal out of range")
	// ErrBroken is returned by writes after a failed write could not be
	// undone. Reopening the log recovers it.
	ErrBroken = errors.New("metalog: log broken by failed rollback")
)

// ParseError reports a stored line that does not decode to a valid record.
// It is not fatal: readers skip the line and continue.
type ParseError struct {
	Ordinal model.Ordinal
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("metalog: malformed record %d: %v", e.Ordinal, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}

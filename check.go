package reviewdb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/reviewdb/metalog"
	"github.com/hupe1980/reviewdb/model"
)

// CheckReport is the result of Check.
type CheckReport struct {
	// Count is the number of committed records when the check started.
	Count uint64
	// Checked is the number of pairs whose record could be re-encoded.
	Checked uint64
	// Malformed holds ordinals whose metadata line cannot be decoded.
	Malformed *roaring64.Bitmap
	// Mismatched holds ordinals whose stored vector differs from the
	// re-encoded record.
	Mismatched *roaring64.Bitmap
}

// OK reports whether every pair is intact.
func (r *CheckReport) OK() bool {
	return r.Malformed.IsEmpty() && r.Mismatched.IsEmpty()
}

// Check re-encodes every committed record and compares the result bit for
// bit with the stored vector. The encoder must be deterministic.
func (db *DB) Check(ctx context.Context) (*CheckReport, error) {
	db.lifecycle.RLock()
	defer db.lifecycle.RUnlock()
	if db.closed.Load() {
		return nil, ErrClosed
	}

	n := db.committed.Load()
	report := &CheckReport{
		Count:      n,
		Malformed:  roaring64.New(),
		Mismatched: roaring64.New(),
	}

	next, stop := iter.Pull(db.records.All(n))
	defer stop()

	err := db.vectors.Scan(n, func(ord model.Ordinal, stored []float32) error {
		e, ok := next()
		if !ok {
			return fmt.Errorf("reviewdb: metadata log ended before record %d", ord)
		}
		if e.Err != nil {
			var pe *metalog.ParseError
			if errors.As(e.Err, &pe) {
				report.Malformed.Add(uint64(ord))
				return nil
			}
			return e.Err
		}

		vec, err := db.enc.Encode(ctx, e.Record.Text())
		if err != nil {
			return fmt.Errorf("reviewdb: re-encode record %d: %w", ord, err)
		}
		report.Checked++
		if !sameBits(vec, stored) {
			report.Mismatched.Add(uint64(ord))
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err)
	}
	return report, nil
}

func sameBits(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

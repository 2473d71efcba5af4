package benchmark_test

import (
	"context"
	"testing"

	"github.com/hupe1980/reviewdb"
	"github.com/hupe1980/reviewdb/encoder"
	"github.com/hupe1980/reviewdb/model"
	"github.com/hupe1980/reviewdb/testutil"
)

// ============================================================================
// Benchmark Configuration
// ============================================================================

// Standard dimensions used across benchmarks for consistency.
const (
	dimSmall  = 128  // Fast CI benchmarks
	dimMedium = 512  // Hashing encoder default
	dimLarge  = 1536 // OpenAI text-embedding-3-small
)

// Standard dataset sizes.
const (
	sizeSmall  = 1_000  // Quick iteration
	sizeMedium = 10_000 // Default CI
)

// Seed for deterministic benchmarks - enables reproducible comparisons.
const benchSeed = 42

var vocab = []string{
	"battery", "screen", "sound", "quality", "shipping", "fast", "slow",
	"broken", "great", "terrible", "price", "value", "charger", "cable",
	"case", "fits", "returned", "refund", "works", "perfect", "cheap",
	"sturdy", "heavy", "light", "bright", "dim", "loud", "quiet",
}

// ============================================================================
// Benchmark Helpers
// ============================================================================

// OpenBenchDB opens a DB with the hashing encoder in a temp dir.
func OpenBenchDB(b *testing.B, dim int, opts ...reviewdb.Option) *reviewdb.DB {
	b.Helper()
	db, err := reviewdb.Open(context.Background(), b.TempDir(), encoder.NewHashing(dim), opts...)
	if err != nil {
		b.Fatalf("failed to open db: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })
	return db
}

// GenerateReviews returns n records with random words from a small vocabulary.
func GenerateReviews(n int) []model.Record {
	rng := testutil.NewRNG(benchSeed)
	recs := make([]model.Record, n)
	for i := range recs {
		recs[i] = testutil.Review(i)
		recs[i].Title = rng.Words(vocab, 3)
		recs[i].Body = rng.Words(vocab, 20)
	}
	return recs
}

// GenerateQueries returns n query strings, seeded differently from the data.
func GenerateQueries(n int) []string {
	rng := testutil.NewRNG(benchSeed + 1)
	qs := make([]string, n)
	for i := range qs {
		qs[i] = rng.Words(vocab, 4)
	}
	return qs
}

// LoadBenchDB fills db with n generated reviews.
func LoadBenchDB(b *testing.B, db *reviewdb.DB, n int) {
	b.Helper()
	if _, err := db.InsertMany(context.Background(), GenerateReviews(n)); err != nil {
		b.Fatalf("failed to load db: %v", err)
	}
}

package reviewdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/encoder"
	"github.com/hupe1980/reviewdb/index"
	"github.com/hupe1980/reviewdb/metalog"
	"github.com/hupe1980/reviewdb/model"
	"github.com/hupe1980/reviewdb/vectorlog"
)

// File names inside the data directory.
const (
	VectorLogFile   = "reviews.index"
	MetadataLogFile = "reviews.jsonl"
)

// Record is a stored review.
type Record = model.Record

// Ordinal is the zero-based append position of a record.
type Ordinal = model.Ordinal

// Result is one ranked search match.
type Result struct {
	Ordinal  model.Ordinal
	Distance float32
	Record   model.Record
}

// SearchResult holds the matches of a search in rank order.
type SearchResult struct {
	Hits []Result
	// Skipped lists, in rank order, matches whose metadata line was
	// malformed and could not be returned.
	Skipped []model.Ordinal
}

// DB is an append-only store of records and their embeddings.
//
// For every ordinal below Count the vector log holds the embedding of the
// metadata log's record. Writers are serialised; readers never block writers
// and only observe fully written pairs.
type DB struct {
	dir     string
	enc     *encoder.Checked
	vectors *vectorlog.Log
	records *metalog.Log
	idx     index.SimilarityIndex
	opts    options
	logger  *Logger

	// lifecycle is held shared by every operation touching the logs and
	// exclusively by Close.
	lifecycle sync.RWMutex
	closed    atomic.Bool

	writeMu  sync.Mutex
	poisoned error // guarded by writeMu

	committed atomic.Uint64
}

// Open opens or creates the store in dir.
//
// Both logs are recovered: torn tails are cut off and the longer log is
// truncated to the shorter one, so every remaining ordinal is a complete
// pair. The similarity index is rebuilt from the vector log.
func Open(ctx context.Context, dir string, enc encoder.Encoder, optFns ...Option) (*DB, error) {
	if enc == nil {
		return nil, errors.New("reviewdb: encoder is required")
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	checked := encoder.NewChecked(enc, func(o *encoder.CheckedOptions) {
		o.Parallelism = opts.parallelism
	})
	dim := checked.Dimension()
	if dim <= 0 {
		return nil, fmt.Errorf("reviewdb: encoder dimension must be positive, got %d", dim)
	}

	vectors, err := vectorlog.Open(filepath.Join(dir, VectorLogFile), dim, func(o *vectorlog.Options) {
		o.FS = opts.fs
		o.Durability = vectorDurability(opts.durability)
	})
	if err != nil {
		return nil, storageError(err)
	}

	records, err := metalog.Open(filepath.Join(dir, MetadataLogFile), func(o *metalog.Options) {
		o.FS = opts.fs
		o.Codec = opts.codec
		o.Durability = metaDurability(opts.durability)
	})
	if err != nil {
		_ = vectors.Close()
		return nil, storageError(err)
	}

	db := &DB{
		dir:     dir,
		enc:     checked,
		vectors: vectors,
		records: records,
		opts:    opts,
		logger:  opts.logger.WithDir(dir),
	}

	if err := db.recover(ctx); err != nil {
		_ = db.closeLogs()
		return nil, err
	}
	return db, nil
}

func storageError(err error) error {
	var dm *model.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func vectorDurability(d Durability) vectorlog.DurabilityMode {
	if d == DurabilitySync {
		return vectorlog.DurabilitySync
	}
	return vectorlog.DurabilityAsync
}

func metaDurability(d Durability) metalog.DurabilityMode {
	if d == DurabilitySync {
		return metalog.DurabilitySync
	}
	return metalog.DurabilityAsync
}

// recover aligns both logs and rebuilds the index.
func (db *DB) recover(ctx context.Context) error {
	if r := db.vectors.Recovered(); r.DroppedBytes > 0 || r.Reason != "" {
		db.logger.LogRecovery(ctx, VectorLogFile, r.DroppedBytes, r.Reason)
	}
	if r := db.records.Recovered(); r.DroppedBytes > 0 || r.Reason != "" {
		db.logger.LogRecovery(ctx, MetadataLogFile, r.DroppedBytes, r.Reason)
	}

	nv, nr := db.vectors.Count(), db.records.Count()
	n := min(nv, nr)
	if nv != nr {
		if err := db.vectors.Truncate(n); err != nil {
			return storageError(err)
		}
		if err := db.records.Truncate(n); err != nil {
			return storageError(err)
		}
		db.logger.LogRealign(ctx, nv, nr, n)
	}

	idx, err := db.opts.indexFactory(db.enc.Dimension(), db.opts.metric)
	if err != nil {
		return fmt.Errorf("reviewdb: create index: %w", err)
	}

	err = db.vectors.Scan(n, func(ord model.Ordinal, vec []float32) error {
		if ord%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return idx.Add(ord, vec)
	})
	if err != nil {
		return fmt.Errorf("reviewdb: rebuild index: %w", err)
	}

	db.idx = idx
	db.committed.Store(n)
	return nil
}

// Insert stores rec and returns its ordinal.
//
// The record is encoded before the write lock is taken. Once the write has
// started, ctx is no longer consulted: the pair is either completed or rolled
// back.
func (db *DB) Insert(ctx context.Context, rec model.Record) (ord model.Ordinal, err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordInsert(time.Since(start), err)
		db.logger.LogInsert(ctx, ord, err)
	}()

	if db.closed.Load() {
		return 0, ErrClosed
	}
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	vec, err := db.enc.Encode(ctx, rec.Text())
	if err != nil {
		return 0, err
	}
	return db.commit(ctx, rec, vec)
}

// InsertMany stores recs in input order.
//
// All records are validated and encoded before anything is written. Writing
// stops at the first failure; the ordinals written so far are returned
// together with a *BatchError naming the failing position. Completed pairs
// are never rolled back.
func (db *DB) InsertMany(ctx context.Context, recs []model.Record) (ords []model.Ordinal, err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordBatchInsert(len(recs), len(ords), time.Since(start))
		db.logger.LogBatchInsert(ctx, len(recs), len(ords), err)
	}()

	if db.closed.Load() {
		return nil, ErrClosed
	}
	if len(recs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		texts[i] = rec.Text()
	}

	vecs, err := db.enc.EncodeBatch(ctx, texts)
	if err != nil {
		var te *encoder.TextError
		if errors.As(err, &te) {
			return nil, &BatchError{Index: te.Index, Err: encodingFailed(te.Err)}
		}
		return nil, &BatchError{Err: encodingFailed(err)}
	}

	ords = make([]model.Ordinal, 0, len(recs))
	for i, rec := range recs {
		ord, err := db.commit(ctx, rec, vecs[i])
		if err != nil {
			return ords, &BatchError{Index: i, Succeeded: len(ords), Err: err}
		}
		ords = append(ords, ord)
	}
	return ords, nil
}

func encodingFailed(err error) error {
	if errors.Is(err, ErrEncodingFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEncodingFailed, err)
}

// commit writes one encoded pair under the write lock.
func (db *DB) commit(ctx context.Context, rec model.Record, vec []float32) (model.Ordinal, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	db.lifecycle.RLock()
	defer db.lifecycle.RUnlock()
	if db.closed.Load() {
		return 0, ErrClosed
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if db.poisoned != nil {
		return 0, fmt.Errorf("%w: %w: %w", ErrWriteFailed, ErrPoisoned, db.poisoned)
	}
	return db.appendPair(rec, vec)
}

// appendPair appends vector, then record, then indexes the vector and
// publishes the new count. A failure undoes the halves already written.
// Callers hold writeMu.
func (db *DB) appendPair(rec model.Record, vec []float32) (model.Ordinal, error) {
	n := db.committed.Load()

	ord, err := db.vectors.Append(vec)
	if err != nil {
		if errors.Is(err, vectorlog.ErrBroken) {
			return 0, db.poison(err)
		}
		return 0, fmt.Errorf("%w: append vector: %w", ErrWriteFailed, err)
	}

	if _, err := db.records.Append(rec); err != nil {
		if terr := db.vectors.Truncate(n); terr != nil {
			return 0, db.poison(errors.Join(err, terr))
		}
		return 0, fmt.Errorf("%w: append record: %w", ErrWriteFailed, err)
	}

	if err := db.idx.Add(ord, vec); err != nil {
		rerr := db.records.Truncate(n)
		verr := db.vectors.Truncate(n)
		if rerr != nil || verr != nil {
			return 0, db.poison(errors.Join(err, rerr, verr))
		}
		return 0, fmt.Errorf("%w: index: %w", ErrWriteFailed, err)
	}

	db.committed.Store(n + 1)
	return ord, nil
}

// poison records that the logs may be out of step. Callers hold writeMu.
func (db *DB) poison(cause error) error {
	db.poisoned = cause
	return fmt.Errorf("%w: %w: %w", ErrWriteFailed, ErrPoisoned, cause)
}

// Search encodes text and returns the k closest records. k <= 0 selects the
// configured default.
func (db *DB) Search(ctx context.Context, text string, k int) (res *SearchResult, err error) {
	k = db.resolveK(k)
	start := time.Now()
	defer db.observeSearch(ctx, k, start, &res, &err)

	if db.closed.Load() {
		return nil, ErrClosed
	}

	vec, err := db.enc.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	return db.search(ctx, vec, k)
}

// SearchVector returns the k closest records to a precomputed query vector.
func (db *DB) SearchVector(ctx context.Context, vec []float32, k int) (res *SearchResult, err error) {
	k = db.resolveK(k)
	start := time.Now()
	defer db.observeSearch(ctx, k, start, &res, &err)

	if err := model.CheckDimension(vec, db.enc.Dimension()); err != nil {
		return nil, err
	}
	return db.search(ctx, vec, k)
}

func (db *DB) resolveK(k int) int {
	if k <= 0 {
		return db.opts.defaultK
	}
	return k
}

func (db *DB) observeSearch(ctx context.Context, k int, start time.Time, res **SearchResult, err *error) {
	found := 0
	if *res != nil {
		found = len((*res).Hits)
	}
	db.opts.metricsCollector.RecordSearch(k, time.Since(start), *err)
	db.logger.LogSearch(ctx, k, found, *err)
}

func (db *DB) search(ctx context.Context, vec []float32, k int) (*SearchResult, error) {
	db.lifecycle.RLock()
	defer db.lifecycle.RUnlock()
	if db.closed.Load() {
		return nil, ErrClosed
	}

	n := db.committed.Load()
	hits, err := db.idx.Search(ctx, vec, k, n)
	if err != nil {
		return nil, err
	}

	ords := make([]model.Ordinal, len(hits))
	for i, h := range hits {
		ords[i] = h.Ordinal
	}

	recs, malformed, err := db.records.ReadByOrdinals(ords)
	if err != nil {
		return nil, translateError(err)
	}
	for _, pe := range malformed {
		db.logger.LogSkipped(ctx, pe.Ordinal, pe.Err)
	}
	if len(malformed) > 0 {
		db.opts.metricsCollector.RecordSkipped(len(malformed))
	}

	res := &SearchResult{Hits: make([]Result, 0, len(hits))}
	for _, h := range hits {
		rec, ok := recs[h.Ordinal]
		if !ok {
			res.Skipped = append(res.Skipped, h.Ordinal)
			continue
		}
		res.Hits = append(res.Hits, Result{Ordinal: h.Ordinal, Distance: h.Distance, Record: rec})
	}
	return res, nil
}

// Get returns the record stored at ord.
func (db *DB) Get(ord model.Ordinal) (model.Record, error) {
	db.lifecycle.RLock()
	defer db.lifecycle.RUnlock()
	if db.closed.Load() {
		return model.Record{}, ErrClosed
	}
	if uint64(ord) >= db.committed.Load() {
		return model.Record{}, fmt.Errorf("%w: %d", metalog.ErrOutOfRange, ord)
	}
	rec, err := db.records.Get(ord)
	return rec, translateError(err)
}

// Count returns the number of committed records.
func (db *DB) Count() uint64 {
	return db.committed.Load()
}

// Dimension returns the embedding dimension.
func (db *DB) Dimension() int {
	return db.enc.Dimension()
}

// Metric returns the distance metric used for ranking.
func (db *DB) Metric() distance.Metric {
	return db.idx.Metric()
}

// Dir returns the data directory.
func (db *DB) Dir() string {
	return db.dir
}

// Close waits for in-flight operations and closes both logs.
// Closing twice is a no-op.
func (db *DB) Close() error {
	db.lifecycle.Lock()
	defer db.lifecycle.Unlock()

	if db.closed.Swap(true) {
		return nil
	}
	return db.closeLogs()
}

func (db *DB) closeLogs() error {
	return errors.Join(db.records.Close(), db.vectors.Close())
}

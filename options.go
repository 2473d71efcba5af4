package reviewdb

import (
	"log/slog"

	"github.com/hupe1980/reviewdb/codec"
	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/index"
	"github.com/hupe1980/reviewdb/index/flat"
	"github.com/hupe1980/reviewdb/internal/fs"
)

// DefaultK is the number of results Search returns when k <= 0.
const DefaultK = 5

// Durability defines when appended records reach stable storage.
type Durability int

const (
	// DurabilityAsync leaves writes in the page cache. A crash can lose the
	// most recent records but never breaks the pairing of the logs.
	DurabilityAsync Durability = iota

	// DurabilitySync issues fdatasync on both logs before Insert returns.
	DurabilitySync
)

type options struct {
	metric           distance.Metric
	indexFactory     index.Factory
	durability       Durability
	codec            codec.Codec
	fs               fs.FileSystem
	logger           *Logger
	metricsCollector MetricsCollector
	defaultK         int
	parallelism      int
}

func defaultOptions() options {
	return options{
		metric:           distance.MetricCosine,
		indexFactory:     flat.Factory(),
		durability:       DurabilityAsync,
		codec:            codec.Default,
		fs:               fs.Default,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		defaultK:         DefaultK,
		parallelism:      4,
	}
}

// Option configures Open.
type Option func(*options)

// WithMetric sets the distance metric. Default is cosine.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithIndex selects the similarity index, e.g. hnsw.Factory().
// If nil is passed, the exact flat index is used.
func WithIndex(f index.Factory) Option {
	return func(o *options) {
		if f == nil {
			f = flat.Factory()
		}
		o.indexFactory = f
	}
}

// WithDurability configures fsync behaviour of both logs.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithCodec configures the codec of the metadata log.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithFileSystem replaces the file system, mainly for fault injection.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := reviewdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := reviewdb.Open(ctx, dir, enc, reviewdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithDefaultK sets the result count used when Search is called with k <= 0.
func WithDefaultK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.defaultK = k
		}
	}
}

// WithBatchParallelism bounds concurrent encoder calls in InsertMany for
// encoders without batch support.
func WithBatchParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

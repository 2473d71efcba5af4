package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/reviewdb"
	"github.com/hupe1980/reviewdb/blobstore"
	miniostore "github.com/hupe1980/reviewdb/blobstore/minio"
	s3store "github.com/hupe1980/reviewdb/blobstore/s3"
	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/encoder"
	"github.com/hupe1980/reviewdb/index"
	"github.com/hupe1980/reviewdb/index/flat"
	"github.com/hupe1980/reviewdb/index/hnsw"
	"github.com/hupe1980/reviewdb/internal/config"
	"github.com/hupe1980/reviewdb/snapshot"
)

// withDB opens the store described by the global config, runs fn and
// closes the store.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, db *reviewdb.DB) error) (err error) {
	ctx := cmd.Context()
	opts, err := dbOptions(globalConfig, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	db, err := reviewdb.Open(ctx, globalConfig.DataDir, newEncoder(globalConfig.Encoder), opts...)
	if err != nil {
		return fmt.Errorf("open %s: %w", globalConfig.DataDir, err)
	}
	defer func() {
		err = errors.Join(err, db.Close())
	}()

	return fn(ctx, db)
}

func newEncoder(cfg config.EncoderConfig) encoder.Encoder {
	switch cfg.Kind {
	case "openai":
		return encoder.NewOpenAI(cfg.APIKey, cfg.Dimension, func(o *encoder.OpenAIOptions) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.BaseURL = cfg.BaseURL
			if cfg.MaxInFlight > 0 {
				o.Limits.MaxInFlight = cfg.MaxInFlight
			}
			o.Limits.RequestsPerSecond = cfg.RequestsPerSecond
		})
	default:
		return encoder.NewHashing(cfg.Dimension)
	}
}

func newIndex(cfg config.IndexConfig) index.Factory {
	if cfg.Kind != "hnsw" {
		return flat.Factory()
	}
	return hnsw.Factory(func(o *hnsw.Options) {
		if cfg.M > 0 {
			o.M = cfg.M
		}
		if cfg.EF > 0 {
			o.EF = cfg.EF
		}
		if cfg.EFConstruction > 0 {
			o.EFConstruction = cfg.EFConstruction
		}
	})
}

func newLogger(cfg config.LogConfig, w io.Writer) (*reviewdb.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return reviewdb.NewLogger(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return reviewdb.NewLogger(slog.NewTextHandler(w, handlerOpts)), nil
}

func dbOptions(cfg *config.Config, logOut io.Writer) ([]reviewdb.Option, error) {
	metric, err := distance.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	durability := reviewdb.DurabilityAsync
	if cfg.Durability == "sync" {
		durability = reviewdb.DurabilitySync
	}

	return []reviewdb.Option{
		reviewdb.WithMetric(metric),
		reviewdb.WithIndex(newIndex(cfg.Index)),
		reviewdb.WithDurability(durability),
		reviewdb.WithDefaultK(cfg.DefaultK),
		reviewdb.WithLogger(logger.WithDir(cfg.DataDir)),
	}, nil
}

// newStore connects to the configured backup destination.
func newStore(ctx context.Context, cfg config.BackupConfig) (blobstore.Store, error) {
	switch cfg.Kind {
	case "s3":
		store, err := s3store.New(ctx, cfg.Bucket, cfg.Prefix, func(o *s3store.Options) {
			o.Region = cfg.Region
			o.Endpoint = cfg.Endpoint
			o.UsePathStyle = cfg.UsePathStyle
		})
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		return store, nil
	case "minio":
		store, err := miniostore.Dial(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("minio store: %w", err)
		}
		return store, nil
	default:
		return blobstore.NewLocalStore(cfg.Path), nil
	}
}

func snapshotOptions(cfg config.BackupConfig) (func(*snapshot.Options), error) {
	c, err := snapshot.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return func(o *snapshot.Options) {
		o.Compression = c
	}, nil
}

// printJSON writes v as indented JSON to the command's stdout.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

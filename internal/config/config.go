// Package config loads the reviewdb CLI configuration.
//
// Configuration is read from a YAML file, filled with defaults for missing
// keys and then overridden from REVIEWDB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/snapshot"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REVIEWDB_"

// Config is the CLI configuration.
type Config struct {
	DataDir    string        `yaml:"data_dir"`
	Metric     string        `yaml:"metric"`
	Durability string        `yaml:"durability"`
	DefaultK   int           `yaml:"default_k"`
	Encoder    EncoderConfig `yaml:"encoder"`
	Index      IndexConfig   `yaml:"index"`
	Log        LogConfig     `yaml:"log"`
	Backup     BackupConfig  `yaml:"backup"`
}

// EncoderConfig selects the text encoder.
type EncoderConfig struct {
	// Kind is "hashing" or "openai".
	Kind      string `yaml:"kind"`
	Dimension int    `yaml:"dimension"`

	Model             string  `yaml:"model,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	MaxInFlight       int64   `yaml:"max_in_flight,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// IndexConfig selects the similarity index. Zero tuning values keep the
// index defaults.
type IndexConfig struct {
	// Kind is "flat" or "hnsw".
	Kind           string `yaml:"kind"`
	M              int    `yaml:"m,omitempty"`
	EF             int    `yaml:"ef,omitempty"`
	EFConstruction int    `yaml:"ef_construction,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackupConfig selects where snapshots are written.
type BackupConfig struct {
	// Kind is "local", "s3" or "minio".
	Kind        string `yaml:"kind"`
	Compression string `yaml:"compression"`

	// local
	Path string `yaml:"path,omitempty"`

	// s3 and minio
	Bucket       string `yaml:"bucket,omitempty"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
	AccessKey    string `yaml:"access_key,omitempty"`
	SecretKey    string `yaml:"secret_key,omitempty"`
	Secure       bool   `yaml:"secure,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		Metric:     "cosine",
		Durability: "async",
		DefaultK:   5,
		Encoder: EncoderConfig{
			Kind:      "hashing",
			Dimension: 512,
		},
		Index: IndexConfig{Kind: "flat"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Backup: BackupConfig{
			Kind:        "local",
			Path:        "backups",
			Compression: string(snapshot.CompressionZSTD),
		},
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path starts from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their current
// values; unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	return yaml.UnmarshalWithOptions(data, cfg, yaml.Strict())
}

// Marshal encodes cfg as YAML with secrets redacted.
func Marshal(cfg *Config) ([]byte, error) {
	c := *cfg
	if c.Encoder.APIKey != "" {
		c.Encoder.APIKey = "***"
	}
	if c.Backup.SecretKey != "" {
		c.Backup.SecretKey = "***"
	}
	return yaml.Marshal(&c)
}

// ApplyEnv overrides fields from environment variables looked up with
// lookup. OPENAI_API_KEY fills the encoder key.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	str("DATA_DIR", &c.DataDir)
	str("METRIC", &c.Metric)
	str("DURABILITY", &c.Durability)
	str("ENCODER", &c.Encoder.Kind)
	str("ENCODER_MODEL", &c.Encoder.Model)
	str("ENCODER_BASE_URL", &c.Encoder.BaseURL)
	str("INDEX", &c.Index.Kind)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("BACKUP_KIND", &c.Backup.Kind)
	str("BACKUP_PATH", &c.Backup.Path)
	str("BACKUP_BUCKET", &c.Backup.Bucket)
	str("BACKUP_PREFIX", &c.Backup.Prefix)
	str("BACKUP_REGION", &c.Backup.Region)
	str("BACKUP_ENDPOINT", &c.Backup.Endpoint)
	str("BACKUP_ACCESS_KEY", &c.Backup.AccessKey)
	str("BACKUP_SECRET_KEY", &c.Backup.SecretKey)
	str("BACKUP_COMPRESSION", &c.Backup.Compression)

	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		c.Encoder.APIKey = v
	}

	for name, dst := range map[string]*int{
		"DEFAULT_K":         &c.DefaultK,
		"ENCODER_DIMENSION": &c.Encoder.Dimension,
	} {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.DataDir == "" {
		add("data_dir is required")
	}
	if _, err := distance.ParseMetric(c.Metric); err != nil {
		add("metric: %w", err)
	}
	switch c.Durability {
	case "async", "sync":
	default:
		add("durability: unknown value %q", c.Durability)
	}
	if c.DefaultK <= 0 {
		add("default_k must be positive, got %d", c.DefaultK)
	}

	if c.Encoder.Dimension <= 0 {
		add("encoder.dimension must be positive, got %d", c.Encoder.Dimension)
	}
	switch c.Encoder.Kind {
	case "hashing":
	case "openai":
		if c.Encoder.APIKey == "" {
			add("encoder.api_key is required for openai (or set OPENAI_API_KEY)")
		}
	default:
		add("encoder.kind: unknown value %q", c.Encoder.Kind)
	}

	switch c.Index.Kind {
	case "flat", "hnsw":
	default:
		add("index.kind: unknown value %q", c.Index.Kind)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		add("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format: unknown value %q", c.Log.Format)
	}

	if _, err := snapshot.ParseCompression(c.Backup.Compression); err != nil {
		add("backup.compression: %w", err)
	}
	switch c.Backup.Kind {
	case "local":
		if c.Backup.Path == "" {
			add("backup.path is required for local backups")
		}
	case "s3":
		if c.Backup.Bucket == "" {
			add("backup.bucket is required for s3 backups")
		}
	case "minio":
		if c.Backup.Bucket == "" || c.Backup.Endpoint == "" {
			add("backup.bucket and backup.endpoint are required for minio backups")
		}
	default:
		add("backup.kind: unknown value %q", c.Backup.Kind)
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, err
	}
	return level, nil
}

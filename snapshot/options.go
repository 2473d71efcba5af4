package snapshot

import (
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/reviewdb/codec"
	"github.com/hupe1980/reviewdb/internal/fs"
)

// DefaultPrefix is the key prefix under which snapshots are stored.
const DefaultPrefix = "snapshots/"

// Options configures Write, Restore, Load and List.
type Options struct {
	// Prefix is prepended to every object name. Default: "snapshots/".
	Prefix string

	// Compression used by Write. Default: zstd.
	Compression Compression

	// Level is the zstd compression level (1-22). Default: 3.
	Level int

	// Codec encodes the manifest. Default: codec.Default.
	Codec codec.Codec

	// FS is used by Restore to write files. Default: the local file system.
	FS fs.FileSystem

	// Now stamps new manifests. Default: time.Now.
	Now func() time.Time

	// NewID generates snapshot ids. Default: UUIDv7, which sorts by creation time.
	NewID func() string
}

// DefaultOptions returns the default snapshot options.
func DefaultOptions() Options {
	return Options{
		Prefix:      DefaultPrefix,
		Compression: CompressionZSTD,
		Level:       3,
		Codec:       codec.Default,
		FS:          fs.Default,
		Now:         time.Now,
		NewID:       newID,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func applyOptions(optFns []func(*Options)) Options {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Compression == "" {
		opts.Compression = CompressionZSTD
	}
	if opts.Level <= 0 {
		opts.Level = 3
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newID
	}
	return opts
}

package snapshot

import "errors"

var (
	// ErrNotFound is returned when no manifest exists for an id.
	ErrNotFound = errors.New("snapshot: not found")

	// ErrInvalidManifest is returned for a manifest that cannot describe a
	// restorable snapshot.
	ErrInvalidManifest = errors.New("snapshot: invalid manifest")

	// ErrChecksum is returned when a restored file does not match the CRC32C
	// recorded in the manifest.
	ErrChecksum = errors.New("snapshot: checksum mismatch")

	// ErrSizeMismatch is returned when a source or restored file has a
	// different length than declared.
	ErrSizeMismatch = errors.New("snapshot: size mismatch")

	// ErrExists is returned by Restore when a target file already exists.
	ErrExists = errors.New("snapshot: target file exists")

	// ErrUnknownCompression is returned for an unsupported compression name.
	ErrUnknownCompression = errors.New("snapshot: unknown compression")
)

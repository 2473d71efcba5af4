// Package snapshot copies a store's files to a blobstore.Store and back.
//
// A snapshot is a directory of objects under a unique id:
//
//	<prefix><id>/<file>.<ext>     one compressed object per source file
//	<prefix><id>/manifest.json    written last
//
// The manifest records the raw size and CRC32C of every file, so Restore can
// detect truncated or corrupted objects before anything is renamed into
// place. A snapshot without a manifest is incomplete and invisible to List.
//
// Files are streamed: nothing is buffered in memory beyond the compressor's
// window, and each file is compressed and uploaded concurrently.
package snapshot

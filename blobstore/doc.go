// Package blobstore provides the object storage abstraction used for snapshots.
//
// Store is the interface for writing and reading whole objects by name.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with multipart streaming uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type Store interface {
//	    Put(ctx, name, r) error                 // Stream an object
//	    Get(ctx, name) (io.ReadCloser, error)   // Stream it back
//	    List(ctx, prefix) ([]string, error)     // Sorted names
//	    Delete(ctx, name) error
//	}
//
// Put must be all or nothing from a reader's point of view: a failed or
// cancelled Put never leaves a partial object visible under name.
package blobstore

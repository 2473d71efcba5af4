// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "reviews/", func(o *s3.Options) {
//	    o.Region = "eu-central-1"
//	})
//
//	manifest, err := db.Backup(ctx, store)
//
// # Features
//
//   - Streaming multipart uploads through the SDK upload manager
//   - Failed multipart uploads are aborted, so no partial object appears
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3

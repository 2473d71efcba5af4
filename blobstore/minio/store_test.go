package minio

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/reviewdb/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Key(t *testing.T) {
	assert.Equal(t, "reviews/a/b", NewStore(nil, "bucket", "reviews/").key("a/b"))
	assert.Equal(t, "a/b", NewStore(nil, "bucket", "").key("a/b"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// TestMinioStore_Integration requires a running MinIO instance.
// Set MINIO_ENDPOINT (e.g. localhost:9000) to enable it.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	bucket := "test-reviewdb"

	store, err := Dial(endpoint, "minioadmin", "minioadmin", false, bucket, "test-prefix/")
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exists, err := store.client.BucketExists(ctx, bucket)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if !exists {
		require.NoError(t, store.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	require.NoError(t, store.Put(ctx, "snap/test.txt", strings.NewReader("hello minio world")))

	rc, err := store.Get(ctx, "snap/test.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello minio world", string(data))

	names, err := store.List(ctx, "snap/")
	require.NoError(t, err)
	assert.Contains(t, names, "snap/test.txt")

	require.NoError(t, store.Delete(ctx, "snap/test.txt"))
	require.NoError(t, store.Delete(ctx, "snap/test.txt"))

	_, err = store.Get(ctx, "snap/test.txt")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

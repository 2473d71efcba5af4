package reviewdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/reviewdb/blobstore"
	"github.com/hupe1980/reviewdb/encoder"
	"github.com/hupe1980/reviewdb/snapshot"
	"github.com/hupe1980/reviewdb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	enc := encoder.NewHashing(16)
	store := blobstore.NewLocalStore(t.TempDir())

	db := openDB(t, t.TempDir(), enc)
	for i := range 25 {
		_, err := db.Insert(ctx, testutil.Review(i))
		require.NoError(t, err)
	}

	m, err := db.Backup(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), m.Count)
	assert.Equal(t, 16, m.Dimension)
	assert.Equal(t, snapshot.CompressionZSTD, m.Compression)

	vf, ok := m.File(VectorLogFile)
	require.True(t, ok)
	assert.Equal(t, vectorFileSize(16, 25), vf.Size)

	// Writes after the backup are not part of it.
	_, err = db.Insert(ctx, testutil.Review(99))
	require.NoError(t, err)

	want, err := db.Search(ctx, "review number 4", 3)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "restored")
	_, err = snapshot.Restore(ctx, store, m.ID, target)
	require.NoError(t, err)

	restored := openDB(t, target, enc)
	assert.Equal(t, uint64(25), restored.Count())

	got, err := restored.Search(ctx, "review number 4", 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	report, err := restored.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())

	manifests, err := snapshot.List(ctx, store)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, m.ID, manifests[0].ID)
}

func TestBackup_EmptyStore(t *testing.T) {
	ctx := context.Background()
	enc := encoder.NewHashing(8)
	store := blobstore.NewMemoryStore()

	db := openDB(t, t.TempDir(), enc)
	m, err := db.Backup(ctx, store, func(o *snapshot.Options) { o.Compression = snapshot.CompressionLZ4 })
	require.NoError(t, err)
	assert.Zero(t, m.Count)

	target := t.TempDir()
	_, err = snapshot.Restore(ctx, store, m.ID, target)
	require.NoError(t, err)

	restored := openDB(t, target, enc)
	assert.Zero(t, restored.Count())
}

func TestBackup_Closed(t *testing.T) {
	db, err := Open(context.Background(), t.TempDir(), encoder.NewHashing(8))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Backup(context.Background(), blobstore.NewMemoryStore())
	assert.ErrorIs(t, err, ErrClosed)
}

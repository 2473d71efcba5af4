package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/reviewdb/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource(vectors, records []byte) Source {
	return Source{
		Count:     3,
		Dimension: 4,
		Files: []SourceFile{
			{Name: "reviews.index", Size: int64(len(vectors)), Reader: bytes.NewReader(vectors)},
			{Name: "reviews.jsonl", Size: int64(len(records)), Reader: bytes.NewReader(records)},
		},
	}
}

func payloads() ([]byte, []byte) {
	vectors := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 4096)
	var records strings.Builder
	for i := range 100 {
		fmt.Fprintf(&records, `{"review_title":"t%d","review_body":"b","product_id":"p","review_rating":5}`+"\n", i)
	}
	return vectors, []byte(records.String())
}

func fixedClock(t time.Time) func(*Options) {
	return func(o *Options) { o.Now = func() time.Time { return t } }
}

func TestWriteRestore_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionZSTD, CompressionLZ4, CompressionNone} {
		t.Run(string(c), func(t *testing.T) {
			ctx := context.Background()
			store := blobstore.NewMemoryStore()
			vectors, records := payloads()

			m, err := Write(ctx, store, testSource(vectors, records), func(o *Options) { o.Compression = c })
			require.NoError(t, err)
			assert.Equal(t, uint64(3), m.Count)
			assert.Equal(t, 4, m.Dimension)
			assert.Equal(t, c, m.Compression)
			require.Len(t, m.Files, 2)

			f, ok := m.File("reviews.index")
			require.True(t, ok)
			assert.Equal(t, "reviews.index"+c.Ext(), f.Object)
			assert.Equal(t, int64(len(vectors)), f.Size)

			if c != CompressionNone {
				raw, ok := store.Bytes(DefaultPrefix + m.ID + "/" + f.Object)
				require.True(t, ok)
				assert.Less(t, len(raw), len(vectors))
			}

			dir := t.TempDir()
			restored, err := Restore(ctx, store, m.ID, dir)
			require.NoError(t, err)
			assert.Equal(t, m.ID, restored.ID)

			got, err := os.ReadFile(filepath.Join(dir, "reviews.index"))
			require.NoError(t, err)
			assert.Equal(t, vectors, got)

			got, err = os.ReadFile(filepath.Join(dir, "reviews.jsonl"))
			require.NoError(t, err)
			assert.Equal(t, records, got)

			_, err = os.Stat(filepath.Join(dir, "reviews.index.restore"))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestWrite_EmptyFiles(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	m, err := Write(ctx, store, testSource(nil, nil))
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = Restore(ctx, store, m.ID, dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "reviews.jsonl"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWrite_ShortSource(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	src := Source{Files: []SourceFile{{Name: "a", Size: 10, Reader: strings.NewReader("short")}}}
	_, err := Write(ctx, store, src)
	require.ErrorIs(t, err, ErrSizeMismatch)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWrite_InvalidSource(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	tests := map[string]Source{
		"no files":  {},
		"bad name":  {Files: []SourceFile{{Name: "../x", Reader: strings.NewReader("")}}},
		"duplicate": {Files: []SourceFile{{Name: "a", Reader: strings.NewReader("")}, {Name: "a", Reader: strings.NewReader("")}}},
		"nil":       {Files: []SourceFile{{Name: "a"}}},
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Write(ctx, store, src)
			assert.Error(t, err)
		})
	}

	_, err := Write(ctx, store, testSource(nil, nil), func(o *Options) { o.Compression = "brotli" })
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestRestore_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	vectors, records := payloads()

	m, err := Write(ctx, store, testSource(vectors, records), func(o *Options) { o.Compression = CompressionNone })
	require.NoError(t, err)

	require.True(t, store.Corrupt(DefaultPrefix+m.ID+"/reviews.jsonl", 10))

	dir := t.TempDir()
	_, err = Restore(ctx, store, m.ID, dir)
	require.ErrorIs(t, err, ErrChecksum)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestore_DetectsTruncation(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	vectors, records := payloads()

	m, err := Write(ctx, store, testSource(vectors, records), func(o *Options) { o.Compression = CompressionNone })
	require.NoError(t, err)

	name := DefaultPrefix + m.ID + "/reviews.index"
	raw, _ := store.Bytes(name)
	require.NoError(t, store.Put(ctx, name, bytes.NewReader(raw[:len(raw)/2])))

	_, err = Restore(ctx, store, m.ID, t.TempDir())
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestRestore_RefusesToOverwrite(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	vectors, records := payloads()

	m, err := Write(ctx, store, testSource(vectors, records))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviews.jsonl"), []byte("live"), 0o644))

	_, err = Restore(ctx, store, m.ID, dir)
	require.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(filepath.Join(dir, "reviews.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "live", string(data))
}

func TestRestore_NotFound(t *testing.T) {
	_, err := Restore(context.Background(), blobstore.NewMemoryStore(), "missing", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Load(context.Background(), blobstore.NewMemoryStore(), "../escape")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := range 3 {
		m, err := Write(ctx, store, testSource([]byte("v"), []byte("r\n")), fixedClock(base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	// An incomplete snapshot has no manifest and is not listed.
	require.NoError(t, store.Put(ctx, DefaultPrefix+"partial/reviews.index.zst", strings.NewReader("x")))

	manifests, err := List(ctx, store)
	require.NoError(t, err)
	require.Len(t, manifests, 3)
	assert.Equal(t, ids[2], manifests[0].ID)
	assert.Equal(t, ids[1], manifests[1].ID)
	assert.Equal(t, ids[0], manifests[2].ID)
	assert.True(t, manifests[0].CreatedAt.Equal(base.Add(2*time.Hour)))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	m, err := Write(ctx, store, testSource([]byte("v"), []byte("r\n")))
	require.NoError(t, err)

	require.NoError(t, Delete(ctx, store, m.ID))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = Load(ctx, store, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_RejectsInvalidManifest(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	put := func(id, body string) {
		require.NoError(t, store.Put(ctx, DefaultPrefix+id+"/"+ManifestName, strings.NewReader(body)))
	}

	put("garbage", "{not json")
	put("version", `{"version":9,"id":"version","compression":"zstd"}`)
	put("escape", `{"version":1,"id":"escape","compression":"none","files":[{"name":"../x","object":"x","size":1}]}`)
	put("other", `{"version":1,"id":"someone-else","compression":"none"}`)

	for _, id := range []string{"garbage", "version", "escape", "other"} {
		_, err := Load(ctx, store, id)
		assert.ErrorIs(t, err, ErrInvalidManifest, id)
	}
}

func TestWithPrefix(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	withPrefix := func(o *Options) { o.Prefix = "tenant-a/" }

	m, err := Write(ctx, store, testSource([]byte("v"), []byte("r\n")), withPrefix)
	require.NoError(t, err)

	_, ok := store.Bytes("tenant-a/" + m.ID + "/" + ManifestName)
	assert.True(t, ok)

	manifests, err := List(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, manifests)

	manifests, err = List(ctx, store, withPrefix)
	require.NoError(t, err)
	assert.Len(t, manifests, 1)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)

	c, err = ParseCompression("lz4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)

	_, err = ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

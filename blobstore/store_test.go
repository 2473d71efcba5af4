package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"local":  NewLocalStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func readAll(t *testing.T, s Store, name string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestStore_Lifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "snap/b.txt", strings.NewReader("second")))
			require.NoError(t, s.Put(ctx, "snap/a.txt", strings.NewReader("first")))
			require.NoError(t, s.Put(ctx, "other.txt", strings.NewReader("x")))

			assert.Equal(t, "first", readAll(t, s, "snap/a.txt"))

			names, err := s.List(ctx, "snap/")
			require.NoError(t, err)
			assert.Equal(t, []string{"snap/a.txt", "snap/b.txt"}, names)

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			// Overwrite.
			require.NoError(t, s.Put(ctx, "snap/a.txt", strings.NewReader("replaced")))
			assert.Equal(t, "replaced", readAll(t, s, "snap/a.txt"))

			require.NoError(t, s.Delete(ctx, "snap/a.txt"))
			require.NoError(t, s.Delete(ctx, "snap/a.txt"))

			_, err = s.Get(ctx, "snap/a.txt")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, errors.New("boom")
	}
	n := min(len(p), r.n)
	for i := range n {
		p[i] = 'a'
	}
	r.n -= n
	return n, nil
}

func TestStore_FailedPutLeavesNothing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Put(ctx, "obj", &failingReader{n: 10})
			require.Error(t, err)

			_, err = s.Get(ctx, "obj")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestStore_CancelledPut(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := s.Put(ctx, "obj", strings.NewReader("data"))
			require.ErrorIs(t, err, context.Canceled)

			_, err = s.Get(context.Background(), "obj")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "../x", "a/../../x"} {
		assert.Error(t, s.Put(ctx, name, strings.NewReader("x")), name)
	}
}

func TestLocalStore_WritesFiles(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root)
	require.NoError(t, s.Put(context.Background(), "a/b/c.bin", strings.NewReader("payload")))

	data, err := os.ReadFile(filepath.Join(root, "a", "b", "c.bin"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, root, s.Root())
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore_Corrupt(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(context.Background(), "x", strings.NewReader("abc")))
	require.True(t, s.Corrupt("x", 1))
	assert.False(t, s.Corrupt("x", 3))
	assert.False(t, s.Corrupt("y", 0))

	data, ok := s.Bytes("x")
	require.True(t, ok)
	assert.NotEqual(t, "abc", string(data))
}

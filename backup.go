package reviewdb

import (
	"context"

	"github.com/hupe1980/reviewdb/blobstore"
	"github.com/hupe1980/reviewdb/snapshot"
)

// Backup writes a snapshot of the committed records to store.
//
// The committed count and the byte length of both logs at that count are
// captured first. Both logs only ever grow past committed data, so the
// captured prefixes are streamed without blocking writers.
func (db *DB) Backup(ctx context.Context, store blobstore.Store, optFns ...func(*snapshot.Options)) (m *snapshot.Manifest, err error) {
	db.lifecycle.RLock()
	defer db.lifecycle.RUnlock()
	if db.closed.Load() {
		return nil, ErrClosed
	}

	n := db.committed.Load()
	defer func() {
		id := ""
		if m != nil {
			id = m.ID
		}
		db.logger.LogBackup(ctx, id, n, err)
	}()

	src := snapshot.Source{
		Count:     n,
		Dimension: db.enc.Dimension(),
		Files: []snapshot.SourceFile{
			{Name: VectorLogFile, Size: db.vectors.EndOffset(n), Reader: db.vectors.NewReader(n)},
			{Name: MetadataLogFile, Size: db.records.EndOffset(n), Reader: db.records.NewReader(n)},
		},
	}
	return snapshot.Write(ctx, store, src, optFns...)
}

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/reviewdb/blobstore"
	"github.com/hupe1980/reviewdb/internal/fs"
	"github.com/hupe1980/reviewdb/internal/hash"
	"golang.org/x/sync/errgroup"
)

// SourceFile is one file to snapshot. Exactly Size bytes are read from Reader.
type SourceFile struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// Source describes a consistent set of files plus the metadata recorded in
// the manifest.
type Source struct {
	Count     uint64
	Dimension int
	Files     []SourceFile
}

func (s Source) validate() error {
	if len(s.Files) == 0 {
		return errors.New("snapshot: no files")
	}
	seen := make(map[string]struct{}, len(s.Files))
	for _, f := range s.Files {
		if !validName(f.Name) {
			return fmt.Errorf("snapshot: invalid file name %q", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("snapshot: duplicate file %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Size < 0 || f.Reader == nil {
			return fmt.Errorf("snapshot: invalid source for %q", f.Name)
		}
	}
	return nil
}

// Write streams every source file to store and then writes the manifest.
// On failure the objects already uploaded are removed on a best-effort basis.
func Write(ctx context.Context, store blobstore.Store, src Source, optFns ...func(*Options)) (*Manifest, error) {
	opts := applyOptions(optFns)
	if _, err := ParseCompression(string(opts.Compression)); err != nil {
		return nil, err
	}
	if err := src.validate(); err != nil {
		return nil, err
	}

	m := &Manifest{
		Version:     manifestVersion,
		ID:          opts.NewID(),
		CreatedAt:   opts.Now().UTC(),
		Count:       src.Count,
		Dimension:   src.Dimension,
		Compression: opts.Compression,
		Files:       make([]File, len(src.Files)),
	}
	dir := dirOf(opts.Prefix, m.ID)

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range src.Files {
		m.Files[i] = File{Name: f.Name, Object: f.Name + opts.Compression.Ext(), Size: f.Size}
		g.Go(func() error {
			crc, err := upload(gctx, store, dir+m.Files[i].Object, f, opts)
			if err != nil {
				return fmt.Errorf("snapshot: upload %s: %w", f.Name, err)
			}
			m.Files[i].CRC32C = crc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cleanup(store, dir, m.Files)
		return nil, err
	}

	if err := writeManifest(ctx, store, m, opts); err != nil {
		cleanup(store, dir, m.Files)
		return nil, fmt.Errorf("snapshot: write manifest: %w", err)
	}
	return m, nil
}

// upload pipes the compressed file into store.Put and returns the CRC32C of
// the raw bytes.
func upload(ctx context.Context, store blobstore.Store, name string, f SourceFile, opts Options) (uint32, error) {
	pr, pw := io.Pipe()
	crc := hash.NewCRC32C()

	done := make(chan error, 1)
	go func() {
		err := compress(pw, f, crc, opts)
		_ = pw.CloseWithError(err)
		done <- err
	}()

	putErr := store.Put(ctx, name, pr)
	if putErr != nil {
		_ = pr.CloseWithError(putErr)
	} else {
		_ = pr.Close()
	}

	if err := <-done; err != nil {
		return 0, err
	}
	if putErr != nil {
		return 0, putErr
	}
	return crc.Sum32(), nil
}

func compress(w io.Writer, f SourceFile, crc io.Writer, opts Options) error {
	cw, err := newCompressor(w, opts.Compression, opts.Level)
	if err != nil {
		return err
	}

	n, err := io.Copy(cw, io.TeeReader(io.LimitReader(f.Reader, f.Size), crc))
	if err != nil {
		_ = cw.Close()
		return err
	}
	if n != f.Size {
		_ = cw.Close()
		return fmt.Errorf("%w: %s: read %d of %d bytes", ErrSizeMismatch, f.Name, n, f.Size)
	}
	return cw.Close()
}

func cleanup(store blobstore.Store, dir string, files []File) {
	// The caller's context may be the reason for the failure.
	ctx := context.Background()
	_ = store.Delete(ctx, dir+ManifestName)
	for _, f := range files {
		_ = store.Delete(ctx, dir+f.Object)
	}
}

// Restore downloads snapshot id into dir. Every file is verified against the
// manifest before any of them is renamed into place; existing files are never
// overwritten.
func Restore(ctx context.Context, store blobstore.Store, id, dir string, optFns ...func(*Options)) (*Manifest, error) {
	opts := applyOptions(optFns)

	m, err := Load(ctx, store, id, optFns...)
	if err != nil {
		return nil, err
	}

	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	for _, f := range m.Files {
		target := filepath.Join(dir, f.Name)
		if _, err := opts.FS.Stat(target); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, target)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	src := dirOf(opts.Prefix, m.ID)
	tmps := make([]string, len(m.Files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range m.Files {
		tmps[i] = filepath.Join(dir, f.Name+".restore")
		g.Go(func() error {
			if err := download(gctx, store, src+f.Object, tmps[i], f, m.Compression, opts.FS); err != nil {
				return fmt.Errorf("snapshot: restore %s: %w", f.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, tmp := range tmps {
			_ = opts.FS.Remove(tmp)
		}
		return nil, err
	}

	for i, f := range m.Files {
		if err := opts.FS.Rename(tmps[i], filepath.Join(dir, f.Name)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func download(ctx context.Context, store blobstore.Store, name, path string, f File, c Compression, fsys fs.FileSystem) (err error) {
	rc, err := store.Get(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	dec, err := newDecompressor(rc, c)
	if err != nil {
		return err
	}
	defer func() { _ = dec.Close() }()

	file, err := fsys.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	crc := hash.NewCRC32C()
	// One extra byte exposes objects longer than declared.
	n, err := io.Copy(io.MultiWriter(io.NewOffsetWriter(file, 0), crc), io.LimitReader(blobstore.WithContext(ctx, dec), f.Size+1))
	if err != nil {
		return err
	}
	if n != f.Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, f.Size)
	}
	if crc.Sum32() != f.CRC32C {
		return fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, crc.Sum32(), f.CRC32C)
	}
	return fs.Datasync(file)
}

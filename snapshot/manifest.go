package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/reviewdb/blobstore"
)

// ManifestName is the object name of a snapshot's manifest.
const ManifestName = "manifest.json"

const manifestVersion = 1

// File describes one snapshotted file.
type File struct {
	// Name is the file name inside the restored directory.
	Name string `json:"name"`
	// Object is the object name relative to the snapshot directory.
	Object string `json:"object"`
	// Size is the uncompressed length in bytes.
	Size int64 `json:"size"`
	// CRC32C is the Castagnoli checksum of the uncompressed bytes.
	CRC32C uint32 `json:"crc32c"`
}

// Manifest describes a complete snapshot.
type Manifest struct {
	Version     int         `json:"version"`
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	Count       uint64      `json:"count"`
	Dimension   int         `json:"dimension"`
	Compression Compression `json:"compression"`
	Files       []File      `json:"files"`
}

// File returns the entry for name.
func (m *Manifest) File(name string) (File, bool) {
	for _, f := range m.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

func (m *Manifest) validate(id string) error {
	if m.Version != manifestVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, m.Version)
	}
	if m.ID != id {
		return fmt.Errorf("%w: id %q stored under %q", ErrInvalidManifest, m.ID, id)
	}
	if _, err := ParseCompression(string(m.Compression)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	seen := make(map[string]struct{}, len(m.Files))
	for _, f := range m.Files {
		if !validName(f.Name) || !validName(f.Object) || f.Size < 0 {
			return fmt.Errorf("%w: bad file entry %q", ErrInvalidManifest, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate file %q", ErrInvalidManifest, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// validName accepts plain file names only.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func dirOf(prefix, id string) string {
	return prefix + id + "/"
}

func writeManifest(ctx context.Context, store blobstore.Store, m *Manifest, opts Options) error {
	data, err := opts.Codec.Marshal(m)
	if err != nil {
		return err
	}
	return store.Put(ctx, dirOf(opts.Prefix, m.ID)+ManifestName, bytes.NewReader(data))
}

// Load reads and validates the manifest of snapshot id.
func Load(ctx context.Context, store blobstore.Store, id string, optFns ...func(*Options)) (*Manifest, error) {
	opts := applyOptions(optFns)
	if !validName(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	rc, err := store.Get(ctx, dirOf(opts.Prefix, id)+ManifestName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := opts.Codec.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.validate(id); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns the manifests of all complete snapshots, newest first.
func List(ctx context.Context, store blobstore.Store, optFns ...func(*Options)) ([]*Manifest, error) {
	opts := applyOptions(optFns)

	names, err := store.List(ctx, opts.Prefix)
	if err != nil {
		return nil, err
	}

	var manifests []*Manifest
	for _, name := range names {
		id, ok := strings.CutSuffix(strings.TrimPrefix(name, opts.Prefix), "/"+ManifestName)
		if !ok || !validName(id) {
			continue
		}
		m, err := Load(ctx, store, id, optFns...)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		if !manifests[i].CreatedAt.Equal(manifests[j].CreatedAt) {
			return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
		}
		return manifests[i].ID > manifests[j].ID
	})
	return manifests, nil
}

// Delete removes a snapshot. The manifest goes first so a partially deleted
// snapshot is never listed.
func Delete(ctx context.Context, store blobstore.Store, id string, optFns ...func(*Options)) error {
	opts := applyOptions(optFns)
	if !validName(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	dir := dirOf(opts.Prefix, id)
	if err := store.Delete(ctx, dir+ManifestName); err != nil {
		return err
	}

	names, err := store.List(ctx, dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package vectorlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/reviewdb/internal/fs"
	"github.com/hupe1980/reviewdb/model"
)

var (
	// ErrClosed is returned when the log is used after Close.
	ErrClosed = errors.New("vectorlog: closed")
	// ErrOutOfRange is returned for ordinals at or beyond Count.
	ErrOutOfRange = errors.New("vectorlog: ordinal out of range")
	// ErrBroken is returned by writes after a failed write could not be
	// undone. Reopening the log recovers it.
	ErrBroken = errors.New("vectorlog: log broken by failed rollback")
)

// DurabilityMode defines the fsync behavior for appends.
type DurabilityMode int

const (
	// DurabilityAsync leaves appended records in the page cache.
	DurabilityAsync DurabilityMode = iota

	// DurabilitySync issues fdatasync after every append and truncate.
	DurabilitySync
)

// Options contains configuration for the log.
type Options struct {
	// FS is the file system used to open the log.
	FS fs.FileSystem

	// Durability controls syncing after each append.
	Durability DurabilityMode

	// ScanBufferRecords is the number of records buffered by sequential scans.
	ScanBufferRecords int
}

// DefaultOptions contains the default options.
var DefaultOptions = Options{
	FS:                fs.Default,
	Durability:        DurabilityAsync,
	ScanBufferRecords: 256,
}

// Recovery describes what Open discarded.
type Recovery struct {
	// DroppedBytes is the number of trailing bytes truncated away.
	DroppedBytes int64
	// Reason is empty when nothing was dropped.
	Reason string
}

// Log is an append-only file of fixed-dimension vectors.
type Log struct {
	mu     sync.Mutex // serialises appends and truncation
	file   fs.File
	path   string
	dim    int
	stride int64
	opts   Options

	count     atomic.Uint64
	closed    bool
	broken    error
	recovered Recovery
}

// Open creates or opens the vector log at path with the given dimension.
//
// An existing file with a different dimension fails with
// *model.ErrDimensionMismatch.
func Open(path string, dim int, optFns ...func(o *Options)) (*Log, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorlog: dimension must be positive, got %d", dim)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.ScanBufferRecords <= 0 {
		opts.ScanBufferRecords = DefaultOptions.ScanBufferRecords
	}

	if err := opts.FS.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("vectorlog: create directory: %w", err)
	}

	f, err := opts.FS.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("vectorlog: open %s: %w", path, err)
	}

	l := &Log{
		file:   f,
		path:   path,
		dim:    dim,
		stride: recordSize(dim),
		opts:   opts,
	}

	if err := l.init(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) init() error {
	st, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("vectorlog: stat: %w", err)
	}
	size := st.Size()

	if size < HeaderSize {
		// Empty, or the header itself was torn while the file was created.
		if size > 0 {
			l.recovered = Recovery{DroppedBytes: size, Reason: "torn header"}
		}
		return l.writeHeader()
	}

	h, err := readHeader(l.file)
	if err != nil {
		return err
	}
	if int(h.Dim) != l.dim {
		return &model.ErrDimensionMismatch{Expected: int(h.Dim), Actual: l.dim}
	}

	good, reason, err := l.verify(size)
	if err != nil {
		return err
	}
	end := HeaderSize + int64(good)*l.stride
	if end < size {
		if err := l.file.Truncate(end); err != nil {
			return fmt.Errorf("vectorlog: truncate damaged tail: %w", err)
		}
		if err := fs.Datasync(l.file); err != nil {
			return fmt.Errorf("vectorlog: sync after recovery: %w", err)
		}
		l.recovered = Recovery{DroppedBytes: size - end, Reason: reason}
	}
	l.count.Store(good)
	return nil
}

func (l *Log) writeHeader() error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("vectorlog: reset: %w", err)
	}
	buf := header{Version: headerVersion, Dim: uint32(l.dim)}.encode()
	if _, err := l.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("vectorlog: write header: %w", err)
	}
	if err := fs.Datasync(l.file); err != nil {
		return fmt.Errorf("vectorlog: sync header: %w", err)
	}
	return nil
}

// verify returns the number of leading records with valid checksums.
func (l *Log) verify(size int64) (uint64, string, error) {
	whole := uint64((size - HeaderSize) / l.stride)
	reason := ""
	if (size-HeaderSize)%l.stride != 0 {
		reason = "torn tail"
	}

	sr := io.NewSectionReader(l.file, HeaderSize, int64(whole)*l.stride)
	br := bufio.NewReaderSize(sr, int(l.stride)*l.opts.ScanBufferRecords)
	buf := make([]byte, l.stride)

	for i := uint64(0); i < whole; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return 0, "", fmt.Errorf("vectorlog: read record %d: %w", i, err)
		}
		if !verifyRecord(buf) {
			return i, fmt.Sprintf("checksum mismatch at record %d", i), nil
		}
	}
	return whole, reason, nil
}

// Append writes vec as the next record and returns its ordinal.
func (l *Log) Append(vec []float32) (model.Ordinal, error) {
	if err := model.CheckDimension(vec, l.dim); err != nil {
		return 0, err
	}

	buf := make([]byte, l.stride)
	encodeRecord(buf, vec)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	if l.broken != nil {
		return 0, fmt.Errorf("%w: %w", ErrBroken, l.broken)
	}

	ord := l.count.Load()
	off := l.offset(ord)

	if _, err := l.file.WriteAt(buf, off); err != nil {
		return 0, l.undo(off, fmt.Errorf("vectorlog: write record %d: %w", ord, err))
	}
	if l.opts.Durability == DurabilitySync {
		if err := fs.Datasync(l.file); err != nil {
			return 0, l.undo(off, fmt.Errorf("vectorlog: sync record %d: %w", ord, err))
		}
	}

	l.count.Store(ord + 1)
	return model.Ordinal(ord), nil
}

// undo cuts the file back to off after a failed append. Callers hold mu.
func (l *Log) undo(off int64, cause error) error {
	if err := l.file.Truncate(off); err != nil {
		l.broken = err
		return errors.Join(cause, fmt.Errorf("%w: %w", ErrBroken, err))
	}
	return cause
}

// Truncate drops every record at or beyond n.
func (l *Log) Truncate(n uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	count := l.count.Load()
	if n > count {
		return fmt.Errorf("%w: truncate to %d with %d records", ErrOutOfRange, n, count)
	}

	if err := l.file.Truncate(l.offset(n)); err != nil {
		l.broken = err
		return fmt.Errorf("vectorlog: truncate to %d: %w", n, err)
	}
	if l.opts.Durability == DurabilitySync {
		if err := fs.Datasync(l.file); err != nil {
			return fmt.Errorf("vectorlog: sync truncate: %w", err)
		}
	}
	l.broken = nil
	l.count.Store(n)
	return nil
}

// Count returns the number of records in the log.
func (l *Log) Count() uint64 {
	return l.count.Load()
}

// Dimension returns the vector dimension of the log.
func (l *Log) Dimension() int {
	return l.dim
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Recovered reports what Open had to discard.
func (l *Log) Recovered() Recovery {
	return l.recovered
}

// Size returns the byte length of the header plus Count records.
func (l *Log) Size() int64 {
	return l.offset(l.count.Load())
}

// EndOffset returns the byte offset at which record n starts, which is the
// length of a log holding n records.
func (l *Log) EndOffset(n uint64) int64 {
	return l.offset(n)
}

func (l *Log) offset(ord uint64) int64 {
	return HeaderSize + int64(ord)*l.stride
}

// ReadAt returns the vector stored at ord.
func (l *Log) ReadAt(ord model.Ordinal) ([]float32, error) {
	if uint64(ord) >= l.count.Load() {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, ord)
	}

	buf := make([]byte, l.stride)
	if _, err := l.file.ReadAt(buf, l.offset(uint64(ord))); err != nil {
		return nil, fmt.Errorf("vectorlog: read record %d: %w", ord, err)
	}
	if !verifyRecord(buf) {
		return nil, fmt.Errorf("%w: record %d", ErrChecksum, ord)
	}
	return decodeRecord(buf, l.dim), nil
}

// Scan calls fn for the first n records in order. fn may retain vec.
// Iteration stops at the first error, which is returned.
func (l *Log) Scan(n uint64, fn func(ord model.Ordinal, vec []float32) error) error {
	n = min(n, l.count.Load())
	if n == 0 {
		return nil
	}

	sr := io.NewSectionReader(l.file, HeaderSize, int64(n)*l.stride)
	br := bufio.NewReaderSize(sr, int(l.stride)*l.opts.ScanBufferRecords)
	buf := make([]byte, l.stride)

	for i := uint64(0); i < n; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("vectorlog: read record %d: %w", i, err)
		}
		if !verifyRecord(buf) {
			return fmt.Errorf("%w: record %d", ErrChecksum, i)
		}
		if err := fn(model.Ordinal(i), decodeRecord(buf, l.dim)); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll returns every record present when the call starts.
func (l *Log) ReadAll() ([][]float32, error) {
	n := l.count.Load()
	out := make([][]float32, 0, n)
	err := l.Scan(n, func(_ model.Ordinal, vec []float32) error {
		out = append(out, vec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NewReader returns a reader over the raw bytes of a log holding the first
// n records, header included.
func (l *Log) NewReader(n uint64) io.Reader {
	return io.NewSectionReader(l.file, 0, l.offset(min(n, l.count.Load())))
}

// Sync flushes the log to stable storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return fs.Datasync(l.file)
}

// Close syncs and closes the log. Closing twice is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(fs.Datasync(l.file), l.file.Close())
}

package metalog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/reviewdb/codec"
	"github.com/hupe1980/reviewdb/internal/fs"
	"github.com/hupe1980/reviewdb/model"
)

// DurabilityMode defines the fsync behavior for appends.
type DurabilityMode int

const (
	// DurabilityAsync leaves appended lines in the page cache.
	DurabilityAsync DurabilityMode = iota

	// DurabilitySync issues fdatasync after every append and truncate.
	DurabilitySync
)

// Options contains configuration for the log.
type Options struct {
	// FS is the file system used to open the log.
	FS fs.FileSystem

	// Codec encodes records. It must produce single-line output.
	Codec codec.Codec

	// Durability controls syncing after each append.
	Durability DurabilityMode

	// ReadBufferSize is the buffer size for sequential reads.
	ReadBufferSize int
}

// DefaultOptions contains the default options.
var DefaultOptions = Options{
	FS:             fs.Default,
	Codec:          codec.Default,
	Durability:     DurabilityAsync,
	ReadBufferSize: 64 * 1024,
}

// Recovery describes what Open discarded.
type Recovery struct {
	DroppedBytes int64
	Reason       string
}

// Entry is one element of All.
type Entry struct {
	Ordinal model.Ordinal
	Record  model.Record
	// Err is a *ParseError for a malformed line, or an I/O error that ends
	// the sequence.
	Err error
}

// Log is an append-only JSON lines file of records.
type Log struct {
	wmu  sync.Mutex // serialises appends and truncation
	file fs.File
	path string
	opts Options

	omu  sync.RWMutex
	ends []int64 // ends[i] is the offset just past line i's newline

	count     atomic.Uint64
	closed    bool
	broken    error
	recovered Recovery
}

// Open creates or opens the metadata log at path.
func Open(path string, optFns ...func(o *Options)) (*Log, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultOptions.ReadBufferSize
	}

	if err := opts.FS.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("metalog: create directory: %w", err)
	}

	f, err := opts.FS.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("metalog: open %s: %w", path, err)
	}

	l := &Log{file: f, path: path, opts: opts}
	if err := l.init(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) init() error {
	st, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("metalog: stat: %w", err)
	}
	size := st.Size()

	br := bufio.NewReaderSize(io.NewSectionReader(l.file, 0, size), l.opts.ReadBufferSize)
	var off int64
	for {
		chunk, err := br.ReadSlice('\n')
		off += int64(len(chunk))
		if err == nil {
			l.ends = append(l.ends, off)
			continue
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			// Long line; keep consuming until its newline.
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		return fmt.Errorf("metalog: scan: %w", err)
	}

	end := l.end(uint64(len(l.ends)))
	if end < size {
		if err := l.file.Truncate(end); err != nil {
			return fmt.Errorf("metalog: truncate torn line: %w", err)
		}
		if err := fs.Datasync(l.file); err != nil {
			return fmt.Errorf("metalog: sync after recovery: %w", err)
		}
		l.recovered = Recovery{DroppedBytes: size - end, Reason: "torn line"}
	}

	l.count.Store(uint64(len(l.ends)))
	return nil
}

// end returns the byte length of the first n lines. Callers hold omu or
// own the log exclusively.
func (l *Log) end(n uint64) int64 {
	if n == 0 {
		return 0
	}
	return l.ends[n-1]
}

// span returns the [start, end) byte range of line ord.
func (l *Log) span(ord uint64) (int64, int64) {
	l.omu.RLock()
	defer l.omu.RUnlock()
	return l.end(ord), l.ends[ord]
}

// Append writes rec as the next line and returns its ordinal.
func (l *Log) Append(rec model.Record) (model.Ordinal, error) {
	line, err := l.opts.Codec.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("metalog: encode: %w", err)
	}
	if bytes.IndexByte(line, '\n') >= 0 {
		return 0, fmt.Errorf("metalog: codec %s produced a multi-line record", l.opts.Codec.Name())
	}
	line = append(line, '\n')

	l.wmu.Lock()
	defer l.wmu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	if l.broken != nil {
		return 0, fmt.Errorf("%w: %w", ErrBroken, l.broken)
	}

	ord := l.count.Load()
	l.omu.RLock()
	off := l.end(ord)
	l.omu.RUnlock()

	if _, err := l.file.WriteAt(line, off); err != nil {
		return 0, l.undo(off, fmt.Errorf("metalog: write record %d: %w", ord, err))
	}
	if l.opts.Durability == DurabilitySync {
		if err := fs.Datasync(l.file); err != nil {
			return 0, l.undo(off, fmt.Errorf("metalog: sync record %d: %w", ord, err))
		}
	}

	l.omu.Lock()
	l.ends = append(l.ends, off+int64(len(line)))
	l.omu.Unlock()

	l.count.Store(ord + 1)
	return model.Ordinal(ord), nil
}

// undo cuts the file back to off after a failed append. Callers hold wmu.
func (l *Log) undo(off int64, cause error) error {
	if err := l.file.Truncate(off); err != nil {
		l.broken = err
		return errors.Join(cause, fmt.Errorf("%w: %w", ErrBroken, err))
	}
	return cause
}

// Truncate drops every line at or beyond n.
func (l *Log) Truncate(n uint64) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	if l.closed {
		return ErrClosed
	}
	count := l.count.Load()
	if n > count {
		return fmt.Errorf("%w: truncate to %d with %d records", ErrOutOfRange, n, count)
	}

	l.omu.Lock()
	defer l.omu.Unlock()

	if err := l.file.Truncate(l.end(n)); err != nil {
		l.broken = err
		return fmt.Errorf("metalog: truncate to %d: %w", n, err)
	}
	if l.opts.Durability == DurabilitySync {
		if err := fs.Datasync(l.file); err != nil {
			return fmt.Errorf("metalog: sync truncate: %w", err)
		}
	}
	l.ends = l.ends[:n]
	l.broken = nil
	l.count.Store(n)
	return nil
}

// Count returns the number of lines in the log.
func (l *Log) Count() uint64 {
	return l.count.Load()
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Recovered reports what Open had to discard.
func (l *Log) Recovered() Recovery {
	return l.recovered
}

// Size returns the byte length of the first Count lines.
func (l *Log) Size() int64 {
	return l.EndOffset(l.count.Load())
}

// EndOffset returns the byte length of the first n lines.
func (l *Log) EndOffset(n uint64) int64 {
	l.omu.RLock()
	defer l.omu.RUnlock()
	return l.end(min(n, uint64(len(l.ends))))
}

func (l *Log) decode(ord model.Ordinal, line []byte) (model.Record, error) {
	line = bytes.TrimSuffix(line, []byte{'\n'})

	var rec model.Record
	if err := l.opts.Codec.Unmarshal(line, &rec); err != nil {
		return model.Record{}, &ParseError{Ordinal: ord, Err: err}
	}
	if err := rec.Validate(); err != nil {
		return model.Record{}, &ParseError{Ordinal: ord, Err: err}
	}
	return rec, nil
}

// Get returns the record at ord.
func (l *Log) Get(ord model.Ordinal) (model.Record, error) {
	if uint64(ord) >= l.count.Load() {
		return model.Record{}, fmt.Errorf("%w: %d", ErrOutOfRange, ord)
	}
	start, end := l.span(uint64(ord))
	buf := make([]byte, end-start)
	if _, err := l.file.ReadAt(buf, start); err != nil {
		return model.Record{}, fmt.Errorf("metalog: read record %d: %w", ord, err)
	}
	return l.decode(ord, buf)
}

// All returns the records with ordinals below n in order.
//
// A malformed line yields an Entry whose Err is a *ParseError and iteration
// continues. An I/O error yields one Entry carrying it and ends the sequence.
func (l *Log) All(n uint64) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		n = min(n, l.count.Load())
		if n == 0 {
			return
		}

		br := bufio.NewReaderSize(io.NewSectionReader(l.file, 0, l.EndOffset(n)), l.opts.ReadBufferSize)
		for i := uint64(0); i < n; i++ {
			ord := model.Ordinal(i)
			line, err := br.ReadBytes('\n')
			if err != nil {
				yield(Entry{Ordinal: ord, Err: fmt.Errorf("metalog: read record %d: %w", i, err)})
				return
			}
			rec, err := l.decode(ord, line)
			if !yield(Entry{Ordinal: ord, Record: rec, Err: err}) {
				return
			}
		}
	}
}

// ReadByOrdinals resolves a sparse set of ordinals with one positioned read
// each, in ascending file order. Ordinals at or beyond Count are ignored.
// Malformed lines are reported in the returned slice, not as an error.
func (l *Log) ReadByOrdinals(ords []model.Ordinal) (map[model.Ordinal]model.Record, []*ParseError, error) {
	count := l.count.Load()

	set := roaring64.New()
	for _, o := range ords {
		if uint64(o) < count {
			set.Add(uint64(o))
		}
	}

	out := make(map[model.Ordinal]model.Record, set.GetCardinality())
	var malformed []*ParseError
	var buf []byte

	it := set.Iterator()
	for it.HasNext() {
		ord := it.Next()
		start, end := l.span(ord)
		if need := int(end - start); cap(buf) < need {
			buf = make([]byte, need)
		} else {
			buf = buf[:need]
		}
		if _, err := l.file.ReadAt(buf, start); err != nil {
			return nil, nil, fmt.Errorf("metalog: read record %d: %w", ord, err)
		}

		rec, err := l.decode(model.Ordinal(ord), buf)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				malformed = append(malformed, pe)
				continue
			}
			return nil, nil, err
		}
		out[model.Ordinal(ord)] = rec
	}
	return out, malformed, nil
}

// NewReader returns a reader over the raw bytes of the first n lines.
func (l *Log) NewReader(n uint64) io.Reader {
	return io.NewSectionReader(l.file, 0, l.EndOffset(n))
}

// Sync flushes the log to stable storage.
func (l *Log) Sync() error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return fs.Datasync(l.file)
}

// Close syncs and closes the log. Closing twice is a no-op.
func (l *Log) Close() error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(fs.Datasync(l.file), l.file.Close())
}

package vectorlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/reviewdb/internal/hash"
)

// HeaderSize is the size of the file header in bytes.
const HeaderSize = 16

var (
	magic         = [4]byte{'R', 'V', 'E', 'C'}
	headerVersion = uint16(1)
)

var (
	// ErrCorruptHeader is returned when the file header is unreadable.
	ErrCorruptHeader = errors.New("vectorlog: corrupt header")
	// ErrUnsupportedVersion is returned for headers written by a newer format.
	ErrUnsupportedVersion = errors.New("vectorlog: unsupported version")
)

type header struct {
	Version uint16
	Flags   uint16
	Dim     uint32
}

func (h header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dim)
	binary.LittleEndian.PutUint32(buf[12:16], hash.CRC32C(buf[0:12]))
	return buf
}

func readHeader(r io.ReaderAt) (header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return header{}, fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	if [4]byte(buf[0:4]) != magic {
		return header{}, fmt.Errorf("%w: bad magic", ErrCorruptHeader)
	}
	if binary.LittleEndian.Uint32(buf[12:16]) != hash.CRC32C(buf[0:12]) {
		return header{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptHeader)
	}

	h := header{
		Version: binary.LittleEndian.Uint16(buf[4:6]),
		Flags:   binary.LittleEndian.Uint16(buf[6:8]),
		Dim:     binary.LittleEndian.Uint32(buf[8:12]),
	}
	if h.Version != headerVersion {
		return header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

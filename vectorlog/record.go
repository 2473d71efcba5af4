package vectorlog

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/hupe1980/reviewdb/internal/hash"
)

// ErrChecksum is returned when a stored record does not match its checksum.
var ErrChecksum = errors.New("vectorlog: record checksum mismatch")

func recordSize(dim int) int64 {
	return int64(dim)*4 + 4
}

// encodeRecord writes vec and its checksum into buf, which must be
// recordSize(len(vec)) bytes long.
func encodeRecord(buf []byte, vec []float32) {
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	payload := buf[:len(vec)*4]
	binary.LittleEndian.PutUint32(buf[len(payload):], hash.CRC32C(payload))
}

// verifyRecord reports whether the trailing checksum of buf is valid.
func verifyRecord(buf []byte) bool {
	n := len(buf) - 4
	return binary.LittleEndian.Uint32(buf[n:]) == hash.CRC32C(buf[:n])
}

func decodeRecord(buf []byte, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

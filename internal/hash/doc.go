// Package hash provides the checksum used by every on-disk format.
//
// # CRC32-Castagnoli (CRC32C)
//
// Vector log records, the vector log header and snapshot streams are all
// protected by CRC32-Castagnoli, which Go's crc32 package computes with
// hardware instructions on x86 (SSE4.2) and ARM (CRC extension).
//
// # Usage
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash

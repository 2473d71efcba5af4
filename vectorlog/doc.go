// Package vectorlog implements the append-only vector log.
//
// The file starts with a 16 byte header followed by fixed-width records:
//
//	header: magic "RVEC" | version u16 | flags u16 | dim u32 | crc32c u32
//	record: dim x float32 (little endian) | crc32c u32
//
// Record i starts at HeaderSize + i*(dim*4+4), so any vector can be read
// with a single positioned read. Appends are serialised and each record is
// written with one WriteAt.
//
// On open the log verifies every record. A torn tail, or the first record
// whose checksum does not match, ends the log; the file is truncated to the
// last good record and the dropped byte count is reported by Recovered.
package vectorlog

// Package metalog implements the append-only metadata log: one JSON encoded
// record per line, where line i belongs to ordinal i.
//
// Open scans the file once and keeps the end offset of every line in memory,
// so single records are resolved with one positioned read. A final line
// without a terminating newline is the remainder of an interrupted append and
// is truncated away.
package metalog

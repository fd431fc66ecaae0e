// Package storage implements the persistence layer of file backed matrices.
//
// A backing file is an append-only log of row records behind a fixed header:
//
//	header (32 bytes):  magic "SMXFILE\x00" | version u32 | flags u32 | file id (uuid)
//	record (32 bytes + payload):
//	                    kind u8 | codec u8 | reserved u16 | row u32 | count u32 |
//	                    payloadLen u32 | xxhash64(payload) u64 | reserved u32 |
//	                    xxhash64(header[0:28]) truncated to u32
//	payload:            count x (col u32 | value i64), optionally zstd or lz4 compressed
//
// All integers are little endian. A record with count 0 is a tombstone and
// removes the row. Storing a row appends a new record, the in-memory index
// always points to the newest record of every row. Open rebuilds the index
// from the record headers without reading the payloads, the checksum of a
// payload is verified when the row is loaded.
//
// Crash behavior: records are only appended, so a crash can at most leave an
// incomplete record at the end of the file. Open truncates it and logs a warning
// if it is recognizable as such: a header cut short by the end of the file, an
// intact header whose payload is cut short, or a zeroed region up to the end
// of the file. Every other bad header fails Open with matrix.ErrCorrupt.
// Rows whose records were written but not synced may be lost.
//
// A failed append is truncated away right away. If that truncate fails too the
// File refuses further writes, Close still releases it and reports the error.
//
// Open with Options.ReadOnly never modifies the file: a torn tail is ignored
// instead of truncated, and all writes fail.
//
// Compact rewrites the file with only the newest record of every row and
// replaces the old file with an atomic rename.
//
// A backing file is owned by exactly one File at a time. Open takes an exclusive
// flock (unix only) and fails with an error matching matrix.ErrLocked if the
// file is already open.
//
// All file system access goes through the FileSystem interface. FaultyFS wraps
// a FileSystem and injects errors, it is used to test failure handling.
package storage

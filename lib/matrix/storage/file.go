package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("storage")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// file header layout (little endian):
//
//	magic [8] | version u32 | flags u32 | file id [16]
const (
	magicNum      = "SMXFILE\x00" // File format identifier
	formatVersion = 2             // File format version
	headerSize    = 32

	compactSuffix = ".compact"
)

// ErrReadOnly is returned for writes to a file opened with Options.ReadOnly
var ErrReadOnly = errors.New("file is opened read-only")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a backing file
type Options struct {
	FS       FileSystem // File system to use (nil = DefaultFS)
	Codec    Codec      // Compression of newly written rows
	ReadOnly bool       // Open an existing file without ever modifying it
}

// DefaultOptions returns the default file options
func DefaultOptions() *Options {
	return &Options{
		FS:    DefaultFS,
		Codec: CodecNone,
	}
}

// --------------------------------------------------------------------------
// File
// --------------------------------------------------------------------------

// recordRef points to the newest record of a row
type recordRef struct {
	off  int64  // Offset of the record header
	size uint32 // Size of header and payload
}

// File is the persistence layer of a file backed matrix. It stores rows in an
// append-only log of row records: every store appends a new record and the
// in-memory index points to the newest record of every row. An empty row is
// stored as tombstone. Superseded records are garbage until Compact rewrites
// the file.
//
// Thread-safety: All methods are safe for concurrent use.
type File struct {
	mu   sync.RWMutex
	path string
	fs   FileSystem

	f      FileHandle
	unlock func() error
	id     uuid.UUID
	codec  Codec

	index     map[uint32]recordRef
	tail      int64 // Offset where the next record is appended
	liveBytes int64 // Bytes of the records referenced by the index
	readOnly  bool
	broken    error // Set if a partial record could not be removed, blocks writes
	closed    bool
}

// Stats describes a backing file
type Stats struct {
	ID         uuid.UUID
	Rows       int   // Number of persisted (non-empty) rows
	LiveBytes  int64 // Bytes of the newest record of every row
	TotalBytes int64 // Size of the file
	Codec      Codec
}

// Open opens the backing file at path, creating it if it doesn't exist.
// The row index is rebuilt from the record headers, a torn record at the end
// of the file (e.g. after a crash during a write) is truncated away.
// With opts.ReadOnly the file must exist and is never modified.
//
// Errors are returned as *matrix.IOError. A file owned by another instance
// results in an error matching matrix.ErrLocked, a file with an invalid header
// or record in an error matching matrix.ErrCorrupt.
func Open(path string, opts *Options) (*File, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	fs := opts.FS
	if fs == nil {
		fs = DefaultFS
	}

	flag := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := fs.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, matrix.NewIOError("open", path, err)
	}

	unlock, err := lockFile(f)
	if err != nil {
		_ = f.Close()
		return nil, matrix.NewIOError("open", path, err)
	}

	file := &File{
		path:   path,
		fs:     fs,
		f:      f,
		unlock: unlock,
		codec:    opts.Codec,
		index:    make(map[uint32]recordRef),
		readOnly: opts.ReadOnly,
	}

	if err := file.load(); err != nil {
		_ = unlock()
		_ = f.Close()
		return nil, matrix.NewIOError("open", path, err)
	}

	Logger.Debugf("opened %s (id %s, %d rows, %d bytes)", path, file.id, len(file.index), file.tail)
	return file, nil
}

// load initializes a new file or reads the header and record index of an existing one
func (file *File) load() error {
	info, err := file.f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file", matrix.ErrCorrupt)
	}

	// new file
	if info.Size() == 0 {
		if file.readOnly {
			file.tail = headerSize
			return nil
		}
		file.id = uuid.New()
		if _, err := file.f.WriteAt(encodeFileHeader(file.id), 0); err != nil {
			return err
		}
		file.tail = headerSize
		return file.f.Sync()
	}

	if info.Size() < headerSize {
		return fmt.Errorf("%w: file too small for header (%d bytes)", matrix.ErrCorrupt, info.Size())
	}

	header := make([]byte, headerSize)
	if _, err := file.f.ReadAt(header, 0); err != nil {
		return err
	}
	id, err := decodeFileHeader(header)
	if err != nil {
		return err
	}
	file.id = id

	return file.scan(info.Size())
}

// scan rebuilds the row index by reading the record headers. The payloads are
// skipped, they are verified when a row is loaded.
func (file *File) scan(size int64) error {
	br := bufio.NewReaderSize(io.NewSectionReader(file.f, headerSize, size-headerSize), 1024*1024) // 1 MB buffer
	hdr := make([]byte, recordHeaderSize)
	off := int64(headerSize)

	for off < size {
		// header cut short by the end of the file
		if off+recordHeaderSize > size {
			return file.truncateTorn(off, size)
		}
		if _, err := io.ReadFull(br, hdr); err != nil {
			return err
		}

		h, err := checkRecordHeader(hdr)
		if err != nil {
			// space that was allocated but never written before a crash
			zero, zerr := file.zeroed(off, size)
			if zerr != nil {
				return zerr
			}
			if zero {
				return file.truncateTorn(off, size)
			}
			return fmt.Errorf("record at offset %d: %w", off, err)
		}

		// intact header, payload cut short by the end of the file
		recSize := int64(recordHeaderSize) + int64(h.payloadLen)
		if off+recSize > size {
			return file.truncateTorn(off, size)
		}
		if _, err := br.Discard(int(h.payloadLen)); err != nil {
			return err
		}

		file.apply(h.row, h.count, recordRef{off: off, size: uint32(recSize)})
		off += recSize
	}

	file.tail = off
	return nil
}

// zeroed reports whether all bytes in [off, size) are zero
func (file *File) zeroed(off, size int64) (bool, error) {
	buf := make([]byte, 64*1024)
	for off < size {
		n := int(min(int64(len(buf)), size-off))
		if _, err := file.f.ReadAt(buf[:n], off); err != nil {
			return false, err
		}
		for _, b := range buf[:n] {
			if b != 0 {
				return false, nil
			}
		}
		off += int64(n)
	}
	return true, nil
}

// truncateTorn cuts off an incomplete record at the end of the file. A read-only
// file keeps it and only ignores it.
func (file *File) truncateTorn(off, size int64) error {
	file.tail = off
	if file.readOnly {
		Logger.Warningf("%s: ignoring torn record at offset %d (%d bytes)", file.path, off, size-off)
		return nil
	}
	Logger.Warningf("%s: truncating torn record at offset %d (%d bytes)", file.path, off, size-off)
	if err := file.f.Truncate(off); err != nil {
		return err
	}
	return file.f.Sync()
}

// apply updates the index for a record of row with count entries
func (file *File) apply(row, count uint32, ref recordRef) {
	if old, ok := file.index[row]; ok {
		file.liveBytes -= int64(old.size)
		delete(file.index, row)
	}
	if count > 0 {
		file.index[row] = ref
		file.liveBytes += int64(ref.size)
	}
}

func encodeFileHeader(id uuid.UUID) []byte {
	b := make([]byte, headerSize)
	copy(b[0:8], magicNum)
	binary.LittleEndian.PutUint32(b[8:12], formatVersion)
	binary.LittleEndian.PutUint32(b[12:16], 0) // flags
	copy(b[16:32], id[:])
	return b
}

func decodeFileHeader(b []byte) (uuid.UUID, error) {
	if string(b[0:8]) != magicNum {
		return uuid.Nil, fmt.Errorf("%w: magic number mismatch", matrix.ErrCorrupt)
	}
	if version := binary.LittleEndian.Uint32(b[8:12]); version != formatVersion {
		return uuid.Nil, fmt.Errorf("%w: unsupported version %d (expected %d)", matrix.ErrCorrupt, version, formatVersion)
	}
	id, err := uuid.FromBytes(b[16:32])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", matrix.ErrCorrupt, err)
	}
	return id, nil
}

// --------------------------------------------------------------------------
// Row Operations
// --------------------------------------------------------------------------

// HasRow reports whether the file holds a non-empty row with index row
func (file *File) HasRow(row uint32) bool {
	file.mu.RLock()
	defer file.mu.RUnlock()
	_, ok := file.index[row]
	return ok
}

// LoadRow reads the newest record of row. A row that isn't stored is returned
// as empty slice.
func (file *File) LoadRow(row uint32) ([]matrix.Entry, error) {
	file.mu.RLock()
	defer file.mu.RUnlock()

	if file.closed {
		return nil, matrix.NewIOError("load", file.path, os.ErrClosed)
	}

	ref, ok := file.index[row]
	if !ok {
		return []matrix.Entry{}, nil
	}

	rec := make([]byte, ref.size)
	if _, err := file.f.ReadAt(rec, ref.off); err != nil {
		return nil, matrix.NewIOError("load", file.path, err)
	}

	h, err := checkRecordHeader(rec[:recordHeaderSize])
	if err != nil {
		return nil, matrix.NewIOError("load", file.path, fmt.Errorf("record at offset %d: %w", ref.off, err))
	}
	if h.row != row {
		return nil, matrix.NewIOError("load", file.path, fmt.Errorf("%w: record at offset %d belongs to row %d, expected %d", matrix.ErrCorrupt, ref.off, h.row, row))
	}

	entries, err := decodePayload(h, rec[recordHeaderSize:])
	if err != nil {
		return nil, matrix.NewIOError("load", file.path, err)
	}
	return entries, nil
}

// StoreRow appends a record with the entries of row (ascending columns, no zero
// values). An empty entries slice removes the row. The record is durable after
// the next Flush.
func (file *File) StoreRow(row uint32, entries []matrix.Entry) error {
	file.mu.Lock()
	defer file.mu.Unlock()

	if err := file.writable(); err != nil {
		return matrix.NewIOError("store", file.path, err)
	}

	// nothing to remove
	if _, ok := file.index[row]; !ok && len(entries) == 0 {
		return nil
	}

	rec := encodeRecord(row, entries, file.codec)
	if _, err := file.f.WriteAt(rec, file.tail); err != nil {
		// a partial record must not stay behind the tail
		if terr := file.f.Truncate(file.tail); terr != nil {
			file.broken = fmt.Errorf("removing partial record at offset %d: %w", file.tail, terr)
			Logger.Errorf("%s: %v", file.path, file.broken)
		}
		return matrix.NewIOError("store", file.path, err)
	}

	file.apply(row, uint32(len(entries)), recordRef{off: file.tail, size: uint32(len(rec))})
	file.tail += int64(len(rec))
	return nil
}

// writable returns an error if records can't be appended. Caller must hold the lock.
func (file *File) writable() error {
	switch {
	case file.closed:
		return os.ErrClosed
	case file.readOnly:
		return ErrReadOnly
	case file.broken != nil:
		return file.broken
	}
	return nil
}

// Rows returns the indices of all stored rows in ascending order
func (file *File) Rows() []uint32 {
	file.mu.RLock()
	defer file.mu.RUnlock()

	rows := make([]uint32, 0, len(file.index))
	for row := range file.index {
		rows = append(rows, row)
	}
	slices.Sort(rows)
	return rows
}

// --------------------------------------------------------------------------
// File Operations
// --------------------------------------------------------------------------

// Path returns the path of the file
func (file *File) Path() string {
	return file.path
}

// Stats returns information about the file
func (file *File) Stats() Stats {
	file.mu.RLock()
	defer file.mu.RUnlock()

	return Stats{
		ID:         file.id,
		Rows:       len(file.index),
		LiveBytes:  file.liveBytes + headerSize,
		TotalBytes: file.tail,
		Codec:      file.codec,
	}
}

// Flush makes all stored records durable. Flushing a read-only file is a no-op.
func (file *File) Flush() error {
	file.mu.RLock()
	defer file.mu.RUnlock()

	if file.closed {
		return matrix.NewIOError("sync", file.path, os.ErrClosed)
	}
	if file.readOnly {
		return nil
	}
	if file.broken != nil {
		return matrix.NewIOError("sync", file.path, file.broken)
	}
	if err := file.f.Sync(); err != nil {
		return matrix.NewIOError("sync", file.path, err)
	}
	return nil
}

// Close syncs and closes the file. Closing a closed file is a no-op.
// The file is released even if the sync fails.
func (file *File) Close() error {
	file.mu.Lock()
	defer file.mu.Unlock()

	if file.closed {
		return nil
	}
	file.closed = true

	var err error
	switch {
	case file.readOnly:
	case file.broken != nil:
		err = file.broken
	default:
		err = file.f.Sync()
	}
	if unlockErr := file.unlock(); err == nil {
		err = unlockErr
	}
	if closeErr := file.f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return matrix.NewIOError("close", file.path, err)
	}

	Logger.Debugf("closed %s", file.path)
	return nil
}

// Compact rewrites the file so that it only contains the newest record of every
// row. The new file is written next to the old one and atomically renamed over it.
// If Compact fails the old file stays in use. A file that refuses writes after
// a failed append is usable again after a successful Compact.
func (file *File) Compact() error {
	file.mu.Lock()
	defer file.mu.Unlock()

	if file.closed {
		return matrix.NewIOError("compact", file.path, os.ErrClosed)
	}
	if file.readOnly {
		return matrix.NewIOError("compact", file.path, ErrReadOnly)
	}

	before := file.tail
	tmpPath := file.path + compactSuffix
	tmp, err := file.fs.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return matrix.NewIOError("compact", file.path, err)
	}

	fail := func(err error) error {
		_ = tmp.Close()
		_ = file.fs.Remove(tmpPath)
		return matrix.NewIOError("compact", file.path, err)
	}

	// the new file is locked before it becomes visible under the original path
	unlock, err := lockFile(tmp)
	if err != nil {
		return fail(err)
	}

	rows := make([]uint32, 0, len(file.index))
	for row := range file.index {
		rows = append(rows, row)
	}
	slices.Sort(rows)

	index := make(map[uint32]recordRef, len(rows))
	w := bufio.NewWriterSize(io.NewOffsetWriter(tmp, 0), 1024*1024) // 1 MB buffer
	if _, err := w.Write(encodeFileHeader(file.id)); err != nil {
		_ = unlock()
		return fail(err)
	}

	off := int64(headerSize)
	for _, row := range rows {
		ref := file.index[row]
		rec := make([]byte, ref.size)
		if _, err := file.f.ReadAt(rec, ref.off); err != nil {
			_ = unlock()
			return fail(err)
		}
		if _, err := w.Write(rec); err != nil {
			_ = unlock()
			return fail(err)
		}
		index[row] = recordRef{off: off, size: ref.size}
		off += int64(ref.size)
	}

	if err := w.Flush(); err != nil {
		_ = unlock()
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = unlock()
		return fail(err)
	}
	if err := file.fs.Rename(tmpPath, file.path); err != nil {
		_ = unlock()
		return fail(err)
	}
	file.syncDir()

	// switch to the new file, the old one is unlinked
	_ = file.unlock()
	if err := file.f.Close(); err != nil {
		Logger.Warningf("%s: closing replaced file: %v", file.path, err)
	}
	file.f = tmp
	file.unlock = unlock
	file.index = index
	file.tail = off
	file.liveBytes = off - headerSize
	file.broken = nil

	Logger.Infof("compacted %s from %d to %d bytes", file.path, before, off)
	return nil
}

// syncDir syncs the parent directory so that a rename is durable
func (file *File) syncDir() {
	dir, err := file.fs.OpenFile(filepath.Dir(file.path), os.O_RDONLY, 0)
	if err != nil {
		Logger.Warningf("%s: opening parent directory: %v", file.path, err)
		return
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		Logger.Warningf("%s: syncing parent directory: %v", file.path, err)
	}
}

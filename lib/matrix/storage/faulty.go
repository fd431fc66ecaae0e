package storage

import (
	"errors"
	"os"
	"sync/atomic"
)

// ErrInjected is the default error returned by a FaultyFS
var ErrInjected = errors.New("injected fault")

// FaultyFS is a FileSystem wrapper that can inject errors into the files it opens.
// The failure switches can be flipped at any time and affect all files opened
// through this FaultyFS, including files opened before the switch.
type FaultyFS struct {
	FS  FileSystem
	Err error // Returned by failing operations (ErrInjected if nil)

	failWrites atomic.Bool
	failReads  atomic.Bool
	failSync   atomic.Bool
	failRename   atomic.Bool
	failTruncate atomic.Bool
	writes       atomic.Int64

	// byte limit + 1 of the next WriteAt, 0 if disarmed
	partial atomic.Int64
}

// NewFaultyFS creates a new FaultyFS wrapping fs (or DefaultFS if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = DefaultFS
	}
	return &FaultyFS{FS: fs}
}

// FailWrites makes every following write fail (or succeed again)
func (f *FaultyFS) FailWrites(fail bool) { f.failWrites.Store(fail) }

// FailReads makes every following read fail (or succeed again)
func (f *FaultyFS) FailReads(fail bool) { f.failReads.Store(fail) }

// FailSync makes every following sync fail (or succeed again)
func (f *FaultyFS) FailSync(fail bool) { f.failSync.Store(fail) }

// FailRename makes every following rename fail (or succeed again)
func (f *FaultyFS) FailRename(fail bool) { f.failRename.Store(fail) }

// FailTruncate makes every following truncate fail (or succeed again)
func (f *FaultyFS) FailTruncate(fail bool) { f.failTruncate.Store(fail) }

// FailNextWriteAfter makes the next write store at most n bytes of its data and
// then fail, like a write that runs out of disk space. Later writes succeed.
func (f *FaultyFS) FailNextWriteAfter(n int) { f.partial.Store(int64(max(n, 0)) + 1) }

// Writes returns the number of successful write calls
func (f *FaultyFS) Writes() int64 { return f.writes.Load() }

func (f *FaultyFS) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (FileHandle, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{FileHandle: file, fs: f}, nil
}

func (f *FaultyFS) Remove(name string) error { return f.FS.Remove(name) }

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if f.failRename.Load() {
		return f.err()
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

type faultyFile struct {
	FileHandle
	fs *FaultyFS
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if ff.fs.failWrites.Load() {
		return 0, ff.fs.err()
	}
	if limit := ff.fs.partial.Swap(0); limit > 0 {
		n, err := ff.FileHandle.WriteAt(p[:min(int(limit-1), len(p))], off)
		if err != nil {
			return n, err
		}
		return n, ff.fs.err()
	}
	n, err := ff.FileHandle.WriteAt(p, off)
	if err == nil {
		ff.fs.writes.Add(1)
	}
	return n, err
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fs.failReads.Load() {
		return 0, ff.fs.err()
	}
	return ff.FileHandle.ReadAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if ff.fs.failSync.Load() {
		return ff.fs.err()
	}
	return ff.FileHandle.Sync()
}

func (ff *faultyFile) Truncate(size int64) error {
	if ff.fs.failTruncate.Load() {
		return ff.fs.err()
	}
	return ff.FileHandle.Truncate(size)
}

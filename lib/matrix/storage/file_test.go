package storage

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow(n int, seed int64) []matrix.Entry {
	entries := make([]matrix.Entry, n)
	for i := range entries {
		entries[i] = matrix.Entry{Col: uint32(i * 3), Value: seed + int64(i%5) + 1}
	}
	return entries
}

func openTemp(t *testing.T, opts *Options) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix.smx")
	f, err := Open(path, opts)
	require.NoError(t, err)
	return f, path
}

func TestOpenCreatesFile(t *testing.T) {
	f, path := openTemp(t, nil)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize), info.Size())

	stats := f.Stats()
	assert.Equal(t, 0, stats.Rows)
	assert.Equal(t, int64(headerSize), stats.TotalBytes)
	assert.Equal(t, path, f.Path())

	require.NoError(t, f.Close())
	require.NoError(t, f.Close(), "second close is a no-op")
}

func TestStoreLoadReopen(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			f, path := openTemp(t, &Options{Codec: codec})

			short := testRow(3, 1)
			long := testRow(500, 7)
			require.NoError(t, f.StoreRow(1, short))
			require.NoError(t, f.StoreRow(2, long))
			require.NoError(t, f.StoreRow(1, long)) // supersedes the first record

			got, err := f.LoadRow(1)
			require.NoError(t, err)
			assert.Equal(t, long, got)

			empty, err := f.LoadRow(99)
			require.NoError(t, err)
			assert.Empty(t, empty)
			assert.False(t, f.HasRow(99))

			id := f.Stats().ID
			require.NoError(t, f.Close())

			f, err = Open(path, &Options{Codec: codec})
			require.NoError(t, err)
			defer f.Close()

			assert.Equal(t, id, f.Stats().ID, "file id is kept")
			assert.Equal(t, []uint32{1, 2}, f.Rows())

			got, err = f.LoadRow(2)
			require.NoError(t, err)
			assert.Equal(t, long, got)
		})
	}
}

func TestCompressionShrinksPayload(t *testing.T) {
	row := testRow(1000, 0)
	raw := encodeRecord(1, row, CodecNone)
	for _, codec := range []Codec{CodecZstd, CodecLZ4} {
		rec := encodeRecord(1, row, codec)
		assert.Less(t, len(rec), len(raw), codec.String())
		assert.Equal(t, codec, decodeRecordHeader(rec).codec)
	}

	// short rows are never compressed
	rec := encodeRecord(1, testRow(2, 0), CodecZstd)
	assert.Equal(t, CodecNone, decodeRecordHeader(rec).codec)
}

func TestTombstone(t *testing.T) {
	f, path := openTemp(t, nil)

	require.NoError(t, f.StoreRow(5, testRow(10, 1)))
	require.NoError(t, f.StoreRow(5, nil))
	assert.False(t, f.HasRow(5))

	// removing a row that isn't stored writes nothing
	size := f.Stats().TotalBytes
	require.NoError(t, f.StoreRow(6, nil))
	assert.Equal(t, size, f.Stats().TotalBytes)

	require.NoError(t, f.Close())

	f, err := Open(path, nil)
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, f.HasRow(5))
	assert.Equal(t, 0, f.Stats().Rows)
}

func TestTornTailIsTruncated(t *testing.T) {
	f, path := openTemp(t, nil)
	require.NoError(t, f.StoreRow(1, testRow(4, 1)))
	require.NoError(t, f.StoreRow(2, testRow(4, 2)))
	complete := f.Stats().TotalBytes
	require.NoError(t, f.Close())

	// simulate a crash during the write of a third record
	rec := encodeRecord(3, testRow(20, 3), CodecNone)
	osf, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = osf.Write(rec[:len(rec)/2])
	require.NoError(t, err)
	require.NoError(t, osf.Close())

	f, err = Open(path, nil)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []uint32{1, 2}, f.Rows())
	assert.Equal(t, complete, f.Stats().TotalBytes)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, complete, info.Size())

	// the file is writable after recovery
	require.NoError(t, f.StoreRow(3, testRow(20, 3)))
	got, err := f.LoadRow(3)
	require.NoError(t, err)
	assert.Equal(t, testRow(20, 3), got)
}

func TestCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("BadMagic", func(t *testing.T) {
		path := filepath.Join(dir, "bad-magic")
		require.NoError(t, os.WriteFile(path, []byte("this is not a matrix file at all"), 0o644))
		_, err := Open(path, nil)
		assert.ErrorIs(t, err, matrix.ErrIO)
		assert.ErrorIs(t, err, matrix.ErrCorrupt)
	})

	t.Run("TooSmall", func(t *testing.T) {
		path := filepath.Join(dir, "too-small")
		require.NoError(t, os.WriteFile(path, []byte("SMX"), 0o644))
		_, err := Open(path, nil)
		assert.ErrorIs(t, err, matrix.ErrCorrupt)
	})

	t.Run("Checksum", func(t *testing.T) {
		path := filepath.Join(dir, "checksum")
		f, err := Open(path, nil)
		require.NoError(t, err)
		require.NoError(t, f.StoreRow(1, testRow(4, 1)))
		require.NoError(t, f.Close())

		// flip a byte in the payload
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[headerSize+recordHeaderSize+1] ^= 0xff
		require.NoError(t, os.WriteFile(path, data, 0o644))

		f, err = Open(path, nil)
		require.NoError(t, err, "payloads are not verified during open")
		defer f.Close()
		_, err = f.LoadRow(1)
		assert.ErrorIs(t, err, matrix.ErrCorrupt)
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := Open(dir, nil)
		assert.ErrorIs(t, err, matrix.ErrIO)
	})
}

func TestExclusiveOwnership(t *testing.T) {
	f, path := openTemp(t, nil)

	_, err := Open(path, nil)
	assert.ErrorIs(t, err, matrix.ErrLocked)
	assert.ErrorIs(t, err, matrix.ErrIO)

	require.NoError(t, f.Close())

	f, err = Open(path, nil)
	require.NoError(t, err, "file can be opened again after close")
	require.NoError(t, f.Close())
}

func TestCompact(t *testing.T) {
	f, path := openTemp(t, &Options{Codec: CodecZstd})

	for i := 0; i < 20; i++ {
		require.NoError(t, f.StoreRow(uint32(i%4), testRow(50, int64(i))))
	}
	require.NoError(t, f.StoreRow(3, nil))

	before := f.Stats()
	require.NoError(t, f.Compact())
	after := f.Stats()

	assert.Equal(t, before.Rows, after.Rows)
	assert.Less(t, after.TotalBytes, before.TotalBytes)
	assert.Equal(t, after.LiveBytes, after.TotalBytes)
	assert.Equal(t, before.ID, after.ID)

	_, err := os.Stat(path + compactSuffix)
	assert.True(t, os.IsNotExist(err), "temporary file is renamed")

	// newest records survive
	got, err := f.LoadRow(2)
	require.NoError(t, err)
	assert.Equal(t, testRow(50, 18), got)

	// the compacted file is still owned exclusively
	_, err = Open(path, nil)
	assert.ErrorIs(t, err, matrix.ErrLocked)

	require.NoError(t, f.StoreRow(7, testRow(5, 1)))
	require.NoError(t, f.Close())

	f, err = Open(path, nil)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []uint32{0, 1, 2, 7}, f.Rows())
}

func TestFaultInjection(t *testing.T) {
	fs := NewFaultyFS(nil)
	f, path := openTemp(t, &Options{FS: fs})

	require.NoError(t, f.StoreRow(1, testRow(3, 1)))
	size := f.Stats().TotalBytes

	fs.FailWrites(true)
	err := f.StoreRow(2, testRow(3, 2))
	assert.ErrorIs(t, err, matrix.ErrIO)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, size, f.Stats().TotalBytes, "failed store doesn't advance the tail")
	assert.False(t, f.HasRow(2))
	fs.FailWrites(false)

	fs.FailSync(true)
	assert.ErrorIs(t, f.Flush(), matrix.ErrIO)
	fs.FailSync(false)
	require.NoError(t, f.Flush())

	fs.FailReads(true)
	_, err = f.LoadRow(1)
	assert.ErrorIs(t, err, matrix.ErrIO)
	fs.FailReads(false)

	fs.FailRename(true)
	assert.ErrorIs(t, f.Compact(), matrix.ErrIO)
	fs.FailRename(false)
	_, err = os.Stat(path + compactSuffix)
	assert.True(t, os.IsNotExist(err), "temporary file is removed after a failed compaction")

	got, err := f.LoadRow(1)
	require.NoError(t, err)
	assert.Equal(t, testRow(3, 1), got)

	require.NoError(t, f.Close())
	_, err = f.LoadRow(1)
	assert.ErrorIs(t, err, matrix.ErrIO)
}

func TestParseCodec(t *testing.T) {
	for _, name := range []string{"none", "zstd", "lz4", "ZSTD", ""} {
		_, err := ParseCodec(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseCodec("snappy")
	assert.ErrorIs(t, err, matrix.ErrInvalidArgument)
}

// storeRows creates a file with rows 1..n of 4 entries each and returns its path
func storeRows(t *testing.T, n int) string {
	t.Helper()
	f, path := openTemp(t, nil)
	for i := 1; i <= n; i++ {
		require.NoError(t, f.StoreRow(uint32(i), testRow(4, int64(i))))
	}
	require.NoError(t, f.Close())
	return path
}

func TestCorruptRecordHeader(t *testing.T) {
	recSize := recordHeaderSize + 4*entrySize

	tests := []struct {
		name   string
		off    int // offset of the modified byte range, relative to the first record
		modify func(b []byte)
	}{
		{"PayloadLenOfFirstRecord", 12, func(b []byte) { binary.LittleEndian.PutUint32(b, 0x7fffffff) }},
		{"RowOfSecondRecord", recSize + 4, func(b []byte) { b[0] ^= 0x01 }},
		{"KindOfLastRecord", 2 * recSize, func(b []byte) { b[0] = 6 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := storeRows(t, 3)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			tt.modify(data[headerSize+tt.off:])
			require.NoError(t, os.WriteFile(path, data, 0o644))

			_, err = Open(path, nil)
			assert.ErrorIs(t, err, matrix.ErrIO)
			assert.ErrorIs(t, err, matrix.ErrCorrupt)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), info.Size(), "a corrupt file is not truncated")
		})
	}
}

func TestZeroedTailIsTruncated(t *testing.T) {
	path := storeRows(t, 2)
	info, err := os.Stat(path)
	require.NoError(t, err)
	complete := info.Size()

	// the file was extended but the data never reached the disk
	osf, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = osf.Write(make([]byte, 3*recordHeaderSize))
	require.NoError(t, err)
	require.NoError(t, osf.Close())

	f, err := Open(path, nil)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []uint32{1, 2}, f.Rows())
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, complete, info.Size())
}

func TestPartialWriteIsRemoved(t *testing.T) {
	fs := NewFaultyFS(nil)
	f, path := openTemp(t, &Options{FS: fs})

	require.NoError(t, f.StoreRow(1, testRow(4, 1)))
	size := f.Stats().TotalBytes

	// half of the record reaches the file
	long := testRow(20, 2)
	fs.FailNextWriteAfter(len(encodeRecord(2, long, CodecNone)) / 2)
	err := f.StoreRow(2, long)
	assert.ErrorIs(t, err, matrix.ErrIO)
	assert.ErrorIs(t, err, ErrInjected)
	assert.False(t, f.HasRow(2))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size(), "partial record is removed")

	// a shorter record after the failed one
	require.NoError(t, f.StoreRow(3, testRow(2, 3)))
	require.NoError(t, f.Close())

	f, err = Open(path, nil)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []uint32{1, 3}, f.Rows())

	got, err := f.LoadRow(3)
	require.NoError(t, err)
	assert.Equal(t, testRow(2, 3), got)
}

func TestFailedCleanupBlocksWrites(t *testing.T) {
	t.Run("Close", func(t *testing.T) {
		fs := NewFaultyFS(nil)
		f, path := openTemp(t, &Options{FS: fs})
		require.NoError(t, f.StoreRow(1, testRow(4, 1)))

		fs.FailTruncate(true)
		fs.FailNextWriteAfter(10)
		assert.ErrorIs(t, f.StoreRow(2, testRow(20, 2)), matrix.ErrIO)

		err := f.StoreRow(3, testRow(2, 3))
		assert.ErrorIs(t, err, matrix.ErrIO)
		assert.ErrorIs(t, err, ErrInjected)
		assert.ErrorIs(t, f.Flush(), matrix.ErrIO)
		assert.ErrorIs(t, f.Close(), matrix.ErrIO, "close reports the partial record")

		// the partial header at the end is a torn tail
		f, err = Open(path, nil)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []uint32{1}, f.Rows())
	})

	t.Run("Compact", func(t *testing.T) {
		fs := NewFaultyFS(nil)
		f, path := openTemp(t, &Options{FS: fs})
		require.NoError(t, f.StoreRow(1, testRow(4, 1)))

		fs.FailTruncate(true)
		fs.FailNextWriteAfter(100)
		assert.ErrorIs(t, f.StoreRow(2, testRow(20, 2)), matrix.ErrIO)
		assert.ErrorIs(t, f.StoreRow(3, testRow(2, 3)), matrix.ErrIO)

		require.NoError(t, f.Compact())
		require.NoError(t, f.StoreRow(3, testRow(2, 3)))
		require.NoError(t, f.Close())

		f, err := Open(path, nil)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []uint32{1, 3}, f.Rows())
	})
}

func TestReadOnly(t *testing.T) {
	path := storeRows(t, 2)

	// torn third record
	rec := encodeRecord(3, testRow(20, 3), CodecNone)
	osf, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = osf.Write(rec[:len(rec)/2])
	require.NoError(t, err)
	require.NoError(t, osf.Close())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err := Open(path, &Options{ReadOnly: true})
	require.NoError(t, err)

	assert.Equal(t, []uint32{1, 2}, f.Rows())
	got, err := f.LoadRow(2)
	require.NoError(t, err)
	assert.Equal(t, testRow(4, 2), got)

	assert.ErrorIs(t, f.StoreRow(4, testRow(1, 4)), ErrReadOnly)
	assert.ErrorIs(t, f.Compact(), ErrReadOnly)
	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "read-only open doesn't modify the file")

	_, err = Open(filepath.Join(t.TempDir(), "missing.smx"), &Options{ReadOnly: true})
	assert.ErrorIs(t, err, matrix.ErrIO)
}

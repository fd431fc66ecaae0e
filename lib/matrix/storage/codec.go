package storage

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Codec selects how row payloads are compressed
type Codec uint8

const (
	CodecNone Codec = iota // payloads are stored uncompressed
	CodecZstd              // payloads are compressed with zstd
	CodecLZ4               // payloads are compressed with lz4 (block format)
)

// minCompressEntries is the smallest row that is compressed, shorter rows are
// always stored raw
const minCompressEntries = 8

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec converts a codec name to a Codec
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return CodecNone, fmt.Errorf("%w: unknown codec %q, must be one of none, zstd, lz4", matrix.ErrInvalidArgument, s)
	}
}

// the zstd encoder and decoder are safe for concurrent EncodeAll and DecodeAll calls
var (
	zstdEncoder = sync.OnceValue(func() *zstd.Encoder {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			panic(fmt.Sprintf("zstd encoder: %v", err))
		}
		return enc
	})
	zstdDecoder = sync.OnceValue(func() *zstd.Decoder {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("zstd decoder: %v", err))
		}
		return dec
	})
)

// --------------------------------------------------------------------------
// Record Encoding
// --------------------------------------------------------------------------

// record header layout (little endian):
//
//	kind u8 | codec u8 | reserved u16 | row u32 | count u32 | payloadLen u32 | checksum u64 |
//	reserved u32 | headerSum u32
//
// checksum covers the payload, headerSum the first 28 bytes of the header.
const (
	recordHeaderSize = 32
	headerSumOffset  = 28
	entrySize        = 12 // col u32 | value i64

	kindRow uint8 = 1
)

// recordHeader is the decoded header of a row record
type recordHeader struct {
	kind       uint8
	codec      Codec
	row        uint32
	count      uint32
	payloadLen uint32
	checksum   uint64
}

func (h *recordHeader) encode(b []byte) {
	b[0] = h.kind
	b[1] = uint8(h.codec)
	binary.LittleEndian.PutUint16(b[2:4], 0)
	binary.LittleEndian.PutUint32(b[4:8], h.row)
	binary.LittleEndian.PutUint32(b[8:12], h.count)
	binary.LittleEndian.PutUint32(b[12:16], h.payloadLen)
	binary.LittleEndian.PutUint64(b[16:24], h.checksum)
	binary.LittleEndian.PutUint32(b[24:28], 0)
	binary.LittleEndian.PutUint32(b[headerSumOffset:recordHeaderSize], headerSum(b))
}

func decodeRecordHeader(b []byte) recordHeader {
	return recordHeader{
		kind:       b[0],
		codec:      Codec(b[1]),
		row:        binary.LittleEndian.Uint32(b[4:8]),
		count:      binary.LittleEndian.Uint32(b[8:12]),
		payloadLen: binary.LittleEndian.Uint32(b[12:16]),
		checksum:   binary.LittleEndian.Uint64(b[16:24]),
	}
}

// headerSum is the checksum of an encoded record header
func headerSum(b []byte) uint32 {
	return uint32(xxhash.Sum64(b[:headerSumOffset]))
}

// checkRecordHeader verifies the header checksum of an encoded record header
// and decodes it
func checkRecordHeader(b []byte) (recordHeader, error) {
	if binary.LittleEndian.Uint32(b[headerSumOffset:recordHeaderSize]) != headerSum(b) {
		return recordHeader{}, fmt.Errorf("%w: record header checksum mismatch", matrix.ErrCorrupt)
	}
	h := decodeRecordHeader(b)
	return h, h.validate()
}

// validate checks the parts of the header that can be checked without the payload
func (h *recordHeader) validate() error {
	if h.kind != kindRow {
		return fmt.Errorf("%w: unknown record kind %d", matrix.ErrCorrupt, h.kind)
	}
	if h.codec > CodecLZ4 {
		return fmt.Errorf("%w: unknown codec %d in record of row %d", matrix.ErrCorrupt, h.codec, h.row)
	}
	if h.codec == CodecNone && uint64(h.payloadLen) != uint64(h.count)*entrySize {
		return fmt.Errorf("%w: row %d has payload length %d for %d entries", matrix.ErrCorrupt, h.row, h.payloadLen, h.count)
	}
	return nil
}

// encodeRecord encodes a row as a complete record (header + payload).
// An empty row is encoded as tombstone.
func encodeRecord(row uint32, entries []matrix.Entry, codec Codec) []byte {
	raw := make([]byte, len(entries)*entrySize)
	for i, e := range entries {
		off := i * entrySize
		binary.LittleEndian.PutUint32(raw[off:], e.Col)
		binary.LittleEndian.PutUint64(raw[off+4:], uint64(e.Value))
	}

	payload, used := compress(raw, codec, len(entries))

	h := recordHeader{
		kind:       kindRow,
		codec:      used,
		row:        row,
		count:      uint32(len(entries)),
		payloadLen: uint32(len(payload)),
		checksum:   xxhash.Sum64(payload),
	}

	rec := make([]byte, recordHeaderSize+len(payload))
	h.encode(rec[:recordHeaderSize])
	copy(rec[recordHeaderSize:], payload)
	return rec
}

// compress compresses raw with codec. It falls back to CodecNone for short rows
// and if compression doesn't reduce the size.
func compress(raw []byte, codec Codec, count int) ([]byte, Codec) {
	if count < minCompressEntries {
		return raw, CodecNone
	}

	switch codec {
	case CodecZstd:
		out := zstdEncoder().EncodeAll(raw, make([]byte, 0, len(raw)))
		if len(out) < len(raw) {
			return out, CodecZstd
		}
	case CodecLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, out, nil)
		if err == nil && n > 0 && n < len(raw) {
			return out[:n], CodecLZ4
		}
	}
	return raw, CodecNone
}

// decodePayload verifies and decodes the payload of a record
func decodePayload(h recordHeader, payload []byte) ([]matrix.Entry, error) {
	if sum := xxhash.Sum64(payload); sum != h.checksum {
		return nil, fmt.Errorf("%w: checksum mismatch in record of row %d", matrix.ErrCorrupt, h.row)
	}

	size := int(h.count) * entrySize
	raw := payload
	switch h.codec {
	case CodecZstd:
		out, err := zstdDecoder().DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", matrix.ErrCorrupt, h.row, err)
		}
		raw = out
	case CodecLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", matrix.ErrCorrupt, h.row, err)
		}
		raw = out[:n]
	}

	if len(raw) != size {
		return nil, fmt.Errorf("%w: row %d decoded to %d bytes, expected %d", matrix.ErrCorrupt, h.row, len(raw), size)
	}

	entries := make([]matrix.Entry, h.count)
	for i := range entries {
		off := i * entrySize
		entries[i] = matrix.Entry{
			Col:   binary.LittleEndian.Uint32(raw[off:]),
			Value: int64(binary.LittleEndian.Uint64(raw[off+4:])),
		}
		if i > 0 && entries[i].Col <= entries[i-1].Col {
			return nil, fmt.Errorf("%w: row %d has unordered columns", matrix.ErrCorrupt, h.row)
		}
	}
	return entries, nil
}

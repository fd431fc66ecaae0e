package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasRow     byte = 1 << 0
	hasCol     byte = 1 << 1
	hasValue   byte = 1 << 2
	hasLimit   byte = 1 << 3
	hasEntries byte = 1 << 4
	hasCode    byte = 1 << 5
	hasErr     byte = 1 << 6
	hasMeta    byte = 1 << 7
)

// entrySize is the encoded size of a matrix.Entry (col uint32 + value int64)
const entrySize = 12

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	if msg.Row != 0 {
		flags |= hasRow
		binary.BigEndian.PutUint32(result[pos:pos+4], msg.Row)
		pos += 4
	}

	if msg.Col != 0 {
		flags |= hasCol
		binary.BigEndian.PutUint32(result[pos:pos+4], msg.Col)
		pos += 4
	}

	if msg.Value != 0 {
		flags |= hasValue
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.Value))
		pos += 8
	}

	if msg.Limit != 0 {
		flags |= hasLimit
		binary.BigEndian.PutUint32(result[pos:pos+4], msg.Limit)
		pos += 4
	}

	// Handle Entries (count followed by col/value pairs)
	if msg.Entries != nil {
		flags |= hasEntries
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Entries)))
		pos += 4

		for _, e := range msg.Entries {
			binary.BigEndian.PutUint32(result[pos:pos+4], e.Col)
			binary.BigEndian.PutUint64(result[pos+4:pos+12], uint64(e.Value))
			pos += entrySize
		}
	}

	if msg.Code != matrix.RetCSuccess {
		flags |= hasCode
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.Code))
		pos += 8
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		errLen := len(msg.Err)

		// Write error length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(errLen))
		pos += 4

		// Write error data
		copy(result[pos:pos+errLen], msg.Err)
		pos += errLen
	}

	// Handle Meta
	if msg.Meta != nil {
		flags |= hasMeta
		metaLen := len(msg.Meta)

		// Write meta length
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(metaLen))
		pos += 4

		// Write meta data
		copy(result[pos:pos+metaLen], msg.Meta)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2

	need := func(n int, field string) error {
		if pos+n > len(data) {
			return fmt.Errorf("data too short for %s", field)
		}
		return nil
	}

	if flags&hasRow != 0 {
		if err := need(4, "row"); err != nil {
			return err
		}
		msg.Row = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	if flags&hasCol != 0 {
		if err := need(4, "col"); err != nil {
			return err
		}
		msg.Col = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	if flags&hasValue != 0 {
		if err := need(8, "value"); err != nil {
			return err
		}
		msg.Value = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	}

	if flags&hasLimit != 0 {
		if err := need(4, "limit"); err != nil {
			return err
		}
		msg.Limit = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	// Read Entries - create an empty slice (not nil) if the count is 0
	if flags&hasEntries != 0 {
		if err := need(4, "entry count"); err != nil {
			return err
		}
		count := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if err := need(count*entrySize, "entries"); err != nil {
			return err
		}
		msg.Entries = make([]matrix.Entry, count)
		for i := range msg.Entries {
			msg.Entries[i] = matrix.Entry{
				Col:   binary.BigEndian.Uint32(data[pos : pos+4]),
				Value: int64(binary.BigEndian.Uint64(data[pos+4 : pos+12])),
			}
			pos += entrySize
		}
	}

	if flags&hasCode != 0 {
		if err := need(8, "code"); err != nil {
			return err
		}
		msg.Code = matrix.RetCode(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	}

	// Read Err if present
	if flags&hasErr != 0 {
		if err := need(4, "error length"); err != nil {
			return err
		}
		errLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if err := need(errLen, "error data"); err != nil {
			return err
		}
		msg.Err = string(data[pos : pos+errLen])
		pos += errLen
	}

	// Read Meta if present
	if flags&hasMeta != 0 {
		if err := need(4, "meta length"); err != nil {
			return err
		}
		metaLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if err := need(metaLen, "meta data"); err != nil {
			return err
		}
		msg.Meta = make([]byte, metaLen)
		copy(msg.Meta, data[pos:pos+metaLen])
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Row != 0 {
		size += 4
	}
	if msg.Col != 0 {
		size += 4
	}
	if msg.Value != 0 {
		size += 8
	}
	if msg.Limit != 0 {
		size += 4
	}
	if msg.Entries != nil {
		size += 4 + len(msg.Entries)*entrySize // 4 bytes for the count + entries
	}
	if msg.Code != matrix.RetCSuccess {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) // 4 bytes for length + error string
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta) // 4 bytes for length + meta bytes
	}

	return size
}

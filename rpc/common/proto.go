package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/sMX/lib/matrix"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Row   uint32 `json:"row,omitempty"`   // Used for: Get, Set, Incr, Decr, RowLen, Row, RowN
	Col   uint32 `json:"col,omitempty"`   // Used for: Get, Set, Incr, Decr
	Value int64  `json:"value,omitempty"` // Used for: Set, Incr, Decr (request), Get, RowLen (response)
	Limit uint32 `json:"limit,omitempty"` // Used for: RowN (request), Cache (request)

	// Response only fields
	Entries []matrix.Entry `json:"entries,omitempty"` // Used for: Row, RowN responses
	Code    matrix.RetCode `json:"code,omitempty"`    // Kind of the error, RetCSuccess if Err is empty
	Err     string         `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info (response, json encoded matrix.Info)
}

// Error returns the error carried by a response message
func (m *Message) Error() error {
	if m.Err == "" && m.Code == matrix.RetCSuccess {
		return nil
	}
	return matrix.FromCode(m.Code, m.Err)
}

// withErr stores err in the response message
func (m *Message) withErr(err error) *Message {
	if err != nil {
		m.Code = matrix.CodeOf(err)
		m.Err = err.Error()
	}
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(row, col uint32) *Message {
	return &Message{
		MsgType: MsgTMXGet,
		Row:     row,
		Col:     col,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value int64, err error) *Message {
	msg := &Message{
		MsgType: MsgTMXGet,
		Value:   value,
	}
	return msg.withErr(err)
}

// NewSetRequest creates a new Set request
func NewSetRequest(row, col uint32, value int64) *Message {
	return &Message{
		MsgType: MsgTMXSet,
		Row:     row,
		Col:     col,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMXSet,
	}
	return msg.withErr(err)
}

// NewIncrRequest creates a new Incr request
func NewIncrRequest(row, col uint32, delta int64) *Message {
	return &Message{
		MsgType: MsgTMXIncr,
		Row:     row,
		Col:     col,
		Value:   delta,
	}
}

// NewIncrResponse creates a new Incr response
func NewIncrResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMXIncr,
	}
	return msg.withErr(err)
}

// NewDecrRequest creates a new Decr request
func NewDecrRequest(row, col uint32, delta int64) *Message {
	return &Message{
		MsgType: MsgTMXDecr,
		Row:     row,
		Col:     col,
		Value:   delta,
	}
}

// NewDecrResponse creates a new Decr response
func NewDecrResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMXDecr,
	}
	return msg.withErr(err)
}

// NewRowLenRequest creates a new RowLen request
func NewRowLenRequest(row uint32) *Message {
	return &Message{
		MsgType: MsgTMXRowLen,
		Row:     row,
	}
}

// NewRowLenResponse creates a new RowLen response
func NewRowLenResponse(n int, err error) *Message {
	msg := &Message{
		MsgType: MsgTMXRowLen,
		Value:   int64(n),
	}
	return msg.withErr(err)
}

// NewRowRequest creates a new Row request
func NewRowRequest(row uint32) *Message {
	return &Message{
		MsgType: MsgTMXRow,
		Row:     row,
	}
}

// NewRowResponse creates a new Row response
func NewRowResponse(entries []matrix.Entry, err error) *Message {
	msg := &Message{
		MsgType: MsgTMXRow,
		Entries: entries,
	}
	return msg.withErr(err)
}

// NewRowNRequest creates a new RowN request
func NewRowNRequest(row, limit uint32) *Message {
	return &Message{
		MsgType: MsgTMXRowN,
		Row:     row,
		Limit:   limit,
	}
}

// NewRowNResponse creates a new RowN response
func NewRowNResponse(entries []matrix.Entry, err error) *Message {
	msg := &Message{
		MsgType: MsgTMXRowN,
		Entries: entries,
	}
	return msg.withErr(err)
}

// NewCacheRequest creates a new SetCacheSize request
func NewCacheRequest(size uint32) *Message {
	return &Message{
		MsgType: MsgTMXCache,
		Limit:   size,
	}
}

// NewCacheResponse creates a new SetCacheSize response
func NewCacheResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMXCache,
	}
	return msg.withErr(err)
}

// NewFlushRequest creates a new Flush request
func NewFlushRequest() *Message {
	return &Message{
		MsgType: MsgTMXFlush,
	}
}

// NewFlushResponse creates a new Flush response
func NewFlushResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMXFlush,
	}
	return msg.withErr(err)
}

// NewCompactRequest creates a new Compact request
func NewCompactRequest() *Message {
	return &Message{
		MsgType: MsgTMXCompact,
	}
}

// NewCompactResponse creates a new Compact response
func NewCompactResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMXCompact,
	}
	return msg.withErr(err)
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{
		MsgType: MsgTMXInfo,
	}
}

// NewInfoResponse creates a new Info response, the info is json encoded into Meta
func NewInfoResponse(info matrix.Info, err error) *Message {
	msg := &Message{
		MsgType: MsgTMXInfo,
	}
	if err != nil {
		return msg.withErr(err)
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return msg.withErr(fmt.Errorf("failed to encode info: %w", err))
	}
	msg.Meta = meta
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    matrix.RetCInternalError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:   "success",
	MsgTError:     "error",
	MsgTMXGet:     "get",
	MsgTMXSet:     "set",
	MsgTMXIncr:    "incr",
	MsgTMXDecr:    "decr",
	MsgTMXRowLen:  "rowLen",
	MsgTMXRow:     "row",
	MsgTMXRowN:    "rowN",
	MsgTMXCache:   "cache",
	MsgTMXFlush:   "flush",
	MsgTMXCompact: "compact",
	MsgTMXInfo:    "info",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IMatrix operations

	MsgTMXGet     // Read a cell
	MsgTMXSet     // Write a cell
	MsgTMXIncr    // Add to a cell
	MsgTMXDecr    // Subtract from a cell
	MsgTMXRowLen  // Number of non-zero cells of a row
	MsgTMXRow     // All non-zero cells of a row
	MsgTMXRowN    // The first non-zero cells of a row
	MsgTMXCache   // Set the cache size
	MsgTMXFlush   // Write modified rows to durable storage
	MsgTMXCompact // Compact the backing file
	MsgTMXInfo    // Information about the matrix
)

package serializer

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Set request
		*common.NewSetRequest(42, 23, 17),

		// Incr request with extreme values
		*common.NewIncrRequest(math.MaxUint32, math.MaxUint32, math.MinInt64),

		// Get response
		*common.NewGetResponse(-5, nil),

		// Row response
		*common.NewRowResponse([]matrix.Entry{{Col: 0, Value: 1}, {Col: 7, Value: -2}, {Col: math.MaxUint32, Value: math.MaxInt64}}, nil),

		// RowN request
		*common.NewRowNRequest(3, 230),

		// Error response
		*common.NewFlushResponse(matrix.NewIOError("sync", "/tmp/m.smx", matrix.ErrCorrupt)),

		// Message with all fields filled
		{
			MsgType: common.MsgTMXInfo,
			Row:     1,
			Col:     2,
			Value:   3,
			Limit:   4,
			Entries: []matrix.Entry{{Col: 5, Value: 6}},
			Code:    matrix.RetCInvalidArgument,
			Err:     "test error message",
			Meta:    []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTMXInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestErrorsSurviveRoundTrip tests that the error kind can be rebuilt on the client side
func TestErrorsSurviveRoundTrip(t *testing.T) {
	errs := map[error]error{
		matrix.ErrClosed:          matrix.ErrClosed,
		matrix.ErrInvalidArgument: matrix.ErrInvalidArgument,
		matrix.ErrUnsupported:     matrix.ErrUnsupported,
		matrix.NewIOError("write", "m.smx", matrix.ErrCorrupt): matrix.ErrIO,
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for err, want := range errs {
				data, serErr := serializer.Serialize(*common.NewSetResponse(err))
				if serErr != nil {
					t.Fatalf("Failed to serialize: %v", serErr)
				}

				var result common.Message
				if serErr := serializer.Deserialize(data, &result); serErr != nil {
					t.Fatalf("Failed to deserialize: %v", serErr)
				}

				if got := result.Error(); !errors.Is(got, want) {
					t.Errorf("Expected error of kind %v, got %v", want, got)
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with zero values",
			msg: common.Message{
				MsgType: common.MsgTMXSet,
				Row:     0,
				Col:     0,
				Value:   0,
			},
		},
		{
			name: "Message with empty entries slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTMXRow,
				Entries: []matrix.Entry{},
			},
		},
		{
			name: "Message with empty meta slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTMXInfo,
				Meta:    []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// binary keeps the difference between nil and empty slices
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Truncated row",
			data:        []byte{3, hasRow, 0, 0}, // Claims a row but only 2 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid entry count",
			data:        []byte{8, hasEntries, 0, 0, 0, 2, 0, 0, 0, 1}, // Claims 2 entries but only 4 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for error",
			data:        []byte{2, hasErr, 0, 0, 0, 10}, // Claims error length 10 but no bytes provided
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

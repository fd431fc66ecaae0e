package client

import (
	"fmt"

	"github.com/ValentinKolb/sMX/rpc/common"
	"github.com/ValentinKolb/sMX/rpc/serializer"
	"github.com/ValentinKolb/sMX/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// invokeRPCRequest is a helper function used by the RPC client to send requests
// It takes a matrix ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// Errors reported by the server are rebuilt with their kind (see matrix.FromCode),
// the type of the response is checked against the request
func invokeRPCRequest(matrixID uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(matrixID, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC MatrixClient - Error: %w", err)
	}

	// Check if the response carries an error
	if err := resp.Error(); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC MatrixClient - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	return resp, nil
}

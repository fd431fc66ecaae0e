package server

import (
	"fmt"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/rpc/common"
)

func NewMatrixServerAdapter() IRPCServerAdapter {
	return &matrixServerAdapterImpl{}
}

type matrixServerAdapterImpl struct{}

func (adapter *matrixServerAdapterImpl) Handle(req *common.Message, m matrix.IMatrix) *common.Message {
	// Check for nil matrix
	if m == nil {
		return common.NewErrorResponse("handler: matrix is nil")
	}

	row, col := int(req.Row), int(req.Col)

	// Handle different message types
	switch req.MsgType {
	case common.MsgTMXGet:
		val, err := m.Get(row, col)
		return common.NewGetResponse(val, err)
	case common.MsgTMXSet:
		err := m.Set(row, col, req.Value)
		return common.NewSetResponse(err)
	case common.MsgTMXIncr:
		err := m.Incr(row, col, req.Value)
		return common.NewIncrResponse(err)
	case common.MsgTMXDecr:
		err := m.Decr(row, col, req.Value)
		return common.NewDecrResponse(err)
	case common.MsgTMXRowLen:
		n, err := m.RowLength(row)
		return common.NewRowLenResponse(n, err)
	case common.MsgTMXRow:
		entries, err := m.Row(row)
		return common.NewRowResponse(entries, err)
	case common.MsgTMXRowN:
		entries, err := m.RowN(row, int(req.Limit))
		return common.NewRowNResponse(entries, err)
	case common.MsgTMXCache:
		err := m.SetCacheSize(int(req.Limit))
		return common.NewCacheResponse(err)
	case common.MsgTMXFlush:
		err := m.Flush()
		return common.NewFlushResponse(err)
	case common.MsgTMXCompact:
		err := m.Compact()
		return common.NewCompactResponse(err)
	case common.MsgTMXInfo:
		info, err := m.Info()
		return common.NewInfoResponse(info, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC MatrixAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

package client

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/rpc/common"
	"github.com/ValentinKolb/sMX/rpc/serializer"
	"github.com/ValentinKolb/sMX/rpc/transport"
)

// NewRPCMatrix creates a client for the matrix with the given id hosted by an rpc server.
// The function connects the transport and fetches the matrix info once to learn
// the supported features and the path of the remote matrix.
func NewRPCMatrix(
	matrixID uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (matrix.IMatrix, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	m := &rpcMatrix{
		matrixID:   matrixID,
		config:     config,
		transport:  transport,
		serializer: serializer,
	}

	info, err := m.info()
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to fetch info of matrix %d: %w", matrixID, err)
	}
	m.path = info.Path
	for _, f := range info.SupportedFeatures {
		m.features |= f
	}

	return m, nil
}

// rpcMatrix implements matrix.IMatrix by forwarding every operation to an rpc server
type rpcMatrix struct {
	matrixID   uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer

	path     string
	features matrix.Feature

	// life is held shared by every request and exclusively by Close
	life   sync.RWMutex
	closed bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the matrix package in matrix.go)
// --------------------------------------------------------------------------

func (c *rpcMatrix) Get(row, col int) (int64, error) {
	resp, err := c.invoke(matrix.CheckCell(row, col), common.NewGetRequest(uint32(row), uint32(col)))
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *rpcMatrix) Set(row, col int, value int64) error {
	_, err := c.invoke(matrix.CheckCell(row, col), common.NewSetRequest(uint32(row), uint32(col), value))
	return err
}

func (c *rpcMatrix) Incr(row, col int, delta int64) error {
	_, err := c.invoke(matrix.CheckCell(row, col), common.NewIncrRequest(uint32(row), uint32(col), delta))
	return err
}

func (c *rpcMatrix) Decr(row, col int, delta int64) error {
	_, err := c.invoke(matrix.CheckCell(row, col), common.NewDecrRequest(uint32(row), uint32(col), delta))
	return err
}

func (c *rpcMatrix) RowLength(row int) (int, error) {
	resp, err := c.invoke(matrix.CheckRow(row), common.NewRowLenRequest(uint32(row)))
	if err != nil {
		return 0, err
	}
	return int(resp.Value), nil
}

func (c *rpcMatrix) Row(row int) ([]matrix.Entry, error) {
	resp, err := c.invoke(matrix.CheckRow(row), common.NewRowRequest(uint32(row)))
	if err != nil {
		return nil, err
	}
	return entriesOf(resp), nil
}

func (c *rpcMatrix) RowN(row, limit int) ([]matrix.Entry, error) {
	check := matrix.CheckRow(row)
	if check == nil && limit < 0 {
		check = fmt.Errorf("%w: negative limit %d", matrix.ErrInvalidArgument, limit)
	}
	resp, err := c.invoke(check, common.NewRowNRequest(uint32(row), clampUint32(limit)))
	if err != nil {
		return nil, err
	}
	return entriesOf(resp), nil
}

// SetCacheSize forwards n to the server, values below 1 are rejected there
func (c *rpcMatrix) SetCacheSize(n int) error {
	_, err := c.invoke(nil, common.NewCacheRequest(clampUint32(n)))
	return err
}

func (c *rpcMatrix) Flush() error {
	_, err := c.invoke(nil, common.NewFlushRequest())
	return err
}

func (c *rpcMatrix) Compact() error {
	_, err := c.invoke(nil, common.NewCompactRequest())
	return err
}

// Info returns the info of the remote matrix with the mode set to matrix.ModeRemote
func (c *rpcMatrix) Info() (matrix.Info, error) {
	c.life.RLock()
	defer c.life.RUnlock()
	if c.closed {
		return matrix.Info{}, matrix.ErrClosed
	}

	info, err := c.info()
	if err != nil {
		return matrix.Info{}, err
	}
	info.Mode = matrix.ModeRemote
	return info, nil
}

func (c *rpcMatrix) SupportsFeature(feature matrix.Feature) bool {
	return c.features&feature == feature
}

func (c *rpcMatrix) Path() string {
	return c.path
}

// Close flushes the remote matrix and closes the transport. The remote matrix
// itself stays open, it is owned by the server.
func (c *rpcMatrix) Close() error {
	c.life.Lock()
	defer c.life.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	_, flushErr := invokeRPCRequest(c.matrixID, common.NewFlushRequest(), c.transport, c.serializer)
	if flushErr != nil {
		Logger.Warningf("failed to flush matrix %d on close: %v", c.matrixID, flushErr)
	}
	if err := c.transport.Close(); err != nil {
		return err
	}
	return flushErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// invoke sends req unless the client is closed. check is the result of the
// local argument validation, it is returned instead of sending req.
func (c *rpcMatrix) invoke(check error, req *common.Message) (*common.Message, error) {
	c.life.RLock()
	defer c.life.RUnlock()
	if c.closed {
		return nil, matrix.ErrClosed
	}
	if check != nil {
		return nil, check
	}
	return invokeRPCRequest(c.matrixID, req, c.transport, c.serializer)
}

// info fetches and decodes the info of the remote matrix
func (c *rpcMatrix) info() (matrix.Info, error) {
	resp, err := invokeRPCRequest(c.matrixID, common.NewInfoRequest(), c.transport, c.serializer)
	if err != nil {
		return matrix.Info{}, err
	}
	var info matrix.Info
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return matrix.Info{}, fmt.Errorf("failed to decode info: %w", err)
	}
	return info, nil
}

// entriesOf returns the entries of a row response, serializers that drop empty
// slices leave them nil
func entriesOf(resp *common.Message) []matrix.Entry {
	if resp.Entries == nil {
		return []matrix.Entry{}
	}
	return resp.Entries
}

// clampUint32 converts n to uint32, negative values become 0
func clampUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

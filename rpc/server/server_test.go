package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/lib/matrix/engine"
	mxtesting "github.com/ValentinKolb/sMX/lib/matrix/testing"
	"github.com/ValentinKolb/sMX/rpc/client"
	"github.com/ValentinKolb/sMX/rpc/common"
	"github.com/ValentinKolb/sMX/rpc/serializer"
	"github.com/ValentinKolb/sMX/rpc/transport"
	"github.com/ValentinKolb/sMX/rpc/transport/http"
	"github.com/ValentinKolb/sMX/rpc/transport/tcp"
	"github.com/ValentinKolb/sMX/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test setup
// --------------------------------------------------------------------------

// transportCase bundles the server and client side of one transport
type transportCase struct {
	name      string
	network   string // network used to dial the endpoint
	newServer func() transport.IRPCServerTransport
	newClient func() transport.IRPCClientTransport
}

var transportCases = []transportCase{
	{"TCP", "tcp", tcp.NewTCPServerTransport, tcp.NewTCPClientTransport},
	{"Unix", "unix", unix.NewUnixServerTransport, unix.NewUnixClientTransport},
	{"HTTP", "tcp", http.NewHttpServerTransport, http.NewHttpClientTransport},
}

// endpointFor returns a free endpoint for the network
func endpointFor(t *testing.T, network string) string {
	if network == "unix" {
		// t.TempDir() may exceed the socket path limit
		dir, err := os.MkdirTemp("", "smx")
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(dir) })
		return filepath.Join(dir, "s.sock")
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := l.Addr().String()
	require.NoError(t, l.Close())
	return endpoint
}

// startServer runs a server in the background and waits until it accepts connections
func startServer(t *testing.T, tc transportCase, ser serializer.IRPCSerializer, matrices ...common.MatrixConfig) (*rpcServer, string) {
	endpoint := endpointFor(t, tc.network)
	config := common.ServerConfig{
		Matrices:  matrices,
		Transport: common.ServerTransportConfig{Endpoint: endpoint},
	}

	s := NewRPCServer(config, tc.newServer(), ser)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial(tc.network, endpoint)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond, "server did not start")

	t.Cleanup(func() {
		assert.NoError(t, s.Close())
		assert.NoError(t, <-errCh)
	})
	return s, endpoint
}

func clientConfig(endpoint string) common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{endpoint},
			RetryCount:             1,
			ConnectionsPerEndpoint: 2,
		},
	}
}

// --------------------------------------------------------------------------
// Conformance
// --------------------------------------------------------------------------

func Test(t *testing.T) {
	for _, tc := range transportCases {
		t.Run(tc.name, func(t *testing.T) {
			runConformance(t, tc, serializer.NewBinarySerializer())
		})
	}

	// The text based serializers only over one transport
	for _, ser := range []string{"json", "gob"} {
		t.Run("TCP/"+ser, func(t *testing.T) {
			s, err := serializer.ByName(ser)
			require.NoError(t, err)
			runConformance(t, transportCases[0], s)
		})
	}
}

func runConformance(t *testing.T, tc transportCase, ser serializer.IRPCSerializer) {
	s, endpoint := startServer(t, tc, ser)
	dir := t.TempDir()

	var nextID atomic.Uint64
	remote := func(open func(id uint64) (matrix.IMatrix, error)) matrix.Factory {
		return func() (matrix.IMatrix, error) {
			id := nextID.Add(1)
			m, err := open(id)
			if err != nil {
				return nil, err
			}
			if err := s.AddMatrix(id, m); err != nil {
				return nil, err
			}
			return client.NewRPCMatrix(id, clientConfig(endpoint), tc.newClient(), ser)
		}
	}

	mxtesting.RunMatrixTests(t, "Memory", remote(func(uint64) (matrix.IMatrix, error) {
		return engine.NewMemory(), nil
	}))

	mxtesting.RunMatrixTests(t, "File(cache=2)", remote(func(id uint64) (matrix.IMatrix, error) {
		return engine.Open(&engine.Options{Path: filepath.Join(dir, fmt.Sprintf("m%d.smx", id)), CacheSize: 2})
	}))
}

// --------------------------------------------------------------------------
// Server behaviour
// --------------------------------------------------------------------------

func TestUnknownMatrix(t *testing.T) {
	tc := transportCases[0]
	_, endpoint := startServer(t, tc, serializer.NewBinarySerializer())

	_, err := client.NewRPCMatrix(404, clientConfig(endpoint), tc.newClient(), serializer.NewBinarySerializer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix 404 not found")
}

func TestErrorKindsSurvive(t *testing.T) {
	tc := transportCases[0]
	ser := serializer.NewBinarySerializer()
	s, endpoint := startServer(t, tc, ser)
	require.NoError(t, s.AddMatrix(1, engine.NewMemory()))

	m, err := client.NewRPCMatrix(1, clientConfig(endpoint), tc.newClient(), ser)
	require.NoError(t, err)
	defer m.Close()

	assert.False(t, m.SupportsFeature(matrix.FeatureCompaction))
	assert.ErrorIs(t, m.Compact(), matrix.ErrUnsupported)
	assert.ErrorIs(t, m.SetCacheSize(10), matrix.ErrUnsupported)

	_, err = m.RowN(0, -1)
	assert.ErrorIs(t, err, matrix.ErrInvalidArgument)

	// The hosted matrix is closed, the client is not
	hosted, ok := s.matrices.Load(1)
	require.True(t, ok)
	require.NoError(t, hosted.Matrix.Close())
	_, err = m.Get(0, 0)
	assert.ErrorIs(t, err, matrix.ErrClosed)
}

func TestRemoteInfo(t *testing.T) {
	tc := transportCases[0]
	ser := serializer.NewBinarySerializer()
	path := filepath.Join(t.TempDir(), "m.smx")
	_, endpoint := startServer(t, tc, ser, common.MatrixConfig{ID: 7, Path: path, CacheSize: 4, Codec: "zstd"})

	m, err := client.NewRPCMatrix(7, clientConfig(endpoint), tc.newClient(), ser)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, path, m.Path())
	assert.True(t, m.SupportsFeature(matrix.FeaturePersistence|matrix.FeatureCacheControl))

	for row := 0; row < 10; row++ {
		require.NoError(t, m.Incr(row, row, 1))
	}

	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, matrix.ModeRemote, info.Mode)
	require.NotNil(t, info.Cache)
	assert.Equal(t, 4, info.Cache.Capacity)
	require.NotNil(t, info.File)
	assert.Equal(t, "zstd", info.File.Codec)
	assert.Contains(t, info.Metrics, `smx_matrix_ops_total{op="incr"} 10`)
}

func TestServerCloseFlushesMatrices(t *testing.T) {
	tc := transportCases[0]
	ser := serializer.NewBinarySerializer()
	path := filepath.Join(t.TempDir(), "m.smx")
	endpoint := endpointFor(t, tc.network)

	s := NewRPCServer(common.ServerConfig{
		Matrices:  []common.MatrixConfig{{ID: 1, Path: path, Codec: "none"}},
		Transport: common.ServerTransportConfig{Endpoint: endpoint},
	}, tc.newServer(), ser)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	var m matrix.IMatrix
	require.Eventually(t, func() bool {
		var err error
		m, err = client.NewRPCMatrix(1, clientConfig(endpoint), tc.newClient(), ser)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	for i := 0; i < 100; i++ {
		require.NoError(t, m.Incr(i%10, i, int64(i)))
	}

	require.NoError(t, s.Close())
	require.NoError(t, <-errCh)

	// Requests after the server is gone fail
	_, err := m.Get(0, 0)
	assert.Error(t, err)
	_ = m.Close()

	local, err := engine.OpenFile(path)
	require.NoError(t, err)
	defer local.Close()
	for i := 0; i < 100; i++ {
		v, err := local.Get(i%10, i)
		require.NoError(t, err)
		assert.Equal(t, int64(i), v)
	}
}

func TestInvalidMatrixConfig(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{
		Matrices:  []common.MatrixConfig{{ID: 1, Codec: "snappy"}},
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())

	err := s.Serve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, matrix.ErrInvalidArgument))
}

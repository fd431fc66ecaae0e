// Package client implements the RPC client of sMX. NewRPCMatrix returns a
// matrix.IMatrix that forwards every operation to a matrix hosted by an rpc
// server, so remote matrices can be used exactly like local ones.
//
// Index and limit arguments are validated locally before a request is sent.
// Errors reported by the server keep their kind: errors.Is(err,
// matrix.ErrInvalidArgument), matrix.ErrClosed, matrix.ErrUnsupported and
// matrix.ErrIO match remote errors just like local ones. Failures of the
// transport itself are returned unwrapped.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             1,
//	    ConnectionsPerEndpoint: 2,
//	  },
//	}
//
//	m, err := client.NewRPCMatrix(1, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer m.Close()
//
//	_ = m.Incr(42, 7, 1)
//	row, _ := m.Row(42)
//
// Retries: a request that is retried after a lost response may be applied
// twice. Use a RetryCount of 1 if Incr and Decr must be applied at most once.
//
// Close flushes the remote matrix and closes the transport, the remote matrix
// stays open on the server.
package client

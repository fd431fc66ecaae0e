// Package server implements the RPC server of sMX. It hosts any number of
// matrices, each addressed by a numeric id, and routes incoming requests to
// them through an adapter.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a matrix.IMatrix.
//
//   - NewMatrixServerAdapter: Factory function creating the adapter that translates
//     RPC requests to matrix.IMatrix method calls.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Matrices: []common.MatrixConfig{
//	    {ID: 1, Path: "/data/counts.smx", CacheSize: 100_000, Codec: "zstd"},
//	    {ID: 2}, // memory only
//	  },
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  LogLevel:  "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Blocks until s.Close() is called
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Matrices can also be added programmatically with AddMatrix before or while
// the server is running. The server owns every hosted matrix: Close stops the
// transport and closes all matrices, writing modified rows of file backed
// matrices to disk.
//
// Requests for an unknown matrix id are answered with an error message.
// Errors returned by a matrix travel back to the client with their kind, so
// errors.Is(err, matrix.ErrInvalidArgument) works on both ends.
package server

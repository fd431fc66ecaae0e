// Package rpc makes sMX matrices available over the network. A server hosts
// any number of matrices, clients use them through the matrix.IMatrix interface.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the RPC system, including the
//     Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The RPC client, a matrix.IMatrix that forwards every operation
//     to a remote matrix.
//
//   - server: The RPC server that hosts matrices and routes requests to them.
package rpc

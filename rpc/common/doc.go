// Package common provides the data structures shared by the client and server
// side of sMX's RPC system.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. One struct is used
//     for requests and responses, which fields are set depends on the MessageType.
//     Factory functions create every request and response. Errors travel as a
//     matrix.RetCode plus message and are rebuilt by Message.Error.
//
//   - MessageType: Enumeration of all supported operations (get, set, incr, decr,
//     rowLen, row, rowN, cache, flush, compact, info) plus control messages.
//
//   - ServerConfig / MatrixConfig: Configuration of a server and the matrices it
//     hosts. ParseMatrixConfig parses the "ID=path,cache=N,codec=C" form used on
//     the command line.
//
//   - ClientConfig: Configuration for clients, controlling endpoints, timeouts
//     and retry behavior.
//
//   - Logger: Log formatting for dragonboat's logger package. InitLoggers must be
//     called once before logging to apply the format and level.
package common

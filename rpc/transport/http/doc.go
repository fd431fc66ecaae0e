// Package http implements an HTTP-based transport layer for sMX's RPC system.
// It provides concrete implementations of the transport interfaces defined in
// the parent package.
//
// Every matrix is addressed by its id in the URL path: a request for matrix 7
// is sent as POST /7 with the serialized message as body. The server routes
// requests with chi and recovers from handler panics.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Requests are spread
//     over all endpoints round-robin and retried on transport errors.
//
//   - httpServerTransport: Implements IRPCServerTransport. Close shuts the
//     server down gracefully and waits for in-flight requests.
//
// Thread Safety:
//
//	Send can be used concurrently. Connect and Close must not race with Send.
package http

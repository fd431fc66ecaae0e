// Package unix implements the framed transport of sMX's RPC system over unix
// domain sockets, for clients on the same machine as the server.
//
// The connectors only dial and listen, connection pooling, request routing and
// retries come from the base package.
//
// The server owns its socket file. Listen replaces a socket file left behind by
// a server that is no longer running, but refuses to start if another server
// still accepts connections on it or if the path is not a socket. The file is
// removed when the listener is closed.
//
// The read and write buffer sizes of the server config apply to the accepted
// sockets, the TCP settings are ignored. The default size of the pooled request
// buffers is 64 KB.
package unix

// Package tcp implements the framed transport of sMX's RPC system over TCP.
//
// The connectors only dial, listen and apply the socket settings of the config
// (see base.ApplySocketOptions), everything else comes from the base package.
//
// The default size of the pooled request buffers of the server is 512 KB.
package tcp

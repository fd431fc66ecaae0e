// Package cmd implements the command-line interface of sMX. It provides a
// hierarchical command structure with operations for running the server,
// interacting with it as a client and working with backing files directly.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the sMX RPC server
//   - mx: Client commands for a served matrix (get, set, incr, row, perf, ...)
//   - file: Local tools for backing files (info, compact, import, dump, bench)
//   - util: Shared utilities for command-line processing, configuration and
//     the perf tool (internal use)
//
// Every flag can also be set through an environment variable with the SMX_
// prefix (e.g. SMX_TRANSPORT_ENDPOINTS), .env and .env.local are loaded first.
//
// See smx -help for a list of all commands.
package cmd

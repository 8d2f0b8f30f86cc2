// Package unix implements the kvgate RPC transport over Unix domain sockets,
// for clients running on the same machine as the server.
//
// This package only provides the socket specific connectors. Framing,
// connection pooling and request correlation come from the base package.
//
// Key Components:
//
//   - clientConnector: dials the socket path given as endpoint
//
//   - serverConnector: listens on the socket path, a stale socket file left by
//     a previous run is removed first
//
// The server reads requests into pooled buffers of 64 KB.
package unix

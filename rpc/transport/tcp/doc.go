// Package tcp implements the TCP socket transport of the kvgate RPC system.
// It provides the tcp connectors for the base package, which carries the
// framing, connection pooling and request correlation.
//
// Key Components:
//
//   - clientConnector: dials endpoints of the form host:port
//
//   - serverConnector: listens on host:port
//
// Both sides apply the socket options of common.SocketConf (TCP_NODELAY,
// keep-alive, linger, socket buffer sizes) to every connection.
//
// The server reads requests into pooled buffers of 512 KB.
package tcp

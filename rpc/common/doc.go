// Package common provides the data structures shared by the rpc client, the
// rpc server and the transports of kvgate.
//
// Key Components:
//
//   - Message: The envelope of every request and response. A request carries
//     the MessageType and the key (and value for Store), a response carries the
//     outcome Code of the service and an error message.
//
//   - ServerConfig / ClientConfig: Configuration of the server (transport,
//     store, admission control, logging) and of the client (endpoints,
//     timeouts, retries).
//
//   - Logger: A logger.Factory for dragonboat's logger package that writes
//     "LEVEL | package | message" lines. InitLoggers installs it.
package common

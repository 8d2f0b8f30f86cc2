// Package rpc provides the remote access layer of kvgate. It carries the
// Store and Retrieve operations of the key-value service between clients
// and the server.
//
// The package is organized into several subpackages:
//
//   - common: the Message envelope, configuration structures and logging.
//
//   - transport: network communication with pluggable implementations
//     (http, tcp, unix sockets).
//
//   - serializer: Message serialization (binary, json, gob).
//
//   - client: RPCKeyValue, a kvservice.IKeyValue backed by a remote server.
//
//   - server: the server that wires store, admission control and service and
//     answers requests arriving on a transport.
package rpc

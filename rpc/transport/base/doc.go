// Package base implements the framed stream transport shared by the tcp and
// unix transports of kvgate. The medium specific parts (listening, dialing,
// socket options) are injected as connectors.
//
// Wire Format:
//
//	Every request and response is one frame:
//
//	  [requestID uint64][length uint32][payload]
//
//	Both integers are big endian. The response carries the requestID of its
//	request, so many requests can be in flight on one connection and answers
//	may arrive in any order. Frames larger than 64 MB are rejected.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: the protocol specific operations
//
//   - clientTransport: keeps ConnectionsPerEndpoint connections to every
//     endpoint and picks one per request round robin. A reader goroutine per
//     connection hands responses to the waiting callers. A broken connection
//     fails its pending requests and is re-established in the background with
//     exponential backoff. Only requests that never reached the server are
//     retried on another connection.
//
//   - serverTransport: accepts connections and handles the requests of each
//     connection concurrently, bounded by WorkersPerConn. The context passed to
//     the handler is canceled when the client disconnects.
//
// Shutdown:
//
//	Shutdown closes the listener and stops reading new requests. Requests that
//	are already running are answered before the connections close, unless the
//	shutdown context ends first.
package base

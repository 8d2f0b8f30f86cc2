// Package http implements the http transport of the kvgate RPC system.
//
// Every request is a POST to /rpc whose body is the serialized request
// message. The response body is the serialized response message. The status
// code is 200 for every request that reached the handler, the outcome of the
// operation (ok, already_exists, not_found, ...) is carried by the message.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. It picks the
//     endpoint round robin and retries requests that failed without reaching
//     the server, e.g. refused connections. Canceled or timed out requests
//     are never retried.
//
//   - ServerTransport: Implements IRPCServerTransport and IHTTPMounter. The
//     server runs on net/http, so additional routes like /metrics and /healthz
//     share the endpoint with /rpc. Handler exposes the complete route table,
//     which lets tests drive the transport through net/http/httptest.
//
// The request context handed to the rpc handler ends when the client
// disconnects. Shutdown stops accepting requests and waits for the running
// ones.
package http

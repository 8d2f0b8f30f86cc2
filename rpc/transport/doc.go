// Package transport defines the transport abstraction of the kvgate RPC
// system. A transport moves opaque request and response bytes between client
// and server, the serializer and the rpc packages give them meaning.
//
// Key Components:
//
//   - IRPCClientTransport: the client side, connects to one or more endpoints
//     and sends a request, returning the matching response.
//
//   - IRPCServerTransport: the server side, calls the registered
//     ServerHandleFunc for every request and shuts down gracefully.
//
//   - IHTTPMounter: implemented by server transports that can serve extra
//     http routes next to the rpc route.
//
// Implementations live in the subpackages http, tcp and unix. tcp and unix
// share the framed stream protocol of the base package.
package transport

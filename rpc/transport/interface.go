package transport

import (
	"context"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"net/http"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc handles one request. It is called by a server transport for
// every request it receives, concurrently for concurrent requests.
// ctx ends when the caller disconnects or the transport shuts down.
type ServerHandleFunc func(ctx context.Context, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the server side of the transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler called for every request.
	// It must be called before Listen.
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport and blocks until it is shut down or fails.
	// After Shutdown, Listen returns nil.
	Listen(config common.ServerConfig) error
	// Shutdown stops accepting requests and waits until the running requests
	// are answered or ctx ends.
	Shutdown(ctx context.Context) error
}

// IHTTPMounter is implemented by server transports that serve http and can
// expose additional routes (e.g. /metrics) on their own endpoint
type IHTTPMounter interface {
	Handle(pattern string, handler http.Handler)
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// The request is abandoned when ctx ends.
	Send(ctx context.Context, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}

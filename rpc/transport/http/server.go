package http

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net/http"
	"sync"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// RPCPath is the route that accepts serialized requests
const RPCPath = "/rpc"

// maxBodySize bounds the size of a request body
const maxBodySize = 64 << 20

// ServerTransport serves the rpc handler over http. Additional routes like
// /metrics can be mounted on the same endpoint with Handle.
type ServerTransport struct {
	handler transport.ServerHandleFunc
	mux     *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	shutdown bool
	routed   bool
}

// NewHttpServerTransport creates a new http server transport
func NewHttpServerTransport() *ServerTransport {
	return &ServerTransport{
		mux: http.NewServeMux(),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *ServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *ServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}

	var handler http.Handler = t.Handler()
	if config.LogLevel == "debug" {
		handler = loggerMiddleware(handler)
	}

	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return nil
	}
	t.server = &http.Server{
		Addr:              config.Endpoint,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if config.TimeoutSecond > 0 {
		t.server.WriteTimeout = 2 * time.Duration(config.TimeoutSecond) * time.Second
	}
	server := t.server
	t.mu.Unlock()

	Logger.Infof("Starting HTTP server on %s", config.Endpoint)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *ServerTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.shutdown = true
	server := t.server
	t.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IHTTPMounter)
// --------------------------------------------------------------------------

func (t *ServerTransport) Handle(pattern string, handler http.Handler) {
	t.mux.Handle(pattern, handler)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// Handler returns the http handler with all routes, it is the handler served by Listen
func (t *ServerTransport) Handler() http.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.routed {
		t.mux.HandleFunc("POST "+RPCPath, t.handleRequest)
		t.routed = true
	}
	return t.mux
}

// handleRequest handles incoming HTTP requests and writes the response to the writer.
// The outcome of the operation is part of the response body, the status is
// 200 for every request that reached the handler.
func (t *ServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	// the request context ends when the client disconnects
	resp := t.handler(r.Context(), body)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		Logger.Warningf("Failed to write response to %s: %v", r.RemoteAddr, err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

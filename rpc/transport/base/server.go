package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

const defaultWorkersPerConn = 128

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector  IServerConnector
	handler    transport.ServerHandleFunc
	config     common.ServerConfig
	bufferPool *sync.Pool

	listenerMu sync.Mutex
	listener   net.Listener

	// ctx is the parent of all request contexts, canceled when a shutdown runs out of time
	ctx    context.Context
	cancel context.CancelFunc

	conns        *xsync.MapOf[net.Conn, struct{}]
	connWg       sync.WaitGroup
	shuttingDown atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport. Requests of one
// connection are handled concurrently by up to config.WorkersPerConn workers.
func NewBaseServerTransport(connector IServerConnector, bufferSize int) transport.IRPCServerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &serverTransport{
		connector: connector,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  xsync.NewMapOf[net.Conn, struct{}](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listenerMu.Lock()
	t.listener = listener
	t.listenerMu.Unlock()

	// Shutdown may have run before the listener existed
	if t.shuttingDown.Load() {
		_ = listener.Close()
		return nil
	}

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), listener.Addr(), t.workersPerConn())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.shuttingDown.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(5 * time.Millisecond)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		t.connWg.Add(1)
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Shutdown(ctx context.Context) error {
	t.shuttingDown.Store(true)

	t.listenerMu.Lock()
	if t.listener != nil {
		_ = t.listener.Close()
	}
	t.listenerMu.Unlock()

	// unblock all read loops, running requests are still answered
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.SetReadDeadline(time.Now())
		return true
	})

	done := make(chan struct{})
	go func() {
		t.connWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		// abandon the running requests
		t.cancel()
		t.conns.Range(func(conn net.Conn, _ struct{}) bool {
			_ = conn.Close()
			return true
		})
		return ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) workersPerConn() int {
	if t.config.WorkersPerConn > 0 {
		return t.config.WorkersPerConn
	}
	return defaultWorkersPerConn
}

// handleConnection reads the requests of one connection and answers them concurrently
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer t.connWg.Done()
	defer conn.Close()

	t.conns.Store(conn, struct{}{})
	defer t.conns.Delete(conn)
	if t.shuttingDown.Load() {
		_ = conn.SetReadDeadline(time.Now())
	}

	// canceled when the client goes away, the requests of this connection are abandoned then
	connCtx, cancelConn := context.WithCancel(t.ctx)
	defer cancelConn()

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// counting semaphore limiting the concurrent workers of this connection
	workers := make(chan struct{}, t.workersPerConn())

	var wg sync.WaitGroup
	var writeMu sync.Mutex

	handleRequest := func(requestID uint64, data []byte, buf []byte) {
		defer func() {
			t.bufferPool.Put(buf)
			<-workers
			wg.Done()
		}()

		start := time.Now()
		resp := t.handler(connCtx, data)
		Logger.Debugf("Processed request %d from %s in %s", requestID, conn.RemoteAddr(), time.Since(start))

		writeMu.Lock()
		defer writeMu.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}
		if err := writeFrame(conn, requestID, resp); err != nil {
			Logger.Warningf("Failed to write response for request %d: %v", requestID, err)
		}
	}

	for {
		buf := t.bufferPool.Get().([]byte)
		requestID, data, err := readFrame(conn, buf)
		if err != nil {
			t.bufferPool.Put(buf)
			switch {
			case t.shuttingDown.Load():
				Logger.Debugf("Stopped reading from %s for shutdown", conn.RemoteAddr())
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				Logger.Debugf("Connection closed by client %s", conn.RemoteAddr())
			default:
				Logger.Errorf("Error reading request from %s: %v", conn.RemoteAddr(), err)
			}
			break
		}

		workers <- struct{}{}
		wg.Add(1)
		go handleRequest(requestID, data, buf)
	}

	// the client is gone, nobody waits for the answers
	if !t.shuttingDown.Load() {
		cancelConn()
	}
	wg.Wait()
}

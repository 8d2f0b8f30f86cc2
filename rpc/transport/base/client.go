package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// errNotSent marks failures that happened before the request reached the
// server, only those are retried on another connection
var errNotSent = errors.New("request not sent")

const maxReconnectBackoff = 2 * time.Second

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	connMu   sync.Mutex // protects conn
	conn     net.Conn
	writeMu  sync.Mutex // serializes frame writes
	endpoint string
	stopCh   chan struct{}
	pending  *xsync.MapOf[uint64, chan responseResult]
	parent   *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64
	nextRequestID atomic.Uint64
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.closeConnections()
	t.config = config

	connectionsPerEP := max(1, config.ConnectionsPerEndpoint)
	connections := make([]*clientConnection, 0, len(config.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			c := &clientConnection{
				endpoint: endpoint,
				stopCh:   make(chan struct{}),
				pending:  xsync.NewMapOf[uint64, chan responseResult](),
				parent:   t,
			}

			if err := c.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, c)
			go c.readResponses()
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any of %v using %s", config.Endpoints, t.connector.GetName())
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Endpoints)*connectionsPerEP, len(config.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(ctx context.Context, req []byte) ([]byte, error) {
	if timeout := t.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	requestID := t.nextRequestID.Add(1)
	maxRetries := max(1, t.config.RetryCount)
	backoff := 50 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		c := t.getNextConnection()
		if c == nil {
			return nil, fmt.Errorf("no active connections available")
		}

		data, err := c.send(ctx, requestID, req)
		if err == nil {
			return data, nil
		}
		lastErr = err

		// a request that reached the server is never sent twice
		if !errors.Is(err, errNotSent) {
			return nil, err
		}
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i+1 < maxRetries {
			// exponential backoff with +-10% jitter
			jitter := time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64()))
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	switch len(t.connections) {
	case 0:
		return nil
	case 1:
		return t.connections[0]
	default:
		index := t.nextConnIndex.Add(1) % uint64(len(t.connections))
		return t.connections[index]
	}
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, c := range connections {
		close(c.stopCh)
		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connMu.Unlock()
	}
}

// currentConn returns the current net connection, nil while reconnecting
func (c *clientConnection) currentConn() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// send writes one request frame and waits for the matching response
func (c *clientConnection) send(ctx context.Context, requestID uint64, req []byte) ([]byte, error) {
	conn := c.currentConn()
	if conn == nil {
		return nil, fmt.Errorf("%w: connection to %s is down", errNotSent, c.endpoint)
	}

	respCh := make(chan responseResult, 1)
	c.pending.Store(requestID, respCh)
	defer c.pending.Delete(requestID)

	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	err := writeFrame(conn, requestID, req)
	c.writeMu.Unlock()
	if err != nil {
		// the reader notices the broken connection and reconnects
		return nil, fmt.Errorf("%w: %v", errNotSent, err)
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readResponses reads responses in a loop and distributes them to waiting requests.
// If the connection breaks, all waiting requests fail and the connection is re-established.
func (c *clientConnection) readResponses() {
	backoff := 50 * time.Millisecond
	for {
		conn := c.currentConn()
		if conn == nil {
			if !c.waitAndReconnect(&backoff) {
				return
			}
			continue
		}

		requestID, data, err := readFrame(conn, nil)
		if err == nil {
			backoff = 50 * time.Millisecond
			if respCh, found := c.pending.Load(requestID); found {
				select {
				case respCh <- responseResult{data: data}:
				default:
				}
			} else {
				Logger.Warningf("Received response for unknown request ID %d", requestID)
			}
			continue
		}

		select {
		case <-c.stopCh:
			c.failPending(fmt.Errorf("transport closed"))
			return
		default:
		}

		Logger.Warningf("Connection to %s broken: %v", c.endpoint, err)
		c.failPending(fmt.Errorf("connection to %s broken: %w", c.endpoint, err))

		c.connMu.Lock()
		if c.conn == conn {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	}
}

// waitAndReconnect sleeps for the backoff and tries to reconnect.
// It returns false if the transport was closed.
func (c *clientConnection) waitAndReconnect(backoff *time.Duration) bool {
	select {
	case <-c.stopCh:
		return false
	case <-time.After(*backoff):
	}

	if err := c.reconnect(); err != nil {
		Logger.Debugf("Failed to reconnect to %s: %v", c.endpoint, err)
		*backoff = min(*backoff*2, maxReconnectBackoff)
		return true
	}
	Logger.Infof("Reconnected to %s", c.endpoint)
	return true
}

// failPending delivers err to all waiting requests
func (c *clientConnection) failPending(err error) {
	c.pending.Range(func(_ uint64, respCh chan responseResult) bool {
		select {
		case respCh <- responseResult{err: err}:
		default:
		}
		return true
	})
}

// reconnect establishes or restores the connection to the endpoint
func (c *clientConnection) reconnect() error {
	ctx := context.Background()
	if timeout := c.parent.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := c.parent.connector.Connect(ctx, c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	select {
	case <-c.stopCh:
		_ = conn.Close()
		return fmt.Errorf("transport closed")
	default:
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	return nil
}

package unix

import (
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/ValentinKolb/kvgate/rpc/transport/base"
	"net"
	"os"
)

const (
	defaultBufferSize = 64 * 1024 // 64 KB
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Endpoint

	// a socket file left by a previous run blocks the bind
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create unix socket: %v", err)
	}

	return listener, nil
}

func (c *serverConnector) UpgradeConnection(net.Conn, common.ServerConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixDefaultServerTransport creates a new Unix server transport with default buffer size
func NewUnixDefaultServerTransport() transport.IRPCServerTransport {
	return NewUnixServerTransport(defaultBufferSize)
}

// NewUnixServerTransport creates a new Unix server transport with specified buffer size
func NewUnixServerTransport(bufferSize int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize)
}

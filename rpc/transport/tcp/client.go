package tcp

import (
	"context"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/ValentinKolb/kvgate/rpc/transport/base"
	"net"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "tcp", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgradeTCPConn(conn, config.Socket)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}

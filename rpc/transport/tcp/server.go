package tcp

import (
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/ValentinKolb/kvgate/rpc/transport/base"
	"net"
	"time"
)

const (
	defaultBufferSize = 512 * 1024 // 512 KB
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp socket: %v", err)
	}

	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return upgradeTCPConn(conn, config.Socket)
}

// upgradeTCPConn applies the socket options of conf to a tcp connection.
// Connections of other types are left untouched.
func upgradeTCPConn(conn net.Conn, conf common.SocketConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	// Disable Nagle's algorithm if configured
	if err := tcpConn.SetNoDelay(conf.TCPNoDelay); err != nil {
		return err
	}

	if conf.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(conf.WriteBufferSize); err != nil {
			return err
		}
	}
	if conf.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(conf.ReadBufferSize); err != nil {
			return err
		}
	}

	if conf.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(conf.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	// linger 0 would reset connections on close and drop unsent responses
	if conf.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(conf.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport with the default buffer size
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, defaultBufferSize)
}

package base

import (
	"net"
	"time"

	"github.com/ValentinKolb/sMX/rpc/common"
)

// --------------------------------------------------------------------------
// Socket options shared by the connection based transports
// --------------------------------------------------------------------------

// SocketOptions are the settings applied to an established connection.
// Zero values keep the system default.
type SocketOptions struct {
	NoDelay      bool
	KeepAliveSec int
	LingerSec    int
	ReadBuffer   int
	WriteBuffer  int
}

// ServerSocketOptions returns the socket options of a server config
func ServerSocketOptions(config common.ServerConfig) SocketOptions {
	return SocketOptions{
		NoDelay:      config.Transport.TCPNoDelay,
		KeepAliveSec: config.Transport.TCPKeepAliveSec,
		LingerSec:    config.Transport.TCPLingerSec,
		ReadBuffer:   config.Transport.ReadBufferSize,
		WriteBuffer:  config.Transport.WriteBufferSize,
	}
}

// ClientSocketOptions returns the socket options of a client config
func ClientSocketOptions(config common.ClientConfig) SocketOptions {
	return SocketOptions{
		NoDelay:      config.Transport.TCPNoDelay,
		KeepAliveSec: config.Transport.TCPKeepAliveSec,
	}
}

// bufferedConn is implemented by *net.TCPConn and *net.UnixConn
type bufferedConn interface {
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
}

// ApplySocketOptions applies opts to conn. Buffer sizes apply to TCP and unix
// sockets, the other options only to TCP. Connections of other types are left
// unchanged.
func ApplySocketOptions(conn net.Conn, opts SocketOptions) error {
	if bc, ok := conn.(bufferedConn); ok {
		if opts.ReadBuffer > 0 {
			if err := bc.SetReadBuffer(opts.ReadBuffer); err != nil {
				return err
			}
		}
		if opts.WriteBuffer > 0 {
			if err := bc.SetWriteBuffer(opts.WriteBuffer); err != nil {
				return err
			}
		}
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	// false enables Nagle's algorithm
	if err := tcpConn.SetNoDelay(opts.NoDelay); err != nil {
		return err
	}
	if opts.KeepAliveSec > 0 {
		if err := tcpConn.SetKeepAliveConfig(net.KeepAliveConfig{
			Enable: true,
			Idle:   time.Duration(opts.KeepAliveSec) * time.Second,
		}); err != nil {
			return err
		}
	}
	// SetLinger(0) would reset connections on close
	if opts.LingerSec > 0 {
		if err := tcpConn.SetLinger(opts.LingerSec); err != nil {
			return err
		}
	}
	return nil
}

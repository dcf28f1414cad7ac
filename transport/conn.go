package transport

import (
	"net"

	"github.com/fleetmq/fleetmq/metrics"
)

// Conn wraps net.Conn to account transferred bytes
type Conn interface {
	net.Conn
}

type conn struct {
	net.Conn
	stat metrics.Bytes
}

var _ Conn = (*conn)(nil)

func newConn(cn net.Conn, stat metrics.Bytes) *conn {
	return &conn{
		Conn: cn,
		stat: stat,
	}
}

func (c *conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.stat.OnRecv(n)

	return n, err
}

func (c *conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.stat.OnSent(n)

	return n, err
}

package ice

import (
	"net"
	"time"
)

// Conn is the data path over the selected candidate pair. Reads return
// every non-STUN datagram arriving on any of the agent's sockets;
// writes follow the current selected pair, so the path migrates
// transparently across nominations and ICE restarts.
type Conn struct {
	agent *Agent
}

// Read reads a datagram from the data path.
func (c *Conn) Read(p []byte) (int, error) {
	return c.agent.buffer.Read(p)
}

// Write sends a datagram on the selected pair. Before nomination the
// highest-priority succeeded pair is used, so DTLS can start as soon
// as any pair validates.
func (c *Conn) Write(p []byte) (int, error) {
	pair := c.agent.getBestAvailablePair()
	if pair == nil {
		return 0, ErrNoCandidatePairs
	}
	return c.agent.sendOnPair(p, pair)
}

// Close closes the agent.
func (c *Conn) Close() error {
	return c.agent.Close()
}

// LocalAddr returns the selected local candidate address.
func (c *Conn) LocalAddr() net.Addr {
	if pair := c.agent.loadSelectedPair(); pair != nil {
		return pair.Local.addr()
	}
	if c.agent.udpConn != nil {
		return c.agent.udpConn.LocalAddr()
	}
	return &net.UDPAddr{}
}

// RemoteAddr returns the selected remote candidate address.
func (c *Conn) RemoteAddr() net.Addr {
	if pair := c.agent.loadSelectedPair(); pair != nil {
		return pair.Remote.addr()
	}
	return &net.UDPAddr{}
}

// SetDeadline applies to reads; writes never block.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

// SetReadDeadline applies a deadline to blocked reads.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.agent.buffer.SetReadDeadline(t)
}

// SetWriteDeadline is a stub.
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

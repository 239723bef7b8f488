package mux

import (
	"net"
	"time"

	"github.com/pion/transport/v4/packetio"
)

func newEndpointBuffer() *packetio.Buffer {
	b := packetio.NewBuffer()
	// cap per-endpoint buffering so a stalled consumer cannot hold the
	// whole transport's memory
	b.SetLimitSize(1 << 20)
	return b
}

// Endpoint implements net.Conn over one class of multiplexed datagrams.
type Endpoint struct {
	mux    *Mux
	buffer *packetio.Buffer
}

func (e *Endpoint) close() error {
	return e.buffer.Close()
}

// Close unregisters the endpoint from the mux.
func (e *Endpoint) Close() error {
	if err := e.close(); err != nil {
		return err
	}
	e.mux.RemoveEndpoint(e)
	return nil
}

// Read reads the next datagram for this endpoint.
func (e *Endpoint) Read(p []byte) (int, error) {
	return e.buffer.Read(p)
}

// Write writes a datagram to the shared underlying connection.
func (e *Endpoint) Write(p []byte) (int, error) {
	return e.mux.nextConn.Write(p)
}

// LocalAddr returns the address of the underlying connection.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.mux.nextConn.LocalAddr()
}

// RemoteAddr returns the peer address of the underlying connection.
func (e *Endpoint) RemoteAddr() net.Addr {
	return e.mux.nextConn.RemoteAddr()
}

// SetDeadline is a stub; datagram deadlines apply per-read.
func (e *Endpoint) SetDeadline(time.Time) error { return nil }

// SetWriteDeadline is a stub.
func (e *Endpoint) SetWriteDeadline(time.Time) error { return nil }

// SetReadDeadline applies a deadline to blocked reads.
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	return e.buffer.SetReadDeadline(t)
}

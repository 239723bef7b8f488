package datachannel

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgewood-io/webrtc/internal/sctp"
	"github.com/ridgewood-io/webrtc/pkg/dcep"
)

// bufferedConn is a datagram pipe that doesn't require lockstep
// readers.
type bufferedConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
}

func bufferedPipe() (*bufferedConn, *bufferedConn) {
	a2b := make(chan []byte, 256)
	b2a := make(chan []byte, 256)
	closed := make(chan struct{})
	return &bufferedConn{in: b2a, out: a2b, closed: closed},
		&bufferedConn{in: a2b, out: b2a, closed: closed}
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	select {
	case pkt, ok := <-c.in:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, pkt), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *bufferedConn) Write(p []byte) (int, error) {
	pkt := make([]byte, len(p))
	copy(pkt, p)
	select {
	case c.out <- pkt:
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	return len(p), nil
}

func (c *bufferedConn) Close() error {
	defer func() { _ = recover() }()
	close(c.closed)
	return nil
}

func (c *bufferedConn) LocalAddr() net.Addr              { return &net.UDPAddr{} }
func (c *bufferedConn) RemoteAddr() net.Addr             { return &net.UDPAddr{} }
func (c *bufferedConn) SetDeadline(time.Time) error      { return nil }
func (c *bufferedConn) SetReadDeadline(time.Time) error  { return nil }
func (c *bufferedConn) SetWriteDeadline(time.Time) error { return nil }

func sctpPair(t *testing.T) (*sctp.Association, *sctp.Association) {
	t.Helper()
	ca, cb := bufferedPipe()

	type result struct {
		assoc *sctp.Association
		err   error
	}
	serverCh := make(chan result, 1)
	go func() {
		a, err := sctp.Server(sctp.Config{NetConn: cb})
		serverCh <- result{a, err}
	}()
	client, err := sctp.Client(sctp.Config{NetConn: ca})
	require.NoError(t, err)
	server := <-serverCh
	require.NoError(t, server.err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.assoc.Close()
	})
	return client, server.assoc
}

func TestOpenAckAndEcho(t *testing.T) {
	clientAssoc, serverAssoc := sctpPair(t)

	dc, err := Dial(clientAssoc, 0, &Config{
		ChannelType: dcep.ChannelTypeReliable,
		Label:       "echo",
	})
	require.NoError(t, err)

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	remote, err := Accept(serverAssoc, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo", remote.Label)
	assert.Equal(t, uint16(0), remote.StreamIdentifier())

	// the opener's channel opens only once the ACK arrives; pump a
	// read to consume it
	go func() {
		buf := make([]byte, 1500)
		_, _, _ = dc.ReadDataChannel(buf)
	}()

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("OnOpen never fired")
	}

	_, err = dc.WriteDataChannel([]byte("hello"), true)
	require.NoError(t, err)

	buf := make([]byte, 1500)
	n, isString, err := remote.ReadDataChannel(buf)
	require.NoError(t, err)
	assert.True(t, isString)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestReliabilityMapping(t *testing.T) {
	clientAssoc, serverAssoc := sctpPair(t)

	dc, err := Dial(clientAssoc, 0, &Config{
		ChannelType:          dcep.ChannelTypePartialReliableRexmitUnordered,
		ReliabilityParameter: 3,
		Label:                "lossy",
	})
	require.NoError(t, err)
	_ = dc

	remote, err := Accept(serverAssoc, nil)
	require.NoError(t, err)
	assert.Equal(t, dcep.ChannelTypePartialReliableRexmitUnordered, remote.ChannelType)
	assert.Equal(t, uint32(3), remote.ReliabilityParameter)
	assert.True(t, remote.ChannelType.Unordered())
}

func TestEmptyMessages(t *testing.T) {
	clientAssoc, serverAssoc := sctpPair(t)

	dc, err := Dial(clientAssoc, 0, &Config{ChannelType: dcep.ChannelTypeReliable, Label: "e"})
	require.NoError(t, err)
	remote, err := Accept(serverAssoc, nil)
	require.NoError(t, err)

	_, err = dc.WriteDataChannel(nil, true)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, isString, err := remote.ReadDataChannel(buf)
	require.NoError(t, err)
	assert.True(t, isString)
	assert.Zero(t, n)

	_, err = dc.WriteDataChannel(nil, false)
	require.NoError(t, err)
	n, isString, err = remote.ReadDataChannel(buf)
	require.NoError(t, err)
	assert.False(t, isString)
	assert.Zero(t, n)
}

func TestNegotiatedSkipsDCEP(t *testing.T) {
	clientAssoc, serverAssoc := sctpPair(t)
	_ = serverAssoc

	dc, err := Dial(clientAssoc, 4, &Config{
		ChannelType: dcep.ChannelTypeReliable,
		Negotiated:  true,
		Label:       "pre",
	})
	require.NoError(t, err)

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("negotiated channel should open immediately")
	}
}

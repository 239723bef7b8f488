package sctp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanConn is a buffered datagram pipe; unlike net.Pipe it lets both
// associations write without a reader in lockstep.
type chanConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
}

func chanPipe() (*chanConn, *chanConn) {
	a2b := make(chan []byte, 256)
	b2a := make(chan []byte, 256)
	closed := make(chan struct{})
	a := &chanConn{in: b2a, out: a2b, closed: closed}
	b := &chanConn{in: a2b, out: b2a, closed: closed}
	return a, b
}

func (c *chanConn) Read(p []byte) (int, error) {
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

func (c *chanConn) Write(p []byte) (int, error) {
	pkt := make([]byte, len(p))
	copy(pkt, p)
	select {
	case c.out <- pkt:
		return len(p), nil
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
		return len(p), nil // drop on backpressure, like UDP
	}
}

func (c *chanConn) Close() error {
	defer func() { _ = recover() }()
	close(c.closed)
	return nil
}

func (c *chanConn) LocalAddr() net.Addr                { return &net.UDPAddr{} }
func (c *chanConn) RemoteAddr() net.Addr               { return &net.UDPAddr{} }
func (c *chanConn) SetDeadline(time.Time) error        { return nil }
func (c *chanConn) SetReadDeadline(time.Time) error    { return nil }
func (c *chanConn) SetWriteDeadline(time.Time) error   { return nil }

func associationPair(t *testing.T) (*Association, *Association) {
	t.Helper()
	ca, cb := chanPipe()

	type result struct {
		assoc *Association
		err   error
	}
	serverCh := make(chan result, 1)
	go func() {
		a, err := Server(Config{NetConn: cb})
		serverCh <- result{a, err}
	}()

	client, err := Client(Config{NetConn: ca})
	require.NoError(t, err)
	server := <-serverCh
	require.NoError(t, server.err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.assoc.Close()
	})
	return client, server.assoc
}

func TestAssociationHandshake(t *testing.T) {
	client, server := associationPair(t)
	assert.Equal(t, stateEstablished, client.state)
	assert.Equal(t, stateEstablished, server.state)
}

func TestStreamRoundTrip(t *testing.T) {
	client, server := associationPair(t)

	s, err := client.OpenStream(1, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	_, err = s.WriteSCTP([]byte("hello sctp"), PayloadTypeWebRTCString)
	require.NoError(t, err)

	accepted, err := server.AcceptStream()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), accepted.StreamIdentifier())

	buf := make([]byte, 1500)
	n, ppi, err := accepted.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello sctp", string(buf[:n]))
	assert.Equal(t, PayloadTypeWebRTCString, ppi)

	// reply on the same stream id
	_, err = accepted.WriteSCTP([]byte("pong"), PayloadTypeWebRTCBinary)
	require.NoError(t, err)
	n, _, err = s.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

func TestLargeMessageFragmentation(t *testing.T) {
	client, server := associationPair(t)

	s, err := client.OpenStream(3, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	msg := make([]byte, 5*int(maxPayloadSize)+17)
	for i := range msg {
		msg[i] = byte(i % 251)
	}
	_, err = s.WriteSCTP(msg, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	accepted, err := server.AcceptStream()
	require.NoError(t, err)

	buf := make([]byte, len(msg)+100)
	n, _, err := accepted.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:n])
}

func TestOrderedDelivery(t *testing.T) {
	client, server := associationPair(t)

	s, err := client.OpenStream(5, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	for i := byte(0); i < 10; i++ {
		_, err = s.WriteSCTP([]byte{i}, PayloadTypeWebRTCBinary)
		require.NoError(t, err)
	}

	accepted, err := server.AcceptStream()
	require.NoError(t, err)

	buf := make([]byte, 10)
	for i := byte(0); i < 10; i++ {
		n, _, err := accepted.ReadSCTP(buf)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		assert.Equal(t, i, buf[0])
	}
}

func TestPacketRoundTrip(t *testing.T) {
	p := &packet{
		sourcePort:      defaultPort,
		destinationPort: defaultPort,
		verificationTag: 0xDEADBEEF,
		chunks: []chunk{&chunkPayloadData{
			tsn:               42,
			streamIdentifier:  1,
			payloadType:       PayloadTypeWebRTCBinary,
			userData:          []byte{1, 2, 3},
			beginningFragment: true,
			endingFragment:    true,
		}},
	}
	raw, err := p.marshal()
	require.NoError(t, err)

	parsed, chunks, err := unmarshalPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), parsed.verificationTag)
	require.Len(t, chunks, 1)
	assert.Equal(t, ctPayloadData, chunks[0].typ)

	var data chunkPayloadData
	require.NoError(t, data.unmarshal(chunks[0].flags, chunks[0].value))
	assert.Equal(t, uint32(42), data.tsn)
	assert.True(t, data.beginningFragment)
	assert.True(t, data.endingFragment)
	assert.Equal(t, []byte{1, 2, 3}, data.userData)

	// corrupting any byte breaks the checksum
	raw[len(raw)-1] ^= 0xff
	_, _, err = unmarshalPacket(raw)
	assert.ErrorIs(t, err, errChecksum)
}

func TestSackGapBlocks(t *testing.T) {
	r := newReceivedQueue()
	cum := uint32(100)

	require.True(t, r.push(102))
	require.True(t, r.push(103))
	require.True(t, r.push(106))
	require.False(t, r.push(102))

	blocks := r.gapBlocks(cum)
	assert.Equal(t, []gapAckBlock{{start: 2, end: 3}, {start: 6, end: 6}}, blocks)

	require.True(t, r.push(101))
	cum = r.advance(cum)
	assert.Equal(t, uint32(103), cum)
}

func TestSerialNumberArithmetic(t *testing.T) {
	assert.True(t, sna32LT(0xFFFFFFFF, 0))
	assert.True(t, sna32LT(5, 6))
	assert.False(t, sna32LT(6, 5))
	assert.True(t, sna32LTE(7, 7))
	assert.True(t, sna16LT(0xFFFF, 0))
}

func TestStreamResetOnClose(t *testing.T) {
	client, server := associationPair(t)

	s, err := client.OpenStream(7, PayloadTypeWebRTCBinary)
	require.NoError(t, err)
	_, err = s.WriteSCTP([]byte("x"), PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	accepted, err := server.AcceptStream()
	require.NoError(t, err)
	buf := make([]byte, 10)
	_, _, err = accepted.ReadSCTP(buf)
	require.NoError(t, err)

	resetCh := make(chan struct{})
	accepted.OnReset(func() { close(resetCh) })

	require.NoError(t, s.Close())

	select {
	case <-resetCh:
	case <-time.After(5 * time.Second):
		t.Fatal("peer never observed the stream reset")
	}
}

func TestBufferedAmount(t *testing.T) {
	client, server := associationPair(t)
	_ = server

	s, err := client.OpenStream(9, PayloadTypeWebRTCBinary)
	require.NoError(t, err)
	s.SetBufferedAmountLowThreshold(1)

	low := make(chan struct{}, 1)
	s.OnBufferedAmountLow(func() {
		select {
		case low <- struct{}{}:
		default:
		}
	})

	_, err = s.WriteSCTP(make([]byte, 4000), PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	select {
	case <-low:
	case <-time.After(5 * time.Second):
		t.Fatal("buffered amount never drained")
	}
	assert.Zero(t, s.BufferedAmount())
}

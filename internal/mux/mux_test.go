package mux

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchFuncs(t *testing.T) {
	stun := []byte{0x00, 0x01, 0x00, 0x00}
	dtls := []byte{0x16, 0xfe, 0xfd}
	srtp := []byte{0x80, 0x60, 0x00, 0x01}
	srtcp := []byte{0x80, 0xc8, 0x00, 0x06}
	garbage := []byte{0x05, 0x00}

	assert.True(t, MatchSTUN(stun))
	assert.False(t, MatchSTUN(dtls))

	assert.True(t, MatchDTLS(dtls))
	assert.False(t, MatchDTLS(srtp))

	assert.True(t, MatchSRTP(srtp))
	assert.False(t, MatchSRTP(srtcp))

	assert.True(t, MatchSRTCP(srtcp))
	assert.False(t, MatchSRTCP(srtp))

	assert.False(t, MatchSTUN(garbage))
	assert.False(t, MatchDTLS(garbage))
	assert.False(t, MatchSRTPOrSRTCP(garbage))

	assert.False(t, MatchSTUN(nil))
}

func TestMuxDispatch(t *testing.T) {
	ca, cb := net.Pipe()
	m := NewMux(Config{Conn: ca, BufferSize: 1500})
	defer func() {
		_ = m.Close()
		_ = cb.Close()
	}()

	stunEndpoint := m.NewEndpoint(MatchSTUN)
	rtpEndpoint := m.NewEndpoint(MatchSRTP)

	_, err := cb.Write([]byte{0x00, 0x01, 0x00, 0x00})
	require.NoError(t, err)

	buf := make([]byte, 1500)
	require.NoError(t, stunEndpoint.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := stunEndpoint.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x00}, buf[:n])

	// unmatched datagram increments the drop counter
	_, err = cb.Write([]byte{0x05, 0x00})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return m.DroppedPackets() == 1
	}, time.Second, 10*time.Millisecond)

	// nothing arrived at the RTP endpoint
	require.NoError(t, rtpEndpoint.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = rtpEndpoint.Read(buf)
	assert.Error(t, err)
}

func TestEndpointWrite(t *testing.T) {
	ca, cb := net.Pipe()
	m := NewMux(Config{Conn: ca, BufferSize: 1500})
	defer func() {
		_ = m.Close()
		_ = cb.Close()
	}()

	e := m.NewEndpoint(MatchDTLS)
	go func() {
		_, _ = e.Write([]byte{0x16, 0x01})
	}()

	buf := make([]byte, 1500)
	require.NoError(t, cb.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := cb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x16, 0x01}, buf[:n])
}

func TestRemoveEndpoint(t *testing.T) {
	ca, cb := net.Pipe()
	m := NewMux(Config{Conn: ca, BufferSize: 1500})
	defer func() {
		_ = m.Close()
		_ = cb.Close()
	}()

	e := m.NewEndpoint(MatchSTUN)
	m.RemoveEndpoint(e)

	_, err := cb.Write([]byte{0x00, 0x01})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return m.DroppedPackets() == 1
	}, time.Second, 10*time.Millisecond)
}

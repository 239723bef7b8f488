package sfu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

func layerPkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestRouterForwardsSelectedLayer(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()

	low := make(chan *rtp.Packet, 8)
	high := make(chan *rtp.Packet, 8)
	out := make(chan *rtp.Packet, 8)

	r.AddLayer("l", low)
	r.AddLayer("h", high)
	r.AddSink(out)

	assert.Equal(t, "l", r.SelectedLayer())

	low <- layerPkt(1)
	high <- layerPkt(1000)

	select {
	case pkt := <-out:
		assert.Equal(t, uint16(1), pkt.SequenceNumber)
	case <-time.After(time.Second):
		t.Fatal("no packet forwarded")
	}

	// nothing else arrives: the high layer is suppressed
	select {
	case pkt := <-out:
		t.Fatalf("unexpected packet seq %d", pkt.SequenceNumber)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouterLayerSwitch(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()

	low := make(chan *rtp.Packet, 8)
	high := make(chan *rtp.Packet, 8)
	out := make(chan *rtp.Packet, 8)

	r.AddLayer("l", low)
	r.AddLayer("h", high)
	r.AddSink(out)

	require.True(t, r.SelectLayer("h"))
	assert.False(t, r.SelectLayer("missing"))

	high <- layerPkt(7)
	select {
	case pkt := <-out:
		assert.Equal(t, uint16(7), pkt.SequenceNumber)
	case <-time.After(time.Second):
		t.Fatal("no packet after switch")
	}
}

func TestRouterRemoveLayerReselects(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()

	low := make(chan *rtp.Packet, 8)
	r.AddLayer("l", low)
	require.Equal(t, "l", r.SelectedLayer())

	r.RemoveLayer("l")
	assert.Empty(t, r.SelectedLayer())
}

package webrtc

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// candidateForwarder buffers trickled candidates until the peer has a
// remote description, the way a signaling layer would.
type candidateForwarder struct {
	mu      sync.Mutex
	target  *PeerConnection
	ready   bool
	pending []ICECandidateInit
}

func (f *candidateForwarder) forward(c *ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		f.pending = append(f.pending, init)
		return
	}
	_ = f.target.AddICECandidate(init)
}

func (f *candidateForwarder) flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = true
	for _, init := range f.pending {
		_ = f.target.AddICECandidate(init)
	}
	f.pending = nil
}

func newPCPair(t *testing.T) (*PeerConnection, *PeerConnection) {
	t.Helper()
	offerer, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	answerer, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = offerer.Close()
		_ = answerer.Close()
	})
	return offerer, answerer
}

// signalPair performs one complete offer/answer exchange with trickle.
func signalPair(t *testing.T, offerer, answerer *PeerConnection) {
	t.Helper()

	toAnswerer := &candidateForwarder{target: answerer}
	toOfferer := &candidateForwarder{target: offerer}
	offerer.OnICECandidate(toAnswerer.forward)
	answerer.OnICECandidate(toOfferer.forward)

	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))
	require.NoError(t, answerer.SetRemoteDescription(offer))

	answer, err := answerer.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	require.NoError(t, offerer.SetRemoteDescription(answer))

	toAnswerer.flush()
	toOfferer.flush()
}

func waitForState(t *testing.T, pc *PeerConnection, want PeerConnectionState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pc.ConnectionState() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("connection never reached %s (stuck at %s, lastErr=%v)",
		want, pc.ConnectionState(), pc.LastError())
}

// The data channel echo scenario: offer, answer, open, echo both ways.
func TestDataChannelEcho(t *testing.T) {
	offerer, answerer := newPCPair(t)

	dc, err := offerer.CreateDataChannel("echo", nil)
	require.NoError(t, err)

	received := make(chan string, 1)
	echoed := make(chan string, 1)

	answerer.OnDataChannel(func(remote *DataChannel) {
		assert.Equal(t, "echo", remote.Label())
		remote.OnMessage(func(msg DataChannelMessage) {
			received <- string(msg.Data)
			_ = remote.SendText(string(msg.Data))
		})
	})

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	dc.OnMessage(func(msg DataChannelMessage) {
		echoed <- string(msg.Data)
	})

	start := time.Now()
	signalPair(t, offerer, answerer)

	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Fatalf("datachannel never opened (state=%s, lastErr=%v)",
			offerer.ConnectionState(), offerer.LastError())
	}

	require.NoError(t, dc.SendText("hello"))
	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("answerer never received the message")
	}
	select {
	case msg := <-echoed:
		assert.Equal(t, "hello", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("offerer never received the echo")
	}

	// offer-to-first-message stays within the negotiation budget
	assert.Less(t, time.Since(start), 10*time.Second)
}

// Trickle: the offer itself may carry zero candidates; connectivity
// comes entirely from trickled ones.
func TestTrickleICE(t *testing.T) {
	offerer, answerer := newPCPair(t)

	_, err := offerer.CreateDataChannel("t", nil)
	require.NoError(t, err)

	var trickled int
	var trickleMu sync.Mutex

	toAnswerer := &candidateForwarder{target: answerer}
	toOfferer := &candidateForwarder{target: offerer}
	offerer.OnICECandidate(func(c *ICECandidate) {
		if c != nil {
			trickleMu.Lock()
			trickled++
			trickleMu.Unlock()
		}
		toAnswerer.forward(c)
	})
	answerer.OnICECandidate(toOfferer.forward)

	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	assert.NotContains(t, offer.SDP, "a=candidate",
		"offer created before gathering must carry no candidates")

	require.NoError(t, offerer.SetLocalDescription(offer))
	require.NoError(t, answerer.SetRemoteDescription(offer))
	answer, err := answerer.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	require.NoError(t, offerer.SetRemoteDescription(answer))
	toAnswerer.flush()
	toOfferer.flush()

	waitForState(t, offerer, PeerConnectionStateConnected, 10*time.Second)

	trickleMu.Lock()
	defer trickleMu.Unlock()
	assert.Positive(t, trickled)
}

// Offer idempotence: re-creating an offer without state changes keeps
// mids, directions, codecs and the bundle group.
func TestOfferIdempotent(t *testing.T) {
	offerer, answerer := newPCPair(t)

	_, err := offerer.AddTransceiverFromKind(RTPCodecTypeAudio,
		RTPTransceiverInit{Direction: RTPTransceiverDirectionSendrecv})
	require.NoError(t, err)
	_, err = offerer.CreateDataChannel("d", nil)
	require.NoError(t, err)

	signalPair(t, offerer, answerer)

	offer2, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	offer3, err := offerer.CreateOffer(nil)
	require.NoError(t, err)

	extract := func(sdp string, prefix string) []string {
		var out []string
		for _, line := range strings.Split(sdp, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, prefix) {
				out = append(out, line)
			}
		}
		return out
	}

	assert.Equal(t, extract(offer2.SDP, "a=mid:"), extract(offer3.SDP, "a=mid:"))
	assert.Equal(t, extract(offer2.SDP, "a=group:BUNDLE"), extract(offer3.SDP, "a=group:BUNDLE"))
	assert.Equal(t, extract(offer2.SDP, "a=rtpmap:"), extract(offer3.SDP, "a=rtpmap:"))
	assert.Equal(t, extract(offer2.SDP, "a=sendrecv"), extract(offer3.SDP, "a=sendrecv"))
}

// ICE restart: fresh ufrag, reconnection, and an open channel keeps
// delivering afterwards.
func TestICERestart(t *testing.T) {
	offerer, answerer := newPCPair(t)

	dc, err := offerer.CreateDataChannel("ping", nil)
	require.NoError(t, err)

	pong := make(chan struct{}, 1)
	answerer.OnDataChannel(func(remote *DataChannel) {
		remote.OnMessage(func(DataChannelMessage) {
			_ = remote.SendText("pong")
		})
	})
	dc.OnMessage(func(DataChannelMessage) {
		select {
		case pong <- struct{}{}:
		default:
		}
	})

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	signalPair(t, offerer, answerer)
	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Fatal("channel never opened")
	}
	waitForState(t, offerer, PeerConnectionStateConnected, 10*time.Second)

	ufragOf := func(sdp string) string {
		for _, line := range strings.Split(sdp, "\n") {
			line = strings.TrimSpace(line)
			if v, ok := strings.CutPrefix(line, "a=ice-ufrag:"); ok {
				return v
			}
		}
		return ""
	}
	oldUfrag := ufragOf(offerer.LocalDescription().SDP)

	// restart: new offer under fresh credentials
	offer, err := offerer.CreateOffer(&OfferOptions{ICERestart: true})
	require.NoError(t, err)
	newUfrag := ufragOf(offer.SDP)
	require.NotEmpty(t, newUfrag)
	assert.NotEqual(t, oldUfrag, newUfrag)

	require.NoError(t, offerer.SetLocalDescription(offer))
	require.NoError(t, answerer.SetRemoteDescription(offer))
	answer, err := answerer.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	require.NoError(t, offerer.SetRemoteDescription(answer))

	// ping/pong sent after the restart still round-trips
	require.Eventually(t, func() bool {
		if err := dc.SendText("ping"); err != nil {
			return false
		}
		select {
		case <-pong:
			return true
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 15*time.Second, 100*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	require.NoError(t, pc.Close())
	require.NoError(t, pc.Close())
	assert.Equal(t, PeerConnectionStateClosed, pc.ConnectionState())
	assert.Equal(t, SignalingStateClosed, pc.SignalingState())

	_, err = pc.CreateOffer(nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = pc.CreateDataChannel("x", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestAddICECandidateRequiresRemoteDescription(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()

	err = pc.AddICECandidate(ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 1234 typ host"})
	assert.ErrorIs(t, err, ErrNoRemoteDescription)
}

func TestSignalingStateTransitions(t *testing.T) {
	offerer, answerer := newPCPair(t)

	_, err := offerer.CreateDataChannel("d", nil)
	require.NoError(t, err)

	assert.Equal(t, SignalingStateStable, offerer.SignalingState())

	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))
	assert.Equal(t, SignalingStateHaveLocalOffer, offerer.SignalingState())

	require.NoError(t, answerer.SetRemoteDescription(offer))
	assert.Equal(t, SignalingStateHaveRemoteOffer, answerer.SignalingState())

	answer, err := answerer.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	assert.Equal(t, SignalingStateStable, answerer.SignalingState())

	require.NoError(t, offerer.SetRemoteDescription(answer))
	assert.Equal(t, SignalingStateStable, offerer.SignalingState())

	// an answer in stable state is rejected
	err = offerer.SetRemoteDescription(answer)
	assert.ErrorIs(t, err, ErrIncorrectSignalingState)
}

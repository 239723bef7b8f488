package webrtc

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A full local description should be digestible by the remote parser;
// this pins the attribute vocabulary the two halves share.
func TestLocalDescriptionRoundTrip(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()

	_, err = pc.AddTransceiverFromKind(RTPCodecTypeVideo,
		RTPTransceiverInit{Direction: RTPTransceiverDirectionRecvonly})
	require.NoError(t, err)
	_, err = pc.CreateDataChannel("d", nil)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)

	assert.Contains(t, offer.SDP, "a=group:BUNDLE")
	assert.Contains(t, offer.SDP, "m=video")
	assert.Contains(t, offer.SDP, "m=application")
	assert.Contains(t, offer.SDP, "a=sctp-port:5000")
	assert.Contains(t, offer.SDP, "a=fingerprint:sha-256")
	assert.Contains(t, offer.SDP, "a=setup:actpass")
	assert.Contains(t, offer.SDP, "a=recvonly")
	assert.Contains(t, offer.SDP, "a=rtcp-mux")

	parsed, err := offer.Unmarshal()
	require.NoError(t, err)
	summary, err := parseRemoteDescription(parsed)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.iceParams.UsernameFragment)
	assert.NotEmpty(t, summary.iceParams.Password)
	require.Len(t, summary.fingerprints, 1)
	assert.Equal(t, "sha-256", summary.fingerprints[0].Algorithm)
	assert.True(t, summary.hasData)
	require.Len(t, summary.media, 2)
	assert.Equal(t, RTPCodecTypeVideo, summary.media[0].kind)
	assert.Equal(t, RTPTransceiverDirectionRecvonly, summary.media[0].direction)
	assert.NotEmpty(t, summary.media[0].codecs)
}

func TestSendingDescriptionCarriesSSRCAndFID(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()

	track, err := NewTrackLocalStaticRTP(
		RTPCodecCapability{MimeType: MimeTypeVP8, ClockRate: 90000}, "video-id", "stream-id")
	require.NoError(t, err)
	sender, err := pc.AddTrack(track)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)

	assert.Contains(t, offer.SDP, "a=ssrc-group:FID")
	assert.Contains(t, offer.SDP, "a=msid:stream-id video-id")

	parsed, err := offer.Unmarshal()
	require.NoError(t, err)
	summary, err := parseRemoteDescription(parsed)
	require.NoError(t, err)

	require.Len(t, summary.media, 1)
	rm := summary.media[0]
	assert.Contains(t, rm.ssrcs, sender.SSRC())
	assert.Equal(t, sender.rtxSSRCValue(), rm.fidGroups[sender.SSRC()])
	assert.Equal(t, "stream-id", rm.streamID)
	assert.Equal(t, "video-id", rm.trackID)
}

func TestParseRejectsIncompleteDescriptions(t *testing.T) {
	// no fingerprint
	raw := strings.Join([]string{
		"v=0",
		"o=- 1 1 IN IP4 0.0.0.0",
		"s=-",
		"t=0 0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"c=IN IP4 0.0.0.0",
		"a=ice-ufrag:abcd",
		"a=ice-pwd:efghijklmnopqrstuvwx",
		"a=rtpmap:111 opus/48000/2",
		"",
	}, "\r\n")
	desc := SessionDescription{Type: SDPTypeOffer, SDP: raw}
	parsed, err := desc.Unmarshal()
	require.NoError(t, err)
	_, err = parseRemoteDescription(parsed)
	assert.ErrorIs(t, err, ErrSessionDescriptionNoFingerprint)

	// no ICE credentials
	raw = strings.ReplaceAll(raw, "a=ice-ufrag:abcd\r\n", "")
	raw = strings.ReplaceAll(raw, "a=ice-pwd:efghijklmnopqrstuvwx\r\n", "a=fingerprint:sha-256 AA:BB\r\n")
	desc = SessionDescription{Type: SDPTypeOffer, SDP: raw}
	parsed, err = desc.Unmarshal()
	require.NoError(t, err)
	_, err = parseRemoteDescription(parsed)
	assert.ErrorIs(t, err, ErrSessionDescriptionNoIceCredentials)
}

func TestCertificateFingerprint(t *testing.T) {
	cert, err := GenerateCertificate()
	require.NoError(t, err)

	fp := cert.Fingerprint()
	parts := strings.Split(fp, ":")
	assert.Len(t, parts, 32)
	for _, p := range parts {
		assert.Len(t, p, 2)
	}
	assert.False(t, cert.Expired())
}

func TestDataChannelParameterMapping(t *testing.T) {
	ordered := false
	var retransmits uint16 = 3
	dc := newDataChannel("lossy", &DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})

	channelType, reliability := dc.channelType()
	assert.Equal(t, uint32(3), reliability)
	assert.True(t, channelType.Unordered())

	lifetime := uint16(150)
	dc2 := newDataChannel("timed", &DataChannelInit{MaxPacketLifeTime: &lifetime})
	channelType, reliability = dc2.channelType()
	assert.Equal(t, uint32(150), reliability)
	assert.False(t, channelType.Unordered())

	dc3 := newDataChannel("plain", nil)
	channelType, reliability = dc3.channelType()
	assert.Zero(t, reliability)
	assert.False(t, channelType.Unordered())
	assert.True(t, dc3.Ordered())
}

func TestOperationsOrdering(t *testing.T) {
	ops := newOperations()
	var order []int
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		i := i
		ops.Enqueue(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	ops.Done()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

package webrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultCodecs(t *testing.T) {
	m := &MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())

	audio := m.getCodecsByKind(RTPCodecTypeAudio)
	video := m.getCodecsByKind(RTPCodecTypeVideo)
	assert.NotEmpty(t, audio)
	assert.NotEmpty(t, video)

	opus, kind, err := m.codecByMimeType(MimeTypeOpus)
	require.NoError(t, err)
	assert.Equal(t, RTPCodecTypeAudio, kind)
	assert.Equal(t, uint32(48000), opus.ClockRate)
	assert.Equal(t, uint16(2), opus.Channels)

	_, _, err = m.codecByMimeType("video/av2")
	assert.ErrorIs(t, err, ErrCodecNotFound)
}

func TestNegotiateCodecsAdoptsRemoteNumbering(t *testing.T) {
	m := &MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())

	remote := []RTPCodecParameters{
		{
			RTPCodecCapability: RTPCodecCapability{MimeType: MimeTypeVP8, ClockRate: 90000},
			PayloadType:        120,
		},
		{
			RTPCodecCapability: RTPCodecCapability{MimeType: MimeTypeRTX, ClockRate: 90000, SDPFmtpLine: "apt=120"},
			PayloadType:        121,
		},
	}

	negotiated, err := m.negotiateCodecs(RTPCodecTypeVideo, remote, nil)
	require.NoError(t, err)
	require.Len(t, negotiated, 2)
	assert.Equal(t, PayloadType(120), negotiated[0].PayloadType)
	assert.Equal(t, MimeTypeVP8, negotiated[0].MimeType)
	assert.Equal(t, PayloadType(121), negotiated[1].PayloadType)
	assert.Equal(t, MimeTypeRTX, negotiated[1].MimeType)
}

func TestNegotiateCodecsNoIntersection(t *testing.T) {
	m := &MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())

	remote := []RTPCodecParameters{{
		RTPCodecCapability: RTPCodecCapability{MimeType: "video/av2", ClockRate: 90000},
		PayloadType:        45,
	}}
	_, err := m.negotiateCodecs(RTPCodecTypeVideo, remote, nil)
	assert.ErrorIs(t, err, ErrNoCommonCodec)
}

func TestCodecPreferenceOverridesOrder(t *testing.T) {
	m := &MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())

	remote := []RTPCodecParameters{
		{RTPCodecCapability: RTPCodecCapability{MimeType: MimeTypeVP8, ClockRate: 90000}, PayloadType: 120},
		{RTPCodecCapability: RTPCodecCapability{MimeType: MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0"}, PayloadType: 122},
	}

	// remote lists VP8 first, the endpoint prefers VP9: endpoint wins
	negotiated, err := m.negotiateCodecs(RTPCodecTypeVideo, remote, []string{MimeTypeVP9})
	require.NoError(t, err)
	require.NotEmpty(t, negotiated)
	assert.Equal(t, MimeTypeVP9, negotiated[0].MimeType)
}

func TestDirectionIntersection(t *testing.T) {
	for _, tc := range []struct {
		local, remote, want RTPTransceiverDirection
	}{
		{RTPTransceiverDirectionSendrecv, RTPTransceiverDirectionSendrecv, RTPTransceiverDirectionSendrecv},
		{RTPTransceiverDirectionSendrecv, RTPTransceiverDirectionRecvonly, RTPTransceiverDirectionSendonly},
		{RTPTransceiverDirectionSendrecv, RTPTransceiverDirectionSendonly, RTPTransceiverDirectionRecvonly},
		{RTPTransceiverDirectionSendonly, RTPTransceiverDirectionSendonly, RTPTransceiverDirectionInactive},
		{RTPTransceiverDirectionRecvonly, RTPTransceiverDirectionSendrecv, RTPTransceiverDirectionRecvonly},
		{RTPTransceiverDirectionSendrecv, RTPTransceiverDirectionInactive, RTPTransceiverDirectionInactive},
	} {
		assert.Equal(t, tc.want, tc.local.intersect(tc.remote),
			"%s x %s", tc.local, tc.remote)
	}
}

func TestHeaderExtensionNegotiationKeepsRemoteIDs(t *testing.T) {
	m := &MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())

	remote := []RTPHeaderExtensionParameter{
		{URI: "urn:ietf:params:rtp-hdrext:sdes:mid", ID: 9},
		{URI: "urn:example:unknown", ID: 10},
	}
	negotiated := m.negotiateHeaderExtensions(RTPCodecTypeAudio, remote)
	require.Len(t, negotiated, 1)
	assert.Equal(t, 9, negotiated[0].ID)
}

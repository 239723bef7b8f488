package webrtc

import (
	"strings"

	"github.com/ridgewood-io/webrtc/internal/fmtp"
)

// Mime types of the codecs the default media engine registers.
const (
	MimeTypeOpus = "audio/opus"
	MimeTypeG722 = "audio/G722"
	MimeTypeVP8  = "video/VP8"
	MimeTypeVP9  = "video/VP9"
	MimeTypeH264 = "video/H264"
	MimeTypeRTX  = "video/rtx"
)

// PayloadType identifies a codec within a session.
type PayloadType uint8

// RTCPFeedback is one a=rtcp-fb entry.
type RTCPFeedback struct {
	Type      string
	Parameter string
}

// Feedback type names.
const (
	TypeRTCPFBNACK        = "nack"
	TypeRTCPFBGoogREMB    = "goog-remb"
	TypeRTCPFBTransportCC = "transport-cc"
	TypeRTCPFBCCM         = "ccm"
)

// RTPCodecCapability describes a codec independent of a session.
type RTPCodecCapability struct {
	MimeType     string
	ClockRate    uint32
	Channels     uint16
	SDPFmtpLine  string
	RTCPFeedback []RTCPFeedback
}

// RTPCodecParameters is a codec bound to a payload type.
type RTPCodecParameters struct {
	RTPCodecCapability
	PayloadType PayloadType
}

// RTPHeaderExtensionParameter is one negotiated a=extmap entry.
type RTPHeaderExtensionParameter struct {
	URI string
	ID  int
}

// RTPParameters is the codec and extension set of one media section.
type RTPParameters struct {
	HeaderExtensions []RTPHeaderExtensionParameter
	Codecs           []RTPCodecParameters
}

// RTPCodingParameters names one RTP stream of an encoding: its SSRC,
// optional RID layer and RTX repair stream.
type RTPCodingParameters struct {
	RID         string
	SSRC        uint32
	PayloadType PayloadType

	// RTX repair stream parameters (a=ssrc-group:FID)
	RTXSSRC        uint32
	RTXPayloadType PayloadType
}

// RTPSendParameters configures an RTPSender.
type RTPSendParameters struct {
	RTPParameters
	Encodings []RTPCodingParameters
}

// RTPReceiveParameters configures an RTPReceiver.
type RTPReceiveParameters struct {
	RTPParameters
	Encodings []RTPCodingParameters
}

// codecMatches reports whether two codecs are interchangeable: same
// mime type and clock rate, matching fmtp, and for Opus the same
// channel count.
func codecMatches(a, b RTPCodecCapability) bool {
	if !strings.EqualFold(a.MimeType, b.MimeType) ||
		a.ClockRate != b.ClockRate {
		return false
	}
	if strings.EqualFold(a.MimeType, MimeTypeOpus) && a.Channels != b.Channels {
		return false
	}
	return fmtp.Parse(a.MimeType, a.SDPFmtpLine).Match(fmtp.Parse(b.MimeType, b.SDPFmtpLine))
}

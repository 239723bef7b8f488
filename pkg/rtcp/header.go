// Package rtcp implements encoding and decoding of RTCP packets: the
// RFC 3550 report and description packets plus the RFC 4585/5104
// feedback messages, REMB and transport-wide congestion control
// feedback used by the RTP session layer.
package rtcp

import (
	"encoding/binary"
)

// PacketType is the RTCP packet type field.
type PacketType uint8

// RTCP packet types registered with IANA.
const (
	TypeSenderReport              PacketType = 200 // RFC 3550, 6.4.1
	TypeReceiverReport            PacketType = 201 // RFC 3550, 6.4.2
	TypeSourceDescription         PacketType = 202 // RFC 3550, 6.5
	TypeGoodbye                   PacketType = 203 // RFC 3550, 6.6
	TypeApplicationDefined        PacketType = 204 // RFC 3550, 6.7
	TypeTransportSpecificFeedback PacketType = 205 // RFC 4585, 6.2
	TypePayloadSpecificFeedback   PacketType = 206 // RFC 4585, 6.3
)

// Feedback message types (FMT) carried in the header count field.
const (
	FormatSLI  uint8 = 2  // slice loss indication
	FormatPLI  uint8 = 1  // picture loss indication
	FormatFIR  uint8 = 4  // full intra request
	FormatTLN  uint8 = 1  // transport-layer nack
	FormatRRR  uint8 = 5  // rapid resynchronization request
	FormatREMB uint8 = 15 // receiver estimated maximum bitrate
	FormatTCC  uint8 = 15 // transport-wide congestion control
)

func (p PacketType) String() string {
	switch p {
	case TypeSenderReport:
		return "SR"
	case TypeReceiverReport:
		return "RR"
	case TypeSourceDescription:
		return "SDES"
	case TypeGoodbye:
		return "BYE"
	case TypeApplicationDefined:
		return "APP"
	case TypeTransportSpecificFeedback:
		return "TSFB"
	case TypePayloadSpecificFeedback:
		return "PSFB"
	default:
		return "unknown packet type"
	}
}

const (
	rtpVersion   = 2
	headerLength = 4
	ssrcLength   = 4

	versionShift = 6
	versionMask  = 0x3
	paddingShift = 5
	paddingMask  = 0x1
	countMask    = 0x1f
	countMax     = (1 << 5) - 1
)

// A Header is the common header shared by all RTCP packets.
type Header struct {
	Version uint8
	Padding bool
	// Count holds the report/source count, or the feedback message type
	// for PT 205/206.
	Count uint8
	Type  PacketType
	// Length of this packet in 32-bit words minus one, including header
	// and padding.
	Length uint16
}

// Marshal encodes the header.
func (h Header) Marshal() ([]byte, error) {
	if h.Count > countMax {
		return nil, errInvalidHeader
	}
	raw := make([]byte, headerLength)
	raw[0] = rtpVersion<<versionShift | h.Count
	if h.Padding {
		raw[0] |= 1 << paddingShift
	}
	raw[1] = uint8(h.Type)
	binary.BigEndian.PutUint16(raw[2:], h.Length)
	return raw, nil
}

// Unmarshal decodes the header.
func (h *Header) Unmarshal(raw []byte) error {
	if len(raw) < headerLength {
		return errPacketTooShort
	}
	if raw[0]>>versionShift&versionMask != rtpVersion {
		return errBadVersion
	}
	h.Version = rtpVersion
	h.Padding = raw[0]>>paddingShift&paddingMask != 0
	h.Count = raw[0] & countMask
	h.Type = PacketType(raw[1])
	h.Length = binary.BigEndian.Uint16(raw[2:])
	return nil
}

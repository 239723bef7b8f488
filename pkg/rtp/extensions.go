package rtp

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// Header extension URIs this module negotiates through a=extmap.
const (
	// ExtensionURIMID is RFC 8843 BUNDLE demux.
	ExtensionURIMID = "urn:ietf:params:rtp-hdrext:sdes:mid"
	// ExtensionURIRID identifies a simulcast layer.
	ExtensionURIRID = "urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id"
	// ExtensionURIRepairedRID identifies the layer an RTX stream repairs.
	ExtensionURIRepairedRID = "urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id"
	// ExtensionURIAbsSendTime carries the 6.18 fixed-point send time.
	ExtensionURIAbsSendTime = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
	// ExtensionURITransportCC carries the transport-wide sequence number.
	ExtensionURITransportCC = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"
)

var errExtensionSize = errors.New("header extension payload has wrong size")

// TransportCCExtension is the transport-wide sequence number element
// consumed by the TWCC feedback generator.
type TransportCCExtension struct {
	TransportSequence uint16
}

// Marshal serializes the element.
func (e TransportCCExtension) Marshal() ([]byte, error) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, e.TransportSequence)
	return buf, nil
}

// Unmarshal parses the element.
func (e *TransportCCExtension) Unmarshal(raw []byte) error {
	if len(raw) < 2 {
		return errExtensionSize
	}
	e.TransportSequence = binary.BigEndian.Uint16(raw)
	return nil
}

// AbsSendTimeExtension is the 24-bit 6.18 fixed-point send timestamp.
type AbsSendTimeExtension struct {
	Timestamp uint64
}

// NewAbsSendTimeExtension converts a wall-clock send time.
func NewAbsSendTimeExtension(sendTime time.Time) *AbsSendTimeExtension {
	// 6.18 fixed point: seconds in the top 6 bits of a 24-bit field.
	unix := uint64(sendTime.UnixNano())
	seconds := unix / 1e9
	fraction := ((unix % 1e9) << 18) / 1e9
	return &AbsSendTimeExtension{Timestamp: (seconds&0x3f)<<18 | fraction}
}

// Marshal serializes the element.
func (e AbsSendTimeExtension) Marshal() ([]byte, error) {
	return []byte{
		byte(e.Timestamp >> 16),
		byte(e.Timestamp >> 8),
		byte(e.Timestamp),
	}, nil
}

// Unmarshal parses the element.
func (e *AbsSendTimeExtension) Unmarshal(raw []byte) error {
	if len(raw) < 3 {
		return errExtensionSize
	}
	e.Timestamp = uint64(raw[0])<<16 | uint64(raw[1])<<8 | uint64(raw[2])
	return nil
}

// Estimate reconstructs an absolute send time near the receive time,
// resolving the 64-second wrap of the 6-bit seconds field.
func (e AbsSendTimeExtension) Estimate(receive time.Time) time.Time {
	receiveNTP := toNtpTime(receive)
	ntp := receiveNTP&0xFFFFFFC000000000 | (e.Timestamp&0xFFFFFF)<<14
	if receiveNTP < ntp {
		// receiver clock behind sender: previous 64s window
		ntp -= 0x0000004000000000
	}
	return toTime(ntp)
}

func toNtpTime(t time.Time) uint64 {
	var s, f uint64
	u := uint64(t.UnixNano())
	s = u / 1e9
	s += 0x83AA7E80 // offset in seconds between unix epoch and ntp epoch
	f = u % 1e9
	f <<= 32
	f /= 1e9
	s <<= 32
	return s | f
}

func toTime(t uint64) time.Time {
	s := t >> 32
	f := t & 0xFFFFFFFF
	f *= 1e9
	f >>= 32
	s -= 0x83AA7E80
	u := s*1e9 + f
	return time.Unix(0, int64(u)) //nolint:gosec
}

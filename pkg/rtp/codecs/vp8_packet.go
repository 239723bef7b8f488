// Package codecs holds the payloaders and depacketizers for the codecs
// in the default media engine. They translate between codec frames and
// RTP payloads; all media transport stays codec-agnostic.
package codecs

import "github.com/pkg/errors"

// VP8Payloader payloads VP8 frames per RFC 7741 using the minimal
// one-byte payload descriptor.
type VP8Payloader struct{}

const vp8HeaderSize = 1

// Payload fragments a VP8 frame across one or more payloads.
func (*VP8Payloader) Payload(mtu uint16, payload []byte) [][]byte {
	maxFragment := int(mtu) - vp8HeaderSize
	if maxFragment <= 0 || len(payload) == 0 {
		return nil
	}

	var payloads [][]byte
	for first, remaining := true, payload; len(remaining) > 0; first = false {
		n := maxFragment
		if n > len(remaining) {
			n = len(remaining)
		}
		out := make([]byte, vp8HeaderSize+n)
		if first {
			out[0] = 0x10 // S bit, start of partition
		}
		copy(out[vp8HeaderSize:], remaining[:n])
		payloads = append(payloads, out)
		remaining = remaining[n:]
	}
	return payloads
}

// VP8Packet is the RFC 7741 payload descriptor.
type VP8Packet struct {
	// required header
	X   uint8
	N   uint8
	S   uint8
	PID uint8

	// extension fields
	I         uint8
	L         uint8
	T         uint8
	K         uint8
	PictureID uint16
	TL0PICIDX uint8
	TID       uint8
	KEYIDX    uint8

	Payload []byte
}

var errShortPacket = errors.New("packet is not large enough")

// Unmarshal strips the payload descriptor and returns the VP8 bitstream.
func (p *VP8Packet) Unmarshal(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errShortPacket
	}

	idx := 0
	p.X = payload[idx] >> 7 & 0x1
	p.N = payload[idx] >> 5 & 0x1
	p.S = payload[idx] >> 4 & 0x1
	p.PID = payload[idx] & 0x07
	idx++

	if p.X == 1 {
		if idx >= len(payload) {
			return nil, errShortPacket
		}
		p.I = payload[idx] >> 7 & 0x1
		p.L = payload[idx] >> 6 & 0x1
		p.T = payload[idx] >> 5 & 0x1
		p.K = payload[idx] >> 4 & 0x1
		idx++
	} else {
		p.I, p.L, p.T, p.K = 0, 0, 0, 0
	}

	if p.I == 1 {
		if idx >= len(payload) {
			return nil, errShortPacket
		}
		if payload[idx]&0x80 > 0 { // M bit, 15-bit PictureID
			if idx+1 >= len(payload) {
				return nil, errShortPacket
			}
			p.PictureID = uint16(payload[idx]&0x7F)<<8 | uint16(payload[idx+1])
			idx += 2
		} else {
			p.PictureID = uint16(payload[idx])
			idx++
		}
	}

	if p.L == 1 {
		if idx >= len(payload) {
			return nil, errShortPacket
		}
		p.TL0PICIDX = payload[idx]
		idx++
	}

	if p.T == 1 || p.K == 1 {
		if idx >= len(payload) {
			return nil, errShortPacket
		}
		if p.T == 1 {
			p.TID = payload[idx] >> 6
		}
		if p.K == 1 {
			p.KEYIDX = payload[idx] & 0x1F
		}
		idx++
	}

	if idx >= len(payload) {
		return nil, errShortPacket
	}
	p.Payload = payload[idx:]
	return p.Payload, nil
}

// IsPartitionHead reports whether the payload starts a VP8 partition.
func (*VP8Packet) IsPartitionHead(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	return payload[0]&0x10 != 0
}

// IsPartitionTail reports whether the packet ends a frame.
func (*VP8Packet) IsPartitionTail(marker bool, _ []byte) bool {
	return marker
}

// IsKeyFrame inspects the first bitstream byte: VP8 frames start with a
// 3-byte frame tag whose low bit is the inverse key-frame flag.
func (p *VP8Packet) IsKeyFrame() bool {
	return len(p.Payload) > 0 && p.S == 1 && p.PID == 0 && p.Payload[0]&0x01 == 0
}

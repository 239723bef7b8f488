package codecs

import "github.com/pkg/errors"

// OpusPayloader payloads Opus packets. Opus frames are never fragmented
// at the RTP layer (RFC 7587 Section 4.2).
type OpusPayloader struct{}

// Payload copies the frame into a single payload.
func (*OpusPayloader) Payload(_ uint16, payload []byte) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return [][]byte{out}
}

// OpusPacket is the RFC 7587 payload, which has no payload header.
type OpusPacket struct {
	Payload []byte
}

var errNilOpusPacket = errors.New("zero length opus packet")

// Unmarshal stores the payload.
func (p *OpusPacket) Unmarshal(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errNilOpusPacket
	}
	p.Payload = payload
	return payload, nil
}

// IsPartitionHead always reports true; every Opus packet is a complete
// frame.
func (*OpusPacket) IsPartitionHead(_ []byte) bool { return true }

// IsPartitionTail always reports true.
func (*OpusPacket) IsPartitionTail(_ bool, _ []byte) bool { return true }

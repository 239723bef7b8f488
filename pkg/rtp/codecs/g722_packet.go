package codecs

// G722Payloader payloads G.722 audio, splitting raw samples across the
// MTU.
type G722Payloader struct{}

// Payload fragments the sample buffer.
func (*G722Payloader) Payload(mtu uint16, payload []byte) [][]byte {
	if len(payload) == 0 || mtu == 0 {
		return nil
	}
	var out [][]byte
	for len(payload) > 0 {
		n := int(mtu)
		if n > len(payload) {
			n = len(payload)
		}
		o := make([]byte, n)
		copy(o, payload[:n])
		out = append(out, o)
		payload = payload[n:]
	}
	return out
}

// G722Packet is a raw G.722 payload.
type G722Packet struct {
	Payload []byte
}

// Unmarshal stores the payload.
func (p *G722Packet) Unmarshal(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errShortPacket
	}
	p.Payload = payload
	return payload, nil
}

// IsPartitionHead always reports true for audio.
func (*G722Packet) IsPartitionHead(_ []byte) bool { return true }

// IsPartitionTail always reports true for audio.
func (*G722Packet) IsPartitionTail(_ bool, _ []byte) bool { return true }

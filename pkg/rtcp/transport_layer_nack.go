package rtcp

import "encoding/binary"

// A NackPair covers a lost packet and a bitmask of the 16 packets
// following it (RFC 4585 Section 6.2.1).
type NackPair struct {
	PacketID    uint16
	LostPackets uint16
}

// PacketList expands the pair into the sequence numbers it names.
func (n NackPair) PacketList() []uint16 {
	out := []uint16{n.PacketID}
	for i := 0; i < 16; i++ {
		if n.LostPackets&(1<<uint(i)) != 0 {
			out = append(out, n.PacketID+uint16(i)+1) //nolint:gosec
		}
	}
	return out
}

// NackPairsFromSequenceNumbers packs a sorted list of lost sequence
// numbers into the minimal set of pairs.
func NackPairsFromSequenceNumbers(seqs []uint16) []NackPair {
	if len(seqs) == 0 {
		return nil
	}
	var out []NackPair
	pair := NackPair{PacketID: seqs[0]}
	for _, s := range seqs[1:] {
		delta := s - pair.PacketID
		if delta > 0 && delta <= 16 {
			pair.LostPackets |= 1 << (delta - 1)
			continue
		}
		out = append(out, pair)
		pair = NackPair{PacketID: s}
	}
	return append(out, pair)
}

const nackPairLength = 4

// A TransportLayerNack requests retransmission of the named packets.
type TransportLayerNack struct {
	SenderSSRC uint32
	MediaSSRC  uint32
	Nacks      []NackPair
}

func (p TransportLayerNack) bodyLen() int {
	return 2*ssrcLength + len(p.Nacks)*nackPairLength
}

// Header returns the header for the packet.
func (p TransportLayerNack) Header() Header {
	return feedbackHeader(FormatTLN, TypeTransportSpecificFeedback, p.bodyLen())
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (p TransportLayerNack) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}

// Marshal encodes the packet.
func (p TransportLayerNack) Marshal() ([]byte, error) {
	hdr, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, headerLength+p.bodyLen())
	copy(raw, hdr)
	putSSRC(raw[4:], p.SenderSSRC)
	putSSRC(raw[8:], p.MediaSSRC)
	for i, n := range p.Nacks {
		binary.BigEndian.PutUint16(raw[12+i*nackPairLength:], n.PacketID)
		binary.BigEndian.PutUint16(raw[14+i*nackPairLength:], n.LostPackets)
	}
	return raw, nil
}

// Unmarshal decodes the packet.
func (p *TransportLayerNack) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeTransportSpecificFeedback || h.Count != FormatTLN {
		return errWrongType
	}
	if len(raw) < headerLength+2*ssrcLength {
		return errPacketTooShort
	}

	p.SenderSSRC = binary.BigEndian.Uint32(raw[4:])
	p.MediaSSRC = binary.BigEndian.Uint32(raw[8:])

	p.Nacks = nil
	for i := headerLength + 2*ssrcLength; i+nackPairLength <= len(raw); i += nackPairLength {
		p.Nacks = append(p.Nacks, NackPair{
			PacketID:    binary.BigEndian.Uint16(raw[i:]),
			LostPackets: binary.BigEndian.Uint16(raw[i+2:]),
		})
	}
	return nil
}

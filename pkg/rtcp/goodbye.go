package rtcp

import "encoding/binary"

// A Goodbye indicates that one or more sources are no longer active.
type Goodbye struct {
	Sources []uint32
	Reason  string
}

// Header returns the header for the packet.
func (g Goodbye) Header() Header {
	return Header{
		Count:  uint8(len(g.Sources)), //nolint:gosec
		Type:   TypeGoodbye,
		Length: uint16(g.marshalSize()/4 - 1), //nolint:gosec
	}
}

func (g Goodbye) marshalSize() int {
	size := headerLength + len(g.Sources)*ssrcLength
	if g.Reason != "" {
		size += 1 + len(g.Reason)
		for size%4 != 0 {
			size++
		}
	}
	return size
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (g Goodbye) DestinationSSRC() []uint32 {
	return append([]uint32{}, g.Sources...)
}

// Marshal encodes the packet.
func (g Goodbye) Marshal() ([]byte, error) {
	if len(g.Sources) > countMax {
		return nil, errTooManyReports
	}
	if len(g.Reason) > sdesMaxOctetCount {
		return nil, errSDESTextTooLong
	}

	hdr, err := g.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, g.marshalSize())
	raw = append(raw, hdr...)

	for _, s := range g.Sources {
		var b [ssrcLength]byte
		binary.BigEndian.PutUint32(b[:], s)
		raw = append(raw, b[:]...)
	}
	if g.Reason != "" {
		raw = append(raw, uint8(len(g.Reason))) //nolint:gosec
		raw = append(raw, g.Reason...)
		for len(raw)%4 != 0 {
			raw = append(raw, 0)
		}
	}
	return raw, nil
}

// Unmarshal decodes the packet.
func (g *Goodbye) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeGoodbye {
		return errWrongType
	}
	if len(raw) < headerLength+int(h.Count)*ssrcLength {
		return errPacketTooShort
	}

	g.Sources = make([]uint32, h.Count)
	for i := 0; i < int(h.Count); i++ {
		g.Sources[i] = binary.BigEndian.Uint32(raw[headerLength+i*ssrcLength:])
	}

	g.Reason = ""
	if tail := raw[headerLength+int(h.Count)*ssrcLength:]; len(tail) > 0 {
		reasonLen := int(tail[0])
		if 1+reasonLen > len(tail) {
			return errPacketTooShort
		}
		g.Reason = string(tail[1 : 1+reasonLen])
	}
	return nil
}

package rtcp

import "encoding/binary"

// A FIREntry names one SSRC a full intra frame is requested from,
// with a command sequence number deduplicating retransmitted requests.
type FIREntry struct {
	SSRC           uint32
	SequenceNumber uint8
}

// A FullIntraRequest is the RFC 5104 Section 4.3.1 decoder refresh
// request; unlike PLI it demands a full keyframe unconditionally.
type FullIntraRequest struct {
	SenderSSRC uint32
	MediaSSRC  uint32
	FIR        []FIREntry
}

const firEntryLength = 8

func (p FullIntraRequest) bodyLen() int {
	return 2*ssrcLength + len(p.FIR)*firEntryLength
}

// Header returns the header for the packet.
func (p FullIntraRequest) Header() Header {
	return feedbackHeader(FormatFIR, TypePayloadSpecificFeedback, p.bodyLen())
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (p FullIntraRequest) DestinationSSRC() []uint32 {
	out := make([]uint32, 0, len(p.FIR))
	for _, e := range p.FIR {
		out = append(out, e.SSRC)
	}
	return out
}

// Marshal encodes the packet.
func (p FullIntraRequest) Marshal() ([]byte, error) {
	hdr, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, headerLength+p.bodyLen())
	copy(raw, hdr)
	putSSRC(raw[4:], p.SenderSSRC)
	putSSRC(raw[8:], p.MediaSSRC)
	for i, e := range p.FIR {
		off := 12 + i*firEntryLength
		putSSRC(raw[off:], e.SSRC)
		raw[off+4] = e.SequenceNumber
	}
	return raw, nil
}

// Unmarshal decodes the packet.
func (p *FullIntraRequest) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatFIR {
		return errWrongType
	}
	if len(raw) < headerLength+2*ssrcLength {
		return errPacketTooShort
	}

	p.SenderSSRC = binary.BigEndian.Uint32(raw[4:])
	p.MediaSSRC = binary.BigEndian.Uint32(raw[8:])

	p.FIR = nil
	for i := headerLength + 2*ssrcLength; i+firEntryLength <= len(raw); i += firEntryLength {
		p.FIR = append(p.FIR, FIREntry{
			SSRC:           binary.BigEndian.Uint32(raw[i:]),
			SequenceNumber: raw[i+4],
		})
	}
	return nil
}

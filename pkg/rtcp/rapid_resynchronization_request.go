package rtcp

import "encoding/binary"

// A RapidResynchronizationRequest asks the sender to resynchronize a
// stream after heavy loss (RFC 4585 Section 6.2.3).
type RapidResynchronizationRequest struct {
	SenderSSRC uint32
	MediaSSRC  uint32
}

const rrrBodyLength = 2 * ssrcLength

// Header returns the header for the packet.
func (p RapidResynchronizationRequest) Header() Header {
	return feedbackHeader(FormatRRR, TypeTransportSpecificFeedback, rrrBodyLength)
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (p RapidResynchronizationRequest) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}

// Marshal encodes the packet.
func (p RapidResynchronizationRequest) Marshal() ([]byte, error) {
	hdr, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, headerLength+rrrBodyLength)
	copy(raw, hdr)
	putSSRC(raw[4:], p.SenderSSRC)
	putSSRC(raw[8:], p.MediaSSRC)
	return raw, nil
}

// Unmarshal decodes the packet.
func (p *RapidResynchronizationRequest) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeTransportSpecificFeedback || h.Count != FormatRRR {
		return errWrongType
	}
	if len(raw) < headerLength+rrrBodyLength {
		return errPacketTooShort
	}
	p.SenderSSRC = binary.BigEndian.Uint32(raw[4:])
	p.MediaSSRC = binary.BigEndian.Uint32(raw[8:])
	return nil
}

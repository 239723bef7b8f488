package rtcp

import "encoding/binary"

// A PictureLossIndication asks the sender for a new keyframe after
// undecodable picture loss (RFC 4585 Section 6.3.1).
type PictureLossIndication struct {
	SenderSSRC uint32
	MediaSSRC  uint32
}

const pliBodyLength = 2 * ssrcLength

// Header returns the header for the packet.
func (p PictureLossIndication) Header() Header {
	return feedbackHeader(FormatPLI, TypePayloadSpecificFeedback, pliBodyLength)
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (p PictureLossIndication) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}

// Marshal encodes the packet.
func (p PictureLossIndication) Marshal() ([]byte, error) {
	hdr, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, headerLength+pliBodyLength)
	copy(raw, hdr)
	putSSRC(raw[4:], p.SenderSSRC)
	putSSRC(raw[8:], p.MediaSSRC)
	return raw, nil
}

// Unmarshal decodes the packet.
func (p *PictureLossIndication) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatPLI {
		return errWrongType
	}
	if len(raw) < headerLength+pliBodyLength {
		return errPacketTooShort
	}
	p.SenderSSRC = binary.BigEndian.Uint32(raw[4:])
	p.MediaSSRC = binary.BigEndian.Uint32(raw[8:])
	return nil
}

package rtcp

import (
	"encoding/binary"
	"math/bits"
)

// A ReceiverEstimatedMaximumBitrate (REMB, draft-alvestrand-rmcat-remb)
// carries the receiver's total estimated available bitrate across the
// listed SSRCs.
type ReceiverEstimatedMaximumBitrate struct {
	SenderSSRC uint32
	// Bitrate is the estimate in bits per second. The wire format is a
	// 6-bit exponent with an 18-bit mantissa; values round up to the
	// nearest representable bitrate.
	Bitrate uint64
	SSRCs   []uint32
}

var rembIdentifier = [4]byte{'R', 'E', 'M', 'B'}

func (p ReceiverEstimatedMaximumBitrate) bodyLen() int {
	// sender ssrc + media ssrc (always zero) + "REMB" + numssrc/exp/mantissa + ssrc list
	return 2*ssrcLength + 4 + 4 + len(p.SSRCs)*ssrcLength
}

// Header returns the header for the packet.
func (p ReceiverEstimatedMaximumBitrate) Header() Header {
	return feedbackHeader(FormatREMB, TypePayloadSpecificFeedback, p.bodyLen())
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (p ReceiverEstimatedMaximumBitrate) DestinationSSRC() []uint32 {
	return append([]uint32{}, p.SSRCs...)
}

// Marshal encodes the packet.
func (p ReceiverEstimatedMaximumBitrate) Marshal() ([]byte, error) {
	hdr, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, headerLength+p.bodyLen())
	copy(raw, hdr)
	putSSRC(raw[4:], p.SenderSSRC)
	// media ssrc is always zero for REMB
	copy(raw[12:16], rembIdentifier[:])

	exp, mantissa := encodeBitrate(p.Bitrate)
	raw[16] = uint8(len(p.SSRCs)) //nolint:gosec
	raw[17] = exp<<2 | uint8(mantissa>>16)
	raw[18] = uint8(mantissa >> 8)
	raw[19] = uint8(mantissa)

	for i, ssrc := range p.SSRCs {
		putSSRC(raw[20+i*ssrcLength:], ssrc)
	}
	return raw, nil
}

// encodeBitrate reduces a bitrate to the 6-bit exponent / 18-bit
// mantissa pair, rounding up so the estimate never understates.
func encodeBitrate(b uint64) (exp uint8, mantissa uint32) {
	if b == 0 {
		return 0, 0
	}
	width := bits.Len64(b)
	if width <= 18 {
		return 0, uint32(b) //nolint:gosec
	}
	exp = uint8(width - 18) //nolint:gosec
	mantissa = uint32(b >> exp)
	if b > uint64(mantissa)<<exp { // round up
		mantissa++
		if mantissa == 1<<18 {
			mantissa >>= 1
			exp++
		}
	}
	return exp, mantissa
}

// Unmarshal decodes the packet.
func (p *ReceiverEstimatedMaximumBitrate) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatREMB {
		return errWrongType
	}
	if len(raw) < headerLength+2*ssrcLength+8 {
		return errPacketTooShort
	}

	p.SenderSSRC = binary.BigEndian.Uint32(raw[4:])
	if [4]byte{raw[12], raw[13], raw[14], raw[15]} != rembIdentifier {
		return errUniqueIdentifier
	}

	numSSRC := int(raw[16])
	exp := raw[17] >> 2
	mantissa := uint32(raw[17]&0x3)<<16 | uint32(raw[18])<<8 | uint32(raw[19])
	p.Bitrate = uint64(mantissa) << exp

	if len(raw) < headerLength+2*ssrcLength+8+numSSRC*ssrcLength {
		return errPacketTooShort
	}
	p.SSRCs = make([]uint32, numSSRC)
	for i := range p.SSRCs {
		p.SSRCs[i] = binary.BigEndian.Uint32(raw[20+i*ssrcLength:])
	}
	return nil
}

package rtcp

import "encoding/binary"

// Packet is implemented by all RTCP message types.
type Packet interface {
	// Header returns the completed header for the packet as it would be
	// marshaled.
	Header() Header

	// DestinationSSRC returns the SSRC values this packet refers to.
	DestinationSSRC() []uint32

	Marshal() ([]byte, error)
	Unmarshal(raw []byte) error
}

// Unmarshal decodes a buffer that may hold one or more concatenated
// RTCP packets, as received in a compound datagram.
func Unmarshal(raw []byte) ([]Packet, error) {
	var packets []Packet
	for len(raw) != 0 {
		p, processed, err := unmarshalOne(raw)
		if err != nil {
			return nil, err
		}
		packets = append(packets, p)
		raw = raw[processed:]
	}
	if len(packets) == 0 {
		return nil, errEmptyCompound
	}
	return packets, nil
}

// Marshal concatenates the packets into a single compound buffer.
func Marshal(packets []Packet) ([]byte, error) {
	var out []byte
	for _, p := range packets {
		raw, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return out, nil
}

func unmarshalOne(raw []byte) (Packet, int, error) {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return nil, 0, err
	}

	length := (int(h.Length) + 1) * 4
	if length > len(raw) {
		return nil, 0, errPacketTooShort
	}
	body := raw[:length]

	var p Packet
	switch h.Type {
	case TypeSenderReport:
		p = new(SenderReport)
	case TypeReceiverReport:
		p = new(ReceiverReport)
	case TypeSourceDescription:
		p = new(SourceDescription)
	case TypeGoodbye:
		p = new(Goodbye)
	case TypeTransportSpecificFeedback:
		switch h.Count {
		case FormatTLN:
			p = new(TransportLayerNack)
		case FormatRRR:
			p = new(RapidResynchronizationRequest)
		case FormatTCC:
			p = new(TransportLayerCC)
		default:
			p = new(RawPacket)
		}
	case TypePayloadSpecificFeedback:
		switch h.Count {
		case FormatPLI:
			p = new(PictureLossIndication)
		case FormatSLI:
			p = new(SliceLossIndication)
		case FormatFIR:
			p = new(FullIntraRequest)
		case FormatREMB:
			p = new(ReceiverEstimatedMaximumBitrate)
		default:
			p = new(RawPacket)
		}
	default:
		p = new(RawPacket)
	}

	if err := p.Unmarshal(body); err != nil {
		return nil, 0, err
	}
	return p, length, nil
}

// feedbackHeader builds the header of a feedback packet from its body
// length.
func feedbackHeader(fmt uint8, t PacketType, bodyLen int) Header {
	return Header{
		Count:  fmt,
		Type:   t,
		Length: uint16((bodyLen+headerLength)/4 - 1), //nolint:gosec
	}
}

func putSSRC(buf []byte, ssrc uint32) {
	binary.BigEndian.PutUint32(buf, ssrc)
}

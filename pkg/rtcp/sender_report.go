package rtcp

import "encoding/binary"

const senderReportBodyLength = 24

// A SenderReport is sent periodically for every active sending SSRC,
// carrying the NTP/RTP timestamp mapping receivers use for lip sync and
// round-trip estimation.
type SenderReport struct {
	SSRC uint32
	// NTPTime is the wallclock time when this report was sent, in
	// 64-bit fixed point (Q32.32) NTP format.
	NTPTime uint64
	// RTPTime corresponds to the same instant as NTPTime, expressed in
	// the units of the media clock.
	RTPTime uint32
	// Sender's packet and octet counts since the start of transmission.
	PacketCount uint32
	OctetCount  uint32
	Reports     []ReceptionReport
	// ProfileExtensions are application-defined trailing bytes.
	ProfileExtensions []byte
}

// Header returns the header for the packet.
func (r SenderReport) Header() Header {
	return Header{
		Count:  uint8(len(r.Reports)), //nolint:gosec
		Type:   TypeSenderReport,
		Length: uint16((r.marshalSize() / 4) - 1), //nolint:gosec
	}
}

func (r SenderReport) marshalSize() int {
	return headerLength + ssrcLength + senderReportBodyLength +
		len(r.Reports)*receptionReportLength + len(r.ProfileExtensions)
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (r SenderReport) DestinationSSRC() []uint32 {
	out := make([]uint32, 0, len(r.Reports)+1)
	for _, rr := range r.Reports {
		out = append(out, rr.SSRC)
	}
	return append(out, r.SSRC)
}

// Marshal encodes the packet.
func (r SenderReport) Marshal() ([]byte, error) {
	if len(r.Reports) > countMax {
		return nil, errTooManyReports
	}

	hdr, err := r.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, r.marshalSize())
	raw = append(raw, hdr...)

	var body [ssrcLength + senderReportBodyLength]byte
	binary.BigEndian.PutUint32(body[0:], r.SSRC)
	binary.BigEndian.PutUint64(body[4:], r.NTPTime)
	binary.BigEndian.PutUint32(body[12:], r.RTPTime)
	binary.BigEndian.PutUint32(body[16:], r.PacketCount)
	binary.BigEndian.PutUint32(body[20:], r.OctetCount)
	raw = append(raw, body[:]...)

	for _, rr := range r.Reports {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		raw = append(raw, b...)
	}
	return append(raw, r.ProfileExtensions...), nil
}

// Unmarshal decodes the packet.
func (r *SenderReport) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeSenderReport {
		return errWrongType
	}
	if len(raw) < headerLength+ssrcLength+senderReportBodyLength {
		return errPacketTooShort
	}

	body := raw[headerLength:]
	r.SSRC = binary.BigEndian.Uint32(body[0:])
	r.NTPTime = binary.BigEndian.Uint64(body[4:])
	r.RTPTime = binary.BigEndian.Uint32(body[12:])
	r.PacketCount = binary.BigEndian.Uint32(body[16:])
	r.OctetCount = binary.BigEndian.Uint32(body[20:])

	offset := ssrcLength + senderReportBodyLength
	r.Reports = make([]ReceptionReport, 0, h.Count)
	for i := 0; i < int(h.Count); i++ {
		if offset+receptionReportLength > len(body) {
			return errPacketTooShort
		}
		var rr ReceptionReport
		if err := rr.Unmarshal(body[offset:]); err != nil {
			return err
		}
		r.Reports = append(r.Reports, rr)
		offset += receptionReportLength
	}
	if offset < len(body) {
		r.ProfileExtensions = body[offset:]
	} else {
		r.ProfileExtensions = nil
	}
	return nil
}

package rtcp

import "encoding/binary"

// A ReceiverReport aggregates reception statistics for streams this
// endpoint receives but does not send on.
type ReceiverReport struct {
	SSRC              uint32
	Reports           []ReceptionReport
	ProfileExtensions []byte
}

// Header returns the header for the packet.
func (r ReceiverReport) Header() Header {
	return Header{
		Count:  uint8(len(r.Reports)), //nolint:gosec
		Type:   TypeReceiverReport,
		Length: uint16((r.marshalSize() / 4) - 1), //nolint:gosec
	}
}

func (r ReceiverReport) marshalSize() int {
	return headerLength + ssrcLength +
		len(r.Reports)*receptionReportLength + len(r.ProfileExtensions)
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (r ReceiverReport) DestinationSSRC() []uint32 {
	out := make([]uint32, 0, len(r.Reports))
	for _, rr := range r.Reports {
		out = append(out, rr.SSRC)
	}
	return out
}

// Marshal encodes the packet.
func (r ReceiverReport) Marshal() ([]byte, error) {
	if len(r.Reports) > countMax {
		return nil, errTooManyReports
	}

	hdr, err := r.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, r.marshalSize())
	raw = append(raw, hdr...)

	var ssrc [ssrcLength]byte
	binary.BigEndian.PutUint32(ssrc[:], r.SSRC)
	raw = append(raw, ssrc[:]...)

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
func (r *ReceiverReport) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeReceiverReport {
		return errWrongType
	}
	if len(raw) < headerLength+ssrcLength {
		return errPacketTooShort
	}

	r.SSRC = binary.BigEndian.Uint32(raw[headerLength:])

	body := raw[headerLength+ssrcLength:]
	offset := 0
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

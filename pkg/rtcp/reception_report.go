package rtcp

import "encoding/binary"

const receptionReportLength = 24

// A ReceptionReport block conveys statistics on the reception of RTP
// packets from a single synchronization source.
type ReceptionReport struct {
	// SSRC of the source this report is for.
	SSRC uint32
	// The fraction of RTP data packets lost since the previous report,
	// expressed as a fixed point number with the binary point at the
	// left edge of the field.
	FractionLost uint8
	// The total number of RTP data packets lost since the beginning of
	// reception. The field is 24 bits on the wire; Marshal rejects values
	// of 1<<24 or more.
	TotalLost uint32
	// The low 16 bits contain the highest sequence number received, the
	// high 16 bits the count of sequence number cycles.
	LastSequenceNumber uint32
	// An estimate of the statistical variance of the RTP data packet
	// interarrival time, in timestamp units.
	Jitter uint32
	// The middle 32 bits of the NTP timestamp in the most recent SR.
	LastSenderReport uint32
	// The delay, in 1/65536 seconds, between receiving that SR and
	// sending this report.
	Delay uint32
}

// Marshal encodes the block.
func (r ReceptionReport) Marshal() ([]byte, error) {
	if r.TotalLost >= 1<<24 {
		return nil, errInvalidTotalLost
	}
	raw := make([]byte, receptionReportLength)
	binary.BigEndian.PutUint32(raw[0:], r.SSRC)
	raw[4] = r.FractionLost
	raw[5] = byte(r.TotalLost >> 16)
	raw[6] = byte(r.TotalLost >> 8)
	raw[7] = byte(r.TotalLost)
	binary.BigEndian.PutUint32(raw[8:], r.LastSequenceNumber)
	binary.BigEndian.PutUint32(raw[12:], r.Jitter)
	binary.BigEndian.PutUint32(raw[16:], r.LastSenderReport)
	binary.BigEndian.PutUint32(raw[20:], r.Delay)
	return raw, nil
}

// Unmarshal decodes the block.
func (r *ReceptionReport) Unmarshal(raw []byte) error {
	if len(raw) < receptionReportLength {
		return errPacketTooShort
	}
	r.SSRC = binary.BigEndian.Uint32(raw[0:])
	r.FractionLost = raw[4]
	r.TotalLost = uint32(raw[5])<<16 | uint32(raw[6])<<8 | uint32(raw[7])
	r.LastSequenceNumber = binary.BigEndian.Uint32(raw[8:])
	r.Jitter = binary.BigEndian.Uint32(raw[12:])
	r.LastSenderReport = binary.BigEndian.Uint32(raw[16:])
	r.Delay = binary.BigEndian.Uint32(raw[20:])
	return nil
}

package codecs

import "encoding/binary"

// H264Payloader payloads H.264 Annex B streams as single NAL units and
// FU-A fragments (RFC 6184).
type H264Payloader struct{}

const (
	naluTypeBitmask   = 0x1f
	naluRefIdcBitmask = 0x60
	fuaHeaderSize     = 2

	naluTypeSTAPA = 24
	naluTypeFUA   = 28
	naluTypeSPS   = 7
	naluTypePPS   = 8
	naluTypeIDR   = 5
	naluTypeSEI   = 6
)

func emitNALU(nalu []byte, mtu uint16, out *[][]byte) {
	if len(nalu) == 0 {
		return
	}
	if len(nalu) <= int(mtu) {
		o := make([]byte, len(nalu))
		copy(o, nalu)
		*out = append(*out, o)
		return
	}

	// FU-A fragmentation
	maxFragment := int(mtu) - fuaHeaderSize
	naluIdc := nalu[0] & naluRefIdcBitmask
	naluType := nalu[0] & naluTypeBitmask
	nalu = nalu[1:]

	for start := true; len(nalu) > 0; start = false {
		n := maxFragment
		if n > len(nalu) {
			n = len(nalu)
		}
		o := make([]byte, fuaHeaderSize+n)
		o[0] = naluIdc | naluTypeFUA
		o[1] = naluType
		if start {
			o[1] |= 0x80
		}
		if n == len(nalu) {
			o[1] |= 0x40
		}
		copy(o[fuaHeaderSize:], nalu[:n])
		*out = append(*out, o)
		nalu = nalu[n:]
	}
}

func eachNALU(stream []byte, f func([]byte)) {
	// split on 3- and 4-byte Annex B start codes
	start := -1
	zeroes := 0
	for i, b := range stream {
		switch {
		case b == 0:
			zeroes++
		case b == 1 && zeroes >= 2:
			if start >= 0 {
				f(stream[start : i-zeroes])
			}
			start = i + 1
			zeroes = 0
		default:
			zeroes = 0
		}
	}
	if start >= 0 && start < len(stream) {
		f(stream[start:])
	} else if start < 0 && len(stream) > 0 {
		f(stream) // no start codes; treat as a single NAL unit
	}
}

// Payload fragments an Annex B access unit.
func (*H264Payloader) Payload(mtu uint16, payload []byte) [][]byte {
	var out [][]byte
	if len(payload) == 0 || mtu == 0 {
		return out
	}
	eachNALU(payload, func(nalu []byte) {
		emitNALU(nalu, mtu, &out)
	})
	return out
}

// H264Packet depacketizes RFC 6184 payloads back to Annex B.
type H264Packet struct {
	fuaBuffer []byte
}

var annexbPrefix = []byte{0x00, 0x00, 0x00, 0x01}

// Unmarshal converts a payload to Annex B. FU-A fragments accumulate
// until the end bit; intermediate fragments return an empty slice.
func (p *H264Packet) Unmarshal(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errShortPacket
	}

	switch payload[0] & naluTypeBitmask {
	case naluTypeSTAPA:
		var out []byte
		for buf := payload[1:]; len(buf) > 2; {
			size := int(binary.BigEndian.Uint16(buf))
			buf = buf[2:]
			if size > len(buf) {
				return nil, errShortPacket
			}
			out = append(out, annexbPrefix...)
			out = append(out, buf[:size]...)
			buf = buf[size:]
		}
		return out, nil

	case naluTypeFUA:
		if len(payload) < fuaHeaderSize {
			return nil, errShortPacket
		}
		if payload[1]&0x80 != 0 { // start
			naluRefIdc := payload[0] & naluRefIdcBitmask
			fragmentedNaluType := payload[1] & naluTypeBitmask
			p.fuaBuffer = append([]byte{}, annexbPrefix...)
			p.fuaBuffer = append(p.fuaBuffer, naluRefIdc|fragmentedNaluType)
		}
		p.fuaBuffer = append(p.fuaBuffer, payload[fuaHeaderSize:]...)
		if payload[1]&0x40 != 0 { // end
			out := p.fuaBuffer
			p.fuaBuffer = nil
			return out, nil
		}
		return []byte{}, nil

	default:
		out := make([]byte, 0, len(annexbPrefix)+len(payload))
		out = append(out, annexbPrefix...)
		return append(out, payload...), nil
	}
}

// IsPartitionHead reports whether the payload starts an access unit.
func (*H264Packet) IsPartitionHead(payload []byte) bool {
	if len(payload) < 2 {
		return false
	}
	if payload[0]&naluTypeBitmask == naluTypeFUA {
		return payload[1]&0x80 != 0
	}
	return true
}

// IsPartitionTail reports whether the packet ends an access unit.
func (*H264Packet) IsPartitionTail(marker bool, _ []byte) bool {
	return marker
}

package sctp

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

const (
	packetHeaderSize = 12

	// data channels always use port 5000 on both sides; the DTLS
	// association is the real demux
	defaultPort = 5000
)

var (
	errPacketTooShort = errors.New("sctp: packet too short")
	errChecksum       = errors.New("sctp: checksum mismatch")

	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

// packet is one SCTP packet: the common header plus bundled chunks.
type packet struct {
	sourcePort      uint16
	destinationPort uint16
	verificationTag uint32
	chunks          []chunk
}

type rawChunk struct {
	typ   chunkType
	flags byte
	value []byte
}

// unmarshalPacket validates the header and checksum and returns the
// raw chunks for dispatch.
func unmarshalPacket(raw []byte) (*packet, []rawChunk, error) {
	if len(raw) < packetHeaderSize {
		return nil, nil, errPacketTooShort
	}

	p := &packet{
		sourcePort:      binary.BigEndian.Uint16(raw[0:]),
		destinationPort: binary.BigEndian.Uint16(raw[2:]),
		verificationTag: binary.BigEndian.Uint32(raw[4:]),
	}

	// checksum field is little-endian per RFC 4960 Appendix B
	their := binary.LittleEndian.Uint32(raw[8:])
	scratch := make([]byte, len(raw))
	copy(scratch, raw)
	binary.LittleEndian.PutUint32(scratch[8:], 0)
	if their != crc32.Checksum(scratch, castagnoli) {
		return nil, nil, errChecksum
	}

	var chunks []rawChunk
	for off := packetHeaderSize; off < len(raw); {
		if off+chunkHeaderSize > len(raw) {
			return nil, nil, errChunkTooShort
		}
		length := int(binary.BigEndian.Uint16(raw[off+2:]))
		if length < chunkHeaderSize || off+length > len(raw) {
			return nil, nil, errChunkFormat
		}
		chunks = append(chunks, rawChunk{
			typ:   chunkType(raw[off]),
			flags: raw[off+1],
			value: raw[off+chunkHeaderSize : off+length],
		})
		off += paddedLen(length)
	}
	return p, chunks, nil
}

// marshal serializes the packet with its CRC32c checksum.
func (p *packet) marshal() ([]byte, error) {
	out := make([]byte, packetHeaderSize)
	binary.BigEndian.PutUint16(out[0:], p.sourcePort)
	binary.BigEndian.PutUint16(out[2:], p.destinationPort)
	binary.BigEndian.PutUint32(out[4:], p.verificationTag)

	for _, c := range p.chunks {
		out = append(out, c.marshal()...)
	}

	// checksum field is little-endian per RFC 4960 Appendix B
	binary.LittleEndian.PutUint32(out[8:], 0)
	binary.LittleEndian.PutUint32(out[8:], crc32.Checksum(out, castagnoli))
	return out, nil
}

package rtcp

import "encoding/binary"

// SDESType is an item type within a source description chunk.
type SDESType uint8

// SDES item types from RFC 3550 Section 6.5.
const (
	SDESEnd      SDESType = 0
	SDESCNAME    SDESType = 1
	SDESName     SDESType = 2
	SDESEmail    SDESType = 3
	SDESPhone    SDESType = 4
	SDESLocation SDESType = 5
	SDESTool     SDESType = 6
	SDESNote     SDESType = 7
	SDESPrivate  SDESType = 8
)

const sdesMaxOctetCount = 255

// A SourceDescriptionChunk binds an SSRC to zero or more items.
type SourceDescriptionChunk struct {
	Source uint32
	Items  []SourceDescriptionItem
}

// A SourceDescriptionItem is one SDES item.
type SourceDescriptionItem struct {
	Type SDESType
	Text string
}

// A SourceDescription associates SSRCs with metadata; every compound
// packet this module emits carries one with a CNAME item.
type SourceDescription struct {
	Chunks []SourceDescriptionChunk
}

func (c SourceDescriptionChunk) marshalSize() int {
	size := ssrcLength
	for _, it := range c.Items {
		size += 2 + len(it.Text)
	}
	size++ // end octet
	for size%4 != 0 {
		size++
	}
	return size
}

// Header returns the header for the packet.
func (s SourceDescription) Header() Header {
	return Header{
		Count:  uint8(len(s.Chunks)), //nolint:gosec
		Type:   TypeSourceDescription,
		Length: uint16(s.marshalSize()/4 - 1), //nolint:gosec
	}
}

func (s SourceDescription) marshalSize() int {
	size := headerLength
	for _, c := range s.Chunks {
		size += c.marshalSize()
	}
	return size
}

// DestinationSSRC returns the SSRCs this packet refers to.
func (s SourceDescription) DestinationSSRC() []uint32 {
	out := make([]uint32, len(s.Chunks))
	for i, c := range s.Chunks {
		out[i] = c.Source
	}
	return out
}

// Marshal encodes the packet.
func (s SourceDescription) Marshal() ([]byte, error) {
	if len(s.Chunks) > countMax {
		return nil, errTooManyChunks
	}

	hdr, err := s.Header().Marshal()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, s.marshalSize())
	raw = append(raw, hdr...)

	for _, c := range s.Chunks {
		var ssrc [ssrcLength]byte
		binary.BigEndian.PutUint32(ssrc[:], c.Source)
		raw = append(raw, ssrc[:]...)
		for _, it := range c.Items {
			if len(it.Text) > sdesMaxOctetCount {
				return nil, errSDESTextTooLong
			}
			raw = append(raw, uint8(it.Type), uint8(len(it.Text))) //nolint:gosec
			raw = append(raw, it.Text...)
		}
		raw = append(raw, uint8(SDESEnd))
		for len(raw)%4 != 0 {
			raw = append(raw, 0)
		}
	}
	return raw, nil
}

// Unmarshal decodes the packet.
func (s *SourceDescription) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeSourceDescription {
		return errWrongType
	}

	s.Chunks = nil
	i := headerLength
	for c := 0; c < int(h.Count); c++ {
		if i+ssrcLength > len(raw) {
			return errPacketTooShort
		}
		chunk := SourceDescriptionChunk{Source: binary.BigEndian.Uint32(raw[i:])}
		i += ssrcLength

		for {
			if i >= len(raw) {
				return errPacketTooShort
			}
			itemType := SDESType(raw[i])
			i++
			if itemType == SDESEnd {
				// chunks end on a 32-bit boundary; headerLength keeps
				// packet offsets and chunk offsets congruent
				for i%4 != 0 {
					if i >= len(raw) {
						return errPacketTooShort
					}
					i++
				}
				break
			}
			if i >= len(raw) {
				return errPacketTooShort
			}
			textLen := int(raw[i])
			i++
			if i+textLen > len(raw) {
				return errPacketTooShort
			}
			chunk.Items = append(chunk.Items, SourceDescriptionItem{
				Type: itemType,
				Text: string(raw[i : i+textLen]),
			})
			i += textLen
		}
		s.Chunks = append(s.Chunks, chunk)
	}
	return nil
}

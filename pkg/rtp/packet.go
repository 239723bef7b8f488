// Package rtp provides RTP packet parsing and serialization, including
// the one-byte and two-byte header-extension forms negotiated through
// a=extmap.
package rtp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Extension is a single header extension element. The ID is the value
// negotiated in a=extmap, not the wire encoding.
type Extension struct {
	ID      uint8
	Payload []byte
}

// Header is the RTP fixed header plus CSRC list and header extensions
// (RFC 3550 Section 5.1, RFC 8285).
type Header struct {
	Version          uint8
	Padding          bool
	Extension        bool
	Marker           bool
	PayloadType      uint8
	SequenceNumber   uint16
	Timestamp        uint32
	SSRC             uint32
	CSRC             []uint32
	ExtensionProfile uint16
	Extensions       []Extension
}

// Packet is a parsed RTP packet.
type Packet struct {
	Header
	Payload     []byte
	PaddingSize byte
}

const (
	headerLength = 12
	csrcLength   = 4

	// ExtensionProfileOneByte and ExtensionProfileTwoByte are the RFC
	// 8285 extension profiles.
	ExtensionProfileOneByte = 0xBEDE
	ExtensionProfileTwoByte = 0x1000

	extensionIDReserved = 0xF
)

var (
	errHeaderSizeInsufficient       = errors.New("RTP header size insufficient")
	errHeaderSizeInsufficientForExt = errors.New("RTP header size insufficient for extension")
	errHeaderExtensionNotEnabled    = errors.New("extension bit must be set before adding extensions")
	errHeaderExtensionNotFound      = errors.New("extension not found")
	errOneByteHeaderIDRange         = errors.New("one-byte header extension IDs must be 1-14")
	errOneByteHeaderSize            = errors.New("one-byte header extensions are limited to 16 bytes")
	errTwoByteHeaderIDRange         = errors.New("two-byte header extension IDs must be 1-255")
	errTwoByteHeaderSize            = errors.New("two-byte header extensions are limited to 255 bytes")
	errRFC3550HeaderIDRange         = errors.New("header extension ID must be 0 for non-RFC 8285 extensions")
	errInvalidPadding               = errors.New("invalid RTP padding")
)

func (p Packet) String() string {
	out := "RTP PACKET:\n"
	out += fmt.Sprintf("\tVersion: %v\n", p.Version)
	out += fmt.Sprintf("\tMarker: %v\n", p.Marker)
	out += fmt.Sprintf("\tPayload Type: %d\n", p.PayloadType)
	out += fmt.Sprintf("\tSequence Number: %d\n", p.SequenceNumber)
	out += fmt.Sprintf("\tTimestamp: %d\n", p.Timestamp)
	out += fmt.Sprintf("\tSSRC: %d (%x)\n", p.SSRC, p.SSRC)
	out += fmt.Sprintf("\tPayload Length: %d\n", len(p.Payload))
	return out
}

// Unmarshal parses buf into the header and returns the number of bytes
// consumed.
func (h *Header) Unmarshal(buf []byte) (int, error) { //nolint:gocognit
	if len(buf) < headerLength {
		return 0, errors.Wrapf(errHeaderSizeInsufficient, "%d < %d", len(buf), headerLength)
	}

	h.Version = buf[0] >> 6 & 0x3
	h.Padding = buf[0]>>5&0x1 > 0
	h.Extension = buf[0]>>4&0x1 > 0
	cc := int(buf[0] & 0xF)

	h.Marker = buf[1]>>7&0x1 > 0
	h.PayloadType = buf[1] & 0x7F

	h.SequenceNumber = binary.BigEndian.Uint16(buf[2:4])
	h.Timestamp = binary.BigEndian.Uint32(buf[4:8])
	h.SSRC = binary.BigEndian.Uint32(buf[8:12])

	n := headerLength
	if len(buf) < n+cc*csrcLength {
		return n, errors.Wrap(errHeaderSizeInsufficient, "CSRC list truncated")
	}
	h.CSRC = make([]uint32, cc)
	for i := range h.CSRC {
		h.CSRC[i] = binary.BigEndian.Uint32(buf[n:])
		n += csrcLength
	}

	h.Extensions = nil
	h.ExtensionProfile = 0
	if !h.Extension {
		return n, nil
	}

	if len(buf) < n+4 {
		return n, errors.Wrap(errHeaderSizeInsufficientForExt, "profile/length truncated")
	}
	h.ExtensionProfile = binary.BigEndian.Uint16(buf[n:])
	extLen := int(binary.BigEndian.Uint16(buf[n+2:])) * 4
	n += 4
	if len(buf) < n+extLen {
		return n, errors.Wrap(errHeaderSizeInsufficientForExt, "extension data truncated")
	}
	ext := buf[n : n+extLen]
	n += extLen

	switch h.ExtensionProfile {
	case ExtensionProfileOneByte:
		for i := 0; i < len(ext); {
			if ext[i] == 0x00 { // padding
				i++
				continue
			}
			id := ext[i] >> 4
			l := int(ext[i]&0xF) + 1
			i++
			if id == extensionIDReserved {
				break
			}
			if i+l > len(ext) {
				return n, errors.Wrap(errHeaderSizeInsufficientForExt, "one-byte element truncated")
			}
			h.Extensions = append(h.Extensions, Extension{ID: id, Payload: ext[i : i+l]})
			i += l
		}
	case ExtensionProfileTwoByte:
		for i := 0; i < len(ext); {
			if ext[i] == 0x00 { // padding
				i++
				continue
			}
			id := ext[i]
			i++
			if i >= len(ext) {
				return n, errors.Wrap(errHeaderSizeInsufficientForExt, "two-byte element truncated")
			}
			l := int(ext[i])
			i++
			if i+l > len(ext) {
				return n, errors.Wrap(errHeaderSizeInsufficientForExt, "two-byte element truncated")
			}
			h.Extensions = append(h.Extensions, Extension{ID: id, Payload: ext[i : i+l]})
			i += l
		}
	default: // RFC 3550 Section 5.3.1 opaque extension
		h.Extensions = append(h.Extensions, Extension{ID: 0, Payload: ext})
	}
	return n, nil
}

// Unmarshal parses buf into the packet. The payload aliases buf.
func (p *Packet) Unmarshal(buf []byte) error {
	n, err := p.Header.Unmarshal(buf)
	if err != nil {
		return err
	}

	end := len(buf)
	if p.Header.Padding {
		if end <= n {
			return errInvalidPadding
		}
		p.PaddingSize = buf[end-1]
		if p.PaddingSize == 0 || end-int(p.PaddingSize) < n {
			return errInvalidPadding
		}
		end -= int(p.PaddingSize)
	} else {
		p.PaddingSize = 0
	}
	p.Payload = buf[n:end]
	return nil
}

// MarshalSize returns the serialized size of the header.
func (h Header) MarshalSize() int {
	size := headerLength + len(h.CSRC)*csrcLength
	if h.Extension {
		size += 4 + h.extensionPayloadLen()
	}
	return size
}

func (h Header) extensionPayloadLen() int {
	raw := 0
	switch h.ExtensionProfile {
	case ExtensionProfileOneByte:
		for _, e := range h.Extensions {
			raw += 1 + len(e.Payload)
		}
	case ExtensionProfileTwoByte:
		for _, e := range h.Extensions {
			raw += 2 + len(e.Payload)
		}
	default:
		for _, e := range h.Extensions {
			raw += len(e.Payload)
		}
	}
	if raw%4 != 0 {
		raw += 4 - raw%4
	}
	return raw
}

// MarshalTo serializes the header into buf.
func (h Header) MarshalTo(buf []byte) (int, error) {
	size := h.MarshalSize()
	if size > len(buf) {
		return 0, io.ErrShortBuffer
	}

	buf[0] = h.Version<<6 | uint8(len(h.CSRC))
	if h.Padding {
		buf[0] |= 1 << 5
	}
	if h.Extension {
		buf[0] |= 1 << 4
	}
	buf[1] = h.PayloadType
	if h.Marker {
		buf[1] |= 1 << 7
	}
	binary.BigEndian.PutUint16(buf[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], h.SSRC)

	n := headerLength
	for _, csrc := range h.CSRC {
		binary.BigEndian.PutUint32(buf[n:], csrc)
		n += csrcLength
	}

	if !h.Extension {
		return n, nil
	}

	binary.BigEndian.PutUint16(buf[n:], h.ExtensionProfile)
	extLen := h.extensionPayloadLen()
	binary.BigEndian.PutUint16(buf[n+2:], uint16(extLen/4)) //nolint:gosec
	n += 4

	start := n
	switch h.ExtensionProfile {
	case ExtensionProfileOneByte:
		for _, e := range h.Extensions {
			buf[n] = e.ID<<4 | uint8(len(e.Payload)-1) //nolint:gosec
			n++
			n += copy(buf[n:], e.Payload)
		}
	case ExtensionProfileTwoByte:
		for _, e := range h.Extensions {
			buf[n] = e.ID
			buf[n+1] = uint8(len(e.Payload)) //nolint:gosec
			n += 2
			n += copy(buf[n:], e.Payload)
		}
	default:
		for _, e := range h.Extensions {
			n += copy(buf[n:], e.Payload)
		}
	}
	for n-start < extLen {
		buf[n] = 0
		n++
	}
	return n, nil
}

// Marshal serializes the header.
func (h Header) Marshal() ([]byte, error) {
	buf := make([]byte, h.MarshalSize())
	n, err := h.MarshalTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// SetExtension stores payload under id, enabling the extension bit and
// defaulting to the one-byte profile when none is set yet.
func (h *Header) SetExtension(id uint8, payload []byte) error {
	if !h.Extension {
		h.Extension = true
		if h.ExtensionProfile == 0 {
			h.ExtensionProfile = ExtensionProfileOneByte
		}
	}
	switch h.ExtensionProfile {
	case ExtensionProfileOneByte:
		if id < 1 || id > 14 {
			return errOneByteHeaderIDRange
		}
		if len(payload) > 16 {
			return errOneByteHeaderSize
		}
	case ExtensionProfileTwoByte:
		if id < 1 {
			return errTwoByteHeaderIDRange
		}
		if len(payload) > 255 {
			return errTwoByteHeaderSize
		}
	default:
		if id != 0 {
			return errRFC3550HeaderIDRange
		}
	}

	for i, e := range h.Extensions {
		if e.ID == id {
			h.Extensions[i].Payload = payload
			return nil
		}
	}
	h.Extensions = append(h.Extensions, Extension{ID: id, Payload: payload})
	return nil
}

// GetExtension returns the payload stored under id, nil when absent.
func (h *Header) GetExtension(id uint8) []byte {
	if !h.Extension {
		return nil
	}
	for _, e := range h.Extensions {
		if e.ID == id {
			return e.Payload
		}
	}
	return nil
}

// GetExtensionIDs lists the extension IDs present.
func (h *Header) GetExtensionIDs() []uint8 {
	if !h.Extension || len(h.Extensions) == 0 {
		return nil
	}
	ids := make([]uint8, 0, len(h.Extensions))
	for _, e := range h.Extensions {
		ids = append(ids, e.ID)
	}
	return ids
}

// DelExtension removes the extension stored under id.
func (h *Header) DelExtension(id uint8) error {
	if !h.Extension {
		return errHeaderExtensionNotEnabled
	}
	for i, e := range h.Extensions {
		if e.ID == id {
			h.Extensions = append(h.Extensions[:i], h.Extensions[i+1:]...)
			return nil
		}
	}
	return errHeaderExtensionNotFound
}

// MarshalSize returns the serialized size of the packet.
func (p Packet) MarshalSize() int {
	return p.Header.MarshalSize() + len(p.Payload) + int(p.PaddingSize)
}

// MarshalTo serializes the packet into buf.
func (p Packet) MarshalTo(buf []byte) (int, error) {
	if p.PaddingSize != 0 {
		p.Header.Padding = true
	}
	n, err := p.Header.MarshalTo(buf)
	if err != nil {
		return 0, err
	}
	if n+len(p.Payload)+int(p.PaddingSize) > len(buf) {
		return 0, io.ErrShortBuffer
	}
	n += copy(buf[n:], p.Payload)
	if p.Header.Padding && p.PaddingSize != 0 {
		for i := 0; i < int(p.PaddingSize)-1; i++ {
			buf[n+i] = 0
		}
		buf[n+int(p.PaddingSize)-1] = p.PaddingSize
		n += int(p.PaddingSize)
	}
	return n, nil
}

// Marshal serializes the packet.
func (p Packet) Marshal() ([]byte, error) {
	buf := make([]byte, p.MarshalSize())
	n, err := p.MarshalTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Clone returns a deep copy.
func (p Packet) Clone() *Packet {
	clone := &Packet{Header: p.Header.Clone(), PaddingSize: p.PaddingSize}
	if p.Payload != nil {
		clone.Payload = append([]byte{}, p.Payload...)
	}
	return clone
}

// Clone returns a deep copy of the header.
func (h Header) Clone() Header {
	clone := h
	if h.CSRC != nil {
		clone.CSRC = append([]uint32{}, h.CSRC...)
	}
	if h.Extensions != nil {
		clone.Extensions = make([]Extension, len(h.Extensions))
		for i, e := range h.Extensions {
			clone.Extensions[i] = Extension{ID: e.ID, Payload: append([]byte{}, e.Payload...)}
		}
	}
	return clone
}

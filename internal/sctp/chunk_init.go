package sctp

import (
	"encoding/binary"
)

// SCTP parameter types used here.
const (
	paramTypeStateCookie         uint16 = 7
	paramTypeSupportedExtensions uint16 = 0x8008
	paramTypeForwardTSNSupported uint16 = 0xC000
)

// initCommon is shared by INIT and INIT-ACK.
type initCommon struct {
	initiateTag                    uint32
	advertisedReceiverWindowCredit uint32
	numOutboundStreams             uint16
	numInboundStreams              uint16
	initialTSN                     uint32

	stateCookie         []byte
	forwardTSNSupported bool
}

func (i *initCommon) marshalValue() []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint32(out[0:], i.initiateTag)
	binary.BigEndian.PutUint32(out[4:], i.advertisedReceiverWindowCredit)
	binary.BigEndian.PutUint16(out[8:], i.numOutboundStreams)
	binary.BigEndian.PutUint16(out[10:], i.numInboundStreams)
	binary.BigEndian.PutUint32(out[12:], i.initialTSN)

	if i.stateCookie != nil {
		out = appendParam(out, paramTypeStateCookie, i.stateCookie)
	}
	if i.forwardTSNSupported {
		out = appendParam(out, paramTypeForwardTSNSupported, nil)
	}
	// supported extensions: RECONFIG + FORWARD-TSN
	out = appendParam(out, paramTypeSupportedExtensions, []byte{byte(ctReconfig), byte(ctForwardTSN)})
	return out
}

func appendParam(out []byte, typ uint16, value []byte) []byte {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint16(hdr[0:], typ)
	binary.BigEndian.PutUint16(hdr[2:], uint16(4+len(value))) //nolint:gosec
	out = append(out, hdr...)
	out = append(out, value...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

func (i *initCommon) unmarshalValue(value []byte) error {
	if len(value) < 16 {
		return errChunkTooShort
	}
	i.initiateTag = binary.BigEndian.Uint32(value[0:])
	i.advertisedReceiverWindowCredit = binary.BigEndian.Uint32(value[4:])
	i.numOutboundStreams = binary.BigEndian.Uint16(value[8:])
	i.numInboundStreams = binary.BigEndian.Uint16(value[10:])
	i.initialTSN = binary.BigEndian.Uint32(value[12:])

	i.stateCookie = nil
	i.forwardTSNSupported = false
	for off := 16; off+4 <= len(value); {
		typ := binary.BigEndian.Uint16(value[off:])
		length := int(binary.BigEndian.Uint16(value[off+2:]))
		if length < 4 || off+length > len(value) {
			return errChunkFormat
		}
		body := value[off+4 : off+length]
		switch typ {
		case paramTypeStateCookie:
			i.stateCookie = append([]byte{}, body...)
		case paramTypeForwardTSNSupported:
			i.forwardTSNSupported = true
		}
		off += paddedLen(length)
	}
	return nil
}

type chunkInit struct {
	initCommon
}

func (c *chunkInit) marshal() []byte {
	h := chunkHeader{typ: ctInit}
	return h.marshalHeader(c.marshalValue())
}

func (c *chunkInit) unmarshal(_ byte, value []byte) error {
	return c.unmarshalValue(value)
}

type chunkInitAck struct {
	initCommon
}

func (c *chunkInitAck) marshal() []byte {
	h := chunkHeader{typ: ctInitAck}
	return h.marshalHeader(c.marshalValue())
}

func (c *chunkInitAck) unmarshal(_ byte, value []byte) error {
	return c.unmarshalValue(value)
}

type chunkCookieEcho struct {
	cookie []byte
}

func (c *chunkCookieEcho) marshal() []byte {
	h := chunkHeader{typ: ctCookieEcho}
	return h.marshalHeader(c.cookie)
}

func (c *chunkCookieEcho) unmarshal(_ byte, value []byte) error {
	c.cookie = append([]byte{}, value...)
	return nil
}

type chunkCookieAck struct{}

func (c *chunkCookieAck) marshal() []byte {
	h := chunkHeader{typ: ctCookieAck}
	return h.marshalHeader(nil)
}

func (c *chunkCookieAck) unmarshal(byte, []byte) error { return nil }

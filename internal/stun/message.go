// Package stun implements the subset of RFC 5389 the ICE agent needs:
// message encoding and decoding, short-term and long-term credentials,
// MESSAGE-INTEGRITY, FINGERPRINT and the attributes exchanged during
// connectivity checks.
package stun

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	magicCookie       = 0x2112A442
	headerSize        = 20
	transactionIDSize = 12
	attrHeaderSize    = 4
)

// MessageClass is the 2-bit class carried in the message type field.
type MessageClass byte

// Classes defined by RFC 5389 Section 6.
const (
	ClassRequest         MessageClass = 0x00
	ClassIndication      MessageClass = 0x01
	ClassSuccessResponse MessageClass = 0x02
	ClassErrorResponse   MessageClass = 0x03
)

func (c MessageClass) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassIndication:
		return "indication"
	case ClassSuccessResponse:
		return "success response"
	case ClassErrorResponse:
		return "error response"
	}
	return "unknown class"
}

// Method is the 12-bit STUN method. Binding is the only method the ICE
// agent originates; relayed candidates are allocated through the TURN
// client which speaks its own codec.
type Method uint16

// MethodBinding is defined in RFC 5389 Section 18.1.
const MethodBinding Method = 0x001

// MessageType combines class and method.
type MessageType struct {
	Class  MessageClass
	Method Method
}

// Value packs the class bits into the method per RFC 5389 Figure 3.
func (t MessageType) Value() uint16 {
	m := uint16(t.Method)
	// M0-M3 | C0 | M4-M6 | C1 | M7-M11
	return m&0x000f |
		(m&0x0070)<<1 |
		(m&0x0f80)<<2 |
		uint16(t.Class&0x1)<<4 |
		uint16(t.Class>>1)<<8
}

func messageTypeFromValue(v uint16) MessageType {
	return MessageType{
		Class:  MessageClass(v>>4&0x1 | v>>7&0x2),
		Method: Method(v&0x000f | v>>1&0x0070 | v>>2&0x0f80),
	}
}

// RawAttribute is a parsed but uninterpreted TLV. offset is the byte
// position of the attribute header inside Raw; it is what lets
// MESSAGE-INTEGRITY and FINGERPRINT checks reconstruct their input.
type RawAttribute struct {
	Type   AttrType
	Value  []byte
	offset int
}

// Message is a STUN message. Attributes keep insertion order; Raw holds
// the full wire image and is refreshed by Marshal and Unmarshal.
type Message struct {
	Type          MessageType
	TransactionID [transactionIDSize]byte
	Attributes    []RawAttribute
	Raw           []byte
}

// New builds an empty message of the given type with a fresh random
// transaction ID.
func New(t MessageType) *Message {
	m := &Message{Type: t}
	if _, err := rand.Read(m.TransactionID[:]); err != nil {
		panic(err) // crypto/rand is unrecoverable
	}
	return m
}

// NewTransaction builds a message that continues an existing transaction,
// used for responses.
func NewTransaction(t MessageType, id [transactionIDSize]byte) *Message {
	return &Message{Type: t, TransactionID: id}
}

// Add appends a raw attribute. Interpretation helpers live in
// attributes.go.
func (m *Message) Add(t AttrType, v []byte) {
	m.Attributes = append(m.Attributes, RawAttribute{Type: t, Value: v})
}

// Get returns the first attribute of the given type.
func (m *Message) Get(t AttrType) ([]byte, bool) {
	for _, a := range m.Attributes {
		if a.Type == t {
			return a.Value, true
		}
	}
	return nil, false
}

func attrPadded(n int) int {
	if n%4 != 0 {
		return n + 4 - n%4
	}
	return n
}

func (m *Message) attrsLen() int {
	l := 0
	for _, a := range m.Attributes {
		l += attrHeaderSize + attrPadded(len(a.Value))
	}
	return l
}

// marshal serializes the message, declaring lengthDelta additional bytes
// in the header length field beyond the attributes actually present.
// MESSAGE-INTEGRITY and FINGERPRINT use the delta to hash the message "as
// if" the attribute being computed were already appended, per RFC 5389
// Sections 15.4 and 15.5.
func (m *Message) marshal(lengthDelta int) []byte {
	raw := make([]byte, headerSize, headerSize+m.attrsLen())
	binary.BigEndian.PutUint16(raw[0:2], m.Type.Value())
	binary.BigEndian.PutUint16(raw[2:4], uint16(m.attrsLen()+lengthDelta))
	binary.BigEndian.PutUint32(raw[4:8], magicCookie)
	copy(raw[8:headerSize], m.TransactionID[:])
	for i := range m.Attributes {
		a := &m.Attributes[i]
		a.offset = len(raw)
		var hdr [attrHeaderSize]byte
		binary.BigEndian.PutUint16(hdr[0:2], uint16(a.Type))
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(a.Value)))
		raw = append(raw, hdr[:]...)
		raw = append(raw, a.Value...)
		for p := len(a.Value); p%4 != 0; p++ {
			raw = append(raw, 0)
		}
	}
	return raw
}

// Marshal returns the wire form and caches it in Raw.
func (m *Message) Marshal() []byte {
	m.Raw = m.marshal(0)
	return m.Raw
}

// Unmarshal parses raw into a Message. It fails with ErrBadFormat on any
// framing violation and with ErrUnknownRequiredAttribute when a
// comprehension-required attribute outside the implemented set is
// present.
func Unmarshal(raw []byte) (*Message, error) {
	if len(raw) < headerSize {
		return nil, errors.Wrap(ErrBadFormat, "message truncated")
	}
	if raw[0]&0xc0 != 0 {
		return nil, errors.Wrap(ErrBadFormat, "first two bits not zero")
	}
	if binary.BigEndian.Uint32(raw[4:8]) != magicCookie {
		return nil, errors.Wrap(ErrBadFormat, "bad magic cookie")
	}
	msgLen := int(binary.BigEndian.Uint16(raw[2:4]))
	if msgLen%4 != 0 || headerSize+msgLen != len(raw) {
		return nil, errors.Wrap(ErrBadFormat, "length field inconsistent")
	}

	m := &Message{
		Type: messageTypeFromValue(binary.BigEndian.Uint16(raw[0:2])),
		Raw:  append([]byte{}, raw...),
	}
	copy(m.TransactionID[:], raw[8:headerSize])

	for off := headerSize; off < len(raw); {
		if off+attrHeaderSize > len(raw) {
			return nil, errors.Wrap(ErrBadFormat, "attribute header truncated")
		}
		at := AttrType(binary.BigEndian.Uint16(raw[off : off+2]))
		al := int(binary.BigEndian.Uint16(raw[off+2 : off+4]))
		if off+attrHeaderSize+al > len(raw) {
			return nil, errors.Wrap(ErrBadFormat, "attribute value truncated")
		}
		if at.comprehensionRequired() && !at.known() {
			return nil, errors.Wrapf(ErrUnknownRequiredAttribute, "attribute 0x%04x", uint16(at))
		}
		m.Attributes = append(m.Attributes, RawAttribute{
			Type:   at,
			Value:  m.Raw[off+attrHeaderSize : off+attrHeaderSize+al],
			offset: off,
		})
		off += attrHeaderSize + attrPadded(al)
	}
	return m, nil
}

// IsMessage reports whether raw plausibly starts a STUN message. The mux
// applies the RFC 7983 first-byte test before this; IsMessage adds the
// magic cookie check used to discard random UDP noise.
func IsMessage(raw []byte) bool {
	return len(raw) >= headerSize &&
		raw[0]&0xc0 == 0 &&
		binary.BigEndian.Uint32(raw[4:8]) == magicCookie
}

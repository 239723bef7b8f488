// Package dcep encodes and decodes the Data Channel Establishment
// Protocol messages of RFC 8832: the OPEN sent on a freshly assigned
// SCTP stream and the ACK that confirms it.
package dcep

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MessageType is the first byte of every DCEP message.
type MessageType byte

// Message types from RFC 8832 Section 8.2.1.
const (
	TypeAck  MessageType = 0x02
	TypeOpen MessageType = 0x03
)

// ChannelType encodes ordering and reliability (RFC 8832 Section
// 8.2.2).
type ChannelType byte

// Channel types. The high bit clears ordering.
const (
	ChannelTypeReliable                ChannelType = 0x00
	ChannelTypeReliableUnordered       ChannelType = 0x80
	ChannelTypePartialReliableRexmit   ChannelType = 0x01
	ChannelTypePartialReliableRexmitUnordered ChannelType = 0x81
	ChannelTypePartialReliableTimed    ChannelType = 0x02
	ChannelTypePartialReliableTimedUnordered  ChannelType = 0x82
)

// Unordered reports whether the channel type clears ordering.
func (t ChannelType) Unordered() bool {
	return t&0x80 != 0
}

var (
	// ErrTruncated indicates a message shorter than its declared
	// contents.
	ErrTruncated = errors.New("dcep: message truncated")
	// ErrUnknownType indicates an unrecognized message type byte.
	ErrUnknownType = errors.New("dcep: unknown message type")
)

// Message is either *Open or *Ack.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(raw []byte) error
}

// Parse decodes a DCEP message.
func Parse(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return nil, ErrTruncated
	}
	var m Message
	switch MessageType(raw[0]) {
	case TypeOpen:
		m = &Open{}
	case TypeAck:
		m = &Ack{}
	default:
		return nil, errors.Wrapf(ErrUnknownType, "0x%02x", raw[0])
	}
	if err := m.Unmarshal(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// Open is the DATA_CHANNEL_OPEN message.
type Open struct {
	ChannelType          ChannelType
	Priority             uint16
	ReliabilityParameter uint32
	Label                string
	Protocol             string
}

const openHeaderLength = 12

// Marshal encodes the message.
func (o *Open) Marshal() ([]byte, error) {
	raw := make([]byte, openHeaderLength, openHeaderLength+len(o.Label)+len(o.Protocol))
	raw[0] = byte(TypeOpen)
	raw[1] = byte(o.ChannelType)
	binary.BigEndian.PutUint16(raw[2:], o.Priority)
	binary.BigEndian.PutUint32(raw[4:], o.ReliabilityParameter)
	binary.BigEndian.PutUint16(raw[8:], uint16(len(o.Label)))    //nolint:gosec
	binary.BigEndian.PutUint16(raw[10:], uint16(len(o.Protocol))) //nolint:gosec
	raw = append(raw, o.Label...)
	raw = append(raw, o.Protocol...)
	return raw, nil
}

// Unmarshal decodes the message.
func (o *Open) Unmarshal(raw []byte) error {
	if len(raw) < openHeaderLength {
		return ErrTruncated
	}
	o.ChannelType = ChannelType(raw[1])
	o.Priority = binary.BigEndian.Uint16(raw[2:])
	o.ReliabilityParameter = binary.BigEndian.Uint32(raw[4:])
	labelLen := int(binary.BigEndian.Uint16(raw[8:]))
	protocolLen := int(binary.BigEndian.Uint16(raw[10:]))
	if len(raw) < openHeaderLength+labelLen+protocolLen {
		return ErrTruncated
	}
	o.Label = string(raw[openHeaderLength : openHeaderLength+labelLen])
	o.Protocol = string(raw[openHeaderLength+labelLen : openHeaderLength+labelLen+protocolLen])
	return nil
}

// Ack is the DATA_CHANNEL_ACK message.
type Ack struct{}

// Marshal encodes the message.
func (*Ack) Marshal() ([]byte, error) {
	return []byte{byte(TypeAck)}, nil
}

// Unmarshal decodes the message.
func (*Ack) Unmarshal(raw []byte) error {
	if len(raw) < 1 {
		return ErrTruncated
	}
	return nil
}

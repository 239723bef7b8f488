package sctp

import (
	"encoding/binary"
	"time"
)

// PayloadProtocolIdentifier is the DATA chunk PPI; data channels use
// the RFC 8831 values.
type PayloadProtocolIdentifier uint32

// PPIs from RFC 8831 Section 8.
const (
	PayloadTypeWebRTCDCEP        PayloadProtocolIdentifier = 50
	PayloadTypeWebRTCString      PayloadProtocolIdentifier = 51
	PayloadTypeWebRTCBinary      PayloadProtocolIdentifier = 53
	PayloadTypeWebRTCStringEmpty PayloadProtocolIdentifier = 56
	PayloadTypeWebRTCBinaryEmpty PayloadProtocolIdentifier = 57
)

const (
	payloadDataEndingFragment    byte = 0x01
	payloadDataBeginningFragment byte = 0x02
	payloadDataUnordered         byte = 0x04
	payloadDataImmediateSACK     byte = 0x08

	payloadDataHeaderSize = 12
)

// chunkPayloadData is a DATA chunk, and doubles as the send queue's
// per-chunk bookkeeping record.
type chunkPayloadData struct {
	tsn                  uint32
	streamIdentifier     uint16
	streamSequenceNumber uint16
	payloadType          PayloadProtocolIdentifier
	userData             []byte

	unordered         bool
	beginningFragment bool
	endingFragment    bool
	immediateSACK     bool

	// sender-side state
	nSent         uint
	since         time.Time
	acked         bool // gap-acknowledged, retained until the cumulative point passes
	abandoned     bool // given up under the stream's partial reliability policy
	retransmit    bool
	missIndicator uint // dup-SACK counter for fast retransmit
}

func (c *chunkPayloadData) marshal() []byte {
	h := chunkHeader{typ: ctPayloadData, flags: c.flagsByte()}
	value := make([]byte, payloadDataHeaderSize+len(c.userData))
	binary.BigEndian.PutUint32(value[0:], c.tsn)
	binary.BigEndian.PutUint16(value[4:], c.streamIdentifier)
	binary.BigEndian.PutUint16(value[6:], c.streamSequenceNumber)
	binary.BigEndian.PutUint32(value[8:], uint32(c.payloadType))
	copy(value[payloadDataHeaderSize:], c.userData)
	return h.marshalHeader(value)
}

func (c *chunkPayloadData) flagsByte() byte {
	var flags byte
	if c.endingFragment {
		flags |= payloadDataEndingFragment
	}
	if c.beginningFragment {
		flags |= payloadDataBeginningFragment
	}
	if c.unordered {
		flags |= payloadDataUnordered
	}
	if c.immediateSACK {
		flags |= payloadDataImmediateSACK
	}
	return flags
}

func (c *chunkPayloadData) unmarshal(flags byte, value []byte) error {
	if len(value) < payloadDataHeaderSize {
		return errChunkTooShort
	}
	c.endingFragment = flags&payloadDataEndingFragment != 0
	c.beginningFragment = flags&payloadDataBeginningFragment != 0
	c.unordered = flags&payloadDataUnordered != 0
	c.immediateSACK = flags&payloadDataImmediateSACK != 0

	c.tsn = binary.BigEndian.Uint32(value[0:])
	c.streamIdentifier = binary.BigEndian.Uint16(value[4:])
	c.streamSequenceNumber = binary.BigEndian.Uint16(value[6:])
	c.payloadType = PayloadProtocolIdentifier(binary.BigEndian.Uint32(value[8:]))
	c.userData = append([]byte{}, value[payloadDataHeaderSize:]...)
	return nil
}

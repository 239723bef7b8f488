package sctp

import "encoding/binary"

// HEARTBEAT and HEARTBEAT-ACK carry an opaque heartbeat-info param
// echoed back verbatim.

type chunkHeartbeat struct {
	info []byte
}

func heartbeatValue(info []byte) []byte {
	value := make([]byte, 4, 4+len(info))
	binary.BigEndian.PutUint16(value[0:], 1) // heartbeat info param
	binary.BigEndian.PutUint16(value[2:], uint16(4+len(info))) //nolint:gosec
	return append(value, info...)
}

func heartbeatInfo(value []byte) []byte {
	if len(value) < 4 {
		return nil
	}
	length := int(binary.BigEndian.Uint16(value[2:]))
	if length < 4 || length > len(value) {
		return nil
	}
	return value[4:length]
}

func (c *chunkHeartbeat) marshal() []byte {
	h := chunkHeader{typ: ctHeartbeat}
	return h.marshalHeader(heartbeatValue(c.info))
}

func (c *chunkHeartbeat) unmarshal(_ byte, value []byte) error {
	c.info = append([]byte{}, heartbeatInfo(value)...)
	return nil
}

type chunkHeartbeatAck struct {
	info []byte
}

func (c *chunkHeartbeatAck) marshal() []byte {
	h := chunkHeader{typ: ctHeartbeatAck}
	return h.marshalHeader(heartbeatValue(c.info))
}

func (c *chunkHeartbeatAck) unmarshal(_ byte, value []byte) error {
	c.info = append([]byte{}, heartbeatInfo(value)...)
	return nil
}

type chunkAbort struct {
	raw []byte
}

func (c *chunkAbort) marshal() []byte {
	h := chunkHeader{typ: ctAbort}
	return h.marshalHeader(c.raw)
}

func (c *chunkAbort) unmarshal(_ byte, value []byte) error {
	c.raw = append([]byte{}, value...)
	return nil
}

type chunkError struct {
	raw []byte
}

func (c *chunkError) marshal() []byte {
	h := chunkHeader{typ: ctError}
	return h.marshalHeader(c.raw)
}

func (c *chunkError) unmarshal(_ byte, value []byte) error {
	c.raw = append([]byte{}, value...)
	return nil
}

type chunkShutdown struct {
	cumulativeTSNAck uint32
}

func (c *chunkShutdown) marshal() []byte {
	h := chunkHeader{typ: ctShutdown}
	value := make([]byte, 4)
	binary.BigEndian.PutUint32(value, c.cumulativeTSNAck)
	return h.marshalHeader(value)
}

func (c *chunkShutdown) unmarshal(_ byte, value []byte) error {
	if len(value) < 4 {
		return errChunkTooShort
	}
	c.cumulativeTSNAck = binary.BigEndian.Uint32(value)
	return nil
}

type chunkShutdownAck struct{}

func (c *chunkShutdownAck) marshal() []byte {
	h := chunkHeader{typ: ctShutdownAck}
	return h.marshalHeader(nil)
}

func (c *chunkShutdownAck) unmarshal(byte, []byte) error { return nil }

type chunkShutdownComplete struct{}

func (c *chunkShutdownComplete) marshal() []byte {
	h := chunkHeader{typ: ctShutdownComplete}
	return h.marshalHeader(nil)
}

func (c *chunkShutdownComplete) unmarshal(byte, []byte) error { return nil }

// chunkForwardTSN implements RFC 3758 Section 3.2.
type chunkForwardTSN struct {
	newCumulativeTSN uint32
	streams          []forwardTSNStream
}

type forwardTSNStream struct {
	identifier uint16
	sequence   uint16
}

func (c *chunkForwardTSN) marshal() []byte {
	h := chunkHeader{typ: ctForwardTSN}
	value := make([]byte, 4, 4+4*len(c.streams))
	binary.BigEndian.PutUint32(value, c.newCumulativeTSN)
	for _, s := range c.streams {
		value = binary.BigEndian.AppendUint16(value, s.identifier)
		value = binary.BigEndian.AppendUint16(value, s.sequence)
	}
	return h.marshalHeader(value)
}

func (c *chunkForwardTSN) unmarshal(_ byte, value []byte) error {
	if len(value) < 4 {
		return errChunkTooShort
	}
	c.newCumulativeTSN = binary.BigEndian.Uint32(value)
	c.streams = nil
	for off := 4; off+4 <= len(value); off += 4 {
		c.streams = append(c.streams, forwardTSNStream{
			identifier: binary.BigEndian.Uint16(value[off:]),
			sequence:   binary.BigEndian.Uint16(value[off+2:]),
		})
	}
	return nil
}

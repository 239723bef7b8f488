package sctp

import "encoding/binary"

type gapAckBlock struct {
	start uint16 // offsets from cumulativeTSNAck
	end   uint16
}

type chunkSack struct {
	cumulativeTSNAck               uint32
	advertisedReceiverWindowCredit uint32
	gapAckBlocks                   []gapAckBlock
	duplicateTSN                   []uint32
}

func (c *chunkSack) marshal() []byte {
	h := chunkHeader{typ: ctSack}
	value := make([]byte, 12, 12+4*len(c.gapAckBlocks)+4*len(c.duplicateTSN))
	binary.BigEndian.PutUint32(value[0:], c.cumulativeTSNAck)
	binary.BigEndian.PutUint32(value[4:], c.advertisedReceiverWindowCredit)
	binary.BigEndian.PutUint16(value[8:], uint16(len(c.gapAckBlocks)))  //nolint:gosec
	binary.BigEndian.PutUint16(value[10:], uint16(len(c.duplicateTSN))) //nolint:gosec
	for _, b := range c.gapAckBlocks {
		value = binary.BigEndian.AppendUint16(value, b.start)
		value = binary.BigEndian.AppendUint16(value, b.end)
	}
	for _, d := range c.duplicateTSN {
		value = binary.BigEndian.AppendUint32(value, d)
	}
	return h.marshalHeader(value)
}

func (c *chunkSack) unmarshal(_ byte, value []byte) error {
	if len(value) < 12 {
		return errChunkTooShort
	}
	c.cumulativeTSNAck = binary.BigEndian.Uint32(value[0:])
	c.advertisedReceiverWindowCredit = binary.BigEndian.Uint32(value[4:])
	numGaps := int(binary.BigEndian.Uint16(value[8:]))
	numDups := int(binary.BigEndian.Uint16(value[10:]))
	if len(value) < 12+4*numGaps+4*numDups {
		return errChunkFormat
	}

	c.gapAckBlocks = make([]gapAckBlock, numGaps)
	off := 12
	for i := range c.gapAckBlocks {
		c.gapAckBlocks[i].start = binary.BigEndian.Uint16(value[off:])
		c.gapAckBlocks[i].end = binary.BigEndian.Uint16(value[off+2:])
		off += 4
	}
	c.duplicateTSN = make([]uint32, numDups)
	for i := range c.duplicateTSN {
		c.duplicateTSN[i] = binary.BigEndian.Uint32(value[off:])
		off += 4
	}
	return nil
}

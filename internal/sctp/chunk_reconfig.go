package sctp

import "encoding/binary"

// RE-CONFIG (RFC 6525) parameters used for stream reset.
const (
	paramTypeOutgoingResetRequest uint16 = 13
	paramTypeReconfigResponse     uint16 = 16
)

// Reconfiguration response results (RFC 6525 Section 4.4).
const (
	reconfigResultSuccessPerformed  uint32 = 1
	reconfigResultDenied            uint32 = 2
	reconfigResultErrorInProgress   uint32 = 6
)

// paramOutgoingResetRequest asks the peer to reset the listed incoming
// streams.
type paramOutgoingResetRequest struct {
	reconfigRequestSequenceNumber uint32
	responseSequenceNumber        uint32
	senderLastTSN                 uint32
	streamIdentifiers             []uint16
}

func (p *paramOutgoingResetRequest) marshal() []byte {
	value := make([]byte, 12, 12+2*len(p.streamIdentifiers))
	binary.BigEndian.PutUint32(value[0:], p.reconfigRequestSequenceNumber)
	binary.BigEndian.PutUint32(value[4:], p.responseSequenceNumber)
	binary.BigEndian.PutUint32(value[8:], p.senderLastTSN)
	for _, id := range p.streamIdentifiers {
		value = binary.BigEndian.AppendUint16(value, id)
	}
	return appendParam(nil, paramTypeOutgoingResetRequest, value)
}

func (p *paramOutgoingResetRequest) unmarshal(value []byte) error {
	if len(value) < 12 {
		return errChunkTooShort
	}
	p.reconfigRequestSequenceNumber = binary.BigEndian.Uint32(value[0:])
	p.responseSequenceNumber = binary.BigEndian.Uint32(value[4:])
	p.senderLastTSN = binary.BigEndian.Uint32(value[8:])
	p.streamIdentifiers = nil
	for off := 12; off+2 <= len(value); off += 2 {
		p.streamIdentifiers = append(p.streamIdentifiers, binary.BigEndian.Uint16(value[off:]))
	}
	return nil
}

// paramReconfigResponse answers a reset request.
type paramReconfigResponse struct {
	responseSequenceNumber uint32
	result                 uint32
}

func (p *paramReconfigResponse) marshal() []byte {
	value := make([]byte, 8)
	binary.BigEndian.PutUint32(value[0:], p.responseSequenceNumber)
	binary.BigEndian.PutUint32(value[4:], p.result)
	return appendParam(nil, paramTypeReconfigResponse, value)
}

func (p *paramReconfigResponse) unmarshal(value []byte) error {
	if len(value) < 8 {
		return errChunkTooShort
	}
	p.responseSequenceNumber = binary.BigEndian.Uint32(value[0:])
	p.result = binary.BigEndian.Uint32(value[4:])
	return nil
}

// chunkReconfig carries one or two reconfiguration parameters.
type chunkReconfig struct {
	outgoingResetRequest *paramOutgoingResetRequest
	reconfigResponse     *paramReconfigResponse
}

func (c *chunkReconfig) marshal() []byte {
	h := chunkHeader{typ: ctReconfig}
	var value []byte
	if c.outgoingResetRequest != nil {
		value = append(value, c.outgoingResetRequest.marshal()...)
	}
	if c.reconfigResponse != nil {
		value = append(value, c.reconfigResponse.marshal()...)
	}
	return h.marshalHeader(value)
}

func (c *chunkReconfig) unmarshal(_ byte, value []byte) error {
	c.outgoingResetRequest = nil
	c.reconfigResponse = nil
	for off := 0; off+4 <= len(value); {
		typ := binary.BigEndian.Uint16(value[off:])
		length := int(binary.BigEndian.Uint16(value[off+2:]))
		if length < 4 || off+length > len(value) {
			return errChunkFormat
		}
		body := value[off+4 : off+length]
		switch typ {
		case paramTypeOutgoingResetRequest:
			p := &paramOutgoingResetRequest{}
			if err := p.unmarshal(body); err != nil {
				return err
			}
			c.outgoingResetRequest = p
		case paramTypeReconfigResponse:
			p := &paramReconfigResponse{}
			if err := p.unmarshal(body); err != nil {
				return err
			}
			c.reconfigResponse = p
		}
		off += paddedLen(length)
	}
	return nil
}

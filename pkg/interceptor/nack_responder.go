package interceptor

import (
	"encoding/binary"
	"sync"

	"github.com/ridgewood-io/webrtc/pkg/rtcp"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

const defaultSendBufferSize = 1024

// NackResponder answers inbound NACKs from a send history, emitting
// RTX repacketizations (RFC 4588): the retransmission rides its own
// SSRC and payload type with the original sequence number prefixed to
// the payload.
type NackResponder struct {
	mu sync.Mutex

	buffer *SendBuffer

	rtxSSRC        uint32
	rtxPayloadType uint8
	rtxSequence    uint16
}

// NewNackResponder builds a responder using the negotiated RTX stream
// parameters. A zero rtxSSRC disables repacketization and resends
// packets verbatim.
func NewNackResponder(rtxSSRC uint32, rtxPayloadType uint8) (*NackResponder, error) {
	buffer, err := NewSendBuffer(defaultSendBufferSize)
	if err != nil {
		return nil, err
	}
	return &NackResponder{
		buffer:         buffer,
		rtxSSRC:        rtxSSRC,
		rtxPayloadType: rtxPayloadType,
	}, nil
}

// Remember stores an outgoing packet for later retransmission.
func (n *NackResponder) Remember(p *rtp.Packet) {
	n.buffer.Add(p.Clone())
}

// Resend maps a received NACK to the retransmission packets to send.
func (n *NackResponder) Resend(nack *rtcp.TransportLayerNack) []*rtp.Packet {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []*rtp.Packet
	for _, pair := range nack.Nacks {
		for _, seq := range pair.PacketList() {
			original := n.buffer.Get(seq)
			if original == nil {
				continue
			}
			out = append(out, n.repacketize(original))
		}
	}
	return out
}

func (n *NackResponder) repacketize(original *rtp.Packet) *rtp.Packet {
	if n.rtxSSRC == 0 {
		return original
	}

	rtxPacket := original.Clone()
	rtxPacket.SSRC = n.rtxSSRC
	rtxPacket.PayloadType = n.rtxPayloadType
	n.rtxSequence++
	rtxPacket.SequenceNumber = n.rtxSequence

	// original sequence number leads the RTX payload
	payload := make([]byte, 2+len(original.Payload))
	binary.BigEndian.PutUint16(payload, original.SequenceNumber)
	copy(payload[2:], original.Payload)
	rtxPacket.Payload = payload
	return rtxPacket
}

// UnwrapRTX recovers the original packet from an RTX repacketization.
func UnwrapRTX(rtxPacket *rtp.Packet, mediaSSRC uint32, mediaPayloadType uint8) (*rtp.Packet, bool) {
	if len(rtxPacket.Payload) < 2 {
		return nil, false
	}
	original := rtxPacket.Clone()
	original.SSRC = mediaSSRC
	original.PayloadType = mediaPayloadType
	original.SequenceNumber = binary.BigEndian.Uint16(rtxPacket.Payload)
	original.Payload = rtxPacket.Payload[2:]
	return original, true
}

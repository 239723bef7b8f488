package rtp

import (
	"time"
)

// Payloader fragments a codec frame into RTP payloads that fit the MTU.
type Payloader interface {
	Payload(mtu uint16, payload []byte) [][]byte
}

// Packetizer builds RTP packets from codec frames.
type Packetizer interface {
	Packetize(payload []byte, samples uint32) []*Packet
	EnableAbsSendTime(value uint8)
	SkipSamples(skippedSamples uint32)
}

// NewPacketizer returns a packetizer for a single outgoing stream.
func NewPacketizer(mtu uint16, pt uint8, ssrc uint32, payloader Payloader, sequencer Sequencer, clockRate uint32) Packetizer {
	return &packetizer{
		mtu:       mtu,
		payloadType: pt,
		ssrc:      ssrc,
		payloader: payloader,
		sequencer: sequencer,
		clockRate: clockRate,
		timegen:   time.Now,
	}
}

type packetizer struct {
	mtu         uint16
	payloadType uint8
	ssrc        uint32
	payloader   Payloader
	sequencer   Sequencer
	timestamp   uint32
	clockRate   uint32

	absSendTimeID uint8 // 0 disables the extension
	timegen       func() time.Time
}

// EnableAbsSendTime stamps every outgoing packet with abs-send-time
// under the given extmap id.
func (p *packetizer) EnableAbsSendTime(value uint8) {
	p.absSendTimeID = value
}

// SkipSamples advances the media clock without emitting packets, used
// across DTX gaps so the receiver's timeline stays correct.
func (p *packetizer) SkipSamples(skippedSamples uint32) {
	p.timestamp += skippedSamples
}

// Packetize fragments payload into packets. samples is the media-clock
// duration covered by the frame.
func (p *packetizer) Packetize(payload []byte, samples uint32) []*Packet {
	if len(payload) == 0 {
		return nil
	}

	payloads := p.payloader.Payload(p.mtu-headerLength, payload)
	packets := make([]*Packet, len(payloads))
	for i, pp := range payloads {
		packets[i] = &Packet{
			Header: Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      p.timestamp,
				SSRC:           p.ssrc,
			},
			Payload: pp,
		}
	}
	p.timestamp += samples

	if len(packets) != 0 && p.absSendTimeID != 0 {
		sendTime := NewAbsSendTimeExtension(p.timegen())
		b, err := sendTime.Marshal()
		if err == nil {
			// only the last packet of a frame carries the timestamp
			_ = packets[len(packets)-1].SetExtension(p.absSendTimeID, b)
		}
	}
	return packets
}

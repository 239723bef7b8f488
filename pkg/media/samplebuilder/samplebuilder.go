// Package samplebuilder is the per-SSRC jitter buffer: it reorders RTP
// packets by sequence number, frames them into samples using the
// depacketizer's partition signals, and drops what stays incomplete
// past its hold time.
package samplebuilder

import (
	"time"

	"github.com/ridgewood-io/webrtc/pkg/media"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// SampleBuilder buffers packets and emits complete samples in order.
type SampleBuilder struct {
	maxLate       uint16
	maxTimeDelay  time.Duration
	depacketizer  rtp.Depacketizer
	sampleRate    uint32

	buffer  map[uint16]*bufferedPacket
	prepared []*media.Sample

	// nextSeq is the sequence number the builder wants to consume
	// next; unset until the first packet
	nextSeq    uint16
	haveNext   bool
	lastPushed uint16

	droppedSinceSample uint16

	keyFrameFn func(payload []byte) bool
}

type bufferedPacket struct {
	packet  *rtp.Packet
	arrival time.Time
}

// Option configures a SampleBuilder.
type Option func(*SampleBuilder)

// WithMaxTimeDelay bounds how long an incomplete sample may hold the
// queue before being dropped.
func WithMaxTimeDelay(d time.Duration) Option {
	return func(s *SampleBuilder) { s.maxTimeDelay = d }
}

// WithKeyFrameDetector installs the payloader-provided keyframe
// signal; the buffer itself never parses codec payloads.
func WithKeyFrameDetector(f func(payload []byte) bool) Option {
	return func(s *SampleBuilder) { s.keyFrameFn = f }
}

// New builds a SampleBuilder holding up to maxLate packets.
func New(maxLate uint16, depacketizer rtp.Depacketizer, sampleRate uint32, opts ...Option) *SampleBuilder {
	s := &SampleBuilder{
		maxLate:      maxLate,
		depacketizer: depacketizer,
		sampleRate:   sampleRate,
		buffer:       map[uint16]*bufferedPacket{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Push adds one packet and assembles whatever became complete.
func (s *SampleBuilder) Push(p *rtp.Packet) {
	if !s.haveNext {
		s.nextSeq = p.SequenceNumber
		s.haveNext = true
	}
	// already consumed past this sequence number
	if diff := s.nextSeq - p.SequenceNumber; diff > 0 && diff < 1<<15 {
		return
	}
	s.buffer[p.SequenceNumber] = &bufferedPacket{packet: p, arrival: time.Now()}
	s.lastPushed = p.SequenceNumber

	s.assemble()
	s.dropStale()
}

// assemble walks forward from nextSeq framing complete partition runs.
func (s *SampleBuilder) assemble() {
	for {
		start, ok := s.buffer[s.nextSeq]
		if !ok {
			return
		}
		if !s.depacketizer.IsPartitionHead(start.packet.Payload) {
			// can't frame from mid-partition; skip it
			delete(s.buffer, s.nextSeq)
			s.nextSeq++
			s.droppedSinceSample++
			continue
		}

		// find the partition tail
		end := s.nextSeq
		complete := false
		for {
			bp, ok := s.buffer[end]
			if !ok {
				break
			}
			if s.depacketizer.IsPartitionTail(bp.packet.Marker, bp.packet.Payload) {
				complete = true
				break
			}
			end++
		}
		if !complete {
			return
		}

		s.emit(s.nextSeq, end)
	}
}

func (s *SampleBuilder) emit(start, end uint16) {
	var data []byte
	keyFrame := false
	packetTimestamp := s.buffer[start].packet.Timestamp
	for seq := start; ; seq++ {
		bp := s.buffer[seq]
		payload, err := s.depacketizer.Unmarshal(bp.packet.Payload)
		if err == nil {
			data = append(data, payload...)
		}
		if s.keyFrameFn != nil && s.keyFrameFn(bp.packet.Payload) {
			keyFrame = true
		}
		delete(s.buffer, seq)
		if seq == end {
			break
		}
	}

	sample := &media.Sample{
		Data:               data,
		PacketTimestamp:    packetTimestamp,
		PrevDroppedPackets: s.droppedSinceSample,
		KeyFrame:           keyFrame,
	}
	s.droppedSinceSample = 0
	s.prepared = append(s.prepared, sample)
	s.nextSeq = end + 1
}

// dropStale evicts the head when the buffer exceeds its sequence
// window or outlives the hold time. A hole at the head counts as
// expired once any buffered packet behind it has waited that long.
func (s *SampleBuilder) dropStale() {
	for len(s.buffer) > 0 {
		dist := s.lastPushed - s.nextSeq
		tooMany := dist >= s.maxLate && dist < 1<<15

		expired := false
		if s.maxTimeDelay > 0 {
			if head, ok := s.buffer[s.nextSeq]; ok {
				expired = time.Since(head.arrival) > s.maxTimeDelay
			} else {
				for _, bp := range s.buffer {
					if time.Since(bp.arrival) > s.maxTimeDelay {
						expired = true
						break
					}
				}
			}
		}

		if !tooMany && !expired {
			return
		}
		delete(s.buffer, s.nextSeq)
		s.nextSeq++
		s.droppedSinceSample++
		s.assemble()
	}
}

// Pop returns the next complete sample, nil when none is ready.
func (s *SampleBuilder) Pop() *media.Sample {
	if len(s.prepared) == 0 {
		return nil
	}
	sample := s.prepared[0]
	s.prepared = s.prepared[1:]
	return sample
}

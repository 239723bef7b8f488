package interceptor

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

var errSendBufferSize = errors.New("interceptor: send buffer size must be a power of two up to 32768")

// SendBuffer retains recently sent packets so NACKed sequence numbers
// can be retransmitted through RTX.
type SendBuffer struct {
	mu        sync.RWMutex
	packets   []*rtp.Packet
	size      uint16
	lastAdded uint16
	started   bool
}

// NewSendBuffer builds a buffer holding size packets.
func NewSendBuffer(size uint16) (*SendBuffer, error) {
	allowed := false
	for i := 0; i < 16; i++ {
		if size == 1<<i {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errSendBufferSize
	}
	return &SendBuffer{packets: make([]*rtp.Packet, size), size: size}, nil
}

// Add stores an outgoing packet; the buffer keeps the pointer it is
// given, not a copy.
func (s *SendBuffer) Add(packet *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := packet.SequenceNumber
	if !s.started {
		s.packets[seq%s.size] = packet
		s.lastAdded = seq
		s.started = true
		return
	}

	diff := seq - s.lastAdded
	if diff == 0 {
		return
	} else if diff < uint16SizeHalf {
		for i := s.lastAdded + 1; i != seq; i++ {
			s.packets[i%s.size] = nil
		}
	}

	s.packets[seq%s.size] = packet
	s.lastAdded = seq
}

// Get returns the stored packet for seq, nil when evicted or never
// sent.
func (s *SendBuffer) Get(seq uint16) *rtp.Packet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diff := s.lastAdded - seq
	if diff >= uint16SizeHalf || diff >= s.size {
		return nil
	}
	pkt := s.packets[seq%s.size]
	if pkt == nil || pkt.SequenceNumber != seq {
		return nil
	}
	return pkt
}

// Package interceptor holds the RTP stream machinery that sits between
// transport and application: loss bookkeeping feeding NACK generation,
// the retransmission buffer behind RTX, and the transport-wide
// congestion control feedback recorder.
package interceptor

import (
	"sync"

	"github.com/pkg/errors"
)

var errReceiveLogSize = errors.New("interceptor: receive log size must be a power of two between 64 and 32768")

// ReceiveLog is a bitmask history of received sequence numbers; gaps
// become NACK candidates.
type ReceiveLog struct {
	mu              sync.RWMutex
	packets         []uint64
	size            uint16
	end             uint16
	started         bool
	lastConsecutive uint16
}

// NewReceiveLog builds a log holding size sequence numbers.
func NewReceiveLog(size uint16) (*ReceiveLog, error) {
	allowed := false
	for i := 6; i < 16; i++ {
		if size == 1<<i {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errReceiveLogSize
	}
	return &ReceiveLog{
		packets: make([]uint64, size/64),
		size:    size,
	}, nil
}

// Add records a received sequence number.
func (s *ReceiveLog) Add(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.setReceived(seq)
		s.end = seq
		s.started = true
		s.lastConsecutive = seq
		return
	}

	diff := seq - s.end
	switch {
	case diff == 0:
		return
	case diff < uint16SizeHalf:
		// in order, maybe with a gap
		for i := s.end + 1; i != seq; i++ {
			s.delReceived(i)
		}
		s.end = seq
		if s.lastConsecutive+1 == seq {
			s.lastConsecutive = seq
		} else if seq-s.lastConsecutive > s.size {
			s.lastConsecutive = seq - s.size
			s.fixLastConsecutive()
		}
	default:
		// out of order: a retransmission filled a hole
		if seq-s.lastConsecutive >= uint16SizeHalf || s.end-seq >= s.size {
			return
		}
		if s.lastConsecutive+1 == seq {
			s.lastConsecutive = seq
			s.fixLastConsecutive()
		}
	}
	s.setReceived(seq)
}

// Get reports whether seq was received.
func (s *ReceiveLog) Get(seq uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	diff := s.end - seq
	if diff >= uint16SizeHalf || diff >= s.size {
		return false
	}
	return s.getReceived(seq)
}

// MissingSeqNumbers lists the gaps older than skipLastN packets,
// oldest first.
func (s *ReceiveLog) MissingSeqNumbers(skipLastN uint16) []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until := s.end - skipLastN
	if until-s.lastConsecutive >= uint16SizeHalf {
		return nil
	}

	var missing []uint16
	for i := s.lastConsecutive + 1; i != until+1; i++ {
		if !s.getReceived(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

const uint16SizeHalf = 1 << 15

func (s *ReceiveLog) setReceived(seq uint16) {
	pos := seq % s.size
	s.packets[pos/64] |= 1 << (pos % 64)
}

func (s *ReceiveLog) delReceived(seq uint16) {
	pos := seq % s.size
	s.packets[pos/64] &^= 1 << (pos % 64)
}

func (s *ReceiveLog) getReceived(seq uint16) bool {
	pos := seq % s.size
	return s.packets[pos/64]&(1<<(pos%64)) != 0
}

func (s *ReceiveLog) fixLastConsecutive() {
	for s.getReceived(s.lastConsecutive + 1) {
		s.lastConsecutive++
	}
}

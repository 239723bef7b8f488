package rtp

import (
	"sync"

	"github.com/pion/randutil"
)

// Sequencer generates sequential sequence numbers for building RTP
// packets and tracks the rollover count.
type Sequencer interface {
	NextSequenceNumber() uint16
	RollOverCount() uint64
}

// NewRandomSequencer returns a sequencer starting at a random offset, as
// RFC 3550 Section 5.1 requires for new streams.
func NewRandomSequencer() Sequencer {
	return &sequencer{sequenceNumber: uint16(randutil.NewMathRandomGenerator().Intn(1 << 16))} //nolint:gosec
}

// NewFixedSequencer returns a sequencer starting at a known offset.
func NewFixedSequencer(s uint16) Sequencer {
	return &sequencer{sequenceNumber: s - 1} // -1 because the first call increments
}

type sequencer struct {
	mu             sync.Mutex
	sequenceNumber uint16
	rollOverCount  uint64
}

func (s *sequencer) NextSequenceNumber() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequenceNumber++
	if s.sequenceNumber == 0 {
		s.rollOverCount++
	}
	return s.sequenceNumber
}

func (s *sequencer) RollOverCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollOverCount
}

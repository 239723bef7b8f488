package sctp

import (
	"io"
	"sync"
)

// Reliability policies mapped from the data channel options (RFC 8831
// Section 6.2 onto RFC 3758).
const (
	// ReliabilityTypeReliable retransmits until acknowledged.
	ReliabilityTypeReliable byte = 0
	// ReliabilityTypeRexmit abandons after reliabilityValue
	// transmissions.
	ReliabilityTypeRexmit byte = 1
	// ReliabilityTypeTimed abandons after reliabilityValue
	// milliseconds.
	ReliabilityTypeTimed byte = 2
)

// Stream is one bidirectional SCTP stream.
type Stream struct {
	association *Association
	streamID    uint16

	reassembly *reassemblyQueue

	readMu       sync.Mutex
	readNotifier *sync.Cond
	readErr      error

	nextSSN uint16

	unordered        bool
	reliabilityType  byte
	reliabilityValue uint32

	bufferedAmount              uint64
	bufferedAmountLowThreshold  uint64
	onBufferedAmountLowHandler  func()

	onResetHandler func()
	resetPending   bool
}

func newStream(a *Association, id uint16) *Stream {
	s := &Stream{
		association: a,
		streamID:    id,
		reassembly:  &reassemblyQueue{si: id},
	}
	s.readNotifier = sync.NewCond(&s.readMu)
	return s
}

// StreamIdentifier returns the stream's id.
func (s *Stream) StreamIdentifier() uint16 { return s.streamID }

// SetReliabilityParams configures ordering and partial reliability.
// Must be set before the first write.
func (s *Stream) SetReliabilityParams(unordered bool, relType byte, relVal uint32) {
	s.association.mu.Lock()
	defer s.association.mu.Unlock()
	s.unordered = unordered
	s.reliabilityType = relType
	s.reliabilityValue = relVal
}

// WriteSCTP fragments and queues one user message.
func (s *Stream) WriteSCTP(p []byte, ppi PayloadProtocolIdentifier) (int, error) {
	a := s.association
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateEstablished && a.state != stateCookieEchoed && a.state != stateCookieWait {
		return 0, ErrAssociationClosed
	}
	if s.resetPending {
		return 0, errStreamReset
	}

	chunks := s.fragment(p, ppi)
	s.bufferedAmount += uint64(len(p))
	a.queueData(chunks)
	return len(p), nil
}

// fragment splits a message across DATA chunks with B/E flags. Called
// with the association lock held.
func (s *Stream) fragment(p []byte, ppi PayloadProtocolIdentifier) []*chunkPayloadData {
	ssn := s.nextSSN
	if !s.unordered {
		s.nextSSN++
	}

	var chunks []*chunkPayloadData
	remaining := p
	first := true
	for {
		n := len(remaining)
		if n > int(maxPayloadSize) {
			n = int(maxPayloadSize)
		}
		userData := make([]byte, n)
		copy(userData, remaining[:n])
		remaining = remaining[n:]

		chunks = append(chunks, &chunkPayloadData{
			streamIdentifier:     s.streamID,
			streamSequenceNumber: ssn,
			payloadType:          ppi,
			userData:             userData,
			unordered:            s.unordered,
			beginningFragment:    first,
			endingFragment:       len(remaining) == 0,
		})
		first = false
		if len(remaining) == 0 {
			return chunks
		}
	}
}

// ReadSCTP blocks until a complete message is deliverable and returns
// its payload protocol identifier.
func (s *Stream) ReadSCTP(p []byte) (int, PayloadProtocolIdentifier, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		s.association.mu.Lock()
		msg := s.reassembly.pop()
		s.association.mu.Unlock()

		if msg != nil {
			if len(p) < len(msg.data) {
				return 0, 0, errShortBuffer
			}
			return copy(p, msg.data), msg.ppi, nil
		}
		if s.readErr != nil {
			return 0, 0, s.readErr
		}
		s.readNotifier.Wait()
	}
}

// Read reads the next message payload.
func (s *Stream) Read(p []byte) (int, error) {
	n, _, err := s.ReadSCTP(p)
	return n, err
}

// Write queues p with the binary PPI.
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteSCTP(p, PayloadTypeWebRTCBinary)
}

// notifyReadable wakes blocked readers after inbound delivery.
func (s *Stream) notifyReadable() {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	s.readNotifier.Broadcast()
}

// BufferedAmount returns bytes queued but not yet acknowledged.
func (s *Stream) BufferedAmount() uint64 {
	s.association.mu.Lock()
	defer s.association.mu.Unlock()
	return s.bufferedAmount
}

// BufferedAmountLowThreshold returns the configured threshold.
func (s *Stream) BufferedAmountLowThreshold() uint64 {
	s.association.mu.Lock()
	defer s.association.mu.Unlock()
	return s.bufferedAmountLowThreshold
}

// SetBufferedAmountLowThreshold configures the backpressure callback
// threshold.
func (s *Stream) SetBufferedAmountLowThreshold(th uint64) {
	s.association.mu.Lock()
	defer s.association.mu.Unlock()
	s.bufferedAmountLowThreshold = th
}

// OnBufferedAmountLow registers the backpressure callback.
func (s *Stream) OnBufferedAmountLow(f func()) {
	s.association.mu.Lock()
	defer s.association.mu.Unlock()
	s.onBufferedAmountLowHandler = f
}

// onBufferReleased runs with the association lock held.
func (s *Stream) onBufferReleased(bytesAcked int) {
	if s.bufferedAmount == 0 {
		return
	}
	from := s.bufferedAmount
	if uint64(bytesAcked) >= s.bufferedAmount {
		s.bufferedAmount = 0
	} else {
		s.bufferedAmount -= uint64(bytesAcked)
	}
	if from > s.bufferedAmountLowThreshold && s.bufferedAmount <= s.bufferedAmountLowThreshold {
		if f := s.onBufferedAmountLowHandler; f != nil {
			go f()
		}
	}
}

// OnReset registers a callback for a peer-initiated stream reset.
func (s *Stream) OnReset(f func()) {
	s.association.mu.Lock()
	defer s.association.mu.Unlock()
	s.onResetHandler = f
}

// onIncomingReset runs with the association lock held.
func (s *Stream) onIncomingReset() {
	s.reassembly = &reassemblyQueue{si: s.streamID}
	if f := s.onResetHandler; f != nil {
		go f()
	}
	s.closeReadSide(errStreamReset)
}

// onOutgoingResetAck runs with the association lock held.
func (s *Stream) onOutgoingResetAck() {
	s.closeReadSide(io.EOF)
}

func (s *Stream) closeReadSide(err error) {
	go func() {
		s.readMu.Lock()
		if s.readErr == nil {
			s.readErr = err
		}
		s.readNotifier.Broadcast()
		s.readMu.Unlock()
	}()
}

func (s *Stream) closeWithError(err error) {
	if err == nil {
		err = io.EOF
	}
	s.readMu.Lock()
	if s.readErr == nil {
		s.readErr = err
	}
	s.readNotifier.Broadcast()
	s.readMu.Unlock()
}

// Close resets the outgoing side of the stream via RE-CONFIG (RFC
// 6525), resending the request until the peer responds, and closes the
// local read side at once; it does not wait for the peer's response.
func (s *Stream) Close() error {
	a := s.association
	a.mu.Lock()
	if !s.resetPending && a.state == stateEstablished {
		s.resetPending = true
		a.resetOutgoingStream(s.streamID)
	}
	delete(a.streams, s.streamID)
	a.mu.Unlock()

	s.closeWithError(io.EOF)
	return nil
}

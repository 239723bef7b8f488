package webrtc

import (
	"sync"
	"sync/atomic"
)

// RTPTransceiver pairs one sender with one receiver under a shared
// mid. The mid is assigned at first negotiation and immutable
// afterwards.
type RTPTransceiver struct {
	mu sync.RWMutex

	mid       string
	kind      RTPCodecType
	direction RTPTransceiverDirection

	sender   *RTPSender
	receiver *RTPReceiver

	// codecs and extensions agreed at the last negotiation
	negotiatedCodecs     []RTPCodecParameters
	negotiatedExtensions []RTPHeaderExtensionParameter

	stopped atomic.Bool
}

// RTPTransceiverInit carries options for AddTransceiverFromKind.
type RTPTransceiverInit struct {
	Direction RTPTransceiverDirection
}

func newRTPTransceiver(kind RTPCodecType, direction RTPTransceiverDirection, sender *RTPSender, receiver *RTPReceiver) *RTPTransceiver {
	if direction == RTPTransceiverDirectionUnknown {
		direction = RTPTransceiverDirectionSendrecv
	}
	return &RTPTransceiver{
		kind:      kind,
		direction: direction,
		sender:    sender,
		receiver:  receiver,
	}
}

// Mid returns the assigned mid, empty before first negotiation.
func (t *RTPTransceiver) Mid() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mid
}

// setMid assigns the mid once.
func (t *RTPTransceiver) setMid(mid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mid == "" {
		t.mid = mid
	}
}

// Kind returns the transceiver's media kind.
func (t *RTPTransceiver) Kind() RTPCodecType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.kind
}

// Direction returns the current direction.
func (t *RTPTransceiver) Direction() RTPTransceiverDirection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.direction
}

func (t *RTPTransceiver) setDirection(d RTPTransceiverDirection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.direction = d
}

// Sender returns the sender.
func (t *RTPTransceiver) Sender() *RTPSender {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sender
}

// Receiver returns the receiver.
func (t *RTPTransceiver) Receiver() *RTPReceiver {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.receiver
}

func (t *RTPTransceiver) setNegotiatedCodecs(codecs []RTPCodecParameters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.negotiatedCodecs = codecs
}

func (t *RTPTransceiver) getNegotiatedCodecs() []RTPCodecParameters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RTPCodecParameters{}, t.negotiatedCodecs...)
}

// Stop ends both directions of the transceiver.
func (t *RTPTransceiver) Stop() error {
	if t.stopped.Swap(true) {
		return nil
	}
	t.mu.RLock()
	sender, receiver := t.sender, t.receiver
	t.mu.RUnlock()
	if sender != nil {
		if err := sender.Stop(); err != nil {
			return err
		}
	}
	if receiver != nil {
		return receiver.Stop()
	}
	return nil
}

package webrtc

import (
	"sync"

	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// TrackRemote is an incoming media stream exposed by an RTPReceiver.
type TrackRemote struct {
	mu sync.RWMutex

	id       string
	streamID string
	rid      string
	kind     RTPCodecType

	ssrc        uint32
	payloadType PayloadType
	codec       RTPCodecParameters
	params      RTPParameters

	receiver *RTPReceiver
}

func newTrackRemote(kind RTPCodecType, ssrc uint32, rid string, receiver *RTPReceiver) *TrackRemote {
	return &TrackRemote{
		kind:     kind,
		ssrc:     ssrc,
		rid:      rid,
		receiver: receiver,
	}
}

// ID returns the track id, learned from the msid attribute.
func (t *TrackRemote) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// StreamID returns the stream group id.
func (t *TrackRemote) StreamID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.streamID
}

// RID returns the simulcast layer id, empty for non-simulcast.
func (t *TrackRemote) RID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rid
}

// Kind returns audio or video.
func (t *TrackRemote) Kind() RTPCodecType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.kind
}

// SSRC returns the stream's SSRC.
func (t *TrackRemote) SSRC() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ssrc
}

// PayloadType returns the negotiated payload type.
func (t *TrackRemote) PayloadType() PayloadType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.payloadType
}

// Codec returns the codec the stream carries.
func (t *TrackRemote) Codec() RTPCodecParameters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.codec
}

// Read blocks until the next packet arrives for this track.
func (t *TrackRemote) Read(b []byte) (int, error) {
	t.mu.RLock()
	receiver := t.receiver
	ssrc := t.ssrc
	t.mu.RUnlock()
	return receiver.readTrack(ssrc, b)
}

// ReadRTP reads and parses the next packet.
func (t *TrackRemote) ReadRTP() (*rtp.Packet, error) {
	b := make([]byte, 8192)
	n, err := t.Read(b)
	if err != nil {
		return nil, err
	}
	p := &rtp.Packet{}
	if err := p.Unmarshal(b[:n]); err != nil {
		return nil, err
	}

	// first packets resolve the payload type to a codec
	t.mu.Lock()
	if t.payloadType == 0 {
		t.payloadType = PayloadType(p.PayloadType)
		if codec, err := t.receiver.codecByPayloadType(t.payloadType); err == nil {
			t.codec = codec
		}
	}
	t.mu.Unlock()
	return p, nil
}

// RequestKeyFrame asks the sender for a keyframe through PLI.
func (t *TrackRemote) RequestKeyFrame() error {
	t.mu.RLock()
	receiver := t.receiver
	ssrc := t.ssrc
	t.mu.RUnlock()
	return receiver.sendPLI(ssrc)
}

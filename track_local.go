package webrtc

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ridgewood-io/webrtc/pkg/media"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
	"github.com/ridgewood-io/webrtc/pkg/rtp/codecs"
)

// TrackLocalWriter is where a bound track writes its RTP.
type TrackLocalWriter interface {
	WriteRTP(header *rtp.Header, payload []byte) (int, error)
}

// TrackLocalContext is the negotiated parameters a track is bound
// with.
type TrackLocalContext struct {
	id          string
	params      RTPParameters
	ssrc        uint32
	writeStream TrackLocalWriter
}

// CodecParameters returns the negotiated codecs.
func (t *TrackLocalContext) CodecParameters() []RTPCodecParameters {
	return t.params.Codecs
}

// SSRC returns the stream's SSRC.
func (t *TrackLocalContext) SSRC() uint32 { return t.ssrc }

// WriteStream returns the transport-bound writer.
func (t *TrackLocalContext) WriteStream() TrackLocalWriter { return t.writeStream }

// TrackLocal is an outgoing media track owned by an RTPSender.
type TrackLocal interface {
	// Bind is called by the sender once negotiation settles the codec
	// and SSRC; the returned parameters are what the track will send.
	Bind(TrackLocalContext) (RTPCodecParameters, error)
	Unbind(TrackLocalContext) error

	ID() string
	StreamID() string
	Kind() RTPCodecType
}

var errTrackBound = errors.New("webrtc: track already bound to a sender")

// TrackLocalStaticRTP is a track the application feeds pre-packetized
// RTP.
type TrackLocalStaticRTP struct {
	mu       sync.RWMutex
	id       string
	streamID string
	codec    RTPCodecCapability

	bindings []*TrackLocalContext
}

// NewTrackLocalStaticRTP builds an RTP pass-through track.
func NewTrackLocalStaticRTP(codec RTPCodecCapability, id, streamID string) (*TrackLocalStaticRTP, error) {
	return &TrackLocalStaticRTP{id: id, streamID: streamID, codec: codec}, nil
}

// ID returns the track id.
func (t *TrackLocalStaticRTP) ID() string { return t.id }

// StreamID returns the group this track belongs to.
func (t *TrackLocalStaticRTP) StreamID() string { return t.streamID }

// Kind is derived from the codec's mime type.
func (t *TrackLocalStaticRTP) Kind() RTPCodecType {
	switch {
	case strings.HasPrefix(t.codec.MimeType, "audio/"):
		return RTPCodecTypeAudio
	case strings.HasPrefix(t.codec.MimeType, "video/"):
		return RTPCodecTypeVideo
	}
	return RTPCodecTypeUnknown
}

// Codec returns the track's codec.
func (t *TrackLocalStaticRTP) Codec() RTPCodecCapability { return t.codec }

// Bind implements TrackLocal.
func (t *TrackLocalStaticRTP) Bind(ctx TrackLocalContext) (RTPCodecParameters, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, params := range ctx.CodecParameters() {
		if codecMatches(params.RTPCodecCapability, t.codec) {
			t.bindings = append(t.bindings, &ctx)
			return params, nil
		}
	}
	return RTPCodecParameters{}, ErrUnsupportedCodec
}

// Unbind implements TrackLocal.
func (t *TrackLocalStaticRTP) Unbind(ctx TrackLocalContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, b := range t.bindings {
		if b.id == ctx.id {
			t.bindings = append(t.bindings[:i], t.bindings[i+1:]...)
			return nil
		}
	}
	return ErrSenderNotStarted
}

// WriteRTP writes one packet to every binding, rewriting SSRC to the
// negotiated value.
func (t *TrackLocalStaticRTP) WriteRTP(p *rtp.Packet) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var firstErr error
	for _, b := range t.bindings {
		header := p.Header.Clone()
		header.SSRC = b.ssrc
		if _, err := b.writeStream.WriteRTP(&header, p.Payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TrackLocalStaticSample is a track fed codec frames; it packetizes
// them internally.
type TrackLocalStaticSample struct {
	rtpTrack *TrackLocalStaticRTP

	mu         sync.Mutex
	packetizer rtp.Packetizer
	clockRate  uint32
}

// NewTrackLocalStaticSample builds a sample-fed track.
func NewTrackLocalStaticSample(codec RTPCodecCapability, id, streamID string) (*TrackLocalStaticSample, error) {
	rtpTrack, err := NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	return &TrackLocalStaticSample{rtpTrack: rtpTrack}, nil
}

// ID returns the track id.
func (t *TrackLocalStaticSample) ID() string { return t.rtpTrack.ID() }

// StreamID returns the group this track belongs to.
func (t *TrackLocalStaticSample) StreamID() string { return t.rtpTrack.StreamID() }

// Kind returns audio or video.
func (t *TrackLocalStaticSample) Kind() RTPCodecType { return t.rtpTrack.Kind() }

// Codec returns the track's codec.
func (t *TrackLocalStaticSample) Codec() RTPCodecCapability { return t.rtpTrack.Codec() }

// Bind implements TrackLocal, constructing the payloader for the
// negotiated codec.
func (t *TrackLocalStaticSample) Bind(ctx TrackLocalContext) (RTPCodecParameters, error) {
	params, err := t.rtpTrack.Bind(ctx)
	if err != nil {
		return params, err
	}

	payloader, err := payloaderForCodec(params.RTPCodecCapability)
	if err != nil {
		_ = t.rtpTrack.Unbind(ctx)
		return params, err
	}

	t.mu.Lock()
	t.packetizer = rtp.NewPacketizer(1200,
		uint8(params.PayloadType), //nolint:gosec
		ctx.SSRC(), payloader, rtp.NewRandomSequencer(), params.ClockRate)
	t.clockRate = params.ClockRate
	t.mu.Unlock()
	return params, nil
}

// Unbind implements TrackLocal.
func (t *TrackLocalStaticSample) Unbind(ctx TrackLocalContext) error {
	return t.rtpTrack.Unbind(ctx)
}

// WriteSample packetizes and sends one frame.
func (t *TrackLocalStaticSample) WriteSample(s media.Sample) error {
	t.mu.Lock()
	packetizer := t.packetizer
	clockRate := t.clockRate
	t.mu.Unlock()
	if packetizer == nil {
		return ErrSenderNotStarted
	}

	samples := uint32(s.Duration.Seconds() * float64(clockRate))
	for _, p := range packetizer.Packetize(s.Data, samples) {
		if err := t.rtpTrack.WriteRTP(p); err != nil {
			return err
		}
	}
	return nil
}

// payloaderForCodec selects the payloader from the codecs package.
func payloaderForCodec(codec RTPCodecCapability) (rtp.Payloader, error) {
	switch {
	case strings.EqualFold(codec.MimeType, MimeTypeOpus):
		return &codecs.OpusPayloader{}, nil
	case strings.EqualFold(codec.MimeType, MimeTypeG722):
		return &codecs.G722Payloader{}, nil
	case strings.EqualFold(codec.MimeType, MimeTypeVP8):
		return &codecs.VP8Payloader{}, nil
	case strings.EqualFold(codec.MimeType, MimeTypeH264):
		return &codecs.H264Payloader{}, nil
	}
	return nil, ErrUnsupportedCodec
}

package webrtc

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridgewood-io/webrtc/pkg/interceptor"
	"github.com/ridgewood-io/webrtc/pkg/ntp"
	"github.com/ridgewood-io/webrtc/pkg/rtcp"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

const senderReportInterval = 5 * time.Second

// RTPSender transmits one outgoing track: it encrypts media through
// the SRTP session, answers NACKs with RTX retransmissions, and emits
// sender reports on the RTCP interval.
type RTPSender struct {
	mu sync.RWMutex

	id        string
	track     TrackLocal
	transport *DTLSTransport
	api       *API

	ssrc           uint32
	rtxSSRC        uint32
	kind           RTPCodecType
	parameters     RTPSendParameters
	boundCodec     RTPCodecParameters
	context        TrackLocalContext

	nackResponder *interceptor.NackResponder

	// stats for sender reports
	packetCount uint32
	octetCount  uint32
	lastRTPTime uint32
	clockRate   uint32

	started bool
	closed  chan struct{}
	once    sync.Once
}

func (api *API) newRTPSender(track TrackLocal, transport *DTLSTransport) (*RTPSender, error) {
	if track == nil {
		return nil, ErrRTPSenderTrackNil
	}
	return &RTPSender{
		id:        uuid.NewString(),
		track:     track,
		transport: transport,
		api:       api,
		kind:      track.Kind(),
		ssrc:      randomSSRC(),
		rtxSSRC:   randomSSRC(),
		closed:    make(chan struct{}),
	}, nil
}

// Track returns the attached track.
func (s *RTPSender) Track() TrackLocal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track
}

// SSRC returns the sender's primary SSRC, advertised in a=ssrc.
func (s *RTPSender) SSRC() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ssrc
}

// rtxSSRCValue returns the repair stream SSRC for the FID group.
func (s *RTPSender) rtxSSRCValue() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rtxSSRC
}

// Send binds the track to the transport with the negotiated
// parameters and starts the RTCP machinery.
func (s *RTPSender) Send(parameters RTPSendParameters) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.parameters = parameters
	s.mu.Unlock()

	srtpSession := s.transport.getSRTPSession()
	if srtpSession == nil {
		return ErrConnectionClosed
	}
	writeStream, err := srtpSession.OpenWriteStream()
	if err != nil {
		return err
	}

	// RTX payload type: the codec registered with apt pointing at the
	// bound codec
	var rtxPayloadType PayloadType
	for _, c := range parameters.Codecs {
		if apt, ok := aptOf(c); ok {
			for _, primary := range parameters.Codecs {
				if primary.PayloadType == apt {
					rtxPayloadType = c.PayloadType
				}
			}
		}
	}

	responder, err := interceptor.NewNackResponder(s.rtxSSRC, uint8(rtxPayloadType)) //nolint:gosec
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.nackResponder = responder
	s.context = TrackLocalContext{
		id:          s.id,
		params:      parameters.RTPParameters,
		ssrc:        s.ssrc,
		writeStream: &senderWriteStream{sender: s, inner: writeStream},
	}
	track := s.track
	ctx := s.context
	s.mu.Unlock()

	codec, err := track.Bind(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.boundCodec = codec
	s.clockRate = codec.ClockRate
	s.mu.Unlock()

	go s.rtcpLoop()
	return nil
}

func aptOf(c RTPCodecParameters) (PayloadType, bool) {
	v, ok := parseApt(c.SDPFmtpLine)
	if !ok {
		return 0, false
	}
	return v, true
}

func parseApt(fmtpLine string) (PayloadType, bool) {
	const prefix = "apt="
	if len(fmtpLine) <= len(prefix) || fmtpLine[:len(prefix)] != prefix {
		return 0, false
	}
	v, err := atoi(fmtpLine[len(prefix):])
	if err != nil {
		return 0, false
	}
	return PayloadType(v), true //nolint:gosec
}

// senderWriteStream observes outgoing packets for the send history and
// sender report statistics before encryption.
type senderWriteStream struct {
	sender *RTPSender
	inner  TrackLocalWriter
}

func (w *senderWriteStream) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	w.sender.observeOutbound(header, payload)
	return w.inner.WriteRTP(header, payload)
}

func (s *RTPSender) observeOutbound(header *rtp.Header, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetCount++
	s.octetCount += uint32(len(payload)) //nolint:gosec
	s.lastRTPTime = header.Timestamp
	if s.nackResponder != nil {
		s.nackResponder.Remember(&rtp.Packet{Header: header.Clone(), Payload: append([]byte{}, payload...)})
	}
}

// rtcpLoop reads inbound RTCP for this sender's SSRC and emits sender
// reports every five seconds.
func (s *RTPSender) rtcpLoop() {
	srtcpSession := s.transport.getSRTCPSession()
	if srtcpSession == nil {
		return
	}
	readStream, err := srtcpSession.OpenReadStream(s.ssrc)
	if err != nil {
		return
	}
	writeStream, err := srtcpSession.OpenWriteStream()
	if err != nil {
		return
	}

	go s.inboundRTCPLoop(readStream)

	ticker := time.NewTicker(senderReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case now := <-ticker.C:
			s.mu.RLock()
			sr := &rtcp.SenderReport{
				SSRC:        s.ssrc,
				NTPTime:     uint64(ntp.NewTime64(now)),
				RTPTime:     s.lastRTPTime,
				PacketCount: s.packetCount,
				OctetCount:  s.octetCount,
			}
			cname := s.id
			s.mu.RUnlock()

			compound := rtcp.CompoundPacket{sr, &rtcp.SourceDescription{
				Chunks: []rtcp.SourceDescriptionChunk{{
					Source: sr.SSRC,
					Items:  []rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: cname}},
				}},
			}}
			if raw, err := compound.Marshal(); err == nil {
				_, _ = writeStream.Write(raw)
			}
		}
	}
}

type srtcpReadStream interface {
	Read([]byte) (int, error)
}

// inboundRTCPLoop answers NACKs with retransmissions. Other feedback,
// PLI and FIR included, is read and dropped; ReadRTCP does not return it.
func (s *RTPSender) inboundRTCPLoop(stream srtcpReadStream) {
	srtpSession := s.transport.getSRTPSession()
	if srtpSession == nil {
		return
	}
	writeStream, err := srtpSession.OpenWriteStream()
	if err != nil {
		return
	}

	buf := make([]byte, 8192)
	for {
		n, err := stream.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, p := range packets {
			if nack, ok := p.(*rtcp.TransportLayerNack); ok {
				s.mu.RLock()
				responder := s.nackResponder
				s.mu.RUnlock()
				if responder == nil {
					continue
				}
				for _, retransmission := range responder.Resend(nack) {
					if raw, err := retransmission.Marshal(); err == nil {
						_, _ = writeStream.Write(raw)
					}
				}
			}
		}
	}
}

// ReadRTCP is retained for API compatibility; feedback handling runs
// internally.
func (s *RTPSender) ReadRTCP() ([]rtcp.Packet, error) {
	<-s.closed
	return nil, ErrConnectionClosed
}

// Stop unbinds the track and ends the RTCP machinery.
func (s *RTPSender) Stop() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		track, ctx, started := s.track, s.context, s.started
		s.mu.Unlock()
		if started && track != nil {
			err = track.Unbind(ctx)
		}
	})
	return err
}

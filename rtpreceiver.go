package webrtc

import (
	"sync"
	"time"

	"github.com/ridgewood-io/webrtc/internal/srtp"
	"github.com/ridgewood-io/webrtc/pkg/interceptor"
	"github.com/ridgewood-io/webrtc/pkg/rtcp"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

const (
	receiverReportInterval = time.Second
	nackCheckInterval      = 100 * time.Millisecond
	twccFeedbackInterval   = 100 * time.Millisecond
)

// RTPReceiver receives one media section's inbound streams: primary
// SSRCs, their RTX repair streams and simulcast layers. It decrypts
// through SRTP, tracks loss for receiver reports and NACKs, and feeds
// the transport-wide congestion controller.
type RTPReceiver struct {
	mu sync.RWMutex

	kind      RTPCodecType
	transport *DTLSTransport
	api       *API

	parameters RTPReceiveParameters
	tracks     []*TrackRemote

	streams map[uint32]*receiverStream

	// extension ids resolved from the negotiated parameters
	twccID uint8
	midID  uint8
	ridID  uint8

	twcc      *interceptor.TWCCRecorder
	localSSRC uint32

	started bool
	closed  chan struct{}
	once    sync.Once
}

type receiverStream struct {
	readStream *srtp.ReadStreamSRTP
	nackGen    *interceptor.NackGenerator

	// receiver report state
	baseSeq      uint16
	hasBase      bool
	lastSeq      uint16
	cycles       uint16
	received     uint32
	expectedPrior uint32
	receivedPrior uint32
	jitter       float64
	lastTransit  int64
	lastSRNTP    uint32
	lastSRAt     time.Time
	clockRate    uint32
}

func (api *API) newRTPReceiver(kind RTPCodecType, transport *DTLSTransport) *RTPReceiver {
	return &RTPReceiver{
		kind:      kind,
		transport: transport,
		api:       api,
		streams:   map[uint32]*receiverStream{},
		localSSRC: randomSSRC(),
		closed:    make(chan struct{}),
	}
}

// Kind returns audio or video.
func (r *RTPReceiver) Kind() RTPCodecType { return r.kind }

// Tracks lists the receiver's tracks, one per encoding.
func (r *RTPReceiver) Tracks() []*TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*TrackRemote{}, r.tracks...)
}

// Track returns the primary track.
func (r *RTPReceiver) Track() *TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tracks) == 0 {
		return nil
	}
	return r.tracks[0]
}

// Receive begins reception with the negotiated parameters.
func (r *RTPReceiver) Receive(parameters RTPReceiveParameters) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.parameters = parameters

	for _, ext := range parameters.HeaderExtensions {
		switch ext.URI {
		case rtp.ExtensionURITransportCC:
			r.twccID = uint8(ext.ID) //nolint:gosec
		case rtp.ExtensionURIMID:
			r.midID = uint8(ext.ID) //nolint:gosec
		case rtp.ExtensionURIRID:
			r.ridID = uint8(ext.ID) //nolint:gosec
		}
	}

	for _, encoding := range parameters.Encodings {
		track := newTrackRemote(r.kind, encoding.SSRC, encoding.RID, r)
		r.tracks = append(r.tracks, track)
	}
	hasTWCC := r.twccID != 0
	localSSRC := r.localSSRC
	r.mu.Unlock()

	if hasTWCC {
		mediaSSRC := uint32(0)
		if len(parameters.Encodings) > 0 {
			mediaSSRC = parameters.Encodings[0].SSRC
		}
		r.mu.Lock()
		r.twcc = interceptor.NewTWCCRecorder(localSSRC, mediaSSRC)
		r.mu.Unlock()
	}

	var clockRate uint32
	if len(parameters.Codecs) > 0 {
		clockRate = parameters.Codecs[0].ClockRate
	}
	for _, encoding := range parameters.Encodings {
		if encoding.SSRC != 0 {
			if err := r.openStream(encoding.SSRC, clockRate); err != nil {
				return err
			}
		}
		if encoding.RTXSSRC != 0 {
			if err := r.openStream(encoding.RTXSSRC, clockRate); err != nil {
				return err
			}
		}
	}

	go r.rtcpLoop()
	return nil
}

// openStream pins the SRTP read stream for a signaled SSRC.
func (r *RTPReceiver) openStream(ssrc uint32, clockRate uint32) error {
	srtpSession := r.transport.getSRTPSession()
	if srtpSession == nil {
		return ErrConnectionClosed
	}
	readStream, err := srtpSession.OpenReadStream(ssrc)
	if err != nil {
		return err
	}

	nackGen, err := interceptor.NewNackGenerator(r.localSSRC, ssrc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.streams[ssrc] = &receiverStream{readStream: readStream, nackGen: nackGen, clockRate: clockRate}
	r.mu.Unlock()
	return nil
}

// readTrack reads the next packet for an SSRC, updating loss and
// jitter state and recording TWCC arrival.
func (r *RTPReceiver) readTrack(ssrc uint32, b []byte) (int, error) {
	r.mu.RLock()
	stream := r.streams[ssrc]
	twccID := r.twccID
	twcc := r.twcc
	r.mu.RUnlock()
	if stream == nil {
		return 0, ErrSenderNotStarted
	}

	n, err := stream.readStream.Read(b)
	if err != nil {
		return 0, err
	}

	var header rtp.Header
	if _, err := header.Unmarshal(b[:n]); err == nil {
		now := time.Now()
		r.mu.Lock()
		stream.observe(&header, now)
		r.mu.Unlock()

		if twcc != nil && twccID != 0 {
			if ext := header.GetExtension(twccID); ext != nil {
				var tcc rtp.TransportCCExtension
				if err := tcc.Unmarshal(ext); err == nil {
					twcc.Record(tcc.TransportSequence, now)
				}
			}
		}
	}
	return n, nil
}

// observe runs with the receiver lock held.
func (s *receiverStream) observe(header *rtp.Header, now time.Time) {
	if !s.hasBase {
		s.hasBase = true
		s.baseSeq = header.SequenceNumber
		s.lastSeq = header.SequenceNumber - 1
	}
	s.received++
	if header.SequenceNumber < s.lastSeq && s.lastSeq-header.SequenceNumber > 1<<15 {
		s.cycles++
	}
	if diff := header.SequenceNumber - s.lastSeq; diff > 0 && diff < 1<<15 {
		s.lastSeq = header.SequenceNumber
	}
	s.nackGen.MarkReceived(header.SequenceNumber)

	// interarrival jitter, RFC 3550 Section 6.4.1, in timestamp units
	if s.clockRate > 0 {
		arrival := int64(now.UnixNano()) * int64(s.clockRate) / int64(time.Second)
		transit := arrival - int64(header.Timestamp)
		if s.lastTransit != 0 {
			d := transit - s.lastTransit
			if d < 0 {
				d = -d
			}
			s.jitter += (float64(d) - s.jitter) / 16
		}
		s.lastTransit = transit
	}
}

// rtcpLoop emits receiver reports, NACKs and TWCC feedback and
// consumes inbound sender reports.
func (r *RTPReceiver) rtcpLoop() { //nolint:gocognit
	srtcpSession := r.transport.getSRTCPSession()
	if srtcpSession == nil {
		return
	}
	writeStream, err := srtcpSession.OpenWriteStream()
	if err != nil {
		return
	}

	go r.inboundRTCPLoop(srtcpSession)

	reportTicker := time.NewTicker(receiverReportInterval)
	nackTicker := time.NewTicker(nackCheckInterval)
	twccTicker := time.NewTicker(twccFeedbackInterval)
	defer func() {
		reportTicker.Stop()
		nackTicker.Stop()
		twccTicker.Stop()
	}()

	for {
		select {
		case <-r.closed:
			return

		case <-nackTicker.C:
			r.mu.RLock()
			var nacks []rtcp.Packet
			for _, stream := range r.streams {
				if nack := stream.nackGen.Pending(); nack != nil {
					nacks = append(nacks, nack)
				}
			}
			localSSRC := r.localSSRC
			r.mu.RUnlock()
			if len(nacks) > 0 {
				r.sendFeedback(writeStream, localSSRC, nacks)
			}

		case <-twccTicker.C:
			r.mu.RLock()
			twcc := r.twcc
			localSSRC := r.localSSRC
			r.mu.RUnlock()
			if twcc == nil {
				continue
			}
			if fb := twcc.BuildFeedback(); fb != nil {
				r.sendFeedback(writeStream, localSSRC, []rtcp.Packet{fb})
			}

		case <-reportTicker.C:
			r.mu.Lock()
			var reports []rtcp.ReceptionReport
			for ssrc, stream := range r.streams {
				if stream.received == 0 {
					continue
				}
				reports = append(reports, stream.buildReport(ssrc))
			}
			localSSRC := r.localSSRC
			r.mu.Unlock()

			rr := &rtcp.ReceiverReport{SSRC: localSSRC, Reports: reports}
			compound := rtcp.CompoundPacket{rr, &rtcp.SourceDescription{
				Chunks: []rtcp.SourceDescriptionChunk{{
					Source: localSSRC,
					Items:  []rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: "ridgewood-recv"}},
				}},
			}}
			if raw, err := compound.Marshal(); err == nil {
				_, _ = writeStream.Write(raw)
			}
		}
	}
}

// sendFeedback prepends the mandatory RR+SDES to feedback packets.
func (r *RTPReceiver) sendFeedback(writeStream *srtp.WriteStreamSRTCP, localSSRC uint32, feedback []rtcp.Packet) {
	packets := append([]rtcp.Packet{
		&rtcp.ReceiverReport{SSRC: localSSRC},
		&rtcp.SourceDescription{
			Chunks: []rtcp.SourceDescriptionChunk{{
				Source: localSSRC,
				Items:  []rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: "ridgewood-recv"}},
			}},
		},
	}, feedback...)
	if raw, err := rtcp.Marshal(packets); err == nil {
		_, _ = writeStream.Write(raw)
	}
}

// buildReport runs with the receiver lock held.
func (s *receiverStream) buildReport(ssrc uint32) rtcp.ReceptionReport {
	extended := uint32(s.cycles)<<16 | uint32(s.lastSeq)
	expected := extended - uint32(s.baseSeq) + 1

	expectedInterval := expected - s.expectedPrior
	receivedInterval := s.received - s.receivedPrior
	s.expectedPrior = expected
	s.receivedPrior = s.received

	var fractionLost uint8
	if expectedInterval > 0 && expectedInterval > receivedInterval {
		fractionLost = uint8((expectedInterval - receivedInterval) * 256 / expectedInterval) //nolint:gosec
	}
	var cumulativeLost uint32
	if expected > s.received {
		cumulativeLost = expected - s.received
	}

	report := rtcp.ReceptionReport{
		SSRC:               ssrc,
		FractionLost:       fractionLost,
		TotalLost:          cumulativeLost & 0xFFFFFF,
		LastSequenceNumber: extended,
		Jitter:             uint32(s.jitter),
		LastSenderReport:   s.lastSRNTP,
	}
	if !s.lastSRAt.IsZero() {
		report.Delay = uint32(time.Since(s.lastSRAt).Seconds() * 65536) //nolint:gosec
	}
	return report
}

// inboundRTCPLoop consumes the peer's sender reports for RR timing.
func (r *RTPReceiver) inboundRTCPLoop(session *srtp.SessionSRTCP) {
	for {
		stream, _, err := session.AcceptStream()
		if err != nil {
			return
		}
		go func() {
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
					if sr, ok := p.(*rtcp.SenderReport); ok {
						r.mu.Lock()
						if s, ok := r.streams[sr.SSRC]; ok {
							s.lastSRNTP = uint32(sr.NTPTime >> 16) //nolint:gosec
							s.lastSRAt = time.Now()
						}
						r.mu.Unlock()
					}
				}
			}
		}()
	}
}

// sendPLI issues a picture loss indication for an SSRC.
func (r *RTPReceiver) sendPLI(mediaSSRC uint32) error {
	srtcpSession := r.transport.getSRTCPSession()
	if srtcpSession == nil {
		return ErrConnectionClosed
	}
	writeStream, err := srtcpSession.OpenWriteStream()
	if err != nil {
		return err
	}
	r.mu.RLock()
	localSSRC := r.localSSRC
	r.mu.RUnlock()
	r.sendFeedback(writeStream, localSSRC, []rtcp.Packet{
		&rtcp.PictureLossIndication{SenderSSRC: localSSRC, MediaSSRC: mediaSSRC},
	})
	return nil
}

// codecByPayloadType resolves a payload type against the negotiated
// codecs.
func (r *RTPReceiver) codecByPayloadType(pt PayloadType) (RTPCodecParameters, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.parameters.Codecs {
		if c.PayloadType == pt {
			return c, nil
		}
	}
	return RTPCodecParameters{}, ErrCodecNotFound
}

// bindUnsignaledSSRC attaches a stream learned from the RTP MID/RID
// extensions rather than a=ssrc lines (BUNDLE demux of simulcast).
func (r *RTPReceiver) bindUnsignaledSSRC(ssrc uint32, rid string, readStream *srtp.ReadStreamSRTP) *TrackRemote {
	nackGen, err := interceptor.NewNackGenerator(r.localSSRC, ssrc)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[ssrc] = &receiverStream{readStream: readStream, nackGen: nackGen}

	// a track placeholder negotiated by RID claims the stream
	for _, t := range r.tracks {
		if t.RID() != "" && t.RID() == rid && t.SSRC() == 0 {
			t.mu.Lock()
			t.ssrc = ssrc
			t.mu.Unlock()
			return t
		}
	}
	track := newTrackRemote(r.kind, ssrc, rid, r)
	r.tracks = append(r.tracks, track)
	return track
}

// Stop ends reception.
func (r *RTPReceiver) Stop() error {
	r.once.Do(func() {
		close(r.closed)
		r.mu.Lock()
		for _, s := range r.streams {
			_ = s.readStream.Close()
		}
		r.mu.Unlock()
	})
	return nil
}

// Package webrtc implements a WebRTC endpoint's connection plane: ICE,
// DTLS, SRTP, RTP/RTCP, SCTP data channels and the PeerConnection
// negotiation machinery that ties them to SDP offer/answer.
package webrtc

import (
	"strings"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/sdp/v3"

	"github.com/ridgewood-io/webrtc/internal/ice"
	"github.com/ridgewood-io/webrtc/internal/srtp"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// OfferOptions tunes CreateOffer.
type OfferOptions struct {
	ICERestart bool
}

// AnswerOptions tunes CreateAnswer.
type AnswerOptions struct{}

// PeerConnection ties transceivers, transports and SDP negotiation
// together. All component state is mutated through the operations
// queue or under the connection lock; event handlers fire in
// transition order.
type PeerConnection struct {
	mu  sync.RWMutex
	ops *operations
	api *API
	log logging.LeveledLogger

	configuration Configuration

	currentLocalDescription  *SessionDescription
	pendingLocalDescription  *SessionDescription
	currentRemoteDescription *SessionDescription
	pendingRemoteDescription *SessionDescription

	signalingState     SignalingState
	iceConnectionState ICEConnectionState
	connectionState    PeerConnectionState

	lastError error

	iceGatherer   *ICEGatherer
	iceTransport  *ICETransport
	dtlsTransport *DTLSTransport
	sctpTransport *SCTPTransport

	transceivers []*RTPTransceiver
	dataChannels []*DataChannel

	remoteSummary *remoteDescription

	sessionID      uint64
	sessionVersion uint64
	midCounter     int
	dataMid        string

	iceTransportStarted bool
	rtpStarted          bool
	restartPending      bool

	onICECandidateHdlr       func(*ICECandidate)
	onICEConnectionStateHdlr func(ICEConnectionState)
	onConnectionStateHdlr    func(PeerConnectionState)
	onSignalingStateHdlr     func(SignalingState)
	onTrackHdlr              func(*TrackRemote, *RTPReceiver)
	onDataChannelHdlr        func(*DataChannel)
	onNegotiationNeededHdlr  func()

	closed    chan struct{}
	closeOnce sync.Once
}

// NewPeerConnection builds a PeerConnection with the default engines.
func NewPeerConnection(configuration Configuration) (*PeerConnection, error) {
	return NewAPI().NewPeerConnection(configuration)
}

// NewPeerConnection builds a PeerConnection from this API's engines.
func (api *API) NewPeerConnection(configuration Configuration) (*PeerConnection, error) {
	pc := &PeerConnection{
		ops:            newOperations(),
		api:            api,
		log:            api.settingEngine.loggerFactory().NewLogger("pc"),
		configuration:  configuration,
		signalingState: SignalingStateStable,
		sessionID:      uint64(globalRand.Uint32())<<32 | uint64(globalRand.Uint32()),
		sessionVersion: 1,
		closed:         make(chan struct{}),
	}

	gatherer, err := api.newICEGatherer(configuration.getICEServers(), configuration.ICETransportPolicy)
	if err != nil {
		return nil, err
	}
	pc.iceGatherer = gatherer
	pc.iceTransport = api.newICETransport(gatherer)

	dtlsTransport, err := api.newDTLSTransport(pc.iceTransport, configuration.Certificates)
	if err != nil {
		return nil, err
	}
	pc.dtlsTransport = dtlsTransport
	pc.sctpTransport = api.newSCTPTransport(dtlsTransport)

	pc.sctpTransport.OnDataChannel(func(dc *DataChannel) {
		pc.mu.Lock()
		pc.dataChannels = append(pc.dataChannels, dc)
		hdlr := pc.onDataChannelHdlr
		pc.mu.Unlock()
		if hdlr != nil {
			hdlr(dc)
		}
	})

	pc.iceTransport.OnConnectionStateChange(func(state ICETransportState) {
		pc.handleICEStateChange(state)
	})

	gatherer.OnLocalCandidate(func(c *ICECandidate) {
		pc.mu.RLock()
		hdlr := pc.onICECandidateHdlr
		pc.mu.RUnlock()
		if hdlr != nil {
			hdlr(c)
		}
	})
	return pc, nil
}

// ---- event handler registration ----

// OnICECandidate registers the trickle handler; nil signals the end of
// gathering.
func (pc *PeerConnection) OnICECandidate(f func(*ICECandidate)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onICECandidateHdlr = f
}

// OnICEConnectionStateChange registers the ICE state handler.
func (pc *PeerConnection) OnICEConnectionStateChange(f func(ICEConnectionState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onICEConnectionStateHdlr = f
}

// OnConnectionStateChange registers the aggregate state handler.
func (pc *PeerConnection) OnConnectionStateChange(f func(PeerConnectionState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onConnectionStateHdlr = f
}

// OnSignalingStateChange registers the signaling state handler.
func (pc *PeerConnection) OnSignalingStateChange(f func(SignalingState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onSignalingStateHdlr = f
}

// OnTrack registers the inbound media handler.
func (pc *PeerConnection) OnTrack(f func(*TrackRemote, *RTPReceiver)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onTrackHdlr = f
}

// OnDataChannel registers the remote data channel handler.
func (pc *PeerConnection) OnDataChannel(f func(*DataChannel)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onDataChannelHdlr = f
}

// OnNegotiationNeeded registers the renegotiation trigger handler.
func (pc *PeerConnection) OnNegotiationNeeded(f func()) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onNegotiationNeededHdlr = f
}

func (pc *PeerConnection) fireNegotiationNeeded() {
	pc.ops.Enqueue(func() {
		pc.mu.RLock()
		hdlr := pc.onNegotiationNeededHdlr
		pc.mu.RUnlock()
		if hdlr != nil {
			hdlr()
		}
	})
}

// ---- state plumbing ----

func (pc *PeerConnection) handleICEStateChange(state ICETransportState) {
	var iceState ICEConnectionState
	switch state {
	case ICETransportStateNew:
		iceState = ICEConnectionStateNew
	case ICETransportStateChecking:
		iceState = ICEConnectionStateChecking
	case ICETransportStateConnected:
		iceState = ICEConnectionStateConnected
	case ICETransportStateCompleted:
		iceState = ICEConnectionStateCompleted
	case ICETransportStateDisconnected:
		iceState = ICEConnectionStateDisconnected
	case ICETransportStateFailed:
		iceState = ICEConnectionStateFailed
	case ICETransportStateClosed:
		iceState = ICEConnectionStateClosed
	}

	pc.mu.Lock()
	pc.iceConnectionState = iceState
	hdlr := pc.onICEConnectionStateHdlr
	pc.mu.Unlock()
	if hdlr != nil {
		hdlr(iceState)
	}
	pc.updateConnectionState()
}

// updateConnectionState derives the aggregate state from ICE and DTLS.
func (pc *PeerConnection) updateConnectionState() {
	pc.mu.Lock()
	var next PeerConnectionState
	switch {
	case pc.connectionState == PeerConnectionStateClosed:
		pc.mu.Unlock()
		return
	case pc.iceConnectionState == ICEConnectionStateFailed:
		next = PeerConnectionStateFailed
	case pc.iceConnectionState == ICEConnectionStateDisconnected:
		next = PeerConnectionStateDisconnected
	case (pc.iceConnectionState == ICEConnectionStateConnected ||
		pc.iceConnectionState == ICEConnectionStateCompleted) &&
		pc.dtlsTransport.State() == DTLSTransportStateConnected:
		next = PeerConnectionStateConnected
	case pc.iceConnectionState == ICEConnectionStateChecking ||
		pc.dtlsTransport.State() == DTLSTransportStateConnecting:
		next = PeerConnectionStateConnecting
	default:
		next = pc.connectionState
	}

	if next == pc.connectionState {
		pc.mu.Unlock()
		return
	}
	pc.connectionState = next
	hdlr := pc.onConnectionStateHdlr
	pc.mu.Unlock()
	if hdlr != nil {
		hdlr(next)
	}
}

func (pc *PeerConnection) setSignalingState(s SignalingState) {
	pc.mu.Lock()
	if pc.signalingState == s {
		pc.mu.Unlock()
		return
	}
	pc.signalingState = s
	hdlr := pc.onSignalingStateHdlr
	pc.mu.Unlock()
	if hdlr != nil {
		hdlr(s)
	}
}

// ---- accessors ----

// SignalingState returns the signaling state.
func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.signalingState
}

// ICEConnectionState returns the ICE state.
func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.iceConnectionState
}

// ConnectionState returns the aggregate connection state.
func (pc *PeerConnection) ConnectionState() PeerConnectionState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.connectionState
}

// ICEGatheringState returns the gathering progress.
func (pc *PeerConnection) ICEGatheringState() ICEGatheringState {
	switch pc.iceGatherer.State() {
	case ICEGathererStateGathering:
		return ICEGatheringStateGathering
	case ICEGathererStateComplete:
		return ICEGatheringStateComplete
	default:
		return ICEGatheringStateNew
	}
}

// LocalDescription returns the pending local description if one is in
// flight, the current one otherwise.
func (pc *PeerConnection) LocalDescription() *SessionDescription {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if pc.pendingLocalDescription != nil {
		return pc.pendingLocalDescription
	}
	return pc.currentLocalDescription
}

// RemoteDescription returns the pending remote description if one is
// in flight, the current one otherwise.
func (pc *PeerConnection) RemoteDescription() *SessionDescription {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if pc.pendingRemoteDescription != nil {
		return pc.pendingRemoteDescription
	}
	return pc.currentRemoteDescription
}

// GetTransceivers lists the transceivers.
func (pc *PeerConnection) GetTransceivers() []*RTPTransceiver {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return append([]*RTPTransceiver{}, pc.transceivers...)
}

// SCTP returns the SCTP transport.
func (pc *PeerConnection) SCTP() *SCTPTransport {
	return pc.sctpTransport
}

// ---- transceiver management ----

// AddTransceiverFromKind creates a transceiver with a receive-capable
// direction by default.
func (pc *PeerConnection) AddTransceiverFromKind(kind RTPCodecType, init ...RTPTransceiverInit) (*RTPTransceiver, error) {
	if pc.isClosed() {
		return nil, ErrConnectionClosed
	}
	direction := RTPTransceiverDirectionRecvonly
	if len(init) == 1 && init[0].Direction != RTPTransceiverDirectionUnknown {
		direction = init[0].Direction
	}

	var sender *RTPSender
	if direction == RTPTransceiverDirectionSendrecv || direction == RTPTransceiverDirectionSendonly {
		// a sender without a track still reserves the m-line
		sender = &RTPSender{
			id:        "sender-" + itoa(pc.nextMidValue()),
			transport: pc.dtlsTransport,
			api:       pc.api,
			kind:      kind,
			ssrc:      randomSSRC(),
			rtxSSRC:   randomSSRC(),
			closed:    make(chan struct{}),
		}
	}
	receiver := pc.api.newRTPReceiver(kind, pc.dtlsTransport)
	t := newRTPTransceiver(kind, direction, sender, receiver)

	pc.mu.Lock()
	pc.transceivers = append(pc.transceivers, t)
	pc.mu.Unlock()
	pc.fireNegotiationNeeded()
	return t, nil
}

// AddTrack attaches an outgoing track, reusing a transceiver of the
// same kind that has no sending track yet.
func (pc *PeerConnection) AddTrack(track TrackLocal) (*RTPSender, error) {
	if pc.isClosed() {
		return nil, ErrConnectionClosed
	}
	if track == nil {
		return nil, ErrRTPSenderTrackNil
	}

	sender, err := pc.api.newRTPSender(track, pc.dtlsTransport)
	if err != nil {
		return nil, err
	}

	pc.mu.Lock()
	var reused *RTPTransceiver
	for _, t := range pc.transceivers {
		if t.Kind() == track.Kind() && t.Sender() == nil {
			reused = t
			break
		}
	}
	if reused != nil {
		reused.mu.Lock()
		reused.sender = sender
		reused.direction = RTPTransceiverDirectionSendrecv
		reused.mu.Unlock()
	} else {
		receiver := pc.api.newRTPReceiver(track.Kind(), pc.dtlsTransport)
		t := newRTPTransceiver(track.Kind(), RTPTransceiverDirectionSendrecv, sender, receiver)
		pc.transceivers = append(pc.transceivers, t)
	}
	pc.mu.Unlock()

	pc.fireNegotiationNeeded()
	return sender, nil
}

func (pc *PeerConnection) nextMidValue() int {
	pc.midCounter++
	return pc.midCounter - 1
}

// assignMids gives every transceiver (and the data section) a stable
// mid in order.
func (pc *PeerConnection) assignMids(hasData bool) []mediaSection {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	var sections []mediaSection
	for _, t := range pc.transceivers {
		if t.Mid() == "" {
			t.setMid(itoa(pc.midCounter))
			pc.midCounter++
		}
		sections = append(sections, mediaSection{id: t.Mid(), transceiver: t})
	}
	if hasData {
		if pc.dataMid == "" {
			pc.dataMid = itoa(pc.midCounter)
			pc.midCounter++
		}
		sections = append(sections, mediaSection{id: pc.dataMid, data: true})
	}
	return sections
}

// ---- offer / answer ----

// CreateOffer renders the local half of a new negotiation. Trickled
// candidates may arrive before or after; the offer may legitimately
// contain none.
func (pc *PeerConnection) CreateOffer(options *OfferOptions) (SessionDescription, error) {
	if pc.isClosed() {
		return SessionDescription{}, ErrConnectionClosed
	}

	// a restart requested through RestartICE applies to this offer
	pc.mu.Lock()
	restart := pc.restartPending || (options != nil && options.ICERestart)
	pc.restartPending = false
	started := pc.iceTransportStarted
	pc.mu.Unlock()
	if restart && started {
		if err := pc.iceTransport.restart(); err != nil {
			return SessionDescription{}, err
		}
	}

	// offers advertise the full local codec table for new sections
	pc.mu.RLock()
	preferences := pc.configuration.CodecPreferences
	pc.mu.RUnlock()
	for _, t := range pc.GetTransceivers() {
		if len(t.getNegotiatedCodecs()) == 0 {
			codecs := pc.api.mediaEngine.getCodecsByKind(t.Kind())
			if len(preferences) > 0 {
				codecs = reorderByPreference(codecs, preferences)
			}
			t.setNegotiatedCodecs(codecs)
		}
		if len(t.extensionsForSDP()) == 0 {
			t.setNegotiatedExtensions(pc.api.mediaEngine.getHeaderExtensions(t.Kind()))
		}
	}

	hasData := pc.hasDataSection()
	sections := pc.assignMids(hasData)

	d, err := pc.buildDescription(sections, "actpass")
	if err != nil {
		return SessionDescription{}, err
	}
	raw, err := d.Marshal()
	if err != nil {
		return SessionDescription{}, err
	}
	offer := SessionDescription{Type: SDPTypeOffer, SDP: string(raw)}

	pc.mu.Lock()
	pc.sessionVersion++
	pc.mu.Unlock()
	return offer, nil
}

func (pc *PeerConnection) hasDataSection() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if len(pc.dataChannels) > 0 {
		return true
	}
	if pc.remoteSummary != nil && pc.remoteSummary.hasData {
		return true
	}
	return false
}

// CreateAnswer renders the answering half, mirroring the remote
// offer's sections.
func (pc *PeerConnection) CreateAnswer(*AnswerOptions) (SessionDescription, error) {
	if pc.isClosed() {
		return SessionDescription{}, ErrConnectionClosed
	}
	pc.mu.RLock()
	summary := pc.remoteSummary
	pc.mu.RUnlock()
	if summary == nil {
		return SessionDescription{}, ErrNoRemoteDescription
	}

	sections, err := pc.matchRemoteSections(summary)
	if err != nil {
		return SessionDescription{}, err
	}

	setup := "active"
	if pc.api.settingEngine.answeringDTLSRole == DTLSRoleServer {
		setup = "passive"
	}

	d, err := pc.buildDescription(sections, setup)
	if err != nil {
		return SessionDescription{}, err
	}
	raw, err := d.Marshal()
	if err != nil {
		return SessionDescription{}, err
	}

	pc.mu.Lock()
	pc.sessionVersion++
	pc.mu.Unlock()
	return SessionDescription{Type: SDPTypeAnswer, SDP: string(raw)}, nil
}

// matchRemoteSections pairs each remote media section with a local
// transceiver, creating receive-only ones as needed, and resolves
// codecs and directions.
func (pc *PeerConnection) matchRemoteSections(summary *remoteDescription) ([]mediaSection, error) {
	var sections []mediaSection
	claimed := map[*RTPTransceiver]bool{}

	for _, rm := range summary.media {
		if rm.isData {
			pc.mu.Lock()
			pc.dataMid = rm.mid
			pc.mu.Unlock()
			sections = append(sections, mediaSection{id: rm.mid, data: true})
			continue
		}

		t := pc.findTransceiverForRemote(rm, claimed)
		if t == nil {
			receiver := pc.api.newRTPReceiver(rm.kind, pc.dtlsTransport)
			t = newRTPTransceiver(rm.kind, rm.direction.reverse(), nil, receiver)
			pc.mu.Lock()
			pc.transceivers = append(pc.transceivers, t)
			pc.mu.Unlock()
		}
		claimed[t] = true
		t.setMid(rm.mid)

		codecs, err := pc.api.mediaEngine.negotiateCodecs(rm.kind, rm.codecs, pc.configuration.CodecPreferences)
		if err != nil {
			return nil, err
		}
		t.setNegotiatedCodecs(codecs)
		t.setNegotiatedExtensions(pc.api.mediaEngine.negotiateHeaderExtensions(rm.kind, rm.extensions))
		t.setDirection(t.Direction().intersect(rm.direction))

		sections = append(sections, mediaSection{id: rm.mid, transceiver: t})
	}
	return sections, nil
}

func (pc *PeerConnection) findTransceiverForRemote(rm remoteMedia, claimed map[*RTPTransceiver]bool) *RTPTransceiver {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	// mid match first, then an unclaimed transceiver of the kind
	for _, t := range pc.transceivers {
		if t.Mid() != "" && t.Mid() == rm.mid {
			return t
		}
	}
	for _, t := range pc.transceivers {
		if !claimed[t] && t.Mid() == "" && t.Kind() == rm.kind {
			return t
		}
	}
	return nil
}

// buildDescription renders the current state into SDP.
func (pc *PeerConnection) buildDescription(sections []mediaSection, setup string) (*sdp.SessionDescription, error) {
	iceParams, err := pc.iceGatherer.GetLocalParameters()
	if err != nil {
		return nil, err
	}
	candidates, err := pc.iceGatherer.GetLocalCandidates()
	if err != nil {
		return nil, err
	}

	pc.mu.RLock()
	sessionID, sessionVersion := pc.sessionID, pc.sessionVersion
	pc.mu.RUnlock()

	d := populateSDP(
		sessionID,
		sessionVersion,
		iceParams,
		pc.dtlsTransport.certificate.Fingerprint(),
		candidates,
		pc.ICEGatheringState() == ICEGatheringStateComplete,
		setup,
		sections,
	)
	return d, nil
}

// SetLocalDescription applies a locally generated description and
// starts candidate gathering.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription) error {
	if pc.isClosed() {
		return ErrConnectionClosed
	}

	switch desc.Type {
	case SDPTypeOffer:
		if pc.SignalingState() != SignalingStateStable && pc.SignalingState() != SignalingStateHaveLocalOffer {
			return ErrIncorrectSignalingState
		}
		pc.mu.Lock()
		pc.pendingLocalDescription = &desc
		pc.mu.Unlock()
		pc.setSignalingState(SignalingStateHaveLocalOffer)
	case SDPTypeAnswer:
		if pc.SignalingState() != SignalingStateHaveRemoteOffer {
			return ErrIncorrectSignalingState
		}
		pc.mu.Lock()
		pc.currentLocalDescription = &desc
		pc.currentRemoteDescription = pc.pendingRemoteDescription
		pc.pendingRemoteDescription = nil
		pc.pendingLocalDescription = nil
		pc.mu.Unlock()
		pc.setSignalingState(SignalingStateStable)
	case SDPTypeRollback:
		pc.mu.Lock()
		pc.pendingLocalDescription = nil
		pc.mu.Unlock()
		pc.setSignalingState(SignalingStateStable)
		return nil
	default:
		return ErrUnknownType
	}

	// gathering starts the first time a local description is applied
	if pc.iceGatherer.State() == ICEGathererStateNew {
		if err := pc.iceGatherer.Gather(); err != nil {
			return err
		}
	}

	if desc.Type == SDPTypeAnswer {
		pc.ops.Enqueue(pc.startTransportsOnce)
	}
	return nil
}

// SetRemoteDescription digests the peer's description; an answer
// completes negotiation and starts the transports.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription) error { //nolint:gocognit
	if pc.isClosed() {
		return ErrConnectionClosed
	}

	parsed, err := desc.Unmarshal()
	if err != nil {
		return err
	}
	summary, err := parseRemoteDescription(parsed)
	if err != nil {
		return err
	}

	switch desc.Type {
	case SDPTypeOffer:
		if pc.SignalingState() != SignalingStateStable && pc.SignalingState() != SignalingStateHaveRemoteOffer {
			return ErrIncorrectSignalingState
		}
	case SDPTypeAnswer:
		if pc.SignalingState() != SignalingStateHaveLocalOffer {
			return ErrIncorrectSignalingState
		}
	default:
		return ErrUnknownType
	}

	// detect an ICE restart from changed credentials
	pc.mu.Lock()
	prevSummary := pc.remoteSummary
	pc.remoteSummary = summary
	started := pc.iceTransportStarted
	pc.mu.Unlock()

	isRestart := prevSummary != nil && started &&
		prevSummary.iceParams.UsernameFragment != summary.iceParams.UsernameFragment

	switch desc.Type {
	case SDPTypeOffer:
		pc.mu.Lock()
		pc.pendingRemoteDescription = &desc
		pc.mu.Unlock()
		pc.setSignalingState(SignalingStateHaveRemoteOffer)

		if isRestart {
			// regather under fresh credentials; data keeps flowing on
			// the old pair until renomination
			if err := pc.iceTransport.restart(); err != nil {
				return err
			}
			if err := pc.iceTransport.setRemoteCredentials(summary.iceParams); err != nil {
				return err
			}
			pc.feedRemoteCandidates(summary)
		}

		// answer-side negotiation happens in CreateAnswer; transceivers
		// for new remote sections are created there
	case SDPTypeAnswer:
		pc.mu.Lock()
		pc.currentRemoteDescription = &desc
		pc.currentLocalDescription = pc.pendingLocalDescription
		pc.pendingLocalDescription = nil
		pc.pendingRemoteDescription = nil
		pc.restartPending = false
		pc.mu.Unlock()
		pc.setSignalingState(SignalingStateStable)

		if err := pc.applyAnswer(summary); err != nil {
			return err
		}
		if isRestart {
			if err := pc.iceTransport.setRemoteCredentials(summary.iceParams); err != nil {
				return err
			}
			pc.feedRemoteCandidates(summary)
		}
		pc.ops.Enqueue(pc.startTransportsOnce)
	}
	return nil
}

// applyAnswer adopts the answer's codec and direction choices.
func (pc *PeerConnection) applyAnswer(summary *remoteDescription) error {
	for _, rm := range summary.media {
		if rm.isData {
			continue
		}
		var t *RTPTransceiver
		for _, candidate := range pc.GetTransceivers() {
			if candidate.Mid() == rm.mid {
				t = candidate
				break
			}
		}
		if t == nil {
			return ErrIncorrectSDPSemantics
		}
		codecs, err := pc.api.mediaEngine.negotiateCodecs(rm.kind, rm.codecs, pc.configuration.CodecPreferences)
		if err != nil {
			return err
		}
		t.setNegotiatedCodecs(codecs)
		t.setNegotiatedExtensions(pc.api.mediaEngine.negotiateHeaderExtensions(rm.kind, rm.extensions))
		t.setDirection(t.Direction().intersect(rm.direction))
	}
	return nil
}

func (pc *PeerConnection) feedRemoteCandidates(summary *remoteDescription) {
	for _, c := range summary.candidates {
		candidate := newICECandidateFromICE(c)
		if err := pc.iceTransport.AddRemoteCandidate(&candidate); err != nil {
			pc.log.Warnf("failed to add remote candidate: %v", err)
		}
	}
}

// AddICECandidate adds a candidate received through signaling.
func (pc *PeerConnection) AddICECandidate(candidate ICECandidateInit) error {
	if pc.RemoteDescription() == nil {
		return ErrNoRemoteDescription
	}
	value := strings.TrimPrefix(candidate.Candidate, "candidate:")
	if value == "" {
		return nil // end-of-candidates
	}
	c, err := ice.UnmarshalCandidate(value)
	if err != nil {
		return err
	}
	apiCandidate := newICECandidateFromICE(c)
	return pc.iceTransport.AddRemoteCandidate(&apiCandidate)
}

// ---- transport startup ----

// startTransportsOnce runs on the operations queue after negotiation
// completes.
func (pc *PeerConnection) startTransportsOnce() {
	pc.mu.Lock()
	if pc.iceTransportStarted || pc.remoteSummary == nil {
		pc.mu.Unlock()
		return
	}
	pc.iceTransportStarted = true
	summary := pc.remoteSummary
	weOffered := pc.currentRemoteDescription != nil && pc.currentRemoteDescription.Type == SDPTypeAnswer
	pc.mu.Unlock()

	role := ICERoleControlled
	if weOffered {
		role = ICERoleControlling
	}

	pc.feedRemoteCandidates(summary)

	go func() {
		if err := pc.iceTransport.Start(summary.iceParams, role); err != nil {
			pc.storeError(err)
			return
		}

		// DTLS role follows a=setup: the answerer typically takes
		// active, so the offerer ends up passive
		remoteRole := summary.setupRole
		if remoteRole == DTLSRoleAuto {
			if weOffered {
				remoteRole = DTLSRoleClient // actpass offer, remote picks active
			} else {
				remoteRole = DTLSRoleServer
			}
		}

		if err := pc.dtlsTransport.Start(DTLSParameters{
			Role:         remoteRole,
			Fingerprints: summary.fingerprints,
		}); err != nil {
			pc.storeError(err)
			pc.mu.Lock()
			pc.connectionState = PeerConnectionStateFailed
			hdlr := pc.onConnectionStateHdlr
			pc.mu.Unlock()
			if hdlr != nil {
				hdlr(PeerConnectionStateFailed)
			}
			return
		}
		pc.updateConnectionState()

		if summary.hasData {
			if err := pc.sctpTransport.Start(SCTPCapabilities{}); err != nil {
				pc.storeError(err)
				return
			}
			pc.mu.Lock()
			pending := append([]*DataChannel{}, pc.dataChannels...)
			pc.mu.Unlock()
			for _, dc := range pending {
				if dc.ReadyState() == DataChannelStateConnecting && !dc.Negotiated() {
					dc.open(pc.sctpTransport)
				} else if dc.Negotiated() {
					dc.open(pc.sctpTransport)
				}
			}
		}

		pc.startRTP(summary)
	}()
}

func (pc *PeerConnection) storeError(err error) {
	pc.log.Errorf("transport failure: %v", err)
	pc.mu.Lock()
	pc.lastError = err
	pc.mu.Unlock()
}

// LastError returns the most recent fatal transport error.
func (pc *PeerConnection) LastError() error {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.lastError
}

// startRTP binds senders and receivers once the SRTP sessions exist.
func (pc *PeerConnection) startRTP(summary *remoteDescription) { //nolint:gocognit
	pc.mu.Lock()
	if pc.rtpStarted {
		pc.mu.Unlock()
		return
	}
	pc.rtpStarted = true
	transceivers := append([]*RTPTransceiver{}, pc.transceivers...)
	pc.mu.Unlock()

	for _, t := range transceivers {
		direction := t.Direction()
		codecs := t.getNegotiatedCodecs()
		params := RTPParameters{Codecs: codecs, HeaderExtensions: t.extensionsForSDP()}

		if sender := t.Sender(); sender != nil && sender.track != nil &&
			(direction == RTPTransceiverDirectionSendrecv || direction == RTPTransceiverDirectionSendonly) {
			if err := sender.Send(RTPSendParameters{
				RTPParameters: params,
				Encodings:     []RTPCodingParameters{{SSRC: sender.SSRC()}},
			}); err != nil {
				pc.log.Warnf("failed to start sender: %v", err)
			}
		}

		if receiver := t.Receiver(); receiver != nil &&
			(direction == RTPTransceiverDirectionSendrecv || direction == RTPTransceiverDirectionRecvonly) {
			rm, ok := remoteMediaForMid(summary, t.Mid())
			if !ok {
				continue
			}
			var encodings []RTPCodingParameters
			for _, ssrc := range rm.ssrcs {
				if isRTXSSRC(rm, ssrc) {
					continue
				}
				encodings = append(encodings, RTPCodingParameters{
					SSRC:    ssrc,
					RTXSSRC: rm.fidGroups[ssrc],
				})
			}
			for _, rid := range rm.rids {
				encodings = append(encodings, RTPCodingParameters{RID: rid})
			}
			// zero encodings still start the receiver so the MID/RID
			// routing of late-announced SSRCs has extension ids
			if err := receiver.Receive(RTPReceiveParameters{
				RTPParameters: params,
				Encodings:     encodings,
			}); err != nil {
				pc.log.Warnf("failed to start receiver: %v", err)
				continue
			}
			for _, track := range receiver.Tracks() {
				track.mu.Lock()
				track.id = rm.trackID
				track.streamID = rm.streamID
				track.mu.Unlock()
				if track.SSRC() != 0 {
					pc.fireOnTrack(track, receiver)
				}
			}
		}
	}

	go pc.undeclaredMediaProcessor()
}

func remoteMediaForMid(summary *remoteDescription, mid string) (remoteMedia, bool) {
	for _, rm := range summary.media {
		if rm.mid == mid {
			return rm, true
		}
	}
	return remoteMedia{}, false
}

func isRTXSSRC(rm remoteMedia, ssrc uint32) bool {
	for _, repair := range rm.fidGroups {
		if repair == ssrc {
			return true
		}
	}
	return false
}

func (pc *PeerConnection) fireOnTrack(track *TrackRemote, receiver *RTPReceiver) {
	pc.ops.Enqueue(func() {
		pc.mu.RLock()
		hdlr := pc.onTrackHdlr
		pc.mu.RUnlock()
		if hdlr != nil {
			hdlr(track, receiver)
		}
	})
}

// undeclaredMediaProcessor routes inbound SSRCs that no a=ssrc line
// announced, using the MID and RID header extensions (BUNDLE demux of
// simulcast layers).
func (pc *PeerConnection) undeclaredMediaProcessor() {
	srtpSession := pc.dtlsTransport.getSRTPSession()
	if srtpSession == nil {
		return
	}
	for {
		stream, ssrc, err := srtpSession.AcceptStream()
		if err != nil {
			return
		}
		go pc.handleUndeclaredSSRC(stream, ssrc)
	}
}

func (pc *PeerConnection) handleUndeclaredSSRC(stream *srtp.ReadStreamSRTP, ssrc uint32) {
	// peek packets to learn the stream's mid/rid from the header
	// extensions
	buf := make([]byte, 8192)
	for i := 0; i < 50; i++ {
		n, err := stream.Read(buf)
		if err != nil {
			return
		}
		var p rtp.Packet
		if err := p.Unmarshal(buf[:n]); err != nil {
			continue
		}

		var mid, rid string
		for _, t := range pc.GetTransceivers() {
			if r := t.Receiver(); r != nil {
				r.mu.RLock()
				midID, ridID := r.midID, r.ridID
				r.mu.RUnlock()
				if midID != 0 {
					if v := p.GetExtension(midID); v != nil {
						mid = string(v)
					}
				}
				if ridID != 0 {
					if v := p.GetExtension(ridID); v != nil {
						rid = string(v)
					}
				}
			}
		}
		if mid == "" {
			continue
		}

		for _, t := range pc.GetTransceivers() {
			if t.Mid() != mid || t.Receiver() == nil {
				continue
			}
			receiver := t.Receiver()
			if track := receiver.bindUnsignaledSSRC(ssrc, rid, stream); track != nil {
				pc.fireOnTrack(track, receiver)
			}
			return
		}
	}
	_ = stream.Close()
}

// ---- data channels ----

// CreateDataChannel creates a channel; it opens once the SCTP
// association establishes (or immediately if it already has).
func (pc *PeerConnection) CreateDataChannel(label string, options *DataChannelInit) (*DataChannel, error) {
	if pc.isClosed() {
		return nil, ErrConnectionClosed
	}
	dc := newDataChannel(label, options)

	pc.mu.Lock()
	pc.dataChannels = append(pc.dataChannels, dc)
	firstChannel := len(pc.dataChannels) == 1
	pc.mu.Unlock()

	if pc.sctpTransport.State() == SCTPTransportStateConnected {
		dc.open(pc.sctpTransport)
	}
	if firstChannel {
		pc.fireNegotiationNeeded()
	}
	return dc, nil
}

// ---- lifecycle ----

// RestartICE marks the next offer as an ICE restart.
func (pc *PeerConnection) RestartICE() error {
	if pc.isClosed() {
		return ErrConnectionClosed
	}
	pc.mu.Lock()
	pc.restartPending = true
	pc.mu.Unlock()
	pc.fireNegotiationNeeded()
	return nil
}

func (pc *PeerConnection) isClosed() bool {
	select {
	case <-pc.closed:
		return true
	default:
		return false
	}
}

// Close cancels every timer, closes the transports and moves the
// connection to closed.
func (pc *PeerConnection) Close() error {
	var err error
	pc.closeOnce.Do(func() {
		close(pc.closed)
		pc.setSignalingState(SignalingStateClosed)

		pc.mu.Lock()
		transceivers := append([]*RTPTransceiver{}, pc.transceivers...)
		channels := append([]*DataChannel{}, pc.dataChannels...)
		pc.mu.Unlock()

		for _, t := range transceivers {
			_ = t.Stop()
		}
		for _, dc := range channels {
			_ = dc.Close()
		}
		_ = pc.sctpTransport.Stop()
		_ = pc.dtlsTransport.Stop()
		err = pc.iceTransport.Stop()

		pc.ops.GracefulClose()

		pc.mu.Lock()
		pc.connectionState = PeerConnectionStateClosed
		hdlr := pc.onConnectionStateHdlr
		pc.mu.Unlock()
		if hdlr != nil {
			hdlr(PeerConnectionStateClosed)
		}
	})
	return err
}


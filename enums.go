package webrtc

// This file holds the small negotiation enums. Each mirrors its W3C
// WebRTC counterpart; String forms follow the specification's
// lowercase names so they can be placed into SDP and JSON verbatim.

// SignalingState is the offer/answer bookkeeping state.
type SignalingState int

// Signaling states.
const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (t SignalingState) String() string {
	switch t {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	}
	return "unknown"
}

// PeerConnectionState is the aggregate connection state.
type PeerConnectionState int

// Peer connection states. Transitions are monotonic except
// connected<->disconnected during network flaps.
const (
	PeerConnectionStateNew PeerConnectionState = iota
	PeerConnectionStateConnecting
	PeerConnectionStateConnected
	PeerConnectionStateDisconnected
	PeerConnectionStateFailed
	PeerConnectionStateClosed
)

func (t PeerConnectionState) String() string {
	switch t {
	case PeerConnectionStateNew:
		return "new"
	case PeerConnectionStateConnecting:
		return "connecting"
	case PeerConnectionStateConnected:
		return "connected"
	case PeerConnectionStateDisconnected:
		return "disconnected"
	case PeerConnectionStateFailed:
		return "failed"
	case PeerConnectionStateClosed:
		return "closed"
	}
	return "unknown"
}

// ICEConnectionState mirrors the ICE agent's connection state.
type ICEConnectionState int

// ICE connection states.
const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateDisconnected
	ICEConnectionStateFailed
	ICEConnectionStateClosed
)

func (t ICEConnectionState) String() string {
	switch t {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateClosed:
		return "closed"
	}
	return "unknown"
}

// ICEGatheringState is the candidate gathering progress.
type ICEGatheringState int

// ICE gathering states.
const (
	ICEGatheringStateNew ICEGatheringState = iota
	ICEGatheringStateGathering
	ICEGatheringStateComplete
)

func (t ICEGatheringState) String() string {
	switch t {
	case ICEGatheringStateNew:
		return "new"
	case ICEGatheringStateGathering:
		return "gathering"
	case ICEGatheringStateComplete:
		return "complete"
	}
	return "unknown"
}

// ICETransportPolicy restricts which candidates are used.
type ICETransportPolicy int

// Policies.
const (
	ICETransportPolicyAll ICETransportPolicy = iota
	ICETransportPolicyRelay
)

func (t ICETransportPolicy) String() string {
	switch t {
	case ICETransportPolicyAll:
		return "all"
	case ICETransportPolicyRelay:
		return "relay"
	}
	return "unknown"
}

// BundlePolicy selects how media is multiplexed onto transports. This
// implementation always bundles; the policy is carried for API
// compatibility.
type BundlePolicy int

// Bundle policies.
const (
	BundlePolicyBalanced BundlePolicy = iota
	BundlePolicyMaxCompat
	BundlePolicyMaxBundle
)

func (t BundlePolicy) String() string {
	switch t {
	case BundlePolicyBalanced:
		return "balanced"
	case BundlePolicyMaxCompat:
		return "max-compat"
	case BundlePolicyMaxBundle:
		return "max-bundle"
	}
	return "unknown"
}

// DTLSRole is the side taken in the DTLS handshake.
type DTLSRole byte

// Roles, following a=setup.
const (
	DTLSRoleAuto DTLSRole = iota + 1
	DTLSRoleClient
	DTLSRoleServer
)

func (r DTLSRole) String() string {
	switch r {
	case DTLSRoleAuto:
		return "auto"
	case DTLSRoleClient:
		return "client"
	case DTLSRoleServer:
		return "server"
	}
	return "unknown"
}

// RTPCodecType distinguishes audio from video.
type RTPCodecType int

// Codec types.
const (
	RTPCodecTypeUnknown RTPCodecType = iota
	RTPCodecTypeAudio
	RTPCodecTypeVideo
)

// NewRTPCodecType parses "audio"/"video".
func NewRTPCodecType(raw string) RTPCodecType {
	switch raw {
	case "audio":
		return RTPCodecTypeAudio
	case "video":
		return RTPCodecTypeVideo
	}
	return RTPCodecTypeUnknown
}

func (t RTPCodecType) String() string {
	switch t {
	case RTPCodecTypeAudio:
		return "audio"
	case RTPCodecTypeVideo:
		return "video"
	}
	return "unknown"
}

// RTPTransceiverDirection is the media flow direction of one
// transceiver.
type RTPTransceiverDirection int

// Directions.
const (
	RTPTransceiverDirectionUnknown RTPTransceiverDirection = iota
	RTPTransceiverDirectionSendrecv
	RTPTransceiverDirectionSendonly
	RTPTransceiverDirectionRecvonly
	RTPTransceiverDirectionInactive
)

// NewRTPTransceiverDirection parses the SDP attribute name.
func NewRTPTransceiverDirection(raw string) RTPTransceiverDirection {
	switch raw {
	case "sendrecv":
		return RTPTransceiverDirectionSendrecv
	case "sendonly":
		return RTPTransceiverDirectionSendonly
	case "recvonly":
		return RTPTransceiverDirectionRecvonly
	case "inactive":
		return RTPTransceiverDirectionInactive
	}
	return RTPTransceiverDirectionUnknown
}

func (t RTPTransceiverDirection) String() string {
	switch t {
	case RTPTransceiverDirectionSendrecv:
		return "sendrecv"
	case RTPTransceiverDirectionSendonly:
		return "sendonly"
	case RTPTransceiverDirectionRecvonly:
		return "recvonly"
	case RTPTransceiverDirectionInactive:
		return "inactive"
	}
	return "unknown"
}

// intersect resolves the local direction against the remote one: the
// answer sends only what the offerer wants to receive.
func (t RTPTransceiverDirection) intersect(remote RTPTransceiverDirection) RTPTransceiverDirection {
	localSend := t == RTPTransceiverDirectionSendrecv || t == RTPTransceiverDirectionSendonly
	localRecv := t == RTPTransceiverDirectionSendrecv || t == RTPTransceiverDirectionRecvonly
	remoteSend := remote == RTPTransceiverDirectionSendrecv || remote == RTPTransceiverDirectionSendonly
	remoteRecv := remote == RTPTransceiverDirectionSendrecv || remote == RTPTransceiverDirectionRecvonly

	send := localSend && remoteRecv
	recv := localRecv && remoteSend
	switch {
	case send && recv:
		return RTPTransceiverDirectionSendrecv
	case send:
		return RTPTransceiverDirectionSendonly
	case recv:
		return RTPTransceiverDirectionRecvonly
	default:
		return RTPTransceiverDirectionInactive
	}
}

// reverse maps a remote direction to the local point of view.
func (t RTPTransceiverDirection) reverse() RTPTransceiverDirection {
	switch t {
	case RTPTransceiverDirectionSendonly:
		return RTPTransceiverDirectionRecvonly
	case RTPTransceiverDirectionRecvonly:
		return RTPTransceiverDirectionSendonly
	default:
		return t
	}
}

// DataChannelState is the lifecycle state of a DataChannel.
type DataChannelState int

// Data channel states.
const (
	DataChannelStateConnecting DataChannelState = iota
	DataChannelStateOpen
	DataChannelStateClosing
	DataChannelStateClosed
)

func (t DataChannelState) String() string {
	switch t {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	}
	return "unknown"
}

// ICECandidateType mirrors the agent's candidate types.
type ICECandidateType int

// Candidate types.
const (
	ICECandidateTypeHost ICECandidateType = iota
	ICECandidateTypeSrflx
	ICECandidateTypePrflx
	ICECandidateTypeRelay
)

func (t ICECandidateType) String() string {
	switch t {
	case ICECandidateTypeHost:
		return "host"
	case ICECandidateTypeSrflx:
		return "srflx"
	case ICECandidateTypePrflx:
		return "prflx"
	case ICECandidateTypeRelay:
		return "relay"
	}
	return "unknown"
}

// SDPType is the type of a SessionDescription.
type SDPType int

// Session description types.
const (
	SDPTypeOffer SDPType = iota
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
)

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	}
	return "unknown"
}

// NewSDPType parses an SDPType name.
func NewSDPType(raw string) SDPType {
	switch raw {
	case "offer":
		return SDPTypeOffer
	case "pranswer":
		return SDPTypePranswer
	case "answer":
		return SDPTypeAnswer
	case "rollback":
		return SDPTypeRollback
	}
	return SDPType(-1)
}

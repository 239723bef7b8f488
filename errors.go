package webrtc

import "github.com/pkg/errors"

var (
	// ErrUnknownType indicates an enum value outside the known set.
	ErrUnknownType = errors.New("webrtc: unknown type")

	// ErrConnectionClosed indicates an operation on a closed
	// PeerConnection.
	ErrConnectionClosed = errors.New("webrtc: connection closed")

	// ErrCertificateExpired indicates a certificate outside its
	// validity window.
	ErrCertificateExpired = errors.New("webrtc: certificate expired")

	// ErrNoRemoteDescription indicates an operation that needs the
	// remote description before it was set.
	ErrNoRemoteDescription = errors.New("webrtc: remote description is not set")

	// ErrSessionDescriptionNoFingerprint indicates a remote
	// description without a DTLS fingerprint; media never starts
	// unauthenticated.
	ErrSessionDescriptionNoFingerprint = errors.New("webrtc: remote description has no fingerprint")

	// ErrSessionDescriptionNoIceCredentials indicates a description
	// missing ice-ufrag/ice-pwd.
	ErrSessionDescriptionNoIceCredentials = errors.New("webrtc: remote description has no ice credentials")

	// ErrNoCommonCodec indicates codec negotiation found no
	// intersection for a media section.
	ErrNoCommonCodec = errors.New("webrtc: no common codec")

	// ErrCodecNotFound indicates a codec lookup by payload type or
	// mime type failed.
	ErrCodecNotFound = errors.New("webrtc: codec not found")

	// ErrIncorrectSDPSemantics indicates a description incompatible
	// with unified-plan negotiation.
	ErrIncorrectSDPSemantics = errors.New("webrtc: incompatible SDP semantics")

	// ErrIncorrectSignalingState indicates a description applied in
	// the wrong signaling state.
	ErrIncorrectSignalingState = errors.New("webrtc: invalid signaling state transition")

	// ErrDataChannelNotOpen indicates Send on a channel that is not
	// open.
	ErrDataChannelNotOpen = errors.New("webrtc: datachannel not open")

	// ErrMaxDataChannelID indicates the SCTP stream id space is
	// exhausted.
	ErrMaxDataChannelID = errors.New("webrtc: no available datachannel id")

	// ErrSenderNotStarted indicates sender operations before
	// negotiation bound it.
	ErrSenderNotStarted = errors.New("webrtc: sender not started")

	// ErrRTPSenderTrackNil indicates AddTrack with a nil track.
	ErrRTPSenderTrackNil = errors.New("webrtc: track must not be nil")

	// ErrUnsupportedCodec indicates a track whose codec the media
	// engine does not carry.
	ErrUnsupportedCodec = errors.New("webrtc: unsupported codec")

	// ErrSCTPNotEstablished indicates datachannel use before the SCTP
	// association settled.
	ErrSCTPNotEstablished = errors.New("webrtc: SCTP not established")
)

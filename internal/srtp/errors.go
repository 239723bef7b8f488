package srtp

import "github.com/pkg/errors"

var (
	errUnsupportedProfile = errors.New("srtp: unsupported protection profile")
	errShortKey           = errors.New("srtp: master key or salt has wrong length")
	errAuthFailed         = errors.New("srtp: authentication failed")
	errDuplicated         = errors.New("srtp: packet rejected by replay protection")
	errTooShort           = errors.New("srtp: packet too short")
	errStreamNotInited     = errors.New("srtp: stream not initialized")
	errStreamAlreadyInited = errors.New("srtp: stream already initialized")
	errStreamAlreadyClosed = errors.New("srtp: stream already closed")
	errSessionClosed      = errors.New("srtp: session closed")
	errSessionNotStarted  = errors.New("srtp: session not started")
)

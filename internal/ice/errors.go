package ice

import "github.com/pkg/errors"

var (
	// ErrClosed is returned on any operation after Close.
	ErrClosed = errors.New("ice: agent closed")

	// ErrNoCandidatePairs indicates a send with no usable pair.
	ErrNoCandidatePairs = errors.New("ice: no candidate pairs available")

	// ErrRemoteCredentials indicates missing or malformed remote
	// ufrag/pwd.
	ErrRemoteCredentials = errors.New("ice: invalid remote credentials")

	// ErrRestartCredentials indicates an ICE restart reusing the
	// previous generation's credentials.
	ErrRestartCredentials = errors.New("ice: restart requires fresh credentials")

	// ErrGatheringTimeout indicates candidate gathering did not finish
	// in time.
	ErrGatheringTimeout = errors.New("ice: gathering timed out")

	// ErrConnectionTimeout indicates Dial or Accept ran out of time.
	ErrConnectionTimeout = errors.New("ice: connection timed out")

	// ErrMulticastDNSName indicates an invalid mDNS host name.
	ErrMulticastDNSName = errors.New("ice: mDNS name must end with .local")
)

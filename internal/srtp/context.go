package srtp

import (
	"github.com/pion/transport/v4/replaydetector"
)

const (
	defaultReplayProtectionWindow = 64
	maxSequenceNumber             = 65535
	maxSRTCPIndex                 = 0x7FFFFFFF
	maxExtendedSequence           = 1<<48 - 1
)

type srtpCipher interface {
	rtpAuthTagLen() int
	rtcpAuthTagLen() int
	encryptRTP(header, payload []byte, roc uint32, ssrc uint32, seq uint16) ([]byte, error)
	decryptRTP(encrypted []byte, headerLen int, roc uint32, ssrc uint32, seq uint16) ([]byte, error)
	encryptRTCP(decrypted []byte, srtcpIndex uint32, ssrc uint32) ([]byte, error)
	decryptRTCP(encrypted []byte, srtcpIndex uint32, ssrc uint32) ([]byte, error)
	// rtcpIndexOffsetFromEnd locates the E+index word: the AES-CM
	// profile places it before the auth tag, GCM at the packet tail.
	rtcpIndexOffsetFromEnd() int
}

type srtpSSRCState struct {
	ssrc uint32
	// index is the 48-bit extended sequence (ROC·2^16 + SEQ) of the
	// highest authenticated packet.
	index                uint64
	rolloverHasProcessed bool
	replayDetector       replaydetector.ReplayDetector
}

type srtcpSSRCState struct {
	ssrc           uint32
	srtcpIndex     uint32
	replayDetector replaydetector.ReplayDetector
}

// Context holds one direction's SRTP and SRTCP state: session keys,
// per-SSRC rollover counters, SRTCP indexes and replay windows.
type Context struct {
	cipher srtpCipher

	srtpSSRCStates  map[uint32]*srtpSSRCState
	srtcpSSRCStates map[uint32]*srtcpSSRCState

	replayWindow uint
}

// ContextOption customizes a Context.
type ContextOption func(*Context)

// SRTPReplayProtection overrides the default 64-packet replay window.
func SRTPReplayProtection(window uint) ContextOption {
	return func(c *Context) { c.replayWindow = window }
}

// CreateContext builds a context from master keying material exported
// by the DTLS handshake.
func CreateContext(masterKey, masterSalt []byte, profile ProtectionProfile, opts ...ContextOption) (*Context, error) {
	c := &Context{
		srtpSSRCStates:  map[uint32]*srtpSSRCState{},
		srtcpSSRCStates: map[uint32]*srtcpSSRCState{},
		replayWindow:    defaultReplayProtectionWindow,
	}
	for _, opt := range opts {
		opt(c)
	}

	rtpKeys, err := deriveSessionKeys(masterKey, masterSalt, profile, false)
	if err != nil {
		return nil, err
	}
	rtcpKeys, err := deriveSessionKeys(masterKey, masterSalt, profile, true)
	if err != nil {
		return nil, err
	}

	switch profile {
	case ProtectionProfileAes128CmHmacSha1_80:
		c.cipher, err = newCipherAesCmHmacSha1(rtpKeys, rtcpKeys)
	case ProtectionProfileAeadAes128Gcm:
		c.cipher, err = newCipherAeadAesGcm(rtpKeys, rtcpKeys)
	default:
		err = errUnsupportedProfile
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) getSRTPSSRCState(ssrc uint32) *srtpSSRCState {
	s, ok := c.srtpSSRCStates[ssrc]
	if !ok {
		s = &srtpSSRCState{
			ssrc:           ssrc,
			replayDetector: replaydetector.New(c.replayWindow, maxExtendedSequence),
		}
		c.srtpSSRCStates[ssrc] = s
	}
	return s
}

func (c *Context) getSRTCPSSRCState(ssrc uint32) *srtcpSSRCState {
	s, ok := c.srtcpSSRCStates[ssrc]
	if !ok {
		s = &srtcpSSRCState{
			ssrc:           ssrc,
			replayDetector: replaydetector.New(c.replayWindow, maxSRTCPIndex),
		}
		c.srtcpSSRCStates[ssrc] = s
	}
	return s
}

// nextIndex estimates the extended sequence for a received packet per
// RFC 3711 Appendix A without committing state. The returned function
// commits the guess once the packet authenticates.
func (s *srtpSSRCState) nextIndex(seq uint16) (uint64, func()) {
	localRoc := uint32(s.index >> 16)     //nolint:gosec
	localSeq := uint16(s.index & 0xFFFF)  //nolint:gosec

	guessRoc := localRoc
	if s.rolloverHasProcessed {
		if localSeq < 1<<15 {
			if int32(seq)-int32(localSeq) > 1<<15 && localRoc > 0 {
				guessRoc = localRoc - 1
			}
		} else {
			if int32(localSeq)-(1<<15) > int32(seq) {
				guessRoc = localRoc + 1
			}
		}
	}

	index := uint64(guessRoc)<<16 | uint64(seq)
	return index, func() {
		s.rolloverHasProcessed = true
		if index > s.index {
			s.index = index
		}
	}
}

// ROC returns the rollover counter for an SSRC if that stream has been
// seen.
func (c *Context) ROC(ssrc uint32) (uint32, bool) {
	s, ok := c.srtpSSRCStates[ssrc]
	if !ok {
		return 0, false
	}
	return uint32(s.index >> 16), true //nolint:gosec
}

// SetROC preloads the rollover counter for an SSRC, used when a stream
// resumes with state carried over an ICE restart.
func (c *Context) SetROC(ssrc uint32, roc uint32) {
	s := c.getSRTPSSRCState(ssrc)
	s.index = uint64(roc) << 16
	s.rolloverHasProcessed = true
}

// Index returns the SRTCP index for an SSRC.
func (c *Context) Index(ssrc uint32) (uint32, bool) {
	s, ok := c.srtcpSSRCStates[ssrc]
	if !ok {
		return 0, false
	}
	return s.srtcpIndex, true
}

// SetIndex preloads the SRTCP index for an SSRC.
func (c *Context) SetIndex(ssrc uint32, index uint32) {
	s := c.getSRTCPSSRCState(ssrc)
	s.srtcpIndex = index % (maxSRTCPIndex + 1)
}

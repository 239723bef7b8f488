package srtp

import (
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// DecryptRTP authenticates and decrypts an inbound SRTP packet,
// returning the plaintext RTP packet. Packets rejected by the replay
// window or failing authentication return errDuplicated/errAuthFailed
// and must be dropped and counted by the caller.
func (c *Context) DecryptRTP(encrypted []byte) ([]byte, error) {
	var header rtp.Header
	headerLen, err := header.Unmarshal(encrypted)
	if err != nil {
		return nil, err
	}

	state := c.getSRTPSSRCState(header.SSRC)
	index, commit := state.nextIndex(header.SequenceNumber)

	markAsValid, ok := state.replayDetector.Check(index)
	if !ok {
		return nil, errDuplicated
	}

	roc := uint32(index >> 16) //nolint:gosec
	dst, err := c.cipher.decryptRTP(encrypted, headerLen, roc, header.SSRC, header.SequenceNumber)
	if err != nil {
		return nil, err
	}

	markAsValid()
	commit()
	return dst, nil
}

// EncryptRTP encrypts a plaintext RTP packet. The sequence numbers
// handed in must be monotonic per SSRC for rollover tracking to stay
// correct.
func (c *Context) EncryptRTP(decrypted []byte) ([]byte, error) {
	var header rtp.Header
	headerLen, err := header.Unmarshal(decrypted)
	if err != nil {
		return nil, err
	}

	state := c.getSRTPSSRCState(header.SSRC)
	index, commit := state.nextIndex(header.SequenceNumber)
	commit()

	roc := uint32(index >> 16) //nolint:gosec
	return c.cipher.encryptRTP(decrypted[:headerLen], decrypted[headerLen:], roc, header.SSRC, header.SequenceNumber)
}

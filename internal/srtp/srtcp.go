package srtp

import (
	"encoding/binary"
)

// DecryptRTCP authenticates and decrypts an inbound SRTCP packet.
func (c *Context) DecryptRTCP(encrypted []byte) ([]byte, error) {
	if len(encrypted) < srtcpHeaderLen+srtcpIndexSize+c.cipher.rtcpAuthTagLen() {
		return nil, errTooShort
	}

	ssrc := binary.BigEndian.Uint32(encrypted[4:])
	trailerOffset := len(encrypted) - c.cipher.rtcpIndexOffsetFromEnd()
	index := binary.BigEndian.Uint32(encrypted[trailerOffset:]) &^ 0x80000000

	state := c.getSRTCPSSRCState(ssrc)
	markAsValid, ok := state.replayDetector.Check(uint64(index))
	if !ok {
		return nil, errDuplicated
	}

	dst, err := c.cipher.decryptRTCP(encrypted, index, ssrc)
	if err != nil {
		return nil, err
	}

	markAsValid()
	return dst, nil
}

// EncryptRTCP encrypts a plaintext RTCP compound packet, assigning the
// next SRTCP index for the sender SSRC.
func (c *Context) EncryptRTCP(decrypted []byte) ([]byte, error) {
	if len(decrypted) < srtcpHeaderLen {
		return nil, errTooShort
	}
	ssrc := binary.BigEndian.Uint32(decrypted[4:])

	state := c.getSRTCPSSRCState(ssrc)
	state.srtcpIndex = (state.srtcpIndex + 1) % (maxSRTCPIndex + 1)

	return c.cipher.encryptRTCP(decrypted, state.srtcpIndex, ssrc)
}

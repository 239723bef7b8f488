package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // mandated by the protection profile
	"crypto/subtle"
	"encoding/binary"
)

// cipherAesCmHmacSha1 implements SRTP_AES128_CM_HMAC_SHA1_80: AES in
// counter mode with a truncated HMAC-SHA1 tag (RFC 3711 Section 4).
type cipherAesCmHmacSha1 struct {
	srtpBlock  cipher.Block
	srtcpBlock cipher.Block

	srtpSessionSalt  []byte
	srtcpSessionSalt []byte

	srtpSessionAuthKey  []byte
	srtcpSessionAuthKey []byte
}

const (
	cmAuthTagLen   = 10
	srtcpIndexSize = 4
	srtcpHeaderLen = 8
)

func newCipherAesCmHmacSha1(rtpKeys, rtcpKeys *sessionKeys) (*cipherAesCmHmacSha1, error) {
	srtpBlock, err := aes.NewCipher(rtpKeys.encryptionKey)
	if err != nil {
		return nil, err
	}
	srtcpBlock, err := aes.NewCipher(rtcpKeys.encryptionKey)
	if err != nil {
		return nil, err
	}
	return &cipherAesCmHmacSha1{
		srtpBlock:           srtpBlock,
		srtcpBlock:          srtcpBlock,
		srtpSessionSalt:     rtpKeys.salt,
		srtcpSessionSalt:    rtcpKeys.salt,
		srtpSessionAuthKey:  rtpKeys.authKey,
		srtcpSessionAuthKey: rtcpKeys.authKey,
	}, nil
}

func (c *cipherAesCmHmacSha1) rtpAuthTagLen() int  { return cmAuthTagLen }
func (c *cipherAesCmHmacSha1) rtcpAuthTagLen() int { return cmAuthTagLen }

func (c *cipherAesCmHmacSha1) rtcpIndexOffsetFromEnd() int { return cmAuthTagLen + srtcpIndexSize }

// srtpCounter builds the AES-CM counter block of RFC 3711 Section
// 4.1.1.
func srtpCounter(salt []byte, ssrc uint32, roc uint32, seq uint16) [16]byte {
	var counter [16]byte
	copy(counter[:], salt)
	binary.BigEndian.PutUint32(counter[4:], binary.BigEndian.Uint32(counter[4:])^ssrc)
	binary.BigEndian.PutUint32(counter[8:], binary.BigEndian.Uint32(counter[8:])^roc)
	binary.BigEndian.PutUint16(counter[12:], binary.BigEndian.Uint16(counter[12:])^seq)
	return counter
}

func srtcpCounter(salt []byte, ssrc uint32, index uint32) [16]byte {
	var counter [16]byte
	copy(counter[:], salt)
	binary.BigEndian.PutUint32(counter[4:], binary.BigEndian.Uint32(counter[4:])^ssrc)
	binary.BigEndian.PutUint32(counter[10:], binary.BigEndian.Uint32(counter[10:])^index)
	return counter
}

func xorCipherStream(block cipher.Block, counter [16]byte, dst, src []byte) {
	stream := cipher.NewCTR(block, counter[:])
	stream.XORKeyStream(dst, src)
}

func (c *cipherAesCmHmacSha1) rtpAuthTag(buf []byte, roc uint32) []byte {
	mac := hmac.New(sha1.New, c.srtpSessionAuthKey)
	mac.Write(buf)
	var rocRaw [4]byte
	binary.BigEndian.PutUint32(rocRaw[:], roc)
	mac.Write(rocRaw[:])
	return mac.Sum(nil)[:cmAuthTagLen]
}

func (c *cipherAesCmHmacSha1) rtcpAuthTag(buf []byte) []byte {
	mac := hmac.New(sha1.New, c.srtcpSessionAuthKey)
	mac.Write(buf)
	return mac.Sum(nil)[:cmAuthTagLen]
}

func (c *cipherAesCmHmacSha1) encryptRTP(header, payload []byte, roc uint32, ssrc uint32, seq uint16) ([]byte, error) {
	dst := make([]byte, 0, len(header)+len(payload)+cmAuthTagLen)
	dst = append(dst, header...)

	counter := srtpCounter(c.srtpSessionSalt, ssrc, roc, seq)
	encrypted := make([]byte, len(payload))
	xorCipherStream(c.srtpBlock, counter, encrypted, payload)
	dst = append(dst, encrypted...)

	return append(dst, c.rtpAuthTag(dst, roc)...), nil
}

func (c *cipherAesCmHmacSha1) decryptRTP(encrypted []byte, headerLen int, roc uint32, ssrc uint32, seq uint16) ([]byte, error) {
	if len(encrypted) < headerLen+cmAuthTagLen {
		return nil, errTooShort
	}
	tailOffset := len(encrypted) - cmAuthTagLen
	actualTag := encrypted[tailOffset:]

	expectedTag := c.rtpAuthTag(encrypted[:tailOffset], roc)
	if subtle.ConstantTimeCompare(actualTag, expectedTag) != 1 {
		return nil, errAuthFailed
	}

	dst := make([]byte, tailOffset)
	copy(dst, encrypted[:headerLen])
	counter := srtpCounter(c.srtpSessionSalt, ssrc, roc, seq)
	xorCipherStream(c.srtpBlock, counter, dst[headerLen:], encrypted[headerLen:tailOffset])
	return dst, nil
}

func (c *cipherAesCmHmacSha1) encryptRTCP(decrypted []byte, srtcpIndex uint32, ssrc uint32) ([]byte, error) {
	if len(decrypted) < srtcpHeaderLen {
		return nil, errTooShort
	}
	dst := make([]byte, 0, len(decrypted)+srtcpIndexSize+cmAuthTagLen)
	dst = append(dst, decrypted[:srtcpHeaderLen]...)

	counter := srtcpCounter(c.srtcpSessionSalt, ssrc, srtcpIndex)
	encrypted := make([]byte, len(decrypted)-srtcpHeaderLen)
	xorCipherStream(c.srtcpBlock, counter, encrypted, decrypted[srtcpHeaderLen:])
	dst = append(dst, encrypted...)

	// E bit always set: this implementation never sends unencrypted
	// SRTCP
	var trailer [srtcpIndexSize]byte
	binary.BigEndian.PutUint32(trailer[:], srtcpIndex|0x80000000)
	dst = append(dst, trailer[:]...)

	return append(dst, c.rtcpAuthTag(dst)...), nil
}

func (c *cipherAesCmHmacSha1) decryptRTCP(encrypted []byte, srtcpIndex uint32, ssrc uint32) ([]byte, error) {
	if len(encrypted) < srtcpHeaderLen+srtcpIndexSize+cmAuthTagLen {
		return nil, errTooShort
	}
	tailOffset := len(encrypted) - cmAuthTagLen
	actualTag := encrypted[tailOffset:]

	expectedTag := c.rtcpAuthTag(encrypted[:tailOffset])
	if subtle.ConstantTimeCompare(actualTag, expectedTag) != 1 {
		return nil, errAuthFailed
	}

	dst := make([]byte, tailOffset-srtcpIndexSize)
	copy(dst, encrypted[:srtcpHeaderLen])
	counter := srtcpCounter(c.srtcpSessionSalt, ssrc, srtcpIndex)
	xorCipherStream(c.srtcpBlock, counter, dst[srtcpHeaderLen:], encrypted[srtcpHeaderLen:tailOffset-srtcpIndexSize])
	return dst, nil
}

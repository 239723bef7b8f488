package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// cipherAeadAesGcm implements SRTP_AEAD_AES_128_GCM (RFC 7714).
type cipherAeadAesGcm struct {
	srtpCipher  cipher.AEAD
	srtcpCipher cipher.AEAD

	srtpSessionSalt  []byte
	srtcpSessionSalt []byte
}

const gcmAuthTagLen = 16

func newCipherAeadAesGcm(rtpKeys, rtcpKeys *sessionKeys) (*cipherAeadAesGcm, error) {
	rtpBlock, err := aes.NewCipher(rtpKeys.encryptionKey)
	if err != nil {
		return nil, err
	}
	srtpCipher, err := cipher.NewGCM(rtpBlock)
	if err != nil {
		return nil, err
	}

	rtcpBlock, err := aes.NewCipher(rtcpKeys.encryptionKey)
	if err != nil {
		return nil, err
	}
	srtcpCipher, err := cipher.NewGCM(rtcpBlock)
	if err != nil {
		return nil, err
	}

	return &cipherAeadAesGcm{
		srtpCipher:       srtpCipher,
		srtcpCipher:      srtcpCipher,
		srtpSessionSalt:  rtpKeys.salt,
		srtcpSessionSalt: rtcpKeys.salt,
	}, nil
}

func (c *cipherAeadAesGcm) rtpAuthTagLen() int  { return gcmAuthTagLen }
func (c *cipherAeadAesGcm) rtcpAuthTagLen() int { return gcmAuthTagLen }

func (c *cipherAeadAesGcm) rtcpIndexOffsetFromEnd() int { return srtcpIndexSize }

// rtpInitializationVector builds the 12-byte IV of RFC 7714 Section
// 8.1.
func (c *cipherAeadAesGcm) rtpInitializationVector(ssrc uint32, roc uint32, seq uint16) [12]byte {
	var iv [12]byte
	binary.BigEndian.PutUint32(iv[2:], ssrc)
	binary.BigEndian.PutUint32(iv[6:], roc)
	binary.BigEndian.PutUint16(iv[10:], seq)
	for i := range iv {
		iv[i] ^= c.srtpSessionSalt[i]
	}
	return iv
}

// rtcpInitializationVector builds the IV of RFC 7714 Section 9.1.
func (c *cipherAeadAesGcm) rtcpInitializationVector(ssrc uint32, index uint32) [12]byte {
	var iv [12]byte
	binary.BigEndian.PutUint32(iv[2:], ssrc)
	binary.BigEndian.PutUint32(iv[8:], index)
	for i := range iv {
		iv[i] ^= c.srtcpSessionSalt[i]
	}
	return iv
}

func (c *cipherAeadAesGcm) encryptRTP(header, payload []byte, roc uint32, ssrc uint32, seq uint16) ([]byte, error) {
	iv := c.rtpInitializationVector(ssrc, roc, seq)

	dst := make([]byte, len(header), len(header)+len(payload)+gcmAuthTagLen)
	copy(dst, header)
	return c.srtpCipher.Seal(dst, iv[:], payload, header), nil
}

func (c *cipherAeadAesGcm) decryptRTP(encrypted []byte, headerLen int, roc uint32, ssrc uint32, seq uint16) ([]byte, error) {
	if len(encrypted) < headerLen+gcmAuthTagLen {
		return nil, errTooShort
	}
	iv := c.rtpInitializationVector(ssrc, roc, seq)

	dst := make([]byte, headerLen, len(encrypted)-gcmAuthTagLen)
	copy(dst, encrypted[:headerLen])
	dst, err := c.srtpCipher.Open(dst, iv[:], encrypted[headerLen:], encrypted[:headerLen])
	if err != nil {
		return nil, errAuthFailed
	}
	return dst, nil
}

func (c *cipherAeadAesGcm) encryptRTCP(decrypted []byte, srtcpIndex uint32, ssrc uint32) ([]byte, error) {
	if len(decrypted) < srtcpHeaderLen {
		return nil, errTooShort
	}
	iv := c.rtcpInitializationVector(ssrc, srtcpIndex)

	var trailer [srtcpIndexSize]byte
	binary.BigEndian.PutUint32(trailer[:], srtcpIndex|0x80000000)

	aad := make([]byte, 0, srtcpHeaderLen+srtcpIndexSize)
	aad = append(aad, decrypted[:srtcpHeaderLen]...)
	aad = append(aad, trailer[:]...)

	dst := make([]byte, srtcpHeaderLen, len(decrypted)+gcmAuthTagLen+srtcpIndexSize)
	copy(dst, decrypted[:srtcpHeaderLen])
	dst = c.srtcpCipher.Seal(dst, iv[:], decrypted[srtcpHeaderLen:], aad)
	return append(dst, trailer[:]...), nil
}

func (c *cipherAeadAesGcm) decryptRTCP(encrypted []byte, srtcpIndex uint32, ssrc uint32) ([]byte, error) {
	if len(encrypted) < srtcpHeaderLen+srtcpIndexSize+gcmAuthTagLen {
		return nil, errTooShort
	}
	iv := c.rtcpInitializationVector(ssrc, srtcpIndex)

	aadEnd := len(encrypted) - srtcpIndexSize
	aad := make([]byte, 0, srtcpHeaderLen+srtcpIndexSize)
	aad = append(aad, encrypted[:srtcpHeaderLen]...)
	aad = append(aad, encrypted[aadEnd:]...)

	dst := make([]byte, srtcpHeaderLen, aadEnd-gcmAuthTagLen)
	copy(dst, encrypted[:srtcpHeaderLen])
	dst, err := c.srtcpCipher.Open(dst, iv[:], encrypted[srtcpHeaderLen:aadEnd], aad)
	if err != nil {
		return nil, errAuthFailed
	}
	return dst, nil
}

package dtls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

var (
	errInvalidECDSAKey    = errors.New("dtls: certificate key is not ECDSA")
	errSignatureInvalid   = errors.New("dtls: signature verification failed")
	errDecryptFailed      = errors.New("dtls: record decryption failed")
	errKeyExchangeFailed  = errors.New("dtls: ECDHE computation failed")
)

// ecdheKeypair is an X25519 key pair for one handshake.
type ecdheKeypair struct {
	private [32]byte
	public  [32]byte
}

func newECDHEKeypair() (*ecdheKeypair, error) {
	kp := &ecdheKeypair{}
	if _, err := rand.Read(kp.private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.public[:], pub)
	return kp, nil
}

func (kp *ecdheKeypair) sharedSecret(peerPublic []byte) ([]byte, error) {
	secret, err := curve25519.X25519(kp.private[:], peerPublic)
	if err != nil {
		return nil, errors.Wrap(errKeyExchangeFailed, err.Error())
	}
	return secret, nil
}

// signWithCertificate produces the ECDSA-SHA256 signature used in
// ServerKeyExchange and CertificateVerify.
func signWithCertificate(priv interface{}, data []byte) ([]byte, error) {
	key, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errInvalidECDSAKey
	}
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, key, digest[:])
}

func verifyWithCertificate(rawCertificate, data, signature []byte) error {
	cert, err := x509.ParseCertificate(rawCertificate)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return errInvalidECDSAKey
	}
	digest := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(pub, digest[:], signature) {
		return errSignatureInvalid
	}
	return nil
}

// gcmCipher wraps one direction's AES-GCM state for DTLS 1.2 AEAD
// records: 4-byte implicit nonce from the key block, 8-byte explicit
// nonce carried in each record.
type gcmCipher struct {
	aead       cipher.AEAD
	implicitIV []byte
}

func newGCMCipher(key, implicitIV []byte) (*gcmCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &gcmCipher{aead: aead, implicitIV: implicitIV}, nil
}

func aeadAdditionalData(hdr recordHeader, plaintextLen int) []byte {
	var ad [13]byte
	binary.BigEndian.PutUint16(ad[0:], hdr.epoch)
	putUint48(ad[2:], hdr.sequenceNumber)
	ad[8] = byte(hdr.contentType)
	ad[9] = dtls12Major
	ad[10] = dtls12Minor
	binary.BigEndian.PutUint16(ad[11:], uint16(plaintextLen)) //nolint:gosec
	return ad[:]
}

// encrypt seals a record payload; the output starts with the 8-byte
// explicit nonce.
func (c *gcmCipher) encrypt(hdr recordHeader, plaintext []byte) []byte {
	nonce := make([]byte, 12)
	copy(nonce, c.implicitIV)
	binary.BigEndian.PutUint16(nonce[4:], hdr.epoch)
	putUint48(nonce[6:], hdr.sequenceNumber)

	out := make([]byte, 8, 8+len(plaintext)+c.aead.Overhead())
	copy(out, nonce[4:])
	return c.aead.Seal(out, nonce, plaintext, aeadAdditionalData(hdr, len(plaintext)))
}

func (c *gcmCipher) decrypt(hdr recordHeader, payload []byte) ([]byte, error) {
	if len(payload) < 8+c.aead.Overhead() {
		return nil, errDecryptFailed
	}
	nonce := make([]byte, 12)
	copy(nonce, c.implicitIV)
	copy(nonce[4:], payload[:8])

	plaintextLen := len(payload) - 8 - c.aead.Overhead()
	out, err := c.aead.Open(nil, nonce, payload[8:], aeadAdditionalData(hdr, plaintextLen))
	if err != nil {
		return nil, errDecryptFailed
	}
	return out, nil
}

package webrtc

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Certificate is the self-signed DTLS identity of a PeerConnection.
// Its SHA-256 fingerprint is exchanged in SDP and pinned before media
// flows.
type Certificate struct {
	certificate tls.Certificate
	x509Cert    *x509.Certificate
}

// NewCertificate wraps an existing key and certificate template.
func NewCertificate(key crypto.PrivateKey, tpl x509.Certificate) (*Certificate, error) {
	ecdsaKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, ErrUnknownType
	}
	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, ecdsaKey.Public(), ecdsaKey)
	if err != nil {
		return nil, err
	}
	x509Cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Certificate{
		certificate: tls.Certificate{Certificate: [][]byte{der}, PrivateKey: ecdsaKey},
		x509Cert:    x509Cert,
	}, nil
}

// GenerateCertificate creates a fresh self-signed ECDSA P-256
// certificate valid for 30 days.
func GenerateCertificate() (*Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	return NewCertificate(key, x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: uuid.NewString()},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(0, 0, 30),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		IsCA:         true,
	})
}

// Expired reports whether the certificate is outside its validity
// window.
func (c Certificate) Expired() bool {
	now := time.Now()
	return now.Before(c.x509Cert.NotBefore) || now.After(c.x509Cert.NotAfter)
}

// Fingerprint returns the lowercase colon-separated SHA-256 digest of
// the DER certificate, the form carried in a=fingerprint.
func (c Certificate) Fingerprint() string {
	return fingerprintOf(c.certificate.Certificate[0])
}

func fingerprintOf(der []byte) string {
	digest := sha256.Sum256(der)
	parts := make([]string, len(digest))
	for i, b := range digest {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// tlsCertificate exposes the underlying keypair to the DTLS transport.
func (c Certificate) tlsCertificate() tls.Certificate {
	return c.certificate
}

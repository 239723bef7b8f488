package dtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "WebRTC"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestPRF12Vector(t *testing.T) {
	// TLS 1.2 P_SHA256 test vector (from the IETF TLS mailing list,
	// widely used for interop)
	secret, _ := hex.DecodeString("9bbe436ba940f017b17652849a71db35")
	seed, _ := hex.DecodeString("a0ba9f936cda311827a6f796ffd5198c")
	expected, _ := hex.DecodeString(
		"e3f229ba727be17b8d122620557cd453c2aab21d07c3d495329b52d4e61edb5a" +
			"6b301791e90d35c9c9a46b4e14baf9af0fa022f7077def17abfd3797c0564bab" +
			"4fbc91666e9def9b97fce34f796789baa48082d122ee42c5a72e5a5110fff701" +
			"87347b66")

	out := prf12(secret, "test label", seed, len(expected))
	assert.Equal(t, expected, out)
}

func TestRecordHeaderRoundTrip(t *testing.T) {
	h := recordHeader{
		contentType:    contentTypeHandshake,
		epoch:          1,
		sequenceNumber: 0x0000123456789a,
		length:         512,
	}
	raw := h.marshal()
	require.Len(t, raw, recordHeaderLen)

	var parsed recordHeader
	require.NoError(t, parsed.unmarshal(raw))
	assert.Equal(t, h, parsed)

	assert.Error(t, parsed.unmarshal(raw[:5]))

	bad := append([]byte{}, raw...)
	bad[1] = 0x03 // TLS, not DTLS
	assert.ErrorIs(t, parsed.unmarshal(bad), errUnsupportedProto)
}

func TestClientHelloRoundTrip(t *testing.T) {
	var random [32]byte
	for i := range random {
		random[i] = byte(i)
	}
	hello := &clientHello{
		random:       random,
		cookie:       []byte{0xde, 0xad, 0xbe, 0xef},
		srtpProfiles: []uint16{0x0007, 0x0001},
	}

	var parsed clientHello
	require.NoError(t, parsed.unmarshal(hello.marshal()))
	assert.Equal(t, hello.random, parsed.random)
	assert.Equal(t, hello.cookie, parsed.cookie)
	assert.Equal(t, hello.srtpProfiles, parsed.srtpProfiles)
}

func TestServerHelloRoundTrip(t *testing.T) {
	var random [32]byte
	random[0] = 0xAB
	sh := &serverHello{random: random, srtpProfile: 0x0007}

	var parsed serverHello
	require.NoError(t, parsed.unmarshal(sh.marshal()))
	assert.Equal(t, sh.random, parsed.random)
	assert.Equal(t, uint16(0x0007), parsed.srtpProfile)
}

func TestServerKeyExchangeSignature(t *testing.T) {
	cert := selfSigned(t)
	kp, err := newECDHEKeypair()
	require.NoError(t, err)

	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)

	ske := &serverKeyExchange{publicKey: kp.public[:]}
	ske.signature, err = signWithCertificate(cert.PrivateKey, ske.signedParams(clientRandom, serverRandom))
	require.NoError(t, err)

	var parsed serverKeyExchange
	require.NoError(t, parsed.unmarshal(ske.marshal()))
	assert.Equal(t, ske.publicKey, parsed.publicKey)

	require.NoError(t, verifyWithCertificate(cert.Certificate[0],
		parsed.signedParams(clientRandom, serverRandom), parsed.signature))

	tampered := append([]byte{}, parsed.signature...)
	tampered[4] ^= 0xff
	assert.Error(t, verifyWithCertificate(cert.Certificate[0],
		parsed.signedParams(clientRandom, serverRandom), tampered))
}

func TestECDHESharedSecret(t *testing.T) {
	a, err := newECDHEKeypair()
	require.NoError(t, err)
	b, err := newECDHEKeypair()
	require.NoError(t, err)

	s1, err := a.sharedSecret(b.public[:])
	require.NoError(t, err)
	s2, err := b.sharedSecret(a.public[:])
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func handshakePair(t *testing.T, clientConfig, serverConfig *Config) (*Conn, *Conn) {
	t.Helper()
	ca, cb := net.Pipe()

	type result struct {
		conn *Conn
		err  error
	}
	serverCh := make(chan result, 1)
	go func() {
		conn, err := Server(cb, serverConfig)
		serverCh <- result{conn, err}
	}()

	client, err := Client(ca, clientConfig)
	require.NoError(t, err)
	server := <-serverCh
	require.NoError(t, server.err)
	return client, server.conn
}

func TestHandshakeAndApplicationData(t *testing.T) {
	clientCert := selfSigned(t)
	serverCert := selfSigned(t)

	client, server := handshakePair(t,
		&Config{
			Certificate:            clientCert,
			SRTPProtectionProfiles: []uint16{0x0007, 0x0001},
		},
		&Config{
			Certificate:            serverCert,
			SRTPProtectionProfiles: []uint16{0x0007, 0x0001},
		})
	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	// both sides agreed on the first offered SRTP profile
	profile, ok := client.SelectedSRTPProtectionProfile()
	require.True(t, ok)
	assert.Equal(t, uint16(0x0007), profile)
	profile, ok = server.SelectedSRTPProtectionProfile()
	require.True(t, ok)
	assert.Equal(t, uint16(0x0007), profile)

	// peer certificates crossed over
	assert.Equal(t, serverCert.Certificate[0], client.ConnectionState().PeerCertificate)
	assert.Equal(t, clientCert.Certificate[0], server.ConnectionState().PeerCertificate)

	// exporter agrees on both ends
	km1, err := client.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", 60)
	require.NoError(t, err)
	km2, err := server.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", 60)
	require.NoError(t, err)
	assert.Equal(t, km1, km2)

	// application data both ways
	_, err = client.Write([]byte("from client"))
	require.NoError(t, err)
	buf := make([]byte, 100)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "from client", string(buf[:n]))

	_, err = server.Write([]byte("from server"))
	require.NoError(t, err)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err = client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "from server", string(buf[:n]))
}

func TestHandshakeRejectsBadFingerprint(t *testing.T) {
	clientCert := selfSigned(t)
	serverCert := selfSigned(t)

	ca, cb := net.Pipe()
	go func() {
		_, _ = Server(cb, &Config{Certificate: serverCert})
	}()

	_, err := Client(ca, &Config{
		Certificate: clientCert,
		VerifyPeerCertificate: func([]byte) error {
			return assert.AnError
		},
		HandshakeTimeout: 5 * time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerifyFailed)
}

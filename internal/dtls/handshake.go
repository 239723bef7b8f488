package dtls

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

type handshakeType uint8

const (
	typeClientHello        handshakeType = 1
	typeServerHello        handshakeType = 2
	typeHelloVerifyRequest handshakeType = 3
	typeCertificate        handshakeType = 11
	typeServerKeyExchange  handshakeType = 12
	typeCertificateRequest handshakeType = 13
	typeServerHelloDone    handshakeType = 14
	typeCertificateVerify  handshakeType = 15
	typeClientKeyExchange  handshakeType = 16
	typeFinished           handshakeType = 20
)

const handshakeHeaderLen = 12

var (
	errHandshakeTooShort = errors.New("dtls: handshake message too short")
	errHandshakeFormat   = errors.New("dtls: malformed handshake message")
)

// handshakeHeader is the DTLS handshake message header with
// fragmentation fields.
type handshakeHeader struct {
	handshakeType  handshakeType
	length         uint32 // 24 bits
	messageSeq     uint16
	fragmentOffset uint32 // 24 bits
	fragmentLength uint32 // 24 bits
}

func (h *handshakeHeader) marshal() []byte {
	out := make([]byte, handshakeHeaderLen)
	out[0] = byte(h.handshakeType)
	putUint24(out[1:], h.length)
	binary.BigEndian.PutUint16(out[4:], h.messageSeq)
	putUint24(out[6:], h.fragmentOffset)
	putUint24(out[9:], h.fragmentLength)
	return out
}

func (h *handshakeHeader) unmarshal(buf []byte) error {
	if len(buf) < handshakeHeaderLen {
		return errHandshakeTooShort
	}
	h.handshakeType = handshakeType(buf[0])
	h.length = uint24(buf[1:])
	h.messageSeq = binary.BigEndian.Uint16(buf[4:])
	h.fragmentOffset = uint24(buf[6:])
	h.fragmentLength = uint24(buf[9:])
	return nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// cipher suite and algorithm identifiers
const (
	cipherSuiteECDHEECDSAWithAES128GCMSHA256 uint16 = 0xc02b

	extensionSupportedGroups     uint16 = 10
	extensionECPointFormats      uint16 = 11
	extensionSignatureAlgorithms uint16 = 13
	extensionUseSRTP             uint16 = 14
	extensionRenegotiationInfo   uint16 = 0xff01

	namedCurveX25519 uint16 = 29

	signatureECDSAWithSHA256 uint16 = 0x0403

	compressionNone byte = 0
)

// clientHello also serves for the cookie retry.
type clientHello struct {
	random       [32]byte
	cookie       []byte
	srtpProfiles []uint16
}

func (m *clientHello) marshal() []byte {
	out := []byte{dtls12Major, dtls12Minor}
	out = append(out, m.random[:]...)
	out = append(out, 0) // empty session id
	out = append(out, byte(len(m.cookie)))
	out = append(out, m.cookie...)

	// one cipher suite
	out = append(out, 0x00, 0x02)
	out = binary.BigEndian.AppendUint16(out, cipherSuiteECDHEECDSAWithAES128GCMSHA256)
	out = append(out, 1, compressionNone)

	out = append(out, m.marshalExtensions()...)
	return out
}

func (m *clientHello) marshalExtensions() []byte {
	var body []byte

	// supported_groups
	body = binary.BigEndian.AppendUint16(body, extensionSupportedGroups)
	body = binary.BigEndian.AppendUint16(body, 4)
	body = binary.BigEndian.AppendUint16(body, 2)
	body = binary.BigEndian.AppendUint16(body, namedCurveX25519)

	// ec_point_formats: uncompressed
	body = binary.BigEndian.AppendUint16(body, extensionECPointFormats)
	body = binary.BigEndian.AppendUint16(body, 2)
	body = append(body, 1, 0)

	// signature_algorithms
	body = binary.BigEndian.AppendUint16(body, extensionSignatureAlgorithms)
	body = binary.BigEndian.AppendUint16(body, 4)
	body = binary.BigEndian.AppendUint16(body, 2)
	body = binary.BigEndian.AppendUint16(body, signatureECDSAWithSHA256)

	// use_srtp
	if len(m.srtpProfiles) > 0 {
		body = binary.BigEndian.AppendUint16(body, extensionUseSRTP)
		body = binary.BigEndian.AppendUint16(body, uint16(2+2*len(m.srtpProfiles)+1)) //nolint:gosec
		body = binary.BigEndian.AppendUint16(body, uint16(2*len(m.srtpProfiles)))    //nolint:gosec
		for _, p := range m.srtpProfiles {
			body = binary.BigEndian.AppendUint16(body, p)
		}
		body = append(body, 0) // empty srtp_mki
	}

	out := binary.BigEndian.AppendUint16(nil, uint16(len(body))) //nolint:gosec
	return append(out, body...)
}

func (m *clientHello) unmarshal(buf []byte) error { //nolint:gocognit
	if len(buf) < 2+32+1 {
		return errHandshakeTooShort
	}
	copy(m.random[:], buf[2:34])
	i := 34

	sessionLen := int(buf[i])
	i += 1 + sessionLen
	if i >= len(buf) {
		return errHandshakeFormat
	}

	cookieLen := int(buf[i])
	i++
	if i+cookieLen > len(buf) {
		return errHandshakeFormat
	}
	m.cookie = append([]byte{}, buf[i:i+cookieLen]...)
	i += cookieLen

	if i+2 > len(buf) {
		return errHandshakeFormat
	}
	suitesLen := int(binary.BigEndian.Uint16(buf[i:]))
	i += 2 + suitesLen
	if i >= len(buf) {
		return errHandshakeFormat
	}

	compLen := int(buf[i])
	i += 1 + compLen

	m.srtpProfiles = nil
	if i+2 > len(buf) {
		return nil // no extensions
	}
	extLen := int(binary.BigEndian.Uint16(buf[i:]))
	i += 2
	if i+extLen > len(buf) {
		return errHandshakeFormat
	}
	return m.parseExtensions(buf[i : i+extLen])
}

func (m *clientHello) parseExtensions(ext []byte) error {
	for len(ext) >= 4 {
		extType := binary.BigEndian.Uint16(ext)
		extLen := int(binary.BigEndian.Uint16(ext[2:]))
		if 4+extLen > len(ext) {
			return errHandshakeFormat
		}
		if extType == extensionUseSRTP && extLen >= 2 {
			data := ext[4 : 4+extLen]
			profLen := int(binary.BigEndian.Uint16(data))
			if 2+profLen <= len(data) {
				for j := 0; j+1 < profLen; j += 2 {
					m.srtpProfiles = append(m.srtpProfiles, binary.BigEndian.Uint16(data[2+j:]))
				}
			}
		}
		ext = ext[4+extLen:]
	}
	return nil
}

type helloVerifyRequest struct {
	cookie []byte
}

func (m *helloVerifyRequest) marshal() []byte {
	out := []byte{dtls12Major, dtls12Minor, byte(len(m.cookie))}
	return append(out, m.cookie...)
}

func (m *helloVerifyRequest) unmarshal(buf []byte) error {
	if len(buf) < 3 {
		return errHandshakeTooShort
	}
	cookieLen := int(buf[2])
	if 3+cookieLen > len(buf) {
		return errHandshakeFormat
	}
	m.cookie = append([]byte{}, buf[3:3+cookieLen]...)
	return nil
}

type serverHello struct {
	random      [32]byte
	srtpProfile uint16 // 0 when use_srtp was not negotiated
}

func (m *serverHello) marshal() []byte {
	out := []byte{dtls12Major, dtls12Minor}
	out = append(out, m.random[:]...)
	out = append(out, 0) // empty session id
	out = binary.BigEndian.AppendUint16(out, cipherSuiteECDHEECDSAWithAES128GCMSHA256)
	out = append(out, compressionNone)

	var ext []byte
	// renegotiation_info: empty, signals secure renegotiation support
	ext = binary.BigEndian.AppendUint16(ext, extensionRenegotiationInfo)
	ext = binary.BigEndian.AppendUint16(ext, 1)
	ext = append(ext, 0)
	if m.srtpProfile != 0 {
		ext = binary.BigEndian.AppendUint16(ext, extensionUseSRTP)
		ext = binary.BigEndian.AppendUint16(ext, 5)
		ext = binary.BigEndian.AppendUint16(ext, 2)
		ext = binary.BigEndian.AppendUint16(ext, m.srtpProfile)
		ext = append(ext, 0)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(ext))) //nolint:gosec
	return append(out, ext...)
}

func (m *serverHello) unmarshal(buf []byte) error {
	if len(buf) < 2+32+1 {
		return errHandshakeTooShort
	}
	copy(m.random[:], buf[2:34])
	i := 34

	sessionLen := int(buf[i])
	i += 1 + sessionLen
	if i+3 > len(buf) {
		return errHandshakeFormat
	}
	suite := binary.BigEndian.Uint16(buf[i:])
	if suite != cipherSuiteECDHEECDSAWithAES128GCMSHA256 {
		return errHandshakeFormat
	}
	i += 3 // suite + compression

	m.srtpProfile = 0
	if i+2 > len(buf) {
		return nil
	}
	extLen := int(binary.BigEndian.Uint16(buf[i:]))
	i += 2
	if i+extLen > len(buf) {
		return errHandshakeFormat
	}
	ext := buf[i : i+extLen]
	for len(ext) >= 4 {
		extType := binary.BigEndian.Uint16(ext)
		l := int(binary.BigEndian.Uint16(ext[2:]))
		if 4+l > len(ext) {
			return errHandshakeFormat
		}
		if extType == extensionUseSRTP && l >= 4 {
			m.srtpProfile = binary.BigEndian.Uint16(ext[6:])
		}
		ext = ext[4+l:]
	}
	return nil
}

// certificateMsg carries exactly one DER certificate.
type certificateMsg struct {
	certificate []byte
}

func (m *certificateMsg) marshal() []byte {
	out := make([]byte, 6)
	putUint24(out[0:], uint32(len(m.certificate)+3)) //nolint:gosec
	putUint24(out[3:], uint32(len(m.certificate)))   //nolint:gosec
	return append(out, m.certificate...)
}

func (m *certificateMsg) unmarshal(buf []byte) error {
	if len(buf) < 6 {
		return errHandshakeTooShort
	}
	certLen := int(uint24(buf[3:]))
	if 6+certLen > len(buf) {
		return errHandshakeFormat
	}
	m.certificate = append([]byte{}, buf[6:6+certLen]...)
	return nil
}

// serverKeyExchange carries the ECDHE public key, signed.
type serverKeyExchange struct {
	publicKey []byte
	signature []byte
}

func (m *serverKeyExchange) marshal() []byte {
	out := []byte{3} // curve_type named_curve
	out = binary.BigEndian.AppendUint16(out, namedCurveX25519)
	out = append(out, byte(len(m.publicKey)))
	out = append(out, m.publicKey...)
	out = binary.BigEndian.AppendUint16(out, signatureECDSAWithSHA256)
	out = binary.BigEndian.AppendUint16(out, uint16(len(m.signature))) //nolint:gosec
	return append(out, m.signature...)
}

func (m *serverKeyExchange) unmarshal(buf []byte) error {
	if len(buf) < 4 {
		return errHandshakeTooShort
	}
	if buf[0] != 3 || binary.BigEndian.Uint16(buf[1:]) != namedCurveX25519 {
		return errHandshakeFormat
	}
	keyLen := int(buf[3])
	if 4+keyLen+4 > len(buf) {
		return errHandshakeFormat
	}
	m.publicKey = append([]byte{}, buf[4:4+keyLen]...)
	i := 4 + keyLen
	if binary.BigEndian.Uint16(buf[i:]) != signatureECDSAWithSHA256 {
		return errHandshakeFormat
	}
	sigLen := int(binary.BigEndian.Uint16(buf[i+2:]))
	if i+4+sigLen > len(buf) {
		return errHandshakeFormat
	}
	m.signature = append([]byte{}, buf[i+4:i+4+sigLen]...)
	return nil
}

// signedParams is the byte string the ServerKeyExchange signature
// covers (RFC 4492 Section 5.4).
func (m *serverKeyExchange) signedParams(clientRandom, serverRandom []byte) []byte {
	out := append([]byte{}, clientRandom...)
	out = append(out, serverRandom...)
	out = append(out, 3)
	out = binary.BigEndian.AppendUint16(out, namedCurveX25519)
	out = append(out, byte(len(m.publicKey)))
	return append(out, m.publicKey...)
}

// certificateRequest asks for an ECDSA client certificate.
type certificateRequest struct{}

func (m *certificateRequest) marshal() []byte {
	out := []byte{1, 64} // one type: ecdsa_sign
	out = binary.BigEndian.AppendUint16(out, 2)
	out = binary.BigEndian.AppendUint16(out, signatureECDSAWithSHA256)
	out = binary.BigEndian.AppendUint16(out, 0) // no CA names
	return out
}

func (m *certificateRequest) unmarshal(buf []byte) error {
	if len(buf) < 2 {
		return errHandshakeTooShort
	}
	return nil
}

// clientKeyExchange carries the client's ECDHE public key.
type clientKeyExchange struct {
	publicKey []byte
}

func (m *clientKeyExchange) marshal() []byte {
	out := []byte{byte(len(m.publicKey))}
	return append(out, m.publicKey...)
}

func (m *clientKeyExchange) unmarshal(buf []byte) error {
	if len(buf) < 1 {
		return errHandshakeTooShort
	}
	keyLen := int(buf[0])
	if 1+keyLen > len(buf) {
		return errHandshakeFormat
	}
	m.publicKey = append([]byte{}, buf[1:1+keyLen]...)
	return nil
}

// certificateVerify proves possession of the client key.
type certificateVerify struct {
	signature []byte
}

func (m *certificateVerify) marshal() []byte {
	out := binary.BigEndian.AppendUint16(nil, signatureECDSAWithSHA256)
	out = binary.BigEndian.AppendUint16(out, uint16(len(m.signature))) //nolint:gosec
	return append(out, m.signature...)
}

func (m *certificateVerify) unmarshal(buf []byte) error {
	if len(buf) < 4 {
		return errHandshakeTooShort
	}
	if binary.BigEndian.Uint16(buf) != signatureECDSAWithSHA256 {
		return errHandshakeFormat
	}
	sigLen := int(binary.BigEndian.Uint16(buf[2:]))
	if 4+sigLen > len(buf) {
		return errHandshakeFormat
	}
	m.signature = append([]byte{}, buf[4:4+sigLen]...)
	return nil
}

type finished struct {
	verifyData []byte
}

func (m *finished) marshal() []byte {
	return append([]byte{}, m.verifyData...)
}

func (m *finished) unmarshal(buf []byte) error {
	if len(buf) < 12 {
		return errHandshakeTooShort
	}
	m.verifyData = append([]byte{}, buf...)
	return nil
}

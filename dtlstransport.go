package webrtc

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ridgewood-io/webrtc/internal/dtls"
	"github.com/ridgewood-io/webrtc/internal/mux"
	"github.com/ridgewood-io/webrtc/internal/srtp"
)

// DTLSTransportState is the transport's lifecycle state.
type DTLSTransportState int

// Transport states.
const (
	DTLSTransportStateNew DTLSTransportState = iota
	DTLSTransportStateConnecting
	DTLSTransportStateConnected
	DTLSTransportStateClosed
	DTLSTransportStateFailed
)

// DTLSFingerprint is one a=fingerprint entry.
type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// DTLSParameters describes the remote DTLS endpoint.
type DTLSParameters struct {
	Role         DTLSRole          `json:"role"`
	Fingerprints []DTLSFingerprint `json:"fingerprints"`
}

// DTLSTransport terminates DTLS on the ICE-selected path. The
// handshake keys SRTP through the use_srtp extension and carries SCTP
// as application data.
type DTLSTransport struct {
	mu sync.Mutex

	iceTransport *ICETransport
	certificate  Certificate
	api          *API

	state DTLSTransportState
	role  DTLSRole

	conn *dtls.Conn

	srtpSession  *srtp.SessionSRTP
	srtcpSession *srtp.SessionSRTCP
	srtpReady    chan struct{}

	onStateChangeHdlr func(DTLSTransportState)
}

func (api *API) newDTLSTransport(iceTransport *ICETransport, certificates []Certificate) (*DTLSTransport, error) {
	t := &DTLSTransport{
		iceTransport: iceTransport,
		api:          api,
		state:        DTLSTransportStateNew,
		srtpReady:    make(chan struct{}),
	}
	if len(certificates) > 0 {
		if certificates[0].Expired() {
			return nil, ErrCertificateExpired
		}
		t.certificate = certificates[0]
	} else {
		cert, err := GenerateCertificate()
		if err != nil {
			return nil, err
		}
		t.certificate = *cert
	}
	return t, nil
}

// GetLocalParameters returns the fingerprints the local description
// advertises.
func (t *DTLSTransport) GetLocalParameters() DTLSParameters {
	return DTLSParameters{
		Role: DTLSRoleAuto,
		Fingerprints: []DTLSFingerprint{
			{Algorithm: "sha-256", Value: t.certificate.Fingerprint()},
		},
	}
}

// Role returns the negotiated role after Start.
func (t *DTLSTransport) Role() DTLSRole {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.role
}

// Start runs the handshake in the role derived from a=setup and pins
// the remote fingerprint. A mismatch is fatal before any media flows.
func (t *DTLSTransport) Start(remoteParameters DTLSParameters) error {
	t.mu.Lock()
	if t.state != DTLSTransportStateNew {
		t.mu.Unlock()
		return ErrConnectionClosed
	}
	t.state = DTLSTransportStateConnecting
	t.mu.Unlock()
	t.onStateChange(DTLSTransportStateConnecting)

	endpoint := t.iceTransport.newEndpoint(mux.MatchDTLS)
	if endpoint == nil {
		return ErrConnectionClosed
	}

	role := DTLSRoleClient
	if remoteParameters.Role == DTLSRoleClient {
		role = DTLSRoleServer
	}
	t.mu.Lock()
	t.role = role
	t.mu.Unlock()

	config := &dtls.Config{
		Certificate: t.certificate.tlsCertificate(),
		SRTPProtectionProfiles: []uint16{
			uint16(srtp.ProtectionProfileAeadAes128Gcm),
			uint16(srtp.ProtectionProfileAes128CmHmacSha1_80),
		},
		VerifyPeerCertificate: func(rawCert []byte) error {
			return verifyFingerprints(rawCert, remoteParameters.Fingerprints)
		},
		LoggerFactory: t.api.settingEngine.loggerFactory(),
	}

	var conn *dtls.Conn
	var err error
	if role == DTLSRoleClient {
		conn, err = dtls.Client(endpoint, config)
	} else {
		conn, err = dtls.Server(endpoint, config)
	}
	if err != nil {
		t.onStateChange(DTLSTransportStateFailed)
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.onStateChange(DTLSTransportStateConnected)

	return t.startSRTP()
}

var errNoMatchingFingerprint = errors.New("webrtc: remote certificate matches no announced fingerprint")

func verifyFingerprints(rawCert []byte, fingerprints []DTLSFingerprint) error {
	actual := fingerprintOf(rawCert)
	for _, fp := range fingerprints {
		if !strings.EqualFold(fp.Algorithm, "sha-256") {
			continue
		}
		if strings.EqualFold(fp.Value, actual) {
			return nil
		}
	}
	return errNoMatchingFingerprint
}

// startSRTP derives the SRTP sessions from the handshake's exported
// keying material (RFC 5764 Section 4.2).
func (t *DTLSTransport) startSRTP() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	profileID, ok := t.conn.SelectedSRTPProtectionProfile()
	if !ok {
		return errors.New("webrtc: peer negotiated no SRTP profile")
	}
	profile := srtp.ProtectionProfile(profileID)

	keyLen, err := profile.KeyLen()
	if err != nil {
		return err
	}
	saltLen, err := profile.SaltLen()
	if err != nil {
		return err
	}

	material, err := t.conn.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", (keyLen+saltLen)*2)
	if err != nil {
		return err
	}

	offset := 0
	clientWriteKey := material[offset : offset+keyLen]
	offset += keyLen
	serverWriteKey := material[offset : offset+keyLen]
	offset += keyLen
	clientWriteSalt := material[offset : offset+saltLen]
	offset += saltLen
	serverWriteSalt := material[offset : offset+saltLen]

	keys := srtp.SessionKeys{}
	if t.role == DTLSRoleClient {
		keys.LocalMasterKey, keys.LocalMasterSalt = clientWriteKey, clientWriteSalt
		keys.RemoteMasterKey, keys.RemoteMasterSalt = serverWriteKey, serverWriteSalt
	} else {
		keys.LocalMasterKey, keys.LocalMasterSalt = serverWriteKey, serverWriteSalt
		keys.RemoteMasterKey, keys.RemoteMasterSalt = clientWriteKey, clientWriteSalt
	}

	config := &srtp.Config{
		Keys:          keys,
		Profile:       profile,
		LoggerFactory: t.api.settingEngine.loggerFactory(),
	}

	srtpEndpoint := t.iceTransport.newEndpoint(mux.MatchSRTP)
	srtcpEndpoint := t.iceTransport.newEndpoint(mux.MatchSRTCP)
	if srtpEndpoint == nil || srtcpEndpoint == nil {
		return ErrConnectionClosed
	}

	if t.srtpSession, err = srtp.NewSessionSRTP(srtpEndpoint, config); err != nil {
		return err
	}
	if t.srtcpSession, err = srtp.NewSessionSRTCP(srtcpEndpoint, config); err != nil {
		return err
	}
	close(t.srtpReady)
	return nil
}

// getSRTPSession blocks until SRTP is keyed.
func (t *DTLSTransport) getSRTPSession() *srtp.SessionSRTP {
	<-t.srtpReady
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.srtpSession
}

func (t *DTLSTransport) getSRTCPSession() *srtp.SessionSRTCP {
	<-t.srtpReady
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.srtcpSession
}

// dtlsConn exposes the app-data stream to the SCTP transport.
func (t *DTLSTransport) dtlsConn() *dtls.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *DTLSTransport) onStateChange(s DTLSTransportState) {
	t.mu.Lock()
	t.state = s
	hdlr := t.onStateChangeHdlr
	t.mu.Unlock()
	if hdlr != nil {
		hdlr(s)
	}
}

// OnStateChange registers the state handler.
func (t *DTLSTransport) OnStateChange(f func(DTLSTransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChangeHdlr = f
}

// State returns the transport state.
func (t *DTLSTransport) State() DTLSTransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop closes the DTLS connection and SRTP sessions.
func (t *DTLSTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = DTLSTransportStateClosed

	var errs []error
	if t.srtpSession != nil {
		errs = append(errs, t.srtpSession.Close())
	}
	if t.srtcpSession != nil {
		errs = append(errs, t.srtcpSession.Close())
	}
	if t.conn != nil {
		errs = append(errs, t.conn.Close())
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

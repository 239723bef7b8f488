package dtls

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/packetio"
	"github.com/pkg/errors"
)

var (
	// ErrHandshakeTimeout is returned when the handshake does not
	// complete inside Config.HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("dtls: handshake timed out")
	// ErrVerifyFailed is returned when the peer certificate is
	// rejected by the verification callback.
	ErrVerifyFailed = errors.New("dtls: peer certificate verification failed")
	// ErrConnClosed is returned on use after Close.
	ErrConnClosed = errors.New("dtls: connection closed")
	errNoCertificate = errors.New("dtls: no certificate configured")
	errUnexpectedMsg = errors.New("dtls: unexpected handshake message")
)

const (
	defaultRetransmitInitial = time.Second
	retransmitMax            = 60 * time.Second
	defaultHandshakeTimeout  = 30 * time.Second
)

// Config configures a DTLS endpoint.
type Config struct {
	// Certificate is the self-signed leaf plus its ECDSA private key.
	Certificate tls.Certificate

	// SRTPProtectionProfiles offered (client) or accepted (server), in
	// preference order.
	SRTPProtectionProfiles []uint16

	// VerifyPeerCertificate is called with the peer's raw DER
	// certificate before the handshake completes. Returning an error
	// aborts the connection; media never flows on a mismatched
	// fingerprint.
	VerifyPeerCertificate func(rawCert []byte) error

	LoggerFactory logging.LoggerFactory

	// RetransmitInitial overrides the RFC 6347 initial retransmit
	// timer.
	RetransmitInitial time.Duration
	// HandshakeTimeout bounds the whole handshake.
	HandshakeTimeout time.Duration
}

// ConnectionState is a snapshot of the established connection.
type ConnectionState struct {
	PeerCertificate     []byte
	SRTPProtectionProfile uint16
}

// Conn is a DTLS 1.2 connection over a datagram net.Conn.
type Conn struct {
	nextConn net.Conn
	isClient bool
	config   *Config
	log      logging.LeveledLogger

	// record layer state
	localEpoch   uint16
	remoteEpoch  uint16
	localSeq     [2]uint64 // per epoch
	localCipher  *gcmCipher
	remoteCipher *gcmCipher

	// handshake transcript from the cookied ClientHello onward
	transcript []byte

	clientRandom [32]byte
	serverRandom [32]byte
	keypair      *ecdheKeypair
	masterSecret []byte

	localMsgSeq    uint16
	nextRecvMsgSeq uint16
	partials       map[uint16]*partialMessage

	srtpProfile     uint16
	peerCertificate []byte

	finalFlight    [][]byte // raw plaintext handshake messages of our last flight
	finalFlightCCS bool
	lastRetransmit time.Time

	// records that arrived encrypted before the session keys were
	// installed; replayed after installKeys
	pendingEncrypted [][]byte

	appData *packetio.Buffer

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

type partialMessage struct {
	header handshakeHeader
	body   []byte
	have   []bool
}

// Client runs the DTLS handshake in the client (active) role.
func Client(conn net.Conn, config *Config) (*Conn, error) {
	return handshake(conn, config, true)
}

// Server runs the DTLS handshake in the server (passive) role.
func Server(conn net.Conn, config *Config) (*Conn, error) {
	return handshake(conn, config, false)
}

func handshake(nextConn net.Conn, config *Config, isClient bool) (*Conn, error) {
	if len(config.Certificate.Certificate) == 0 {
		return nil, errNoCertificate
	}
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	c := &Conn{
		nextConn: nextConn,
		isClient: isClient,
		config:   config,
		log:      loggerFactory.NewLogger("dtls"),
		partials: map[uint16]*partialMessage{},
		appData:  packetio.NewBuffer(),
		done:     make(chan struct{}),
	}

	timeout := config.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}
	deadline := time.Now().Add(timeout)

	var err error
	if isClient {
		err = c.clientHandshake(deadline)
	} else {
		err = c.serverHandshake(deadline)
	}
	if err != nil {
		_ = c.sendAlert(alertLevelFatal, alertHandshakeFailure)
		_ = nextConn.SetReadDeadline(time.Time{})
		return nil, err
	}

	_ = nextConn.SetReadDeadline(time.Time{})
	go c.readLoop()
	return c, nil
}

// ConnectionState returns the negotiated parameters.
func (c *Conn) ConnectionState() ConnectionState {
	return ConnectionState{
		PeerCertificate:       c.peerCertificate,
		SRTPProtectionProfile: c.srtpProfile,
	}
}

// SelectedSRTPProtectionProfile returns the use_srtp result.
func (c *Conn) SelectedSRTPProtectionProfile() (uint16, bool) {
	return c.srtpProfile, c.srtpProfile != 0
}

// ExportKeyingMaterial implements the RFC 5705 exporter used by
// DTLS-SRTP.
func (c *Conn) ExportKeyingMaterial(label string, length int) ([]byte, error) {
	if c.masterSecret == nil {
		return nil, ErrConnClosed
	}
	return exportKeyingMaterial(c.masterSecret, c.clientRandom[:], c.serverRandom[:], label, length), nil
}

// Read returns the next application-data payload (one SCTP packet).
func (c *Conn) Read(p []byte) (int, error) {
	return c.appData.Read(p)
}

// Write sends one application-data payload.
func (c *Conn) Write(p []byte) (int, error) {
	select {
	case <-c.done:
		return 0, ErrConnClosed
	default:
	}
	if err := c.writeRecord(contentTypeApplicationData, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends close_notify and tears the connection down.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.sendAlert(alertLevelWarning, alertCloseNotify)
		close(c.done)
		_ = c.appData.Close()
		err = c.nextConn.Close()
	})
	return err
}

// LocalAddr returns the underlying transport address.
func (c *Conn) LocalAddr() net.Addr { return c.nextConn.LocalAddr() }

// RemoteAddr returns the underlying transport peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nextConn.RemoteAddr() }

// SetDeadline applies to reads.
func (c *Conn) SetDeadline(t time.Time) error { return c.appData.SetReadDeadline(t) }

// SetReadDeadline applies a deadline to blocked reads.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.appData.SetReadDeadline(t) }

// SetWriteDeadline is a stub; datagram writes do not block.
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

// ---- record layer ----

func (c *Conn) nextLocalSeq(epoch uint16) uint64 {
	seq := c.localSeq[epoch]
	c.localSeq[epoch]++
	return seq
}

func (c *Conn) writeRecord(ct contentType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeRecordLocked(ct, payload)
}

func (c *Conn) writeRecordLocked(ct contentType, payload []byte) error {
	hdr := recordHeader{
		contentType:    ct,
		epoch:          c.localEpoch,
		sequenceNumber: c.nextLocalSeq(c.localEpoch),
	}

	body := payload
	if c.localEpoch > 0 && c.localCipher != nil {
		body = c.localCipher.encrypt(hdr, payload)
	}
	hdr.length = uint16(len(body)) //nolint:gosec

	out := append(hdr.marshal(), body...)
	_, err := c.nextConn.Write(out)
	return err
}

func (c *Conn) sendAlert(level alertLevel, desc alertDescription) error {
	return c.writeRecord(contentTypeAlert, alert{level, desc}.marshal())
}

// ---- handshake message transport ----

// readHandshakeMessage blocks until the in-order handshake message
// arrives, processing CCS and alerts on the way.
func (c *Conn) readHandshakeMessage(deadline time.Time, retransmit func() error) (handshakeType, []byte, error) {
	retransmitIn := c.retransmitInitial()

	for {
		if t, body, ok := c.completeMessage(); ok {
			return t, body, nil
		}

		stepDeadline := time.Now().Add(retransmitIn)
		if stepDeadline.After(deadline) {
			stepDeadline = deadline
		}
		if err := c.nextConn.SetReadDeadline(stepDeadline); err != nil {
			return 0, nil, err
		}

		buf := make([]byte, 1<<16)
		n, err := c.nextConn.Read(buf)
		switch {
		case err == nil:
			if err := c.handleInboundDatagram(buf[:n]); err != nil {
				return 0, nil, err
			}
		case isTimeout(err):
			if !time.Now().Before(deadline) {
				return 0, nil, ErrHandshakeTimeout
			}
			if retransmit != nil {
				if err := retransmit(); err != nil {
					return 0, nil, err
				}
			}
			retransmitIn *= 2
			if retransmitIn > retransmitMax {
				retransmitIn = retransmitMax
			}
		default:
			return 0, nil, err
		}
	}
}

func (c *Conn) retransmitInitial() time.Duration {
	if c.config.RetransmitInitial != 0 {
		return c.config.RetransmitInitial
	}
	return defaultRetransmitInitial
}

func isTimeout(err error) bool {
	nerr, ok := err.(net.Error) //nolint:errorlint
	return ok && nerr.Timeout()
}

// completeMessage pops the next in-order fully reassembled message.
func (c *Conn) completeMessage() (handshakeType, []byte, bool) {
	p, ok := c.partials[c.nextRecvMsgSeq]
	if !ok || !p.complete() {
		return 0, nil, false
	}
	delete(c.partials, c.nextRecvMsgSeq)
	c.nextRecvMsgSeq++
	return p.header.handshakeType, p.body, true
}

func (p *partialMessage) complete() bool {
	for _, h := range p.have {
		if !h {
			return false
		}
	}
	return true
}

func (c *Conn) handleInboundDatagram(datagram []byte) error {
	return splitRecords(datagram, func(hdr recordHeader, payload []byte) error {
		if hdr.epoch > 0 {
			if c.remoteCipher == nil || hdr.epoch > c.remoteEpoch {
				// stash for replay once keys install; the Finished of a
				// packed flight lands here
				if len(c.pendingEncrypted) < 16 {
					raw := append(hdr.marshal(), payload...)
					c.pendingEncrypted = append(c.pendingEncrypted, raw)
				}
				return nil
			}
			var err error
			if payload, err = c.remoteCipher.decrypt(hdr, payload); err != nil {
				c.log.Debugf("discarding undecryptable record: %v", err)
				return nil
			}
		}

		switch hdr.contentType {
		case contentTypeHandshake:
			return c.handleHandshakeFragments(payload)
		case contentTypeChangeCipherSpec:
			c.remoteEpoch = 1
			return nil
		case contentTypeAlert:
			var a alert
			if err := a.unmarshal(payload); err != nil {
				return err
			}
			if a.description == alertCloseNotify || a.level == alertLevelFatal {
				return a
			}
			c.log.Warnf("received alert %v", a)
			return nil
		case contentTypeApplicationData:
			_, err := c.appData.Write(payload)
			return err
		}
		return nil
	})
}

func (c *Conn) handleHandshakeFragments(payload []byte) error {
	for len(payload) > 0 {
		var hdr handshakeHeader
		if err := hdr.unmarshal(payload); err != nil {
			return err
		}
		end := handshakeHeaderLen + int(hdr.fragmentLength)
		if end > len(payload) {
			return errHandshakeTooShort
		}
		frag := payload[handshakeHeaderLen:end]
		payload = payload[end:]

		if hdr.messageSeq < c.nextRecvMsgSeq {
			// retransmission of a message we already consumed
			c.maybeRetransmitFinalFlight()
			continue
		}

		p, ok := c.partials[hdr.messageSeq]
		if !ok {
			p = &partialMessage{
				header: hdr,
				body:   make([]byte, hdr.length),
				have:   make([]bool, hdr.length),
			}
			if hdr.length == 0 {
				p.have = []bool{}
			}
			c.partials[hdr.messageSeq] = p
		}
		if int(hdr.fragmentOffset)+len(frag) > len(p.body) {
			return errHandshakeFormat
		}
		copy(p.body[hdr.fragmentOffset:], frag)
		for i := 0; i < len(frag); i++ {
			p.have[int(hdr.fragmentOffset)+i] = true
		}
	}
	return nil
}

// appendReceivedToTranscript reconstructs the single-fragment form the
// hash is defined over.
func (c *Conn) appendReceivedToTranscript(t handshakeType, body []byte) {
	hdr := handshakeHeader{
		handshakeType:  t,
		length:         uint32(len(body)), //nolint:gosec
		messageSeq:     c.nextRecvMsgSeq - 1,
		fragmentOffset: 0,
		fragmentLength: uint32(len(body)), //nolint:gosec
	}
	c.transcript = append(c.transcript, hdr.marshal()...)
	c.transcript = append(c.transcript, body...)
}

func (c *Conn) transcriptHash() []byte {
	sum := sha256.Sum256(c.transcript)
	return sum[:]
}

// ---- post-handshake ----

func (c *Conn) readLoop() {
	buf := make([]byte, 1<<16)
	for {
		n, err := c.nextConn.Read(buf)
		if err != nil {
			_ = c.appData.Close()
			return
		}
		if err := c.handleInboundDatagram(buf[:n]); err != nil {
			var a alert
			if errors.As(err, &a) && a.description == alertCloseNotify {
				_ = c.appData.Close()
				return
			}
			c.log.Debugf("post-handshake record error: %v", err)
		}
	}
}

// maybeRetransmitFinalFlight answers peer retransmissions after we
// consider the handshake done, rate limited to one volley per second.
func (c *Conn) maybeRetransmitFinalFlight() {
	if len(c.finalFlight) == 0 || time.Since(c.lastRetransmit) < time.Second {
		return
	}
	c.lastRetransmit = time.Now()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for i, msg := range c.finalFlight {
		if c.finalFlightCCS && i == len(c.finalFlight)-1 {
			// the Finished of the final flight rides epoch 1; resend the
			// CCS before it
			savedEpoch := c.localEpoch
			c.localEpoch = 0
			_ = c.writeRecordLocked(contentTypeChangeCipherSpec, []byte{0x01})
			c.localEpoch = savedEpoch
		}
		_ = c.writeRecordLocked(contentTypeHandshake, msg)
	}
}

// generateCookie builds the stateless HelloVerifyRequest cookie.
func generateCookie(secret, clientRandom []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(clientRandom)
	return mac.Sum(nil)[:20]
}

func newRandom() ([32]byte, error) {
	var r [32]byte
	_, err := rand.Read(r[:])
	return r, err
}

func (c *Conn) installKeys(preMasterSecret []byte) error {
	c.masterSecret = prfMasterSecret(preMasterSecret, c.clientRandom[:], c.serverRandom[:])
	keys := prfEncryptionKeys(c.masterSecret, c.clientRandom[:], c.serverRandom[:])

	var localKey, localIV, remoteKey, remoteIV []byte
	if c.isClient {
		localKey, localIV = keys.clientWriteKey, keys.clientWriteIV
		remoteKey, remoteIV = keys.serverWriteKey, keys.serverWriteIV
	} else {
		localKey, localIV = keys.serverWriteKey, keys.serverWriteIV
		remoteKey, remoteIV = keys.clientWriteKey, keys.clientWriteIV
	}

	var err error
	if c.localCipher, err = newGCMCipher(localKey, localIV); err != nil {
		return err
	}
	if c.remoteCipher, err = newGCMCipher(remoteKey, remoteIV); err != nil {
		return err
	}

	pending := c.pendingEncrypted
	c.pendingEncrypted = nil
	for _, raw := range pending {
		if err := c.handleInboundDatagram(raw); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) verifyPeer(rawCert []byte) error {
	c.peerCertificate = rawCert
	if c.config.VerifyPeerCertificate != nil {
		if err := c.config.VerifyPeerCertificate(rawCert); err != nil {
			return errors.Wrap(ErrVerifyFailed, err.Error())
		}
	}
	return nil
}

func (cfg *Config) leaf() []byte {
	return cfg.Certificate.Certificate[0]
}

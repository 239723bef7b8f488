package sctp

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pkg/errors"
)

type associationState int

const (
	stateClosed associationState = iota
	stateCookieWait
	stateCookieEchoed
	stateEstablished
	stateShutdownPending
	stateShutdownSent
	stateShutdownReceived
	stateShutdownAckSent
)

const (
	initialMTU          = 1228
	maxPayloadSize      = initialMTU - packetHeaderSize - chunkHeaderSize - payloadDataHeaderSize
	defaultMaxInbound   = 1024
	initialRecvBufSize  = 1024 * 1024
	maxInitRetransmits  = 8
	defaultNumStreams   = 65535

	rtoInitial = 3 * time.Second
	rtoMin     = 1 * time.Second
	rtoMax     = 60 * time.Second

	heartbeatInterval = 30 * time.Second
)

var (
	// ErrAssociationClosed is returned on use after close.
	ErrAssociationClosed = errors.New("sctp: association closed")
	// ErrHandshakeFailed is returned when INIT or COOKIE exchange runs
	// out of retries.
	ErrHandshakeFailed = errors.New("sctp: handshake failed")
	// ErrAbortReceived is surfaced when the peer aborts.
	ErrAbortReceived = errors.New("sctp: abort received")
	errStreamExists  = errors.New("sctp: stream already open")
)

// Config collects the arguments to Client and Server.
type Config struct {
	// NetConn is the DTLS connection; one Read returns one SCTP
	// packet (RFC 8261 user-message boundary).
	NetConn net.Conn

	// MaxReceiveBufferSize is advertised as a_rwnd. 0 selects 1 MiB.
	MaxReceiveBufferSize uint32

	LoggerFactory logging.LoggerFactory
}

// Association is one SCTP association over DTLS.
type Association struct {
	mu sync.Mutex

	netConn net.Conn
	log     logging.LeveledLogger

	state    associationState
	isClient bool

	myVerificationTag   uint32
	peerVerificationTag uint32

	myNextTSN               uint32
	cumulativeTSNAckPoint   uint32
	advancedPeerTSNAckPoint uint32
	willSendForwardTSN      bool

	peerLastTSN   uint32
	received      *receivedQueue
	duplicateTSNs []uint32

	inflight inflightQueue
	pending  pendingQueue

	cwnd              uint32
	ssthresh          uint32
	partialBytesAcked uint32
	rwnd              uint32
	inFastRecovery    bool
	fastRecoverExit   uint32

	rto     time.Duration
	srtt    time.Duration
	rttvar  time.Duration
	t3      *time.Timer
	t3Running bool

	maxReceiveBufferSize uint32

	streams  map[uint16]*Stream
	acceptCh chan *Stream

	myNextSSNResetReqSN   uint32
	peerNextResetReqSN    uint32
	pendingResetRequests  map[uint32]*paramOutgoingResetRequest // ours, outstanding
	reconfigTimerRunning  bool

	storedCookie []byte
	initRetries  int

	handshakeCh  chan error
	closedCh     chan struct{}
	closeOnce    sync.Once
	closedChOnce sync.Once

	heartbeatTicker *time.Ticker
}

// Client starts an association in the active role: it sends INIT and
// completes the cookie exchange.
func Client(config Config) (*Association, error) {
	a := newAssociation(config, true)
	go a.readLoop()
	a.mu.Lock()
	a.state = stateCookieWait
	a.sendInit()
	a.mu.Unlock()
	return a.waitForHandshake()
}

// Server starts an association in the passive role.
func Server(config Config) (*Association, error) {
	a := newAssociation(config, false)
	go a.readLoop()
	return a.waitForHandshake()
}

func newAssociation(config Config, isClient bool) *Association {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	maxRecv := config.MaxReceiveBufferSize
	if maxRecv == 0 {
		maxRecv = initialRecvBufSize
	}

	tsn := randomUint32()
	a := &Association{
		netConn:  config.NetConn,
		log:      loggerFactory.NewLogger("sctp"),
		isClient: isClient,

		myVerificationTag: randomUint32(),
		myNextTSN:         tsn,

		cumulativeTSNAckPoint:   tsn - 1,
		advancedPeerTSNAckPoint: tsn - 1,

		received: newReceivedQueue(),

		// RFC 4960 Section 7.2.1
		cwnd:     min32(4*initialMTU, max32(2*initialMTU, 4404)),
		ssthresh: maxRecv,
		rwnd:     maxRecv,
		rto:      rtoInitial,

		maxReceiveBufferSize: maxRecv,

		streams:              map[uint16]*Stream{},
		acceptCh:             make(chan *Stream, 16),
		pendingResetRequests: map[uint32]*paramOutgoingResetRequest{},
		myNextSSNResetReqSN:  tsn,

		handshakeCh: make(chan error, 1),
		closedCh:    make(chan struct{}),
	}
	return a
}

func (a *Association) waitForHandshake() (*Association, error) {
	select {
	case err := <-a.handshakeCh:
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		return a, nil
	case <-a.closedCh:
		return nil, ErrAssociationClosed
	}
}

func randomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return binary.BigEndian.Uint32(b[:])
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// ---- packet transmit ----

func (a *Association) sendPacket(chunks ...chunk) {
	p := &packet{
		sourcePort:      defaultPort,
		destinationPort: defaultPort,
		verificationTag: a.peerVerificationTag,
		chunks:          chunks,
	}
	raw, err := p.marshal()
	if err != nil {
		a.log.Errorf("failed to marshal packet: %v", err)
		return
	}
	if _, err := a.netConn.Write(raw); err != nil {
		a.log.Debugf("failed to write packet: %v", err)
	}
}

// sendInit transmits INIT with verification tag zero.
func (a *Association) sendInit() {
	init := &chunkInit{initCommon{
		initiateTag:                    a.myVerificationTag,
		advertisedReceiverWindowCredit: a.maxReceiveBufferSize,
		numOutboundStreams:             defaultNumStreams,
		numInboundStreams:              defaultNumStreams,
		initialTSN:                     a.myNextTSN,
		forwardTSNSupported:            true,
	}}
	p := &packet{
		sourcePort:      defaultPort,
		destinationPort: defaultPort,
		verificationTag: 0,
		chunks:          []chunk{init},
	}
	raw, err := p.marshal()
	if err != nil {
		a.log.Errorf("failed to marshal INIT: %v", err)
		return
	}
	if _, err := a.netConn.Write(raw); err != nil {
		a.log.Debugf("failed to write INIT: %v", err)
	}
	a.scheduleHandshakeRetry(func() {
		if a.state == stateCookieWait {
			a.sendInit()
		}
	})
}

func (a *Association) scheduleHandshakeRetry(retry func()) {
	retries := a.initRetries
	a.initRetries++
	if retries > maxInitRetransmits {
		a.failHandshake(ErrHandshakeFailed)
		return
	}
	backoff := rtoInitial << uint(retries)
	if backoff > rtoMax {
		backoff = rtoMax
	}
	time.AfterFunc(backoff, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.state == stateCookieWait || a.state == stateCookieEchoed {
			retry()
		}
	})
}

func (a *Association) failHandshake(err error) {
	select {
	case a.handshakeCh <- err:
	default:
	}
}

func (a *Association) completeHandshake() {
	select {
	case a.handshakeCh <- nil:
	default:
	}
}

// ---- read path ----

func (a *Association) readLoop() {
	buf := make([]byte, 1<<16)
	for {
		n, err := a.netConn.Read(buf)
		if err != nil {
			a.shutdownStreams(err)
			return
		}
		if err := a.handlePacket(buf[:n]); err != nil {
			a.log.Debugf("dropping packet: %v", err)
		}
	}
}

func (a *Association) shutdownStreams(err error) {
	a.mu.Lock()
	streams := make([]*Stream, 0, len(a.streams))
	for _, s := range a.streams {
		streams = append(streams, s)
	}
	a.mu.Unlock()
	for _, s := range streams {
		s.closeWithError(err)
	}
	a.closedChOnce.Do(func() { close(a.closedCh) })
}


func (a *Association) handlePacket(raw []byte) error {
	p, chunks, err := unmarshalPacket(raw)
	if err != nil {
		return err
	}

	a.mu.Lock()

	hasInit := false
	for _, rc := range chunks {
		if rc.typ == ctInit {
			hasInit = true
		}
	}
	if !hasInit && p.verificationTag != a.myVerificationTag {
		a.mu.Unlock()
		return errors.Errorf("sctp: bad verification tag %08x", p.verificationTag)
	}

	var dataArrived bool
	for _, rc := range chunks {
		if err := a.handleChunk(rc, &dataArrived); err != nil {
			a.mu.Unlock()
			return err
		}
	}

	var notify []*Stream
	if dataArrived {
		a.sendSack()
		for _, s := range a.streams {
			notify = append(notify, s)
		}
	}
	a.mu.Unlock()

	// readers take their own lock; notify outside the association lock
	for _, s := range notify {
		s.notifyReadable()
	}
	return nil
}

func (a *Association) handleChunk(rc rawChunk, dataArrived *bool) error { //nolint:gocognit,gocyclo
	switch rc.typ {
	case ctInit:
		var c chunkInit
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.handleInit(&c)

	case ctInitAck:
		var c chunkInitAck
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.handleInitAck(&c)

	case ctCookieEcho:
		var c chunkCookieEcho
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.handleCookieEcho(&c)

	case ctCookieAck:
		if a.state == stateCookieEchoed {
			a.setEstablished()
		}

	case ctPayloadData:
		var c chunkPayloadData
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.handleData(&c)
		*dataArrived = true

	case ctSack:
		var c chunkSack
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.handleSack(&c)

	case ctHeartbeat:
		var c chunkHeartbeat
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.sendPacket(&chunkHeartbeatAck{info: c.info})

	case ctHeartbeatAck:
		// liveness confirmed, nothing to update

	case ctForwardTSN:
		var c chunkForwardTSN
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.handleForwardTSN(&c)
		*dataArrived = true

	case ctReconfig:
		var c chunkReconfig
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.handleReconfig(&c)

	case ctAbort:
		a.log.Warn("association aborted by peer")
		go a.abortInternal(ErrAbortReceived)

	case ctError:
		a.log.Warnf("received ERROR chunk")

	case ctShutdown:
		var c chunkShutdown
		if err := c.unmarshal(rc.flags, rc.value); err != nil {
			return err
		}
		a.inflight.popThrough(c.cumulativeTSNAck)
		a.state = stateShutdownReceived
		a.sendPacket(&chunkShutdownAck{})
		a.state = stateShutdownAckSent

	case ctShutdownAck:
		a.sendPacket(&chunkShutdownComplete{})
		go a.abortInternal(nil)

	case ctShutdownComplete:
		go a.abortInternal(nil)
	}
	return nil
}

func (a *Association) handleInit(init *chunkInit) {
	a.peerVerificationTag = init.initiateTag
	a.peerLastTSN = init.initialTSN - 1
	a.rwnd = init.advertisedReceiverWindowCredit

	if a.storedCookie == nil {
		a.storedCookie = make([]byte, 32)
		if _, err := rand.Read(a.storedCookie); err != nil {
			panic(err) // crypto/rand failure is unrecoverable
		}
	}

	ack := &chunkInitAck{initCommon{
		initiateTag:                    a.myVerificationTag,
		advertisedReceiverWindowCredit: a.maxReceiveBufferSize,
		numOutboundStreams:             defaultNumStreams,
		numInboundStreams:              defaultNumStreams,
		initialTSN:                     a.myNextTSN,
		stateCookie:                    a.storedCookie,
		forwardTSNSupported:            true,
	}}
	a.sendPacket(ack)
}

func (a *Association) handleInitAck(ack *chunkInitAck) {
	if a.state != stateCookieWait {
		return
	}
	a.peerVerificationTag = ack.initiateTag
	a.peerLastTSN = ack.initialTSN - 1
	a.rwnd = ack.advertisedReceiverWindowCredit
	a.state = stateCookieEchoed
	a.initRetries = 0

	cookie := ack.stateCookie
	sendEcho := func() {
		a.sendPacket(&chunkCookieEcho{cookie: cookie})
		a.scheduleHandshakeRetry(func() {
			if a.state == stateCookieEchoed {
				a.sendPacket(&chunkCookieEcho{cookie: cookie})
			}
		})
	}
	sendEcho()
}

func (a *Association) handleCookieEcho(c *chunkCookieEcho) {
	if a.storedCookie == nil || len(c.cookie) != len(a.storedCookie) {
		return
	}
	for i := range c.cookie {
		if c.cookie[i] != a.storedCookie[i] {
			return
		}
	}
	a.sendPacket(&chunkCookieAck{})
	if a.state != stateEstablished {
		a.setEstablished()
	}
}

func (a *Association) setEstablished() {
	a.state = stateEstablished
	a.completeHandshake()
	a.startHeartbeat()
}

func (a *Association) startHeartbeat() {
	if a.heartbeatTicker != nil {
		return
	}
	a.heartbeatTicker = time.NewTicker(heartbeatInterval)
	go func() {
		for {
			select {
			case <-a.closedCh:
				return
			case <-a.heartbeatTicker.C:
				a.mu.Lock()
				if a.state == stateEstablished {
					a.sendPacket(&chunkHeartbeat{info: []byte("ka")})
				}
				a.mu.Unlock()
			}
		}
	}()
}

func (a *Association) handleData(c *chunkPayloadData) {
	if sna32LTE(c.tsn, a.peerLastTSN) {
		a.duplicateTSNs = append(a.duplicateTSNs, c.tsn)
		return
	}
	if !a.received.push(c.tsn) {
		a.duplicateTSNs = append(a.duplicateTSNs, c.tsn)
		return
	}
	a.peerLastTSN = a.received.advance(a.peerLastTSN)

	s := a.getOrCreateStream(c.streamIdentifier)
	if s != nil {
		s.reassembly.push(c)
	}
}

func (a *Association) sendSack() {
	sack := &chunkSack{
		cumulativeTSNAck:               a.peerLastTSN,
		advertisedReceiverWindowCredit: a.maxReceiveBufferSize,
		gapAckBlocks:                   a.received.gapBlocks(a.peerLastTSN),
		duplicateTSN:                   a.duplicateTSNs,
	}
	a.duplicateTSNs = nil
	a.sendPacket(sack)
}

func (a *Association) getOrCreateStream(id uint16) *Stream {
	if s, ok := a.streams[id]; ok {
		return s
	}
	s := newStream(a, id)
	a.streams[id] = s
	select {
	case a.acceptCh <- s:
	default:
		a.log.Warnf("accept queue full, dropping stream %d", id)
		delete(a.streams, id)
		return nil
	}
	return s
}

// OpenStream opens (or claims) a stream for local use.
func (a *Association) OpenStream(id uint16, _ PayloadProtocolIdentifier) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.streams[id]; ok {
		return nil, errStreamExists
	}
	s := newStream(a, id)
	a.streams[id] = s
	return s, nil
}

// AcceptStream blocks until the peer opens a stream.
func (a *Association) AcceptStream() (*Stream, error) {
	select {
	case s := <-a.acceptCh:
		return s, nil
	case <-a.closedCh:
		return nil, ErrAssociationClosed
	}
}

// Close performs the SHUTDOWN sequence and tears the association
// down.
func (a *Association) Close() error {
	a.mu.Lock()
	if a.state == stateEstablished {
		a.state = stateShutdownSent
		a.sendPacket(&chunkShutdown{cumulativeTSNAck: a.peerLastTSN})
	}
	a.mu.Unlock()

	// give the peer a moment to complete the shutdown handshake
	select {
	case <-a.closedCh:
	case <-time.After(100 * time.Millisecond):
	}
	a.abortInternal(nil)
	return nil
}

// Abort sends ABORT and closes immediately.
func (a *Association) Abort(reason string) {
	a.mu.Lock()
	a.sendPacket(&chunkAbort{raw: []byte(reason)})
	a.mu.Unlock()
	a.abortInternal(ErrAbortReceived)
}

func (a *Association) abortInternal(err error) {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.state = stateClosed
		if a.heartbeatTicker != nil {
			a.heartbeatTicker.Stop()
		}
		a.stopT3()
		streams := make([]*Stream, 0, len(a.streams))
		for _, s := range a.streams {
			streams = append(streams, s)
		}
		a.mu.Unlock()

		for _, s := range streams {
			s.closeWithError(err)
		}
		a.closedChOnce.Do(func() { close(a.closedCh) })
		_ = a.netConn.Close()
	})
}

package ice

import (
	"context"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mdns/v2"
	"github.com/pion/randutil"
	"github.com/pion/transport/v4/packetio"
	"github.com/pion/turn/v4"

	"github.com/ridgewood-io/webrtc/internal/stun"
)

const (
	defaultCheckInterval       = 200 * time.Millisecond
	defaultKeepaliveInterval   = 15 * time.Second
	keepaliveJitter            = 3 * time.Second
	defaultDisconnectedTimeout = 20 * time.Second
	defaultFailedTimeout       = 30 * time.Second
	maxBindingRequests         = 7
	checkBackoffInitial        = 500 * time.Millisecond
	checkBackoffMax            = 6 * time.Second

	ufragLength = 16
	pwdLength   = 32

	receiveMTU = 8192
)

// AgentConfig collects the tunables for a new Agent. Zero values select
// the defaults above.
type AgentConfig struct {
	Urls []*URL

	// PortMin and PortMax bound the local UDP port, 0 meaning
	// ephemeral.
	PortMin uint16
	PortMax uint16

	// LocalUfrag and LocalPwd override the generated credentials,
	// used by tests and by ICE restarts.
	LocalUfrag string
	LocalPwd   string

	MulticastDNSMode     MulticastDNSMode
	MulticastDNSHostName string

	// CandidateTypes restricts gathering. Empty gathers every type the
	// configured servers allow.
	CandidateTypes []CandidateType

	// InterfaceFilter keeps only interfaces for which it returns true.
	InterfaceFilter func(string) bool

	// NAT1To1IPs substitutes the given public IPs into host candidates
	// for deployments with static NAT mappings.
	NAT1To1IPs []string

	KeepaliveInterval    *time.Duration
	DisconnectedTimeout  *time.Duration
	FailedTimeout        *time.Duration
	CheckInterval        *time.Duration

	LoggerFactory logging.LoggerFactory
}

type pendingRequest struct {
	transactionID [12]byte
	destination   *net.UDPAddr
	pair          *CandidatePair // nil for server binding queries
	isNomination  bool
	serverCh      chan *net.UDPAddr // non-nil for srflx queries
	sentAt        time.Time
}

// Agent represents one ICE agent: one component, one generation of
// credentials at a time, all state confined to the task loop.
type Agent struct {
	chanTasks chan func()
	done      chan struct{}
	closeOnce sync.Once

	log logging.LeveledLogger

	urls           []*URL
	portMin        uint16
	portMax        uint16
	candidateTypes []CandidateType
	interfaceFilter func(string) bool
	nat1To1IPs     []string

	mdnsMode MulticastDNSMode
	mdnsName string
	mdnsConn *mdns.Conn

	keepaliveInterval   time.Duration
	disconnectedTimeout time.Duration
	failedTimeout       time.Duration
	checkInterval       time.Duration

	role       Role
	tieBreaker uint64
	generation int

	localUfrag, localPwd   string
	remoteUfrag, remotePwd string

	udpConn     *net.UDPConn
	turnClients []*turn.Client
	relayConns  []net.PacketConn

	localCandidates  []*Candidate
	remoteCandidates []*Candidate
	checklist        []*CandidatePair

	queuedRemoteCandidates []*Candidate

	pendingRequests []*pendingRequest

	selectedPair atomic.Value // *CandidatePair
	// selectedGeneration is the credential generation the selected
	// pair was nominated under; a restart renominates
	selectedGeneration int

	connectionState ConnectionState
	gatheringState  GatheringState

	buffer *packetio.Buffer
	conn   *Conn

	// eventCh serializes handler callbacks so events reach the
	// application in transition order.
	eventCh chan func()

	onConnected   chan struct{}
	connectedOnce sync.Once

	onCandidateHdlr            func(*Candidate)
	onConnectionStateHdlr      func(ConnectionState)
	onSelectedCandidatePairHdlr func(*Candidate, *Candidate)

	nextKeepaliveAt time.Time
}

// NewAgent builds an agent and opens its component socket.
func NewAgent(config *AgentConfig) (*Agent, error) {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	a := &Agent{
		chanTasks:       make(chan func()),
		done:            make(chan struct{}),
		log:             loggerFactory.NewLogger("ice"),
		urls:            config.Urls,
		portMin:         config.PortMin,
		portMax:         config.PortMax,
		candidateTypes:  config.CandidateTypes,
		interfaceFilter: config.InterfaceFilter,
		nat1To1IPs:      config.NAT1To1IPs,
		mdnsMode:        config.MulticastDNSMode,
		mdnsName:        config.MulticastDNSHostName,

		keepaliveInterval:   defaultKeepaliveInterval,
		disconnectedTimeout: defaultDisconnectedTimeout,
		failedTimeout:       defaultFailedTimeout,
		checkInterval:       defaultCheckInterval,

		localUfrag: config.LocalUfrag,
		localPwd:   config.LocalPwd,

		connectionState: ConnectionStateNew,
		gatheringState:  GatheringStateNew,
		buffer:          packetio.NewBuffer(),
		eventCh:         make(chan func(), 128),
		onConnected:     make(chan struct{}),
	}

	if config.KeepaliveInterval != nil {
		a.keepaliveInterval = *config.KeepaliveInterval
	}
	if config.DisconnectedTimeout != nil {
		a.disconnectedTimeout = *config.DisconnectedTimeout
	}
	if config.FailedTimeout != nil {
		a.failedTimeout = *config.FailedTimeout
	}
	if config.CheckInterval != nil {
		a.checkInterval = *config.CheckInterval
	}

	if a.localUfrag == "" {
		a.localUfrag = randSeq(ufragLength)
	}
	if a.localPwd == "" {
		a.localPwd = randSeq(pwdLength)
	}

	tb, err := randutil.CryptoUint64()
	if err != nil {
		return nil, err
	}
	a.tieBreaker = tb

	if err := a.openSocket(); err != nil {
		return nil, err
	}

	if a.mdnsMode != MulticastDNSModeDisabled {
		if a.mdnsName == "" {
			a.mdnsName = GenerateMulticastDNSName()
		}
		conn, mdnsErr := createMulticastDNSServer(a.localMDNSName())
		if mdnsErr != nil {
			a.log.Warnf("mDNS disabled: %v", mdnsErr)
			a.mdnsMode = MulticastDNSModeDisabled
		} else {
			a.mdnsConn = conn
		}
	}

	go a.taskLoop()
	go a.eventLoop()
	go a.readLoop(a.udpConn, nil)
	return a, nil
}

func (a *Agent) eventLoop() {
	for {
		select {
		case <-a.done:
			return
		case ev := <-a.eventCh:
			ev()
		}
	}
}

// emit queues a handler callback for in-order delivery.
func (a *Agent) emit(ev func()) {
	select {
	case a.eventCh <- ev:
	default:
		a.log.Warn("event queue full, dropping event")
	}
}

func (a *Agent) localMDNSName() string {
	if a.mdnsMode == MulticastDNSModeQueryAndGather {
		return a.mdnsName
	}
	return ""
}

func randSeq(n int) string {
	s, err := randutil.GenerateCryptoRandomString(n, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	if err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return s
}

func (a *Agent) openSocket() error {
	if a.portMin == 0 && a.portMax == 0 {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
		if err != nil {
			return err
		}
		a.udpConn = conn
		return nil
	}
	for port := int(a.portMin); port <= int(a.portMax); port++ {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
		if err == nil {
			a.udpConn = conn
			return nil
		}
	}
	return ErrPort
}

// run schedules t on the task loop.
func (a *Agent) run(t func()) error {
	select {
	case <-a.done:
		return ErrClosed
	case a.chanTasks <- t:
		return nil
	}
}

// runAndWait schedules t and waits for it to finish.
func (a *Agent) runAndWait(t func()) error {
	doneCh := make(chan struct{})
	if err := a.run(func() {
		t()
		close(doneCh)
	}); err != nil {
		return err
	}
	<-doneCh
	return nil
}

func (a *Agent) taskLoop() {
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case t := <-a.chanTasks:
			t()
		case <-ticker.C:
			a.contact()
		}
	}
}

// OnCandidate registers the trickle handler. A nil candidate signals
// end of gathering.
func (a *Agent) OnCandidate(f func(*Candidate)) error {
	return a.run(func() { a.onCandidateHdlr = f })
}

// OnConnectionStateChange registers the state handler.
func (a *Agent) OnConnectionStateChange(f func(ConnectionState)) error {
	return a.run(func() { a.onConnectionStateHdlr = f })
}

// OnSelectedCandidatePairChange registers the nomination handler.
func (a *Agent) OnSelectedCandidatePairChange(f func(local, remote *Candidate)) error {
	return a.run(func() { a.onSelectedCandidatePairHdlr = f })
}

func (a *Agent) setConnectionState(s ConnectionState) {
	if a.connectionState == s || a.connectionState == ConnectionStateClosed {
		return
	}
	a.log.Infof("connection state %s -> %s", a.connectionState, s)
	a.connectionState = s
	if hdlr := a.onConnectionStateHdlr; hdlr != nil {
		a.emit(func() { hdlr(s) })
	}
	if s == ConnectionStateConnected {
		a.connectedOnce.Do(func() { close(a.onConnected) })
	}
}

// GetLocalUserCredentials returns the current generation's ufrag and
// pwd.
func (a *Agent) GetLocalUserCredentials() (string, string) {
	var ufrag, pwd string
	_ = a.runAndWait(func() {
		ufrag, pwd = a.localUfrag, a.localPwd
	})
	return ufrag, pwd
}

// GetLocalCandidates lists the gathered local candidates.
func (a *Agent) GetLocalCandidates() ([]*Candidate, error) {
	var out []*Candidate
	err := a.runAndWait(func() {
		out = append(out, a.localCandidates...)
	})
	return out, err
}

// SetRemoteCredentials installs the remote ufrag/pwd and flushes any
// queued remote candidates.
func (a *Agent) SetRemoteCredentials(ufrag, pwd string) error {
	if ufrag == "" || pwd == "" {
		return ErrRemoteCredentials
	}
	return a.run(func() {
		a.remoteUfrag, a.remotePwd = ufrag, pwd
		queued := a.queuedRemoteCandidates
		a.queuedRemoteCandidates = nil
		for _, c := range queued {
			a.addRemoteCandidateInternal(c)
		}
	})
}

// AddRemoteCandidate adds a candidate learned through signaling.
// Candidates arriving before the remote credentials are queued.
func (a *Agent) AddRemoteCandidate(c *Candidate) error {
	if c == nil {
		return nil
	}
	return a.run(func() {
		if a.remoteUfrag == "" {
			a.queuedRemoteCandidates = append(a.queuedRemoteCandidates, c)
			return
		}
		a.addRemoteCandidateInternal(c)
	})
}

func (a *Agent) addRemoteCandidateInternal(c *Candidate) {
	if a.mdnsMode != MulticastDNSModeDisabled && isMDNSName(c.Address) {
		go func() {
			addr, err := a.resolveMulticastDNSAddress(context.Background(), c.Address)
			if err != nil {
				a.log.Warnf("failed to resolve mDNS candidate %s: %v", c.Address, err)
				return
			}
			_ = a.run(func() {
				c.resolvedAddr = &net.UDPAddr{IP: addr.IP, Port: c.Port}
				a.insertRemoteCandidate(c)
			})
		}()
		return
	}
	a.insertRemoteCandidate(c)
}

func isMDNSName(addr string) bool {
	return len(addr) > 6 && addr[len(addr)-6:] == ".local"
}

func (a *Agent) insertRemoteCandidate(c *Candidate) {
	for _, existing := range a.remoteCandidates {
		if existing.Equal(c) {
			return
		}
	}
	a.remoteCandidates = append(a.remoteCandidates, c)
	a.formPairs()
	if a.connectionState == ConnectionStateNew && a.remoteUfrag != "" {
		a.setConnectionState(ConnectionStateChecking)
	}
}

// formPairs adds to the checklist every local/remote pair of matching
// component and protocol that it does not already hold, then sorts the
// checklist by pair priority. Pairs are not pruned by foundation.
func (a *Agent) formPairs() {
	for _, local := range a.localCandidates {
		for _, remote := range a.remoteCandidates {
			if local.Component != remote.Component || local.Protocol != remote.Protocol {
				continue
			}
			if a.findPair(local, remote) != nil {
				continue
			}
			a.checklist = append(a.checklist, &CandidatePair{
				Local:  local,
				Remote: remote,
				State:  CandidatePairStateWaiting,
			})
		}
	}
	sort.SliceStable(a.checklist, func(i, j int) bool {
		return a.checklist[i].Priority(a.role) > a.checklist[j].Priority(a.role)
	})
}

func (a *Agent) findPair(local, remote *Candidate) *CandidatePair {
	for _, p := range a.checklist {
		if p.Local == local && p.Remote == remote {
			return p
		}
		if p.Local.Equal(local) && p.Remote.Equal(remote) {
			return p
		}
	}
	return nil
}

func (a *Agent) loadSelectedPair() *CandidatePair {
	if pair, ok := a.selectedPair.Load().(*CandidatePair); ok {
		return pair
	}
	return nil
}

// getBestAvailablePair returns the selected pair, or the best
// succeeded pair before nomination completes.
func (a *Agent) getBestAvailablePair() *CandidatePair {
	if pair := a.loadSelectedPair(); pair != nil {
		return pair
	}
	var best *CandidatePair
	_ = a.runAndWait(func() {
		for _, p := range a.checklist {
			if p.State == CandidatePairStateSucceeded {
				best = p
				return
			}
		}
	})
	return best
}

// sendOnPair transmits a datagram using the pair's local candidate's
// socket.
func (a *Agent) sendOnPair(p []byte, pair *CandidatePair) (int, error) {
	dst := pair.Remote.addr()
	if pair.Local.Type == CandidateTypeRelay && pair.Local.relayConn != nil {
		return pair.Local.relayConn.WriteTo(p, dst)
	}
	return a.udpConn.WriteToUDP(p, dst)
}

// Dial starts connectivity checks in the controlling role.
func (a *Agent) Dial(ctx context.Context, remoteUfrag, remotePwd string) (*Conn, error) {
	return a.connect(ctx, RoleControlling, remoteUfrag, remotePwd)
}

// Accept starts connectivity checks in the controlled role.
func (a *Agent) Accept(ctx context.Context, remoteUfrag, remotePwd string) (*Conn, error) {
	return a.connect(ctx, RoleControlled, remoteUfrag, remotePwd)
}

func (a *Agent) connect(ctx context.Context, role Role, remoteUfrag, remotePwd string) (*Conn, error) {
	if err := a.run(func() { a.role = role }); err != nil {
		return nil, err
	}
	if err := a.SetRemoteCredentials(remoteUfrag, remotePwd); err != nil {
		return nil, err
	}
	if err := a.run(func() {
		if a.connectionState == ConnectionStateNew {
			a.setConnectionState(ConnectionStateChecking)
		}
		a.conn = &Conn{agent: a}
	}); err != nil {
		return nil, err
	}

	select {
	case <-a.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ErrConnectionTimeout
	case <-a.onConnected:
		return a.conn, nil
	}
}

// contact is the periodic heart of the agent: it paces connectivity
// checks while checking and consent freshness once connected.
func (a *Agent) contact() {
	switch a.connectionState {
	case ConnectionStateChecking, ConnectionStateDisconnected:
		a.paceChecks()
	case ConnectionStateConnected, ConnectionStateCompleted:
		a.checkConsent()
	default:
	}
	a.expirePendingRequests()
}

func (a *Agent) paceChecks() {
	if a.remotePwd == "" {
		return
	}

	now := time.Now()
	allFailed := len(a.checklist) > 0
	for _, p := range a.checklist {
		switch p.State {
		case CandidatePairStateWaiting:
			a.sendCheck(p, false)
		case CandidatePairStateInProgress:
			if p.checkCount >= maxBindingRequests {
				p.State = CandidatePairStateFailed
				continue
			}
			backoff := checkBackoffInitial << uint(p.checkCount-1)
			if backoff > checkBackoffMax {
				backoff = checkBackoffMax
			}
			if now.Sub(p.lastCheckAt) >= backoff {
				a.sendCheck(p, p.nominateOnResponse)
			}
		case CandidatePairStateSucceeded:
			// the controlling agent nominates the best succeeded pair;
			// after a restart the old generation's nomination no longer
			// counts
			needNomination := a.loadSelectedPair() == nil || a.selectedGeneration != a.generation
			if a.role == RoleControlling && needNomination && !p.nominateOnResponse {
				p.nominateOnResponse = true
				a.sendCheck(p, true)
			}
		}
		if p.State != CandidatePairStateFailed {
			allFailed = false
		}
	}

	if allFailed && a.gatheringState == GatheringStateComplete {
		a.setConnectionState(ConnectionStateFailed)
	}
}

func (a *Agent) checkConsent() {
	pair := a.loadSelectedPair()
	if pair == nil {
		return
	}
	now := time.Now()

	if now.After(a.nextKeepaliveAt) {
		a.sendCheck(pair, false)
		jitter := time.Duration(randutil.NewMathRandomGenerator().Intn(int(2*keepaliveJitter))) - keepaliveJitter
		a.nextKeepaliveAt = now.Add(a.keepaliveInterval + jitter)
	}

	elapsed := now.Sub(pair.lastReceiveAt)
	switch {
	case elapsed > a.failedTimeout:
		a.setConnectionState(ConnectionStateFailed)
	case elapsed > a.disconnectedTimeout:
		a.setConnectionState(ConnectionStateDisconnected)
	case a.connectionState == ConnectionStateDisconnected:
		a.setConnectionState(ConnectionStateConnected)
	}
}

func (a *Agent) expirePendingRequests() {
	cutoff := time.Now().Add(-10 * time.Second)
	kept := a.pendingRequests[:0]
	for _, r := range a.pendingRequests {
		if r.sentAt.After(cutoff) {
			kept = append(kept, r)
		} else if r.serverCh != nil {
			close(r.serverCh)
		}
	}
	a.pendingRequests = kept
}

// sendCheck issues one STUN Binding request for a pair (RFC 8445
// Section 7.2.4), optionally carrying USE-CANDIDATE.
func (a *Agent) sendCheck(p *CandidatePair, nominate bool) {
	msg := stun.New(stun.MessageType{Class: stun.ClassRequest, Method: stun.MethodBinding})
	msg.SetUsername(a.remoteUfrag + ":" + a.localUfrag)
	// peer-reflexive priority: as if this local candidate were prflx
	prflxPriority := (&Candidate{Type: CandidateTypePeerReflexive, Component: p.Local.Component}).computePriority(defaultLocalPreference)
	msg.SetPriority(prflxPriority)
	if a.role == RoleControlling {
		msg.SetICEControlling(a.tieBreaker)
		if nominate {
			msg.SetUseCandidate()
		}
	} else {
		msg.SetICEControlled(a.tieBreaker)
	}
	msg.AddMessageIntegrity(stun.NewShortTermKey(a.remotePwd))
	msg.AddFingerprint()

	a.pendingRequests = append(a.pendingRequests, &pendingRequest{
		transactionID: msg.TransactionID,
		destination:   p.Remote.addr(),
		pair:          p,
		isNomination:  nominate,
		sentAt:        time.Now(),
	})

	if p.State == CandidatePairStateWaiting {
		p.State = CandidatePairStateInProgress
		p.firstCheckAt = time.Now()
	}
	p.lastCheckAt = time.Now()
	p.checkCount++

	if _, err := a.sendOnPair(msg.Marshal(), p); err != nil {
		a.log.Debugf("check send failed: %v", err)
	}
}

// Close tears the agent down: sockets, relays, timers.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		_ = a.runAndWait(func() {
			a.setConnectionState(ConnectionStateClosed)
		})
		close(a.done)

		if a.udpConn != nil {
			err = a.udpConn.Close()
		}
		for _, c := range a.relayConns {
			_ = c.Close()
		}
		for _, c := range a.turnClients {
			c.Close()
		}
		if a.mdnsConn != nil {
			_ = a.mdnsConn.Close()
		}
		_ = a.buffer.Close()
	})
	return err
}

// Restart installs fresh credentials and discards the previous
// generation's candidates and checklist. The selected pair keeps
// forwarding data until a new pair is nominated.
func (a *Agent) Restart(ufrag, pwd string) error {
	if ufrag == "" {
		ufrag = randSeq(ufragLength)
	}
	if pwd == "" {
		pwd = randSeq(pwdLength)
	}
	return a.runAndWait(func() {
		if ufrag == a.localUfrag || pwd == a.localPwd {
			// forced distinct credentials per generation
			ufrag = randSeq(ufragLength)
			pwd = randSeq(pwdLength)
		}
		a.generation++
		a.localUfrag, a.localPwd = ufrag, pwd
		a.remoteUfrag, a.remotePwd = "", ""
		a.localCandidates = nil
		a.remoteCandidates = nil
		a.checklist = nil
		a.pendingRequests = nil
		a.gatheringState = GatheringStateNew
		// checks restart under the new generation; the old selected
		// pair keeps carrying data until a new nomination replaces it
		if a.connectionState != ConnectionStateNew {
			a.setConnectionState(ConnectionStateChecking)
		}
	})
}

// GetSelectedCandidatePair returns the nominated pair, nil before
// nomination.
func (a *Agent) GetSelectedCandidatePair() *CandidatePair {
	return a.loadSelectedPair()
}

// readLoop drains one socket. local is the relay candidate owning the
// socket, nil for the component socket.
func (a *Agent) readLoop(conn net.PacketConn, local *Candidate) {
	buf := make([]byte, receiveMTU)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		udpFrom, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		if stun.IsMessage(pkt) {
			_ = a.run(func() { a.handleInbound(pkt, local, udpFrom) })
			continue
		}
		// data path: every non-STUN datagram goes up the stack
		if _, err := a.buffer.Write(pkt); err != nil {
			return
		}
	}
}

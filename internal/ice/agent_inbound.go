package ice

import (
	"net"
	"strings"
	"time"

	"github.com/ridgewood-io/webrtc/internal/stun"
)

// handleInbound processes one STUN message arriving on local's socket
// (nil local means the component socket). Runs on the task loop.
func (a *Agent) handleInbound(raw []byte, local *Candidate, from *net.UDPAddr) {
	msg, err := stun.Unmarshal(raw)
	if err != nil {
		a.log.Debugf("dropping malformed STUN from %s: %v", from, err)
		return
	}

	switch msg.Type.Class {
	case stun.ClassRequest:
		a.handleBindingRequest(msg, local, from)
	case stun.ClassSuccessResponse:
		a.handleBindingSuccess(msg, from)
	case stun.ClassErrorResponse:
		a.handleBindingError(msg)
	case stun.ClassIndication:
		// binding indications refresh consent implicitly
		if pair := a.loadSelectedPair(); pair != nil {
			pair.lastReceiveAt = time.Now()
		}
	}
}

func (a *Agent) localCandidateForSocket(local *Candidate, from *net.UDPAddr) *Candidate {
	if local != nil {
		return local
	}
	// the component socket serves every host and srflx candidate; any
	// of them is equivalent for pairing, prefer host
	for _, c := range a.localCandidates {
		if c.Type == CandidateTypeHost {
			return c
		}
	}
	if len(a.localCandidates) > 0 {
		return a.localCandidates[0]
	}
	_ = from
	return nil
}

func (a *Agent) handleBindingRequest(msg *stun.Message, local *Candidate, from *net.UDPAddr) {
	username, err := msg.Username()
	if err != nil || !strings.HasPrefix(username, a.localUfrag+":") {
		a.log.Debugf("binding request with wrong username from %s", from)
		return
	}
	if err := msg.CheckIntegrity(stun.NewShortTermKey(a.localPwd)); err != nil {
		a.log.Debugf("binding request failed integrity from %s: %v", from, err)
		return
	}

	// role conflict resolution, RFC 8445 Section 7.3.1.1
	if remoteControlling, remoteTieBreaker, ok := msg.ICERole(); ok {
		switch {
		case remoteControlling && a.role == RoleControlling:
			if a.tieBreaker >= remoteTieBreaker {
				a.replyRoleConflict(msg, from, local)
				return
			}
			a.role = RoleControlled
		case !remoteControlling && a.role == RoleControlled:
			if a.tieBreaker >= remoteTieBreaker {
				a.role = RoleControlling
			} else {
				a.replyRoleConflict(msg, from, local)
				return
			}
		}
	}

	remote := a.findOrCreatePeerReflexive(msg, from)
	localCand := a.localCandidateForSocket(local, from)

	// respond before acting on the pair so the peer's check completes
	resp := stun.NewTransaction(stun.MessageType{Class: stun.ClassSuccessResponse, Method: stun.MethodBinding}, msg.TransactionID)
	resp.SetXORMappedAddress(from.IP, from.Port)
	resp.AddMessageIntegrity(stun.NewShortTermKey(a.localPwd))
	resp.AddFingerprint()
	a.sendTo(resp.Marshal(), local, from)

	if localCand == nil || remote == nil {
		return
	}

	pair := a.findPair(localCand, remote)
	if pair == nil {
		pair = &CandidatePair{Local: localCand, Remote: remote, State: CandidatePairStateWaiting}
		a.checklist = append(a.checklist, pair)
	}
	pair.lastReceiveAt = time.Now()

	// a successful inbound check triggers our own check on the same
	// pair (triggered check queue, RFC 8445 Section 7.3.1.4)
	if pair.State == CandidatePairStateFailed {
		pair.State = CandidatePairStateWaiting
		pair.checkCount = 0
	}

	if msg.HasUseCandidate() && a.role == RoleControlled {
		if pair.State == CandidatePairStateSucceeded {
			a.setSelectedPair(pair)
		} else {
			// nominate as soon as our own check of this pair succeeds
			pair.nominateOnResponse = true
		}
	}
}

func (a *Agent) replyRoleConflict(msg *stun.Message, from *net.UDPAddr, local *Candidate) {
	resp := stun.NewTransaction(stun.MessageType{Class: stun.ClassErrorResponse, Method: stun.MethodBinding}, msg.TransactionID)
	resp.SetErrorCode(stun.CodeRoleConflict, "Role Conflict")
	resp.AddMessageIntegrity(stun.NewShortTermKey(a.localPwd))
	resp.AddFingerprint()
	a.sendTo(resp.Marshal(), local, from)
}

// findOrCreatePeerReflexive maps the source address to a remote
// candidate, inserting a prflx candidate for unknown sources (RFC 8445
// Section 7.3.1.3).
func (a *Agent) findOrCreatePeerReflexive(msg *stun.Message, from *net.UDPAddr) *Candidate {
	for _, c := range a.remoteCandidates {
		addr := c.addr()
		if addr.IP.Equal(from.IP) && addr.Port == from.Port {
			return c
		}
	}

	priority, err := msg.Priority()
	if err != nil {
		priority = (&Candidate{Type: CandidateTypePeerReflexive, Component: 1}).computePriority(defaultLocalPreference)
	}
	prflx := &Candidate{
		Component: 1,
		Protocol:  ProtoTypeUDP,
		Priority:  priority,
		Address:   from.IP.String(),
		Port:      from.Port,
		Type:      CandidateTypePeerReflexive,
	}
	prflx.Foundation = prflx.computeFoundation()
	a.remoteCandidates = append(a.remoteCandidates, prflx)
	a.log.Infof("discovered peer-reflexive candidate %s", prflx)
	return prflx
}

func (a *Agent) handleBindingSuccess(msg *stun.Message, from *net.UDPAddr) {
	req := a.takePendingRequest(msg.TransactionID)
	if req == nil {
		a.log.Debugf("binding response with unknown transaction from %s", from)
		return
	}

	// srflx query against a STUN server: no integrity expected
	if req.serverCh != nil {
		ip, port, err := msg.XORMappedAddress()
		if err != nil {
			close(req.serverCh)
			return
		}
		req.serverCh <- &net.UDPAddr{IP: ip, Port: port}
		return
	}

	if !from.IP.Equal(req.destination.IP) || from.Port != req.destination.Port {
		a.log.Debugf("binding response from %s does not match destination %s", from, req.destination)
		return
	}
	if err := msg.CheckIntegrity(stun.NewShortTermKey(a.remotePwd)); err != nil {
		a.log.Debugf("binding response failed integrity: %v", err)
		return
	}

	pair := req.pair
	pair.State = CandidatePairStateSucceeded
	pair.lastReceiveAt = time.Now()

	// a mapped address that matches no local candidate is a new local
	// peer-reflexive candidate
	if ip, port, err := msg.XORMappedAddress(); err == nil {
		a.maybeAddLocalPeerReflexive(ip, port, pair.Local)
	}

	switch {
	case req.isNomination && a.role == RoleControlling:
		a.setSelectedPair(pair)
	case pair.nominateOnResponse && a.role == RoleControlled:
		a.setSelectedPair(pair)
	}
}

func (a *Agent) maybeAddLocalPeerReflexive(ip net.IP, port int, base *Candidate) {
	for _, c := range a.localCandidates {
		if c.Address == ip.String() && c.Port == port {
			return
		}
	}
	prflx := NewCandidate(CandidateTypePeerReflexive, base.Component, ip.String(), port,
		&RelatedAddress{Address: base.Address, Port: base.Port})
	prflx.Generation = a.generation
	a.localCandidates = append(a.localCandidates, prflx)
}

func (a *Agent) handleBindingError(msg *stun.Message) {
	req := a.takePendingRequest(msg.TransactionID)
	if req == nil || req.pair == nil {
		return
	}
	code, _, err := msg.ErrorCode()
	if err != nil {
		return
	}
	if code == stun.CodeRoleConflict {
		// switch role and retrigger the check
		if a.role == RoleControlling {
			a.role = RoleControlled
		} else {
			a.role = RoleControlling
		}
		req.pair.State = CandidatePairStateWaiting
		req.pair.checkCount = 0
		a.log.Infof("role conflict, switched to %s", a.role)
	} else {
		req.pair.State = CandidatePairStateFailed
	}
}

func (a *Agent) takePendingRequest(transactionID [12]byte) *pendingRequest {
	for i, r := range a.pendingRequests {
		if r.transactionID == transactionID {
			a.pendingRequests = append(a.pendingRequests[:i], a.pendingRequests[i+1:]...)
			return r
		}
	}
	return nil
}

// sendTo transmits raw via the socket owning local (component socket
// when local is nil).
func (a *Agent) sendTo(raw []byte, local *Candidate, to *net.UDPAddr) {
	var err error
	if local != nil && local.Type == CandidateTypeRelay && local.relayConn != nil {
		_, err = local.relayConn.WriteTo(raw, to)
	} else {
		_, err = a.udpConn.WriteToUDP(raw, to)
	}
	if err != nil {
		a.log.Debugf("send to %s failed: %v", to, err)
	}
}

func (a *Agent) setSelectedPair(pair *CandidatePair) {
	if existing := a.loadSelectedPair(); existing == pair {
		return
	}
	a.selectedGeneration = a.generation
	pair.nominated = true
	pair.lastReceiveAt = time.Now()
	a.selectedPair.Store(pair)
	a.nextKeepaliveAt = time.Now().Add(a.keepaliveInterval)
	a.log.Infof("selected pair %s", pair)

	if hdlr := a.onSelectedCandidatePairHdlr; hdlr != nil {
		a.emit(func() { hdlr(pair.Local, pair.Remote) })
	}
	a.setConnectionState(ConnectionStateConnected)
	// checks stop once a pair is nominated; a single selected pair per
	// component means the checklist is complete
	a.setConnectionState(ConnectionStateCompleted)
}

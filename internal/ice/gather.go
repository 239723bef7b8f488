package ice

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/turn/v4"

	"github.com/ridgewood-io/webrtc/internal/stun"
)

const (
	stunQueryTimeout = 3 * time.Second
	stunQueryRetries = 2
)

// GatherCandidates starts gathering asynchronously. Each candidate is
// delivered through OnCandidate as it resolves; a nil candidate marks
// the end of gathering.
func (a *Agent) GatherCandidates() error {
	return a.run(func() {
		if a.gatheringState == GatheringStateGathering {
			return
		}
		a.gatheringState = GatheringStateGathering
		go a.gatherAll()
	})
}

func (a *Agent) gatherTypeEnabled(t CandidateType) bool {
	if len(a.candidateTypes) == 0 {
		return true
	}
	for _, ct := range a.candidateTypes {
		if ct == t {
			return true
		}
	}
	return false
}

func (a *Agent) gatherAll() {
	var wg sync.WaitGroup

	if a.gatherTypeEnabled(CandidateTypeHost) {
		a.gatherHost()
	}
	if a.gatherTypeEnabled(CandidateTypeServerReflexive) {
		for _, u := range a.urls {
			if u.Scheme != SchemeTypeSTUN && u.Scheme != SchemeTypeSTUNS {
				continue
			}
			wg.Add(1)
			go func(u *URL) {
				defer wg.Done()
				a.gatherServerReflexive(u)
			}(u)
		}
	}
	if a.gatherTypeEnabled(CandidateTypeRelay) {
		for _, u := range a.urls {
			if u.Scheme != SchemeTypeTURN && u.Scheme != SchemeTypeTURNS {
				continue
			}
			wg.Add(1)
			go func(u *URL) {
				defer wg.Done()
				a.gatherRelay(u)
			}(u)
		}
	}
	wg.Wait()

	_ = a.run(func() {
		a.gatheringState = GatheringStateComplete
		if hdlr := a.onCandidateHdlr; hdlr != nil {
			a.emit(func() { hdlr(nil) })
		}
	})
}

// deliverCandidate installs a resolved local candidate and emits the
// trickle event.
func (a *Agent) deliverCandidate(c *Candidate) {
	_ = a.run(func() {
		c.Generation = a.generation
		for _, existing := range a.localCandidates {
			if existing.Equal(c) {
				return
			}
		}
		a.localCandidates = append(a.localCandidates, c)
		a.formPairs()
		if hdlr := a.onCandidateHdlr; hdlr != nil {
			a.emit(func() { hdlr(c) })
		}
	})
}

// localInterfaceIPs lists usable unicast IPv4 addresses. Loopback
// addresses are kept only when nothing else exists so tests and
// single-host setups still connect.
func (a *Agent) localInterfaceIPs() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var ips, loopback []net.IP
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if a.interfaceFilter != nil && !a.interfaceFilter(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			ip = ip.To4()
			if ip == nil {
				continue
			}
			if ip.IsLoopback() {
				loopback = append(loopback, ip)
			} else {
				ips = append(ips, ip)
			}
		}
	}
	if len(ips) == 0 {
		return loopback
	}
	return ips
}

func (a *Agent) gatherHost() {
	port := a.udpConn.LocalAddr().(*net.UDPAddr).Port //nolint:forcetypeassert

	ips := a.localInterfaceIPs()
	if len(a.nat1To1IPs) > 0 {
		ips = ips[:0]
		for _, raw := range a.nat1To1IPs {
			if ip := net.ParseIP(raw); ip != nil {
				ips = append(ips, ip)
			}
		}
	}

	for _, ip := range ips {
		address := ip.String()
		if a.mdnsMode == MulticastDNSModeQueryAndGather {
			address = a.mdnsName
		}
		c := NewCandidate(CandidateTypeHost, 1, address, port, nil)
		if a.mdnsMode == MulticastDNSModeQueryAndGather {
			// the obfuscated name still has to resolve locally for
			// pair addressing
			c.resolvedAddr = &net.UDPAddr{IP: ip, Port: port}
		}
		a.deliverCandidate(c)
		if a.mdnsMode == MulticastDNSModeQueryAndGather {
			// one mDNS name covers every interface
			break
		}
	}
}

// queryStunServer runs a Binding transaction against a STUN server via
// the component socket.
func (a *Agent) queryStunServer(server *net.UDPAddr) (*net.UDPAddr, error) {
	for attempt := 0; attempt <= stunQueryRetries; attempt++ {
		msg := stun.New(stun.MessageType{Class: stun.ClassRequest, Method: stun.MethodBinding})
		msg.SetSoftware(softwareName)
		msg.AddFingerprint()

		ch := make(chan *net.UDPAddr, 1)
		if err := a.run(func() {
			a.pendingRequests = append(a.pendingRequests, &pendingRequest{
				transactionID: msg.TransactionID,
				destination:   server,
				serverCh:      ch,
				sentAt:        time.Now(),
			})
		}); err != nil {
			return nil, err
		}

		if _, err := a.udpConn.WriteToUDP(msg.Marshal(), server); err != nil {
			return nil, err
		}

		select {
		case addr, ok := <-ch:
			if ok && addr != nil {
				return addr, nil
			}
		case <-time.After(stunQueryTimeout):
		case <-a.done:
			return nil, ErrClosed
		}
	}
	return nil, ErrGatheringTimeout
}

const softwareName = "ridgewood-webrtc"

func (a *Agent) gatherServerReflexive(u *URL) {
	serverAddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(u.Host, strconv.Itoa(u.Port)))
	if err != nil {
		a.log.Warnf("failed to resolve STUN server %s: %v", u, err)
		return
	}

	mapped, err := a.queryStunServer(serverAddr)
	if err != nil {
		a.log.Warnf("srflx gathering against %s failed: %v", u, err)
		return
	}

	localPort := a.udpConn.LocalAddr().(*net.UDPAddr).Port //nolint:forcetypeassert
	related := &RelatedAddress{Address: "0.0.0.0", Port: localPort}
	if ips := a.localInterfaceIPs(); len(ips) > 0 {
		related.Address = ips[0].String()
	}
	a.deliverCandidate(NewCandidate(CandidateTypeServerReflexive, 1, mapped.IP.String(), mapped.Port, related))
}

func (a *Agent) gatherRelay(u *URL) {
	if u.Username == "" || u.Password == "" {
		a.log.Warnf("skipping TURN server %s: no credentials", u)
		return
	}

	lc, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		a.log.Warnf("failed to open TURN socket: %v", err)
		return
	}

	serverAddr := net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: serverAddr,
		TURNServerAddr: serverAddr,
		Conn:           lc,
		Username:       u.Username,
		Password:       u.Password,
		LoggerFactory:  logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		a.log.Warnf("failed to build TURN client for %s: %v", u, err)
		_ = lc.Close()
		return
	}
	if err = client.Listen(); err != nil {
		a.log.Warnf("TURN client listen failed for %s: %v", u, err)
		client.Close()
		_ = lc.Close()
		return
	}

	relayConn, err := client.Allocate()
	if err != nil {
		a.log.Warnf("TURN allocate failed for %s: %v", u, err)
		client.Close()
		_ = lc.Close()
		return
	}

	relayAddr, ok := relayConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		a.log.Warnf("TURN relay address has unexpected type %T", relayConn.LocalAddr())
		_ = relayConn.Close()
		client.Close()
		return
	}

	c := NewCandidate(CandidateTypeRelay, 1, relayAddr.IP.String(), relayAddr.Port,
		&RelatedAddress{Address: u.Host, Port: u.Port})
	c.relayConn = relayConn

	_ = a.run(func() {
		a.turnClients = append(a.turnClients, client)
		a.relayConns = append(a.relayConns, relayConn)
	})
	go a.readLoop(relayConn, c)
	a.deliverCandidate(c)
}


package webrtc

import (
	"sync"

	"github.com/ridgewood-io/webrtc/internal/ice"
)

// ICEGathererState is the gatherer's lifecycle state.
type ICEGathererState int

// Gatherer states.
const (
	ICEGathererStateNew ICEGathererState = iota
	ICEGathererStateGathering
	ICEGathererStateComplete
	ICEGathererStateClosed
)

// ICEGatherer owns the ICE agent during candidate gathering and hands
// it to the ICETransport afterwards.
type ICEGatherer struct {
	mu    sync.Mutex
	state ICEGathererState
	agent *ice.Agent

	api            *API
	validatedURLs  []*ice.URL
	policy         ICETransportPolicy

	onLocalCandidateHdlr  func(*ICECandidate)
	onStateChangeHdlr     func(ICEGathererState)
}

// ICEParameters are one generation's local credentials.
type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite"`
}

func (api *API) newICEGatherer(servers []ICEServer, policy ICETransportPolicy) (*ICEGatherer, error) {
	var urls []*ice.URL
	for _, server := range servers {
		u, err := server.urls()
		if err != nil {
			return nil, err
		}
		urls = append(urls, u...)
	}
	return &ICEGatherer{
		api:           api,
		state:         ICEGathererStateNew,
		validatedURLs: urls,
		policy:        policy,
	}, nil
}

// createAgent builds the agent on first use; later calls reuse it.
func (g *ICEGatherer) createAgent() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.agent != nil {
		return nil
	}

	se := g.api.settingEngine
	config := &ice.AgentConfig{
		Urls:                 g.validatedURLs,
		PortMin:              se.ephemeralUDP.PortMin,
		PortMax:              se.ephemeralUDP.PortMax,
		LocalUfrag:           se.candidates.UsernameFragment,
		LocalPwd:             se.candidates.Password,
		MulticastDNSMode:     se.candidates.MulticastDNSMode,
		MulticastDNSHostName: se.candidates.MulticastDNSHostName,
		InterfaceFilter:      se.candidates.InterfaceFilter,
		NAT1To1IPs:           se.candidates.NAT1To1IPs,
		KeepaliveInterval:    se.timeout.ICEKeepaliveInterval,
		DisconnectedTimeout:  se.timeout.ICEDisconnectedTimeout,
		FailedTimeout:        se.timeout.ICEFailedTimeout,
		LoggerFactory:        se.loggerFactory(),
	}
	if g.policy == ICETransportPolicyRelay {
		config.CandidateTypes = []ice.CandidateType{ice.CandidateTypeRelay}
	}

	agent, err := ice.NewAgent(config)
	if err != nil {
		return err
	}
	g.agent = agent
	return nil
}

// Gather starts candidate gathering, emitting trickle events through
// OnLocalCandidate and a nil candidate at completion.
func (g *ICEGatherer) Gather() error {
	if err := g.createAgent(); err != nil {
		return err
	}

	g.mu.Lock()
	agent := g.agent
	g.setStateLocked(ICEGathererStateGathering)
	g.mu.Unlock()

	if err := agent.OnCandidate(func(c *ice.Candidate) {
		g.mu.Lock()
		hdlr := g.onLocalCandidateHdlr
		g.mu.Unlock()

		if c == nil {
			g.mu.Lock()
			g.setStateLocked(ICEGathererStateComplete)
			g.mu.Unlock()
			if hdlr != nil {
				hdlr(nil)
			}
			return
		}
		if hdlr != nil {
			candidate := newICECandidateFromICE(c)
			hdlr(&candidate)
		}
	}); err != nil {
		return err
	}
	return agent.GatherCandidates()
}

func (g *ICEGatherer) setStateLocked(s ICEGathererState) {
	g.state = s
	if hdlr := g.onStateChangeHdlr; hdlr != nil {
		go hdlr(s)
	}
}

// OnLocalCandidate registers the trickle handler.
func (g *ICEGatherer) OnLocalCandidate(f func(*ICECandidate)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onLocalCandidateHdlr = f
}

// OnStateChange registers the state handler.
func (g *ICEGatherer) OnStateChange(f func(ICEGathererState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStateChangeHdlr = f
}

// State returns the gatherer state.
func (g *ICEGatherer) State() ICEGathererState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// GetLocalParameters returns the current generation's credentials.
func (g *ICEGatherer) GetLocalParameters() (ICEParameters, error) {
	if err := g.createAgent(); err != nil {
		return ICEParameters{}, err
	}
	ufrag, pwd := g.agent.GetLocalUserCredentials()
	return ICEParameters{UsernameFragment: ufrag, Password: pwd}, nil
}

// GetLocalCandidates lists gathered candidates.
func (g *ICEGatherer) GetLocalCandidates() ([]ICECandidate, error) {
	if err := g.createAgent(); err != nil {
		return nil, err
	}
	iceCandidates, err := g.agent.GetLocalCandidates()
	if err != nil {
		return nil, err
	}
	out := make([]ICECandidate, 0, len(iceCandidates))
	for _, c := range iceCandidates {
		out = append(out, newICECandidateFromICE(c))
	}
	return out, nil
}

// restart rolls the agent to a new generation of credentials and
// regathers.
func (g *ICEGatherer) restart() error {
	g.mu.Lock()
	agent := g.agent
	g.mu.Unlock()
	if agent == nil {
		return ErrConnectionClosed
	}
	if err := agent.Restart("", ""); err != nil {
		return err
	}
	g.mu.Lock()
	g.state = ICEGathererStateNew
	g.mu.Unlock()
	return g.Gather()
}

// Close shuts the agent down.
func (g *ICEGatherer) Close() error {
	g.mu.Lock()
	agent := g.agent
	g.agent = nil
	g.state = ICEGathererStateClosed
	g.mu.Unlock()
	if agent == nil {
		return nil
	}
	return agent.Close()
}

func (g *ICEGatherer) getAgent() *ice.Agent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.agent
}

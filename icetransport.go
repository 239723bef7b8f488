package webrtc

import (
	"context"
	"sync"

	"github.com/ridgewood-io/webrtc/internal/ice"
	"github.com/ridgewood-io/webrtc/internal/mux"
)

// ICERole is the negotiation role of the transport.
type ICERole int

// Roles.
const (
	ICERoleControlling ICERole = iota
	ICERoleControlled
)

// ICETransportState mirrors the agent state at the transport level.
type ICETransportState int

// Transport states.
const (
	ICETransportStateNew ICETransportState = iota
	ICETransportStateChecking
	ICETransportStateConnected
	ICETransportStateCompleted
	ICETransportStateDisconnected
	ICETransportStateFailed
	ICETransportStateClosed
)

// ICETransport drives connectivity checks over the gatherer's agent
// and owns the demultiplexer on the nominated path.
type ICETransport struct {
	mu sync.Mutex

	gatherer *ICEGatherer
	role     ICERole
	state    ICETransportState

	conn *ice.Conn
	mux  *mux.Mux

	cancelCtx context.CancelFunc

	onConnectionStateChangeHdlr func(ICETransportState)
	onSelectedPairChangeHdlr    func(local, remote ICECandidate)
}

func (api *API) newICETransport(gatherer *ICEGatherer) *ICETransport {
	return &ICETransport{gatherer: gatherer, state: ICETransportStateNew}
}

// Start begins connectivity checks with the remote credentials. It
// returns once a pair is nominated.
func (t *ICETransport) Start(params ICEParameters, role ICERole) error {
	if err := t.gatherer.createAgent(); err != nil {
		return err
	}
	agent := t.gatherer.getAgent()
	if agent == nil {
		return ErrConnectionClosed
	}

	t.mu.Lock()
	t.role = role
	t.mu.Unlock()

	if err := agent.OnConnectionStateChange(func(s ice.ConnectionState) {
		t.setState(iceStateToTransportState(s))
	}); err != nil {
		return err
	}
	if err := agent.OnSelectedCandidatePairChange(func(local, remote *ice.Candidate) {
		t.mu.Lock()
		hdlr := t.onSelectedPairChangeHdlr
		t.mu.Unlock()
		if hdlr != nil {
			hdlr(newICECandidateFromICE(local), newICECandidateFromICE(remote))
		}
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancelCtx = cancel
	t.mu.Unlock()

	var conn *ice.Conn
	var err error
	if role == ICERoleControlling {
		conn, err = agent.Dial(ctx, params.UsernameFragment, params.Password)
	} else {
		conn, err = agent.Accept(ctx, params.UsernameFragment, params.Password)
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mux = mux.NewMux(mux.Config{
		Conn:          conn,
		BufferSize:    8192,
		LoggerFactory: t.gatherer.api.settingEngine.loggerFactory(),
	})
	t.mu.Unlock()
	return nil
}

// restart re-keys the agent for a new generation; the data path keeps
// flowing on the old pair until a new one is nominated.
func (t *ICETransport) restart() error {
	return t.gatherer.restart()
}

// setRemoteCredentials installs a new generation's remote ufrag/pwd
// after an ICE restart offer/answer.
func (t *ICETransport) setRemoteCredentials(params ICEParameters) error {
	agent := t.gatherer.getAgent()
	if agent == nil {
		return ErrConnectionClosed
	}
	return agent.SetRemoteCredentials(params.UsernameFragment, params.Password)
}

// AddRemoteCandidate feeds one trickled candidate to the agent.
func (t *ICETransport) AddRemoteCandidate(candidate *ICECandidate) error {
	agent := t.gatherer.getAgent()
	if agent == nil {
		return ErrConnectionClosed
	}
	if candidate == nil {
		return nil
	}
	c, err := candidate.iceCandidate()
	if err != nil {
		return err
	}
	return agent.AddRemoteCandidate(c)
}

// Role returns the negotiated role.
func (t *ICETransport) Role() ICERole {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.role
}

// State returns the transport state.
func (t *ICETransport) State() ICETransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *ICETransport) setState(s ICETransportState) {
	t.mu.Lock()
	if t.state == s || t.state == ICETransportStateClosed {
		t.mu.Unlock()
		return
	}
	t.state = s
	hdlr := t.onConnectionStateChangeHdlr
	t.mu.Unlock()
	if hdlr != nil {
		hdlr(s)
	}
}

// OnConnectionStateChange registers the state handler.
func (t *ICETransport) OnConnectionStateChange(f func(ICETransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnectionStateChangeHdlr = f
}

// OnSelectedCandidatePairChange registers the nomination handler.
func (t *ICETransport) OnSelectedCandidatePairChange(f func(local, remote ICECandidate)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSelectedPairChangeHdlr = f
}

// newEndpoint hands a datagram class to a consumer.
func (t *ICETransport) newEndpoint(f mux.MatchFunc) *mux.Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mux == nil {
		return nil
	}
	return t.mux.NewEndpoint(f)
}

// Stop closes the transport and the underlying agent.
func (t *ICETransport) Stop() error {
	t.mu.Lock()
	cancel := t.cancelCtx
	m := t.mux
	t.state = ICETransportStateClosed
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if m != nil {
		return m.Close() // closes the ice.Conn and agent below it
	}
	return t.gatherer.Close()
}

func iceStateToTransportState(s ice.ConnectionState) ICETransportState {
	switch s {
	case ice.ConnectionStateNew:
		return ICETransportStateNew
	case ice.ConnectionStateChecking:
		return ICETransportStateChecking
	case ice.ConnectionStateConnected:
		return ICETransportStateConnected
	case ice.ConnectionStateCompleted:
		return ICETransportStateCompleted
	case ice.ConnectionStateDisconnected:
		return ICETransportStateDisconnected
	case ice.ConnectionStateFailed:
		return ICETransportStateFailed
	case ice.ConnectionStateClosed:
		return ICETransportStateClosed
	}
	return ICETransportStateNew
}

package webrtc

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/ridgewood-io/webrtc/internal/datachannel"
	"github.com/ridgewood-io/webrtc/internal/sctp"
)

// SCTPTransportState is the association's lifecycle state.
type SCTPTransportState int

// Transport states.
const (
	SCTPTransportStateConnecting SCTPTransportState = iota
	SCTPTransportStateConnected
	SCTPTransportStateClosed
)

// SCTPCapabilities is exchanged through the a=max-message-size and
// sctp-port attributes.
type SCTPCapabilities struct {
	MaxMessageSize uint32 `json:"maxMessageSize"`
}

// SCTPTransport runs the SCTP association inside DTLS application
// data and accepts remotely opened data channels.
type SCTPTransport struct {
	mu sync.Mutex

	dtlsTransport *DTLSTransport
	api           *API

	state       SCTPTransportState
	association *sctp.Association

	onDataChannelHdlr func(*DataChannel)

	// channels opened locally before the association established
	pendingChannels []*DataChannel

	usedStreamIDs map[uint16]bool
}

func (api *API) newSCTPTransport(dtlsTransport *DTLSTransport) *SCTPTransport {
	return &SCTPTransport{
		dtlsTransport: dtlsTransport,
		api:           api,
		state:         SCTPTransportStateConnecting,
		usedStreamIDs: map[uint16]bool{},
	}
}

// GetCapabilities returns the local SCTP capabilities.
func (t *SCTPTransport) GetCapabilities() SCTPCapabilities {
	return SCTPCapabilities{MaxMessageSize: 65536}
}

// Start establishes the association once DTLS is connected. The DTLS
// client is the even-stream side per RFC 8832.
func (t *SCTPTransport) Start(SCTPCapabilities) error {
	conn := t.dtlsTransport.dtlsConn()
	if conn == nil {
		return ErrConnectionClosed
	}

	config := sctp.Config{
		NetConn:       conn,
		LoggerFactory: t.api.settingEngine.loggerFactory(),
	}

	var assoc *sctp.Association
	var err error
	if t.dtlsTransport.Role() == DTLSRoleClient {
		assoc, err = sctp.Client(config)
	} else {
		assoc, err = sctp.Server(config)
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.association = assoc
	t.state = SCTPTransportStateConnected
	pending := t.pendingChannels
	t.pendingChannels = nil
	t.mu.Unlock()

	for _, dc := range pending {
		dc.open(t)
	}

	go t.acceptLoop(assoc)
	return nil
}

func (t *SCTPTransport) acceptLoop(assoc *sctp.Association) {
	for {
		dc, err := datachannel.Accept(assoc, t.api.settingEngine.loggerFactory())
		if err != nil {
			// a malformed stream shouldn't end acceptance; a closed
			// association must
			if errors.Is(err, sctp.ErrAssociationClosed) {
				return
			}
			continue
		}

		t.markStreamID(dc.StreamIdentifier())
		apiDC := newDataChannelFromAccepted(dc)

		t.mu.Lock()
		hdlr := t.onDataChannelHdlr
		t.mu.Unlock()
		if hdlr != nil {
			hdlr(apiDC)
		}
		apiDC.handleOpen()
	}
}

// OnDataChannel registers the remote-channel handler.
func (t *SCTPTransport) OnDataChannel(f func(*DataChannel)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDataChannelHdlr = f
}

// State returns the transport state.
func (t *SCTPTransport) State() SCTPTransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// associationOrNil returns the association once established.
func (t *SCTPTransport) associationOrNil() *sctp.Association {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.association
}

// queuePending defers a locally created channel until Start.
func (t *SCTPTransport) queuePending(dc *DataChannel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingChannels = append(t.pendingChannels, dc)
}

// nextStreamID assigns ids with the parity the DTLS role dictates:
// even for the client, odd for the server (RFC 8832 Section 6).
func (t *SCTPTransport) nextStreamID() (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var id uint16
	if t.dtlsTransport.Role() != DTLSRoleClient {
		id = 1
	}
	for ; id < 65535; id += 2 {
		if !t.usedStreamIDs[id] {
			t.usedStreamIDs[id] = true
			return id, nil
		}
	}
	return 0, ErrMaxDataChannelID
}

// markStreamID records an id claimed by the peer or out-of-band
// negotiation.
func (t *SCTPTransport) markStreamID(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usedStreamIDs[id] = true
}

// Stop closes the association.
func (t *SCTPTransport) Stop() error {
	t.mu.Lock()
	assoc := t.association
	t.association = nil
	t.state = SCTPTransportStateClosed
	t.mu.Unlock()
	if assoc == nil {
		return nil
	}
	return assoc.Close()
}

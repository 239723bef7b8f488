package webrtc

import (
	"sync"

	"github.com/ridgewood-io/webrtc/internal/datachannel"
	"github.com/ridgewood-io/webrtc/pkg/dcep"
)

// DataChannelInit carries the options of CreateDataChannel.
type DataChannelInit struct {
	Ordered           *bool   `json:"ordered,omitempty"`
	MaxPacketLifeTime *uint16 `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    *uint16 `json:"maxRetransmits,omitempty"`
	Protocol          *string `json:"protocol,omitempty"`
	Negotiated        *bool   `json:"negotiated,omitempty"`
	ID                *uint16 `json:"id,omitempty"`
}

// DataChannelMessage is one received user message.
type DataChannelMessage struct {
	IsString bool
	Data     []byte
}

// DataChannel is the API object over one SCTP stream. It may exist
// before the transports connect; sends before open fail with
// ErrDataChannelNotOpen.
type DataChannel struct {
	mu sync.RWMutex

	label             string
	protocol          string
	ordered           bool
	maxPacketLifeTime *uint16
	maxRetransmits    *uint16
	negotiated        bool
	id                *uint16

	readyState                 DataChannelState
	bufferedAmountLowThreshold uint64

	dc *datachannel.DataChannel

	onOpenHdlr              func()
	onCloseHdlr             func()
	onMessageHdlr           func(DataChannelMessage)
	onErrorHdlr             func(error)
	onBufferedAmountLowHdlr func()

	openedOnce   sync.Once
	closedOnce   sync.Once
	readLoopOnce sync.Once
}

func newDataChannel(label string, options *DataChannelInit) *DataChannel {
	dc := &DataChannel{
		label:      label,
		ordered:    true,
		readyState: DataChannelStateConnecting,
	}
	if options != nil {
		if options.Ordered != nil {
			dc.ordered = *options.Ordered
		}
		dc.maxPacketLifeTime = options.MaxPacketLifeTime
		dc.maxRetransmits = options.MaxRetransmits
		if options.Protocol != nil {
			dc.protocol = *options.Protocol
		}
		if options.Negotiated != nil {
			dc.negotiated = *options.Negotiated
		}
		dc.id = options.ID
	}
	return dc
}

func newDataChannelFromAccepted(inner *datachannel.DataChannel) *DataChannel {
	id := inner.StreamIdentifier()
	dc := &DataChannel{
		label:      inner.Label,
		protocol:   inner.Protocol,
		ordered:    !inner.ChannelType.Unordered(),
		id:         &id,
		readyState: DataChannelStateConnecting,
		dc:         inner,
	}
	switch inner.ChannelType & 0x7f {
	case dcep.ChannelTypePartialReliableRexmit:
		v := uint16(inner.ReliabilityParameter) //nolint:gosec
		dc.maxRetransmits = &v
	case dcep.ChannelTypePartialReliableTimed:
		v := uint16(inner.ReliabilityParameter) //nolint:gosec
		dc.maxPacketLifeTime = &v
	}
	return dc
}

// channelType maps the options onto the DCEP encoding.
func (d *DataChannel) channelType() (dcep.ChannelType, uint32) {
	switch {
	case d.maxRetransmits != nil:
		t := dcep.ChannelTypePartialReliableRexmit
		if !d.ordered {
			t = dcep.ChannelTypePartialReliableRexmitUnordered
		}
		return t, uint32(*d.maxRetransmits)
	case d.maxPacketLifeTime != nil:
		t := dcep.ChannelTypePartialReliableTimed
		if !d.ordered {
			t = dcep.ChannelTypePartialReliableTimedUnordered
		}
		return t, uint32(*d.maxPacketLifeTime)
	default:
		if !d.ordered {
			return dcep.ChannelTypeReliableUnordered, 0
		}
		return dcep.ChannelTypeReliable, 0
	}
}

// open performs DCEP on the established transport.
func (d *DataChannel) open(t *SCTPTransport) {
	assoc := t.associationOrNil()
	if assoc == nil {
		t.queuePending(d)
		return
	}

	d.mu.Lock()
	if d.dc != nil {
		d.mu.Unlock()
		return
	}
	if d.id == nil {
		id, err := t.nextStreamID()
		if err != nil {
			d.mu.Unlock()
			d.onError(err)
			return
		}
		d.id = &id
	} else {
		t.markStreamID(*d.id)
	}
	channelType, reliability := d.channelType()
	config := &datachannel.Config{
		ChannelType:          channelType,
		Negotiated:           d.negotiated,
		ReliabilityParameter: reliability,
		Label:                d.label,
		Protocol:             d.protocol,
		LoggerFactory:        t.api.settingEngine.loggerFactory(),
	}
	id := *d.id
	d.mu.Unlock()

	inner, err := datachannel.Dial(assoc, id, config)
	if err != nil {
		d.onError(err)
		return
	}

	d.mu.Lock()
	d.dc = inner
	d.mu.Unlock()

	inner.OnOpen(func() { d.handleOpen() })
	d.startReadLoop()
}

// handleOpen transitions to open and fires the handler once.
func (d *DataChannel) handleOpen() {
	d.openedOnce.Do(func() {
		d.mu.Lock()
		d.readyState = DataChannelStateOpen
		hdlr := d.onOpenHdlr
		inner := d.dc
		d.mu.Unlock()

		if inner != nil {
			inner.OnStreamReset(d.handleClose)
			inner.OnBufferedAmountLow(func() {
				d.mu.RLock()
				f := d.onBufferedAmountLowHdlr
				d.mu.RUnlock()
				if f != nil {
					f()
				}
			})
		}
		if hdlr != nil {
			hdlr()
		}
		d.startReadLoop()
	})
}

// startReadLoop pumps messages to OnMessage. The opening side starts
// it before the ACK arrives (the loop consumes the ACK); the accepting
// side from handleOpen.
func (d *DataChannel) startReadLoop() {
	d.readLoopOnce.Do(func() { go d.readLoop() })
}

func (d *DataChannel) readLoop() {
	buf := make([]byte, 65536)
	for {
		d.mu.RLock()
		inner := d.dc
		d.mu.RUnlock()
		if inner == nil {
			return
		}
		n, isString, err := inner.ReadDataChannel(buf)
		if err != nil {
			d.handleClose()
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		d.mu.RLock()
		hdlr := d.onMessageHdlr
		d.mu.RUnlock()
		if hdlr != nil {
			hdlr(DataChannelMessage{IsString: isString, Data: data})
		}
	}
}

func (d *DataChannel) handleClose() {
	d.closedOnce.Do(func() {
		d.mu.Lock()
		d.readyState = DataChannelStateClosed
		hdlr := d.onCloseHdlr
		d.mu.Unlock()
		if hdlr != nil {
			hdlr()
		}
	})
}

func (d *DataChannel) onError(err error) {
	d.mu.RLock()
	hdlr := d.onErrorHdlr
	d.mu.RUnlock()
	if hdlr != nil {
		hdlr(err)
	}
}

// Label returns the channel label.
func (d *DataChannel) Label() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.label
}

// Protocol returns the subprotocol.
func (d *DataChannel) Protocol() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.protocol
}

// Ordered reports whether delivery is ordered.
func (d *DataChannel) Ordered() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ordered
}

// MaxRetransmits returns the partial reliability retransmit bound.
func (d *DataChannel) MaxRetransmits() *uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxRetransmits
}

// MaxPacketLifeTime returns the partial reliability lifetime bound in
// milliseconds.
func (d *DataChannel) MaxPacketLifeTime() *uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxPacketLifeTime
}

// Negotiated reports out-of-band negotiation.
func (d *DataChannel) Negotiated() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.negotiated
}

// ID returns the SCTP stream id, nil before assignment.
func (d *DataChannel) ID() *uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

// ReadyState returns the channel state.
func (d *DataChannel) ReadyState() DataChannelState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readyState
}

// OnOpen registers the open handler.
func (d *DataChannel) OnOpen(f func()) {
	d.mu.Lock()
	state := d.readyState
	d.onOpenHdlr = f
	d.mu.Unlock()
	if state == DataChannelStateOpen && f != nil {
		go f()
	}
}

// OnClose registers the close handler.
func (d *DataChannel) OnClose(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCloseHdlr = f
}

// OnMessage registers the message handler.
func (d *DataChannel) OnMessage(f func(DataChannelMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessageHdlr = f
}

// OnError registers the error handler.
func (d *DataChannel) OnError(f func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onErrorHdlr = f
}

// Send transmits a binary message.
func (d *DataChannel) Send(data []byte) error {
	inner, err := d.innerIfOpen()
	if err != nil {
		return err
	}
	_, err = inner.WriteDataChannel(data, false)
	return err
}

// SendText transmits a string message.
func (d *DataChannel) SendText(text string) error {
	inner, err := d.innerIfOpen()
	if err != nil {
		return err
	}
	_, err = inner.WriteDataChannel([]byte(text), true)
	return err
}

func (d *DataChannel) innerIfOpen() (*datachannel.DataChannel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.readyState != DataChannelStateOpen || d.dc == nil {
		return nil, ErrDataChannelNotOpen
	}
	return d.dc, nil
}

// BufferedAmount returns queued-but-unacknowledged bytes.
func (d *DataChannel) BufferedAmount() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.dc == nil {
		return 0
	}
	return d.dc.BufferedAmount()
}

// BufferedAmountLowThreshold returns the backpressure threshold.
func (d *DataChannel) BufferedAmountLowThreshold() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bufferedAmountLowThreshold
}

// SetBufferedAmountLowThreshold configures the backpressure
// threshold.
func (d *DataChannel) SetBufferedAmountLowThreshold(th uint64) {
	d.mu.Lock()
	d.bufferedAmountLowThreshold = th
	inner := d.dc
	d.mu.Unlock()
	if inner != nil {
		inner.SetBufferedAmountLowThreshold(th)
	}
}

// OnBufferedAmountLow registers the backpressure handler.
func (d *DataChannel) OnBufferedAmountLow(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onBufferedAmountLowHdlr = f
}

// Close resets the channel's stream and moves the state to closed as
// soon as the local close returns; it does not wait for the peer to
// confirm the reset.
func (d *DataChannel) Close() error {
	d.mu.Lock()
	if d.readyState == DataChannelStateClosed || d.readyState == DataChannelStateClosing {
		d.mu.Unlock()
		return nil
	}
	d.readyState = DataChannelStateClosing
	inner := d.dc
	d.mu.Unlock()

	if inner != nil {
		if err := inner.Close(); err != nil {
			return err
		}
	}
	d.handleClose()
	return nil
}

// Package datachannel binds the DCEP establishment protocol (RFC
// 8832) onto SCTP streams: channel negotiation, the PPI-based
// string/binary framing and reliability mapping of RFC 8831.
package datachannel

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pkg/errors"

	"github.com/ridgewood-io/webrtc/internal/sctp"
	"github.com/ridgewood-io/webrtc/pkg/dcep"
)

var (
	// ErrTimeout is returned on establishment timeouts.
	ErrTimeout = errors.New("datachannel: timed out")
	errUnexpectedMessage = errors.New("datachannel: expected a DCEP message")
)

// Config carries the channel parameters negotiated through DCEP.
type Config struct {
	ChannelType          dcep.ChannelType
	Negotiated           bool
	Priority             uint16
	ReliabilityParameter uint32
	Label                string
	Protocol             string
	LoggerFactory        logging.LoggerFactory
}

// DataChannel is one user-visible channel over an SCTP stream.
type DataChannel struct {
	Config

	stream *sctp.Stream
	log    logging.LeveledLogger

	mu        sync.Mutex
	openAcked bool
	onOpen    func()
}

func logger(f logging.LoggerFactory) logging.LeveledLogger {
	if f == nil {
		f = logging.NewDefaultLoggerFactory()
	}
	return f.NewLogger("datachannel")
}

// applyReliability maps the DCEP channel type onto the stream's
// partial reliability settings.
func applyReliability(stream *sctp.Stream, config *Config) {
	unordered := config.ChannelType.Unordered()
	switch config.ChannelType & 0x7f {
	case dcep.ChannelTypePartialReliableRexmit:
		stream.SetReliabilityParams(unordered, sctp.ReliabilityTypeRexmit, config.ReliabilityParameter)
	case dcep.ChannelTypePartialReliableTimed:
		stream.SetReliabilityParams(unordered, sctp.ReliabilityTypeTimed, config.ReliabilityParameter)
	default:
		stream.SetReliabilityParams(unordered, sctp.ReliabilityTypeReliable, 0)
	}
}

// Dial opens stream id on the association and performs the DCEP OPEN
// exchange (unless the channel was negotiated out of band).
func Dial(a *sctp.Association, id uint16, config *Config) (*DataChannel, error) {
	stream, err := a.OpenStream(id, sctp.PayloadTypeWebRTCBinary)
	if err != nil {
		return nil, err
	}
	return Client(stream, config)
}

// Client runs the opening side of DCEP on an existing stream.
func Client(stream *sctp.Stream, config *Config) (*DataChannel, error) {
	applyReliability(stream, config)

	dc := &DataChannel{
		Config: *config,
		stream: stream,
		log:    logger(config.LoggerFactory),
	}

	if !config.Negotiated {
		open := &dcep.Open{
			ChannelType:          config.ChannelType,
			Priority:             config.Priority,
			ReliabilityParameter: config.ReliabilityParameter,
			Label:                config.Label,
			Protocol:             config.Protocol,
		}
		raw, err := open.Marshal()
		if err != nil {
			return nil, err
		}
		if _, err := stream.WriteSCTP(raw, sctp.PayloadTypeWebRTCDCEP); err != nil {
			return nil, err
		}
	} else {
		dc.openAcked = true
	}
	return dc, nil
}

// Accept waits for a remote stream and its DCEP OPEN.
func Accept(a *sctp.Association, loggerFactory logging.LoggerFactory) (*DataChannel, error) {
	stream, err := a.AcceptStream()
	if err != nil {
		return nil, err
	}
	return Server(stream, loggerFactory)
}

// Server runs the accepting side of DCEP on a stream: it reads the
// OPEN and answers with ACK.
func Server(stream *sctp.Stream, loggerFactory logging.LoggerFactory) (*DataChannel, error) {
	buf := make([]byte, 4096)
	n, ppi, err := stream.ReadSCTP(buf)
	if err != nil {
		return nil, err
	}
	if ppi != sctp.PayloadTypeWebRTCDCEP {
		return nil, errUnexpectedMessage
	}
	msg, err := dcep.Parse(buf[:n])
	if err != nil {
		return nil, err
	}
	open, ok := msg.(*dcep.Open)
	if !ok {
		return nil, errUnexpectedMessage
	}

	config := &Config{
		ChannelType:          open.ChannelType,
		Priority:             open.Priority,
		ReliabilityParameter: open.ReliabilityParameter,
		Label:                open.Label,
		Protocol:             open.Protocol,
		LoggerFactory:        loggerFactory,
	}
	applyReliability(stream, config)

	ack, err := (&dcep.Ack{}).Marshal()
	if err != nil {
		return nil, err
	}
	if _, err := stream.WriteSCTP(ack, sctp.PayloadTypeWebRTCDCEP); err != nil {
		return nil, err
	}

	return &DataChannel{
		Config:    *config,
		stream:    stream,
		log:       logger(loggerFactory),
		openAcked: true,
	}, nil
}

// StreamIdentifier returns the channel's SCTP stream id.
func (c *DataChannel) StreamIdentifier() uint16 {
	return c.stream.StreamIdentifier()
}

// OnOpen registers a callback fired when the opener receives the DCEP
// ACK.
func (c *DataChannel) OnOpen(f func()) {
	c.mu.Lock()
	acked := c.openAcked
	c.onOpen = f
	c.mu.Unlock()
	if acked && f != nil {
		go f()
	}
}

// ReadDataChannel returns the next user message and whether it is a
// string. DCEP ACKs are consumed internally.
func (c *DataChannel) ReadDataChannel(p []byte) (int, bool, error) {
	for {
		n, ppi, err := c.stream.ReadSCTP(p)
		if err != nil {
			return 0, false, err
		}

		switch ppi {
		case sctp.PayloadTypeWebRTCDCEP:
			if msg, err := dcep.Parse(p[:n]); err == nil {
				if _, ok := msg.(*dcep.Ack); ok {
					c.markOpen()
				}
			}
			continue
		case sctp.PayloadTypeWebRTCString, sctp.PayloadTypeWebRTCStringEmpty:
			if ppi == sctp.PayloadTypeWebRTCStringEmpty {
				n = 0
			}
			return n, true, nil
		case sctp.PayloadTypeWebRTCBinaryEmpty:
			return 0, false, nil
		default:
			return n, false, nil
		}
	}
}

func (c *DataChannel) markOpen() {
	c.mu.Lock()
	already := c.openAcked
	c.openAcked = true
	f := c.onOpen
	c.mu.Unlock()
	if !already && f != nil {
		go f()
	}
}

// Read reads the next message as binary.
func (c *DataChannel) Read(p []byte) (int, error) {
	n, _, err := c.ReadDataChannel(p)
	return n, err
}

// WriteDataChannel sends one message with string or binary framing.
// Empty messages use the dedicated empty PPIs, which SCTP cannot carry
// as zero-length DATA.
func (c *DataChannel) WriteDataChannel(p []byte, isString bool) (int, error) {
	var ppi sctp.PayloadProtocolIdentifier
	switch {
	case isString && len(p) > 0:
		ppi = sctp.PayloadTypeWebRTCString
	case isString:
		ppi, p = sctp.PayloadTypeWebRTCStringEmpty, []byte{0}
	case len(p) > 0:
		ppi = sctp.PayloadTypeWebRTCBinary
	default:
		ppi, p = sctp.PayloadTypeWebRTCBinaryEmpty, []byte{0}
	}
	return c.stream.WriteSCTP(p, ppi)
}

// Write sends a binary message.
func (c *DataChannel) Write(p []byte) (int, error) {
	return c.WriteDataChannel(p, false)
}

// BufferedAmount returns queued-but-unacknowledged bytes.
func (c *DataChannel) BufferedAmount() uint64 {
	return c.stream.BufferedAmount()
}

// BufferedAmountLowThreshold returns the configured threshold.
func (c *DataChannel) BufferedAmountLowThreshold() uint64 {
	return c.stream.BufferedAmountLowThreshold()
}

// SetBufferedAmountLowThreshold configures the backpressure
// threshold.
func (c *DataChannel) SetBufferedAmountLowThreshold(th uint64) {
	c.stream.SetBufferedAmountLowThreshold(th)
}

// OnBufferedAmountLow registers the backpressure callback.
func (c *DataChannel) OnBufferedAmountLow(f func()) {
	c.stream.OnBufferedAmountLow(f)
}

// OnStreamReset registers a callback for peer-initiated closure.
func (c *DataChannel) OnStreamReset(f func()) {
	c.stream.OnReset(f)
}

// Close resets the channel's outgoing stream (RFC 8831 Section 6.7).
func (c *DataChannel) Close() error {
	return c.stream.Close()
}

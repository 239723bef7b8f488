package interceptor

import (
	"sync"
	"time"

	"github.com/ridgewood-io/webrtc/pkg/rtcp"
)

const (
	defaultNackLogSize    = 512
	defaultNackInterval   = 100 * time.Millisecond
	maxNacksPerPacket     = 10
	skipLastPackets       = 2
)

// NackGenerator watches one inbound stream's sequence numbers and
// periodically produces Generic NACKs for the holes, at most
// maxNacksPerPacket retries per missing packet.
type NackGenerator struct {
	mu        sync.Mutex
	log       *ReceiveLog
	mediaSSRC uint32
	senderSSRC uint32

	// nackCounts caps per-sequence retries
	nackCounts map[uint16]int
}

// NewNackGenerator builds a generator for one SSRC.
func NewNackGenerator(senderSSRC, mediaSSRC uint32) (*NackGenerator, error) {
	log, err := NewReceiveLog(defaultNackLogSize)
	if err != nil {
		return nil, err
	}
	return &NackGenerator{
		log:        log,
		mediaSSRC:  mediaSSRC,
		senderSSRC: senderSSRC,
		nackCounts: map[uint16]int{},
	}, nil
}

// MarkReceived records an arrived sequence number.
func (n *NackGenerator) MarkReceived(seq uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.log.Add(seq)
	delete(n.nackCounts, seq)
}

// Pending builds a NACK for the current holes, nil when there is
// nothing to report.
func (n *NackGenerator) Pending() *rtcp.TransportLayerNack {
	n.mu.Lock()
	defer n.mu.Unlock()

	missing := n.log.MissingSeqNumbers(skipLastPackets)
	if len(missing) == 0 {
		return nil
	}

	eligible := missing[:0]
	for _, seq := range missing {
		if n.nackCounts[seq] < maxNacksPerPacket {
			n.nackCounts[seq]++
			eligible = append(eligible, seq)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	return &rtcp.TransportLayerNack{
		SenderSSRC: n.senderSSRC,
		MediaSSRC:  n.mediaSSRC,
		Nacks:      rtcp.NackPairsFromSequenceNumbers(eligible),
	}
}

// Interval is how often Pending should be polled.
func (n *NackGenerator) Interval() time.Duration {
	return defaultNackInterval
}

package interceptor

import (
	"sort"
	"sync"
	"time"

	"github.com/ridgewood-io/webrtc/pkg/rtcp"
)

// TWCCRecorder collects per-packet arrival times keyed by the
// transport-wide sequence number extension and renders them as
// TransportLayerCC feedback packets.
type TWCCRecorder struct {
	mu sync.Mutex

	senderSSRC uint32
	mediaSSRC  uint32

	arrivals   map[uint16]time.Time
	baseSeq    uint16
	haveBase   bool
	fbPktCount uint8
}

// NewTWCCRecorder builds a recorder. mediaSSRC identifies any stream
// of the transport; feedback is transport-wide.
func NewTWCCRecorder(senderSSRC, mediaSSRC uint32) *TWCCRecorder {
	return &TWCCRecorder{
		senderSSRC: senderSSRC,
		mediaSSRC:  mediaSSRC,
		arrivals:   map[uint16]time.Time{},
	}
}

// Record notes the arrival of one packet.
func (t *TWCCRecorder) Record(transportSequence uint16, arrival time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveBase {
		t.baseSeq = transportSequence
		t.haveBase = true
	} else if transportSequence-t.baseSeq >= 1<<15 {
		t.baseSeq = transportSequence
	}
	t.arrivals[transportSequence] = arrival
}

// BuildFeedback drains the recorded arrivals into one feedback packet,
// nil when nothing arrived since the last call.
func (t *TWCCRecorder) BuildFeedback() *rtcp.TransportLayerCC { //nolint:gocognit
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.arrivals) == 0 {
		return nil
	}

	seqs := make([]uint16, 0, len(t.arrivals))
	for seq := range t.arrivals {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool {
		return seqs[i]-t.baseSeq < seqs[j]-t.baseSeq
	})

	firstArrival := t.arrivals[seqs[0]]
	// reference time counts 64ms intervals
	refTime := uint32(firstArrival.UnixNano() / int64(64*time.Millisecond) & 0xFFFFFF) //nolint:gosec

	fb := &rtcp.TransportLayerCC{
		SenderSSRC:         t.senderSSRC,
		MediaSSRC:          t.mediaSSRC,
		BaseSequenceNumber: seqs[0],
		ReferenceTime:      refTime,
		FbPktCount:         t.fbPktCount,
	}
	t.fbPktCount++

	refInstant := time.Unix(0, firstArrival.UnixNano()/int64(64*time.Millisecond)*int64(64*time.Millisecond))
	prevArrival := refInstant

	var symbols []uint16
	count := uint16(0)
	for i, seq := range seqs {
		if i > 0 {
			// account for the holes between received packets
			for missing := seqs[i-1] + 1; missing != seq; missing++ {
				symbols = append(symbols, rtcp.TypeTCCPacketNotReceived)
				count++
			}
		}

		arrival := t.arrivals[seq]
		delta := arrival.Sub(prevArrival)
		prevArrival = arrival
		deltaScaled := delta.Microseconds() / rtcp.TypeTCCDeltaScaleFactor * rtcp.TypeTCCDeltaScaleFactor

		recv := &rtcp.RecvDelta{Delta: deltaScaled}
		if deltaScaled >= 0 && deltaScaled <= 63750 {
			recv.Type = rtcp.TypeTCCPacketReceivedSmallDelta
			symbols = append(symbols, rtcp.TypeTCCPacketReceivedSmallDelta)
		} else {
			recv.Type = rtcp.TypeTCCPacketReceivedLargeDelta
			symbols = append(symbols, rtcp.TypeTCCPacketReceivedLargeDelta)
		}
		fb.RecvDeltas = append(fb.RecvDeltas, recv)
		count++
	}
	fb.PacketStatusCount = count

	// encode the symbol run as two-bit status vector chunks
	for len(symbols) > 0 {
		n := len(symbols)
		if n > 7 {
			n = 7
		}
		chunk := &rtcp.StatusVectorChunk{
			Type:       rtcp.TypeTCCStatusVectorChunk,
			SymbolSize: rtcp.TypeTCCSymbolSizeTwoBit,
			SymbolList: append([]uint16{}, symbols[:n]...),
		}
		for len(chunk.SymbolList) < 7 {
			chunk.SymbolList = append(chunk.SymbolList, rtcp.TypeTCCPacketNotReceived)
		}
		fb.PacketChunks = append(fb.PacketChunks, chunk)
		symbols = symbols[n:]
	}

	t.arrivals = map[uint16]time.Time{}
	t.haveBase = false
	return fb
}

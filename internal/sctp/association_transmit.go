package sctp

import (
	"time"
)

// The send path: pending DATA moves to the inflight queue as cwnd and
// the peer window allow, paced by SACKs and the T3-rtx timer per RFC
// 4960 Sections 6 and 7.

// queueData appends fragments of one user message to the pending queue
// and kicks transmission. Called with a.mu held by Stream.
func (a *Association) queueData(chunks []*chunkPayloadData) {
	for _, c := range chunks {
		a.pending.push(c)
	}
	a.transmit()
}

// transmit moves pending chunks into flight while the congestion and
// receiver windows have room, bundling up to the MTU.
func (a *Association) transmit() {
	var bundle []chunk
	bundleBytes := 0

	flush := func() {
		if len(bundle) > 0 {
			a.sendPacket(bundle...)
			bundle = nil
			bundleBytes = 0
		}
	}

	// retransmissions first, not limited by cwnd beyond one MTU
	for _, c := range a.inflight.chunks {
		if !c.retransmit || c.abandoned || c.acked {
			continue
		}
		c.retransmit = false
		c.nSent++
		c.missIndicator = 0
		if a.abandonIfExpired(c) {
			continue
		}
		if bundleBytes+len(c.userData) > int(maxPayloadSize) {
			flush()
		}
		bundle = append(bundle, c)
		bundleBytes += len(c.userData)
	}
	flush()

	// fresh data while windows allow
	for a.pending.size() > 0 {
		outstanding := uint32(a.inflight.bytesOutstanding()) //nolint:gosec
		if outstanding >= a.cwnd || (a.rwnd <= outstanding && a.inflight.size() > 0) {
			break
		}
		c := a.pending.pop()
		c.tsn = a.myNextTSN
		a.myNextTSN++
		c.nSent = 1
		c.since = time.Now()
		a.inflight.push(c)

		if bundleBytes+len(c.userData) > int(maxPayloadSize) {
			flush()
		}
		bundle = append(bundle, c)
		bundleBytes += len(c.userData)
	}
	flush()

	if a.inflight.size() > 0 {
		a.startT3()
	}
}

// abandonIfExpired applies the stream's partial reliability policy.
func (a *Association) abandonIfExpired(c *chunkPayloadData) bool {
	if c.abandoned {
		return true
	}
	s, ok := a.streams[c.streamIdentifier]
	if !ok {
		return false
	}
	switch s.reliabilityType {
	case ReliabilityTypeRexmit:
		if c.nSent > uint(s.reliabilityValue) {
			c.abandoned = true
		}
	case ReliabilityTypeTimed:
		if time.Since(c.since) > time.Duration(s.reliabilityValue)*time.Millisecond {
			c.abandoned = true
		}
	}
	if c.abandoned {
		a.willSendForwardTSN = true
	}
	return c.abandoned
}

// ---- SACK processing ----

func (a *Association) handleSack(sack *chunkSack) { //nolint:gocognit
	if sna32LT(sack.cumulativeTSNAck, a.cumulativeTSNAckPoint) {
		return // stale
	}

	bytesAcked := a.inflight.popThrough(sack.cumulativeTSNAck)
	cumMoved := sna32LT(a.cumulativeTSNAckPoint, sack.cumulativeTSNAck)
	a.cumulativeTSNAckPoint = sack.cumulativeTSNAck
	if sna32LT(a.advancedPeerTSNAckPoint, a.cumulativeTSNAckPoint) {
		a.advancedPeerTSNAckPoint = a.cumulativeTSNAckPoint
	}

	// gap-acked chunks stay queued but count for fast retransmit
	var highestGapAcked uint32
	gapAcked := map[uint32]bool{}
	for _, block := range sack.gapAckBlocks {
		for off := block.start; off <= block.end; off++ {
			tsn := sack.cumulativeTSNAck + uint32(off)
			gapAcked[tsn] = true
			if sna32LT(highestGapAcked, tsn) {
				highestGapAcked = tsn
			}
			if c := a.inflight.get(tsn); c != nil && !c.acked && !c.abandoned {
				bytesAcked += len(c.userData)
				c.acked = true
			}
		}
	}

	// fast retransmit: chunks below the highest gap ack missing three
	// times retransmit immediately (RFC 4960 Section 7.2.4)
	if len(sack.gapAckBlocks) > 0 {
		var toFastRetransmit []*chunkPayloadData
		for _, c := range a.inflight.chunks {
			if c.abandoned || c.acked || !sna32LT(c.tsn, highestGapAcked) || gapAcked[c.tsn] {
				continue
			}
			c.missIndicator++
			if c.missIndicator == 3 {
				toFastRetransmit = append(toFastRetransmit, c)
			}
		}
		if len(toFastRetransmit) > 0 && !a.inFastRecovery {
			a.inFastRecovery = true
			a.fastRecoverExit = a.myNextTSN - 1
			a.ssthresh = max32(a.cwnd/2, 4*initialMTU)
			a.cwnd = a.ssthresh
			a.partialBytesAcked = 0
			for _, c := range toFastRetransmit {
				c.retransmit = true
			}
		}
	}

	if a.inFastRecovery && sna32LTE(a.fastRecoverExit, sack.cumulativeTSNAck) {
		a.inFastRecovery = false
	}

	// congestion window growth (RFC 4960 Section 7.2)
	if cumMoved && bytesAcked > 0 && !a.inFastRecovery {
		outstanding := uint32(a.inflight.bytesOutstanding()) //nolint:gosec
		if a.cwnd <= a.ssthresh {
			// slow start
			if outstanding >= a.cwnd {
				a.cwnd += min32(uint32(bytesAcked), initialMTU) //nolint:gosec
			}
		} else {
			a.partialBytesAcked += uint32(bytesAcked) //nolint:gosec
			if a.partialBytesAcked >= a.cwnd && outstanding >= a.cwnd {
				a.partialBytesAcked -= a.cwnd
				a.cwnd += initialMTU
			}
		}
	}

	outstanding := uint32(a.inflight.bytesOutstanding()) //nolint:gosec
	if sack.advertisedReceiverWindowCredit > outstanding {
		a.rwnd = sack.advertisedReceiverWindowCredit - outstanding
	} else {
		a.rwnd = 0
	}

	if cumMoved {
		a.restartT3IfOutstanding()
		a.notifyAckedToStreams(bytesAcked)
	}

	a.maybeSendForwardTSN()
	a.transmit()
}

func (a *Association) notifyAckedToStreams(bytesAcked int) {
	if bytesAcked <= 0 {
		return
	}
	for _, s := range a.streams {
		s.onBufferReleased(bytesAcked)
	}
}

// ---- T3-rtx ----

func (a *Association) startT3() {
	if a.t3Running {
		return
	}
	a.t3Running = true
	a.t3 = time.AfterFunc(a.rto, a.onT3Expired)
}

func (a *Association) restartT3IfOutstanding() {
	a.stopT3()
	if a.inflight.size() > 0 {
		a.startT3()
	}
}

func (a *Association) stopT3() {
	if a.t3 != nil {
		a.t3.Stop()
	}
	a.t3Running = false
}

func (a *Association) onT3Expired() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.t3Running = false
	if a.inflight.size() == 0 || a.state == stateClosed {
		return
	}

	// RFC 4960 Section 6.3.3: collapse the window, back off the timer,
	// mark everything outstanding for retransmission
	a.ssthresh = max32(a.cwnd/2, 4*initialMTU)
	a.cwnd = initialMTU
	a.partialBytesAcked = 0
	a.rto = minDuration(a.rto*2, rtoMax)

	for _, c := range a.inflight.chunks {
		if !c.abandoned && !c.acked {
			c.retransmit = true
		}
		a.abandonIfExpired(c)
	}

	a.maybeSendForwardTSN()
	a.transmit()
	a.startT3()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// ---- PR-SCTP FORWARD-TSN ----

// maybeSendForwardTSN advances the peer's cumulative point past
// abandoned chunks (RFC 3758 Section 3.5).
func (a *Association) maybeSendForwardTSN() {
	if !a.willSendForwardTSN {
		return
	}

	// advance through consecutive abandoned chunks
	advanced := a.advancedPeerTSNAckPoint
	latestSSN := map[uint16]uint16{}
	for {
		c := a.inflight.get(advanced + 1)
		if c == nil || (!c.abandoned && !c.acked) {
			break
		}
		advanced++
		if !c.unordered {
			latestSSN[c.streamIdentifier] = c.streamSequenceNumber
		}
	}

	if !sna32LT(a.advancedPeerTSNAckPoint, advanced) {
		a.willSendForwardTSN = false
		return
	}
	a.advancedPeerTSNAckPoint = advanced
	a.willSendForwardTSN = false

	fwd := &chunkForwardTSN{newCumulativeTSN: advanced}
	for id, ssn := range latestSSN {
		fwd.streams = append(fwd.streams, forwardTSNStream{identifier: id, sequence: ssn})
	}
	a.sendPacket(fwd)
}

// handleForwardTSN fast-forwards the receive side past data the peer
// abandoned.
func (a *Association) handleForwardTSN(c *chunkForwardTSN) {
	if sna32LTE(c.newCumulativeTSN, a.peerLastTSN) {
		return
	}
	a.peerLastTSN = c.newCumulativeTSN
	a.received.dropThrough(a.peerLastTSN)
	a.peerLastTSN = a.received.advance(a.peerLastTSN)

	for _, fs := range c.streams {
		if s, ok := a.streams[fs.identifier]; ok {
			s.reassembly.forwardSSN(fs.sequence)
		}
	}
}

// ---- RFC 6525 stream reset ----

// resetOutgoingStream queues an outgoing SSN reset for one stream.
// Called with a.mu held.
func (a *Association) resetOutgoingStream(streamID uint16) {
	req := &paramOutgoingResetRequest{
		reconfigRequestSequenceNumber: a.myNextSSNResetReqSN,
		senderLastTSN:                 a.myNextTSN - 1,
		streamIdentifiers:             []uint16{streamID},
	}
	a.myNextSSNResetReqSN++
	a.pendingResetRequests[req.reconfigRequestSequenceNumber] = req
	a.sendPacket(&chunkReconfig{outgoingResetRequest: req})
	a.scheduleReconfigRetry(req.reconfigRequestSequenceNumber)
}

func (a *Association) scheduleReconfigRetry(seq uint32) {
	time.AfterFunc(a.rto, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		req, ok := a.pendingResetRequests[seq]
		if !ok || a.state != stateEstablished {
			return
		}
		a.sendPacket(&chunkReconfig{outgoingResetRequest: req})
		a.scheduleReconfigRetry(seq)
	})
}

func (a *Association) handleReconfig(c *chunkReconfig) {
	if req := c.outgoingResetRequest; req != nil {
		// the peer is resetting streams it sends on: drop partial
		// reassembly state and signal end-of-stream upward
		for _, id := range req.streamIdentifiers {
			if s, ok := a.streams[id]; ok {
				s.onIncomingReset()
			}
		}
		a.sendPacket(&chunkReconfig{reconfigResponse: &paramReconfigResponse{
			responseSequenceNumber: req.reconfigRequestSequenceNumber,
			result:                 reconfigResultSuccessPerformed,
		}})
	}

	if resp := c.reconfigResponse; resp != nil {
		if req, ok := a.pendingResetRequests[resp.responseSequenceNumber]; ok {
			delete(a.pendingResetRequests, resp.responseSequenceNumber)
			for _, id := range req.streamIdentifiers {
				if s, ok := a.streams[id]; ok {
					s.onOutgoingResetAck()
				}
			}
		}
	}
}

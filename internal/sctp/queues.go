package sctp

import (
	"sort"
)

// sna32LT is serial number arithmetic on TSNs (RFC 1982).
func sna32LT(a, b uint32) bool {
	return (a < b && b-a < 1<<31) || (a > b && a-b > 1<<31)
}

func sna32LTE(a, b uint32) bool { return a == b || sna32LT(a, b) }

func sna16LT(a, b uint16) bool {
	return (a < b && b-a < 1<<15) || (a > b && a-b > 1<<15)
}

// receivedQueue tracks DATA TSNs above the cumulative point, for SACK
// gap reporting.
type receivedQueue struct {
	tsns map[uint32]struct{}
}

func newReceivedQueue() *receivedQueue {
	return &receivedQueue{tsns: map[uint32]struct{}{}}
}

func (r *receivedQueue) push(tsn uint32) bool {
	if _, ok := r.tsns[tsn]; ok {
		return false
	}
	r.tsns[tsn] = struct{}{}
	return true
}

// advance pops consecutive TSNs starting after cumulative and returns
// the new cumulative point.
func (r *receivedQueue) advance(cumulative uint32) uint32 {
	for {
		next := cumulative + 1
		if _, ok := r.tsns[next]; !ok {
			return cumulative
		}
		delete(r.tsns, next)
		cumulative = next
	}
}

// dropThrough discards state for TSNs at or below the new cumulative
// point (FORWARD-TSN).
func (r *receivedQueue) dropThrough(cumulative uint32) {
	for tsn := range r.tsns {
		if sna32LTE(tsn, cumulative) {
			delete(r.tsns, tsn)
		}
	}
}

// gapBlocks renders the out-of-order TSNs as SACK gap blocks.
func (r *receivedQueue) gapBlocks(cumulative uint32) []gapAckBlock {
	if len(r.tsns) == 0 {
		return nil
	}
	offsets := make([]uint32, 0, len(r.tsns))
	for tsn := range r.tsns {
		if sna32LT(cumulative, tsn) {
			offsets = append(offsets, tsn-cumulative)
		}
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var blocks []gapAckBlock
	for _, off := range offsets {
		o := uint16(off) //nolint:gosec
		if n := len(blocks); n > 0 && blocks[n-1].end+1 == o {
			blocks[n-1].end = o
			continue
		}
		blocks = append(blocks, gapAckBlock{start: o, end: o})
	}
	return blocks
}

// inflightQueue holds sent-but-unacked DATA in TSN order.
type inflightQueue struct {
	chunks []*chunkPayloadData
}

func (q *inflightQueue) push(c *chunkPayloadData) {
	q.chunks = append(q.chunks, c)
}

// popThrough removes chunks with TSN <= cumAck, returning the freed
// byte count of those newly acknowledged.
func (q *inflightQueue) popThrough(cumAck uint32) int {
	freed := 0
	kept := q.chunks[:0]
	for _, c := range q.chunks {
		if sna32LTE(c.tsn, cumAck) {
			if !c.abandoned && !c.acked {
				freed += len(c.userData)
			}
			continue
		}
		kept = append(kept, c)
	}
	q.chunks = kept
	return freed
}

func (q *inflightQueue) get(tsn uint32) *chunkPayloadData {
	for _, c := range q.chunks {
		if c.tsn == tsn {
			return c
		}
	}
	return nil
}

func (q *inflightQueue) size() int { return len(q.chunks) }

func (q *inflightQueue) bytesOutstanding() int {
	n := 0
	for _, c := range q.chunks {
		if !c.abandoned && !c.acked {
			n += len(c.userData)
		}
	}
	return n
}

// pendingQueue holds DATA awaiting a first transmission.
type pendingQueue struct {
	chunks []*chunkPayloadData
	bytes  int
}

func (q *pendingQueue) push(c *chunkPayloadData) {
	q.chunks = append(q.chunks, c)
	q.bytes += len(c.userData)
}

func (q *pendingQueue) pop() *chunkPayloadData {
	if len(q.chunks) == 0 {
		return nil
	}
	c := q.chunks[0]
	q.chunks = q.chunks[1:]
	q.bytes -= len(c.userData)
	return c
}

func (q *pendingQueue) size() int { return len(q.chunks) }

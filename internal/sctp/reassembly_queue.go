package sctp

import (
	"sort"

	"github.com/pkg/errors"
)

var (
	errShortBuffer    = errors.New("sctp: read buffer too short")
	errStreamReset    = errors.New("sctp: stream reset by peer")
)

// reassemblyQueue rebuilds user messages from DATA fragments for one
// stream: ordered messages wait for their SSN turn, unordered messages
// deliver as soon as their fragment set completes.
type reassemblyQueue struct {
	si              uint16
	nextSSN         uint16
	ordered         []*chunkPayloadData
	unordered       []*chunkPayloadData
	unorderedChunks []*chunkPayloadData
}

type assembledMessage struct {
	ppi  PayloadProtocolIdentifier
	data []byte
}

func (r *reassemblyQueue) push(c *chunkPayloadData) {
	if c.streamIdentifier != r.si {
		return
	}
	if c.unordered {
		r.unorderedChunks = append(r.unorderedChunks, c)
		sort.Slice(r.unorderedChunks, func(i, j int) bool {
			return sna32LT(r.unorderedChunks[i].tsn, r.unorderedChunks[j].tsn)
		})
		return
	}
	// drop stale SSNs (already delivered)
	if sna16LT(c.streamSequenceNumber, r.nextSSN) {
		return
	}
	for _, existing := range r.ordered {
		if existing.tsn == c.tsn {
			return
		}
	}
	r.ordered = append(r.ordered, c)
	sort.Slice(r.ordered, func(i, j int) bool {
		return sna32LT(r.ordered[i].tsn, r.ordered[j].tsn)
	})
}

// assembleUnordered pops the first complete unordered fragment run.
func (r *reassemblyQueue) assembleUnordered() *assembledMessage {
	start := -1
	for i, c := range r.unorderedChunks {
		if c.beginningFragment {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	for i := start; i < len(r.unorderedChunks); i++ {
		c := r.unorderedChunks[i]
		if i > start && c.tsn != r.unorderedChunks[i-1].tsn+1 {
			return nil // hole in the fragment run
		}
		if c.endingFragment {
			msg := assemble(r.unorderedChunks[start : i+1])
			r.unorderedChunks = append(r.unorderedChunks[:start], r.unorderedChunks[i+1:]...)
			return msg
		}
	}
	return nil
}

// assembleOrdered pops the next in-order complete message.
func (r *reassemblyQueue) assembleOrdered() *assembledMessage {
	if len(r.ordered) == 0 {
		return nil
	}
	first := r.ordered[0]
	if first.streamSequenceNumber != r.nextSSN || !first.beginningFragment {
		return nil
	}
	for i := 0; i < len(r.ordered); i++ {
		c := r.ordered[i]
		if c.streamSequenceNumber != r.nextSSN {
			return nil
		}
		if i > 0 && c.tsn != r.ordered[i-1].tsn+1 {
			return nil
		}
		if c.endingFragment {
			msg := assemble(r.ordered[:i+1])
			r.ordered = r.ordered[i+1:]
			r.nextSSN++
			return msg
		}
	}
	return nil
}

// pop returns the next deliverable message, unordered first.
func (r *reassemblyQueue) pop() *assembledMessage {
	if msg := r.assembleUnordered(); msg != nil {
		return msg
	}
	return r.assembleOrdered()
}

// forwardSSN skips messages abandoned by the sender (FORWARD-TSN).
func (r *reassemblyQueue) forwardSSN(ssn uint16) {
	if sna16LT(r.nextSSN, ssn+1) {
		r.nextSSN = ssn + 1
	}
	kept := r.ordered[:0]
	for _, c := range r.ordered {
		if !sna16LT(c.streamSequenceNumber, r.nextSSN) {
			kept = append(kept, c)
		}
	}
	r.ordered = kept
}

func assemble(chunks []*chunkPayloadData) *assembledMessage {
	msg := &assembledMessage{ppi: chunks[0].payloadType}
	for _, c := range chunks {
		msg.data = append(msg.data, c.userData...)
	}
	return msg
}

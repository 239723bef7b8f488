package ice

import (
	"fmt"
	"time"
)

// CandidatePairState tracks a pair through the checklist.
type CandidatePairState int

// Pair states from RFC 8445 Section 6.1.2.6.
const (
	CandidatePairStateFrozen CandidatePairState = iota
	CandidatePairStateWaiting
	CandidatePairStateInProgress
	CandidatePairStateSucceeded
	CandidatePairStateFailed
)

func (s CandidatePairState) String() string {
	switch s {
	case CandidatePairStateFrozen:
		return "frozen"
	case CandidatePairStateWaiting:
		return "waiting"
	case CandidatePairStateInProgress:
		return "in-progress"
	case CandidatePairStateSucceeded:
		return "succeeded"
	case CandidatePairStateFailed:
		return "failed"
	}
	return "unknown"
}

// CandidatePair couples one local and one remote candidate.
type CandidatePair struct {
	Local  *Candidate
	Remote *Candidate
	State  CandidatePairState

	nominated          bool
	nominateOnResponse bool

	// check bookkeeping
	firstCheckAt  time.Time
	lastCheckAt   time.Time
	checkCount    int
	lastReceiveAt time.Time
}

// Priority implements the pair priority formula of RFC 8445 Section
// 6.1.2.3: 2^32*MIN(G,D) + 2*MAX(G,D) + (G>D?1:0) where G is the
// controlling agent's candidate priority.
func (p *CandidatePair) Priority(role Role) uint64 {
	var g, d uint32
	if role == RoleControlling {
		g, d = p.Local.Priority, p.Remote.Priority
	} else {
		g, d = p.Remote.Priority, p.Local.Priority
	}

	minP, maxP := g, d
	if d < g {
		minP, maxP = d, g
	}
	var cmp uint64
	if g > d {
		cmp = 1
	}
	return uint64(minP)<<32 + uint64(maxP)<<1 + cmp
}

// Nominated reports whether this pair has been nominated for data.
func (p *CandidatePair) Nominated() bool { return p.nominated }

func (p *CandidatePair) String() string {
	return fmt.Sprintf("%s <-> %s (%s, nominated=%v)", p.Local, p.Remote, p.State, p.nominated)
}

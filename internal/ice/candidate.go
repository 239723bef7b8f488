package ice

import (
	"fmt"
	"hash/crc32"
	"net"
)

// CandidateType is the ICE candidate type.
type CandidateType int

// Candidate types in the order of RFC 8445 Section 5.1.1.
const (
	CandidateTypeUnspecified CandidateType = iota
	CandidateTypeHost
	CandidateTypeServerReflexive
	CandidateTypePeerReflexive
	CandidateTypeRelay
)

func (c CandidateType) String() string {
	switch c {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelay:
		return "relay"
	}
	return "unknown"
}

// Preference returns the type preference used in candidate priority
// (RFC 8445 Section 5.1.2.2).
func (c CandidateType) Preference() uint16 {
	switch c {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelay:
		return 0
	}
	return 0
}

// RelatedAddress is the base a derived candidate was learned from.
type RelatedAddress struct {
	Address string
	Port    int
}

// Candidate is a single ICE transport address.
type Candidate struct {
	Foundation string
	Component  uint16
	Protocol   ProtoType
	Priority   uint32
	Address    string
	Port       int
	Type       CandidateType
	Related    *RelatedAddress

	// Generation counts ICE restarts. Candidates from earlier
	// generations are invalid for the current checklist.
	Generation int

	// relay-only: the allocation's packet conn, owned by the agent
	relayConn net.PacketConn
	// resolvedAddr caches the mDNS resolution of a ".local" address
	resolvedAddr *net.UDPAddr
}

// NewCandidate fills in foundation and priority for a locally created
// candidate.
func NewCandidate(typ CandidateType, component uint16, address string, port int, related *RelatedAddress) *Candidate {
	c := &Candidate{
		Component: component,
		Protocol:  ProtoTypeUDP,
		Address:   address,
		Port:      port,
		Type:      typ,
		Related:   related,
	}
	c.Foundation = c.computeFoundation()
	c.Priority = c.computePriority(defaultLocalPreference)
	return c
}

const defaultLocalPreference = 65535

func (c *Candidate) computeFoundation() string {
	base := c.Address
	if c.Related != nil {
		base = c.Related.Address
	}
	return fmt.Sprintf("%d", crc32.ChecksumIEEE([]byte(c.Type.String()+base+c.Protocol.String())))
}

// computePriority implements RFC 8445 Section 5.1.2.1.
func (c *Candidate) computePriority(localPreference uint16) uint32 {
	return uint32(c.Type.Preference())<<24 |
		uint32(localPreference)<<8 |
		uint32(256-c.Component)
}

// addr returns the candidate's UDP address, using the mDNS resolution
// when one happened.
func (c *Candidate) addr() *net.UDPAddr {
	if c.resolvedAddr != nil {
		return c.resolvedAddr
	}
	return &net.UDPAddr{IP: net.ParseIP(c.Address), Port: c.Port}
}

// Equal reports whether two candidates name the same transport
// address.
func (c *Candidate) Equal(other *Candidate) bool {
	return c.Address == other.Address &&
		c.Port == other.Port &&
		c.Protocol == other.Protocol &&
		c.Component == other.Component &&
		c.Type == other.Type
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s %s:%d (%s)", c.Type, c.Address, c.Port, c.Foundation)
}

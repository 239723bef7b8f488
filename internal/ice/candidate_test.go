package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatePriority(t *testing.T) {
	host := NewCandidate(CandidateTypeHost, 1, "192.0.2.1", 5000, nil)
	srflx := NewCandidate(CandidateTypeServerReflexive, 1, "203.0.113.1", 5000,
		&RelatedAddress{Address: "192.0.2.1", Port: 5000})
	relay := NewCandidate(CandidateTypeRelay, 1, "198.51.100.1", 5000,
		&RelatedAddress{Address: "203.0.113.5", Port: 3478})

	// 2^24*typePref + 2^8*localPref + (256 - component)
	assert.Equal(t, uint32(126)<<24|uint32(65535)<<8|255, host.Priority)
	assert.Equal(t, uint32(100)<<24|uint32(65535)<<8|255, srflx.Priority)
	assert.Equal(t, uint32(0)<<24|uint32(65535)<<8|255, relay.Priority)

	assert.Greater(t, host.Priority, srflx.Priority)
	assert.Greater(t, srflx.Priority, relay.Priority)
}

func TestPairPriorityFormula(t *testing.T) {
	local := NewCandidate(CandidateTypeHost, 1, "192.0.2.1", 5000, nil)
	remote := NewCandidate(CandidateTypeServerReflexive, 1, "203.0.113.1", 6000,
		&RelatedAddress{Address: "203.0.113.1", Port: 6000})

	p := &CandidatePair{Local: local, Remote: remote}

	g, d := uint64(local.Priority), uint64(remote.Priority)
	expectControlling := d<<32 + g<<1 + 1 // G > D
	assert.Equal(t, expectControlling, p.Priority(RoleControlling))

	// same candidate priorities produce the same pair priority
	p2 := &CandidatePair{Local: local, Remote: remote}
	assert.Equal(t, p.Priority(RoleControlling), p2.Priority(RoleControlling))

	// swapping the role swaps G and D
	expectControlled := d<<32 + g<<1 // G < D
	assert.Equal(t, expectControlled, p.Priority(RoleControlled))
}

func TestCandidateMarshalRoundTrip(t *testing.T) {
	c := NewCandidate(CandidateTypeServerReflexive, 1, "203.0.113.1", 5000,
		&RelatedAddress{Address: "192.0.2.1", Port: 4000})

	parsed, err := UnmarshalCandidate(c.Marshal())
	require.NoError(t, err)
	assert.Equal(t, c.Foundation, parsed.Foundation)
	assert.Equal(t, c.Component, parsed.Component)
	assert.Equal(t, c.Priority, parsed.Priority)
	assert.Equal(t, c.Address, parsed.Address)
	assert.Equal(t, c.Port, parsed.Port)
	assert.Equal(t, c.Type, parsed.Type)
	require.NotNil(t, parsed.Related)
	assert.Equal(t, "192.0.2.1", parsed.Related.Address)
	assert.Equal(t, 4000, parsed.Related.Port)
}

func TestUnmarshalCandidateForms(t *testing.T) {
	c, err := UnmarshalCandidate("candidate:4234997325 1 udp 2043278322 192.168.0.56 44323 typ host generation 1")
	require.NoError(t, err)
	assert.Equal(t, "4234997325", c.Foundation)
	assert.Equal(t, CandidateTypeHost, c.Type)
	assert.Equal(t, 44323, c.Port)
	assert.Equal(t, 1, c.Generation)

	_, err = UnmarshalCandidate("garbage")
	assert.ErrorIs(t, err, ErrBadCandidate)

	_, err = UnmarshalCandidate("4234997325 1 udp 2043278322 192.168.0.56 44323 typ bogus")
	assert.ErrorIs(t, err, ErrBadCandidate)
}

func TestParseURL(t *testing.T) {
	u, err := ParseURL("stun:stun.l.google.com:19302")
	require.NoError(t, err)
	assert.Equal(t, SchemeTypeSTUN, u.Scheme)
	assert.Equal(t, "stun.l.google.com", u.Host)
	assert.Equal(t, 19302, u.Port)

	u, err = ParseURL("turn:turn.example.org")
	require.NoError(t, err)
	assert.Equal(t, SchemeTypeTURN, u.Scheme)
	assert.Equal(t, 3478, u.Port)
	assert.Equal(t, ProtoTypeUDP, u.Proto)

	u, err = ParseURL("turn:turn.example.org:5349?transport=tcp")
	require.NoError(t, err)
	assert.Equal(t, ProtoTypeTCP, u.Proto)

	_, err = ParseURL("stun:stun.example.org?transport=udp")
	assert.ErrorIs(t, err, ErrSTUNQuery)

	_, err = ParseURL("http://example.org")
	assert.ErrorIs(t, err, ErrSchemeType)
}

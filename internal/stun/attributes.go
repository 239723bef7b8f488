package stun

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// AttrType identifies a STUN attribute.
type AttrType uint16

// Attributes from RFC 5389 and RFC 8445 used by the ICE agent.
const (
	AttrMappedAddress     AttrType = 0x0001
	AttrUsername          AttrType = 0x0006
	AttrMessageIntegrity  AttrType = 0x0008
	AttrErrorCode         AttrType = 0x0009
	AttrUnknownAttributes AttrType = 0x000A
	AttrRealm             AttrType = 0x0014
	AttrNonce             AttrType = 0x0015
	AttrXORMappedAddress  AttrType = 0x0020
	AttrPriority          AttrType = 0x0024
	AttrUseCandidate      AttrType = 0x0025
	AttrSoftware          AttrType = 0x8022
	AttrAlternateServer   AttrType = 0x8023
	AttrFingerprint       AttrType = 0x8028
	AttrICEControlled     AttrType = 0x8029
	AttrICEControlling    AttrType = 0x802A
)

func (t AttrType) comprehensionRequired() bool { return t < 0x8000 }

func (t AttrType) known() bool {
	switch t {
	case AttrMappedAddress, AttrUsername, AttrMessageIntegrity, AttrErrorCode,
		AttrUnknownAttributes, AttrRealm, AttrNonce, AttrXORMappedAddress,
		AttrPriority, AttrUseCandidate, AttrSoftware, AttrAlternateServer,
		AttrFingerprint, AttrICEControlled, AttrICEControlling:
		return true
	}
	return false
}

func (t AttrType) String() string {
	switch t {
	case AttrMappedAddress:
		return "MAPPED-ADDRESS"
	case AttrUsername:
		return "USERNAME"
	case AttrMessageIntegrity:
		return "MESSAGE-INTEGRITY"
	case AttrErrorCode:
		return "ERROR-CODE"
	case AttrUnknownAttributes:
		return "UNKNOWN-ATTRIBUTES"
	case AttrRealm:
		return "REALM"
	case AttrNonce:
		return "NONCE"
	case AttrXORMappedAddress:
		return "XOR-MAPPED-ADDRESS"
	case AttrPriority:
		return "PRIORITY"
	case AttrUseCandidate:
		return "USE-CANDIDATE"
	case AttrSoftware:
		return "SOFTWARE"
	case AttrAlternateServer:
		return "ALTERNATE-SERVER"
	case AttrFingerprint:
		return "FINGERPRINT"
	case AttrICEControlled:
		return "ICE-CONTROLLED"
	case AttrICEControlling:
		return "ICE-CONTROLLING"
	}
	return "unknown attribute"
}

// SetUsername adds a USERNAME attribute, "remoteUfrag:localUfrag" for
// connectivity checks.
func (m *Message) SetUsername(username string) {
	m.Add(AttrUsername, []byte(username))
}

// Username returns the USERNAME attribute.
func (m *Message) Username() (string, error) {
	v, ok := m.Get(AttrUsername)
	if !ok {
		return "", errors.Wrap(ErrAttributeNotFound, AttrUsername.String())
	}
	return string(v), nil
}

// SetSoftware adds a SOFTWARE attribute.
func (m *Message) SetSoftware(software string) {
	m.Add(AttrSoftware, []byte(software))
}

// SetPriority adds the PRIORITY attribute carried on every Binding
// request sent for a connectivity check (RFC 8445 Section 7.1.1).
func (m *Message) SetPriority(p uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	m.Add(AttrPriority, v)
}

// Priority returns the PRIORITY attribute.
func (m *Message) Priority() (uint32, error) {
	v, ok := m.Get(AttrPriority)
	if !ok {
		return 0, errors.Wrap(ErrAttributeNotFound, AttrPriority.String())
	}
	if len(v) != 4 {
		return 0, errors.Wrap(ErrBadFormat, "PRIORITY length")
	}
	return binary.BigEndian.Uint32(v), nil
}

// SetUseCandidate adds the flag nominating the pair this check runs on.
func (m *Message) SetUseCandidate() {
	m.Add(AttrUseCandidate, nil)
}

// HasUseCandidate reports presence of USE-CANDIDATE.
func (m *Message) HasUseCandidate() bool {
	_, ok := m.Get(AttrUseCandidate)
	return ok
}

// SetICEControlling adds the controlling role attribute with the agent's
// tie-breaker.
func (m *Message) SetICEControlling(tieBreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tieBreaker)
	m.Add(AttrICEControlling, v)
}

// SetICEControlled adds the controlled role attribute with the agent's
// tie-breaker.
func (m *Message) SetICEControlled(tieBreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tieBreaker)
	m.Add(AttrICEControlled, v)
}

// ICERole returns which role attribute the message carries and its
// tie-breaker value.
func (m *Message) ICERole() (controlling bool, tieBreaker uint64, ok bool) {
	if v, found := m.Get(AttrICEControlling); found && len(v) == 8 {
		return true, binary.BigEndian.Uint64(v), true
	}
	if v, found := m.Get(AttrICEControlled); found && len(v) == 8 {
		return false, binary.BigEndian.Uint64(v), true
	}
	return false, 0, false
}

// SetRealm adds a REALM attribute.
func (m *Message) SetRealm(realm string) {
	m.Add(AttrRealm, []byte(realm))
}

// Realm returns the REALM attribute.
func (m *Message) Realm() (string, error) {
	v, ok := m.Get(AttrRealm)
	if !ok {
		return "", errors.Wrap(ErrAttributeNotFound, AttrRealm.String())
	}
	return string(v), nil
}

// SetNonce adds a NONCE attribute.
func (m *Message) SetNonce(nonce string) {
	m.Add(AttrNonce, []byte(nonce))
}

// Nonce returns the NONCE attribute.
func (m *Message) Nonce() (string, error) {
	v, ok := m.Get(AttrNonce)
	if !ok {
		return "", errors.Wrap(ErrAttributeNotFound, AttrNonce.String())
	}
	return string(v), nil
}

package stun

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Error codes used by the ICE agent (RFC 5389 Section 15.6, RFC 8445
// Section 7.3.1.1).
const (
	CodeBadRequest       = 400
	CodeUnauthorized     = 401
	CodeUnknownAttribute = 420
	CodeStaleNonce       = 438
	CodeRoleConflict     = 487
	CodeServerError      = 500
)

// SetErrorCode adds an ERROR-CODE attribute.
func (m *Message) SetErrorCode(code int, reason string) {
	v := make([]byte, 4+len(reason))
	v[2] = byte(code / 100)
	v[3] = byte(code % 100)
	copy(v[4:], reason)
	m.Add(AttrErrorCode, v)
}

// ErrorCode returns the ERROR-CODE attribute's code and reason phrase.
func (m *Message) ErrorCode() (int, string, error) {
	v, ok := m.Get(AttrErrorCode)
	if !ok {
		return 0, "", errors.Wrap(ErrAttributeNotFound, AttrErrorCode.String())
	}
	if len(v) < 4 {
		return 0, "", errors.Wrap(ErrBadFormat, "ERROR-CODE truncated")
	}
	return int(v[2]&0x7)*100 + int(v[3]), string(v[4:]), nil
}

// SetUnknownAttributes adds the UNKNOWN-ATTRIBUTES attribute carried in
// 420 responses.
func (m *Message) SetUnknownAttributes(attrs []AttrType) {
	v := make([]byte, 2*len(attrs))
	for i, a := range attrs {
		binary.BigEndian.PutUint16(v[2*i:], uint16(a))
	}
	m.Add(AttrUnknownAttributes, v)
}

package stun

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // long-term credential keys are MD5 by RFC 5389 Section 15.4
	"crypto/sha1" //nolint:gosec // MESSAGE-INTEGRITY is HMAC-SHA1 by RFC 5389 Section 15.4
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

const (
	messageIntegritySize = sha1.Size
	fingerprintSize      = 4
	fingerprintXor       = 0x5354554e
)

// NewShortTermKey derives the integrity key for short-term credentials.
// ICE connectivity checks use the remote agent's password directly.
func NewShortTermKey(password string) []byte {
	return []byte(password)
}

// NewLongTermKey derives the integrity key for long-term credentials,
// MD5(username ":" realm ":" password) per RFC 5389 Section 15.4.
func NewLongTermKey(username, realm, password string) []byte {
	h := md5.New() //nolint:gosec
	h.Write([]byte(username + ":" + realm + ":" + password))
	return h.Sum(nil)
}

// AddMessageIntegrity computes HMAC-SHA1 over the message as serialized
// so far, with the header length pre-adjusted to cover the attribute
// being added, and appends the MESSAGE-INTEGRITY attribute. It must be
// the last attribute added except for FINGERPRINT.
func (m *Message) AddMessageIntegrity(key []byte) {
	input := m.marshal(attrHeaderSize + messageIntegritySize)
	mac := hmac.New(sha1.New, key)
	mac.Write(input)
	m.Add(AttrMessageIntegrity, mac.Sum(nil))
}

// AddFingerprint appends the FINGERPRINT attribute, CRC-32 of the
// message XORed with 0x5354554e (RFC 5389 Section 15.5). Always the last
// attribute.
func (m *Message) AddFingerprint() {
	input := m.marshal(attrHeaderSize + fingerprintSize)
	v := make([]byte, fingerprintSize)
	binary.BigEndian.PutUint32(v, crc32.ChecksumIEEE(input)^fingerprintXor)
	m.Add(AttrFingerprint, v)
}

// findRaw returns the first attribute of type t and whether one was
// found; its offset locates the attribute header inside Raw.
func (m *Message) findRaw(t AttrType) (RawAttribute, bool) {
	for _, a := range m.Attributes {
		if a.Type == t {
			return a, true
		}
	}
	return RawAttribute{}, false
}

// CheckIntegrity verifies MESSAGE-INTEGRITY against key. The hash input
// is the received octets up to the attribute, with the header length
// rewritten to end just past it, so a trailing FINGERPRINT does not
// disturb verification.
func (m *Message) CheckIntegrity(key []byte) error {
	a, ok := m.findRaw(AttrMessageIntegrity)
	if !ok {
		return errors.Wrap(ErrBadIntegrity, "MESSAGE-INTEGRITY absent")
	}
	if len(a.Value) != messageIntegritySize || a.offset+attrHeaderSize+messageIntegritySize > len(m.Raw) {
		return errors.Wrap(ErrBadIntegrity, "MESSAGE-INTEGRITY malformed")
	}

	input := append([]byte{}, m.Raw[:a.offset]...)
	binary.BigEndian.PutUint16(input[2:4], uint16(a.offset-headerSize+attrHeaderSize+messageIntegritySize))

	mac := hmac.New(sha1.New, key)
	mac.Write(input)
	if !hmac.Equal(mac.Sum(nil), a.Value) {
		return ErrBadIntegrity
	}
	return nil
}

// CheckFingerprint verifies the FINGERPRINT attribute; it returns an
// ErrAttributeNotFound error when the attribute is absent.
func (m *Message) CheckFingerprint() error {
	a, ok := m.findRaw(AttrFingerprint)
	if !ok {
		return errors.Wrap(ErrAttributeNotFound, AttrFingerprint.String())
	}
	if len(a.Value) != fingerprintSize {
		return errors.Wrap(ErrBadFormat, "FINGERPRINT length")
	}

	input := append([]byte{}, m.Raw[:a.offset]...)
	binary.BigEndian.PutUint16(input[2:4], uint16(a.offset-headerSize+attrHeaderSize+fingerprintSize))

	if crc32.ChecksumIEEE(input)^fingerprintXor != binary.BigEndian.Uint32(a.Value) {
		return errors.Wrap(ErrBadFormat, "FINGERPRINT mismatch")
	}
	return nil
}

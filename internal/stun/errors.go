package stun

import "github.com/pkg/errors"

var (
	// ErrBadFormat indicates octets that do not form a valid STUN
	// message or attribute.
	ErrBadFormat = errors.New("stun: malformed message")

	// ErrBadIntegrity indicates a MESSAGE-INTEGRITY check failure.
	ErrBadIntegrity = errors.New("stun: message integrity mismatch")

	// ErrUnknownRequiredAttribute indicates a comprehension-required
	// attribute outside the implemented set.
	ErrUnknownRequiredAttribute = errors.New("stun: unknown comprehension-required attribute")

	// ErrAttributeNotFound indicates a requested attribute is absent.
	ErrAttributeNotFound = errors.New("stun: attribute not found")
)

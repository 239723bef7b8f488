// Package srtp implements SRTP and SRTCP (RFC 3711) with the AES-CM
// and AES-GCM protection profiles keyed from a DTLS-SRTP handshake.
package srtp

import "fmt"

// ProtectionProfile identifies an SRTP protection profile as negotiated
// in the DTLS use_srtp extension (RFC 5764 Section 4.1.2).
type ProtectionProfile uint16

// Supported profiles.
const (
	ProtectionProfileAes128CmHmacSha1_80 ProtectionProfile = 0x0001
	ProtectionProfileAeadAes128Gcm       ProtectionProfile = 0x0007
)

// KeyLen returns the master key length.
func (p ProtectionProfile) KeyLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80, ProtectionProfileAeadAes128Gcm:
		return 16, nil
	}
	return 0, fmt.Errorf("%w: %#v", errUnsupportedProfile, p)
}

// SaltLen returns the master salt length.
func (p ProtectionProfile) SaltLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return 14, nil
	case ProtectionProfileAeadAes128Gcm:
		return 12, nil
	}
	return 0, fmt.Errorf("%w: %#v", errUnsupportedProfile, p)
}

// AuthTagLen returns the per-packet authentication overhead for RTP.
func (p ProtectionProfile) AuthTagLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return 10, nil
	case ProtectionProfileAeadAes128Gcm:
		return 16, nil
	}
	return 0, fmt.Errorf("%w: %#v", errUnsupportedProfile, p)
}

// AuthKeyLen returns the session authentication key length.
func (p ProtectionProfile) AuthKeyLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return 20, nil
	case ProtectionProfileAeadAes128Gcm:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %#v", errUnsupportedProfile, p)
}

func (p ProtectionProfile) String() string {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return "SRTP_AES128_CM_HMAC_SHA1_80"
	case ProtectionProfileAeadAes128Gcm:
		return "SRTP_AEAD_AES_128_GCM"
	}
	return fmt.Sprintf("unknown profile 0x%04x", uint16(p))
}

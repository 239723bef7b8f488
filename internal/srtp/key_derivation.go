package srtp

import (
	"crypto/aes"
	"encoding/binary"
)

// KDF labels from RFC 3711 Section 4.3.2.
const (
	labelSRTPEncryption        = 0x00
	labelSRTPAuthenticationTag = 0x01
	labelSRTPSalt              = 0x02

	labelSRTCPEncryption        = 0x03
	labelSRTCPAuthenticationTag = 0x04
	labelSRTCPSalt              = 0x05
)

// aesCmKeyDerivation implements the AES-CM KDF of RFC 3711 Section
// 4.3.1 with a key derivation rate of zero.
func aesCmKeyDerivation(label byte, masterKey, masterSalt []byte, outLen int) ([]byte, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}

	// x = masterSalt, with the label XORed into the byte at index 7
	var input [16]byte
	copy(input[:], masterSalt)
	input[7] ^= label
	// low two bytes left zero for the block counter

	out := make([]byte, ((outLen+15)/16)*16)
	for i, n := 0, 0; i < len(out); i, n = i+16, n+1 {
		binary.BigEndian.PutUint16(input[14:], uint16(n)) //nolint:gosec
		block.Encrypt(out[i:i+16], input[:])
	}
	return out[:outLen], nil
}

type sessionKeys struct {
	encryptionKey []byte
	authKey       []byte
	salt          []byte
}

// deriveSessionKeys produces the RTP or RTCP session keys for one
// direction.
func deriveSessionKeys(masterKey, masterSalt []byte, profile ProtectionProfile, rtcp bool) (*sessionKeys, error) {
	keyLen, err := profile.KeyLen()
	if err != nil {
		return nil, err
	}
	saltLen, err := profile.SaltLen()
	if err != nil {
		return nil, err
	}
	authKeyLen, err := profile.AuthKeyLen()
	if err != nil {
		return nil, err
	}
	if len(masterKey) != keyLen || len(masterSalt) != saltLen {
		return nil, errShortKey
	}

	encLabel, authLabel, saltLabel := byte(labelSRTPEncryption), byte(labelSRTPAuthenticationTag), byte(labelSRTPSalt)
	if rtcp {
		encLabel, authLabel, saltLabel = labelSRTCPEncryption, labelSRTCPAuthenticationTag, labelSRTCPSalt
	}

	keys := &sessionKeys{}
	if keys.encryptionKey, err = aesCmKeyDerivation(encLabel, masterKey, masterSalt, keyLen); err != nil {
		return nil, err
	}
	if authKeyLen > 0 {
		if keys.authKey, err = aesCmKeyDerivation(authLabel, masterKey, masterSalt, authKeyLen); err != nil {
			return nil, err
		}
	}
	if keys.salt, err = aesCmKeyDerivation(saltLabel, masterKey, masterSalt, saltLen); err != nil {
		return nil, err
	}
	return keys, nil
}

package srtp

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

func fromHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// Key derivation test vectors from RFC 3711 Appendix B.3.
func TestKeyDerivationVectors(t *testing.T) {
	masterKey := fromHex(t, "E1F97A0D3E018BE0D64FA32C06DE4139")
	masterSalt := fromHex(t, "0EC675AD498AFEEBB6960B3AABE6")

	cipherKey, err := aesCmKeyDerivation(labelSRTPEncryption, masterKey, masterSalt, 16)
	require.NoError(t, err)
	assert.Equal(t, fromHex(t, "C61E7A93744F39EE10734AFE3FF7A087"), cipherKey)

	cipherSalt, err := aesCmKeyDerivation(labelSRTPSalt, masterKey, masterSalt, 14)
	require.NoError(t, err)
	assert.Equal(t, fromHex(t, "30CBBC08863D8C85D49DB34A9AE1"), cipherSalt)

	authKey, err := aesCmKeyDerivation(labelSRTPAuthenticationTag, masterKey, masterSalt, 20)
	require.NoError(t, err)
	assert.Equal(t, fromHex(t, "CEBE321F6FF7716B6FD4AB49AF256A156D38BAA4"), authKey)
}

func testKeys(t *testing.T, profile ProtectionProfile) ([]byte, []byte) {
	t.Helper()
	keyLen, err := profile.KeyLen()
	require.NoError(t, err)
	saltLen, err := profile.SaltLen()
	require.NoError(t, err)

	key := make([]byte, keyLen)
	salt := make([]byte, saltLen)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range salt {
		salt[i] = byte(0xA0 + i)
	}
	return key, salt
}

func testRTPPacket(t *testing.T, seq uint16) []byte {
	t.Helper()
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      3653407706,
			SSRC:           0xcafebabe,
		},
		Payload: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
	}
	raw, err := p.Marshal()
	require.NoError(t, err)
	return raw
}

func TestRTPRoundTrip(t *testing.T) {
	for _, profile := range []ProtectionProfile{
		ProtectionProfileAes128CmHmacSha1_80,
		ProtectionProfileAeadAes128Gcm,
	} {
		t.Run(profile.String(), func(t *testing.T) {
			key, salt := testKeys(t, profile)
			sender, err := CreateContext(key, salt, profile)
			require.NoError(t, err)
			receiver, err := CreateContext(key, salt, profile)
			require.NoError(t, err)

			plaintext := testRTPPacket(t, 5000)
			encrypted, err := sender.EncryptRTP(plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, encrypted)

			tagLen, err := profile.AuthTagLen()
			require.NoError(t, err)
			assert.Len(t, encrypted, len(plaintext)+tagLen)

			decrypted, err := receiver.DecryptRTP(encrypted)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		})
	}
}

func TestRTPReplayRejected(t *testing.T) {
	profile := ProtectionProfileAes128CmHmacSha1_80
	key, salt := testKeys(t, profile)
	sender, err := CreateContext(key, salt, profile)
	require.NoError(t, err)
	receiver, err := CreateContext(key, salt, profile)
	require.NoError(t, err)

	encrypted, err := sender.EncryptRTP(testRTPPacket(t, 100))
	require.NoError(t, err)

	_, err = receiver.DecryptRTP(encrypted)
	require.NoError(t, err)

	_, err = receiver.DecryptRTP(encrypted)
	assert.ErrorIs(t, err, errDuplicated)
}

func TestRTPAuthFailure(t *testing.T) {
	profile := ProtectionProfileAes128CmHmacSha1_80
	key, salt := testKeys(t, profile)
	sender, err := CreateContext(key, salt, profile)
	require.NoError(t, err)
	receiver, err := CreateContext(key, salt, profile)
	require.NoError(t, err)

	encrypted, err := sender.EncryptRTP(testRTPPacket(t, 100))
	require.NoError(t, err)
	encrypted[len(encrypted)-1] ^= 0xff

	_, err = receiver.DecryptRTP(encrypted)
	assert.ErrorIs(t, err, errAuthFailed)

	// a tampered packet must not poison the replay window for the
	// genuine one
	encrypted[len(encrypted)-1] ^= 0xff
	_, err = receiver.DecryptRTP(encrypted)
	assert.NoError(t, err)
}

func TestRolloverCounter(t *testing.T) {
	profile := ProtectionProfileAes128CmHmacSha1_80
	key, salt := testKeys(t, profile)
	sender, err := CreateContext(key, salt, profile)
	require.NoError(t, err)
	receiver, err := CreateContext(key, salt, profile)
	require.NoError(t, err)

	for _, seq := range []uint16{65533, 65534, 65535, 0, 1} {
		encrypted, err := sender.EncryptRTP(testRTPPacket(t, seq))
		require.NoError(t, err)
		_, err = receiver.DecryptRTP(encrypted)
		require.NoError(t, err, "seq %d", seq)
	}

	roc, ok := receiver.ROC(0xcafebabe)
	require.True(t, ok)
	assert.Equal(t, uint32(1), roc)
}

func TestRTCPRoundTrip(t *testing.T) {
	for _, profile := range []ProtectionProfile{
		ProtectionProfileAes128CmHmacSha1_80,
		ProtectionProfileAeadAes128Gcm,
	} {
		t.Run(profile.String(), func(t *testing.T) {
			key, salt := testKeys(t, profile)
			sender, err := CreateContext(key, salt, profile)
			require.NoError(t, err)
			receiver, err := CreateContext(key, salt, profile)
			require.NoError(t, err)

			// receiver report + sdes, as the session layer would send
			plaintext := []byte{
				0x80, 0xc9, 0x00, 0x01, 0xca, 0xfe, 0xba, 0xbe,
				0x81, 0xca, 0x00, 0x03, 0xca, 0xfe, 0xba, 0xbe,
				0x01, 0x05, 0x63, 0x6e, 0x61, 0x6d, 0x65, 0x00,
			}
			encrypted, err := sender.EncryptRTCP(plaintext)
			require.NoError(t, err)

			decrypted, err := receiver.DecryptRTCP(encrypted)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)

			_, err = receiver.DecryptRTCP(encrypted)
			assert.ErrorIs(t, err, errDuplicated)
		})
	}
}

func TestCreateContextValidation(t *testing.T) {
	_, err := CreateContext(make([]byte, 3), make([]byte, 14), ProtectionProfileAes128CmHmacSha1_80)
	assert.Error(t, err)

	_, err = CreateContext(make([]byte, 16), make([]byte, 14), ProtectionProfile(0x1234))
	assert.Error(t, err)
}

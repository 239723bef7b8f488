package dtls

import (
	"crypto/hmac"
	"crypto/sha256"
)

// pHash is the P_SHA256 expansion of RFC 5246 Section 5.
func pHash(secret, seed []byte, length int) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(seed)
	a := mac.Sum(nil)

	out := make([]byte, 0, length)
	for len(out) < length {
		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)

		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)
	}
	return out[:length]
}

// prf12 is the TLS 1.2 PRF with SHA-256.
func prf12(secret []byte, label string, seed []byte, length int) []byte {
	labelled := make([]byte, 0, len(label)+len(seed))
	labelled = append(labelled, label...)
	labelled = append(labelled, seed...)
	return pHash(secret, labelled, length)
}

const (
	masterSecretLength = 48

	labelMasterSecret   = "master secret"
	labelKeyExpansion   = "key expansion"
	labelClientFinished = "client finished"
	labelServerFinished = "server finished"
)

func prfMasterSecret(preMasterSecret, clientRandom, serverRandom []byte) []byte {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf12(preMasterSecret, labelMasterSecret, seed, masterSecretLength)
}

// encryptionKeys are the expanded AES-GCM session keys. The suite uses
// no MAC keys and 4-byte implicit nonces.
type encryptionKeys struct {
	clientWriteKey []byte
	serverWriteKey []byte
	clientWriteIV  []byte
	serverWriteIV  []byte
}

func prfEncryptionKeys(masterSecret, clientRandom, serverRandom []byte) *encryptionKeys {
	// key expansion seeds with server random first
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	material := prf12(masterSecret, labelKeyExpansion, seed, 2*16+2*4)
	return &encryptionKeys{
		clientWriteKey: material[0:16],
		serverWriteKey: material[16:32],
		clientWriteIV:  material[32:36],
		serverWriteIV:  material[36:40],
	}
}

func prfVerifyData(masterSecret, handshakeHash []byte, label string) []byte {
	return prf12(masterSecret, label, handshakeHash, 12)
}

// exportKeyingMaterial implements RFC 5705 without context.
func exportKeyingMaterial(masterSecret, clientRandom, serverRandom []byte, label string, length int) []byte {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf12(masterSecret, label, seed, length)
}

package stun

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// Sample messages from RFC 5769, short-term password
// "VOkJxbRl1RmTxUk/WvJxBt".
func sampleRequest(t *testing.T) []byte {
	return mustHex(t,
		"000100582112a442b7e7a701bc34d686fa87dfae"+
			"80220010"+hex.EncodeToString([]byte("STUN test client"))+
			"00240004"+"6e0001ff"+
			"80290008"+"932ff9b151263b36"+
			"00060009"+hex.EncodeToString([]byte("evtj:h6vY"))+"202020"+
			"00080014"+"9aeaa70cbfd8cb56781ef2b5b2d3f249c1b571a2"+
			"80280004"+"e57a3bcf")
}

func sampleIPv4Response(t *testing.T) []byte {
	return mustHex(t,
		"0101003c2112a442b7e7a701bc34d686fa87dfae"+
			"8022000b"+hex.EncodeToString([]byte("test vector"))+"20"+
			"00200008"+"0001a147e112a643"+
			"00080014"+"2b91f599fd9e90c38c7489f92af9ba53f06be7d7"+
			"80280004"+"c07d4c96")
}

func TestUnmarshalRFC5769Request(t *testing.T) {
	m, err := Unmarshal(sampleRequest(t))
	require.NoError(t, err)

	assert.Equal(t, MessageType{Class: ClassRequest, Method: MethodBinding}, m.Type)

	username, err := m.Username()
	require.NoError(t, err)
	assert.Equal(t, "evtj:h6vY", username)

	prio, err := m.Priority()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x6e0001ff), prio)

	controlling, tieBreaker, ok := m.ICERole()
	require.True(t, ok)
	assert.False(t, controlling)
	assert.Equal(t, uint64(0x932ff9b151263b36), tieBreaker)

	assert.NoError(t, m.CheckIntegrity(NewShortTermKey("VOkJxbRl1RmTxUk/WvJxBt")))
	assert.NoError(t, m.CheckFingerprint())
	assert.ErrorIs(t, m.CheckIntegrity(NewShortTermKey("wrong")), ErrBadIntegrity)
}

func TestUnmarshalRFC5769Response(t *testing.T) {
	m, err := Unmarshal(sampleIPv4Response(t))
	require.NoError(t, err)

	assert.Equal(t, MessageType{Class: ClassSuccessResponse, Method: MethodBinding}, m.Type)

	ip, port, err := m.XORMappedAddress()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", ip.String())
	assert.Equal(t, 32853, port)

	assert.NoError(t, m.CheckIntegrity(NewShortTermKey("VOkJxbRl1RmTxUk/WvJxBt")))
	assert.NoError(t, m.CheckFingerprint())
}

func TestMessageTypeValue(t *testing.T) {
	for _, tc := range []struct {
		mt    MessageType
		value uint16
	}{
		{MessageType{ClassRequest, MethodBinding}, 0x0001},
		{MessageType{ClassIndication, MethodBinding}, 0x0011},
		{MessageType{ClassSuccessResponse, MethodBinding}, 0x0101},
		{MessageType{ClassErrorResponse, MethodBinding}, 0x0111},
	} {
		assert.Equal(t, tc.value, tc.mt.Value())
		assert.Equal(t, tc.mt, messageTypeFromValue(tc.value))
	}
}

func TestRoundTrip(t *testing.T) {
	req := New(MessageType{Class: ClassRequest, Method: MethodBinding})
	req.SetUsername("ufragR:ufragL")
	req.SetPriority(1845501695)
	req.SetICEControlling(0x1122334455667788)
	req.SetUseCandidate()
	req.AddMessageIntegrity(NewShortTermKey("the/ice/password"))
	req.AddFingerprint()

	parsed, err := Unmarshal(req.Marshal())
	require.NoError(t, err)

	username, err := parsed.Username()
	require.NoError(t, err)
	assert.Equal(t, "ufragR:ufragL", username)
	prio, err := parsed.Priority()
	require.NoError(t, err)
	assert.Equal(t, uint32(1845501695), prio)
	assert.True(t, parsed.HasUseCandidate())

	assert.NoError(t, parsed.CheckIntegrity(NewShortTermKey("the/ice/password")))
	assert.NoError(t, parsed.CheckFingerprint())
}

func TestXORMappedAddressIPv6(t *testing.T) {
	resp := New(MessageType{Class: ClassSuccessResponse, Method: MethodBinding})
	resp.SetXORMappedAddress([]byte{0x20, 0x01, 0x0d, 0xb8, 0x12, 0x34, 0x56, 0x78, 0, 0, 0, 0, 0, 0, 0, 1}, 32853)

	parsed, err := Unmarshal(resp.Marshal())
	require.NoError(t, err)
	ip, port, err := parsed.XORMappedAddress()
	require.NoError(t, err)
	assert.Equal(t, "2001:db8:1234:5678::1", ip.String())
	assert.Equal(t, 32853, port)
}

func TestErrorCode(t *testing.T) {
	resp := New(MessageType{Class: ClassErrorResponse, Method: MethodBinding})
	resp.SetErrorCode(CodeRoleConflict, "Role Conflict")

	parsed, err := Unmarshal(resp.Marshal())
	require.NoError(t, err)
	code, reason, err := parsed.ErrorCode()
	require.NoError(t, err)
	assert.Equal(t, 487, code)
	assert.Equal(t, "Role Conflict", reason)
}

func TestUnmarshalRejects(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		_, err := Unmarshal([]byte{0x00, 0x01, 0x00})
		assert.ErrorIs(t, err, ErrBadFormat)
	})

	t.Run("bad cookie", func(t *testing.T) {
		raw := sampleRequest(t)
		raw[4] ^= 0xff
		_, err := Unmarshal(raw)
		assert.ErrorIs(t, err, ErrBadFormat)
	})

	t.Run("length mismatch", func(t *testing.T) {
		raw := sampleRequest(t)
		raw[3] += 8
		_, err := Unmarshal(raw)
		assert.ErrorIs(t, err, ErrBadFormat)
	})

	t.Run("unknown comprehension-required attribute", func(t *testing.T) {
		m := New(MessageType{Class: ClassRequest, Method: MethodBinding})
		m.Add(AttrType(0x7fff), []byte{1, 2, 3, 4})
		_, err := Unmarshal(m.Marshal())
		assert.ErrorIs(t, err, ErrUnknownRequiredAttribute)
	})

	t.Run("unknown comprehension-optional attribute is kept", func(t *testing.T) {
		m := New(MessageType{Class: ClassRequest, Method: MethodBinding})
		m.Add(AttrType(0xfffe), []byte{1, 2, 3, 4})
		parsed, err := Unmarshal(m.Marshal())
		require.NoError(t, err)
		_, ok := parsed.Get(AttrType(0xfffe))
		assert.True(t, ok)
	})
}

func TestIsMessage(t *testing.T) {
	assert.True(t, IsMessage(sampleRequest(t)))
	assert.False(t, IsMessage([]byte{0x80, 0x01, 0x00, 0x00}))
	assert.False(t, IsMessage(nil))
}

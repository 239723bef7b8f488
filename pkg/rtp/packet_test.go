package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasic(t *testing.T) {
	raw := []byte{
		0x90, 0xe0, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda,
		0x1c, 0x64, 0x27, 0x82, 0x00, 0x01, 0x00, 0x01,
		0x98, 0x36, 0xbe, 0x88, 0x9e,
	}
	p := &Packet{}
	require.NoError(t, p.Unmarshal(raw))

	assert.Equal(t, uint8(2), p.Version)
	assert.True(t, p.Extension)
	assert.True(t, p.Marker)
	assert.Equal(t, uint8(96), p.PayloadType)
	assert.Equal(t, uint16(27023), p.SequenceNumber)
	assert.Equal(t, uint32(3653407706), p.Timestamp)
	assert.Equal(t, uint32(476325762), p.SSRC)
	assert.Equal(t, uint16(1), p.ExtensionProfile)
	require.Len(t, p.Extensions, 1)
	assert.Equal(t, []byte{0x98, 0x36, 0xbe, 0x88}, p.Extensions[0].Payload)
	assert.Equal(t, []byte{0x9e}, p.Payload)

	out, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestOneByteExtensionRoundTrip(t *testing.T) {
	p := &Packet{
		Header: Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: 500,
			Timestamp:      48000,
			SSRC:           0xdeadbeef,
		},
		Payload: []byte{0x01, 0x02},
	}
	require.NoError(t, p.SetExtension(3, []byte{0x00, 0x2a}))
	require.NoError(t, p.SetExtension(5, []byte("mid0")))

	raw, err := p.Marshal()
	require.NoError(t, err)

	parsed := &Packet{}
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, ExtensionProfileOneByte, int(parsed.ExtensionProfile))
	assert.Equal(t, []byte{0x00, 0x2a}, parsed.GetExtension(3))
	assert.Equal(t, []byte("mid0"), parsed.GetExtension(5))
	assert.Nil(t, parsed.GetExtension(9))
	assert.ElementsMatch(t, []uint8{3, 5}, parsed.GetExtensionIDs())
	assert.Equal(t, []byte{0x01, 0x02}, parsed.Payload)
}

func TestTwoByteExtension(t *testing.T) {
	p := &Packet{
		Header: Header{
			Version:          2,
			Extension:        true,
			ExtensionProfile: ExtensionProfileTwoByte,
			PayloadType:      96,
		},
		Payload: []byte{0xff},
	}
	long := make([]byte, 30)
	require.NoError(t, p.SetExtension(200, long))

	raw, err := p.Marshal()
	require.NoError(t, err)

	parsed := &Packet{}
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, long, parsed.GetExtension(200))
}

func TestExtensionLimits(t *testing.T) {
	p := &Packet{Header: Header{Version: 2}}
	assert.Error(t, p.SetExtension(15, []byte{0}))
	assert.Error(t, p.SetExtension(0, []byte{0}))
	assert.Error(t, p.SetExtension(1, make([]byte, 17)))

	p2 := &Packet{Header: Header{Version: 2, Extension: true, ExtensionProfile: ExtensionProfileTwoByte}}
	assert.Error(t, p2.SetExtension(1, make([]byte, 256)))
	assert.NoError(t, p2.SetExtension(255, make([]byte, 255)))
}

func TestDelExtension(t *testing.T) {
	p := &Packet{Header: Header{Version: 2}}
	require.NoError(t, p.SetExtension(1, []byte{0xaa}))
	require.NoError(t, p.DelExtension(1))
	assert.Nil(t, p.GetExtension(1))
	assert.Error(t, p.DelExtension(1))
}

func TestPadding(t *testing.T) {
	p := &Packet{
		Header:      Header{Version: 2, PayloadType: 96},
		Payload:     []byte{0x01, 0x02, 0x03},
		PaddingSize: 4,
	}
	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(4), raw[len(raw)-1])

	parsed := &Packet{}
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, parsed.Payload)
	assert.Equal(t, byte(4), parsed.PaddingSize)
}

func TestPaddingRejected(t *testing.T) {
	raw := []byte{
		0xa0, 0x60, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda,
		0x1c, 0x64, 0x27, 0x82,
	}
	p := &Packet{}
	assert.Error(t, p.Unmarshal(raw))
}

func TestUnmarshalTruncated(t *testing.T) {
	p := &Packet{}
	assert.Error(t, p.Unmarshal(nil))
	assert.Error(t, p.Unmarshal([]byte{0x80, 0x60}))

	// claims one CSRC but has none
	assert.Error(t, p.Unmarshal([]byte{
		0x81, 0x60, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01,
	}))
}

func TestClone(t *testing.T) {
	p := &Packet{
		Header:  Header{Version: 2, CSRC: []uint32{1, 2}},
		Payload: []byte{0x0a},
	}
	require.NoError(t, p.SetExtension(1, []byte{0x01}))

	clone := p.Clone()
	clone.CSRC[0] = 99
	clone.Payload[0] = 0xff
	clone.Extensions[0].Payload[0] = 0xff

	assert.Equal(t, uint32(1), p.CSRC[0])
	assert.Equal(t, byte(0x0a), p.Payload[0])
	assert.Equal(t, byte(0x01), p.Extensions[0].Payload[0])
}

package codecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVP8Unmarshal(t *testing.T) {
	p := &VP8Packet{}

	_, err := p.Unmarshal(nil)
	assert.Error(t, err)

	// minimal descriptor, S bit set
	payload, err := p.Unmarshal([]byte{0x10, 0x9d, 0x01, 0x2a})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), p.S)
	assert.Equal(t, []byte{0x9d, 0x01, 0x2a}, payload)

	// X set with 15-bit PictureID
	payload, err = p.Unmarshal([]byte{0x90, 0x80, 0x81, 0x01, 0xaa})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), p.X)
	assert.Equal(t, uint8(1), p.I)
	assert.Equal(t, uint16(0x0101), p.PictureID)
	assert.Equal(t, []byte{0xaa}, payload)

	// truncated extension block
	_, err = p.Unmarshal([]byte{0x80})
	assert.Error(t, err)
}

func TestVP8KeyFrame(t *testing.T) {
	p := &VP8Packet{}
	// frame tag low bit 0 -> key frame
	_, err := p.Unmarshal([]byte{0x10, 0x00, 0x9d, 0x01})
	require.NoError(t, err)
	assert.True(t, p.IsKeyFrame())

	_, err = p.Unmarshal([]byte{0x10, 0x01, 0x9d, 0x01})
	require.NoError(t, err)
	assert.False(t, p.IsKeyFrame())
}

func TestVP8Payloader(t *testing.T) {
	p := &VP8Payloader{}

	assert.Nil(t, p.Payload(10, nil))

	frame := make([]byte, 25)
	payloads := p.Payload(11, frame)
	require.Len(t, payloads, 3)
	assert.Equal(t, byte(0x10), payloads[0][0])
	assert.Equal(t, byte(0x00), payloads[1][0])
	assert.Equal(t, byte(0x00), payloads[2][0])

	assert.True(t, (&VP8Packet{}).IsPartitionHead(payloads[0]))
	assert.False(t, (&VP8Packet{}).IsPartitionHead(payloads[1]))
}

func TestH264PayloadRoundTrip(t *testing.T) {
	payloader := &H264Payloader{}
	nalu := append([]byte{0x65}, make([]byte, 40)...) // IDR slice

	annexb := append([]byte{0x00, 0x00, 0x00, 0x01}, nalu...)
	payloads := payloader.Payload(20, annexb)
	require.Greater(t, len(payloads), 1)

	depacketizer := &H264Packet{}
	var out []byte
	for _, pp := range payloads {
		b, err := depacketizer.Unmarshal(pp)
		require.NoError(t, err)
		out = append(out, b...)
	}
	assert.Equal(t, annexb, out)
}

func TestVP8PictureIDParsing(t *testing.T) {
	p := &VP8Packet{}
	// 7-bit PictureID
	_, err := p.Unmarshal([]byte{0x90, 0x80, 0x11, 0xaa})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x11), p.PictureID)
}

package dcep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRoundTrip(t *testing.T) {
	open := &Open{
		ChannelType:          ChannelTypePartialReliableRexmitUnordered,
		Priority:             256,
		ReliabilityParameter: 5,
		Label:                "chat",
		Protocol:             "prot",
	}
	raw, err := open.Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), raw[0])

	parsed, err := Parse(raw)
	require.NoError(t, err)
	parsedOpen, ok := parsed.(*Open)
	require.True(t, ok)
	assert.Equal(t, open, parsedOpen)
	assert.True(t, parsedOpen.ChannelType.Unordered())
}

func TestOpenKnownBytes(t *testing.T) {
	raw := []byte{
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
		'e', 'c', 'h', 'o',
	}
	parsed, err := Parse(raw)
	require.NoError(t, err)
	open, ok := parsed.(*Open)
	require.True(t, ok)
	assert.Equal(t, ChannelTypeReliable, open.ChannelType)
	assert.Equal(t, "echo", open.Label)
	assert.Empty(t, open.Protocol)
}

func TestAckRoundTrip(t *testing.T) {
	raw, err := (&Ack{}).Marshal()
	require.NoError(t, err)
	parsed, err := Parse(raw)
	require.NoError(t, err)
	_, ok := parsed.(*Ack)
	assert.True(t, ok)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = Parse([]byte{0x42})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Parse([]byte{0x03, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrTruncated)

	// label length exceeds the buffer
	_, err = Parse([]byte{
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0xff, 0x00, 0x00,
	})
	assert.ErrorIs(t, err, ErrTruncated)
}

package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportCCExtension(t *testing.T) {
	e := TransportCCExtension{TransportSequence: 0xBEEF}
	raw, err := e.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBE, 0xEF}, raw)

	var d TransportCCExtension
	require.NoError(t, d.Unmarshal(raw))
	assert.Equal(t, uint16(0xBEEF), d.TransportSequence)

	assert.Error(t, d.Unmarshal([]byte{0x01}))
}

func TestAbsSendTimeRoundTrip(t *testing.T) {
	sendTime := time.Unix(1700000000, 123456789)
	e := NewAbsSendTimeExtension(sendTime)
	raw, err := e.Marshal()
	require.NoError(t, err)
	assert.Len(t, raw, 3)

	var d AbsSendTimeExtension
	require.NoError(t, d.Unmarshal(raw))
	assert.Equal(t, e.Timestamp, d.Timestamp)

	// estimate from a receive time shortly after the send time should
	// land within a millisecond of the original
	estimated := d.Estimate(sendTime.Add(50 * time.Millisecond))
	diff := estimated.Sub(sendTime)
	if diff < 0 {
		diff = -diff
	}
	assert.Less(t, diff, time.Millisecond)
}

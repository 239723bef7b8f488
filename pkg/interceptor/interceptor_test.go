package interceptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgewood-io/webrtc/pkg/rtcp"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

func TestReceiveLogMissing(t *testing.T) {
	log, err := NewReceiveLog(128)
	require.NoError(t, err)

	_, err = NewReceiveLog(100)
	assert.Error(t, err)

	for _, seq := range []uint16{10, 11, 12, 14, 16, 17} {
		log.Add(seq)
	}

	assert.True(t, log.Get(12))
	assert.False(t, log.Get(13))

	missing := log.MissingSeqNumbers(0)
	assert.Equal(t, []uint16{13, 15}, missing)

	// filling a hole removes it
	log.Add(13)
	missing = log.MissingSeqNumbers(0)
	assert.Equal(t, []uint16{15}, missing)
}

func TestReceiveLogWrap(t *testing.T) {
	log, err := NewReceiveLog(64)
	require.NoError(t, err)

	log.Add(65534)
	log.Add(65535)
	log.Add(1) // skips 0
	assert.Equal(t, []uint16{0}, log.MissingSeqNumbers(0))
}

func TestSendBuffer(t *testing.T) {
	buf, err := NewSendBuffer(8)
	require.NoError(t, err)

	for seq := uint16(100); seq < 110; seq++ {
		buf.Add(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq}})
	}

	// oldest entries were evicted by the power-of-two window
	assert.Nil(t, buf.Get(100))
	require.NotNil(t, buf.Get(109))
	assert.Equal(t, uint16(105), buf.Get(105).SequenceNumber)
	assert.Nil(t, buf.Get(110))
}

func TestNackGenerator(t *testing.T) {
	gen, err := NewNackGenerator(1, 2)
	require.NoError(t, err)

	for _, seq := range []uint16{20, 21, 23, 24, 25, 26} {
		gen.MarkReceived(seq)
	}

	nack := gen.Pending()
	require.NotNil(t, nack)
	assert.Equal(t, uint32(2), nack.MediaSSRC)
	require.Len(t, nack.Nacks, 1)
	assert.Contains(t, nack.Nacks[0].PacketList(), uint16(22))

	// retries cap out
	for i := 0; i < maxNacksPerPacket; i++ {
		gen.Pending()
	}
	assert.Nil(t, gen.Pending())

	// a late arrival clears the hole
	gen.MarkReceived(22)
	assert.Nil(t, gen.Pending())
}

func TestNackResponderRTX(t *testing.T) {
	resp, err := NewNackResponder(0xAABBCCDD, 97)
	require.NoError(t, err)

	original := &rtp.Packet{
		Header: rtp.Header{
			SSRC:           0x11111111,
			PayloadType:    96,
			SequenceNumber: 500,
		},
		Payload: []byte{0xde, 0xad},
	}
	resp.Remember(original)

	packets := resp.Resend(&rtcp.TransportLayerNack{
		MediaSSRC: 0x11111111,
		Nacks:     []rtcp.NackPair{{PacketID: 500}},
	})
	require.Len(t, packets, 1)

	rtxPacket := packets[0]
	assert.Equal(t, uint32(0xAABBCCDD), rtxPacket.SSRC)
	assert.Equal(t, uint8(97), rtxPacket.PayloadType)
	// original sequence number prefixes the payload
	assert.Equal(t, []byte{0x01, 0xf4, 0xde, 0xad}, rtxPacket.Payload)

	recovered, ok := UnwrapRTX(rtxPacket, 0x11111111, 96)
	require.True(t, ok)
	assert.Equal(t, uint16(500), recovered.SequenceNumber)
	assert.Equal(t, original.Payload, recovered.Payload)

	// unknown sequence numbers resend nothing
	assert.Empty(t, resp.Resend(&rtcp.TransportLayerNack{
		Nacks: []rtcp.NackPair{{PacketID: 9999}},
	}))
}

func TestTWCCRecorder(t *testing.T) {
	rec := NewTWCCRecorder(1, 2)
	assert.Nil(t, rec.BuildFeedback())

	base := time.Now()
	rec.Record(100, base)
	rec.Record(101, base.Add(2*time.Millisecond))
	rec.Record(103, base.Add(10*time.Millisecond)) // 102 lost

	fb := rec.BuildFeedback()
	require.NotNil(t, fb)
	assert.Equal(t, uint16(100), fb.BaseSequenceNumber)
	assert.Equal(t, uint16(4), fb.PacketStatusCount) // 100,101,102(lost),103
	require.Len(t, fb.RecvDeltas, 3)

	// feedback must marshal into a parseable packet
	raw, err := fb.Marshal()
	require.NoError(t, err)
	var parsed rtcp.TransportLayerCC
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, fb.PacketStatusCount, parsed.PacketStatusCount)
	require.Len(t, parsed.RecvDeltas, 3)

	// a second build starts a fresh window with a bumped counter
	rec.Record(104, base.Add(20*time.Millisecond))
	fb2 := rec.BuildFeedback()
	require.NotNil(t, fb2)
	assert.Equal(t, uint8(1), fb2.FbPktCount)
}

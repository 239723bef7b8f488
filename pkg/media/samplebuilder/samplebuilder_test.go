package samplebuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// fakeDepacketizer treats payloads starting with 0x01 as partition
// heads; the marker bit ends a partition.
type fakeDepacketizer struct{}

func (f *fakeDepacketizer) Unmarshal(payload []byte) ([]byte, error) { return payload[1:], nil }
func (f *fakeDepacketizer) IsPartitionHead(payload []byte) bool {
	return len(payload) > 0 && payload[0] == 0x01
}
func (f *fakeDepacketizer) IsPartitionTail(marker bool, _ []byte) bool { return marker }

func pkt(seq uint16, ts uint32, marker bool, payload ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq, Timestamp: ts, Marker: marker},
		Payload: payload,
	}
}

func TestSinglePacketSample(t *testing.T) {
	b := New(50, &fakeDepacketizer{}, 90000)

	b.Push(pkt(100, 1000, true, 0x01, 0xAA))
	sample := b.Pop()
	require.NotNil(t, sample)
	assert.Equal(t, []byte{0xAA}, sample.Data)
	assert.Equal(t, uint32(1000), sample.PacketTimestamp)
	assert.Nil(t, b.Pop())
}

func TestOutOfOrderReassembly(t *testing.T) {
	b := New(50, &fakeDepacketizer{}, 90000)

	// three-packet frame delivered out of order
	b.Push(pkt(101, 2000, false, 0x00, 0xBB))
	b.Push(pkt(100, 2000, false, 0x01, 0xAA))
	assert.Nil(t, b.Pop())
	b.Push(pkt(102, 2000, true, 0x00, 0xCC))

	sample := b.Pop()
	require.NotNil(t, sample)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, sample.Data)
}

func TestOrderedDeliveryAcrossSamples(t *testing.T) {
	b := New(50, &fakeDepacketizer{}, 90000)

	b.Push(pkt(10, 1, true, 0x01, 0x0A))
	b.Push(pkt(12, 3, true, 0x01, 0x0C)) // 11 still missing
	sample := b.Pop()
	require.NotNil(t, sample)
	assert.Equal(t, []byte{0x0A}, sample.Data)
	assert.Nil(t, b.Pop()) // waiting on 11

	b.Push(pkt(11, 2, true, 0x01, 0x0B))
	first := b.Pop()
	require.NotNil(t, first)
	assert.Equal(t, []byte{0x0B}, first.Data)
	second := b.Pop()
	require.NotNil(t, second)
	assert.Equal(t, []byte{0x0C}, second.Data)
}

func TestLatePacketDropped(t *testing.T) {
	b := New(4, &fakeDepacketizer{}, 90000)

	b.Push(pkt(10, 1, true, 0x01, 0x0A))
	require.NotNil(t, b.Pop())

	// sequence number before the consume point
	b.Push(pkt(9, 0, true, 0x01, 0x09))
	assert.Nil(t, b.Pop())
}

func TestMaxLateEviction(t *testing.T) {
	b := New(4, &fakeDepacketizer{}, 90000)

	// 100 never completes; pushing far ahead evicts it
	b.Push(pkt(100, 1, false, 0x01, 0xAA))
	b.Push(pkt(106, 2, true, 0x01, 0xBB))

	sample := b.Pop()
	require.NotNil(t, sample)
	assert.Equal(t, []byte{0xBB}, sample.Data)
	assert.Positive(t, sample.PrevDroppedPackets)
}

func TestMaxTimeDelay(t *testing.T) {
	b := New(1000, &fakeDepacketizer{}, 90000, WithMaxTimeDelay(time.Millisecond))

	b.Push(pkt(50, 1, false, 0x01, 0xAA)) // incomplete frame
	time.Sleep(5 * time.Millisecond)
	b.Push(pkt(52, 2, true, 0x01, 0xBB)) // evicts the expired 50
	time.Sleep(5 * time.Millisecond)
	b.Push(pkt(54, 3, true, 0x01, 0xCC)) // hole at 51 now expired too

	sample := b.Pop()
	require.NotNil(t, sample)
	assert.Equal(t, []byte{0xBB}, sample.Data)
}

func TestKeyFrameSignal(t *testing.T) {
	b := New(50, &fakeDepacketizer{}, 90000,
		WithKeyFrameDetector(func(payload []byte) bool {
			return len(payload) > 1 && payload[1] == 0xFF
		}))

	b.Push(pkt(1, 1, true, 0x01, 0xFF))
	sample := b.Pop()
	require.NotNil(t, sample)
	assert.True(t, sample.KeyFrame)

	b.Push(pkt(2, 2, true, 0x01, 0x00))
	sample = b.Pop()
	require.NotNil(t, sample)
	assert.False(t, sample.KeyFrame)
}

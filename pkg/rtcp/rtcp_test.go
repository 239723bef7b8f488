package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, h := range []Header{
		{Version: 2, Count: 1, Type: TypeSenderReport, Length: 7},
		{Version: 2, Padding: true, Count: 31, Type: TypeGoodbye, Length: 1},
		{Version: 2, Count: FormatPLI, Type: TypePayloadSpecificFeedback, Length: 2},
	} {
		raw, err := h.Marshal()
		require.NoError(t, err)
		var parsed Header
		require.NoError(t, parsed.Unmarshal(raw))
		assert.Equal(t, h, parsed)
	}

	var h Header
	assert.Error(t, h.Unmarshal([]byte{0x00, 0xc9, 0x00, 0x01})) // version 0
	assert.Error(t, h.Unmarshal([]byte{0x81}))

	_, err := Header{Count: 40}.Marshal()
	assert.Error(t, err)
}

func TestSenderReportRoundTrip(t *testing.T) {
	sr := SenderReport{
		SSRC:        0x902f9e2e,
		NTPTime:     0xda8bd1fcdddda05a,
		RTPTime:     0xaaf4edd5,
		PacketCount: 1,
		OctetCount:  2,
		Reports: []ReceptionReport{{
			SSRC:               0xbc5e9a40,
			FractionLost:       0,
			TotalLost:          0,
			LastSequenceNumber: 0x46e1,
			Jitter:             273,
			LastSenderReport:   0x9f36432,
			Delay:              150137,
		}},
	}
	raw, err := sr.Marshal()
	require.NoError(t, err)

	var parsed SenderReport
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, sr, parsed)
	assert.Contains(t, parsed.DestinationSSRC(), uint32(0x902f9e2e))
	assert.Contains(t, parsed.DestinationSSRC(), uint32(0xbc5e9a40))
}

func TestReceiverReportRoundTrip(t *testing.T) {
	rr := ReceiverReport{
		SSRC: 0x902f9e2e,
		Reports: []ReceptionReport{{
			SSRC:               0xbc5e9a40,
			FractionLost:       81,
			TotalLost:          5,
			LastSequenceNumber: 0x46e1,
			Jitter:             273,
		}},
	}
	raw, err := rr.Marshal()
	require.NoError(t, err)

	var parsed ReceiverReport
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, rr, parsed)
}

func TestReceptionReportTotalLostLimit(t *testing.T) {
	_, err := ReceptionReport{TotalLost: 1 << 24}.Marshal()
	assert.ErrorIs(t, err, errInvalidTotalLost)
}

func TestSourceDescriptionRoundTrip(t *testing.T) {
	sdes := SourceDescription{
		Chunks: []SourceDescriptionChunk{{
			Source: 0x10203040,
			Items: []SourceDescriptionItem{
				{Type: SDESCNAME, Text: "endpoint@example.invalid"},
			},
		}},
	}
	raw, err := sdes.Marshal()
	require.NoError(t, err)
	assert.Zero(t, len(raw)%4)

	var parsed SourceDescription
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, sdes, parsed)
}

func TestGoodbyeRoundTrip(t *testing.T) {
	bye := Goodbye{Sources: []uint32{0x01020304}, Reason: "shutting down"}
	raw, err := bye.Marshal()
	require.NoError(t, err)

	var parsed Goodbye
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Equal(t, bye, parsed)
}

func TestNackPair(t *testing.T) {
	n := NackPair{PacketID: 42, LostPackets: 0}
	assert.Equal(t, []uint16{42}, n.PacketList())

	n = NackPair{PacketID: 42, LostPackets: 0x8001}
	assert.Equal(t, []uint16{42, 43, 58}, n.PacketList())

	pairs := NackPairsFromSequenceNumbers([]uint16{42, 43, 58, 90})
	assert.Equal(t, []NackPair{
		{PacketID: 42, LostPackets: 0x8001},
		{PacketID: 90},
	}, pairs)
}

func TestTransportLayerNackRoundTrip(t *testing.T) {
	nack := TransportLayerNack{
		SenderSSRC: 0x902f9e2e,
		MediaSSRC:  0x902f9e2e,
		Nacks:      []NackPair{{PacketID: 1, LostPackets: 0xAA}},
	}
	raw, err := nack.Marshal()
	require.NoError(t, err)

	pkts, err := Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	parsed, ok := pkts[0].(*TransportLayerNack)
	require.True(t, ok)
	assert.Equal(t, nack, *parsed)
}

func TestPictureLossIndicationRoundTrip(t *testing.T) {
	pli := PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2}
	raw, err := pli.Marshal()
	require.NoError(t, err)

	pkts, err := Unmarshal(raw)
	require.NoError(t, err)
	parsed, ok := pkts[0].(*PictureLossIndication)
	require.True(t, ok)
	assert.Equal(t, pli, *parsed)
}

func TestFullIntraRequestRoundTrip(t *testing.T) {
	fir := FullIntraRequest{
		SenderSSRC: 1,
		MediaSSRC:  2,
		FIR:        []FIREntry{{SSRC: 3, SequenceNumber: 7}},
	}
	raw, err := fir.Marshal()
	require.NoError(t, err)

	pkts, err := Unmarshal(raw)
	require.NoError(t, err)
	parsed, ok := pkts[0].(*FullIntraRequest)
	require.True(t, ok)
	assert.Equal(t, fir, *parsed)
}

func TestREMBRoundTrip(t *testing.T) {
	remb := ReceiverEstimatedMaximumBitrate{
		SenderSSRC: 1,
		Bitrate:    8927168, // representable exactly
		SSRCs:      []uint32{0x1215f16c},
	}
	raw, err := remb.Marshal()
	require.NoError(t, err)

	pkts, err := Unmarshal(raw)
	require.NoError(t, err)
	parsed, ok := pkts[0].(*ReceiverEstimatedMaximumBitrate)
	require.True(t, ok)
	assert.Equal(t, remb.SSRCs, parsed.SSRCs)
	assert.Equal(t, remb.Bitrate, parsed.Bitrate)
}

func TestREMBBitrateRoundsUp(t *testing.T) {
	remb := ReceiverEstimatedMaximumBitrate{Bitrate: (1 << 30) + 1, SSRCs: []uint32{1}}
	raw, err := remb.Marshal()
	require.NoError(t, err)

	var parsed ReceiverEstimatedMaximumBitrate
	require.NoError(t, parsed.Unmarshal(raw))
	assert.GreaterOrEqual(t, parsed.Bitrate, remb.Bitrate)
}

func TestTransportLayerCCRoundTrip(t *testing.T) {
	tcc := TransportLayerCC{
		SenderSSRC:         4195875351,
		MediaSSRC:          1124282272,
		BaseSequenceNumber: 120,
		PacketStatusCount:  3,
		ReferenceTime:      4057090,
		FbPktCount:         23,
		PacketChunks: []PacketStatusChunk{
			&RunLengthChunk{
				Type:               TypeTCCRunLengthChunk,
				PacketStatusSymbol: TypeTCCPacketReceivedSmallDelta,
				RunLength:          3,
			},
		},
		RecvDeltas: []*RecvDelta{
			{Type: TypeTCCPacketReceivedSmallDelta, Delta: 250},
			{Type: TypeTCCPacketReceivedSmallDelta, Delta: 500},
			{Type: TypeTCCPacketReceivedSmallDelta, Delta: 63750},
		},
	}
	raw, err := tcc.Marshal()
	require.NoError(t, err)
	assert.Zero(t, len(raw)%4)

	pkts, err := Unmarshal(raw)
	require.NoError(t, err)
	parsed, ok := pkts[0].(*TransportLayerCC)
	require.True(t, ok)
	assert.Equal(t, tcc.BaseSequenceNumber, parsed.BaseSequenceNumber)
	assert.Equal(t, tcc.PacketStatusCount, parsed.PacketStatusCount)
	assert.Equal(t, tcc.ReferenceTime, parsed.ReferenceTime)
	assert.Equal(t, tcc.FbPktCount, parsed.FbPktCount)
	require.Len(t, parsed.RecvDeltas, 3)
	assert.Equal(t, int64(250), parsed.RecvDeltas[0].Delta)
	assert.Equal(t, int64(63750), parsed.RecvDeltas[2].Delta)
}

func TestTransportLayerCCMixedChunks(t *testing.T) {
	tcc := TransportLayerCC{
		BaseSequenceNumber: 0,
		PacketStatusCount:  9,
		PacketChunks: []PacketStatusChunk{
			&StatusVectorChunk{
				Type:       TypeTCCStatusVectorChunk,
				SymbolSize: TypeTCCSymbolSizeTwoBit,
				SymbolList: []uint16{
					TypeTCCPacketReceivedSmallDelta,
					TypeTCCPacketNotReceived,
					TypeTCCPacketReceivedLargeDelta,
					TypeTCCPacketNotReceived,
					TypeTCCPacketNotReceived,
					TypeTCCPacketNotReceived,
					TypeTCCPacketNotReceived,
				},
			},
			&RunLengthChunk{
				PacketStatusSymbol: TypeTCCPacketNotReceived,
				RunLength:          2,
			},
		},
		RecvDeltas: []*RecvDelta{
			{Type: TypeTCCPacketReceivedSmallDelta, Delta: 1000},
			{Type: TypeTCCPacketReceivedLargeDelta, Delta: -1000},
		},
	}
	raw, err := tcc.Marshal()
	require.NoError(t, err)

	var parsed TransportLayerCC
	require.NoError(t, parsed.Unmarshal(raw))
	require.Len(t, parsed.RecvDeltas, 2)
	assert.Equal(t, int64(1000), parsed.RecvDeltas[0].Delta)
	assert.Equal(t, int64(-1000), parsed.RecvDeltas[1].Delta)
}

func TestRecvDeltaLimits(t *testing.T) {
	_, err := RecvDelta{Type: TypeTCCPacketReceivedSmallDelta, Delta: -250}.Marshal()
	assert.ErrorIs(t, err, errDeltaExceedsLimit)
	_, err = RecvDelta{Type: TypeTCCPacketReceivedSmallDelta, Delta: 64000}.Marshal()
	assert.ErrorIs(t, err, errDeltaExceedsLimit)
	_, err = RecvDelta{Type: TypeTCCPacketReceivedLargeDelta, Delta: 32768 * 250}.Marshal()
	assert.ErrorIs(t, err, errDeltaExceedsLimit)
}

func TestCompoundPacket(t *testing.T) {
	rr := &ReceiverReport{SSRC: 1}
	sdes := &SourceDescription{Chunks: []SourceDescriptionChunk{{
		Source: 1,
		Items:  []SourceDescriptionItem{{Type: SDESCNAME, Text: "cname"}},
	}}}
	pli := &PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2}

	valid := CompoundPacket{rr, sdes, pli}
	assert.NoError(t, valid.Validate())
	cname, err := valid.CNAME()
	require.NoError(t, err)
	assert.Equal(t, "cname", cname)

	raw, err := valid.Marshal()
	require.NoError(t, err)
	var parsed CompoundPacket
	require.NoError(t, parsed.Unmarshal(raw))
	assert.Len(t, parsed, 3)

	assert.ErrorIs(t, CompoundPacket{}.Validate(), errEmptyCompound)
	assert.ErrorIs(t, CompoundPacket{pli}.Validate(), errBadFirstPacket)
	assert.ErrorIs(t, CompoundPacket{rr, pli}.Validate(), errPacketBeforeCNAME)
	assert.ErrorIs(t, CompoundPacket{rr, &SourceDescription{}}.Validate(), errMissingCNAME)
}

func TestUnmarshalCompoundDatagram(t *testing.T) {
	rr := &ReceiverReport{SSRC: 1}
	bye := &Goodbye{Sources: []uint32{1}}
	raw, err := Marshal([]Packet{rr, bye})
	require.NoError(t, err)

	pkts, err := Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	_, ok := pkts[0].(*ReceiverReport)
	assert.True(t, ok)
	_, ok = pkts[1].(*Goodbye)
	assert.True(t, ok)

	_, err = Unmarshal(nil)
	assert.Error(t, err)
}

func TestRawPacketFallback(t *testing.T) {
	// APP packet (204) has no dedicated type
	app := []byte{0x80, 0xcc, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x41, 0x42, 0x43, 0x44}
	pkts, err := Unmarshal(app)
	require.NoError(t, err)
	raw, ok := pkts[0].(*RawPacket)
	require.True(t, ok)
	assert.Equal(t, PacketType(204), raw.Header().Type)

	out, err := raw.Marshal()
	require.NoError(t, err)
	assert.Equal(t, app, out)
}

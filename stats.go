package webrtc

import "time"

// Stats is a point-in-time diagnostic snapshot of a PeerConnection.
// It is a read-only observability surface; nothing in the connection
// plane consumes it.
type Stats struct {
	Timestamp time.Time

	SignalingState     SignalingState
	ConnectionState    PeerConnectionState
	ICEConnectionState ICEConnectionState
	ICEGatheringState  ICEGatheringState

	// DroppedDatagrams counts inbound datagrams the transport demux
	// could not classify.
	DroppedDatagrams uint64

	OutboundRTPStreams []OutboundRTPStreamStats
	DataChannelCount   int
}

// OutboundRTPStreamStats summarizes one sender's output.
type OutboundRTPStreamStats struct {
	SSRC        uint32
	Kind        string
	PacketsSent uint32
	BytesSent   uint32
}

// GetStats assembles a snapshot.
func (pc *PeerConnection) GetStats() Stats {
	stats := Stats{
		Timestamp:          time.Now(),
		SignalingState:     pc.SignalingState(),
		ConnectionState:    pc.ConnectionState(),
		ICEConnectionState: pc.ICEConnectionState(),
		ICEGatheringState:  pc.ICEGatheringState(),
	}

	pc.iceTransport.mu.Lock()
	if pc.iceTransport.mux != nil {
		stats.DroppedDatagrams = pc.iceTransport.mux.DroppedPackets()
	}
	pc.iceTransport.mu.Unlock()

	for _, t := range pc.GetTransceivers() {
		if sender := t.Sender(); sender != nil {
			sender.mu.RLock()
			stats.OutboundRTPStreams = append(stats.OutboundRTPStreams, OutboundRTPStreamStats{
				SSRC:        sender.ssrc,
				Kind:        sender.kind.String(),
				PacketsSent: sender.packetCount,
				BytesSent:   sender.octetCount,
			})
			sender.mu.RUnlock()
		}
	}

	pc.mu.RLock()
	stats.DataChannelCount = len(pc.dataChannels)
	pc.mu.RUnlock()
	return stats
}

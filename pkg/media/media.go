// Package media holds the media-facing types exchanged with payloaders
// and depacketizers.
package media

import "time"

// A Sample is one decodable unit of media with its timing. Writers
// hand Samples to a local track; the sample builder reassembles them
// from inbound RTP.
type Sample struct {
	Data      []byte
	Timestamp time.Time
	Duration  time.Duration

	// PacketTimestamp is the RTP timestamp of the packets the sample
	// was built from.
	PacketTimestamp uint32

	// PrevDroppedPackets counts packets dropped (late or lost beyond
	// recovery) since the previous sample.
	PrevDroppedPackets uint16

	// KeyFrame is the depacketizer's codec-agnostic keyframe signal.
	KeyFrame bool
}

package rtp

// Depacketizer strips the codec's payload header and exposes the frame
// boundary signals the jitter buffer keys on. Implementations live in
// the codecs subpackage or are supplied by the application.
type Depacketizer interface {
	Unmarshal(packet []byte) ([]byte, error)

	// IsPartitionHead reports whether the payload begins a new frame
	// partition. Used with the marker bit to frame samples without the
	// buffer itself parsing codec payloads.
	IsPartitionHead(payload []byte) bool

	// IsPartitionTail reports whether the packet ends a partition.
	IsPartitionTail(marker bool, payload []byte) bool
}

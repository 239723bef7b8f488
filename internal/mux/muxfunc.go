package mux

// MatchFunc decides whether an inbound datagram belongs to an endpoint.
type MatchFunc func([]byte) bool

// MatchAll accepts every datagram.
func MatchAll([]byte) bool {
	return true
}

// MatchRange accepts datagrams whose first byte lies in [lower, upper].
func MatchRange(lower, upper byte) MatchFunc {
	return func(buf []byte) bool {
		return len(buf) > 0 && buf[0] >= lower && buf[0] <= upper
	}
}

// Classification per RFC 7983:
//
//	0..3    STUN
//	16..19  ZRTP (unhandled)
//	20..63  DTLS
//	64..79  TURN channels (unhandled; TURN client data arrives decapsulated)
//	128..191 RTP/RTCP

// MatchSTUN accepts STUN datagrams.
func MatchSTUN(b []byte) bool {
	return MatchRange(0, 3)(b)
}

// MatchDTLS accepts DTLS datagrams.
func MatchDTLS(b []byte) bool {
	return MatchRange(20, 63)(b)
}

// MatchSRTPOrSRTCP accepts the shared RTP/RTCP range.
func MatchSRTPOrSRTCP(b []byte) bool {
	return MatchRange(128, 191)(b)
}

func isRTCP(buf []byte) bool {
	// RTCP packet types 200..215 occupy the second byte
	return len(buf) > 1 && buf[1] >= 200 && buf[1] <= 215
}

// MatchSRTP accepts SRTP but not SRTCP datagrams.
func MatchSRTP(buf []byte) bool {
	return MatchSRTPOrSRTCP(buf) && !isRTCP(buf)
}

// MatchSRTCP accepts SRTCP datagrams.
func MatchSRTCP(buf []byte) bool {
	return MatchSRTPOrSRTCP(buf) && isRTCP(buf)
}

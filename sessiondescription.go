package webrtc

import "github.com/pion/sdp/v3"

// SessionDescription is one side of an offer/answer exchange, carried
// opaquely by the application's signaling transport.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`

	// parsed caches the result of Unmarshal so repeated negotiation
	// passes don't reparse.
	parsed *sdp.SessionDescription
}

// Unmarshal parses the SDP text through the external SDP codec.
func (sd *SessionDescription) Unmarshal() (*sdp.SessionDescription, error) {
	if sd.parsed != nil {
		return sd.parsed, nil
	}
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(sd.SDP)); err != nil {
		return nil, err
	}
	sd.parsed = parsed
	return parsed, nil
}

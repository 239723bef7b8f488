package webrtc

// Configuration is the argument to NewPeerConnection.
type Configuration struct {
	ICEServers           []ICEServer        `json:"iceServers,omitempty"`
	ICETransportPolicy   ICETransportPolicy `json:"iceTransportPolicy,omitempty"`
	BundlePolicy         BundlePolicy       `json:"bundlePolicy,omitempty"`
	Certificates         []Certificate      `json:"-"`
	PeerIdentity         string             `json:"peerIdentity,omitempty"`

	// CodecPreferences, when non-empty, overrides the media engine's
	// registration order during codec intersection. Entries are mime
	// types, most preferred first.
	CodecPreferences []string `json:"-"`
}

func (c Configuration) getICEServers() []ICEServer {
	return c.ICEServers
}

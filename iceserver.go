package webrtc

import (
	"github.com/pkg/errors"

	"github.com/ridgewood-io/webrtc/internal/ice"
)

// ICECredentialType is how a TURN credential is interpreted.
type ICECredentialType int

// Credential types; only passwords are supported.
const (
	ICECredentialTypePassword ICECredentialType = iota
	ICECredentialTypeOauth
)

var errInvalidICEServer = errors.New("webrtc: invalid ICE server")

// ICEServer is one STUN or TURN server from the configuration.
type ICEServer struct {
	URLs           []string          `json:"urls"`
	Username       string            `json:"username,omitempty"`
	Credential     interface{}       `json:"credential,omitempty"`
	CredentialType ICECredentialType `json:"credentialType,omitempty"`
}

// urls parses and validates the server's URL list, attaching TURN
// credentials.
func (s ICEServer) urls() ([]*ice.URL, error) {
	var out []*ice.URL
	for _, raw := range s.URLs {
		u, err := ice.ParseURL(raw)
		if err != nil {
			return nil, err
		}
		if u.Scheme == ice.SchemeTypeTURN || u.Scheme == ice.SchemeTypeTURNS {
			if s.Username == "" || s.Credential == nil {
				return nil, errors.Wrap(errInvalidICEServer, "TURN server without credentials")
			}
			if s.CredentialType != ICECredentialTypePassword {
				return nil, errors.Wrap(errInvalidICEServer, "unsupported credential type")
			}
			password, ok := s.Credential.(string)
			if !ok {
				return nil, errors.Wrap(errInvalidICEServer, "credential must be a string")
			}
			u.Username = s.Username
			u.Password = password
		}
		out = append(out, u)
	}
	return out, nil
}

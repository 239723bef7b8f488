package webrtc

import (
	"github.com/ridgewood-io/webrtc/internal/ice"
)

// ICECandidate is the API-level view of one agent candidate.
type ICECandidate struct {
	Foundation     string           `json:"foundation"`
	Priority       uint32           `json:"priority"`
	Address        string           `json:"address"`
	Protocol       string           `json:"protocol"`
	Port           uint16           `json:"port"`
	Typ            ICECandidateType `json:"type"`
	Component      uint16           `json:"component"`
	RelatedAddress string           `json:"relatedAddress"`
	RelatedPort    uint16           `json:"relatedPort"`
}

// ICECandidateInit is the wire form exchanged through signaling.
type ICECandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func newICECandidateFromICE(c *ice.Candidate) ICECandidate {
	out := ICECandidate{
		Foundation: c.Foundation,
		Priority:   c.Priority,
		Address:    c.Address,
		Protocol:   c.Protocol.String(),
		Port:       uint16(c.Port), //nolint:gosec
		Component:  c.Component,
	}
	switch c.Type {
	case ice.CandidateTypeHost:
		out.Typ = ICECandidateTypeHost
	case ice.CandidateTypeServerReflexive:
		out.Typ = ICECandidateTypeSrflx
	case ice.CandidateTypePeerReflexive:
		out.Typ = ICECandidateTypePrflx
	case ice.CandidateTypeRelay:
		out.Typ = ICECandidateTypeRelay
	}
	if c.Related != nil {
		out.RelatedAddress = c.Related.Address
		out.RelatedPort = uint16(c.Related.Port) //nolint:gosec
	}
	return out
}

// String renders the candidate in the SDP attribute value form.
func (c ICECandidate) String() string {
	ic, err := c.iceCandidate()
	if err != nil {
		return ""
	}
	return ic.Marshal()
}

func (c ICECandidate) iceCandidate() (*ice.Candidate, error) {
	var typ ice.CandidateType
	switch c.Typ {
	case ICECandidateTypeHost:
		typ = ice.CandidateTypeHost
	case ICECandidateTypeSrflx:
		typ = ice.CandidateTypeServerReflexive
	case ICECandidateTypePrflx:
		typ = ice.CandidateTypePeerReflexive
	case ICECandidateTypeRelay:
		typ = ice.CandidateTypeRelay
	default:
		return nil, ErrUnknownType
	}

	out := &ice.Candidate{
		Foundation: c.Foundation,
		Component:  c.Component,
		Protocol:   ice.ProtoTypeUDP,
		Priority:   c.Priority,
		Address:    c.Address,
		Port:       int(c.Port),
		Type:       typ,
	}
	if c.RelatedAddress != "" {
		out.Related = &ice.RelatedAddress{Address: c.RelatedAddress, Port: int(c.RelatedPort)}
	}
	return out, nil
}

// ToJSON renders the candidate in the signaling wire form.
func (c ICECandidate) ToJSON() ICECandidateInit {
	zero := uint16(0)
	return ICECandidateInit{
		Candidate:     "candidate:" + c.String(),
		SDPMLineIndex: &zero,
	}
}

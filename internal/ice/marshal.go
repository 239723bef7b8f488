package ice

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrBadCandidate indicates a candidate attribute that does not parse.
var ErrBadCandidate = errors.New("ice: malformed candidate")

// Marshal renders the candidate in SDP attribute form (the value of
// a=candidate, without the attribute name).
func (c *Candidate) Marshal() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Protocol, c.Priority, c.Address, c.Port, c.Type)
	if c.Related != nil {
		fmt.Fprintf(&b, " raddr %s rport %d", c.Related.Address, c.Related.Port)
	}
	if c.Generation > 0 {
		fmt.Fprintf(&b, " generation %d", c.Generation)
	}
	return b.String()
}

// UnmarshalCandidate parses the SDP attribute form, with or without
// the leading "candidate:" prefix.
func UnmarshalCandidate(raw string) (*Candidate, error) { //nolint:gocognit
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "candidate:")
	fields := strings.Fields(raw)
	if len(fields) < 8 {
		return nil, errors.Wrap(ErrBadCandidate, raw)
	}

	component, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return nil, errors.Wrap(ErrBadCandidate, "component")
	}
	proto := NewProtoType(strings.ToLower(fields[2]))
	if proto == ProtoType(0) {
		return nil, errors.Wrap(ErrBadCandidate, "protocol")
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil, errors.Wrap(ErrBadCandidate, "priority")
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil || port < 0 || port > 65535 {
		return nil, errors.Wrap(ErrBadCandidate, "port")
	}
	if fields[6] != "typ" {
		return nil, errors.Wrap(ErrBadCandidate, "missing typ")
	}

	var typ CandidateType
	switch fields[7] {
	case "host":
		typ = CandidateTypeHost
	case "srflx":
		typ = CandidateTypeServerReflexive
	case "prflx":
		typ = CandidateTypePeerReflexive
	case "relay":
		typ = CandidateTypeRelay
	default:
		return nil, errors.Wrapf(ErrBadCandidate, "type %q", fields[7])
	}

	c := &Candidate{
		Foundation: fields[0],
		Component:  uint16(component),
		Protocol:   proto,
		Priority:   uint32(priority),
		Address:    fields[4],
		Port:       port,
		Type:       typ,
	}

	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			if c.Related == nil {
				c.Related = &RelatedAddress{}
			}
			c.Related.Address = fields[i+1]
		case "rport":
			if c.Related == nil {
				c.Related = &RelatedAddress{}
			}
			if c.Related.Port, err = strconv.Atoi(fields[i+1]); err != nil {
				return nil, errors.Wrap(ErrBadCandidate, "rport")
			}
		case "generation":
			if c.Generation, err = strconv.Atoi(fields[i+1]); err != nil {
				return nil, errors.Wrap(ErrBadCandidate, "generation")
			}
		}
	}
	return c, nil
}

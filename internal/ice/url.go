package ice

import (
	"net"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// SchemeType is the scheme of an ICE server URL.
type SchemeType int

// Schemes from RFC 7064 and RFC 7065.
const (
	SchemeTypeUnknown SchemeType = iota
	SchemeTypeSTUN
	SchemeTypeSTUNS
	SchemeTypeTURN
	SchemeTypeTURNS
)

// NewSchemeType parses a scheme string.
func NewSchemeType(raw string) SchemeType {
	switch raw {
	case "stun":
		return SchemeTypeSTUN
	case "stuns":
		return SchemeTypeSTUNS
	case "turn":
		return SchemeTypeTURN
	case "turns":
		return SchemeTypeTURNS
	}
	return SchemeTypeUnknown
}

func (s SchemeType) String() string {
	switch s {
	case SchemeTypeSTUN:
		return "stun"
	case SchemeTypeSTUNS:
		return "stuns"
	case SchemeTypeTURN:
		return "turn"
	case SchemeTypeTURNS:
		return "turns"
	}
	return "unknown"
}

// ProtoType is the transport protocol of a URL or candidate.
type ProtoType int

// Supported transport protocols.
const (
	ProtoTypeUDP ProtoType = iota + 1
	ProtoTypeTCP
)

// NewProtoType parses a transport string.
func NewProtoType(raw string) ProtoType {
	switch raw {
	case "udp":
		return ProtoTypeUDP
	case "tcp":
		return ProtoTypeTCP
	}
	return ProtoType(0)
}

func (p ProtoType) String() string {
	switch p {
	case ProtoTypeUDP:
		return "udp"
	case ProtoTypeTCP:
		return "tcp"
	}
	return "unknown"
}

// URL is a parsed STUN or TURN server URL.
type URL struct {
	Scheme   SchemeType
	Host     string
	Port     int
	Proto    ProtoType
	Username string
	Password string
}

var (
	// ErrSchemeType indicates an unsupported URL scheme.
	ErrSchemeType = errors.New("ice: unknown scheme type")
	// ErrHost indicates a missing or invalid host.
	ErrHost = errors.New("ice: invalid hostname")
	// ErrPort indicates an invalid port.
	ErrPort = errors.New("ice: invalid port")
	// ErrProtoType indicates an invalid transport query parameter.
	ErrProtoType = errors.New("ice: invalid transport protocol")
	// ErrSTUNQuery indicates query parameters on a stun URL, which RFC
	// 7064 forbids.
	ErrSTUNQuery = errors.New("ice: query arguments not supported for stun scheme")
)

// ParseURL parses "stun:host[:port]" and
// "turn:host[:port][?transport=udp|tcp]" forms.
func ParseURL(raw string) (*URL, error) { //nolint:gocognit
	rawParts, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(ErrHost, err.Error())
	}

	var u URL
	u.Scheme = NewSchemeType(rawParts.Scheme)
	if u.Scheme == SchemeTypeUnknown {
		return nil, ErrSchemeType
	}

	var rawPort string
	if u.Host, rawPort, err = net.SplitHostPort(rawParts.Opaque); err != nil {
		if addrErr, ok := err.(*net.AddrError); ok && addrErr.Err == "missing port in address" { //nolint:errorlint
			u.Host = rawParts.Opaque
			switch u.Scheme {
			case SchemeTypeSTUN, SchemeTypeTURN:
				rawPort = "3478"
			default:
				rawPort = "5349"
			}
		} else {
			return nil, errors.Wrap(ErrHost, err.Error())
		}
	}
	if u.Host == "" {
		return nil, ErrHost
	}
	if u.Port, err = strconv.Atoi(rawPort); err != nil || u.Port <= 0 || u.Port > 65535 {
		return nil, ErrPort
	}

	switch u.Scheme {
	case SchemeTypeSTUN, SchemeTypeSTUNS:
		if rawParts.RawQuery != "" {
			return nil, ErrSTUNQuery
		}
		u.Proto = ProtoTypeUDP
	case SchemeTypeTURN, SchemeTypeTURNS:
		u.Proto = ProtoTypeUDP
		if proto := rawParts.Query().Get("transport"); proto != "" {
			if u.Proto = NewProtoType(proto); u.Proto == ProtoType(0) {
				return nil, ErrProtoType
			}
		}
	}
	return &u, nil
}

// IsSecure reports whether the scheme uses TLS/DTLS.
func (u URL) IsSecure() bool {
	return u.Scheme == SchemeTypeSTUNS || u.Scheme == SchemeTypeTURNS
}

func (u URL) String() string {
	s := u.Scheme.String() + ":" + net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
	if (u.Scheme == SchemeTypeTURN || u.Scheme == SchemeTypeTURNS) && u.Proto == ProtoTypeTCP {
		s += "?transport=tcp"
	}
	return s
}

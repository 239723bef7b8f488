package webrtc

import (
	"time"

	"github.com/pion/logging"

	"github.com/ridgewood-io/webrtc/internal/ice"
	loggerzap "github.com/ridgewood-io/webrtc/pkg/logger/zap"
)

// SettingEngine carries the knobs that sit outside the W3C
// configuration surface: socket limits, timeouts, mDNS behavior and
// the logging backend.
type SettingEngine struct {
	LoggerFactory logging.LoggerFactory

	ephemeralUDP struct {
		PortMin uint16
		PortMax uint16
	}
	timeout struct {
		ICEDisconnectedTimeout *time.Duration
		ICEFailedTimeout       *time.Duration
		ICEKeepaliveInterval   *time.Duration
	}
	candidates struct {
		ICETrickle           bool
		InterfaceFilter      func(string) bool
		NAT1To1IPs           []string
		MulticastDNSMode     ice.MulticastDNSMode
		MulticastDNSHostName string
		UsernameFragment     string
		Password             string
	}
	answeringDTLSRole DTLSRole
}

func (e *SettingEngine) loggerFactory() logging.LoggerFactory {
	if e.LoggerFactory == nil {
		e.LoggerFactory = loggerzap.NewDefaultFactory()
	}
	return e.LoggerFactory
}

// SetEphemeralUDPPortRange bounds the local UDP port the ICE agent
// binds.
func (e *SettingEngine) SetEphemeralUDPPortRange(portMin, portMax uint16) error {
	if portMax < portMin {
		return ErrUnknownType
	}
	e.ephemeralUDP.PortMin = portMin
	e.ephemeralUDP.PortMax = portMax
	return nil
}

// SetICETimeouts overrides the consent-freshness timeouts and
// keepalive interval.
func (e *SettingEngine) SetICETimeouts(disconnected, failed, keepalive time.Duration) {
	e.timeout.ICEDisconnectedTimeout = &disconnected
	e.timeout.ICEFailedTimeout = &failed
	e.timeout.ICEKeepaliveInterval = &keepalive
}

// SetInterfaceFilter restricts which interfaces gather host
// candidates.
func (e *SettingEngine) SetInterfaceFilter(filter func(string) bool) {
	e.candidates.InterfaceFilter = filter
}

// SetNAT1To1IPs substitutes static public IPs into host candidates.
func (e *SettingEngine) SetNAT1To1IPs(ips []string) {
	e.candidates.NAT1To1IPs = ips
}

// SetICEMulticastDNSMode controls mDNS candidate obfuscation.
func (e *SettingEngine) SetICEMulticastDNSMode(mode ice.MulticastDNSMode) {
	e.candidates.MulticastDNSMode = mode
}

// SetMulticastDNSHostName pins the advertised mDNS name instead of a
// random one.
func (e *SettingEngine) SetMulticastDNSHostName(name string) {
	e.candidates.MulticastDNSHostName = name
}

// SetICECredentials pins the local ufrag/pwd.
func (e *SettingEngine) SetICECredentials(ufrag, pwd string) {
	e.candidates.UsernameFragment = ufrag
	e.candidates.Password = pwd
}

// SetAnsweringDTLSRole forces the answerer's a=setup choice.
func (e *SettingEngine) SetAnsweringDTLSRole(role DTLSRole) error {
	if role != DTLSRoleClient && role != DTLSRoleServer {
		return ErrUnknownType
	}
	e.answeringDTLSRole = role
	return nil
}

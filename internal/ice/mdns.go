package ice

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// MulticastDNSMode controls mDNS candidate obfuscation.
type MulticastDNSMode byte

// Supported modes.
const (
	// MulticastDNSModeDisabled neither queries nor gathers mDNS names.
	MulticastDNSModeDisabled MulticastDNSMode = iota
	// MulticastDNSModeQueryOnly resolves remote ".local" candidates but
	// advertises plain IP host candidates.
	MulticastDNSModeQueryOnly
	// MulticastDNSModeQueryAndGather additionally hides local host
	// candidates behind a random ".local" name.
	MulticastDNSModeQueryAndGather
)

// GenerateMulticastDNSName returns a fresh random mDNS host name.
func GenerateMulticastDNSName() string {
	return uuid.NewString() + ".local"
}

func createMulticastDNSServer(localName string) (*mdns.Conn, error) {
	if localName != "" && !strings.HasSuffix(localName, ".local") {
		return nil, ErrMulticastDNSName
	}

	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, err
	}
	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return nil, err
	}

	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		return nil, err
	}
	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		// IPv4-only hosts still get a working server
		l6 = nil
	}

	config := &mdns.Config{}
	if localName != "" {
		config.LocalNames = []string{localName}
	}

	var pc6 *ipv6.PacketConn
	if l6 != nil {
		pc6 = ipv6.NewPacketConn(l6)
	}
	return mdns.Server(ipv4.NewPacketConn(l4), pc6, config)
}

func (a *Agent) resolveMulticastDNSAddress(ctx context.Context, name string) (*net.UDPAddr, error) {
	if a.mdnsConn == nil {
		return nil, ErrMulticastDNSName
	}
	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, addr, err := a.mdnsConn.QueryAddr(queryCtx, name)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: net.IP(addr.AsSlice())}, nil
}

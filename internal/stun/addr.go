package stun

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
)

const (
	familyIPv4 = 0x01
	familyIPv6 = 0x02
)

// SetXORMappedAddress adds a XOR-MAPPED-ADDRESS attribute per RFC 5389
// Section 15.2.
func (m *Message) SetXORMappedAddress(ip net.IP, port int) {
	var (
		family uint16
		addr   []byte
	)
	if ip4 := ip.To4(); ip4 != nil {
		family, addr = familyIPv4, ip4
	} else {
		family, addr = familyIPv6, ip.To16()
	}

	v := make([]byte, 4+len(addr))
	binary.BigEndian.PutUint16(v[0:2], family)
	binary.BigEndian.PutUint16(v[2:4], uint16(port)^uint16(magicCookie>>16))

	var xorMask [4 + transactionIDSize]byte
	binary.BigEndian.PutUint32(xorMask[0:4], magicCookie)
	copy(xorMask[4:], m.TransactionID[:])
	for i := range addr {
		v[4+i] = addr[i] ^ xorMask[i]
	}
	m.Add(AttrXORMappedAddress, v)
}

// XORMappedAddress extracts the reflexive transport address from a
// Binding response.
func (m *Message) XORMappedAddress() (net.IP, int, error) {
	v, ok := m.Get(AttrXORMappedAddress)
	if !ok {
		return nil, 0, errors.Wrap(ErrAttributeNotFound, AttrXORMappedAddress.String())
	}
	if len(v) < 4 {
		return nil, 0, errors.Wrap(ErrBadFormat, "XOR-MAPPED-ADDRESS truncated")
	}

	var addrLen int
	switch binary.BigEndian.Uint16(v[0:2]) {
	case familyIPv4:
		addrLen = net.IPv4len
	case familyIPv6:
		addrLen = net.IPv6len
	default:
		return nil, 0, errors.Wrap(ErrBadFormat, "XOR-MAPPED-ADDRESS family")
	}
	if len(v) != 4+addrLen {
		return nil, 0, errors.Wrap(ErrBadFormat, "XOR-MAPPED-ADDRESS length")
	}

	port := int(binary.BigEndian.Uint16(v[2:4]) ^ uint16(magicCookie>>16))

	var xorMask [4 + transactionIDSize]byte
	binary.BigEndian.PutUint32(xorMask[0:4], magicCookie)
	copy(xorMask[4:], m.TransactionID[:])
	ip := make(net.IP, addrLen)
	for i := range ip {
		ip[i] = v[4+i] ^ xorMask[i]
	}
	return ip, port, nil
}

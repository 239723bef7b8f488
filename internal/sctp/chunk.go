// Package sctp implements the SCTP subset data channels ride on (RFC
// 4960 over DTLS per RFC 8261): association setup, reliable and
// partially reliable DATA transfer with SACK-driven congestion
// control, stream reconfiguration (RFC 6525) and FORWARD-TSN (RFC
// 3758).
package sctp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

type chunkType uint8

const (
	ctPayloadData      chunkType = 0
	ctInit             chunkType = 1
	ctInitAck          chunkType = 2
	ctSack             chunkType = 3
	ctHeartbeat        chunkType = 4
	ctHeartbeatAck     chunkType = 5
	ctAbort            chunkType = 6
	ctShutdown         chunkType = 7
	ctShutdownAck      chunkType = 8
	ctError            chunkType = 9
	ctCookieEcho       chunkType = 10
	ctCookieAck        chunkType = 11
	ctShutdownComplete chunkType = 14
	ctReconfig         chunkType = 130
	ctForwardTSN       chunkType = 192
)

func (c chunkType) String() string {
	switch c {
	case ctPayloadData:
		return "DATA"
	case ctInit:
		return "INIT"
	case ctInitAck:
		return "INIT-ACK"
	case ctSack:
		return "SACK"
	case ctHeartbeat:
		return "HEARTBEAT"
	case ctHeartbeatAck:
		return "HEARTBEAT-ACK"
	case ctAbort:
		return "ABORT"
	case ctShutdown:
		return "SHUTDOWN"
	case ctShutdownAck:
		return "SHUTDOWN-ACK"
	case ctError:
		return "ERROR"
	case ctCookieEcho:
		return "COOKIE-ECHO"
	case ctCookieAck:
		return "COOKIE-ACK"
	case ctShutdownComplete:
		return "SHUTDOWN-COMPLETE"
	case ctReconfig:
		return "RECONFIG"
	case ctForwardTSN:
		return "FORWARD-TSN"
	}
	return "unknown chunk"
}

const chunkHeaderSize = 4

var (
	errChunkTooShort = errors.New("sctp: chunk too short")
	errChunkFormat   = errors.New("sctp: malformed chunk")
)

// chunkHeader is the shared type/flags/length prefix.
type chunkHeader struct {
	typ    chunkType
	flags  byte
	raw    []byte // value, without header or padding
}

func (h *chunkHeader) unmarshalHeader(raw []byte) error {
	if len(raw) < chunkHeaderSize {
		return errChunkTooShort
	}
	h.typ = chunkType(raw[0])
	h.flags = raw[1]
	length := int(binary.BigEndian.Uint16(raw[2:]))
	if length < chunkHeaderSize || length > len(raw) {
		return errChunkFormat
	}
	h.raw = raw[chunkHeaderSize:length]
	return nil
}

func (h *chunkHeader) marshalHeader(value []byte) []byte {
	out := make([]byte, chunkHeaderSize, chunkHeaderSize+len(value)+3)
	out[0] = byte(h.typ)
	out[1] = h.flags
	binary.BigEndian.PutUint16(out[2:], uint16(chunkHeaderSize+len(value))) //nolint:gosec
	out = append(out, value...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

// chunk is implemented by every chunk type.
type chunk interface {
	unmarshal(flags byte, value []byte) error
	marshal() []byte
}

func paddedLen(l int) int {
	if l%4 != 0 {
		return l + 4 - l%4
	}
	return l
}

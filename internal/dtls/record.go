// Package dtls implements the DTLS 1.2 subset WebRTC needs: one ECDHE
// ECDSA AES-128-GCM cipher suite with mutual certificate
// authentication, the use_srtp extension and the RFC 5705 keying
// material exporter. Session resumption and renegotiation are out.
package dtls

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// content types
type contentType uint8

const (
	contentTypeChangeCipherSpec contentType = 20
	contentTypeAlert            contentType = 21
	contentTypeHandshake        contentType = 22
	contentTypeApplicationData  contentType = 23
)

const (
	dtls12Major = 0xfe
	dtls12Minor = 0xfd
	dtls10Minor = 0xff

	recordHeaderLen = 13
	maxMTU          = 1200
)

var (
	errRecordTooShort   = errors.New("dtls: record too short")
	errUnsupportedProto = errors.New("dtls: unsupported protocol version")
)

// recordHeader is the DTLS record layer header.
type recordHeader struct {
	contentType    contentType
	epoch          uint16
	sequenceNumber uint64 // 48 bits
	length         uint16
}

func (h *recordHeader) marshal() []byte {
	out := make([]byte, recordHeaderLen)
	out[0] = byte(h.contentType)
	out[1] = dtls12Major
	out[2] = dtls12Minor
	binary.BigEndian.PutUint16(out[3:], h.epoch)
	putUint48(out[5:], h.sequenceNumber)
	binary.BigEndian.PutUint16(out[11:], h.length)
	return out
}

func (h *recordHeader) unmarshal(buf []byte) error {
	if len(buf) < recordHeaderLen {
		return errRecordTooShort
	}
	h.contentType = contentType(buf[0])
	if buf[1] != dtls12Major || (buf[2] != dtls12Minor && buf[2] != dtls10Minor) {
		return errUnsupportedProto
	}
	h.epoch = binary.BigEndian.Uint16(buf[3:])
	h.sequenceNumber = uint48(buf[5:])
	h.length = binary.BigEndian.Uint16(buf[11:])
	return nil
}

func putUint48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}

func uint48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

// splitRecords walks a datagram that may carry several DTLS records.
func splitRecords(datagram []byte, f func(hdr recordHeader, payload []byte) error) error {
	for len(datagram) > 0 {
		var hdr recordHeader
		if err := hdr.unmarshal(datagram); err != nil {
			return err
		}
		end := recordHeaderLen + int(hdr.length)
		if end > len(datagram) {
			return errRecordTooShort
		}
		if err := f(hdr, datagram[recordHeaderLen:end]); err != nil {
			return err
		}
		datagram = datagram[end:]
	}
	return nil
}

package srtp

import (
	"encoding/binary"
	"net"
)

// SessionSRTCP demultiplexes incoming SRTCP by sender SSRC and encrypts
// outgoing RTCP compound packets.
type SessionSRTCP struct {
	*session
}

// NewSessionSRTCP starts an SRTCP session over conn.
func NewSessionSRTCP(conn net.Conn, config *Config) (*SessionSRTCP, error) {
	base, err := newSession(conn, config, "srtcp")
	if err != nil {
		return nil, err
	}
	s := &SessionSRTCP{session: base}
	go s.run(s)
	return s, nil
}

// OpenWriteStream returns the session's write stream.
func (s *SessionSRTCP) OpenWriteStream() (*WriteStreamSRTCP, error) {
	return &WriteStreamSRTCP{s}, nil
}

// OpenReadStream pins a read stream for an SSRC known from signaling.
func (s *SessionSRTCP) OpenReadStream(ssrc uint32) (*ReadStreamSRTCP, error) {
	r, _ := s.getOrCreateReadStream(ssrc, s, newReadStreamSRTCP)
	if r == nil {
		return nil, errSessionClosed
	}
	readStream, ok := r.(*ReadStreamSRTCP)
	if !ok {
		return nil, errStreamAlreadyInited
	}
	return readStream, nil
}

// AcceptStream blocks until an unrecognized SSRC arrives.
func (s *SessionSRTCP) AcceptStream() (*ReadStreamSRTCP, uint32, error) {
	stream, ok := <-s.newStream
	if !ok {
		return nil, 0, errSessionClosed
	}
	readStream, ok := stream.(*ReadStreamSRTCP)
	if !ok {
		return nil, 0, errStreamAlreadyInited
	}
	return readStream, stream.GetSSRC(), nil
}

// Close ends the session and all its streams.
func (s *SessionSRTCP) Close() error {
	return s.session.close()
}

func (s *SessionSRTCP) write(buf []byte) (int, error) {
	encrypted, err := s.localContext.EncryptRTCP(buf)
	if err != nil {
		return 0, err
	}
	return s.nextConn.Write(encrypted)
}

func (s *SessionSRTCP) decrypt(buf []byte) error {
	decrypted, err := s.remoteContext.DecryptRTCP(buf)
	if err != nil {
		return err
	}
	if len(decrypted) < srtcpHeaderLen {
		return errTooShort
	}
	ssrc := binary.BigEndian.Uint32(decrypted[4:])

	r, isNew := s.getOrCreateReadStream(ssrc, s, newReadStreamSRTCP)
	if r == nil {
		return nil // session closed
	}
	if isNew {
		select {
		case s.newStream <- r:
		case <-s.closed:
			return nil
		}
	}

	_, err = r.write(decrypted)
	return err
}

package srtp

import (
	"net"

	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// SessionSRTP demultiplexes incoming SRTP by SSRC into ReadStreamSRTPs
// and encrypts outgoing RTP.
type SessionSRTP struct {
	*session
}

// NewSessionSRTP starts an SRTP session over conn; conn is usually a
// mux endpoint carrying only SRTP datagrams.
func NewSessionSRTP(conn net.Conn, config *Config) (*SessionSRTP, error) {
	base, err := newSession(conn, config, "srtp")
	if err != nil {
		return nil, err
	}
	s := &SessionSRTP{session: base}
	go s.run(s)
	return s, nil
}

// OpenWriteStream returns the session's write stream.
func (s *SessionSRTP) OpenWriteStream() (*WriteStreamSRTP, error) {
	return &WriteStreamSRTP{s}, nil
}

// OpenReadStream pins a read stream for an SSRC known from signaling.
func (s *SessionSRTP) OpenReadStream(ssrc uint32) (*ReadStreamSRTP, error) {
	r, _ := s.getOrCreateReadStream(ssrc, s, newReadStreamSRTP)
	if r == nil {
		return nil, errSessionClosed
	}
	readStream, ok := r.(*ReadStreamSRTP)
	if !ok {
		return nil, errStreamAlreadyInited
	}
	return readStream, nil
}

// AcceptStream blocks until an unrecognized SSRC arrives.
func (s *SessionSRTP) AcceptStream() (*ReadStreamSRTP, uint32, error) {
	stream, ok := <-s.newStream
	if !ok {
		return nil, 0, errSessionClosed
	}
	readStream, ok := stream.(*ReadStreamSRTP)
	if !ok {
		return nil, 0, errStreamAlreadyInited
	}
	return readStream, stream.GetSSRC(), nil
}

// Close ends the session and all its streams.
func (s *SessionSRTP) Close() error {
	return s.session.close()
}

func (s *SessionSRTP) write(buf []byte) (int, error) {
	encrypted, err := s.localContext.EncryptRTP(buf)
	if err != nil {
		return 0, err
	}
	return s.nextConn.Write(encrypted)
}

func (s *SessionSRTP) writeRTP(header *rtp.Header, payload []byte) (int, error) {
	headerRaw, err := header.Marshal()
	if err != nil {
		return 0, err
	}
	plaintext := append(headerRaw, payload...) //nolint:gocritic
	if _, err := s.write(plaintext); err != nil {
		return 0, err
	}
	return len(payload), nil
}

func (s *SessionSRTP) decrypt(buf []byte) error {
	decrypted, err := s.remoteContext.DecryptRTP(buf)
	if err != nil {
		return err
	}

	var header rtp.Header
	if _, err := header.Unmarshal(decrypted); err != nil {
		return err
	}

	r, isNew := s.getOrCreateReadStream(header.SSRC, s, newReadStreamSRTP)
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

package srtp

import (
	"net"
	"sync"

	"github.com/pion/logging"
)

// SessionKeys are the per-direction master keys and salts exported by
// the DTLS handshake per RFC 5764.
type SessionKeys struct {
	LocalMasterKey   []byte
	LocalMasterSalt  []byte
	RemoteMasterKey  []byte
	RemoteMasterSalt []byte
}

// Config configures an SRTP or SRTCP session.
type Config struct {
	Keys          SessionKeys
	Profile       ProtectionProfile
	LoggerFactory logging.LoggerFactory

	// ReplayWindow overrides the default replay protection window when
	// non-zero.
	ReplayWindow uint
}

type session struct {
	localContext  *Context
	remoteContext *Context

	nextConn net.Conn

	newStream chan readStream

	readStreamsMu sync.Mutex
	readStreams   map[uint32]readStream
	streamsClosed bool

	closed chan struct{}

	log logging.LeveledLogger
}

type readStream interface {
	init(child streamSession, ssrc uint32) error
	write(buf []byte) (int, error)
	GetSSRC() uint32
}

type streamSession interface {
	Close() error
	write(buf []byte) (int, error)
	decrypt(buf []byte) error
}

func newSession(conn net.Conn, config *Config, scope string) (*session, error) {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	var opts []ContextOption
	if config.ReplayWindow != 0 {
		opts = append(opts, SRTPReplayProtection(config.ReplayWindow))
	}

	localContext, err := CreateContext(config.Keys.LocalMasterKey, config.Keys.LocalMasterSalt, config.Profile, opts...)
	if err != nil {
		return nil, err
	}
	remoteContext, err := CreateContext(config.Keys.RemoteMasterKey, config.Keys.RemoteMasterSalt, config.Profile, opts...)
	if err != nil {
		return nil, err
	}

	return &session{
		localContext:  localContext,
		remoteContext: remoteContext,
		nextConn:      conn,
		newStream:     make(chan readStream),
		readStreams:   map[uint32]readStream{},
		closed:        make(chan struct{}),
		log:           loggerFactory.NewLogger(scope),
	}, nil
}

func (s *session) getOrCreateReadStream(ssrc uint32, child streamSession, proto func() readStream) (readStream, bool) {
	s.readStreamsMu.Lock()
	defer s.readStreamsMu.Unlock()

	if s.streamsClosed {
		return nil, false
	}
	if r, ok := s.readStreams[ssrc]; ok {
		return r, false
	}

	r := proto()
	if err := r.init(child, ssrc); err != nil {
		return nil, false
	}
	s.readStreams[ssrc] = r
	return r, true
}

func (s *session) removeReadStream(ssrc uint32) {
	s.readStreamsMu.Lock()
	defer s.readStreamsMu.Unlock()
	if !s.streamsClosed {
		delete(s.readStreams, ssrc)
	}
}

func (s *session) close() error {
	if s.nextConn == nil {
		return nil
	}
	err := s.nextConn.Close()
	<-s.closed
	return err
}

// run reads datagrams off the transport, decrypts them and fans out to
// per-SSRC streams until the underlying connection errors.
func (s *session) run(child streamSession) {
	defer func() {
		close(s.newStream)

		s.readStreamsMu.Lock()
		s.streamsClosed = true
		s.readStreams = nil
		s.readStreamsMu.Unlock()

		close(s.closed)
	}()

	b := make([]byte, 8192)
	for {
		n, err := s.nextConn.Read(b)
		if err != nil {
			return
		}
		if err = child.decrypt(b[:n]); err != nil {
			s.log.Debugf("dropping packet: %v", err)
		}
	}
}

// Package mux multiplexes one packet connection between consumers. It
// is the RFC 7983 demultiplexing point: every datagram arriving on the
// ICE-selected path is classified by first byte and handed to the
// STUN, DTLS or SRTP/SRTCP endpoint.
package mux

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

// Config collects the arguments to NewMux.
type Config struct {
	Conn          net.Conn
	BufferSize    int
	LoggerFactory logging.LoggerFactory
}

// Mux allows multiplexing one net.Conn between N endpoints.
type Mux struct {
	nextConn   net.Conn
	lock       sync.Mutex
	endpoints  map[*Endpoint]MatchFunc
	bufferSize int
	closedCh   chan struct{}
	closeOnce  sync.Once

	// droppedPackets counts datagrams no endpoint matched.
	droppedPackets uint64

	log logging.LeveledLogger
}

// NewMux creates a new Mux and starts reading from the wrapped
// connection.
func NewMux(config Config) *Mux {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	m := &Mux{
		nextConn:   config.Conn,
		endpoints:  make(map[*Endpoint]MatchFunc),
		bufferSize: config.BufferSize,
		closedCh:   make(chan struct{}),
		log:        loggerFactory.NewLogger("mux"),
	}

	go m.readLoop()
	return m
}

// NewEndpoint creates a new Endpoint that receives datagrams accepted
// by f.
func (m *Mux) NewEndpoint(f MatchFunc) *Endpoint {
	e := &Endpoint{mux: m}
	e.buffer = newEndpointBuffer()

	m.lock.Lock()
	m.endpoints[e] = f
	m.lock.Unlock()

	return e
}

// RemoveEndpoint detaches an endpoint. Further matching datagrams are
// dropped.
func (m *Mux) RemoveEndpoint(e *Endpoint) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.endpoints, e)
}

// Close stops the read loop, the wrapped connection and all endpoints.
func (m *Mux) Close() error {
	m.lock.Lock()
	for e := range m.endpoints {
		if err := e.close(); err != nil {
			m.lock.Unlock()
			return err
		}
		delete(m.endpoints, e)
	}
	m.lock.Unlock()

	err := m.nextConn.Close()
	<-m.closedCh
	return err
}

// DroppedPackets reports how many datagrams matched no endpoint.
func (m *Mux) DroppedPackets() uint64 {
	return atomic.LoadUint64(&m.droppedPackets)
}

func (m *Mux) readLoop() {
	defer m.closeOnce.Do(func() { close(m.closedCh) })

	buf := make([]byte, m.bufferSize)
	for {
		n, err := m.nextConn.Read(buf)
		if err != nil {
			return
		}
		m.dispatch(buf[:n])
	}
}

func (m *Mux) dispatch(buf []byte) {
	var endpoint *Endpoint

	m.lock.Lock()
	for e, f := range m.endpoints {
		if f(buf) {
			endpoint = e
			break
		}
	}
	m.lock.Unlock()

	if endpoint == nil {
		atomic.AddUint64(&m.droppedPackets, 1)
		if len(buf) > 0 {
			m.log.Debugf("no endpoint for packet starting with %d", buf[0])
		}
		return
	}

	if _, err := endpoint.buffer.Write(buf); err != nil {
		m.log.Debugf("endpoint write failed: %v", err)
	}
}

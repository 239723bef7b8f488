package srtp

import (
	"sync"
	"time"

	"github.com/pion/transport/v4/packetio"
)

// ReadStreamSRTCP delivers decrypted RTCP compound packets for one
// sender SSRC.
type ReadStreamSRTCP struct {
	mu       sync.Mutex
	isInited bool
	isClosed bool

	session *SessionSRTCP
	ssrc    uint32

	buffer *packetio.Buffer
}

func newReadStreamSRTCP() readStream {
	return &ReadStreamSRTCP{}
}

func (r *ReadStreamSRTCP) init(child streamSession, ssrc uint32) error {
	sessionSRTCP, ok := child.(*SessionSRTCP)
	if !ok {
		return errStreamNotInited
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isInited {
		return errStreamAlreadyInited
	}
	r.session = sessionSRTCP
	r.ssrc = ssrc
	r.isInited = true
	r.buffer = packetio.NewBuffer()
	r.buffer.SetLimitCount(64)
	r.buffer.SetLimitSize(64 << 10)
	return nil
}

func (r *ReadStreamSRTCP) write(buf []byte) (int, error) {
	return r.buffer.Write(buf)
}

// Read returns the next decrypted compound packet.
func (r *ReadStreamSRTCP) Read(buf []byte) (int, error) {
	return r.buffer.Read(buf)
}

// SetReadDeadline applies a deadline to blocked Read calls.
func (r *ReadStreamSRTCP) SetReadDeadline(t time.Time) error {
	return r.buffer.SetReadDeadline(t)
}

// Close removes the stream from the session.
func (r *ReadStreamSRTCP) Close() error {
	r.mu.Lock()
	if !r.isInited {
		r.mu.Unlock()
		return errStreamNotInited
	}
	if r.isClosed {
		r.mu.Unlock()
		return errStreamAlreadyClosed
	}
	r.isClosed = true
	ssrc := r.ssrc
	session := r.session
	r.mu.Unlock()

	err := r.buffer.Close()
	session.removeReadStream(ssrc)
	return err
}

// GetSSRC returns the stream's SSRC.
func (r *ReadStreamSRTCP) GetSSRC() uint32 {
	return r.ssrc
}

// WriteStreamSRTCP encrypts and sends outgoing RTCP for the session.
type WriteStreamSRTCP struct {
	session *SessionSRTCP
}

// Write encrypts and writes a marshaled compound packet.
func (w *WriteStreamSRTCP) Write(b []byte) (int, error) {
	return w.session.write(b)
}

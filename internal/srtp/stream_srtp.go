package srtp

import (
	"sync"
	"time"

	"github.com/pion/transport/v4/packetio"
	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// ReadStreamSRTP delivers decrypted RTP for one SSRC.
type ReadStreamSRTP struct {
	mu       sync.Mutex
	isInited bool
	isClosed bool

	session *SessionSRTP
	ssrc    uint32

	buffer *packetio.Buffer
}

func newReadStreamSRTP() readStream {
	return &ReadStreamSRTP{}
}

func (r *ReadStreamSRTP) init(child streamSession, ssrc uint32) error {
	sessionSRTP, ok := child.(*SessionSRTP)
	if !ok {
		return errStreamNotInited
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isInited {
		return errStreamAlreadyInited
	}
	r.session = sessionSRTP
	r.ssrc = ssrc
	r.isInited = true
	r.buffer = packetio.NewBuffer()

	// drop packets instead of stalling the session loop if the consumer
	// falls behind
	r.buffer.SetLimitCount(512)
	r.buffer.SetLimitSize(1 << 20)
	return nil
}

func (r *ReadStreamSRTP) write(buf []byte) (int, error) {
	return r.buffer.Write(buf)
}

// Read returns the next decrypted RTP packet's raw bytes.
func (r *ReadStreamSRTP) Read(buf []byte) (int, error) {
	return r.buffer.Read(buf)
}

// ReadRTP reads and parses the next packet.
func (r *ReadStreamSRTP) ReadRTP(buf []byte) (int, *rtp.Header, error) {
	n, err := r.buffer.Read(buf)
	if err != nil {
		return 0, nil, err
	}
	header := &rtp.Header{}
	if _, err := header.Unmarshal(buf[:n]); err != nil {
		return 0, nil, err
	}
	return n, header, nil
}

// SetReadDeadline applies a deadline to blocked Read calls.
func (r *ReadStreamSRTP) SetReadDeadline(t time.Time) error {
	return r.buffer.SetReadDeadline(t)
}

// Close removes the stream from the session.
func (r *ReadStreamSRTP) Close() error {
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
func (r *ReadStreamSRTP) GetSSRC() uint32 {
	return r.ssrc
}

// WriteStreamSRTP encrypts and sends outgoing RTP for the session.
type WriteStreamSRTP struct {
	session *SessionSRTP
}

// WriteRTP encrypts and writes one packet.
func (w *WriteStreamSRTP) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	return w.session.writeRTP(header, payload)
}

// Write encrypts and writes a marshaled packet.
func (w *WriteStreamSRTP) Write(b []byte) (int, error) {
	return w.session.write(b)
}

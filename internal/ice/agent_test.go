package ice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := NewAgent(&AgentConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// connectPair wires two agents together through their trickle
// handlers the way a signaling layer would.
func connectPair(t *testing.T, controlling, controlled *Agent) (*Conn, *Conn) {
	t.Helper()

	require.NoError(t, controlling.OnCandidate(func(c *Candidate) {
		if c != nil {
			require.NoError(t, controlled.AddRemoteCandidate(c))
		}
	}))
	require.NoError(t, controlled.OnCandidate(func(c *Candidate) {
		if c != nil {
			require.NoError(t, controlling.AddRemoteCandidate(c))
		}
	}))
	require.NoError(t, controlling.GatherCandidates())
	require.NoError(t, controlled.GatherCandidates())

	aUfrag, aPwd := controlling.GetLocalUserCredentials()
	bUfrag, bPwd := controlled.GetLocalUserCredentials()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		conn *Conn
		err  error
	}
	acceptCh := make(chan result, 1)
	go func() {
		conn, err := controlled.Accept(ctx, aUfrag, aPwd)
		acceptCh <- result{conn, err}
	}()

	dialConn, err := controlling.Dial(ctx, bUfrag, bPwd)
	require.NoError(t, err)
	accepted := <-acceptCh
	require.NoError(t, accepted.err)
	return dialConn, accepted.conn
}

func TestAgentConnectivity(t *testing.T) {
	a := newTestAgent(t)
	b := newTestAgent(t)

	ca, cb := connectPair(t, a, b)

	// data flows in both directions over the nominated path
	_, err := ca.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 100)
	require.NoError(t, cb.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := cb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	_, err = cb.Write([]byte("pong"))
	require.NoError(t, err)
	require.NoError(t, ca.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err = ca.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))

	require.NotNil(t, a.GetSelectedCandidatePair())
	require.NotNil(t, b.GetSelectedCandidatePair())
}

func TestCredentialsChangeOnRestart(t *testing.T) {
	a := newTestAgent(t)

	ufrag1, pwd1 := a.GetLocalUserCredentials()
	require.NoError(t, a.Restart("", ""))
	ufrag2, pwd2 := a.GetLocalUserCredentials()

	assert.NotEqual(t, ufrag1, ufrag2)
	assert.NotEqual(t, pwd1, pwd2)
}

func TestCandidatesQueuedUntilCredentials(t *testing.T) {
	a := newTestAgent(t)

	remote := NewCandidate(CandidateTypeHost, 1, "192.0.2.7", 4242, nil)
	require.NoError(t, a.AddRemoteCandidate(remote))

	// nothing is paired before credentials arrive
	require.NoError(t, a.runAndWait(func() {
		assert.Empty(t, a.remoteCandidates)
		assert.Len(t, a.queuedRemoteCandidates, 1)
	}))

	require.NoError(t, a.SetRemoteCredentials("someufrag", "somepwd"))
	require.NoError(t, a.runAndWait(func() {
		assert.Len(t, a.remoteCandidates, 1)
		assert.Empty(t, a.queuedRemoteCandidates)
	}))
}

func TestGatherEmitsTrickleEvents(t *testing.T) {
	a := newTestAgent(t)

	gathered := make(chan *Candidate, 32)
	done := make(chan struct{})
	require.NoError(t, a.OnCandidate(func(c *Candidate) {
		if c == nil {
			close(done)
			return
		}
		gathered <- c
	}))
	require.NoError(t, a.GatherCandidates())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("gathering did not complete")
	}
	assert.NotEmpty(t, gathered)

	locals, err := a.GetLocalCandidates()
	require.NoError(t, err)
	assert.NotEmpty(t, locals)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := NewAgent(&AgentConfig{})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

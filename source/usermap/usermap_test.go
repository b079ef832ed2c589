package usermap

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedrockd/source/raknet"
)

type noopLogger struct{}

func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}

// sentRecorder captures every byte slice a connection would have put
// on the wire, standing in for an actual UDP socket in these tests.
type sentRecorder struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *sentRecorder) record(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, b)
	return nil
}

func (s *sentRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testConfig(addr net.UDPAddr, rec *sentRecorder) raknet.Config {
	return raknet.Config{
		Addr:     addr,
		MTU:      1492,
		Send:     rec.record,
		Log:      noopLogger{},
		Dispatch: func([]byte) error { return nil },
	}
}

func TestInsertStartsConnectingAndPromotesOnReady(t *testing.T) {
	m := New(CreateInfo{MaxChunkRadius: 16})
	addr := net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10001}

	conn := m.Insert(context.Background(), testConfig(addr, &sentRecorder{}))
	require.NotNil(t, conn)

	m.mu.Lock()
	e := m.entries[addr.String()]
	m.mu.Unlock()
	require.NotNil(t, e)
	assert.Equal(t, stateConnecting, e.state)
	assert.Nil(t, e.session.Load())

	conn.Ready()
	m.mu.Lock()
	state := e.state
	m.mu.Unlock()
	assert.Equal(t, stateConnected, state)
	assert.NotNil(t, e.session.Load())
}

func TestRouteDropsUnknownPeerSilently(t *testing.T) {
	m := New(CreateInfo{})
	forwarded, err := m.Route(net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}, []byte("x"))
	require.NoError(t, err)
	assert.False(t, forwarded)
}

// TestBroadcastSuppressesSender drives the real pipeline end to end:
// Broadcast enqueues onto each connected entry's channel, each
// entry's pumpBroadcasts goroutine calls into the Bedrock session,
// which sends through the connection's own flush loop — so recipient
// B should see a batch on the wire and sender A should see none.
func TestBroadcastSuppressesSender(t *testing.T) {
	m := New(CreateInfo{})
	a := net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 20001}
	b := net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 20002}
	recA := &sentRecorder{}
	recB := &sentRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connA := m.Insert(ctx, testConfig(a, recA))
	connB := m.Insert(ctx, testConfig(b, recB))
	go connA.Run(ctx)
	go connB.Run(ctx)
	connA.Ready()
	connB.Ready()

	m.Broadcast(a.String(), "hello")

	require.Eventually(t, func() bool { return recB.count() > 0 }, 200*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 0, recA.count())
}

func TestShutdownCancelsAllConnections(t *testing.T) {
	m := New(CreateInfo{})
	addr := net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 30001}
	m.Insert(context.Background(), testConfig(addr, &sentRecorder{}))

	m.Shutdown()

	time.Sleep(10 * time.Millisecond)
	m.mu.Lock()
	_, ok := m.entries[addr.String()]
	m.mu.Unlock()
	assert.False(t, ok)
}

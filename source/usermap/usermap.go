// Package usermap implements spec 4.7's user map: the two addressable
// maps keyed by peer address (connecting, connected), the
// Connecting-to-Connected promotion that happens once the raknet
// layer signals readiness, and the broadcast fan-out every connected
// session selects on.
package usermap

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"bedrockd/source/bedrock"
	"bedrockd/source/compress"
	"bedrockd/source/events"
	"bedrockd/source/raknet"
)

const broadcastChanCapacity = 5

type state int

const (
	stateConnecting state = iota
	stateConnected
)

// entry is the tagged-union connection record of spec 3: a peer is
// either raknet-only (Connecting) or carrying a Bedrock session
// (Connected), never both representations at once.
type entry struct {
	state state
	addr  string

	conn    *raknet.Connection
	session atomic.Pointer[bedrock.Session]

	broadcastIn chan broadcastMsg
	cancel      context.CancelFunc
}

type broadcastMsg struct {
	sender string
	text   string
}

// CreateInfo carries what the user map needs to construct a Bedrock
// session once a connection is promoted (spec 4.7's "dependencies:
// level service, command service, replicator, broadcast channel" —
// this core only wires replicator and broadcast, the others being
// out of scope gameplay services).
type CreateInfo struct {
	Replicator           bedrock.Replicator
	MaxChunkRadius       int32
	CompressionThreshold int
	CompressionAlgorithm compress.Algorithm
	Events               *events.Bus
}

// Map is the process-wide user map. All methods are safe for
// concurrent use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
	info    CreateInfo
}

func New(info CreateInfo) *Map {
	return &Map{entries: make(map[string]*entry), info: info}
}

// Insert registers a newly accepted peer as Connecting and returns the
// raknet.Connection the caller should Run. The connection's OnReady
// callback promotes the entry to Connected once the raknet dispatcher
// sees the peer's ConnectionRequest (or NewIncomingConnection,
// whichever arrives first); a background watcher removes the entry from the map when
// the connection's context is cancelled.
func (m *Map) Insert(ctx context.Context, cfg raknet.Config) *raknet.Connection {
	addr := cfg.Addr.String()
	ctx, cancel := context.WithCancel(ctx)

	e := &entry{
		state:       stateConnecting,
		addr:        addr,
		broadcastIn: make(chan broadcastMsg, broadcastChanCapacity),
		cancel:      cancel,
	}

	userCfg := cfg
	userCfg.OnReady = func() {
		m.promote(addr)
		if cfg.OnReady != nil {
			cfg.OnReady()
		}
	}
	conn := raknet.NewConnection(userCfg)
	e.conn = conn
	if userCfg.Dispatch == nil {
		conn.SetDispatch(raknet.NewBuiltinDispatcher(conn,
			func(raw []byte) error { return m.HandleRawGamePacket(addr, raw) },
			func() { e.cancel() },
		))
	}

	m.mu.Lock()
	m.entries[addr] = e
	m.mu.Unlock()

	go e.pumpBroadcasts()
	go m.watch(ctx, addr, conn)

	m.trigger(events.Event{Type: events.PeerConnecting, Addr: addr})

	return conn
}

func (m *Map) watch(ctx context.Context, addr string, conn *raknet.Connection) {
	<-ctx.Done()
	conn.Close()
	m.remove(addr)
}

func (m *Map) remove(addr string) {
	m.mu.Lock()
	e, ok := m.entries[addr]
	if ok {
		delete(m.entries, addr)
	}
	m.mu.Unlock()
	if ok {
		close(e.broadcastIn)
		m.trigger(events.Event{Type: events.PeerDisconnected, Addr: addr})
	}
}

func (m *Map) trigger(e events.Event) {
	if m.info.Events != nil {
		m.info.Events.Trigger(e)
	}
}

func (m *Map) promote(addr string) {
	m.mu.Lock()
	e, ok := m.entries[addr]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.state = stateConnected
	session := bedrock.NewSession(addr, bedrock.Dependencies{
		Send:                 func(body []byte) error { e.conn.Send(body, raknet.ReliableOrdered, 0, raknet.PriorityMedium); return nil },
		Disconnect:           func(reason string) { e.cancel() },
		Broadcast:            func(text string) { m.Broadcast(addr, text) },
		OnOpen:               func() { m.trigger(events.Event{Type: events.PlayerJoined, Addr: addr, Payload: e.session.Load().Identity.DisplayName}) },
		Replicator:           m.info.Replicator,
		MaxChunkRadius:       m.info.MaxChunkRadius,
		CompressionThreshold: m.info.CompressionThreshold,
		CompressionAlgorithm: m.info.CompressionAlgorithm,
	})
	e.session.Store(session)
	m.mu.Unlock()
	m.trigger(events.Event{Type: events.PeerPromoted, Addr: addr})
}

// Route implements raknet.PeerRouter: it forwards a datagram to the
// connected peer's connection, whichever state (Connecting or
// Connected) it is in, dropping silently if the peer is unknown
// (spec 4.7 — both entries hold the same bounded MPSC-style delivery,
// here the connection's own Forward channel).
func (m *Map) Route(addr net.UDPAddr, data []byte) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[addr.String()]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := e.conn.Forward(data); err != nil {
		return true, err
	}
	return true, nil
}

// HandleGamePacket routes a decoded game packet body to the
// connected session's state machine. No-op if the peer is unknown or
// hasn't been promoted yet: such a packet is dropped silently.
func (m *Map) HandleGamePacket(addr string, packetID uint32, body []byte) error {
	m.mu.Lock()
	e, ok := m.entries[addr]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	session := e.session.Load()
	if session == nil {
		return nil
	}
	return session.HandleGamePacket(packetID, body)
}

// HandleRawGamePacket is the onGamePacket callback Insert wires into
// raknet.NewBuiltinDispatcher: it takes the payload stripped of the
// 0xfe connected-packet byte, undoes whatever encryption and
// compression the session has negotiated, unbatches the individual
// packet records (spec 4.5), and dispatches each to the session in
// turn. A raw packet arriving for an unpromoted or unknown peer is
// dropped silently; the dispatcher forwards 0xfe bodies without
// checking the handshake state.
func (m *Map) HandleRawGamePacket(addr string, raw []byte) error {
	m.mu.Lock()
	e, ok := m.entries[addr]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	session := e.session.Load()
	if session == nil {
		return nil
	}

	payload := raw
	if session.Cipher != nil {
		decrypted, err := session.Cipher.Decrypt(payload)
		if err != nil {
			return err
		}
		payload = decrypted
	}
	if session.Compressed {
		decompressed, err := compress.Decompress(payload)
		if err != nil {
			return err
		}
		payload = decompressed
	}

	records, err := compress.Unbatch(payload)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := session.HandleGamePacket(r.PacketID, r.Body); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of connected (post-login) peers, for the
// offline handshake's server-info string (spec 4.2).
func (m *Map) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.state == stateConnected {
			n++
		}
	}
	return n
}

// Broadcast fans a text message to every connected peer except the
// sender (spec 4.7: "broadcasts whose sender address equals the
// receiver's are suppressed").
func (m *Map) Broadcast(sender string, text string) {
	m.mu.Lock()
	targets := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.state == stateConnected && e.addr != sender {
			targets = append(targets, e)
		}
	}
	m.mu.Unlock()

	for _, e := range targets {
		select {
		case e.broadcastIn <- broadcastMsg{sender: sender, text: text}:
		default: // bounded channel full: drop rather than block the broadcaster
		}
	}
}

func (e *entry) pumpBroadcasts() {
	for msg := range e.broadcastIn {
		if session := e.session.Load(); session != nil {
			session.DeliverText(msg.text)
		}
	}
}

// Shutdown disconnects every peer and cancels all connections,
// kicking clients before the sockets themselves are torn down (spec
// 4.8's ordering requirement).
func (m *Map) Shutdown() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		if session := e.session.Load(); session != nil {
			session.DeliverText("server shutting down")
		}
		e.cancel()
	}
}

package bedrock

import (
	"context"
	"time"

	"github.com/rs/xid"

	"bedrockd/source/codec"
	"bedrockd/source/compress"
	"bedrockd/source/crypto"
	"bedrockd/source/errs"
)

// Stage is the `expected` tag of spec 4.6: the packet id the session
// will accept next. Stage zero (RequestNetworkSettings) is the
// initial value; StageOpen means any gameplay packet is permitted.
type Stage int

const (
	StageRequestNetworkSettings Stage = iota
	StageLogin
	StageClientToServerHandshake
	StageCacheStatus
	StageResourcePackClientResponse
	StageSetLocalPlayerAsInitialized
	StageOpen
)

// Replicator persists session records to the external key/value store
// (spec 4.12), treated as opaque by the session itself.
type Replicator interface {
	Save(ctx context.Context, key string, value []byte) error
}

// Identity is the subset of the validated JWT identity chain the
// session keeps around after Login (spec 3's "peer identity").
type Identity struct {
	XUID        string
	DisplayName string
	UUID        string
}

// DeviceInfo is the user-data token's device fields the session keeps
// for log correlation; gameplay-relevant fields (skin, input mode)
// are out of scope for this core (spec.md §1 non-goals).
type DeviceInfo struct {
	DeviceID    string
	DeviceModel string
	GameVersion string
}

// Dependencies are injected by the user map when it promotes a
// connection from Connecting to Connected (spec 4.7).
type Dependencies struct {
	Send                 func(body []byte) error
	Disconnect           func(reason string)
	Broadcast            func(text string)
	OnOpen               func()
	Replicator           Replicator
	MaxChunkRadius        int32
	CompressionThreshold  int
	CompressionAlgorithm  compress.Algorithm
}

// Session is the Bedrock login/gameplay state machine attached to a
// single connected peer. All mutation happens on the connection's
// single pump goroutine; no internal locking is needed.
type Session struct {
	TraceID xid.ID
	Peer    string

	stage Stage

	Identity   Identity
	Device     DeviceInfo
	Cipher     *crypto.StreamCipher
	Compressed bool

	deps Dependencies
}

func NewSession(peer string, deps Dependencies) *Session {
	return &Session{
		TraceID: xid.New(),
		Peer:    peer,
		stage:   StageRequestNetworkSettings,
		deps:    deps,
	}
}

func (s *Session) Stage() Stage { return s.stage }

// HandleGamePacket is the frame-body dispatcher's entry point for
// 0xfe connected packets, after decryption/decompression has already
// produced individual batch records (source/compress).
func (s *Session) HandleGamePacket(packetID uint32, body []byte) error {
	if packetID == IDViolationWarning {
		s.deps.Disconnect(ReasonDisconnected)
		return errs.New(errs.Violation, "bedrock: client sent ViolationWarning")
	}

	if s.stage == StageOpen {
		return s.handleOpenStage(packetID, body)
	}

	expected, ok := expectedPacketFor(s.stage)
	if !ok || packetID != expected {
		s.deps.Disconnect(ReasonDisconnected)
		return errs.New(errs.Violation, "bedrock: packet id does not match expected login stage")
	}

	switch s.stage {
	case StageRequestNetworkSettings:
		return s.onRequestNetworkSettings(body)
	case StageLogin:
		return s.onLogin(body)
	case StageClientToServerHandshake:
		return s.onClientToServerHandshake()
	case StageCacheStatus:
		return s.onCacheStatus()
	case StageResourcePackClientResponse:
		return s.onResourcePackClientResponse()
	case StageSetLocalPlayerAsInitialized:
		return s.onSetLocalPlayerAsInitialized()
	}
	return nil
}

// handleOpenStage dispatches the small set of post-login packets this
// core understands; everything else is out of scope (spec.md §1
// non-goals) and is ignored rather than treated as a violation.
func (s *Session) handleOpenStage(packetID uint32, body []byte) error {
	if packetID == IDChunkRadiusRequest {
		return s.onChunkRadiusRequest(body)
	}
	return nil
}

func expectedPacketFor(stage Stage) (uint32, bool) {
	switch stage {
	case StageRequestNetworkSettings:
		return IDRequestNetworkSettings, true
	case StageLogin:
		return IDLogin, true
	case StageClientToServerHandshake:
		return IDClientToServerHandshake, true
	case StageCacheStatus:
		return IDCacheStatus, true
	case StageResourcePackClientResponse:
		return IDResourcePackClientResponse, true
	case StageSetLocalPlayerAsInitialized:
		return IDSetLocalPlayerAsInitialized, true
	default:
		return 0, false
	}
}

func (s *Session) onRequestNetworkSettings(body []byte) error {
	r := codec.NewReader(body)
	version, err := r.Uint32BE()
	if err != nil {
		return errs.Wrap(errs.Malformed, "bedrock: malformed RequestNetworkSettings", err)
	}

	if version > CurrentProtocolVersion {
		s.send(encodePlayStatus(PlayStatusFailedServer))
		s.deps.Disconnect(ReasonDisconnected)
		return nil
	}
	if version < CurrentProtocolVersion {
		s.send(encodePlayStatus(PlayStatusFailedClient))
		s.deps.Disconnect(ReasonDisconnected)
		return nil
	}

	s.send(encodeNetworkSettings(uint16(s.deps.CompressionThreshold), uint8(s.deps.CompressionAlgorithm)))
	s.Compressed = true
	s.stage = StageLogin
	return nil
}

func (s *Session) onLogin(body []byte) error {
	chain, userData, err := decodeLoginPayload(body)
	if err != nil {
		s.send(encodeDisconnect(ReasonLoginFailed))
		s.deps.Disconnect(ReasonLoginFailed)
		return err
	}

	claims, err := crypto.ValidateIdentityChain(chain)
	if err != nil {
		s.send(encodeDisconnect(ReasonLoginFailed))
		s.deps.Disconnect(ReasonLoginFailed)
		return err
	}
	if _, err := crypto.ValidateUserDataToken(userData, claims.PublicKey); err != nil {
		s.send(encodeDisconnect(ReasonLoginFailed))
		s.deps.Disconnect(ReasonLoginFailed)
		return err
	}

	s.Identity = Identity{XUID: claims.XUID, DisplayName: claims.DisplayName, UUID: claims.Identity}

	if s.deps.Replicator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		record := []byte(s.Identity.XUID + "|" + s.Identity.DisplayName)
		if err := s.deps.Replicator.Save(ctx, "player:"+s.Identity.UUID, record); err != nil {
			return errs.Wrap(errs.IO, "bedrock: replicator save failed", err)
		}
	}

	agreement, err := crypto.NewKeyAgreement()
	if err != nil {
		return err
	}
	key, iv, salt, err := agreement.Derive(claims.PublicKey)
	if err != nil {
		return err
	}
	cipher, err := crypto.NewStreamCipher(key, iv)
	if err != nil {
		return err
	}

	handshakeJWT, err := agreement.ServerHandshakeJWT(salt)
	if err != nil {
		return err
	}
	// The handshake itself must go out unencrypted — it carries the
	// salt the client needs to derive the same cipher — so the send
	// happens before the cipher is installed, not after.
	s.send(encodeServerToClientHandshake(handshakeJWT))
	s.Cipher = cipher

	s.stage = StageClientToServerHandshake
	return nil
}

func (s *Session) onClientToServerHandshake() error {
	s.send(encodePlayStatus(PlayStatusLoginSuccess))
	s.send(encodeResourcePacksInfo())
	s.send(encodeResourcePackStack())
	s.stage = StageCacheStatus
	return nil
}

func (s *Session) onCacheStatus() error {
	s.stage = StageResourcePackClientResponse
	return nil
}

func (s *Session) onResourcePackClientResponse() error {
	s.send(encodeStartGame())
	s.send(encodeCreativeContent())
	s.send(encodeBiomeDefinitionList())
	s.send(encodePlayStatus(PlayStatusPlayerSpawn))
	s.stage = StageSetLocalPlayerAsInitialized
	return nil
}

func (s *Session) onSetLocalPlayerAsInitialized() error {
	s.stage = StageOpen
	if s.deps.OnOpen != nil {
		s.deps.OnOpen()
	}
	if s.deps.Broadcast != nil {
		s.deps.Broadcast(s.Identity.DisplayName + " joined the game")
	}
	return nil
}

func (s *Session) onChunkRadiusRequest(body []byte) error {
	r := codec.NewReader(body)
	requested, err := r.Varint32()
	if err != nil {
		return errs.Wrap(errs.Malformed, "bedrock: malformed ChunkRadiusRequest", err)
	}
	if requested <= 0 {
		return errs.New(errs.Violation, "bedrock: chunk radius must be positive")
	}

	allowed := requested
	if allowed > s.deps.MaxChunkRadius {
		allowed = s.deps.MaxChunkRadius
	}
	s.send(encodeChunkRadiusReply(allowed))
	return nil
}

// DeliverText sends a broadcast chat line to this session's peer,
// routed through the same send path (and cipher) as any other
// outbound packet. Called by the user map's broadcast fan-out.
func (s *Session) DeliverText(text string) {
	s.send(encodeText(text))
}

// send writes a raw game-packet batch to the connection: compressing
// it once NetworkSettings has negotiated a threshold, then encrypting
// it if the handshake has installed a cipher (spec 4.4's "encryption
// becomes active for all subsequent sends"), then prefixing the
// connected-packet envelope byte the raknet layer expects.
func (s *Session) send(body []byte) {
	if s.Compressed {
		if compressed, err := compress.Compress(body, s.deps.CompressionAlgorithm, s.deps.CompressionThreshold); err == nil {
			body = compressed
		}
	}
	if s.Cipher != nil {
		body = s.Cipher.Encrypt(body)
	}
	framed := make([]byte, 0, len(body)+1)
	framed = append(framed, idConnectedPacket)
	framed = append(framed, body...)
	_ = s.deps.Send(framed)
}

// Package bedrock implements the Bedrock Edition login handshake
// state machine of spec 4.6: the per-connection session record, the
// `expected`-tag transition table, and the side effects each login
// packet triggers.
package bedrock

// Game packet ids, the subset the login handshake and post-spawn
// lifecycle touch. Values match the public Bedrock protocol.
const (
	IDLogin                      = 1
	IDPlayStatus                 = 2
	IDServerToClientHandshake    = 3
	IDClientToServerHandshake    = 4
	IDDisconnect                 = 5
	IDResourcePacksInfo          = 6
	IDResourcePackStack          = 7
	IDResourcePackClientResponse = 8
	IDText                       = 9
	IDStartGame                  = 11
	IDCreativeContent            = 145
	IDBiomeDefinitionList        = 122
	IDCacheStatus                = 129
	IDChunkRadiusRequest         = 69
	IDChunkRadiusReply           = 70
	IDSetLocalPlayerAsInitialized = 113
	IDNetworkSettings            = 143
	IDRequestNetworkSettings     = 193
	IDViolationWarning           = 156
)

// idConnectedPacket is the leading byte every Bedrock game-packet
// batch carries once it leaves the raknet frame-body dispatcher (spec
// 4.3.2/4.5); sends must prepend it themselves since Connection.Send
// treats its argument as an opaque frame body.
const idConnectedPacket = 0xfe

// PlayStatus values carried by the PlayStatus packet.
const (
	PlayStatusLoginSuccess  = 0
	PlayStatusFailedClient  = 1
	PlayStatusFailedServer  = 2
	PlayStatusPlayerSpawn   = 3
	PlayStatusFailedInvalidTenant = 4
)

// Disconnect reason text keys, mirrored from the original
// implementation's localization keys (spec.md §10 supplement).
const (
	ReasonLoginFailed  = "disconnect.loginFailed"
	ReasonDisconnected = "disconnect.disconnected"
	ReasonTimeout      = "disconnect.timeout"
)

// CurrentProtocolVersion is the Bedrock network protocol version this
// server accepts from RequestNetworkSettings.
const CurrentProtocolVersion = 686

package bedrock

import (
	"encoding/json"

	"bedrockd/source/codec"
	"bedrockd/source/compress"
	"bedrockd/source/errs"
)

// decodeLoginPayload parses the Login packet body: a little-endian
// u32-length-prefixed JSON object carrying the three-token identity
// chain under "chain", followed by a second length-prefixed raw JWT
// (the user-data/client-data token).
func decodeLoginPayload(body []byte) (chain []string, userData string, err error) {
	r := codec.NewReader(body)

	chainLen, err := r.Uint32LE()
	if err != nil {
		return nil, "", errs.Wrap(errs.Malformed, "bedrock: login missing chain length", err)
	}
	chainBytes, err := r.Bytes(int(chainLen))
	if err != nil {
		return nil, "", errs.Wrap(errs.Malformed, "bedrock: login chain truncated", err)
	}
	var wrapper struct {
		Chain []string `json:"chain"`
	}
	if err := json.Unmarshal(chainBytes, &wrapper); err != nil {
		return nil, "", errs.Wrap(errs.Malformed, "bedrock: login chain is not json", err)
	}

	dataLen, err := r.Uint32LE()
	if err != nil {
		return nil, "", errs.Wrap(errs.Malformed, "bedrock: login missing user data length", err)
	}
	dataBytes, err := r.Bytes(int(dataLen))
	if err != nil {
		return nil, "", errs.Wrap(errs.Malformed, "bedrock: login user data truncated", err)
	}

	return wrapper.Chain, string(dataBytes), nil
}

func encodePlayStatus(status int32) []byte {
	w := codec.NewWriter()
	w.Uint32BE(uint32(status))
	return frame(IDPlayStatus, w.Bytes())
}

func encodeNetworkSettings(threshold uint16, algorithm uint8) []byte {
	w := codec.NewWriter()
	w.Uint16LE(threshold)
	w.Uint8(algorithm)
	w.Bool(false) // client-throttle disabled; not modeled
	w.Uint8(0)
	w.Uint16LE(0)
	return frame(IDNetworkSettings, w.Bytes())
}

func encodeDisconnect(reason string) []byte {
	w := codec.NewWriter()
	w.Bool(false) // hide-disconnect-reason-screen
	w.StringVaruint(reason)
	return frame(IDDisconnect, w.Bytes())
}

func encodeServerToClientHandshake(jwt string) []byte {
	w := codec.NewWriter()
	w.StringVaruint(jwt)
	return frame(IDServerToClientHandshake, w.Bytes())
}

// encodeResourcePacksInfo is kept minimal per spec.md §10: no pack
// files are served, so the counts are always zero.
func encodeResourcePacksInfo() []byte {
	w := codec.NewWriter()
	w.Bool(false) // must-accept
	w.Bool(false) // has-scripts
	w.Bool(false) // force-server-packs
	w.Uint16LE(0) // behavior pack count
	w.Uint16LE(0) // resource pack count
	return frame(IDResourcePacksInfo, w.Bytes())
}

func encodeResourcePackStack() []byte {
	w := codec.NewWriter()
	w.Bool(false) // must-accept
	w.Varuint32(0) // behavior pack stack entries
	w.Varuint32(0) // resource pack stack entries
	w.StringVaruint("*") // base game version
	return frame(IDResourcePackStack, w.Bytes())
}

// encodeStartGame/CreativeContent/BiomeDefinitionList are stub
// bodies: world simulation and full item/biome tables are out of
// scope for this core (spec.md §1 non-goals). They exist so the
// login sequence completes and the client reaches the open state.
func encodeStartGame() []byte {
	return frame(IDStartGame, nil)
}

func encodeCreativeContent() []byte {
	w := codec.NewWriter()
	w.Varuint32(0) // item count
	return frame(IDCreativeContent, w.Bytes())
}

func encodeBiomeDefinitionList() []byte {
	return frame(IDBiomeDefinitionList, nil)
}

// encodeText builds a raw (system) chat Text packet, the form used
// for the join-broadcast of spec 4.6's SetLocalPlayerAsInitialized
// side effect.
func encodeText(message string) []byte {
	w := codec.NewWriter()
	w.Uint8(0) // TextTypeRaw
	w.Bool(false) // needs-translation
	w.StringVaruint(message)
	w.StringVaruint("") // xuid
	w.StringVaruint("") // platform chat id
	return frame(IDText, w.Bytes())
}

func encodeChunkRadiusReply(radius int32) []byte {
	w := codec.NewWriter()
	w.Varint32(radius)
	return frame(IDChunkRadiusReply, w.Bytes())
}

// frame wraps a single outbound packet as a one-record batch, the
// same `varuint32 length || header varuint || body` shape used for
// multi-packet batches (spec 4.5); most login packets are sent one at
// a time but still go through the batching envelope.
func frame(packetID uint32, body []byte) []byte {
	return compress.Batch([]compress.Record{{PacketID: packetID, Body: body}})
}

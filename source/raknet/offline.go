package raknet

import (
	"bytes"
	"net"

	"bedrockd/source/codec"
	"bedrockd/source/errs"
)

// ServerInfo supplies the fields the offline handshake needs to
// answer an UnconnectedPing and to size an OpenConnectionReply1 (spec
// 4.2, 6).
type ServerInfo struct {
	GUID           uint64
	MOTD           func() string // semicolon-delimited server-info string, refreshed periodically
}

// OfflineHandler is the stateless function table of spec 4.2, keyed by
// the first byte of an unconnected UDP packet. It never touches
// connection state directly; OpenConnectionRequest2 asks the caller to
// create one via OnOpenConnection.
type OfflineHandler struct {
	info *ServerInfo
	log  Logger

	// OnOpenConnection is invoked once OpenConnectionRequest2 is
	// validated, with the negotiated MTU and the client's self-declared
	// GUID, so the caller (the user map) can create a Connecting entry.
	OnOpenConnection func(addr net.UDPAddr, mtu int, clientGUID uint64)
}

func NewOfflineHandler(info *ServerInfo, log Logger) *OfflineHandler {
	return &OfflineHandler{info: info, log: log}
}

// Handle dispatches one unconnected datagram and returns the reply
// bytes to send back, or nil if no reply is warranted.
func (h *OfflineHandler) Handle(data []byte, addr net.UDPAddr) []byte {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case IDUnconnectedPing:
		return h.handlePing(data)
	case IDOpenConnectionReq1:
		return h.handleOpenConnectionRequest1(data)
	case IDOpenConnectionReq2:
		return h.handleOpenConnectionRequest2(data, addr)
	default:
		return nil
	}
}

func checkMagic(r *codec.Reader) error {
	magic, err := r.Bytes(16)
	if err != nil {
		return err
	}
	if !bytes.Equal(magic, OfflineMessageMagic[:]) {
		return errs.New(errs.Malformed, "raknet: bad offline magic")
	}
	return nil
}

func (h *OfflineHandler) handlePing(data []byte) []byte {
	r := codec.NewReader(data[1:])
	t, err := r.Uint64BE()
	if err != nil {
		h.log.Debugw("raknet: malformed ping", "err", err)
		return nil
	}
	if err := checkMagic(r); err != nil {
		h.log.Debugw("raknet: malformed ping", "err", err)
		return nil
	}
	// client GUID follows; unused by the reply.

	w := codec.NewWriter()
	w.Uint8(IDUnconnectedPong)
	w.Uint64BE(t)
	w.Uint64BE(h.info.GUID)
	w.Raw(OfflineMessageMagic[:])
	w.StringUint16BE(h.info.MOTD())
	return w.Bytes()
}

func (h *OfflineHandler) handleOpenConnectionRequest1(data []byte) []byte {
	r := codec.NewReader(data[1:])
	if err := checkMagic(r); err != nil {
		h.log.Debugw("raknet: malformed open-connection-1", "err", err)
		return nil
	}
	protocol, err := r.Uint8()
	if err != nil {
		h.log.Debugw("raknet: malformed open-connection-1", "err", err)
		return nil
	}
	if protocol != RakNetVersion {
		w := codec.NewWriter()
		w.Uint8(IDIncompatibleProto)
		w.Raw(OfflineMessageMagic[:])
		w.Uint64BE(h.info.GUID)
		return w.Bytes()
	}

	mtu := len(data) + 28
	w := codec.NewWriter()
	w.Uint8(IDOpenConnectionRep1)
	w.Raw(OfflineMessageMagic[:])
	w.Uint64BE(h.info.GUID)
	w.Uint8(0) // no security
	w.Uint16BE(uint16(mtu))
	return w.Bytes()
}

func (h *OfflineHandler) handleOpenConnectionRequest2(data []byte, addr net.UDPAddr) []byte {
	r := codec.NewReader(data[1:])
	if err := checkMagic(r); err != nil {
		h.log.Debugw("raknet: malformed open-connection-2", "err", err)
		return nil
	}
	if _, err := r.Address(); err != nil { // server address as seen by client; informational only
		h.log.Debugw("raknet: malformed open-connection-2", "err", err)
		return nil
	}
	mtu, err := r.Uint16BE()
	if err != nil {
		h.log.Debugw("raknet: malformed open-connection-2", "err", err)
		return nil
	}
	clientGUID, err := r.Uint64BE()
	if err != nil {
		h.log.Debugw("raknet: malformed open-connection-2", "err", err)
		return nil
	}

	w := codec.NewWriter()
	w.Uint8(IDOpenConnectionRep2)
	w.Raw(OfflineMessageMagic[:])
	w.Uint64BE(h.info.GUID)
	w.Address(&addr)
	w.Uint16BE(mtu)
	w.Bool(false) // encryption not negotiated at the RakNet layer

	if h.OnOpenConnection != nil {
		h.OnOpenConnection(addr, int(mtu), clientGUID)
	}
	return w.Bytes()
}

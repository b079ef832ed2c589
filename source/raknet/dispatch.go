package raknet

import (
	"bedrockd/source/codec"
	"bedrockd/source/errs"
)

// Frame-body ids handled directly by the reliability layer (spec
// 4.3.2), below the Bedrock game-packet boundary.
const (
	bodyConnectedPing     = 0x00
	bodyConnectionRequest = 0x09
	bodyNewIncomingConn   = 0x13
	bodyDisconnectNotify  = 0x15
)

// NewBuiltinDispatcher returns a Dispatcher implementing spec 4.3.2:
// it answers RakNet session-keepalive packets itself and forwards
// anything tagged IDConnectedPacket (0xfe) to onGamePacket. Any other
// id is a protocol violation and closes the connection.
func NewBuiltinDispatcher(c *Connection, onGamePacket func([]byte) error, onDisconnect func()) Dispatcher {
	return func(body []byte) error {
		if len(body) == 0 {
			return errs.New(errs.Malformed, "raknet: empty frame body")
		}
		switch body[0] {
		case IDConnectedPacket:
			return onGamePacket(body[1:])
		case bodyDisconnectNotify:
			if onDisconnect != nil {
				onDisconnect()
			}
			c.Close()
			return nil
		case bodyConnectionRequest:
			return c.handleConnectionRequest(body[1:])
		case bodyNewIncomingConn:
			c.Ready()
			return nil
		case bodyConnectedPing:
			return c.handleConnectedPing(body[1:])
		default:
			return errs.New(errs.Violation, "raknet: unexpected frame body id")
		}
	}
}

func (c *Connection) handleConnectionRequest(payload []byte) error {
	r := codec.NewReader(payload)
	if _, err := r.Uint64BE(); err != nil { // client GUID, unused
		return errs.Wrap(errs.Malformed, "raknet: malformed connection request", err)
	}
	requestTime, err := r.Uint64BE()
	if err != nil {
		return errs.Wrap(errs.Malformed, "raknet: malformed connection request", err)
	}

	w := codec.NewWriter()
	w.Uint8(IDConnReqAccepted)
	w.Address(&c.Addr)
	w.Uint16BE(0) // system index
	for i := 0; i < 10; i++ {
		w.Address(&c.Addr)
	}
	w.Uint64BE(requestTime)
	w.Uint64BE(uint64(nowMillis()))
	c.Send(w.Bytes(), ReliableOrdered, 0, PriorityHigh)
	c.Ready()
	return nil
}

func (c *Connection) handleConnectedPing(payload []byte) error {
	r := codec.NewReader(payload)
	t, err := r.Uint64BE()
	if err != nil {
		return errs.Wrap(errs.Malformed, "raknet: malformed connected ping", err)
	}
	w := codec.NewWriter()
	w.Uint8(IDConnectedPong)
	w.Uint64BE(t)
	w.Uint64BE(uint64(nowMillis()))
	c.Send(w.Bytes(), Unreliable, 0, PriorityHigh)
	return nil
}

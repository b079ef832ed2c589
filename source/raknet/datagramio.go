package raknet

import (
	"context"
	"net"
	"time"

	"bedrockd/source/errs"
)

// pollInterval bounds how long a blocking UDP read can hide a
// cancelled context from the receive loop.
const pollInterval = 200 * time.Millisecond

// PeerRouter resolves a connected datagram's source address to the
// connection that should receive it, per spec 4.1 step 2. Returning
// false means no connection exists for addr and the datagram is
// dropped.
type PeerRouter interface {
	Route(addr net.UDPAddr, data []byte) (forwarded bool, err error)
}

// Socket owns one UDP listener and its receive loop (spec 4.1). One
// Socket is bound per enabled address family.
type Socket struct {
	conn    *net.UDPConn
	offline *OfflineHandler
	router  PeerRouter
	log     Logger
}

func NewSocket(conn *net.UDPConn, offline *OfflineHandler, router PeerRouter, log Logger) *Socket {
	return &Socket{conn: conn, offline: offline, router: router, log: log}
}

// Send writes a reply datagram to addr on this socket's egress.
func (s *Socket) Send(addr *net.UDPAddr, data []byte) error {
	_, err := s.conn.WriteToUDP(data, addr)
	if err != nil {
		return errs.Wrap(errs.IO, "raknet: udp write failed", err)
	}
	return nil
}

// Run owns the fixed-size receive buffer and dispatches every
// incoming datagram to either the offline handshake or the connected
// peer router, until ctx is cancelled.
func (s *Socket) Run(ctx context.Context) error {
	buf := make([]byte, DefaultMTU)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.Warnw("raknet: udp read error", "err", err)
			continue
		}
		if n == 0 {
			continue
		}

		// Heap-owned copy before handoff; buf is reused next iteration.
		data := make([]byte, n)
		copy(data, buf[:n])
		peer := *addr

		if data[0]&FlagConnected == 0 {
			go s.handleOffline(data, peer)
			continue
		}

		forwarded, err := s.router.Route(peer, data)
		if err != nil {
			s.log.Warnw("raknet: forward failed", "addr", peer.String(), "err", err)
		}
		if !forwarded {
			s.log.Debugw("raknet: datagram for unknown peer dropped", "addr", peer.String())
		}
	}
}

func (s *Socket) handleOffline(data []byte, addr net.UDPAddr) {
	reply := s.offline.Handle(data, addr)
	if reply == nil {
		return
	}
	if err := s.Send(&addr, reply); err != nil {
		s.log.Warnw("raknet: offline reply failed", "addr", addr.String(), "err", err)
	}
}

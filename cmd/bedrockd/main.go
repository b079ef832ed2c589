// Command bedrockd is the process entrypoint of spec 4.8: it binds one
// UDP socket per enabled address family, wires the offline handshake
// into the user map, and runs until a shutdown signal arrives.
package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bedrockd/pkg/logger"
	"bedrockd/source/bedrock"
	"bedrockd/source/compress"
	"bedrockd/source/config"
	"bedrockd/source/events"
	"bedrockd/source/raknet"
	"bedrockd/source/replicator"
	"bedrockd/source/usermap"
)

const version = "0.1.0"

func main() {
	logger.Banner("bedrockd", version)

	configPath := flag.String("config", "", "path to a bedrockd.yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed: %v", err)
	}
	logger.SetLevelName(cfg.LogLevel)
	logger.Success("configuration loaded")

	guid := randomGUID()
	repl := replicator.New(cfg.ReplicatorHost, cfg.ReplicatorPort)
	defer repl.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := repl.Ping(pingCtx); err != nil {
		pingCancel()
		logger.Fatal("replicator unreachable at startup: %v", err)
	}
	pingCancel()
	logger.Success("replicator reachable")

	bus := events.NewBus()
	bus.On(events.PeerConnecting, func(e events.Event) { logger.Debug("peer connecting: %s", e.Addr) })
	bus.On(events.PeerPromoted, func(e events.Event) { logger.Debug("peer promoted to bedrock session: %s", e.Addr) })
	bus.On(events.PeerDisconnected, func(e events.Event) { logger.Debug("peer disconnected: %s", e.Addr) })
	bus.On(events.PlayerJoined, func(e events.Event) { logger.Info("player joined: %s", e.Addr) })

	um := usermap.New(usermap.CreateInfo{
		Replicator:           replicatorAdapter{repl},
		MaxChunkRadius:       cfg.MaxChunkRadius,
		CompressionThreshold: cfg.CompressionThreshold,
		CompressionAlgorithm: parseAlgorithm(cfg.CompressionAlgorithm),
		Events:               bus,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sockets, err := bindSockets(ctx, cfg, guid, um)
	if err != nil {
		logger.Fatal("socket bind failed: %v", err)
	}
	logger.Success("listening on %s:%d (ipv6=%v)", cfg.BindAddress, cfg.Port, cfg.EnableIPv6)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, len(sockets))
	var wg sync.WaitGroup
	for _, sock := range sockets {
		wg.Add(1)
		go func(s *raknet.Socket) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				errChan <- err
			}
		}(sock)
	}

	select {
	case err := <-errChan:
		logger.Fatal("socket error: %v", err)
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
	}

	logger.Info("shutting down")
	um.Shutdown()
	cancel()
	wg.Wait()
	logger.Success("bedrockd stopped")
}

// bindSockets binds the IPv4 socket (always) and the IPv6 socket (when
// enabled), wiring each one's offline handler to promote accepted
// peers into the shared user map (spec 4.1/4.2/4.7).
func bindSockets(ctx context.Context, cfg config.Config, guid uint64, um *usermap.Map) ([]*raknet.Socket, error) {
	var sockets []*raknet.Socket

	v4, err := bindOne(ctx, "udp4", cfg.BindAddress, cfg.Port, cfg, guid, um)
	if err != nil {
		return nil, fmt.Errorf("bind ipv4: %w", err)
	}
	sockets = append(sockets, v4)

	if cfg.EnableIPv6 {
		v6, err := bindOne(ctx, "udp6", cfg.IPv6BindAddress, cfg.IPv6Port, cfg, guid, um)
		if err != nil {
			return nil, fmt.Errorf("bind ipv6: %w", err)
		}
		sockets = append(sockets, v6)
	}

	return sockets, nil
}

func bindOne(ctx context.Context, network, address string, port int, cfg config.Config, guid uint64, um *usermap.Map) (*raknet.Socket, error) {
	udpAddr, err := net.ResolveUDPAddr(network, fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(network, udpAddr)
	if err != nil {
		return nil, err
	}

	log := logger.Sugared()
	info := &raknet.ServerInfo{
		GUID: guid,
		MOTD: func() string { return motd(cfg, guid, um.Count()) },
	}
	offline := raknet.NewOfflineHandler(info, log)

	var sock *raknet.Socket
	offline.OnOpenConnection = func(addr net.UDPAddr, mtu int, clientGUID uint64) {
		rcfg := raknet.Config{
			Addr: addr,
			GUID: clientGUID,
			MTU:  mtu,
			Send: func(data []byte) error { return sock.Send(&addr, data) },
			Log:  log,
		}
		peerConn := um.Insert(ctx, rcfg)
		go peerConn.Run(ctx)
	}

	sock = raknet.NewSocket(conn, offline, um, log)
	return sock, nil
}

// motd renders the semicolon-delimited server-info string spec 4.2
// describes, refreshed on every ping so the player count stays live.
func motd(cfg config.Config, guid uint64, playerCount int) string {
	return fmt.Sprintf("MCPE;%s;%d;%s;%d;%d;%d;%s;Survival;1;%d;%d;",
		cfg.ServerName,
		bedrock.CurrentProtocolVersion,
		"1.20.0",
		playerCount,
		cfg.MaxPlayers,
		guid,
		cfg.ServerName,
		cfg.Port,
		cfg.IPv6Port,
	)
}

func parseAlgorithm(name string) compress.Algorithm {
	switch name {
	case "snappy":
		return compress.AlgorithmSnappy
	case "none":
		return compress.AlgorithmNone
	default:
		return compress.AlgorithmDeflate
	}
}

func randomGUID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b[:])
}

// replicatorAdapter narrows *replicator.Client to the single-method
// bedrock.Replicator interface the session depends on.
type replicatorAdapter struct {
	client *replicator.Client
}

func (r replicatorAdapter) Save(ctx context.Context, key string, value []byte) error {
	return r.client.Save(ctx, key, value)
}

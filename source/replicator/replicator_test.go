package replicator

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is a minimal RESP server good enough to exercise the
// client's command encoding and reply parsing without a real Redis
// instance.
func fakeRedis(t *testing.T) (host string, port int, store map[string]string) {
	t.Helper()
	store = make(map[string]string)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveOne(conn, store)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, store
}

func serveOne(conn net.Conn, store map[string]string) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "PING":
			conn.Write([]byte("+PONG\r\n"))
		case "SET":
			store[args[1]] = args[2]
			conn.Write([]byte("+OK\r\n"))
		case "GET":
			v, ok := store[args[1]]
			if !ok {
				conn.Write([]byte("$-1\r\n"))
				continue
			}
			conn.Write([]byte("$" + strconv.Itoa(len(v)) + "\r\n" + v + "\r\n"))
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 1 || line[0] != '*' {
		return nil, nil
	}
	n, err := strconv.Atoi(line[1 : len(line)-2])
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		length, err := strconv.Atoi(header[1 : len(header)-2])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, length+2)
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:length]))
	}
	return args, nil
}

func TestSaveThenGetRoundTrip(t *testing.T) {
	host, port, _ := fakeRedis(t)
	c := New(host, port)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, c.Save(ctx, "player:123", []byte("Steve")))

	got, ok, err := c.Get(ctx, "player:123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Steve", string(got))
}

func TestPingSucceedsAgainstLiveServer(t *testing.T) {
	host, port, _ := fakeRedis(t)
	c := New(host, port)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, c.Ping(ctx))
}

func TestPingFailsWhenNothingListening(t *testing.T) {
	c := New("127.0.0.1", 1) // port 1 is reserved, nothing listens there
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.Error(t, c.Ping(ctx))
}

func TestGetMissingKeyReturnsNotOk(t *testing.T) {
	host, port, _ := fakeRedis(t)
	c := New(host, port)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, ok, err := c.Get(ctx, "no-such-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

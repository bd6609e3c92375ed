package e2e

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avani23/linechat/pkg/config"
)

// harness boots the full config-driven stack on ephemeral ports.
type harness struct {
	tcpAddr string
	wsURL   string
	cancel  context.CancelFunc
	done    chan error

	stopped bool
	stopErr error
}

// stop shuts the server down and returns Serve's result. Idempotent so the
// test body and the cleanup hook can both call it.
func (h *harness) stop() error {
	h.cancel()
	if !h.stopped {
		h.stopErr = <-h.done
		h.stopped = true
	}
	return h.stopErr
}

func startServer(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Adapters.TCP["port"] = 0
	cfg.Adapters.TCP["shutdown_timeout"] = "2s"
	cfg.Adapters.WS["enabled"] = true
	cfg.Adapters.WS["port"] = 0
	cfg.Adapters.WS["shutdown_timeout"] = "2s"
	if mutate != nil {
		mutate(cfg)
	}

	srv, _, err := config.CreateServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	var tcpPort, wsPort int
	require.Eventually(t, func() bool {
		tcpPort, wsPort = 0, 0
		for _, a := range srv.Adapters() {
			switch a.Protocol() {
			case "TCP":
				tcpPort = a.Port()
			case "WebSocket":
				wsPort = a.Port()
			}
		}
		return tcpPort != 0 && wsPort != 0
	}, 2*time.Second, 10*time.Millisecond, "adapters did not start")

	h := &harness{
		tcpAddr: fmt.Sprintf("localhost:%d", tcpPort),
		wsURL:   fmt.Sprintf("ws://localhost:%d/chat", wsPort),
		cancel:  cancel,
		done:    done,
	}
	t.Cleanup(func() { _ = h.stop() })
	return h
}

// tcpClient is a line-oriented test client over plain TCP.
type tcpClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func (h *harness) dialTCP(t *testing.T) *tcpClient {
	t.Helper()

	conn, err := net.Dial("tcp", h.tcpAddr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &tcpClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *tcpClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *tcpClient) recv(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *tcpClient) login(t *testing.T, name string) {
	t.Helper()
	c.send(t, "LOGIN "+name)
	require.Equal(t, "OK", c.recv(t))
}

// wsClient is the same client over WebSocket frames.
type wsClient struct {
	conn *websocket.Conn
}

func (h *harness) dialWS(t *testing.T) *wsClient {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

func (c *wsClient) recv(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := c.conn.ReadMessage()
	require.NoError(t, err)
	return string(payload)
}

func (c *wsClient) login(t *testing.T, name string) {
	t.Helper()
	c.send(t, "LOGIN "+name)
	require.Equal(t, "OK", c.recv(t))
}

func TestChatSessionLifecycle(t *testing.T) {
	h := startServer(t, nil)

	alice := h.dialTCP(t)

	// Commands before login are rejected, PING is not.
	alice.send(t, "MSG hello")
	assert.Equal(t, "ERR not-logged-in", alice.recv(t))
	alice.send(t, "PING")
	assert.Equal(t, "PONG", alice.recv(t))

	alice.login(t, "alice")

	// Second login on the same session is rejected.
	alice.send(t, "LOGIN alice2")
	assert.Equal(t, "ERR already-logged-in", alice.recv(t))

	// The name stays reserved for other connections.
	intruder := h.dialTCP(t)
	intruder.send(t, "LOGIN alice")
	assert.Equal(t, "ERR username-taken", intruder.recv(t))
}

func TestCrossTransportChat(t *testing.T) {
	h := startServer(t, nil)

	alice := h.dialTCP(t)
	alice.login(t, "alice")

	bob := h.dialWS(t)
	bob.login(t, "bob")

	// One registry across transports: bob's name is taken for TCP clients.
	imposter := h.dialTCP(t)
	imposter.send(t, "LOGIN bob")
	assert.Equal(t, "ERR username-taken", imposter.recv(t))

	// Broadcast crosses transports.
	alice.send(t, "MSG hello from tcp")
	assert.Equal(t, "MSG alice hello from tcp", bob.recv(t))

	bob.send(t, "MSG hello from ws")
	assert.Equal(t, "MSG bob hello from ws", alice.recv(t))

	// Direct messages cross transports too.
	alice.send(t, "DM bob secret")
	assert.Equal(t, "DM alice secret", bob.recv(t))

	// WHO sees users from both transports.
	alice.send(t, "WHO")
	var users []string
	for i := 0; i < 2; i++ {
		line := alice.recv(t)
		require.True(t, strings.HasPrefix(line, "USER "), "unexpected line: %q", line)
		users = append(users, strings.TrimPrefix(line, "USER "))
	}
	sort.Strings(users)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func TestDepartureNotice(t *testing.T) {
	h := startServer(t, nil)

	alice := h.dialTCP(t)
	alice.login(t, "alice")
	bob := h.dialTCP(t)
	bob.login(t, "bob")

	require.NoError(t, bob.conn.Close())

	assert.Equal(t, "INFO bob disconnected", alice.recv(t))

	// The name becomes available again.
	nextBob := h.dialTCP(t)
	nextBob.login(t, "bob")
}

func TestIdleDisconnectEndToEnd(t *testing.T) {
	h := startServer(t, func(cfg *config.Config) {
		cfg.Chat.IdleTimeout = 150 * time.Millisecond
	})

	alice := h.dialTCP(t)
	alice.login(t, "alice")
	bob := h.dialTCP(t)
	bob.login(t, "bob")

	// Alice keeps pinging; bob goes silent and is disconnected.
	deadline := time.Now().Add(time.Second)
	var notice string
	for time.Now().Before(deadline) {
		alice.send(t, "PING")
		line := alice.recv(t)
		if line != "PONG" {
			notice = line
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(t, "INFO bob disconnected", notice)

	// Bob's socket is closed server-side.
	require.NoError(t, bob.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := bob.r.ReadString('\n')
	assert.Error(t, err)
}

func TestGracefulShutdownNotifiesAllTransports(t *testing.T) {
	h := startServer(t, nil)

	alice := h.dialTCP(t)
	alice.login(t, "alice")
	bob := h.dialWS(t)
	bob.login(t, "bob")

	h.cancel()

	assert.Equal(t, "INFO Server is shutting down", alice.recv(t))
	assert.Equal(t, "INFO Server is shutting down", bob.recv(t))

	assert.ErrorIs(t, h.stop(), context.Canceled)

	// New TCP connections are refused once the listener is down.
	assert.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", h.tcpAddr)
		if err != nil {
			return true
		}
		conn.Close()
		return false
	}, 2*time.Second, 50*time.Millisecond)
}

package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avani23/linechat/pkg/chat"
	"github.com/avani23/linechat/pkg/metrics"
)

// startAdapter boots an adapter on an ephemeral port and returns the dial
// address plus a cancel func and the Serve result channel.
func startAdapter(t *testing.T, config Config) (*Adapter, string, context.CancelFunc, chan error) {
	t.Helper()

	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 2 * time.Second
	}

	adapter := New(config, nil)
	adapter.SetService(chat.NewService(0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- adapter.Serve(ctx)
	}()

	// Wait for the listener to bind.
	require.Eventually(t, func() bool { return adapter.Port() != 0 },
		2*time.Second, 10*time.Millisecond, "listener did not start")

	addr := fmt.Sprintf("localhost:%d", adapter.Port())
	return adapter, addr, cancel, serverDone
}

func dialClient(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err, "failed to connect to adapter")
	return conn, bufio.NewReader(conn)
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := r.ReadString('\n')
	require.NoError(t, err, "expected a server line")
	return line[:len(line)-1]
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()

	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func TestLoginAndPingOverTCP(t *testing.T) {
	_, addr, cancel, serverDone := startAdapter(t, Config{})
	defer func() { cancel(); <-serverDone }()

	conn, r := dialClient(t, addr)
	defer conn.Close()

	sendLine(t, conn, "LOGIN alice")
	assert.Equal(t, "OK", readLine(t, conn, r))

	sendLine(t, conn, "PING")
	assert.Equal(t, "PONG", readLine(t, conn, r))

	sendLine(t, conn, "MSG")
	assert.Equal(t, "ERR invalid-command", readLine(t, conn, r))
}

func TestBroadcastAcrossConnections(t *testing.T) {
	_, addr, cancel, serverDone := startAdapter(t, Config{})
	defer func() { cancel(); <-serverDone }()

	alice, ar := dialClient(t, addr)
	defer alice.Close()
	bob, br := dialClient(t, addr)
	defer bob.Close()

	sendLine(t, alice, "LOGIN alice")
	require.Equal(t, "OK", readLine(t, alice, ar))
	sendLine(t, bob, "LOGIN bob")
	require.Equal(t, "OK", readLine(t, bob, br))

	sendLine(t, alice, "MSG hello   there")
	assert.Equal(t, "MSG alice hello there", readLine(t, bob, br))

	sendLine(t, bob, "DM alice psst")
	assert.Equal(t, "DM bob psst", readLine(t, alice, ar))
}

func TestSplitAndCoalescedWrites(t *testing.T) {
	_, addr, cancel, serverDone := startAdapter(t, Config{})
	defer func() { cancel(); <-serverDone }()

	conn, r := dialClient(t, addr)
	defer conn.Close()

	// One command split across two writes.
	_, err := conn.Write([]byte("LOG"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = conn.Write([]byte("IN carol\n"))
	require.NoError(t, err)
	assert.Equal(t, "OK", readLine(t, conn, r))

	// Two commands in a single write.
	_, err = conn.Write([]byte("PING\nPING\n"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", readLine(t, conn, r))
	assert.Equal(t, "PONG", readLine(t, conn, r))
}

func TestOversizedLineClosesConnection(t *testing.T) {
	_, addr, cancel, serverDone := startAdapter(t, Config{MaxLineLength: 64})
	defer func() { cancel(); <-serverDone }()

	conn, r := dialClient(t, addr)
	defer conn.Close()

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	_, err := conn.Write(long)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = r.ReadString('\n')
	assert.Error(t, err, "server should close the connection")
}

func TestRateLimitDropsExcessCommands(t *testing.T) {
	config := Config{
		RateLimit: RateLimitConfig{CommandsPerSecond: 1, Burst: 2},
	}
	_, addr, cancel, serverDone := startAdapter(t, config)
	defer func() { cancel(); <-serverDone }()

	conn, r := dialClient(t, addr)
	defer conn.Close()

	for i := 0; i < 10; i++ {
		sendLine(t, conn, "PING")
	}

	pongs := 0
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		if line == "PONG\n" {
			pongs++
		}
	}
	assert.Equal(t, 2, pongs, "only the burst allowance should be answered")
}

// recordingMetrics counts the adapter-facing metric calls; everything else
// falls through to the no-op implementation.
type recordingMetrics struct {
	metrics.ChatMetrics

	accepted        atomic.Int32
	closed          atomic.Int32
	sessionGaugeSet atomic.Int32
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ChatMetrics: metrics.NewNoopChatMetrics()}
}

func (m *recordingMetrics) RecordConnectionAccepted(protocol string) { m.accepted.Add(1) }
func (m *recordingMetrics) RecordConnectionClosed(protocol string)   { m.closed.Add(1) }
func (m *recordingMetrics) SetActiveSessions(count int)              { m.sessionGaugeSet.Add(1) }

// TestConnectionMetricsOwnership verifies the adapter records its
// per-protocol connection counters but never touches the active-sessions
// gauge, which belongs to the chat service across all transports.
func TestConnectionMetricsOwnership(t *testing.T) {
	rec := newRecordingMetrics()

	adapter := New(Config{ShutdownTimeout: 2 * time.Second}, rec)
	// The service gets no metrics here, so any gauge write observed by rec
	// can only have come from the adapter.
	adapter.SetService(chat.NewService(0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- adapter.Serve(ctx)
	}()
	defer func() { cancel(); <-serverDone }()

	require.Eventually(t, func() bool { return adapter.Port() != 0 },
		2*time.Second, 10*time.Millisecond, "listener did not start")

	conn, r := dialClient(t, fmt.Sprintf("localhost:%d", adapter.Port()))
	sendLine(t, conn, "PING")
	require.Equal(t, "PONG", readLine(t, conn, r))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return rec.closed.Load() == 1 },
		2*time.Second, 10*time.Millisecond, "close was not recorded")

	assert.Equal(t, int32(1), rec.accepted.Load())
	assert.Equal(t, int32(0), rec.sessionGaugeSet.Load(),
		"the adapter must leave the session gauge to the chat service")
}

// TestGracefulShutdownDrains verifies Serve returns promptly once all
// connections have closed.
func TestGracefulShutdownDrains(t *testing.T) {
	adapter, addr, cancel, serverDone := startAdapter(t, Config{})

	conn, r := dialClient(t, addr)
	sendLine(t, conn, "LOGIN dave")
	require.Equal(t, "OK", readLine(t, conn, r))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return adapter.ActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-serverDone)
}

// TestForcedClosureAfterTimeout verifies lingering connections are
// force-closed once the shutdown timeout expires.
func TestForcedClosureAfterTimeout(t *testing.T) {
	config := Config{ShutdownTimeout: 300 * time.Millisecond}
	adapter, addr, cancel, serverDone := startAdapter(t, config)

	conn, _ := dialClient(t, addr)
	defer conn.Close()

	require.Eventually(t, func() bool { return adapter.ActiveConnections() == 1 },
		2*time.Second, 10*time.Millisecond)

	shutdownStart := time.Now()
	cancel()

	err := <-serverDone
	assert.Error(t, err, "forced closure should be reported")
	assert.Less(t, time.Since(shutdownStart), 2*time.Second)

	// The force-close fails the client's pending read.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, readErr := conn.Read(buf)
	assert.Error(t, readErr)
}

package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avani23/linechat/internal/logger"
	"github.com/avani23/linechat/pkg/chat"
	"github.com/avani23/linechat/pkg/metrics"
)

// Adapter implements adapter.Adapter for the plain TCP transport.
//
// This is the primary transport: clients connect with netcat or telnet and
// exchange newline-delimited commands. The adapter owns the listener and the
// per-connection read loops; all protocol semantics live in the chat service.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Chat service closes sessions, which fails pending reads
//  4. Wait for read loops to exit (up to ShutdownTimeout)
//  5. Force-close any remaining sockets after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called multiple times.
type Adapter struct {
	// config holds the listener configuration (port, limits, timeouts)
	config Config

	// service is the shared chat core all connections feed into
	service *chat.Service

	// metrics provides optional Prometheus metrics collection
	metrics metrics.ChatMetrics

	// listener is closed during shutdown to stop accepting new connections
	listener net.Listener

	// activeConns tracks running connection goroutines for graceful shutdown
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown is closed by initiateShutdown(), monitored by Serve()
	shutdown chan struct{}

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// boundPort is the actual listen port, set once the listener is bound.
	// Differs from config.Port when an ephemeral port (0) was requested.
	boundPort atomic.Int32

	// connSemaphore limits concurrent connections when MaxConnections > 0;
	// nil means unlimited
	connSemaphore chan struct{}

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map
}

// Config holds configuration for the TCP listener.
//
// Zero values are replaced with defaults by applyDefaults. All timeouts are
// optional except ShutdownTimeout, which must be positive so shutdown always
// completes.
type Config struct {
	// Enabled controls whether the TCP adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. Defaults to 7667.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client connections. When reached,
	// new connections wait until an existing one closes. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// MaxLineLength is the maximum accepted command line length in bytes.
	// Lines longer than this get the connection closed. 0 means unlimited.
	MaxLineLength int `mapstructure:"max_line_length" validate:"min=0"`

	// WriteTimeout bounds each reply or broadcast write to a client so a
	// stalled receiver cannot block the server. 0 means no deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long to wait for connections to drain during
	// graceful shutdown before force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// RateLimit throttles how fast a single connection may issue commands.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig controls per-connection command throttling.
type RateLimitConfig struct {
	// CommandsPerSecond is the sustained rate allowed per connection.
	// 0 disables rate limiting.
	CommandsPerSecond float64 `mapstructure:"commands_per_second" validate:"min=0"`

	// Burst is the number of commands a connection may issue at once
	// before the sustained rate applies.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
//
// Port is left alone: the standard port default lives in pkg/config/defaults.go,
// and 0 means "pick an ephemeral port" (used by tests).
func (c *Config) applyDefaults() {
	if c.MaxLineLength == 0 {
		c.MaxLineLength = 4096
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimit.CommandsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
}

// validate checks that the configuration is usable.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxLineLength < 0 {
		return fmt.Errorf("invalid MaxLineLength %d: must be >= 0", c.MaxLineLength)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.RateLimit.CommandsPerSecond < 0 {
		return fmt.Errorf("invalid rate limit %v: must be >= 0", c.RateLimit.CommandsPerSecond)
	}
	return nil
}

// Validate reports whether the configuration is usable once defaults are
// applied. Called by the config loader before the adapter is constructed.
func (c Config) Validate() error {
	c.applyDefaults()
	return c.validate()
}

// New creates a TCP adapter with the given configuration.
//
// The adapter is created in a stopped state. Call SetService() to inject the
// chat core, then Serve() to start accepting connections.
//
// Panics if config validation fails (programmer error).
func New(config Config, chatMetrics metrics.ChatMetrics) *Adapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid TCP config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("TCP connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("TCP connection limit: unlimited")
	}

	if chatMetrics == nil {
		chatMetrics = metrics.NewNoopChatMetrics()
	}

	return &Adapter{
		config:        config,
		metrics:       chatMetrics,
		shutdown:      make(chan struct{}),
		connSemaphore: connSemaphore,
	}
}

// SetService injects the shared chat service.
//
// Called exactly once by ChatServer before Serve(), no synchronization needed.
func (s *Adapter) SetService(svc *chat.Service) {
	s.service = svc
}

// Protocol returns the transport name for logging.
func (s *Adapter) Protocol() string {
	return "TCP"
}

// Port returns the actual listen port once Serve() has bound the listener,
// or the configured port before that.
func (s *Adapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Serve starts the TCP listener and blocks until the context is cancelled or
// an unrecoverable error occurs.
//
// Each accepted connection gets a goroutine running the read loop in
// serveConn. On context cancellation Serve stops accepting, lets the chat
// service drain sessions, and waits up to ShutdownTimeout before force-closing
// stragglers.
//
// Serve should only be called once per Adapter instance.
func (s *Adapter) Serve(ctx context.Context) error {
	if s.service == nil {
		return fmt.Errorf("TCP adapter started without a chat service")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create TCP listener on port %d: %w", s.config.Port, err)
	}

	s.listener = listener
	s.boundPort.Store(int32(listener.Addr().(*net.TCPAddr).Port))
	logger.Info("TCP server listening on port %d", s.Port())
	logger.Debug("TCP config: max_connections=%d max_line_length=%d write_timeout=%v rate=%.1f/s",
		s.config.MaxConnections, s.config.MaxLineLength, s.config.WriteTimeout,
		s.config.RateLimit.CommandsPerSecond)

	// Monitor context cancellation in a separate goroutine so the accept
	// loop can focus on accepting connections.
	go func() {
		<-ctx.Done()
		logger.Info("TCP shutdown signal received: %v", ctx.Err())
		s.initiateShutdown()
	}()

	for {
		// Acquire connection semaphore if connection limiting is enabled.
		// This blocks at MaxConnections until a connection closes.
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				// Expected error during shutdown (listener was closed)
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting TCP connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		// The active-sessions gauge is owned by the chat service, which sees
		// sessions across every adapter. Here we only count per-protocol.
		s.metrics.RecordConnectionAccepted("tcp")

		logger.Debug("TCP connection accepted from %s (active: %d)", connAddr, s.connCount.Load())

		go func(addr string, raw net.Conn) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed("tcp")
				logger.Debug("TCP connection closed from %s (active: %d)", addr, s.connCount.Load())
			}()

			s.serveConn(raw)
		}(connAddr, tcpConn)
	}
}

// initiateShutdown signals the accept loop to stop and closes the listener.
//
// Safe to call multiple times and from multiple goroutines.
func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("TCP shutdown initiated")

		close(s.shutdown)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing TCP listener: %v", err)
			}
		}
	})
}

// gracefulShutdown waits for active connections to drain or the configured
// timeout to expire, then force-closes whatever remains.
func (s *Adapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("TCP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("TCP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("TCP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("TCP shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all tracked sockets to accelerate shutdown.
// Closing the socket fails the pending read in serveConn, which then exits
// through the normal disconnect path.
func (s *Adapter) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d TCP connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the TCP listener.
//
// Safe to call multiple times and concurrently with Serve(). The context
// bounds the drain wait; if nil, the configured ShutdownTimeout applies.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	activeCount := s.connCount.Load()
	logger.Info("TCP graceful shutdown: waiting for %d active connection(s) (context timeout)",
		activeCount)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("TCP graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("TCP shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// ActiveConnections returns the current number of active connections.
// Primarily used for testing and monitoring.
func (s *Adapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avani23/linechat/internal/logger"
	"github.com/avani23/linechat/pkg/chat"
	"github.com/avani23/linechat/pkg/metrics"
)

// Adapter implements adapter.Adapter for the WebSocket transport.
//
// Browsers cannot open raw TCP sockets, so this adapter exposes the same
// newline-delimited protocol over WebSocket text frames. Each text frame
// carries one or more command lines; replies and broadcasts are sent one
// line per frame. The adapter shares the chat service with the TCP adapter,
// so users on either transport see each other.
type Adapter struct {
	config  Config
	service *chat.Service
	metrics metrics.ChatMetrics

	upgrader websocket.Upgrader
	server   *http.Server

	// allowedOrigins is the normalized scheme://host set built from config;
	// allowAllOrigins is set when the config contains "*".
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool

	activeConns       sync.WaitGroup
	shutdownOnce      sync.Once
	shutdown          chan struct{}
	connCount         atomic.Int32
	boundPort         atomic.Int32
	activeConnections sync.Map
}

// Config holds configuration for the WebSocket listener.
type Config struct {
	// Enabled controls whether the WebSocket adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port to listen on. 0 picks an ephemeral port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Path is the URL path serving WebSocket upgrades. Defaults to "/chat".
	Path string `mapstructure:"path"`

	// AllowedOrigins lists origins permitted to open WebSocket connections.
	// "*" allows any origin. Empty rejects all cross-origin requests.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// MaxMessageSize caps the size of a single inbound frame in bytes.
	// Defaults to 4096.
	MaxMessageSize int64 `mapstructure:"max_message_size" validate:"min=0"`

	// WriteTimeout bounds each outbound frame write. Defaults to 10s.
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

	// Burst is the number of commands a connection may issue at once.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "/chat"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 4096
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

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Path == "" || c.Path[0] != '/' {
		return fmt.Errorf("invalid path %q: must start with /", c.Path)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("invalid MaxMessageSize %d: must be >= 0", c.MaxMessageSize)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// Validate reports whether the configuration is usable once defaults are
// applied. Called by the config loader before the adapter is constructed.
func (c Config) Validate() error {
	c.applyDefaults()
	return c.validate()
}

// New creates a WebSocket adapter with the given configuration.
//
// Panics if config validation fails (programmer error).
func New(config Config, chatMetrics metrics.ChatMetrics) *Adapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid WebSocket config: %v", err))
	}

	if chatMetrics == nil {
		chatMetrics = metrics.NewNoopChatMetrics()
	}

	allowed, allowAll := normalizeOrigins(config.AllowedOrigins)

	a := &Adapter{
		config:          config,
		metrics:         chatMetrics,
		allowedOrigins:  allowed,
		allowAllOrigins: allowAll,
		shutdown:        make(chan struct{}),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.checkOrigin,
	}
	return a
}

// SetService injects the shared chat service.
func (s *Adapter) SetService(svc *chat.Service) {
	s.service = svc
}

// Protocol returns the transport name for logging.
func (s *Adapter) Protocol() string {
	return "WebSocket"
}

// Port returns the actual listen port once Serve() has bound the listener,
// or the configured port before that.
func (s *Adapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Serve starts the HTTP listener and blocks until the context is cancelled
// or the server fails.
//
// WebSocket connections are hijacked from the HTTP server, so http.Server's
// own graceful shutdown does not cover them; the adapter tracks them itself
// and drains them the same way the TCP adapter does.
func (s *Adapter) Serve(ctx context.Context) error {
	if s.service == nil {
		return fmt.Errorf("WebSocket adapter started without a chat service")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleUpgrade)
	mux.HandleFunc("/healthz", s.handleHealth)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create WebSocket listener on port %d: %w", s.config.Port, err)
	}
	s.boundPort.Store(int32(listener.Addr().(*net.TCPAddr).Port))

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("WebSocket server listening on port %d (path %s)", s.Port(), s.config.Path)

	go func() {
		<-ctx.Done()
		logger.Info("WebSocket shutdown signal received: %v", ctx.Err())
		s.initiateShutdown()
	}()

	err = s.server.Serve(listener)
	select {
	case <-s.shutdown:
		// Expected http.ErrServerClosed during shutdown
		return s.gracefulShutdown()
	default:
		return fmt.Errorf("WebSocket server failed: %w", err)
	}
}

// handleHealth is a plain liveness endpoint for load balancers.
func (s *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "ok: %d active connection(s)\n", s.connCount.Load())
}

// handleUpgrade upgrades an HTTP request to WebSocket and runs the
// connection's read loop until it disconnects.
func (s *Adapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "WebSocket endpoint only accepts GET requests", http.StatusMethodNotAllowed)
		return
	}

	select {
	case <-s.shutdown:
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	s.activeConns.Add(1)
	s.connCount.Add(1)

	connAddr := wsConn.RemoteAddr().String()
	s.activeConnections.Store(connAddr, wsConn)

	// The active-sessions gauge is owned by the chat service, which sees
	// sessions across every adapter. Here we only count per-protocol.
	s.metrics.RecordConnectionAccepted("ws")

	logger.Debug("WebSocket connection accepted from %s (active: %d)", connAddr, s.connCount.Load())

	defer func() {
		s.activeConnections.Delete(connAddr)
		s.activeConns.Done()
		s.connCount.Add(-1)

		s.metrics.RecordConnectionClosed("ws")
		logger.Debug("WebSocket connection closed from %s (active: %d)", connAddr, s.connCount.Load())
	}()

	s.serveConn(wsConn)
}

func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("WebSocket shutdown initiated")

		close(s.shutdown)

		if s.server != nil {
			// Close stops the listener and non-hijacked requests; hijacked
			// WebSocket connections are drained by gracefulShutdown.
			if err := s.server.Close(); err != nil {
				logger.Debug("Error closing WebSocket HTTP server: %v", err)
			}
		}
	})
}

func (s *Adapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("WebSocket graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("WebSocket graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("WebSocket shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("WebSocket shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *Adapter) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(*websocket.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d WebSocket connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the WebSocket listener.
//
// Safe to call multiple times and concurrently with Serve().
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("WebSocket graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("WebSocket shutdown context cancelled: %d connection(s) still active: %v",
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

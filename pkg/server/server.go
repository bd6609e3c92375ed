package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avani23/linechat/internal/logger"
	"github.com/avani23/linechat/pkg/adapter"
	"github.com/avani23/linechat/pkg/chat"
)

// ChatServer manages the lifecycle of multiple transport adapters that share
// a single chat service.
//
// Architecture:
// ChatServer orchestrates the transports (plain TCP, WebSocket) that are
// represented as Adapter implementations. All adapters feed the same chat
// service, providing one user registry and one broadcast domain regardless
// of which transport a client connects through.
//
// Lifecycle:
//  1. Creation: New() with the chat service
//  2. Registration: AddAdapter() for each transport
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation notifies and closes all sessions,
//     then stops the adapters in reverse registration order
//
// Thread safety:
// ChatServer is safe for concurrent use. AddAdapter() may be called
// concurrently before Serve(); Serve() must only be called once.
type ChatServer struct {
	// service is the shared chat core injected into every adapter
	service *chat.Service

	// adapters contains all registered transport adapters
	adapters []adapter.Adapter

	// mu protects the adapters slice and serving flag
	mu sync.RWMutex

	// serveOnce ensures Serve() is only called once
	serveOnce sync.Once

	// served indicates whether Serve() has been called
	served bool

	// stopTimeout bounds each adapter's Stop() during shutdown
	stopTimeout time.Duration
}

// New creates a ChatServer around the provided chat service.
//
// The service is shared across all adapters added to this server, so a
// username reserved over one transport is visible to all of them.
//
// Panics if the service is nil (programmer error).
func New(service *chat.Service) *ChatServer {
	if service == nil {
		panic("chat service cannot be nil")
	}

	return &ChatServer{
		service:     service,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: 30 * time.Second,
	}
}

// Service returns the shared chat service.
func (s *ChatServer) Service() *chat.Service {
	return s.service
}

// SetStopTimeout overrides the default bound on each adapter's Stop() during
// shutdown. Non-positive values are ignored.
//
// Must be called before Serve().
func (s *ChatServer) SetStopTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot change stop timeout after Serve() has been called")
	}
	if d > 0 {
		s.stopTimeout = d
	}
}

// StopTimeout returns the bound applied to each adapter's Stop() during
// shutdown.
func (s *ChatServer) StopTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopTimeout
}

// AddAdapter registers a transport adapter with the server.
//
// The shared chat service is injected into the adapter here. Duplicate
// protocols and port conflicts between adapters are rejected.
//
// Panics if the adapter is nil or Serve() has already been called.
//
// Thread safety:
// Safe to call concurrently from multiple goroutines before Serve().
func (s *ChatServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	a.SetService(s.service)

	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails, the chat service is
// drained first - every connected client receives the shutdown notice and
// has its connection closed - then each adapter's Stop() is called in
// reverse registration order, and Serve() waits for all adapter goroutines
// to finish.
//
// Returns:
//   - context.Canceled if shutdown was triggered by context cancellation
//   - the adapter's error if one failed during startup or operation
//
// Panics if called more than once on the same ChatServer instance.
func (s *ChatServer) Serve(ctx context.Context) error {
	var err error
	ran := false

	s.serveOnce.Do(func() {
		ran = true
		s.mu.Lock()
		s.served = true
		s.mu.Unlock()
		err = s.serve(ctx)
	})

	if !ran {
		panic("Serve() has already been called on this server instance")
	}

	return err
}

func (s *ChatServer) serve(ctx context.Context) error {
	s.mu.RLock()
	if len(s.adapters) == 0 {
		s.mu.RUnlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.RUnlock()

	logger.Info("Starting chat server with %d adapter(s)", len(adapters))

	// Buffered so late failures during shutdown don't leak goroutines.
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()

			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				// context.Canceled is expected during shutdown
				if err != context.Canceled && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("%s adapter stopped gracefully", protocol)
				}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.shutdownAll(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.shutdownAll(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Chat server stopped gracefully")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// shutdownAll drains the chat service, then stops adapters in reverse
// registration order.
//
// Draining first matters: Shutdown() sends the shutdown notice to every
// authenticated client and closes their connections while the sockets are
// still alive. The closed connections then fail the adapters' pending
// reads, so the subsequent Stop() calls drain almost immediately instead
// of waiting out their timeouts.
func (s *ChatServer) shutdownAll(adapters []adapter.Adapter) {
	drained := s.service.Shutdown()
	logger.Info("Chat service drained: %d session(s) closed", drained)

	ctx, cancel := context.WithTimeout(context.Background(), s.StopTimeout())
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && err != context.Canceled {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stop signal sent", protocol)
		}
	}
}

// Adapters returns a snapshot of currently registered adapters.
//
// The returned slice is a copy and safe to iterate without holding locks.
func (s *ChatServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

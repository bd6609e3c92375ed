package adapter

import (
	"context"

	"github.com/avani23/linechat/pkg/chat"
)

// Adapter represents a transport-specific listener that can be managed by
// ChatServer.
//
// Each adapter owns one listening socket (plain TCP, WebSocket, ...) and
// feeds the lines it reads into the shared chat service. All adapters share
// the same service instance, so a user logged in over TCP is visible to WHO
// issued over WebSocket and vice versa.
//
// Lifecycle:
//  1. Creation: adapter is created with transport-specific configuration
//  2. Service injection: SetService() provides the shared chat core
//  3. Startup: Serve() starts the listener and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetService() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	// stop accepting new connections, wait for active connections to drain
	// (with timeout), clean up resources, then return nil or context.Canceled.
	//
	// If Serve returns before context cancellation, ChatServer treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetService injects the shared chat service.
	//
	// Called exactly once by ChatServer before Serve(); no synchronization
	// needed by implementations.
	SetService(svc *chat.Service)

	// Stop initiates graceful shutdown of the listener.
	//
	// Must be idempotent and safe to call concurrently with Serve(). The
	// context bounds how long Stop waits for active connections to drain;
	// when it expires remaining connections are force-closed.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable transport name for logging and
	// metrics, e.g. "TCP" or "WebSocket". Constant for the adapter lifetime.
	Protocol() string

	// Port returns the port the adapter listens on. Used for logging and
	// startup validation; constant after Serve() is called.
	Port() int
}

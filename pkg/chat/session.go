package chat

import (
	"sync"
	"time"
)

// Conn is the transport abstraction the chat core needs from an adapter:
// a writable, closable byte stream. Reading is the adapter's job; it feeds
// decoded lines into Service.HandleLine.
//
// Write and Close must be safe to call after the peer has gone away; errors
// are reported, never panicked.
type Conn interface {
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() string
}

// Session is the server-side state for one live client connection. The
// session exclusively owns its Conn for writing and closing.
//
// A session starts unauthenticated, is promoted by a successful LOGIN
// (username immutable afterwards), and ends closed. Closed is terminal.
type Session struct {
	id   uint64
	conn Conn

	// wmu serializes writes so interleaved replies and broadcasts cannot
	// corrupt the line stream.
	wmu sync.Mutex

	mu            sync.Mutex
	username      string
	authenticated bool
	closed        bool
	lastActivity  time.Time

	// idleGen guards the idle deadline: each reset bumps the generation and
	// the timer callback only fires the disconnect if its generation is
	// still current. This closes the race between a reset and an already
	// scheduled expiry.
	idleGen   uint64
	idleTimer *time.Timer
}

// ID returns the session's opaque numeric handle, used only for logging.
func (s *Session) ID() uint64 {
	return s.id
}

// Username returns the reserved username, or "" before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Authenticated reports whether LOGIN has succeeded on this session.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastActivity returns the time of the last accepted command.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// send writes one protocol line followed by a line feed. Best-effort: the
// error is returned for logging but a failed write never tears down the
// recipient here; session-fatal events arrive through the adapter's read
// path instead.
func (s *Session) send(line string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.conn.Write([]byte(line + "\n"))
	return err
}

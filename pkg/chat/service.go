package chat

import (
	"sync/atomic"
	"time"

	"github.com/avani23/linechat/internal/logger"
	proto "github.com/avani23/linechat/internal/protocol/chat"
	"github.com/avani23/linechat/pkg/metrics"
)

// DefaultIdleTimeout is the inactivity window after which a session is
// disconnected unless it issues a command.
const DefaultIdleTimeout = 60 * time.Second

// Service is the chat core shared by all transport adapters. It owns the
// registry, dispatches commands, supervises idle sessions, and coordinates
// drain on shutdown.
//
// Service is safe for concurrent use: adapters invoke it from one goroutine
// per connection.
type Service struct {
	registry    *Registry
	metrics     metrics.ChatMetrics
	idleTimeout time.Duration

	nextID   atomic.Uint64
	draining atomic.Bool
}

// NewService creates the chat core. idleTimeout <= 0 disables the idle
// supervisor. A nil chatMetrics disables metrics.
func NewService(idleTimeout time.Duration, chatMetrics metrics.ChatMetrics) *Service {
	if chatMetrics == nil {
		chatMetrics = metrics.NewNoopChatMetrics()
	}
	return &Service{
		registry:    NewRegistry(),
		metrics:     chatMetrics,
		idleTimeout: idleTimeout,
	}
}

// Registry exposes the session registry, mainly for WHO-style introspection
// and tests.
func (s *Service) Registry() *Registry {
	return s.registry
}

// IdleTimeout returns the configured inactivity window.
func (s *Service) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// Connect registers a new unauthenticated session for conn and arms its
// idle deadline. The returned session stays valid until Disconnect.
func (s *Service) Connect(conn Conn) *Session {
	sess := &Session{
		id:           s.nextID.Add(1),
		conn:         conn,
		lastActivity: time.Now(),
	}

	s.registry.Add(sess)
	s.metrics.SetActiveSessions(s.registry.Count())
	s.armIdle(sess)

	logger.Debug("session %d connected from %s", sess.id, conn.RemoteAddr())
	return sess
}

// Disconnect tears a session down: cancels the idle deadline, releases the
// username reservation, notifies remaining peers, removes the session from
// the registry and closes the transport. Idempotent; the second and later
// invocations are no-ops.
func (s *Service) Disconnect(sess *Session, reason string) {
	sess.mu.Lock()
	s.disconnectLocked(sess, reason)
}

// disconnectLocked completes teardown. Called with sess.mu held; releases it.
func (s *Service) disconnectLocked(sess *Session, reason string) {
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	sess.idleGen++
	if sess.idleTimer != nil {
		sess.idleTimer.Stop()
		sess.idleTimer = nil
	}
	name := sess.username
	wasAuthenticated := sess.authenticated
	sess.mu.Unlock()

	s.registry.Remove(sess)
	_ = sess.conn.Close()

	s.metrics.SetActiveSessions(s.registry.Count())
	if wasAuthenticated {
		s.metrics.SetOnlineUsers(s.registry.OnlineCount())
		if !s.draining.Load() {
			s.broadcastLine(nil, proto.InfoReply(name+" disconnected"), false)
		}
		logger.Info("session %d (%s) disconnected: %s", sess.id, name, reason)
	} else {
		logger.Debug("session %d disconnected before login: %s", sess.id, reason)
	}
}

// Shutdown drains every session: authenticated ones get a shutdown notice,
// then all connections are closed through the normal disconnect path.
// Per-user departure notices are suppressed while draining. Safe to call
// more than once; returns the number of sessions drained (0 on repeat calls).
func (s *Service) Shutdown() int {
	if !s.draining.CompareAndSwap(false, true) {
		return 0
	}

	sessions := s.registry.Snapshot()
	logger.Info("draining %d session(s)", len(sessions))

	for _, sess := range sessions {
		if sess.Authenticated() {
			if err := sess.send(proto.InfoReply("Server is shutting down")); err != nil {
				logger.Debug("shutdown notice to session %d failed: %v", sess.ID(), err)
			}
		}
	}
	for _, sess := range sessions {
		s.Disconnect(sess, "server shutdown")
	}
	return len(sessions)
}

// reply writes one line to a session, logging write failures. Transport
// faults never propagate to the dispatcher.
func (s *Service) reply(sess *Session, line string) {
	if err := sess.send(line); err != nil {
		logger.Debug("write to session %d (%s) failed: %v", sess.id, sess.RemoteAddr(), err)
	}
}

// broadcastLine delivers line to every live session from a registry
// snapshot, excluding exclude, optionally restricted to authenticated
// sessions. Delivery is best-effort: per-recipient failures are logged and
// do not abort the loop. Returns the number of successful deliveries.
func (s *Service) broadcastLine(exclude *Session, line string, authenticatedOnly bool) int {
	delivered := 0
	for _, sess := range s.registry.Snapshot() {
		if sess == exclude {
			continue
		}
		if authenticatedOnly && !sess.Authenticated() {
			continue
		}
		if sess.Closed() {
			continue
		}
		if err := sess.send(line); err != nil {
			logger.Debug("broadcast to session %d (%s) failed: %v", sess.id, sess.RemoteAddr(), err)
			continue
		}
		delivered++
	}
	return delivered
}

// touch records accepted activity: updates the activity timestamp and
// replaces the pending idle deadline.
func (s *Service) touch(sess *Session) {
	sess.mu.Lock()
	sess.lastActivity = time.Now()
	sess.mu.Unlock()
	s.armIdle(sess)
}

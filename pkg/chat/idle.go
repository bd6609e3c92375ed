package chat

import (
	"time"

	"github.com/avani23/linechat/internal/logger"
)

// armIdle schedules (or reschedules) the session's idle deadline. Each call
// bumps the generation counter and stops the previous timer, so at most one
// deadline is pending per session and a superseded deadline can never fire:
// the callback re-checks its generation under the session lock.
func (s *Service) armIdle(sess *Session) {
	if s.idleTimeout <= 0 {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return
	}
	sess.idleGen++
	gen := sess.idleGen
	if sess.idleTimer != nil {
		sess.idleTimer.Stop()
	}
	sess.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.idleExpired(sess, gen)
	})
}

// idleExpired runs in the timer goroutine. The generation check and the
// teardown happen under one acquisition of the session lock, so a reset
// that happened before the timer fired always suppresses the disconnect.
func (s *Service) idleExpired(sess *Session, gen uint64) {
	sess.mu.Lock()
	if sess.closed || sess.idleGen != gen {
		sess.mu.Unlock()
		return
	}

	logger.Info("session %d (%s) idle for %v, disconnecting",
		sess.id, sess.conn.RemoteAddr(), s.idleTimeout)
	s.metrics.RecordIdleDisconnect()
	s.disconnectLocked(sess, "idle timeout")
}

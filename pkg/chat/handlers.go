package chat

import (
	"time"

	"github.com/avani23/linechat/internal/logger"
	proto "github.com/avani23/linechat/internal/protocol/chat"
)

const outcomeOK = "ok"

// HandleLine dispatches one raw line from a session's connection. Blank
// lines are discarded; unrecognized verbs get ERR unknown-command; known
// verbs are routed to their handler. Verb matching is exact, so a message
// merely starting with a verb's letters never misroutes.
func (s *Service) HandleLine(sess *Session, raw string) {
	if sess.Closed() {
		return
	}

	cmd, ok := proto.Parse(raw)
	if !ok {
		if proto.Normalize(raw) == "" {
			return
		}
		s.reply(sess, proto.ErrorReply(proto.ErrUnknownCommand))
		s.metrics.RecordCommand("unknown", 0, proto.ErrUnknownCommand)
		return
	}

	start := time.Now()
	var outcome string
	switch cmd.Verb {
	case proto.VerbLogin:
		outcome = s.handleLogin(sess, cmd)
	case proto.VerbMsg:
		outcome = s.handleMsg(sess, cmd)
	case proto.VerbWho:
		outcome = s.handleWho(sess)
	case proto.VerbDM:
		outcome = s.handleDM(sess, cmd)
	case proto.VerbPing:
		outcome = s.handlePing(sess)
	}
	s.metrics.RecordCommand(string(cmd.Verb), time.Since(start), outcome)
}

// fail sends an ERR reply and returns the code as the command outcome.
func (s *Service) fail(sess *Session, code string, args ...string) string {
	s.reply(sess, proto.ErrorReply(code, args...))
	return code
}

// handleLogin reserves a username and promotes the session. A second LOGIN
// on an authenticated session is rejected outright: identity is immutable
// and the existing reservation is untouched.
func (s *Service) handleLogin(sess *Session, cmd proto.Command) string {
	if sess.Authenticated() {
		return s.fail(sess, proto.ErrAlreadyLoggedIn)
	}
	if len(cmd.Args) == 0 {
		return s.fail(sess, proto.ErrInvalidCommand)
	}

	// Text(0) joins non-empty Fields tokens, so with Args present the name
	// cannot be empty today. The guard keeps the protocol's invalid-username
	// code wired should tokenization ever change.
	name := cmd.Text(0)
	if name == "" {
		return s.fail(sess, proto.ErrInvalidUsername)
	}
	if !s.registry.TryReserve(name, sess) {
		return s.fail(sess, proto.ErrUsernameTaken)
	}

	sess.mu.Lock()
	if sess.closed {
		// Torn down while we were reserving. Give the name back.
		sess.mu.Unlock()
		s.registry.Release(name)
		return proto.ErrNotLoggedIn
	}
	sess.username = name
	sess.authenticated = true
	sess.mu.Unlock()

	s.metrics.SetOnlineUsers(s.registry.OnlineCount())
	s.touch(sess)
	s.reply(sess, proto.ReplyOK)

	logger.Info("session %d logged in as %q", sess.id, name)
	return outcomeOK
}

// handleMsg broadcasts text to every other authenticated session. The
// sender gets no echo and no delivery report; failed recipient writes are
// logged and skipped.
func (s *Service) handleMsg(sess *Session, cmd proto.Command) string {
	if !sess.Authenticated() {
		return s.fail(sess, proto.ErrNotLoggedIn)
	}
	if len(cmd.Args) == 0 {
		return s.fail(sess, proto.ErrInvalidCommand)
	}
	text := cmd.Text(0)
	if text == "" {
		return s.fail(sess, proto.ErrEmptyMessage)
	}

	delivered := s.broadcastLine(sess, proto.BroadcastReply(sess.Username(), text), true)
	s.metrics.RecordBroadcast(delivered)
	s.touch(sess)
	return outcomeOK
}

// handleWho sends the caller one USER line per authenticated session,
// including the caller, in registry snapshot order.
func (s *Service) handleWho(sess *Session) string {
	if !sess.Authenticated() {
		return s.fail(sess, proto.ErrNotLoggedIn)
	}

	s.touch(sess)
	for _, other := range s.registry.Snapshot() {
		if !other.Authenticated() {
			continue
		}
		s.reply(sess, proto.UserReply(other.Username()))
	}
	return outcomeOK
}

// handleDM delivers text to exactly one named session.
func (s *Service) handleDM(sess *Session, cmd proto.Command) string {
	if !sess.Authenticated() {
		return s.fail(sess, proto.ErrNotLoggedIn)
	}
	if len(cmd.Args) < 2 {
		return s.fail(sess, proto.ErrInvalidCommand)
	}

	target := cmd.Args[0]
	text := cmd.Text(1)
	if text == "" {
		return s.fail(sess, proto.ErrEmptyMessage)
	}
	if target == sess.Username() {
		return s.fail(sess, proto.ErrCannotMessageSelf)
	}

	recipient, ok := s.registry.FindByUsername(target)
	if !ok {
		return s.fail(sess, proto.ErrUserNotFound, target)
	}

	if err := recipient.send(proto.DirectReply(sess.Username(), text)); err != nil {
		logger.Debug("dm to session %d (%s) failed: %v",
			recipient.id, recipient.RemoteAddr(), err)
	} else {
		s.metrics.RecordDirectMessage()
	}
	s.touch(sess)
	return outcomeOK
}

// handlePing resets the idle deadline in any state.
func (s *Service) handlePing(sess *Session) string {
	s.touch(sess)
	s.reply(sess, proto.ReplyPong)
	return outcomeOK
}

package ws

import (
	"bytes"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avani23/linechat/internal/logger"
	proto "github.com/avani23/linechat/internal/protocol/chat"
	"github.com/avani23/linechat/internal/ratelimiter"
)

// frameConn adapts a websocket.Conn to the chat.Conn interface.
//
// Each outbound line becomes one text frame; the trailing newline the chat
// core appends is stripped because WebSocket frames are already delimited.
// gorilla/websocket allows only one concurrent writer, so writes are
// serialized with a mutex (the session's own write lock covers chat traffic,
// but Close sends a close frame from the disconnect path).
type frameConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       bool
}

func (c *frameConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := bytes.TrimSuffix(p, []byte("\n"))
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *frameConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	// Best-effort close handshake so browsers see a clean closure.
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

func (c *frameConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// serveConn runs the read loop for one WebSocket connection.
//
// Inbound text frames are fed through the same line framer the TCP transport
// uses, so a frame may carry one command, several newline-separated commands,
// or a command without a trailing newline.
func (s *Adapter) serveConn(wsConn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in WebSocket connection handler from %s: %v", wsConn.RemoteAddr(), r)
			_ = wsConn.Close()
		}
	}()

	if s.config.MaxMessageSize > 0 {
		wsConn.SetReadLimit(s.config.MaxMessageSize)
	}

	sess := s.service.Connect(&frameConn{conn: wsConn, writeTimeout: s.config.WriteTimeout})

	var limiter *ratelimiter.CommandLimiter
	if s.config.RateLimit.CommandsPerSecond > 0 {
		limiter = ratelimiter.New(s.config.RateLimit.CommandsPerSecond, s.config.RateLimit.Burst)
	}

	framer := proto.NewLineFramer(int(s.config.MaxMessageSize))

	for {
		messageType, payload, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.service.Disconnect(sess, "client closed connection")
			} else {
				logger.Debug("Read error from %s: %v", sess.RemoteAddr(), err)
				s.service.Disconnect(sess, "connection closed")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		// Frames are self-delimiting, so a missing trailing newline still
		// terminates the command.
		if len(payload) == 0 || payload[len(payload)-1] != '\n' {
			payload = append(payload, '\n')
		}

		lines, ferr := framer.Push(payload)
		for _, line := range lines {
			if limiter != nil && !limiter.Allow() {
				logger.Warn("Rate limit exceeded from %s, dropping command", sess.RemoteAddr())
				continue
			}
			s.service.HandleLine(sess, line)
		}
		if ferr != nil {
			logger.Warn("Oversized line from %s: %v", sess.RemoteAddr(), ferr)
			s.service.Disconnect(sess, "line too long")
			return
		}
	}
}

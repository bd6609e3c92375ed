package tcp

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/avani23/linechat/internal/logger"
	proto "github.com/avani23/linechat/internal/protocol/chat"
	"github.com/avani23/linechat/internal/ratelimiter"
)

// readBufferSize is the chunk size for socket reads. Command lines are short,
// so 4 KiB comfortably holds several lines per read.
const readBufferSize = 4096

// netConn adapts a net.Conn to the chat.Conn interface, applying the
// configured write deadline on every write so a stalled client cannot block
// broadcast fan-out.
type netConn struct {
	conn         net.Conn
	writeTimeout time.Duration
}

func (c *netConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(p)
}

func (c *netConn) Close() error {
	return c.conn.Close()
}

func (c *netConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// serveConn runs the read loop for one TCP connection.
//
// Bytes from the socket are reassembled into complete lines by a LineFramer
// and handed to the chat service one line at a time, in arrival order. The
// loop exits when the client disconnects, the read fails (including the
// server closing the socket during shutdown or idle disconnect), a line
// exceeds MaxLineLength, or the rate limiter is configured and trips.
//
// Every exit path funnels through Service.Disconnect, which is idempotent,
// so a connection closed by the idle supervisor or by Shutdown() while a
// read is pending is torn down exactly once.
func (s *Adapter) serveConn(raw net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in TCP connection handler from %s: %v", raw.RemoteAddr(), r)
			_ = raw.Close()
		}
	}()

	sess := s.service.Connect(&netConn{conn: raw, writeTimeout: s.config.WriteTimeout})

	var limiter *ratelimiter.CommandLimiter
	if s.config.RateLimit.CommandsPerSecond > 0 {
		limiter = ratelimiter.New(s.config.RateLimit.CommandsPerSecond, s.config.RateLimit.Burst)
	}

	framer := proto.NewLineFramer(s.config.MaxLineLength)
	buf := make([]byte, readBufferSize)

	for {
		n, err := raw.Read(buf)
		if n > 0 {
			lines, ferr := framer.Push(buf[:n])
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

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.service.Disconnect(sess, "client closed connection")
			case errors.Is(err, net.ErrClosed):
				// Socket already closed server-side (idle timeout or
				// shutdown); Disconnect is a no-op in that case.
				s.service.Disconnect(sess, "connection closed")
			default:
				logger.Debug("Read error from %s: %v", sess.RemoteAddr(), err)
				s.service.Disconnect(sess, "read error")
			}
			return
		}
	}
}

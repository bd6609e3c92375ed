// Package ratelimiter provides token-bucket command rate limiting for chat
// connections, wrapping golang.org/x/time/rate.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// CommandLimiter bounds how many command lines a single connection may
// submit. Tokens refill at a sustained per-second rate; burst is the bucket
// capacity, allowing short spikes above the sustained rate.
//
// Commands rejected by the limiter are dropped by the connection, never
// replied to; the connection itself stays open.
//
// All methods are safe for concurrent use.
type CommandLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing commandsPerSecond sustained with the given
// burst capacity. commandsPerSecond of 0 disables limiting.
func New(commandsPerSecond float64, burst int) *CommandLimiter {
	if commandsPerSecond <= 0 {
		return &CommandLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &CommandLimiter{limiter: rate.NewLimiter(rate.Limit(commandsPerSecond), burst)}
}

// Allow reports whether one command may proceed now, consuming a token on
// success. It never blocks; use Wait to throttle instead of reject.
func (l *CommandLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *CommandLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Tokens returns the tokens currently in the bucket. Monitoring only; the
// value may be stale the moment it is returned.
func (l *CommandLimiter) Tokens() float64 {
	return l.limiter.Tokens()
}

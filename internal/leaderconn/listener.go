package leaderconn

import (
	"context"
	"net"

	"golang.org/x/time/rate"
)

// RateLimitedListener wraps a net.Listener so Accept is gated by a
// token-bucket limiter, smoothing out connection storms before they
// ever reach the per-connection Serving loop.
type RateLimitedListener struct {
	net.Listener
	limiter *rate.Limiter
}

// NewRateLimitedListener wraps inner with a limiter permitting r
// accepts per second, bursting up to b.
func NewRateLimitedListener(inner net.Listener, r rate.Limit, b int) *RateLimitedListener {
	return &RateLimitedListener{Listener: inner, limiter: rate.NewLimiter(r, b)}
}

// Accept blocks until the limiter admits another connection, then
// delegates to the wrapped listener.
func (l *RateLimitedListener) Accept() (net.Conn, error) {
	if err := l.limiter.Wait(context.Background()); err != nil {
		return nil, err
	}
	return l.Listener.Accept()
}

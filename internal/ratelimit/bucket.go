// Package ratelimit implements the per-connection inbound frame-rate guard
// from SPEC_FULL.md's Supplement #3. Adapted from the shape of
// adred-codev-ws_poc/ws's internal/single/limits/rate_limiter.go (one
// token-bucket limiter per connection, burst capacity plus a sustained
// refill rate) but built on golang.org/x/time/rate instead of a hand-rolled
// bucket, matching the rest of the pack's preference for the ecosystem
// implementation over a bespoke one.
package ratelimit

import "golang.org/x/time/rate"

// Guard wraps *rate.Limiter for one connection's inbound frames.
type Guard struct {
	limiter *rate.Limiter
}

// NewGuard creates a limiter starting at full burst capacity: burst is the
// instantaneous allowance, perSecond is the sustained frames/second rate.
func NewGuard(perSecond float64, burst int) *Guard {
	return &Guard{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one inbound frame may proceed right now.
func (g *Guard) Allow() bool {
	return g.limiter.Allow()
}

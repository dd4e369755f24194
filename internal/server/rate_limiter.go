// Package server implements per-connection message throttling that protects
// the other clients from a flooding peer.
package server

import (
	"math"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/nexus/internal/config"
)

type rateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter returns nil when limiting is disabled; a nil limiter allows
// everything.
func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	if !cfg.Enabled() {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.MessagesPerSecond))
	}
	if burst <= 0 {
		burst = 1
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), burst),
	}
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}

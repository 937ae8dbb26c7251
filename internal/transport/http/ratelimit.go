package http

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter caps how many messages one connection may send per minute.
// A nil limiter allows everything.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	every := rate.Every(time.Minute / time.Duration(perMinute))
	return &rateLimiter{limiter: rate.NewLimiter(every, perMinute)}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

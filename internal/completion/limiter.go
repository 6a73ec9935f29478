package completion

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/analyst/config"
)

// NewLimiter builds the process-wide limiter for outbound calls, or nil when
// rate limiting is disabled.
func NewLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// Limited waits for a limiter token before each call.
type Limited struct {
	next Service
	lim  *rate.Limiter
}

// NewLimited wraps next with lim. A nil limiter returns next unchanged.
func NewLimited(next Service, lim *rate.Limiter) Service {
	if lim == nil {
		return next
	}
	return &Limited{next: next, lim: lim}
}

// Complete implements Service.
func (l *Limited) Complete(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, &ServiceError{Op: "rate limit", Err: err}
	}
	return l.next.Complete(ctx, inputs, outputs)
}

package dispatch

import (
	"context"
	"errors"
	"time"

	"shawbot/internal/publish"
)

const (
	defaultBackoffBase    = 30 * time.Second
	defaultBackoffMax     = 30 * time.Minute
	defaultPublishTimeout = 20 * time.Second
)

// backoffDelay is base*2^(failures-1) capped at max. A server-provided retry
// hint wins when it is longer.
func backoffDelay(base, max time.Duration, failures int, err error) time.Duration {
	d := base
	for i := 1; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if hint, ok := publish.RetryAfterHint(err); ok && hint > d {
		d = hint
	}
	return d
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, publish.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

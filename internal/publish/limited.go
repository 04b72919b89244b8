package publish

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited caps p at perHour publishes. Over the cap, Publish fails fast with
// ErrRateLimited carrying the wait as a RetryAfter hint; nothing is sent.
func Limited(p Publisher, perHour int) Publisher {
	if perHour <= 0 {
		return p
	}
	every := time.Hour / time.Duration(perHour)
	return &limited{next: p, lim: rate.NewLimiter(rate.Every(every), 1)}
}

type limited struct {
	next Publisher
	lim  *rate.Limiter
}

func (l *limited) Publish(ctx context.Context, text string) error {
	r := l.lim.Reserve()
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return RetryAfter(ErrRateLimited, d)
	}
	return l.next.Publish(ctx, text)
}

// Package publish is the outbound boundary: a Publisher posts one fragment
// and reports success or a failure reason.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, text string) error
}

// Func adapts a plain function to Publisher.
type Func func(ctx context.Context, text string) error

func (f Func) Publish(ctx context.Context, text string) error { return f(ctx, text) }

var ErrRateLimited = errors.New("publish rate limited")

// RetryAfter attaches a suggested delay before the next attempt, e.g. from
// a 429 response.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterHint extracts a delay attached with RetryAfter.
func RetryAfterHint(err error) (time.Duration, bool) {
	var ra retryAfterError
	if errors.As(err, &ra) {
		return ra.after, true
	}
	return 0, false
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string { return fmt.Sprintf("retry after %s: %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error { return e.err }

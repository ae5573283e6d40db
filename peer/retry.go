package peer

import (
	"errors"
	"time"
)

// ErrPermanentlyDown is reported once every reconnect attempt is exhausted.
// The connection is not retried further.
var ErrPermanentlyDown = errors.New("connection permanently down: retry attempts exhausted")

// RetryPolicy bounds reconnection of the signaling connection: exponential
// backoff from BaseDelay toward the MaxDelay ceiling, at most MaxAttempts
// tries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    5 * time.Second,
}

// Delay returns the wait before the given attempt. Attempts are numbered
// from 1; the first attempt waits BaseDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	d := p.BaseDelay << (attempt - 1)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the given attempt count has used up the policy.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

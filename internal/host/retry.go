package host

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v66/github"
)

// MaxRateLimitRetries is how many extra attempts a rate-limited call gets.
const MaxRateLimitRetries = 2

// defaultSecondaryWait applies when a secondary rate-limit response carries
// no Retry-After header.
const defaultSecondaryWait = time.Minute

// Rate-limit categories.
const (
	categoryPrimary   = "primary"
	categorySecondary = "secondary"
)

// backendDelay is a backoff.BackOff that waits exactly as long as the last
// rate-limit response asked for.
type backendDelay struct {
	next time.Duration
}

func (b *backendDelay) NextBackOff() time.Duration { return b.next }
func (b *backendDelay) Reset()                     { b.next = 0 }

// classifyRateLimit reports whether err is a rate-limit response and how
// long the backend asked us to wait.
func classifyRateLimit(err error, now time.Time) (category string, wait time.Duration, ok bool) {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		wait = rle.Rate.Reset.Time.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return categoryPrimary, wait, true
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		wait = abuse.GetRetryAfter()
		if abuse.RetryAfter == nil {
			wait = defaultSecondaryWait
		}
		return categorySecondary, wait, true
	}
	return "", 0, false
}

// retrier retries calls that fail with a rate-limit response.
type retrier struct {
	now     func() time.Time
	timer   backoff.Timer // nil uses a real timer
	onRetry func(category string, wait time.Duration, err error)
}

// do runs fn, retrying up to MaxRateLimitRetries times after the delay the
// backend specified. Any other error is returned immediately. After the
// last retry the rate-limit error itself is returned.
func (r *retrier) do(ctx context.Context, fn func() error) error {
	delay := &backendDelay{}
	policy := backoff.WithContext(backoff.WithMaxRetries(delay, MaxRateLimitRetries), ctx)

	var category string
	attempt := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		cat, wait, ok := classifyRateLimit(err, r.clock())
		if !ok {
			return backoff.Permanent(err)
		}
		category = cat
		delay.next = wait
		return err
	}
	notify := func(err error, wait time.Duration) {
		if r.onRetry != nil {
			r.onRetry(category, wait, err)
		}
	}
	return backoff.RetryNotifyWithTimer(attempt, policy, notify, r.timer)
}

func (r *retrier) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

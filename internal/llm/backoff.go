package llm

import (
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// backoffFor computes the wait duration before retrying a
// Classification-transient failure (§7), stepping a fresh exponential
// backoff attempt-many times so repeated failures widen the delay, then
// clamping up to a server-supplied retryAfterHint (an RFC-ish duration or
// second count) when the provider gave one.
func backoffFor(attempt int, retryAfterHint string) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 2 * time.Minute
	b.MaxElapsedTime = 0 // caller owns the retry budget, not the backoff policy

	d := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}

	if hint, ok := parseRetryAfter(retryAfterHint); ok && hint > d {
		return hint
	}
	return d
}

func parseRetryAfter(hint string) (time.Duration, bool) {
	if hint == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(hint); err == nil {
		return d, true
	}
	if secs, err := strconv.ParseInt(hint, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

package punish

import (
	"math/rand"
	"time"
)

const (
	// MaxAttempts bounds transient retries; tasks are self-limiting
	// rather than cancellable.
	MaxAttempts = 5

	backoffBase   = 1200 * time.Millisecond
	backoffJitter = 250 * time.Millisecond
)

// BackoffDelay returns how long to wait before retry number attempt
// (1-based). A server-provided retry-after always wins; otherwise the
// delay doubles from the seed with random jitter on top, so the
// deterministic part is non-decreasing across attempts.
func BackoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffBase << (attempt - 1)
	return delay + time.Duration(rand.Int63n(int64(backoffJitter)))
}

package distribution

import "time"

const (
	// MaxRetries is the ceiling on retry attempts for one queue item.
	MaxRetries = 3
	// RetryBatchSize caps how many due items a single run processes.
	RetryBatchSize = 20
)

// Backoff returns the delay before retry attempt n: 2^n minutes, so
// attempt 1 waits 2 minutes, attempt 2 waits 4, attempt 3 waits 8.
// Deterministic, no jitter.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<uint(attempt)) * time.Minute
}

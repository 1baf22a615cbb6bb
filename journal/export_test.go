package journal

import "time"

// Backoff exposes the unjittered retry delay to tests.
func (r *RetryingStore) Backoff(attempt int) time.Duration {
	return r.backoff(attempt)
}

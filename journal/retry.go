package journal

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 20 * time.Millisecond
	defaultJitterFactor = 0.3

	// the exponent and the delay are bounded so that long retry schedules cannot overflow
	maxBackoffShift = 30
	maxBackoffDelay = time.Minute

	// RetriesMetric counts store calls that failed and are attempted again.
	RetriesMetric = "circulation_journal_retries_total"

	// RetriesExhaustedMetric counts store calls that failed on their last attempt.
	RetriesExhaustedMetric = "circulation_journal_retries_exhausted_total"

	labelOperation = "operation"
	labelAttempt   = "attempt"

	operationAppend = "append"
	operationQuery  = "query"
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryingStore retries failed Store calls with exponential backoff.
//
// Appending the same batch twice must be harmless for the wrapped store; postgresjournal skips
// positions that are already journaled, MemoryJournal rejects the batch with ErrDuplicatePosition,
// which is never retried.
//
// Retry schedule (default): 0 ms, 20 ms, 40 ms (with 30% jitter). Delays double up to one minute.
type RetryingStore struct {
	next             Store
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	retryIf          func(error) bool
	metricsCollector circulation.MetricsCollector
}

// RetryOption configures a RetryingStore using the functional options pattern.
type RetryOption func(*RetryingStore) error

// WithMaxAttempts sets the maximum number of attempts, the first one included.
func WithMaxAttempts(attempts int) RetryOption {
	return func(r *RetryingStore) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		r.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, etc.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(r *RetryingStore) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		r.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the share of the backoff delay added as random jitter.
func WithJitterFactor(factor float64) RetryOption {
	return func(r *RetryingStore) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		r.jitterFactor = factor

		return nil
	}
}

// WithRetryIf replaces the check that decides whether an error is worth another attempt.
// Context errors and ErrDuplicatePosition are never retried.
func WithRetryIf(retryable func(error) bool) RetryOption {
	return func(r *RetryingStore) error {
		if retryable == nil {
			return circulation.ErrNilCollaborator
		}

		r.retryIf = retryable

		return nil
	}
}

// WithRetryMetrics counts retries and exhausted retries.
func WithRetryMetrics(collector circulation.MetricsCollector) RetryOption {
	return func(r *RetryingStore) error {
		if collector == nil {
			return circulation.ErrNilCollaborator
		}

		r.metricsCollector = collector

		return nil
	}
}

// NewRetryingStore wraps next.
func NewRetryingStore(next Store, options ...RetryOption) (*RetryingStore, error) {
	if next == nil {
		return nil, ErrNilStore
	}

	r := &RetryingStore{
		next:         next,
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
		retryIf:      func(error) bool { return true },
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Append appends through the wrapped store.
func (r *RetryingStore) Append(ctx context.Context, entries ...Entry) error {
	return r.retry(ctx, operationAppend, func(ctx context.Context) error {
		return r.next.Append(ctx, entries...)
	})
}

// Query queries through the wrapped store.
func (r *RetryingStore) Query(ctx context.Context, filter Filter) (Entries, error) {
	var entries Entries
	err := r.retry(ctx, operationQuery, func(ctx context.Context) error {
		var queryErr error
		entries, queryErr = r.next.Query(ctx, filter)
		return queryErr
	})

	return entries, err
}

func (r *RetryingStore) retry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			delay += time.Duration(rand.Float64() * float64(delay) * r.jitterFactor) //nolint:gosec // jitter only

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !r.isRetryable(lastErr) {
			return lastErr
		}

		if attempt < r.maxAttempts-1 {
			r.incrementCounter(RetriesMetric, map[string]string{labelOperation: operation, labelAttempt: strconv.Itoa(attempt + 1)})
		}
	}

	r.incrementCounter(RetriesExhaustedMetric, map[string]string{labelOperation: operation})

	return lastErr
}

// backoff is the delay before the given attempt without jitter, doubling from baseDelay up to maxBackoffDelay.
func (r *RetryingStore) backoff(attempt int) time.Duration {
	shift := min(attempt-1, maxBackoffShift)
	if r.baseDelay > maxBackoffDelay>>shift {
		return maxBackoffDelay
	}

	return r.baseDelay << shift
}

func (r *RetryingStore) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDuplicatePosition) {
		return false
	}

	return r.retryIf(err)
}

func (r *RetryingStore) incrementCounter(metric string, labels map[string]string) {
	if r.metricsCollector != nil {
		r.metricsCollector.IncrementCounter(metric, labels)
	}
}

package circulation

import (
	"strings"
	"time"
)

// HandOffPolicy decides what Return does when the next waiter cannot borrow more.
type HandOffPolicy int

const (
	// HandOffDropIneligible removes the first waiter when it is at its limit and leaves the item available.
	HandOffDropIneligible HandOffPolicy = iota

	// HandOffTryNext drops ineligible waiters until an eligible one is found or the wait-list is empty.
	HandOffTryNext
)

func (p HandOffPolicy) String() string {
	switch p {
	case HandOffDropIneligible:
		return "drop_ineligible"
	case HandOffTryNext:
		return "try_next"
	default:
		return "unknown"
	}
}

// ParseHandOffPolicy accepts the names produced by HandOffPolicy.String.
func ParseHandOffPolicy(name string) (HandOffPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "drop_ineligible":
		return HandOffDropIneligible, nil
	case "try_next":
		return HandOffTryNext, nil
	default:
		return 0, ValidationError{Field: "hand_off_policy", Reason: "must be drop_ineligible or try_next"}
	}
}

// DefaultIssuerName is the issuer named in issue notices unless WithIssuerName is used.
const DefaultIssuerName = "Library"

// Option defines a functional option for configuring an Engine.
type Option func(*Engine) error

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return ErrNilCollaborator
		}

		e.now = now

		return nil
	}
}

// WithLogger sets the logger for the Engine.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine. It takes precedence over WithLogger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
func WithTracing(collector TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}

// WithNotifier sets the collaborator that receives issue and overdue notices.
func WithNotifier(notifier Notifier) Option {
	return func(e *Engine) error {
		if notifier == nil {
			return ErrNilCollaborator
		}

		e.notifier = notifier

		return nil
	}
}

// WithJournal sets the collaborator that receives committed events.
func WithJournal(journal Journal) Option {
	return func(e *Engine) error {
		if journal == nil {
			return ErrNilCollaborator
		}

		e.journal = journal

		return nil
	}
}

// WithPolicies replaces DefaultPolicies.
func WithPolicies(policies PolicyTable) Option {
	return func(e *Engine) error {
		if err := policies.validate(); err != nil {
			return err
		}

		e.policies = make(PolicyTable, len(policies))
		for category, policy := range policies {
			e.policies[category] = policy
		}

		return nil
	}
}

// WithHandOffPolicy selects the Return behavior for ineligible waiters.
func WithHandOffPolicy(policy HandOffPolicy) Option {
	return func(e *Engine) error {
		if policy != HandOffDropIneligible && policy != HandOffTryNext {
			return ValidationError{Field: "hand_off_policy", Reason: "is unknown"}
		}

		e.handOffPolicy = policy

		return nil
	}
}

// WithIssuerName sets the issuer named in issue notices, usually the library's name.
func WithIssuerName(name string) Option {
	return func(e *Engine) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return ValidationError{Field: "issuer_name", Reason: "must not be blank"}
		}

		e.issuerName = name

		return nil
	}
}

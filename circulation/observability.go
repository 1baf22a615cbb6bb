package circulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Logger interface for operational logging, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace correlation.
// *slog.Logger satisfies both Logger and ContextualLogger.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector interface for collecting engine performance and operational metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods.
// The engine uses them when available and falls back to MetricsCollector otherwise.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector interface for collecting distributed tracing information from engine operations.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

const (
	// OperationDurationMetric tracks engine operation duration.
	OperationDurationMetric = "circulation_operation_duration_seconds"

	// OperationsMetric counts engine operations by operation, status and error type.
	OperationsMetric = "circulation_operations_total"

	// HandOffsMetric counts automatic re-issues from a wait-list.
	HandOffsMetric = "circulation_handoffs_total"

	// NotificationsFailedMetric counts notifier calls that returned an error or panicked.
	NotificationsFailedMetric = "circulation_notifications_failed_total"

	// ItemsOnLoanMetric is the number of items on loan after an operation.
	ItemsOnLoanMetric = "circulation_items_on_loan"
)

// MetricLabels lists the label names each engine metric can carry. Labels absent from a call are empty.
var MetricLabels = map[string][]string{
	OperationDurationMetric:   {LabelOperation, LabelStatus, LabelErrorType},
	OperationsMetric:          {LabelOperation, LabelStatus, LabelErrorType},
	HandOffsMetric:            {LabelOperation},
	NotificationsFailedMetric: {LabelNoticeKind},
	ItemsOnLoanMetric:         {},
}

// MetricHelp returns the description of an engine metric, or the name itself for unknown metrics.
func MetricHelp(metric string) string {
	switch metric {
	case OperationDurationMetric:
		return "Duration of circulation operations in seconds."
	case OperationsMetric:
		return "Circulation operations by outcome."
	case HandOffsMetric:
		return "Items handed from a wait-list to the next holder."
	case NotificationsFailedMetric:
		return "Notices the notifier failed to deliver."
	case ItemsOnLoanMetric:
		return "Items currently on loan."
	default:
		return metric
	}
}

const (
	StatusSuccess = "success"
	StatusError   = "error"

	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelNoticeKind = "notice_kind"
)

const (
	OperationRegisterItem     = "register_item"
	OperationDeregisterItem   = "deregister_item"
	OperationRegisterHolder   = "register_holder"
	OperationDeregisterHolder = "deregister_holder"
	OperationUpdateItem       = "update_item"
	OperationUpdateHolder     = "update_holder"
	OperationIssue            = "issue"
	OperationReturn           = "return"
	OperationReserve          = "reserve"
	OperationListHolders      = "list_holders"
	OperationOverdueReport    = "overdue_report"
	OperationScanOverdue      = "scan_overdue"
)

const (
	spanNamePrefix = "circulation."

	logMsgOperationSucceeded = "circulation operation succeeded"
	logMsgOperationRejected  = "circulation operation rejected"
	logMsgInvariantViolated  = "circulation invariant violated"
	logMsgNotifyFailed       = "notification failed"
	logMsgNotifyPanicked     = "notifier panicked"
	logMsgJournalFailed      = "journal append failed"
	logMsgJournalPanicked    = "journal panicked"
	logMsgReservationDropped = "reservation dropped"
	logMsgHandOff            = "item handed off to next waiter"
	logMsgOverdueScan        = "overdue scan finished"

	logAttrOperation  = "operation"
	logAttrDurationMS = "duration_ms"
	logAttrError      = "error"
	logAttrErrorType  = "error_type"
	logAttrItemID     = "item_id"
	logAttrHolderID   = "holder_id"
	logAttrReason     = "reason"
	logAttrEventCount = "event_count"
	logAttrNotice     = "notice_kind"
	logAttrOverdue    = "overdue_count"
	logAttrNotified   = "notified_count"

	noticeKindIssued  = "issued"
	noticeKindOverdue = "overdue"
)

// ErrorType classifies an engine error into a low-cardinality label.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, ErrAlreadyIssued):
		return "already_issued"
	case errors.Is(err, ErrBorrowLimitExceeded):
		return "borrow_limit_exceeded"
	case errors.Is(err, ErrNotIssuedToHolder):
		return "not_issued_to_holder"
	case errors.Is(err, ErrReservationNotNeeded):
		return "reservation_not_needed"
	case errors.Is(err, ErrResourceBusy):
		return "resource_busy"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnknownCategory):
		return "unknown_category"
	default:
		return "other"
	}
}

// operationObservation carries one operation's span and start time.
type operationObservation struct {
	operation string
	started   time.Time
	span      SpanContext
}

func (e *Engine) startOperation(ctx context.Context, operation string, attrs map[string]string) (context.Context, operationObservation) {
	obs := operationObservation{operation: operation, started: time.Now()}

	if e.tracingCollector == nil {
		return ctx, obs
	}

	spanAttrs := map[string]string{LabelOperation: operation}
	for k, v := range attrs {
		spanAttrs[k] = v
	}

	ctx, obs.span = e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, spanAttrs)

	return ctx, obs
}

// finishOperation records metrics, finishes the span and logs the outcome.
func (e *Engine) finishOperation(ctx context.Context, obs operationObservation, err error, args ...any) {
	duration := time.Since(obs.started)
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}

	labels := map[string]string{LabelOperation: obs.operation, LabelStatus: status}
	if err != nil {
		labels[LabelErrorType] = ErrorType(err)
	}

	e.recordDuration(ctx, OperationDurationMetric, duration, labels)
	e.incrementCounter(ctx, OperationsMetric, labels)

	if e.tracingCollector != nil && obs.span != nil {
		spanAttrs := map[string]string{logAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration))}
		if err != nil {
			spanAttrs[logAttrError] = err.Error()
			spanAttrs[logAttrErrorType] = ErrorType(err)
		}

		e.tracingCollector.FinishSpan(obs.span, status, spanAttrs)
	}

	logArgs := []any{logAttrOperation, obs.operation, logAttrDurationMS, toMilliseconds(duration)}
	logArgs = append(logArgs, args...)

	switch {
	case err == nil:
		e.logDebug(ctx, logMsgOperationSucceeded, logArgs...)
	case errors.Is(err, ErrInvariantViolation):
		e.logError(ctx, logMsgInvariantViolated, err, logArgs...)
	default:
		logArgs = append(logArgs, logAttrErrorType, ErrorType(err), logAttrError, err.Error())
		e.logInfo(ctx, logMsgOperationRejected, logArgs...)
	}
}

func (e *Engine) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
	} else {
		e.metricsCollector.RecordDuration(metric, duration, labels)
	}
}

func (e *Engine) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		e.metricsCollector.IncrementCounter(metric, labels)
	}
}

func (e *Engine) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
	} else {
		e.metricsCollector.RecordValue(metric, value, labels)
	}
}

func (e *Engine) logDebug(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	} else if e.logger != nil {
		e.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

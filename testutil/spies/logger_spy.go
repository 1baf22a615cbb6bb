package spies

import (
	"context"
	"fmt"
	"sync"
)

// Log levels captured by LoggerSpy.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogRecord is one captured log call. Context is nil for calls without context.
type LogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// Attr returns the value logged under key.
func (r LogRecord) Attr(key string) (any, bool) {
	for idx := 0; idx+1 < len(r.Args); idx += 2 {
		if fmt.Sprint(r.Args[idx]) == key {
			return r.Args[idx+1], true
		}
	}

	return nil, false
}

// LoggerSpy captures Logger and ContextualLogger calls.
type LoggerSpy struct {
	mu      sync.Mutex
	records []LogRecord
}

// NewLoggerSpy creates an empty LoggerSpy.
func NewLoggerSpy() *LoggerSpy {
	return &LoggerSpy{}
}

// Debug implements Logger.
func (s *LoggerSpy) Debug(msg string, args ...any) { s.record(nil, LevelDebug, msg, args) }

// Info implements Logger.
func (s *LoggerSpy) Info(msg string, args ...any) { s.record(nil, LevelInfo, msg, args) }

// Warn implements Logger.
func (s *LoggerSpy) Warn(msg string, args ...any) { s.record(nil, LevelWarn, msg, args) }

// Error implements Logger.
func (s *LoggerSpy) Error(msg string, args ...any) { s.record(nil, LevelError, msg, args) }

// DebugContext implements ContextualLogger.
func (s *LoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, LevelDebug, msg, args)
}

// InfoContext implements ContextualLogger.
func (s *LoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, LevelInfo, msg, args)
}

// WarnContext implements ContextualLogger.
func (s *LoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, LevelWarn, msg, args)
}

// ErrorContext implements ContextualLogger.
func (s *LoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, LevelError, msg, args)
}

func (s *LoggerSpy) record(ctx context.Context, level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, LogRecord{
		Level:   level,
		Message: msg,
		Args:    append([]any(nil), args...),
		Context: ctx,
	})
}

// Records returns a copy of all captured records.
func (s *LoggerSpy) Records() []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]LogRecord(nil), s.records...)
}

// RecordsAt returns the captured records of one level.
func (s *LoggerSpy) RecordsAt(level string) []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []LogRecord
	for _, r := range s.records {
		if r.Level == level {
			result = append(result, r)
		}
	}

	return result
}

// HasLog reports whether a message was logged at the level.
func (s *LoggerSpy) HasLog(level, message string) bool {
	for _, r := range s.RecordsAt(level) {
		if r.Message == message {
			return true
		}
	}

	return false
}

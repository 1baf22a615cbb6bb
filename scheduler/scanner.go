// Package scheduler runs the overdue scan of a circulation engine on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	logMsgScanFinished = "overdue scan finished"
	logMsgScanFailed   = "overdue scan failed"
	logMsgScanSkipped  = "overdue scan skipped, previous run still active"
	logMsgStarted      = "overdue scanner started"
	logAttrNotified    = "notified"
	logAttrDurationMS  = "duration_ms"
	logAttrError       = "error"
	logAttrSchedule    = "schedule"
)

var (
	ErrInvalidSchedule = errors.New("invalid cron schedule")
	ErrNilScanner      = errors.New("scanner must not be nil")
	ErrAlreadyStarted  = errors.New("scanner already started")
)

// Scanner runs one overdue scan. *circulation.Engine satisfies it.
type Scanner interface {
	ScanOverdue(ctx context.Context) (int, error)
}

// OverdueScanner triggers Scanner.ScanOverdue on a cron schedule. The schedule accepts an optional
// leading seconds field and descriptors like "@hourly" or "@every 10m". A run still active when the
// next one is due makes the next one skip.
type OverdueScanner struct {
	scanner  Scanner
	schedule string
	timeout  time.Duration
	logger   circulation.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	started bool
	runCtx  context.Context
}

// Option configures an OverdueScanner.
type Option func(*OverdueScanner) error

// WithTimeout bounds every scheduled run.
func WithTimeout(timeout time.Duration) Option {
	return func(s *OverdueScanner) error {
		if timeout < 0 {
			return fmt.Errorf("timeout must not be negative: %s", timeout)
		}

		s.timeout = timeout

		return nil
	}
}

// WithLogger sets the logger for run results and cron diagnostics.
func WithLogger(logger circulation.Logger) Option {
	return func(s *OverdueScanner) error {
		s.logger = logger
		return nil
	}
}

// NewOverdueScanner validates the schedule and registers the scan. Nothing runs before Start.
func NewOverdueScanner(scanner Scanner, schedule string, options ...Option) (*OverdueScanner, error) {
	if scanner == nil {
		return nil, ErrNilScanner
	}

	s := &OverdueScanner{
		scanner:  scanner,
		schedule: schedule,
		runCtx:   context.Background(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	log := cronLogger{logger: s.logger}

	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(log),
		cron.WithChain(cron.SkipIfStillRunning(log)),
	)

	if _, err := s.cron.AddFunc(schedule, s.scheduledRun); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, schedule, err)
	}

	return s, nil
}

// Start begins scheduling. Scheduled runs use ctx and stop notifying once it is done.
func (s *OverdueScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.started = true
	s.runCtx = ctx
	s.cron.Start()

	if s.logger != nil {
		s.logger.Info(logMsgStarted, logAttrSchedule, s.schedule)
	}

	return nil
}

// Stop stops scheduling and waits for an active run to finish or ctx to be done.
func (s *OverdueScanner) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns the next scheduled run, zero before Start.
func (s *OverdueScanner) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}

	return entries[0].Next
}

// RunOnce runs one scan immediately and logs its outcome.
func (s *OverdueScanner) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	notified, err := s.scanner.ScanOverdue(ctx)
	duration := time.Since(start)

	if s.logger != nil {
		if err != nil {
			s.logger.Warn(logMsgScanFailed, logAttrNotified, notified, logAttrError, err.Error())
		} else {
			s.logger.Info(logMsgScanFinished, logAttrNotified, notified, logAttrDurationMS, duration.Milliseconds())
		}
	}

	return notified, err
}

func (s *OverdueScanner) scheduledRun() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, _ = s.RunOnce(ctx)
}

// cronLogger adapts circulation.Logger to cron.Logger.
type cronLogger struct {
	logger circulation.Logger
}

// Info receives cron's scheduling chatter at debug level, except skipped runs.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger == nil {
		return
	}

	if msg == "skip" {
		l.logger.Warn(logMsgScanSkipped, keysAndValues...)
		return
	}

	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.logger == nil {
		return
	}

	l.logger.Error(msg, append(keysAndValues, logAttrError, err.Error())...)
}

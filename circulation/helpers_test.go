package circulation_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/testutil/spies"
)

var phoneSeq atomic.Int64

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	engine   *circulation.Engine
	clock    *testClock
	notifier *spies.NotifierSpy
	journal  *spies.JournalSpy
	logger   *spies.LoggerSpy
	metrics  *spies.MetricsCollectorSpy
	tracing  *spies.TracingCollectorSpy
}

func givenEngine(t testingT, options ...circulation.Option) fixture {
	t.Helper()

	f := fixture{
		clock:    newTestClock(),
		notifier: spies.NewNotifierSpy(),
		journal:  spies.NewJournalSpy(),
		logger:   spies.NewLoggerSpy(),
		metrics:  spies.NewMetricsCollectorSpy(),
		tracing:  spies.NewTracingCollectorSpy(),
	}

	all := []circulation.Option{
		circulation.WithClock(f.clock.Now),
		circulation.WithIssuerName("City Library"),
		circulation.WithNotifier(f.notifier),
		circulation.WithJournal(f.journal),
		circulation.WithContextualLogger(f.logger),
		circulation.WithMetrics(f.metrics),
		circulation.WithTracing(f.tracing),
	}
	all = append(all, options...)

	engine, err := circulation.NewEngine(all...)
	require.NoError(t, err)
	f.engine = engine

	return f
}

func givenItem(t testingT, f fixture, title string) circulation.ItemView {
	t.Helper()

	item, err := f.engine.RegisterItem(context.Background(), uuid.Nil, circulation.ItemDetails{
		Title:    title,
		Creator:  "Ursula K. Le Guin",
		Category: "Fiction",
	})
	require.NoError(t, err)

	return item
}

func givenHolder(t testingT, f fixture, category circulation.Category) circulation.HolderView {
	t.Helper()

	n := phoneSeq.Add(1)
	holder, err := f.engine.RegisterHolder(context.Background(), uuid.Nil, circulation.Contact{
		Name:  fmt.Sprintf("Reader %d", n),
		Email: fmt.Sprintf("reader%d@example.org", n),
		Phone: fmt.Sprintf("+1415%07d", n),
	}, category)
	require.NoError(t, err)

	return holder
}

func givenIssued(t testingT, f fixture, itemID, holderID uuid.UUID) circulation.ItemView {
	t.Helper()

	item, err := f.engine.Issue(context.Background(), itemID, holderID)
	require.NoError(t, err)

	return item
}

func givenReserved(t testingT, f fixture, itemID, holderID uuid.UUID) {
	t.Helper()

	_, err := f.engine.Reserve(context.Background(), itemID, holderID)
	require.NoError(t, err)
}

func whenEffectsDelivered(t testingT, f fixture) {
	t.Helper()

	require.NoError(t, f.engine.Flush(context.Background()))
}

func findItem(t testingT, f fixture, id uuid.UUID) circulation.ItemView {
	t.Helper()

	item, ok := f.engine.Catalog().FindItem(id)
	require.True(t, ok)

	return item
}

func findHolder(t testingT, f fixture, id uuid.UUID) circulation.HolderView {
	t.Helper()

	holder, ok := f.engine.Catalog().FindHolder(id)
	require.True(t, ok)

	return holder
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/config"
	"github.com/AntonStoeckl/library-circulation-go/journal"
	"github.com/AntonStoeckl/library-circulation-go/journal/postgresjournal"
	"github.com/AntonStoeckl/library-circulation-go/notify"
	"github.com/AntonStoeckl/library-circulation-go/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/promadapters"
	"github.com/AntonStoeckl/library-circulation-go/scheduler"
)

const (
	serviceName        = "circulationd"
	instrumentationLib = "github.com/AntonStoeckl/library-circulation-go"
	journalSource      = "circulationd"
	metricsPath        = "/metrics"
	readHeaderTimeout  = 5 * time.Second
)

type shutdownFunc func(ctx context.Context) error

// daemon owns the engine and every collaborator serve builds around it.
type daemon struct {
	logger        *slog.Logger
	engine        *circulation.Engine
	scanner       *scheduler.OverdueScanner
	metricsServer *http.Server
	metricsAddr   string
	shutdowns     []shutdownFunc
}

// buildDaemon wires the engine from cfg. On failure, everything built so far is released.
func buildDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger, traceOut io.Writer) (d *daemon, err error) {
	d = &daemon{logger: logger}
	defer func() {
		if err != nil {
			err = errors.Join(err, d.release(context.Background()))
			d = nil
		}
	}()

	policies, err := cfg.PolicyTable()
	if err != nil {
		return d, err
	}

	handOff, err := cfg.HandOff()
	if err != nil {
		return d, err
	}

	options := []circulation.Option{
		circulation.WithContextualLogger(logger),
		circulation.WithIssuerName(cfg.LibraryName),
		circulation.WithPolicies(policies),
		circulation.WithHandOffPolicy(handOff),
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return d, fmt.Errorf("building telemetry resource: %w", err)
	}

	metrics, err := d.buildMetrics(ctx, cfg.Metrics, res)
	if err != nil {
		return d, err
	}
	options = append(options, circulation.WithMetrics(metrics))

	if cfg.Tracing.Enabled {
		tracing, tracingErr := d.buildTracing(ctx, cfg.Tracing, res, traceOut)
		if tracingErr != nil {
			return d, tracingErr
		}
		options = append(options, circulation.WithTracing(tracing))
	}

	store, err := d.buildJournalStore(ctx, cfg.Journal, metrics)
	if err != nil {
		return d, err
	}

	if store != nil {
		recorder, recorderErr := journal.NewRecorder(store, journalSource)
		if recorderErr != nil {
			return d, recorderErr
		}
		options = append(options, circulation.WithJournal(recorder))
	}

	notifier, err := d.buildNotifier(cfg)
	if err != nil {
		return d, err
	}
	options = append(options, circulation.WithNotifier(notifier))

	if d.engine, err = circulation.NewEngine(options...); err != nil {
		return d, fmt.Errorf("building engine: %w", err)
	}

	if cfg.Scan.Schedule != "" {
		d.scanner, err = scheduler.NewOverdueScanner(d.engine, cfg.Scan.Schedule,
			scheduler.WithTimeout(cfg.Scan.Timeout),
			scheduler.WithLogger(logger),
		)
		if err != nil {
			return d, err
		}
	}

	return d, nil
}

func (d *daemon) buildMetrics(ctx context.Context, cfg config.MetricsConfig, res *resource.Resource) (circulation.MetricsCollector, error) {
	switch cfg.Backend {
	case config.MetricsOTel:
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("building OTLP metric exporter: %w", err)
		}

		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(provider)
		d.shutdowns = append(d.shutdowns, provider.Shutdown)

		return oteladapters.NewMetricsCollector(provider.Meter(instrumentationLib)), nil

	default:
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		collector, err := promadapters.NewMetricsCollector(registry)
		if err != nil {
			return nil, err
		}

		mux := http.NewServeMux()
		mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		d.metricsServer = &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

		return collector, nil
	}
}

func (d *daemon) buildTracing(ctx context.Context, cfg config.TracingConfig, res *resource.Resource, out io.Writer) (circulation.TracingCollector, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch cfg.Exporter {
	case config.TracingOTLP:
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(out))
	}
	if err != nil {
		return nil, fmt.Errorf("building span exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	d.shutdowns = append(d.shutdowns, provider.Shutdown)

	return oteladapters.NewTracingCollector(provider.Tracer(instrumentationLib)), nil
}

// buildJournalStore returns nil when journaling is disabled. Database stores retry transient failures.
func (d *daemon) buildJournalStore(ctx context.Context, cfg config.JournalConfig, metrics circulation.MetricsCollector) (journal.Store, error) {
	store, err := d.openJournalStore(ctx, cfg)
	if err != nil || store == nil {
		return store, err
	}

	if _, inMemory := store.(*journal.MemoryJournal); inMemory {
		return store, nil
	}

	return journal.NewRetryingStore(store,
		journal.WithMaxAttempts(cfg.RetryAttempts),
		journal.WithRetryIf(postgresjournal.IsTransient),
		journal.WithRetryMetrics(metrics),
	)
}

func (d *daemon) openJournalStore(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	var journalOptions []postgresjournal.Option
	if cfg.Table != "" {
		journalOptions = append(journalOptions, postgresjournal.WithTableName(cfg.Table))
	}
	journalOptions = append(journalOptions, postgresjournal.WithLogger(d.logger))

	switch cfg.Driver {
	case config.JournalNone:
		return nil, nil

	case config.JournalPGX:
		if cfg.Migrate {
			if err := migrateDSN(ctx, cfg.DSN); err != nil {
				return nil, err
			}
		}

		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to the journal database: %w", err)
		}
		d.shutdowns = append(d.shutdowns, func(context.Context) error { pool.Close(); return nil })

		return postgresjournal.NewJournalFromPGXPool(pool, journalOptions...)

	case config.JournalSQL:
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to the journal database: %w", err)
		}
		d.shutdowns = append(d.shutdowns, func(context.Context) error { return db.Close() })

		if cfg.Migrate {
			if err = postgresjournal.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}

		return postgresjournal.NewJournalFromSQLDB(db, journalOptions...)

	case config.JournalSQLX:
		db, err := sqlx.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to the journal database: %w", err)
		}
		d.shutdowns = append(d.shutdowns, func(context.Context) error { return db.Close() })

		if cfg.Migrate {
			if err = postgresjournal.Migrate(ctx, db.DB); err != nil {
				return nil, err
			}
		}

		return postgresjournal.NewJournalFromSQLX(db, journalOptions...)

	case config.JournalMemory:
		return journal.NewMemoryJournal(), nil

	default:
		return nil, fmt.Errorf("%w: journal.driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

// migrateDSN applies the journal migrations over a short-lived database/sql connection.
func migrateDSN(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("connecting to the journal database: %w", err)
	}

	return errors.Join(postgresjournal.Migrate(ctx, db), db.Close())
}

// buildNotifier always logs notices and also publishes them when Redis is configured.
// Overdue notices are de-duplicated before they are throttled.
func (d *daemon) buildNotifier(cfg config.Config) (circulation.Notifier, error) {
	logNotifier, err := notify.NewLogNotifier(d.logger)
	if err != nil {
		return nil, err
	}

	notifiers := []circulation.Notifier{logNotifier}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.shutdowns = append(d.shutdowns, func(context.Context) error { return client.Close() })

		redisNotifier, redisErr := notify.NewRedisNotifier(client, notify.WithChannel(cfg.Redis.Channel))
		if redisErr != nil {
			return nil, redisErr
		}
		notifiers = append(notifiers, redisNotifier)
	}

	var notifier circulation.Notifier = notify.NewFanout(notifiers...)

	if cfg.Notify.RatePerSecond > 0 {
		notifier = notify.NewThrottled(notifier, rate.Limit(cfg.Notify.RatePerSecond), cfg.Notify.Burst)
	}

	if cfg.Notify.DedupeTTL > 0 {
		notifier = notify.NewDeduplicating(notifier, cfg.Notify.DedupeTTL)
	}

	return notifier, nil
}

// start begins serving /metrics and the overdue scan schedule.
func (d *daemon) start(ctx context.Context) error {
	if d.metricsServer != nil {
		listener, err := net.Listen("tcp", d.metricsServer.Addr)
		if err != nil {
			return fmt.Errorf("listening for metrics: %w", err)
		}
		d.metricsAddr = listener.Addr().String()

		go func() {
			if serveErr := d.metricsServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				d.logger.Error("metrics server stopped", "error", serveErr.Error())
			}
		}()

		d.logger.Info("serving metrics", "addr", d.metricsAddr, "path", metricsPath)
	}

	if d.scanner != nil {
		if err := d.scanner.Start(ctx); err != nil {
			return err
		}
	}

	return nil
}

// shutdown stops the scanner and the metrics server, waits for pending notices and journal appends,
// then releases every collaborator.
func (d *daemon) shutdown(ctx context.Context) error {
	var errs []error

	if d.scanner != nil {
		if err := d.scanner.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if d.engine != nil {
		if err := d.engine.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing engine effects: %w", err))
		}
	}

	if d.metricsServer != nil && d.metricsAddr != "" {
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, d.release(ctx))

	return errors.Join(errs...)
}

// release runs the registered shutdown funcs in reverse order of registration.
func (d *daemon) release(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(d.shutdowns) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.shutdowns = nil

	return errors.Join(errs...)
}

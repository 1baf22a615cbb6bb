// Package oteladapters implements the circulation observability interfaces on OpenTelemetry.
//
//	engine, err := circulation.NewEngine(
//		circulation.WithContextualLogger(oteladapters.NewSlogBridgeLogger("circulation")),
//		circulation.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("circulation"))),
//		circulation.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("circulation"))),
//	)
package oteladapters

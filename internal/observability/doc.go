// Package observability provides logging, metrics, and tracing
// helpers shared by the request pipeline.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("attempt dispatched",
//	    observability.String("operation", "GetObject"),
//	    observability.Int("attempt", 1),
//	)
//
// # Metrics
//
// Metrics registers the pipeline collectors on a dedicated Prometheus
// registry. A nil *Metrics is valid and records nothing.
//
//	metrics := observability.NewMetrics("avasdk")
//	metrics.RecordAttempt("GetObject", "success")
//
// # Tracing
//
// Tracer is a thin wrapper over the OpenTelemetry API. Spans are only
// exported when the host process installs a TracerProvider.
package observability

// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// Every chartpay component takes a *Logger and an optional *Metrics. A nil
// *Metrics is valid and records nothing, so library users and tests can skip
// it.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", userID).Info("session opened")
//
// Loggers travel in contexts with WithLogger and FromContext; request and
// user ids are attached with WithRequestID and WithUserID.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.PaymentOp("initiate", "created")
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).AddDatabase("postgres", db)
//	router.HandleFunc("/health", checker.Readiness)
//
// # OpenTelemetry
//
//	tp, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "chartpay-server",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, tp, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging and recovery middleware
package observability

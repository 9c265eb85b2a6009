// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the compliance decision service.
//
// New wires the audit ledger, the decision orchestrator, metrics, tracing,
// optional Weaviate passage retrieval and the integrity monitors behind a
// Gin router. Run serves it until the context is cancelled.
//
// # Usage
//
//	svc, err := orchestrator.New(orchestrator.Config{LedgerPath: "./audit_trail.csv"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//	log.Fatal(svc.Run(ctx))
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/integrity"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/retrieval"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator/routes"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName is reported to tracing and used for the otelgin middleware.
const ServiceName = "csv-decision-service"

// Defaults applied by New.
const (
	DefaultPort          = 12210
	DefaultLedgerPath    = "./audit_trail.csv"
	DefaultRateBurst     = 20
	defaultShutdownGrace = 10 * time.Second
	weaviateStartTimeout = 10 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the lifecycle of the decision service.
//
// # Thread Safety
//
// Run must be called at most once. Close is idempotent and may be called
// from any goroutine.
type Service interface {
	// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
	Run(ctx context.Context) error

	// Router returns the configured Gin engine, mainly for tests.
	Router() *gin.Engine

	// Close stops background monitors and flushes the tracer.
	Close()
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the service settings.
//
// # Fields
//
//   - Port: HTTP port. Default 12210.
//   - LedgerPath: Audit ledger CSV. Default ./audit_trail.csv.
//   - ArchiveDir: Logic archive directory. Default logic_archives beside
//     the ledger.
//   - WeaviateURL: Passage store. Empty disables retrieval.
//   - WeaviateClass: Passage class. Default RegulatoryPassage.
//   - TopK, MinScore: Retrieval defaults for requests that omit them.
//     Values <= 0 use 5 and 0.35.
//   - OTelEndpoint: OTLP gRPC collector. Empty disables tracing export.
//   - RateLimit: Sustained writes per second across write endpoints. 0
//     disables limiting.
//   - RateBurst: Token bucket size. Default 20 when RateLimit > 0.
//   - WatchLedger: Start the fsnotify ledger watcher.
//   - SweepInterval: Full integrity sweep period. 0 disables sweeps.
//   - KnownVersions: Regulatory versions already seen, so they are not
//     reported as new after a restart.
//   - GinMode: "debug", "release" or "test". Empty leaves Gin's mode alone.
//   - Registry: Metrics registry. A fresh one with Go and process
//     collectors is created when nil.
//   - Logger: Defaults to slog.Default().
type Config struct {
	Port          int
	LedgerPath    string
	ArchiveDir    string
	WeaviateURL   string
	WeaviateClass string
	TopK          int
	MinScore      float64
	OTelEndpoint  string
	RateLimit     float64
	RateBurst     int
	WatchLedger   bool
	SweepInterval time.Duration
	KnownVersions []string
	GinMode       string
	Registry      *prometheus.Registry
	Logger        *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Fields
//
//   - ledger: The single audit ledger of this process.
//   - retriever: nil when Weaviate is not configured.
//   - watcher, scheduler: nil when disabled.
//   - stopMonitors: cancels the watcher goroutine.
type service struct {
	config        Config
	logger        *slog.Logger
	router        *gin.Engine
	ledger        *ledger.AuditLedger
	orchestrator  *decisions.Orchestrator
	metrics       *observability.DecisionMetrics
	retriever     retrieval.Retriever
	watcher       *ledger.Watcher
	scheduler     *integrity.Scheduler
	stopMonitors  context.CancelFunc
	tracerCleanup func(context.Context)
	closeOnce     sync.Once
}

// New creates the service.
//
// # Description
//
// Initialisation order:
//  1. Defaults and tracing.
//  2. Metrics registry.
//  3. Audit ledger with the sanity-checked system clock.
//  4. Decision orchestrator.
//  5. Weaviate retriever (optional, failures are logged and retrieval
//     stays disabled).
//  6. Ledger watcher and integrity sweeps (optional).
//  7. Router.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Wraps faults.ErrConfiguration for invalid settings, or the
//     ledger/tracer/watcher initialisation error.
func New(cfg Config) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	s := &service{config: cfg, logger: cfg.Logger}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.metrics = observability.NewDecisionMetrics(cfg.Registry)

	opts := []ledger.Option{
		ledger.WithClock(ledger.NewSystemClock(ledger.DefaultClockConfig())),
		ledger.WithLogger(s.logger),
		ledger.WithObserver(s.metrics),
	}
	if cfg.ArchiveDir != "" {
		opts = append(opts, ledger.WithArchiveDir(cfg.ArchiveDir))
	}
	s.ledger, err = ledger.New(cfg.LedgerPath, opts...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	s.orchestrator = decisions.New(s.ledger,
		decisions.WithLogger(s.logger),
		decisions.WithObserver(s.metrics),
	)

	if err := s.initWeaviate(); err != nil {
		s.logger.Warn("orchestrator.weaviate.unavailable",
			"url", cfg.WeaviateURL, "error", err)
	}

	if err := s.initMonitors(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start ledger monitors: %w", err)
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run serves HTTP on the configured port until ctx is cancelled.
//
// # Outputs
//
//   - error: nil after a graceful shutdown; the listen error otherwise.
func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("orchestrator.server.starting",
			"port", s.config.Port,
			"ledger.path", s.ledger.Path(),
			"retrieval", s.retriever != nil,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownGrace)
	defer cancel()
	s.logger.Info("orchestrator.server.stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the configured Gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close stops the watcher and sweeps, then flushes the tracer.
func (s *service) Close() {
	s.closeOnce.Do(s.close)
}

func (s *service) close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.stopMonitors != nil {
		s.stopMonitors()
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Warn("orchestrator.watcher.close_failed", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills zero-valued fields.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = DefaultLedgerPath
	}
	if cfg.WeaviateClass == "" {
		cfg.WeaviateClass = retrieval.DefaultClass
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.WeaviateURL = strings.Trim(cfg.WeaviateURL, "\"' ")
	return cfg
}

// validateConfig rejects settings that cannot be served.
func validateConfig(cfg Config) error {
	switch {
	case cfg.Port < 1 || cfg.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", faults.ErrConfiguration, cfg.Port)
	case cfg.RateLimit < 0:
		return fmt.Errorf("%w: rate limit must not be negative", faults.ErrConfiguration)
	case cfg.SweepInterval < 0:
		return fmt.Errorf("%w: sweep interval must not be negative", faults.ErrConfiguration)
	}
	switch cfg.GinMode {
	case "", gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("%w: unknown gin mode %q", faults.ErrConfiguration, cfg.GinMode)
	}
	return nil
}

// initTracer installs an OTLP gRPC tracer provider. With no endpoint the
// global no-op provider stays in place.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (collector on the internal network).
func (s *service) initTracer() (func(context.Context), error) {
	if s.config.OTelEndpoint == "" {
		s.logger.Info("orchestrator.tracing.disabled")
		return nil, nil
	}
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			s.logger.Error("orchestrator.tracing.shutdown_failed", "error", err)
		}
	}, nil
}

// initWeaviate creates the passage retriever when a URL is configured.
func (s *service) initWeaviate() error {
	raw := s.config.WeaviateURL
	if raw == "" {
		s.logger.Info("orchestrator.retrieval.disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), weaviateStartTimeout)
	defer cancel()
	r, err := retrieval.Dial(ctx, raw, s.config.WeaviateClass, s.logger)
	if err != nil {
		return err
	}

	s.retriever = r
	s.logger.Info("orchestrator.retrieval.enabled", "url", raw, "class", s.config.WeaviateClass)
	return nil
}

// initMonitors starts the ledger watcher and the integrity scheduler.
func (s *service) initMonitors() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopMonitors = cancel

	if s.config.WatchLedger {
		w, err := ledger.NewWatcher(s.ledger.Path(),
			ledger.WithWatcherLogger(s.logger),
			ledger.WithAlertHandler(func(a ledger.Alert) {
				s.metrics.ObserveAlert(string(a.Kind))
			}),
		)
		if err != nil {
			return fmt.Errorf("ledger watcher: %w", err)
		}
		s.watcher = w
		go w.Run(ctx)
	}

	if s.config.SweepInterval > 0 {
		s.scheduler = integrity.NewScheduler(s.ledger, s.metrics, s.logger,
			integrity.SchedulerConfig{Interval: s.config.SweepInterval})
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// initRouter builds the Gin engine with recovery, tracing and all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), otelgin.Middleware(ServiceName))

	var limiter *rate.Limiter
	if s.config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.config.RateLimit), s.config.RateBurst)
	}

	routes.SetupRoutes(s.router, routes.Deps{
		Orchestrator: s.orchestrator,
		Ledger:       s.ledger,
		Versions:     handlers.NewVersionState(verification.NewKnownVersions(s.config.KnownVersions...)),
		Retriever:    s.retriever,
		TopK:         s.config.TopK,
		MinScore:     s.config.MinScore,
		Limiter:      limiter,
		Metrics:      s.metrics,
		Gatherer:     s.config.Registry,
		Logger:       s.logger,
	})
}
